package passes

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/spaghettifunk/prism/engine/config"
	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/math"
	"github.com/spaghettifunk/prism/engine/renderer/descriptor"
	"github.com/spaghettifunk/prism/engine/renderer/frame"
	"github.com/spaghettifunk/prism/engine/renderer/metadata"
	"github.com/spaghettifunk/prism/engine/renderer/pass"
	"golang.org/x/image/math/f32"
)

// MaxAOSamples is the size of the kernel array in the AO shader.
const MaxAOSamples = 64

const (
	aoLayout = "ao"

	aoKernelBinding = 1
	aoNormalBinding = 2
	aoDepthBinding  = 3
	aoNoiseBinding  = 4
)

// aoKernel mirrors the kernel uniform block: a header then the samples.
type aoKernel struct {
	Count   uint32
	Radius  float32
	_       [2]uint32
	Samples [MaxAOSamples]f32.Vec4
}

// GenerateKernel returns samples points in the unit hemisphere around +z,
// denser towards the origin. The same seed always yields the same kernel.
// A non positive count yields no samples.
func GenerateKernel(samples int, seed uint64) []f32.Vec4 {
	if samples <= 0 {
		return nil
	}
	samples = min(samples, MaxAOSamples)
	rng := math.NewRandom(seed)
	kernel := make([]f32.Vec4, samples)
	for i := range kernel {
		v := f32.Vec3{rng.FloatInRange(-1, 1), rng.FloatInRange(-1, 1), rng.Float()}
		if math.Vec3Length(v) == 0 {
			v = f32.Vec3{0, 0, 1}
		}
		v = math.Vec3Normalize(v)
		t := float32(i) / float32(samples)
		scale := rng.Float() * math.Lerp(0.1, 1, t*t)
		kernel[i] = f32.Vec4{v[0] * scale, v[1] * scale, v[2] * scale, 0}
	}
	return kernel
}

// generateNoise returns size*size RGBA8 texels holding random rotations
// around z, encoded from [-1, 1] to [0, 255].
func generateNoise(size uint32, seed uint64) []byte {
	rng := math.NewRandom(seed ^ 0x9e3779b97f4a7c15)
	data := make([]byte, 0, size*size*4)
	for i := uint32(0); i < size*size; i++ {
		x := rng.FloatInRange(-1, 1)
		y := rng.FloatInRange(-1, 1)
		data = append(data, byte((x*0.5+0.5)*255), byte((y*0.5+0.5)*255), 0, 255)
	}
	return data
}

// AmbientOcclusion samples the G-buffer normal and depth against a kernel
// and writes an occlusion factor. When disabled it clears to white, so
// composition applies no occlusion.
type AmbientOcclusion struct {
	base     pass.Base
	settings config.AOSettings

	sets   []*descriptor.Set
	kernel []f32.Vec4
	buffer metadata.BufferHandle
	noise  *pass.Image
}

func NewAmbientOcclusion(r *pass.Registry) *AmbientOcclusion {
	return &AmbientOcclusion{
		base:     pass.NewBase(r, AOName),
		settings: r.Settings.AO,
	}
}

func (a *AmbientOcclusion) Base() *pass.Base { return &a.base }

// Kernel returns the samples currently uploaded.
func (a *AmbientOcclusion) Kernel() []f32.Vec4 {
	return a.kernel
}

// KernelBuffer is the uniform buffer holding the kernel.
func (a *AmbientOcclusion) KernelBuffer() metadata.BufferHandle {
	return a.buffer
}

func (a *AmbientOcclusion) SetupAttachments() ([]metadata.AttachmentSpec, []pass.Transition, error) {
	return []metadata.AttachmentSpec{
		colorTarget("occlusion", metadata.FormatR8Unorm, [4]float32{1, 1, 1, 1}),
	}, nil, nil
}

func (a *AmbientOcclusion) SetupUniforms(frames []*frame.Frame) error {
	r := a.base.Registry
	if err := a.base.CreateDescriptorPool(); err != nil {
		return err
	}
	if _, err := a.base.Descriptors.SetLayout(aoLayout, []metadata.DescriptorBinding{
		uniformBinding(globalsBinding, true, metadata.ShaderStageFragment),
		uniformBinding(aoKernelBinding, false, metadata.ShaderStageFragment),
		samplerBinding(aoNormalBinding, metadata.ShaderStageFragment),
		samplerBinding(aoDepthBinding, metadata.ShaderStageFragment),
		samplerBinding(aoNoiseBinding, metadata.ShaderStageFragment),
	}); err != nil {
		return err
	}

	var err error
	size := uint64(binary.Size(aoKernel{}))
	if a.buffer, err = a.base.CreateBuffer(metadata.BufferCreateInfo{
		Name:        AOName + "_kernel",
		Size:        size,
		Usage:       metadata.BufferUsageUniform,
		HostVisible: true,
	}); err != nil {
		return err
	}
	if err := a.uploadKernel(); err != nil {
		return err
	}

	noiseSize := max(a.settings.NoiseSize, 1)
	if a.noise, err = pass.NewImage(r.Device, pass.ImageOptions{
		Name:    AOName + "/noise",
		Format:  metadata.FormatRGBA8Unorm,
		Usage:   metadata.ImageUsageSampled,
		Extent:  metadata.Extent3D{Width: noiseSize, Height: noiseSize, Depth: 1},
		Sampler: r.Resources.Linear,
		Data:    generateNoise(noiseSize, a.settings.Seed),
	}); err != nil {
		return err
	}
	a.base.OwnImage(a.noise)

	if a.sets, err = allocatePerFrame(&a.base, aoLayout, frames); err != nil {
		return err
	}
	kernel := metadata.DescriptorResource{Buffer: a.buffer, Range: size}
	if err := updateAll(&a.base, a.sets, aoKernelBinding, kernel); err != nil {
		return err
	}
	if err := updateAll(&a.base, a.sets, aoNoiseBinding, a.noise.Descriptor(0)); err != nil {
		return err
	}
	if err := bindFallbacks(&a.base, a.sets, r.Resources.FlatNormal.Descriptor(r.Resources.Nearest), aoNormalBinding); err != nil {
		return err
	}
	return bindFallbacks(&a.base, a.sets, r.Resources.White.Descriptor(r.Resources.Nearest), aoDepthBinding)
}

func (a *AmbientOcclusion) uploadKernel() error {
	a.kernel = GenerateKernel(a.settings.Samples, a.settings.Seed)
	block := aoKernel{Count: uint32(len(a.kernel)), Radius: a.settings.Radius}
	copy(block.Samples[:], a.kernel)
	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, block); err != nil {
		return err
	}
	if err := a.base.Registry.Device.WriteBuffer(a.buffer, 0, buf.Bytes()); err != nil {
		return fmt.Errorf("failed to upload the AO kernel: %w", err)
	}
	return nil
}

func (a *AmbientOcclusion) SetupShaderPasses() error {
	layouts, err := a.base.Descriptors.LayoutHandles(aoLayout)
	if err != nil {
		return err
	}
	_, err = a.base.BuildPipeline("ssao", metadata.PipelineCreateInfo{
		Kind:    metadata.PipelineKindGraphics,
		Layouts: layouts,
		Stages: []metadata.ShaderModule{
			{Stage: metadata.ShaderStageVertex, Name: fullscreenVertex},
			{Stage: metadata.ShaderStageFragment, Name: "ao.frag"},
		},
		VertexLayout: metadata.VertexLayoutQuad,
	})
	return err
}

// LinkPreviousImages takes the G-buffer normal and depth, in that order.
func (a *AmbientOcclusion) LinkPreviousImages(images []*pass.Image) error {
	if len(images) != 2 {
		return fmt.Errorf("`%s` links normal and depth, got %d images", a.base.Name, len(images))
	}
	nearest := a.base.Registry.Resources.Nearest
	if err := updateAll(&a.base, a.sets, aoNormalBinding, images[0].Descriptor(nearest)); err != nil {
		return err
	}
	return updateAll(&a.base, a.sets, aoDepthBinding, images[1].Descriptor(nearest))
}

func (a *AmbientOcclusion) Execute(f *frame.Frame, scene *metadata.Scene) error {
	cb := f.CommandBuffer
	set, err := setFor(&a.base, a.sets, f)
	if err != nil {
		return err
	}
	if err := a.base.BeginRenderPass(cb, 0); err != nil {
		return err
	}
	if a.settings.Enabled {
		pl := a.base.Pipelines["ssao"]
		pl.Bind(cb)
		if err := a.base.Descriptors.Bind(cb, metadata.PipelineKindGraphics, pl.Layout, 0, []*descriptor.Set{set}, []uint32{f.Uniforms.GlobalOffset()}); err != nil {
			a.base.EndRenderPass(cb, 0)
			return err
		}
		drawQuad(a.base.Registry, cb)
	}
	a.base.EndRenderPass(cb, 0)
	return nil
}

// ApplySettings regenerates the kernel when its inputs changed. The caller
// waits for the device to go idle first.
func (a *AmbientOcclusion) ApplySettings(settings config.PassSettings) {
	old := a.settings
	a.settings = settings.AO
	if old.Samples == a.settings.Samples && old.Seed == a.settings.Seed && old.Radius == a.settings.Radius {
		return
	}
	if a.buffer == 0 {
		return
	}
	if err := a.uploadKernel(); err != nil {
		a.settings = old
		a.kernel = GenerateKernel(old.Samples, old.Seed)
		core.LogError("keeping the previous AO kernel: %s", err)
	}
}

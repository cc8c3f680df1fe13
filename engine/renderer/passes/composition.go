package passes

import (
	"fmt"

	"github.com/spaghettifunk/prism/engine/config"
	"github.com/spaghettifunk/prism/engine/renderer/descriptor"
	"github.com/spaghettifunk/prism/engine/renderer/frame"
	"github.com/spaghettifunk/prism/engine/renderer/metadata"
	"github.com/spaghettifunk/prism/engine/renderer/pass"
)

const compositionLayout = "composition"

// Composition bindings. Binding 0 is the global record.
const (
	CompositionShadow uint32 = iota + 1
	CompositionAlbedo
	CompositionNormal
	CompositionMaterial
	CompositionDepth
	CompositionAO
	CompositionEnvironment
	CompositionVoxel
)

// NoInput marks a producer the pipeline does not have.
const NoInput = -1

// CompositionInputs holds the pipeline index of every producer composition
// reads from. Absent producers are NoInput and their bindings keep a
// fallback.
type CompositionInputs struct {
	Shadow      int
	GBuffer     int
	AO          int
	Environment int
	Voxel       int
}

// Dependencies returns the image dependencies in the order LinkPreviousImages
// expects them.
func (in CompositionInputs) Dependencies() []pass.ImageDependency {
	var deps []pass.ImageDependency
	add := func(producer int, attachments ...int) {
		if producer != NoInput {
			deps = append(deps, pass.ImageDependency{Producer: producer, Attachments: attachments})
		}
	}
	add(in.Shadow, 0)
	add(in.GBuffer, GBufferAlbedo, GBufferNormal, GBufferMaterial, GBufferDepth)
	add(in.AO, 0)
	add(in.Environment, 0)
	add(in.Voxel, 0)
	return deps
}

type compositionPush struct {
	Output   uint32
	HasVoxel uint32
}

// Composition lights the G-buffer with the shadow map, occlusion, the
// environment and the optional voxel volume into an HDR target. The shading
// output push constant selects a debug view instead.
type Composition struct {
	base   pass.Base
	inputs CompositionInputs
	output config.ShadingOutput
	sets   []*descriptor.Set
}

func NewComposition(r *pass.Registry, inputs CompositionInputs) *Composition {
	return &Composition{
		base:   pass.NewBase(r, CompositionName),
		inputs: inputs,
		output: r.Settings.Composition.Output,
	}
}

func (c *Composition) Base() *pass.Base { return &c.base }

// Sets returns the per-frame sets, indexed by frame.
func (c *Composition) Sets() []*descriptor.Set {
	return c.sets
}

func (c *Composition) Output() config.ShadingOutput {
	return c.output
}

func (c *Composition) SetupAttachments() ([]metadata.AttachmentSpec, []pass.Transition, error) {
	return []metadata.AttachmentSpec{
		colorTarget("hdr", metadata.FormatRGBA16Float, [4]float32{}),
	}, nil, nil
}

func (c *Composition) SetupUniforms(frames []*frame.Frame) error {
	if err := c.base.CreateDescriptorPool(); err != nil {
		return err
	}
	bindings := []metadata.DescriptorBinding{uniformBinding(globalsBinding, true, metadata.ShaderStageFragment)}
	for b := CompositionShadow; b <= CompositionVoxel; b++ {
		bindings = append(bindings, samplerBinding(b, metadata.ShaderStageFragment))
	}
	if _, err := c.base.Descriptors.SetLayout(compositionLayout, bindings); err != nil {
		return err
	}
	sets, err := allocatePerFrame(&c.base, compositionLayout, frames)
	if err != nil {
		return err
	}
	c.sets = sets

	res := c.base.Registry.Resources
	fallbacks := []struct {
		binding uint32
		res     metadata.DescriptorResource
	}{
		{CompositionShadow, res.White.Descriptor(res.Shadow)},
		{CompositionAlbedo, res.White.Descriptor(res.Nearest)},
		{CompositionNormal, res.FlatNormal.Descriptor(res.Nearest)},
		{CompositionMaterial, res.Black.Descriptor(res.Nearest)},
		{CompositionDepth, res.White.Descriptor(res.Nearest)},
		{CompositionAO, res.White.Descriptor(res.Nearest)},
		{CompositionEnvironment, res.Black.Descriptor(res.Linear)},
		{CompositionVoxel, res.Fallback3D.Descriptor(res.Linear)},
	}
	for _, fb := range fallbacks {
		if err := bindFallbacks(&c.base, sets, fb.res, fb.binding); err != nil {
			return err
		}
	}
	return nil
}

func (c *Composition) SetupShaderPasses() error {
	layouts, err := c.base.Descriptors.LayoutHandles(compositionLayout)
	if err != nil {
		return err
	}
	_, err = c.base.BuildPipeline("lighting", metadata.PipelineCreateInfo{
		Kind:             metadata.PipelineKindGraphics,
		Layouts:          layouts,
		PushConstantSize: uint32(len(pushConstants(compositionPush{}))),
		Stages: []metadata.ShaderModule{
			{Stage: metadata.ShaderStageVertex, Name: fullscreenVertex},
			{Stage: metadata.ShaderStageFragment, Name: "composition.frag"},
		},
		VertexLayout: metadata.VertexLayoutQuad,
	})
	return err
}

// LinkPreviousImages takes the producer images in the order of
// CompositionInputs.Dependencies.
func (c *Composition) LinkPreviousImages(images []*pass.Image) error {
	res := c.base.Registry.Resources
	type link struct {
		binding uint32
		sampler metadata.SamplerHandle
	}
	var links []link
	if c.inputs.Shadow != NoInput {
		links = append(links, link{CompositionShadow, res.Shadow})
	}
	if c.inputs.GBuffer != NoInput {
		links = append(links,
			link{CompositionAlbedo, res.Nearest},
			link{CompositionNormal, res.Nearest},
			link{CompositionMaterial, res.Nearest},
			link{CompositionDepth, res.Nearest})
	}
	if c.inputs.AO != NoInput {
		links = append(links, link{CompositionAO, res.Linear})
	}
	if c.inputs.Environment != NoInput {
		links = append(links, link{CompositionEnvironment, res.Linear})
	}
	if c.inputs.Voxel != NoInput {
		links = append(links, link{CompositionVoxel, res.Linear})
	}
	if len(images) != len(links) {
		return fmt.Errorf("`%s` expects %d images, got %d", c.base.Name, len(links), len(images))
	}
	for i, l := range links {
		if err := updateAll(&c.base, c.sets, l.binding, images[i].Descriptor(l.sampler)); err != nil {
			return err
		}
	}
	return nil
}

func (c *Composition) Execute(f *frame.Frame, scene *metadata.Scene) error {
	cb := f.CommandBuffer
	set, err := setFor(&c.base, c.sets, f)
	if err != nil {
		return err
	}
	if err := c.base.BeginRenderPass(cb, 0); err != nil {
		return err
	}
	pl := c.base.Pipelines["lighting"]
	pl.Bind(cb)
	if err := c.base.Descriptors.Bind(cb, metadata.PipelineKindGraphics, pl.Layout, 0, []*descriptor.Set{set}, []uint32{f.Uniforms.GlobalOffset()}); err != nil {
		c.base.EndRenderPass(cb, 0)
		return err
	}
	push := compositionPush{Output: uint32(max(c.output.Index(), 0))}
	if c.inputs.Voxel != NoInput {
		push.HasVoxel = 1
	}
	cb.PushConstants(pl.Layout, metadata.ShaderStageFragment, 0, pushConstants(push))
	drawQuad(c.base.Registry, cb)
	c.base.EndRenderPass(cb, 0)
	return nil
}

// ApplySettings switches the shading output. Unknown outputs are ignored.
func (c *Composition) ApplySettings(settings config.PassSettings) {
	if settings.Composition.Output.Index() >= 0 {
		c.output = settings.Composition.Output
	}
}

package passes

import (
	"fmt"

	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/renderer/descriptor"
	"github.com/spaghettifunk/prism/engine/renderer/frame"
	"github.com/spaghettifunk/prism/engine/renderer/metadata"
	"github.com/spaghettifunk/prism/engine/renderer/pass"
	"golang.org/x/exp/slices"
)

const (
	gbufferObjects   = "gbuffer_objects"
	gbufferMaterials = "gbuffer_materials"
	// DefaultMaterial is the shader drawables without a material shader use.
	DefaultMaterial = "gbuffer"
)

// G-buffer attachment indices, in declaration order.
const (
	GBufferAlbedo = iota
	GBufferNormal
	GBufferMaterial
	GBufferDepth
)

// GBuffer draws every drawable into albedo, normal, material and depth
// targets. Textures live in one variable sized array per frame; a slot shows
// a fallback until its texture is ready.
type GBuffer struct {
	base pass.Base

	frames    []*frame.Frame
	objects   []*descriptor.Set
	materials []*descriptor.Set
	capacity  uint32

	slots map[*metadata.Texture]uint32
	next  uint32
	free  []uint32
	// retiring holds the slots of released textures and the frames whose
	// array still points at the destroyed view.
	retiring  map[uint32]map[int]bool
	fallbacks []metadata.DescriptorResource
	shaders   []string
	missing   map[string]bool
}

func NewGBuffer(r *pass.Registry) *GBuffer {
	return &GBuffer{
		base:     pass.NewBase(r, GBufferName),
		slots:    make(map[*metadata.Texture]uint32),
		next:     1,
		retiring: make(map[uint32]map[int]bool),
		missing:  make(map[string]bool),
		shaders:  []string{DefaultMaterial},
	}
}

func (g *GBuffer) Base() *pass.Base { return &g.base }

func (g *GBuffer) SetupAttachments() ([]metadata.AttachmentSpec, []pass.Transition, error) {
	return []metadata.AttachmentSpec{
		colorTarget("albedo", metadata.FormatRGBA8Unorm, [4]float32{}),
		colorTarget("normal", metadata.FormatRGBA16Float, [4]float32{}),
		colorTarget("material", metadata.FormatRGBA8Unorm, [4]float32{}),
		depthTarget("depth"),
	}, nil, nil
}

func (g *GBuffer) SetupUniforms(frames []*frame.Frame) error {
	r := g.base.Registry
	g.capacity = r.Descriptors.BindlessTextures
	if g.capacity == 0 {
		return fmt.Errorf("`%s` needs room for at least one texture: %w", g.base.Name, core.ErrInvalidBinding)
	}
	extra := metadata.PoolSize{
		Type:  metadata.DescriptorTypeCombinedImageSampler,
		Count: g.capacity * uint32(len(frames)),
	}
	if err := g.base.CreateDescriptorPool(extra); err != nil {
		return err
	}
	if _, err := g.base.Descriptors.SetLayout(gbufferObjects, []metadata.DescriptorBinding{
		uniformBinding(globalsBinding, true, metadata.ShaderStageVertex|metadata.ShaderStageFragment),
		uniformBinding(1, true, metadata.ShaderStageVertex|metadata.ShaderStageFragment),
	}); err != nil {
		return err
	}
	if _, err := g.base.Descriptors.SetLayout(gbufferMaterials, []metadata.DescriptorBinding{{
		Binding:  0,
		Type:     metadata.DescriptorTypeCombinedImageSampler,
		Count:    g.capacity,
		Stages:   metadata.ShaderStageFragment,
		Variable: true,
	}}); err != nil {
		return err
	}

	objects, err := allocatePerFrame(&g.base, gbufferObjects, frames)
	if err != nil {
		return err
	}
	g.materials = make([]*descriptor.Set, len(frames))
	for i, f := range frames {
		if err := g.base.Descriptors.Update(objects[i], 1, f.Uniforms.ObjectResource()); err != nil {
			return err
		}
		if g.materials[i], err = g.base.Descriptors.AllocateVariable(gbufferMaterials, g.capacity); err != nil {
			return err
		}
		// Slot 0 is the shared white texture every unassigned slot points at.
		if err := g.base.Descriptors.BindFallback(g.materials[i], 0, 0, r.Resources.White.Descriptor(0)); err != nil {
			return err
		}
	}
	g.objects = objects
	g.frames = frames
	g.fallbacks = []metadata.DescriptorResource{
		metadata.TextureSlotAlbedo:            r.Resources.White.Descriptor(0),
		metadata.TextureSlotNormal:            r.Resources.FlatNormal.Descriptor(0),
		metadata.TextureSlotMetallicRoughness: r.Resources.White.Descriptor(0),
		metadata.TextureSlotEmissive:          r.Resources.Black.Descriptor(0),
	}
	return nil
}

func materialFragment(shader string) string {
	return shader + ".frag"
}

func (g *GBuffer) buildMaterial(shader string) error {
	layouts, err := g.base.Descriptors.LayoutHandles(gbufferObjects, gbufferMaterials)
	if err != nil {
		return err
	}
	_, err = g.base.BuildPipeline(shader, metadata.PipelineCreateInfo{
		Kind:    metadata.PipelineKindGraphics,
		Layouts: layouts,
		Stages: []metadata.ShaderModule{
			{Stage: metadata.ShaderStageVertex, Name: "gbuffer.vert"},
			{Stage: metadata.ShaderStageFragment, Name: materialFragment(shader)},
		},
		VertexLayout: metadata.VertexLayoutMesh,
		CullMode:     metadata.CullModeBack,
		DepthTest:    true,
		DepthWrite:   true,
	})
	return err
}

// SetupShaderPasses builds the default material and every material seen so
// far, so a shader reload brings back the same set of pipelines.
func (g *GBuffer) SetupShaderPasses() error {
	g.missing = make(map[string]bool)
	for _, shader := range g.shaders {
		if err := g.buildMaterial(shader); err != nil {
			if shader == DefaultMaterial {
				return err
			}
			core.LogWarn("material shader `%s` unavailable, drawing with `%s`: %s", shader, DefaultMaterial, err)
			g.missing[shader] = true
		}
	}
	return nil
}

// pipelineFor returns the pipeline of a material shader, building it the
// first time the shader is seen. Shaders that fail to build fall back to the
// default material.
func (g *GBuffer) pipelineFor(shader string) *pass.Pipeline {
	if shader == "" || g.missing[shader] {
		return g.base.Pipelines[DefaultMaterial]
	}
	if pl, ok := g.base.Pipelines[shader]; ok {
		return pl
	}
	g.shaders = append(g.shaders, shader)
	if err := g.buildMaterial(shader); err != nil {
		core.LogWarn("material shader `%s` unavailable, drawing with `%s`: %s", shader, DefaultMaterial, err)
		g.missing[shader] = true
		return g.base.Pipelines[DefaultMaterial]
	}
	return g.base.Pipelines[shader]
}

// slot returns the array slot of a texture, assigning a free one on first
// sight. Zero means no slot is left and the white texture is used.
func (g *GBuffer) slot(t *metadata.Texture) uint32 {
	if s, ok := g.slots[t]; ok {
		return s
	}
	var s uint32
	switch {
	case len(g.free) > 0:
		s, g.free = g.free[0], g.free[1:]
	case g.next < g.capacity:
		s = g.next
		g.next++
	default:
		core.LogWarn("`%s` is out of texture slots, `%s` renders white", g.base.Name, t.Name)
		return 0
	}
	g.slots[t] = s
	return s
}

// retire takes the slots of released textures out of use. A slot is handed
// out again once every frame's array has dropped the destroyed view.
func (g *GBuffer) retire() {
	for t, s := range g.slots {
		if !t.Released {
			continue
		}
		delete(g.slots, t)
		pending := make(map[int]bool, len(g.frames))
		for i := range g.frames {
			pending[i] = true
		}
		g.retiring[s] = pending
		core.LogDebug("`%s` retiring texture slot %d of `%s`", g.base.Name, s, t.Name)
	}
}

func (g *GBuffer) rebindRetired(frameIndex int) error {
	set := g.materials[frameIndex]
	for s, pending := range g.retiring {
		if !pending[frameIndex] {
			continue
		}
		if err := g.base.Descriptors.Rebind(set, 0, s, g.fallbacks[metadata.TextureSlotAlbedo]); err != nil {
			return err
		}
		delete(pending, frameIndex)
		if len(pending) == 0 {
			delete(g.retiring, s)
			g.free = append(g.free, s)
			slices.Sort(g.free)
		}
	}
	return nil
}

// Slot reports the array slot assigned to a texture.
func (g *GBuffer) Slot(t *metadata.Texture) (uint32, bool) {
	s, ok := g.slots[t]
	return s, ok
}

// MaterialSet returns the texture array of a frame.
func (g *GBuffer) MaterialSet(frameIndex int) *descriptor.Set {
	if frameIndex < 0 || frameIndex >= len(g.materials) {
		return nil
	}
	return g.materials[frameIndex]
}

// UpdateUniforms assigns texture slots, writes the frame's array and the
// texture slots of the object records the fragment shader reads.
func (g *GBuffer) UpdateUniforms(frameIndex int, scene *metadata.Scene) error {
	if scene == nil || frameIndex < 0 || frameIndex >= len(g.frames) {
		return nil
	}
	g.retire()
	if err := g.rebindRetired(frameIndex); err != nil {
		return err
	}
	f := g.frames[frameIndex]
	set := g.materials[frameIndex]
	limit := min(len(scene.Drawables), g.base.Registry.MaxObjects)
	for i := 0; i < limit; i++ {
		d := scene.Drawables[i]
		if d == nil {
			continue
		}
		var slots [metadata.TextureSlotCount]uint32
		for kind, t := range d.Textures {
			if t == nil || t.Released {
				continue
			}
			s := g.slot(t)
			if s == 0 {
				continue
			}
			if err := g.bindTexture(set, s, t, metadata.TextureSlot(kind)); err != nil {
				return err
			}
			slots[kind] = s
		}
		if err := f.WriteObjectTextures(i, slots); err != nil {
			return err
		}
	}
	return nil
}

func (g *GBuffer) bindTexture(set *descriptor.Set, s uint32, t *metadata.Texture, kind metadata.TextureSlot) error {
	_, state := g.base.Descriptors.Bound(set, 0, s)
	if !t.Usable() {
		if state == descriptor.BindingStateResourceBound {
			// The texture is being reloaded; keep drawing the previous one.
			return nil
		}
		return g.base.Descriptors.BindFallback(set, 0, s, g.fallbacks[kind])
	}
	sampler := t.Sampler
	if sampler == 0 {
		sampler = g.base.Registry.Resources.Linear
	}
	return g.base.Descriptors.UpdateArray(set, 0, s, metadata.DescriptorResource{
		View:    t.View,
		Sampler: sampler,
		Layout:  metadata.ImageLayoutShaderReadOnly,
	})
}

// OnCleanup forgets the slot assignments; the sets go with the pool.
func (g *GBuffer) OnCleanup() {
	g.slots = make(map[*metadata.Texture]uint32)
	g.next = 1
	g.free = nil
	g.retiring = make(map[uint32]map[int]bool)
	g.frames = nil
	g.objects = nil
	g.materials = nil
}

func (g *GBuffer) Execute(f *frame.Frame, scene *metadata.Scene) error {
	cb := f.CommandBuffer
	objects, err := setFor(&g.base, g.objects, f)
	if err != nil {
		return err
	}
	materials := g.materials[f.Index]
	if err := g.base.BeginRenderPass(cb, 0); err != nil {
		return err
	}
	err = drawScene(&g.base, cb, f, scene, func(d *metadata.Drawable) (*pass.Pipeline, []*descriptor.Set) {
		return g.pipelineFor(d.MaterialShader), []*descriptor.Set{objects, materials}
	}, nil)
	g.base.EndRenderPass(cb, 0)
	return err
}

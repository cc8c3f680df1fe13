package passes

import (
	"github.com/spaghettifunk/prism/engine/renderer/descriptor"
	"github.com/spaghettifunk/prism/engine/renderer/frame"
	"github.com/spaghettifunk/prism/engine/renderer/metadata"
	"github.com/spaghettifunk/prism/engine/renderer/pass"
)

const (
	environmentLayout  = "environment"
	environmentCubemap = 1
)

// Environment renders the skybox behind the scene. The cubemap binding holds
// the fallback cube until the scene supplies a ready skybox.
type Environment struct {
	base pass.Base
	sets []*descriptor.Set
}

func NewEnvironment(r *pass.Registry) *Environment {
	return &Environment{base: pass.NewBase(r, EnvironmentName)}
}

func (e *Environment) Base() *pass.Base { return &e.base }

func (e *Environment) SetupAttachments() ([]metadata.AttachmentSpec, []pass.Transition, error) {
	return []metadata.AttachmentSpec{
		colorTarget("sky", metadata.FormatRGBA16Float, [4]float32{0, 0, 0, 1}),
	}, nil, nil
}

func (e *Environment) SetupUniforms(frames []*frame.Frame) error {
	if err := e.base.CreateDescriptorPool(); err != nil {
		return err
	}
	if _, err := e.base.Descriptors.SetLayout(environmentLayout, []metadata.DescriptorBinding{
		uniformBinding(globalsBinding, true, metadata.ShaderStageVertex|metadata.ShaderStageFragment),
		samplerBinding(environmentCubemap, metadata.ShaderStageFragment),
	}); err != nil {
		return err
	}
	sets, err := allocatePerFrame(&e.base, environmentLayout, frames)
	if err != nil {
		return err
	}
	e.sets = sets
	return bindFallbacks(&e.base, sets, e.base.Registry.Resources.FallbackCube.Descriptor(0), environmentCubemap)
}

func (e *Environment) SetupShaderPasses() error {
	layouts, err := e.base.Descriptors.LayoutHandles(environmentLayout)
	if err != nil {
		return err
	}
	_, err = e.base.BuildPipeline("skybox", metadata.PipelineCreateInfo{
		Kind:    metadata.PipelineKindGraphics,
		Layouts: layouts,
		Stages: []metadata.ShaderModule{
			{Stage: metadata.ShaderStageVertex, Name: "skybox.vert"},
			{Stage: metadata.ShaderStageFragment, Name: "skybox.frag"},
		},
		VertexLayout: metadata.VertexLayoutQuad,
	})
	return err
}

// Sets returns the per-frame sets, indexed by frame.
func (e *Environment) Sets() []*descriptor.Set {
	return e.sets
}

// UpdateUniforms binds the scene skybox once it is ready. While a skybox
// reloads the previous cubemap stays bound; once it is released or removed
// from the scene the fallback cube takes its place.
func (e *Environment) UpdateUniforms(frameIndex int, scene *metadata.Scene) error {
	if scene == nil || frameIndex < 0 || frameIndex >= len(e.sets) {
		return nil
	}
	set := e.sets[frameIndex]
	sky := scene.Skybox
	if sky == nil || sky.Released {
		if _, state := e.base.Descriptors.Bound(set, environmentCubemap, 0); state != descriptor.BindingStateResourceBound {
			return nil
		}
		return e.base.Descriptors.Rebind(set, environmentCubemap, 0, e.base.Registry.Resources.FallbackCube.Descriptor(0))
	}
	if !sky.Usable() {
		return nil
	}
	sampler := sky.Sampler
	if sampler == 0 {
		sampler = e.base.Registry.Resources.Linear
	}
	return e.base.Descriptors.Update(set, environmentCubemap, metadata.DescriptorResource{
		View:    sky.View,
		Sampler: sampler,
		Layout:  metadata.ImageLayoutShaderReadOnly,
	})
}

func (e *Environment) Execute(f *frame.Frame, scene *metadata.Scene) error {
	cb := f.CommandBuffer
	set, err := setFor(&e.base, e.sets, f)
	if err != nil {
		return err
	}
	if err := e.base.BeginRenderPass(cb, 0); err != nil {
		return err
	}
	pl := e.base.Pipelines["skybox"]
	pl.Bind(cb)
	if err := e.base.Descriptors.Bind(cb, metadata.PipelineKindGraphics, pl.Layout, 0, []*descriptor.Set{set}, []uint32{f.Uniforms.GlobalOffset()}); err != nil {
		e.base.EndRenderPass(cb, 0)
		return err
	}
	drawQuad(e.base.Registry, cb)
	e.base.EndRenderPass(cb, 0)
	return nil
}

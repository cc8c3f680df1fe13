package passes

import (
	"github.com/spaghettifunk/prism/engine/config"
	"github.com/spaghettifunk/prism/engine/renderer/descriptor"
	"github.com/spaghettifunk/prism/engine/renderer/frame"
	"github.com/spaghettifunk/prism/engine/renderer/metadata"
	"github.com/spaghettifunk/prism/engine/renderer/pass"
)

const shadowLayout = "shadow_objects"

// Shadow renders the depth of shadow casters from the directional light into
// a square map of fixed resolution.
type Shadow struct {
	base     pass.Base
	settings config.ShadowSettings
	sets     []*descriptor.Set
}

func NewShadow(r *pass.Registry) *Shadow {
	s := &Shadow{
		base:     pass.NewBase(r, ShadowName),
		settings: r.Settings.Shadow,
	}
	s.base.Resizeable = false
	s.base.FixedExtent = metadata.Extent2D{Width: s.settings.Resolution, Height: s.settings.Resolution}
	return s
}

func (s *Shadow) Base() *pass.Base { return &s.base }

func (s *Shadow) SetupAttachments() ([]metadata.AttachmentSpec, []pass.Transition, error) {
	return []metadata.AttachmentSpec{depthTarget("depth")}, nil, nil
}

func (s *Shadow) SetupUniforms(frames []*frame.Frame) error {
	if err := s.base.CreateDescriptorPool(); err != nil {
		return err
	}
	if _, err := s.base.Descriptors.SetLayout(shadowLayout, []metadata.DescriptorBinding{
		uniformBinding(globalsBinding, true, metadata.ShaderStageVertex),
		uniformBinding(1, true, metadata.ShaderStageVertex),
	}); err != nil {
		return err
	}
	sets, err := allocatePerFrame(&s.base, shadowLayout, frames)
	if err != nil {
		return err
	}
	for i, f := range frames {
		if err := s.base.Descriptors.Update(sets[i], 1, f.Uniforms.ObjectResource()); err != nil {
			return err
		}
	}
	s.sets = sets
	return nil
}

func (s *Shadow) SetupShaderPasses() error {
	layouts, err := s.base.Descriptors.LayoutHandles(shadowLayout)
	if err != nil {
		return err
	}
	_, err = s.base.BuildPipeline("depth", metadata.PipelineCreateInfo{
		Kind:    metadata.PipelineKindGraphics,
		Layouts: layouts,
		Stages: []metadata.ShaderModule{
			{Stage: metadata.ShaderStageVertex, Name: "shadow.vert"},
			{Stage: metadata.ShaderStageFragment, Name: "shadow.frag"},
		},
		VertexLayout: metadata.VertexLayoutMesh,
		CullMode:     metadata.CullModeFront,
		DepthTest:    true,
		DepthWrite:   true,
		DepthBias:    true,
	})
	return err
}

// Execute clears the map and, when shadows are enabled, draws every caster.
// A disabled pass leaves a cleared map, which composition reads as fully lit.
func (s *Shadow) Execute(f *frame.Frame, scene *metadata.Scene) error {
	cb := f.CommandBuffer
	if err := s.base.BeginRenderPass(cb, 0); err != nil {
		return err
	}
	if s.settings.Enabled {
		set, err := setFor(&s.base, s.sets, f)
		if err != nil {
			s.base.EndRenderPass(cb, 0)
			return err
		}
		pl := s.base.Pipelines["depth"]
		err = drawScene(&s.base, cb, f, scene,
			func(*metadata.Drawable) (*pass.Pipeline, []*descriptor.Set) { return pl, []*descriptor.Set{set} },
			func(d *metadata.Drawable) bool { return d.CastsShadow })
		if err != nil {
			s.base.EndRenderPass(cb, 0)
			return err
		}
	}
	s.base.EndRenderPass(cb, 0)
	return nil
}

// ApplySettings takes the new resolution as the fixed extent. The pipeline
// rebuilds the map on its next resize.
func (s *Shadow) ApplySettings(settings config.PassSettings) {
	s.settings = settings.Shadow
	if s.settings.Resolution > 0 {
		s.base.FixedExtent = metadata.Extent2D{Width: s.settings.Resolution, Height: s.settings.Resolution}
	}
}

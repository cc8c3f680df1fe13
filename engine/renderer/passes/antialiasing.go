package passes

import (
	"fmt"

	"github.com/spaghettifunk/prism/engine/config"
	"github.com/spaghettifunk/prism/engine/renderer/descriptor"
	"github.com/spaghettifunk/prism/engine/renderer/frame"
	"github.com/spaghettifunk/prism/engine/renderer/metadata"
	"github.com/spaghettifunk/prism/engine/renderer/pass"
)

const (
	postLayout = "post"

	postHDR   = 0
	postBloom = 1
)

type postPush struct {
	FXAA          uint32
	BloomStrength float32
}

// AntiAliasing tonemaps the HDR image, adds bloom and runs FXAA into the
// acquired swapchain image. It is the default pass: one framebuffer per
// swapchain image.
type AntiAliasing struct {
	base      pass.Base
	settings  config.PassSettings
	withBloom bool
	sets      []*descriptor.Set
}

// NewAntiAliasing creates the final pass. withBloom says whether a bloom
// chain follows the HDR image in the linked images.
func NewAntiAliasing(r *pass.Registry, withBloom bool) *AntiAliasing {
	a := &AntiAliasing{
		base:      pass.NewBase(r, AntiAliasingName),
		settings:  r.Settings,
		withBloom: withBloom,
	}
	a.base.IsDefault = true
	return a
}

func (a *AntiAliasing) Base() *pass.Base { return &a.base }

func (a *AntiAliasing) SetupAttachments() ([]metadata.AttachmentSpec, []pass.Transition, error) {
	return []metadata.AttachmentSpec{{
		Name:          "present",
		Kind:          metadata.AttachmentKindColor,
		Format:        a.base.Registry.Device.SwapchainFormat(),
		InitialLayout: metadata.ImageLayoutUndefined,
		FinalLayout:   metadata.ImageLayoutPresentSrc,
		LoadOp:        metadata.LoadOpDontCare,
		StoreOp:       metadata.StoreOpStore,
		Swapchain:     true,
	}}, nil, nil
}

func (a *AntiAliasing) SetupUniforms(frames []*frame.Frame) error {
	if err := a.base.CreateDescriptorPool(); err != nil {
		return err
	}
	if _, err := a.base.Descriptors.SetLayout(postLayout, []metadata.DescriptorBinding{
		samplerBinding(postHDR, metadata.ShaderStageFragment),
		samplerBinding(postBloom, metadata.ShaderStageFragment),
	}); err != nil {
		return err
	}
	a.sets = make([]*descriptor.Set, len(frames))
	for i := range frames {
		var err error
		if a.sets[i], err = a.base.Descriptors.Allocate(postLayout); err != nil {
			return err
		}
	}
	res := a.base.Registry.Resources
	if err := bindFallbacks(&a.base, a.sets, res.Black.Descriptor(res.Linear), postHDR); err != nil {
		return err
	}
	return bindFallbacks(&a.base, a.sets, res.Black.Descriptor(res.Linear), postBloom)
}

func (a *AntiAliasing) SetupShaderPasses() error {
	layouts, err := a.base.Descriptors.LayoutHandles(postLayout)
	if err != nil {
		return err
	}
	_, err = a.base.BuildPipeline("fxaa", metadata.PipelineCreateInfo{
		Kind:             metadata.PipelineKindGraphics,
		Layouts:          layouts,
		PushConstantSize: uint32(len(pushConstants(postPush{}))),
		Stages: []metadata.ShaderModule{
			{Stage: metadata.ShaderStageVertex, Name: fullscreenVertex},
			{Stage: metadata.ShaderStageFragment, Name: "fxaa.frag"},
		},
		VertexLayout: metadata.VertexLayoutQuad,
	})
	return err
}

// LinkPreviousImages takes the HDR image, then the bloom chain when there is
// one.
func (a *AntiAliasing) LinkPreviousImages(images []*pass.Image) error {
	want := 1
	if a.withBloom {
		want = 2
	}
	if len(images) != want {
		return fmt.Errorf("`%s` expects %d images, got %d", a.base.Name, want, len(images))
	}
	linear := a.base.Registry.Resources.Linear
	if err := updateAll(&a.base, a.sets, postHDR, images[0].Descriptor(linear)); err != nil {
		return err
	}
	if a.withBloom {
		return updateAll(&a.base, a.sets, postBloom, images[1].Descriptor(linear))
	}
	return nil
}

func (a *AntiAliasing) Execute(f *frame.Frame, scene *metadata.Scene) error {
	cb := f.CommandBuffer
	set, err := setFor(&a.base, a.sets, f)
	if err != nil {
		return err
	}
	fb := a.base.FramebufferIndex(f)
	if err := a.base.BeginRenderPass(cb, fb); err != nil {
		return err
	}
	pl := a.base.Pipelines["fxaa"]
	pl.Bind(cb)
	if err := a.base.Descriptors.Bind(cb, metadata.PipelineKindGraphics, pl.Layout, 0, []*descriptor.Set{set}, nil); err != nil {
		a.base.EndRenderPass(cb, fb)
		return err
	}
	var push postPush
	if a.settings.AA.Enabled {
		push.FXAA = 1
	}
	if a.withBloom && a.settings.Bloom.Enabled {
		push.BloomStrength = a.settings.Bloom.Strength
	}
	cb.PushConstants(pl.Layout, metadata.ShaderStageFragment, 0, pushConstants(push))
	drawQuad(a.base.Registry, cb)
	a.base.EndRenderPass(cb, fb)
	return nil
}

func (a *AntiAliasing) ApplySettings(settings config.PassSettings) {
	a.settings = settings
}

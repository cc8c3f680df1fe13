package pipeline

import (
	"context"
	"testing"

	"github.com/spaghettifunk/prism/engine/assets"
	"github.com/spaghettifunk/prism/engine/config"
	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/math"
	"github.com/spaghettifunk/prism/engine/renderer/descriptor"
	"github.com/spaghettifunk/prism/engine/renderer/frame"
	"github.com/spaghettifunk/prism/engine/renderer/headless"
	"github.com/spaghettifunk/prism/engine/renderer/metadata"
	"github.com/spaghettifunk/prism/engine/renderer/pass"
	"github.com/spaghettifunk/prism/engine/renderer/passes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var small = metadata.Extent2D{Width: 64, Height: 64}

// spy is a minimal pass that logs every call the pipeline makes on it.
type spy struct {
	base      pass.Base
	log       *[]string
	swapchain bool
	linked    []*pass.Image
}

func newSpy(rp *RenderPipeline, name string, log *[]string) *spy {
	return &spy{base: pass.NewBase(rp.Registry(), name), log: log}
}

func newPresentSpy(rp *RenderPipeline, name string, log *[]string) *spy {
	s := newSpy(rp, name, log)
	s.base.IsDefault = true
	s.swapchain = true
	return s
}

func (s *spy) record(event string) {
	*s.log = append(*s.log, event+":"+s.base.Name)
}

func (s *spy) Base() *pass.Base { return &s.base }

func (s *spy) SetupAttachments() ([]metadata.AttachmentSpec, []pass.Transition, error) {
	s.record("attachments")
	spec := metadata.AttachmentSpec{
		Name:        "color",
		Kind:        metadata.AttachmentKindColor,
		Format:      metadata.FormatRGBA8Unorm,
		Usage:       metadata.ImageUsageSampled,
		FinalLayout: metadata.ImageLayoutShaderReadOnly,
		LoadOp:      metadata.LoadOpClear,
		StoreOp:     metadata.StoreOpStore,
	}
	if s.swapchain {
		spec.Format = s.base.Registry.Device.SwapchainFormat()
		spec.Usage = 0
		spec.FinalLayout = metadata.ImageLayoutPresentSrc
		spec.Swapchain = true
	}
	return []metadata.AttachmentSpec{spec}, nil, nil
}

func (s *spy) SetupUniforms(frames []*frame.Frame) error {
	s.record("uniforms")
	return s.base.CreateDescriptorPool()
}

func (s *spy) SetupShaderPasses() error {
	s.record("shaders")
	_, err := s.base.BuildPipeline("main", metadata.PipelineCreateInfo{
		Kind: metadata.PipelineKindGraphics,
		Stages: []metadata.ShaderModule{
			{Stage: metadata.ShaderStageVertex, Name: s.base.Name + ".vert"},
			{Stage: metadata.ShaderStageFragment, Name: s.base.Name + ".frag"},
		},
	})
	return err
}

func (s *spy) LinkPreviousImages(images []*pass.Image) error {
	s.record("link")
	s.linked = images
	return nil
}

func (s *spy) Execute(f *frame.Frame, scene *metadata.Scene) error {
	s.record("execute")
	cb := f.CommandBuffer
	fb := s.base.FramebufferIndex(f)
	if err := s.base.BeginRenderPass(cb, fb); err != nil {
		return err
	}
	s.base.Pipelines["main"].Bind(cb)
	cb.Draw(pass.QuadVertexCount, 1, 0, 0)
	s.base.EndRenderPass(cb, fb)
	return nil
}

func (s *spy) OnCleanup() {
	s.record("cleanup")
}

func newPipeline(t *testing.T, d *headless.Device, surface Surface, shaders assets.ShaderSource) *RenderPipeline {
	t.Helper()
	cfg := config.Default()
	cfg.Descriptors.BindlessTextures = 16
	cfg.Passes.Shadow.Resolution = 64
	rp, err := New(Options{
		Device:      d,
		Surface:     surface,
		Shaders:     shaders,
		Settings:    cfg.Passes,
		Descriptors: cfg.Descriptors,
		FrameCount:  2,
		MaxObjects:  8,
	})
	require.NoError(t, err)
	return rp
}

func finish(t *testing.T, rp *RenderPipeline, d *headless.Device) {
	t.Helper()
	require.NoError(t, rp.Shutdown())
	assert.Equal(t, StateShutDown, rp.State())
	assert.Empty(t, d.LiveObjects())
	assert.Empty(t, d.Violations())
}

func testScene() *metadata.Scene {
	s := &metadata.Scene{}
	for i := 0; i < 2; i++ {
		s.Drawables = append(s.Drawables, &metadata.Drawable{
			Transform:    math.Mat4Identity(),
			VertexBuffer: 1,
			IndexBuffer:  2,
			IndexCount:   36,
			CastsShadow:  true,
		})
	}
	return s
}

// standard adds shadow, gbuffer and composition and returns them.
func standard(rp *RenderPipeline) (*passes.Shadow, *passes.GBuffer, *passes.Composition) {
	reg := rp.Registry()
	shadow := passes.NewShadow(reg)
	gbuffer := passes.NewGBuffer(reg)
	inputs := passes.CompositionInputs{
		Shadow:      rp.Add(shadow),
		GBuffer:     rp.Add(gbuffer),
		AO:          passes.NoInput,
		Environment: passes.NoInput,
		Voxel:       passes.NoInput,
	}
	composition := passes.NewComposition(reg, inputs)
	rp.Add(composition, inputs.Dependencies()...)
	return shadow, gbuffer, composition
}

func TestPassLifecycleOrder(t *testing.T) {
	d := headless.New(headless.WithSwapchain(2, small))
	rp := newPipeline(t, d, headless.NewSurface(small), nil)
	var log []string
	a := newSpy(rp, "a", &log)
	rp.Add(a)
	rp.Add(newSpy(rp, "b", &log), pass.ImageDependency{Producer: 0, Attachments: []int{0}})
	rp.Add(newPresentSpy(rp, "c", &log), pass.ImageDependency{Producer: 1, Attachments: []int{0}})

	assert.ErrorIs(t, rp.RenderFrame(nil), core.ErrPipelineState)
	require.NoError(t, rp.Build())
	assert.Equal(t, -1, rp.Add(newSpy(rp, "late", &log)))
	require.NoError(t, rp.RenderFrame(testScene()))
	assert.Equal(t, StateActive, rp.State())

	require.NoError(t, rp.Shutdown())
	assert.Equal(t, []string{
		"attachments:a", "uniforms:a", "shaders:a",
		"attachments:b", "uniforms:b", "shaders:b",
		"attachments:c", "uniforms:c", "shaders:c",
		"link:b", "link:c",
		"execute:a", "execute:b", "execute:c",
		"cleanup:c", "cleanup:b", "cleanup:a",
	}, log)

	require.NoError(t, rp.Shutdown())
	assert.Len(t, log, 17)
	assert.ErrorIs(t, rp.RenderFrame(testScene()), core.ErrPipelineShutDown)
	assert.ErrorIs(t, rp.Resize(context.Background()), core.ErrPipelineShutDown)
	assert.ErrorIs(t, rp.ReloadShaders(), core.ErrPipelineShutDown)
	assert.ErrorIs(t, rp.Build(), core.ErrPipelineState)
	assert.ErrorIs(t, pass.Run(a, rp.ring.Current(), nil), core.ErrPassCleanedUp)
	assert.Empty(t, d.LiveObjects())
	assert.Empty(t, d.Violations())
}

func TestBuildRejectsBadDependencies(t *testing.T) {
	dep := func(producer int, attachments ...int) pass.ImageDependency {
		return pass.ImageDependency{Producer: producer, Attachments: attachments}
	}
	tests := []struct {
		name  string
		deps  [][]pass.ImageDependency
		err   error
		state State
	}{
		{"forward", [][]pass.ImageDependency{{dep(1, 0)}, nil}, core.ErrForwardDependency, StateUnbuilt},
		{"self", [][]pass.ImageDependency{nil, {dep(1, 0)}}, core.ErrDependencyCycle, StateUnbuilt},
		{"cycle", [][]pass.ImageDependency{{dep(1, 0)}, {dep(0, 0)}}, core.ErrDependencyCycle, StateUnbuilt},
		{"unknown pass", [][]pass.ImageDependency{nil, {dep(5, 0)}}, core.ErrUnknownDependency, StateUnbuilt},
		{"negative pass", [][]pass.ImageDependency{nil, {dep(-1, 0)}}, core.ErrUnknownDependency, StateUnbuilt},
		{"unknown attachment", [][]pass.ImageDependency{nil, {dep(0, 3)}}, core.ErrUnknownDependency, StateShutDown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := headless.New(headless.WithSwapchain(2, small))
			rp := newPipeline(t, d, nil, nil)
			var log []string
			for i, deps := range tt.deps {
				rp.Add(newSpy(rp, string(rune('a'+i)), &log), deps...)
			}
			err := rp.Build()
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.err)
			assert.Equal(t, tt.state, rp.State())
			assert.Empty(t, d.LiveObjects())
			assert.Empty(t, d.Violations())
			require.NoError(t, rp.Shutdown())
		})
	}
}

func TestCompositionReadsLiveProducerViews(t *testing.T) {
	d := headless.New(headless.WithSwapchain(2, small))
	rp := newPipeline(t, d, headless.NewSurface(small), nil)
	reg := rp.Registry()
	shadow := passes.NewShadow(reg)
	gbuffer := passes.NewGBuffer(reg)
	ao := passes.NewAmbientOcclusion(reg)
	inputs := passes.CompositionInputs{
		Shadow:      rp.Add(shadow),
		GBuffer:     rp.Add(gbuffer),
		Environment: passes.NoInput,
		Voxel:       passes.NoInput,
	}
	inputs.AO = rp.Add(ao, pass.ImageDependency{Producer: inputs.GBuffer, Attachments: []int{passes.GBufferNormal, passes.GBufferDepth}})
	composition := passes.NewComposition(reg, inputs)
	rp.Add(composition, inputs.Dependencies()...)
	require.NoError(t, rp.Build())
	require.Equal(t, 2, rp.Ring().Count())

	check := func(set *descriptor.Set, binding uint32, producer pass.Pass, attachment int) {
		res, state := composition.Base().Descriptors.Bound(set, binding, 0)
		assert.Equal(t, descriptor.BindingStateResourceBound, state)
		assert.Equal(t, producer.Base().Output(attachment).View, res.View)
		assert.NotZero(t, res.View)
	}
	require.Len(t, composition.Sets(), 2)
	for _, set := range composition.Sets() {
		check(set, passes.CompositionShadow, shadow, 0)
		check(set, passes.CompositionAlbedo, gbuffer, passes.GBufferAlbedo)
		check(set, passes.CompositionDepth, gbuffer, passes.GBufferDepth)
		check(set, passes.CompositionAO, ao, 0)
		_, state := composition.Base().Descriptors.Bound(set, passes.CompositionEnvironment, 0)
		assert.Equal(t, descriptor.BindingStateFallbackBound, state)
	}

	for i := 0; i < 3; i++ {
		require.NoError(t, rp.RenderFrame(testScene()))
	}
	finish(t, rp, d)
}

func TestResizeWaitsForDrawableSurface(t *testing.T) {
	d := headless.New(headless.WithSwapchain(2, small))
	surface := headless.NewSurface(metadata.Extent2D{}, metadata.Extent2D{}, metadata.Extent2D{Width: 96, Height: 48})
	rp := newPipeline(t, d, surface, nil)
	var log []string
	a := newSpy(rp, "a", &log)
	rp.Add(a)
	b := newPresentSpy(rp, "b", &log)
	rp.Add(b, pass.ImageDependency{Producer: 0, Attachments: []int{0}})
	require.NoError(t, rp.Build())

	rp.RequestResize(metadata.Extent2D{})
	require.True(t, rp.ResizePending())
	require.NoError(t, rp.RenderFrame(testScene()))
	assert.False(t, rp.ResizePending())

	want := metadata.Extent2D{Width: 96, Height: 48}
	assert.Equal(t, 2, surface.Waits())
	assert.Equal(t, want, rp.Registry().Extent)
	assert.Equal(t, want, d.SwapchainExtent())
	assert.Equal(t, want.To3D(), a.Base().Output(0).Extent)
	require.Len(t, b.linked, 1)
	assert.Same(t, a.Base().Output(0), b.linked[0])
	assert.Len(t, d.Submissions(), 1)
	finish(t, rp, d)
}

func TestResizeCanBeCancelled(t *testing.T) {
	d := headless.New(headless.WithSwapchain(2, small))
	surface := headless.NewSurface(metadata.Extent2D{})
	rp := newPipeline(t, d, surface, nil)
	var log []string
	rp.Add(newPresentSpy(rp, "a", &log))
	require.NoError(t, rp.Build())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := rp.Resize(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateBuilt, rp.State())
	assert.Zero(t, surface.Waits())
	assert.Zero(t, d.Recreations())
	finish(t, rp, d)
}

func TestResizeIsIdempotent(t *testing.T) {
	d := headless.New(headless.WithSwapchain(2, small))
	surface := headless.NewSurface(small)
	rp := newPipeline(t, d, surface, nil)
	shadow, gbuffer, composition := standard(rp)
	var log []string
	rp.Add(newPresentSpy(rp, "present", &log), pass.ImageDependency{Producer: 2, Attachments: []int{0}})
	require.NoError(t, rp.Build())
	require.NoError(t, rp.RenderFrame(testScene()))

	before := d.LiveObjects()
	shadowView := shadow.Base().Output(0).View
	for i := 0; i < 2; i++ {
		require.NoError(t, rp.Resize(context.Background()))
		assert.Equal(t, before, d.LiveObjects())
	}
	assert.Equal(t, 2, d.Recreations())
	assert.Equal(t, shadowView, shadow.Base().Output(0).View)

	surface.Set(metadata.Extent2D{Width: 32, Height: 16})
	require.NoError(t, rp.Resize(context.Background()))
	assert.Equal(t, before, d.LiveObjects())
	assert.Equal(t, uint32(32), gbuffer.Base().Output(passes.GBufferAlbedo).Extent.Width)
	assert.Equal(t, uint32(64), shadow.Base().Output(0).Extent.Width)
	for _, set := range composition.Sets() {
		res, state := composition.Base().Descriptors.Bound(set, passes.CompositionAlbedo, 0)
		assert.Equal(t, descriptor.BindingStateResourceBound, state)
		assert.Equal(t, gbuffer.Base().Output(passes.GBufferAlbedo).View, res.View)
	}
	require.NoError(t, rp.RenderFrame(testScene()))
	finish(t, rp, d)
}

func TestFramesInFlightAreBounded(t *testing.T) {
	for _, n := range []int{1, 2, 3} {
		d := headless.New(headless.WithSwapchain(3, small))
		rp := newPipeline(t, d, headless.NewSurface(small), nil)
		rp.registry.FrameCount = n
		var log []string
		rp.Add(newPresentSpy(rp, "a", &log))
		require.NoError(t, rp.Build())
		for i := 0; i < 10; i++ {
			require.NoError(t, rp.RenderFrame(testScene()))
			assert.LessOrEqual(t, d.InFlight(), n)
		}
		assert.Equal(t, n, d.MaxInFlight())
		finish(t, rp, d)
	}
}

func TestStaleSwapchainIsRecreated(t *testing.T) {
	d := headless.New(headless.WithSwapchain(2, small))
	rp := newPipeline(t, d, headless.NewSurface(small), nil)
	var log []string
	rp.Add(newPresentSpy(rp, "a", &log))
	require.NoError(t, rp.Build())

	d.ScriptAcquire(metadata.PresentStatusOutOfDate)
	require.NoError(t, rp.RenderFrame(testScene()))
	assert.Empty(t, d.Submissions())
	assert.Equal(t, 1, d.Recreations())

	d.ScriptPresent(metadata.PresentStatusSuboptimal)
	require.NoError(t, rp.RenderFrame(testScene()))
	assert.Len(t, d.Submissions(), 1)
	assert.Equal(t, 2, d.Recreations())

	d.SetSwapchainImageCount(3)
	d.ScriptPresent(metadata.PresentStatusOutOfDate)
	require.NoError(t, rp.RenderFrame(testScene()))
	assert.Equal(t, 3, d.Recreations())
	assert.Len(t, rp.passes[0].Base().Framebuffers, 3)

	require.NoError(t, rp.RenderFrame(testScene()))
	assert.Len(t, d.Submissions(), 3)
	finish(t, rp, d)
}

// normalise replaces handles with their order of first use and makes
// dynamic offsets relative to the frame's first one, so streams recorded by
// different frame slots compare equal.
func normalise(cmds []headless.Command) []headless.Command {
	ids := make(map[uint64]uint64)
	ordinal := func(h uint64) uint64 {
		if h == 0 {
			return 0
		}
		if id, ok := ids[h]; ok {
			return id
		}
		ids[h] = uint64(len(ids) + 1)
		return ids[h]
	}
	var base uint32
	haveBase := false
	out := make([]headless.Command, len(cmds))
	for i, c := range cmds {
		c.Framebuffer = metadata.FramebufferHandle(ordinal(uint64(c.Framebuffer)))
		if len(c.Sets) > 0 {
			sets := make([]metadata.DescriptorSetHandle, len(c.Sets))
			for j, s := range c.Sets {
				sets[j] = metadata.DescriptorSetHandle(ordinal(uint64(s)))
			}
			c.Sets = sets
		}
		if len(c.DynamicOffsets) > 0 {
			if !haveBase {
				base, haveBase = c.DynamicOffsets[0], true
			}
			offsets := make([]uint32, len(c.DynamicOffsets))
			for j, o := range c.DynamicOffsets {
				offsets[j] = o - base
			}
			c.DynamicOffsets = offsets
		}
		out[i] = c
	}
	return out
}

func TestUnchangedSceneRecordsSameStream(t *testing.T) {
	d := headless.New(headless.WithSwapchain(2, small))
	rp := newPipeline(t, d, headless.NewSurface(small), nil)
	_, _, composition := standard(rp)
	aa := passes.NewAntiAliasing(rp.Registry(), false)
	rp.Add(aa, pass.ImageDependency{Producer: 2, Attachments: []int{0}})
	require.NoError(t, rp.Build())

	scene := testScene()
	for i := 0; i < 4; i++ {
		require.NoError(t, rp.RenderFrame(scene))
	}
	subs := d.Submissions()
	require.Len(t, subs, 4)
	assert.NotEqual(t, subs[0].Commands, subs[1].Commands)
	want := normalise(subs[0].Commands)
	assert.NotEmpty(t, want)
	for _, s := range subs[1:] {
		assert.Equal(t, want, normalise(s.Commands))
	}
	assert.NotNil(t, composition.Sets())
	finish(t, rp, d)
}

func TestInactivePassKeepsOutputsReadable(t *testing.T) {
	d := headless.New(headless.WithSwapchain(2, small))
	rp := newPipeline(t, d, headless.NewSurface(small), nil)
	var log []string
	a := newSpy(rp, "a", &log)
	rp.Add(a)
	rp.Add(newPresentSpy(rp, "b", &log), pass.ImageDependency{Producer: 0, Attachments: []int{0}})
	require.NoError(t, rp.Build())

	assert.ErrorIs(t, rp.SetActive("b", false), core.ErrPipelineState)
	assert.Error(t, rp.SetActive("missing", false))
	active, err := rp.ToggleActive("a")
	require.NoError(t, err)
	assert.False(t, active)

	count := func(cmds []headless.Command, op headless.Op) int {
		n := 0
		for _, c := range cmds {
			if c.Op == op {
				n++
			}
		}
		return n
	}
	require.NoError(t, rp.RenderFrame(testScene()))
	require.NoError(t, rp.RenderFrame(testScene()))
	subs := d.Submissions()
	assert.Equal(t, 1, count(subs[0].Commands, headless.OpDraw))
	assert.Equal(t, 1, count(subs[0].Commands, headless.OpPipelineBarrier))
	assert.Equal(t, 0, count(subs[1].Commands, headless.OpPipelineBarrier))
	assert.Equal(t, metadata.ImageLayoutShaderReadOnly, a.Base().Output(0).Layout)

	active, err = rp.ToggleActive("a")
	require.NoError(t, err)
	assert.True(t, active)
	p, ok := rp.Pass("a")
	require.True(t, ok)
	assert.Same(t, a, p)
	assert.Len(t, rp.Passes(), 2)
	finish(t, rp, d)
}

func TestReloadShadersSwitchesBrokenPassesOff(t *testing.T) {
	d := headless.New(headless.WithSwapchain(2, small))
	stub := assets.StubSPIRV()
	shaders := assets.NewMapSource(map[string][]byte{
		"a.vert": stub, "a.frag": stub,
		"b.vert": stub, "b.frag": stub,
	})
	rp := newPipeline(t, d, headless.NewSurface(small), shaders)
	var log []string
	a := newSpy(rp, "a", &log)
	rp.Add(a)
	rp.Add(newPresentSpy(rp, "b", &log))
	require.NoError(t, rp.Build())

	shaders.Set("a.frag", nil)
	require.NoError(t, rp.ReloadShaders())
	assert.False(t, a.Base().Active)
	assert.Empty(t, a.Base().Pipelines)
	require.NoError(t, rp.RenderFrame(testScene()))

	shaders.Set("a.frag", stub)
	require.NoError(t, rp.ReloadShaders())
	assert.True(t, a.Base().Active)
	assert.Contains(t, a.Base().Pipelines, "main")
	require.NoError(t, rp.RenderFrame(testScene()))

	shaders.Set("b.frag", nil)
	assert.Error(t, rp.ReloadShaders())
	finish(t, rp, d)
}

func TestApplySettingsRebuildsFixedExtentPasses(t *testing.T) {
	d := headless.New(headless.WithSwapchain(2, small))
	rp := newPipeline(t, d, headless.NewSurface(small), nil)
	shadow, gbuffer, composition := standard(rp)
	require.NoError(t, rp.Build())
	require.NoError(t, rp.RenderFrame(testScene()))

	albedo := gbuffer.Base().Output(passes.GBufferAlbedo).View
	settings := rp.Settings()
	settings.Shadow.Resolution = 128
	settings.Composition.Output = config.ShadingShadow
	require.NoError(t, rp.ApplySettings(settings))

	assert.Equal(t, uint32(128), shadow.Base().Output(0).Extent.Width)
	assert.Equal(t, albedo, gbuffer.Base().Output(passes.GBufferAlbedo).View)
	assert.Equal(t, config.ShadingShadow, composition.Output())
	assert.Equal(t, settings, rp.Settings())
	for _, set := range composition.Sets() {
		res, _ := composition.Base().Descriptors.Bound(set, passes.CompositionShadow, 0)
		assert.Equal(t, shadow.Base().Output(0).View, res.View)
	}
	require.NoError(t, rp.RenderFrame(testScene()))
	finish(t, rp, d)
}

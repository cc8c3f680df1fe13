package pass

import (
	"testing"

	"github.com/spaghettifunk/prism/engine/assets"
	"github.com/spaghettifunk/prism/engine/config"
	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/renderer/descriptor"
	"github.com/spaghettifunk/prism/engine/renderer/frame"
	"github.com/spaghettifunk/prism/engine/renderer/headless"
	"github.com/spaghettifunk/prism/engine/renderer/metadata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testPass struct {
	base        Base
	specs       []metadata.AttachmentSpec
	transitions []Transition
	linked      []*Image
	resized     []metadata.Extent2D
	set         *descriptor.Set
	cleaned     int
}

func (p *testPass) Base() *Base { return &p.base }

func (p *testPass) OnCleanup() { p.cleaned++ }

func (p *testPass) SetupAttachments() ([]metadata.AttachmentSpec, []Transition, error) {
	return p.specs, p.transitions, nil
}

func (p *testPass) SetupUniforms(frames []*frame.Frame) error {
	if err := p.base.CreateDescriptorPool(); err != nil {
		return err
	}
	if _, err := p.base.Descriptors.SetLayout("globals", []metadata.DescriptorBinding{
		{Binding: 0, Type: metadata.DescriptorTypeUniformBuffer, Count: 1, Stages: metadata.ShaderStageAll},
	}); err != nil {
		return err
	}
	set, err := p.base.Descriptors.Allocate("globals")
	p.set = set
	return err
}

func (p *testPass) SetupShaderPasses() error {
	layouts, err := p.base.Descriptors.LayoutHandles("globals")
	if err != nil {
		return err
	}
	info := metadata.PipelineCreateInfo{Kind: metadata.PipelineKindGraphics, Layouts: layouts, Stages: []metadata.ShaderModule{
		{Stage: metadata.ShaderStageVertex, Name: "test.vert"},
		{Stage: metadata.ShaderStageFragment, Name: "test.frag"},
	}}
	if p.base.IsCompute() {
		info = metadata.PipelineCreateInfo{Kind: metadata.PipelineKindCompute, Layouts: layouts, Stages: []metadata.ShaderModule{
			{Stage: metadata.ShaderStageCompute, Name: "test.comp"},
		}}
	}
	_, err = p.base.BuildPipeline("main", info)
	return err
}

func (p *testPass) Execute(f *frame.Frame, scene *metadata.Scene) error {
	cb := f.CommandBuffer
	pl := p.base.Pipelines["main"]
	if p.base.IsCompute() {
		p.base.TransitionBefore(cb)
		pl.Bind(cb)
		cb.Dispatch(1, 1, 1)
		p.base.TransitionAfter(cb)
		return nil
	}
	fb := p.base.FramebufferIndex(f)
	if err := p.base.BeginRenderPass(cb, fb); err != nil {
		return err
	}
	pl.Bind(cb)
	cb.Draw(QuadVertexCount, 1, 0, 0)
	p.base.EndRenderPass(cb, fb)
	return nil
}

func (p *testPass) LinkPreviousImages(images []*Image) error {
	p.linked = images
	return nil
}

func (p *testPass) OnResize(extent metadata.Extent2D) error {
	p.resized = append(p.resized, extent)
	return nil
}

func newRegistry(t *testing.T, d *headless.Device) *Registry {
	t.Helper()
	res, err := NewResources(d)
	require.NoError(t, err)
	return &Registry{
		Device:      d,
		Extent:      d.SwapchainExtent(),
		FrameCount:  2,
		Resources:   res,
		Shaders:     assets.StubSource{},
		Settings:    config.Default().Passes,
		Descriptors: config.Default().Descriptors,
		MaxObjects:  16,
	}
}

func colorSpecs() []metadata.AttachmentSpec {
	return []metadata.AttachmentSpec{
		{Name: "color", Kind: metadata.AttachmentKindColor, Format: metadata.FormatRGBA16Float, Usage: metadata.ImageUsageSampled, FinalLayout: metadata.ImageLayoutShaderReadOnly},
		{Name: "depth", Kind: metadata.AttachmentKindDepth, Format: metadata.FormatD32Float, Usage: metadata.ImageUsageSampled, FinalLayout: metadata.ImageLayoutShaderReadOnly},
	}
}

func newTestPass(r *Registry, name string, specs []metadata.AttachmentSpec) *testPass {
	return &testPass{base: NewBase(r, name), specs: specs}
}

func TestValidate(t *testing.T) {
	dep := func(p int) ImageDependency { return ImageDependency{Producer: p, Attachments: []int{0}} }
	tests := []struct {
		name  string
		deps  [][]ImageDependency
		err   error
		order []int
	}{
		{name: "chain", deps: [][]ImageDependency{nil, {dep(0)}, {dep(0), dep(1)}}, order: []int{0, 1, 2}},
		{name: "independent", deps: [][]ImageDependency{nil, nil}, order: []int{0, 1}},
		{name: "empty", deps: nil, order: []int{}},
		{name: "unknown", deps: [][]ImageDependency{nil, {dep(5)}}, err: core.ErrUnknownDependency},
		{name: "negative", deps: [][]ImageDependency{{dep(-1)}}, err: core.ErrUnknownDependency},
		{name: "self", deps: [][]ImageDependency{nil, {dep(1)}}, err: core.ErrDependencyCycle},
		{name: "cycle", deps: [][]ImageDependency{{dep(1)}, {dep(0)}}, err: core.ErrDependencyCycle},
		{name: "forward", deps: [][]ImageDependency{{dep(1)}, nil}, err: core.ErrForwardDependency},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			order, err := Validate(tt.deps)
			if tt.err != nil {
				assert.ErrorIs(t, err, tt.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.order, order)
		})
	}
}

func TestImageTransitions(t *testing.T) {
	d := headless.New()
	img, err := NewImage(d, ImageOptions{
		Name:   "target",
		Format: metadata.FormatRGBA8Unorm,
		Usage:  metadata.ImageUsageStorage,
		Extent: metadata.Extent3D{Width: 4, Height: 4},
	})
	require.NoError(t, err)
	assert.Equal(t, metadata.ImageLayoutUndefined, img.Layout)
	assert.Contains(t, img.Name, "target#")

	cb, _ := d.CreateCommandBuffer()
	require.NoError(t, cb.Begin())
	assert.True(t, img.Transition(cb, metadata.ImageLayoutGeneral))
	assert.False(t, img.Transition(cb, metadata.ImageLayoutGeneral))
	assert.True(t, img.Transition(cb, metadata.ImageLayoutShaderReadOnly))

	cmds := cb.(*headless.CommandBuffer).Commands()
	require.Len(t, cmds, 2)
	assert.Equal(t, metadata.ImageLayoutUndefined, cmds[0].Barriers[0].OldLayout)
	assert.Equal(t, metadata.ImageLayoutGeneral, cmds[1].Barriers[0].OldLayout)

	img.Destroy(d)
	img.Destroy(d)
	d.FreeCommandBuffer(cb)
	assert.Empty(t, d.LiveObjects())
	assert.Empty(t, d.Violations())
}

func TestSwapchainWrapperIsNotOwned(t *testing.T) {
	d := headless.New()
	views := d.SwapchainViews()
	img := WrapSwapchainView(views[0], d.SwapchainFormat(), d.SwapchainExtent())
	img.Destroy(d)
	assert.False(t, img.Destroyed())
	assert.Equal(t, len(views), d.Live(headless.KindSwapchainView))
	assert.Empty(t, d.Violations())
}

func TestResourcesLifecycle(t *testing.T) {
	d := headless.New()
	r, err := NewResources(d)
	require.NoError(t, err)
	assert.Equal(t, metadata.ImageLayoutShaderReadOnly, r.White.Layout)
	assert.Equal(t, uint32(6), r.FallbackCube.Layers)
	assert.Equal(t, metadata.ImageType3D, r.Fallback3D.Type)
	assert.Len(t, d.BufferData(r.Quad), QuadVertexCount*16)

	r.Destroy()
	r.Destroy()
	assert.Empty(t, d.LiveObjects())
	assert.Empty(t, d.Violations())
}

func hasType(hints []metadata.PoolSize, t metadata.DescriptorType) bool {
	for _, h := range hints {
		if h.Type == t {
			return true
		}
	}
	return false
}

func TestPoolHintsFollowDeviceSupport(t *testing.T) {
	d := headless.New()
	r := newRegistry(t, d)
	assert.True(t, r.SupportsAccelerationStructures())
	assert.True(t, hasType(r.PoolHints(), metadata.DescriptorTypeAccelerationStructure))
	r.Resources.Destroy()

	plain := headless.New(headless.WithLimits(metadata.DeviceLimits{
		MinUniformBufferOffsetAlignment: 256,
		MaxPushConstantsSize:            128,
		MaxBoundDescriptorSets:          8,
	}))
	r = newRegistry(t, plain)
	assert.False(t, r.SupportsAccelerationStructures())
	hints := r.PoolHints()
	assert.False(t, hasType(hints, metadata.DescriptorTypeAccelerationStructure))
	assert.True(t, hasType(hints, metadata.DescriptorTypeCombinedImageSampler))
	r.Resources.Destroy()

	assert.False(t, (&Registry{}).SupportsAccelerationStructures())
}

func TestPassLifecycle(t *testing.T) {
	d := headless.New()
	r := newRegistry(t, d)
	p := newTestPass(r, "lit", colorSpecs())

	ring, err := frame.NewRing(d, 2, 4)
	require.NoError(t, err)
	f := ring.Current()
	require.NoError(t, f.CommandBuffer.Begin())

	assert.ErrorIs(t, Run(p, f, &metadata.Scene{}), core.ErrPassNotReady)

	require.NoError(t, Setup(p, ring.Frames()))
	b := p.Base()
	assert.Equal(t, StateReady, b.State())
	assert.NotZero(t, b.RenderPass)
	assert.Len(t, b.Framebuffers, 1)
	require.Len(t, b.Outputs, 1)
	assert.Equal(t, d.SwapchainExtent().To3D(), b.Output(0).Extent)
	assert.Same(t, b.Output(1), b.OutputByName("depth"))

	require.NoError(t, Run(p, f, &metadata.Scene{}))
	assert.Equal(t, metadata.ImageLayoutShaderReadOnly, b.Output(0).Layout)

	require.NoError(t, Cleanup(p))
	assert.ErrorIs(t, Cleanup(p), core.ErrPassCleanedUp)
	assert.Equal(t, 1, p.cleaned)
	assert.ErrorIs(t, Run(p, f, &metadata.Scene{}), core.ErrPassCleanedUp)
	assert.ErrorIs(t, Setup(p, ring.Frames()), core.ErrPassCleanedUp)

	require.NoError(t, f.CommandBuffer.Reset())
	ring.Destroy()
	r.Resources.Destroy()
	assert.Empty(t, d.LiveObjects())
	assert.Empty(t, d.Violations())
}

func TestResizeIsIdempotent(t *testing.T) {
	d := headless.New()
	r := newRegistry(t, d)
	p := newTestPass(r, "lit", colorSpecs())
	require.NoError(t, Setup(p, nil))

	live := d.LiveObjects()
	rp := p.Base().RenderPass
	pipeline := p.Base().Pipelines["main"].Handle

	next := metadata.Extent2D{Width: 800, Height: 600}
	rebuilt, err := Resize(p, next)
	require.NoError(t, err)
	assert.True(t, rebuilt)
	rebuilt, err = Resize(p, next)
	require.NoError(t, err)
	assert.False(t, rebuilt)
	assert.Equal(t, []metadata.Extent2D{next}, p.resized)
	assert.Equal(t, live, d.LiveObjects())
	assert.Equal(t, next.To3D(), p.Base().Output(0).Extent)
	assert.Equal(t, rp, p.Base().RenderPass)
	assert.Equal(t, pipeline, p.Base().Pipelines["main"].Handle)

	require.NoError(t, p.Base().Cleanup())
	r.Resources.Destroy()
	assert.Empty(t, d.LiveObjects())
	assert.Empty(t, d.Violations())
}

func TestFixedExtentIgnoresResize(t *testing.T) {
	d := headless.New()
	r := newRegistry(t, d)
	p := newTestPass(r, "shadow", colorSpecs()[1:])
	p.base.FixedExtent = metadata.Extent2D{Width: 512, Height: 512}
	require.NoError(t, Setup(p, nil))

	rebuilt, err := Resize(p, metadata.Extent2D{Width: 10, Height: 10})
	require.NoError(t, err)
	assert.False(t, rebuilt)
	assert.Empty(t, p.resized)
	assert.Equal(t, uint32(512), p.Base().Output(0).Extent.Width)
	require.NoError(t, p.Base().Cleanup())
}

func TestDefaultPassTracksSwapchain(t *testing.T) {
	d := headless.New(headless.WithSwapchain(3, metadata.Extent2D{Width: 64, Height: 64}))
	r := newRegistry(t, d)
	specs := []metadata.AttachmentSpec{
		{Name: "present", Kind: metadata.AttachmentKindColor, Format: d.SwapchainFormat(), FinalLayout: metadata.ImageLayoutPresentSrc, Swapchain: true},
	}
	p := newTestPass(r, "aa", specs)
	p.base.IsDefault = true
	require.NoError(t, Setup(p, nil))
	assert.Len(t, p.Base().Framebuffers, 3)
	assert.Len(t, p.Base().Outputs, 3)
	assert.False(t, p.Base().Outputs[0][0].Owned)

	// Same extent, new swapchain images: the framebuffers follow.
	d.SetSwapchainImageCount(2)
	require.NoError(t, d.RecreateSwapchain(metadata.Extent2D{Width: 64, Height: 64}))
	rebuilt, err := Resize(p, metadata.Extent2D{Width: 64, Height: 64})
	require.NoError(t, err)
	assert.True(t, rebuilt)
	assert.Len(t, p.Base().Framebuffers, 2)
	assert.Equal(t, 2, d.Live(headless.KindFramebuffer))

	require.NoError(t, p.Base().Cleanup())
	r.Resources.Destroy()
	assert.Empty(t, d.LiveObjects())
	assert.Empty(t, d.Violations())
}

func TestComputePassTransitions(t *testing.T) {
	d := headless.New()
	r := newRegistry(t, d)
	p := newTestPass(r, "voxel", []metadata.AttachmentSpec{
		{Name: "volume", Kind: metadata.AttachmentKindStorage, Format: metadata.FormatRGBA8Unorm, Usage: metadata.ImageUsageSampled, Extent: metadata.Extent3D{Width: 8, Height: 8, Depth: 8}},
	})
	p.transitions = []Transition{{Attachment: 0, Before: metadata.ImageLayoutGeneral, After: metadata.ImageLayoutShaderReadOnly}}
	p.base.Resizeable = false

	ring, err := frame.NewRing(d, 1, 1)
	require.NoError(t, err)
	require.NoError(t, Setup(p, ring.Frames()))
	assert.Zero(t, p.Base().RenderPass)
	assert.Empty(t, p.Base().Framebuffers)
	assert.Equal(t, metadata.ImageType3D, p.Base().Output(0).Type)

	f := ring.Current()
	require.NoError(t, f.CommandBuffer.Begin())
	require.NoError(t, Run(p, f, &metadata.Scene{}))
	require.NoError(t, Run(p, f, &metadata.Scene{}))

	var barriers int
	for _, c := range f.CommandBuffer.(*headless.CommandBuffer).Commands() {
		if c.Op == headless.OpPipelineBarrier {
			barriers++
		}
	}
	assert.Equal(t, 4, barriers)
	assert.Equal(t, metadata.ImageLayoutShaderReadOnly, p.Base().Output(0).Layout)

	require.NoError(t, f.CommandBuffer.Reset())
	require.NoError(t, p.Base().Cleanup())
	ring.Destroy()
	r.Resources.Destroy()
	assert.Empty(t, d.LiveObjects())
	assert.Empty(t, d.Violations())
}

func TestLinkResolvesProducerImages(t *testing.T) {
	d := headless.New()
	r := newRegistry(t, d)
	producer := newTestPass(r, "gbuffer", colorSpecs())
	consumer := newTestPass(r, "composition", colorSpecs()[:1])
	require.NoError(t, Setup(producer, nil))
	require.NoError(t, Setup(consumer, nil))
	passes := []Pass{producer, consumer}

	consumer.base.Dependencies = []ImageDependency{{Producer: 0, Attachments: []int{1, 0}}}
	require.NoError(t, Link(consumer, passes))
	require.Len(t, consumer.linked, 2)
	assert.Same(t, producer.Base().Output(1), consumer.linked[0])
	assert.Same(t, producer.Base().Output(0), consumer.linked[1])

	consumer.base.Dependencies = []ImageDependency{{Producer: 0, Attachments: []int{2}}}
	assert.ErrorIs(t, Link(consumer, passes), core.ErrUnknownDependency)
	consumer.base.Dependencies = []ImageDependency{{Producer: 0, Framebuffer: 1, Attachments: []int{0}}}
	assert.ErrorIs(t, Link(consumer, passes), core.ErrUnknownDependency)

	require.NoError(t, consumer.Base().Cleanup())
	require.NoError(t, producer.Base().Cleanup())
	r.Resources.Destroy()
	assert.Empty(t, d.LiveObjects())
}

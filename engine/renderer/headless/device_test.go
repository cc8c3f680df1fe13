package headless

import (
	"testing"

	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/renderer/metadata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func recordEmpty(t *testing.T, cb metadata.CommandBuffer) {
	t.Helper()
	require.NoError(t, cb.Reset())
	require.NoError(t, cb.Begin())
	require.NoError(t, cb.End())
}

func TestSubmissionsRetireInOrder(t *testing.T) {
	d := New()
	cbs := make([]metadata.CommandBuffer, 3)
	fences := make([]metadata.FenceHandle, 3)
	for i := range cbs {
		var err error
		cbs[i], err = d.CreateCommandBuffer()
		require.NoError(t, err)
		fences[i], err = d.CreateFence(false)
		require.NoError(t, err)
		recordEmpty(t, cbs[i])
		require.NoError(t, d.Submit(metadata.SubmitInfo{CommandBuffer: cbs[i], Fence: fences[i]}))
	}
	assert.Equal(t, 3, d.InFlight())
	assert.Equal(t, 3, d.MaxInFlight())

	require.NoError(t, d.WaitFence(fences[1]))
	assert.True(t, d.FenceSignaled(fences[0]))
	assert.True(t, d.FenceSignaled(fences[1]))
	assert.False(t, d.FenceSignaled(fences[2]))
	assert.Equal(t, 1, d.InFlight())

	require.NoError(t, d.WaitIdle())
	assert.Equal(t, 0, d.InFlight())
	assert.Empty(t, d.Violations())
}

func TestWaitOnUnsubmittedFenceIsViolation(t *testing.T) {
	d := New()
	f, err := d.CreateFence(false)
	require.NoError(t, err)

	err = d.WaitFence(f)
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrDeviceLost)
	assert.Len(t, d.Violations(), 1)
}

func TestSubmitWithSignaledFenceIsViolation(t *testing.T) {
	d := New()
	cb, _ := d.CreateCommandBuffer()
	f, _ := d.CreateFence(true)
	recordEmpty(t, cb)

	assert.Error(t, d.Submit(metadata.SubmitInfo{CommandBuffer: cb, Fence: f}))
	assert.Len(t, d.Violations(), 1)
}

func TestResetPendingCommandBufferIsViolation(t *testing.T) {
	d := New()
	cb, _ := d.CreateCommandBuffer()
	f, _ := d.CreateFence(false)
	recordEmpty(t, cb)
	require.NoError(t, d.Submit(metadata.SubmitInfo{CommandBuffer: cb, Fence: f}))

	assert.Error(t, cb.Reset())
	require.NoError(t, d.WaitFence(f))
	assert.NoError(t, cb.Reset())
	assert.Len(t, d.Violations(), 1)
}

func TestDoubleDestroyIsViolation(t *testing.T) {
	d := New()
	b, err := d.CreateBuffer(metadata.BufferCreateInfo{Name: "b", Size: 16})
	require.NoError(t, err)

	d.DestroyBuffer(b)
	assert.Empty(t, d.Violations())
	d.DestroyBuffer(b)
	assert.Len(t, d.Violations(), 1)

	// Null handles are ignored.
	d.DestroyBuffer(0)
	assert.Len(t, d.Violations(), 1)
}

func TestDestroyReportsLeaks(t *testing.T) {
	d := New()
	_, err := d.CreateSampler(metadata.SamplerCreateInfo{})
	require.NoError(t, err)
	assert.Equal(t, map[Kind]int{KindSampler: 1}, d.LiveObjects())

	d.Destroy()
	require.Len(t, d.Violations(), 1)
	assert.Contains(t, d.Violations()[0].Error(), "sampler")
}

func TestRecordingRules(t *testing.T) {
	d := New()
	cb, _ := d.CreateCommandBuffer()
	require.NoError(t, cb.Begin())

	cb.Draw(3, 1, 0, 0)
	assert.Len(t, d.Violations(), 1, "draw outside a render pass")

	cb.BeginRenderPass(metadata.RenderPassBeginInfo{})
	cb.Dispatch(1, 1, 1)
	assert.Len(t, d.Violations(), 2, "dispatch inside a render pass")

	assert.Error(t, cb.End())
	cb.EndRenderPass()
	assert.NoError(t, cb.End())

	hcb := cb.(*CommandBuffer)
	ops := []Op{}
	for _, c := range hcb.Commands() {
		ops = append(ops, c.Op)
	}
	assert.Equal(t, []Op{OpDraw, OpBeginRenderPass, OpDispatch, OpEndRenderPass}, ops)
}

func TestDescriptorPoolCapacity(t *testing.T) {
	d := New()
	layout, err := d.CreateDescriptorLayout([]metadata.DescriptorBinding{
		{Binding: 0, Type: metadata.DescriptorTypeCombinedImageSampler, Count: 2},
	})
	require.NoError(t, err)
	pool, err := d.CreateDescriptorPool(metadata.DescriptorPoolCreateInfo{
		Name:    "p",
		MaxSets: 4,
		Sizes:   []metadata.PoolSize{{Type: metadata.DescriptorTypeCombinedImageSampler, Count: 3}},
	})
	require.NoError(t, err)

	_, err = d.AllocateDescriptorSet(pool, layout, 0)
	require.NoError(t, err)
	_, err = d.AllocateDescriptorSet(pool, layout, 0)
	assert.ErrorIs(t, err, core.ErrPoolExhausted)

	d.DestroyDescriptorPool(pool)
	d.DestroyDescriptorLayout(layout)
	assert.Empty(t, d.LiveObjects())
}

func TestDescriptorReadback(t *testing.T) {
	d := New()
	layout, _ := d.CreateDescriptorLayout([]metadata.DescriptorBinding{
		{Binding: 0, Type: metadata.DescriptorTypeUniformBuffer, Count: 1},
		{Binding: 1, Type: metadata.DescriptorTypeCombinedImageSampler, Count: 8, Variable: true},
	})
	pool, _ := d.CreateDescriptorPool(metadata.DescriptorPoolCreateInfo{
		MaxSets: 1,
		Sizes: []metadata.PoolSize{
			{Type: metadata.DescriptorTypeUniformBuffer, Count: 1},
			{Type: metadata.DescriptorTypeCombinedImageSampler, Count: 4},
		},
	})
	set, err := d.AllocateDescriptorSet(pool, layout, 4)
	require.NoError(t, err)

	first := metadata.DescriptorResource{View: 10, Sampler: 1}
	last := metadata.DescriptorResource{View: 11, Sampler: 1}
	write := func(r metadata.DescriptorResource, element uint32) error {
		return d.UpdateDescriptorSet(set, []metadata.DescriptorWrite{{
			Binding: 1, ArrayElement: element, Type: metadata.DescriptorTypeCombinedImageSampler, Resource: r,
		}})
	}
	require.NoError(t, write(first, 3))
	require.NoError(t, write(last, 3))
	assert.Error(t, write(last, 4), "element past the variable count")

	got, ok := d.Descriptor(set, 1, 3)
	require.True(t, ok)
	assert.Equal(t, last, got)
	assert.Equal(t, 2, d.DescriptorWrites(set, 1))

	err = d.UpdateDescriptorSet(set, []metadata.DescriptorWrite{{Binding: 0, Type: metadata.DescriptorTypeStorageBuffer}})
	assert.Error(t, err, "type mismatch")
}

func TestBindingDestroyedViewIsViolation(t *testing.T) {
	d := New()
	img, err := d.CreateImage(metadata.ImageCreateInfo{
		Name:   "albedo",
		Type:   metadata.ImageType2D,
		Format: metadata.FormatRGBA8Unorm,
		Extent: metadata.Extent3D{Width: 4, Height: 4, Depth: 1},
	})
	require.NoError(t, err)
	view, err := d.CreateImageView(img, metadata.ImageViewCreateInfo{})
	require.NoError(t, err)
	sampler, err := d.CreateSampler(metadata.SamplerCreateInfo{})
	require.NoError(t, err)

	layout, _ := d.CreateDescriptorLayout([]metadata.DescriptorBinding{
		{Binding: 0, Type: metadata.DescriptorTypeCombinedImageSampler, Count: 1},
	})
	pool, _ := d.CreateDescriptorPool(metadata.DescriptorPoolCreateInfo{
		MaxSets: 1,
		Sizes:   []metadata.PoolSize{{Type: metadata.DescriptorTypeCombinedImageSampler, Count: 1}},
	})
	set, err := d.AllocateDescriptorSet(pool, layout, 0)
	require.NoError(t, err)
	require.NoError(t, d.UpdateDescriptorSet(set, []metadata.DescriptorWrite{{
		Binding:  0,
		Type:     metadata.DescriptorTypeCombinedImageSampler,
		Resource: metadata.DescriptorResource{View: view, Sampler: sampler},
	}}))

	cb, _ := d.CreateCommandBuffer()
	require.NoError(t, cb.Begin())
	cb.BindDescriptorSets(metadata.PipelineKindGraphics, 0, 0, []metadata.DescriptorSetHandle{set}, nil)
	assert.Empty(t, d.Violations())

	d.DestroyImageView(view)
	cb.BindDescriptorSets(metadata.PipelineKindGraphics, 0, 0, []metadata.DescriptorSetHandle{set}, nil)
	require.Len(t, d.Violations(), 1)
	assert.Contains(t, d.Violations()[0].Error(), "destroyed image view")
}

func TestSwapchainScripts(t *testing.T) {
	d := New(WithSwapchain(3, metadata.Extent2D{Width: 640, Height: 480}))
	assert.Len(t, d.SwapchainViews(), 3)

	s, _ := d.CreateSemaphore()
	d.ScriptAcquire(metadata.PresentStatusOutOfDate)

	_, status, err := d.AcquirePresentImage(s)
	require.NoError(t, err)
	assert.Equal(t, metadata.PresentStatusOutOfDate, status)

	index, status, err := d.AcquirePresentImage(s)
	require.NoError(t, err)
	assert.Equal(t, metadata.PresentStatusOK, status)
	assert.Equal(t, uint32(0), index)

	d.ScriptPresent(metadata.PresentStatusSuboptimal)
	status, err = d.PresentImage(index, s)
	require.NoError(t, err)
	assert.True(t, status.Stale())

	assert.ErrorIs(t, d.RecreateSwapchain(metadata.Extent2D{}), core.ErrSwapchainBooting)

	d.SetSwapchainImageCount(2)
	require.NoError(t, d.RecreateSwapchain(metadata.Extent2D{Width: 800, Height: 600}))
	assert.Len(t, d.SwapchainViews(), 2)
	assert.Equal(t, 1, d.Recreations())
	assert.Equal(t, metadata.Extent2D{Width: 800, Height: 600}, d.SwapchainExtent())
	assert.Empty(t, d.Violations())
}

func TestSurfaceScript(t *testing.T) {
	s := NewSurface(metadata.Extent2D{}, metadata.Extent2D{Width: 10, Height: 10})
	assert.True(t, s.FramebufferExtent().IsZero())
	s.WaitEvents()
	assert.Equal(t, metadata.Extent2D{Width: 10, Height: 10}, s.FramebufferExtent())
	s.WaitEvents()
	assert.Equal(t, metadata.Extent2D{Width: 10, Height: 10}, s.FramebufferExtent())
	assert.Equal(t, 2, s.Waits())
}

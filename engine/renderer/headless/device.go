package headless

import (
	"fmt"
	"sort"
	"sync"

	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/renderer/metadata"
)

// Kind names a class of device object for live object accounting.
type Kind string

const (
	KindImage            Kind = "image"
	KindImageView        Kind = "image_view"
	KindSampler          Kind = "sampler"
	KindBuffer           Kind = "buffer"
	KindRenderPass       Kind = "render_pass"
	KindFramebuffer      Kind = "framebuffer"
	KindPipeline         Kind = "pipeline"
	KindPipelineLayout   Kind = "pipeline_layout"
	KindDescriptorPool   Kind = "descriptor_pool"
	KindDescriptorLayout Kind = "descriptor_layout"
	KindDescriptorSet    Kind = "descriptor_set"
	KindCommandBuffer    Kind = "command_buffer"
	KindFence            Kind = "fence"
	KindSemaphore        Kind = "semaphore"
	KindSwapchainView    Kind = "swapchain_view"
)

type fenceState struct {
	signaled bool
	pending  uint64
}

type poolState struct {
	info metadata.DescriptorPoolCreateInfo
	sets []metadata.DescriptorSetHandle
	used map[metadata.DescriptorType]uint32
}

type setState struct {
	pool     metadata.DescriptorPoolHandle
	layout   metadata.DescriptorLayoutHandle
	variable uint32
	writes   map[[2]uint32]metadata.DescriptorResource
	counts   map[uint32]int
}

// Submission is one recorded command buffer handed to the queue.
type Submission struct {
	ID            uint64
	CommandBuffer metadata.CommandBufferHandle
	Commands      []Command
	Fence         metadata.FenceHandle
	Done          bool
}

// Device is a GraphicsDevice that runs entirely on the CPU. Command buffers
// are recorded into memory, submissions complete when something waits on them
// and every object is accounted for so leaks and double frees are reported.
type Device struct {
	mu sync.Mutex

	next       uint64
	live       map[Kind]map[uint64]struct{}
	created    map[Kind]int
	violations []error

	images     map[metadata.ImageHandle]metadata.ImageCreateInfo
	buffers    map[metadata.BufferHandle][]byte
	pools      map[metadata.DescriptorPoolHandle]*poolState
	layouts    map[metadata.DescriptorLayoutHandle][]metadata.DescriptorBinding
	sets       map[metadata.DescriptorSetHandle]*setState
	pipelines  map[metadata.PipelineHandle]metadata.PipelineCreateInfo
	fences     map[metadata.FenceHandle]*fenceState
	semaphores map[metadata.SemaphoreHandle]bool
	cbs        map[metadata.CommandBufferHandle]*CommandBuffer

	submissions []*Submission
	maxInFlight int

	swapchainCount  int
	pendingCount    int
	swapchainExtent metadata.Extent2D
	swapchainFormat metadata.Format
	swapchainViews  []metadata.ImageViewHandle
	nextImage       uint32
	acquireScript   []metadata.PresentStatus
	presentScript   []metadata.PresentStatus
	recreations     int

	limits    metadata.DeviceLimits
	destroyed bool
}

var _ metadata.GraphicsDevice = (*Device)(nil)

type Option func(*Device)

// WithSwapchain sets the initial swapchain image count and extent.
func WithSwapchain(count int, extent metadata.Extent2D) Option {
	return func(d *Device) {
		d.swapchainCount = count
		d.pendingCount = count
		d.swapchainExtent = extent
	}
}

func WithLimits(limits metadata.DeviceLimits) Option {
	return func(d *Device) {
		d.limits = limits
	}
}

func New(options ...Option) *Device {
	d := &Device{
		live:            make(map[Kind]map[uint64]struct{}),
		created:         make(map[Kind]int),
		images:          make(map[metadata.ImageHandle]metadata.ImageCreateInfo),
		buffers:         make(map[metadata.BufferHandle][]byte),
		pools:           make(map[metadata.DescriptorPoolHandle]*poolState),
		layouts:         make(map[metadata.DescriptorLayoutHandle][]metadata.DescriptorBinding),
		sets:            make(map[metadata.DescriptorSetHandle]*setState),
		pipelines:       make(map[metadata.PipelineHandle]metadata.PipelineCreateInfo),
		fences:          make(map[metadata.FenceHandle]*fenceState),
		semaphores:      make(map[metadata.SemaphoreHandle]bool),
		cbs:             make(map[metadata.CommandBufferHandle]*CommandBuffer),
		swapchainCount:  2,
		pendingCount:    2,
		swapchainExtent: metadata.Extent2D{Width: 1280, Height: 720},
		swapchainFormat: metadata.FormatBGRA8Srgb,
		limits: metadata.DeviceLimits{
			MinUniformBufferOffsetAlignment: 256,
			MaxPushConstantsSize:            128,
			MaxBoundDescriptorSets:          8,
			SupportsAccelerationStructures:  true,
		},
	}
	for _, o := range options {
		o(d)
	}
	d.createSwapchainViews()
	core.LogDebug("headless device created with %d swapchain images at %dx%d", d.swapchainCount, d.swapchainExtent.Width, d.swapchainExtent.Height)
	return d
}

func (d *Device) alloc(kind Kind) uint64 {
	d.next++
	if d.live[kind] == nil {
		d.live[kind] = make(map[uint64]struct{})
	}
	d.live[kind][d.next] = struct{}{}
	d.created[kind]++
	return d.next
}

// release drops a live object. Zero handles are ignored the way the real API
// ignores null handles.
func (d *Device) release(kind Kind, h uint64) bool {
	if h == 0 {
		return false
	}
	if _, ok := d.live[kind][h]; !ok {
		d.violate("destroy of unknown or already destroyed %s %d", kind, h)
		return false
	}
	delete(d.live[kind], h)
	return true
}

func (d *Device) isLive(kind Kind, h uint64) bool {
	_, ok := d.live[kind][h]
	return ok
}

func (d *Device) violate(format string, args ...interface{}) error {
	err := fmt.Errorf("headless: "+format, args...)
	d.violations = append(d.violations, err)
	core.LogError(err.Error())
	return err
}

// Live returns the number of live objects of the given kind.
func (d *Device) Live(kind Kind) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.live[kind])
}

// Created returns how many objects of the given kind were ever created.
func (d *Device) Created(kind Kind) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.created[kind]
}

// LiveObjects returns every kind with at least one live object. Swapchain
// views are owned by the device and are not reported.
func (d *Device) LiveObjects() map[Kind]int {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make(map[Kind]int)
	for k, m := range d.live {
		if k == KindSwapchainView || len(m) == 0 {
			continue
		}
		out[k] = len(m)
	}
	return out
}

// Violations returns every misuse the device detected, in order.
func (d *Device) Violations() []error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]error(nil), d.violations...)
}

func (d *Device) CreateImage(info metadata.ImageCreateInfo) (metadata.ImageHandle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if info.Format == metadata.FormatUndefined {
		return 0, fmt.Errorf("headless create image `%s`: %w", info.Name, core.ErrUnsupportedFormat)
	}
	if info.Extent.Width == 0 || info.Extent.Height == 0 || info.Extent.Depth == 0 {
		return 0, fmt.Errorf("headless create image `%s`: zero extent", info.Name)
	}
	h := metadata.ImageHandle(d.alloc(KindImage))
	d.images[h] = info
	return h, nil
}

func (d *Device) CreateImageView(image metadata.ImageHandle, info metadata.ImageViewCreateInfo) (metadata.ImageViewHandle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.isLive(KindImage, uint64(image)) {
		return 0, fmt.Errorf("headless create image view: unknown image %d", image)
	}
	return metadata.ImageViewHandle(d.alloc(KindImageView)), nil
}

func (d *Device) WriteImage(image metadata.ImageHandle, info metadata.ImageCreateInfo, data []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.isLive(KindImage, uint64(image)) {
		return fmt.Errorf("headless write image: unknown image %d", image)
	}
	e := info.Extent
	want := uint64(e.Width) * uint64(e.Height) * uint64(e.Depth) * uint64(max(info.Layers, 1)) * uint64(info.Format.BytesPerPixel())
	if uint64(len(data)) != want {
		return fmt.Errorf("headless write image `%s`: got %d bytes, want %d", info.Name, len(data), want)
	}
	return nil
}

func (d *Device) DestroyImageView(view metadata.ImageViewHandle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.release(KindImageView, uint64(view))
}

func (d *Device) DestroyImage(image metadata.ImageHandle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.release(KindImage, uint64(image)) {
		delete(d.images, image)
	}
}

func (d *Device) CreateSampler(info metadata.SamplerCreateInfo) (metadata.SamplerHandle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return metadata.SamplerHandle(d.alloc(KindSampler)), nil
}

func (d *Device) DestroySampler(sampler metadata.SamplerHandle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.release(KindSampler, uint64(sampler))
}

func (d *Device) CreateBuffer(info metadata.BufferCreateInfo) (metadata.BufferHandle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if info.Size == 0 {
		return 0, fmt.Errorf("headless create buffer `%s`: zero size", info.Name)
	}
	h := metadata.BufferHandle(d.alloc(KindBuffer))
	d.buffers[h] = make([]byte, info.Size)
	return h, nil
}

func (d *Device) WriteBuffer(buffer metadata.BufferHandle, offset uint64, data []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	mem, ok := d.buffers[buffer]
	if !ok {
		return fmt.Errorf("headless write buffer: unknown buffer %d", buffer)
	}
	if offset+uint64(len(data)) > uint64(len(mem)) {
		return fmt.Errorf("headless write buffer %d: write of %d bytes at %d overflows %d", buffer, len(data), offset, len(mem))
	}
	copy(mem[offset:], data)
	return nil
}

// BufferData returns a copy of the buffer contents.
func (d *Device) BufferData(buffer metadata.BufferHandle) []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]byte(nil), d.buffers[buffer]...)
}

func (d *Device) DestroyBuffer(buffer metadata.BufferHandle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.release(KindBuffer, uint64(buffer)) {
		delete(d.buffers, buffer)
	}
}

func (d *Device) CreateRenderPass(info metadata.RenderPassCreateInfo) (metadata.RenderPassHandle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(info.Attachments) == 0 {
		return 0, fmt.Errorf("headless create render pass `%s`: no attachments", info.Name)
	}
	for _, a := range info.Attachments {
		if a.Kind == metadata.AttachmentKindStorage {
			return 0, fmt.Errorf("headless create render pass `%s`: storage attachment `%s`", info.Name, a.Name)
		}
		if a.Format == metadata.FormatUndefined {
			return 0, fmt.Errorf("headless create render pass `%s`: %w", info.Name, core.ErrUnsupportedFormat)
		}
	}
	return metadata.RenderPassHandle(d.alloc(KindRenderPass)), nil
}

func (d *Device) DestroyRenderPass(renderPass metadata.RenderPassHandle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.release(KindRenderPass, uint64(renderPass))
}

func (d *Device) CreateFramebuffer(info metadata.FramebufferCreateInfo) (metadata.FramebufferHandle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.isLive(KindRenderPass, uint64(info.RenderPass)) {
		return 0, fmt.Errorf("headless create framebuffer: unknown render pass %d", info.RenderPass)
	}
	for _, v := range info.Attachments {
		if !d.isLive(KindImageView, uint64(v)) && !d.isLive(KindSwapchainView, uint64(v)) {
			return 0, fmt.Errorf("headless create framebuffer: unknown image view %d", v)
		}
	}
	return metadata.FramebufferHandle(d.alloc(KindFramebuffer)), nil
}

func (d *Device) DestroyFramebuffer(framebuffer metadata.FramebufferHandle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.release(KindFramebuffer, uint64(framebuffer))
}

func (d *Device) CreatePipeline(info metadata.PipelineCreateInfo) (metadata.PipelineHandle, metadata.PipelineLayoutHandle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(info.Stages) == 0 {
		return 0, 0, fmt.Errorf("headless create pipeline `%s`: no shader stages", info.Name)
	}
	for _, s := range info.Stages {
		if len(s.Code) == 0 {
			return 0, 0, fmt.Errorf("headless create pipeline `%s`: empty shader module `%s`", info.Name, s.Name)
		}
	}
	switch info.Kind {
	case metadata.PipelineKindGraphics:
		if !d.isLive(KindRenderPass, uint64(info.RenderPass)) {
			return 0, 0, fmt.Errorf("headless create pipeline `%s`: unknown render pass %d", info.Name, info.RenderPass)
		}
	case metadata.PipelineKindCompute:
		if len(info.Stages) != 1 || info.Stages[0].Stage != metadata.ShaderStageCompute {
			return 0, 0, fmt.Errorf("headless create pipeline `%s`: compute pipelines take one compute stage", info.Name)
		}
	}
	for _, l := range info.Layouts {
		if !d.isLive(KindDescriptorLayout, uint64(l)) {
			return 0, 0, fmt.Errorf("headless create pipeline `%s`: unknown descriptor layout %d", info.Name, l)
		}
	}
	p := metadata.PipelineHandle(d.alloc(KindPipeline))
	l := metadata.PipelineLayoutHandle(d.alloc(KindPipelineLayout))
	d.pipelines[p] = info
	return p, l, nil
}

// Pipeline returns the create info a pipeline was built from.
func (d *Device) Pipeline(pipeline metadata.PipelineHandle) (metadata.PipelineCreateInfo, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	info, ok := d.pipelines[pipeline]
	return info, ok
}

func (d *Device) DestroyPipeline(pipeline metadata.PipelineHandle, layout metadata.PipelineLayoutHandle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.release(KindPipeline, uint64(pipeline)) {
		delete(d.pipelines, pipeline)
	}
	d.release(KindPipelineLayout, uint64(layout))
}

func (d *Device) CreateFence(signaled bool) (metadata.FenceHandle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	h := metadata.FenceHandle(d.alloc(KindFence))
	d.fences[h] = &fenceState{signaled: signaled}
	return h, nil
}

func (d *Device) WaitFence(fence metadata.FenceHandle) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	f, ok := d.fences[fence]
	if !ok {
		return fmt.Errorf("headless wait fence: unknown fence %d", fence)
	}
	if f.signaled {
		return nil
	}
	if f.pending == 0 {
		// A real queue would block forever here.
		return d.violate("wait on fence %d that has no pending submission: %w", fence, core.ErrDeviceLost)
	}
	d.completeUpTo(f.pending)
	return nil
}

func (d *Device) ResetFence(fence metadata.FenceHandle) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	f, ok := d.fences[fence]
	if !ok {
		return fmt.Errorf("headless reset fence: unknown fence %d", fence)
	}
	if f.pending != 0 {
		return d.violate("reset of fence %d while its submission is pending", fence)
	}
	f.signaled = false
	return nil
}

// FenceSignaled reports whether the fence is signaled.
func (d *Device) FenceSignaled(fence metadata.FenceHandle) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	f, ok := d.fences[fence]
	return ok && f.signaled
}

func (d *Device) DestroyFence(fence metadata.FenceHandle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if f, ok := d.fences[fence]; ok && f.pending != 0 {
		d.violate("destroy of fence %d while its submission is pending", fence)
	}
	if d.release(KindFence, uint64(fence)) {
		delete(d.fences, fence)
	}
}

func (d *Device) CreateSemaphore() (metadata.SemaphoreHandle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	h := metadata.SemaphoreHandle(d.alloc(KindSemaphore))
	d.semaphores[h] = false
	return h, nil
}

func (d *Device) DestroySemaphore(semaphore metadata.SemaphoreHandle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.release(KindSemaphore, uint64(semaphore)) {
		delete(d.semaphores, semaphore)
	}
}

func (d *Device) signal(s metadata.SemaphoreHandle) error {
	signaled, ok := d.semaphores[s]
	if !ok {
		return d.violate("signal of unknown semaphore %d", s)
	}
	if signaled {
		return d.violate("signal of semaphore %d that is already signaled", s)
	}
	d.semaphores[s] = true
	return nil
}

func (d *Device) consume(s metadata.SemaphoreHandle) error {
	signaled, ok := d.semaphores[s]
	if !ok {
		return d.violate("wait on unknown semaphore %d", s)
	}
	if !signaled {
		return d.violate("wait on semaphore %d that nothing signals", s)
	}
	d.semaphores[s] = false
	return nil
}

func (d *Device) Submit(info metadata.SubmitInfo) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	cb, ok := info.CommandBuffer.(*CommandBuffer)
	if !ok || d.cbs[cb.handle] != cb {
		return fmt.Errorf("headless submit: foreign command buffer")
	}
	if cb.state != stateExecutable {
		return d.violate("submit of command buffer %d in state %s", cb.handle, cb.state)
	}
	for _, s := range info.Wait {
		if err := d.consume(s); err != nil {
			return err
		}
	}
	sub := &Submission{
		ID:            uint64(len(d.submissions) + 1),
		CommandBuffer: cb.handle,
		Commands:      append([]Command(nil), cb.commands...),
		Fence:         info.Fence,
	}
	if info.Fence != 0 {
		f, ok := d.fences[info.Fence]
		if !ok {
			return fmt.Errorf("headless submit: unknown fence %d", info.Fence)
		}
		if f.signaled || f.pending != 0 {
			return d.violate("submit with fence %d that was not reset", info.Fence)
		}
		f.pending = sub.ID
	}
	for _, s := range info.Signal {
		if err := d.signal(s); err != nil {
			return err
		}
	}
	d.submissions = append(d.submissions, sub)
	cb.state = statePending
	cb.pending = sub.ID

	if n := d.inFlight(); n > d.maxInFlight {
		d.maxInFlight = n
	}
	return nil
}

// completeUpTo retires every submission up to and including id, in order.
func (d *Device) completeUpTo(id uint64) {
	for _, s := range d.submissions {
		if s.ID > id {
			break
		}
		if s.Done {
			continue
		}
		s.Done = true
		if f, ok := d.fences[s.Fence]; ok && f.pending == s.ID {
			f.pending = 0
			f.signaled = true
		}
		if cb, ok := d.cbs[s.CommandBuffer]; ok && cb.pending == s.ID {
			cb.pending = 0
			cb.state = stateExecutable
		}
	}
}

func (d *Device) inFlight() int {
	n := 0
	for _, s := range d.submissions {
		if !s.Done {
			n++
		}
	}
	return n
}

// InFlight returns the number of submissions the simulated queue has not
// retired yet.
func (d *Device) InFlight() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.inFlight()
}

// MaxInFlight returns the largest number of submissions that were ever in
// flight at the same time.
func (d *Device) MaxInFlight() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.maxInFlight
}

// Submissions returns every submission so far.
func (d *Device) Submissions() []Submission {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Submission, len(d.submissions))
	for i, s := range d.submissions {
		out[i] = *s
	}
	return out
}

func (d *Device) WaitIdle() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.submissions) > 0 {
		d.completeUpTo(d.submissions[len(d.submissions)-1].ID)
	}
	return nil
}

func (d *Device) Limits() metadata.DeviceLimits {
	return d.limits
}

// Destroy tears the device down. Objects still alive at this point are leaks
// and are reported as violations.
func (d *Device) Destroy() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.destroyed {
		return
	}
	for _, v := range d.swapchainViews {
		d.release(KindSwapchainView, uint64(v))
	}
	d.swapchainViews = nil

	kinds := make([]string, 0, len(d.live))
	for k, m := range d.live {
		if len(m) > 0 && k != KindDescriptorSet {
			kinds = append(kinds, string(k))
		}
	}
	sort.Strings(kinds)
	for _, k := range kinds {
		d.violate("%d %s objects leaked", len(d.live[Kind(k)]), k)
	}
	d.destroyed = true
}

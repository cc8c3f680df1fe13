package frame

import (
	"fmt"

	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/renderer/metadata"
)

// Ring cycles through the in-flight frames. It owns the frames and the
// uniform arena every frame writes its region of.
type Ring struct {
	device  metadata.GraphicsDevice
	frames  []*Frame
	current int
	number  uint64
	arena   metadata.BufferHandle
	layout  UniformLayout

	// imagesInFlight maps a swapchain image to the fence of the frame that
	// last rendered into it.
	imagesInFlight []metadata.FenceHandle
	destroyed      bool
}

func NewRing(device metadata.GraphicsDevice, count int, maxObjects int) (*Ring, error) {
	if count < 1 {
		return nil, fmt.Errorf("frame ring needs at least one frame, got %d", count)
	}
	layout := NewUniformLayout(device.Limits().MinUniformBufferOffsetAlignment, maxObjects)
	r := &Ring{
		device: device,
		layout: layout,
	}

	arena, err := device.CreateBuffer(metadata.BufferCreateInfo{
		Name:        "frame_uniform_arena",
		Size:        layout.RegionSize * uint64(count),
		Usage:       metadata.BufferUsageUniform,
		HostVisible: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create uniform arena: %w", err)
	}
	r.arena = arena

	for i := 0; i < count; i++ {
		f, err := r.newFrame(i)
		if err != nil {
			r.Destroy()
			return nil, err
		}
		r.frames = append(r.frames, f)
	}
	r.ResetImages(len(device.SwapchainViews()))

	core.LogDebug("frame ring created: %d frames, %d bytes of uniforms per frame", count, layout.RegionSize)
	return r, nil
}

func (r *Ring) newFrame(i int) (*Frame, error) {
	f := &Frame{
		Index:  i,
		device: r.device,
		Uniforms: Region{
			Buffer: r.arena,
			Base:   uint64(i) * r.layout.RegionSize,
			Layout: r.layout,
		},
	}
	var err error
	if f.CommandBuffer, err = r.device.CreateCommandBuffer(); err != nil {
		return nil, fmt.Errorf("frame %d command buffer: %w", i, err)
	}
	// Signaled so the first wait on every frame returns immediately.
	if f.InFlight, err = r.device.CreateFence(true); err != nil {
		f.destroy()
		return nil, fmt.Errorf("frame %d fence: %w", i, err)
	}
	if f.ImageAvailable, err = r.device.CreateSemaphore(); err != nil {
		f.destroy()
		return nil, fmt.Errorf("frame %d image available semaphore: %w", i, err)
	}
	if f.RenderFinished, err = r.device.CreateSemaphore(); err != nil {
		f.destroy()
		return nil, fmt.Errorf("frame %d render finished semaphore: %w", i, err)
	}
	return f, nil
}

func (r *Ring) Current() *Frame {
	return r.frames[r.current]
}

func (r *Ring) Frames() []*Frame {
	return r.frames
}

func (r *Ring) Count() int {
	return len(r.frames)
}

func (r *Ring) Layout() UniformLayout {
	return r.layout
}

// Wait blocks until the current frame's previous submission has completed.
// After it returns the frame's command buffer and uniform region are free.
func (r *Ring) Wait() error {
	if err := r.device.WaitFence(r.Current().InFlight); err != nil {
		return fmt.Errorf("frame %d wait: %w", r.current, err)
	}
	return nil
}

// Begin starts recording the current frame into the given swapchain image.
// The fence is only reset here, after a successful acquire, so a skipped
// frame never leaves an unsignaled fence behind.
func (r *Ring) Begin(imageIndex uint32) error {
	f := r.Current()
	if int(imageIndex) < len(r.imagesInFlight) {
		if fence := r.imagesInFlight[imageIndex]; fence != 0 && fence != f.InFlight {
			if err := r.device.WaitFence(fence); err != nil {
				return fmt.Errorf("frame %d wait on image %d: %w", f.Index, imageIndex, err)
			}
		}
		r.imagesInFlight[imageIndex] = f.InFlight
	}

	if err := r.device.ResetFence(f.InFlight); err != nil {
		return fmt.Errorf("frame %d reset fence: %w", f.Index, err)
	}
	if err := f.CommandBuffer.Reset(); err != nil {
		return fmt.Errorf("frame %d reset command buffer: %w", f.Index, err)
	}
	if err := f.CommandBuffer.Begin(); err != nil {
		return fmt.Errorf("frame %d begin command buffer: %w", f.Index, err)
	}
	f.ImageIndex = imageIndex
	f.Number = r.number
	return nil
}

// Submit ends recording and hands the frame to the queue. The submission
// waits on the acquired image and signals the render finished semaphore and
// the in-flight fence.
func (r *Ring) Submit() error {
	f := r.Current()
	if err := f.CommandBuffer.End(); err != nil {
		return fmt.Errorf("frame %d end command buffer: %w", f.Index, err)
	}
	if err := r.device.Submit(metadata.SubmitInfo{
		CommandBuffer: f.CommandBuffer,
		Wait:          []metadata.SemaphoreHandle{f.ImageAvailable},
		Signal:        []metadata.SemaphoreHandle{f.RenderFinished},
		Fence:         f.InFlight,
	}); err != nil {
		return fmt.Errorf("frame %d submit: %w", f.Index, err)
	}
	return nil
}

func (r *Ring) Advance() {
	r.current = (r.current + 1) % len(r.frames)
	r.number++
}

// ResetImages forgets which frame used which swapchain image. Called after
// the swapchain is recreated with count images.
func (r *Ring) ResetImages(count int) {
	r.imagesInFlight = make([]metadata.FenceHandle, count)
}

func (r *Ring) Destroy() {
	if r.destroyed {
		return
	}
	for _, f := range r.frames {
		f.destroy()
	}
	r.frames = nil
	r.device.DestroyBuffer(r.arena)
	r.arena = 0
	r.destroyed = true
}

package vulkan

import (
	"fmt"
	"math"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/renderer/metadata"
)

func (d *Device) CreateFence(signaled bool) (metadata.FenceHandle, error) {
	fenceCreateInfo := vk.FenceCreateInfo{
		SType: vk.StructureTypeFenceCreateInfo,
	}
	// Make sure to signal the fence if required.
	if signaled {
		fenceCreateInfo.Flags = vk.FenceCreateFlags(vk.FenceCreateSignaledBit)
	}
	var fence vk.Fence
	if err := resultError("vkCreateFence", vk.CreateFence(d.logical, &fenceCreateInfo, nil, &fence)); err != nil {
		return 0, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	h := d.handle()
	d.fences.put(h, fence)
	return metadata.FenceHandle(h), nil
}

// WaitFence blocks until the fence is signaled. A lost device is reported as
// core.ErrDeviceLost.
func (d *Device) WaitFence(handle metadata.FenceHandle) error {
	d.mu.Lock()
	fence, err := d.fences.get(uint64(handle))
	d.mu.Unlock()
	if err != nil {
		return err
	}
	result := vk.WaitForFences(d.logical, 1, []vk.Fence{fence}, vk.True, math.MaxUint64)
	switch result {
	case vk.Success:
		return nil
	case vk.Timeout:
		core.LogWarn("vk_fence_wait - Timed out")
		return fmt.Errorf("fence %d timed out", handle)
	default:
		return resultError("vkWaitForFences", result)
	}
}

func (d *Device) ResetFence(handle metadata.FenceHandle) error {
	d.mu.Lock()
	fence, err := d.fences.get(uint64(handle))
	d.mu.Unlock()
	if err != nil {
		return err
	}
	return resultError("vkResetFences", vk.ResetFences(d.logical, 1, []vk.Fence{fence}))
}

func (d *Device) DestroyFence(handle metadata.FenceHandle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if fence, ok := d.fences.take(uint64(handle)); ok {
		vk.DestroyFence(d.logical, fence, nil)
	}
}

func (d *Device) CreateSemaphore() (metadata.SemaphoreHandle, error) {
	var semaphore vk.Semaphore
	res := vk.CreateSemaphore(d.logical, &vk.SemaphoreCreateInfo{
		SType: vk.StructureTypeSemaphoreCreateInfo,
	}, nil, &semaphore)
	if err := resultError("vkCreateSemaphore", res); err != nil {
		return 0, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	h := d.handle()
	d.semaphores.put(h, semaphore)
	return metadata.SemaphoreHandle(h), nil
}

func (d *Device) DestroySemaphore(handle metadata.SemaphoreHandle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if s, ok := d.semaphores.take(uint64(handle)); ok {
		vk.DestroySemaphore(d.logical, s, nil)
	}
}

// Submit queues a recorded command buffer on the graphics queue. Every wait
// semaphore blocks the color attachment output stage.
func (d *Device) Submit(info metadata.SubmitInfo) error {
	if info.CommandBuffer == nil {
		return fmt.Errorf("submit without a command buffer")
	}
	d.mu.Lock()
	cb, err := d.commandBuffers.get(uint64(info.CommandBuffer.Handle()))
	wait := make([]vk.Semaphore, len(info.Wait))
	for i := 0; err == nil && i < len(info.Wait); i++ {
		wait[i], err = d.semaphores.get(uint64(info.Wait[i]))
	}
	signal := make([]vk.Semaphore, len(info.Signal))
	for i := 0; err == nil && i < len(info.Signal); i++ {
		signal[i], err = d.semaphores.get(uint64(info.Signal[i]))
	}
	fence := vk.NullFence
	if err == nil && info.Fence != 0 {
		fence, err = d.fences.get(uint64(info.Fence))
	}
	d.mu.Unlock()
	if err != nil {
		return fmt.Errorf("submit: %w", err)
	}

	stages := make([]vk.PipelineStageFlags, len(wait))
	for i := range stages {
		stages[i] = vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit)
	}
	submitInfo := vk.SubmitInfo{
		SType:                vk.StructureTypeSubmitInfo,
		WaitSemaphoreCount:   uint32(len(wait)),
		PWaitSemaphores:      wait,
		PWaitDstStageMask:    stages,
		CommandBufferCount:   1,
		PCommandBuffers:      []vk.CommandBuffer{cb.vk},
		SignalSemaphoreCount: uint32(len(signal)),
		PSignalSemaphores:    signal,
	}
	err = d.locks.SafeQueueCall(d.graphicsQueueIndex, func() error {
		return resultError("vkQueueSubmit", vk.QueueSubmit(d.graphicsQueue, 1, []vk.SubmitInfo{submitInfo}, fence))
	})
	if err != nil {
		return err
	}
	cb.State = COMMAND_BUFFER_STATE_SUBMITTED
	return nil
}

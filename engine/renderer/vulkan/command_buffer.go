package vulkan

import (
	"fmt"
	"unsafe"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/renderer/metadata"
)

type CommandBufferState int

const (
	COMMAND_BUFFER_STATE_READY CommandBufferState = iota
	COMMAND_BUFFER_STATE_RECORDING
	COMMAND_BUFFER_STATE_IN_RENDER_PASS
	COMMAND_BUFFER_STATE_RECORDING_ENDED
	COMMAND_BUFFER_STATE_SUBMITTED
	COMMAND_BUFFER_STATE_NOT_ALLOCATED
)

// CommandBuffer is a primary command buffer from the graphics command pool.
// Handles passed to it are resolved through the device that created it.
type CommandBuffer struct {
	device *Device
	handle metadata.CommandBufferHandle
	vk     vk.CommandBuffer
	State  CommandBufferState
}

var _ metadata.CommandBuffer = (*CommandBuffer)(nil)

func (d *Device) allocateCommandBuffer() (vk.CommandBuffer, error) {
	buffers := make([]vk.CommandBuffer, 1)
	err := d.locks.SafeCall(CommandPoolManagement, func() error {
		return resultError("vkAllocateCommandBuffers", vk.AllocateCommandBuffers(d.logical, &vk.CommandBufferAllocateInfo{
			SType:              vk.StructureTypeCommandBufferAllocateInfo,
			CommandPool:        d.commandPool,
			Level:              vk.CommandBufferLevelPrimary,
			CommandBufferCount: 1,
		}, buffers))
	})
	if err != nil {
		return nil, err
	}
	return buffers[0], nil
}

func (d *Device) freeCommandBuffer(cb vk.CommandBuffer) {
	d.locks.SafeCall(CommandPoolManagement, func() error {
		vk.FreeCommandBuffers(d.logical, d.commandPool, 1, []vk.CommandBuffer{cb})
		return nil
	})
}

func (d *Device) CreateCommandBuffer() (metadata.CommandBuffer, error) {
	handle, err := d.allocateCommandBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to allocate command buffer: %w", err)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	cb := &CommandBuffer{
		device: d,
		handle: metadata.CommandBufferHandle(d.handle()),
		vk:     handle,
		State:  COMMAND_BUFFER_STATE_READY,
	}
	d.commandBuffers.put(uint64(cb.handle), cb)
	return cb, nil
}

func (d *Device) FreeCommandBuffer(cb metadata.CommandBuffer) {
	if cb == nil {
		return
	}
	d.mu.Lock()
	c, ok := d.commandBuffers.take(uint64(cb.Handle()))
	d.mu.Unlock()
	if !ok {
		return
	}
	d.freeCommandBuffer(c.vk)
	c.vk = nil
	c.State = COMMAND_BUFFER_STATE_NOT_ALLOCATED
}

// singleUse records fn into a one time command buffer, submits it and waits
// for the graphics queue to go idle.
func (d *Device) singleUse(fn func(cb vk.CommandBuffer)) error {
	cb, err := d.allocateCommandBuffer()
	if err != nil {
		return err
	}
	defer d.freeCommandBuffer(cb)

	if err := resultError("vkBeginCommandBuffer", vk.BeginCommandBuffer(cb, &vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
		Flags: vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit),
	})); err != nil {
		return err
	}
	fn(cb)
	if err := resultError("vkEndCommandBuffer", vk.EndCommandBuffer(cb)); err != nil {
		return err
	}

	return d.locks.SafeQueueCall(d.graphicsQueueIndex, func() error {
		submit := vk.SubmitInfo{
			SType:              vk.StructureTypeSubmitInfo,
			CommandBufferCount: 1,
			PCommandBuffers:    []vk.CommandBuffer{cb},
		}
		if err := resultError("vkQueueSubmit", vk.QueueSubmit(d.graphicsQueue, 1, []vk.SubmitInfo{submit}, vk.NullFence)); err != nil {
			return err
		}
		return resultError("vkQueueWaitIdle", vk.QueueWaitIdle(d.graphicsQueue))
	})
}

func (c *CommandBuffer) Handle() metadata.CommandBufferHandle {
	return c.handle
}

func (c *CommandBuffer) Reset() error {
	if err := resultError("vkResetCommandBuffer", vk.ResetCommandBuffer(c.vk, 0)); err != nil {
		return err
	}
	c.State = COMMAND_BUFFER_STATE_READY
	return nil
}

func (c *CommandBuffer) Begin() error {
	if c.State != COMMAND_BUFFER_STATE_READY {
		return fmt.Errorf("begin of command buffer %d in state %d", c.handle, c.State)
	}
	if err := resultError("vkBeginCommandBuffer", vk.BeginCommandBuffer(c.vk, &vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
	})); err != nil {
		return err
	}
	c.State = COMMAND_BUFFER_STATE_RECORDING
	return nil
}

func (c *CommandBuffer) End() error {
	if err := resultError("vkEndCommandBuffer", vk.EndCommandBuffer(c.vk)); err != nil {
		return err
	}
	c.State = COMMAND_BUFFER_STATE_RECORDING_ENDED
	return nil
}

func (c *CommandBuffer) BeginRenderPass(info metadata.RenderPassBeginInfo) {
	d := c.device
	d.mu.Lock()
	rp, err := d.renderPasses.get(uint64(info.RenderPass))
	var fb vk.Framebuffer
	if err == nil {
		fb, err = d.framebuffers.get(uint64(info.Framebuffer))
	}
	d.mu.Unlock()
	if err != nil {
		core.LogError("begin render pass: %s", err)
		return
	}

	clearValues := make([]vk.ClearValue, len(info.Clear))
	for i, cv := range info.Clear {
		if i == rp.depth {
			clearValues[i].SetDepthStencil(cv.Depth, cv.Stencil)
		} else {
			clearValues[i].SetColor(cv.Color[:])
		}
	}
	vk.CmdBeginRenderPass(c.vk, &vk.RenderPassBeginInfo{
		SType:       vk.StructureTypeRenderPassBeginInfo,
		RenderPass:  rp.handle,
		Framebuffer: fb,
		RenderArea: vk.Rect2D{
			Extent: vk.Extent2D{Width: info.Extent.Width, Height: info.Extent.Height},
		},
		ClearValueCount: uint32(len(clearValues)),
		PClearValues:    clearValues,
	}, vk.SubpassContentsInline)
	c.State = COMMAND_BUFFER_STATE_IN_RENDER_PASS
}

func (c *CommandBuffer) EndRenderPass() {
	vk.CmdEndRenderPass(c.vk)
	c.State = COMMAND_BUFFER_STATE_RECORDING
}

func (c *CommandBuffer) SetViewport(viewport metadata.Viewport) {
	vk.CmdSetViewport(c.vk, 0, 1, []vk.Viewport{{
		X:        viewport.X,
		Y:        viewport.Y,
		Width:    viewport.Width,
		Height:   viewport.Height,
		MinDepth: viewport.MinDepth,
		MaxDepth: viewport.MaxDepth,
	}})
}

func (c *CommandBuffer) SetScissor(extent metadata.Extent2D) {
	vk.CmdSetScissor(c.vk, 0, 1, []vk.Rect2D{{
		Extent: vk.Extent2D{Width: extent.Width, Height: extent.Height},
	}})
}

func (c *CommandBuffer) BindPipeline(kind metadata.PipelineKind, handle metadata.PipelineHandle) {
	d := c.device
	d.mu.Lock()
	p, err := d.pipelines.get(uint64(handle))
	d.mu.Unlock()
	if err != nil {
		core.LogError("bind pipeline: %s", err)
		return
	}
	vk.CmdBindPipeline(c.vk, vkBindPoint(kind), p.handle)
}

func (c *CommandBuffer) BindDescriptorSets(kind metadata.PipelineKind, layout metadata.PipelineLayoutHandle, firstSet uint32, sets []metadata.DescriptorSetHandle, dynamicOffsets []uint32) {
	d := c.device
	d.mu.Lock()
	pl, err := d.pipelineLayouts.get(uint64(layout))
	vkSets := make([]vk.DescriptorSet, len(sets))
	for i := 0; err == nil && i < len(sets); i++ {
		var s descriptorSet
		s, err = d.sets.get(uint64(sets[i]))
		vkSets[i] = s.handle
	}
	d.mu.Unlock()
	if err != nil {
		core.LogError("bind descriptor sets: %s", err)
		return
	}
	vk.CmdBindDescriptorSets(c.vk, vkBindPoint(kind), pl, firstSet, uint32(len(vkSets)), vkSets, uint32(len(dynamicOffsets)), dynamicOffsets)
}

func (c *CommandBuffer) PushConstants(layout metadata.PipelineLayoutHandle, stages metadata.ShaderStage, offset uint32, data []byte) {
	d := c.device
	d.mu.Lock()
	pl, err := d.pipelineLayouts.get(uint64(layout))
	d.mu.Unlock()
	if err != nil {
		core.LogError("push constants: %s", err)
		return
	}
	if len(data) == 0 {
		return
	}
	vk.CmdPushConstants(c.vk, pl, vkStages(stages), offset, uint32(len(data)), unsafe.Pointer(&data[0]))
}

func (c *CommandBuffer) buffer(handle metadata.BufferHandle) (vk.Buffer, bool) {
	d := c.device
	d.mu.Lock()
	defer d.mu.Unlock()
	b, err := d.buffers.get(uint64(handle))
	if err != nil {
		core.LogError("bind buffer: %s", err)
		return nil, false
	}
	return b.handle, true
}

func (c *CommandBuffer) BindVertexBuffer(handle metadata.BufferHandle, offset uint64) {
	if b, ok := c.buffer(handle); ok {
		vk.CmdBindVertexBuffers(c.vk, 0, 1, []vk.Buffer{b}, []vk.DeviceSize{vk.DeviceSize(offset)})
	}
}

func (c *CommandBuffer) BindIndexBuffer(handle metadata.BufferHandle, offset uint64) {
	if b, ok := c.buffer(handle); ok {
		vk.CmdBindIndexBuffer(c.vk, b, vk.DeviceSize(offset), vk.IndexTypeUint32)
	}
}

func (c *CommandBuffer) Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32) {
	vk.CmdDraw(c.vk, vertexCount, instanceCount, firstVertex, firstInstance)
}

func (c *CommandBuffer) DrawIndexed(indexCount, instanceCount, firstIndex uint32, vertexOffset int32, firstInstance uint32) {
	vk.CmdDrawIndexed(c.vk, indexCount, instanceCount, firstIndex, vertexOffset, firstInstance)
}

func (c *CommandBuffer) Dispatch(x, y, z uint32) {
	vk.CmdDispatch(c.vk, x, y, z)
}

// PipelineBarrier records one barrier per image transition. Stages and
// access masks are derived from the layouts.
func (c *CommandBuffer) PipelineBarrier(barriers []metadata.ImageBarrier) {
	if len(barriers) == 0 {
		return
	}
	d := c.device
	var srcStages, dstStages vk.PipelineStageFlags
	vkBarriers := make([]vk.ImageMemoryBarrier, 0, len(barriers))
	d.mu.Lock()
	for _, b := range barriers {
		img, err := d.images.get(uint64(b.Image))
		if err != nil {
			core.LogError("pipeline barrier: %s", err)
			continue
		}
		srcAccess, srcStage := layoutAccess(b.OldLayout)
		dstAccess, dstStage := layoutAccess(b.NewLayout)
		srcStages |= srcStage
		dstStages |= dstStage
		aspect := b.Aspect
		if aspect == 0 {
			aspect = aspectOf(img.info.Format)
		}
		mips, layers := b.MipCount, b.Layers
		if mips == 0 {
			mips = vk.RemainingMipLevels
		}
		if layers == 0 {
			layers = vk.RemainingArrayLayers
		}
		vkBarriers = append(vkBarriers, vk.ImageMemoryBarrier{
			SType:               vk.StructureTypeImageMemoryBarrier,
			SrcAccessMask:       srcAccess,
			DstAccessMask:       dstAccess,
			OldLayout:           vkLayout(b.OldLayout),
			NewLayout:           vkLayout(b.NewLayout),
			SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
			DstQueueFamilyIndex: vk.QueueFamilyIgnored,
			Image:               img.handle,
			SubresourceRange: vk.ImageSubresourceRange{
				AspectMask:     vkAspect(aspect),
				BaseMipLevel:   b.BaseMip,
				LevelCount:     mips,
				BaseArrayLayer: b.BaseLayer,
				LayerCount:     layers,
			},
		})
	}
	d.mu.Unlock()
	if len(vkBarriers) == 0 {
		return
	}
	vk.CmdPipelineBarrier(c.vk, srcStages, dstStages, 0, 0, nil, 0, nil, uint32(len(vkBarriers)), vkBarriers)
}

package headless

import (
	"fmt"

	"github.com/spaghettifunk/prism/engine/renderer/metadata"
)

type commandBufferState uint8

const (
	stateInitial commandBufferState = iota
	stateRecording
	stateExecutable
	statePending
)

func (s commandBufferState) String() string {
	switch s {
	case stateInitial:
		return "initial"
	case stateRecording:
		return "recording"
	case stateExecutable:
		return "executable"
	case statePending:
		return "pending"
	}
	return "unknown"
}

type Op string

const (
	OpBeginRenderPass    Op = "begin_render_pass"
	OpEndRenderPass      Op = "end_render_pass"
	OpSetViewport        Op = "set_viewport"
	OpSetScissor         Op = "set_scissor"
	OpBindPipeline       Op = "bind_pipeline"
	OpBindDescriptorSets Op = "bind_descriptor_sets"
	OpPushConstants      Op = "push_constants"
	OpBindVertexBuffer   Op = "bind_vertex_buffer"
	OpBindIndexBuffer    Op = "bind_index_buffer"
	OpDraw               Op = "draw"
	OpDrawIndexed        Op = "draw_indexed"
	OpDispatch           Op = "dispatch"
	OpPipelineBarrier    Op = "pipeline_barrier"
)

// Command is one recorded call. Only the fields that matter for Op are set.
type Command struct {
	Op             Op
	Kind           metadata.PipelineKind
	Pipeline       metadata.PipelineHandle
	Layout         metadata.PipelineLayoutHandle
	RenderPass     metadata.RenderPassHandle
	Framebuffer    metadata.FramebufferHandle
	Extent         metadata.Extent2D
	Clear          []metadata.ClearValue
	Viewport       metadata.Viewport
	FirstSet       uint32
	Sets           []metadata.DescriptorSetHandle
	DynamicOffsets []uint32
	Stages         metadata.ShaderStage
	Offset         uint64
	Data           []byte
	Buffer         metadata.BufferHandle
	Counts         [4]uint32
	VertexOffset   int32
	Barriers       []metadata.ImageBarrier
}

type CommandBuffer struct {
	device       *Device
	handle       metadata.CommandBufferHandle
	state        commandBufferState
	pending      uint64
	commands     []Command
	inRenderPass bool
}

func (d *Device) CreateCommandBuffer() (metadata.CommandBuffer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	cb := &CommandBuffer{
		device: d,
		handle: metadata.CommandBufferHandle(d.alloc(KindCommandBuffer)),
	}
	d.cbs[cb.handle] = cb
	return cb, nil
}

func (d *Device) FreeCommandBuffer(cb metadata.CommandBuffer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	h, ok := cb.(*CommandBuffer)
	if !ok {
		return
	}
	if h.state == statePending {
		d.violate("free of command buffer %d while pending", h.handle)
	}
	if d.release(KindCommandBuffer, uint64(h.handle)) {
		delete(d.cbs, h.handle)
	}
}

func (cb *CommandBuffer) Handle() metadata.CommandBufferHandle {
	return cb.handle
}

// Commands returns a copy of the current recording.
func (cb *CommandBuffer) Commands() []Command {
	cb.device.mu.Lock()
	defer cb.device.mu.Unlock()
	return append([]Command(nil), cb.commands...)
}

func (cb *CommandBuffer) Reset() error {
	cb.device.mu.Lock()
	defer cb.device.mu.Unlock()
	if cb.state == statePending {
		return cb.device.violate("reset of command buffer %d while pending", cb.handle)
	}
	cb.commands = nil
	cb.inRenderPass = false
	cb.state = stateInitial
	return nil
}

func (cb *CommandBuffer) Begin() error {
	cb.device.mu.Lock()
	defer cb.device.mu.Unlock()
	if cb.state == statePending || cb.state == stateRecording {
		return cb.device.violate("begin of command buffer %d in state %s", cb.handle, cb.state)
	}
	cb.commands = nil
	cb.state = stateRecording
	return nil
}

func (cb *CommandBuffer) End() error {
	cb.device.mu.Lock()
	defer cb.device.mu.Unlock()
	if cb.state != stateRecording {
		return cb.device.violate("end of command buffer %d in state %s", cb.handle, cb.state)
	}
	if cb.inRenderPass {
		return cb.device.violate("end of command buffer %d inside a render pass", cb.handle)
	}
	cb.state = stateExecutable
	return nil
}

func (cb *CommandBuffer) record(c Command) {
	cb.device.mu.Lock()
	defer cb.device.mu.Unlock()
	if cb.state != stateRecording {
		cb.device.violate("%s recorded into command buffer %d in state %s", c.Op, cb.handle, cb.state)
		return
	}
	switch c.Op {
	case OpBeginRenderPass:
		if cb.inRenderPass {
			cb.device.violate("nested render pass in command buffer %d", cb.handle)
		}
		cb.inRenderPass = true
	case OpEndRenderPass:
		if !cb.inRenderPass {
			cb.device.violate("end render pass outside a render pass in command buffer %d", cb.handle)
		}
		cb.inRenderPass = false
	case OpDraw, OpDrawIndexed:
		if !cb.inRenderPass {
			cb.device.violate("draw outside a render pass in command buffer %d", cb.handle)
		}
	case OpDispatch, OpPipelineBarrier:
		if cb.inRenderPass {
			cb.device.violate("%s inside a render pass in command buffer %d", c.Op, cb.handle)
		}
	}
	cb.commands = append(cb.commands, c)
}

func (cb *CommandBuffer) BeginRenderPass(info metadata.RenderPassBeginInfo) {
	cb.record(Command{
		Op:          OpBeginRenderPass,
		RenderPass:  info.RenderPass,
		Framebuffer: info.Framebuffer,
		Extent:      info.Extent,
		Clear:       append([]metadata.ClearValue(nil), info.Clear...),
	})
}

func (cb *CommandBuffer) EndRenderPass() {
	cb.record(Command{Op: OpEndRenderPass})
}

func (cb *CommandBuffer) SetViewport(viewport metadata.Viewport) {
	cb.record(Command{Op: OpSetViewport, Viewport: viewport})
}

func (cb *CommandBuffer) SetScissor(extent metadata.Extent2D) {
	cb.record(Command{Op: OpSetScissor, Extent: extent})
}

func (cb *CommandBuffer) BindPipeline(kind metadata.PipelineKind, pipeline metadata.PipelineHandle) {
	cb.record(Command{Op: OpBindPipeline, Kind: kind, Pipeline: pipeline})
}

func (cb *CommandBuffer) BindDescriptorSets(kind metadata.PipelineKind, layout metadata.PipelineLayoutHandle, firstSet uint32, sets []metadata.DescriptorSetHandle, dynamicOffsets []uint32) {
	cb.device.checkBound(cb.handle, sets)
	cb.record(Command{
		Op:             OpBindDescriptorSets,
		Kind:           kind,
		Layout:         layout,
		FirstSet:       firstSet,
		Sets:           append([]metadata.DescriptorSetHandle(nil), sets...),
		DynamicOffsets: append([]uint32(nil), dynamicOffsets...),
	})
}

func (cb *CommandBuffer) PushConstants(layout metadata.PipelineLayoutHandle, stages metadata.ShaderStage, offset uint32, data []byte) {
	cb.record(Command{
		Op:     OpPushConstants,
		Layout: layout,
		Stages: stages,
		Offset: uint64(offset),
		Data:   append([]byte(nil), data...),
	})
}

func (cb *CommandBuffer) BindVertexBuffer(buffer metadata.BufferHandle, offset uint64) {
	cb.record(Command{Op: OpBindVertexBuffer, Buffer: buffer, Offset: offset})
}

func (cb *CommandBuffer) BindIndexBuffer(buffer metadata.BufferHandle, offset uint64) {
	cb.record(Command{Op: OpBindIndexBuffer, Buffer: buffer, Offset: offset})
}

func (cb *CommandBuffer) Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32) {
	cb.record(Command{Op: OpDraw, Counts: [4]uint32{vertexCount, instanceCount, firstVertex, firstInstance}})
}

func (cb *CommandBuffer) DrawIndexed(indexCount, instanceCount, firstIndex uint32, vertexOffset int32, firstInstance uint32) {
	cb.record(Command{
		Op:           OpDrawIndexed,
		Counts:       [4]uint32{indexCount, instanceCount, firstIndex, firstInstance},
		VertexOffset: vertexOffset,
	})
}

func (cb *CommandBuffer) Dispatch(x, y, z uint32) {
	cb.record(Command{Op: OpDispatch, Counts: [4]uint32{x, y, z, 0}})
}

func (cb *CommandBuffer) PipelineBarrier(barriers []metadata.ImageBarrier) {
	cb.record(Command{Op: OpPipelineBarrier, Barriers: append([]metadata.ImageBarrier(nil), barriers...)})
}

func (c Command) String() string {
	return fmt.Sprintf("%s%v", c.Op, c.Counts)
}

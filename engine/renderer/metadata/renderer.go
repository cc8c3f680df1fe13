package metadata

type AttachmentKind uint32

const (
	AttachmentKindColor AttachmentKind = iota
	AttachmentKindDepth
	// Storage attachments are written by compute and never bound to a
	// render pass object.
	AttachmentKindStorage
)

/** @brief Describes one output image of a render pass. */
type AttachmentSpec struct {
	/** @brief Debug name, also used to look the attachment up. */
	Name   string
	Kind   AttachmentKind
	Format Format
	Usage  ImageUsage
	/** @brief Sample count. Zero means one sample. */
	Samples       SampleCount
	InitialLayout ImageLayout
	FinalLayout   ImageLayout
	LoadOp        LoadOp
	StoreOp       StoreOp
	Clear         ClearValue
	/** @brief Overrides the pass extent when non zero. Depth > 1 makes a 3D image. */
	Extent Extent3D
	/** @brief Mip levels of a storage attachment, clamped to the extent. Zero means one. */
	Mips uint32
	/** @brief The attachment is the acquired swapchain image. Only valid on the default pass. */
	Swapchain bool
}

type BufferUsage uint32

const (
	BufferUsageUniform BufferUsage = 1 << iota
	BufferUsageStorage
	BufferUsageVertex
	BufferUsageIndex
	BufferUsageTransferDst
)

type BufferCreateInfo struct {
	Name  string
	Size  uint64
	Usage BufferUsage
	// HostVisible buffers are persistently mapped and written with WriteBuffer.
	HostVisible bool
}

type RenderPassCreateInfo struct {
	Name        string
	Attachments []AttachmentSpec
}

type FramebufferCreateInfo struct {
	RenderPass  RenderPassHandle
	Attachments []ImageViewHandle
	Extent      Extent2D
	Layers      uint32
}

type PipelineKind uint32

const (
	PipelineKindGraphics PipelineKind = iota
	PipelineKindCompute
)

type ShaderStage uint32

const (
	ShaderStageVertex ShaderStage = 1 << iota
	ShaderStageFragment
	ShaderStageCompute
	ShaderStageAll = ShaderStageVertex | ShaderStageFragment | ShaderStageCompute
)

type ShaderModule struct {
	Stage ShaderStage
	// Name is resolved through the shader source when Code is empty.
	Name  string
	Entry string
	Code  []byte
}

type VertexLayout uint32

const (
	// No vertex input, the shader generates its own vertices.
	VertexLayoutNone VertexLayout = iota
	// Position and uv packed in a vec4, used by the shared quad.
	VertexLayoutQuad
	// Position, normal, uv and tangent.
	VertexLayoutMesh
)

type CullMode uint32

const (
	CullModeNone CullMode = iota
	CullModeBack
	CullModeFront
)

type PipelineCreateInfo struct {
	Name             string
	Kind             PipelineKind
	RenderPass       RenderPassHandle
	Layouts          []DescriptorLayoutHandle
	PushConstantSize uint32
	Stages           []ShaderModule
	VertexLayout     VertexLayout
	CullMode         CullMode
	DepthTest        bool
	DepthWrite       bool
	ColorAttachments int
	Blend            bool
	// DepthBias is used by shadow pipelines to fight acne.
	DepthBias bool
}

type PresentStatus uint32

const (
	PresentStatusOK PresentStatus = iota
	// The swapchain still works but no longer matches the surface.
	PresentStatusSuboptimal
	// The swapchain can no longer be used and must be recreated.
	PresentStatusOutOfDate
)

// Stale reports whether the swapchain should be recreated.
func (s PresentStatus) Stale() bool {
	return s != PresentStatusOK
}

type SubmitInfo struct {
	CommandBuffer CommandBuffer
	Wait          []SemaphoreHandle
	Signal        []SemaphoreHandle
	Fence         FenceHandle
}

type DeviceLimits struct {
	MinUniformBufferOffsetAlignment uint64
	MaxPushConstantsSize            uint32
	MaxBoundDescriptorSets          uint32
	// SupportsAccelerationStructures tells whether acceleration structure
	// descriptors can be created on the device.
	SupportsAccelerationStructures bool
}

// GraphicsDevice owns the logical device, the queue, the memory allocations
// and the swapchain. Every GPU object in the renderer is created and destroyed
// through it.
type GraphicsDevice interface {
	CreateImage(info ImageCreateInfo) (ImageHandle, error)
	CreateImageView(image ImageHandle, info ImageViewCreateInfo) (ImageViewHandle, error)
	// WriteImage uploads data to mip 0 and leaves the image in the shader
	// read only layout.
	WriteImage(image ImageHandle, info ImageCreateInfo, data []byte) error
	DestroyImageView(view ImageViewHandle)
	DestroyImage(image ImageHandle)

	CreateSampler(info SamplerCreateInfo) (SamplerHandle, error)
	DestroySampler(sampler SamplerHandle)

	CreateBuffer(info BufferCreateInfo) (BufferHandle, error)
	WriteBuffer(buffer BufferHandle, offset uint64, data []byte) error
	DestroyBuffer(buffer BufferHandle)

	CreateRenderPass(info RenderPassCreateInfo) (RenderPassHandle, error)
	DestroyRenderPass(renderPass RenderPassHandle)
	CreateFramebuffer(info FramebufferCreateInfo) (FramebufferHandle, error)
	DestroyFramebuffer(framebuffer FramebufferHandle)

	CreateDescriptorPool(info DescriptorPoolCreateInfo) (DescriptorPoolHandle, error)
	DestroyDescriptorPool(pool DescriptorPoolHandle)
	CreateDescriptorLayout(bindings []DescriptorBinding) (DescriptorLayoutHandle, error)
	DestroyDescriptorLayout(layout DescriptorLayoutHandle)
	AllocateDescriptorSet(pool DescriptorPoolHandle, layout DescriptorLayoutHandle, variableCount uint32) (DescriptorSetHandle, error)
	UpdateDescriptorSet(set DescriptorSetHandle, writes []DescriptorWrite) error

	CreatePipeline(info PipelineCreateInfo) (PipelineHandle, PipelineLayoutHandle, error)
	DestroyPipeline(pipeline PipelineHandle, layout PipelineLayoutHandle)

	CreateCommandBuffer() (CommandBuffer, error)
	FreeCommandBuffer(cb CommandBuffer)

	CreateFence(signaled bool) (FenceHandle, error)
	WaitFence(fence FenceHandle) error
	ResetFence(fence FenceHandle) error
	DestroyFence(fence FenceHandle)
	CreateSemaphore() (SemaphoreHandle, error)
	DestroySemaphore(semaphore SemaphoreHandle)

	Submit(info SubmitInfo) error

	SwapchainViews() []ImageViewHandle
	SwapchainFormat() Format
	SwapchainExtent() Extent2D
	AcquirePresentImage(signal SemaphoreHandle) (uint32, PresentStatus, error)
	PresentImage(index uint32, wait SemaphoreHandle) (PresentStatus, error)
	RecreateSwapchain(extent Extent2D) error

	WaitIdle() error
	Limits() DeviceLimits
	Destroy()
}

type Viewport struct {
	X, Y, Width, Height float32
	MinDepth, MaxDepth  float32
}

type RenderPassBeginInfo struct {
	RenderPass  RenderPassHandle
	Framebuffer FramebufferHandle
	Extent      Extent2D
	Clear       []ClearValue
}

// CommandBuffer records GPU work. A command buffer is recorded on one thread
// only.
type CommandBuffer interface {
	Handle() CommandBufferHandle
	Reset() error
	Begin() error
	End() error

	BeginRenderPass(info RenderPassBeginInfo)
	EndRenderPass()
	SetViewport(viewport Viewport)
	SetScissor(extent Extent2D)

	BindPipeline(kind PipelineKind, pipeline PipelineHandle)
	BindDescriptorSets(kind PipelineKind, layout PipelineLayoutHandle, firstSet uint32, sets []DescriptorSetHandle, dynamicOffsets []uint32)
	PushConstants(layout PipelineLayoutHandle, stages ShaderStage, offset uint32, data []byte)
	BindVertexBuffer(buffer BufferHandle, offset uint64)
	BindIndexBuffer(buffer BufferHandle, offset uint64)

	Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32)
	DrawIndexed(indexCount, instanceCount, firstIndex uint32, vertexOffset int32, firstInstance uint32)
	Dispatch(x, y, z uint32)
	PipelineBarrier(barriers []ImageBarrier)
}

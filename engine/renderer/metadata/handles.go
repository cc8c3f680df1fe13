package metadata

// GPU object handles. They are opaque to everything above the device and only
// valid for the lifetime of the device that created them. The zero value is
// never a valid handle.
type (
	ImageHandle                 uint64
	ImageViewHandle             uint64
	SamplerHandle               uint64
	BufferHandle                uint64
	RenderPassHandle            uint64
	FramebufferHandle           uint64
	PipelineHandle              uint64
	PipelineLayoutHandle        uint64
	DescriptorPoolHandle        uint64
	DescriptorLayoutHandle      uint64
	DescriptorSetHandle         uint64
	CommandBufferHandle         uint64
	FenceHandle                 uint64
	SemaphoreHandle             uint64
	AccelerationStructureHandle uint64
)

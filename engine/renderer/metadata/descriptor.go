package metadata

type DescriptorType uint32

const (
	DescriptorTypeUniformBuffer DescriptorType = iota
	DescriptorTypeUniformBufferDynamic
	DescriptorTypeStorageBuffer
	DescriptorTypeCombinedImageSampler
	DescriptorTypeSampledImage
	DescriptorTypeStorageImage
	DescriptorTypeInputAttachment
	DescriptorTypeAccelerationStructure
)

var descriptorTypeNames = [...]string{
	"uniform_buffer", "uniform_buffer_dynamic", "storage_buffer", "combined_image_sampler",
	"sampled_image", "storage_image", "input_attachment", "acceleration_structure",
}

func (t DescriptorType) String() string {
	if int(t) < len(descriptorTypeNames) {
		return descriptorTypeNames[t]
	}
	return "unknown"
}

func (t DescriptorType) IsBuffer() bool {
	switch t {
	case DescriptorTypeUniformBuffer, DescriptorTypeUniformBufferDynamic, DescriptorTypeStorageBuffer:
		return true
	}
	return false
}

func (t DescriptorType) IsImage() bool {
	switch t {
	case DescriptorTypeCombinedImageSampler, DescriptorTypeSampledImage,
		DescriptorTypeStorageImage, DescriptorTypeInputAttachment:
		return true
	}
	return false
}

func (t DescriptorType) IsDynamic() bool {
	return t == DescriptorTypeUniformBufferDynamic
}

type DescriptorBinding struct {
	Binding uint32
	Type    DescriptorType
	// Count is the array size. For a variable binding it is the upper bound.
	Count  uint32
	Stages ShaderStage
	// Variable marks a runtime sized array. Only the last binding of a
	// layout can be variable.
	Variable bool
}

type PoolSize struct {
	Type  DescriptorType
	Count uint32
}

type DescriptorPoolCreateInfo struct {
	Name    string
	MaxSets uint32
	Sizes   []PoolSize
}

// DescriptorResource is what a binding points to. Buffer bindings use Buffer,
// Offset and Range; image bindings use View, Sampler and Layout.
type DescriptorResource struct {
	Buffer                BufferHandle
	Offset                uint64
	Range                 uint64
	View                  ImageViewHandle
	Sampler               SamplerHandle
	Layout                ImageLayout
	AccelerationStructure AccelerationStructureHandle
}

func (r DescriptorResource) IsZero() bool {
	return r == DescriptorResource{}
}

type DescriptorWrite struct {
	Binding      uint32
	ArrayElement uint32
	Type         DescriptorType
	Resource     DescriptorResource
}

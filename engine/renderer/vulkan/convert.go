package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/renderer/metadata"
)

// VK_DESCRIPTOR_TYPE_ACCELERATION_STRUCTURE_KHR
const descriptorTypeAccelerationStructure vk.DescriptorType = 1000150000

var formats = map[metadata.Format]vk.Format{
	metadata.FormatR8Unorm:        vk.FormatR8Unorm,
	metadata.FormatR32Float:       vk.FormatR32Sfloat,
	metadata.FormatRG16Float:      vk.FormatR16g16Sfloat,
	metadata.FormatRGBA8Unorm:     vk.FormatR8g8b8a8Unorm,
	metadata.FormatRGBA8Srgb:      vk.FormatR8g8b8a8Srgb,
	metadata.FormatBGRA8Unorm:     vk.FormatB8g8r8a8Unorm,
	metadata.FormatBGRA8Srgb:      vk.FormatB8g8r8a8Srgb,
	metadata.FormatRGBA16Float:    vk.FormatR16g16b16a16Sfloat,
	metadata.FormatRGBA32Float:    vk.FormatR32g32b32a32Sfloat,
	metadata.FormatD32Float:       vk.FormatD32Sfloat,
	metadata.FormatD24UnormS8Uint: vk.FormatD24UnormS8Uint,
}

func vkFormat(f metadata.Format) (vk.Format, error) {
	if vf, ok := formats[f]; ok {
		return vf, nil
	}
	return vk.FormatUndefined, fmt.Errorf("format %d: %w", f, core.ErrUnsupportedFormat)
}

func formatFromVk(vf vk.Format) metadata.Format {
	for f, v := range formats {
		if v == vf {
			return f
		}
	}
	return metadata.FormatUndefined
}

var layouts = [...]vk.ImageLayout{
	metadata.ImageLayoutUndefined:       vk.ImageLayoutUndefined,
	metadata.ImageLayoutGeneral:         vk.ImageLayoutGeneral,
	metadata.ImageLayoutColorAttachment: vk.ImageLayoutColorAttachmentOptimal,
	metadata.ImageLayoutDepthAttachment: vk.ImageLayoutDepthStencilAttachmentOptimal,
	metadata.ImageLayoutShaderReadOnly:  vk.ImageLayoutShaderReadOnlyOptimal,
	metadata.ImageLayoutTransferSrc:     vk.ImageLayoutTransferSrcOptimal,
	metadata.ImageLayoutTransferDst:     vk.ImageLayoutTransferDstOptimal,
	metadata.ImageLayoutPresentSrc:      vk.ImageLayoutPresentSrc,
}

func vkLayout(l metadata.ImageLayout) vk.ImageLayout {
	if int(l) < len(layouts) {
		return layouts[l]
	}
	return vk.ImageLayoutUndefined
}

func vkImageUsage(u metadata.ImageUsage) vk.ImageUsageFlags {
	var flags vk.ImageUsageFlagBits
	if u.Has(metadata.ImageUsageColorAttachment) {
		flags |= vk.ImageUsageColorAttachmentBit
	}
	if u.Has(metadata.ImageUsageDepthAttachment) {
		flags |= vk.ImageUsageDepthStencilAttachmentBit
	}
	if u.Has(metadata.ImageUsageSampled) {
		flags |= vk.ImageUsageSampledBit
	}
	if u.Has(metadata.ImageUsageStorage) {
		flags |= vk.ImageUsageStorageBit
	}
	if u.Has(metadata.ImageUsageTransferSrc) {
		flags |= vk.ImageUsageTransferSrcBit
	}
	if u.Has(metadata.ImageUsageTransferDst) {
		flags |= vk.ImageUsageTransferDstBit
	}
	if u.Has(metadata.ImageUsageInputAttachment) {
		flags |= vk.ImageUsageInputAttachmentBit
	}
	return vk.ImageUsageFlags(flags)
}

func vkBufferUsage(u metadata.BufferUsage) vk.BufferUsageFlags {
	var flags vk.BufferUsageFlagBits
	if u&metadata.BufferUsageUniform != 0 {
		flags |= vk.BufferUsageUniformBufferBit
	}
	if u&metadata.BufferUsageStorage != 0 {
		flags |= vk.BufferUsageStorageBufferBit
	}
	if u&metadata.BufferUsageVertex != 0 {
		flags |= vk.BufferUsageVertexBufferBit
	}
	if u&metadata.BufferUsageIndex != 0 {
		flags |= vk.BufferUsageIndexBufferBit
	}
	if u&metadata.BufferUsageTransferDst != 0 {
		flags |= vk.BufferUsageTransferDstBit
	}
	return vk.BufferUsageFlags(flags)
}

func vkAspect(a metadata.ImageAspect) vk.ImageAspectFlags {
	var flags vk.ImageAspectFlagBits
	if a&metadata.ImageAspectColor != 0 {
		flags |= vk.ImageAspectColorBit
	}
	if a&metadata.ImageAspectDepth != 0 {
		flags |= vk.ImageAspectDepthBit
	}
	if a&metadata.ImageAspectStencil != 0 {
		flags |= vk.ImageAspectStencilBit
	}
	return vk.ImageAspectFlags(flags)
}

// aspectOf picks the aspect a whole image view of the format covers.
func aspectOf(f metadata.Format) metadata.ImageAspect {
	switch {
	case f.HasStencil():
		return metadata.ImageAspectDepth | metadata.ImageAspectStencil
	case f.IsDepth():
		return metadata.ImageAspectDepth
	default:
		return metadata.ImageAspectColor
	}
}

func vkSamples(s metadata.SampleCount) vk.SampleCountFlagBits {
	switch s {
	case metadata.SampleCount2:
		return vk.SampleCount2Bit
	case metadata.SampleCount4:
		return vk.SampleCount4Bit
	case metadata.SampleCount8:
		return vk.SampleCount8Bit
	default:
		return vk.SampleCount1Bit
	}
}

func vkLoadOp(op metadata.LoadOp) vk.AttachmentLoadOp {
	switch op {
	case metadata.LoadOpLoad:
		return vk.AttachmentLoadOpLoad
	case metadata.LoadOpDontCare:
		return vk.AttachmentLoadOpDontCare
	default:
		return vk.AttachmentLoadOpClear
	}
}

func vkStoreOp(op metadata.StoreOp) vk.AttachmentStoreOp {
	if op == metadata.StoreOpDontCare {
		return vk.AttachmentStoreOpDontCare
	}
	return vk.AttachmentStoreOpStore
}

func vkDescriptorType(t metadata.DescriptorType) vk.DescriptorType {
	switch t {
	case metadata.DescriptorTypeUniformBufferDynamic:
		return vk.DescriptorTypeUniformBufferDynamic
	case metadata.DescriptorTypeStorageBuffer:
		return vk.DescriptorTypeStorageBuffer
	case metadata.DescriptorTypeCombinedImageSampler:
		return vk.DescriptorTypeCombinedImageSampler
	case metadata.DescriptorTypeSampledImage:
		return vk.DescriptorTypeSampledImage
	case metadata.DescriptorTypeStorageImage:
		return vk.DescriptorTypeStorageImage
	case metadata.DescriptorTypeInputAttachment:
		return vk.DescriptorTypeInputAttachment
	case metadata.DescriptorTypeAccelerationStructure:
		return descriptorTypeAccelerationStructure
	default:
		return vk.DescriptorTypeUniformBuffer
	}
}

func vkStages(s metadata.ShaderStage) vk.ShaderStageFlags {
	var flags vk.ShaderStageFlagBits
	if s&metadata.ShaderStageVertex != 0 {
		flags |= vk.ShaderStageVertexBit
	}
	if s&metadata.ShaderStageFragment != 0 {
		flags |= vk.ShaderStageFragmentBit
	}
	if s&metadata.ShaderStageCompute != 0 {
		flags |= vk.ShaderStageComputeBit
	}
	return vk.ShaderStageFlags(flags)
}

func vkBindPoint(kind metadata.PipelineKind) vk.PipelineBindPoint {
	if kind == metadata.PipelineKindCompute {
		return vk.PipelineBindPointCompute
	}
	return vk.PipelineBindPointGraphics
}

// layoutAccess returns the access mask and the pipeline stages that touch an
// image in the given layout. Barriers are built from a pair of them.
func layoutAccess(l metadata.ImageLayout) (vk.AccessFlags, vk.PipelineStageFlags) {
	switch l {
	case metadata.ImageLayoutGeneral:
		return vk.AccessFlags(vk.AccessShaderReadBit | vk.AccessShaderWriteBit),
			vk.PipelineStageFlags(vk.PipelineStageComputeShaderBit | vk.PipelineStageFragmentShaderBit)
	case metadata.ImageLayoutColorAttachment:
		return vk.AccessFlags(vk.AccessColorAttachmentReadBit | vk.AccessColorAttachmentWriteBit),
			vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit)
	case metadata.ImageLayoutDepthAttachment:
		return vk.AccessFlags(vk.AccessDepthStencilAttachmentReadBit | vk.AccessDepthStencilAttachmentWriteBit),
			vk.PipelineStageFlags(vk.PipelineStageEarlyFragmentTestsBit | vk.PipelineStageLateFragmentTestsBit)
	case metadata.ImageLayoutShaderReadOnly:
		return vk.AccessFlags(vk.AccessShaderReadBit),
			vk.PipelineStageFlags(vk.PipelineStageFragmentShaderBit | vk.PipelineStageComputeShaderBit)
	case metadata.ImageLayoutTransferSrc:
		return vk.AccessFlags(vk.AccessTransferReadBit), vk.PipelineStageFlags(vk.PipelineStageTransferBit)
	case metadata.ImageLayoutTransferDst:
		return vk.AccessFlags(vk.AccessTransferWriteBit), vk.PipelineStageFlags(vk.PipelineStageTransferBit)
	case metadata.ImageLayoutPresentSrc:
		return vk.AccessFlags(vk.AccessMemoryReadBit), vk.PipelineStageFlags(vk.PipelineStageBottomOfPipeBit)
	default:
		return 0, vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit)
	}
}

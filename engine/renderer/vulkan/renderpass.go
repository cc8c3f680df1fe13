package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/renderer/metadata"
)

// CreateRenderPass builds a single subpass render pass from the color and
// depth attachments of the list. Storage attachments are skipped, they are
// never bound to a render pass. Framebuffers list their views in the same
// order.
func (d *Device) CreateRenderPass(info metadata.RenderPassCreateInfo) (metadata.RenderPassHandle, error) {
	var (
		attachmentDescriptions []vk.AttachmentDescription
		colorRefs              []vk.AttachmentReference
		depthRef               *vk.AttachmentReference
	)
	for _, a := range info.Attachments {
		if a.Kind == metadata.AttachmentKindStorage {
			continue
		}
		format, err := vkFormat(a.Format)
		if err != nil {
			return 0, fmt.Errorf("create render pass `%s`, attachment `%s`: %w", info.Name, a.Name, err)
		}
		description := vk.AttachmentDescription{
			Format:         format,
			Samples:        vkSamples(a.Samples),
			LoadOp:         vkLoadOp(a.LoadOp),
			StoreOp:        vkStoreOp(a.StoreOp),
			StencilLoadOp:  vk.AttachmentLoadOpDontCare,
			StencilStoreOp: vk.AttachmentStoreOpDontCare,
			InitialLayout:  vkLayout(a.InitialLayout),
			FinalLayout:    vkLayout(a.FinalLayout),
		}
		index := uint32(len(attachmentDescriptions))
		if a.Kind == metadata.AttachmentKindDepth {
			if depthRef != nil {
				return 0, fmt.Errorf("render pass `%s` has more than one depth attachment", info.Name)
			}
			if a.Format.HasStencil() {
				description.StencilLoadOp = description.LoadOp
				description.StencilStoreOp = description.StoreOp
			}
			depthRef = &vk.AttachmentReference{Attachment: index, Layout: vk.ImageLayoutDepthStencilAttachmentOptimal}
		} else {
			colorRefs = append(colorRefs, vk.AttachmentReference{Attachment: index, Layout: vk.ImageLayoutColorAttachmentOptimal})
		}
		attachmentDescriptions = append(attachmentDescriptions, description)
	}

	subpass := vk.SubpassDescription{
		PipelineBindPoint:       vk.PipelineBindPointGraphics,
		ColorAttachmentCount:    uint32(len(colorRefs)),
		PColorAttachments:       colorRefs,
		PDepthStencilAttachment: depthRef,
	}

	// Outputs of a pass are sampled by the passes after it.
	attachmentStages := vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit | vk.PipelineStageEarlyFragmentTestsBit | vk.PipelineStageLateFragmentTestsBit)
	attachmentAccess := vk.AccessFlags(vk.AccessColorAttachmentWriteBit | vk.AccessDepthStencilAttachmentWriteBit)
	dependencies := []vk.SubpassDependency{
		{
			SrcSubpass:      vk.SubpassExternal,
			DstSubpass:      0,
			SrcStageMask:    vk.PipelineStageFlags(vk.PipelineStageFragmentShaderBit | vk.PipelineStageComputeShaderBit),
			SrcAccessMask:   vk.AccessFlags(vk.AccessShaderReadBit),
			DstStageMask:    attachmentStages,
			DstAccessMask:   attachmentAccess,
			DependencyFlags: vk.DependencyFlags(vk.DependencyByRegionBit),
		},
		{
			SrcSubpass:      0,
			DstSubpass:      vk.SubpassExternal,
			SrcStageMask:    attachmentStages,
			SrcAccessMask:   attachmentAccess,
			DstStageMask:    vk.PipelineStageFlags(vk.PipelineStageFragmentShaderBit | vk.PipelineStageComputeShaderBit),
			DstAccessMask:   vk.AccessFlags(vk.AccessShaderReadBit),
			DependencyFlags: vk.DependencyFlags(vk.DependencyByRegionBit),
		},
	}

	renderpassCreateInfo := vk.RenderPassCreateInfo{
		SType:           vk.StructureTypeRenderPassCreateInfo,
		AttachmentCount: uint32(len(attachmentDescriptions)),
		PAttachments:    attachmentDescriptions,
		SubpassCount:    1,
		PSubpasses:      []vk.SubpassDescription{subpass},
		DependencyCount: uint32(len(dependencies)),
		PDependencies:   dependencies,
	}

	created := renderPass{depth: -1}
	if depthRef != nil {
		created.depth = int(depthRef.Attachment)
	}
	if err := resultError("vkCreateRenderPass", vk.CreateRenderPass(d.logical, &renderpassCreateInfo, nil, &created.handle)); err != nil {
		return 0, fmt.Errorf("create render pass `%s`: %w", info.Name, err)
	}
	core.LogDebug("render pass `%s` created with %d attachments", info.Name, len(attachmentDescriptions))

	d.mu.Lock()
	defer d.mu.Unlock()
	h := d.handle()
	d.renderPasses.put(h, created)
	return metadata.RenderPassHandle(h), nil
}

func (d *Device) DestroyRenderPass(handle metadata.RenderPassHandle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if rp, ok := d.renderPasses.take(uint64(handle)); ok {
		vk.DestroyRenderPass(d.logical, rp.handle, nil)
	}
}

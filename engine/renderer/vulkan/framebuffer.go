package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/prism/engine/renderer/metadata"
)

func (d *Device) CreateFramebuffer(info metadata.FramebufferCreateInfo) (metadata.FramebufferHandle, error) {
	d.mu.Lock()
	renderPass, err := d.renderPasses.get(uint64(info.RenderPass))
	attachments := make([]vk.ImageView, len(info.Attachments))
	for i, h := range info.Attachments {
		if err != nil {
			break
		}
		var v view
		v, err = d.views.get(uint64(h))
		attachments[i] = v.handle
	}
	d.mu.Unlock()
	if err != nil {
		return 0, fmt.Errorf("create framebuffer: %w", err)
	}

	createInfo := vk.FramebufferCreateInfo{
		SType:           vk.StructureTypeFramebufferCreateInfo,
		RenderPass:      renderPass.handle,
		AttachmentCount: uint32(len(attachments)),
		PAttachments:    attachments,
		Width:           info.Extent.Width,
		Height:          info.Extent.Height,
		Layers:          max(info.Layers, 1),
	}
	var framebuffer vk.Framebuffer
	if err := resultError("vkCreateFramebuffer", vk.CreateFramebuffer(d.logical, &createInfo, nil, &framebuffer)); err != nil {
		return 0, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	h := d.handle()
	d.framebuffers.put(h, framebuffer)
	return metadata.FramebufferHandle(h), nil
}

func (d *Device) DestroyFramebuffer(handle metadata.FramebufferHandle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if fb, ok := d.framebuffers.take(uint64(handle)); ok {
		vk.DestroyFramebuffer(d.logical, fb, nil)
	}
}

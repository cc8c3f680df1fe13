package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/renderer/metadata"
)

func imageLayers(info metadata.ImageCreateInfo) uint32 {
	if info.Type == metadata.ImageTypeCube {
		return 6
	}
	return max(info.Layers, 1)
}

func (d *Device) CreateImage(info metadata.ImageCreateInfo) (metadata.ImageHandle, error) {
	format, err := vkFormat(info.Format)
	if err != nil {
		return 0, fmt.Errorf("create image `%s`: %w", info.Name, err)
	}
	createInfo := vk.ImageCreateInfo{
		SType:     vk.StructureTypeImageCreateInfo,
		ImageType: vk.ImageType2d,
		Format:    format,
		Extent: vk.Extent3D{
			Width:  info.Extent.Width,
			Height: info.Extent.Height,
			Depth:  max(info.Extent.Depth, 1),
		},
		MipLevels:     max(info.MipLevels, 1),
		ArrayLayers:   imageLayers(info),
		Samples:       vkSamples(info.Samples),
		Tiling:        vk.ImageTilingOptimal,
		Usage:         vkImageUsage(info.Usage),
		SharingMode:   vk.SharingModeExclusive,
		InitialLayout: vk.ImageLayoutUndefined,
	}
	switch info.Type {
	case metadata.ImageType3D:
		createInfo.ImageType = vk.ImageType3d
	case metadata.ImageTypeCube:
		createInfo.Flags = vk.ImageCreateFlags(vk.ImageCreateCubeCompatibleBit)
	}

	img := &image{info: info}
	if err := resultError("vkCreateImage", vk.CreateImage(d.logical, &createInfo, nil, &img.handle)); err != nil {
		return 0, fmt.Errorf("create image `%s`: %w", info.Name, err)
	}
	var reqs vk.MemoryRequirements
	vk.GetImageMemoryRequirements(d.logical, img.handle, &reqs)
	if img.memory, err = d.allocate(reqs, vk.MemoryPropertyDeviceLocalBit); err != nil {
		vk.DestroyImage(d.logical, img.handle, nil)
		return 0, fmt.Errorf("create image `%s`: %w", info.Name, err)
	}
	if err := resultError("vkBindImageMemory", vk.BindImageMemory(d.logical, img.handle, img.memory, 0)); err != nil {
		vk.FreeMemory(d.logical, img.memory, nil)
		vk.DestroyImage(d.logical, img.handle, nil)
		return 0, fmt.Errorf("create image `%s`: %w", info.Name, err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	h := d.handle()
	d.images.put(h, img)
	return metadata.ImageHandle(h), nil
}

func (d *Device) CreateImageView(handle metadata.ImageHandle, info metadata.ImageViewCreateInfo) (metadata.ImageViewHandle, error) {
	d.mu.Lock()
	img, err := d.images.get(uint64(handle))
	d.mu.Unlock()
	if err != nil {
		return 0, err
	}
	format, err := vkFormat(info.Format)
	if err != nil {
		return 0, err
	}
	viewType := vk.ImageViewType2d
	switch {
	case info.Type == metadata.ImageType3D:
		viewType = vk.ImageViewType3d
	case info.Type == metadata.ImageTypeCube:
		viewType = vk.ImageViewTypeCube
	case info.Layers > 1:
		viewType = vk.ImageViewType2dArray
	}
	layers := info.Layers
	if info.Type == metadata.ImageTypeCube {
		layers = 6
	}
	aspect := info.Aspect
	if aspect == 0 {
		aspect = aspectOf(info.Format)
	}
	createInfo := vk.ImageViewCreateInfo{
		SType:    vk.StructureTypeImageViewCreateInfo,
		Image:    img.handle,
		ViewType: viewType,
		Format:   format,
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask:     vkAspect(aspect),
			BaseMipLevel:   info.BaseMip,
			LevelCount:     max(info.MipCount, 1),
			BaseArrayLayer: info.BaseLayer,
			LayerCount:     max(layers, 1),
		},
	}
	var v vk.ImageView
	if err := resultError("vkCreateImageView", vk.CreateImageView(d.logical, &createInfo, nil, &v)); err != nil {
		return 0, fmt.Errorf("create view of `%s`: %w", img.info.Name, err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	h := d.handle()
	d.views.put(h, view{handle: v})
	return metadata.ImageViewHandle(h), nil
}

// WriteImage uploads data to mip 0 of every layer through a staging buffer
// and leaves the image in the shader read only layout. It waits for the
// copy to finish.
func (d *Device) WriteImage(handle metadata.ImageHandle, info metadata.ImageCreateInfo, data []byte) error {
	d.mu.Lock()
	img, err := d.images.get(uint64(handle))
	d.mu.Unlock()
	if err != nil {
		return err
	}
	staging, err := d.newBuffer(uint64(len(data)), vk.BufferUsageTransferSrcBit, true)
	if err != nil {
		return fmt.Errorf("write image `%s`: %w", info.Name, err)
	}
	defer d.freeBuffer(staging)
	copy(staging.mapped, data)

	aspect := vkAspect(aspectOf(info.Format))
	layers := imageLayers(info)
	subresource := vk.ImageSubresourceRange{
		AspectMask: aspect,
		LevelCount: max(info.MipLevels, 1),
		LayerCount: layers,
	}

	return d.singleUse(func(cb vk.CommandBuffer) {
		transition(cb, img.handle, subresource, metadata.ImageLayoutUndefined, metadata.ImageLayoutTransferDst)
		region := vk.BufferImageCopy{
			ImageSubresource: vk.ImageSubresourceLayers{
				AspectMask: aspect,
				LayerCount: layers,
			},
			ImageExtent: vk.Extent3D{
				Width:  info.Extent.Width,
				Height: info.Extent.Height,
				Depth:  max(info.Extent.Depth, 1),
			},
		}
		vk.CmdCopyBufferToImage(cb, staging.handle, img.handle, vk.ImageLayoutTransferDstOptimal, 1, []vk.BufferImageCopy{region})
		transition(cb, img.handle, subresource, metadata.ImageLayoutTransferDst, metadata.ImageLayoutShaderReadOnly)
	})
}

func transition(cb vk.CommandBuffer, img vk.Image, subresource vk.ImageSubresourceRange, from, to metadata.ImageLayout) {
	srcAccess, srcStage := layoutAccess(from)
	dstAccess, dstStage := layoutAccess(to)
	vk.CmdPipelineBarrier(cb, srcStage, dstStage, 0, 0, nil, 0, nil, 1, []vk.ImageMemoryBarrier{{
		SType:               vk.StructureTypeImageMemoryBarrier,
		SrcAccessMask:       srcAccess,
		DstAccessMask:       dstAccess,
		OldLayout:           vkLayout(from),
		NewLayout:           vkLayout(to),
		SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
		DstQueueFamilyIndex: vk.QueueFamilyIgnored,
		Image:               img,
		SubresourceRange:    subresource,
	}})
}

func (d *Device) DestroyImageView(handle metadata.ImageViewHandle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	v, ok := d.views.take(uint64(handle))
	if !ok {
		return
	}
	if v.swapchain {
		core.LogWarn("image view %d belongs to the swapchain and is not destroyed", handle)
		d.views.put(uint64(handle), v)
		return
	}
	vk.DestroyImageView(d.logical, v.handle, nil)
}

func (d *Device) DestroyImage(handle metadata.ImageHandle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	img, ok := d.images.take(uint64(handle))
	if !ok {
		return
	}
	vk.DestroyImage(d.logical, img.handle, nil)
	vk.FreeMemory(d.logical, img.memory, nil)
}

func (d *Device) CreateSampler(info metadata.SamplerCreateInfo) (metadata.SamplerHandle, error) {
	filter, mipmap := vk.FilterLinear, vk.SamplerMipmapModeLinear
	if info.Filter == metadata.FilterNearest {
		filter, mipmap = vk.FilterNearest, vk.SamplerMipmapModeNearest
	}
	address := vk.SamplerAddressModeRepeat
	switch info.AddressMode {
	case metadata.AddressModeClampToEdge:
		address = vk.SamplerAddressModeClampToEdge
	case metadata.AddressModeClampToBorder:
		address = vk.SamplerAddressModeClampToBorder
	}
	createInfo := vk.SamplerCreateInfo{
		SType:            vk.StructureTypeSamplerCreateInfo,
		MagFilter:        filter,
		MinFilter:        filter,
		MipmapMode:       mipmap,
		AddressModeU:     address,
		AddressModeV:     address,
		AddressModeW:     address,
		AnisotropyEnable: vk.False,
		MaxAnisotropy:    1,
		MaxLod:           info.MaxLod,
		BorderColor:      vk.BorderColorFloatOpaqueWhite,
		CompareOp:        vk.CompareOpAlways,
	}
	if info.Filter == metadata.FilterLinear && info.MaxLod > 0 {
		createInfo.AnisotropyEnable = vk.True
		createInfo.MaxAnisotropy = 16
	}
	if info.Compare {
		createInfo.CompareEnable = vk.True
		createInfo.CompareOp = vk.CompareOpLessOrEqual
	}
	var sampler vk.Sampler
	if err := resultError("vkCreateSampler", vk.CreateSampler(d.logical, &createInfo, nil, &sampler)); err != nil {
		return 0, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	h := d.handle()
	d.samplers.put(h, sampler)
	return metadata.SamplerHandle(h), nil
}

func (d *Device) DestroySampler(handle metadata.SamplerHandle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if s, ok := d.samplers.take(uint64(handle)); ok {
		vk.DestroySampler(d.logical, s, nil)
	}
}

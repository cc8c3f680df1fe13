package vulkan

import (
	"fmt"
	"math"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/renderer/metadata"
)

type VulkanSwapchain struct {
	Handle      vk.Swapchain
	ImageFormat vk.SurfaceFormat
	Extent      metadata.Extent2D
	Images      []vk.Image
	// Views are registered with the device so framebuffers can use them,
	// but only the swapchain destroys them.
	Views []metadata.ImageViewHandle
	// requested is the image count asked for, kept for recreation.
	requested int
}

type VulkanSwapchainSupportInfo struct {
	Capabilities vk.SurfaceCapabilities
	Formats      []vk.SurfaceFormat
	PresentModes []vk.PresentMode
}

func querySwapchainSupport(physicalDevice vk.PhysicalDevice, surface vk.Surface) (VulkanSwapchainSupportInfo, error) {
	var info VulkanSwapchainSupportInfo
	if err := resultError("vkGetPhysicalDeviceSurfaceCapabilities", vk.GetPhysicalDeviceSurfaceCapabilities(physicalDevice, surface, &info.Capabilities)); err != nil {
		return info, err
	}
	info.Capabilities.Deref()
	info.Capabilities.CurrentExtent.Deref()
	info.Capabilities.MinImageExtent.Deref()
	info.Capabilities.MaxImageExtent.Deref()

	var formatCount uint32
	if err := resultError("vkGetPhysicalDeviceSurfaceFormats", vk.GetPhysicalDeviceSurfaceFormats(physicalDevice, surface, &formatCount, nil)); err != nil {
		return info, err
	}
	if formatCount != 0 {
		info.Formats = make([]vk.SurfaceFormat, formatCount)
		if err := resultError("vkGetPhysicalDeviceSurfaceFormats", vk.GetPhysicalDeviceSurfaceFormats(physicalDevice, surface, &formatCount, info.Formats)); err != nil {
			return info, err
		}
		for i := range info.Formats {
			info.Formats[i].Deref()
		}
	}

	var modeCount uint32
	if err := resultError("vkGetPhysicalDeviceSurfacePresentModes", vk.GetPhysicalDeviceSurfacePresentModes(physicalDevice, surface, &modeCount, nil)); err != nil {
		return info, err
	}
	if modeCount != 0 {
		info.PresentModes = make([]vk.PresentMode, modeCount)
		if err := resultError("vkGetPhysicalDeviceSurfacePresentModes", vk.GetPhysicalDeviceSurfacePresentModes(physicalDevice, surface, &modeCount, info.PresentModes)); err != nil {
			return info, err
		}
	}
	return info, nil
}

func createSwapchain(d *Device, extent metadata.Extent2D, images int, old *VulkanSwapchain) (*VulkanSwapchain, error) {
	support, err := querySwapchainSupport(d.physical, d.surface)
	if err != nil {
		return nil, err
	}
	if len(support.Formats) == 0 {
		return nil, fmt.Errorf("surface reports no formats: %w", core.ErrUnsupportedFormat)
	}
	swapchain := &VulkanSwapchain{requested: images}

	// Choose a swap surface format.
	swapchain.ImageFormat = support.Formats[0]
	for _, format := range support.Formats {
		if format.Format == vk.FormatB8g8r8a8Unorm && format.ColorSpace == vk.ColorSpaceSrgbNonlinear {
			swapchain.ImageFormat = format
			break
		}
	}
	if formatFromVk(swapchain.ImageFormat.Format) == metadata.FormatUndefined {
		return nil, fmt.Errorf("swapchain format %d: %w", swapchain.ImageFormat.Format, core.ErrUnsupportedFormat)
	}

	presentMode := vk.PresentModeFifo
	for _, mode := range support.PresentModes {
		if mode == vk.PresentModeMailbox {
			presentMode = mode
			break
		}
	}

	// Swapchain extent
	caps := support.Capabilities
	swapchainExtent := vk.Extent2D{Width: extent.Width, Height: extent.Height}
	if caps.CurrentExtent.Width != math.MaxUint32 {
		swapchainExtent = caps.CurrentExtent
	}
	// Clamp to the value allowed by the GPU.
	swapchainExtent.Width = clamp(swapchainExtent.Width, caps.MinImageExtent.Width, caps.MaxImageExtent.Width)
	swapchainExtent.Height = clamp(swapchainExtent.Height, caps.MinImageExtent.Height, caps.MaxImageExtent.Height)
	if swapchainExtent.Width == 0 || swapchainExtent.Height == 0 {
		return nil, fmt.Errorf("surface has no drawable area: %w", core.ErrSwapchainBooting)
	}

	imageCount := uint32(max(images, 1))
	if imageCount < caps.MinImageCount {
		imageCount = caps.MinImageCount
	}
	if caps.MaxImageCount > 0 && imageCount > caps.MaxImageCount {
		imageCount = caps.MaxImageCount
	}

	createInfo := vk.SwapchainCreateInfo{
		SType:            vk.StructureTypeSwapchainCreateInfo,
		Surface:          d.surface,
		MinImageCount:    imageCount,
		ImageFormat:      swapchain.ImageFormat.Format,
		ImageColorSpace:  swapchain.ImageFormat.ColorSpace,
		ImageExtent:      swapchainExtent,
		ImageArrayLayers: 1,
		ImageUsage:       vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit | vk.ImageUsageTransferDstBit),
		PreTransform:     caps.CurrentTransform,
		CompositeAlpha:   vk.CompositeAlphaOpaqueBit,
		PresentMode:      presentMode,
		Clipped:          vk.True,
		ImageSharingMode: vk.SharingModeExclusive,
	}
	if d.graphicsQueueIndex != d.presentQueueIndex {
		createInfo.ImageSharingMode = vk.SharingModeConcurrent
		createInfo.QueueFamilyIndexCount = 2
		createInfo.PQueueFamilyIndices = []uint32{d.graphicsQueueIndex, d.presentQueueIndex}
	}
	if old != nil {
		createInfo.OldSwapchain = old.Handle
	}

	if err := resultError("vkCreateSwapchain", vk.CreateSwapchain(d.logical, &createInfo, nil, &swapchain.Handle)); err != nil {
		return nil, err
	}
	swapchain.Extent = metadata.Extent2D{Width: swapchainExtent.Width, Height: swapchainExtent.Height}

	var count uint32
	if err := resultError("vkGetSwapchainImages", vk.GetSwapchainImages(d.logical, swapchain.Handle, &count, nil)); err != nil {
		swapchain.destroy(d)
		return nil, err
	}
	swapchain.Images = make([]vk.Image, count)
	if err := resultError("vkGetSwapchainImages", vk.GetSwapchainImages(d.logical, swapchain.Handle, &count, swapchain.Images)); err != nil {
		swapchain.destroy(d)
		return nil, err
	}

	raw := make([]vk.ImageView, 0, count)
	for _, img := range swapchain.Images {
		viewInfo := vk.ImageViewCreateInfo{
			SType:    vk.StructureTypeImageViewCreateInfo,
			Image:    img,
			ViewType: vk.ImageViewType2d,
			Format:   swapchain.ImageFormat.Format,
			SubresourceRange: vk.ImageSubresourceRange{
				AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit),
				LevelCount: 1,
				LayerCount: 1,
			},
		}
		var v vk.ImageView
		if err := resultError("vkCreateImageView", vk.CreateImageView(d.logical, &viewInfo, nil, &v)); err != nil {
			for _, created := range raw {
				vk.DestroyImageView(d.logical, created, nil)
			}
			swapchain.destroy(d)
			return nil, err
		}
		raw = append(raw, v)
	}
	d.mu.Lock()
	for _, v := range raw {
		h := d.handle()
		d.views.put(h, view{handle: v, swapchain: true})
		swapchain.Views = append(swapchain.Views, metadata.ImageViewHandle(h))
	}
	d.mu.Unlock()

	core.LogInfo("Swapchain created with %d images at %dx%d.", count, swapchain.Extent.Width, swapchain.Extent.Height)
	return swapchain, nil
}

func (vs *VulkanSwapchain) destroy(d *Device) {
	d.mu.Lock()
	// Only destroy the views, not the images, since those are owned by the
	// swapchain and are destroyed with it.
	for _, h := range vs.Views {
		if v, ok := d.views.take(uint64(h)); ok {
			vk.DestroyImageView(d.logical, v.handle, nil)
		}
	}
	vs.Views = nil
	d.mu.Unlock()
	if vs.Handle != nil {
		vk.DestroySwapchain(d.logical, vs.Handle, nil)
		vs.Handle = nil
	}
}

func clamp(v, lo, hi uint32) uint32 {
	return min(max(v, lo), hi)
}

func (d *Device) SwapchainViews() []metadata.ImageViewHandle {
	if d.swapchain == nil {
		return nil
	}
	return append([]metadata.ImageViewHandle(nil), d.swapchain.Views...)
}

func (d *Device) SwapchainFormat() metadata.Format {
	if d.swapchain == nil {
		return metadata.FormatUndefined
	}
	return formatFromVk(d.swapchain.ImageFormat.Format)
}

func (d *Device) SwapchainExtent() metadata.Extent2D {
	if d.swapchain == nil {
		return metadata.Extent2D{}
	}
	return d.swapchain.Extent
}

// AcquirePresentImage asks the swapchain for the next image. An out of date
// swapchain is reported through the status and signals nothing.
func (d *Device) AcquirePresentImage(signal metadata.SemaphoreHandle) (uint32, metadata.PresentStatus, error) {
	d.mu.Lock()
	sem, err := d.semaphores.get(uint64(signal))
	d.mu.Unlock()
	if err != nil {
		return 0, metadata.PresentStatusOK, err
	}
	var index uint32
	res := vk.AcquireNextImage(d.logical, d.swapchain.Handle, math.MaxUint64, sem, vk.NullFence, &index)
	switch res {
	case vk.Success:
		return index, metadata.PresentStatusOK, nil
	case vk.Suboptimal:
		return index, metadata.PresentStatusSuboptimal, nil
	case vk.ErrorOutOfDate:
		return 0, metadata.PresentStatusOutOfDate, nil
	}
	return 0, metadata.PresentStatusOK, resultError("vkAcquireNextImage", res)
}

// PresentImage gives the image back to the swapchain once wait signals.
func (d *Device) PresentImage(index uint32, wait metadata.SemaphoreHandle) (metadata.PresentStatus, error) {
	d.mu.Lock()
	sem, err := d.semaphores.get(uint64(wait))
	d.mu.Unlock()
	if err != nil {
		return metadata.PresentStatusOK, err
	}
	presentInfo := vk.PresentInfo{
		SType:              vk.StructureTypePresentInfo,
		WaitSemaphoreCount: 1,
		PWaitSemaphores:    []vk.Semaphore{sem},
		SwapchainCount:     1,
		PSwapchains:        []vk.Swapchain{d.swapchain.Handle},
		PImageIndices:      []uint32{index},
	}
	var res vk.Result
	d.locks.SafeQueueCall(d.presentQueueIndex, func() error {
		res = vk.QueuePresent(d.presentQueue, &presentInfo)
		return nil
	})
	switch res {
	case vk.Success:
		return metadata.PresentStatusOK, nil
	case vk.Suboptimal:
		return metadata.PresentStatusSuboptimal, nil
	case vk.ErrorOutOfDate:
		return metadata.PresentStatusOutOfDate, nil
	}
	return metadata.PresentStatusOK, resultError("vkQueuePresent", res)
}

// RecreateSwapchain replaces the swapchain with one at the given extent. The
// caller waits for the device to be idle first. The old views are destroyed,
// so framebuffers using them must be rebuilt.
func (d *Device) RecreateSwapchain(extent metadata.Extent2D) error {
	if extent.IsZero() {
		return fmt.Errorf("recreate swapchain at %dx%d: %w", extent.Width, extent.Height, core.ErrSwapchainBooting)
	}
	return d.locks.SafeCall(SwapchainManagement, func() error {
		old := d.swapchain
		sc, err := createSwapchain(d, extent, old.requested, old)
		if err != nil {
			return err
		}
		old.destroy(d)
		d.swapchain = sc
		return nil
	})
}

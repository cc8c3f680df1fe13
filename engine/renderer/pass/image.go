package pass

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spaghettifunk/prism/engine/renderer/metadata"
)

// Image is an image together with its default view and the layout it was
// last transitioned to. Only the owner destroys it; everyone else holds a
// plain reference.
type Image struct {
	Name      string
	Handle    metadata.ImageHandle
	View      metadata.ImageViewHandle
	MipViews  []metadata.ImageViewHandle
	Sampler   metadata.SamplerHandle
	Type      metadata.ImageType
	Format    metadata.Format
	Usage     metadata.ImageUsage
	Extent    metadata.Extent3D
	MipLevels uint32
	Layers    uint32
	Layout    metadata.ImageLayout
	Owned     bool

	destroyed bool
}

type ImageOptions struct {
	Name      string
	Type      metadata.ImageType
	Format    metadata.Format
	Usage     metadata.ImageUsage
	Extent    metadata.Extent3D
	MipLevels uint32
	Layers    uint32
	Samples   metadata.SampleCount
	Sampler   metadata.SamplerHandle
	// Data is uploaded right after creation and leaves the image in
	// ShaderReadOnly.
	Data []byte
	// MipViews creates one view per mip level, for compute passes that
	// write a mip chain.
	MipViews bool
}

func debugName(name string) string {
	return fmt.Sprintf("%s#%s", name, uuid.New().String())
}

func aspectOf(format metadata.Format) metadata.ImageAspect {
	if format.IsDepth() {
		if format.HasStencil() {
			return metadata.ImageAspectDepth | metadata.ImageAspectStencil
		}
		return metadata.ImageAspectDepth
	}
	return metadata.ImageAspectColor
}

func NewImage(device metadata.GraphicsDevice, opts ImageOptions) (*Image, error) {
	if opts.MipLevels == 0 {
		opts.MipLevels = 1
	}
	if opts.Layers == 0 {
		opts.Layers = 1
	}
	if opts.Type == metadata.ImageTypeCube {
		opts.Layers = 6
	}
	if opts.Extent.Depth == 0 {
		opts.Extent.Depth = 1
	}
	if opts.Samples == 0 {
		opts.Samples = metadata.SampleCount1
	}
	if len(opts.Data) > 0 {
		opts.Usage |= metadata.ImageUsageTransferDst
	}

	img := &Image{
		Name:      debugName(opts.Name),
		Sampler:   opts.Sampler,
		Type:      opts.Type,
		Format:    opts.Format,
		Usage:     opts.Usage,
		Extent:    opts.Extent,
		MipLevels: opts.MipLevels,
		Layers:    opts.Layers,
		Layout:    metadata.ImageLayoutUndefined,
		Owned:     true,
	}
	info := metadata.ImageCreateInfo{
		Name:      img.Name,
		Type:      opts.Type,
		Format:    opts.Format,
		Extent:    opts.Extent,
		MipLevels: opts.MipLevels,
		Layers:    opts.Layers,
		Usage:     opts.Usage,
		Samples:   opts.Samples,
	}

	var err error
	if img.Handle, err = device.CreateImage(info); err != nil {
		return nil, fmt.Errorf("failed to create image `%s`: %w", opts.Name, err)
	}
	viewInfo := metadata.ImageViewCreateInfo{
		Type:     opts.Type,
		Format:   opts.Format,
		Aspect:   aspectOf(opts.Format),
		MipCount: opts.MipLevels,
		Layers:   opts.Layers,
	}
	if img.View, err = device.CreateImageView(img.Handle, viewInfo); err != nil {
		img.Destroy(device)
		return nil, fmt.Errorf("failed to create view of `%s`: %w", opts.Name, err)
	}
	if opts.MipViews {
		for mip := uint32(0); mip < opts.MipLevels; mip++ {
			viewInfo.BaseMip = mip
			viewInfo.MipCount = 1
			v, err := device.CreateImageView(img.Handle, viewInfo)
			if err != nil {
				img.Destroy(device)
				return nil, fmt.Errorf("failed to create mip %d view of `%s`: %w", mip, opts.Name, err)
			}
			img.MipViews = append(img.MipViews, v)
		}
	}
	if len(opts.Data) > 0 {
		if err := device.WriteImage(img.Handle, info, opts.Data); err != nil {
			img.Destroy(device)
			return nil, fmt.Errorf("failed to upload `%s`: %w", opts.Name, err)
		}
		img.Layout = metadata.ImageLayoutShaderReadOnly
	}
	return img, nil
}

// WrapSwapchainView wraps a view the device owns. Destroy never releases it.
func WrapSwapchainView(view metadata.ImageViewHandle, format metadata.Format, extent metadata.Extent2D) *Image {
	return &Image{
		Name:      debugName("swapchain"),
		View:      view,
		Type:      metadata.ImageType2D,
		Format:    format,
		Usage:     metadata.ImageUsageColorAttachment,
		Extent:    extent.To3D(),
		MipLevels: 1,
		Layers:    1,
		Layout:    metadata.ImageLayoutUndefined,
	}
}

// Destroy releases the image if this reference owns it. It is safe to call
// more than once.
func (img *Image) Destroy(device metadata.GraphicsDevice) {
	if !img.Owned || img.destroyed {
		return
	}
	for _, v := range img.MipViews {
		device.DestroyImageView(v)
	}
	img.MipViews = nil
	device.DestroyImageView(img.View)
	device.DestroyImage(img.Handle)
	img.View, img.Handle = 0, 0
	img.destroyed = true
}

func (img *Image) Destroyed() bool {
	return img.destroyed
}

// Barrier returns the barrier moving the whole image to layout and records
// the new layout. It reports false when the image is already there.
func (img *Image) Barrier(layout metadata.ImageLayout) (metadata.ImageBarrier, bool) {
	if img.Layout == layout {
		return metadata.ImageBarrier{}, false
	}
	b := metadata.ImageBarrier{
		Image:     img.Handle,
		Aspect:    aspectOf(img.Format),
		OldLayout: img.Layout,
		NewLayout: layout,
		MipCount:  img.MipLevels,
		Layers:    img.Layers,
	}
	img.Layout = layout
	return b, true
}

// Transition records a barrier to layout if the image is not already in it.
func (img *Image) Transition(cb metadata.CommandBuffer, layout metadata.ImageLayout) bool {
	b, ok := img.Barrier(layout)
	if ok {
		cb.PipelineBarrier([]metadata.ImageBarrier{b})
	}
	return ok
}

// Descriptor is the sampled image descriptor of the default view.
func (img *Image) Descriptor(sampler metadata.SamplerHandle) metadata.DescriptorResource {
	if sampler == 0 {
		sampler = img.Sampler
	}
	return metadata.DescriptorResource{
		View:    img.View,
		Sampler: sampler,
		Layout:  metadata.ImageLayoutShaderReadOnly,
	}
}

// StorageDescriptor is the storage image descriptor of a view, -1 meaning
// the default one.
func (img *Image) StorageDescriptor(mip int) metadata.DescriptorResource {
	view := img.View
	if mip >= 0 && mip < len(img.MipViews) {
		view = img.MipViews[mip]
	}
	return metadata.DescriptorResource{View: view, Layout: metadata.ImageLayoutGeneral}
}

package metadata

type Format uint32

const (
	FormatUndefined Format = iota
	FormatR8Unorm
	FormatR32Float
	FormatRG16Float
	FormatRGBA8Unorm
	FormatRGBA8Srgb
	FormatBGRA8Unorm
	FormatBGRA8Srgb
	FormatRGBA16Float
	FormatRGBA32Float
	FormatD32Float
	FormatD24UnormS8Uint
)

func (f Format) IsDepth() bool {
	return f == FormatD32Float || f == FormatD24UnormS8Uint
}

func (f Format) HasStencil() bool {
	return f == FormatD24UnormS8Uint
}

// BytesPerPixel returns the texel size used when uploading image data.
func (f Format) BytesPerPixel() uint32 {
	switch f {
	case FormatR8Unorm:
		return 1
	case FormatRG16Float, FormatR32Float, FormatRGBA8Unorm, FormatRGBA8Srgb,
		FormatBGRA8Unorm, FormatBGRA8Srgb, FormatD32Float, FormatD24UnormS8Uint:
		return 4
	case FormatRGBA16Float:
		return 8
	case FormatRGBA32Float:
		return 16
	default:
		return 0
	}
}

type ImageLayout uint32

const (
	ImageLayoutUndefined ImageLayout = iota
	ImageLayoutGeneral
	ImageLayoutColorAttachment
	ImageLayoutDepthAttachment
	ImageLayoutShaderReadOnly
	ImageLayoutTransferSrc
	ImageLayoutTransferDst
	ImageLayoutPresentSrc
)

var imageLayoutNames = [...]string{
	"undefined", "general", "color_attachment", "depth_attachment",
	"shader_read_only", "transfer_src", "transfer_dst", "present_src",
}

func (l ImageLayout) String() string {
	if int(l) < len(imageLayoutNames) {
		return imageLayoutNames[l]
	}
	return "unknown"
}

type ImageUsage uint32

const (
	ImageUsageColorAttachment ImageUsage = 1 << iota
	ImageUsageDepthAttachment
	ImageUsageSampled
	ImageUsageStorage
	ImageUsageTransferSrc
	ImageUsageTransferDst
	ImageUsageInputAttachment
)

func (u ImageUsage) Has(flag ImageUsage) bool {
	return u&flag == flag
}

type ImageAspect uint32

const (
	ImageAspectColor ImageAspect = 1 << iota
	ImageAspectDepth
	ImageAspectStencil
)

type ImageType uint32

const (
	ImageType2D ImageType = iota
	ImageType3D
	ImageTypeCube
)

type SampleCount uint32

const (
	SampleCount1 SampleCount = 1
	SampleCount2 SampleCount = 2
	SampleCount4 SampleCount = 4
	SampleCount8 SampleCount = 8
)

type LoadOp uint32

const (
	LoadOpClear LoadOp = iota
	LoadOpLoad
	LoadOpDontCare
)

type StoreOp uint32

const (
	StoreOpStore StoreOp = iota
	StoreOpDontCare
)

type Extent2D struct {
	Width  uint32
	Height uint32
}

// IsZero reports whether the extent has no area. A minimized window reports
// such an extent.
func (e Extent2D) IsZero() bool {
	return e.Width == 0 || e.Height == 0
}

func (e Extent2D) To3D() Extent3D {
	return Extent3D{Width: e.Width, Height: e.Height, Depth: 1}
}

type Extent3D struct {
	Width  uint32
	Height uint32
	Depth  uint32
}

func (e Extent3D) To2D() Extent2D {
	return Extent2D{Width: e.Width, Height: e.Height}
}

type ClearValue struct {
	Color   [4]float32
	Depth   float32
	Stencil uint32
}

type ImageCreateInfo struct {
	Name      string
	Type      ImageType
	Format    Format
	Extent    Extent3D
	MipLevels uint32
	Layers    uint32
	Usage     ImageUsage
	Samples   SampleCount
}

type ImageViewCreateInfo struct {
	Type      ImageType
	Format    Format
	Aspect    ImageAspect
	BaseMip   uint32
	MipCount  uint32
	BaseLayer uint32
	Layers    uint32
}

type Filter uint32

const (
	FilterLinear Filter = iota
	FilterNearest
)

type AddressMode uint32

const (
	AddressModeRepeat AddressMode = iota
	AddressModeClampToEdge
	AddressModeClampToBorder
)

type SamplerCreateInfo struct {
	Filter      Filter
	AddressMode AddressMode
	MaxLod      float32
	// Compare enables depth comparison, used to sample shadow maps.
	Compare bool
}

// ImageBarrier describes a layout transition. The device derives the
// stage and access masks from the two layouts.
type ImageBarrier struct {
	Image     ImageHandle
	Aspect    ImageAspect
	OldLayout ImageLayout
	NewLayout ImageLayout
	BaseMip   uint32
	MipCount  uint32
	BaseLayer uint32
	Layers    uint32
}

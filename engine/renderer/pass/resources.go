package pass

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/renderer/metadata"
)

// QuadVertexCount is the number of vertices of the shared fullscreen quad.
const QuadVertexCount = 6

// Resources are the GPU objects every pass may read: the fullscreen quad,
// the fallback images bound until real resources exist and the common
// samplers. The pipeline owns them and releases them after every pass.
type Resources struct {
	device metadata.GraphicsDevice

	Quad metadata.BufferHandle

	White        *Image
	Black        *Image
	FlatNormal   *Image
	Fallback3D   *Image
	FallbackCube *Image

	Linear  metadata.SamplerHandle
	Nearest metadata.SamplerHandle
	Shadow  metadata.SamplerHandle

	destroyed bool
}

// quad vertices as (x, y, u, v), two triangles covering clip space.
var quadVertices = [QuadVertexCount][4]float32{
	{-1, -1, 0, 0}, {1, -1, 1, 0}, {1, 1, 1, 1},
	{-1, -1, 0, 0}, {1, 1, 1, 1}, {-1, 1, 0, 1},
}

func NewResources(device metadata.GraphicsDevice) (*Resources, error) {
	r := &Resources{device: device}
	if err := r.create(); err != nil {
		r.Destroy()
		return nil, err
	}
	core.LogDebug("shared render resources created")
	return r, nil
}

func (r *Resources) create() error {
	var err error
	if r.Linear, err = r.device.CreateSampler(metadata.SamplerCreateInfo{
		Filter: metadata.FilterLinear, AddressMode: metadata.AddressModeRepeat, MaxLod: 16,
	}); err != nil {
		return fmt.Errorf("failed to create linear sampler: %w", err)
	}
	if r.Nearest, err = r.device.CreateSampler(metadata.SamplerCreateInfo{
		Filter: metadata.FilterNearest, AddressMode: metadata.AddressModeClampToEdge,
	}); err != nil {
		return fmt.Errorf("failed to create nearest sampler: %w", err)
	}
	if r.Shadow, err = r.device.CreateSampler(metadata.SamplerCreateInfo{
		Filter: metadata.FilterLinear, AddressMode: metadata.AddressModeClampToBorder, Compare: true,
	}); err != nil {
		return fmt.Errorf("failed to create shadow sampler: %w", err)
	}

	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, quadVertices); err != nil {
		return err
	}
	if r.Quad, err = r.device.CreateBuffer(metadata.BufferCreateInfo{
		Name:        "fullscreen_quad",
		Size:        uint64(buf.Len()),
		Usage:       metadata.BufferUsageVertex,
		HostVisible: true,
	}); err != nil {
		return fmt.Errorf("failed to create quad buffer: %w", err)
	}
	if err := r.device.WriteBuffer(r.Quad, 0, buf.Bytes()); err != nil {
		return fmt.Errorf("failed to upload quad: %w", err)
	}

	texel := func(name string, t metadata.ImageType, data []byte) (*Image, error) {
		return NewImage(r.device, ImageOptions{
			Name:    name,
			Type:    t,
			Format:  metadata.FormatRGBA8Unorm,
			Usage:   metadata.ImageUsageSampled,
			Extent:  metadata.Extent3D{Width: 1, Height: 1, Depth: 1},
			Sampler: r.Linear,
			Data:    data,
		})
	}
	if r.White, err = texel("fallback_white", metadata.ImageType2D, []byte{255, 255, 255, 255}); err != nil {
		return err
	}
	if r.Black, err = texel("fallback_black", metadata.ImageType2D, []byte{0, 0, 0, 255}); err != nil {
		return err
	}
	if r.FlatNormal, err = texel("fallback_normal", metadata.ImageType2D, []byte{128, 128, 255, 255}); err != nil {
		return err
	}
	if r.Fallback3D, err = texel("fallback_3d", metadata.ImageType3D, []byte{0, 0, 0, 0}); err != nil {
		return err
	}
	if r.FallbackCube, err = texel("fallback_cube", metadata.ImageTypeCube, bytes.Repeat([]byte{0, 0, 0, 255}, 6)); err != nil {
		return err
	}
	return nil
}

// Destroy releases every shared object. It is safe to call more than once.
func (r *Resources) Destroy() {
	if r.destroyed {
		return
	}
	for _, img := range []*Image{r.FallbackCube, r.Fallback3D, r.FlatNormal, r.Black, r.White} {
		if img != nil {
			img.Destroy(r.device)
		}
	}
	r.device.DestroyBuffer(r.Quad)
	r.device.DestroySampler(r.Shadow)
	r.device.DestroySampler(r.Nearest)
	r.device.DestroySampler(r.Linear)
	r.destroyed = true
}

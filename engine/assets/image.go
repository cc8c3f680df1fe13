package assets

import (
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"

	"github.com/spaghettifunk/prism/engine/core"
	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// Image is decoded RGBA8 pixel data, tightly packed.
type Image struct {
	Name   string
	Width  uint32
	Height uint32
	Pixels []byte
}

// LoadImage decodes a PNG, JPEG, BMP, TIFF or WebP file into RGBA8.
func LoadImage(path string, flipY bool) (*Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image `%s`: %w", path, err)
	}
	defer f.Close()
	return DecodeImage(f, path, flipY)
}

func DecodeImage(r io.Reader, name string, flipY bool) (*Image, error) {
	src, format, err := image.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image `%s`: %w", name, err)
	}
	bounds := src.Bounds()
	if bounds.Empty() {
		return nil, fmt.Errorf("image `%s` has no pixels", name)
	}

	rgba, ok := src.(*image.RGBA)
	if !ok || rgba.Stride != 4*bounds.Dx() || bounds.Min != (image.Point{}) {
		rgba = image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
		draw.Draw(rgba, rgba.Bounds(), src, bounds.Min, draw.Src)
	}
	img := &Image{
		Name:   name,
		Width:  uint32(bounds.Dx()),
		Height: uint32(bounds.Dy()),
		Pixels: rgba.Pix,
	}
	if flipY {
		img.flip()
	}
	core.LogDebug("decoded %s image `%s` (%dx%d)", format, name, img.Width, img.Height)
	return img, nil
}

func (img *Image) flip() {
	stride := int(img.Width) * 4
	row := make([]byte, stride)
	for top, bottom := 0, int(img.Height)-1; top < bottom; top, bottom = top+1, bottom-1 {
		a := img.Pixels[top*stride : (top+1)*stride]
		b := img.Pixels[bottom*stride : (bottom+1)*stride]
		copy(row, a)
		copy(a, b)
		copy(b, row)
	}
}

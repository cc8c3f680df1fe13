package assets

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/bmp"
)

// twoRows is a 2x2 image with a red top row and a blue bottom row.
func twoRows() *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, 2, 2))
	for x := 0; x < 2; x++ {
		img.Set(x, 0, color.NRGBA{R: 255, A: 255})
		img.Set(x, 1, color.NRGBA{B: 255, A: 255})
	}
	return img
}

func TestDecodeImageFormats(t *testing.T) {
	encoders := map[string]func(*bytes.Buffer, image.Image) error{
		"png": func(b *bytes.Buffer, m image.Image) error { return png.Encode(b, m) },
		"bmp": func(b *bytes.Buffer, m image.Image) error { return bmp.Encode(b, m) },
	}
	for name, encode := range encoders {
		t.Run(name, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, encode(&buf, twoRows()))

			img, err := DecodeImage(&buf, name, false)
			require.NoError(t, err)
			assert.Equal(t, uint32(2), img.Width)
			assert.Equal(t, uint32(2), img.Height)
			require.Len(t, img.Pixels, 16)
			assert.Equal(t, []byte{255, 0, 0, 255}, img.Pixels[0:4])
			assert.Equal(t, []byte{0, 0, 255, 255}, img.Pixels[8:12])
		})
	}
}

func TestLoadImageFlip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rows.png")
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, twoRows()))
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))

	img, err := LoadImage(path, true)
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 0, 255, 255}, img.Pixels[0:4])
	assert.Equal(t, []byte{255, 0, 0, 255}, img.Pixels[8:12])

	_, err = LoadImage(filepath.Join(t.TempDir(), "missing.png"), false)
	assert.ErrorIs(t, err, os.ErrNotExist)

	_, err = DecodeImage(bytes.NewReader([]byte("not an image")), "junk", false)
	assert.Error(t, err)
}

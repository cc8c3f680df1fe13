package systems

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spaghettifunk/prism/engine/renderer/headless"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writePNG(t *testing.T, path string, size int) {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, size, size))
	for i := 0; i < size*size; i++ {
		img.Set(i%size, i/size, color.NRGBA{R: uint8(i), G: 128, A: 255})
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
}

func newTextureSystem(t *testing.T, dir string, capacity uint32) (*TextureSystem, *headless.Device) {
	t.Helper()
	js, err := NewJobSystem(2, 8)
	require.NoError(t, err)
	t.Cleanup(func() { js.Shutdown() })
	device := headless.New()
	ts, err := NewTextureSystem(TextureSystemConfig{Dir: dir, MaxTextureCount: capacity}, device, js)
	require.NoError(t, err)
	return ts, device
}

func settle(t *testing.T, ts *TextureSystem) {
	t.Helper()
	require.Eventually(t, func() bool {
		ts.Update()
		return ts.jobs.Pending() == 0
	}, time.Second, time.Millisecond)
}

func TestAcquireLoadsInBackground(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "crate.png"), 4)
	ts, device := newTextureSystem(t, dir, 4)

	tex, err := ts.Acquire("crate.png")
	require.NoError(t, err)
	assert.False(t, tex.Ready)
	again, err := ts.Acquire("crate.png")
	require.NoError(t, err)
	assert.Same(t, tex, again)

	settle(t, ts)
	assert.True(t, tex.Ready)
	assert.NotZero(t, tex.View)
	assert.Equal(t, 1, ts.Loaded())

	ts.Release("crate.png")
	assert.True(t, tex.Ready, "one reference is left")
	assert.False(t, tex.Released)
	ts.Release("crate.png")
	assert.False(t, tex.Ready)
	assert.True(t, tex.Released)
	assert.Zero(t, tex.View)
	assert.False(t, tex.Usable())
	assert.Zero(t, tex.View)

	require.NoError(t, ts.Shutdown())
	assert.Empty(t, device.LiveObjects())
}

func TestAcquireMissingStaysNotReady(t *testing.T) {
	ts, device := newTextureSystem(t, t.TempDir(), 4)
	tex, err := ts.Acquire("missing.png")
	require.NoError(t, err)
	settle(t, ts)
	assert.False(t, tex.Ready)
	require.NoError(t, ts.Shutdown())
	assert.Empty(t, device.LiveObjects())
}

func TestAcquireCube(t *testing.T) {
	dir := t.TempDir()
	for _, face := range cubeFaces {
		writePNG(t, filepath.Join(dir, "sky"+face+".png"), 2)
	}
	writePNG(t, filepath.Join(dir, "odd_r.png"), 2)
	for _, face := range cubeFaces[1:] {
		writePNG(t, filepath.Join(dir, "odd"+face+".png"), 4)
	}
	ts, device := newTextureSystem(t, dir, 4)

	sky, err := ts.AcquireCube("sky", ".png")
	require.NoError(t, err)
	odd, err := ts.AcquireCube("odd", ".png")
	require.NoError(t, err)
	settle(t, ts)

	assert.True(t, sky.Ready)
	assert.False(t, odd.Ready, "faces of different sizes are rejected")
	require.NoError(t, ts.Shutdown())
	assert.Empty(t, device.LiveObjects())
}

func TestCreateAndCapacity(t *testing.T) {
	ts, device := newTextureSystem(t, t.TempDir(), 1)

	tex, err := ts.Create("checker", 2, 2, make([]byte, 16))
	require.NoError(t, err)
	assert.True(t, tex.Ready)

	_, err = ts.Create("checker", 2, 2, make([]byte, 16))
	assert.Error(t, err)
	_, err = ts.Acquire("other.png")
	assert.Error(t, err, "the system is full")
	_, err = ts.Create("short", 2, 2, make([]byte, 3))
	assert.Error(t, err)

	require.NoError(t, ts.Shutdown())
	assert.Empty(t, device.LiveObjects())
}

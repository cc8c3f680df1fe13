package frame

import (
	"bytes"
	"encoding/binary"
	gomath "math"
	"testing"

	"github.com/spaghettifunk/prism/engine/renderer/headless"
	"github.com/spaghettifunk/prism/engine/renderer/metadata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/math/f32"
)

func TestUniformLayoutAlignment(t *testing.T) {
	l := NewUniformLayout(256, 4)
	assert.Equal(t, uint64(272), l.GlobalSize)
	assert.Equal(t, uint64(80), l.ObjectSize)
	assert.Equal(t, uint64(512), l.GlobalStride)
	assert.Equal(t, uint64(256), l.ObjectStride)
	assert.Equal(t, uint64(512+4*256), l.RegionSize)

	r := Region{Base: l.RegionSize, Layout: l}
	assert.Equal(t, uint32(l.RegionSize), r.GlobalOffset())
	assert.Equal(t, uint32(l.RegionSize+512+256), r.ObjectOffset(1))
	assert.Zero(t, r.ObjectOffset(1)%256)
}

// cycle drives one frame the way the pipeline does, without any passes.
func cycle(t *testing.T, d *headless.Device, r *Ring) {
	t.Helper()
	require.NoError(t, r.Wait())
	f := r.Current()
	index, _, err := d.AcquirePresentImage(f.ImageAvailable)
	require.NoError(t, err)
	require.NoError(t, r.Begin(index))
	require.NoError(t, r.Submit())
	_, err = d.PresentImage(index, f.RenderFinished)
	require.NoError(t, err)
	r.Advance()
}

func TestRingBoundsFramesInFlight(t *testing.T) {
	for _, n := range []int{1, 2, 3} {
		d := headless.New(headless.WithSwapchain(3, metadata.Extent2D{Width: 64, Height: 64}))
		r, err := NewRing(d, n, 8)
		require.NoError(t, err)

		for i := 0; i < 10; i++ {
			cycle(t, d, r)
			assert.LessOrEqual(t, d.InFlight(), n)
		}
		assert.Equal(t, n, d.MaxInFlight())

		require.NoError(t, d.WaitIdle())
		r.Destroy()
		r.Destroy()
		assert.Empty(t, d.LiveObjects())
		assert.Empty(t, d.Violations())
	}
}

func TestRingFrameNumbers(t *testing.T) {
	d := headless.New()
	r, err := NewRing(d, 2, 1)
	require.NoError(t, err)
	defer r.Destroy()

	for i := 0; i < 5; i++ {
		cycle(t, d, r)
	}
	assert.Equal(t, 1, r.Current().Index)
	assert.Equal(t, uint64(3), r.Frames()[1].Number)
	assert.Equal(t, uint64(4), r.Frames()[0].Number)
	require.NoError(t, d.WaitIdle())
}

func TestFrameUniformWrites(t *testing.T) {
	d := headless.New()
	r, err := NewRing(d, 2, 2)
	require.NoError(t, err)
	defer r.Destroy()

	f := r.Frames()[1]
	g := GlobalUniforms{CameraPosition: f32.Vec4{1, 2, 3, 1}, Counters: [4]uint32{7, 2}}
	require.NoError(t, f.WriteGlobal(g))
	model := f32.Mat4{2, 0, 0, 0, 0, 2, 0, 0, 0, 0, 2, 0, 0, 0, 0, 1}
	require.NoError(t, f.WriteObjectModel(1, model))
	require.NoError(t, f.WriteObjectTextures(1, [4]uint32{9, 8, 7, 6}))
	assert.Error(t, f.WriteObjectModel(2, model))
	assert.Error(t, f.WriteObjectTextures(-1, [4]uint32{}))

	mem := d.BufferData(f.Uniforms.Buffer)
	base := f.Uniforms.GlobalOffset()
	// CameraPosition follows three matrices.
	x := gomath.Float32frombits(binary.LittleEndian.Uint32(mem[base+192:]))
	assert.Equal(t, float32(1), x)
	assert.Equal(t, uint32(7), binary.LittleEndian.Uint32(mem[base+256:]))

	// The slots land after the model and leave it intact.
	obj := f.Uniforms.ObjectOffset(1)
	var record ObjectUniforms
	require.NoError(t, binary.Read(bytes.NewReader(mem[obj:]), binary.LittleEndian, &record))
	assert.Equal(t, model, record.Model)
	assert.Equal(t, [4]uint32{9, 8, 7, 6}, record.Textures)

	// The other frame's region is untouched.
	other := r.Frames()[0].Uniforms.GlobalOffset()
	assert.Equal(t, make([]byte, 16), mem[other+192:other+208])
}

func TestRingRejectsZeroFrames(t *testing.T) {
	_, err := NewRing(headless.New(), 0, 1)
	assert.Error(t, err)
}

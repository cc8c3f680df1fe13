package math

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/image/math/f32"
)

func TestAlignUp(t *testing.T) {
	tests := []struct {
		size, align, want uint64
	}{
		{0, 256, 0},
		{1, 256, 256},
		{256, 256, 256},
		{300, 256, 512},
		{17, 0, 17},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, AlignUp(tt.size, tt.align), "AlignUp(%d, %d)", tt.size, tt.align)
	}
}

func TestClamp(t *testing.T) {
	assert.Equal(t, 3, Clamp(5, 1, 3))
	assert.Equal(t, float32(0.5), Clamp(float32(0.5), 0, 1))
	assert.Equal(t, uint32(1), Clamp(uint32(0), 1, 64))
}

func TestMipLevels(t *testing.T) {
	assert.Equal(t, uint32(1), MipLevels(0, 0))
	assert.Equal(t, uint32(1), MipLevels(1, 1))
	assert.Equal(t, uint32(11), MipLevels(1024, 768))
}

func TestMat4MulIdentity(t *testing.T) {
	tr := Mat4Translation(f32.Vec3{1, 2, 3})
	assert.Equal(t, tr, Mat4Mul(Mat4Identity(), tr))
	assert.Equal(t, tr, Mat4Mul(tr, Mat4Identity()))

	both := Mat4Mul(tr, Mat4Translation(f32.Vec3{1, 1, 1}))
	assert.Equal(t, float32(2), both[12])
	assert.Equal(t, float32(3), both[13])
	assert.Equal(t, float32(4), both[14])
}

func TestVec3NormalizeZero(t *testing.T) {
	assert.Equal(t, f32.Vec3{}, Vec3Normalize(f32.Vec3{}))
	assert.InDelta(t, 1.0, Vec3Length(Vec3Normalize(f32.Vec3{3, 4, 0})), 1e-6)
}

func TestRandomIsDeterministic(t *testing.T) {
	a := NewRandom(42)
	b := NewRandom(42)
	for i := 0; i < 16; i++ {
		v := a.FloatInRange(-1, 1)
		assert.Equal(t, v, b.FloatInRange(-1, 1))
		assert.GreaterOrEqual(t, v, float32(-1))
		assert.Less(t, v, float32(1))
	}
}

package math

import (
	m "math"

	"golang.org/x/exp/constraints"
)

// Clamp returns the value `f` clamped to the range [low, high].
// It works for any numeric type (integers and floats).
func Clamp[T constraints.Ordered](f, low, high T) T {
	if f < low {
		return low
	}
	if f > high {
		return high
	}
	return f
}

// AlignUp rounds size up to the next multiple of alignment. An alignment of
// zero returns size unchanged.
func AlignUp[T constraints.Unsigned](size, alignment T) T {
	if alignment == 0 {
		return size
	}
	return (size + alignment - 1) / alignment * alignment
}

func Lerp(a, b, t float32) float32 {
	return a + t*(b-a)
}

// MipLevels returns the number of mips in a full chain for the given size.
func MipLevels(width, height uint32) uint32 {
	largest := max(width, height)
	if largest == 0 {
		return 1
	}
	return uint32(m.Floor(m.Log2(float64(largest)))) + 1
}

func DegToRad(degrees float32) float32 {
	return degrees * m.Pi / 180.0
}

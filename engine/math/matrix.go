package math

import (
	m "math"

	"golang.org/x/image/math/f32"
)

// Matrices are column major, matching the shader side.

func Mat4Identity() f32.Mat4 {
	return f32.Mat4{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
		0, 0, 0, 1,
	}
}

// Mat4Mul returns a*b.
func Mat4Mul(a, b f32.Mat4) f32.Mat4 {
	var out f32.Mat4
	for col := 0; col < 4; col++ {
		for row := 0; row < 4; row++ {
			var sum float32
			for k := 0; k < 4; k++ {
				sum += a[k*4+row] * b[col*4+k]
			}
			out[col*4+row] = sum
		}
	}
	return out
}

func Mat4Translation(v f32.Vec3) f32.Mat4 {
	out := Mat4Identity()
	out[12] = v[0]
	out[13] = v[1]
	out[14] = v[2]
	return out
}

func Mat4Scale(v f32.Vec3) f32.Mat4 {
	out := Mat4Identity()
	out[0] = v[0]
	out[5] = v[1]
	out[10] = v[2]
	return out
}

// Mat4Perspective builds a right handed projection with a [0,1] depth range
// and a flipped Y, as Vulkan clip space expects.
func Mat4Perspective(fovRadians, aspect, near, far float32) f32.Mat4 {
	halfTan := float32(m.Tan(float64(fovRadians) * 0.5))
	var out f32.Mat4
	out[0] = 1.0 / (aspect * halfTan)
	out[5] = -1.0 / halfTan
	out[10] = far / (near - far)
	out[11] = -1.0
	out[14] = (far * near) / (near - far)
	return out
}

func Mat4Orthographic(left, right, bottom, top, near, far float32) f32.Mat4 {
	out := Mat4Identity()
	out[0] = 2.0 / (right - left)
	out[5] = -2.0 / (top - bottom)
	out[10] = 1.0 / (near - far)
	out[12] = -(right + left) / (right - left)
	out[13] = (top + bottom) / (top - bottom)
	out[14] = near / (near - far)
	return out
}

func Mat4LookAt(eye, target, up f32.Vec3) f32.Mat4 {
	f := Vec3Normalize(Vec3Sub(target, eye))
	s := Vec3Normalize(Vec3Cross(f, up))
	u := Vec3Cross(s, f)

	return f32.Mat4{
		s[0], u[0], -f[0], 0,
		s[1], u[1], -f[1], 0,
		s[2], u[2], -f[2], 0,
		-Vec3Dot(s, eye), -Vec3Dot(u, eye), Vec3Dot(f, eye), 1,
	}
}

func Vec3Sub(a, b f32.Vec3) f32.Vec3 {
	return f32.Vec3{a[0] - b[0], a[1] - b[1], a[2] - b[2]}
}

func Vec3Dot(a, b f32.Vec3) float32 {
	return a[0]*b[0] + a[1]*b[1] + a[2]*b[2]
}

func Vec3Cross(a, b f32.Vec3) f32.Vec3 {
	return f32.Vec3{
		a[1]*b[2] - a[2]*b[1],
		a[2]*b[0] - a[0]*b[2],
		a[0]*b[1] - a[1]*b[0],
	}
}

func Vec3Length(v f32.Vec3) float32 {
	return float32(m.Sqrt(float64(Vec3Dot(v, v))))
}

// Vec3Normalize returns v scaled to unit length. The zero vector is returned
// unchanged.
func Vec3Normalize(v f32.Vec3) f32.Vec3 {
	l := Vec3Length(v)
	if l == 0 {
		return v
	}
	return f32.Vec3{v[0] / l, v[1] / l, v[2] / l}
}

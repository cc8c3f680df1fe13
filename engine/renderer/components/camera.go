package components

import (
	stdmath "math"

	"github.com/spaghettifunk/prism/engine/math"
	"github.com/spaghettifunk/prism/engine/renderer/metadata"
	"golang.org/x/image/math/f32"
)

// pitchLimit is 89 degrees, to avoid gimbal lock.
const pitchLimit = float32(1.55334306)

// Camera is a yaw/pitch camera. Zero yaw and pitch look down -Z. The view
// and projection matrices are rebuilt lazily after a change.
type Camera struct {
	position f32.Vec3
	yaw      float32
	pitch    float32

	fov    float32
	near   float32
	far    float32
	aspect float32

	isDirty    bool
	view       f32.Mat4
	projection f32.Mat4
}

func NewCamera(fovRadians, near, far float32) *Camera {
	c := &Camera{fov: fovRadians, near: near, far: far}
	c.Reset()
	return c
}

// Reset moves the camera to the origin looking down -Z.
func (c *Camera) Reset() {
	c.position = f32.Vec3{}
	c.yaw, c.pitch = 0, 0
	c.aspect = 1
	c.isDirty = true
}

func (c *Camera) Position() f32.Vec3 {
	return c.position
}

func (c *Camera) SetPosition(position f32.Vec3) {
	c.position = position
	c.isDirty = true
}

// Rotation returns yaw and pitch in radians.
func (c *Camera) Rotation() (float32, float32) {
	return c.yaw, c.pitch
}

func (c *Camera) SetRotation(yaw, pitch float32) {
	c.yaw = yaw
	c.pitch = math.Clamp(pitch, -pitchLimit, pitchLimit)
	c.isDirty = true
}

// LookAt turns the camera towards target.
func (c *Camera) LookAt(target f32.Vec3) {
	dir := math.Vec3Normalize(math.Vec3Sub(target, c.position))
	if math.Vec3Length(dir) == 0 {
		return
	}
	yaw := float32(stdmath.Atan2(float64(dir[0]), float64(-dir[2])))
	pitch := float32(stdmath.Asin(float64(dir[1])))
	c.SetRotation(yaw, pitch)
}

func (c *Camera) Yaw(amount float32) {
	c.SetRotation(c.yaw+amount, c.pitch)
}

func (c *Camera) Pitch(amount float32) {
	c.SetRotation(c.yaw, c.pitch+amount)
}

func (c *Camera) Forward() f32.Vec3 {
	sy, cy := stdmath.Sincos(float64(c.yaw))
	sp, cp := stdmath.Sincos(float64(c.pitch))
	return f32.Vec3{float32(cp * sy), float32(sp), float32(-cp * cy)}
}

func (c *Camera) Right() f32.Vec3 {
	return math.Vec3Normalize(math.Vec3Cross(c.Forward(), f32.Vec3{0, 1, 0}))
}

func (c *Camera) move(direction f32.Vec3, amount float32) {
	c.position = f32.Vec3{
		c.position[0] + direction[0]*amount,
		c.position[1] + direction[1]*amount,
		c.position[2] + direction[2]*amount,
	}
	c.isDirty = true
}

func (c *Camera) MoveForward(amount float32) {
	c.move(c.Forward(), amount)
}

func (c *Camera) MoveBackward(amount float32) {
	c.move(c.Forward(), -amount)
}

func (c *Camera) MoveLeft(amount float32) {
	c.move(c.Right(), -amount)
}

func (c *Camera) MoveRight(amount float32) {
	c.move(c.Right(), amount)
}

func (c *Camera) MoveUp(amount float32) {
	c.move(f32.Vec3{0, 1, 0}, amount)
}

func (c *Camera) MoveDown(amount float32) {
	c.move(f32.Vec3{0, 1, 0}, -amount)
}

// Resize keeps the projection in step with the framebuffer. A zero size is
// ignored.
func (c *Camera) Resize(width, height uint32) {
	if width == 0 || height == 0 {
		return
	}
	c.aspect = float32(width) / float32(height)
	c.isDirty = true
}

func (c *Camera) rebuild() {
	if !c.isDirty {
		return
	}
	f := c.Forward()
	target := f32.Vec3{c.position[0] + f[0], c.position[1] + f[1], c.position[2] + f[2]}
	c.view = math.Mat4LookAt(c.position, target, f32.Vec3{0, 1, 0})
	c.projection = math.Mat4Perspective(c.fov, c.aspect, c.near, c.far)
	c.isDirty = false
}

func (c *Camera) View() f32.Mat4 {
	c.rebuild()
	return c.view
}

func (c *Camera) Projection() f32.Mat4 {
	c.rebuild()
	return c.projection
}

// Metadata returns the camera as the renderer reads it.
func (c *Camera) Metadata() metadata.Camera {
	c.rebuild()
	return metadata.Camera{
		View:       c.view,
		Projection: c.projection,
		Position:   c.position,
		Near:       c.near,
		Far:        c.far,
	}
}

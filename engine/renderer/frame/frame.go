package frame

import (
	"fmt"

	"github.com/spaghettifunk/prism/engine/math"
	"github.com/spaghettifunk/prism/engine/renderer/metadata"
	"golang.org/x/image/math/f32"
)

// UniformLayout describes how one frame's region of the uniform arena is
// split: one global record followed by MaxObjects object records, each
// aligned to the device's dynamic offset alignment.
type UniformLayout struct {
	GlobalSize   uint64
	ObjectSize   uint64
	GlobalStride uint64
	ObjectStride uint64
	MaxObjects   int
	RegionSize   uint64
}

func NewUniformLayout(alignment uint64, maxObjects int) UniformLayout {
	l := UniformLayout{
		GlobalSize:   globalUniformsSize,
		ObjectSize:   objectUniformsSize,
		GlobalStride: math.AlignUp(globalUniformsSize, alignment),
		ObjectStride: math.AlignUp(objectUniformsSize, alignment),
		MaxObjects:   maxObjects,
	}
	l.RegionSize = math.AlignUp(l.GlobalStride+l.ObjectStride*uint64(maxObjects), alignment)
	return l
}

// Region is one frame's slice of the uniform arena. Regions of different
// frames never overlap.
type Region struct {
	Buffer metadata.BufferHandle
	Base   uint64
	Layout UniformLayout
}

// GlobalOffset is the dynamic offset of the global record.
func (r Region) GlobalOffset() uint32 {
	return uint32(r.Base)
}

// ObjectOffset is the dynamic offset of the i-th object record.
func (r Region) ObjectOffset(i int) uint32 {
	return uint32(r.Base + r.Layout.GlobalStride + uint64(i)*r.Layout.ObjectStride)
}

// GlobalResource is what a dynamic uniform binding for the global record
// is written with. The offset is supplied at bind time.
func (r Region) GlobalResource() metadata.DescriptorResource {
	return metadata.DescriptorResource{Buffer: r.Buffer, Range: r.Layout.GlobalSize}
}

func (r Region) ObjectResource() metadata.DescriptorResource {
	return metadata.DescriptorResource{Buffer: r.Buffer, Range: r.Layout.ObjectSize}
}

// Frame is one slot of the in-flight ring. Its command buffer, sync
// primitives and uniform region are only touched after InFlight signaled.
type Frame struct {
	Index          int
	Number         uint64
	CommandBuffer  metadata.CommandBuffer
	InFlight       metadata.FenceHandle
	ImageAvailable metadata.SemaphoreHandle
	RenderFinished metadata.SemaphoreHandle
	ImageIndex     uint32
	Uniforms       Region

	device metadata.GraphicsDevice
}

func (f *Frame) WriteGlobal(g GlobalUniforms) error {
	data, err := encode(g)
	if err != nil {
		return err
	}
	if err := f.device.WriteBuffer(f.Uniforms.Buffer, uint64(f.Uniforms.GlobalOffset()), data); err != nil {
		return fmt.Errorf("frame %d write global uniforms: %w", f.Index, err)
	}
	return nil
}

// WriteObjectModel writes the model matrix of the i-th object record.
func (f *Frame) WriteObjectModel(i int, model f32.Mat4) error {
	return f.writeObject(i, 0, model)
}

// WriteObjectTextures writes the texture slots of the i-th object record and
// leaves its model matrix alone.
func (f *Frame) WriteObjectTextures(i int, slots [4]uint32) error {
	return f.writeObject(i, objectTexturesOffset, slots)
}

func (f *Frame) writeObject(i int, offset uint64, v interface{}) error {
	if i < 0 || i >= f.Uniforms.Layout.MaxObjects {
		return fmt.Errorf("frame %d write object %d: only %d objects fit", f.Index, i, f.Uniforms.Layout.MaxObjects)
	}
	data, err := encode(v)
	if err != nil {
		return err
	}
	if err := f.device.WriteBuffer(f.Uniforms.Buffer, uint64(f.Uniforms.ObjectOffset(i))+offset, data); err != nil {
		return fmt.Errorf("frame %d write object %d: %w", f.Index, i, err)
	}
	return nil
}

func (f *Frame) destroy() {
	if f.CommandBuffer != nil {
		f.device.FreeCommandBuffer(f.CommandBuffer)
		f.CommandBuffer = nil
	}
	f.device.DestroyFence(f.InFlight)
	f.device.DestroySemaphore(f.ImageAvailable)
	f.device.DestroySemaphore(f.RenderFinished)
	f.InFlight, f.ImageAvailable, f.RenderFinished = 0, 0, 0
}

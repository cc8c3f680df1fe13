package frame

import (
	"bytes"
	"encoding/binary"

	"golang.org/x/image/math/f32"
)

// GlobalUniforms is the per-frame camera and scene record. The layout matches
// std140: matrices first, then vec4s, then a uvec4.
type GlobalUniforms struct {
	View                f32.Mat4
	Projection          f32.Mat4
	LightViewProjection f32.Mat4
	CameraPosition      f32.Vec4
	LightDirection      f32.Vec4
	// LightColor carries the intensity in w.
	LightColor f32.Vec4
	Ambient    f32.Vec4
	// Counters holds the frame number and the object count.
	Counters [4]uint32
}

// ObjectUniforms is the per-draw record, read through a dynamic offset.
type ObjectUniforms struct {
	Model f32.Mat4
	// Textures holds the bindless slots of the albedo, normal,
	// metallic-roughness and emissive textures.
	Textures [4]uint32
}

var (
	globalUniformsSize   = uint64(binary.Size(GlobalUniforms{}))
	objectUniformsSize   = uint64(binary.Size(ObjectUniforms{}))
	objectTexturesOffset = uint64(binary.Size(f32.Mat4{}))
)

func encode(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

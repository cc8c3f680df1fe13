package metadata

import "golang.org/x/image/math/f32"

type TextureSlot uint32

const (
	TextureSlotAlbedo TextureSlot = iota
	TextureSlotNormal
	TextureSlotMetallicRoughness
	TextureSlotEmissive
	TextureSlotCount
)

// Texture is a sampled image owned by the scene. Ready is false while the
// loader is still streaming it in; passes bind a fallback until then.
// Released is set once the image is destroyed and the handles are zero from
// then on.
type Texture struct {
	Name     string
	View     ImageViewHandle
	Sampler  SamplerHandle
	Ready    bool
	Released bool
}

// Usable reports whether the texture's view can be sampled.
func (t *Texture) Usable() bool {
	return t != nil && t.Ready && !t.Released && t.View != 0
}

type Camera struct {
	View       f32.Mat4
	Projection f32.Mat4
	Position   f32.Vec3
	Near, Far  float32
}

type DirectionalLight struct {
	Direction f32.Vec3
	Color     f32.Vec3
	Intensity float32
	// ViewProjection renders the scene from the light for the shadow map.
	ViewProjection f32.Mat4
}

type Drawable struct {
	Name      string
	Transform f32.Mat4
	// MaterialShader picks the G-buffer pipeline the drawable is drawn with.
	MaterialShader string
	Textures       [TextureSlotCount]*Texture
	VertexBuffer   BufferHandle
	IndexBuffer    BufferHandle
	IndexCount     uint32
	CastsShadow    bool
}

// Scene is everything the renderer reads from the game for one frame.
type Scene struct {
	Camera    Camera
	Light     DirectionalLight
	Ambient   f32.Vec4
	Drawables []*Drawable
	// Skybox is a cubemap. Nil or not ready means the fallback cubemap is used.
	Skybox *Texture
	// TopLevelAS is zero until the acceleration structure is built.
	TopLevelAS AccelerationStructureHandle
}

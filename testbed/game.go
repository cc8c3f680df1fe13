package testbed

import (
	"encoding/binary"
	"fmt"
	stdmath "math"

	"github.com/spaghettifunk/prism/engine"
	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/math"
	"github.com/spaghettifunk/prism/engine/renderer/components"
	"github.com/spaghettifunk/prism/engine/renderer/metadata"
	"golang.org/x/image/math/f32"
)

const (
	gridSize    = 5
	gridSpacing = 2.5
	orbitRadius = 14
	orbitSpeed  = 0.2
	// position, normal, uv, tangent
	vertexFloats = 3 + 3 + 2 + 4

	crateTexture   = "crate.png"
	skyboxTexture  = "skybox"
	checkerTexture = "checker"
	checkerSize    = 64
)

type TestGame struct {
	*engine.Game
}

type gameState struct {
	camera *components.Camera
	time   float64

	vertexBuffer metadata.BufferHandle
	indexBuffer  metadata.BufferHandle
	indexCount   uint32
	drawables    []*metadata.Drawable

	crate   *metadata.Texture
	checker *metadata.Texture
	skybox  *metadata.Texture
}

func NewTestGame(app *engine.ApplicationConfig) *TestGame {
	tg := &TestGame{
		Game: &engine.Game{
			ApplicationConfig: app,
		},
	}
	state := &gameState{camera: components.NewCamera(math.DegToRad(60), 0.1, 100)}
	tg.State = state
	tg.FnInitialize = state.initialize
	tg.FnUpdate = state.update
	tg.FnRender = state.render
	tg.FnOnResize = state.onResize
	tg.FnShutdown = state.shutdown
	return tg
}

func (g *gameState) initialize(services *engine.Services) error {
	device := services.Device
	vertices, indices := cube()
	var err error
	g.vertexBuffer, err = uploadBuffer(device, "cube_vertices", metadata.BufferUsageVertex, vertices)
	if err != nil {
		return err
	}
	g.indexBuffer, err = uploadBuffer(device, "cube_indices", metadata.BufferUsageIndex, indices)
	if err != nil {
		return err
	}
	g.indexCount = uint32(len(indices) / 4)

	// Disk textures stream in; the renderer draws fallbacks until they are ready.
	if g.crate, err = services.Textures.Acquire(crateTexture); err != nil {
		return err
	}
	if g.skybox, err = services.Textures.AcquireCube(skyboxTexture, ".png"); err != nil {
		return err
	}
	if g.checker, err = services.Textures.Create(checkerTexture, checkerSize, checkerSize, checker()); err != nil {
		return err
	}

	half := float32(gridSize-1) * gridSpacing / 2
	for x := 0; x < gridSize; x++ {
		for z := 0; z < gridSize; z++ {
			pos := f32.Vec3{float32(x)*gridSpacing - half, 0, float32(z)*gridSpacing - half}
			d := &metadata.Drawable{
				Name:         fmt.Sprintf("cube_%d_%d", x, z),
				Transform:    math.Mat4Translation(pos),
				VertexBuffer: g.vertexBuffer,
				IndexBuffer:  g.indexBuffer,
				IndexCount:   g.indexCount,
				CastsShadow:  true,
			}
			d.Textures[metadata.TextureSlotAlbedo] = g.crate
			g.drawables = append(g.drawables, d)
		}
	}
	ground := &metadata.Drawable{
		Name:         "ground",
		Transform:    math.Mat4Mul(math.Mat4Translation(f32.Vec3{0, -1.5, 0}), math.Mat4Scale(f32.Vec3{half + 4, 0.5, half + 4})),
		VertexBuffer: g.vertexBuffer,
		IndexBuffer:  g.indexBuffer,
		IndexCount:   g.indexCount,
	}
	ground.Textures[metadata.TextureSlotAlbedo] = g.checker
	g.drawables = append(g.drawables, ground)
	core.LogInfo("testbed scene ready with %d drawables", len(g.drawables))
	return nil
}

func (g *gameState) update(deltaTime float64) error {
	// Holding space pauses the orbit.
	if !core.InputIsKeyDown(core.KEY_SPACE) {
		g.time += deltaTime
	}
	return nil
}

func (g *gameState) render(scene *metadata.Scene, deltaTime float64) error {
	angle := g.time * orbitSpeed
	eye := f32.Vec3{
		float32(stdmath.Cos(angle)) * orbitRadius,
		6,
		float32(stdmath.Sin(angle)) * orbitRadius,
	}
	g.camera.SetPosition(eye)
	g.camera.LookAt(f32.Vec3{})
	scene.Camera = g.camera.Metadata()

	up := f32.Vec3{0, 1, 0}

	dir := math.Vec3Normalize(f32.Vec3{-0.4, -1, -0.3})
	lightPos := f32.Vec3{-dir[0] * 20, -dir[1] * 20, -dir[2] * 20}
	scene.Light = metadata.DirectionalLight{
		Direction: dir,
		Color:     f32.Vec3{1, 0.96, 0.9},
		Intensity: 3,
		ViewProjection: math.Mat4Mul(
			math.Mat4Orthographic(-15, 15, -15, 15, 1, 50),
			math.Mat4LookAt(lightPos, f32.Vec3{}, up),
		),
	}
	scene.Ambient = f32.Vec4{0.03, 0.03, 0.04, 1}
	scene.Drawables = g.drawables
	scene.Skybox = g.skybox
	return nil
}

func (g *gameState) onResize(width uint32, height uint32) error {
	g.camera.Resize(width, height)
	return nil
}

func (g *gameState) shutdown(services *engine.Services) error {
	for _, name := range []string{crateTexture, skyboxTexture, checkerTexture} {
		services.Textures.Release(name)
	}
	device := services.Device
	if g.vertexBuffer != 0 {
		device.DestroyBuffer(g.vertexBuffer)
	}
	if g.indexBuffer != 0 {
		device.DestroyBuffer(g.indexBuffer)
	}
	g.drawables = nil
	return nil
}

func uploadBuffer(device metadata.GraphicsDevice, name string, usage metadata.BufferUsage, data []byte) (metadata.BufferHandle, error) {
	buffer, err := device.CreateBuffer(metadata.BufferCreateInfo{
		Name:        name,
		Size:        uint64(len(data)),
		Usage:       usage,
		HostVisible: true,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to create `%s`: %w", name, err)
	}
	if err := device.WriteBuffer(buffer, 0, data); err != nil {
		device.DestroyBuffer(buffer)
		return 0, fmt.Errorf("failed to write `%s`: %w", name, err)
	}
	return buffer, nil
}

// cube returns a unit cube with one set of four vertices per face.
func cube() (vertices []byte, indices []byte) {
	faces := []struct{ normal, tangent, u, v f32.Vec3 }{
		{f32.Vec3{1, 0, 0}, f32.Vec3{0, 0, -1}, f32.Vec3{0, 0, -1}, f32.Vec3{0, 1, 0}},
		{f32.Vec3{-1, 0, 0}, f32.Vec3{0, 0, 1}, f32.Vec3{0, 0, 1}, f32.Vec3{0, 1, 0}},
		{f32.Vec3{0, 1, 0}, f32.Vec3{1, 0, 0}, f32.Vec3{1, 0, 0}, f32.Vec3{0, 0, -1}},
		{f32.Vec3{0, -1, 0}, f32.Vec3{1, 0, 0}, f32.Vec3{1, 0, 0}, f32.Vec3{0, 0, 1}},
		{f32.Vec3{0, 0, 1}, f32.Vec3{1, 0, 0}, f32.Vec3{1, 0, 0}, f32.Vec3{0, 1, 0}},
		{f32.Vec3{0, 0, -1}, f32.Vec3{-1, 0, 0}, f32.Vec3{-1, 0, 0}, f32.Vec3{0, 1, 0}},
	}
	corners := [4][2]float32{{-1, -1}, {1, -1}, {1, 1}, {-1, 1}}

	vertices = make([]byte, 0, len(faces)*4*vertexFloats*4)
	indices = make([]byte, 0, len(faces)*6*4)
	put := func(fs ...float32) {
		for _, f := range fs {
			vertices = binary.LittleEndian.AppendUint32(vertices, stdmath.Float32bits(f))
		}
	}
	for i, face := range faces {
		for _, c := range corners {
			pos := f32.Vec3{
				face.normal[0] + c[0]*face.u[0] + c[1]*face.v[0],
				face.normal[1] + c[0]*face.u[1] + c[1]*face.v[1],
				face.normal[2] + c[0]*face.u[2] + c[1]*face.v[2],
			}
			put(pos[0]*0.5, pos[1]*0.5, pos[2]*0.5)
			put(face.normal[0], face.normal[1], face.normal[2])
			put((c[0]+1)/2, (c[1]+1)/2)
			put(face.tangent[0], face.tangent[1], face.tangent[2], 1)
		}
		base := uint32(i * 4)
		for _, idx := range []uint32{0, 1, 2, 2, 3, 0} {
			indices = binary.LittleEndian.AppendUint32(indices, base+idx)
		}
	}
	return vertices, indices
}

// checker returns RGBA8 pixels of an 8x8 grey checkerboard.
func checker() []byte {
	pixels := make([]byte, 0, checkerSize*checkerSize*4)
	cell := checkerSize / 8
	for y := 0; y < checkerSize; y++ {
		for x := 0; x < checkerSize; x++ {
			v := byte(90)
			if (x/cell+y/cell)%2 == 0 {
				v = 200
			}
			pixels = append(pixels, v, v, v, 255)
		}
	}
	return pixels
}

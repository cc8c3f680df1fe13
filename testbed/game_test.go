package testbed

import (
	"encoding/binary"
	"testing"

	"github.com/spaghettifunk/prism/engine"
	"github.com/spaghettifunk/prism/engine/renderer/headless"
	"github.com/spaghettifunk/prism/engine/renderer/metadata"
	"github.com/spaghettifunk/prism/engine/systems"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCubeGeometry(t *testing.T) {
	vertices, indices := cube()
	assert.Len(t, vertices, 24*vertexFloats*4)
	assert.Len(t, indices, 36*4)
	for i := 0; i < len(indices); i += 4 {
		assert.Less(t, binary.LittleEndian.Uint32(indices[i:]), uint32(24))
	}
	assert.Len(t, checker(), checkerSize*checkerSize*4)
}

func TestSceneLifecycle(t *testing.T) {
	device := headless.New()
	jobs, err := systems.NewJobSystem(1, 4)
	require.NoError(t, err)
	textures, err := systems.NewTextureSystem(systems.TextureSystemConfig{Dir: t.TempDir(), MaxTextureCount: 8}, device, jobs)
	require.NoError(t, err)
	services := &engine.Services{Device: device, Textures: textures}

	tg := NewTestGame(nil)
	state := tg.State.(*gameState)

	require.NoError(t, tg.FnInitialize(services))
	require.NoError(t, tg.FnOnResize(160, 90))
	require.NoError(t, tg.FnUpdate(0.5))

	scene := &metadata.Scene{}
	require.NoError(t, tg.FnRender(scene, 0.5))
	assert.Len(t, scene.Drawables, gridSize*gridSize+1)
	assert.Equal(t, state.indexCount, scene.Drawables[0].IndexCount)
	assert.Same(t, state.crate, scene.Drawables[0].Textures[metadata.TextureSlotAlbedo])
	assert.True(t, scene.Drawables[len(scene.Drawables)-1].Textures[metadata.TextureSlotAlbedo].Ready)
	assert.Same(t, state.skybox, scene.Skybox)
	assert.NotZero(t, scene.Camera.Projection[0])
	assert.Less(t, scene.Light.Direction[1], float32(0))

	require.NoError(t, tg.FnShutdown(services))
	require.NoError(t, jobs.Shutdown())
	require.NoError(t, textures.Shutdown())
	assert.Empty(t, device.LiveObjects())
	device.Destroy()
	assert.Empty(t, device.Violations())
}

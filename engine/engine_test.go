package engine

import (
	"testing"

	"github.com/spaghettifunk/prism/engine/config"
	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/renderer/metadata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func smallConfig(cfg *config.Config) error {
	cfg.Renderer.SwapchainImages = 2
	cfg.Renderer.MaxObjects = 4
	cfg.Application.Width = 32
	cfg.Application.Height = 32
	cfg.Descriptors.BindlessTextures = 8
	cfg.Passes.Shadow.Resolution = 16
	cfg.Passes.Voxel.Resolution = 8
	cfg.Assets.ShaderDir = "testdata/no-shaders"
	return nil
}

func TestHeadlessRunStopsAfterFrames(t *testing.T) {
	var updates, renders int
	var resized []uint32
	g := &Game{
		ApplicationConfig: &ApplicationConfig{Headless: true, Frames: 6},
		FnBoot:            smallConfig,
		FnUpdate: func(deltaTime float64) error {
			updates++
			if updates == 1 {
				core.InputProcessKey(core.KEY_F8, true)
				core.InputProcessKey(core.KEY_F2, true)
			}
			return nil
		},
		FnRender: func(scene *metadata.Scene, deltaTime float64) error {
			renders++
			return nil
		},
		FnOnResize: func(width, height uint32) error {
			resized = append(resized, width, height)
			return nil
		},
	}

	e, err := New(g)
	require.NoError(t, err)
	require.NoError(t, e.Initialize())
	assert.Equal(t, config.BackendHeadless, e.Renderer().Config().Renderer.Backend)
	assert.Equal(t, []uint32{32, 32}, resized)

	require.NoError(t, e.Run())
	assert.Equal(t, 6, updates)
	assert.Equal(t, 6, renders)

	cfg := e.Renderer().Config()
	assert.False(t, cfg.Passes.Bloom.Enabled)
	assert.Equal(t, config.ShadingOutputs()[1], cfg.Passes.Composition.Output)

	core.InputProcessKey(core.KEY_F8, false)
	core.InputProcessKey(core.KEY_F2, false)
	core.EventDispatch()
	require.NoError(t, e.Shutdown())
	require.NoError(t, e.Shutdown())
}

func TestQuitEventEndsRun(t *testing.T) {
	g := &Game{
		ApplicationConfig: &ApplicationConfig{Headless: true},
		FnBoot:            smallConfig,
		FnUpdate: func(deltaTime float64) error {
			core.InputProcessKey(core.KEY_ESCAPE, true)
			return nil
		},
	}
	e, err := New(g)
	require.NoError(t, err)
	require.NoError(t, e.Initialize())
	require.NoError(t, e.Run())
	core.InputProcessKey(core.KEY_ESCAPE, false)
	core.EventDispatch()
	require.NoError(t, e.Shutdown())
}

func TestMinimizeSuspendsRendering(t *testing.T) {
	g := &Game{
		ApplicationConfig: &ApplicationConfig{Headless: true, Frames: 1},
		FnBoot:            smallConfig,
	}
	e, err := New(g)
	require.NoError(t, err)
	require.NoError(t, e.Initialize())
	defer e.Shutdown()

	e.onResized(core.EventContext{Type: core.EVENT_CODE_RESIZED, Data: &core.SystemEvent{WindowWidth: 0, WindowHeight: 0}})
	assert.True(t, e.isSuspended)
	e.onResized(core.EventContext{Type: core.EVENT_CODE_RESIZED, Data: &core.SystemEvent{WindowWidth: 48, WindowHeight: 40}})
	assert.False(t, e.isSuspended)
	assert.True(t, e.Renderer().Pipeline().ResizePending())

	require.NoError(t, e.Run())
	w, h := e.GetFramebufferSize()
	assert.Equal(t, uint32(48), w)
	assert.Equal(t, uint32(40), h)
	assert.Equal(t, metadata.Extent2D{Width: 48, Height: 40}, e.Renderer().Device().SwapchainExtent())
}

func TestInvalidBootConfig(t *testing.T) {
	g := &Game{
		ApplicationConfig: &ApplicationConfig{Headless: true},
		FnBoot: func(cfg *config.Config) error {
			cfg.Renderer.Buffering = 0
			return nil
		},
	}
	_, err := New(g)
	assert.Error(t, err)
}

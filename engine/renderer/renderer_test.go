package renderer

import (
	"context"
	"testing"

	"github.com/spaghettifunk/prism/engine/config"
	"github.com/spaghettifunk/prism/engine/math"
	"github.com/spaghettifunk/prism/engine/renderer/headless"
	"github.com/spaghettifunk/prism/engine/renderer/metadata"
	"github.com/spaghettifunk/prism/engine/renderer/passes"
	"github.com/spaghettifunk/prism/engine/renderer/pipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Renderer.Backend = config.BackendHeadless
	cfg.Renderer.SwapchainImages = 2
	cfg.Renderer.MaxObjects = 8
	cfg.Application.Width = 64
	cfg.Application.Height = 64
	cfg.Descriptors.BindlessTextures = 16
	cfg.Passes.Shadow.Resolution = 32
	cfg.Passes.Voxel.Resolution = 16
	return cfg
}

func newRenderer(t *testing.T, cfg *config.Config) (*Renderer, *headless.Device) {
	t.Helper()
	device, err := NewBackend(cfg, nil)
	require.NoError(t, err)
	d, ok := device.(*headless.Device)
	require.True(t, ok)
	r, err := New(context.Background(), cfg, device, headless.NewSurface(metadata.Extent2D{Width: 64, Height: 64}), nil)
	require.NoError(t, err)
	return r, d
}

func demoScene() *metadata.Scene {
	return &metadata.Scene{
		Drawables: []*metadata.Drawable{{
			Name:         "cube",
			Transform:    math.Mat4Identity(),
			VertexBuffer: 1,
			IndexBuffer:  2,
			IndexCount:   36,
			CastsShadow:  true,
		}},
	}
}

func names(r *Renderer) []string {
	var out []string
	for _, p := range r.Pipeline().Passes() {
		out = append(out, p.Base().Name)
	}
	return out
}

func TestNewBuildsStandardPipeline(t *testing.T) {
	r, d := newRenderer(t, testConfig())
	assert.Equal(t, []string{
		passes.ShadowName,
		passes.GBufferName,
		passes.AOName,
		passes.EnvironmentName,
		passes.CompositionName,
		passes.BloomName,
		passes.AntiAliasingName,
	}, names(r))
	assert.Equal(t, pipeline.StateBuilt, r.Pipeline().State())

	for i := 0; i < 4; i++ {
		require.NoError(t, r.DrawFrame(demoScene()))
	}
	assert.LessOrEqual(t, d.MaxInFlight(), 2)
	require.NoError(t, r.Shutdown())
	assert.Empty(t, d.LiveObjects())
	assert.Empty(t, d.Violations())
}

func TestVoxelPassFollowsConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Passes.Voxel.Enabled = true
	r, d := newRenderer(t, cfg)
	assert.Contains(t, names(r), passes.VoxelName)
	require.NoError(t, r.DrawFrame(demoScene()))
	require.NoError(t, r.Shutdown())
	assert.Empty(t, d.LiveObjects())
}

func TestVoxelPassLeftOutWithoutAccelerationStructures(t *testing.T) {
	cfg := testConfig()
	cfg.Passes.Voxel.Enabled = true
	d := headless.New(
		headless.WithSwapchain(2, metadata.Extent2D{Width: 64, Height: 64}),
		headless.WithLimits(metadata.DeviceLimits{
			MinUniformBufferOffsetAlignment: 256,
			MaxPushConstantsSize:            128,
			MaxBoundDescriptorSets:          8,
		}),
	)
	r, err := New(context.Background(), cfg, d, headless.NewSurface(metadata.Extent2D{Width: 64, Height: 64}), nil)
	require.NoError(t, err)
	assert.NotContains(t, names(r), passes.VoxelName)

	require.NoError(t, r.ApplyConfig(cfg))
	assert.NotContains(t, names(r), passes.VoxelName)
	require.NoError(t, r.DrawFrame(demoScene()))
	require.NoError(t, r.Shutdown())
	assert.Empty(t, d.LiveObjects())
	assert.Empty(t, d.Violations())
}

func TestResizeAndToggles(t *testing.T) {
	r, d := newRenderer(t, testConfig())
	require.NoError(t, r.DrawFrame(demoScene()))

	r.OnResize(96, 48)
	require.NoError(t, r.DrawFrame(demoScene()))
	// The surface still reports its own size, which wins over the request.
	assert.Equal(t, metadata.Extent2D{Width: 64, Height: 64}, d.SwapchainExtent())

	enabled, err := r.TogglePass(passes.AOName)
	require.NoError(t, err)
	assert.False(t, enabled)
	assert.False(t, r.Pipeline().Settings().AO.Enabled)
	assert.False(t, r.Config().Passes.AO.Enabled)

	enabled, err = r.TogglePass(passes.EnvironmentName)
	require.NoError(t, err)
	assert.False(t, enabled)

	_, err = r.TogglePass(passes.AntiAliasingName)
	require.NoError(t, err)
	assert.False(t, r.Pipeline().Settings().AA.Enabled)

	require.NoError(t, r.SetShadingOutput(config.ShadingNormal))
	assert.Equal(t, config.ShadingNormal, r.Pipeline().Settings().Composition.Output)
	assert.Error(t, r.SetShadingOutput("wireframe"))

	require.NoError(t, r.ReloadShaders())
	require.NoError(t, r.DrawFrame(demoScene()))
	require.NoError(t, r.Shutdown())
	assert.Empty(t, d.LiveObjects())
	assert.Empty(t, d.Violations())
}

func TestApplyConfig(t *testing.T) {
	r, d := newRenderer(t, testConfig())
	next := testConfig()
	next.Passes.Bloom.Strength = 0.2
	next.Passes.Shadow.Resolution = 64
	require.NoError(t, r.ApplyConfig(next))
	assert.Equal(t, float32(0.2), r.Pipeline().Settings().Bloom.Strength)

	shadow, ok := r.Pipeline().Pass(passes.ShadowName)
	require.True(t, ok)
	assert.Equal(t, uint32(64), shadow.Base().Extent.Width)

	bad := testConfig()
	bad.Renderer.Buffering = 9
	assert.Error(t, r.ApplyConfig(bad))

	require.NoError(t, r.DrawFrame(demoScene()))
	require.NoError(t, r.Shutdown())
	assert.Empty(t, d.LiveObjects())
}

func TestNewBackendRejectsMissingWindow(t *testing.T) {
	cfg := testConfig()
	cfg.Renderer.Backend = config.BackendVulkan
	_, err := NewBackend(cfg, nil)
	assert.Error(t, err)
}

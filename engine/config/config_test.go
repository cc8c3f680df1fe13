package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestParseOverridesDefaults(t *testing.T) {
	cfg, err := Parse([]byte(`
[renderer]
backend = "headless"
buffering = 3

[passes.ao]
samples = 0

[passes.composition]
output = "normal"
`))
	require.NoError(t, err)
	assert.Equal(t, BackendHeadless, cfg.Renderer.Backend)
	assert.Equal(t, 3, cfg.Renderer.Buffering)
	assert.Equal(t, 0, cfg.Passes.AO.Samples)
	assert.Equal(t, ShadingNormal, cfg.Passes.Composition.Output)
	assert.Equal(t, uint32(2048), cfg.Passes.Shadow.Resolution, "untouched keys keep defaults")
}

func TestParseRejectsInvalid(t *testing.T) {
	tests := map[string]string{
		"backend":   "[renderer]\nbackend = \"metal\"",
		"buffering": "[renderer]\nbuffering = 4",
		"output":    "[passes.composition]\noutput = \"wireframe\"",
		"samples":   "[passes.ao]\nsamples = -1",
		"workers":   "[assets]\nworkers = 0",
		"syntax":    "[renderer\n",
	}
	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(data))
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestMarshalRoundTripsThroughLoad(t *testing.T) {
	cfg := Default()
	cfg.Passes.Bloom.Strength = 0.25
	data, err := Marshal(cfg)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "prism.toml")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, float32(0.25), loaded.Passes.Bloom.Strength)
}

func TestShadingOutputIndex(t *testing.T) {
	for i, o := range ShadingOutputs() {
		assert.Equal(t, i, o.Index())
	}
	assert.Equal(t, -1, ShadingOutput("nope").Index())
}

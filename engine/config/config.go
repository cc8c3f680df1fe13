package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
	"github.com/spaghettifunk/prism/engine/core"
)

type Backend string

const (
	BackendVulkan   Backend = "vulkan"
	BackendHeadless Backend = "headless"
)

// ShadingOutput selects what the composition pass writes.
type ShadingOutput string

const (
	ShadingLit    ShadingOutput = "lit"
	ShadingAlbedo ShadingOutput = "albedo"
	ShadingNormal ShadingOutput = "normal"
	ShadingAO     ShadingOutput = "ao"
	ShadingShadow ShadingOutput = "shadow"
	ShadingVoxel  ShadingOutput = "voxel"
)

var shadingOutputs = []ShadingOutput{ShadingLit, ShadingAlbedo, ShadingNormal, ShadingAO, ShadingShadow, ShadingVoxel}

// Index returns the push constant value the composition shader switches on.
func (s ShadingOutput) Index() int {
	for i, o := range shadingOutputs {
		if o == s {
			return i
		}
	}
	return -1
}

// ShadingOutputs lists every valid output, in push constant order.
func ShadingOutputs() []ShadingOutput {
	return append([]ShadingOutput(nil), shadingOutputs...)
}

type Config struct {
	Application ApplicationConfig `toml:"application"`
	Renderer    RendererConfig    `toml:"renderer"`
	Descriptors DescriptorConfig  `toml:"descriptors"`
	Passes      PassSettings      `toml:"passes"`
	Assets      AssetsConfig      `toml:"assets"`
}

type ApplicationConfig struct {
	Name   string `toml:"name"`
	PosX   uint32 `toml:"pos_x"`
	PosY   uint32 `toml:"pos_y"`
	Width  uint32 `toml:"width"`
	Height uint32 `toml:"height"`
}

type RendererConfig struct {
	Backend         Backend `toml:"backend"`
	Buffering       int     `toml:"buffering"`
	SwapchainImages int     `toml:"swapchain_images"`
	LogLevel        string  `toml:"log_level"`
	MaxObjects      int     `toml:"max_objects"`
	Validation      bool    `toml:"validation"`
}

// DescriptorConfig holds the capacity hints every pass pool is sized from.
type DescriptorConfig struct {
	MaxSets                uint32 `toml:"max_sets"`
	UniformBuffers         uint32 `toml:"uniform_buffers"`
	DynamicUniformBuffers  uint32 `toml:"dynamic_uniform_buffers"`
	StorageBuffers         uint32 `toml:"storage_buffers"`
	SampledImages          uint32 `toml:"sampled_images"`
	StorageImages          uint32 `toml:"storage_images"`
	AccelerationStructures uint32 `toml:"acceleration_structures"`
	BindlessTextures       uint32 `toml:"bindless_textures"`
}

type PassSettings struct {
	Shadow      ShadowSettings      `toml:"shadow"`
	AO          AOSettings          `toml:"ao"`
	Voxel       VoxelSettings       `toml:"voxel"`
	Bloom       BloomSettings       `toml:"bloom"`
	Composition CompositionSettings `toml:"composition"`
	AA          AASettings          `toml:"aa"`
}

type ShadowSettings struct {
	Enabled    bool   `toml:"enabled"`
	Resolution uint32 `toml:"resolution"`
}

type AOSettings struct {
	Enabled   bool    `toml:"enabled"`
	Samples   int     `toml:"samples"`
	Radius    float32 `toml:"radius"`
	NoiseSize uint32  `toml:"noise_size"`
	Seed      uint64  `toml:"seed"`
}

type VoxelSettings struct {
	Enabled    bool   `toml:"enabled"`
	Resolution uint32 `toml:"resolution"`
}

type BloomSettings struct {
	Enabled   bool    `toml:"enabled"`
	Strength  float32 `toml:"strength"`
	Threshold float32 `toml:"threshold"`
	Mips      uint32  `toml:"mips"`
}

type CompositionSettings struct {
	Output ShadingOutput `toml:"output"`
}

type AASettings struct {
	Enabled bool `toml:"enabled"`
}

type AssetsConfig struct {
	ShaderDir  string `toml:"shader_dir"`
	TextureDir string `toml:"texture_dir"`
	Watch      bool   `toml:"watch"`
	// Workers decode textures in the background.
	Workers     int    `toml:"workers"`
	MaxTextures uint32 `toml:"max_textures"`
}

func Default() *Config {
	return &Config{
		Application: ApplicationConfig{
			Name:   "Prism",
			PosX:   100,
			PosY:   100,
			Width:  1280,
			Height: 720,
		},
		Renderer: RendererConfig{
			Backend:         BackendVulkan,
			Buffering:       2,
			SwapchainImages: 3,
			LogLevel:        "debug",
			MaxObjects:      1024,
			Validation:      true,
		},
		Descriptors: DescriptorConfig{
			MaxSets:                64,
			UniformBuffers:         64,
			DynamicUniformBuffers:  16,
			StorageBuffers:         16,
			SampledImages:          256,
			StorageImages:          32,
			AccelerationStructures: 4,
			BindlessTextures:       1024,
		},
		Passes: PassSettings{
			Shadow:      ShadowSettings{Enabled: true, Resolution: 2048},
			AO:          AOSettings{Enabled: true, Samples: 32, Radius: 0.5, NoiseSize: 4, Seed: 1337},
			Voxel:       VoxelSettings{Enabled: false, Resolution: 128},
			Bloom:       BloomSettings{Enabled: true, Strength: 0.04, Threshold: 1.0, Mips: 5},
			Composition: CompositionSettings{Output: ShadingLit},
			AA:          AASettings{Enabled: true},
		},
		Assets: AssetsConfig{
			ShaderDir:   "assets/shaders",
			TextureDir:  "assets/textures",
			Watch:       true,
			Workers:     2,
			MaxTextures: 256,
		},
	}
}

// Load reads a TOML file on top of the defaults. A missing file is not an
// error: the defaults are returned and a warning is logged.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			core.LogWarn("config file `%s` not found, using defaults", path)
			return Default(), nil
		}
		return nil, fmt.Errorf("failed to read config `%s`: %w", path, err)
	}
	return Parse(data)
}

func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func Marshal(cfg *Config) ([]byte, error) {
	return toml.Marshal(cfg)
}

func (c *Config) Validate() error {
	switch c.Renderer.Backend {
	case BackendVulkan, BackendHeadless:
	default:
		return fmt.Errorf("invalid config: unknown backend `%s`", c.Renderer.Backend)
	}
	if c.Renderer.Buffering < 1 || c.Renderer.Buffering > 3 {
		return fmt.Errorf("invalid config: buffering must be between 1 and 3, got %d", c.Renderer.Buffering)
	}
	if c.Renderer.SwapchainImages < 1 {
		return fmt.Errorf("invalid config: swapchain_images must be positive")
	}
	if c.Renderer.MaxObjects < 1 {
		return fmt.Errorf("invalid config: max_objects must be positive")
	}
	if c.Application.Width == 0 || c.Application.Height == 0 {
		return fmt.Errorf("invalid config: window size must be non zero")
	}
	if c.Descriptors.MaxSets == 0 {
		return fmt.Errorf("invalid config: descriptors.max_sets must be positive")
	}
	if c.Passes.Shadow.Resolution == 0 || c.Passes.Voxel.Resolution == 0 {
		return fmt.Errorf("invalid config: shadow and voxel resolutions must be non zero")
	}
	if c.Passes.AO.Samples < 0 {
		return fmt.Errorf("invalid config: ao.samples must not be negative")
	}
	if c.Assets.Workers < 1 || c.Assets.MaxTextures == 0 {
		return fmt.Errorf("invalid config: assets.workers and assets.max_textures must be positive")
	}
	if c.Passes.Composition.Output.Index() < 0 {
		return fmt.Errorf("invalid config: unknown shading output `%s`", c.Passes.Composition.Output)
	}
	return nil
}

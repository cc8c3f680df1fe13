package renderer

import (
	"context"
	"fmt"

	"github.com/spaghettifunk/prism/engine/assets"
	"github.com/spaghettifunk/prism/engine/config"
	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/renderer/metadata"
	"github.com/spaghettifunk/prism/engine/renderer/pass"
	"github.com/spaghettifunk/prism/engine/renderer/passes"
	"github.com/spaghettifunk/prism/engine/renderer/pipeline"
)

// Renderer drives the standard deferred pipeline:
// shadow, gbuffer, ambient occlusion, the optional voxelization, environment,
// composition, bloom and anti aliasing into the swapchain.
type Renderer struct {
	cfg      *config.Config
	device   metadata.GraphicsDevice
	pipeline *pipeline.RenderPipeline
	// voxel tells whether the voxel pass was part of the build. Turning it
	// on later needs a new renderer.
	voxel bool
}

// New builds the pipeline described by cfg on the device. A nil surface
// means nothing presents to a window.
func New(ctx context.Context, cfg *config.Config, device metadata.GraphicsDevice, surface pipeline.Surface, shaders assets.ShaderSource) (*Renderer, error) {
	rp, err := pipeline.New(pipeline.Options{
		Device:      device,
		Surface:     surface,
		Shaders:     shaders,
		Settings:    cfg.Passes,
		Descriptors: cfg.Descriptors,
		FrameCount:  cfg.Renderer.Buffering,
		MaxObjects:  cfg.Renderer.MaxObjects,
		Context:     ctx,
	})
	if err != nil {
		return nil, err
	}
	r := &Renderer{cfg: cfg, device: device, pipeline: rp, voxel: cfg.Passes.Voxel.Enabled}
	if r.voxel && !device.Limits().SupportsAccelerationStructures {
		core.LogWarn("the device has no acceleration structures, voxelization is left out")
		r.voxel = false
	}
	r.assemble()
	if err := rp.Build(); err != nil {
		return nil, fmt.Errorf("failed to build renderer: %w", err)
	}
	return r, nil
}

func (r *Renderer) assemble() {
	rp := r.pipeline
	reg := rp.Registry()

	inputs := passes.CompositionInputs{
		Shadow:  rp.Add(passes.NewShadow(reg)),
		GBuffer: rp.Add(passes.NewGBuffer(reg)),
		Voxel:   passes.NoInput,
	}
	inputs.AO = rp.Add(passes.NewAmbientOcclusion(reg), pass.ImageDependency{
		Producer:    inputs.GBuffer,
		Attachments: []int{passes.GBufferNormal, passes.GBufferDepth},
	})
	if r.voxel {
		inputs.Voxel = rp.Add(passes.NewVoxelization(reg))
	}
	inputs.Environment = rp.Add(passes.NewEnvironment(reg))
	composition := rp.Add(passes.NewComposition(reg, inputs), inputs.Dependencies()...)
	hdr := pass.ImageDependency{Producer: composition, Attachments: []int{0}}
	bloom := rp.Add(passes.NewBloom(reg), hdr)
	rp.Add(passes.NewAntiAliasing(reg, true), hdr, pass.ImageDependency{Producer: bloom, Attachments: []int{0}})
}

func (r *Renderer) Pipeline() *pipeline.RenderPipeline {
	return r.pipeline
}

func (r *Renderer) Device() metadata.GraphicsDevice {
	return r.device
}

func (r *Renderer) Config() *config.Config {
	return r.cfg
}

func (r *Renderer) DrawFrame(scene *metadata.Scene) error {
	return r.pipeline.RenderFrame(scene)
}

// OnResize records the new framebuffer size. The swapchain is recreated
// before the next frame.
func (r *Renderer) OnResize(width, height uint32) {
	core.LogDebug("renderer resize requested to %dx%d", width, height)
	r.pipeline.RequestResize(metadata.Extent2D{Width: width, Height: height})
}

func (r *Renderer) ReloadShaders() error {
	return r.pipeline.ReloadShaders()
}

// ApplyConfig hands the pass settings of cfg to the running pipeline.
// Renderer settings other than the log level only apply to a new renderer.
func (r *Renderer) ApplyConfig(cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if cfg.Passes.Voxel.Enabled && !r.voxel {
		if r.device.Limits().SupportsAccelerationStructures {
			core.LogWarn("voxelization was not part of the pipeline when it was built, restart to enable it")
		} else {
			core.LogWarn("the device has no acceleration structures, voxelization stays off")
		}
	}
	renderer := cfg.Renderer
	renderer.LogLevel = r.cfg.Renderer.LogLevel
	if renderer != r.cfg.Renderer {
		core.LogWarn("renderer settings changed, they apply on restart")
	}
	core.SetLogLevel(cfg.Renderer.LogLevel)
	if err := r.pipeline.ApplySettings(cfg.Passes); err != nil {
		return err
	}
	r.cfg.Passes = cfg.Passes
	r.cfg.Renderer.LogLevel = cfg.Renderer.LogLevel
	return nil
}

// SetShadingOutput selects what composition writes.
func (r *Renderer) SetShadingOutput(output config.ShadingOutput) error {
	if output.Index() < 0 {
		return fmt.Errorf("unknown shading output `%s`", output)
	}
	settings := r.pipeline.Settings()
	settings.Composition.Output = output
	if err := r.pipeline.ApplySettings(settings); err != nil {
		return err
	}
	r.cfg.Passes = settings
	core.LogInfo("shading output: %s", output)
	return nil
}

// TogglePass flips the enabled setting of a pass. A disabled pass still
// records its clears so readers see a neutral image. Passes without an
// enabled setting are switched on and off in the pipeline instead.
func (r *Renderer) TogglePass(name string) (bool, error) {
	settings := r.pipeline.Settings()
	var enabled *bool
	switch name {
	case passes.ShadowName:
		enabled = &settings.Shadow.Enabled
	case passes.AOName:
		enabled = &settings.AO.Enabled
	case passes.VoxelName:
		enabled = &settings.Voxel.Enabled
	case passes.BloomName:
		enabled = &settings.Bloom.Enabled
	case passes.AntiAliasingName:
		enabled = &settings.AA.Enabled
	default:
		return r.pipeline.ToggleActive(name)
	}
	*enabled = !*enabled
	if err := r.pipeline.ApplySettings(settings); err != nil {
		return !*enabled, err
	}
	r.cfg.Passes = settings
	core.LogInfo("render pass `%s` enabled: %t", name, *enabled)
	return *enabled, nil
}

// Shutdown releases everything the pipeline created. The device stays up.
func (r *Renderer) Shutdown() error {
	return r.pipeline.Shutdown()
}

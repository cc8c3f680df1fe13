package pipeline

import (
	"errors"
	"fmt"

	"github.com/spaghettifunk/prism/engine/config"
	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/renderer/pass"
	"golang.org/x/exp/slices"
)

func (rp *RenderPipeline) Pass(name string) (pass.Pass, bool) {
	i := slices.IndexFunc(rp.passes, func(p pass.Pass) bool { return p.Base().Name == name })
	if i < 0 {
		return nil, false
	}
	return rp.passes[i], true
}

// Passes returns the passes in execution order.
func (rp *RenderPipeline) Passes() []pass.Pass {
	return slices.Clone(rp.passes)
}

// SetActive switches a pass on or off. An inactive pass records nothing but
// its outputs stay readable. The default pass cannot be switched off.
func (rp *RenderPipeline) SetActive(name string, active bool) error {
	p, ok := rp.Pass(name)
	if !ok {
		return fmt.Errorf("no render pass named `%s`", name)
	}
	b := p.Base()
	if b.IsDefault && !active {
		return fmt.Errorf("`%s` writes the swapchain and cannot be switched off: %w", name, core.ErrPipelineState)
	}
	if b.Active != active {
		b.Active = active
		core.LogInfo("render pass `%s` active: %t", name, active)
	}
	return nil
}

// ToggleActive flips a pass and returns its new state.
func (rp *RenderPipeline) ToggleActive(name string) (bool, error) {
	p, ok := rp.Pass(name)
	if !ok {
		return false, fmt.Errorf("no render pass named `%s`", name)
	}
	active := !p.Base().Active
	if err := rp.SetActive(name, active); err != nil {
		return !active, err
	}
	return active, nil
}

func (rp *RenderPipeline) Settings() config.PassSettings {
	return rp.registry.Settings
}

// ApplySettings hands new settings to every configurable pass once the
// device is idle. Passes whose fixed extent changed are rebuilt and their
// consumers relinked.
func (rp *RenderPipeline) ApplySettings(settings config.PassSettings) error {
	if err := rp.usable(); err != nil {
		return fmt.Errorf("apply settings: %w", err)
	}
	if err := rp.device.WaitIdle(); err != nil {
		return fmt.Errorf("apply settings: %w", err)
	}
	rp.registry.Settings = settings
	rebuilt := make([]bool, len(rp.passes))
	for i, p := range rp.passes {
		if c, ok := p.(pass.Configurable); ok {
			c.ApplySettings(settings)
		}
		var err error
		if rebuilt[i], err = pass.Resize(p, rp.registry.Extent); err != nil {
			return err
		}
	}
	return rp.relink(rebuilt)
}

// ReloadShaders rebuilds the pipelines of every pass from the shader source.
// A pass whose shaders no longer build is switched off until a later reload
// succeeds; the default pass failing is an error.
func (rp *RenderPipeline) ReloadShaders() error {
	if err := rp.usable(); err != nil {
		return fmt.Errorf("reload shaders: %w", err)
	}
	if err := rp.device.WaitIdle(); err != nil {
		return fmt.Errorf("reload shaders: %w", err)
	}
	var errs []error
	for _, p := range rp.passes {
		b := p.Base()
		b.DestroyPipelines()
		if err := p.SetupShaderPasses(); err != nil {
			if b.IsDefault {
				errs = append(errs, err)
				continue
			}
			core.LogError("switching `%s` off: %s", b.Name, err)
			b.DestroyPipelines()
			b.Active = false
			rp.disabled[b.Name] = true
			continue
		}
		if rp.disabled[b.Name] {
			delete(rp.disabled, b.Name)
			b.Active = true
			core.LogInfo("render pass `%s` is back on", b.Name)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("failed to reload shaders: %w", errors.Join(errs...))
	}
	core.LogInfo("shaders reloaded for %d passes", len(rp.passes))
	return nil
}

package pass

import (
	"fmt"

	"github.com/spaghettifunk/prism/engine/config"
	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/renderer/frame"
	"github.com/spaghettifunk/prism/engine/renderer/metadata"
)

// Pass is the contract every render pass implements. The shared mechanics
// live in Base; a pass only declares its attachments, its descriptors, its
// pipelines and what it records each frame.
type Pass interface {
	Base() *Base
	// SetupAttachments declares the output attachments and, for compute
	// passes, the layout transitions of storage attachments around Execute.
	SetupAttachments() ([]metadata.AttachmentSpec, []Transition, error)
	SetupUniforms(frames []*frame.Frame) error
	SetupShaderPasses() error
	Execute(f *frame.Frame, scene *metadata.Scene) error
}

// Linkable passes sample images produced by earlier passes. The images
// arrive in dependency order, attachments in the order they were declared.
type Linkable interface {
	LinkPreviousImages(images []*Image) error
}

// InputLinkable passes read their own attachments as input attachments.
type InputLinkable interface {
	LinkInputAttachments() error
}

// Updatable passes refresh per-frame uniforms before any pass executes.
type Updatable interface {
	UpdateUniforms(frameIndex int, scene *metadata.Scene) error
}

// Resizable passes are notified after their targets were recreated.
type Resizable interface {
	OnResize(extent metadata.Extent2D) error
}

// Configurable passes accept settings changes at runtime.
type Configurable interface {
	ApplySettings(s config.PassSettings)
}

// Cleaner passes drop state that lives outside Base before it is cleaned up.
type Cleaner interface {
	OnCleanup()
}

// Transition is a layout change of a storage attachment: into Before ahead
// of Execute and into After once it is done.
type Transition struct {
	Attachment int
	Before     metadata.ImageLayout
	After      metadata.ImageLayout
}

// ImageDependency names attachments of an earlier pass a consumer samples.
type ImageDependency struct {
	Producer    int
	Framebuffer int
	Attachments []int
}

// Setup runs the setup sequence of one pass: attachments, targets, uniforms
// and pipelines.
func Setup(p Pass, frames []*frame.Frame) error {
	b := p.Base()
	if b.state == StateCleanedUp {
		return fmt.Errorf("setup of `%s`: %w", b.Name, core.ErrPassCleanedUp)
	}
	specs, transitions, err := p.SetupAttachments()
	if err != nil {
		return fmt.Errorf("failed to set up attachments of `%s`: %w", b.Name, err)
	}
	b.Specs = specs
	b.Transitions = transitions
	if err := b.CreateTargets(); err != nil {
		return err
	}
	if err := p.SetupUniforms(frames); err != nil {
		return fmt.Errorf("failed to set up uniforms of `%s`: %w", b.Name, err)
	}
	if err := p.SetupShaderPasses(); err != nil {
		return fmt.Errorf("failed to set up shader passes of `%s`: %w", b.Name, err)
	}
	b.state = StateReady
	core.LogDebug("render pass `%s` set up with %d attachments and %d pipelines", b.Name, len(specs), len(b.Pipelines))
	return nil
}

// Link hands a pass the images its dependencies point at, then lets it bind
// its own input attachments.
func Link(p Pass, passes []Pass) error {
	b := p.Base()
	if lp, ok := p.(Linkable); ok && len(b.Dependencies) > 0 {
		images, err := ResolveDependencies(b, passes)
		if err != nil {
			return err
		}
		if err := lp.LinkPreviousImages(images); err != nil {
			return fmt.Errorf("failed to link `%s`: %w", b.Name, err)
		}
	}
	if ip, ok := p.(InputLinkable); ok {
		if err := ip.LinkInputAttachments(); err != nil {
			return fmt.Errorf("failed to link input attachments of `%s`: %w", b.Name, err)
		}
	}
	return nil
}

// ResolveDependencies returns the live images the dependencies of b point at.
func ResolveDependencies(b *Base, passes []Pass) ([]*Image, error) {
	var images []*Image
	for _, dep := range b.Dependencies {
		if dep.Producer < 0 || dep.Producer >= len(passes) {
			return nil, fmt.Errorf("`%s` depends on pass %d: %w", b.Name, dep.Producer, core.ErrUnknownDependency)
		}
		producer := passes[dep.Producer].Base()
		if dep.Framebuffer < 0 || dep.Framebuffer >= len(producer.Outputs) {
			return nil, fmt.Errorf("`%s` depends on framebuffer %d of `%s`: %w", b.Name, dep.Framebuffer, producer.Name, core.ErrUnknownDependency)
		}
		row := producer.Outputs[dep.Framebuffer]
		for _, a := range dep.Attachments {
			if a < 0 || a >= len(row) {
				return nil, fmt.Errorf("`%s` depends on attachment %d of `%s`: %w", b.Name, a, producer.Name, core.ErrUnknownDependency)
			}
			images = append(images, row[a])
		}
	}
	return images, nil
}

// Resize recreates the targets of a pass at extent and runs its hook. It
// reports whether the targets were rebuilt.
func Resize(p Pass, extent metadata.Extent2D) (bool, error) {
	b := p.Base()
	rebuilt, err := b.Resize(extent)
	if err != nil || !rebuilt {
		return false, err
	}
	if rp, ok := p.(Resizable); ok {
		if err := rp.OnResize(b.Extent); err != nil {
			return true, fmt.Errorf("failed to resize `%s`: %w", b.Name, err)
		}
	}
	return true, nil
}

// Cleanup runs the pass hook, then releases everything Base owns.
func Cleanup(p Pass) error {
	b := p.Base()
	if b.state == StateCleanedUp {
		return fmt.Errorf("cleanup of `%s`: %w", b.Name, core.ErrPassCleanedUp)
	}
	if c, ok := p.(Cleaner); ok {
		c.OnCleanup()
	}
	return b.Cleanup()
}

// Run executes a pass after checking that it is ready.
func Run(p Pass, f *frame.Frame, scene *metadata.Scene) error {
	b := p.Base()
	if err := b.Ready(); err != nil {
		return err
	}
	if err := p.Execute(f, scene); err != nil {
		return fmt.Errorf("failed to execute `%s`: %w", b.Name, err)
	}
	return nil
}

package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/spaghettifunk/prism/engine/assets"
	"github.com/spaghettifunk/prism/engine/config"
	"github.com/spaghettifunk/prism/engine/containers"
	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/renderer/frame"
	"github.com/spaghettifunk/prism/engine/renderer/metadata"
	"github.com/spaghettifunk/prism/engine/renderer/pass"
)

// pendingResizes bounds the resize requests kept between two frames. Only
// the latest one matters.
const pendingResizes = 4

// Surface is the window the swapchain presents to.
type Surface interface {
	FramebufferExtent() metadata.Extent2D
	// WaitEvents blocks until the window system has something to report.
	WaitEvents()
}

type Options struct {
	Device metadata.GraphicsDevice
	// Surface may be nil when nothing presents to a window. Resizes then use
	// the requested extent.
	Surface     Surface
	Shaders     assets.ShaderSource
	Settings    config.PassSettings
	Descriptors config.DescriptorConfig
	FrameCount  int
	MaxObjects  int
	// Context bounds the surface waits of resizes triggered by the frame
	// loop. Defaults to context.Background().
	Context context.Context
}

// RenderPipeline runs an ordered list of passes every frame. It owns the
// passes, the frame ring and the shared resources, and it is the only thing
// that creates, resizes and destroys them.
type RenderPipeline struct {
	id       string
	device   metadata.GraphicsDevice
	surface  Surface
	ctx      context.Context
	registry *pass.Registry

	passes []pass.Pass
	ring   *frame.Ring
	state  State

	resizes *containers.RingQueue[metadata.Extent2D]
	// disabled holds the passes a failed shader reload switched off.
	disabled map[string]bool
}

func New(opts Options) (*RenderPipeline, error) {
	if opts.Device == nil {
		return nil, fmt.Errorf("render pipeline needs a device")
	}
	if opts.Shaders == nil {
		opts.Shaders = assets.StubSource{}
	}
	if opts.FrameCount < 1 {
		opts.FrameCount = 2
	}
	if opts.Context == nil {
		opts.Context = context.Background()
	}
	rp := &RenderPipeline{
		id:      uuid.New().String(),
		device:  opts.Device,
		surface: opts.Surface,
		ctx:     opts.Context,
		registry: &pass.Registry{
			Device:      opts.Device,
			Extent:      opts.Device.SwapchainExtent(),
			FrameCount:  opts.FrameCount,
			Shaders:     opts.Shaders,
			Settings:    opts.Settings,
			Descriptors: opts.Descriptors,
			MaxObjects:  opts.MaxObjects,
		},
		resizes:  containers.NewRingQueue[metadata.Extent2D](pendingResizes),
		disabled: make(map[string]bool),
	}
	return rp, nil
}

// Registry is what passes are constructed with.
func (rp *RenderPipeline) Registry() *pass.Registry {
	return rp.registry
}

func (rp *RenderPipeline) State() State {
	return rp.state
}

// Ring returns the frame ring, nil before Build.
func (rp *RenderPipeline) Ring() *frame.Ring {
	return rp.ring
}

// Add appends a pass with the images it consumes and returns its index.
// Passes can only be added before Build.
func (rp *RenderPipeline) Add(p pass.Pass, deps ...pass.ImageDependency) int {
	if rp.state != StateUnbuilt {
		core.LogError("render pass `%s` added to a %s pipeline", p.Base().Name, rp.state)
		return -1
	}
	p.Base().Dependencies = deps
	rp.passes = append(rp.passes, p)
	return len(rp.passes) - 1
}

// Build validates the dependencies, sets every pass up in order and links
// them. On failure everything created so far is released and the pipeline
// is shut down.
func (rp *RenderPipeline) Build() error {
	if rp.state != StateUnbuilt {
		return fmt.Errorf("build of a %s pipeline: %w", rp.state, core.ErrPipelineState)
	}
	deps := make([][]pass.ImageDependency, len(rp.passes))
	for i, p := range rp.passes {
		deps[i] = p.Base().Dependencies
	}
	if _, err := pass.Validate(deps); err != nil {
		return fmt.Errorf("failed to validate render pipeline: %w", err)
	}

	res, err := pass.NewResources(rp.device)
	if err != nil {
		return fmt.Errorf("failed to create shared resources: %w", err)
	}
	rp.registry.Resources = res
	if rp.ring, err = frame.NewRing(rp.device, rp.registry.FrameCount, rp.registry.MaxObjects); err != nil {
		rp.teardown(0)
		return fmt.Errorf("failed to create frame ring: %w", err)
	}

	for i, p := range rp.passes {
		if err := pass.Setup(p, rp.ring.Frames()); err != nil {
			// The failed pass may hold part of its objects.
			rp.teardown(i + 1)
			return err
		}
	}
	for _, p := range rp.passes {
		if err := pass.Link(p, rp.passes); err != nil {
			rp.teardown(len(rp.passes))
			return err
		}
	}

	if rp.defaultPass() == nil {
		core.LogWarn("render pipeline %s has no default pass, nothing is written to the swapchain", rp.id)
	}
	rp.state = StateBuilt
	core.LogInfo("render pipeline %s built with %d passes and %d frames in flight", rp.id, len(rp.passes), rp.ring.Count())
	return nil
}

// teardown cleans up the first n passes in reverse order, then the frame
// ring and the shared resources.
func (rp *RenderPipeline) teardown(n int) error {
	var errs []error
	for i := n - 1; i >= 0; i-- {
		if err := pass.Cleanup(rp.passes[i]); err != nil {
			errs = append(errs, err)
		}
	}
	if rp.registry.Resources != nil {
		rp.registry.Resources.Destroy()
	}
	if rp.ring != nil {
		rp.ring.Destroy()
	}
	rp.state = StateShutDown
	return errors.Join(errs...)
}

// Shutdown waits for the device, cleans every pass up in reverse order and
// releases the shared resources and the frames. Calling it again does
// nothing.
func (rp *RenderPipeline) Shutdown() error {
	switch rp.state {
	case StateShutDown:
		return nil
	case StateUnbuilt:
		rp.state = StateShutDown
		return nil
	}
	if err := rp.device.WaitIdle(); err != nil {
		core.LogError("render pipeline shutdown: %s", err)
	}
	err := rp.teardown(len(rp.passes))
	core.LogInfo("render pipeline %s shut down", rp.id)
	return err
}

func (rp *RenderPipeline) defaultPass() pass.Pass {
	for _, p := range rp.passes {
		if p.Base().IsDefault {
			return p
		}
	}
	return nil
}

func (rp *RenderPipeline) usable() error {
	switch rp.state {
	case StateShutDown:
		return core.ErrPipelineShutDown
	case StateUnbuilt, StateResizing:
		return fmt.Errorf("pipeline is %s: %w", rp.state, core.ErrPipelineState)
	}
	return nil
}

package pipeline

import (
	"context"
	"fmt"

	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/renderer/metadata"
	"github.com/spaghettifunk/prism/engine/renderer/pass"
)

// RequestResize records a new surface extent. The resize itself happens at
// the start of the next frame.
func (rp *RenderPipeline) RequestResize(extent metadata.Extent2D) {
	if rp.resizes.IsFull() {
		rp.resizes.Dequeue()
	}
	rp.resizes.Enqueue(extent)
}

// ResizePending reports whether a requested resize has not run yet.
func (rp *RenderPipeline) ResizePending() bool {
	return !rp.resizes.IsEmpty()
}

// waitForExtent blocks until the surface has a drawable size. A minimised
// window reports 0x0 until it is restored.
func (rp *RenderPipeline) waitForExtent(ctx context.Context, requested metadata.Extent2D) (metadata.Extent2D, error) {
	if rp.surface == nil {
		if requested.IsZero() {
			requested = rp.device.SwapchainExtent()
		}
		return requested, nil
	}
	for {
		extent := rp.surface.FramebufferExtent()
		if !extent.IsZero() {
			return extent, nil
		}
		if err := ctx.Err(); err != nil {
			return extent, fmt.Errorf("waiting for a drawable surface: %w", err)
		}
		rp.surface.WaitEvents()
	}
}

// Resize recreates the swapchain at the surface extent, rebuilds the targets
// of every resizeable pass and of the default pass, then relinks every pass
// reading from a rebuilt one.
func (rp *RenderPipeline) Resize(ctx context.Context) error {
	switch rp.state {
	case StateShutDown:
		return fmt.Errorf("resize: %w", core.ErrPipelineShutDown)
	case StateUnbuilt, StateResizing:
		return fmt.Errorf("resize of a %s pipeline: %w", rp.state, core.ErrPipelineState)
	}
	previous := rp.state
	rp.state = StateResizing
	defer func() {
		if rp.state == StateResizing {
			rp.state = previous
		}
	}()

	requested, _ := rp.resizes.Drain()
	extent, err := rp.waitForExtent(ctx, requested)
	if err != nil {
		return err
	}
	if err := rp.device.WaitIdle(); err != nil {
		return fmt.Errorf("resize: %w", err)
	}
	if err := rp.device.RecreateSwapchain(extent); err != nil {
		return fmt.Errorf("failed to recreate swapchain at %dx%d: %w", extent.Width, extent.Height, err)
	}
	rp.registry.Extent = rp.device.SwapchainExtent()
	rp.ring.ResetImages(len(rp.device.SwapchainViews()))

	rebuilt := make([]bool, len(rp.passes))
	for i, p := range rp.passes {
		b := p.Base()
		if !b.Resizeable && !b.IsDefault {
			continue
		}
		if rebuilt[i], err = pass.Resize(p, rp.registry.Extent); err != nil {
			return err
		}
	}
	if err := rp.relink(rebuilt); err != nil {
		return err
	}
	core.LogInfo("render pipeline resized to %dx%d", rp.registry.Extent.Width, rp.registry.Extent.Height)
	return nil
}

// relink links again every pass that reads, directly or through other
// passes, from a pass whose targets were rebuilt.
func (rp *RenderPipeline) relink(rebuilt []bool) error {
	stale := append([]bool(nil), rebuilt...)
	for i, p := range rp.passes {
		affected := false
		for _, d := range p.Base().Dependencies {
			if stale[d.Producer] {
				affected = true
				break
			}
		}
		if !affected {
			continue
		}
		stale[i] = true
		if err := pass.Link(p, rp.passes); err != nil {
			return err
		}
	}
	return nil
}

package pipeline

import (
	"fmt"

	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/renderer/frame"
	"github.com/spaghettifunk/prism/engine/renderer/metadata"
	"github.com/spaghettifunk/prism/engine/renderer/pass"
	"golang.org/x/image/math/f32"
)

// RenderFrame records and submits one frame. A swapchain that went out of
// date on acquire is recreated and the frame is skipped; one that became
// stale on present is recreated after the frame.
func (rp *RenderPipeline) RenderFrame(scene *metadata.Scene) error {
	if err := rp.usable(); err != nil {
		return fmt.Errorf("render frame: %w", err)
	}
	if rp.ResizePending() {
		if err := rp.Resize(rp.ctx); err != nil {
			return err
		}
	}
	if scene == nil {
		scene = &metadata.Scene{}
	}

	if err := rp.ring.Wait(); err != nil {
		return err
	}
	f := rp.ring.Current()
	imageIndex, status, err := rp.device.AcquirePresentImage(f.ImageAvailable)
	if err != nil {
		return fmt.Errorf("failed to acquire swapchain image: %w", err)
	}
	if status == metadata.PresentStatusOutOfDate {
		core.LogDebug("swapchain out of date on acquire, skipping frame %d", f.Number)
		return rp.Resize(rp.ctx)
	}
	stale := status.Stale()

	if err := rp.ring.Begin(imageIndex); err != nil {
		return err
	}
	if err := rp.writeUniforms(f, scene); err != nil {
		return err
	}
	for _, p := range rp.passes {
		if up, ok := p.(pass.Updatable); ok {
			if err := up.UpdateUniforms(f.Index, scene); err != nil {
				return fmt.Errorf("failed to update uniforms of `%s`: %w", p.Base().Name, err)
			}
		}
	}
	for _, p := range rp.passes {
		b := p.Base()
		if !b.Active {
			// Consumers still sample the outputs of a switched off pass.
			b.TransitionOutputs(f.CommandBuffer, metadata.ImageLayoutShaderReadOnly)
			continue
		}
		if err := pass.Run(p, f, scene); err != nil {
			return err
		}
	}
	if err := rp.ring.Submit(); err != nil {
		return err
	}

	status, err = rp.device.PresentImage(imageIndex, f.RenderFinished)
	if err != nil {
		return fmt.Errorf("failed to present swapchain image %d: %w", imageIndex, err)
	}
	rp.ring.Advance()
	rp.state = StateActive
	if stale || status.Stale() {
		return rp.Resize(rp.ctx)
	}
	return nil
}

// writeUniforms fills the global record and the model matrix of one object
// record per drawable the frame has room for. Texture slots are written by
// the G-buffer pass.
func (rp *RenderPipeline) writeUniforms(f *frame.Frame, scene *metadata.Scene) error {
	limit := min(len(scene.Drawables), rp.registry.MaxObjects)
	if len(scene.Drawables) > limit {
		core.LogWarn("frame %d: drawing %d of %d drawables", f.Number, limit, len(scene.Drawables))
	}
	cam, light := scene.Camera, scene.Light
	g := frame.GlobalUniforms{
		View:                cam.View,
		Projection:          cam.Projection,
		LightViewProjection: light.ViewProjection,
		CameraPosition:      f32.Vec4{cam.Position[0], cam.Position[1], cam.Position[2], 1},
		LightDirection:      f32.Vec4{light.Direction[0], light.Direction[1], light.Direction[2], 0},
		LightColor:          f32.Vec4{light.Color[0], light.Color[1], light.Color[2], light.Intensity},
		Ambient:             scene.Ambient,
		Counters:            [4]uint32{uint32(f.Number), uint32(limit)},
	}
	if err := f.WriteGlobal(g); err != nil {
		return err
	}
	for i := 0; i < limit; i++ {
		d := scene.Drawables[i]
		if d == nil {
			continue
		}
		if err := f.WriteObjectModel(i, d.Transform); err != nil {
			return err
		}
	}
	return nil
}

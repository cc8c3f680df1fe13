package passes

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/renderer/descriptor"
	"github.com/spaghettifunk/prism/engine/renderer/frame"
	"github.com/spaghettifunk/prism/engine/renderer/metadata"
	"github.com/spaghettifunk/prism/engine/renderer/pass"
)

// Pass names, also used as the prefix of every pipeline and image debug name.
const (
	ShadowName       = "shadow"
	GBufferName      = "gbuffer"
	AOName           = "ambient_occlusion"
	VoxelName        = "voxelization"
	EnvironmentName  = "environment"
	CompositionName  = "composition"
	BloomName        = "bloom"
	AntiAliasingName = "anti_aliasing"
)

const (
	fullscreenVertex = "fullscreen.vert"
	computeGroupSize = 8
	// Every layout with per-frame uniforms keeps the global record at binding 0.
	globalsBinding = 0
)

func uniformBinding(binding uint32, dynamic bool, stages metadata.ShaderStage) metadata.DescriptorBinding {
	t := metadata.DescriptorTypeUniformBuffer
	if dynamic {
		t = metadata.DescriptorTypeUniformBufferDynamic
	}
	return metadata.DescriptorBinding{Binding: binding, Type: t, Count: 1, Stages: stages}
}

func samplerBinding(binding uint32, stages metadata.ShaderStage) metadata.DescriptorBinding {
	return metadata.DescriptorBinding{Binding: binding, Type: metadata.DescriptorTypeCombinedImageSampler, Count: 1, Stages: stages}
}

func storageBinding(binding uint32) metadata.DescriptorBinding {
	return metadata.DescriptorBinding{Binding: binding, Type: metadata.DescriptorTypeStorageImage, Count: 1, Stages: metadata.ShaderStageCompute}
}

// allocatePerFrame allocates one set of layout id for every frame in flight
// and points its global binding at the frame's uniform region.
func allocatePerFrame(b *pass.Base, id string, frames []*frame.Frame) ([]*descriptor.Set, error) {
	sets := make([]*descriptor.Set, len(frames))
	for i, f := range frames {
		set, err := b.Descriptors.Allocate(id)
		if err != nil {
			return nil, err
		}
		if err := b.Descriptors.Update(set, globalsBinding, f.Uniforms.GlobalResource()); err != nil {
			return nil, err
		}
		sets[i] = set
	}
	return sets, nil
}

// setFor returns the set of the frame, guarding against a frame ring that
// changed size behind the pass's back.
func setFor(b *pass.Base, sets []*descriptor.Set, f *frame.Frame) (*descriptor.Set, error) {
	if f.Index < 0 || f.Index >= len(sets) {
		return nil, fmt.Errorf("`%s` has no descriptor set for frame %d", b.Name, f.Index)
	}
	return sets[f.Index], nil
}

// bindFallbacks writes res to every listed binding of every set.
func bindFallbacks(b *pass.Base, sets []*descriptor.Set, res metadata.DescriptorResource, bindings ...uint32) error {
	for _, set := range sets {
		for _, binding := range bindings {
			if err := b.Descriptors.BindFallback(set, binding, 0, res); err != nil {
				return err
			}
		}
	}
	return nil
}

// updateAll points a binding of every set at res.
func updateAll(b *pass.Base, sets []*descriptor.Set, binding uint32, res metadata.DescriptorResource) error {
	for _, set := range sets {
		if err := b.Descriptors.Update(set, binding, res); err != nil {
			return err
		}
	}
	return nil
}

// pushConstants encodes v the way the shaders read push constant blocks.
func pushConstants(v interface{}) []byte {
	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, v); err != nil {
		core.LogError("failed to encode push constants: %s", err)
		return nil
	}
	return buf.Bytes()
}

// drawQuad records the shared fullscreen quad.
func drawQuad(r *pass.Registry, cb metadata.CommandBuffer) {
	cb.BindVertexBuffer(r.Resources.Quad, 0)
	cb.Draw(pass.QuadVertexCount, 1, 0, 0)
}

func groups(size uint32) uint32 {
	return (size + computeGroupSize - 1) / computeGroupSize
}

// colorTarget describes a sampled colour attachment cleared to clear.
func colorTarget(name string, format metadata.Format, clear [4]float32) metadata.AttachmentSpec {
	return metadata.AttachmentSpec{
		Name:          name,
		Kind:          metadata.AttachmentKindColor,
		Format:        format,
		Usage:         metadata.ImageUsageSampled,
		InitialLayout: metadata.ImageLayoutUndefined,
		FinalLayout:   metadata.ImageLayoutShaderReadOnly,
		LoadOp:        metadata.LoadOpClear,
		StoreOp:       metadata.StoreOpStore,
		Clear:         metadata.ClearValue{Color: clear},
	}
}

func depthTarget(name string) metadata.AttachmentSpec {
	return metadata.AttachmentSpec{
		Name:          name,
		Kind:          metadata.AttachmentKindDepth,
		Format:        metadata.FormatD32Float,
		Usage:         metadata.ImageUsageSampled,
		InitialLayout: metadata.ImageLayoutUndefined,
		FinalLayout:   metadata.ImageLayoutShaderReadOnly,
		LoadOp:        metadata.LoadOpClear,
		StoreOp:       metadata.StoreOpStore,
		Clear:         metadata.ClearValue{Depth: 1},
	}
}

// drawScene records every drawable with an index buffer, binding sets with
// the frame's global offset and the drawable's object offset.
func drawScene(b *pass.Base, cb metadata.CommandBuffer, f *frame.Frame, scene *metadata.Scene, sets func(d *metadata.Drawable) (*pass.Pipeline, []*descriptor.Set), filter func(d *metadata.Drawable) bool) error {
	if scene == nil {
		return nil
	}
	var bound *pass.Pipeline
	limit := b.Registry.MaxObjects
	for i, d := range scene.Drawables {
		if i >= limit {
			break
		}
		if d == nil || d.IndexCount == 0 || (filter != nil && !filter(d)) {
			continue
		}
		pl, s := sets(d)
		if pl != bound {
			pl.Bind(cb)
			bound = pl
		}
		offsets := []uint32{f.Uniforms.GlobalOffset(), f.Uniforms.ObjectOffset(i)}
		if err := b.Descriptors.Bind(cb, metadata.PipelineKindGraphics, pl.Layout, 0, s, offsets); err != nil {
			return err
		}
		cb.BindVertexBuffer(d.VertexBuffer, 0)
		cb.BindIndexBuffer(d.IndexBuffer, 0)
		cb.DrawIndexed(d.IndexCount, 1, 0, 0, 0)
	}
	return nil
}

package passes

import (
	"fmt"

	"github.com/spaghettifunk/prism/engine/config"
	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/renderer/descriptor"
	"github.com/spaghettifunk/prism/engine/renderer/frame"
	"github.com/spaghettifunk/prism/engine/renderer/metadata"
	"github.com/spaghettifunk/prism/engine/renderer/pass"
)

const (
	voxelLayout = "voxel"

	voxelVolumeBinding = 1
	voxelTLASBinding   = 2
)

// Voxelization traces the scene's acceleration structure into a 3D volume
// the composition pass reads for indirect light. Until the scene supplies a
// top-level acceleration structure nothing is dispatched.
type Voxelization struct {
	base     pass.Base
	settings config.VoxelSettings
	sets     []*descriptor.Set
}

func NewVoxelization(r *pass.Registry) *Voxelization {
	v := &Voxelization{
		base:     pass.NewBase(r, VoxelName),
		settings: r.Settings.Voxel,
	}
	v.base.Resizeable = false
	v.base.FixedExtent = metadata.Extent2D{Width: v.settings.Resolution, Height: v.settings.Resolution}
	return v
}

func (v *Voxelization) Base() *pass.Base { return &v.base }

func (v *Voxelization) SetupAttachments() ([]metadata.AttachmentSpec, []pass.Transition, error) {
	res := v.settings.Resolution
	volume := metadata.AttachmentSpec{
		Name:   "volume",
		Kind:   metadata.AttachmentKindStorage,
		Format: metadata.FormatRGBA8Unorm,
		Usage:  metadata.ImageUsageSampled,
		Extent: metadata.Extent3D{Width: res, Height: res, Depth: res},
	}
	transition := pass.Transition{
		Attachment: 0,
		Before:     metadata.ImageLayoutGeneral,
		After:      metadata.ImageLayoutShaderReadOnly,
	}
	return []metadata.AttachmentSpec{volume}, []pass.Transition{transition}, nil
}

func (v *Voxelization) SetupUniforms(frames []*frame.Frame) error {
	if !v.base.Registry.SupportsAccelerationStructures() {
		return fmt.Errorf("`%s` traces acceleration structures: %w", v.base.Name, core.ErrUnsupportedFeature)
	}
	if err := v.base.CreateDescriptorPool(); err != nil {
		return err
	}
	if _, err := v.base.Descriptors.SetLayout(voxelLayout, []metadata.DescriptorBinding{
		uniformBinding(globalsBinding, true, metadata.ShaderStageCompute),
		storageBinding(voxelVolumeBinding),
		{Binding: voxelTLASBinding, Type: metadata.DescriptorTypeAccelerationStructure, Count: 1, Stages: metadata.ShaderStageCompute},
	}); err != nil {
		return err
	}
	sets, err := allocatePerFrame(&v.base, voxelLayout, frames)
	if err != nil {
		return err
	}
	v.sets = sets
	return v.bindVolume()
}

func (v *Voxelization) bindVolume() error {
	return updateAll(&v.base, v.sets, voxelVolumeBinding, v.base.Output(0).StorageDescriptor(-1))
}

func (v *Voxelization) SetupShaderPasses() error {
	layouts, err := v.base.Descriptors.LayoutHandles(voxelLayout)
	if err != nil {
		return err
	}
	_, err = v.base.BuildPipeline("voxelize", metadata.PipelineCreateInfo{
		Kind:    metadata.PipelineKindCompute,
		Layouts: layouts,
		Stages:  []metadata.ShaderModule{{Stage: metadata.ShaderStageCompute, Name: "voxelize.comp"}},
	})
	return err
}

// OnResize points the sets at the rebuilt volume.
func (v *Voxelization) OnResize(metadata.Extent2D) error {
	return v.bindVolume()
}

// UpdateUniforms binds the scene's acceleration structure. Rebinding the
// same handle is skipped by the allocator, so each set sees one write per
// structure.
func (v *Voxelization) UpdateUniforms(frameIndex int, scene *metadata.Scene) error {
	if scene == nil || scene.TopLevelAS == 0 || frameIndex < 0 || frameIndex >= len(v.sets) {
		return nil
	}
	return v.base.Descriptors.Update(v.sets[frameIndex], voxelTLASBinding, metadata.DescriptorResource{AccelerationStructure: scene.TopLevelAS})
}

// Ready reports whether the frame's set has an acceleration structure.
func (v *Voxelization) Ready(frameIndex int) bool {
	if frameIndex < 0 || frameIndex >= len(v.sets) {
		return false
	}
	_, state := v.base.Descriptors.Bound(v.sets[frameIndex], voxelTLASBinding, 0)
	return state == descriptor.BindingStateResourceBound
}

func (v *Voxelization) Execute(f *frame.Frame, scene *metadata.Scene) error {
	cb := f.CommandBuffer
	set, err := setFor(&v.base, v.sets, f)
	if err != nil {
		return err
	}
	v.base.TransitionBefore(cb)
	if v.settings.Enabled && v.Ready(f.Index) {
		pl := v.base.Pipelines["voxelize"]
		pl.Bind(cb)
		if err := v.base.Descriptors.Bind(cb, metadata.PipelineKindCompute, pl.Layout, 0, []*descriptor.Set{set}, []uint32{f.Uniforms.GlobalOffset()}); err != nil {
			return err
		}
		n := groups(v.base.Output(0).Extent.Width)
		cb.Dispatch(n, n, n)
	}
	v.base.TransitionAfter(cb)
	return nil
}

// ApplySettings toggles tracing. A new resolution takes effect on the next
// build because the volume size is part of the attachment declaration.
func (v *Voxelization) ApplySettings(settings config.PassSettings) {
	v.settings.Enabled = settings.Voxel.Enabled
}

package passes

import (
	"fmt"

	"github.com/spaghettifunk/prism/engine/config"
	"github.com/spaghettifunk/prism/engine/math"
	"github.com/spaghettifunk/prism/engine/renderer/descriptor"
	"github.com/spaghettifunk/prism/engine/renderer/frame"
	"github.com/spaghettifunk/prism/engine/renderer/metadata"
	"github.com/spaghettifunk/prism/engine/renderer/pass"
)

// MaxBloomMips bounds the bloom chain and with it the descriptor sets the
// pass allocates.
const MaxBloomMips = 8

const (
	bloomLayout = "bloom"

	bloomSource  = 0
	bloomReadMip = 1
	bloomDstMip  = 2
)

type bloomPush struct {
	Threshold float32
	Strength  float32
	Mip       uint32
	_         uint32
}

// Bloom downsamples the bright parts of the HDR image through a mip chain
// and upsamples them back into mip 0. The chain is rebuilt with the targets
// on resize.
type Bloom struct {
	base     pass.Base
	settings config.BloomSettings
	mips     uint32
	down     []*descriptor.Set
	up       []*descriptor.Set
}

func NewBloom(r *pass.Registry) *Bloom {
	return &Bloom{
		base:     pass.NewBase(r, BloomName),
		settings: r.Settings.Bloom,
		mips:     math.Clamp(r.Settings.Bloom.Mips, 1, MaxBloomMips),
	}
}

func (b *Bloom) Base() *pass.Base { return &b.base }

func (b *Bloom) SetupAttachments() ([]metadata.AttachmentSpec, []pass.Transition, error) {
	chain := metadata.AttachmentSpec{
		Name:   "chain",
		Kind:   metadata.AttachmentKindStorage,
		Format: metadata.FormatRGBA16Float,
		Usage:  metadata.ImageUsageSampled,
		Mips:   b.mips,
	}
	transition := pass.Transition{
		Attachment: 0,
		Before:     metadata.ImageLayoutGeneral,
		After:      metadata.ImageLayoutShaderReadOnly,
	}
	return []metadata.AttachmentSpec{chain}, []pass.Transition{transition}, nil
}

func (b *Bloom) SetupUniforms(frames []*frame.Frame) error {
	sets := 2 * b.mips
	if err := b.base.CreateDescriptorPool(
		metadata.PoolSize{Type: metadata.DescriptorTypeCombinedImageSampler, Count: sets},
		metadata.PoolSize{Type: metadata.DescriptorTypeStorageImage, Count: 2 * sets},
	); err != nil {
		return err
	}
	if _, err := b.base.Descriptors.SetLayout(bloomLayout, []metadata.DescriptorBinding{
		samplerBinding(bloomSource, metadata.ShaderStageCompute),
		storageBinding(bloomReadMip),
		storageBinding(bloomDstMip),
	}); err != nil {
		return err
	}
	b.down = make([]*descriptor.Set, b.mips)
	b.up = make([]*descriptor.Set, b.mips)
	for m := range b.down {
		var err error
		if b.down[m], err = b.base.Descriptors.Allocate(bloomLayout); err != nil {
			return err
		}
		if b.up[m], err = b.base.Descriptors.Allocate(bloomLayout); err != nil {
			return err
		}
	}
	white := b.base.Registry.Resources.White.Descriptor(0)
	if err := bindFallbacks(&b.base, b.down, white, bloomSource); err != nil {
		return err
	}
	if err := bindFallbacks(&b.base, b.up, white, bloomSource); err != nil {
		return err
	}
	return b.bindChain()
}

// levels is the number of mips the current chain image really has. A small
// target clamps the configured count.
func (b *Bloom) levels() int {
	return int(b.base.Output(0).MipLevels)
}

// bindChain points every set at the mip views of the current chain image.
// Sets past the real mip count point at the last level so none of them
// references a destroyed view.
func (b *Bloom) bindChain() error {
	img := b.base.Output(0)
	last := b.levels() - 1
	for m := range b.down {
		dst := min(m, last)
		if err := b.base.Descriptors.Update(b.down[m], bloomReadMip, img.StorageDescriptor(max(dst-1, 0))); err != nil {
			return err
		}
		if err := b.base.Descriptors.Update(b.down[m], bloomDstMip, img.StorageDescriptor(dst)); err != nil {
			return err
		}
		if err := b.base.Descriptors.Update(b.up[m], bloomReadMip, img.StorageDescriptor(min(dst+1, last))); err != nil {
			return err
		}
		if err := b.base.Descriptors.Update(b.up[m], bloomDstMip, img.StorageDescriptor(dst)); err != nil {
			return err
		}
	}
	return nil
}

func (b *Bloom) SetupShaderPasses() error {
	layouts, err := b.base.Descriptors.LayoutHandles(bloomLayout)
	if err != nil {
		return err
	}
	size := uint32(len(pushConstants(bloomPush{})))
	for _, stage := range []string{"prefilter", "downsample", "upsample"} {
		if _, err := b.base.BuildPipeline(stage, metadata.PipelineCreateInfo{
			Kind:             metadata.PipelineKindCompute,
			Layouts:          layouts,
			PushConstantSize: size,
			Stages:           []metadata.ShaderModule{{Stage: metadata.ShaderStageCompute, Name: "bloom_" + stage + ".comp"}},
		}); err != nil {
			return err
		}
	}
	return nil
}

// LinkPreviousImages takes the HDR image the chain starts from.
func (b *Bloom) LinkPreviousImages(images []*pass.Image) error {
	if len(images) != 1 {
		return fmt.Errorf("`%s` links one HDR image, got %d", b.base.Name, len(images))
	}
	src := images[0].Descriptor(b.base.Registry.Resources.Linear)
	if err := updateAll(&b.base, b.down, bloomSource, src); err != nil {
		return err
	}
	return updateAll(&b.base, b.up, bloomSource, src)
}

func (b *Bloom) OnResize(metadata.Extent2D) error {
	return b.bindChain()
}

// MipSets returns the downsample and upsample sets, indexed by mip.
func (b *Bloom) MipSets() (down, up []*descriptor.Set) {
	return b.down, b.up
}

func (b *Bloom) dispatch(cb metadata.CommandBuffer, stage string, set *descriptor.Set, mip int) error {
	pl := b.base.Pipelines[stage]
	pl.Bind(cb)
	if err := b.base.Descriptors.Bind(cb, metadata.PipelineKindCompute, pl.Layout, 0, []*descriptor.Set{set}, nil); err != nil {
		return err
	}
	push := bloomPush{Threshold: b.settings.Threshold, Strength: b.settings.Strength, Mip: uint32(mip)}
	cb.PushConstants(pl.Layout, metadata.ShaderStageCompute, 0, pushConstants(push))
	extent := b.base.Output(0).Extent
	cb.Dispatch(groups(max(extent.Width>>mip, 1)), groups(max(extent.Height>>mip, 1)), 1)
	return nil
}

func (b *Bloom) Execute(f *frame.Frame, scene *metadata.Scene) error {
	cb := f.CommandBuffer
	b.base.TransitionBefore(cb)
	if b.settings.Enabled {
		levels := min(b.levels(), len(b.down))
		for m := 0; m < levels; m++ {
			stage := "downsample"
			if m == 0 {
				stage = "prefilter"
			}
			if err := b.dispatch(cb, stage, b.down[m], m); err != nil {
				return err
			}
		}
		for m := levels - 2; m >= 0; m-- {
			if err := b.dispatch(cb, "upsample", b.up[m], m); err != nil {
				return err
			}
		}
	}
	b.base.TransitionAfter(cb)
	return nil
}

// ApplySettings updates strength, threshold and the toggle. The mip count
// is fixed at build.
func (b *Bloom) ApplySettings(settings config.PassSettings) {
	mips := b.settings.Mips
	b.settings = settings.Bloom
	b.settings.Mips = mips
}

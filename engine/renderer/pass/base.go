package pass

import (
	"fmt"

	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/math"
	"github.com/spaghettifunk/prism/engine/renderer/descriptor"
	"github.com/spaghettifunk/prism/engine/renderer/frame"
	"github.com/spaghettifunk/prism/engine/renderer/metadata"
	"golang.org/x/exp/slices"
)

type State uint8

const (
	StateCreated State = iota
	StateReady
	StateCleanedUp
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateReady:
		return "ready"
	case StateCleanedUp:
		return "cleaned_up"
	}
	return "unknown"
}

// Pipeline is a named pipeline of a pass together with its layout.
type Pipeline struct {
	Name   string
	Handle metadata.PipelineHandle
	Layout metadata.PipelineLayoutHandle
	Kind   metadata.PipelineKind
}

// Bind records the pipeline into cb.
func (p *Pipeline) Bind(cb metadata.CommandBuffer) {
	cb.BindPipeline(p.Kind, p.Handle)
}

// Base carries the state and mechanics shared by every pass: targets,
// framebuffers, pipelines, the descriptor allocator and the lifecycle.
type Base struct {
	Name       string
	Resizeable bool
	IsDefault  bool
	Active     bool
	// Extent is the extent the targets were last built at.
	Extent metadata.Extent2D
	// FixedExtent is used instead of the surface extent when non zero.
	FixedExtent metadata.Extent2D
	Registry    *Registry

	Specs       []metadata.AttachmentSpec
	Transitions []Transition
	// Outputs is indexed by framebuffer, then attachment. Every row of an
	// internal pass points at the same owned images.
	Outputs      [][]*Image
	RenderPass   metadata.RenderPassHandle
	Framebuffers []metadata.FramebufferHandle
	Pipelines    map[string]*Pipeline
	Descriptors  *descriptor.Allocator
	Dependencies []ImageDependency

	state          State
	swapchainViews []metadata.ImageViewHandle
	// targets are the attachment images, images the extra ones the pass
	// owns through OwnImage.
	targets []*Image
	images  []*Image
	buffers []metadata.BufferHandle
}

func NewBase(registry *Registry, name string) Base {
	return Base{
		Name:        name,
		Resizeable:  true,
		Active:      true,
		Registry:    registry,
		Pipelines:   make(map[string]*Pipeline),
		Descriptors: descriptor.NewAllocator(registry.Device, name),
	}
}

func (b *Base) State() State {
	return b.state
}

// Ready reports why the pass cannot record, if it cannot.
func (b *Base) Ready() error {
	switch b.state {
	case StateCleanedUp:
		return fmt.Errorf("`%s`: %w", b.Name, core.ErrPassCleanedUp)
	case StateCreated:
		return fmt.Errorf("`%s`: %w", b.Name, core.ErrPassNotReady)
	}
	return nil
}

func (b *Base) device() metadata.GraphicsDevice {
	return b.Registry.Device
}

func (b *Base) sizeFor(extent metadata.Extent2D) metadata.Extent2D {
	if !b.FixedExtent.IsZero() {
		return b.FixedExtent
	}
	return extent
}

// TargetExtent is the extent the pass renders at for the current surface.
func (b *Base) TargetExtent() metadata.Extent2D {
	return b.sizeFor(b.Registry.Extent)
}

// IsCompute reports whether the pass has no render pass object.
func (b *Base) IsCompute() bool {
	for _, s := range b.Specs {
		if s.Kind != metadata.AttachmentKindStorage {
			return false
		}
	}
	return true
}

func (b *Base) renderSpecs() []metadata.AttachmentSpec {
	out := make([]metadata.AttachmentSpec, 0, len(b.Specs))
	for _, s := range b.Specs {
		if s.Kind != metadata.AttachmentKindStorage {
			out = append(out, s)
		}
	}
	return out
}

// CreateDescriptorPool creates the pass pool from the configured hints plus
// extra.
func (b *Base) CreateDescriptorPool(extra ...metadata.PoolSize) error {
	hints := append(b.Registry.PoolHints(), extra...)
	return b.Descriptors.CreateDescriptorPool(b.Registry.MaxSets(), hints...)
}

func (b *Base) imageFor(spec metadata.AttachmentSpec, extent metadata.Extent2D) (*Image, error) {
	opts := ImageOptions{
		Name:    b.Name + "/" + spec.Name,
		Type:    metadata.ImageType2D,
		Format:  spec.Format,
		Usage:   spec.Usage,
		Extent:  extent.To3D(),
		Samples: spec.Samples,
	}
	if spec.Extent.Width != 0 && spec.Extent.Height != 0 {
		opts.Extent = spec.Extent
		if opts.Extent.Depth == 0 {
			opts.Extent.Depth = 1
		}
		if opts.Extent.Depth > 1 {
			opts.Type = metadata.ImageType3D
		}
	}
	switch spec.Kind {
	case metadata.AttachmentKindColor:
		opts.Usage |= metadata.ImageUsageColorAttachment
	case metadata.AttachmentKindDepth:
		opts.Usage |= metadata.ImageUsageDepthAttachment
	case metadata.AttachmentKindStorage:
		opts.Usage |= metadata.ImageUsageStorage
		if spec.Mips > 1 {
			opts.MipLevels = math.Clamp(spec.Mips, 1, math.MipLevels(opts.Extent.Width, opts.Extent.Height))
			opts.MipViews = true
		}
	}
	if opts.Usage.Has(metadata.ImageUsageSampled) {
		opts.Sampler = b.Registry.Resources.Linear
	}
	return NewImage(b.device(), opts)
}

// CreateTargets creates the owned attachment images, the render pass object
// on first use and one framebuffer per row of Outputs.
func (b *Base) CreateTargets() error {
	return b.createTargets(b.TargetExtent())
}

func (b *Base) createTargets(extent metadata.Extent2D) error {
	if extent.IsZero() {
		return fmt.Errorf("targets of `%s` at %dx%d: %w", b.Name, extent.Width, extent.Height, core.ErrSwapchainBooting)
	}
	rows := 1
	if b.IsDefault {
		b.swapchainViews = b.device().SwapchainViews()
		rows = len(b.swapchainViews)
	}

	owned := make([]*Image, len(b.Specs))
	for i, spec := range b.Specs {
		if spec.Swapchain {
			if !b.IsDefault {
				return fmt.Errorf("attachment `%s` of `%s` targets the swapchain but the pass is not the default one", spec.Name, b.Name)
			}
			continue
		}
		img, err := b.imageFor(spec, extent)
		if err != nil {
			b.DestroyTargets()
			return err
		}
		owned[i] = img
		b.targets = append(b.targets, img)
	}

	b.Outputs = make([][]*Image, rows)
	for r := range b.Outputs {
		row := make([]*Image, len(b.Specs))
		for i, spec := range b.Specs {
			if spec.Swapchain {
				row[i] = WrapSwapchainView(b.swapchainViews[r], spec.Format, extent)
				continue
			}
			row[i] = owned[i]
		}
		b.Outputs[r] = row
	}
	b.Extent = extent

	if b.IsCompute() {
		return nil
	}
	if b.RenderPass == 0 {
		rp, err := b.device().CreateRenderPass(metadata.RenderPassCreateInfo{Name: b.Name, Attachments: b.renderSpecs()})
		if err != nil {
			b.DestroyTargets()
			return fmt.Errorf("failed to create render pass `%s`: %w", b.Name, err)
		}
		b.RenderPass = rp
	}
	for r, row := range b.Outputs {
		views := make([]metadata.ImageViewHandle, 0, len(row))
		for i, img := range row {
			if b.Specs[i].Kind != metadata.AttachmentKindStorage {
				views = append(views, img.View)
			}
		}
		fb, err := b.device().CreateFramebuffer(metadata.FramebufferCreateInfo{
			RenderPass:  b.RenderPass,
			Attachments: views,
			Extent:      extent,
			Layers:      1,
		})
		if err != nil {
			b.DestroyTargets()
			return fmt.Errorf("failed to create framebuffer %d of `%s`: %w", r, b.Name, err)
		}
		b.Framebuffers = append(b.Framebuffers, fb)
	}
	return nil
}

// DestroyTargets destroys the framebuffers and the attachment images. The
// render pass object and the pipelines stay.
func (b *Base) DestroyTargets() {
	for _, fb := range b.Framebuffers {
		b.device().DestroyFramebuffer(fb)
	}
	b.Framebuffers = nil
	for _, img := range b.targets {
		img.Destroy(b.device())
	}
	b.targets = nil
	b.Outputs = nil
}

// Resize rebuilds the targets at extent. It reports false and does nothing
// when the targets already match the extent and, for the default pass, the
// current swapchain images.
func (b *Base) Resize(extent metadata.Extent2D) (bool, error) {
	if b.state == StateCleanedUp {
		return false, fmt.Errorf("resize of `%s`: %w", b.Name, core.ErrPassCleanedUp)
	}
	target := b.sizeFor(extent)
	same := target == b.Extent && len(b.Outputs) > 0
	if b.IsDefault {
		same = same && slices.Equal(b.swapchainViews, b.device().SwapchainViews())
	}
	if same {
		return false, nil
	}
	b.DestroyTargets()
	if err := b.createTargets(target); err != nil {
		return false, err
	}
	core.LogDebug("render pass `%s` resized to %dx%d", b.Name, target.Width, target.Height)
	return true, nil
}

// FramebufferIndex returns the framebuffer a frame renders into.
func (b *Base) FramebufferIndex(f *frame.Frame) int {
	if b.IsDefault {
		return int(f.ImageIndex)
	}
	return 0
}

// Output returns attachment i of the first framebuffer.
func (b *Base) Output(i int) *Image {
	if len(b.Outputs) == 0 || i < 0 || i >= len(b.Outputs[0]) {
		return nil
	}
	return b.Outputs[0][i]
}

// OutputByName returns the attachment of the first framebuffer with the
// given spec name.
func (b *Base) OutputByName(name string) *Image {
	for i, s := range b.Specs {
		if s.Name == name {
			return b.Output(i)
		}
	}
	return nil
}

// BeginRenderPass records the render pass begin together with a viewport
// and scissor covering the target.
func (b *Base) BeginRenderPass(cb metadata.CommandBuffer, fb int) error {
	if err := b.Ready(); err != nil {
		return err
	}
	if fb < 0 || fb >= len(b.Framebuffers) {
		return fmt.Errorf("`%s` has no framebuffer %d", b.Name, fb)
	}
	specs := b.renderSpecs()
	clears := make([]metadata.ClearValue, len(specs))
	for i, s := range specs {
		clears[i] = s.Clear
	}
	cb.BeginRenderPass(metadata.RenderPassBeginInfo{
		RenderPass:  b.RenderPass,
		Framebuffer: b.Framebuffers[fb],
		Extent:      b.Extent,
		Clear:       clears,
	})
	cb.SetViewport(metadata.Viewport{
		Width:    float32(b.Extent.Width),
		Height:   float32(b.Extent.Height),
		MaxDepth: 1,
	})
	cb.SetScissor(b.Extent)
	return nil
}

// EndRenderPass ends the render pass and records that every attachment is
// now in its final layout.
func (b *Base) EndRenderPass(cb metadata.CommandBuffer, fb int) {
	cb.EndRenderPass()
	if fb < 0 || fb >= len(b.Outputs) {
		return
	}
	for i, img := range b.Outputs[fb] {
		if b.Specs[i].Kind != metadata.AttachmentKindStorage {
			img.Layout = b.Specs[i].FinalLayout
		}
	}
}

func (b *Base) transition(cb metadata.CommandBuffer, after bool) {
	if len(b.Outputs) == 0 {
		return
	}
	var barriers []metadata.ImageBarrier
	for _, t := range b.Transitions {
		if t.Attachment < 0 || t.Attachment >= len(b.Outputs[0]) {
			continue
		}
		layout := t.Before
		if after {
			layout = t.After
		}
		if barrier, ok := b.Outputs[0][t.Attachment].Barrier(layout); ok {
			barriers = append(barriers, barrier)
		}
	}
	if len(barriers) > 0 {
		cb.PipelineBarrier(barriers)
	}
}

// TransitionBefore moves the storage attachments into the layouts Execute
// writes them in.
func (b *Base) TransitionBefore(cb metadata.CommandBuffer) {
	b.transition(cb, false)
}

// TransitionAfter moves the storage attachments into the layouts consumers
// read them in.
func (b *Base) TransitionAfter(cb metadata.CommandBuffer) {
	b.transition(cb, true)
}

// TransitionOutputs moves every owned attachment to layout. Images already
// in that layout get no barrier.
func (b *Base) TransitionOutputs(cb metadata.CommandBuffer, layout metadata.ImageLayout) {
	var barriers []metadata.ImageBarrier
	for _, img := range b.targets {
		if barrier, ok := img.Barrier(layout); ok {
			barriers = append(barriers, barrier)
		}
	}
	if len(barriers) > 0 {
		cb.PipelineBarrier(barriers)
	}
}

// OwnImage makes the pass responsible for destroying an image it created
// outside its attachments.
func (b *Base) OwnImage(img *Image) {
	b.images = append(b.images, img)
}

// ReleaseImage destroys an image owned through OwnImage.
func (b *Base) ReleaseImage(img *Image) {
	if i := slices.Index(b.images, img); i >= 0 {
		b.images = slices.Delete(b.images, i, i+1)
	}
	img.Destroy(b.device())
}

// CreateBuffer creates a buffer the pass owns.
func (b *Base) CreateBuffer(info metadata.BufferCreateInfo) (metadata.BufferHandle, error) {
	h, err := b.device().CreateBuffer(info)
	if err != nil {
		return 0, fmt.Errorf("failed to create buffer `%s` for `%s`: %w", info.Name, b.Name, err)
	}
	b.buffers = append(b.buffers, h)
	return h, nil
}

// BuildPipeline creates a named pipeline. Shader modules without code are
// loaded through the shader source. A pipeline with the same name is
// replaced.
func (b *Base) BuildPipeline(name string, info metadata.PipelineCreateInfo) (*Pipeline, error) {
	info.Name = b.Name + "/" + name
	stages := make([]metadata.ShaderModule, len(info.Stages))
	for i, s := range info.Stages {
		if len(s.Code) == 0 {
			loaded, err := b.Registry.LoadShader(s.Stage, s.Name)
			if err != nil {
				return nil, fmt.Errorf("failed to load shader for `%s`: %w", info.Name, err)
			}
			s = loaded
		}
		if s.Entry == "" {
			s.Entry = "main"
		}
		stages[i] = s
	}
	info.Stages = stages
	if info.Kind == metadata.PipelineKindGraphics {
		if info.RenderPass == 0 {
			info.RenderPass = b.RenderPass
		}
		if info.ColorAttachments == 0 {
			for _, s := range b.renderSpecs() {
				if s.Kind == metadata.AttachmentKindColor {
					info.ColorAttachments++
				}
			}
		}
	}

	handle, layout, err := b.device().CreatePipeline(info)
	if err != nil {
		return nil, fmt.Errorf("failed to create pipeline `%s`: %w", info.Name, err)
	}
	if old, ok := b.Pipelines[name]; ok {
		b.device().DestroyPipeline(old.Handle, old.Layout)
	}
	p := &Pipeline{Name: name, Handle: handle, Layout: layout, Kind: info.Kind}
	b.Pipelines[name] = p
	return p, nil
}

// DestroyPipelines destroys every pipeline, in name order.
func (b *Base) DestroyPipelines() {
	names := make([]string, 0, len(b.Pipelines))
	for name := range b.Pipelines {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		p := b.Pipelines[name]
		b.device().DestroyPipeline(p.Handle, p.Layout)
	}
	b.Pipelines = make(map[string]*Pipeline)
}

// Cleanup releases everything the pass owns: pipelines, descriptors,
// framebuffers, the render pass object, images and buffers. It can run
// only once.
func (b *Base) Cleanup() error {
	if b.state == StateCleanedUp {
		return fmt.Errorf("cleanup of `%s`: %w", b.Name, core.ErrPassCleanedUp)
	}
	b.DestroyPipelines()
	b.Descriptors.Destroy()
	for _, fb := range b.Framebuffers {
		b.device().DestroyFramebuffer(fb)
	}
	b.Framebuffers = nil
	b.device().DestroyRenderPass(b.RenderPass)
	b.RenderPass = 0
	for _, img := range b.targets {
		img.Destroy(b.device())
	}
	b.targets = nil
	for _, img := range b.images {
		img.Destroy(b.device())
	}
	b.images = nil
	b.Outputs = nil
	for _, buf := range b.buffers {
		b.device().DestroyBuffer(buf)
	}
	b.buffers = nil
	b.state = StateCleanedUp
	core.LogDebug("render pass `%s` cleaned up", b.Name)
	return nil
}

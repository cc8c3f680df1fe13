package vulkan

import (
	"fmt"
	"sync"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/renderer/metadata"
)

type image struct {
	handle vk.Image
	memory vk.DeviceMemory
	info   metadata.ImageCreateInfo
}

type buffer struct {
	handle vk.Buffer
	memory vk.DeviceMemory
	size   uint64
	// mapped is the persistent mapping of a host visible buffer.
	mapped []byte
}

type view struct {
	handle vk.ImageView
	// swapchain views are owned by the swapchain, not the caller.
	swapchain bool
}

type descriptorLayout struct {
	handle   vk.DescriptorSetLayout
	variable bool
}

type descriptorSet struct {
	handle vk.DescriptorSet
	pool   metadata.DescriptorPoolHandle
}

type renderPass struct {
	handle vk.RenderPass
	// depth is the attachment index of the depth target, -1 without one.
	depth int
}

type pipeline struct {
	handle vk.Pipeline
	kind   metadata.PipelineKind
}

// objects maps the opaque handles given out by the device to the Vulkan
// objects behind them.
type objects[T any] struct {
	kind  string
	items map[uint64]T
}

func newObjects[T any](kind string) *objects[T] {
	return &objects[T]{kind: kind, items: make(map[uint64]T)}
}

func (o *objects[T]) put(h uint64, v T) {
	o.items[h] = v
}

func (o *objects[T]) get(h uint64) (T, error) {
	v, ok := o.items[h]
	if !ok {
		return v, fmt.Errorf("unknown %s %d", o.kind, h)
	}
	return v, nil
}

// take removes the object. Zero handles are ignored like null handles are.
func (o *objects[T]) take(h uint64) (T, bool) {
	v, ok := o.items[h]
	if ok {
		delete(o.items, h)
	} else if h != 0 {
		core.LogWarn("destroy of unknown %s %d", o.kind, h)
	}
	return v, ok
}

func (o *objects[T]) len() int {
	return len(o.items)
}

// Device is the GraphicsDevice backed by a Vulkan logical device, one
// graphics queue and a window surface.
type Device struct {
	mu    sync.Mutex
	locks *VulkanLockPool
	next  uint64

	instance       vk.Instance
	debugMessenger vk.DebugReportCallback
	surface        vk.Surface

	physical   vk.PhysicalDevice
	logical    vk.Device
	properties vk.PhysicalDeviceProperties
	memory     vk.PhysicalDeviceMemoryProperties

	graphicsQueueIndex uint32
	presentQueueIndex  uint32
	graphicsQueue      vk.Queue
	presentQueue       vk.Queue
	commandPool        vk.CommandPool

	swapchain *VulkanSwapchain

	images          *objects[*image]
	views           *objects[view]
	samplers        *objects[vk.Sampler]
	buffers         *objects[*buffer]
	renderPasses    *objects[renderPass]
	framebuffers    *objects[vk.Framebuffer]
	pools           *objects[vk.DescriptorPool]
	layouts         *objects[descriptorLayout]
	sets            *objects[descriptorSet]
	pipelines       *objects[pipeline]
	pipelineLayouts *objects[vk.PipelineLayout]
	commandBuffers  *objects[*CommandBuffer]
	fences          *objects[vk.Fence]
	semaphores      *objects[vk.Semaphore]

	destroyed bool
}

var _ metadata.GraphicsDevice = (*Device)(nil)

func newDevice() *Device {
	return &Device{
		locks:           NewVulkanLockPool(),
		images:          newObjects[*image]("image"),
		views:           newObjects[view]("image view"),
		samplers:        newObjects[vk.Sampler]("sampler"),
		buffers:         newObjects[*buffer]("buffer"),
		renderPasses:    newObjects[renderPass]("render pass"),
		framebuffers:    newObjects[vk.Framebuffer]("framebuffer"),
		pools:           newObjects[vk.DescriptorPool]("descriptor pool"),
		layouts:         newObjects[descriptorLayout]("descriptor layout"),
		sets:            newObjects[descriptorSet]("descriptor set"),
		pipelines:       newObjects[pipeline]("pipeline"),
		pipelineLayouts: newObjects[vk.PipelineLayout]("pipeline layout"),
		commandBuffers:  newObjects[*CommandBuffer]("command buffer"),
		fences:          newObjects[vk.Fence]("fence"),
		semaphores:      newObjects[vk.Semaphore]("semaphore"),
	}
}

// handle returns the next free handle. The caller holds mu.
func (d *Device) handle() uint64 {
	d.next++
	return d.next
}

// FindMemoryIndex returns the first memory type allowed by typeFilter that
// has every property flag, or -1.
func (d *Device) FindMemoryIndex(typeFilter uint32, propertyFlags vk.MemoryPropertyFlags) int32 {
	for i := uint32(0); i < d.memory.MemoryTypeCount; i++ {
		// Check each memory type to see if its bit is set to 1.
		d.memory.MemoryTypes[i].Deref()
		if typeFilter&(1<<i) != 0 && d.memory.MemoryTypes[i].PropertyFlags&propertyFlags == propertyFlags {
			return int32(i)
		}
	}
	core.LogWarn("Unable to find suitable memory type!")
	return -1
}

// allocate gets memory for the requirements with the given properties.
func (d *Device) allocate(reqs vk.MemoryRequirements, props vk.MemoryPropertyFlagBits) (vk.DeviceMemory, error) {
	reqs.Deref()
	index := d.FindMemoryIndex(reqs.MemoryTypeBits, vk.MemoryPropertyFlags(props))
	if index < 0 {
		return vk.NullDeviceMemory, fmt.Errorf("no memory type with properties %#x: %w", props, core.ErrOutOfDeviceMemory)
	}
	var memory vk.DeviceMemory
	res := vk.AllocateMemory(d.logical, &vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  reqs.Size,
		MemoryTypeIndex: uint32(index),
	}, nil, &memory)
	if err := resultError("vkAllocateMemory", res); err != nil {
		return vk.NullDeviceMemory, err
	}
	return memory, nil
}

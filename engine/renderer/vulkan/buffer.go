package vulkan

import (
	"fmt"
	"unsafe"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/prism/engine/renderer/metadata"
)

// newBuffer creates a buffer with its own allocation. Host visible buffers
// are mapped once and stay mapped until freed.
func (d *Device) newBuffer(size uint64, usage vk.BufferUsageFlagBits, hostVisible bool) (*buffer, error) {
	if size == 0 {
		return nil, fmt.Errorf("buffer of zero bytes")
	}
	b := &buffer{size: size}
	if err := resultError("vkCreateBuffer", vk.CreateBuffer(d.logical, &vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Usage:       vk.BufferUsageFlags(usage),
		Size:        vk.DeviceSize(size),
		SharingMode: vk.SharingModeExclusive,
	}, nil, &b.handle)); err != nil {
		return nil, err
	}

	var reqs vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(d.logical, b.handle, &reqs)
	props := vk.MemoryPropertyDeviceLocalBit
	if hostVisible {
		props = vk.MemoryPropertyHostVisibleBit | vk.MemoryPropertyHostCoherentBit
	}
	var err error
	if b.memory, err = d.allocate(reqs, props); err != nil {
		vk.DestroyBuffer(d.logical, b.handle, nil)
		return nil, err
	}
	if err := resultError("vkBindBufferMemory", vk.BindBufferMemory(d.logical, b.handle, b.memory, 0)); err != nil {
		d.freeBuffer(b)
		return nil, err
	}
	if hostVisible {
		var ptr unsafe.Pointer
		if err := resultError("vkMapMemory", vk.MapMemory(d.logical, b.memory, 0, vk.DeviceSize(size), 0, &ptr)); err != nil {
			d.freeBuffer(b)
			return nil, err
		}
		b.mapped = unsafe.Slice((*byte)(ptr), size)
	}
	return b, nil
}

func (d *Device) freeBuffer(b *buffer) {
	if b.mapped != nil {
		vk.UnmapMemory(d.logical, b.memory)
		b.mapped = nil
	}
	vk.DestroyBuffer(d.logical, b.handle, nil)
	vk.FreeMemory(d.logical, b.memory, nil)
}

func (d *Device) CreateBuffer(info metadata.BufferCreateInfo) (metadata.BufferHandle, error) {
	b, err := d.newBuffer(info.Size, vk.BufferUsageFlagBits(vkBufferUsage(info.Usage)), info.HostVisible)
	if err != nil {
		return 0, fmt.Errorf("create buffer `%s`: %w", info.Name, err)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	h := d.handle()
	d.buffers.put(h, b)
	return metadata.BufferHandle(h), nil
}

// WriteBuffer copies data into the mapping of a host visible buffer. The
// memory is coherent so no flush is needed.
func (d *Device) WriteBuffer(handle metadata.BufferHandle, offset uint64, data []byte) error {
	d.mu.Lock()
	b, err := d.buffers.get(uint64(handle))
	d.mu.Unlock()
	if err != nil {
		return err
	}
	if b.mapped == nil {
		return fmt.Errorf("buffer %d is not host visible", handle)
	}
	if offset+uint64(len(data)) > b.size {
		return fmt.Errorf("write of %d bytes at %d overflows buffer %d of %d bytes", len(data), offset, handle, b.size)
	}
	copy(b.mapped[offset:], data)
	return nil
}

func (d *Device) DestroyBuffer(handle metadata.BufferHandle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if b, ok := d.buffers.take(uint64(handle)); ok {
		d.freeBuffer(b)
	}
}

package vulkan

import (
	"fmt"
	"unsafe"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/renderer/metadata"
)

func (d *Device) CreateDescriptorPool(info metadata.DescriptorPoolCreateInfo) (metadata.DescriptorPoolHandle, error) {
	sizes := make([]vk.DescriptorPoolSize, 0, len(info.Sizes))
	for _, s := range info.Sizes {
		if s.Count == 0 {
			continue
		}
		sizes = append(sizes, vk.DescriptorPoolSize{Type: vkDescriptorType(s.Type), DescriptorCount: s.Count})
	}
	var pool vk.DescriptorPool
	res := vk.CreateDescriptorPool(d.logical, &vk.DescriptorPoolCreateInfo{
		SType:         vk.StructureTypeDescriptorPoolCreateInfo,
		MaxSets:       info.MaxSets,
		PoolSizeCount: uint32(len(sizes)),
		PPoolSizes:    sizes,
	}, nil, &pool)
	if err := resultError("vkCreateDescriptorPool", res); err != nil {
		return 0, fmt.Errorf("create descriptor pool `%s`: %w", info.Name, err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	h := d.handle()
	d.pools.put(h, pool)
	return metadata.DescriptorPoolHandle(h), nil
}

// DestroyDescriptorPool frees the pool and every set allocated from it.
func (d *Device) DestroyDescriptorPool(handle metadata.DescriptorPoolHandle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	pool, ok := d.pools.take(uint64(handle))
	if !ok {
		return
	}
	for h, s := range d.sets.items {
		if s.pool == handle {
			delete(d.sets.items, h)
		}
	}
	vk.DestroyDescriptorPool(d.logical, pool, nil)
}

// CreateDescriptorLayout creates a set layout. A variable binding is
// partially bound and sized when the set is allocated.
func (d *Device) CreateDescriptorLayout(bindings []metadata.DescriptorBinding) (metadata.DescriptorLayoutHandle, error) {
	binds := make([]vk.DescriptorSetLayoutBinding, len(bindings))
	flags := make([]vk.DescriptorBindingFlags, len(bindings))
	variable := false
	for i, b := range bindings {
		if b.Variable && i != len(bindings)-1 {
			return 0, fmt.Errorf("binding %d is variable but not last: %w", b.Binding, core.ErrInvalidBinding)
		}
		binds[i] = vk.DescriptorSetLayoutBinding{
			Binding:         b.Binding,
			DescriptorType:  vkDescriptorType(b.Type),
			DescriptorCount: max(b.Count, 1),
			StageFlags:      vkStages(b.Stages),
		}
		if b.Variable {
			variable = true
			flags[i] = vk.DescriptorBindingFlags(vk.DescriptorBindingPartiallyBoundBit | vk.DescriptorBindingVariableDescriptorCountBit)
		}
	}

	createInfo := vk.DescriptorSetLayoutCreateInfo{
		SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
		BindingCount: uint32(len(binds)),
		PBindings:    binds,
	}
	if variable {
		createInfo.PNext = unsafe.Pointer(&vk.DescriptorSetLayoutBindingFlagsCreateInfo{
			SType:         vk.StructureTypeDescriptorSetLayoutBindingFlagsCreateInfo,
			BindingCount:  uint32(len(flags)),
			PBindingFlags: flags,
		})
	}
	var layout vk.DescriptorSetLayout
	if err := resultError("vkCreateDescriptorSetLayout", vk.CreateDescriptorSetLayout(d.logical, &createInfo, nil, &layout)); err != nil {
		return 0, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	h := d.handle()
	d.layouts.put(h, descriptorLayout{handle: layout, variable: variable})
	return metadata.DescriptorLayoutHandle(h), nil
}

func (d *Device) DestroyDescriptorLayout(handle metadata.DescriptorLayoutHandle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if l, ok := d.layouts.take(uint64(handle)); ok {
		vk.DestroyDescriptorSetLayout(d.logical, l.handle, nil)
	}
}

// AllocateDescriptorSet allocates one set. variableCount sizes the variable
// binding of the layout and is ignored when there is none. A full pool gives
// core.ErrPoolExhausted.
func (d *Device) AllocateDescriptorSet(poolHandle metadata.DescriptorPoolHandle, layoutHandle metadata.DescriptorLayoutHandle, variableCount uint32) (metadata.DescriptorSetHandle, error) {
	d.mu.Lock()
	pool, err := d.pools.get(uint64(poolHandle))
	var layout descriptorLayout
	if err == nil {
		layout, err = d.layouts.get(uint64(layoutHandle))
	}
	d.mu.Unlock()
	if err != nil {
		return 0, err
	}

	allocInfo := vk.DescriptorSetAllocateInfo{
		SType:              vk.StructureTypeDescriptorSetAllocateInfo,
		DescriptorPool:     pool,
		DescriptorSetCount: 1,
		PSetLayouts:        []vk.DescriptorSetLayout{layout.handle},
	}
	if layout.variable {
		allocInfo.PNext = unsafe.Pointer(&vk.DescriptorSetVariableDescriptorCountAllocateInfo{
			SType:              vk.StructureTypeDescriptorSetVariableDescriptorCountAllocateInfo,
			DescriptorSetCount: 1,
			PDescriptorCounts:  []uint32{variableCount},
		})
	}
	var set vk.DescriptorSet
	err = d.locks.SafeCall(DescriptorManagement, func() error {
		return resultError("vkAllocateDescriptorSets", vk.AllocateDescriptorSets(d.logical, &allocInfo, &set))
	})
	if err != nil {
		return 0, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	h := d.handle()
	d.sets.put(h, descriptorSet{handle: set, pool: poolHandle})
	return metadata.DescriptorSetHandle(h), nil
}

// UpdateDescriptorSet points bindings of the set at new resources. The set
// must not be in use by a pending submission.
func (d *Device) UpdateDescriptorSet(handle metadata.DescriptorSetHandle, writes []metadata.DescriptorWrite) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	set, err := d.sets.get(uint64(handle))
	if err != nil {
		return err
	}
	vkWrites := make([]vk.WriteDescriptorSet, 0, len(writes))
	for _, w := range writes {
		write := vk.WriteDescriptorSet{
			SType:           vk.StructureTypeWriteDescriptorSet,
			DstSet:          set.handle,
			DstBinding:      w.Binding,
			DstArrayElement: w.ArrayElement,
			DescriptorCount: 1,
			DescriptorType:  vkDescriptorType(w.Type),
		}
		r := w.Resource
		switch {
		case w.Type.IsBuffer():
			b, err := d.buffers.get(uint64(r.Buffer))
			if err != nil {
				return fmt.Errorf("binding %d: %w", w.Binding, err)
			}
			size := vk.DeviceSize(r.Range)
			if size == 0 {
				size = vk.DeviceSize(vk.WholeSize)
			}
			write.PBufferInfo = []vk.DescriptorBufferInfo{{
				Buffer: b.handle,
				Offset: vk.DeviceSize(r.Offset),
				Range:  size,
			}}
		case w.Type.IsImage():
			v, err := d.views.get(uint64(r.View))
			if err != nil {
				return fmt.Errorf("binding %d: %w", w.Binding, err)
			}
			info := vk.DescriptorImageInfo{ImageView: v.handle, ImageLayout: vkLayout(r.Layout)}
			if r.Sampler != 0 {
				if info.Sampler, err = d.samplers.get(uint64(r.Sampler)); err != nil {
					return fmt.Errorf("binding %d: %w", w.Binding, err)
				}
			}
			write.PImageInfo = []vk.DescriptorImageInfo{info}
		default:
			// Acceleration structures need VK_KHR_acceleration_structure,
			// which this device does not enable.
			return fmt.Errorf("binding %d of type %s: %w", w.Binding, w.Type, core.ErrInvalidBinding)
		}
		vkWrites = append(vkWrites, write)
	}
	if len(vkWrites) > 0 {
		vk.UpdateDescriptorSets(d.logical, uint32(len(vkWrites)), vkWrites, 0, nil)
	}
	return nil
}

package headless

import (
	"fmt"

	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/renderer/metadata"
)

func (d *Device) CreateDescriptorPool(info metadata.DescriptorPoolCreateInfo) (metadata.DescriptorPoolHandle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if info.MaxSets == 0 {
		return 0, fmt.Errorf("headless create descriptor pool `%s`: max sets is zero", info.Name)
	}
	h := metadata.DescriptorPoolHandle(d.alloc(KindDescriptorPool))
	d.pools[h] = &poolState{
		info: info,
		used: make(map[metadata.DescriptorType]uint32),
	}
	return h, nil
}

// DestroyDescriptorPool frees the pool and every set allocated from it.
func (d *Device) DestroyDescriptorPool(pool metadata.DescriptorPoolHandle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.pools[pool]
	if !d.release(KindDescriptorPool, uint64(pool)) || !ok {
		return
	}
	for _, s := range p.sets {
		delete(d.sets, s)
		delete(d.live[KindDescriptorSet], uint64(s))
	}
	delete(d.pools, pool)
}

func (d *Device) CreateDescriptorLayout(bindings []metadata.DescriptorBinding) (metadata.DescriptorLayoutHandle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	seen := make(map[uint32]bool)
	for i, b := range bindings {
		if seen[b.Binding] {
			return 0, fmt.Errorf("headless create descriptor layout: binding %d declared twice", b.Binding)
		}
		seen[b.Binding] = true
		if b.Variable && i != len(bindings)-1 {
			return 0, fmt.Errorf("headless create descriptor layout: variable binding %d is not the last one", b.Binding)
		}
	}
	h := metadata.DescriptorLayoutHandle(d.alloc(KindDescriptorLayout))
	d.layouts[h] = append([]metadata.DescriptorBinding(nil), bindings...)
	return h, nil
}

func (d *Device) DestroyDescriptorLayout(layout metadata.DescriptorLayoutHandle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.release(KindDescriptorLayout, uint64(layout)) {
		delete(d.layouts, layout)
	}
}

func (d *Device) AllocateDescriptorSet(pool metadata.DescriptorPoolHandle, layout metadata.DescriptorLayoutHandle, variableCount uint32) (metadata.DescriptorSetHandle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.pools[pool]
	if !ok {
		return 0, fmt.Errorf("headless allocate descriptor set: unknown pool %d", pool)
	}
	bindings, ok := d.layouts[layout]
	if !ok {
		return 0, fmt.Errorf("headless allocate descriptor set: unknown layout %d", layout)
	}
	if uint32(len(p.sets)) >= p.info.MaxSets {
		return 0, fmt.Errorf("headless allocate descriptor set from `%s`: %w", p.info.Name, core.ErrPoolExhausted)
	}
	need := make(map[metadata.DescriptorType]uint32)
	for _, b := range bindings {
		n := b.Count
		if b.Variable {
			n = variableCount
		}
		need[b.Type] += n
	}
	for t, n := range need {
		if p.used[t]+n > capacity(p.info.Sizes, t) {
			return 0, fmt.Errorf("headless allocate descriptor set from `%s` (%s): %w", p.info.Name, t, core.ErrPoolExhausted)
		}
	}
	for t, n := range need {
		p.used[t] += n
	}
	h := metadata.DescriptorSetHandle(d.alloc(KindDescriptorSet))
	p.sets = append(p.sets, h)
	d.sets[h] = &setState{
		pool:     pool,
		layout:   layout,
		variable: variableCount,
		writes:   make(map[[2]uint32]metadata.DescriptorResource),
		counts:   make(map[uint32]int),
	}
	return h, nil
}

func capacity(sizes []metadata.PoolSize, t metadata.DescriptorType) uint32 {
	var n uint32
	for _, s := range sizes {
		if s.Type == t {
			n += s.Count
		}
	}
	return n
}

func (d *Device) UpdateDescriptorSet(set metadata.DescriptorSetHandle, writes []metadata.DescriptorWrite) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	s, ok := d.sets[set]
	if !ok {
		return fmt.Errorf("headless update descriptor set: unknown set %d", set)
	}
	bindings := d.layouts[s.layout]
	for _, w := range writes {
		var binding *metadata.DescriptorBinding
		for i := range bindings {
			if bindings[i].Binding == w.Binding {
				binding = &bindings[i]
				break
			}
		}
		if binding == nil {
			return fmt.Errorf("headless update descriptor set %d: no binding %d", set, w.Binding)
		}
		if binding.Type != w.Type {
			return fmt.Errorf("headless update descriptor set %d: binding %d is %s, write is %s", set, w.Binding, binding.Type, w.Type)
		}
		count := binding.Count
		if binding.Variable {
			count = s.variable
		}
		if w.ArrayElement >= count {
			return fmt.Errorf("headless update descriptor set %d: element %d out of range for binding %d", set, w.ArrayElement, w.Binding)
		}
		s.writes[[2]uint32{w.Binding, w.ArrayElement}] = w.Resource
		s.counts[w.Binding]++
	}
	return nil
}

// Descriptor reads back what a binding element currently points to.
func (d *Device) Descriptor(set metadata.DescriptorSetHandle, binding, element uint32) (metadata.DescriptorResource, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	s, ok := d.sets[set]
	if !ok {
		return metadata.DescriptorResource{}, false
	}
	r, ok := s.writes[[2]uint32{binding, element}]
	return r, ok
}

// DescriptorWrites returns how many writes a binding of a set received.
func (d *Device) DescriptorWrites(set metadata.DescriptorSetHandle, binding uint32) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	s, ok := d.sets[set]
	if !ok {
		return 0
	}
	return s.counts[binding]
}

// checkBound reports every set that is unknown or still points at a
// destroyed view, sampler or buffer when it gets bound.
func (d *Device) checkBound(cb metadata.CommandBufferHandle, sets []metadata.DescriptorSetHandle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, h := range sets {
		s, ok := d.sets[h]
		if !ok {
			d.violate("bind of unknown descriptor set %d in command buffer %d", h, cb)
			continue
		}
		for at, r := range s.writes {
			if r.View != 0 && !d.isLive(KindImageView, uint64(r.View)) && !d.isLive(KindSwapchainView, uint64(r.View)) {
				d.violate("descriptor set %d binding %d[%d] bound with destroyed image view %d", h, at[0], at[1], r.View)
			}
			if r.Sampler != 0 && !d.isLive(KindSampler, uint64(r.Sampler)) {
				d.violate("descriptor set %d binding %d[%d] bound with destroyed sampler %d", h, at[0], at[1], r.Sampler)
			}
			if r.Buffer != 0 && !d.isLive(KindBuffer, uint64(r.Buffer)) {
				d.violate("descriptor set %d binding %d[%d] bound with destroyed buffer %d", h, at[0], at[1], r.Buffer)
			}
		}
	}
}

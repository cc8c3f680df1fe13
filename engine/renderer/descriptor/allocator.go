package descriptor

import (
	"fmt"

	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/renderer/metadata"
	"golang.org/x/exp/slices"
)

// Layout is an immutable descriptor set layout registered under an id.
type Layout struct {
	ID       string
	Handle   metadata.DescriptorLayoutHandle
	Bindings []metadata.DescriptorBinding

	dynamic  int
	variable int
}

func (l *Layout) binding(b uint32) (metadata.DescriptorBinding, bool) {
	for _, db := range l.Bindings {
		if db.Binding == b {
			return db, true
		}
	}
	return metadata.DescriptorBinding{}, false
}

// Set is a descriptor set allocated from the allocator's pool. It remembers
// the last resource written to every element.
type Set struct {
	Handle        metadata.DescriptorSetHandle
	Layout        *Layout
	VariableCount uint32

	bindings map[slot]entry
}

// Allocator owns one descriptor pool, the layouts registered with it and
// every set allocated from it. Each pass owns exactly one.
type Allocator struct {
	device metadata.GraphicsDevice
	name   string

	pool      metadata.DescriptorPoolHandle
	maxSets   uint32
	allocated uint32
	capacity  map[metadata.DescriptorType]uint32
	used      map[metadata.DescriptorType]uint32

	layouts   map[string]*Layout
	sets      map[metadata.DescriptorSetHandle]*Set
	destroyed bool
}

func NewAllocator(device metadata.GraphicsDevice, name string) *Allocator {
	return &Allocator{
		device:   device,
		name:     name,
		capacity: make(map[metadata.DescriptorType]uint32),
		used:     make(map[metadata.DescriptorType]uint32),
		layouts:  make(map[string]*Layout),
		sets:     make(map[metadata.DescriptorSetHandle]*Set),
	}
}

func (a *Allocator) Name() string {
	return a.name
}

func (a *Allocator) alive() error {
	if a.destroyed {
		return fmt.Errorf("descriptor allocator `%s` used after destroy: %w", a.name, core.ErrPassCleanedUp)
	}
	return nil
}

// CreateDescriptorPool creates the allocator's single pool. Hints of the same
// type are summed and empty hints are dropped.
func (a *Allocator) CreateDescriptorPool(maxSets uint32, hints ...metadata.PoolSize) error {
	if err := a.alive(); err != nil {
		return err
	}
	if a.pool != 0 {
		return fmt.Errorf("descriptor allocator `%s` already has a pool", a.name)
	}

	var order []metadata.DescriptorType
	for _, h := range hints {
		if h.Count == 0 {
			continue
		}
		if _, ok := a.capacity[h.Type]; !ok {
			order = append(order, h.Type)
		}
		a.capacity[h.Type] += h.Count
	}
	sizes := make([]metadata.PoolSize, 0, len(order))
	for _, t := range order {
		sizes = append(sizes, metadata.PoolSize{Type: t, Count: a.capacity[t]})
	}

	pool, err := a.device.CreateDescriptorPool(metadata.DescriptorPoolCreateInfo{
		Name:    a.name,
		MaxSets: maxSets,
		Sizes:   sizes,
	})
	if err != nil {
		return fmt.Errorf("failed to create descriptor pool for `%s`: %w", a.name, err)
	}
	a.pool = pool
	a.maxSets = maxSets
	return nil
}

// SetLayout registers a layout. Registering the same id again with identical
// bindings returns the existing layout; with different ones it fails.
func (a *Allocator) SetLayout(id string, bindings []metadata.DescriptorBinding) (*Layout, error) {
	if err := a.alive(); err != nil {
		return nil, err
	}
	if l, ok := a.layouts[id]; ok {
		if slices.Equal(l.Bindings, bindings) {
			return l, nil
		}
		return nil, fmt.Errorf("descriptor layout `%s` in `%s`: %w", id, a.name, core.ErrLayoutImmutable)
	}

	l := &Layout{
		ID:       id,
		Bindings: slices.Clone(bindings),
		variable: -1,
	}
	for i, b := range bindings {
		if b.Type.IsDynamic() {
			l.dynamic += int(b.Count)
		}
		if b.Variable {
			if i != len(bindings)-1 {
				return nil, fmt.Errorf("descriptor layout `%s`: variable binding %d must be last: %w", id, b.Binding, core.ErrInvalidBinding)
			}
			l.variable = i
		}
	}

	h, err := a.device.CreateDescriptorLayout(l.Bindings)
	if err != nil {
		return nil, fmt.Errorf("failed to create descriptor layout `%s`: %w", id, err)
	}
	l.Handle = h
	a.layouts[id] = l
	return l, nil
}

func (a *Allocator) Layout(id string) (*Layout, bool) {
	l, ok := a.layouts[id]
	return l, ok
}

// LayoutHandles returns the handles of the given layouts, in order, for
// pipeline layout creation.
func (a *Allocator) LayoutHandles(ids ...string) ([]metadata.DescriptorLayoutHandle, error) {
	out := make([]metadata.DescriptorLayoutHandle, 0, len(ids))
	for _, id := range ids {
		l, ok := a.layouts[id]
		if !ok {
			return nil, fmt.Errorf("descriptor layout `%s` in `%s`: %w", id, a.name, core.ErrUnknownLayout)
		}
		out = append(out, l.Handle)
	}
	return out, nil
}

// DynamicCount returns how many dynamic offsets a set of this layout takes.
func (a *Allocator) DynamicCount(id string) int {
	if l, ok := a.layouts[id]; ok {
		return l.dynamic
	}
	return 0
}

func (a *Allocator) Allocate(id string) (*Set, error) {
	return a.allocate(id, 0, false)
}

// AllocateVariable allocates a set whose trailing variable binding holds
// count elements.
func (a *Allocator) AllocateVariable(id string, count uint32) (*Set, error) {
	return a.allocate(id, count, true)
}

func (a *Allocator) allocate(id string, count uint32, variable bool) (*Set, error) {
	if err := a.alive(); err != nil {
		return nil, err
	}
	if a.pool == 0 {
		return nil, fmt.Errorf("descriptor allocator `%s` has no pool", a.name)
	}
	l, ok := a.layouts[id]
	if !ok {
		return nil, fmt.Errorf("descriptor layout `%s` in `%s`: %w", id, a.name, core.ErrUnknownLayout)
	}
	if variable {
		if l.variable < 0 {
			return nil, fmt.Errorf("descriptor layout `%s` has no variable binding: %w", id, core.ErrInvalidBinding)
		}
		if limit := l.Bindings[l.variable].Count; count > limit {
			return nil, fmt.Errorf("descriptor layout `%s`: variable count %d above %d: %w", id, count, limit, core.ErrInvalidBinding)
		}
	}

	if a.allocated+1 > a.maxSets {
		return nil, fmt.Errorf("descriptor pool `%s` holds %d sets: %w", a.name, a.maxSets, core.ErrPoolExhausted)
	}
	need := make(map[metadata.DescriptorType]uint32)
	for _, b := range l.Bindings {
		n := b.Count
		if b.Variable {
			n = count
		}
		need[b.Type] += n
	}
	for t, n := range need {
		if a.used[t]+n > a.capacity[t] {
			return nil, fmt.Errorf("descriptor pool `%s` out of %s descriptors (%d used, %d more needed, %d available): %w",
				a.name, t, a.used[t], n, a.capacity[t], core.ErrPoolExhausted)
		}
	}

	h, err := a.device.AllocateDescriptorSet(a.pool, l.Handle, count)
	if err != nil {
		return nil, fmt.Errorf("failed to allocate descriptor set `%s`: %w", id, err)
	}
	for t, n := range need {
		a.used[t] += n
	}
	a.allocated++

	s := &Set{
		Handle:        h,
		Layout:        l,
		VariableCount: count,
		bindings:      make(map[slot]entry),
	}
	a.sets[h] = s
	return s, nil
}

// Update points binding element 0 at res.
func (a *Allocator) Update(set *Set, binding uint32, res metadata.DescriptorResource) error {
	return a.write(set, binding, 0, res, BindingStateResourceBound, false)
}

func (a *Allocator) UpdateArray(set *Set, binding, element uint32, res metadata.DescriptorResource) error {
	return a.write(set, binding, element, res, BindingStateResourceBound, false)
}

// BindFallback writes a placeholder. It fails once the element holds a real
// resource.
func (a *Allocator) BindFallback(set *Set, binding, element uint32, res metadata.DescriptorResource) error {
	return a.write(set, binding, element, res, BindingStateFallbackBound, false)
}

// Rebind points an element back at a placeholder after the resource it held
// was destroyed. The set must not be in use by a pending frame.
func (a *Allocator) Rebind(set *Set, binding, element uint32, res metadata.DescriptorResource) error {
	return a.write(set, binding, element, res, BindingStateFallbackBound, true)
}

func (a *Allocator) write(set *Set, binding, element uint32, res metadata.DescriptorResource, state BindingState, destroyed bool) error {
	if err := a.alive(); err != nil {
		return err
	}
	if set == nil || a.sets[set.Handle] != set {
		return fmt.Errorf("descriptor set not allocated by `%s`: %w", a.name, core.ErrInvalidBinding)
	}
	b, ok := set.Layout.binding(binding)
	if !ok {
		return fmt.Errorf("layout `%s` has no binding %d: %w", set.Layout.ID, binding, core.ErrInvalidBinding)
	}
	count := b.Count
	if b.Variable {
		count = set.VariableCount
	}
	if element >= count {
		return fmt.Errorf("layout `%s` binding %d: element %d out of %d: %w", set.Layout.ID, binding, element, count, core.ErrInvalidBinding)
	}
	if !resourceMatches(b.Type, res) {
		return fmt.Errorf("layout `%s` binding %d: resource does not fit a %s descriptor: %w", set.Layout.ID, binding, b.Type, core.ErrInvalidBinding)
	}

	key := slot{binding: binding, element: element}
	cur := set.bindings[key]
	if err := cur.state.advance(state, destroyed); err != nil {
		return fmt.Errorf("layout `%s` binding %d[%d]: %w", set.Layout.ID, binding, element, err)
	}
	if cur.state == state && cur.resource == res {
		return nil
	}

	if err := a.device.UpdateDescriptorSet(set.Handle, []metadata.DescriptorWrite{{
		Binding:      binding,
		ArrayElement: element,
		Type:         b.Type,
		Resource:     res,
	}}); err != nil {
		return fmt.Errorf("failed to update descriptor set `%s` binding %d: %w", set.Layout.ID, binding, err)
	}
	set.bindings[key] = entry{resource: res, state: state}
	return nil
}

// Bound returns the last resource written to an element and its state.
func (a *Allocator) Bound(set *Set, binding, element uint32) (metadata.DescriptorResource, BindingState) {
	if set == nil {
		return metadata.DescriptorResource{}, BindingStateUnbound
	}
	e := set.bindings[slot{binding: binding, element: element}]
	return e.resource, e.state
}

// Bind records the sets into cb after checking that exactly one offset is
// supplied per dynamic binding.
func (a *Allocator) Bind(cb metadata.CommandBuffer, kind metadata.PipelineKind, layout metadata.PipelineLayoutHandle, firstSet uint32, sets []*Set, offsets []uint32) error {
	if err := a.alive(); err != nil {
		return err
	}
	want := 0
	handles := make([]metadata.DescriptorSetHandle, len(sets))
	for i, s := range sets {
		want += s.Layout.dynamic
		handles[i] = s.Handle
	}
	if want != len(offsets) {
		return fmt.Errorf("`%s` binds %d dynamic offsets, layouts take %d: %w", a.name, len(offsets), want, core.ErrDynamicOffsetMismatch)
	}
	cb.BindDescriptorSets(kind, layout, firstSet, handles, offsets)
	return nil
}

// Destroy frees the pool, which releases every set, and then the layouts.
// Calling it again is a no-op.
func (a *Allocator) Destroy() {
	if a.destroyed {
		return
	}
	a.device.DestroyDescriptorPool(a.pool)
	ids := make([]string, 0, len(a.layouts))
	for id := range a.layouts {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	for _, id := range ids {
		a.device.DestroyDescriptorLayout(a.layouts[id].Handle)
	}
	a.pool = 0
	a.layouts = make(map[string]*Layout)
	a.sets = make(map[metadata.DescriptorSetHandle]*Set)
	a.destroyed = true
}

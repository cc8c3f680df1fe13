package descriptor

import (
	"fmt"

	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/renderer/metadata"
)

// BindingState tracks what a single descriptor array element points to.
type BindingState uint8

const (
	// Nothing was ever written.
	BindingStateUnbound BindingState = iota
	// A placeholder resource is bound until the real one is ready.
	BindingStateFallbackBound
	// The real resource is bound.
	BindingStateResourceBound
)

func (s BindingState) String() string {
	switch s {
	case BindingStateUnbound:
		return "unbound"
	case BindingStateFallbackBound:
		return "fallback_bound"
	case BindingStateResourceBound:
		return "resource_bound"
	}
	return "unknown"
}

// advance checks that the binding may move to the next state. A fallback
// replaces a real resource only when that resource was destroyed.
func (s BindingState) advance(next BindingState, destroyed bool) error {
	if next == BindingStateUnbound {
		return fmt.Errorf("%s -> %s: %w", s, next, core.ErrInvalidBindingTransition)
	}
	if s == BindingStateResourceBound && next == BindingStateFallbackBound && !destroyed {
		return fmt.Errorf("%s -> %s: %w", s, next, core.ErrInvalidBindingTransition)
	}
	return nil
}

type slot struct {
	binding uint32
	element uint32
}

type entry struct {
	resource metadata.DescriptorResource
	state    BindingState
}

// resourceMatches reports whether res carries the handle a descriptor of
// type t reads.
func resourceMatches(t metadata.DescriptorType, res metadata.DescriptorResource) bool {
	switch {
	case t.IsBuffer():
		return res.Buffer != 0
	case t == metadata.DescriptorTypeAccelerationStructure:
		return res.AccelerationStructure != 0
	case t == metadata.DescriptorTypeCombinedImageSampler:
		return res.View != 0 && res.Sampler != 0
	case t.IsImage():
		return res.View != 0
	}
	return false
}

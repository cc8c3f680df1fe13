package headless

import (
	"sync"

	"github.com/spaghettifunk/prism/engine/renderer/metadata"
)

// Surface stands in for a window. It reports a fixed extent, or walks through
// a scripted list of extents, one step per WaitEvents call.
type Surface struct {
	mu      sync.Mutex
	extents []metadata.Extent2D
	waits   int
}

func NewSurface(extents ...metadata.Extent2D) *Surface {
	if len(extents) == 0 {
		extents = []metadata.Extent2D{{Width: 1280, Height: 720}}
	}
	return &Surface{extents: extents}
}

func (s *Surface) FramebufferExtent() metadata.Extent2D {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.extents[0]
}

// WaitEvents moves to the next scripted extent. The last one sticks.
func (s *Surface) WaitEvents() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.waits++
	if len(s.extents) > 1 {
		s.extents = s.extents[1:]
	}
}

// Set replaces the script with a single extent.
func (s *Surface) Set(extent metadata.Extent2D) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.extents = []metadata.Extent2D{extent}
}

// Waits returns how many times WaitEvents was called.
func (s *Surface) Waits() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.waits
}

package headless

import (
	"fmt"

	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/renderer/metadata"
)

func (d *Device) createSwapchainViews() {
	d.swapchainViews = make([]metadata.ImageViewHandle, d.swapchainCount)
	for i := range d.swapchainViews {
		d.swapchainViews[i] = metadata.ImageViewHandle(d.alloc(KindSwapchainView))
	}
	d.nextImage = 0
}

func (d *Device) SwapchainViews() []metadata.ImageViewHandle {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]metadata.ImageViewHandle(nil), d.swapchainViews...)
}

func (d *Device) SwapchainFormat() metadata.Format {
	return d.swapchainFormat
}

func (d *Device) SwapchainExtent() metadata.Extent2D {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.swapchainExtent
}

// SetSwapchainImageCount changes the image count the next recreation uses.
func (d *Device) SetSwapchainImageCount(count int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pendingCount = count
}

// ScriptAcquire queues statuses returned by the next acquires, in order.
func (d *Device) ScriptAcquire(statuses ...metadata.PresentStatus) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.acquireScript = append(d.acquireScript, statuses...)
}

// ScriptPresent queues statuses returned by the next presents, in order.
func (d *Device) ScriptPresent(statuses ...metadata.PresentStatus) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.presentScript = append(d.presentScript, statuses...)
}

// Recreations returns how many times the swapchain was recreated.
func (d *Device) Recreations() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.recreations
}

func pop(script *[]metadata.PresentStatus) metadata.PresentStatus {
	if len(*script) == 0 {
		return metadata.PresentStatusOK
	}
	s := (*script)[0]
	*script = (*script)[1:]
	return s
}

func (d *Device) AcquirePresentImage(signal metadata.SemaphoreHandle) (uint32, metadata.PresentStatus, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	status := pop(&d.acquireScript)
	if status == metadata.PresentStatusOutOfDate {
		return 0, status, nil
	}
	if err := d.signal(signal); err != nil {
		return 0, status, err
	}
	index := d.nextImage
	d.nextImage = (d.nextImage + 1) % uint32(len(d.swapchainViews))
	return index, status, nil
}

func (d *Device) PresentImage(index uint32, wait metadata.SemaphoreHandle) (metadata.PresentStatus, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if int(index) >= len(d.swapchainViews) {
		return 0, fmt.Errorf("headless present: image index %d out of range", index)
	}
	if err := d.consume(wait); err != nil {
		return 0, err
	}
	return pop(&d.presentScript), nil
}

func (d *Device) RecreateSwapchain(extent metadata.Extent2D) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if extent.IsZero() {
		return fmt.Errorf("headless recreate swapchain with %dx%d: %w", extent.Width, extent.Height, core.ErrSwapchainBooting)
	}
	if d.inFlight() > 0 {
		return d.violate("swapchain recreated with %d submissions in flight", d.inFlight())
	}
	for _, v := range d.swapchainViews {
		d.release(KindSwapchainView, uint64(v))
	}
	d.swapchainCount = d.pendingCount
	d.swapchainExtent = extent
	d.createSwapchainViews()
	d.recreations++
	return nil
}

package core

import (
	"errors"
)

var (
	ErrSwapchainBooting   = errors.New("swapchain resized or recreated, booting")
	ErrSwapchainOutOfDate = errors.New("swapchain out of date")

	ErrPoolExhausted            = errors.New("descriptor pool exhausted")
	ErrLayoutImmutable          = errors.New("descriptor layout already defined with different bindings")
	ErrUnknownLayout            = errors.New("unknown descriptor layout")
	ErrInvalidBinding           = errors.New("invalid descriptor binding")
	ErrInvalidBindingTransition = errors.New("invalid descriptor binding transition")
	ErrDynamicOffsetMismatch    = errors.New("dynamic offset count does not match layout")

	ErrForwardDependency = errors.New("image dependency references a pass that is not declared earlier")
	ErrDependencyCycle   = errors.New("image dependencies form a cycle")
	ErrUnknownDependency = errors.New("image dependency references an unknown pass or attachment")

	ErrPassCleanedUp    = errors.New("render pass already cleaned up")
	ErrPassNotReady     = errors.New("render pass used before setup")
	ErrPipelineState    = errors.New("render pipeline in wrong state")
	ErrPipelineShutDown = errors.New("render pipeline shut down")

	ErrDeviceLost         = errors.New("device lost")
	ErrOutOfDeviceMemory  = errors.New("out of device memory")
	ErrUnsupportedFormat  = errors.New("unsupported format")
	ErrUnsupportedFeature = errors.New("unsupported device feature")
	ErrUnknown            = errors.New("unknown")
)

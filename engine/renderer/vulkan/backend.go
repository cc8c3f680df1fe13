package vulkan

import (
	"fmt"
	"runtime"
	"unsafe"

	"github.com/go-gl/glfw/v3.3/glfw"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/renderer/metadata"
)

const validationLayer = "VK_LAYER_KHRONOS_validation"

// Window is the part of a glfw window the device presents to.
type Window interface {
	GetRequiredInstanceExtensions() []string
	CreateWindowSurface(instance interface{}, allocCallbacks unsafe.Pointer) (uintptr, error)
}

type Options struct {
	AppName string
	// Validation enables the Khronos validation layer and routes its reports
	// to the engine log.
	Validation bool
	// SwapchainImages is the image count asked of the surface. The surface
	// capabilities clamp it.
	SwapchainImages int
	Extent          metadata.Extent2D
}

// New brings up the instance, the surface, the logical device and the
// swapchain. On failure everything created so far is released.
func New(window Window, opts Options) (*Device, error) {
	procAddr := glfw.GetVulkanGetInstanceProcAddress()
	if procAddr == nil {
		return nil, fmt.Errorf("GetInstanceProcAddress is nil")
	}
	vk.SetGetInstanceProcAddr(procAddr)
	if err := vk.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize vk: %w", err)
	}

	d := newDevice()
	if err := d.initialize(window, opts); err != nil {
		d.Destroy()
		return nil, err
	}
	core.LogInfo("Vulkan device initialized successfully.")
	return d, nil
}

func (d *Device) initialize(window Window, opts Options) error {
	if err := d.createInstance(window, opts); err != nil {
		return err
	}

	core.LogDebug("Creating Vulkan surface...")
	surface, err := window.CreateWindowSurface(d.instance, nil)
	if err != nil {
		return fmt.Errorf("vulkan surface creation failed: %w", err)
	}
	d.surface = vk.SurfaceFromPointer(surface)
	core.LogDebug("Vulkan surface created.")

	if err := d.selectPhysicalDevice(); err != nil {
		return err
	}
	if err := d.createLogicalDevice(opts.Validation); err != nil {
		return err
	}
	sc, err := createSwapchain(d, opts.Extent, opts.SwapchainImages, nil)
	if err != nil {
		return err
	}
	d.swapchain = sc
	return nil
}

func (d *Device) createInstance(window Window, opts Options) error {
	appInfo := &vk.ApplicationInfo{
		SType:              vk.StructureTypeApplicationInfo,
		ApiVersion:         uint32(vk.MakeVersion(1, 2, 0)),
		ApplicationVersion: uint32(vk.MakeVersion(1, 0, 0)),
		PApplicationName:   VulkanSafeString(opts.AppName),
		PEngineName:        VulkanSafeString("Prism Engine"),
	}
	createInfo := vk.InstanceCreateInfo{
		SType:            vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo: appInfo,
	}

	extensions := window.GetRequiredInstanceExtensions()
	if runtime.GOOS == "darwin" {
		extensions = append(extensions,
			"VK_KHR_portability_enumeration",
			"VK_KHR_get_physical_device_properties2",
		)
		// VK_INSTANCE_CREATE_ENUMERATE_PORTABILITY_BIT_KHR
		createInfo.Flags |= 1
	}
	var layers []string
	if opts.Validation {
		extensions = append(extensions, vk.ExtDebugReportExtensionName)
		if hasLayer(validationLayer) {
			layers = append(layers, validationLayer)
		} else {
			core.LogWarn("Validation layer `%s` is missing, running without it.", validationLayer)
		}
	}
	core.LogDebug("Instance extensions: %v", extensions)

	createInfo.EnabledExtensionCount = uint32(len(extensions))
	createInfo.PpEnabledExtensionNames = VulkanSafeStrings(extensions)
	createInfo.EnabledLayerCount = uint32(len(layers))
	createInfo.PpEnabledLayerNames = VulkanSafeStrings(layers)

	if err := resultError("vkCreateInstance", vk.CreateInstance(&createInfo, nil, &d.instance)); err != nil {
		return err
	}
	if err := vk.InitInstance(d.instance); err != nil {
		return err
	}
	core.LogInfo("Vulkan Instance created.")

	if len(layers) > 0 {
		debugCreateInfo := vk.DebugReportCallbackCreateInfo{
			SType:       vk.StructureTypeDebugReportCallbackCreateInfo,
			Flags:       vk.DebugReportFlags(vk.DebugReportErrorBit | vk.DebugReportWarningBit | vk.DebugReportPerformanceWarningBit),
			PfnCallback: dbgCallbackFunc,
		}
		var dbg vk.DebugReportCallback
		if err := resultError("vkCreateDebugReportCallback", vk.CreateDebugReportCallback(d.instance, &debugCreateInfo, nil, &dbg)); err != nil {
			return err
		}
		d.debugMessenger = dbg
		core.LogDebug("Vulkan debugger created.")
	}
	return nil
}

func hasLayer(name string) bool {
	var count uint32
	if res := vk.EnumerateInstanceLayerProperties(&count, nil); res != vk.Success {
		return false
	}
	available := make([]vk.LayerProperties, count)
	if res := vk.EnumerateInstanceLayerProperties(&count, available); res != vk.Success {
		return false
	}
	for i := range available {
		available[i].Deref()
		if cString(available[i].LayerName[:]) == name {
			return true
		}
	}
	return false
}

func (d *Device) WaitIdle() error {
	if d.logical == nil {
		return nil
	}
	var err error
	d.locks.SafeQueueCall(d.graphicsQueueIndex, func() error {
		err = resultError("vkDeviceWaitIdle", vk.DeviceWaitIdle(d.logical))
		return err
	})
	return err
}

func (d *Device) Limits() metadata.DeviceLimits {
	limits := d.properties.Limits
	limits.Deref()
	return metadata.DeviceLimits{
		MinUniformBufferOffsetAlignment: uint64(limits.MinUniformBufferOffsetAlignment),
		MaxPushConstantsSize:            limits.MaxPushConstantsSize,
		MaxBoundDescriptorSets:          limits.MaxBoundDescriptorSets,
		// The bindings expose no VK_KHR_acceleration_structure entry points.
		SupportsAccelerationStructures: false,
	}
}

// Destroy releases the swapchain, the device and the instance. Objects the
// caller still holds are reported and destroyed with the device.
func (d *Device) Destroy() {
	if d.destroyed {
		return
	}
	d.destroyed = true
	if d.logical != nil {
		vk.DeviceWaitIdle(d.logical)
		d.reportLeaks()
		if d.swapchain != nil {
			d.swapchain.destroy(d)
			d.swapchain = nil
		}
		if d.commandPool != nil {
			vk.DestroyCommandPool(d.logical, d.commandPool, nil)
		}
		core.LogDebug("Destroying Vulkan device...")
		vk.DestroyDevice(d.logical, nil)
		d.logical = nil
	}
	if d.surface != vk.NullSurface {
		core.LogDebug("Destroying Vulkan surface...")
		vk.DestroySurface(d.instance, d.surface, nil)
		d.surface = vk.NullSurface
	}
	if d.debugMessenger != vk.NullDebugReportCallback {
		vk.DestroyDebugReportCallback(d.instance, d.debugMessenger, nil)
		d.debugMessenger = vk.NullDebugReportCallback
	}
	if d.instance != nil {
		core.LogDebug("Destroying Vulkan instance...")
		vk.DestroyInstance(d.instance, nil)
		d.instance = nil
	}
}

func (d *Device) reportLeaks() {
	d.mu.Lock()
	defer d.mu.Unlock()
	leaks := map[string]int{
		"image":             d.images.len(),
		"buffer":            d.buffers.len(),
		"sampler":           d.samplers.len(),
		"render pass":       d.renderPasses.len(),
		"framebuffer":       d.framebuffers.len(),
		"descriptor pool":   d.pools.len(),
		"descriptor layout": d.layouts.len(),
		"pipeline":          d.pipelines.len(),
		"fence":             d.fences.len(),
		"semaphore":         d.semaphores.len(),
	}
	for kind, n := range leaks {
		if n > 0 {
			core.LogWarn("%d %s objects still alive at device shutdown", n, kind)
		}
	}
}

func dbgCallbackFunc(flags vk.DebugReportFlags, objectType vk.DebugReportObjectType, object uint64, location uint64, messageCode int32, pLayerPrefix string, pMessage string, pUserData unsafe.Pointer) vk.Bool32 {
	switch {
	case flags&vk.DebugReportFlags(vk.DebugReportErrorBit) != 0:
		core.LogError("ERROR: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportWarningBit) != 0:
		core.LogWarn("WARNING: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportPerformanceWarningBit) != 0:
		core.LogWarn("PERFORMANCE WARNING: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	default:
		core.LogDebug("[%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	}
	return vk.Bool32(vk.False)
}

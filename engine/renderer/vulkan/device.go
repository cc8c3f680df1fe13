package vulkan

import (
	"fmt"
	"unsafe"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/prism/engine/core"
)

type VulkanPhysicalDeviceRequirements struct {
	Graphics             bool
	Present              bool
	Compute              bool
	DeviceExtensionNames []string
	SamplerAnisotropy    bool
	// DescriptorIndexing covers the Vulkan 1.2 features variable sized
	// texture arrays need.
	DescriptorIndexing bool
	// MinAPIVersion is needed for descriptor indexing, which bindless
	// texture arrays rely on.
	MinAPIVersion vk.Version
}

type VulkanPhysicalDeviceQueueFamilyInfo struct {
	GraphicsFamilyIndex int32
	PresentFamilyIndex  int32
	ComputeFamilyIndex  int32
}

type candidate struct {
	device     vk.PhysicalDevice
	properties vk.PhysicalDeviceProperties
	memory     vk.PhysicalDeviceMemoryProperties
	queues     VulkanPhysicalDeviceQueueFamilyInfo
	score      int
}

func (d *Device) selectPhysicalDevice() error {
	var physicalDeviceCount uint32
	if err := resultError("vkEnumeratePhysicalDevices", vk.EnumeratePhysicalDevices(d.instance, &physicalDeviceCount, nil)); err != nil {
		return err
	}
	if physicalDeviceCount == 0 {
		return fmt.Errorf("no devices which support Vulkan were found")
	}
	physicalDevices := make([]vk.PhysicalDevice, physicalDeviceCount)
	if err := resultError("vkEnumeratePhysicalDevices", vk.EnumeratePhysicalDevices(d.instance, &physicalDeviceCount, physicalDevices)); err != nil {
		return err
	}

	requirements := VulkanPhysicalDeviceRequirements{
		Graphics:             true,
		Present:              true,
		Compute:              true,
		DeviceExtensionNames: []string{vk.KhrSwapchainExtensionName},
		SamplerAnisotropy:    true,
		DescriptorIndexing:   true,
		MinAPIVersion:        vk.Version(vk.MakeVersion(1, 2, 0)),
	}

	var best *candidate
	for _, pd := range physicalDevices {
		c := &candidate{device: pd}
		vk.GetPhysicalDeviceProperties(pd, &c.properties)
		c.properties.Deref()
		vk.GetPhysicalDeviceMemoryProperties(pd, &c.memory)
		c.memory.Deref()
		features, v12 := physicalDeviceFeatures(pd)

		name := cString(c.properties.DeviceName[:])
		queues, ok := d.physicalDeviceMeetsRequirements(pd, name, &c.properties, &features, &v12, &requirements)
		if !ok {
			continue
		}
		c.queues = queues
		switch c.properties.DeviceType {
		case vk.PhysicalDeviceTypeDiscreteGpu:
			c.score = 3
		case vk.PhysicalDeviceTypeIntegratedGpu:
			c.score = 2
		case vk.PhysicalDeviceTypeVirtualGpu:
			c.score = 1
		}
		if best == nil || c.score > best.score {
			best = c
		}
	}
	if best == nil {
		return fmt.Errorf("no physical devices were found which meet the requirements")
	}

	d.physical = best.device
	d.properties = best.properties
	d.memory = best.memory
	d.graphicsQueueIndex = uint32(best.queues.GraphicsFamilyIndex)
	d.presentQueueIndex = uint32(best.queues.PresentFamilyIndex)

	core.LogInfo("Selected device: '%s'.", cString(best.properties.DeviceName[:]))
	core.LogInfo(
		"GPU Driver version: %d.%d.%d",
		vk.Version(best.properties.DriverVersion).Major(),
		vk.Version(best.properties.DriverVersion).Minor(),
		vk.Version(best.properties.DriverVersion).Patch(),
	)
	core.LogInfo(
		"Vulkan API version: %d.%d.%d",
		vk.Version(best.properties.ApiVersion).Major(),
		vk.Version(best.properties.ApiVersion).Minor(),
		vk.Version(best.properties.ApiVersion).Patch(),
	)
	for j := 0; j < int(best.memory.MemoryHeapCount); j++ {
		heap := best.memory.MemoryHeaps[j]
		heap.Deref()
		gib := float64(heap.Size) / 1024.0 / 1024.0 / 1024.0
		if vk.MemoryHeapFlagBits(heap.Flags)&vk.MemoryHeapDeviceLocalBit != 0 {
			core.LogInfo("Local GPU memory: %.2f GiB", gib)
		} else {
			core.LogInfo("Shared System memory: %.2f GiB", gib)
		}
	}
	return nil
}

func (d *Device) physicalDeviceMeetsRequirements(device vk.PhysicalDevice, name string, properties *vk.PhysicalDeviceProperties, features *vk.PhysicalDeviceFeatures, v12 *vk.PhysicalDeviceVulkan12Features, requirements *VulkanPhysicalDeviceRequirements) (VulkanPhysicalDeviceQueueFamilyInfo, bool) {
	info := VulkanPhysicalDeviceQueueFamilyInfo{GraphicsFamilyIndex: -1, PresentFamilyIndex: -1, ComputeFamilyIndex: -1}

	if vk.Version(properties.ApiVersion) < requirements.MinAPIVersion {
		core.LogInfo("Device '%s' does not support Vulkan 1.2, skipping.", name)
		return info, false
	}

	var queueFamilyCount uint32
	vk.GetPhysicalDeviceQueueFamilyProperties(device, &queueFamilyCount, nil)
	queueFamilies := make([]vk.QueueFamilyProperties, queueFamilyCount)
	vk.GetPhysicalDeviceQueueFamilyProperties(device, &queueFamilyCount, queueFamilies)

	for i := range queueFamilies {
		queueFamilies[i].Deref()
		flags := vk.QueueFlagBits(queueFamilies[i].QueueFlags)
		// Graphics and compute are recorded into the same command buffer, so
		// they must share a family.
		if flags&vk.QueueGraphicsBit != 0 && flags&vk.QueueComputeBit != 0 && info.GraphicsFamilyIndex < 0 {
			info.GraphicsFamilyIndex = int32(i)
			info.ComputeFamilyIndex = int32(i)
		}
		var supportsPresent vk.Bool32
		if res := vk.GetPhysicalDeviceSurfaceSupport(device, uint32(i), d.surface, &supportsPresent); res != vk.Success {
			return info, false
		}
		if supportsPresent == vk.True && (info.PresentFamilyIndex < 0 || int32(i) == info.GraphicsFamilyIndex) {
			info.PresentFamilyIndex = int32(i)
		}
	}

	core.LogDebug("Graphics | Present | Compute | Name")
	core.LogDebug("%8d | %7d | %7d | %s", info.GraphicsFamilyIndex, info.PresentFamilyIndex, info.ComputeFamilyIndex, name)

	if (requirements.Graphics && info.GraphicsFamilyIndex < 0) ||
		(requirements.Present && info.PresentFamilyIndex < 0) ||
		(requirements.Compute && info.ComputeFamilyIndex < 0) {
		core.LogInfo("Device '%s' does not meet queue requirements, skipping.", name)
		return info, false
	}

	support, err := querySwapchainSupport(device, d.surface)
	if err != nil || len(support.Formats) == 0 || len(support.PresentModes) == 0 {
		core.LogInfo("Required swapchain support not present, skipping device.")
		return info, false
	}

	available, err := deviceExtensions(device)
	if err != nil {
		return info, false
	}
	for _, ext := range requirements.DeviceExtensionNames {
		if !available[cString([]byte(ext))] {
			core.LogInfo("Required extension not found: '%s', skipping device.", ext)
			return info, false
		}
	}

	if missing := missingFeatures(features, v12, requirements); len(missing) > 0 {
		core.LogInfo("Device '%s' does not support %v, skipping.", name, missing)
		return info, false
	}
	return info, true
}

// physicalDeviceFeatures queries the core features together with the
// Vulkan 1.2 ones chained behind them.
func physicalDeviceFeatures(device vk.PhysicalDevice) (vk.PhysicalDeviceFeatures, vk.PhysicalDeviceVulkan12Features) {
	chained := vk.PhysicalDeviceVulkan12Features{SType: vk.StructureTypePhysicalDeviceVulkan12Features}
	cChained, _ := chained.PassRef()
	features := vk.PhysicalDeviceFeatures2{
		SType: vk.StructureTypePhysicalDeviceFeatures2,
		PNext: unsafe.Pointer(cChained),
	}
	vk.GetPhysicalDeviceFeatures2(device, &features)
	features.Deref()
	features.Features.Deref()
	v12 := vk.NewPhysicalDeviceVulkan12FeaturesRef(unsafe.Pointer(cChained))
	v12.Deref()
	return features.Features, *v12
}

// missingFeatures names every feature createLogicalDevice enables that the
// device lacks.
func missingFeatures(features *vk.PhysicalDeviceFeatures, v12 *vk.PhysicalDeviceVulkan12Features, requirements *VulkanPhysicalDeviceRequirements) []string {
	var missing []string
	check := func(name string, supported vk.Bool32) {
		if supported == vk.False {
			missing = append(missing, name)
		}
	}
	if requirements.SamplerAnisotropy {
		check("samplerAnisotropy", features.SamplerAnisotropy)
	}
	if requirements.DescriptorIndexing {
		check("shaderSampledImageArrayDynamicIndexing", features.ShaderSampledImageArrayDynamicIndexing)
		check("descriptorIndexing", v12.DescriptorIndexing)
		check("descriptorBindingVariableDescriptorCount", v12.DescriptorBindingVariableDescriptorCount)
		check("descriptorBindingPartiallyBound", v12.DescriptorBindingPartiallyBound)
		check("runtimeDescriptorArray", v12.RuntimeDescriptorArray)
		check("shaderSampledImageArrayNonUniformIndexing", v12.ShaderSampledImageArrayNonUniformIndexing)
	}
	return missing
}

func deviceExtensions(device vk.PhysicalDevice) (map[string]bool, error) {
	var count uint32
	if err := resultError("vkEnumerateDeviceExtensionProperties", vk.EnumerateDeviceExtensionProperties(device, "", &count, nil)); err != nil {
		return nil, err
	}
	props := make([]vk.ExtensionProperties, count)
	if err := resultError("vkEnumerateDeviceExtensionProperties", vk.EnumerateDeviceExtensionProperties(device, "", &count, props)); err != nil {
		return nil, err
	}
	names := make(map[string]bool, count)
	for i := range props {
		props[i].Deref()
		names[cString(props[i].ExtensionName[:])] = true
	}
	return names, nil
}

func (d *Device) createLogicalDevice(validation bool) error {
	core.LogInfo("Creating logical device...")

	// NOTE: Do not create additional queues for shared indices.
	indices := []uint32{d.graphicsQueueIndex}
	if d.presentQueueIndex != d.graphicsQueueIndex {
		indices = append(indices, d.presentQueueIndex)
	}
	queueCreateInfos := make([]vk.DeviceQueueCreateInfo, len(indices))
	for i, index := range indices {
		queueCreateInfos[i] = vk.DeviceQueueCreateInfo{
			SType:            vk.StructureTypeDeviceQueueCreateInfo,
			QueueFamilyIndex: index,
			QueueCount:       1,
			PQueuePriorities: []float32{1.0},
		}
	}

	extensionNames := []string{vk.KhrSwapchainExtensionName}
	available, err := deviceExtensions(d.physical)
	if err != nil {
		return err
	}
	if available["VK_KHR_portability_subset"] {
		core.LogInfo("Adding required extension 'VK_KHR_portability_subset'.")
		extensionNames = append(extensionNames, "VK_KHR_portability_subset")
	}
	var layers []string
	if validation {
		// Deprecated and ignored by current loaders, kept for old ones.
		layers = []string{validationLayer}
	}

	deviceCreateInfo := vk.DeviceCreateInfo{
		SType:                   vk.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount:    uint32(len(queueCreateInfos)),
		PQueueCreateInfos:       queueCreateInfos,
		EnabledExtensionCount:   uint32(len(extensionNames)),
		PpEnabledExtensionNames: VulkanSafeStrings(extensionNames),
		EnabledLayerCount:       uint32(len(layers)),
		PpEnabledLayerNames:     VulkanSafeStrings(layers),
		PEnabledFeatures: []vk.PhysicalDeviceFeatures{{
			SamplerAnisotropy:                      vk.True,
			ShaderSampledImageArrayDynamicIndexing: vk.True,
		}},
		PNext: unsafe.Pointer(&vk.PhysicalDeviceVulkan12Features{
			SType:                                     vk.StructureTypePhysicalDeviceVulkan12Features,
			DescriptorIndexing:                        vk.True,
			DescriptorBindingVariableDescriptorCount:  vk.True,
			DescriptorBindingPartiallyBound:           vk.True,
			RuntimeDescriptorArray:                    vk.True,
			ShaderSampledImageArrayNonUniformIndexing: vk.True,
		}),
	}
	if err := resultError("vkCreateDevice", vk.CreateDevice(d.physical, &deviceCreateInfo, nil, &d.logical)); err != nil {
		return err
	}
	core.LogInfo("Logical device created.")

	vk.GetDeviceQueue(d.logical, d.graphicsQueueIndex, 0, &d.graphicsQueue)
	vk.GetDeviceQueue(d.logical, d.presentQueueIndex, 0, &d.presentQueue)
	core.LogInfo("Queues obtained.")

	poolCreateInfo := vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		QueueFamilyIndex: d.graphicsQueueIndex,
		Flags:            vk.CommandPoolCreateFlags(vk.CommandPoolCreateResetCommandBufferBit),
	}
	if err := resultError("vkCreateCommandPool", vk.CreateCommandPool(d.logical, &poolCreateInfo, nil, &d.commandPool)); err != nil {
		return err
	}
	core.LogInfo("Graphics command pool created.")
	return nil
}

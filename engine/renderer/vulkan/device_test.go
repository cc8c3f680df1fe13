package vulkan

import (
	"testing"

	vk "github.com/goki/vulkan"
	"github.com/stretchr/testify/assert"
)

func TestMissingFeatures(t *testing.T) {
	requirements := &VulkanPhysicalDeviceRequirements{SamplerAnisotropy: true, DescriptorIndexing: true}
	features := vk.PhysicalDeviceFeatures{
		SamplerAnisotropy:                      vk.True,
		ShaderSampledImageArrayDynamicIndexing: vk.True,
	}
	v12 := vk.PhysicalDeviceVulkan12Features{
		DescriptorIndexing:                        vk.True,
		DescriptorBindingVariableDescriptorCount:  vk.True,
		DescriptorBindingPartiallyBound:           vk.True,
		RuntimeDescriptorArray:                    vk.True,
		ShaderSampledImageArrayNonUniformIndexing: vk.True,
	}
	assert.Empty(t, missingFeatures(&features, &v12, requirements))

	v12.DescriptorBindingVariableDescriptorCount = vk.False
	features.SamplerAnisotropy = vk.False
	assert.Equal(t, []string{"samplerAnisotropy", "descriptorBindingVariableDescriptorCount"}, missingFeatures(&features, &v12, requirements))

	// Nothing is checked that was not asked for.
	assert.Empty(t, missingFeatures(&features, &v12, &VulkanPhysicalDeviceRequirements{}))
}

func TestLimitsReportNoAccelerationStructures(t *testing.T) {
	d := &Device{}
	assert.False(t, d.Limits().SupportsAccelerationStructures)
}

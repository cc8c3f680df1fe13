package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/prism/engine/assets"
	"github.com/spaghettifunk/prism/engine/renderer/metadata"
)

// shaderStages creates one module per stage. The modules are only needed
// until the pipeline is created and are released by the returned func.
func (d *Device) shaderStages(stages []metadata.ShaderModule) ([]vk.PipelineShaderStageCreateInfo, func(), error) {
	modules := make([]vk.ShaderModule, 0, len(stages))
	release := func() {
		for _, m := range modules {
			vk.DestroyShaderModule(d.logical, m, nil)
		}
	}

	infos := make([]vk.PipelineShaderStageCreateInfo, len(stages))
	for i, s := range stages {
		if err := assets.ValidateSPIRV(s.Code); err != nil {
			release()
			return nil, nil, fmt.Errorf("shader `%s`: %w", s.Name, err)
		}
		createInfo := vk.ShaderModuleCreateInfo{
			SType:    vk.StructureTypeShaderModuleCreateInfo,
			CodeSize: uint(len(s.Code)),
			PCode:    assets.SPIRVWords(s.Code),
		}
		var module vk.ShaderModule
		if err := resultError("vkCreateShaderModule", vk.CreateShaderModule(d.logical, &createInfo, nil, &module)); err != nil {
			release()
			return nil, nil, fmt.Errorf("shader `%s`: %w", s.Name, err)
		}
		modules = append(modules, module)

		entry := s.Entry
		if entry == "" {
			entry = "main"
		}
		infos[i] = vk.PipelineShaderStageCreateInfo{
			SType:  vk.StructureTypePipelineShaderStageCreateInfo,
			Stage:  vk.ShaderStageFlagBits(vkStages(s.Stage)),
			Module: module,
			PName:  entry + "\x00",
		}
	}
	return infos, release, nil
}

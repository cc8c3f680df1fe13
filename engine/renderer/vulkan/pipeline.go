package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/renderer/metadata"
)

const (
	quadVertexStride = 16
	meshVertexStride = 48

	// Slope scaled bias of the shadow pipelines.
	depthBiasConstant = 1.25
	depthBiasSlope    = 1.75
)

// vertexInput returns the binding and attributes of a vertex layout. Quad
// vertices pack position and uv in one vec4; mesh vertices carry position,
// normal, uv and tangent.
func vertexInput(layout metadata.VertexLayout) ([]vk.VertexInputBindingDescription, []vk.VertexInputAttributeDescription) {
	switch layout {
	case metadata.VertexLayoutQuad:
		return []vk.VertexInputBindingDescription{{
				Binding:   0,
				Stride:    quadVertexStride,
				InputRate: vk.VertexInputRateVertex,
			}}, []vk.VertexInputAttributeDescription{
				{Location: 0, Binding: 0, Format: vk.FormatR32g32b32a32Sfloat, Offset: 0},
			}
	case metadata.VertexLayoutMesh:
		return []vk.VertexInputBindingDescription{{
				Binding:   0,
				Stride:    meshVertexStride,
				InputRate: vk.VertexInputRateVertex,
			}}, []vk.VertexInputAttributeDescription{
				{Location: 0, Binding: 0, Format: vk.FormatR32g32b32Sfloat, Offset: 0},
				{Location: 1, Binding: 0, Format: vk.FormatR32g32b32Sfloat, Offset: 12},
				{Location: 2, Binding: 0, Format: vk.FormatR32g32Sfloat, Offset: 24},
				{Location: 3, Binding: 0, Format: vk.FormatR32g32b32a32Sfloat, Offset: 32},
			}
	default:
		return nil, nil
	}
}

func vkCullMode(mode metadata.CullMode) vk.CullModeFlags {
	switch mode {
	case metadata.CullModeBack:
		return vk.CullModeFlags(vk.CullModeBackBit)
	case metadata.CullModeFront:
		return vk.CullModeFlags(vk.CullModeFrontBit)
	default:
		return vk.CullModeFlags(vk.CullModeNone)
	}
}

// CreatePipeline creates the pipeline layout from the descriptor layouts and
// the push constant block, then a graphics or compute pipeline. Graphics push
// constants are visible to the fragment stage only.
func (d *Device) CreatePipeline(info metadata.PipelineCreateInfo) (metadata.PipelineHandle, metadata.PipelineLayoutHandle, error) {
	d.mu.Lock()
	setLayouts := make([]vk.DescriptorSetLayout, len(info.Layouts))
	var renderPass renderPass
	var err error
	for i := 0; err == nil && i < len(info.Layouts); i++ {
		var l descriptorLayout
		l, err = d.layouts.get(uint64(info.Layouts[i]))
		setLayouts[i] = l.handle
	}
	if err == nil && info.Kind == metadata.PipelineKindGraphics {
		renderPass, err = d.renderPasses.get(uint64(info.RenderPass))
	}
	d.mu.Unlock()
	if err != nil {
		return 0, 0, fmt.Errorf("create pipeline `%s`: %w", info.Name, err)
	}

	stages, release, err := d.shaderStages(info.Stages)
	if err != nil {
		return 0, 0, fmt.Errorf("create pipeline `%s`: %w", info.Name, err)
	}
	defer release()

	// Pipeline layout
	pipelineLayoutCreateInfo := vk.PipelineLayoutCreateInfo{
		SType:          vk.StructureTypePipelineLayoutCreateInfo,
		SetLayoutCount: uint32(len(setLayouts)),
		PSetLayouts:    setLayouts,
	}
	if info.PushConstantSize > 0 {
		if info.PushConstantSize > d.Limits().MaxPushConstantsSize {
			return 0, 0, fmt.Errorf("pipeline `%s` pushes %d bytes, the device allows %d", info.Name, info.PushConstantSize, d.Limits().MaxPushConstantsSize)
		}
		stage := metadata.ShaderStageFragment
		if info.Kind == metadata.PipelineKindCompute {
			stage = metadata.ShaderStageCompute
		}
		pipelineLayoutCreateInfo.PushConstantRangeCount = 1
		pipelineLayoutCreateInfo.PPushConstantRanges = []vk.PushConstantRange{{
			StageFlags: vkStages(stage),
			Size:       info.PushConstantSize,
		}}
	}

	var layout vk.PipelineLayout
	if err := d.locks.SafeCall(PipelineManagement, func() error {
		return resultError("vkCreatePipelineLayout", vk.CreatePipelineLayout(d.logical, &pipelineLayoutCreateInfo, nil, &layout))
	}); err != nil {
		return 0, 0, fmt.Errorf("create pipeline `%s`: %w", info.Name, err)
	}

	pipelines := make([]vk.Pipeline, 1)
	if info.Kind == metadata.PipelineKindCompute {
		err = d.createComputePipeline(info, stages, layout, pipelines)
	} else {
		err = d.createGraphicsPipeline(info, stages, layout, renderPass.handle, pipelines)
	}
	if err != nil {
		vk.DestroyPipelineLayout(d.logical, layout, nil)
		return 0, 0, fmt.Errorf("create pipeline `%s`: %w", info.Name, err)
	}
	core.LogDebug("pipeline `%s` created", info.Name)

	d.mu.Lock()
	defer d.mu.Unlock()
	ph := d.handle()
	d.pipelines.put(ph, pipeline{handle: pipelines[0], kind: info.Kind})
	lh := d.handle()
	d.pipelineLayouts.put(lh, layout)
	return metadata.PipelineHandle(ph), metadata.PipelineLayoutHandle(lh), nil
}

func (d *Device) createComputePipeline(info metadata.PipelineCreateInfo, stages []vk.PipelineShaderStageCreateInfo, layout vk.PipelineLayout, out []vk.Pipeline) error {
	if len(stages) != 1 {
		return fmt.Errorf("compute pipeline needs exactly one stage, got %d", len(stages))
	}
	createInfo := vk.ComputePipelineCreateInfo{
		SType:              vk.StructureTypeComputePipelineCreateInfo,
		Stage:              stages[0],
		Layout:             layout,
		BasePipelineHandle: vk.NullPipeline,
		BasePipelineIndex:  -1,
	}
	return d.locks.SafeCall(PipelineManagement, func() error {
		return resultError("vkCreateComputePipelines", vk.CreateComputePipelines(d.logical, vk.NullPipelineCache, 1, []vk.ComputePipelineCreateInfo{createInfo}, nil, out))
	})
}

func (d *Device) createGraphicsPipeline(info metadata.PipelineCreateInfo, stages []vk.PipelineShaderStageCreateInfo, layout vk.PipelineLayout, renderPass vk.RenderPass, out []vk.Pipeline) error {
	// Viewport and scissor are dynamic.
	viewportState := vk.PipelineViewportStateCreateInfo{
		SType:         vk.StructureTypePipelineViewportStateCreateInfo,
		ViewportCount: 1,
		ScissorCount:  1,
	}

	rasterizerCreateInfo := vk.PipelineRasterizationStateCreateInfo{
		SType:                   vk.StructureTypePipelineRasterizationStateCreateInfo,
		DepthClampEnable:        vk.False,
		RasterizerDiscardEnable: vk.False,
		PolygonMode:             vk.PolygonModeFill,
		LineWidth:               1.0,
		CullMode:                vkCullMode(info.CullMode),
		FrontFace:               vk.FrontFaceCounterClockwise,
		DepthBiasEnable:         vk.False,
	}
	if info.DepthBias {
		rasterizerCreateInfo.DepthBiasEnable = vk.True
		rasterizerCreateInfo.DepthBiasConstantFactor = depthBiasConstant
		rasterizerCreateInfo.DepthBiasSlopeFactor = depthBiasSlope
	}

	multisamplingCreateInfo := vk.PipelineMultisampleStateCreateInfo{
		SType:                vk.StructureTypePipelineMultisampleStateCreateInfo,
		SampleShadingEnable:  vk.False,
		RasterizationSamples: vk.SampleCount1Bit,
		MinSampleShading:     1.0,
	}

	// Depth and stencil testing.
	depthStencil := vk.PipelineDepthStencilStateCreateInfo{
		SType:             vk.StructureTypePipelineDepthStencilStateCreateInfo,
		DepthTestEnable:   vk.False,
		DepthWriteEnable:  vk.False,
		StencilTestEnable: vk.False,
	}
	if info.DepthTest {
		depthStencil.DepthTestEnable = vk.True
		depthStencil.DepthCompareOp = vk.CompareOpLessOrEqual
	}
	if info.DepthWrite {
		depthStencil.DepthWriteEnable = vk.True
	}

	writeMask := vk.ColorComponentFlags(vk.ColorComponentRBit | vk.ColorComponentGBit | vk.ColorComponentBBit | vk.ColorComponentABit)
	blendAttachments := make([]vk.PipelineColorBlendAttachmentState, info.ColorAttachments)
	for i := range blendAttachments {
		blendAttachments[i] = vk.PipelineColorBlendAttachmentState{
			BlendEnable:    vk.False,
			ColorWriteMask: writeMask,
		}
		if info.Blend {
			blendAttachments[i] = vk.PipelineColorBlendAttachmentState{
				BlendEnable:         vk.True,
				SrcColorBlendFactor: vk.BlendFactorSrcAlpha,
				DstColorBlendFactor: vk.BlendFactorOneMinusSrcAlpha,
				ColorBlendOp:        vk.BlendOpAdd,
				SrcAlphaBlendFactor: vk.BlendFactorSrcAlpha,
				DstAlphaBlendFactor: vk.BlendFactorOneMinusSrcAlpha,
				AlphaBlendOp:        vk.BlendOpAdd,
				ColorWriteMask:      writeMask,
			}
		}
	}
	colorBlendStateCreateInfo := vk.PipelineColorBlendStateCreateInfo{
		SType:           vk.StructureTypePipelineColorBlendStateCreateInfo,
		LogicOpEnable:   vk.False,
		LogicOp:         vk.LogicOpCopy,
		AttachmentCount: uint32(len(blendAttachments)),
		PAttachments:    blendAttachments,
	}

	dynamicStates := []vk.DynamicState{
		vk.DynamicStateViewport,
		vk.DynamicStateScissor,
	}
	dynamicStateCreateInfo := vk.PipelineDynamicStateCreateInfo{
		SType:             vk.StructureTypePipelineDynamicStateCreateInfo,
		DynamicStateCount: uint32(len(dynamicStates)),
		PDynamicStates:    dynamicStates,
	}

	bindings, attributes := vertexInput(info.VertexLayout)
	vertexInputInfo := vk.PipelineVertexInputStateCreateInfo{
		SType:                           vk.StructureTypePipelineVertexInputStateCreateInfo,
		VertexBindingDescriptionCount:   uint32(len(bindings)),
		PVertexBindingDescriptions:      bindings,
		VertexAttributeDescriptionCount: uint32(len(attributes)),
		PVertexAttributeDescriptions:    attributes,
	}

	inputAssembly := vk.PipelineInputAssemblyStateCreateInfo{
		SType:                  vk.StructureTypePipelineInputAssemblyStateCreateInfo,
		Topology:               vk.PrimitiveTopologyTriangleList,
		PrimitiveRestartEnable: vk.False,
	}

	pipelineCreateInfo := vk.GraphicsPipelineCreateInfo{
		SType:               vk.StructureTypeGraphicsPipelineCreateInfo,
		StageCount:          uint32(len(stages)),
		PStages:             stages,
		PVertexInputState:   &vertexInputInfo,
		PInputAssemblyState: &inputAssembly,
		PViewportState:      &viewportState,
		PRasterizationState: &rasterizerCreateInfo,
		PMultisampleState:   &multisamplingCreateInfo,
		PDepthStencilState:  &depthStencil,
		PColorBlendState:    &colorBlendStateCreateInfo,
		PDynamicState:       &dynamicStateCreateInfo,
		Layout:              layout,
		RenderPass:          renderPass,
		Subpass:             0,
		BasePipelineHandle:  vk.NullPipeline,
		BasePipelineIndex:   -1,
	}
	return d.locks.SafeCall(PipelineManagement, func() error {
		return resultError("vkCreateGraphicsPipelines", vk.CreateGraphicsPipelines(d.logical, vk.NullPipelineCache, 1, []vk.GraphicsPipelineCreateInfo{pipelineCreateInfo}, nil, out))
	})
}

func (d *Device) DestroyPipeline(handle metadata.PipelineHandle, layout metadata.PipelineLayoutHandle) {
	d.mu.Lock()
	p, okPipeline := d.pipelines.take(uint64(handle))
	l, okLayout := d.pipelineLayouts.take(uint64(layout))
	d.mu.Unlock()
	d.locks.SafeCall(PipelineManagement, func() error {
		if okPipeline {
			vk.DestroyPipeline(d.logical, p.handle, nil)
		}
		if okLayout {
			vk.DestroyPipelineLayout(d.logical, l, nil)
		}
		return nil
	})
}

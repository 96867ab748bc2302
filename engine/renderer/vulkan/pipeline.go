package vulkan

import (
	"unsafe"

	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/renderer"
	"github.com/spaghettifunk/prism/engine/renderer/metadata"
)

// textureIndexSize is the push constant carrying the bound texture slot.
const textureIndexSize = uint32(unsafe.Sizeof(uint32(0)))

// VulkanBindingLayout is a pipeline layout of the texture table set, the
// constant buffer set and the texture index push constant.
type VulkanBindingLayout struct {
	context *VulkanContext
	Handle  vk.PipelineLayout
	Desc    metadata.BindingLayoutDesc
}

var _ renderer.BindingLayout = (*VulkanBindingLayout)(nil)

func NewBindingLayout(context *VulkanContext, descriptors *VulkanDescriptors, desc metadata.BindingLayoutDesc) (*VulkanBindingLayout, error) {
	if desc.TextureTableSize == 0 {
		return nil, errors.New("binding layout needs a texture table")
	}
	for _, param := range desc.Params {
		if _, ok := constantBinding[param]; !ok && param != metadata.BindingParamTextureTable {
			return nil, errors.Newf("unknown binding parameter %d", param)
		}
	}

	textures, err := descriptors.textureLayout(desc.TextureTableSize)
	if err != nil {
		return nil, err
	}
	layout := &VulkanBindingLayout{context: context, Desc: desc}

	// Create the pipeline layout.
	err = context.locks.SafeCall(PipelineManagement, func() error {
		return resultError("vkCreatePipelineLayout", vk.CreatePipelineLayout(context.Device.LogicalDevice, &vk.PipelineLayoutCreateInfo{
			SType:                  vk.StructureTypePipelineLayoutCreateInfo,
			SetLayoutCount:         2,
			PSetLayouts:            []vk.DescriptorSetLayout{textures, descriptors.uniformLayout},
			PushConstantRangeCount: 1,
			PPushConstantRanges: []vk.PushConstantRange{{
				StageFlags: vk.ShaderStageFlags(vk.ShaderStageFragmentBit),
				Offset:     0,
				Size:       textureIndexSize,
			}},
		}, context.Allocator, &layout.Handle))
	})
	if err != nil {
		return nil, err
	}
	return layout, nil
}

func (l *VulkanBindingLayout) Destroy() {
	if l.Handle == vk.NullPipelineLayout {
		return
	}
	_ = l.context.locks.SafeCall(PipelineManagement, func() error {
		vk.DestroyPipelineLayout(l.context.Device.LogicalDevice, l.Handle, l.context.Allocator)
		l.Handle = vk.NullPipelineLayout
		return nil
	})
}

/**
 * @brief Holds a Vulkan pipeline and the description it was built from.
 */
type VulkanPipeline struct {
	context *VulkanContext
	/** @brief The internal pipeline handle. */
	Handle vk.Pipeline
	Layout *VulkanBindingLayout
	desc   metadata.PipelineStateDesc
}

var _ renderer.PipelineState = (*VulkanPipeline)(nil)

func toBlendFactor(f metadata.BlendFactor) vk.BlendFactor {
	switch f {
	case metadata.BlendFactorOne:
		return vk.BlendFactorOne
	case metadata.BlendFactorSrcColor:
		return vk.BlendFactorSrcColor
	case metadata.BlendFactorInvSrcColor:
		return vk.BlendFactorOneMinusSrcColor
	case metadata.BlendFactorSrcAlpha:
		return vk.BlendFactorSrcAlpha
	case metadata.BlendFactorInvSrcAlpha:
		return vk.BlendFactorOneMinusSrcAlpha
	case metadata.BlendFactorDstColor:
		return vk.BlendFactorDstColor
	case metadata.BlendFactorInvDstColor:
		return vk.BlendFactorOneMinusDstColor
	}
	return vk.BlendFactorZero
}

func toBlendOp(op metadata.BlendOp) vk.BlendOp {
	switch op {
	case metadata.BlendOpSubtract:
		return vk.BlendOpSubtract
	case metadata.BlendOpReverseSubtract:
		return vk.BlendOpReverseSubtract
	}
	return vk.BlendOpAdd
}

func toTopology(t metadata.PrimitiveTopology) vk.PrimitiveTopology {
	switch t {
	case metadata.PrimitiveTopologyTriangleStrip:
		return vk.PrimitiveTopologyTriangleStrip
	case metadata.PrimitiveTopologyLineList:
		return vk.PrimitiveTopologyLineList
	}
	return vk.PrimitiveTopologyTriangleList
}

func toCullMode(mode metadata.FaceCullMode) vk.CullModeFlagBits {
	switch mode {
	case metadata.FaceCullModeNone:
		return vk.CullModeNone
	case metadata.FaceCullModeFront:
		return vk.CullModeFrontBit
	case metadata.FaceCullModeFrontAndBack:
		return vk.CullModeFrontAndBack
	}
	return vk.CullModeBackBit
}

func NewGraphicsPipeline(context *VulkanContext, passes *renderpassCache, layout *VulkanBindingLayout, desc metadata.PipelineStateDesc) (*VulkanPipeline, error) {
	if layout == nil {
		return nil, core.NilDependency("binding layout")
	}
	if desc.VertexStride == 0 || len(desc.InputLayout) == 0 {
		return nil, errors.New("pipeline needs a vertex layout")
	}

	colorFormat := toVulkanFormat(desc.RenderTargetFormat)
	depthFormat := vk.FormatUndefined
	if desc.DepthFormat != metadata.FormatUnknown {
		depthFormat = toVulkanFormat(desc.DepthFormat)
	}
	pass, err := passes.get(colorFormat, depthFormat)
	if err != nil {
		return nil, err
	}

	vertex, err := NewShaderStage(context, desc.VertexShader, vk.ShaderStageVertexBit)
	if err != nil {
		return nil, errors.Wrap(err, "vertex shader")
	}
	defer vertex.Destroy(context)
	pixel, err := NewShaderStage(context, desc.PixelShader, vk.ShaderStageFragmentBit)
	if err != nil {
		return nil, errors.Wrap(err, "pixel shader")
	}
	defer pixel.Destroy(context)

	// Viewport and scissor are dynamic.
	viewportState := vk.PipelineViewportStateCreateInfo{
		SType:         vk.StructureTypePipelineViewportStateCreateInfo,
		ViewportCount: 1,
		ScissorCount:  1,
	}

	// Rasterizer
	rasterizerCreateInfo := vk.PipelineRasterizationStateCreateInfo{
		SType:                   vk.StructureTypePipelineRasterizationStateCreateInfo,
		DepthClampEnable:        vk.False,
		RasterizerDiscardEnable: vk.False,
		PolygonMode:             vk.PolygonModeFill,
		LineWidth:               1.0,
		CullMode:                vk.CullModeFlags(toCullMode(desc.CullMode)),
		FrontFace:               vk.FrontFaceCounterClockwise,
		DepthBiasEnable:         vk.False,
	}
	if desc.Fill == metadata.FillModeWireframe {
		rasterizerCreateInfo.PolygonMode = vk.PolygonModeLine
	}

	// Multisampling.
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
	if desc.DepthTest && pass.HasDepth {
		depthStencil.DepthTestEnable = vk.True
		depthStencil.DepthWriteEnable = vk.True
		depthStencil.DepthCompareOp = vk.CompareOpLessOrEqual
	}

	blend := desc.BlendDesc
	colorBlendAttachmentState := vk.PipelineColorBlendAttachmentState{
		BlendEnable:         vk.False,
		SrcColorBlendFactor: toBlendFactor(blend.SrcColor),
		DstColorBlendFactor: toBlendFactor(blend.DstColor),
		ColorBlendOp:        toBlendOp(blend.ColorOp),
		SrcAlphaBlendFactor: toBlendFactor(blend.SrcAlpha),
		DstAlphaBlendFactor: toBlendFactor(blend.DstAlpha),
		AlphaBlendOp:        toBlendOp(blend.AlphaOp),
		ColorWriteMask: vk.ColorComponentFlags(vk.ColorComponentRBit | vk.ColorComponentGBit |
			vk.ColorComponentBBit | vk.ColorComponentABit),
	}
	if blend.Enable {
		colorBlendAttachmentState.BlendEnable = vk.True
	}

	colorBlendStateCreateInfo := vk.PipelineColorBlendStateCreateInfo{
		SType:           vk.StructureTypePipelineColorBlendStateCreateInfo,
		LogicOpEnable:   vk.False,
		LogicOp:         vk.LogicOpCopy,
		AttachmentCount: 1,
		PAttachments:    []vk.PipelineColorBlendAttachmentState{colorBlendAttachmentState},
	}

	// Dynamic state
	dynamicStates := []vk.DynamicState{
		vk.DynamicStateViewport,
		vk.DynamicStateScissor,
	}
	dynamicStateCreateInfo := vk.PipelineDynamicStateCreateInfo{
		SType:             vk.StructureTypePipelineDynamicStateCreateInfo,
		DynamicStateCount: uint32(len(dynamicStates)),
		PDynamicStates:    dynamicStates,
	}

	// Attributes
	attributes := make([]vk.VertexInputAttributeDescription, len(desc.InputLayout))
	for i, element := range desc.InputLayout {
		format := toVulkanFormat(element.Format)
		if format == vk.FormatUndefined {
			return nil, errors.Newf("vertex attribute %s has unsupported format %s", element.Semantic, element.Format)
		}
		attributes[i] = vk.VertexInputAttributeDescription{
			Location: uint32(i),
			Binding:  0,
			Format:   format,
			Offset:   element.Offset,
		}
	}
	vertexInputInfo := vk.PipelineVertexInputStateCreateInfo{
		SType:                         vk.StructureTypePipelineVertexInputStateCreateInfo,
		VertexBindingDescriptionCount: 1,
		PVertexBindingDescriptions: []vk.VertexInputBindingDescription{{
			Binding:   0,
			Stride:    desc.VertexStride,
			InputRate: vk.VertexInputRateVertex, // Move to next data entry for each vertex.
		}},
		VertexAttributeDescriptionCount: uint32(len(attributes)),
		PVertexAttributeDescriptions:    attributes,
	}

	// Input assembly
	inputAssembly := vk.PipelineInputAssemblyStateCreateInfo{
		SType:                  vk.StructureTypePipelineInputAssemblyStateCreateInfo,
		Topology:               toTopology(desc.Topology),
		PrimitiveRestartEnable: vk.False,
	}

	// Pipeline create
	pipelineCreateInfo := vk.GraphicsPipelineCreateInfo{
		SType:               vk.StructureTypeGraphicsPipelineCreateInfo,
		StageCount:          2,
		PStages:             []vk.PipelineShaderStageCreateInfo{vertex.ShaderStageCreateInfo, pixel.ShaderStageCreateInfo},
		PVertexInputState:   &vertexInputInfo,
		PInputAssemblyState: &inputAssembly,
		PViewportState:      &viewportState,
		PRasterizationState: &rasterizerCreateInfo,
		PMultisampleState:   &multisamplingCreateInfo,
		PDepthStencilState:  &depthStencil,
		PColorBlendState:    &colorBlendStateCreateInfo,
		PDynamicState:       &dynamicStateCreateInfo,
		Layout:              layout.Handle,
		RenderPass:          pass.Handle,
		Subpass:             0,
		BasePipelineHandle:  vk.NullPipeline,
		BasePipelineIndex:   -1,
	}

	pipelines := make([]vk.Pipeline, 1)
	err = context.locks.SafeCall(PipelineManagement, func() error {
		return resultError("vkCreateGraphicsPipelines", vk.CreateGraphicsPipelines(
			context.Device.LogicalDevice,
			vk.NullPipelineCache,
			1,
			[]vk.GraphicsPipelineCreateInfo{pipelineCreateInfo},
			context.Allocator,
			pipelines))
	})
	if err != nil {
		return nil, err
	}

	core.LogDebug("graphics pipeline created: fill %s blend %s", desc.Fill, desc.Blend)
	return &VulkanPipeline{context: context, Handle: pipelines[0], Layout: layout, desc: desc}, nil
}

func (pipeline *VulkanPipeline) Desc() metadata.PipelineStateDesc { return pipeline.desc }

func (pipeline *VulkanPipeline) Destroy() {
	if pipeline.Handle == vk.NullPipeline {
		return
	}
	_ = pipeline.context.locks.SafeCall(PipelineManagement, func() error {
		vk.DestroyPipeline(pipeline.context.Device.LogicalDevice, pipeline.Handle, pipeline.context.Allocator)
		pipeline.Handle = vk.NullPipeline
		return nil
	})
}

func (pipeline *VulkanPipeline) Bind(cmd vk.CommandBuffer) {
	vk.CmdBindPipeline(cmd, vk.PipelineBindPointGraphics, pipeline.Handle)
}

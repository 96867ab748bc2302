package metadata

/** @brief Factor applied to a blend operand. */
type BlendFactor uint8

const (
	BlendFactorZero BlendFactor = iota
	BlendFactorOne
	BlendFactorSrcColor
	BlendFactorInvSrcColor
	BlendFactorSrcAlpha
	BlendFactorInvSrcAlpha
	BlendFactorDstColor
	BlendFactorInvDstColor
)

/** @brief Operation combining the two weighted operands. */
type BlendOp uint8

const (
	/** @brief src + dst */
	BlendOpAdd BlendOp = iota
	/** @brief src - dst */
	BlendOpSubtract
	/** @brief dst - src */
	BlendOpReverseSubtract
)

/**
 * @brief Blend state of the single render target.
 * Color = ColorOp(SrcColor*S, DstColor*D) where S is the shader output
 * and D the value already in the target.
 */
type BlendDesc struct {
	Enable   bool
	SrcColor BlendFactor
	DstColor BlendFactor
	ColorOp  BlendOp
	SrcAlpha BlendFactor
	DstAlpha BlendFactor
	AlphaOp  BlendOp
}

// BlendDescFor returns the blend equation used by mode.
func BlendDescFor(mode BlendMode) BlendDesc {
	d := BlendDesc{
		Enable:   true,
		SrcAlpha: BlendFactorOne,
		DstAlpha: BlendFactorZero,
		AlphaOp:  BlendOpAdd,
		ColorOp:  BlendOpAdd,
	}
	switch mode {
	case BlendModeNone:
		return BlendDesc{
			SrcColor: BlendFactorOne, DstColor: BlendFactorZero, ColorOp: BlendOpAdd,
			SrcAlpha: BlendFactorOne, DstAlpha: BlendFactorZero, AlphaOp: BlendOpAdd,
		}
	case BlendModeNormal:
		d.SrcColor, d.DstColor = BlendFactorSrcAlpha, BlendFactorInvSrcAlpha
	case BlendModeAdd:
		d.SrcColor, d.DstColor = BlendFactorSrcAlpha, BlendFactorOne
	case BlendModeSubtract:
		d.SrcColor, d.DstColor = BlendFactorSrcAlpha, BlendFactorOne
		d.ColorOp = BlendOpReverseSubtract
	case BlendModeMultiply:
		d.SrcColor, d.DstColor = BlendFactorZero, BlendFactorSrcColor
	case BlendModeScreen:
		d.SrcColor, d.DstColor = BlendFactorInvDstColor, BlendFactorOne
	case BlendModeExclusion:
		d.SrcColor, d.DstColor = BlendFactorInvDstColor, BlendFactorInvSrcColor
	}
	return d
}

/** @brief Root parameters of the binding layout, in slot order. */
type BindingParam uint32

const (
	BindingParamMaterial BindingParam = iota
	BindingParamTransform
	BindingParamTextureTable
	BindingParamLight

	BindingParamCount = 4
)

/**
 * @brief Describes the binding layout every pipeline uses: three constant
 * buffers and one table of shader-visible texture views.
 */
type BindingLayoutDesc struct {
	Params []BindingParam
	/** @brief Number of slots of the texture table. */
	TextureTableSize uint32
}

/** @brief Everything needed to build one immutable pipeline state. */
type PipelineStateDesc struct {
	Fill               FillMode
	Blend              BlendMode
	BlendDesc          BlendDesc
	CullMode           FaceCullMode
	Topology           PrimitiveTopology
	VertexShader       []byte
	PixelShader        []byte
	InputLayout        []InputElement
	VertexStride       uint32
	RenderTargetFormat Format
	DepthFormat        Format
	DepthTest          bool
}

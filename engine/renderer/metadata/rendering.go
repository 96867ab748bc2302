package metadata

import "fmt"

/** @brief Determines face culling mode during rendering. */
type FaceCullMode int

const (
	/** @brief No faces are culled. */
	FaceCullModeNone FaceCullMode = 0x0
	/** @brief Only front faces are culled. */
	FaceCullModeFront FaceCullMode = 0x1
	/** @brief Only back faces are culled. */
	FaceCullModeBack FaceCullMode = 0x2
	/** @brief Both front and back faces are culled. */
	FaceCullModeFrontAndBack FaceCullMode = 0x3
)

/** @brief Rasterizer fill mode, the first half of a pipeline key. */
type FillMode uint8

const (
	/** @brief Filled triangles. */
	FillModeSolid FillMode = iota
	/** @brief Triangle edges only. */
	FillModeWireframe

	FillModeCount = 2
)

var fillModeNames = [FillModeCount]string{"Solid", "Wireframe"}

func (f FillMode) String() string {
	if int(f) < len(fillModeNames) {
		return fillModeNames[f]
	}
	return fmt.Sprintf("FillMode(%d)", f)
}

/** @brief Color blend equation, the second half of a pipeline key. */
type BlendMode uint8

const (
	/** @brief Blending disabled, the shader output replaces the target. */
	BlendModeNone BlendMode = iota
	/** @brief Classic alpha blending: srcA*S + (1-srcA)*D. */
	BlendModeNormal
	/** @brief srcA*S + D. */
	BlendModeAdd
	/** @brief D - srcA*S. */
	BlendModeSubtract
	/** @brief S*D. */
	BlendModeMultiply
	/** @brief (1-D)*S + D. */
	BlendModeScreen
	/** @brief (1-D)*S + (1-S)*D. */
	BlendModeExclusion

	BlendModeCount = 7
)

var blendModeNames = [BlendModeCount]string{"None", "Normal", "Add", "Subtract", "Multiply", "Screen", "Exclusion"}

func (b BlendMode) String() string {
	if int(b) < len(blendModeNames) {
		return blendModeNames[b]
	}
	return fmt.Sprintf("BlendMode(%d)", b)
}

// AllFillModes lists every fill mode in key order.
func AllFillModes() []FillMode {
	return []FillMode{FillModeSolid, FillModeWireframe}
}

// AllBlendModes lists every blend mode in key order.
func AllBlendModes() []BlendMode {
	return []BlendMode{
		BlendModeNone, BlendModeNormal, BlendModeAdd, BlendModeSubtract,
		BlendModeMultiply, BlendModeScreen, BlendModeExclusion,
	}
}

/** @brief How per-vertex normals are derived every frame. */
type NormalMode uint8

const (
	/** @brief Normal is the normalized object-space position. */
	NormalModeVertex NormalMode = iota
	/** @brief Every vertex of a face gets the face normal. */
	NormalModeFace
)

/** @brief Usage state of a GPU resource, changed only through barriers. */
type ResourceState uint8

const (
	ResourceStateCommon ResourceState = iota
	ResourceStatePresent
	ResourceStateRenderTarget
	ResourceStateDepthWrite
	ResourceStateShaderResource
	ResourceStateCopyDest
	ResourceStateGenericRead
)

var resourceStateNames = []string{"Common", "Present", "RenderTarget", "DepthWrite", "ShaderResource", "CopyDest", "GenericRead"}

func (s ResourceState) String() string {
	if int(s) < len(resourceStateNames) {
		return resourceStateNames[s]
	}
	return fmt.Sprintf("ResourceState(%d)", s)
}

/** @brief Pixel formats the renderer uses. */
type Format uint8

const (
	FormatUnknown Format = iota
	FormatRGBA8Unorm
	FormatBGRA8Unorm
	FormatD32Float
	FormatD24UnormS8Uint
	FormatR32G32Float
	FormatR32G32B32Float
	FormatR32G32B32A32Float
	FormatR32Uint
	FormatR16Uint
)

var formatNames = []string{"Unknown", "RGBA8Unorm", "BGRA8Unorm", "D32Float", "D24UnormS8Uint", "R32G32Float", "R32G32B32Float", "R32G32B32A32Float", "R32Uint", "R16Uint"}

func (f Format) String() string {
	if int(f) < len(formatNames) {
		return formatNames[f]
	}
	return fmt.Sprintf("Format(%d)", f)
}

/** @brief Kinds of resource-view tables. */
type HeapType uint8

const (
	/** @brief Render target views, not shader visible. */
	HeapTypeRenderTarget HeapType = iota
	/** @brief Depth stencil views, not shader visible. */
	HeapTypeDepthStencil
	/** @brief Shader resource views, shader visible. */
	HeapTypeShaderResource
)

var heapTypeNames = []string{"RenderTarget", "DepthStencil", "ShaderResource"}

func (h HeapType) String() string {
	if int(h) < len(heapTypeNames) {
		return heapTypeNames[h]
	}
	return fmt.Sprintf("HeapType(%d)", h)
}

type PrimitiveTopology uint8

const (
	PrimitiveTopologyTriangleList PrimitiveTopology = iota
	PrimitiveTopologyTriangleStrip
	PrimitiveTopologyLineList
)

type Viewport struct {
	X, Y          float32
	Width, Height float32
	MinDepth      float32
	MaxDepth      float32
}

type Rect struct {
	Left, Top, Right, Bottom int32
}

// Color is a linear RGBA color.
type Color [4]float32

var (
	ColorWhite = Color{1, 1, 1, 1}
	ColorBlack = Color{0, 0, 0, 1}
)

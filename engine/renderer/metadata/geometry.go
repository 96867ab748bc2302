package metadata

import (
	"unsafe"

	"github.com/go-gl/mathgl/mgl32"
)

/**
 * @brief The vertex layout shared by every drawable: homogeneous position,
 * normal and texture coordinate, tightly packed.
 */
type Vertex struct {
	/** @brief Object-space position, w is 1 for points. */
	Position mgl32.Vec4
	/** @brief Recomputed every frame before drawing. */
	Normal mgl32.Vec3
	/** @brief Texture coordinate. */
	UV mgl32.Vec2
}

const VertexStride = uint32(unsafe.Sizeof(Vertex{}))

// IndexSize is the size in bytes of one index. Indices are 32-bit.
const IndexSize = uint32(4)

// GPUAddress identifies a location in GPU memory as seen by the command list.
type GPUAddress uint64

type VertexBufferView struct {
	Address GPUAddress
	Size    uint32
	Stride  uint32
}

type IndexBufferView struct {
	Address GPUAddress
	Size    uint32
	Format  Format
}

// DescriptorHandle addresses one slot of a resource-view table.
type DescriptorHandle struct {
	Heap  HeapType
	Index uint32
}

/** @brief One attribute of the vertex input layout. */
type InputElement struct {
	Semantic string
	Format   Format
	Offset   uint32
}

// VertexInputLayout describes Vertex to the pipeline.
var VertexInputLayout = []InputElement{
	{Semantic: "POSITION", Format: FormatR32G32B32A32Float, Offset: uint32(unsafe.Offsetof(Vertex{}.Position))},
	{Semantic: "NORMAL", Format: FormatR32G32B32Float, Offset: uint32(unsafe.Offsetof(Vertex{}.Normal))},
	{Semantic: "TEXCOORD", Format: FormatR32G32Float, Offset: uint32(unsafe.Offsetof(Vertex{}.UV))},
}

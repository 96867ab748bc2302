package renderer

import (
	"unsafe"

	"github.com/cockroachdb/errors"

	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/renderer/metadata"
)

// Mesh is a vertex buffer plus an optional index buffer, both persistently
// mapped for the life of the mesh.
type Mesh struct {
	VertexBuffer Buffer
	IndexBuffer  Buffer
	VertexView   metadata.VertexBufferView
	IndexView    metadata.IndexBufferView
	VertexCount  uint32
	IndexCount   uint32
}

// Indexed reports whether the mesh draws through an index buffer.
func (m *Mesh) Indexed() bool {
	return m.IndexBuffer != nil && m.IndexCount > 0
}

// WriteVertices copies vertices to the start of the vertex buffer.
func (m *Mesh) WriteVertices(vertices []metadata.Vertex) error {
	if uint32(len(vertices)) > m.VertexCount {
		return errors.Newf("mesh holds %d vertices, got %d", m.VertexCount, len(vertices))
	}
	return WriteSlice(m.VertexBuffer, 0, vertices)
}

// WriteIndices copies indices to the start of the index buffer.
func (m *Mesh) WriteIndices(indices []uint32) error {
	if !m.Indexed() {
		return errors.New("mesh has no index buffer")
	}
	if uint32(len(indices)) > m.IndexCount {
		return errors.Newf("mesh holds %d indices, got %d", m.IndexCount, len(indices))
	}
	return WriteSlice(m.IndexBuffer, 0, indices)
}

func (m *Mesh) Destroy() {
	if m.VertexBuffer != nil {
		m.VertexBuffer.Destroy()
		m.VertexBuffer = nil
	}
	if m.IndexBuffer != nil {
		m.IndexBuffer.Destroy()
		m.IndexBuffer = nil
	}
}

// BufferMeshFactory creates upload buffers and meshes on the device.
type BufferMeshFactory struct {
	device Device
}

func NewBufferMeshFactory(device Device) (*BufferMeshFactory, error) {
	if device == nil {
		return nil, core.NilDependency("device")
	}
	return &BufferMeshFactory{device: device}, nil
}

// CreateBuffer returns a CPU-writable GPU buffer of exactly size bytes.
func (f *BufferMeshFactory) CreateBuffer(size uint64) (Buffer, error) {
	if size == 0 {
		return nil, core.CreationFailed(nil, "create upload buffer size 0")
	}
	b, err := f.device.CreateUploadBuffer(size)
	if err != nil {
		return nil, core.CreationFailed(err, "create upload buffer size %d", size)
	}
	return b, nil
}

// CreateMesh creates a vertex buffer for vertexCount vertices and, when
// indexCount is positive, an index buffer of 32-bit indices.
func (f *BufferMeshFactory) CreateMesh(vertexCount, indexCount uint32) (*Mesh, error) {
	if vertexCount == 0 {
		return nil, core.CreationFailed(nil, "create mesh with 0 vertices")
	}
	vbSize := uint64(vertexCount) * uint64(metadata.VertexStride)
	vb, err := f.CreateBuffer(vbSize)
	if err != nil {
		return nil, errors.Wrapf(err, "vertex buffer for %d vertices", vertexCount)
	}
	m := &Mesh{
		VertexBuffer: vb,
		VertexCount:  vertexCount,
		VertexView: metadata.VertexBufferView{
			Address: vb.Address(),
			Size:    uint32(vbSize),
			Stride:  metadata.VertexStride,
		},
	}

	if indexCount > 0 {
		ibSize := uint64(indexCount) * uint64(metadata.IndexSize)
		ib, err := f.CreateBuffer(ibSize)
		if err != nil {
			vb.Destroy()
			return nil, errors.Wrapf(err, "index buffer for %d indices", indexCount)
		}
		m.IndexBuffer = ib
		m.IndexCount = indexCount
		m.IndexView = metadata.IndexBufferView{
			Address: ib.Address(),
			Size:    uint32(ibSize),
			Format:  metadata.FormatR32Uint,
		}
	}
	return m, nil
}

// WriteStruct copies the bytes of v into b at offset.
func WriteStruct[T any](b Buffer, offset uint64, v *T) error {
	size := uint64(unsafe.Sizeof(*v))
	dst := b.Mapped()
	if offset+size > uint64(len(dst)) {
		return errors.Newf("write of %d bytes at offset %d overflows buffer of %d bytes", size, offset, len(dst))
	}
	copy(dst[offset:], unsafe.Slice((*byte)(unsafe.Pointer(v)), size))
	return nil
}

// WriteSlice copies the bytes of s into b at offset.
func WriteSlice[T any](b Buffer, offset uint64, s []T) error {
	if len(s) == 0 {
		return nil
	}
	size := uint64(len(s)) * uint64(unsafe.Sizeof(s[0]))
	dst := b.Mapped()
	if offset+size > uint64(len(dst)) {
		return errors.Newf("write of %d bytes at offset %d overflows buffer of %d bytes", size, offset, len(dst))
	}
	copy(dst[offset:], unsafe.Slice((*byte)(unsafe.Pointer(&s[0])), size))
	return nil
}

// ReadStruct copies a T out of b at offset.
func ReadStruct[T any](b Buffer, offset uint64) (T, error) {
	var v T
	size := uint64(unsafe.Sizeof(v))
	src := b.Mapped()
	if offset+size > uint64(len(src)) {
		return v, errors.Newf("read of %d bytes at offset %d overflows buffer of %d bytes", size, offset, len(src))
	}
	copy(unsafe.Slice((*byte)(unsafe.Pointer(&v)), size), src[offset:])
	return v, nil
}

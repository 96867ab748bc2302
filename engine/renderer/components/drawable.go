package components

import (
	"github.com/cockroachdb/errors"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/google/uuid"

	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/renderer"
	"github.com/spaghettifunk/prism/engine/renderer/metadata"
)

// Drawable is the closed set of objects the frame drawer knows how to
// draw: Triangle, Sprite, Sphere, Billboard, ModelMesh and Tetrahedron.
// The unexported method keeps the set closed to this package, so adding a
// variant means adding a Visitor method and every visitor must follow.
type Drawable interface {
	Accept(v Visitor) error
	Base() *Object
	drawable()
}

// Visitor has one method per Drawable variant.
type Visitor interface {
	VisitTriangle(t *Triangle) error
	VisitSprite(s *Sprite) error
	VisitSphere(s *Sphere) error
	VisitBillboard(b *Billboard) error
	VisitModelMesh(m *ModelMesh) error
	VisitTetrahedron(t *Tetrahedron) error
}

// Object is the state every drawable carries. Objects own their GPU
// buffers; the drawer only borrows them for the frame they are submitted in.
type Object struct {
	ID        uuid.UUID
	Name      string
	Material  Material
	Transform Transform
	// Camera is nil for 2D objects drawn in screen space.
	Camera *Camera
	// Texture is the shader-visible slot to sample. Slot 0 is the default texture.
	Texture    uint32
	Fill       metadata.FillMode
	NormalMode metadata.NormalMode

	// Vertices is the CPU mirror uploaded to Mesh every frame.
	Vertices []metadata.Vertex
	Indices  []uint32
	Mesh     *renderer.Mesh

	materialBuffer  renderer.Buffer
	transformBuffer renderer.Buffer
}

func (o *Object) Base() *Object {
	return o
}

func (o *Object) drawable() {}

func newObject(factory *renderer.BufferMeshFactory, name string, vertices []metadata.Vertex, indices []uint32, camera *Camera) (Object, error) {
	if factory == nil {
		return Object{}, core.NilDependency("buffer mesh factory")
	}
	o := Object{
		ID:         uuid.New(),
		Name:       name,
		Material:   DefaultMaterial(),
		Transform:  NewTransform(),
		Camera:     camera,
		Fill:       metadata.FillModeSolid,
		NormalMode: metadata.NormalModeFace,
		Vertices:   vertices,
		Indices:    indices,
	}

	mesh, err := factory.CreateMesh(uint32(len(vertices)), uint32(len(indices)))
	if err != nil {
		return Object{}, errors.Wrapf(err, "create mesh for %s", name)
	}
	o.Mesh = mesh
	if mesh.Indexed() {
		if err := mesh.WriteIndices(indices); err != nil {
			mesh.Destroy()
			return Object{}, err
		}
	}

	if o.materialBuffer, err = factory.CreateBuffer(uint64(metadata.MaterialConstantsSize)); err != nil {
		mesh.Destroy()
		return Object{}, errors.Wrapf(err, "create material buffer for %s", name)
	}
	if o.transformBuffer, err = factory.CreateBuffer(uint64(metadata.TransformConstantsSize)); err != nil {
		mesh.Destroy()
		o.materialBuffer.Destroy()
		return Object{}, errors.Wrapf(err, "create transform buffer for %s", name)
	}
	return o, nil
}

func (o *Object) MaterialBuffer() renderer.Buffer {
	return o.materialBuffer
}

func (o *Object) TransformBuffer() renderer.Buffer {
	return o.transformBuffer
}

// Lit reports whether the object takes part in lighting. Objects without a
// camera are 2D and never lit.
func (o *Object) Lit() bool {
	return o.Camera != nil && o.Material.EnableLighting
}

// UploadVertices copies the CPU mirror into the vertex buffer.
func (o *Object) UploadVertices() error {
	return o.Mesh.WriteVertices(o.Vertices)
}

// Center is the world-space origin of the object.
func (o *Object) Center() mgl32.Vec3 {
	return o.Transform.Position
}

func (o *Object) Destroy() {
	if o.Mesh != nil {
		o.Mesh.Destroy()
		o.Mesh = nil
	}
	if o.materialBuffer != nil {
		o.materialBuffer.Destroy()
		o.materialBuffer = nil
	}
	if o.transformBuffer != nil {
		o.transformBuffer.Destroy()
		o.transformBuffer = nil
	}
}

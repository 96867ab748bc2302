package components

import (
	"math"

	"github.com/cockroachdb/errors"
	"github.com/go-gl/mathgl/mgl32"

	"github.com/spaghettifunk/prism/engine/renderer"
	"github.com/spaghettifunk/prism/engine/renderer/metadata"
)

func vertex(x, y, z, u, v float32) metadata.Vertex {
	return metadata.Vertex{
		Position: mgl32.Vec4{x, y, z, 1},
		Normal:   FlatNormal,
		UV:       mgl32.Vec2{u, v},
	}
}

// quad is a unit square in the XY plane, wound so its face normal is FlatNormal.
func quad() ([]metadata.Vertex, []uint32) {
	return []metadata.Vertex{
			vertex(-0.5, -0.5, 0, 0, 1),
			vertex(-0.5, 0.5, 0, 0, 0),
			vertex(0.5, 0.5, 0, 1, 0),
			vertex(0.5, -0.5, 0, 1, 1),
		}, []uint32{
			0, 1, 2,
			0, 2, 3,
		}
}

// Triangle is a single triangle centered on the origin.
type Triangle struct {
	Object
}

func NewTriangle(factory *renderer.BufferMeshFactory, camera *Camera) (*Triangle, error) {
	vertices := []metadata.Vertex{
		vertex(-0.5, -0.5, 0, 0, 1),
		vertex(0, 0.5, 0, 0.5, 0),
		vertex(0.5, -0.5, 0, 1, 1),
	}
	o, err := newObject(factory, "triangle", vertices, []uint32{0, 1, 2}, camera)
	if err != nil {
		return nil, err
	}
	return &Triangle{Object: o}, nil
}

func (t *Triangle) Accept(v Visitor) error {
	return v.VisitTriangle(t)
}

func (t *Triangle) ComputeNormals() {
	if t.applyNormals() {
		SetFaceNormals(t.Vertices, 3)
	}
}

// Sprite is a textured quad. Without a camera it is positioned in pixels,
// with the origin in the top-left corner of the window.
type Sprite struct {
	Object
}

func NewSprite(factory *renderer.BufferMeshFactory, width, height float32, camera *Camera) (*Sprite, error) {
	vertices, indices := quad()
	o, err := newObject(factory, "sprite", vertices, indices, camera)
	if err != nil {
		return nil, err
	}
	o.Transform.Scale = mgl32.Vec3{width, height, 1}
	o.Material.EnableLighting = false
	return &Sprite{Object: o}, nil
}

func (s *Sprite) Accept(v Visitor) error {
	return v.VisitSprite(s)
}

func (s *Sprite) ComputeNormals() {
	if s.applyNormals() {
		SetFaceNormals(s.Vertices, 4)
	}
}

// Billboard is a quad that turns to face its camera every frame.
type Billboard struct {
	Object
}

func NewBillboard(factory *renderer.BufferMeshFactory, width, height float32, camera *Camera) (*Billboard, error) {
	if camera == nil {
		return nil, errors.New("billboard requires a camera")
	}
	vertices, indices := quad()
	o, err := newObject(factory, "billboard", vertices, indices, camera)
	if err != nil {
		return nil, err
	}
	o.Transform.Scale = mgl32.Vec3{width, height, 1}
	return &Billboard{Object: o}, nil
}

func (b *Billboard) Accept(v Visitor) error {
	return v.VisitBillboard(b)
}

// FaceCamera copies the camera yaw and pitch so the quad stays perpendicular
// to the view direction.
func (b *Billboard) FaceCamera(camera *Camera) {
	if camera == nil {
		return
	}
	r := camera.EulerRotation
	b.Transform.Rotation = mgl32.Vec3{r.X(), r.Y(), 0}
}

func (b *Billboard) ComputeNormals() {
	if b.applyNormals() {
		SetFaceNormals(b.Vertices, 4)
	}
}

// Sphere is a unit latitude/longitude sphere. Every quad has its own four
// vertices so face normals do not bleed across quads. Stack 0 touches the
// north pole.
type Sphere struct {
	Object
	Stacks uint32
	Slices uint32
}

func NewSphere(factory *renderer.BufferMeshFactory, stacks, slices uint32, camera *Camera) (*Sphere, error) {
	if stacks < 2 || slices < 3 {
		return nil, errors.Newf("sphere needs at least 2 stacks and 3 slices, got %d and %d", stacks, slices)
	}
	point := func(i, j uint32) metadata.Vertex {
		theta := float64(i) * math.Pi / float64(stacks)
		phi := float64(j) * 2 * math.Pi / float64(slices)
		return vertex(
			float32(math.Sin(theta)*math.Cos(phi)),
			float32(math.Cos(theta)),
			float32(math.Sin(theta)*math.Sin(phi)),
			float32(j)/float32(slices),
			float32(i)/float32(stacks),
		)
	}

	vertices := make([]metadata.Vertex, 0, stacks*slices*4)
	indices := make([]uint32, 0, stacks*slices*6)
	for i := uint32(0); i < stacks; i++ {
		for j := uint32(0); j < slices; j++ {
			base := uint32(len(vertices))
			vertices = append(vertices,
				point(i+1, j+1),
				point(i+1, j),
				point(i, j),
				point(i, j+1),
			)
			indices = append(indices,
				base, base+1, base+2,
				base, base+2, base+3,
			)
		}
	}

	o, err := newObject(factory, "sphere", vertices, indices, camera)
	if err != nil {
		return nil, err
	}
	return &Sphere{Object: o, Stacks: stacks, Slices: slices}, nil
}

func (s *Sphere) Accept(v Visitor) error {
	return v.VisitSphere(s)
}

// ComputeNormals gives each quad its face normal. Quads of the last stack
// collapse their first two vertices onto the south pole, so the normal is
// taken from the other three.
func (s *Sphere) ComputeNormals() {
	if !s.applyNormals() {
		return
	}
	for q := 0; q+4 <= len(s.Vertices); q += 4 {
		face := s.Vertices[q : q+4]
		stack := uint32(q/4) / s.Slices
		var n mgl32.Vec3
		if stack == s.Stacks-1 {
			n = FaceNormal(position(face[1]), position(face[2]), position(face[3]))
		} else {
			n = FaceNormal(position(face[0]), position(face[1]), position(face[2]))
		}
		for i := range face {
			face[i].Normal = n
		}
	}
}

// Tetrahedron is a regular tetrahedron with four unshared faces, drawn
// without an index buffer.
type Tetrahedron struct {
	Object
}

func NewTetrahedron(factory *renderer.BufferMeshFactory, size float32, camera *Camera) (*Tetrahedron, error) {
	h := size / 2
	corners := []mgl32.Vec3{
		{h, h, h},
		{h, -h, -h},
		{-h, h, -h},
		{-h, -h, h},
	}
	faces := [4][3]int{{0, 1, 2}, {0, 3, 1}, {0, 2, 3}, {1, 3, 2}}
	uvs := [3]mgl32.Vec2{{0.5, 0}, {0, 1}, {1, 1}}

	vertices := make([]metadata.Vertex, 0, 12)
	for _, f := range faces {
		a, b, c := corners[f[0]], corners[f[1]], corners[f[2]]
		// wind every face so its normal points away from the center
		centroid := a.Add(b).Add(c).Mul(1.0 / 3.0)
		if FaceNormal(a, b, c).Dot(centroid) < 0 {
			b, c = c, b
		}
		for i, p := range [3]mgl32.Vec3{a, b, c} {
			vertices = append(vertices, vertex(p.X(), p.Y(), p.Z(), uvs[i].X(), uvs[i].Y()))
		}
	}

	o, err := newObject(factory, "tetrahedron", vertices, nil, camera)
	if err != nil {
		return nil, err
	}
	return &Tetrahedron{Object: o}, nil
}

func (t *Tetrahedron) Accept(v Visitor) error {
	return v.VisitTetrahedron(t)
}

func (t *Tetrahedron) ComputeNormals() {
	if t.applyNormals() {
		SetFaceNormals(t.Vertices, 3)
	}
}

// ModelMesh is arbitrary parsed geometry. Without indices the vertices are
// drawn as a plain triangle list.
type ModelMesh struct {
	Object
}

func NewModelMesh(factory *renderer.BufferMeshFactory, name string, vertices []metadata.Vertex, indices []uint32, camera *Camera) (*ModelMesh, error) {
	if len(vertices) == 0 {
		return nil, errors.Newf("model %s has no vertices", name)
	}
	for _, idx := range indices {
		if int(idx) >= len(vertices) {
			return nil, errors.Newf("model %s index %d out of range for %d vertices", name, idx, len(vertices))
		}
	}
	o, err := newObject(factory, name, vertices, indices, camera)
	if err != nil {
		return nil, err
	}
	return &ModelMesh{Object: o}, nil
}

func (m *ModelMesh) Accept(v Visitor) error {
	return v.VisitModelMesh(m)
}

func (m *ModelMesh) ComputeNormals() {
	if !m.applyNormals() {
		return
	}
	if len(m.Indices) > 0 {
		SetIndexedFaceNormals(m.Vertices, m.Indices)
		return
	}
	SetFaceNormals(m.Vertices, 3)
}

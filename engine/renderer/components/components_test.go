package components

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/prism/engine/renderer"
	"github.com/spaghettifunk/prism/engine/renderer/metadata"
	"github.com/spaghettifunk/prism/engine/renderer/rendertest"
)

func newFactory(t *testing.T) (*renderer.BufferMeshFactory, *rendertest.Device) {
	t.Helper()
	dev := rendertest.NewDevice()
	f, err := renderer.NewBufferMeshFactory(dev)
	require.NoError(t, err)
	return f, dev
}

func testCamera() *Camera {
	c := NewCamera(60, 16.0/9.0, 0.1, 100)
	c.SetPosition(mgl32.Vec3{0, 0, 5})
	return c
}

func assertVec3(t *testing.T, expected, actual mgl32.Vec3) {
	t.Helper()
	assert.True(t, expected.ApproxEqualThreshold(actual, 1e-5), "expected %v, got %v", expected, actual)
}

func TestTriangleFaceNormal(t *testing.T) {
	f, _ := newFactory(t)
	tri, err := NewTriangle(f, testCamera())
	require.NoError(t, err)

	tri.NormalMode = metadata.NormalModeFace
	tri.ComputeNormals()
	v0, v1, v2 := tri.Vertices[0].Position.Vec3(), tri.Vertices[1].Position.Vec3(), tri.Vertices[2].Position.Vec3()
	expected := v1.Sub(v0).Cross(v2.Sub(v1)).Normalize()
	for _, v := range tri.Vertices {
		assertVec3(t, expected, v.Normal)
	}

	// a tilted triangle
	tri.Vertices[0].Position = mgl32.Vec4{0, 0, 0, 1}
	tri.Vertices[1].Position = mgl32.Vec4{1, 0, 1, 1}
	tri.Vertices[2].Position = mgl32.Vec4{0, 1, 0, 1}
	tri.ComputeNormals()
	for _, v := range tri.Vertices {
		assertVec3(t, mgl32.Vec3{-1, 0, 1}.Normalize(), v.Normal)
	}
}

func TestNormalsWithoutLighting(t *testing.T) {
	f, _ := newFactory(t)
	sphere, err := NewSphere(f, 8, 12, testCamera())
	require.NoError(t, err)
	sphere.Material.EnableLighting = false
	sphere.NormalMode = metadata.NormalModeVertex
	sphere.ComputeNormals()
	for _, v := range sphere.Vertices {
		assert.Equal(t, FlatNormal, v.Normal)
	}

	// lighting off overrides whatever normals were there
	unlit, err := NewTriangle(f, testCamera())
	require.NoError(t, err)
	unlit.Material.EnableLighting = false
	unlit.NormalMode = metadata.NormalModeFace
	for i := range unlit.Vertices {
		unlit.Vertices[i].Normal = mgl32.Vec3{0.3, 0.9, 0.1}
	}
	unlit.ComputeNormals()
	for _, v := range unlit.Vertices {
		assert.Equal(t, FlatNormal, v.Normal)
	}

	// no camera means 2D, never lit
	tri, err := NewTriangle(f, nil)
	require.NoError(t, err)
	tri.Vertices[0].Normal = mgl32.Vec3{1, 0, 0}
	tri.ComputeNormals()
	for _, v := range tri.Vertices {
		assert.Equal(t, FlatNormal, v.Normal)
	}
}

func TestVertexNormals(t *testing.T) {
	f, _ := newFactory(t)
	sphere, err := NewSphere(f, 6, 8, testCamera())
	require.NoError(t, err)
	sphere.NormalMode = metadata.NormalModeVertex
	sphere.ComputeNormals()
	for _, v := range sphere.Vertices {
		assertVec3(t, v.Position.Vec3().Normalize(), v.Normal)
	}
}

func TestSphereFaceNormalsPointOutward(t *testing.T) {
	f, _ := newFactory(t)
	sphere, err := NewSphere(f, 10, 16, testCamera())
	require.NoError(t, err)
	require.Len(t, sphere.Vertices, 10*16*4)
	require.Len(t, sphere.Indices, 10*16*6)

	sphere.ComputeNormals()
	for q := 0; q < len(sphere.Vertices); q += 4 {
		var center mgl32.Vec3
		for _, v := range sphere.Vertices[q : q+4] {
			center = center.Add(v.Position.Vec3())
		}
		n := sphere.Vertices[q].Normal
		assert.InDelta(t, 1.0, n.Len(), 1e-4)
		assert.Greater(t, n.Dot(center), float32(0), "quad %d points inward", q/4)
	}
	// the south cap faces down
	last := sphere.Vertices[len(sphere.Vertices)-1].Normal
	assert.Less(t, last.Y(), float32(-0.9))
}

func TestTetrahedronFacesPointOutward(t *testing.T) {
	f, _ := newFactory(t)
	tet, err := NewTetrahedron(f, 2, testCamera())
	require.NoError(t, err)
	require.Len(t, tet.Vertices, 12)
	assert.False(t, tet.Mesh.Indexed())

	tet.ComputeNormals()
	for face := 0; face < 4; face++ {
		vs := tet.Vertices[face*3 : face*3+3]
		centroid := vs[0].Position.Vec3().Add(vs[1].Position.Vec3()).Add(vs[2].Position.Vec3())
		for _, v := range vs {
			assert.Greater(t, v.Normal.Dot(centroid), float32(0))
			assert.Equal(t, vs[0].Normal, v.Normal)
		}
	}
}

func TestModelMeshIndexedNormals(t *testing.T) {
	f, _ := newFactory(t)
	vertices := []metadata.Vertex{
		vertex(0, 0, 0, 0, 0),
		vertex(0, 1, 0, 0, 0),
		vertex(1, 0, 0, 0, 0),
	}
	m, err := NewModelMesh(f, "tri", vertices, []uint32{0, 1, 2}, testCamera())
	require.NoError(t, err)
	m.ComputeNormals()
	for _, v := range m.Vertices {
		assertVec3(t, mgl32.Vec3{0, 0, -1}, v.Normal)
	}

	_, err = NewModelMesh(f, "broken", vertices, []uint32{0, 1, 5}, testCamera())
	assert.Error(t, err)
	_, err = NewModelMesh(f, "empty", nil, nil, testCamera())
	assert.Error(t, err)
}

func TestObjectsOwnTheirBuffers(t *testing.T) {
	f, dev := newFactory(t)
	sprite, err := NewSprite(f, 64, 32, nil)
	require.NoError(t, err)
	assert.NotEqual(t, sprite.ID.String(), "")
	assert.False(t, sprite.Lit())
	assert.Equal(t, uint64(metadata.MaterialConstantsSize), sprite.MaterialBuffer().Size())
	assert.Equal(t, uint64(metadata.TransformConstantsSize), sprite.TransformBuffer().Size())
	// vertex, index, material and transform buffers
	assert.Len(t, dev.Buffers, 4)

	require.NoError(t, sprite.UploadVertices())
	got, err := renderer.ReadStruct[metadata.Vertex](sprite.Mesh.VertexBuffer, 0)
	require.NoError(t, err)
	assert.Equal(t, sprite.Vertices[0], got)

	sprite.Destroy()
	for _, b := range dev.Buffers {
		assert.True(t, b.Destroyed)
	}

	other, err := NewSprite(f, 1, 1, nil)
	require.NoError(t, err)
	assert.NotEqual(t, sprite.ID, other.ID)
}

func TestBillboardFacesCamera(t *testing.T) {
	f, _ := newFactory(t)
	cam := testCamera()
	cam.Yaw(0.5)
	cam.Pitch(0.25)

	bb, err := NewBillboard(f, 1, 1, cam)
	require.NoError(t, err)
	bb.FaceCamera(cam)
	assert.Equal(t, mgl32.Vec3{0.25, 0.5, 0}, bb.Transform.Rotation)

	_, err = NewBillboard(f, 1, 1, nil)
	assert.Error(t, err)
}

func TestTransformOrder(t *testing.T) {
	tr := NewTransform()
	tr.Scale = mgl32.Vec3{2, 2, 2}
	tr.Rotation = mgl32.Vec3{0, mgl32.DegToRad(90), 0}
	tr.Position = mgl32.Vec3{10, 0, 0}

	// (1,0,0) scaled to (2,0,0), rotated about Y to (0,0,-2), moved by +10 on X
	p := tr.World().Mul4x1(mgl32.Vec4{1, 0, 0, 1})
	assertVec3(t, mgl32.Vec3{10, 0, -2}, p.Vec3())
}

func TestCameraMatrices(t *testing.T) {
	cam := testCamera()
	assertVec3(t, mgl32.Vec3{0, 0, -1}, cam.Forward())
	assertVec3(t, mgl32.Vec3{1, 0, 0}, cam.Right())

	// the origin sits 5 units in front of the camera
	p := cam.View().Mul4x1(mgl32.Vec4{0, 0, 0, 1})
	assertVec3(t, mgl32.Vec3{0, 0, -5}, p.Vec3())

	cam.MoveForward(1)
	assertVec3(t, mgl32.Vec3{0, 0, 4}, cam.Position)
	assert.InDelta(t, 4.0, cam.DistanceTo(mgl32.Vec3{}), 1e-5)

	cam.Pitch(10)
	assert.InDelta(t, mgl32.DegToRad(89), cam.EulerRotation.X(), 1e-5)

	before := cam.Projection()
	cam.SetAspect(1)
	assert.NotEqual(t, before, cam.Projection())
}

func TestMaterialConstants(t *testing.T) {
	m := DefaultMaterial()
	m.UVOffset = mgl32.Vec2{0.5, 0}
	m.UVScale = mgl32.Vec2{0.5, 1}
	c := m.Constants()
	assert.EqualValues(t, 1, c.EnableLighting)
	uv := c.UVTransform.Mul4x1(mgl32.Vec4{1, 1, 0, 1})
	assertVec3(t, mgl32.Vec3{1, 1, 0}, uv.Vec3())

	m.EnableLighting = false
	assert.EqualValues(t, 0, m.Constants().EnableLighting)
}

func TestDefaultLight(t *testing.T) {
	l := DefaultDirectionalLight()
	assertVec3(t, mgl32.Vec3{0, -1, 0}, l.Direction)
	assert.Equal(t, mgl32.Vec4{1, 1, 1, 1}, l.Color)
	assert.Equal(t, float32(1), l.Intensity)
	c := l.Constants()
	assert.Equal(t, l.LightViewProj, c.LightViewProj)
}

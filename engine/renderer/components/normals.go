package components

import (
	"github.com/go-gl/mathgl/mgl32"

	"github.com/spaghettifunk/prism/engine/renderer/metadata"
)

// FlatNormal is used for unlit and 2D geometry.
var FlatNormal = mgl32.Vec3{0, 0, -1}

func normalize(v mgl32.Vec3) mgl32.Vec3 {
	l := v.Len()
	if l == 0 {
		return FlatNormal
	}
	return v.Mul(1 / l)
}

// FaceNormal is normalize(cross(b-a, c-b)).
func FaceNormal(a, b, c mgl32.Vec3) mgl32.Vec3 {
	return normalize(b.Sub(a).Cross(c.Sub(b)))
}

func position(v metadata.Vertex) mgl32.Vec3 {
	return v.Position.Vec3()
}

// SetFlatNormals assigns FlatNormal to every vertex.
func SetFlatNormals(vertices []metadata.Vertex) {
	for i := range vertices {
		vertices[i].Normal = FlatNormal
	}
}

// SetVertexNormals uses the normalized position of each vertex.
func SetVertexNormals(vertices []metadata.Vertex) {
	for i := range vertices {
		vertices[i].Normal = normalize(position(vertices[i]))
	}
}

// SetFaceNormals splits vertices into consecutive faces of faceSize
// vertices and gives every vertex of a face the normal of its first three.
func SetFaceNormals(vertices []metadata.Vertex, faceSize int) {
	if faceSize < 3 {
		return
	}
	for start := 0; start+faceSize <= len(vertices); start += faceSize {
		face := vertices[start : start+faceSize]
		n := FaceNormal(position(face[0]), position(face[1]), position(face[2]))
		for i := range face {
			face[i].Normal = n
		}
	}
}

// SetIndexedFaceNormals computes one normal per indexed triangle. A vertex
// shared by several triangles keeps the normal of the last one.
func SetIndexedFaceNormals(vertices []metadata.Vertex, indices []uint32) {
	for t := 0; t+3 <= len(indices); t += 3 {
		i0, i1, i2 := indices[t], indices[t+1], indices[t+2]
		if int(i0) >= len(vertices) || int(i1) >= len(vertices) || int(i2) >= len(vertices) {
			continue
		}
		n := FaceNormal(position(vertices[i0]), position(vertices[i1]), position(vertices[i2]))
		vertices[i0].Normal = n
		vertices[i1].Normal = n
		vertices[i2].Normal = n
	}
}

// applyNormals handles the cases shared by every variant and reports
// whether the variant still has to compute face normals itself.
func (o *Object) applyNormals() bool {
	if !o.Lit() {
		SetFlatNormals(o.Vertices)
		return false
	}
	if o.NormalMode == metadata.NormalModeVertex {
		SetVertexNormals(o.Vertices)
		return false
	}
	return true
}

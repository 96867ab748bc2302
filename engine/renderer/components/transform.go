package components

import (
	"github.com/go-gl/mathgl/mgl32"
)

// Transform places an object in the world. Rotation holds Euler angles in
// radians (pitch, yaw, roll).
type Transform struct {
	Position mgl32.Vec3
	Rotation mgl32.Vec3
	Scale    mgl32.Vec3
}

func NewTransform() Transform {
	return Transform{Scale: mgl32.Vec3{1, 1, 1}}
}

// World scales, then rotates, then translates.
func (t Transform) World() mgl32.Mat4 {
	scale := mgl32.Scale3D(t.Scale.X(), t.Scale.Y(), t.Scale.Z())
	rotation := mgl32.HomogRotate3DY(t.Rotation.Y()).
		Mul4(mgl32.HomogRotate3DX(t.Rotation.X())).
		Mul4(mgl32.HomogRotate3DZ(t.Rotation.Z()))
	translation := mgl32.Translate3D(t.Position.X(), t.Position.Y(), t.Position.Z())
	return translation.Mul4(rotation).Mul4(scale)
}

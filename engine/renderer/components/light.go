package components

import (
	"github.com/go-gl/mathgl/mgl32"

	"github.com/spaghettifunk/prism/engine/renderer/metadata"
)

// DirectionalLight lights the whole scene from one direction.
type DirectionalLight struct {
	Color     mgl32.Vec4
	Direction mgl32.Vec3
	Intensity float32
	// LightViewProj maps world space into the light's clip space.
	LightViewProj mgl32.Mat4
}

// NewDirectionalLight builds a light looking along direction from a
// distance of 20 units, with an orthographic volume of 40 units.
func NewDirectionalLight(color mgl32.Vec4, direction mgl32.Vec3, intensity float32) DirectionalLight {
	dir := direction.Normalize()
	eye := dir.Mul(-20)
	up := mgl32.Vec3{0, 1, 0}
	if abs(dir.Dot(up)) > 0.99 {
		up = mgl32.Vec3{0, 0, 1}
	}
	view := mgl32.LookAtV(eye, mgl32.Vec3{}, up)
	proj := mgl32.Ortho(-20, 20, -20, 20, 0.1, 40)
	return DirectionalLight{
		Color:         color,
		Direction:     dir,
		Intensity:     intensity,
		LightViewProj: proj.Mul4(view),
	}
}

// DefaultDirectionalLight is a white light pointing straight down.
func DefaultDirectionalLight() DirectionalLight {
	return NewDirectionalLight(mgl32.Vec4{1, 1, 1, 1}, mgl32.Vec3{0, -1, 0}, 1)
}

// Constants returns the GPU layout of the light.
func (l DirectionalLight) Constants() metadata.LightConstants {
	return metadata.LightConstants{
		Color:         l.Color,
		Direction:     l.Direction,
		Intensity:     l.Intensity,
		LightViewProj: l.LightViewProj,
	}
}

func abs(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}

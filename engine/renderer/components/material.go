package components

import (
	"github.com/go-gl/mathgl/mgl32"

	"github.com/spaghettifunk/prism/engine/renderer/metadata"
)

// Material is the per-object surface description.
type Material struct {
	Color          mgl32.Vec4
	EnableLighting bool
	UVOffset       mgl32.Vec2
	UVScale        mgl32.Vec2
}

func DefaultMaterial() Material {
	return Material{
		Color:          mgl32.Vec4{1, 1, 1, 1},
		EnableLighting: true,
		UVScale:        mgl32.Vec2{1, 1},
	}
}

// Alpha is the opacity of the material color.
func (m Material) Alpha() float32 {
	return m.Color.W()
}

// UVTransform scales then offsets texture coordinates.
func (m Material) UVTransform() mgl32.Mat4 {
	return mgl32.Translate3D(m.UVOffset.X(), m.UVOffset.Y(), 0).
		Mul4(mgl32.Scale3D(m.UVScale.X(), m.UVScale.Y(), 1))
}

func (m Material) Constants() metadata.MaterialConstants {
	c := metadata.MaterialConstants{
		Color:       m.Color,
		UVTransform: m.UVTransform(),
	}
	if m.EnableLighting {
		c.EnableLighting = 1
	}
	return c
}

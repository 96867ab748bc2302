package metadata

import (
	"unsafe"

	"github.com/go-gl/mathgl/mgl32"
)

/** @brief Per-object material block, bound at BindingParamMaterial. */
type MaterialConstants struct {
	Color       mgl32.Vec4
	UVTransform mgl32.Mat4
	/** @brief 1 when the object is lit, 0 otherwise. */
	EnableLighting uint32
	_              [3]uint32
}

/** @brief Per-object transform block, bound at BindingParamTransform. */
type TransformConstants struct {
	WVP   mgl32.Mat4
	World mgl32.Mat4
}

/** @brief Frame-wide directional light block, bound at BindingParamLight. */
type LightConstants struct {
	Color         mgl32.Vec4
	Direction     mgl32.Vec3
	Intensity     float32
	LightViewProj mgl32.Mat4
}

var (
	MaterialConstantsSize  = uint32(unsafe.Sizeof(MaterialConstants{}))
	TransformConstantsSize = uint32(unsafe.Sizeof(TransformConstants{}))
	LightConstantsSize     = uint32(unsafe.Sizeof(LightConstants{}))
)

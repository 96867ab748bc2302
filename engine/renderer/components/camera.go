package components

import (
	"github.com/go-gl/mathgl/mgl32"
)

/**
 * @brief A perspective camera. The view matrix is rebuilt lazily when the
 * position or rotation change, the projection when the lens or aspect change.
 */
type Camera struct {
	/**
	 * @brief The position of this camera.
	 * NOTE: Do not set this directly, use SetPosition() instead
	 * so the view matrix is recalculated when needed.
	 */
	Position mgl32.Vec3
	/**
	 * @brief The rotation of this camera using Euler angles (pitch, yaw, roll).
	 * NOTE: Do not set this directly, use SetEulerRotation() instead
	 * so the view matrix is recalculated when needed.
	 */
	EulerRotation mgl32.Vec3
	/** @brief Vertical field of view in radians. */
	FieldOfView float32
	Near        float32
	Far         float32
	Aspect      float32

	viewDirty       bool
	projectionDirty bool
	world           mgl32.Mat4
	view            mgl32.Mat4
	projection      mgl32.Mat4
}

// NewCamera creates a camera at the origin looking down -Z.
func NewCamera(fieldOfViewDeg, aspect, near, far float32) *Camera {
	camera := &Camera{
		FieldOfView: mgl32.DegToRad(fieldOfViewDeg),
		Near:        near,
		Far:         far,
		Aspect:      aspect,
	}
	camera.Reset()
	return camera
}

func (c *Camera) Reset() {
	c.EulerRotation = mgl32.Vec3{}
	c.Position = mgl32.Vec3{}
	c.viewDirty = true
	c.projectionDirty = true
}

func (c *Camera) SetPosition(position mgl32.Vec3) {
	c.Position = position
	c.viewDirty = true
}

func (c *Camera) SetEulerRotation(rotation mgl32.Vec3) {
	c.EulerRotation = rotation
	c.viewDirty = true
}

// SetAspect changes the aspect ratio used by the projection.
func (c *Camera) SetAspect(aspect float32) {
	if aspect != c.Aspect {
		c.Aspect = aspect
		c.projectionDirty = true
	}
}

// Update recomputes whatever matrix is out of date.
func (c *Camera) Update() {
	if c.viewDirty {
		rotation := mgl32.HomogRotate3DY(c.EulerRotation.Y()).
			Mul4(mgl32.HomogRotate3DX(c.EulerRotation.X())).
			Mul4(mgl32.HomogRotate3DZ(c.EulerRotation.Z()))
		translation := mgl32.Translate3D(c.Position.X(), c.Position.Y(), c.Position.Z())

		c.world = translation.Mul4(rotation)
		c.view = c.world.Inv()
		c.viewDirty = false
	}
	if c.projectionDirty {
		aspect := c.Aspect
		if aspect <= 0 {
			aspect = 1
		}
		c.projection = mgl32.Perspective(c.FieldOfView, aspect, c.Near, c.Far)
		c.projectionDirty = false
	}
}

func (c *Camera) View() mgl32.Mat4 {
	c.Update()
	return c.view
}

func (c *Camera) Projection() mgl32.Mat4 {
	c.Update()
	return c.projection
}

// ViewProjection is projection * view.
func (c *Camera) ViewProjection() mgl32.Mat4 {
	c.Update()
	return c.projection.Mul4(c.view)
}

func (c *Camera) Forward() mgl32.Vec3 {
	c.Update()
	return c.world.Col(2).Vec3().Mul(-1).Normalize()
}

func (c *Camera) Backward() mgl32.Vec3 {
	return c.Forward().Mul(-1)
}

func (c *Camera) Right() mgl32.Vec3 {
	c.Update()
	return c.world.Col(0).Vec3().Normalize()
}

func (c *Camera) Left() mgl32.Vec3 {
	return c.Right().Mul(-1)
}

func (c *Camera) move(direction mgl32.Vec3, amount float32) {
	c.Position = c.Position.Add(direction.Mul(amount))
	c.viewDirty = true
}

func (c *Camera) MoveForward(amount float32) {
	c.move(c.Forward(), amount)
}

func (c *Camera) MoveBackward(amount float32) {
	c.move(c.Backward(), amount)
}

func (c *Camera) MoveLeft(amount float32) {
	c.move(c.Left(), amount)
}

func (c *Camera) MoveRight(amount float32) {
	c.move(c.Right(), amount)
}

func (c *Camera) MoveUp(amount float32) {
	c.move(mgl32.Vec3{0, 1, 0}, amount)
}

func (c *Camera) MoveDown(amount float32) {
	c.move(mgl32.Vec3{0, -1, 0}, amount)
}

func (c *Camera) Yaw(amount float32) {
	c.EulerRotation[1] += amount
	c.viewDirty = true
}

func (c *Camera) Pitch(amount float32) {
	c.EulerRotation[0] += amount

	// Clamp to avoid Gimbal lock.
	limit := mgl32.DegToRad(89)
	c.EulerRotation[0] = mgl32.Clamp(c.EulerRotation[0], -limit, limit)

	c.viewDirty = true
}

// DistanceTo is the distance between the camera and point.
func (c *Camera) DistanceTo(point mgl32.Vec3) float32 {
	return c.Position.Sub(point).Len()
}

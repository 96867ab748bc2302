package drawer

import (
	"github.com/go-gl/mathgl/mgl32"

	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/renderer/components"
)

const (
	debugMoveSpeed   float32 = 0.1
	debugRotateSpeed float32 = 0.005
)

// DebugCamera is a free-flying camera toggled with F1. While active it
// replaces the camera of every 3D object.
type DebugCamera struct {
	input   Input
	enabled bool
	active  bool
	camera  *components.Camera
}

func NewDebugCamera(input Input, enabled bool) *DebugCamera {
	camera := components.NewCamera(60, 16.0/9.0, 0.1, 1000)
	camera.SetPosition(mgl32.Vec3{0, 0, 5})
	return &DebugCamera{
		input:   input,
		enabled: enabled,
		camera:  camera,
	}
}

// Update reads the input snapshot once per frame.
func (c *DebugCamera) Update() {
	if !c.enabled {
		return
	}
	if c.input.KeyPressed(core.KEY_F1) {
		c.active = !c.active
		core.LogDebug("debug camera active: %t", c.active)
	}
	if !c.active {
		return
	}

	if c.input.IsButtonDown(core.BUTTON_RIGHT) {
		dx, dy := c.input.MouseDelta()
		c.camera.Yaw(-float32(dx) * debugRotateSpeed)
		c.camera.Pitch(-float32(dy) * debugRotateSpeed)
	}

	moves := []struct {
		key  core.KeyCode
		move func(float32)
	}{
		{core.KEY_W, c.camera.MoveForward},
		{core.KEY_S, c.camera.MoveBackward},
		{core.KEY_A, c.camera.MoveLeft},
		{core.KEY_D, c.camera.MoveRight},
		{core.KEY_E, c.camera.MoveUp},
		{core.KEY_Q, c.camera.MoveDown},
	}
	for _, m := range moves {
		if c.input.IsKeyDown(m.key) {
			m.move(debugMoveSpeed)
		}
	}
}

func (c *DebugCamera) Active() bool {
	return c.enabled && c.active
}

func (c *DebugCamera) Camera() *components.Camera {
	return c.camera
}

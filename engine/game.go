package engine

import (
	"github.com/spaghettifunk/prism/engine/renderer/drawer"
)

// Game is the application plugged into the engine. Any callback may be nil.
type Game struct {
	State        interface{}
	FnInitialize Initialize
	FnUpdate     Update
	FnRender     Render
	FnOnResize   OnResize
	FnShutdown   Shutdown
}

// Initialize runs once every engine subsystem is up.
type Initialize func(e *Engine) error

type Update func(deltaTime float64) error

// Render submits the objects of the frame to d, between its PreDraw and PostDraw.
type Render func(d *drawer.FrameDrawer, deltaTime float64) error

type OnResize func(width uint32, height uint32) error

// Shutdown runs after the GPU went idle and before any subsystem is released.
type Shutdown func() error

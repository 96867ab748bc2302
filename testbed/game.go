package testbed

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/spaghettifunk/prism/engine"
	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/renderer/components"
	"github.com/spaghettifunk/prism/engine/renderer/drawer"
	"github.com/spaghettifunk/prism/engine/renderer/metadata"
)

type TestGame struct {
	*engine.Game
	engine *engine.Engine
}

type gameState struct {
	WorldCamera *components.Camera

	triangle    *components.Triangle
	sprite      *components.Sprite
	sphere      *components.Sphere
	billboard   *components.Billboard
	cube        *components.ModelMesh
	tetrahedron *components.Tetrahedron

	blend metadata.BlendMode
	light bool
	time  float64
}

func NewTestGame() *TestGame {
	tg := &TestGame{
		Game: &engine.Game{
			State: &gameState{blend: metadata.BlendModeNormal, light: true},
		},
	}
	tg.FnInitialize = tg.Initialize
	tg.FnUpdate = tg.Update
	tg.FnRender = tg.Render
	tg.FnOnResize = tg.OnResize
	tg.FnShutdown = tg.Shutdown
	return tg
}

func (g *TestGame) state() *gameState {
	return g.State.(*gameState)
}

func (g *TestGame) Initialize(e *engine.Engine) error {
	core.LogInfo("initializing testbed...")
	g.engine = e
	state := g.state()
	factory := e.Factory()

	width, height := e.ClientSize()
	state.WorldCamera = components.NewCamera(60, aspect(width, height), 0.1, 1000)
	state.WorldCamera.SetPosition(mgl32.Vec3{0, 1, 6})

	var err error
	if state.triangle, err = components.NewTriangle(factory, state.WorldCamera); err != nil {
		return err
	}
	state.triangle.Transform.Position = mgl32.Vec3{-3, 0, 0}
	state.triangle.Material.Color = mgl32.Vec4{1, 0.3, 0.3, 1}

	// Screen space, no camera.
	if state.sprite, err = components.NewSprite(factory, 96, 96, nil); err != nil {
		return err
	}
	state.sprite.Transform.Position = mgl32.Vec3{float32(width) - 64, 64, 0}
	state.sprite.Material.Color = mgl32.Vec4{0.3, 0.6, 1, 0.8}

	if state.sphere, err = components.NewSphere(factory, 16, 24, state.WorldCamera); err != nil {
		return err
	}
	state.sphere.Material.Color = mgl32.Vec4{0.9, 0.9, 0.9, 1}

	if state.billboard, err = components.NewBillboard(factory, 1, 1, state.WorldCamera); err != nil {
		return err
	}
	state.billboard.Transform.Position = mgl32.Vec3{0, 2, 0}
	state.billboard.Material.Color = mgl32.Vec4{1, 1, 0.2, 0.6}

	vertices, indices := cube()
	if state.cube, err = components.NewModelMesh(factory, "cube", vertices, indices, state.WorldCamera); err != nil {
		return err
	}
	state.cube.Transform.Position = mgl32.Vec3{3, 0, 0}
	state.cube.Material.Color = mgl32.Vec4{0.4, 1, 0.4, 1}

	if state.tetrahedron, err = components.NewTetrahedron(factory, 1, state.WorldCamera); err != nil {
		return err
	}
	state.tetrahedron.Transform.Position = mgl32.Vec3{0, -1.5, 1}
	state.tetrahedron.Fill = metadata.FillModeWireframe

	if textures := e.Config().Assets.Textures; len(textures) > 0 {
		if index, err := e.Textures().Load(textures[0]); err == nil {
			state.cube.Texture = index
		} else {
			core.LogWarn("testbed texture: %s", err)
		}
	}
	return nil
}

func (g *TestGame) Update(deltaTime float64) error {
	state := g.state()
	state.time += deltaTime
	input := g.engine.Input()

	// F2 cycles the blend mode, F3 toggles the sphere wireframe, F4 the custom light.
	if input.KeyPressed(core.KEY_F2) {
		state.blend = (state.blend + 1) % metadata.BlendModeCount
		core.LogInfo("blend mode: %s", state.blend)
	}
	if input.KeyPressed(core.KEY_F3) {
		state.sphere.Fill = (state.sphere.Fill + 1) % metadata.FillModeCount
	}
	if input.KeyPressed(core.KEY_F4) {
		state.light = !state.light
	}

	spin := float32(state.time)
	state.triangle.Transform.Rotation = mgl32.Vec3{0, spin, 0}
	state.cube.Transform.Rotation = mgl32.Vec3{spin * 0.5, spin, 0}
	state.tetrahedron.Transform.Rotation = mgl32.Vec3{0, -spin, 0}
	state.sprite.Transform.Rotation = mgl32.Vec3{0, 0, spin}
	state.billboard.FaceCamera(state.WorldCamera)
	return nil
}

func (g *TestGame) Render(d *drawer.FrameDrawer, deltaTime float64) error {
	state := g.state()
	d.SetBlendMode(state.blend)
	if state.light {
		angle := state.time * 0.3
		d.SetDirectionalLight(components.NewDirectionalLight(
			mgl32.Vec4{1, 0.95, 0.85, 1},
			mgl32.Vec3{float32(math.Cos(angle)) * 0.5, -1, float32(math.Sin(angle)) * 0.5},
			1,
		))
	}
	objects := []components.Drawable{
		state.sphere,
		state.cube,
		state.triangle,
		state.tetrahedron,
		state.billboard,
		state.sprite,
	}
	for _, obj := range objects {
		if err := d.DrawSet(obj); err != nil {
			return err
		}
	}
	return nil
}

func (g *TestGame) OnResize(width uint32, height uint32) error {
	state := g.state()
	if state.WorldCamera != nil {
		state.WorldCamera.SetAspect(aspect(width, height))
	}
	if state.sprite != nil {
		state.sprite.Transform.Position = mgl32.Vec3{float32(width) - 64, 64, 0}
	}
	return nil
}

func (g *TestGame) Shutdown() error {
	core.LogInfo("shutting down testbed...")
	state := g.state()
	var objects []*components.Object
	if state.triangle != nil {
		objects = append(objects, state.triangle.Base())
	}
	if state.sprite != nil {
		objects = append(objects, state.sprite.Base())
	}
	if state.sphere != nil {
		objects = append(objects, state.sphere.Base())
	}
	if state.billboard != nil {
		objects = append(objects, state.billboard.Base())
	}
	if state.cube != nil {
		objects = append(objects, state.cube.Base())
	}
	if state.tetrahedron != nil {
		objects = append(objects, state.tetrahedron.Base())
	}
	for _, o := range objects {
		o.Destroy()
	}
	return nil
}

func aspect(width, height uint32) float32 {
	if height == 0 {
		return 1
	}
	return float32(width) / float32(height)
}

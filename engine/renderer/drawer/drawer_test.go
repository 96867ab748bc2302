package drawer

import (
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/renderer"
	"github.com/spaghettifunk/prism/engine/renderer/components"
	"github.com/spaghettifunk/prism/engine/renderer/metadata"
	"github.com/spaghettifunk/prism/engine/renderer/rendertest"
)

type fixedWindow struct{ w, h uint32 }

func (w fixedWindow) ClientSize() (uint32, uint32) { return w.w, w.h }

type slotTextures struct {
	known map[uint32]bool
}

func (s slotTextures) Handle(index uint32) (metadata.DescriptorHandle, bool) {
	if !s.known[index] {
		return metadata.DescriptorHandle{}, false
	}
	return metadata.DescriptorHandle{Heap: metadata.HeapTypeShaderResource, Index: index}, true
}

type countingOverlay struct {
	begins, ends int
}

func (o *countingOverlay) BeginFrame() { o.begins++ }

func (o *countingOverlay) EndFrame(renderer.CommandList) error {
	o.ends++
	return nil
}

type fixture struct {
	dev      *rendertest.Device
	drawer   *FrameDrawer
	factory  *renderer.BufferMeshFactory
	overlay  *countingOverlay
	input    *core.Input
	camera   *components.Camera
	slept    []time.Duration
	clock    time.Duration
	frameLen time.Duration
}

func newFixture(t *testing.T, config Config) *fixture {
	t.Helper()
	f := &fixture{
		dev:     rendertest.NewDevice(),
		overlay: &countingOverlay{},
		input:   core.NewInput(nil),
		camera:  components.NewCamera(60, 4.0/3.0, 0.1, 100),
	}
	f.camera.SetPosition(mgl32.Vec3{0, 0, 5})

	sc, err := renderer.NewSubmissionContext(f.dev, renderer.SubmissionConfig{Width: 640, Height: 480})
	require.NoError(t, err)
	rtv, err := renderer.NewResourceViewAllocator(f.dev, "targets", metadata.HeapTypeRenderTarget, renderer.PresentBufferCount)
	require.NoError(t, err)
	dsv, err := renderer.NewResourceViewAllocator(f.dev, "depth", metadata.HeapTypeDepthStencil, 1)
	require.NoError(t, err)
	require.NoError(t, sc.BindTargets(rtv, dsv))
	srv, err := renderer.NewResourceViewAllocator(f.dev, "shader views", metadata.HeapTypeShaderResource, 128)
	require.NoError(t, err)
	pipelines, err := renderer.NewPipelineStateCache(f.dev, renderer.ShaderSet{Vertex: []byte{1}, Pixel: []byte{1}},
		sc.TargetFormat(), sc.DepthFormat(), srv.Capacity())
	require.NoError(t, err)
	f.factory, err = renderer.NewBufferMeshFactory(f.dev)
	require.NoError(t, err)

	f.drawer, err = NewFrameDrawer(Dependencies{
		Submission:  sc,
		ShaderViews: srv,
		Pipelines:   pipelines,
		Factory:     f.factory,
		Window:      fixedWindow{640, 480},
		Textures:    slotTextures{known: map[uint32]bool{0: true, 3: true}},
		Overlay:     f.overlay,
		Input:       f.input,
	}, config)
	require.NoError(t, err)

	// fake clock: every frame takes frameLen
	f.drawer.pacer.now = func() time.Duration { return f.clock }
	f.drawer.pacer.sleep = func(d time.Duration) {
		f.slept = append(f.slept, d)
		f.clock += d
	}
	f.frameLen = 4 * time.Millisecond
	return f
}

func (f *fixture) frame(t *testing.T, objects ...components.Drawable) {
	t.Helper()
	require.NoError(t, f.drawer.PreDraw())
	for _, obj := range objects {
		require.NoError(t, f.drawer.DrawSet(obj))
	}
	f.clock += f.frameLen
	require.NoError(t, f.drawer.PostDraw())
}

func indexOf(kinds []rendertest.OpKind, kind rendertest.OpKind, from int) int {
	for i := from; i < len(kinds); i++ {
		if kinds[i] == kind {
			return i
		}
	}
	return -1
}

func TestSingleTriangleFrame(t *testing.T) {
	f := newFixture(t, Config{TargetFrameRate: 61})
	tri, err := components.NewTriangle(f.factory, f.camera)
	require.NoError(t, err)
	f.dev.ResetLog()

	f.frame(t, tri)
	require.Empty(t, f.dev.Errors)

	kinds := f.dev.Kinds()
	clear := indexOf(kinds, rendertest.OpClearRenderTarget, 0)
	bind := indexOf(kinds, rendertest.OpSetPipelineState, clear)
	draw := indexOf(kinds, rendertest.OpDrawIndexed, bind)
	present := indexOf(kinds, rendertest.OpPresent, draw)
	assert.True(t, clear >= 0 && bind > clear && draw > bind && present > draw, "ops out of order: %v", kinds)
	assert.Len(t, f.dev.Ops(rendertest.OpClearRenderTarget), 1)
	assert.Len(t, f.dev.Ops(rendertest.OpPresent), 1)

	binds := f.dev.Ops(rendertest.OpSetPipelineState)
	require.Len(t, binds, 1)
	fill, blend := binds[0].Pipeline.Key()
	assert.Equal(t, metadata.FillModeSolid, fill)
	assert.Equal(t, metadata.BlendModeNormal, blend)

	draws := f.dev.Ops(rendertest.OpDrawIndexed)
	require.Len(t, draws, 1)
	assert.EqualValues(t, 3, draws[0].Count)
	assert.EqualValues(t, 1, draws[0].Instances)
	assert.Empty(t, f.dev.Ops(rendertest.OpDraw))

	assert.Equal(t, 1, f.overlay.begins)
	assert.Equal(t, 1, f.overlay.ends)
}

func TestFrameState(t *testing.T) {
	f := newFixture(t, Config{})
	f.frame(t)

	viewports := f.dev.Ops(rendertest.OpSetViewport)
	require.Len(t, viewports, 1)
	assert.Equal(t, metadata.Viewport{Width: 640, Height: 480, MaxDepth: 1}, viewports[0].Viewport)
	scissors := f.dev.Ops(rendertest.OpSetScissorRect)
	require.Len(t, scissors, 1)
	assert.Equal(t, metadata.Rect{Right: 640, Bottom: 480}, scissors[0].Rect)
	assert.Len(t, f.dev.Ops(rendertest.OpSetDescriptorHeap), 1)
	assert.Len(t, f.dev.Ops(rendertest.OpSetPipelineState), 1)
}

func TestTetrahedronIsNotIndexed(t *testing.T) {
	f := newFixture(t, Config{})
	tet, err := components.NewTetrahedron(f.factory, 1, f.camera)
	require.NoError(t, err)
	f.frame(t, tet)

	draws := f.dev.Ops(rendertest.OpDraw)
	require.Len(t, draws, 1)
	assert.EqualValues(t, 12, draws[0].Count)
	assert.Empty(t, f.dev.Ops(rendertest.OpSetIndexBuffer))
	assert.Empty(t, f.dev.Ops(rendertest.OpDrawIndexed))
}

func TestRedundantPipelineBindsAreSkipped(t *testing.T) {
	f := newFixture(t, Config{})
	a, err := components.NewTriangle(f.factory, f.camera)
	require.NoError(t, err)
	b, err := components.NewTriangle(f.factory, f.camera)
	require.NoError(t, err)
	wire, err := components.NewSphere(f.factory, 4, 6, f.camera)
	require.NoError(t, err)
	wire.Fill = metadata.FillModeWireframe

	f.frame(t, a, b, wire)
	binds := f.dev.Ops(rendertest.OpSetPipelineState)
	require.Len(t, binds, 2)
	fill, _ := binds[1].Pipeline.Key()
	assert.Equal(t, metadata.FillModeWireframe, fill)
	assert.Len(t, f.dev.Ops(rendertest.OpDrawIndexed), 3)
}

func TestBlendModeResetsEveryFrame(t *testing.T) {
	f := newFixture(t, Config{})
	tri, err := components.NewTriangle(f.factory, f.camera)
	require.NoError(t, err)

	require.NoError(t, f.drawer.PreDraw())
	f.drawer.SetBlendMode(metadata.BlendModeAdd)
	require.NoError(t, f.drawer.DrawSet(tri))
	require.NoError(t, f.drawer.PostDraw())

	binds := f.dev.Ops(rendertest.OpSetPipelineState)
	require.Len(t, binds, 2)
	_, blend := binds[1].Pipeline.Key()
	assert.Equal(t, metadata.BlendModeAdd, blend)

	f.dev.ResetLog()
	f.frame(t, tri)
	assert.Equal(t, metadata.BlendModeNormal, f.drawer.BlendMode())
	binds = f.dev.Ops(rendertest.OpSetPipelineState)
	require.Len(t, binds, 1)
	_, blend = binds[0].Pipeline.Key()
	assert.Equal(t, metadata.BlendModeNormal, blend)
}

func lightBuffer(t *testing.T, f *fixture) metadata.LightConstants {
	t.Helper()
	var addr metadata.GPUAddress
	for _, op := range f.dev.Ops(rendertest.OpSetConstantBuffer) {
		if op.Param == metadata.BindingParamLight {
			addr = op.Address
		}
	}
	buf := f.dev.BufferAt(addr)
	require.NotNil(t, buf)
	c, err := renderer.ReadStruct[metadata.LightConstants](buf, 0)
	require.NoError(t, err)
	return c
}

func TestDefaultLightIsUsed(t *testing.T) {
	f := newFixture(t, Config{})
	tri, err := components.NewTriangle(f.factory, f.camera)
	require.NoError(t, err)

	f.frame(t, tri)
	assert.Equal(t, components.DefaultDirectionalLight().Constants(), lightBuffer(t, f))

	red := components.NewDirectionalLight(mgl32.Vec4{1, 0, 0, 1}, mgl32.Vec3{1, -1, 0}, 2)
	require.NoError(t, f.drawer.PreDraw())
	f.drawer.SetDirectionalLight(red)
	require.NoError(t, f.drawer.DrawSet(tri))
	require.NoError(t, f.drawer.PostDraw())
	assert.Equal(t, red.Constants(), lightBuffer(t, f))

	// the light only lasts one frame
	f.frame(t, tri)
	assert.Equal(t, components.DefaultDirectionalLight().Constants(), lightBuffer(t, f))
}

func TestFaceNormalsAreRecomputed(t *testing.T) {
	f := newFixture(t, Config{})
	tri, err := components.NewTriangle(f.factory, f.camera)
	require.NoError(t, err)
	tri.NormalMode = metadata.NormalModeVertex
	f.frame(t, tri)
	for _, v := range tri.Vertices {
		assert.InDelta(t, 1.0, v.Normal.Len(), 1e-5)
	}

	tri.Material.EnableLighting = false
	f.frame(t, tri)
	for _, v := range tri.Vertices {
		assert.Equal(t, components.FlatNormal, v.Normal)
	}
}

func TestMissingTextureFallsBackToDefault(t *testing.T) {
	f := newFixture(t, Config{})
	known, err := components.NewSprite(f.factory, 10, 10, nil)
	require.NoError(t, err)
	known.Texture = 3
	unknown, err := components.NewSprite(f.factory, 10, 10, nil)
	require.NoError(t, err)
	unknown.Texture = 42

	f.frame(t, known, unknown)
	tables := f.dev.Ops(rendertest.OpSetDescriptorTable)
	require.Len(t, tables, 2)
	assert.EqualValues(t, 3, tables[0].Handle.Index)
	assert.EqualValues(t, 0, tables[1].Handle.Index)
}

func TestScreenSpaceTransform(t *testing.T) {
	f := newFixture(t, Config{})
	sprite, err := components.NewSprite(f.factory, 100, 50, nil)
	require.NoError(t, err)
	sprite.Transform.Position = mgl32.Vec3{320, 240, 0}
	f.frame(t, sprite)

	c, err := renderer.ReadStruct[metadata.TransformConstants](sprite.TransformBuffer(), 0)
	require.NoError(t, err)
	// the center of the window maps to the center of clip space
	p := c.WVP.Mul4x1(mgl32.Vec4{0, 0, 0, 1})
	assert.InDelta(t, 0, p.X(), 1e-5)
	assert.InDelta(t, 0, p.Y(), 1e-5)
}

func TestDrawListsWithoutClassification(t *testing.T) {
	f := newFixture(t, Config{})
	flat, err := components.NewSprite(f.factory, 1, 1, nil)
	require.NoError(t, err)
	glass, err := components.NewTriangle(f.factory, f.camera)
	require.NoError(t, err)
	glass.Material.Color = mgl32.Vec4{1, 1, 1, 0.5}

	require.NoError(t, f.drawer.PreDraw())
	require.NoError(t, f.drawer.DrawSet(flat))
	require.NoError(t, f.drawer.DrawSet(glass))
	opaque, alpha, screen := f.drawer.Queued()
	assert.Equal(t, 2, opaque)
	assert.Zero(t, alpha)
	assert.Zero(t, screen)
	require.NoError(t, f.drawer.PostDraw())
}

func TestDrawListsWithClassification(t *testing.T) {
	f := newFixture(t, Config{ClassifyDrawLists: true})
	flat, err := components.NewSprite(f.factory, 1, 1, nil)
	require.NoError(t, err)
	solid, err := components.NewTriangle(f.factory, f.camera)
	require.NoError(t, err)
	near, err := components.NewTriangle(f.factory, f.camera)
	require.NoError(t, err)
	near.Material.Color = mgl32.Vec4{1, 1, 1, 0.5}
	near.Transform.Position = mgl32.Vec3{0, 0, 3}
	far, err := components.NewTetrahedron(f.factory, 1, f.camera)
	require.NoError(t, err)
	far.Material.Color = mgl32.Vec4{1, 1, 1, 0.5}
	far.Transform.Position = mgl32.Vec3{0, 0, -10}

	require.NoError(t, f.drawer.PreDraw())
	for _, obj := range []components.Drawable{flat, near, far, solid} {
		require.NoError(t, f.drawer.DrawSet(obj))
	}
	opaque, alpha, screen := f.drawer.Queued()
	assert.Equal(t, 1, opaque)
	assert.Equal(t, 2, alpha)
	assert.Equal(t, 1, screen)
	f.clock += f.frameLen
	require.NoError(t, f.drawer.PostDraw())

	// opaque first, then the far tetrahedron before the near triangle, then 2D
	kinds := []rendertest.OpKind{}
	for _, op := range f.dev.Log {
		if op.Kind == rendertest.OpDraw || op.Kind == rendertest.OpDrawIndexed {
			kinds = append(kinds, op.Kind)
		}
	}
	assert.Equal(t, []rendertest.OpKind{
		rendertest.OpDrawIndexed, rendertest.OpDraw, rendertest.OpDrawIndexed, rendertest.OpDrawIndexed,
	}, kinds)
}

func TestFramePacing(t *testing.T) {
	f := newFixture(t, Config{TargetFrameRate: 61})
	target := time.Second / 61
	assert.Equal(t, target, f.drawer.pacer.Target())

	f.frame(t)
	require.Len(t, f.slept, 1)
	assert.Equal(t, target-f.frameLen, f.slept[0])
	assert.EqualValues(t, 1, f.drawer.Metrics().Frames())
	assert.Equal(t, target, f.clock)

	// a slow frame is not slowed down further
	f.frameLen = 30 * time.Millisecond
	f.frame(t)
	assert.Len(t, f.slept, 1)
}

func TestFramePacingCountsWorkBetweenFrames(t *testing.T) {
	f := newFixture(t, Config{TargetFrameRate: 61})
	target := f.drawer.pacer.Target()

	f.frame(t)
	require.Equal(t, target, f.clock)

	// game update and event pump run before PreDraw
	for i := 2; i <= 4; i++ {
		f.clock += 5 * time.Millisecond
		f.frame(t)
		assert.Equal(t, target-5*time.Millisecond-f.frameLen, f.slept[len(f.slept)-1])
		assert.Equal(t, time.Duration(i)*target, f.clock)
	}
}

func TestPacerWithoutTarget(t *testing.T) {
	var clock time.Duration
	p := NewPacer(0)
	p.now = func() time.Duration { return clock }
	p.sleep = func(time.Duration) { t.Fatal("unexpected sleep") }

	p.Start()
	clock = 10 * time.Millisecond
	assert.Equal(t, 10*time.Millisecond, p.Wait())
	clock = 25 * time.Millisecond
	assert.Equal(t, 15*time.Millisecond, p.Wait())
}

func TestScreenSpaceSkippedWithoutClientArea(t *testing.T) {
	f := newFixture(t, Config{})
	sprite, err := components.NewSprite(f.factory, 32, 32, nil)
	require.NoError(t, err)
	tri, err := components.NewTriangle(f.factory, f.camera)
	require.NoError(t, err)
	f.drawer.window = fixedWindow{0, 0}
	f.dev.ResetLog()

	f.frame(t, sprite, tri)
	require.Empty(t, f.dev.Errors)
	assert.Len(t, f.dev.Ops(rendertest.OpDrawIndexed), 1)
	assert.Len(t, f.dev.Ops(rendertest.OpPresent), 1)
}

func TestBracketErrors(t *testing.T) {
	f := newFixture(t, Config{})
	tri, err := components.NewTriangle(f.factory, f.camera)
	require.NoError(t, err)

	assert.True(t, errors.Is(f.drawer.DrawSet(tri), core.ErrFrameBracket))
	assert.True(t, errors.Is(f.drawer.PostDraw(), core.ErrFrameBracket))

	require.NoError(t, f.drawer.PreDraw())
	assert.Error(t, f.drawer.PreDraw())
	assert.True(t, errors.Is(f.drawer.DrawSet(nil), core.ErrNilDependency))
}

func TestNilDependencies(t *testing.T) {
	_, err := NewFrameDrawer(Dependencies{}, Config{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrNilDependency))
	assert.Contains(t, err.Error(), "submission context")
}

func TestDebugCameraToggle(t *testing.T) {
	input := core.NewInput(nil)
	c := NewDebugCamera(input, true)
	start := c.Camera().Position

	input.ProcessKey(core.KEY_F1, true)
	c.Update()
	assert.True(t, c.Active())

	input.Update()
	input.ProcessKey(core.KEY_W, true)
	c.Update()
	assert.Less(t, c.Camera().Position.Z(), start.Z())

	disabled := NewDebugCamera(input, false)
	input.Update()
	input.ProcessKey(core.KEY_F1, false)
	input.ProcessKey(core.KEY_F1, true)
	disabled.Update()
	assert.False(t, disabled.Active())
}

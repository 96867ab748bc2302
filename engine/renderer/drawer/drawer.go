package drawer

import (
	"cmp"

	"github.com/cockroachdb/errors"
	"github.com/go-gl/mathgl/mgl32"
	"golang.org/x/exp/slices"

	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/renderer"
	"github.com/spaghettifunk/prism/engine/renderer/components"
	"github.com/spaghettifunk/prism/engine/renderer/metadata"
)

// Window reports the size of the area being drawn.
type Window interface {
	ClientSize() (uint32, uint32)
}

// TextureProvider resolves a texture index to its shader-visible view.
// Index 0 is always the default texture.
type TextureProvider interface {
	Handle(index uint32) (metadata.DescriptorHandle, bool)
}

// Overlay draws debug UI into the frame command list right before presentation.
type Overlay interface {
	BeginFrame()
	EndFrame(list renderer.CommandList) error
}

// Input is the per-frame snapshot the debug camera reads.
type Input interface {
	IsKeyDown(key core.KeyCode) bool
	KeyPressed(key core.KeyCode) bool
	IsButtonDown(button core.Button) bool
	MouseDelta() (float64, float64)
}

// Dependencies are the collaborators of the drawer. Metrics may be nil.
type Dependencies struct {
	Submission  *renderer.SubmissionContext
	ShaderViews *renderer.ResourceViewAllocator
	Pipelines   *renderer.PipelineStateCache
	Factory     *renderer.BufferMeshFactory
	Window      Window
	Textures    TextureProvider
	Overlay     Overlay
	Input       Input
	Metrics     *core.FrameMetrics
}

type Config struct {
	TargetFrameRate float64
	// ClassifyDrawLists routes objects without a camera to the 2D list and
	// translucent objects to the alpha list, sorted back to front. When
	// false everything is drawn from the opaque list in submission order.
	ClassifyDrawLists bool
	FreeCamera        bool
}

// FrameDrawer turns the objects submitted during a frame into draw calls.
// Call PreDraw, then DrawSet for every object, then PostDraw.
type FrameDrawer struct {
	sc          *renderer.SubmissionContext
	shaderViews *renderer.ResourceViewAllocator
	pipelines   *renderer.PipelineStateCache
	window      Window
	textures    TextureProvider
	overlay     Overlay
	metrics     *core.FrameMetrics
	pacer       *Pacer
	debug       *DebugCamera

	lightBuffer renderer.Buffer

	opaque []components.Drawable
	alpha  []components.Drawable
	flat   []components.Drawable

	light    *components.DirectionalLight
	blend    metadata.BlendMode
	bound    renderer.PipelineState
	classify bool

	width, height uint32
	list          renderer.CommandList
	visitor       *objectVisitor
}

// NewFrameDrawer checks every dependency and creates the shared light buffer.
func NewFrameDrawer(deps Dependencies, config Config) (*FrameDrawer, error) {
	switch {
	case deps.Submission == nil:
		return nil, core.NilDependency("submission context")
	case deps.ShaderViews == nil:
		return nil, core.NilDependency("shader view allocator")
	case deps.Pipelines == nil:
		return nil, core.NilDependency("pipeline state cache")
	case deps.Factory == nil:
		return nil, core.NilDependency("buffer mesh factory")
	case deps.Window == nil:
		return nil, core.NilDependency("window")
	case deps.Textures == nil:
		return nil, core.NilDependency("texture provider")
	case deps.Overlay == nil:
		return nil, core.NilDependency("overlay")
	case deps.Input == nil:
		return nil, core.NilDependency("input")
	}

	lightBuffer, err := deps.Factory.CreateBuffer(uint64(metadata.LightConstantsSize))
	if err != nil {
		return nil, errors.Wrap(err, "create light buffer")
	}

	metrics := deps.Metrics
	if metrics == nil {
		metrics = core.NewFrameMetrics()
	}

	d := &FrameDrawer{
		sc:          deps.Submission,
		shaderViews: deps.ShaderViews,
		pipelines:   deps.Pipelines,
		window:      deps.Window,
		textures:    deps.Textures,
		overlay:     deps.Overlay,
		metrics:     metrics,
		pacer:       NewPacer(config.TargetFrameRate),
		debug:       NewDebugCamera(deps.Input, config.FreeCamera),
		lightBuffer: lightBuffer,
		classify:    config.ClassifyDrawLists,
		blend:       metadata.BlendModeNormal,
	}
	d.visitor = &objectVisitor{d: d}
	return d, nil
}

// PreDraw opens the frame: clears the presentation buffer, resets the draw
// lists and binds the frame-wide state.
func (d *FrameDrawer) PreDraw() error {
	d.pacer.Start()
	if err := d.sc.PreDraw(); err != nil {
		return err
	}
	d.overlay.BeginFrame()

	d.opaque = d.opaque[:0]
	d.alpha = d.alpha[:0]
	d.flat = d.flat[:0]
	d.light = nil
	d.blend = metadata.BlendModeNormal
	d.bound = nil

	d.list = d.sc.CommandList()
	d.list.SetDescriptorHeap(d.shaderViews.Heap())

	d.width, d.height = d.window.ClientSize()
	d.list.SetViewport(metadata.Viewport{
		Width:    float32(d.width),
		Height:   float32(d.height),
		MinDepth: 0,
		MaxDepth: 1,
	})
	d.list.SetScissorRect(metadata.Rect{Right: int32(d.width), Bottom: int32(d.height)})

	if err := d.bindPipeline(metadata.FillModeSolid, metadata.BlendModeNormal); err != nil {
		return err
	}

	d.debug.Update()
	return nil
}

// DrawSet queues obj for this frame.
func (d *FrameDrawer) DrawSet(obj components.Drawable) error {
	if obj == nil {
		return core.NilDependency("drawable")
	}
	if !d.sc.Recording() {
		return errors.Wrap(core.ErrFrameBracket, "DrawSet outside PreDraw/PostDraw")
	}
	if !d.classify {
		d.opaque = append(d.opaque, obj)
		return nil
	}
	base := obj.Base()
	switch {
	case base.Camera == nil:
		d.flat = append(d.flat, obj)
	case base.Material.Alpha() < 1:
		d.alpha = append(d.alpha, obj)
	default:
		d.opaque = append(d.opaque, obj)
	}
	return nil
}

// SetDirectionalLight sets the light for the current frame only.
func (d *FrameDrawer) SetDirectionalLight(light components.DirectionalLight) {
	d.light = &light
}

// SetBlendMode selects the blend mode used to draw the queued objects.
// It is reset to Normal by every PreDraw.
func (d *FrameDrawer) SetBlendMode(mode metadata.BlendMode) {
	d.blend = mode
}

func (d *FrameDrawer) BlendMode() metadata.BlendMode {
	return d.blend
}

// PostDraw records every queued object, lets the overlay draw on top,
// submits the frame and sleeps what is left of the frame budget.
func (d *FrameDrawer) PostDraw() error {
	if !d.sc.Recording() {
		return errors.Wrap(core.ErrFrameBracket, "PostDraw called without PreDraw")
	}

	light := components.DefaultDirectionalLight()
	if d.light != nil {
		light = *d.light
	}
	constants := light.Constants()
	if err := renderer.WriteStruct(d.lightBuffer, 0, &constants); err != nil {
		return errors.Wrap(err, "write light constants")
	}

	if d.classify {
		d.sortAlpha()
	}
	for _, list := range [][]components.Drawable{d.opaque, d.alpha, d.flat} {
		for _, obj := range list {
			if err := obj.Accept(d.visitor); err != nil {
				return errors.Wrapf(err, "draw %s", obj.Base().Name)
			}
		}
	}

	if err := d.overlay.EndFrame(d.list); err != nil {
		return errors.Wrap(err, "overlay")
	}
	if err := d.sc.PostDraw(); err != nil {
		return err
	}

	frame := d.pacer.Wait()
	d.metrics.Update(frame)
	return nil
}

// sortAlpha orders translucent objects from the farthest to the nearest.
func (d *FrameDrawer) sortAlpha() {
	distance := func(obj components.Drawable) float32 {
		base := obj.Base()
		return d.cameraFor(base).DistanceTo(base.Center())
	}
	slices.SortStableFunc(d.alpha, func(a, b components.Drawable) int {
		return cmp.Compare(distance(b), distance(a))
	})
}

func (d *FrameDrawer) cameraFor(o *components.Object) *components.Camera {
	if d.debug.Active() {
		return d.debug.Camera()
	}
	return o.Camera
}

func (d *FrameDrawer) bindPipeline(fill metadata.FillMode, blend metadata.BlendMode) error {
	entry := d.pipelines.Get(fill, blend)
	if entry == nil {
		return errors.Newf("no pipeline for fill %s blend %s", fill, blend)
	}
	if entry.Pipeline == d.bound {
		return nil
	}
	d.list.SetBindingLayout(entry.Layout)
	d.list.SetPipelineState(entry.Pipeline)
	d.list.SetPrimitiveTopology(metadata.PrimitiveTopologyTriangleList)
	d.bound = entry.Pipeline
	return nil
}

// drawCommon writes the per-object constants, binds the object's state and
// records its draw call.
func (d *FrameDrawer) drawCommon(o *components.Object) error {
	if o.Camera == nil && (d.width == 0 || d.height == 0) {
		// no screen to project onto
		return nil
	}

	material := o.Material.Constants()
	if err := renderer.WriteStruct(o.MaterialBuffer(), 0, &material); err != nil {
		return errors.Wrap(err, "write material constants")
	}

	world := o.Transform.World()
	var wvp mgl32.Mat4
	if o.Camera == nil {
		// screen space, origin in the top-left corner
		wvp = mgl32.Ortho(0, float32(d.width), float32(d.height), 0, -1, 1).Mul4(world)
	} else {
		camera := d.cameraFor(o)
		if d.height > 0 {
			camera.SetAspect(float32(d.width) / float32(d.height))
		}
		camera.Update()
		wvp = camera.ViewProjection().Mul4(world)
	}
	transform := metadata.TransformConstants{WVP: wvp, World: world}
	if err := renderer.WriteStruct(o.TransformBuffer(), 0, &transform); err != nil {
		return errors.Wrap(err, "write transform constants")
	}

	texture, ok := d.textures.Handle(o.Texture)
	if !ok {
		texture, _ = d.textures.Handle(0)
	}

	if err := o.UploadVertices(); err != nil {
		return err
	}
	d.list.SetVertexBuffer(o.Mesh.VertexView)
	if o.Mesh.Indexed() {
		d.list.SetIndexBuffer(o.Mesh.IndexView)
	}
	if err := d.bindPipeline(o.Fill, d.blend); err != nil {
		return err
	}
	d.list.SetConstantBuffer(metadata.BindingParamMaterial, o.MaterialBuffer().Address())
	d.list.SetConstantBuffer(metadata.BindingParamTransform, o.TransformBuffer().Address())
	d.list.SetDescriptorTable(metadata.BindingParamTextureTable, texture)
	d.list.SetConstantBuffer(metadata.BindingParamLight, d.lightBuffer.Address())

	if o.Mesh.Indexed() {
		d.list.DrawIndexedInstanced(o.Mesh.IndexCount, 1, 0, 0, 0)
	} else {
		d.list.DrawInstanced(o.Mesh.VertexCount, 1, 0, 0)
	}
	return nil
}

// SetTargetFrameRate changes the pacing target, used by config reloads.
func (d *FrameDrawer) SetTargetFrameRate(rate float64) {
	d.pacer.SetRate(rate)
}

func (d *FrameDrawer) Metrics() *core.FrameMetrics {
	return d.metrics
}

func (d *FrameDrawer) DebugCamera() *DebugCamera {
	return d.debug
}

// Queued returns the sizes of the opaque, alpha and 2D lists.
func (d *FrameDrawer) Queued() (opaque, alpha, flat int) {
	return len(d.opaque), len(d.alpha), len(d.flat)
}

func (d *FrameDrawer) Destroy() {
	if d.lightBuffer != nil {
		d.lightBuffer.Destroy()
		d.lightBuffer = nil
	}
}

// objectVisitor computes the variant-specific normals and hands the object
// to drawCommon.
type objectVisitor struct {
	d *FrameDrawer
}

func (v *objectVisitor) VisitTriangle(t *components.Triangle) error {
	t.ComputeNormals()
	return v.d.drawCommon(&t.Object)
}

func (v *objectVisitor) VisitSprite(s *components.Sprite) error {
	s.ComputeNormals()
	return v.d.drawCommon(&s.Object)
}

func (v *objectVisitor) VisitSphere(s *components.Sphere) error {
	s.ComputeNormals()
	return v.d.drawCommon(&s.Object)
}

func (v *objectVisitor) VisitBillboard(b *components.Billboard) error {
	b.FaceCamera(v.d.cameraFor(&b.Object))
	b.ComputeNormals()
	return v.d.drawCommon(&b.Object)
}

func (v *objectVisitor) VisitModelMesh(m *components.ModelMesh) error {
	m.ComputeNormals()
	return v.d.drawCommon(&m.Object)
}

func (v *objectVisitor) VisitTetrahedron(t *components.Tetrahedron) error {
	t.ComputeNormals()
	return v.d.drawCommon(&t.Object)
}

package renderer_test

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/renderer"
	"github.com/spaghettifunk/prism/engine/renderer/metadata"
	"github.com/spaghettifunk/prism/engine/renderer/rendertest"
)

func newContext(t *testing.T, dev *rendertest.Device) *renderer.SubmissionContext {
	t.Helper()
	sc, err := renderer.NewSubmissionContext(dev, renderer.SubmissionConfig{
		Width:      640,
		Height:     480,
		ClearColor: metadata.Color{0.1, 0.2, 0.3, 1},
	})
	require.NoError(t, err)
	rtv, err := renderer.NewResourceViewAllocator(dev, "targets", metadata.HeapTypeRenderTarget, renderer.PresentBufferCount)
	require.NoError(t, err)
	dsv, err := renderer.NewResourceViewAllocator(dev, "depth", metadata.HeapTypeDepthStencil, 1)
	require.NoError(t, err)
	require.NoError(t, sc.BindTargets(rtv, dsv))
	return sc
}

func TestAllocatorExhaustion(t *testing.T) {
	dev := rendertest.NewDevice()
	a, err := renderer.NewResourceViewAllocator(dev, "shader", metadata.HeapTypeShaderResource, 128)
	require.NoError(t, err)

	for i := uint32(0); i < 128; i++ {
		s, err := a.Allocate()
		require.NoError(t, err)
		assert.Equal(t, i, s.Index)
		assert.Equal(t, metadata.HeapTypeShaderResource, s.Handle.Heap)
	}
	_, err = a.Allocate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrSlotOverflow))
	assert.Contains(t, err.Error(), "capacity 128")
	assert.Contains(t, err.Error(), "requested index 128")
	assert.EqualValues(t, 128, a.Used())
}

func TestAllocatorDirectIndex(t *testing.T) {
	dev := rendertest.NewDevice()
	a, err := renderer.NewResourceViewAllocator(dev, "targets", metadata.HeapTypeRenderTarget, 2)
	require.NoError(t, err)

	s, err := a.AllocateAt(1)
	require.NoError(t, err)
	assert.EqualValues(t, 1, s.Index)
	assert.EqualValues(t, 2, a.Used())

	// rewriting a fixed slot is allowed
	s, err = a.AllocateAt(0)
	require.NoError(t, err)
	assert.EqualValues(t, 0, s.Index)
	assert.EqualValues(t, 2, a.Used())

	_, err = a.AllocateAt(2)
	assert.True(t, errors.Is(err, core.ErrSlotOverflow))
	_, err = a.Allocate()
	assert.True(t, errors.Is(err, core.ErrSlotOverflow))
}

func TestAllocatorCreationFailure(t *testing.T) {
	dev := rendertest.NewDevice()
	dev.Fail["CreateDescriptorHeap"] = errors.New("out of memory")
	_, err := renderer.NewResourceViewAllocator(dev, "shader", metadata.HeapTypeShaderResource, 128)
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrDeviceCreation))
	assert.Contains(t, err.Error(), "capacity 128")

	_, err = renderer.NewResourceViewAllocator(nil, "shader", metadata.HeapTypeShaderResource, 1)
	assert.True(t, errors.Is(err, core.ErrNilDependency))
}

func TestPipelineCacheCompleteness(t *testing.T) {
	dev := rendertest.NewDevice()
	cache, err := renderer.NewPipelineStateCache(dev, renderer.ShaderSet{Vertex: []byte{1}, Pixel: []byte{2}},
		metadata.FormatBGRA8Unorm, metadata.FormatD32Float, 128)
	require.NoError(t, err)
	assert.Equal(t, 14, cache.Len())

	seen := map[*renderer.PipelineEntry]bool{}
	for _, fill := range metadata.AllFillModes() {
		for _, blend := range metadata.AllBlendModes() {
			e := cache.Get(fill, blend)
			require.NotNil(t, e, "%s/%s", fill, blend)
			assert.False(t, seen[e])
			seen[e] = true

			desc := e.Pipeline.Desc()
			assert.Equal(t, fill, desc.Fill)
			assert.Equal(t, blend, desc.Blend)
			assert.Equal(t, blend != metadata.BlendModeNone, desc.BlendDesc.Enable)
			assert.Equal(t, metadata.VertexStride, desc.VertexStride)
			assert.Len(t, desc.InputLayout, 3)
		}
	}
	assert.Len(t, seen, 14)
	assert.Len(t, dev.Pipelines, 14)
	assert.Nil(t, cache.Get(metadata.FillMode(2), metadata.BlendModeNone))
	assert.Nil(t, cache.Get(metadata.FillModeSolid, metadata.BlendMode(7)))

	cache.Destroy()
	for _, p := range dev.Pipelines {
		assert.True(t, p.Destroyed)
	}
}

func TestPipelineCacheFailure(t *testing.T) {
	dev := rendertest.NewDevice()
	dev.Fail["CreatePipelineState"] = errors.New("bad shader")
	_, err := renderer.NewPipelineStateCache(dev, renderer.ShaderSet{Vertex: []byte{1}, Pixel: []byte{2}},
		metadata.FormatBGRA8Unorm, metadata.FormatD32Float, 128)
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrDeviceCreation))
	assert.Contains(t, err.Error(), "fill Solid blend None")

	_, err = renderer.NewPipelineStateCache(rendertest.NewDevice(), renderer.ShaderSet{}, metadata.FormatBGRA8Unorm, metadata.FormatD32Float, 128)
	assert.True(t, errors.Is(err, core.ErrDeviceCreation))
}

func TestBlendEquations(t *testing.T) {
	sub := metadata.BlendDescFor(metadata.BlendModeSubtract)
	assert.Equal(t, metadata.BlendOpReverseSubtract, sub.ColorOp)
	assert.Equal(t, metadata.BlendFactorSrcAlpha, sub.SrcColor)
	assert.Equal(t, metadata.BlendFactorOne, sub.DstColor)

	mul := metadata.BlendDescFor(metadata.BlendModeMultiply)
	assert.Equal(t, metadata.BlendFactorZero, mul.SrcColor)
	assert.Equal(t, metadata.BlendFactorSrcColor, mul.DstColor)

	exc := metadata.BlendDescFor(metadata.BlendModeExclusion)
	assert.Equal(t, metadata.BlendFactorInvDstColor, exc.SrcColor)
	assert.Equal(t, metadata.BlendFactorInvSrcColor, exc.DstColor)

	assert.False(t, metadata.BlendDescFor(metadata.BlendModeNone).Enable)
}

func TestBracketOrdering(t *testing.T) {
	dev := rendertest.NewDevice()
	sc := newContext(t, dev)

	err := sc.PostDraw()
	assert.True(t, errors.Is(err, core.ErrFrameBracket))

	require.NoError(t, sc.PreDraw())
	assert.True(t, sc.Recording())
	err = sc.PreDraw()
	assert.True(t, errors.Is(err, core.ErrFrameBracket))

	require.NoError(t, sc.PostDraw())
	assert.False(t, sc.Recording())
	assert.True(t, errors.Is(sc.PostDraw(), core.ErrFrameBracket))
	assert.Empty(t, dev.Errors)
}

func TestFrameSequence(t *testing.T) {
	dev := rendertest.NewDevice()
	sc := newContext(t, dev)

	for frame := 0; frame < 3; frame++ {
		require.NoError(t, sc.PreDraw())
		require.NoError(t, sc.PostDraw())
	}
	assert.EqualValues(t, 3, sc.Frames())
	assert.Empty(t, dev.Errors, "barriers and presents must see the expected states")

	kinds := dev.Kinds()
	expected := []rendertest.OpKind{
		rendertest.OpBarrier, rendertest.OpSetRenderTargets, rendertest.OpClearRenderTarget,
		rendertest.OpClearDepthStencil, rendertest.OpBarrier, rendertest.OpPresent, rendertest.OpSignal,
	}
	require.Len(t, kinds, 3*len(expected))
	assert.Equal(t, expected, kinds[:len(expected)])

	// the ring alternates between the two buffers
	presents := dev.Ops(rendertest.OpPresent)
	assert.EqualValues(t, 0, presents[0].Count)
	assert.EqualValues(t, 1, presents[1].Count)
	assert.EqualValues(t, 0, presents[2].Count)

	clears := dev.Ops(rendertest.OpClearRenderTarget)
	assert.Equal(t, metadata.Color{0.1, 0.2, 0.3, 1}, clears[0].Color)
	assert.EqualValues(t, 1, clears[1].Target.Index)

	signals := dev.Ops(rendertest.OpSignal)
	assert.EqualValues(t, 3, signals[2].Value)
	assert.EqualValues(t, 3, sc.Fence().Completed())
}

func TestFenceBlocksWhenGPULags(t *testing.T) {
	dev := rendertest.NewDevice()
	dev.GPULag = true
	sc := newContext(t, dev)

	require.NoError(t, sc.PreDraw())
	require.NoError(t, sc.PostDraw())
	require.NoError(t, sc.PreDraw())
	require.NoError(t, sc.PostDraw())

	require.Len(t, dev.Fences, 1)
	assert.Equal(t, 2, dev.Fences[0].Waits)
	assert.EqualValues(t, 2, sc.Fence().Completed())
}

func TestFenceWaitFailureIsFatal(t *testing.T) {
	dev := rendertest.NewDevice()
	dev.GPULag = true
	sc := newContext(t, dev)
	dev.Fail["Wait"] = errors.New("device lost")

	require.NoError(t, sc.PreDraw())
	err := sc.PostDraw()
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrFenceWait))
	// the context refuses to continue
	assert.True(t, errors.Is(sc.PreDraw(), core.ErrFrameBracket))
}

func TestResizeKeepsSlots(t *testing.T) {
	dev := rendertest.NewDevice()
	sc := newContext(t, dev)

	require.NoError(t, sc.PreDraw())
	assert.True(t, errors.Is(sc.Resize(800, 600), core.ErrFrameBracket))
	require.NoError(t, sc.PostDraw())

	require.NoError(t, sc.Resize(800, 600))
	require.NoError(t, sc.PreDraw())
	require.NoError(t, sc.PostDraw())
	assert.Empty(t, dev.Errors)

	// target heap still only uses slots 0 and 1
	targets := dev.Heaps[0]
	assert.Len(t, targets.Views, 2)
	assert.EqualValues(t, 800, targets.Views[0].Width())
}

func TestSubmissionContextCreationFailure(t *testing.T) {
	dev := rendertest.NewDevice()
	dev.Fail["CreateSwapChain"] = errors.New("no surface")
	_, err := renderer.NewSubmissionContext(dev, renderer.SubmissionConfig{Width: 640, Height: 480})
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrDeviceCreation))
	assert.Contains(t, err.Error(), "640x480")
}

func TestBufferMeshFactory(t *testing.T) {
	dev := rendertest.NewDevice()
	f, err := renderer.NewBufferMeshFactory(dev)
	require.NoError(t, err)

	b, err := f.CreateBuffer(96)
	require.NoError(t, err)
	assert.EqualValues(t, 96, b.Size())

	m, err := f.CreateMesh(3, 3)
	require.NoError(t, err)
	assert.True(t, m.Indexed())
	assert.EqualValues(t, 3*metadata.VertexStride, m.VertexView.Size)
	assert.Equal(t, metadata.VertexStride, m.VertexView.Stride)
	assert.EqualValues(t, 12, m.IndexView.Size)
	assert.Equal(t, metadata.FormatR32Uint, m.IndexView.Format)

	verts := []metadata.Vertex{
		{Position: mgl32.Vec4{-0.5, -0.5, 0, 1}},
		{Position: mgl32.Vec4{0, 0.5, 0, 1}},
		{Position: mgl32.Vec4{0.5, -0.5, 0, 1}},
	}
	require.NoError(t, m.WriteVertices(verts))
	require.NoError(t, m.WriteIndices([]uint32{0, 1, 2}))
	assert.Error(t, m.WriteIndices([]uint32{0, 1, 2, 3}))

	got, err := renderer.ReadStruct[metadata.Vertex](m.VertexBuffer, uint64(metadata.VertexStride))
	require.NoError(t, err)
	assert.Equal(t, verts[1], got)

	nonIndexed, err := f.CreateMesh(4, 0)
	require.NoError(t, err)
	assert.False(t, nonIndexed.Indexed())
	assert.Error(t, nonIndexed.WriteIndices([]uint32{0}))

	dev.Fail["CreateUploadBuffer"] = errors.New("heap full")
	_, err = f.CreateBuffer(4096)
	assert.True(t, errors.Is(err, core.ErrDeviceCreation))
	assert.Contains(t, err.Error(), "size 4096")
}

func TestWriteStructBounds(t *testing.T) {
	dev := rendertest.NewDevice()
	f, err := renderer.NewBufferMeshFactory(dev)
	require.NoError(t, err)
	b, err := f.CreateBuffer(uint64(metadata.LightConstantsSize))
	require.NoError(t, err)

	light := metadata.LightConstants{Color: mgl32.Vec4{1, 1, 1, 1}, Direction: mgl32.Vec3{0, -1, 0}, Intensity: 1}
	require.NoError(t, renderer.WriteStruct(b, 0, &light))
	assert.Error(t, renderer.WriteStruct(b, 4, &light))

	back, err := renderer.ReadStruct[metadata.LightConstants](b, 0)
	require.NoError(t, err)
	assert.Equal(t, light, back)
}

package overlay

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/prism/engine/assets"
	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/renderer"
	"github.com/spaghettifunk/prism/engine/renderer/metadata"
	"github.com/spaghettifunk/prism/engine/renderer/rendertest"
)

type window struct{}

func (window) ClientSize() (uint32, uint32) { return 800, 600 }

func testFont() *assets.Font {
	return &assets.Font{
		Face:       "test",
		LineHeight: 16,
		Glyphs: map[rune]assets.Glyph{
			'F': {X: 0, Y: 0, Width: 8, Height: 12, XAdvance: 9},
			'P': {X: 8, Y: 0, Width: 8, Height: 12, XAdvance: 9},
			'S': {X: 16, Y: 0, Width: 8, Height: 12, XAdvance: 9},
			' ': {XAdvance: 4},
		},
		Kerning: map[[2]rune]int{},
		Atlas:   assets.Solid(32, 16, 255, 255, 255, 255),
	}
}

func newStats(t *testing.T) (*Stats, *rendertest.Device, renderer.CommandList) {
	t.Helper()
	dev := rendertest.NewDevice()
	views, err := renderer.NewResourceViewAllocator(dev, "shader views", metadata.HeapTypeShaderResource, 4)
	require.NoError(t, err)
	textures, err := assets.NewTextureManager(dev, views, t.TempDir())
	require.NoError(t, err)
	pipelines, err := renderer.NewPipelineStateCache(dev, renderer.ShaderSet{Vertex: []byte{1}, Pixel: []byte{1}},
		metadata.FormatBGRA8Unorm, metadata.FormatD32Float, views.Capacity())
	require.NoError(t, err)
	factory, err := renderer.NewBufferMeshFactory(dev)
	require.NoError(t, err)

	s, err := NewStats(Dependencies{
		Factory:   factory,
		Pipelines: pipelines,
		Textures:  textures,
		Window:    window{},
		Metrics:   core.NewFrameMetrics(),
		Font:      testFont(),
	})
	require.NoError(t, err)

	alloc, err := dev.CreateCommandAllocator()
	require.NoError(t, err)
	list, err := dev.CreateCommandList(alloc)
	require.NoError(t, err)
	return s, dev, list
}

func TestStatsUsesItsOwnSlot(t *testing.T) {
	s, dev, _ := newStats(t)
	assert.EqualValues(t, 1, s.atlas)
	assert.NotNil(t, dev.Heaps[0].Views[1])
}

func TestStatsLayout(t *testing.T) {
	s, _, _ := newStats(t)
	vertices := s.layout("FPS ?")
	// the space has no quad and the unknown rune is skipped
	require.Len(t, vertices, 12)
	assert.Equal(t, float32(8), vertices[1].Position.X())
	assert.Equal(t, float32(8+9), vertices[5].Position.X())
	assert.Equal(t, float32(0.25), vertices[4].UV.X())
}

func TestStatsEndFrame(t *testing.T) {
	s, dev, list := newStats(t)
	s.BeginFrame()
	require.Contains(t, s.Text(), "FPS")
	require.NoError(t, s.EndFrame(list))
	require.NoError(t, list.Close())
	queue, err := dev.CreateCommandQueue()
	require.NoError(t, err)
	require.NoError(t, queue.ExecuteCommandList(list))

	draws := dev.Ops(rendertest.OpDrawIndexed)
	require.Len(t, draws, 1)
	// "FPS" draws three quads, the digits are not in the font
	assert.EqualValues(t, 18, draws[0].Count)
	tables := dev.Ops(rendertest.OpSetDescriptorTable)
	require.Len(t, tables, 1)
	assert.EqualValues(t, 1, tables[0].Handle.Index)
	assert.Empty(t, dev.Errors)
}

func TestHiddenStatsDrawNothing(t *testing.T) {
	s, _, list := newStats(t)
	s.Visible = false
	s.BeginFrame()
	require.NoError(t, s.EndFrame(list))
	assert.Empty(t, list.(*rendertest.CommandList).Pending())
}

func TestStatsDependencies(t *testing.T) {
	_, err := NewStats(Dependencies{})
	assert.ErrorIs(t, err, core.ErrNilDependency)

	var n Nop
	n.BeginFrame()
	assert.NoError(t, n.EndFrame(nil))
}

package overlay

import (
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/go-gl/mathgl/mgl32"

	"github.com/spaghettifunk/prism/engine/assets"
	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/renderer"
	"github.com/spaghettifunk/prism/engine/renderer/components"
	"github.com/spaghettifunk/prism/engine/renderer/metadata"
)

// MaxCharacters is the most glyphs the stats overlay draws in one frame.
const MaxCharacters = 256

// Nop draws nothing.
type Nop struct{}

func (Nop) BeginFrame() {}

func (Nop) EndFrame(renderer.CommandList) error { return nil }

type Window interface {
	ClientSize() (uint32, uint32)
}

// Dependencies of the stats overlay.
type Dependencies struct {
	Factory   *renderer.BufferMeshFactory
	Pipelines *renderer.PipelineStateCache
	Textures  *assets.TextureManager
	Window    Window
	Metrics   *core.FrameMetrics
	Font      *assets.Font
}

// Stats prints the frame rate and frame time in the top-left corner. It
// uploads its font atlas into its own shader-view slot and records its
// draw at the end of the frame command list.
type Stats struct {
	pipelines *renderer.PipelineStateCache
	textures  *assets.TextureManager
	window    Window
	metrics   *core.FrameMetrics
	font      *assets.Font
	atlas     uint32

	mesh      *renderer.Mesh
	material  renderer.Buffer
	transform renderer.Buffer
	light     renderer.Buffer

	Visible  bool
	Position mgl32.Vec2
	Color    mgl32.Vec4

	text     string
	vertices []metadata.Vertex
	indices  []uint32
}

func NewStats(deps Dependencies) (*Stats, error) {
	switch {
	case deps.Factory == nil:
		return nil, core.NilDependency("buffer mesh factory")
	case deps.Pipelines == nil:
		return nil, core.NilDependency("pipeline state cache")
	case deps.Textures == nil:
		return nil, core.NilDependency("texture manager")
	case deps.Window == nil:
		return nil, core.NilDependency("window")
	case deps.Metrics == nil:
		return nil, core.NilDependency("frame metrics")
	case deps.Font == nil || deps.Font.Atlas == nil:
		return nil, core.NilDependency("font")
	}

	atlas, err := deps.Textures.Upload("overlay font "+deps.Font.Face, deps.Font.Atlas)
	if err != nil {
		return nil, err
	}
	mesh, err := deps.Factory.CreateMesh(MaxCharacters*4, MaxCharacters*6)
	if err != nil {
		return nil, err
	}
	s := &Stats{
		pipelines: deps.Pipelines,
		textures:  deps.Textures,
		window:    deps.Window,
		metrics:   deps.Metrics,
		font:      deps.Font,
		atlas:     atlas,
		mesh:      mesh,
		Visible:   true,
		Position:  mgl32.Vec2{8, 8},
		Color:     mgl32.Vec4{1, 1, 1, 1},
		vertices:  make([]metadata.Vertex, 0, MaxCharacters*4),
		indices:   make([]uint32, 0, MaxCharacters*6),
	}

	// quad indices never change
	for q := uint32(0); q < MaxCharacters; q++ {
		base := q * 4
		s.indices = append(s.indices, base, base+1, base+2, base, base+2, base+3)
	}
	if err := mesh.WriteIndices(s.indices); err != nil {
		s.Destroy()
		return nil, err
	}

	buffers := []struct {
		dst  *renderer.Buffer
		size uint32
	}{
		{&s.material, metadata.MaterialConstantsSize},
		{&s.transform, metadata.TransformConstantsSize},
		{&s.light, metadata.LightConstantsSize},
	}
	for _, b := range buffers {
		if *b.dst, err = deps.Factory.CreateBuffer(uint64(b.size)); err != nil {
			s.Destroy()
			return nil, err
		}
	}
	light := components.DefaultDirectionalLight().Constants()
	if err := renderer.WriteStruct(s.light, 0, &light); err != nil {
		s.Destroy()
		return nil, err
	}
	return s, nil
}

// BeginFrame formats the text from the metrics of the previous frames.
func (s *Stats) BeginFrame() {
	s.text = fmt.Sprintf("FPS %.0f  %.2f ms", s.metrics.FPS(), s.metrics.FrameTime())
}

func (s *Stats) Text() string {
	return s.text
}

// layout builds one quad per printable glyph of text, in pixels.
func (s *Stats) layout(text string) []metadata.Vertex {
	s.vertices = s.vertices[:0]
	atlasW := float32(s.font.Atlas.Width)
	atlasH := float32(s.font.Atlas.Height)
	x, y := s.Position.X(), s.Position.Y()

	runes := []rune(text)
	for i, r := range runes {
		if len(s.vertices) == MaxCharacters*4 {
			break
		}
		var next rune
		if i+1 < len(runes) {
			next = runes[i+1]
		}
		g, ok := s.font.Glyphs[r]
		if !ok {
			continue
		}
		if g.Width > 0 && g.Height > 0 {
			x0 := x + float32(g.XOffset)
			y0 := y + float32(g.YOffset)
			x1 := x0 + float32(g.Width)
			y1 := y0 + float32(g.Height)
			u0, v0 := float32(g.X)/atlasW, float32(g.Y)/atlasH
			u1, v1 := float32(g.X+g.Width)/atlasW, float32(g.Y+g.Height)/atlasH
			s.vertices = append(s.vertices,
				glyphVertex(x0, y1, u0, v1),
				glyphVertex(x0, y0, u0, v0),
				glyphVertex(x1, y0, u1, v0),
				glyphVertex(x1, y1, u1, v1),
			)
		}
		x += float32(s.font.Advance(r, next))
	}
	return s.vertices
}

func glyphVertex(x, y, u, v float32) metadata.Vertex {
	return metadata.Vertex{
		Position: mgl32.Vec4{x, y, 0, 1},
		Normal:   components.FlatNormal,
		UV:       mgl32.Vec2{u, v},
	}
}

// EndFrame records the text draw into list.
func (s *Stats) EndFrame(list renderer.CommandList) error {
	if !s.Visible || s.text == "" {
		return nil
	}
	vertices := s.layout(s.text)
	if len(vertices) == 0 {
		return nil
	}
	if err := s.mesh.WriteVertices(vertices); err != nil {
		return err
	}

	material := components.Material{Color: s.Color, UVScale: mgl32.Vec2{1, 1}}.Constants()
	if err := renderer.WriteStruct(s.material, 0, &material); err != nil {
		return err
	}
	w, h := s.window.ClientSize()
	projection := mgl32.Ortho(0, float32(w), float32(h), 0, -1, 1)
	transform := metadata.TransformConstants{WVP: projection, World: mgl32.Ident4()}
	if err := renderer.WriteStruct(s.transform, 0, &transform); err != nil {
		return err
	}

	entry := s.pipelines.Get(metadata.FillModeSolid, metadata.BlendModeNormal)
	if entry == nil {
		return errors.New("no solid pipeline for the overlay")
	}
	handle, ok := s.textures.Handle(s.atlas)
	if !ok {
		return errors.Newf("overlay font slot %d is gone", s.atlas)
	}

	list.SetBindingLayout(entry.Layout)
	list.SetPipelineState(entry.Pipeline)
	list.SetPrimitiveTopology(metadata.PrimitiveTopologyTriangleList)
	list.SetVertexBuffer(s.mesh.VertexView)
	list.SetIndexBuffer(s.mesh.IndexView)
	list.SetConstantBuffer(metadata.BindingParamMaterial, s.material.Address())
	list.SetConstantBuffer(metadata.BindingParamTransform, s.transform.Address())
	list.SetDescriptorTable(metadata.BindingParamTextureTable, handle)
	list.SetConstantBuffer(metadata.BindingParamLight, s.light.Address())
	list.DrawIndexedInstanced(uint32(len(vertices)/4*6), 1, 0, 0, 0)
	return nil
}

func (s *Stats) Destroy() {
	if s.mesh != nil {
		s.mesh.Destroy()
		s.mesh = nil
	}
	for _, b := range []renderer.Buffer{s.material, s.transform, s.light} {
		if b != nil {
			b.Destroy()
		}
	}
	s.material, s.transform, s.light = nil, nil, nil
}

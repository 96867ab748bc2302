package renderer

import (
	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/renderer/metadata"
)

// PipelineEntry is one immutable binding layout and pipeline pair.
type PipelineEntry struct {
	Fill     metadata.FillMode
	Blend    metadata.BlendMode
	Layout   BindingLayout
	Pipeline PipelineState
}

// ShaderSet holds the compiled vertex and pixel shader binaries.
type ShaderSet struct {
	Vertex []byte
	Pixel  []byte
}

// PipelineStateCache holds one entry per (fill mode, blend mode) pair,
// built once at startup.
type PipelineStateCache struct {
	entries [metadata.FillModeCount][metadata.BlendModeCount]*PipelineEntry
}

// NewPipelineStateCache builds every combination. Any failure is returned
// with the failing key; the caller treats it as fatal.
func NewPipelineStateCache(device Device, shaders ShaderSet, targetFormat, depthFormat metadata.Format, textureTableSize uint32) (*PipelineStateCache, error) {
	if device == nil {
		return nil, core.NilDependency("device")
	}
	if len(shaders.Vertex) == 0 || len(shaders.Pixel) == 0 {
		return nil, core.CreationFailed(nil, "create pipeline cache: empty shader binaries (vertex %d bytes, pixel %d bytes)",
			len(shaders.Vertex), len(shaders.Pixel))
	}

	c := &PipelineStateCache{}
	for _, fill := range metadata.AllFillModes() {
		for _, blend := range metadata.AllBlendModes() {
			layout, err := device.CreateBindingLayout(metadata.BindingLayoutDesc{
				Params: []metadata.BindingParam{
					metadata.BindingParamMaterial,
					metadata.BindingParamTransform,
					metadata.BindingParamTextureTable,
					metadata.BindingParamLight,
				},
				TextureTableSize: textureTableSize,
			})
			if err != nil {
				c.Destroy()
				return nil, core.CreationFailed(err, "create binding layout fill %s blend %s", fill, blend)
			}

			desc := metadata.PipelineStateDesc{
				Fill:               fill,
				Blend:              blend,
				BlendDesc:          metadata.BlendDescFor(blend),
				CullMode:           metadata.FaceCullModeNone,
				Topology:           metadata.PrimitiveTopologyTriangleList,
				VertexShader:       shaders.Vertex,
				PixelShader:        shaders.Pixel,
				InputLayout:        metadata.VertexInputLayout,
				VertexStride:       metadata.VertexStride,
				RenderTargetFormat: targetFormat,
				DepthFormat:        depthFormat,
				DepthTest:          true,
			}
			pipeline, err := device.CreatePipelineState(layout, desc)
			if err != nil {
				layout.Destroy()
				c.Destroy()
				return nil, core.CreationFailed(err, "create pipeline state fill %s blend %s target %s depth %s",
					fill, blend, targetFormat, depthFormat)
			}
			c.entries[fill][blend] = &PipelineEntry{
				Fill:     fill,
				Blend:    blend,
				Layout:   layout,
				Pipeline: pipeline,
			}
		}
	}
	core.LogDebug("pipeline cache built with %d entries", c.Len())
	return c, nil
}

// Get returns the entry for the pair or nil when the pair is not one of
// the enumerated modes.
func (c *PipelineStateCache) Get(fill metadata.FillMode, blend metadata.BlendMode) *PipelineEntry {
	if int(fill) >= metadata.FillModeCount || int(blend) >= metadata.BlendModeCount {
		return nil
	}
	return c.entries[fill][blend]
}

// Len is the number of registered entries.
func (c *PipelineStateCache) Len() int {
	n := 0
	for _, row := range c.entries {
		for _, e := range row {
			if e != nil {
				n++
			}
		}
	}
	return n
}

func (c *PipelineStateCache) Destroy() {
	for f := range c.entries {
		for b, e := range c.entries[f] {
			if e == nil {
				continue
			}
			e.Pipeline.Destroy()
			e.Layout.Destroy()
			c.entries[f][b] = nil
		}
	}
}

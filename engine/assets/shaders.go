package assets

import (
	"encoding/binary"
	"os"

	"github.com/cockroachdb/errors"

	"github.com/spaghettifunk/prism/engine/renderer"
)

const spirvMagic uint32 = 0x07230203

// LoadShader reads a compiled SPIR-V module and checks its header.
func LoadShader(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read shader %s", path)
	}
	if len(data) < 20 || len(data)%4 != 0 {
		return nil, errors.Newf("shader %s: %d bytes is not a SPIR-V module", path, len(data))
	}
	if magic := binary.LittleEndian.Uint32(data); magic != spirvMagic {
		return nil, errors.Newf("shader %s: bad SPIR-V magic %#08x", path, magic)
	}
	return data, nil
}

// LoadShaderSet loads the vertex and pixel stage shared by every pipeline.
func LoadShaderSet(vertexPath, pixelPath string) (renderer.ShaderSet, error) {
	vertex, err := LoadShader(vertexPath)
	if err != nil {
		return renderer.ShaderSet{}, err
	}
	pixel, err := LoadShader(pixelPath)
	if err != nil {
		return renderer.ShaderSet{}, err
	}
	return renderer.ShaderSet{Vertex: vertex, Pixel: pixel}, nil
}

package assets

import (
	"context"
	"encoding/binary"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/renderer"
	"github.com/spaghettifunk/prism/engine/renderer/metadata"
	"github.com/spaghettifunk/prism/engine/renderer/rendertest"
)

func writePNG(t *testing.T, path string, w, h int, c color.RGBA) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	// write then rename so the watcher never sees a half-written file
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())
	require.NoError(t, os.Rename(tmp, path))
}

func newManager(t *testing.T, capacity uint32) (*TextureManager, *rendertest.Device, string) {
	t.Helper()
	dev := rendertest.NewDevice()
	views, err := renderer.NewResourceViewAllocator(dev, "shader views", metadata.HeapTypeShaderResource, capacity)
	require.NoError(t, err)
	root := t.TempDir()
	tm, err := NewTextureManager(dev, views, root)
	require.NoError(t, err)
	t.Cleanup(func() { _ = tm.Close() })
	return tm, dev, root
}

func TestDefaultTexture(t *testing.T) {
	tm, dev, _ := newManager(t, 8)
	h, ok := tm.Handle(DefaultTexture)
	require.True(t, ok)
	assert.EqualValues(t, 0, h.Index)

	tex := tm.Texture(DefaultTexture).(*rendertest.Texture)
	assert.Equal(t, []byte{255, 255, 255, 255}, tex.Pixels)
	assert.Same(t, tex, dev.Heaps[0].Views[0])

	_, ok = tm.Handle(5)
	assert.False(t, ok)
}

func TestLoadTexture(t *testing.T) {
	tm, dev, root := newManager(t, 8)
	writePNG(t, filepath.Join(root, "red.png"), 4, 2, color.RGBA{255, 0, 0, 255})

	index, err := tm.Load("red.png")
	require.NoError(t, err)
	assert.EqualValues(t, 1, index)

	tex := tm.Texture(index).(*rendertest.Texture)
	assert.EqualValues(t, 4, tex.Width())
	assert.EqualValues(t, 2, tex.Height())
	assert.Equal(t, metadata.FormatRGBA8Unorm, tex.Format())
	assert.Equal(t, []byte{255, 0, 0, 255}, tex.Pixels[:4])
	assert.Same(t, tex, dev.Heaps[0].Views[1])

	again, err := tm.Load("red.png")
	require.NoError(t, err)
	assert.Equal(t, index, again)
	assert.Equal(t, 2, tm.Count())

	_, err = tm.Load("missing.png")
	assert.Error(t, err)
}

func TestLoadAllKeepsOrder(t *testing.T) {
	tm, _, root := newManager(t, 8)
	names := []string{"a.png", "b.png", "c.png"}
	for i, name := range names {
		writePNG(t, filepath.Join(root, name), i+1, i+1, color.RGBA{uint8(i), 0, 0, 255})
	}

	slots, err := tm.LoadAll(context.Background(), names)
	require.NoError(t, err)
	require.Len(t, slots, 3)
	for i, slot := range slots {
		assert.EqualValues(t, i+1, tm.Texture(slot).Width())
	}

	_, err = tm.LoadAll(context.Background(), []string{"a.png", "nope.png"})
	assert.Error(t, err)
}

func TestTextureSlotsRunOut(t *testing.T) {
	tm, _, root := newManager(t, 2)
	writePNG(t, filepath.Join(root, "a.png"), 1, 1, color.RGBA{A: 255})
	writePNG(t, filepath.Join(root, "b.png"), 1, 1, color.RGBA{A: 255})

	_, err := tm.Load("a.png")
	require.NoError(t, err)
	_, err = tm.Load("b.png")
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrSlotOverflow))
}

func TestReloadKeepsSlot(t *testing.T) {
	tm, dev, root := newManager(t, 8)
	path := filepath.Join(root, "tex.png")
	writePNG(t, path, 2, 2, color.RGBA{0, 255, 0, 255})
	index, err := tm.Load("tex.png")
	require.NoError(t, err)
	tex := tm.Texture(index).(*rendertest.Texture)

	writePNG(t, path, 2, 2, color.RGBA{0, 0, 255, 255})
	tm.Reload("tex.png")
	assert.Equal(t, 1, tm.ApplyReloads())
	assert.Equal(t, 1, tex.Writes)
	assert.Equal(t, []byte{0, 0, 255, 255}, tex.Pixels[:4])

	// a new size recreates the texture behind the same view
	writePNG(t, path, 3, 3, color.RGBA{0, 0, 255, 255})
	tm.Reload("tex.png")
	assert.Equal(t, 1, tm.ApplyReloads())
	assert.True(t, tex.Destroyed)
	replaced := tm.Texture(index).(*rendertest.Texture)
	assert.EqualValues(t, 3, replaced.Width())
	assert.Same(t, replaced, dev.Heaps[0].Views[index])

	assert.Zero(t, tm.ApplyReloads())
}

func TestWatchQueuesReload(t *testing.T) {
	tm, _, root := newManager(t, 8)
	path := filepath.Join(root, "tex.png")
	writePNG(t, path, 2, 2, color.RGBA{0, 255, 0, 255})
	index, err := tm.Load("tex.png")
	require.NoError(t, err)
	tex := tm.Texture(index).(*rendertest.Texture)
	require.NoError(t, tm.Watch())

	writePNG(t, path, 2, 2, color.RGBA{255, 255, 0, 255})
	require.Eventually(t, func() bool {
		tm.ApplyReloads()
		return tex.Writes > 0 && tex.Pixels[0] == 255
	}, 5*time.Second, 20*time.Millisecond)
}

func TestDecodeScalesLargeImages(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, MaxTextureSize*2, 8))
	dst := toRGBA(src)
	assert.Equal(t, MaxTextureSize, dst.Bounds().Dx())
	assert.Equal(t, 4, dst.Bounds().Dy())

	sub := image.NewRGBA(image.Rect(0, 0, 10, 10)).SubImage(image.Rect(2, 2, 6, 6))
	assert.Equal(t, image.Rect(0, 0, 4, 4), toRGBA(sub).Bounds())
}

func TestLoadShader(t *testing.T) {
	dir := t.TempDir()
	valid := make([]byte, 20)
	binary.LittleEndian.PutUint32(valid, spirvMagic)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ok.spv"), valid, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.spv"), make([]byte, 20), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "short.spv"), []byte{1, 2, 3}, 0o644))

	set, err := LoadShaderSet(filepath.Join(dir, "ok.spv"), filepath.Join(dir, "ok.spv"))
	require.NoError(t, err)
	assert.Equal(t, valid, set.Vertex)

	_, err = LoadShader(filepath.Join(dir, "bad.spv"))
	assert.ErrorContains(t, err, "magic")
	_, err = LoadShader(filepath.Join(dir, "short.spv"))
	assert.Error(t, err)
	_, err = LoadShader(filepath.Join(dir, "none.spv"))
	assert.Error(t, err)
}

func TestFontMeasure(t *testing.T) {
	f := &Font{
		LineHeight: 16,
		Glyphs: map[rune]Glyph{
			'A': {XAdvance: 10},
			'V': {XAdvance: 9},
		},
		Kerning: map[[2]rune]int{{'A', 'V'}: -2},
	}
	w, h := f.Measure("AV")
	assert.Equal(t, 17, w)
	assert.Equal(t, 16, h)
	assert.Zero(t, f.Advance('?', 'A'))
}

package assets

import (
	"path/filepath"

	"github.com/cockroachdb/errors"
	"github.com/fzipp/bmfont"
)

// Glyph is the atlas rectangle and layout metrics of one character.
type Glyph struct {
	X, Y          int
	Width, Height int
	XOffset       int
	YOffset       int
	XAdvance      int
}

// Font is a single-page bitmap font ready to be uploaded as one texture.
type Font struct {
	Face       string
	LineHeight int
	Base       int
	Glyphs     map[rune]Glyph
	Kerning    map[[2]rune]int
	Atlas      *Pixels
}

// Advance returns the horizontal advance from a to b, kerning included.
func (f *Font) Advance(a, b rune) int {
	g, ok := f.Glyphs[a]
	if !ok {
		return 0
	}
	return g.XAdvance + f.Kerning[[2]rune{a, b}]
}

// Measure returns the pixel size of a single line of text.
func (f *Font) Measure(text string) (int, int) {
	runes := []rune(text)
	width := 0
	for i, r := range runes {
		var next rune
		if i+1 < len(runes) {
			next = runes[i+1]
		}
		width += f.Advance(r, next)
	}
	return width, f.LineHeight
}

// LoadFont reads an AngelCode .fnt descriptor and its first page image.
func LoadFont(path string) (*Font, error) {
	font, err := bmfont.Load(path)
	if err != nil {
		return nil, errors.Wrapf(err, "load font %s", path)
	}
	desc := font.Descriptor
	if len(desc.Pages) == 0 {
		return nil, errors.Newf("font %s has no pages", path)
	}
	if len(desc.Pages) > 1 {
		return nil, errors.Newf("font %s has %d pages, only single-page fonts are supported", path, len(desc.Pages))
	}

	out := &Font{
		Face:       desc.Info.Face,
		LineHeight: desc.Common.LineHeight,
		Base:       desc.Common.Base,
		Glyphs:     make(map[rune]Glyph, len(desc.Chars)),
		Kerning:    make(map[[2]rune]int, len(desc.Kerning)),
	}
	for _, c := range desc.Chars {
		out.Glyphs[c.ID] = Glyph{
			X:        c.X,
			Y:        c.Y,
			Width:    c.Width,
			Height:   c.Height,
			XOffset:  c.XOffset,
			YOffset:  c.YOffset,
			XAdvance: c.XAdvance,
		}
	}
	for pair, k := range desc.Kerning {
		out.Kerning[[2]rune{pair.First, pair.Second}] = k.Amount
	}

	for _, page := range desc.Pages {
		atlas, err := DecodeImage(filepath.Join(filepath.Dir(path), page.File))
		if err != nil {
			return nil, errors.Wrapf(err, "font %s page %d", path, page.ID)
		}
		out.Atlas = atlas
	}
	return out, nil
}

package assets

import (
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// MaxTextureSize bounds the larger side of an uploaded texture. Bigger
// images are scaled down on load.
const MaxTextureSize = 4096

var imageExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".bmp":  true,
	".tif":  true,
	".tiff": true,
	".webp": true,
}

func isImage(path string) bool {
	return imageExtensions[strings.ToLower(filepath.Ext(path))]
}

// Pixels is a decoded image in tightly packed RGBA8.
type Pixels struct {
	Width  uint32
	Height uint32
	Data   []byte
}

// DecodeImage reads any supported image file and converts it to RGBA8.
func DecodeImage(path string) (*Pixels, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open image %s", path)
	}
	defer file.Close()

	src, format, err := image.Decode(file)
	if err != nil {
		return nil, errors.Wrapf(err, "decode image %s", path)
	}
	rgba := toRGBA(src)
	if rgba.Bounds().Empty() {
		return nil, errors.Newf("image %s (%s) is empty", path, format)
	}
	return &Pixels{
		Width:  uint32(rgba.Bounds().Dx()),
		Height: uint32(rgba.Bounds().Dy()),
		Data:   rgba.Pix,
	}, nil
}

// toRGBA copies src into a zero-origin RGBA image, scaling it down when a
// side exceeds MaxTextureSize.
func toRGBA(src image.Image) *image.RGBA {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	if w > MaxTextureSize || h > MaxTextureSize {
		scale := float64(MaxTextureSize) / float64(max(w, h))
		w = max(1, int(float64(w)*scale))
		h = max(1, int(float64(h)*scale))
		dst := image.NewRGBA(image.Rect(0, 0, w, h))
		draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Src, nil)
		return dst
	}
	if rgba, ok := src.(*image.RGBA); ok && b.Min == (image.Point{}) && rgba.Stride == 4*w {
		return rgba
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Src)
	return dst
}

// Solid returns a w×h image filled with a single RGBA color.
func Solid(w, h uint32, r, g, b, a uint8) *Pixels {
	data := make([]byte, int(w)*int(h)*4)
	for i := 0; i < len(data); i += 4 {
		data[i], data[i+1], data[i+2], data[i+3] = r, g, b, a
	}
	return &Pixels{Width: w, Height: h, Data: data}
}

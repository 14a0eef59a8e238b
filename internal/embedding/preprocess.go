package embedding

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"github.com/hyperjump/docent/internal/errs"
)

// maxPixels bounds the decoded size of an upload.
const maxPixels = 64 << 20

// CLIP normalization constants (RGB order).
var (
	clipMean = [3]float32{0.48145466, 0.4578275, 0.40821073}
	clipStd  = [3]float32{0.26862954, 0.26130258, 0.27577711}
)

// DecodeImage decodes JPEG, PNG, GIF or WebP bytes. Failures wrap errs.ErrDecode.
func DecodeImage(data []byte) (image.Image, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty image payload", errs.ErrDecode)
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrDecode, err)
	}
	if cfg.Width < 1 || cfg.Height < 1 {
		return nil, fmt.Errorf("%w: %s image has no pixels", errs.ErrDecode, format)
	}
	if cfg.Width*cfg.Height > maxPixels {
		return nil, fmt.Errorf("%w: %dx%d %s image is too large", errs.ErrDecode, cfg.Width, cfg.Height, format)
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrDecode, err)
	}
	return img, nil
}

// Preprocess applies the CLIP image transform: resize the shortest side to
// size with bicubic resampling, center crop size×size, scale to [0,1] and
// normalize per channel. The result is CHW, 3*size*size floats. Alpha is
// dropped without compositing: transparent pixels keep their stored color.
func Preprocess(img image.Image, size int) []float32 {
	b := img.Bounds()
	side := b.Dx()
	if b.Dy() < side {
		side = b.Dy()
	}
	x0 := b.Min.X + (b.Dx()-side)/2
	y0 := b.Min.Y + (b.Dy()-side)/2
	crop := image.Rect(x0, y0, x0+side, y0+side)

	var src image.Image = img
	if o, ok := img.(interface{ Opaque() bool }); !ok || !o.Opaque() {
		src, crop = dropAlpha(img, crop), image.Rect(0, 0, side, side)
	}

	dst := image.NewNRGBA(image.Rect(0, 0, size, size))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, crop, draw.Src, nil)

	plane := size * size
	out := make([]float32, 3*plane)
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			i := dst.PixOffset(x, y)
			p := y*size + x
			for c := 0; c < 3; c++ {
				v := float32(dst.Pix[i+c]) / 255
				out[c*plane+p] = (v - clipMean[c]) / clipStd[c]
			}
		}
	}
	return out
}

// dropAlpha copies r out of img as non-premultiplied RGB with full opacity.
// Scaling works in premultiplied space, so alpha must go before resampling.
func dropAlpha(img image.Image, r image.Rectangle) *image.NRGBA {
	out := image.NewNRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
			c.A = 255
			out.SetNRGBA(x-r.Min.X, y-r.Min.Y, c)
		}
	}
	return out
}

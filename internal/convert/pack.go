package convert

import (
	"fmt"
	"image"
	"image/color"
)

// PackRGB565 converts the pixels of img inside r into RGB565, row-major, and
// returns the number of pixels written. r is clipped to img's bounds; dst
// must hold r.Dx()*r.Dy() pixels.
//
// *image.RGBA, *image.NRGBA and *Image565 are read straight from their Pix
// slices using the stride; anything else goes through At.
func PackRGB565(dst []uint16, img image.Image, r image.Rectangle) (int, error) {
	r = r.Intersect(img.Bounds())
	w, h := r.Dx(), r.Dy()
	if len(dst) < w*h {
		return 0, fmt.Errorf("convert: buffer holds %d pixels, need %d", len(dst), w*h)
	}
	b := img.Bounds()
	n := 0
	switch src := img.(type) {
	case *image.RGBA:
		// Premultiplied, so the channels already read as "over black".
		for y := r.Min.Y; y < r.Max.Y; y++ {
			i := (y-b.Min.Y)*src.Stride + (r.Min.X-b.Min.X)*4
			for x := 0; x < w; x++ {
				dst[n] = RGB565(src.Pix[i], src.Pix[i+1], src.Pix[i+2])
				i += 4
				n++
			}
		}
	case *image.NRGBA:
		for y := r.Min.Y; y < r.Max.Y; y++ {
			i := (y-b.Min.Y)*src.Stride + (r.Min.X-b.Min.X)*4
			for x := 0; x < w; x++ {
				a := uint16(src.Pix[i+3])
				dst[n] = RGB565(
					uint8(uint16(src.Pix[i])*a/0xFF),
					uint8(uint16(src.Pix[i+1])*a/0xFF),
					uint8(uint16(src.Pix[i+2])*a/0xFF),
				)
				i += 4
				n++
			}
		}
	case *Image565:
		for y := r.Min.Y; y < r.Max.Y; y++ {
			i := src.PixOffset(r.Min.X, y)
			n += copy(dst[n:n+w], src.Pix[i:i+w])
		}
	default:
		for y := r.Min.Y; y < r.Max.Y; y++ {
			for x := r.Min.X; x < r.Max.X; x++ {
				dst[n] = FromColor(img.At(x, y))
				n++
			}
		}
	}
	return n, nil
}

// Image565 is an in-memory RGB565 image, the native layout of panel GRAM.
type Image565 struct {
	Pix    []uint16
	Stride int // in pixels
	Rect   image.Rectangle
}

// NewImage565 allocates a black image of the given bounds.
func NewImage565(r image.Rectangle) *Image565 {
	return &Image565{
		Pix:    make([]uint16, r.Dx()*r.Dy()),
		Stride: r.Dx(),
		Rect:   r,
	}
}

func (p *Image565) ColorModel() color.Model { return Model }
func (p *Image565) Bounds() image.Rectangle { return p.Rect }

func (p *Image565) PixOffset(x, y int) int {
	return (y-p.Rect.Min.Y)*p.Stride + (x - p.Rect.Min.X)
}

func (p *Image565) At(x, y int) color.Color {
	return ToRGBA(p.RGB565At(x, y))
}

// RGB565At returns the raw pixel, 0 outside the bounds.
func (p *Image565) RGB565At(x, y int) uint16 {
	if !(image.Point{x, y}.In(p.Rect)) {
		return 0
	}
	return p.Pix[p.PixOffset(x, y)]
}

func (p *Image565) Set(x, y int, c color.Color) {
	p.SetRGB565(x, y, FromColor(c))
}

func (p *Image565) SetRGB565(x, y int, c uint16) {
	if !(image.Point{x, y}.In(p.Rect)) {
		return
	}
	p.Pix[p.PixOffset(x, y)] = c
}

// RGBA returns an *image.RGBA copy, e.g. for PNG encoding.
func (p *Image565) RGBA() *image.RGBA {
	out := image.NewRGBA(p.Rect)
	for y := p.Rect.Min.Y; y < p.Rect.Max.Y; y++ {
		i := p.PixOffset(p.Rect.Min.X, y)
		o := out.PixOffset(p.Rect.Min.X, y)
		for x := 0; x < p.Rect.Dx(); x++ {
			r, g, b := RGB888(p.Pix[i+x])
			out.Pix[o], out.Pix[o+1], out.Pix[o+2], out.Pix[o+3] = r, g, b, 0xFF
			o += 4
		}
	}
	return out
}

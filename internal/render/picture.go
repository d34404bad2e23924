package render

import (
	"image"
	"sync"

	"golang.org/x/image/draw"

	"hasptft/internal/compose"
	"hasptft/internal/convert"
	"hasptft/internal/touch"
)

// Picture shows a still image, such as a captured web page, scaled to the
// screen. Until the first image arrives it defers to Fallback.
type Picture struct {
	Fallback compose.Renderer

	mu     sync.Mutex
	src    image.Image
	fitted *convert.Image565
	screen compose.Area
	dirty  bool
	sets   uint64
}

func NewPicture(fallback compose.Renderer) *Picture {
	return &Picture{Fallback: fallback}
}

// Set replaces the image; the next loop iteration redraws the screen.
func (p *Picture) Set(img image.Image) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.src = img
	p.fitted = nil
	p.dirty = true
	p.sets++
}

// Updates is the number of images shown so far.
func (p *Picture) Updates() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sets
}

func (p *Picture) HandlePoint(pt touch.Point, now uint32) {
	if h, ok := p.Fallback.(compose.PointerHandler); ok {
		h.HandlePoint(pt, now)
	}
}

func (p *Picture) Invalidated(now uint32, screen compose.Area) []compose.Area {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.src == nil {
		if p.Fallback == nil {
			return nil
		}
		return p.Fallback.Invalidated(now, screen)
	}
	if screen != p.screen || p.fitted == nil {
		p.screen = screen
		p.fitted = fit(p.src, screen)
		p.dirty = true
	}
	if !p.dirty {
		return nil
	}
	p.dirty = false
	return []compose.Area{screen}
}

func (p *Picture) Render(band compose.Area, px []uint16) {
	p.mu.Lock()
	img := p.fitted
	p.mu.Unlock()
	if img == nil {
		if p.Fallback != nil {
			p.Fallback.Render(band, px)
		}
		return
	}
	w := band.Width()
	for y := band.Y0; y <= band.Y1; y++ {
		row := px[(y-band.Y0)*w : (y-band.Y0+1)*w]
		for x := band.X0; x <= band.X1; x++ {
			row[x-band.X0] = img.RGB565At(x, y)
		}
	}
}

// fit scales src to the screen size ignoring its aspect ratio; captures
// are already taken at the screen's viewport.
func fit(src image.Image, screen compose.Area) *convert.Image565 {
	r := image.Rect(0, 0, screen.Width(), screen.Height())
	out := convert.NewImage565(r)
	if src.Bounds().Size() == r.Size() {
		if _, err := convert.PackRGB565(out.Pix, src, src.Bounds()); err == nil {
			return out
		}
	}
	draw.ApproxBiLinear.Scale(out, r, src, src.Bounds(), draw.Src, nil)
	return out
}

// Package simwin shows a simulated panel in a desktop window and turns the
// mouse into a touch controller, so the full pipeline can be exercised on a
// development host.
package simwin

import (
	"context"
	"fmt"
	"image"
	"sync"

	"github.com/hajimehoshi/ebiten/v2"

	"hasptft/internal/convert"
	"hasptft/internal/panelsim"
	"hasptft/internal/touch"
)

// Window mirrors a panelsim.Panel. Its coordinates are the panel's glass
// (native, rotation 0) pixels, so touch.Identity calibrates it.
type Window struct {
	Panel *panelsim.Panel
	Scale int
	Title string

	mu     sync.Mutex
	sample touch.Sample

	ctx context.Context
	ver uint64
	img *image.RGBA
	tex *ebiten.Image
}

func New(p *panelsim.Panel, scale int) *Window {
	if scale <= 0 {
		scale = 2
	}
	return &Window{Panel: p, Scale: scale, Title: "hasptft"}
}

// Sample reports the mouse as a touch: pressed while the left button is
// held inside the panel.
func (w *Window) Sample(_ context.Context) (touch.Sample, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.sample, nil
}

// Run opens the window and blocks until it is closed or ctx is cancelled.
// ebiten needs the main goroutine on most platforms.
func (w *Window) Run(ctx context.Context) error {
	width, height := w.Panel.Size()
	w.ctx = ctx
	ebiten.SetWindowTitle(fmt.Sprintf("%s (%dx%d)", w.Title, width, height))
	ebiten.SetWindowSize(width*w.Scale, height*w.Scale)
	ebiten.SetTPS(60)
	err := ebiten.RunGame(w)
	if err == ebiten.Termination {
		return nil
	}
	return err
}

func (w *Window) Update() error {
	if w.ctx != nil && w.ctx.Err() != nil {
		return ebiten.Termination
	}
	width, height := w.Panel.Size()
	x, y := ebiten.CursorPosition()
	inside := x >= 0 && y >= 0 && x < width && y < height
	s := touch.Sample{X: x, Y: y}
	if inside && ebiten.IsMouseButtonPressed(ebiten.MouseButtonLeft) {
		s.Pressed = true
		s.Z = 255
	}
	w.mu.Lock()
	w.sample = s
	w.mu.Unlock()
	return nil
}

func (w *Window) Draw(screen *ebiten.Image) {
	width, height := w.Panel.Size()
	if w.tex == nil {
		w.tex = ebiten.NewImage(width, height)
		w.img = image.NewRGBA(image.Rect(0, 0, width, height))
		w.ver = ^uint64(0)
	}
	if v := w.Panel.Version(); v != w.ver {
		w.ver = v
		copyRGBA(w.img, w.Panel.Snapshot())
		w.tex.WritePixels(w.img.Pix)
	}
	screen.DrawImage(w.tex, nil)
}

func (w *Window) Layout(_, _ int) (int, int) {
	return w.Panel.Size()
}

func copyRGBA(dst *image.RGBA, src *convert.Image565) {
	j := 0
	for _, c := range src.Pix {
		r, g, b := convert.RGB888(c)
		dst.Pix[j+0] = r
		dst.Pix[j+1] = g
		dst.Pix[j+2] = b
		dst.Pix[j+3] = 0xFF
		j += 4
	}
}

// Package render provides stand-in GUI content for the flush pipeline:
// test-pattern scenes that draw band by band, with text through tinyfont.
package render

import (
	"image/color"

	"tinygo.org/x/drivers"

	"hasptft/internal/compose"
	"hasptft/internal/convert"
)

// Canvas is a drivers.Displayer over one composer band. Coordinates are
// screen coordinates; pixels outside the band are dropped, so a whole-screen
// drawing routine can run once per band.
type Canvas struct {
	band   compose.Area
	px     []uint16
	sw, sh int16
}

var _ drivers.Displayer = (*Canvas)(nil)

// NewCanvas wraps px, packed at band.Width(), on a screen of the given size.
func NewCanvas(band compose.Area, px []uint16, screen compose.Area) *Canvas {
	return &Canvas{band: band, px: px, sw: int16(screen.Width()), sh: int16(screen.Height())}
}

func (c *Canvas) Size() (x, y int16) { return c.sw, c.sh }

func (c *Canvas) SetPixel(x, y int16, col color.RGBA) {
	c.Set565(int(x), int(y), convert.RGB565(col.R, col.G, col.B))
}

// Set565 stores an RGB565 pixel, ignoring points outside the band.
func (c *Canvas) Set565(x, y int, v uint16) {
	b := c.band
	if x < b.X0 || x > b.X1 || y < b.Y0 || y > b.Y1 {
		return
	}
	c.px[(y-b.Y0)*b.Width()+x-b.X0] = v
}

// FillRect paints the part of r (inclusive) that lies in the band.
func (c *Canvas) FillRect(r compose.Area, v uint16) {
	b := c.band
	x0, x1 := max(r.X0, b.X0), min(r.X1, b.X1)
	y0, y1 := max(r.Y0, b.Y0), min(r.Y1, b.Y1)
	w := b.Width()
	for y := y0; y <= y1; y++ {
		row := c.px[(y-b.Y0)*w:]
		for x := x0; x <= x1; x++ {
			row[x-b.X0] = v
		}
	}
}

// Display is a no-op: the composer flushes the band.
func (c *Canvas) Display() error { return nil }

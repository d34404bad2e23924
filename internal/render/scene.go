package render

import (
	"fmt"
	"image/color"
	"sync"
	"time"

	"tinygo.org/x/tinyfont"
	"tinygo.org/x/tinyfont/proggy"

	"hasptft/internal/compose"
	"hasptft/internal/convert"
	"hasptft/internal/touch"
)

// Scene kinds.
const (
	Bars     = "bars"
	Grid     = "grid"
	Gradient = "gradient"
	Clock    = "clock"
)

const (
	headerHeight = 14
	headerBase   = 11
	dotRadius    = 4
)

var (
	font tinyfont.Fonter = &proggy.TinySZ8pt7b

	textFG   = color.RGBA{R: 0xee, G: 0xee, B: 0xee, A: 0xff}
	headerBG = convert.RGB565(0x18, 0x18, 0x30)
	dotColor = convert.Yellow
)

var barColors = [8]uint16{
	convert.White, convert.Yellow, convert.Cyan, convert.Green,
	convert.Magenta, convert.Red, convert.Blue, convert.Black,
}

// Scene is a compose.Renderer drawing a test pattern under a status header
// (title and uptime), with a dot following the pointer.
type Scene struct {
	Kind  string
	Title string
	// Now supplies the wall clock for the clock scene.
	Now func() time.Time

	mu       sync.Mutex
	screen   compose.Area
	full     bool
	lastSec  uint32
	uptime   uint32
	dot      touch.Point
	prevDot  touch.Point
	dotDirty bool
}

// NewScene returns a scene of the given kind; unknown kinds draw bars.
func NewScene(kind, title string) *Scene {
	switch kind {
	case Bars, Grid, Gradient, Clock:
	default:
		kind = Bars
	}
	return &Scene{Kind: kind, Title: title, Now: time.Now, full: true}
}

// Invalidate forces a full redraw on the next loop iteration.
func (s *Scene) Invalidate() {
	s.mu.Lock()
	s.full = true
	s.mu.Unlock()
}

// HandlePoint moves the pointer dot.
func (s *Scene) HandlePoint(p touch.Point, now uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.Pressed == s.dot.Pressed && (!p.Pressed || p.X == s.dot.X && p.Y == s.dot.Y) {
		return
	}
	if !s.dotDirty {
		s.prevDot = s.dot
	}
	s.dot = p
	s.dotDirty = true
}

func dotArea(p touch.Point) compose.Area {
	return compose.Area{X0: p.X - dotRadius, Y0: p.Y - dotRadius, X1: p.X + dotRadius, Y1: p.Y + dotRadius}
}

// Invalidated implements compose.Renderer.
func (s *Scene) Invalidated(now uint32, screen compose.Area) []compose.Area {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.uptime = now
	if screen != s.screen {
		s.screen = screen
		s.full = true
	}
	if s.full {
		s.full, s.dotDirty = false, false
		s.lastSec = now / 1000
		return []compose.Area{screen}
	}

	var out []compose.Area
	if sec := now / 1000; sec != s.lastSec {
		s.lastSec = sec
		out = append(out, compose.Area{X1: screen.X1, Y1: headerHeight - 1})
		if s.Kind == Clock {
			out = append(out, s.clockArea())
		}
	}
	if s.dotDirty {
		s.dotDirty = false
		if s.prevDot.Pressed {
			out = append(out, dotArea(s.prevDot))
		}
		if s.dot.Pressed {
			out = append(out, dotArea(s.dot))
		}
	}
	return out
}

func (s *Scene) clockArea() compose.Area {
	cy := s.screen.Height() / 2
	return compose.Area{X0: 0, Y0: cy - 10, X1: s.screen.X1, Y1: cy + 10}
}

// Render implements compose.Renderer.
func (s *Scene) Render(band compose.Area, px []uint16) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w := band.Width()
	for y := band.Y0; y <= band.Y1; y++ {
		row := px[(y-band.Y0)*w : (y-band.Y0+1)*w]
		for i := range row {
			row[i] = s.background(band.X0+i, y)
		}
	}

	// Text is drawn for every band; the canvas drops what falls outside.
	cv := NewCanvas(band, px, s.screen)
	cv.FillRect(compose.Area{X1: s.screen.X1, Y1: headerHeight - 1}, headerBG)
	tinyfont.WriteLine(cv, font, 2, headerBase, s.Title, textFG)
	up := fmt.Sprintf("%ds", s.uptime/1000)
	_, uw := tinyfont.LineWidth(font, up)
	tinyfont.WriteLine(cv, font, int16(s.screen.X1-int(uw)-2), headerBase, up, textFG)
	if s.Kind == Clock {
		a := s.clockArea()
		txt := s.Now().Format("15:04:05")
		_, tw := tinyfont.LineWidth(font, txt)
		tinyfont.WriteLine(cv, font, int16((s.screen.Width()-int(tw))/2), int16(a.Y0+14), txt, textFG)
	}
	if s.dot.Pressed {
		cv.FillRect(dotArea(s.dot), dotColor)
	}
}

func (s *Scene) background(x, y int) uint16 {
	sw, sh := s.screen.Width(), s.screen.Height()
	switch s.Kind {
	case Grid:
		if x == 0 || y == 0 || x == sw-1 || y == sh-1 {
			return convert.Red
		}
		if x%20 == 0 || y%20 == 0 {
			return convert.White
		}
		return convert.Black
	case Gradient:
		r := uint16(x * 31 / max(sw-1, 1))
		g := uint16(y * 63 / max(sh-1, 1))
		return r<<11 | g<<5 | (31 - r)
	case Clock:
		return convert.RGB565(0x00, 0x10, 0x40)
	default:
		return barColors[min(x*8/max(sw, 1), 7)]
	}
}

// Package touch samples pointer devices and reports points in panel
// coordinates for the GUI loop's input poll.
//
// A Sampler produces raw controller readings. An Adapter applies the
// calibration and the current display rotation and implements Reader, the
// read_point poll consumed by the GUI layer.
package touch

import (
	"context"
	"sort"
)

// Point is a pointer position in logical panel coordinates (current
// rotation).
type Point struct {
	X       int  `json:"x"`
	Y       int  `json:"y"`
	Pressed bool `json:"pressed"`
	Z       int  `json:"z"`
}

// Reader is the input-device poll.
type Reader interface {
	ReadPoint(ctx context.Context) (Point, error)
}

// Sample is a raw reading in controller units.
type Sample struct {
	X, Y, Z int
	Pressed bool
}

// Sampler abstracts a touch controller.
type Sampler interface {
	Sample(ctx context.Context) (Sample, error)
}

// Calibration maps raw controller units to native (rotation 0) panel
// pixels.
type Calibration struct {
	MinX    int  `yaml:"min_x" json:"min_x"`
	MaxX    int  `yaml:"max_x" json:"max_x"`
	MinY    int  `yaml:"min_y" json:"min_y"`
	MaxY    int  `yaml:"max_y" json:"max_y"`
	SwapXY  bool `yaml:"swap_xy" json:"swap_xy"`
	InvertX bool `yaml:"invert_x" json:"invert_x"`
	InvertY bool `yaml:"invert_y" json:"invert_y"`
}

// Identity returns a calibration for samplers that already report pixels.
func Identity(w, h int) Calibration {
	return Calibration{MaxX: w - 1, MaxY: h - 1}
}

func scale(v, lo, hi, size int) int {
	if hi == lo {
		return 0
	}
	out := (v - lo) * (size - 1) / (hi - lo)
	if out < 0 {
		return 0
	}
	if out > size-1 {
		return size - 1
	}
	return out
}

// Map converts a raw sample to native panel coordinates on a w×h panel.
func (c Calibration) Map(s Sample, w, h int) (x, y int) {
	rx, ry := s.X, s.Y
	if c.SwapXY {
		rx, ry = ry, rx
	}
	x = scale(rx, c.MinX, c.MaxX, w)
	y = scale(ry, c.MinY, c.MaxY, h)
	if c.InvertX {
		x = w - 1 - x
	}
	if c.InvertY {
		y = h - 1 - y
	}
	return x, y
}

// Rotate turns native coordinates on a w×h panel into logical coordinates
// for rotation r, matching how the controllers scan GRAM for that
// rotation.
func Rotate(x, y, w, h, r int) (int, int) {
	switch r & 3 {
	case 1:
		return y, w - 1 - x
	case 2:
		return w - 1 - x, h - 1 - y
	case 3:
		return h - 1 - y, x
	}
	return x, y
}

// Adapter turns a Sampler into a Reader.
type Adapter struct {
	S        Sampler
	Cal      Calibration
	W, H     int        // native panel size
	Rotation func() int // current display rotation; nil means 0
}

func (a *Adapter) ReadPoint(ctx context.Context) (Point, error) {
	s, err := a.S.Sample(ctx)
	if err != nil {
		return Point{}, err
	}
	if !s.Pressed {
		return Point{}, nil
	}
	x, y := a.Cal.Map(s, a.W, a.H)
	r := 0
	if a.Rotation != nil {
		r = a.Rotation()
	}
	x, y = Rotate(x, y, a.W, a.H, r)
	return Point{X: x, Y: y, Pressed: true, Z: s.Z}, nil
}

// median returns the median of v, reordering it.
func median(v []int) int {
	sort.Ints(v)
	return v[len(v)/2]
}

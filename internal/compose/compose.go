// Package compose stages rendered pixels in a band buffer and flushes dirty
// areas to a controller. It is the bridge between whatever renders the UI
// and the chip protocol: one flush programs a window and streams exactly the
// area's pixels, then signals completion so the buffer can be reused.
package compose

import (
	"errors"
	"fmt"
	"image"
	"sync"
	"time"

	"hasptft/internal/controller"
	"hasptft/internal/convert"
)

// Area is an inclusive pixel rectangle in rotated panel coordinates.
type Area struct {
	X0, Y0, X1, Y1 int
}

func (a Area) Width() int  { return a.X1 - a.X0 + 1 }
func (a Area) Height() int { return a.Y1 - a.Y0 + 1 }
func (a Area) Pixels() int { return a.Width() * a.Height() }
func (a Area) Empty() bool { return a.X1 < a.X0 || a.Y1 < a.Y0 }

// Rect converts to a half-open image.Rectangle.
func (a Area) Rect() image.Rectangle { return image.Rect(a.X0, a.Y0, a.X1+1, a.Y1+1) }

// AreaOf converts a half-open rectangle to an Area.
func AreaOf(r image.Rectangle) Area {
	return Area{X0: r.Min.X, Y0: r.Min.Y, X1: r.Max.X - 1, Y1: r.Max.Y - 1}
}

func (a Area) intersect(b Area) Area {
	return Area{X0: max(a.X0, b.X0), Y0: max(a.Y0, b.Y0), X1: min(a.X1, b.X1), Y1: min(a.Y1, b.Y1)}
}

// Accelerator performs fill and blend on packed RGB565 pixels before they
// are streamed. A 2D engine can implement it; Software is the fallback.
type Accelerator interface {
	Fill(dst []uint16, c uint16)
	Blend(dst, src []uint16, alpha uint8)
}

type softAccelerator struct{}

func (softAccelerator) Fill(dst []uint16, c uint16) {
	for i := range dst {
		dst[i] = c
	}
}

func (softAccelerator) Blend(dst, src []uint16, alpha uint8) {
	n := min(len(dst), len(src))
	for i := 0; i < n; i++ {
		dst[i] = convert.Blend(dst[i], src[i], alpha)
	}
}

// Software fills and blends on the CPU.
var Software Accelerator = softAccelerator{}

// DefaultLines is the band buffer height.
const DefaultLines = 20

// Options tunes a Composer.
type Options struct {
	// Lines is the band buffer height in scan lines (1..panel height).
	Lines int
	// SwapBytes byte-swaps every pixel on its way to the bus, for renderers
	// producing little-endian RGB565 on byte-oriented links.
	SwapBytes bool
	// Accelerator defaults to Software.
	Accelerator Accelerator
	// Lock serializes bus access. Defaults to a private mutex; pass the
	// device bus lock when other users (resistive touch) share the pins.
	Lock sync.Locker
}

// Stats counts flush activity.
type Stats struct {
	Flushes   uint64        `json:"flushes"`
	Pixels    uint64        `json:"pixels"`
	Fills     uint64        `json:"fills"`
	LastFlush time.Duration `json:"last_flush_ns"`
	BusyTotal time.Duration `json:"busy_total_ns"`
}

// Composer owns the band buffer and drives one controller.
type Composer struct {
	ctrl controller.Controller
	opts Options
	lock sync.Locker

	// drawMu guards buf for the buffer-staging operations and the loop.
	drawMu  sync.Mutex
	buf     []uint16
	scratch []uint16

	statsMu sync.Mutex
	stats   Stats
}

// New allocates a band buffer of Lines rows of the panel's longest side, so
// the buffer stays valid across rotations.
func New(ctrl controller.Controller, opts Options) (*Composer, error) {
	if ctrl == nil {
		return nil, errors.New("compose: nil controller")
	}
	w, h := ctrl.NativeSize()
	if opts.Lines == 0 {
		opts.Lines = DefaultLines
	}
	long := max(w, h)
	if opts.Lines < 1 || opts.Lines > long {
		return nil, fmt.Errorf("compose: buffer lines %d out of range 1..%d", opts.Lines, long)
	}
	if opts.Accelerator == nil {
		opts.Accelerator = Software
	}
	lock := opts.Lock
	if lock == nil {
		lock = &sync.Mutex{}
	}
	c := &Composer{ctrl: ctrl, opts: opts, lock: lock, buf: make([]uint16, opts.Lines*long)}
	if opts.SwapBytes {
		c.scratch = make([]uint16, len(c.buf))
	}
	return c, nil
}

// Buffer is the band buffer renderers draw into. It belongs to the caller
// between flushes and to the composer during one. Fill, Blend, DrawImage and
// Loop stage through it too, so an outside caller must not use it while
// they run.
func (c *Composer) Buffer() []uint16 { return c.buf }

// BandLines is how many full-width rows fit the buffer at the current
// rotation.
func (c *Composer) BandLines() int {
	w, _ := c.ctrl.Size()
	return len(c.buf) / w
}

// Controller exposes the driven controller.
func (c *Composer) Controller() controller.Controller { return c.ctrl }

// SetRotation changes the controller rotation between flushes; areas
// flushed afterwards use the new orientation.
func (c *Composer) SetRotation(r int) {
	c.drawMu.Lock()
	defer c.drawMu.Unlock()
	c.lock.Lock()
	defer c.lock.Unlock()
	c.ctrl.SetRotation(r)
}

// Screen is the full panel area at the current rotation.
func (c *Composer) Screen() Area {
	w, h := c.ctrl.Size()
	return Area{X1: w - 1, Y1: h - 1}
}

// Flush paints area with px, packed row-major at the area's width, and
// calls done once the burst is complete. Parts of area outside the panel
// are dropped. done is always called, even for an empty area.
func (c *Composer) Flush(area Area, px []uint16, done func()) {
	defer func() {
		if done != nil {
			done()
		}
	}()
	if area.Empty() || len(px) < area.Pixels() {
		return
	}
	c.lock.Lock()
	defer c.lock.Unlock()
	start := time.Now()
	n := c.flushLocked(area, px)
	c.record(n, time.Since(start))
}

func (c *Composer) flushLocked(area Area, px []uint16) int {
	clip := area.intersect(c.Screen())
	if clip.Empty() {
		return 0
	}
	stride := area.Width()
	w := clip.Width()

	c.ctrl.StartWrite()
	c.ctrl.SetWindowAddress(clip.X0, clip.Y0, clip.X1, clip.Y1)
	if w == stride {
		off := (clip.Y0 - area.Y0) * stride
		c.write(px[off : off+clip.Pixels()])
	} else {
		for y := clip.Y0; y <= clip.Y1; y++ {
			off := (y-area.Y0)*stride + clip.X0 - area.X0
			c.write(px[off : off+w])
		}
	}
	c.ctrl.EndWrite()
	return clip.Pixels()
}

// write streams px, swapping bytes through the scratch buffer when asked.
func (c *Composer) write(px []uint16) {
	if !c.opts.SwapBytes {
		c.ctrl.WritePixels(px)
		return
	}
	for len(px) > 0 {
		n := copy(c.scratch, px)
		convert.Swap16(c.scratch[:n])
		c.ctrl.WritePixels(c.scratch[:n])
		px = px[n:]
	}
}

func (c *Composer) record(pixels int, d time.Duration) {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()
	c.stats.Flushes++
	c.stats.Pixels += uint64(pixels)
	c.stats.LastFlush = d
	c.stats.BusyTotal += d
}

func (c *Composer) countFill() {
	c.statsMu.Lock()
	c.stats.Fills++
	c.statsMu.Unlock()
}

// Stats returns a copy of the counters.
func (c *Composer) Stats() Stats {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()
	return c.stats
}

// bands calls fn for each slice of area that fits the buffer.
func (c *Composer) bands(area Area, fn func(band Area, px []uint16)) {
	rows := max(len(c.buf)/area.Width(), 1)
	for y := area.Y0; y <= area.Y1; y += rows {
		band := Area{X0: area.X0, Y0: y, X1: area.X1, Y1: min(y+rows-1, area.Y1)}
		fn(band, c.buf[:band.Pixels()])
	}
}

// Fill paints area with a solid colour, staged through the accelerator.
func (c *Composer) Fill(area Area, color uint16) {
	c.drawMu.Lock()
	defer c.drawMu.Unlock()
	area = area.intersect(c.Screen())
	if area.Empty() {
		return
	}
	c.countFill()
	c.bands(area, func(band Area, px []uint16) {
		c.opts.Accelerator.Fill(px, color)
		c.Flush(band, px, nil)
	})
}

// Clear paints the whole panel using the controller's repeat-fill path,
// without touching the band buffer.
func (c *Composer) Clear(color uint16) {
	c.lock.Lock()
	defer c.lock.Unlock()
	scr := c.Screen()
	start := time.Now()
	c.ctrl.StartWrite()
	c.ctrl.SetWindowAddress(scr.X0, scr.Y0, scr.X1, scr.Y1)
	c.ctrl.WriteColor(color, scr.Pixels())
	c.ctrl.EndWrite()
	c.countFill()
	c.record(scr.Pixels(), time.Since(start))
}

// Blend composites src (packed at area's width) over area with alpha.
// The destination is read back from the panel when the controller supports
// it; otherwise src is blended over black.
func (c *Composer) Blend(area Area, src []uint16, alpha uint8) {
	if area.Empty() || len(src) < area.Pixels() {
		return
	}
	c.drawMu.Lock()
	defer c.drawMu.Unlock()
	clip := area.intersect(c.Screen())
	if clip.Empty() {
		return
	}
	stride := area.Width()
	c.bands(clip, func(band Area, px []uint16) {
		if c.ctrl.CanRead() {
			c.lock.Lock()
			c.ctrl.ReadRect(band.X0, band.Y0, band.Width(), band.Height(), px)
			c.lock.Unlock()
		} else {
			c.opts.Accelerator.Fill(px, convert.Black)
		}
		w := band.Width()
		for y := band.Y0; y <= band.Y1; y++ {
			row := px[(y-band.Y0)*w : (y-band.Y0+1)*w]
			off := (y-area.Y0)*stride + band.X0 - area.X0
			c.opts.Accelerator.Blend(row, src[off:off+w], alpha)
		}
		c.Flush(band, px, nil)
	})
}

// DrawImage streams img with its top-left corner at at, band by band.
func (c *Composer) DrawImage(img image.Image, at image.Point) error {
	c.drawMu.Lock()
	defer c.drawMu.Unlock()
	b := img.Bounds()
	dst := AreaOf(b.Sub(b.Min).Add(at)).intersect(c.Screen())
	if dst.Empty() {
		return nil
	}
	var err error
	c.bands(dst, func(band Area, px []uint16) {
		if err != nil {
			return
		}
		src := band.Rect().Sub(at).Add(b.Min)
		if _, err = convert.PackRGB565(px, img, src); err != nil {
			return
		}
		c.Flush(band, px, nil)
	})
	return err
}

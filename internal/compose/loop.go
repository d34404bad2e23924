package compose

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"hasptft/internal/convert"
	appLog "hasptft/internal/log"
	"hasptft/internal/tick"
	"hasptft/internal/touch"
)

// Renderer stands in for the GUI toolkit: it reports what changed and draws
// it band by band into the composer buffer.
type Renderer interface {
	// Invalidated returns the areas to redraw at tick time now (ms). The
	// screen area is passed so renderers can follow rotation changes.
	Invalidated(now uint32, screen Area) []Area
	// Render draws band into px, packed row-major at band.Width().
	Render(band Area, px []uint16)
}

// PointerHandler is implemented by renderers that react to touch input.
type PointerHandler interface {
	HandlePoint(p touch.Point, now uint32)
}

// DefaultPeriod matches the tick source.
const DefaultPeriod = tick.DefaultPeriod

// Loop is the cooperative GUI loop: one goroutine polls input, asks the
// renderer for dirty areas and flushes them, every Period.
type Loop struct {
	C      *Composer
	R      Renderer
	Tick   *tick.Counter
	Input  touch.Reader
	Period time.Duration

	frames atomic.Uint64
	bands  atomic.Uint64
}

func (l *Loop) bandDone() { l.bands.Add(1) }

// Run drives the loop until ctx is cancelled. Cancellation is checked
// between bands; a started burst always completes.
func (l *Loop) Run(ctx context.Context) error {
	if l.C == nil || l.R == nil || l.Tick == nil {
		return errors.New("compose: loop needs a composer, renderer and tick counter")
	}
	period := l.Period
	if period <= 0 {
		period = DefaultPeriod
	}
	t := time.NewTicker(period)
	defer t.Stop()
	appLog.Debug("compose: loop started", "period", period)
	for {
		if err := l.Step(ctx); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
}

// Step runs one loop iteration.
func (l *Loop) Step(ctx context.Context) error {
	now := l.Tick.Millis()
	if l.Input != nil {
		if h, ok := l.R.(PointerHandler); ok {
			p, err := l.Input.ReadPoint(ctx)
			if err == nil {
				h.HandlePoint(p, now)
			}
		}
	}

	c := l.C
	c.drawMu.Lock()
	defer c.drawMu.Unlock()
	screen := c.Screen()
	areas := l.R.Invalidated(now, screen)
	if len(areas) == 0 {
		return nil
	}
	for _, a := range areas {
		a = a.intersect(screen)
		if a.Empty() {
			continue
		}
		rows := max(len(c.buf)/a.Width(), 1)
		for y := a.Y0; y <= a.Y1; y += rows {
			if err := ctx.Err(); err != nil {
				return err
			}
			band := Area{X0: a.X0, Y0: y, X1: a.X1, Y1: min(y+rows-1, a.Y1)}
			px := c.buf[:band.Pixels()]
			l.R.Render(band, px)
			c.Flush(band, px, l.bandDone)
		}
	}
	l.frames.Add(1)
	return nil
}

// Frames is the number of iterations that flushed at least one area.
func (l *Loop) Frames() uint64 { return l.frames.Load() }

// Bands is the number of completed band flushes.
func (l *Loop) Bands() uint64 { return l.bands.Load() }

// ReadBack reads area from panel memory. It returns nil when the
// controller cannot read over the configured bus.
func (c *Composer) ReadBack(area Area) *convert.Image565 {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.readBack(area)
}

// ReadScreen reads the whole panel at the current rotation, or returns nil
// like ReadBack.
func (c *Composer) ReadScreen() *convert.Image565 {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.readBack(c.Screen())
}

func (c *Composer) readBack(area Area) *convert.Image565 {
	area = area.intersect(c.Screen())
	if area.Empty() || !c.ctrl.CanRead() {
		return nil
	}
	img := convert.NewImage565(area.Rect())
	c.ctrl.ReadRect(area.X0, area.Y0, area.Width(), area.Height(), img.Pix)
	return img
}

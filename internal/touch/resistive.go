package touch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"periph.io/x/conn/v3/analog"
	"periph.io/x/conn/v3/gpio"
)

// ResistivePins wires a bare 4-wire resistive film. YP and XM are also
// sampled through ADC channels; on most shields they double as the panel's
// CS and RS lines.
type ResistivePins struct {
	XP, XM, YP, YM gpio.PinIO
	YPADC, XMADC   analog.PinADC
}

// Resistive samples a 4-wire film directly. Because its pins are shared
// with the display bus, every sample holds Lock and calls Restore (usually
// the bus's Init) before releasing it.
type Resistive struct {
	pins ResistivePins
	// Lock is the bus mutex; may be nil when the pins are dedicated.
	Lock sync.Locker
	// Restore puts the shared pins back into bus mode.
	Restore func()
	// Threshold is the minimum pressure counted as a touch.
	Threshold int
	Samples   int
	// Settle waits after re-driving the film before sampling.
	Settle time.Duration
	Sleep  func(time.Duration)

	maxRaw int
	xs, ys []int
}

// NewResistive validates the pins and reads the ADC range.
func NewResistive(pins ResistivePins) (*Resistive, error) {
	if pins.XP == nil || pins.XM == nil || pins.YP == nil || pins.YM == nil {
		return nil, errors.New("touch: resistive film needs XP, XM, YP and YM pins")
	}
	if pins.YPADC == nil || pins.XMADC == nil {
		return nil, errors.New("touch: resistive film needs ADC channels on YP and XM")
	}
	_, hi := pins.YPADC.Range()
	maxRaw := int(hi.Raw)
	if maxRaw <= 0 {
		maxRaw = 1023
	}
	return &Resistive{
		pins:      pins,
		Threshold: maxRaw / 10,
		Samples:   3,
		Settle:    20 * time.Microsecond,
		Sleep:     time.Sleep,
		maxRaw:    maxRaw,
	}, nil
}

// MaxRaw is the full-scale ADC reading.
func (r *Resistive) MaxRaw() int { return r.maxRaw }

type sampleErr struct{ err error }

func (e *sampleErr) set(err error) {
	if e.err == nil && err != nil {
		e.err = err
	}
}

func (r *Resistive) drive(e *sampleErr, hi, lo gpio.PinIO, float ...gpio.PinIO) {
	for _, p := range float {
		e.set(p.In(gpio.Float, gpio.NoEdge))
	}
	e.set(hi.Out(gpio.High))
	e.set(lo.Out(gpio.Low))
	if r.Settle > 0 {
		r.Sleep(r.Settle)
	}
}

func (r *Resistive) adc(e *sampleErr, p analog.PinADC) int {
	s, err := p.Read()
	e.set(err)
	return int(s.Raw)
}

func (r *Resistive) Sample(ctx context.Context) (Sample, error) {
	if r.Lock != nil {
		r.Lock.Lock()
		defer r.Lock.Unlock()
	}
	if r.Restore != nil {
		defer r.Restore()
	}
	var e sampleErr
	p := r.pins

	// Pressure: current from XP to YM through the contact point.
	r.drive(&e, p.YM, p.XP, p.XM, p.YP)
	z1 := r.adc(&e, p.XMADC)
	z2 := r.adc(&e, p.YPADC)
	z := r.maxRaw - (z2 - z1)
	if e.err != nil {
		return Sample{}, fmt.Errorf("touch: resistive pressure: %w", e.err)
	}
	if z < r.Threshold {
		return Sample{Z: max(z, 0)}, nil
	}

	n := max(r.Samples, 1)
	r.xs, r.ys = r.xs[:0], r.ys[:0]
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return Sample{}, err
		}
		// X: gradient across the X plate, sensed on YP.
		r.drive(&e, p.XP, p.XM, p.YP, p.YM)
		r.xs = append(r.xs, r.adc(&e, p.YPADC))
		// Y: gradient across the Y plate, sensed on XM.
		r.drive(&e, p.YP, p.YM, p.XP, p.XM)
		r.ys = append(r.ys, r.adc(&e, p.XMADC))
	}
	if e.err != nil {
		return Sample{}, fmt.Errorf("touch: resistive position: %w", e.err)
	}
	return Sample{X: median(r.xs), Y: median(r.ys), Z: z, Pressed: true}, nil
}

package bus

import (
	"errors"
	"fmt"
	"time"

	"periph.io/x/conn/v3/gpio"
)

// ParallelPins wires an 8080-style parallel port. Data lines are listed LSB
// first; 8 or 16 of them. CS may be nil when tied low on the board; RD may be
// nil on write-only boards.
type ParallelPins struct {
	Data []gpio.PinIO
	CS   gpio.PinOut
	RS   gpio.PinOut // register select (DC): low=command, high=data
	WR   gpio.PinOut
	RD   gpio.PinOut
}

// Timing holds the minimum strobe widths. Correctness depends only on these
// minimums, not on exact timing, so the delay primitive may overshoot.
type Timing struct {
	WriteLow  time.Duration
	WriteHigh time.Duration
	ReadLow   time.Duration
	ReadHigh  time.Duration
}

// DefaultTiming is the ILI9341/ILI948x 8080-I series write/read cycle with
// some margin (twrl/twrh 15ns, trdl 355ns, trdh 90ns frame-memory read).
var DefaultTiming = Timing{
	WriteLow:  15 * time.Nanosecond,
	WriteHigh: 15 * time.Nanosecond,
	ReadLow:   355 * time.Nanosecond,
	ReadHigh:  90 * time.Nanosecond,
}

// ParallelOptions configures NewParallel.
type ParallelOptions struct {
	Timing Timing
	// Delay waits at least d. Defaults to SpinDelay.
	Delay func(d time.Duration)
}

type parallelLink struct {
	pins   ParallelPins
	w      Width
	timing Timing
	delay  func(time.Duration)

	output          bool   // data lines currently driven
	last            uint16 // last value driven on the data lines
	rsKnown, rsData bool

	errs *errLatch
}

// NewParallel returns a GPIO parallel binding. The data direction is switched
// on demand: output for writes, floating input for reads.
func NewParallel(pins ParallelPins, opts ParallelOptions) (*Bus, error) {
	var w Width
	switch len(pins.Data) {
	case 8:
		w = Width8
	case 16:
		w = Width16
	default:
		return nil, fmt.Errorf("bus: parallel port needs 8 or 16 data pins, got %d", len(pins.Data))
	}
	if pins.RS == nil || pins.WR == nil {
		return nil, errors.New("bus: parallel port needs RS and WR pins")
	}
	for i, p := range pins.Data {
		if p == nil {
			return nil, fmt.Errorf("bus: parallel data pin D%d is nil", i)
		}
	}
	if opts.Timing == (Timing{}) {
		opts.Timing = DefaultTiming
	}
	if opts.Delay == nil {
		opts.Delay = SpinDelay
	}
	errs := &errLatch{bus: fmt.Sprintf("parallel%d", w)}
	l := &parallelLink{
		pins:   pins,
		w:      w,
		timing: opts.Timing,
		delay:  opts.Delay,
		errs:   errs,
	}
	return newBus(l, errs), nil
}

// SpinDelay busy-waits for at least d. Sleeping would be far too coarse for
// nanosecond strobes.
func SpinDelay(d time.Duration) {
	if d <= 0 {
		return
	}
	start := time.Now()
	for time.Since(start) < d {
	}
}

func (p *parallelLink) name() string { return fmt.Sprintf("parallel%d", p.w) }
func (p *parallelLink) width() Width { return p.w }
func (p *parallelLink) close() error { return nil }

func (p *parallelLink) out(pin gpio.PinOut, l gpio.Level) {
	if pin != nil {
		p.errs.set(pin.Out(l))
	}
}

// idle drives every line to its resting level. The cached RS and data
// levels are dropped first: the pins may have been borrowed (a resistive
// touch film shares them) and left in any state.
func (p *parallelLink) idle() {
	p.rsKnown, p.output = false, false
	p.out(p.pins.CS, gpio.High)
	p.out(p.pins.WR, gpio.High)
	p.out(p.pins.RD, gpio.High)
	p.setRS(true)
	p.driveData(0, true)
}

func (p *parallelLink) chipSelect(active bool) {
	p.out(p.pins.CS, gpio.Level(!active))
}

func (p *parallelLink) setRS(data bool) {
	if p.rsKnown && p.rsData == data {
		return
	}
	p.out(p.pins.RS, gpio.Level(data))
	p.rsKnown, p.rsData = true, data
}

// driveData puts v on the data lines, touching only the lines that changed
// unless force is set or the port was in input mode.
func (p *parallelLink) driveData(v uint16, force bool) {
	if !p.output {
		force = true
		p.output = true
	}
	diff := v ^ p.last
	for i, pin := range p.pins.Data {
		bit := uint16(1) << i
		if force || diff&bit != 0 {
			p.errs.set(pin.Out(gpio.Level(v&bit != 0)))
		}
	}
	p.last = v
}

func (p *parallelLink) strobeWrite() {
	p.out(p.pins.WR, gpio.Low)
	p.delay(p.timing.WriteLow)
	p.out(p.pins.WR, gpio.High)
	p.delay(p.timing.WriteHigh)
}

func (p *parallelLink) writeUnit(v uint16) {
	p.driveData(v, false)
	p.strobeWrite()
}

func (p *parallelLink) writeBytes(data bool, b []byte) {
	p.setRS(data)
	for _, v := range b {
		p.writeUnit(uint16(v))
	}
}

func (p *parallelLink) writeWords(data bool, w []uint16) {
	p.setRS(data)
	for _, v := range w {
		if p.w == Width16 {
			p.writeUnit(v)
			continue
		}
		p.writeUnit(v >> 8)
		p.writeUnit(v & 0xFF)
	}
}

func (p *parallelLink) toInput() {
	if !p.output {
		return
	}
	for _, pin := range p.pins.Data {
		p.errs.set(pin.In(gpio.Float, gpio.NoEdge))
	}
	p.output = false
}

func (p *parallelLink) readUnit() uint16 {
	p.toInput()
	p.out(p.pins.RD, gpio.Low)
	p.delay(p.timing.ReadLow)
	var v uint16
	for i, pin := range p.pins.Data {
		if pin.Read() == gpio.High {
			v |= 1 << i
		}
	}
	p.out(p.pins.RD, gpio.High)
	p.delay(p.timing.ReadHigh)
	return v
}

func (p *parallelLink) readBytes(b []byte) {
	p.setRS(true)
	for i := range b {
		b[i] = uint8(p.readUnit())
	}
}

func (p *parallelLink) readWords(w []uint16) {
	p.setRS(true)
	for i := range w {
		if p.w == Width16 {
			w[i] = p.readUnit()
			continue
		}
		hi := p.readUnit()
		w[i] = hi<<8 | p.readUnit()&0xFF
	}
}

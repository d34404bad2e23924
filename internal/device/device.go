// Package device assembles one panel from configuration: the periph host,
// the bus binding, the controller, the composer, touch input, the backlight
// and the tick source. A Device is the explicit context handed to the GUI
// loop and the diagnostics API.
package device

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"

	"hasptft/internal/backlight"
	"hasptft/internal/bus"
	"hasptft/internal/compose"
	"hasptft/internal/config"
	"hasptft/internal/controller"
	appLog "hasptft/internal/log"
	"hasptft/internal/panelsim"
	"hasptft/internal/tick"
	"hasptft/internal/touch"
)

// Options carries hooks that do not belong in the YAML config.
type Options struct {
	// Pointer, when set and the bus is simulated, supplies the touch sampler
	// for the simulated panel (a desktop window's mouse).
	Pointer func(p *panelsim.Panel) touch.Sampler
	// Sleep replaces time.Sleep for controller init delays.
	Sleep func(time.Duration)
}

// Device owns every part of one panel.
type Device struct {
	cfg *config.Config

	// busMu serializes the bus between the composer and touch sampling
	// that borrows bus pins.
	busMu sync.Mutex

	Bus       *bus.Bus
	Ctrl      controller.Controller
	Comp      *compose.Composer
	Ticks     *tick.Counter
	Backlight backlight.Backlight
	// Touch is the cached pointer; nil when no touch device is configured.
	Touch *touch.Poller
	// Panel is the simulated panel on the sim bus, else nil.
	Panel *panelsim.Panel

	ID   uint32
	IDOK bool

	rotation atomic.Int32
	tickSrc  *tick.Source
	schedule *backlight.Schedule
	closers  []func() error
}

// Info is the panel summary exposed over the API.
type Info struct {
	Chip       string `json:"chip"`
	Bus        string `json:"bus"`
	Width      int    `json:"width"`
	Height     int    `json:"height"`
	Rotation   int    `json:"rotation"`
	ID         string `json:"id"`
	IDOK       bool   `json:"id_ok"`
	CanRead    bool   `json:"can_read"`
	BandLines  int    `json:"band_lines"`
	Simulated  bool   `json:"simulated"`
	BusError   string `json:"bus_error,omitempty"`
	TouchKind  string `json:"touch"`
	Backlit    bool   `json:"backlight"`
	Brightness uint8  `json:"brightness"`
}

// Open builds the device, initializes the controller and verifies its ID.
// Nothing runs in the background until Start.
func Open(cfg *config.Config, opts Options) (*Device, error) {
	if cfg == nil {
		return nil, errors.New("device: nil config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	d := &Device{cfg: cfg, Ticks: &tick.Counter{}}
	if err := d.open(opts); err != nil {
		d.Close()
		return nil, err
	}
	return d, nil
}

func (d *Device) open(opts Options) error {
	cfg := d.cfg
	if cfg.Bus.Kind != "sim" {
		if _, err := host.Init(); err != nil {
			return fmt.Errorf("device: periph host init failed: %w", err)
		}
	}

	b, err := d.openBus()
	if err != nil {
		return err
	}
	d.Bus = b
	d.closers = append(d.closers, b.Close)

	reset, err := pinByName(cfg.Panel.Reset)
	if err != nil {
		return err
	}
	copts := controller.Options{
		Width:    cfg.Panel.Width,
		Height:   cfg.Panel.Height,
		Rotation: cfg.Panel.Rotation,
		BGR:      cfg.Panel.BGR,
		Invert:   cfg.Panel.Invert,
		Serial:   cfg.Bus.Kind == "spi" || cfg.Bus.Kind == "spi9",
		Reset:    outOrNil(reset),
		Sleep:    opts.Sleep,
	}
	d.Ctrl, err = controller.New(cfg.Panel.Chip, b, copts)
	if err != nil {
		return err
	}

	d.busMu.Lock()
	d.Ctrl.Init()
	if b.CanRead() {
		d.ID, d.IDOK = controller.Verify(d.Ctrl)
	} else {
		appLog.Warn("device: bus is write-only, chip id not checked", "bus", b.Name())
	}
	d.busMu.Unlock()
	d.rotation.Store(int32(d.Ctrl.Rotation()))
	if err := b.Err(); err != nil {
		appLog.Warn("device: bus reported an error during init", "bus", b.Name(), "error", err)
	}

	d.Comp, err = compose.New(d.Ctrl, compose.Options{
		Lines:     cfg.Panel.BufferLines,
		SwapBytes: cfg.Panel.SwapBytes,
		Lock:      &d.busMu,
	})
	if err != nil {
		return err
	}

	if err := d.openTouch(opts); err != nil {
		return err
	}
	if err := d.openBacklight(); err != nil {
		return err
	}

	w, h := d.Ctrl.Size()
	appLog.Info("device: panel ready",
		"chip", d.Ctrl.Name(),
		"bus", b.Name(),
		"size", fmt.Sprintf("%dx%d", w, h),
		"rotation", d.Ctrl.Rotation(),
		"touch", cfg.Touch.Kind,
	)
	return nil
}

func (d *Device) openBacklight() error {
	bc := d.cfg.Backlight
	pin, err := pinByName(bc.Pin)
	if err != nil {
		return err
	}
	switch {
	case pin == nil:
		d.Backlight = &backlight.None{}
	case bc.PWM:
		d.Backlight = backlight.NewPWM(pin, physicHz(bc.FreqHz), bc.ActiveLow)
	default:
		d.Backlight = backlight.NewGPIO(pin, bc.ActiveLow)
	}
	if bc.OnCron != "" {
		d.schedule, err = backlight.NewSchedule(d.Backlight, bc.OnCron, bc.OffCron, nil)
		if err != nil {
			return err
		}
	}
	return nil
}

// Start runs the tick source, touch poller and backlight schedule until ctx
// is cancelled or Close is called. Without a schedule the backlight is
// switched on.
func (d *Device) Start(ctx context.Context) {
	d.tickSrc = tick.NewSource(d.Ticks, time.Duration(d.cfg.TickMS)*time.Millisecond)
	d.tickSrc.Start(ctx)
	if d.Touch != nil {
		go d.Touch.Run(ctx)
	}
	if d.schedule != nil {
		d.schedule.Start()
	} else if err := d.Backlight.Set(true); err != nil {
		appLog.Error("device: backlight on failed", err)
	}
}

// Rotation is the current rotation, safe to read from any goroutine.
func (d *Device) Rotation() int { return int(d.rotation.Load()) }

// SetRotation rotates the panel between flushes.
func (d *Device) SetRotation(r int) {
	r &= 3
	d.Comp.SetRotation(r)
	d.rotation.Store(int32(r))
	appLog.Info("device: rotation changed", "rotation", r)
}

// SetInversion toggles display inversion.
func (d *Device) SetInversion(on bool) {
	d.busMu.Lock()
	defer d.busMu.Unlock()
	d.Ctrl.SetInversion(on)
}

// Info summarizes the panel.
func (d *Device) Info() Info {
	d.busMu.Lock()
	w, h := d.Ctrl.Size()
	d.busMu.Unlock()
	st := d.Backlight.State()
	info := Info{
		Chip:       d.Ctrl.Name(),
		Bus:        d.Bus.Name(),
		Width:      w,
		Height:     h,
		Rotation:   d.Rotation(),
		ID:         fmt.Sprintf("0x%06X", d.ID),
		IDOK:       d.IDOK,
		CanRead:    d.Ctrl.CanRead(),
		BandLines:  d.Comp.BandLines(),
		Simulated:  d.Panel != nil,
		TouchKind:  d.cfg.Touch.Kind,
		Backlit:    st.On,
		Brightness: st.Level,
	}
	if err := d.Bus.Err(); err != nil {
		info.BusError = err.Error()
	}
	return info
}

// Close stops background work and releases the hardware.
func (d *Device) Close() error {
	if d.schedule != nil {
		d.schedule.Stop()
	}
	if d.tickSrc != nil {
		d.tickSrc.Stop()
	}
	var errs []error
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	d.closers = nil
	return errors.Join(errs...)
}

// pinByName resolves a periph pin; an empty name is an unwired pin.
func pinByName(name string) (gpio.PinIO, error) {
	if name == "" {
		return nil, nil
	}
	p := gpioreg.ByName(name)
	if p == nil {
		return nil, fmt.Errorf("device: gpio %s not found", name)
	}
	return p, nil
}

func mustPins(names ...string) ([]gpio.PinIO, error) {
	out := make([]gpio.PinIO, len(names))
	for i, n := range names {
		p, err := pinByName(n)
		if err != nil {
			return nil, err
		}
		if p == nil {
			return nil, fmt.Errorf("device: pin %d of %v is empty", i, names)
		}
		out[i] = p
	}
	return out, nil
}

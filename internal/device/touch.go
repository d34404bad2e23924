package device

import (
	"fmt"
	"time"

	"periph.io/x/conn/v3/analog"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"

	"hasptft/internal/config"
	appLog "hasptft/internal/log"
	"hasptft/internal/touch"
)

const xptFullScale = 4095

func (d *Device) openTouch(opts Options) error {
	tc := d.cfg.Touch
	w, h := d.Ctrl.NativeSize()

	var (
		s   touch.Sampler
		cal touch.Calibration
	)
	switch tc.Kind {
	case "none":
		return nil

	case "mock":
		if opts.Pointer != nil && d.Panel != nil {
			s = opts.Pointer(d.Panel)
		} else {
			s = touch.NewMock(w, h)
		}
		cal = touch.Identity(w, h)

	case "xpt2046":
		port, err := spireg.Open(tc.Port)
		if err != nil {
			return fmt.Errorf("device: failed to open touch SPI port %q: %w", tc.Port, err)
		}
		d.closers = append(d.closers, port.Close)
		conn, err := port.Connect(physicHz(tc.SpeedHz), spi.Mode0, 8)
		if err != nil {
			return fmt.Errorf("device: failed to connect touch SPI: %w", err)
		}
		x := touch.NewXPT2046(conn)
		if tc.Threshold > 0 {
			x.Threshold = tc.Threshold
		}
		s = x
		cal = calibration(tc.Calibration, touch.Calibration{MaxX: xptFullScale, MaxY: xptFullScale})

	case "ft6x36":
		b, err := i2creg.Open(tc.I2CBus)
		if err != nil {
			return fmt.Errorf("device: failed to open I2C bus %q: %w", tc.I2CBus, err)
		}
		d.closers = append(d.closers, b.Close)
		ft, err := touch.NewFT6x36(b, tc.Address)
		if err != nil {
			return err
		}
		if tc.Threshold > 0 {
			if err := ft.Configure(byte(tc.Threshold)); err != nil {
				return err
			}
		}
		if id, err := ft.VendorID(); err == nil {
			appLog.Info("device: ft6x36 found", "vendor", fmt.Sprintf("0x%02x", id))
		}
		s = ft
		cal = calibration(tc.Calibration, touch.Identity(w, h))

	case "resistive":
		r, err := d.openResistive(tc)
		if err != nil {
			return err
		}
		s = r
		cal = calibration(tc.Calibration, touch.Calibration{MaxX: r.MaxRaw(), MaxY: r.MaxRaw()})

	default:
		return fmt.Errorf("device: unknown touch kind %q", tc.Kind)
	}

	ad := &touch.Adapter{S: s, Cal: cal, W: w, H: h, Rotation: d.Rotation}
	d.Touch = touch.NewPoller(ad, time.Duration(tc.PollMS)*time.Millisecond)
	return nil
}

func (d *Device) openResistive(tc config.TouchConfig) (*touch.Resistive, error) {
	pins, err := mustPins(tc.XP, tc.XM, tc.YP, tc.YM)
	if err != nil {
		return nil, err
	}
	yp, err := adcPin(pins[2], tc.YP)
	if err != nil {
		return nil, err
	}
	xm, err := adcPin(pins[1], tc.XM)
	if err != nil {
		return nil, err
	}
	r, err := touch.NewResistive(touch.ResistivePins{
		XP: pins[0], XM: pins[1], YP: pins[2], YM: pins[3],
		YPADC: yp, XMADC: xm,
	})
	if err != nil {
		return nil, err
	}
	r.Lock = &d.busMu
	r.Restore = d.Bus.Init
	if tc.Threshold > 0 {
		r.Threshold = tc.Threshold
	}
	return r, nil
}

// adcPin returns the analog side of a GPIO, for boards whose host driver
// exposes both on one pin.
func adcPin(p gpio.PinIO, name string) (analog.PinADC, error) {
	a, ok := p.(analog.PinADC)
	if !ok {
		return nil, fmt.Errorf("device: pin %s has no ADC", name)
	}
	return a, nil
}

// calibration uses the configured range, or def when none is set.
func calibration(c config.CalibrationConfig, def touch.Calibration) touch.Calibration {
	if c.MaxX == c.MinX || c.MaxY == c.MinY {
		def.SwapXY, def.InvertX, def.InvertY = c.SwapXY, c.InvertX, c.InvertY
		return def
	}
	return touch.Calibration(c)
}

package device

import (
	"fmt"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"

	"hasptft/internal/bus"
	"hasptft/internal/config"
	"hasptft/internal/panelsim"
)

func physicHz(hz int64) physic.Frequency {
	return physic.Frequency(hz) * physic.Hertz
}

func (d *Device) openBus() (*bus.Bus, error) {
	bc := d.cfg.Bus
	switch bc.Kind {
	case "spi", "spi9":
		return d.openSPI()
	case "parallel":
		return openParallel(bc)
	case "mapped":
		w := bus.Width(bc.Width)
		mem, err := bus.OpenDevMem(bc.Base, bc.Size)
		if err != nil {
			return nil, err
		}
		b, err := bus.NewMapped(mem, bus.MappedOptions{Command: 0, Data: bus.RSOffset(bc.RSLine, w), Width: w})
		if err != nil {
			mem.Close()
			return nil, err
		}
		return b, nil
	case "sim":
		po, err := panelsim.ForChip(d.cfg.Panel.Chip)
		if err != nil {
			return nil, err
		}
		if d.cfg.Panel.Width > 0 && d.cfg.Panel.Height > 0 {
			po.Width, po.Height = d.cfg.Panel.Width, d.cfg.Panel.Height
		}
		d.Panel = panelsim.New(po)
		return panelsim.NewBus(d.Panel, bus.Width(bc.Width))
	}
	return nil, fmt.Errorf("device: unknown bus kind %q", bc.Kind)
}

func (d *Device) openSPI() (*bus.Bus, error) {
	bc := d.cfg.Bus
	port, err := spireg.Open(bc.Port)
	if err != nil {
		return nil, fmt.Errorf("device: failed to open SPI port %q: %w", bc.Port, err)
	}
	bits := 8
	if bc.Kind == "spi9" && bc.Frame9 == "native" {
		bits = 9
	}
	conn, err := port.Connect(physicHz(bc.SpeedHz), spi.Mode0, bits)
	if err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("device: failed to connect SPI: %w", err)
	}
	d.closers = append(d.closers, port.Close)

	// CS may be left to the SPI controller.
	cs, err := pinByName(bc.CS)
	if err != nil {
		return nil, err
	}
	if bc.Kind == "spi9" {
		framing := bus.Frame9Native
		if bc.Frame9 == "packed" {
			framing = bus.Frame9Packed
		}
		return bus.NewSPI9(conn, outOrNil(cs), framing, bus.SPIOptions{}), nil
	}
	dc, err := mustPins(bc.DC)
	if err != nil {
		return nil, err
	}
	return bus.NewSPI(conn, outOrNil(cs), dc[0], bus.SPIOptions{}), nil
}

// outOrNil keeps an absent pin a nil interface after conversion.
func outOrNil(p gpio.PinIO) gpio.PinOut {
	if p == nil {
		return nil
	}
	return p
}

func openParallel(bc config.BusConfig) (*bus.Bus, error) {
	data, err := mustPins(bc.Data...)
	if err != nil {
		return nil, err
	}
	ctl, err := mustPins(bc.RS, bc.WR)
	if err != nil {
		return nil, err
	}
	rd, err := pinByName(bc.RD)
	if err != nil {
		return nil, err
	}
	cs, err := pinByName(bc.CS)
	if err != nil {
		return nil, err
	}
	ns := func(v int) time.Duration { return time.Duration(v) * time.Nanosecond }
	t := bc.Timing
	return bus.NewParallel(bus.ParallelPins{
		Data: data,
		CS:   outOrNil(cs),
		RS:   ctl[0],
		WR:   ctl[1],
		RD:   outOrNil(rd),
	}, bus.ParallelOptions{
		Timing: bus.Timing{WriteLow: ns(t.WriteLowNS), WriteHigh: ns(t.WriteHighNS), ReadLow: ns(t.ReadLowNS), ReadHigh: ns(t.ReadHighNS)},
	})
}

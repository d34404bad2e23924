package touch

import (
	"context"
	"fmt"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/physic"
)

// FT6x36 registers.
const (
	FT6x36Addr = 0x38

	ftTDStatus = 0x02
	ftGMode    = 0xA4
	ftThGroup  = 0x80
)

// FT6x36 is a capacitive touch controller on I2C. It reports pixels
// directly, so it is usually paired with an Identity calibration.
type FT6x36 struct {
	dev *i2c.Dev
	buf [5]byte
}

// NewFT6x36 talks to the controller at addr (0 means 0x38) on b. The bus
// is switched to 400kHz.
func NewFT6x36(b i2c.Bus, addr uint16) (*FT6x36, error) {
	if addr == 0 {
		addr = FT6x36Addr
	}
	if err := b.SetSpeed(400 * physic.KiloHertz); err != nil {
		return nil, fmt.Errorf("touch: ft6x36 set speed: %w", err)
	}
	return &FT6x36{dev: &i2c.Dev{Bus: b, Addr: addr}}, nil
}

func (d *FT6x36) readReg(reg byte) (byte, error) {
	w := []byte{reg}
	r := []byte{0}
	if err := d.dev.Tx(w, r); err != nil {
		return 0, err
	}
	return r[0], nil
}

// Configure sets polling mode and the touch threshold.
func (d *FT6x36) Configure(threshold byte) error {
	if err := d.dev.Tx([]byte{ftGMode, 0x00}, nil); err != nil {
		return fmt.Errorf("touch: ft6x36 set mode: %w", err)
	}
	if err := d.dev.Tx([]byte{ftThGroup, threshold}, nil); err != nil {
		return fmt.Errorf("touch: ft6x36 set threshold: %w", err)
	}
	return nil
}

// VendorID reads the focaltech panel ID register (0xA8).
func (d *FT6x36) VendorID() (byte, error) {
	return d.readReg(0xA8)
}

// Sample reads TD_STATUS and the first touch point in one transfer.
func (d *FT6x36) Sample(_ context.Context) (Sample, error) {
	if err := d.dev.Tx([]byte{ftTDStatus}, d.buf[:]); err != nil {
		return Sample{}, fmt.Errorf("touch: ft6x36 read: %w", err)
	}
	rd := d.buf
	switch n := rd[0] & 0x0F; {
	case n == 0, n > 2:
		return Sample{}, nil
	}
	return Sample{
		X:       int(rd[1]&0x0F)<<8 + int(rd[2]),
		Y:       int(rd[3]&0x0F)<<8 + int(rd[4]),
		Pressed: true,
	}, nil
}

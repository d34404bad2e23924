package touch

import (
	"context"
	"fmt"

	"periph.io/x/conn/v3/spi"
)

// XPT2046 control bytes: start bit, channel, 12-bit differential mode.
const (
	xptZ1 = 0xB1
	xptZ2 = 0xC1
	xptX  = 0xD1
	xptY  = 0x91
	// xptYPowerDown is the last Y conversion with PD1/PD0 cleared so the
	// pen IRQ is re-armed.
	xptYPowerDown = 0x90
)

// XPT2046 is a resistive touch controller on its own SPI chip select.
type XPT2046 struct {
	conn spi.Conn
	// Threshold is the minimum pressure counted as a touch.
	Threshold int
	// Samples per axis; the median is reported.
	Samples int

	w, r [3]byte
	xs   []int
	ys   []int
}

// NewXPT2046 wraps conn, which must be configured for mode 0 and at most
// 2.5MHz.
func NewXPT2046(conn spi.Conn) *XPT2046 {
	return &XPT2046{conn: conn, Threshold: 400, Samples: 5}
}

func (d *XPT2046) read12(cmd byte) (int, error) {
	d.w = [3]byte{cmd, 0, 0}
	if err := d.conn.Tx(d.w[:], d.r[:]); err != nil {
		return 0, fmt.Errorf("touch: xpt2046 tx 0x%02x: %w", cmd, err)
	}
	return int(uint16(d.r[1])<<8|uint16(d.r[2])) >> 3, nil
}

func (d *XPT2046) Sample(ctx context.Context) (Sample, error) {
	z1, err := d.read12(xptZ1)
	if err != nil {
		return Sample{}, err
	}
	z2, err := d.read12(xptZ2)
	if err != nil {
		return Sample{}, err
	}
	z := max(z1+4095-z2, 0)
	if z < d.Threshold {
		// Power down so the pen IRQ works while idle.
		if _, err := d.read12(xptYPowerDown); err != nil {
			return Sample{}, err
		}
		return Sample{Z: z}, nil
	}

	n := max(d.Samples, 1)
	d.xs, d.ys = d.xs[:0], d.ys[:0]
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return Sample{}, err
		}
		x, err := d.read12(xptX)
		if err != nil {
			return Sample{}, err
		}
		cmd := byte(xptY)
		if i == n-1 {
			cmd = xptYPowerDown
		}
		y, err := d.read12(cmd)
		if err != nil {
			return Sample{}, err
		}
		d.xs = append(d.xs, x)
		d.ys = append(d.ys, y)
	}
	return Sample{X: median(d.xs), Y: median(d.ys), Z: z, Pressed: true}, nil
}

// Package controller translates drawing operations (window addressing,
// rotation, pixel bursts, read-back) into the command/data sequences of a
// specific TFT controller chip, on top of a bus.Transport.
//
// A Controller starts Uninitialized and becomes Ready after Init. Calling
// anything else before Init is a caller error and is not guarded. No
// operation reports errors; a miswired panel simply shows garbage, and the
// advisory ID read (Verify) is the only bring-up check.
package controller

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"periph.io/x/conn/v3/gpio"

	"hasptft/internal/bus"
	appLog "hasptft/internal/log"
)

// Controller is the chip-level protocol consumed by the frame composer.
type Controller interface {
	Name() string
	Init()

	// Size is the panel size for the current rotation.
	Size() (w, h int)
	NativeSize() (w, h int)

	Rotation() int
	SetRotation(r int)
	// RotationBits is the memory-access-control pattern (MADCTL, or the
	// entry-mode register on ILI932x) written for rotation r.
	RotationBits(r int) uint16

	StartWrite()
	EndWrite()
	SetWindowAddress(x0, y0, x1, y1 int)
	WritePixels(px []uint16)
	WriteColor(c uint16, n int)

	// CanRead reports whether pixel read-back is expected to work over the
	// configured bus.
	CanRead() bool
	ReadPixel(x, y int) uint16
	ReadRect(x, y, w, h int, dst []uint16)

	ReadID() uint32
	ExpectedID() uint32
	ReadRegister(reg uint8, n int) uint32

	SetInversion(on bool)
	SetDisplay(on bool)
}

// Options tunes a controller at construction time.
type Options struct {
	// Width and Height override the chip's native size (rotation 0).
	Width, Height int
	// Rotation applied during Init.
	Rotation int
	// BGR flips the colour-order bit of the rotation patterns, for panels
	// wired with red and blue swapped.
	BGR bool
	// Invert enables display inversion after Init.
	Invert bool
	// Serial marks a SPI bus. Some chips only accept 18-bit pixels there.
	Serial bool
	// Reset is the hardware reset line; nil falls back to a software reset.
	Reset gpio.PinOut
	// Sleep waits for init delays. Defaults to time.Sleep.
	Sleep func(time.Duration)
}

type constructor func(tr bus.Transport, opts Options) Controller

var kinds = map[string]constructor{
	"ili9341":  func(tr bus.Transport, o Options) Controller { return newDCS(ili9341, tr, o) },
	"ili9486":  func(tr bus.Transport, o Options) Controller { return newDCS(ili9486, tr, o) },
	"ili9488":  func(tr bus.Transport, o Options) Controller { return newDCS(ili9488, tr, o) },
	"hx8357b":  func(tr bus.Transport, o Options) Controller { return newDCS(hx8357b, tr, o) },
	"ili9325c": newILI9325,
}

// Kinds lists the supported chip names.
func Kinds() []string {
	out := make([]string, 0, len(kinds))
	for k := range kinds {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// New returns the controller for chip kind, driving tr. The returned
// controller is Uninitialized.
func New(kind string, tr bus.Transport, opts Options) (Controller, error) {
	if tr == nil {
		return nil, fmt.Errorf("controller: nil transport")
	}
	mk, ok := kinds[strings.ToLower(strings.TrimSpace(kind))]
	if !ok {
		return nil, fmt.Errorf("controller: unknown chip %q (supported: %s)", kind, strings.Join(Kinds(), ", "))
	}
	if opts.Sleep == nil {
		opts.Sleep = time.Sleep
	}
	return mk(tr, opts), nil
}

// Verify reads the chip ID and compares it with the one expected for the
// configured chip. A mismatch is logged and reported but never stops the
// caller from using the panel.
func Verify(c Controller) (id uint32, ok bool) {
	id = c.ReadID()
	want := c.ExpectedID()
	if id != want {
		appLog.Warn("controller: unexpected chip id, continuing with configured chip",
			"chip", c.Name(),
			"id", fmt.Sprintf("0x%06x", id),
			"expected", fmt.Sprintf("0x%06x", want),
		)
		return id, false
	}
	appLog.Info("controller: chip id ok", "chip", c.Name(), "id", fmt.Sprintf("0x%06x", id))
	return id, true
}

// transportReads reports whether tr can clock data back. Transports that do
// not expose CanRead are taken to be readable.
func transportReads(tr bus.Transport) bool {
	r, ok := tr.(interface{ CanRead() bool })
	return !ok || r.CanRead()
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// normWindow clamps a window to a w×h panel and orders its corners.
func normWindow(x0, y0, x1, y1, w, h int) (int, int, int, int) {
	if x0 > x1 {
		x0, x1 = x1, x0
	}
	if y0 > y1 {
		y0, y1 = y1, y0
	}
	return clamp(x0, 0, w-1), clamp(y0, 0, h-1), clamp(x1, 0, w-1), clamp(y1, 0, h-1)
}

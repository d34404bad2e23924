package controller

import (
	"time"

	"hasptft/internal/bus"
	appLog "hasptft/internal/log"
)

// ILI932x registers. The chip is register-indexed: a 16-bit index written as
// a command, then a 16-bit value as data.
const (
	RegID         = 0x00
	RegDriverOut  = 0x01
	RegEntryMode  = 0x03
	RegDisplay    = 0x07
	RegGRAMX      = 0x20
	RegGRAMY      = 0x21
	RegGRAM       = 0x22
	RegHStart     = 0x50
	RegHEnd       = 0x51
	RegVStart     = 0x52
	RegVEnd       = 0x53
	RegBaseImage  = 0x61
	entryModeBGR  = 0x1000
	baseImageREV  = 0x0001
	displayOnBits = 0x0133
)

// Entry-mode (R03) patterns per rotation: address direction and AM bit.
var ili9325Entry = [4]uint16{0x1030, 0x1028, 0x1000, 0x1018}

type regStep struct {
	reg, val uint16
	delay    time.Duration
}

var ili9325Init = []regStep{
	{reg: 0xE5, val: 0x78F0},
	{reg: RegDriverOut, val: 0x0100}, // SS
	{reg: 0x02, val: 0x0700},         // line inversion
	{reg: RegEntryMode, val: 0x1030},
	{reg: 0x04, val: 0x0000},
	{reg: 0x08, val: 0x0207},
	{reg: 0x09, val: 0x0000},
	{reg: 0x0A, val: 0x0000},
	{reg: 0x0C, val: 0x0000},
	{reg: 0x0D, val: 0x0000},
	{reg: 0x0F, val: 0x0000},
	// power on sequence
	{reg: 0x10, val: 0x0000},
	{reg: 0x11, val: 0x0007},
	{reg: 0x12, val: 0x0000},
	{reg: 0x13, val: 0x0000, delay: 200 * ms},
	{reg: 0x10, val: 0x1690},
	{reg: 0x11, val: 0x0227, delay: 50 * ms},
	{reg: 0x12, val: 0x000D, delay: 50 * ms},
	{reg: 0x13, val: 0x1200},
	{reg: 0x29, val: 0x000A},
	{reg: 0x2B, val: 0x000D, delay: 50 * ms},
	{reg: RegGRAMX, val: 0x0000},
	{reg: RegGRAMY, val: 0x0000},
	// gamma
	{reg: 0x30, val: 0x0000},
	{reg: 0x31, val: 0x0404},
	{reg: 0x32, val: 0x0003},
	{reg: 0x35, val: 0x0405},
	{reg: 0x36, val: 0x0808},
	{reg: 0x37, val: 0x0407},
	{reg: 0x38, val: 0x0303},
	{reg: 0x39, val: 0x0707},
	{reg: 0x3C, val: 0x0504},
	{reg: 0x3D, val: 0x0808},
	{reg: RegHStart, val: 0x0000},
	{reg: RegHEnd, val: 0x00EF},
	{reg: RegVStart, val: 0x0000},
	{reg: RegVEnd, val: 0x013F},
	{reg: 0x60, val: 0xA700}, // gate scan, 320 lines
	{reg: RegBaseImage, val: baseImageREV},
	{reg: 0x6A, val: 0x0000},
	{reg: 0x80, val: 0x0000},
	{reg: 0x81, val: 0x0000},
	{reg: 0x82, val: 0x0000},
	{reg: 0x83, val: 0x0000},
	{reg: 0x84, val: 0x0000},
	{reg: 0x85, val: 0x0000},
	{reg: 0x90, val: 0x0010},
	{reg: 0x92, val: 0x0600},
	{reg: RegDisplay, val: displayOnBits},
}

// ili9325 drives the ILI9325C. Unlike the DCS chips it has no MADCTL
// swap: rotation changes the GRAM scan direction, so windows are mapped to
// physical coordinates in software.
type ili9325 struct {
	tr    bus.Transport
	opts  Options
	w, h  int
	rot   int
	ready bool
}

func newILI9325(tr bus.Transport, opts Options) Controller {
	c := &ili9325{tr: tr, opts: opts, w: 240, h: 320, rot: opts.Rotation & 3}
	if opts.Width > 0 {
		c.w = opts.Width
	}
	if opts.Height > 0 {
		c.h = opts.Height
	}
	return c
}

func (c *ili9325) Name() string            { return "ILI9325C" }
func (c *ili9325) NativeSize() (int, int)  { return c.w, c.h }
func (c *ili9325) Rotation() int           { return c.rot }
func (c *ili9325) ExpectedID() uint32      { return 0x9325 }
func (c *ili9325) CanRead() bool           { return transportReads(c.tr) }
func (c *ili9325) StartWrite()             { c.tr.StartTransaction() }
func (c *ili9325) EndWrite()               { c.tr.EndTransaction() }
func (c *ili9325) WritePixels(px []uint16) { c.tr.WriteData16Slice(px) }

func (c *ili9325) Size() (int, int) {
	if c.rot&1 == 1 {
		return c.h, c.w
	}
	return c.w, c.h
}

func (c *ili9325) RotationBits(r int) uint16 {
	v := ili9325Entry[r&3]
	if c.opts.BGR {
		v ^= entryModeBGR
	}
	return v
}

func (c *ili9325) writeReg(reg, val uint16) {
	c.tr.StartTransaction()
	c.tr.WriteCommand16(reg)
	c.tr.WriteData16(val)
	c.tr.EndTransaction()
}

func (c *ili9325) Init() {
	if c.ready {
		return
	}
	appLog.Debug("controller: init", "chip", c.Name(), "bus_width", int(c.tr.Width()))
	c.tr.Init()
	hardReset(c.opts.Reset, c.opts.Sleep)
	for _, s := range ili9325Init {
		c.writeReg(s.reg, s.val)
		if s.delay > 0 {
			c.opts.Sleep(s.delay)
		}
	}
	c.ready = true
	c.SetRotation(c.rot)
	if c.opts.Invert {
		c.SetInversion(true)
	}
}

func (c *ili9325) SetRotation(r int) {
	c.rot = r & 3
	c.writeReg(RegEntryMode, c.RotationBits(c.rot))
}

// SetInversion flips the REV bit; the panel's normal state already has it
// set.
func (c *ili9325) SetInversion(on bool) {
	v := uint16(baseImageREV)
	if on {
		v = 0
	}
	c.writeReg(RegBaseImage, v)
}

func (c *ili9325) SetDisplay(on bool) {
	v := uint16(0)
	if on {
		v = displayOnBits
	}
	c.writeReg(RegDisplay, v)
}

// physical maps a logical window (current rotation) to GRAM window bounds
// and the start address the scan begins at.
func (c *ili9325) physical(x0, y0, x1, y1 int) (h0, h1, v0, v1, sx, sy int) {
	W, H := c.w, c.h
	switch c.rot {
	case 1:
		return W - 1 - y1, W - 1 - y0, x0, x1, W - 1 - y0, x0
	case 2:
		return W - 1 - x1, W - 1 - x0, H - 1 - y1, H - 1 - y0, W - 1 - x0, H - 1 - y0
	case 3:
		return y0, y1, H - 1 - x1, H - 1 - x0, y0, H - 1 - x0
	default:
		return x0, x1, y0, y1, x0, y0
	}
}

func (c *ili9325) window(x0, y0, x1, y1 int) {
	w, h := c.Size()
	x0, y0, x1, y1 = normWindow(x0, y0, x1, y1, w, h)
	h0, h1, v0, v1, sx, sy := c.physical(x0, y0, x1, y1)
	c.tr.StartTransaction()
	c.writeReg(RegHStart, uint16(h0))
	c.writeReg(RegHEnd, uint16(h1))
	c.writeReg(RegVStart, uint16(v0))
	c.writeReg(RegVEnd, uint16(v1))
	c.writeReg(RegGRAMX, uint16(sx))
	c.writeReg(RegGRAMY, uint16(sy))
	c.tr.WriteCommand16(RegGRAM)
	c.tr.EndTransaction()
}

func (c *ili9325) SetWindowAddress(x0, y0, x1, y1 int) {
	c.window(x0, y0, x1, y1)
}

func (c *ili9325) WriteColor(col uint16, n int) { c.tr.WriteData16N(col, n) }

func (c *ili9325) ReadPixel(x, y int) uint16 {
	var px [1]uint16
	c.ReadRect(x, y, 1, 1, px[:])
	return px[0]
}

// ReadRect reads GRAM through R22. The first word after the index is a
// dummy; pixels then come back as RGB565 words.
func (c *ili9325) ReadRect(x, y, w, h int, dst []uint16) {
	if w <= 0 || h <= 0 {
		return
	}
	c.tr.StartTransaction()
	c.window(x, y, x+w-1, y+h-1)
	c.tr.ReadData16()
	for i := 0; i < w*h; i++ {
		dst[i] = c.tr.ReadData16()
	}
	c.tr.EndTransaction()
}

// ReadRegister reads a 16-bit register. Register reads have no dummy
// cycle on this chip; n is ignored beyond 2 bytes.
func (c *ili9325) ReadRegister(reg uint8, n int) uint32 {
	c.tr.StartTransaction()
	defer c.tr.EndTransaction()
	c.tr.WriteCommand16(uint16(reg))
	v := uint32(c.tr.ReadData16())
	if n == 1 {
		return v & 0xFF
	}
	return v
}

func (c *ili9325) ReadID() uint32 { return c.ReadRegister(RegID, 2) }

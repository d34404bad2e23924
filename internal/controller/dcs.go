package controller

import (
	"time"

	"periph.io/x/conn/v3/gpio"

	"hasptft/internal/bus"
	"hasptft/internal/convert"
	appLog "hasptft/internal/log"
)

// MIPI DCS opcodes shared by the ILI934x/ILI948x/HX8357 family.
const (
	CmdNOP     = 0x00
	CmdSWRESET = 0x01
	CmdSLPOUT  = 0x11
	CmdINVOFF  = 0x20
	CmdINVON   = 0x21
	CmdDISPOFF = 0x28
	CmdDISPON  = 0x29
	CmdCASET   = 0x2A
	CmdPASET   = 0x2B
	CmdRAMWR   = 0x2C
	CmdRAMRD   = 0x2E
	CmdMADCTL  = 0x36
	CmdCOLMOD  = 0x3A
	CmdRDID4   = 0xD3
)

// MADCTL bits.
const (
	MadMY  = 0x80
	MadMX  = 0x40
	MadMV  = 0x20
	MadML  = 0x10
	MadBGR = 0x08
	MadMH  = 0x04
)

// step is one init-table entry: a command, its parameters, then a wait.
type step struct {
	cmd   uint8
	data  []byte
	delay time.Duration
}

// chip describes one DCS-style controller. Everything that differs between
// chips is data here; dcs holds the shared protocol.
type chip struct {
	name          string
	width, height int
	madctl        [4]uint8
	idReg         uint8
	idBytes       int
	id            uint32
	init          []step

	// readPerPixel: burst reads return pixels out of sequence on some
	// samples, so every pixel gets its own window and transaction.
	readPerPixel bool
	// rotationKeepsBusOpen: MADCTL command and parameter go out in one
	// transaction instead of two separately bracketed writes.
	rotationKeepsBusOpen bool
	// serial18: on SPI the chip only takes 18-bit (3 byte) pixels.
	serial18 bool
	noRead   bool
}

type dcs struct {
	c    chip
	tr   bus.Transport
	opts Options

	w, h  int
	rot   int
	ready bool

	pixel18 bool
	win     [4]byte
	scratch []byte
	rd      byteReader
}

func newDCS(c chip, tr bus.Transport, opts Options) *dcs {
	d := &dcs{c: c, tr: tr, opts: opts, w: c.width, h: c.height}
	if opts.Width > 0 {
		d.w = opts.Width
	}
	if opts.Height > 0 {
		d.h = opts.Height
	}
	d.rot = opts.Rotation & 3
	d.pixel18 = c.serial18 && opts.Serial
	if d.pixel18 {
		d.scratch = make([]byte, 3*64)
	}
	d.rd.tr = tr
	return d
}

func (d *dcs) Name() string { return d.c.name }

func (d *dcs) NativeSize() (int, int) { return d.w, d.h }

func (d *dcs) Size() (int, int) {
	if d.rot&1 == 1 {
		return d.h, d.w
	}
	return d.w, d.h
}

func (d *dcs) Rotation() int { return d.rot }

func (d *dcs) ExpectedID() uint32 { return d.c.id }

func (d *dcs) CanRead() bool { return !d.c.noRead && transportReads(d.tr) }

func (d *dcs) RotationBits(r int) uint16 {
	m := d.c.madctl[r&3]
	if d.opts.BGR {
		m ^= MadBGR
	}
	return uint16(m)
}

// Init resets the chip and runs its init table. A second call is a no-op.
func (d *dcs) Init() {
	if d.ready {
		return
	}
	appLog.Debug("controller: init", "chip", d.c.name, "bus_width", int(d.tr.Width()))
	d.tr.Init()
	hardReset(d.opts.Reset, d.opts.Sleep)
	if d.opts.Reset == nil {
		d.tr.WriteCommandTransaction(CmdSWRESET)
		d.opts.Sleep(150 * time.Millisecond)
	}
	for _, s := range d.c.init {
		d.command(s.cmd, s.data...)
		if s.delay > 0 {
			d.opts.Sleep(s.delay)
		}
	}
	if d.pixel18 {
		d.command(CmdCOLMOD, 0x66)
	}
	d.ready = true
	d.SetRotation(d.rot)
	if d.opts.Invert {
		d.SetInversion(true)
	}
}

func hardReset(pin gpio.PinOut, sleep func(time.Duration)) {
	if pin == nil {
		return
	}
	// Pin errors surface as a panel that never comes up.
	_ = pin.Out(gpio.High)
	sleep(10 * time.Millisecond)
	_ = pin.Out(gpio.Low)
	sleep(10 * time.Millisecond)
	_ = pin.Out(gpio.High)
	sleep(120 * time.Millisecond)
}

// command writes cmd followed by its parameters in one transaction.
func (d *dcs) command(cmd uint8, data ...byte) {
	d.tr.StartTransaction()
	d.tr.WriteCommand(cmd)
	d.tr.WriteDataBytes(data)
	d.tr.EndTransaction()
}

func (d *dcs) SetRotation(r int) {
	d.rot = r & 3
	m := uint8(d.RotationBits(d.rot))
	if d.c.rotationKeepsBusOpen {
		d.command(CmdMADCTL, m)
		return
	}
	d.tr.WriteCommandTransaction(CmdMADCTL)
	d.tr.WriteDataTransaction(m)
}

func (d *dcs) SetInversion(on bool) {
	if on {
		d.tr.WriteCommandTransaction(CmdINVON)
		return
	}
	d.tr.WriteCommandTransaction(CmdINVOFF)
}

func (d *dcs) SetDisplay(on bool) {
	if on {
		d.tr.WriteCommandTransaction(CmdDISPON)
		return
	}
	d.tr.WriteCommandTransaction(CmdDISPOFF)
}

func (d *dcs) StartWrite() { d.tr.StartTransaction() }
func (d *dcs) EndWrite()   { d.tr.EndTransaction() }

func (d *dcs) SetWindowAddress(x0, y0, x1, y1 int) {
	d.window(x0, y0, x1, y1, CmdRAMWR)
}

// window programs CASET/PASET with big-endian bounds and finishes with the
// memory command that starts the burst.
func (d *dcs) window(x0, y0, x1, y1 int, mem uint8) {
	w, h := d.Size()
	x0, y0, x1, y1 = normWindow(x0, y0, x1, y1, w, h)
	d.tr.StartTransaction()
	d.tr.WriteCommand(CmdCASET)
	d.win = [4]byte{byte(x0 >> 8), byte(x0), byte(x1 >> 8), byte(x1)}
	d.tr.WriteDataBytes(d.win[:])
	d.tr.WriteCommand(CmdPASET)
	d.win = [4]byte{byte(y0 >> 8), byte(y0), byte(y1 >> 8), byte(y1)}
	d.tr.WriteDataBytes(d.win[:])
	d.tr.WriteCommand(mem)
	d.tr.EndTransaction()
}

func (d *dcs) WritePixels(px []uint16) {
	if !d.pixel18 {
		d.tr.WriteData16Slice(px)
		return
	}
	d.tr.StartTransaction()
	for len(px) > 0 {
		k := min(len(px), len(d.scratch)/3)
		n := convert.Expand666(d.scratch, px[:k])
		d.tr.WriteDataBytes(d.scratch[:n])
		px = px[k:]
	}
	d.tr.EndTransaction()
}

func (d *dcs) WriteColor(c uint16, n int) {
	if !d.pixel18 {
		d.tr.WriteData16N(c, n)
		return
	}
	r, g, b := convert.RGB666(c)
	for i := 0; i < len(d.scratch); i += 3 {
		d.scratch[i], d.scratch[i+1], d.scratch[i+2] = r, g, b
	}
	d.tr.StartTransaction()
	for n > 0 {
		k := min(n, len(d.scratch)/3)
		d.tr.WriteDataBytes(d.scratch[:3*k])
		n -= k
	}
	d.tr.EndTransaction()
}

func (d *dcs) ReadPixel(x, y int) uint16 {
	var px [1]uint16
	d.ReadRect(x, y, 1, 1, px[:])
	return px[0]
}

// ReadRect reads w×h pixels into dst. The chip answers RAMRD with one dummy
// unit followed by R, G, B bytes per pixel.
func (d *dcs) ReadRect(x, y, w, h int, dst []uint16) {
	if w <= 0 || h <= 0 {
		return
	}
	if d.c.readPerPixel {
		i := 0
		for py := y; py < y+h; py++ {
			for px := x; px < x+w; px++ {
				d.tr.StartTransaction()
				d.window(px, py, px, py, CmdRAMRD)
				d.rd.reset()
				d.rd.dummy()
				dst[i] = d.rd.pixel()
				d.tr.EndTransaction()
				i++
			}
		}
		return
	}
	d.tr.StartTransaction()
	d.window(x, y, x+w-1, y+h-1, CmdRAMRD)
	d.rd.reset()
	d.rd.dummy()
	for i := 0; i < w*h; i++ {
		dst[i] = d.rd.pixel()
	}
	d.tr.EndTransaction()
}

// ReadRegister issues reg, skips one dummy byte, then assembles n bytes
// (at most 4) MSB first.
func (d *dcs) ReadRegister(reg uint8, n int) uint32 {
	n = clamp(n, 1, 4)
	d.tr.StartTransaction()
	defer d.tr.EndTransaction()
	d.tr.WriteCommand(reg)
	d.tr.ReadData()
	var v uint32
	for i := 0; i < n; i++ {
		v = v<<8 | uint32(d.tr.ReadData())
	}
	return v
}

func (d *dcs) ReadID() uint32 {
	return d.ReadRegister(d.c.idReg, d.c.idBytes)
}

// byteReader turns the bus read units into a byte stream: one byte per
// read on an 8-bit bus, two (high first) on a 16-bit bus.
type byteReader struct {
	tr      bus.Transport
	lo      uint8
	pending bool
}

func (r *byteReader) reset() { r.pending = false }

func (r *byteReader) dummy() {
	if r.tr.Width() == bus.Width16 {
		r.tr.ReadData16()
		return
	}
	r.tr.ReadData()
}

func (r *byteReader) next() uint8 {
	if r.tr.Width() != bus.Width16 {
		return r.tr.ReadData()
	}
	if r.pending {
		r.pending = false
		return r.lo
	}
	w := r.tr.ReadData16()
	r.lo, r.pending = uint8(w), true
	return uint8(w >> 8)
}

func (r *byteReader) pixel() uint16 {
	red := r.next()
	green := r.next()
	blue := r.next()
	return convert.RGB565(red, green, blue)
}

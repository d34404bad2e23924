// Package panelsim is a behavioural model of an ILI-family DCS panel: it
// decodes the command/data stream, keeps a GRAM and answers reads the way
// the chip does (dummy unit first, RGB666 bytes per pixel). It implements
// bus.Region, so the memory-mapped binding can drive it directly on a host.
package panelsim

import (
	"fmt"
	"image"
	"strings"
	"sync"

	"hasptft/internal/bus"
	"hasptft/internal/convert"
)

// Register offsets of the simulated bus window.
const (
	CommandOffset uintptr = 0
	DataOffset    uintptr = 2
)

// NewBus returns a memory-mapped bus of width w driving p.
func NewBus(p *Panel, w bus.Width) (*bus.Bus, error) {
	return bus.NewMapped(p, bus.MappedOptions{Command: CommandOffset, Data: DataOffset, Width: w})
}

// Options describes the simulated chip.
type Options struct {
	Width, Height int
	// IDReg answers with one dummy byte then ID, IDBytes long, MSB first.
	IDReg   uint8
	ID      uint32
	IDBytes int
	// MirrorX is set when the glass is wired mirrored horizontally, so the
	// MX bit restores normal orientation (ILI934x/ILI948x modules).
	MirrorX bool
}

// ForChip returns the options matching a controller kind.
func ForChip(kind string) (Options, error) {
	switch strings.ToLower(kind) {
	case "ili9341":
		return Options{Width: 240, Height: 320, IDReg: 0xD3, ID: 0x009341, IDBytes: 3, MirrorX: true}, nil
	case "ili9486":
		return Options{Width: 320, Height: 480, IDReg: 0xD3, ID: 0x009486, IDBytes: 3, MirrorX: true}, nil
	case "ili9488":
		return Options{Width: 320, Height: 480, IDReg: 0xD3, ID: 0x009488, IDBytes: 3, MirrorX: true}, nil
	case "hx8357b":
		return Options{Width: 320, Height: 480, IDReg: 0xD0, ID: 0x90, IDBytes: 1}, nil
	}
	return Options{}, fmt.Errorf("panelsim: no model for chip %q", kind)
}

const (
	cmdSWRESET = 0x01
	cmdSLPIN   = 0x10
	cmdSLPOUT  = 0x11
	cmdINVOFF  = 0x20
	cmdINVON   = 0x21
	cmdDISPOFF = 0x28
	cmdDISPON  = 0x29
	cmdCASET   = 0x2A
	cmdPASET   = 0x2B
	cmdRAMWR   = 0x2C
	cmdRAMRD   = 0x2E
	cmdRDMADCT = 0x0B
	cmdMADCTL  = 0x36
	cmdCOLMOD  = 0x3A

	madMY = 0x80
	madMX = 0x40
	madMV = 0x20
)

type mode int

const (
	modeIdle mode = iota
	modeParams
	modeWrite
	modeRead
	modeRegRead
)

// Stats counts decoded traffic.
type Stats struct {
	Commands uint64
	Pixels   uint64
	Reads    uint64
}

// Panel is a simulated panel. It is safe for concurrent use so a window can
// sample the GRAM while a bus writes to it.
type Panel struct {
	opts Options

	mu      sync.Mutex
	gram    []uint16
	madctl  uint8
	colmod  uint8
	sleep   bool
	on      bool
	invert  bool
	stats   Stats
	version uint64

	mode   mode
	cmd    uint8
	params []byte

	xs, xe, ys, ye int
	c, r           int

	acc  [3]byte // partial pixel on an 8-bit interface
	nacc int

	rq      []byte // queued register-read bytes
	rdDummy bool
	rdBuf   []byte
}

// New returns a powered-off, sleeping panel with black GRAM.
func New(opts Options) *Panel {
	if opts.IDBytes == 0 {
		opts.IDBytes = 3
	}
	p := &Panel{opts: opts, gram: make([]uint16, opts.Width*opts.Height)}
	p.reset()
	return p
}

func (p *Panel) reset() {
	p.madctl = 0
	p.colmod = 0x66
	p.sleep = true
	p.on = false
	p.invert = false
	p.mode = modeIdle
	p.xs, p.ys = 0, 0
	p.xe, p.ye = p.opts.Width-1, p.opts.Height-1
}

// Size returns the native (portrait) size.
func (p *Panel) Size() (int, int) { return p.opts.Width, p.opts.Height }

// Store8 receives one bus unit from an 8-bit interface.
func (p *Panel) Store8(off uintptr, v uint8) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if off == CommandOffset {
		p.command(v)
		return
	}
	p.dataByte(v)
}

// Store16 receives one bus unit from a 16-bit interface. Commands and
// parameters use the low byte; GRAM data is one RGB565 pixel per unit.
func (p *Panel) Store16(off uintptr, v uint16) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if off == CommandOffset {
		p.command(uint8(v))
		return
	}
	if p.mode == modeWrite {
		p.putPixel(v)
		return
	}
	p.dataByte(uint8(v))
}

// Load8 returns the next byte of a read on an 8-bit interface.
func (p *Panel) Load8(off uintptr) uint8 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.nextByte()
}

// Load16 returns the next unit on a 16-bit interface: a register byte in
// the low half, or two GRAM read bytes packed high first.
func (p *Panel) Load16(off uintptr) uint16 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.mode != modeRead {
		return uint16(p.nextByte())
	}
	if p.rdDummy {
		p.rdDummy = false
		return 0
	}
	hi := p.nextByte()
	return uint16(hi)<<8 | uint16(p.nextByte())
}

func (p *Panel) command(c uint8) {
	p.stats.Commands++
	p.cmd = c
	p.params = p.params[:0]
	p.mode = modeParams
	p.nacc = 0
	switch c {
	case cmdSWRESET:
		p.reset()
	case cmdSLPIN:
		p.sleep = true
	case cmdSLPOUT:
		p.sleep = false
	case cmdDISPON:
		p.on = true
	case cmdDISPOFF:
		p.on = false
	case cmdINVON:
		p.invert = true
	case cmdINVOFF:
		p.invert = false
	case cmdRAMWR:
		p.mode = modeWrite
		p.c, p.r = p.xs, p.ys
	case cmdRAMRD:
		p.mode = modeRead
		p.c, p.r = p.xs, p.ys
		p.rdDummy = true
		p.rdBuf = p.rdBuf[:0]
	case cmdRDMADCT:
		p.regRead(uint32(p.madctl), 1)
	default:
		if c == p.opts.IDReg {
			p.regRead(p.opts.ID, p.opts.IDBytes)
		}
	}
}

func (p *Panel) regRead(v uint32, n int) {
	p.mode = modeRegRead
	p.rq = append(p.rq[:0], 0) // dummy
	for i := n - 1; i >= 0; i-- {
		p.rq = append(p.rq, byte(v>>(8*i)))
	}
}

func (p *Panel) dataByte(b uint8) {
	switch p.mode {
	case modeWrite:
		p.acc[p.nacc] = b
		p.nacc++
		if p.colmod&0x07 == 0x06 {
			if p.nacc == 3 {
				p.putPixel(convert.RGB565(p.acc[0], p.acc[1], p.acc[2]))
				p.nacc = 0
			}
			return
		}
		if p.nacc == 2 {
			p.putPixel(uint16(p.acc[0])<<8 | uint16(p.acc[1]))
			p.nacc = 0
		}
	case modeParams:
		p.params = append(p.params, b)
		p.param()
	}
}

func (p *Panel) param() {
	a := p.params
	switch p.cmd {
	case cmdCASET:
		if len(a) == 4 {
			p.xs, p.xe = int(a[0])<<8|int(a[1]), int(a[2])<<8|int(a[3])
		}
	case cmdPASET:
		if len(a) == 4 {
			p.ys, p.ye = int(a[0])<<8|int(a[1]), int(a[2])<<8|int(a[3])
		}
	case cmdMADCTL:
		p.madctl = a[0]
	case cmdCOLMOD:
		p.colmod = a[0]
	}
}

// phys maps a memory address (column, page) to a GRAM index, or -1 when
// it falls off the glass.
func (p *Panel) phys(c, r int) int {
	x, y := c, r
	if p.madctl&madMV != 0 {
		x, y = r, c
	}
	if (p.madctl&madMX != 0) != p.opts.MirrorX {
		x = p.opts.Width - 1 - x
	}
	if p.madctl&madMY != 0 {
		y = p.opts.Height - 1 - y
	}
	if x < 0 || y < 0 || x >= p.opts.Width || y >= p.opts.Height {
		return -1
	}
	return y*p.opts.Width + x
}

func (p *Panel) advance() {
	p.c++
	if p.c > p.xe {
		p.c = p.xs
		p.r++
		if p.r > p.ye {
			p.r = p.ys
		}
	}
}

func (p *Panel) putPixel(v uint16) {
	if i := p.phys(p.c, p.r); i >= 0 {
		p.gram[i] = v
	}
	p.stats.Pixels++
	p.version++
	p.advance()
}

func (p *Panel) nextByte() uint8 {
	switch p.mode {
	case modeRegRead:
		if len(p.rq) == 0 {
			return 0
		}
		b := p.rq[0]
		p.rq = p.rq[1:]
		return b
	case modeRead:
		if p.rdDummy {
			p.rdDummy = false
			return 0
		}
		if len(p.rdBuf) == 0 {
			var v uint16
			if i := p.phys(p.c, p.r); i >= 0 {
				v = p.gram[i]
			}
			r, g, b := convert.RGB666(v)
			p.rdBuf = append(p.rdBuf[:0], r, g, b)
			p.stats.Reads++
			p.advance()
		}
		b := p.rdBuf[0]
		p.rdBuf = p.rdBuf[1:]
		return b
	}
	return 0
}

// Pixel returns the GRAM value at a physical (portrait) position.
func (p *Panel) Pixel(x, y int) uint16 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if x < 0 || y < 0 || x >= p.opts.Width || y >= p.opts.Height {
		return 0
	}
	return p.gram[y*p.opts.Width+x]
}

// MADCTL returns the last memory-access-control value written.
func (p *Panel) MADCTL() uint8 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.madctl
}

// Awake reports whether the panel left sleep and the display is on.
func (p *Panel) Awake() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return !p.sleep && p.on
}

// Version changes every time GRAM is written; viewers poll it to skip
// redundant redraws.
func (p *Panel) Version() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.version
}

func (p *Panel) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}

// Snapshot copies the GRAM as it would appear on the glass, with
// inversion applied and a blank screen while asleep or off.
func (p *Panel) Snapshot() *convert.Image565 {
	p.mu.Lock()
	defer p.mu.Unlock()
	img := convert.NewImage565(image.Rect(0, 0, p.opts.Width, p.opts.Height))
	if p.sleep || !p.on {
		return img
	}
	copy(img.Pix, p.gram)
	if p.invert {
		for i, v := range img.Pix {
			img.Pix[i] = ^v
		}
	}
	return img
}

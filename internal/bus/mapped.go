package bus

import "fmt"

// Region is a window of an external memory controller (FSMC/EMC) wired to a
// panel. The address line tied to the panel's RS pin separates the command
// offset from the data offset; the controller hardware generates CS, WR and
// RD strobes, so every transfer is one store or one load.
type Region interface {
	Store8(off uintptr, v uint8)
	Store16(off uintptr, v uint16)
	Load8(off uintptr) uint8
	Load16(off uintptr) uint16
}

// MappedOptions locates the command and data registers inside a Region.
type MappedOptions struct {
	Command uintptr
	Data    uintptr
	Width   Width
}

// RSOffset returns the data register offset for a panel whose RS pin is
// wired to address line a, for a bus of width w (the controller drops A0 on
// 16-bit banks).
func RSOffset(a uint, w Width) uintptr {
	if w == Width16 {
		return 1 << (a + 1)
	}
	return 1 << a
}

type mappedLink struct {
	r    Region
	opts MappedOptions
}

// NewMapped returns a memory-mapped binding over r.
func NewMapped(r Region, opts MappedOptions) (*Bus, error) {
	if r == nil {
		return nil, fmt.Errorf("bus: mapped region is nil")
	}
	switch opts.Width {
	case Width8, Width16:
	case 0:
		opts.Width = Width16
	default:
		return nil, fmt.Errorf("bus: unsupported mapped width %d", opts.Width)
	}
	if opts.Command == opts.Data {
		return nil, fmt.Errorf("bus: mapped command and data offsets are both 0x%x", opts.Command)
	}
	return newBus(&mappedLink{r: r, opts: opts}, nil), nil
}

func (m *mappedLink) name() string           { return fmt.Sprintf("mapped%d", m.opts.Width) }
func (m *mappedLink) width() Width           { return m.opts.Width }
func (m *mappedLink) idle()                  {}
func (m *mappedLink) chipSelect(active bool) {}

func (m *mappedLink) close() error {
	if c, ok := m.r.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}

func (m *mappedLink) reg(data bool) uintptr {
	if data {
		return m.opts.Data
	}
	return m.opts.Command
}

func (m *mappedLink) writeBytes(data bool, p []byte) {
	off := m.reg(data)
	for _, b := range p {
		if m.opts.Width == Width16 {
			m.r.Store16(off, uint16(b))
		} else {
			m.r.Store8(off, b)
		}
	}
}

func (m *mappedLink) writeWords(data bool, p []uint16) {
	off := m.reg(data)
	for _, w := range p {
		if m.opts.Width == Width16 {
			m.r.Store16(off, w)
			continue
		}
		m.r.Store8(off, uint8(w>>8))
		m.r.Store8(off, uint8(w))
	}
}

func (m *mappedLink) readBytes(p []byte) {
	for i := range p {
		if m.opts.Width == Width16 {
			p[i] = uint8(m.r.Load16(m.opts.Data))
		} else {
			p[i] = m.r.Load8(m.opts.Data)
		}
	}
}

func (m *mappedLink) readWords(p []uint16) {
	for i := range p {
		if m.opts.Width == Width16 {
			p[i] = m.r.Load16(m.opts.Data)
			continue
		}
		hi := m.r.Load8(m.opts.Data)
		p[i] = uint16(hi)<<8 | uint16(m.r.Load8(m.opts.Data))
	}
}

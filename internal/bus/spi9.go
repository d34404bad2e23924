package bus

import (
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/spi"
)

// Frame9 selects how 9-bit words (DC bit + 8 payload bits) are put on the
// wire.
type Frame9 int

const (
	// Frame9Native is for controllers configured with 9 bits per word. Each
	// word occupies two bytes, little-endian, as spidev expects for word
	// sizes between 9 and 16 bits.
	Frame9Native Frame9 = iota
	// Frame9Packed is for 8-bit-only hardware: the 9-bit words are packed
	// MSB-first into a continuous bit stream, eight words per nine bytes.
	Frame9Packed
)

func (f Frame9) String() string {
	if f == Frame9Packed {
		return "packed"
	}
	return "native"
}

const dcBit = 0x100

type spi9Link struct {
	conn    spi.Conn
	cs      gpio.PinOut
	framing Frame9
	buf     []byte

	// Packed framing keeps up to seven words that do not yet fill a whole
	// byte boundary. They are flushed when eight accumulate, and sent with a
	// zero-filled last byte when chip select is released or a read starts.
	pending []uint16

	errs *errLatch
}

// NewSPI9 returns a 3-wire SPI binding where the data/command discriminator
// travels as the 9th bit of every word (command=0, data=1), so no DC line is
// toggled per byte. cs may be nil when the hardware drives it.
func NewSPI9(conn spi.Conn, cs gpio.PinOut, framing Frame9, opts SPIOptions) *Bus {
	errs := &errLatch{bus: "spi9"}
	n := opts.bufferSize()
	// Packed groups are 9 bytes, native words 2; keep the buffer a multiple
	// of both.
	n = (n + 17) / 18 * 18
	l := &spi9Link{
		conn:    conn,
		cs:      cs,
		framing: framing,
		buf:     make([]byte, n),
		pending: make([]uint16, 0, n/9*8+8),
		errs:    errs,
	}
	return newBus(l, errs)
}

func (s *spi9Link) name() string { return "spi9-" + s.framing.String() }
func (s *spi9Link) width() Width { return Width8 }
func (s *spi9Link) close() error { return closeConn(s.conn) }

func (s *spi9Link) idle() {
	if s.cs != nil {
		s.errs.set(s.cs.Out(gpio.High))
	}
}

func (s *spi9Link) chipSelect(active bool) {
	if !active {
		s.flushPadded()
	}
	if s.cs != nil {
		s.errs.set(s.cs.Out(gpio.Level(!active)))
	}
}

func (s *spi9Link) tx(w, r []byte) {
	s.errs.set(s.conn.Tx(w, r))
}

func word9(data bool, b uint8) uint16 {
	if data {
		return dcBit | uint16(b)
	}
	return uint16(b)
}

func (s *spi9Link) writeBytes(data bool, p []byte) {
	for _, b := range p {
		s.put(word9(data, b))
	}
	s.flushWhole()
}

func (s *spi9Link) writeWords(data bool, p []uint16) {
	for _, w := range p {
		s.put(word9(data, uint8(w>>8)))
		s.put(word9(data, uint8(w)))
	}
	s.flushWhole()
}

// put queues one 9-bit word, transmitting the buffer when it fills.
func (s *spi9Link) put(w uint16) {
	s.pending = append(s.pending, w)
	limit := len(s.buf) / 2
	if s.framing == Frame9Packed {
		limit = len(s.buf) / 9 * 8
	}
	if len(s.pending) >= limit {
		s.flushWhole()
	}
}

// flushWhole sends every queued word that can go out without padding.
func (s *spi9Link) flushWhole() {
	switch s.framing {
	case Frame9Native:
		pos := 0
		for _, w := range s.pending {
			s.buf[pos] = uint8(w)
			s.buf[pos+1] = uint8(w >> 8)
			pos += 2
			if pos == len(s.buf) {
				s.tx(s.buf[:pos], nil)
				pos = 0
			}
		}
		if pos > 0 {
			s.tx(s.buf[:pos], nil)
		}
		s.pending = s.pending[:0]
	default:
		whole := len(s.pending) / 8 * 8
		if whole == 0 {
			return
		}
		for start := 0; start < whole; {
			end := min(whole, start+len(s.buf)/9*8)
			n := Pack9(s.buf, s.pending[start:end])
			s.tx(s.buf[:n], nil)
			start = end
		}
		rest := copy(s.pending, s.pending[whole:])
		s.pending = s.pending[:rest]
	}
}

// flushPadded sends a partial packed group, zero-filling the last byte. The
// fill is shorter than one 9-bit word, so the panel drops it when CS rises.
func (s *spi9Link) flushPadded() {
	s.flushWhole()
	if s.framing != Frame9Packed || len(s.pending) == 0 {
		return
	}
	n := Pack9(s.buf, s.pending)
	s.tx(s.buf[:n], nil)
	s.pending = s.pending[:0]
}

// canRead is false for packed framing: a read needs the output stream on a
// byte boundary, which only a padding word could give, and any padding word
// is a NOP that ends the read.
func (s *spi9Link) canRead() bool { return s.framing != Frame9Packed }

// Reads need a separate MISO line; the 9th bit is only meaningful on
// output, the panel answers with plain 8-bit bytes.
func (s *spi9Link) readBytes(p []byte) {
	s.flushPadded()
	for i := range s.buf {
		s.buf[i] = 0
	}
	for len(p) > 0 {
		k := min(len(p), len(s.buf))
		s.tx(s.buf[:k], p[:k])
		p = p[k:]
	}
}

func (s *spi9Link) readWords(p []uint16) {
	var two [2]byte
	for i := range p {
		s.readBytes(two[:])
		p[i] = uint16(two[0])<<8 | uint16(two[1])
	}
}

// Pack9 packs 9-bit words MSB-first into dst and returns the number of bytes
// used. A trailing partial byte is zero-filled. dst must hold
// (len(words)*9+7)/8 bytes.
func Pack9(dst []byte, words []uint16) int {
	n := (len(words)*9 + 7) / 8
	for i := 0; i < n; i++ {
		dst[i] = 0
	}
	bit := 0
	for _, w := range words {
		for i := 8; i >= 0; i-- {
			if w&(1<<i) != 0 {
				dst[bit>>3] |= 0x80 >> (bit & 7)
			}
			bit++
		}
	}
	return n
}

// Unpack9 is the inverse of Pack9 for count words.
func Unpack9(src []byte, count int) []uint16 {
	out := make([]uint16, count)
	bit := 0
	for k := range out {
		var w uint16
		for i := 0; i < 9; i++ {
			w <<= 1
			if src[bit>>3]&(0x80>>(bit&7)) != 0 {
				w |= 1
			}
			bit++
		}
		out[k] = w
	}
	return out
}

package bus

import (
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/spi"
)

// maxTx bounds a single spi.Conn.Tx call; spidev rejects larger messages by
// default (bufsiz=4096).
const maxTx = 4096

// SPIOptions tunes the SPI bindings.
type SPIOptions struct {
	// BufferSize is the scratch buffer used to serialize 16-bit words.
	// Defaults to 64 bytes; anything below 2 is raised to 2.
	BufferSize int
}

func (o SPIOptions) bufferSize() int {
	switch {
	case o.BufferSize <= 0:
		return 64
	case o.BufferSize < 2:
		return 2
	}
	return o.BufferSize
}

type spiLink struct {
	conn spi.Conn
	cs   gpio.PinOut // nil when the controller drives CS in hardware
	dc   gpio.PinOut
	buf  []byte
	zero []byte

	dcKnown bool
	dcData  bool

	errs *errLatch
}

// NewSPI returns a 4-wire SPI binding: command/data is selected with the dc
// line, cs is asserted for the duration of each transaction. cs may be nil.
func NewSPI(conn spi.Conn, cs, dc gpio.PinOut, opts SPIOptions) *Bus {
	errs := &errLatch{bus: "spi"}
	n := opts.bufferSize()
	l := &spiLink{
		conn: conn,
		cs:   cs,
		dc:   dc,
		buf:  make([]byte, n),
		zero: make([]byte, n),
		errs: errs,
	}
	return newBus(l, errs)
}

func (s *spiLink) name() string { return "spi" }
func (s *spiLink) width() Width { return Width8 }
func (s *spiLink) close() error { return closeConn(s.conn) }

func (s *spiLink) idle() {
	if s.cs != nil {
		s.errs.set(s.cs.Out(gpio.High))
	}
	s.setDC(true)
}

func (s *spiLink) chipSelect(active bool) {
	if s.cs == nil {
		return
	}
	// CS is active low.
	s.errs.set(s.cs.Out(gpio.Level(!active)))
}

func (s *spiLink) setDC(data bool) {
	if s.dcKnown && s.dcData == data {
		return
	}
	s.errs.set(s.dc.Out(gpio.Level(data)))
	s.dcKnown, s.dcData = true, data
}

func (s *spiLink) tx(w, r []byte) {
	s.errs.set(s.conn.Tx(w, r))
}

func (s *spiLink) writeBytes(data bool, p []byte) {
	s.setDC(data)
	for len(p) > 0 {
		k := min(len(p), maxTx)
		s.tx(p[:k], nil)
		p = p[k:]
	}
}

// writeWords sends each word big-endian, the byte order ILI-family chips
// expect for both 16-bit parameters and RGB565 pixels.
func (s *spiLink) writeWords(data bool, p []uint16) {
	s.setDC(data)
	pos := 0
	for _, w := range p {
		s.buf[pos] = uint8(w >> 8)
		s.buf[pos+1] = uint8(w)
		pos += 2
		if pos+2 > len(s.buf) {
			s.tx(s.buf[:pos], nil)
			pos = 0
		}
	}
	if pos > 0 {
		s.tx(s.buf[:pos], nil)
	}
}

func (s *spiLink) readBytes(p []byte) {
	s.setDC(true)
	for len(p) > 0 {
		k := min(len(p), len(s.zero))
		s.tx(s.zero[:k], p[:k])
		p = p[k:]
	}
}

func (s *spiLink) readWords(p []uint16) {
	var two [2]byte
	for i := range p {
		s.readBytes(two[:])
		p[i] = uint16(two[0])<<8 | uint16(two[1])
	}
}

func closeConn(c any) error {
	// spi.Conn does not expose Close; the port behind it may.
	if closer, ok := c.(interface{ Close() error }); ok {
		return closer.Close()
	}
	return nil
}

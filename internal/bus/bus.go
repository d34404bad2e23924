// Package bus implements the low-level command/data transport used to talk to
// TFT panel controllers. A Bus wraps one physical binding (SPI with a DC line,
// SPI with a 9th discriminator bit, a GPIO parallel port, or a memory-mapped
// external memory controller window) behind a single Transport contract.
//
// Transfers never report errors. A binding records the first error raised by
// the underlying driver, logs it once and keeps going; Err exposes it for
// bring-up diagnostics. A stuck or miswired bus shows up as garbage on the
// panel, not as a failed call.
//
// No Bus is safe for concurrent use. Callers serialize access.
package bus

import (
	"sync"

	appLog "hasptft/internal/log"
)

// Width is the number of data lines carried per transfer unit.
type Width int

const (
	Width8  Width = 8
	Width16 Width = 16
)

// Transport is the command/data contract consumed by controllers.
//
// Plain operations expect the caller to bracket them with StartTransaction and
// EndTransaction. If called outside a transaction they bracket themselves, so
// chip select is always released when a public operation returns outside an
// open transaction. The ...Transaction variants always bracket a single
// exchange; inside an open transaction they nest and do not release chip
// select early.
type Transport interface {
	Init()
	Width() Width

	StartTransaction()
	EndTransaction()

	WriteCommand(c uint8)
	WriteCommand16(c uint16)
	WriteData(b uint8)
	WriteDataN(b uint8, n int)
	WriteDataBytes(p []byte)
	WriteData16(w uint16)
	WriteData16N(w uint16, n int)
	WriteData16Slice(p []uint16)
	ReadData() uint8
	ReadData16() uint16
	ReadDataBytes(p []byte)

	WriteCommandTransaction(c uint8)
	WriteDataTransaction(b uint8)
	WriteData16Transaction(w uint16)
	ReadDataTransaction() uint8
	ReadData16Transaction() uint16

	Err() error
	Close() error
}

// link is what a physical binding has to provide. Everything above it
// (transaction depth, repeat fills, self-bracketing) is shared by Bus.
type link interface {
	name() string
	width() Width
	idle()
	chipSelect(active bool)
	writeBytes(data bool, p []byte)
	writeWords(data bool, p []uint16)
	readBytes(p []byte)
	readWords(p []uint16)
	close() error
}

const fillChunk = 64

// Bus implements Transport over one link.
type Bus struct {
	l     link
	depth int

	byteFill [fillChunk]byte
	wordFill [fillChunk]uint16
	one      [1]uint16

	errs *errLatch
}

var _ Transport = (*Bus)(nil)

func newBus(l link, errs *errLatch) *Bus {
	return &Bus{l: l, errs: errs}
}

// CanRead reports whether the binding can clock data back from the panel.
// Write-only links implement canRead; every other link can read.
func (b *Bus) CanRead() bool {
	if r, ok := b.l.(interface{ canRead() bool }); ok {
		return r.canRead()
	}
	return true
}

// Init drives every control line to its idle level.
func (b *Bus) Init() {
	b.l.idle()
}

func (b *Bus) Width() Width { return b.l.width() }

// Name identifies the binding in logs ("spi", "spi9", "parallel8", ...).
func (b *Bus) Name() string { return b.l.name() }

func (b *Bus) StartTransaction() {
	if b.depth == 0 {
		b.l.chipSelect(true)
	}
	b.depth++
}

func (b *Bus) EndTransaction() {
	if b.depth == 0 {
		return
	}
	b.depth--
	if b.depth == 0 {
		b.l.chipSelect(false)
	}
}

// InTransaction reports whether a transaction is open.
func (b *Bus) InTransaction() bool { return b.depth > 0 }

// auto opens a transaction when none is open; the returned func closes it.
func (b *Bus) auto() func() {
	if b.depth > 0 {
		return func() {}
	}
	b.StartTransaction()
	return b.EndTransaction
}

func (b *Bus) WriteCommand(c uint8) {
	defer b.auto()()
	b.byteFill[0] = c
	b.l.writeBytes(false, b.byteFill[:1])
}

// WriteCommand16 issues a 16-bit register index (ILI932x style). On an 8-bit
// bus it goes out high byte first.
func (b *Bus) WriteCommand16(c uint16) {
	defer b.auto()()
	b.one[0] = c
	b.l.writeWords(false, b.one[:])
}

func (b *Bus) WriteData(v uint8) {
	defer b.auto()()
	b.byteFill[0] = v
	b.l.writeBytes(true, b.byteFill[:1])
}

func (b *Bus) WriteDataN(v uint8, n int) {
	if n <= 0 {
		return
	}
	defer b.auto()()
	chunk := min(n, fillChunk)
	for i := 0; i < chunk; i++ {
		b.byteFill[i] = v
	}
	for n > 0 {
		k := min(n, fillChunk)
		b.l.writeBytes(true, b.byteFill[:k])
		n -= k
	}
}

func (b *Bus) WriteDataBytes(p []byte) {
	if len(p) == 0 {
		return
	}
	defer b.auto()()
	b.l.writeBytes(true, p)
}

func (b *Bus) WriteData16(w uint16) {
	defer b.auto()()
	b.one[0] = w
	b.l.writeWords(true, b.one[:])
}

// WriteData16N repeats w n times, the usual way to fill a window with one
// colour.
func (b *Bus) WriteData16N(w uint16, n int) {
	if n <= 0 {
		return
	}
	defer b.auto()()
	chunk := min(n, fillChunk)
	for i := 0; i < chunk; i++ {
		b.wordFill[i] = w
	}
	for n > 0 {
		k := min(n, fillChunk)
		b.l.writeWords(true, b.wordFill[:k])
		n -= k
	}
}

func (b *Bus) WriteData16Slice(p []uint16) {
	if len(p) == 0 {
		return
	}
	defer b.auto()()
	b.l.writeWords(true, p)
}

func (b *Bus) ReadData() uint8 {
	defer b.auto()()
	b.l.readBytes(b.byteFill[:1])
	return b.byteFill[0]
}

func (b *Bus) ReadData16() uint16 {
	defer b.auto()()
	b.l.readWords(b.one[:])
	return b.one[0]
}

func (b *Bus) ReadDataBytes(p []byte) {
	if len(p) == 0 {
		return
	}
	defer b.auto()()
	b.l.readBytes(p)
}

func (b *Bus) WriteCommandTransaction(c uint8) {
	b.StartTransaction()
	b.WriteCommand(c)
	b.EndTransaction()
}

func (b *Bus) WriteDataTransaction(v uint8) {
	b.StartTransaction()
	b.WriteData(v)
	b.EndTransaction()
}

func (b *Bus) WriteData16Transaction(w uint16) {
	b.StartTransaction()
	b.WriteData16(w)
	b.EndTransaction()
}

func (b *Bus) ReadDataTransaction() uint8 {
	b.StartTransaction()
	defer b.EndTransaction()
	return b.ReadData()
}

func (b *Bus) ReadData16Transaction() uint16 {
	b.StartTransaction()
	defer b.EndTransaction()
	return b.ReadData16()
}

// Err returns the first error reported by the underlying driver, if any.
func (b *Bus) Err() error {
	if b.errs == nil {
		return nil
	}
	return b.errs.get()
}

// Close releases chip select and the underlying port.
func (b *Bus) Close() error {
	for b.depth > 0 {
		b.EndTransaction()
	}
	b.l.idle()
	return b.l.close()
}

// errLatch keeps the first transfer error of a binding and logs it once.
type errLatch struct {
	mu    sync.Mutex
	first error
	bus   string
}

func (e *errLatch) set(err error) {
	if err == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.first != nil {
		return
	}
	e.first = err
	appLog.Error("bus: transfer failed; further errors suppressed", err, "bus", e.bus)
}

func (e *errLatch) get() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.first
}

// Package bustest provides a recording bus.Transport for controller and
// compositor tests.
package bustest

import (
	"fmt"
	"strings"

	"hasptft/internal/bus"
)

// Kind classifies a recorded operation.
type Kind uint8

const (
	Cmd Kind = iota
	Cmd16
	Data
	Data16
	Read
	Read16
	Begin
	End
)

func (k Kind) String() string {
	return [...]string{"cmd", "cmd16", "data", "data16", "read", "read16", "begin", "end"}[k]
}

// Op is one recorded operation.
type Op struct {
	Kind Kind
	V    uint16
}

func (o Op) String() string {
	switch o.Kind {
	case Begin, End, Read, Read16:
		return o.Kind.String()
	case Data, Cmd:
		return fmt.Sprintf("%s:%02x", o.Kind, o.V)
	default:
		return fmt.Sprintf("%s:%04x", o.Kind, o.V)
	}
}

// Frame groups a command with the data that followed it.
type Frame struct {
	Cmd  uint16
	Data []uint16
}

// Recorder implements bus.Transport by logging every operation. Reads are
// answered from Reads, in order, then 0.
type Recorder struct {
	W     bus.Width
	Ops   []Op
	Reads []uint16

	depth int
}

var _ bus.Transport = (*Recorder)(nil)

// New returns a recorder for a bus of width w.
func New(w bus.Width) *Recorder {
	return &Recorder{W: w}
}

func (r *Recorder) Init()            {}
func (r *Recorder) Width() bus.Width { return r.W }
func (r *Recorder) Err() error       { return nil }
func (r *Recorder) Close() error     { return nil }

func (r *Recorder) log(k Kind, v uint16) { r.Ops = append(r.Ops, Op{Kind: k, V: v}) }

func (r *Recorder) StartTransaction() {
	if r.depth == 0 {
		r.log(Begin, 0)
	}
	r.depth++
}

func (r *Recorder) EndTransaction() {
	if r.depth == 0 {
		return
	}
	r.depth--
	if r.depth == 0 {
		r.log(End, 0)
	}
}

func (r *Recorder) auto() func() {
	if r.depth > 0 {
		return func() {}
	}
	r.StartTransaction()
	return r.EndTransaction
}

func (r *Recorder) WriteCommand(c uint8)    { defer r.auto()(); r.log(Cmd, uint16(c)) }
func (r *Recorder) WriteCommand16(c uint16) { defer r.auto()(); r.log(Cmd16, c) }
func (r *Recorder) WriteData(b uint8)       { defer r.auto()(); r.log(Data, uint16(b)) }
func (r *Recorder) WriteData16(w uint16)    { defer r.auto()(); r.log(Data16, w) }

func (r *Recorder) WriteDataN(b uint8, n int) {
	defer r.auto()()
	for i := 0; i < n; i++ {
		r.log(Data, uint16(b))
	}
}

func (r *Recorder) WriteDataBytes(p []byte) {
	defer r.auto()()
	for _, b := range p {
		r.log(Data, uint16(b))
	}
}

func (r *Recorder) WriteData16N(w uint16, n int) {
	defer r.auto()()
	for i := 0; i < n; i++ {
		r.log(Data16, w)
	}
}

func (r *Recorder) WriteData16Slice(p []uint16) {
	defer r.auto()()
	for _, w := range p {
		r.log(Data16, w)
	}
}

func (r *Recorder) next() uint16 {
	if len(r.Reads) == 0 {
		return 0
	}
	v := r.Reads[0]
	r.Reads = r.Reads[1:]
	return v
}

func (r *Recorder) ReadData() uint8 {
	defer r.auto()()
	r.log(Read, 0)
	return uint8(r.next())
}

func (r *Recorder) ReadData16() uint16 {
	defer r.auto()()
	r.log(Read16, 0)
	return r.next()
}

func (r *Recorder) ReadDataBytes(p []byte) {
	defer r.auto()()
	for i := range p {
		r.log(Read, 0)
		p[i] = uint8(r.next())
	}
}

func (r *Recorder) WriteCommandTransaction(c uint8) {
	r.StartTransaction()
	r.WriteCommand(c)
	r.EndTransaction()
}

func (r *Recorder) WriteDataTransaction(b uint8) {
	r.StartTransaction()
	r.WriteData(b)
	r.EndTransaction()
}

func (r *Recorder) WriteData16Transaction(w uint16) {
	r.StartTransaction()
	r.WriteData16(w)
	r.EndTransaction()
}

func (r *Recorder) ReadDataTransaction() uint8 {
	r.StartTransaction()
	defer r.EndTransaction()
	return r.ReadData()
}

func (r *Recorder) ReadData16Transaction() uint16 {
	r.StartTransaction()
	defer r.EndTransaction()
	return r.ReadData16()
}

// Selected reports whether chip select is currently asserted.
func (r *Recorder) Selected() bool { return r.depth > 0 }

// Reset drops recorded operations, keeping pending reads.
func (r *Recorder) Reset() {
	r.Ops = r.Ops[:0]
}

// Frames groups recorded writes into command frames, ignoring transaction
// boundaries and reads. Data written before any command lands in a frame
// with Cmd 0xFFFF.
func (r *Recorder) Frames() []Frame {
	var out []Frame
	for _, op := range r.Ops {
		switch op.Kind {
		case Cmd, Cmd16:
			out = append(out, Frame{Cmd: op.V})
		case Data, Data16:
			if len(out) == 0 {
				out = append(out, Frame{Cmd: 0xFFFF})
			}
			out[len(out)-1].Data = append(out[len(out)-1].Data, op.V)
		}
	}
	return out
}

// Balanced reports whether every Begin has a matching End.
func (r *Recorder) Balanced() bool {
	depth := 0
	for _, op := range r.Ops {
		switch op.Kind {
		case Begin:
			depth++
		case End:
			depth--
			if depth < 0 {
				return false
			}
		}
	}
	return depth == 0 && r.depth == 0
}

// String renders the recorded ops, handy in failure messages.
func (r *Recorder) String() string {
	parts := make([]string, len(r.Ops))
	for i, op := range r.Ops {
		parts[i] = op.String()
	}
	return strings.Join(parts, " ")
}

package controller

import (
	"reflect"
	"testing"
	"time"

	"hasptft/internal/bus"
	"hasptft/internal/bus/bustest"
)

func newTest(t *testing.T, kind string, w bus.Width, opts Options) (Controller, *bustest.Recorder, *[]time.Duration) {
	t.Helper()
	rec := bustest.New(w)
	var slept []time.Duration
	opts.Sleep = func(d time.Duration) { slept = append(slept, d) }
	c, err := New(kind, rec, opts)
	if err != nil {
		t.Fatalf("New(%q): %v", kind, err)
	}
	return c, rec, &slept
}

func frame(cmd uint16, data ...uint16) bustest.Frame {
	return bustest.Frame{Cmd: cmd, Data: data}
}

func TestSetWindowAddressFullPanel(t *testing.T) {
	c, rec, _ := newTest(t, "ili9341", bus.Width8, Options{})

	c.SetWindowAddress(0, 0, 239, 319)

	want := []bustest.Frame{
		frame(0x2A, 0x00, 0x00, 0x00, 0xEF),
		frame(0x2B, 0x00, 0x00, 0x01, 0x3F),
		frame(0x2C),
	}
	if got := rec.Frames(); !reflect.DeepEqual(got, want) {
		t.Fatalf("frames = %+v\nwant %+v", got, want)
	}
	if !rec.Balanced() || rec.Selected() {
		t.Fatalf("bus not idle: %s", rec)
	}
}

func TestSetWindowAddressClampsAndOrders(t *testing.T) {
	c, rec, _ := newTest(t, "ili9341", bus.Width8, Options{})

	c.SetWindowAddress(300, 400, -5, 10)

	want := []bustest.Frame{
		frame(0x2A, 0x00, 0x00, 0x00, 0xEF),
		frame(0x2B, 0x00, 0x0A, 0x01, 0x3F),
		frame(0x2C),
	}
	if got := rec.Frames(); !reflect.DeepEqual(got, want) {
		t.Fatalf("frames = %+v", got)
	}
}

func TestSetWindowAddressFollowsRotation(t *testing.T) {
	c, rec, _ := newTest(t, "ili9488", bus.Width8, Options{})
	c.SetRotation(1)
	if w, h := c.Size(); w != 480 || h != 320 {
		t.Fatalf("rotated size = %dx%d", w, h)
	}
	rec.Reset()

	c.SetWindowAddress(0, 0, 479, 319)
	got := rec.Frames()
	if !reflect.DeepEqual(got[0], frame(0x2A, 0x00, 0x00, 0x01, 0xDF)) ||
		!reflect.DeepEqual(got[1], frame(0x2B, 0x00, 0x00, 0x01, 0x3F)) {
		t.Fatalf("frames = %+v", got)
	}
}

func TestRotationPatterns(t *testing.T) {
	tests := []struct {
		kind string
		reg  uint16
		want [4]uint16
	}{
		{"ili9341", 0x36, [4]uint16{0x48, 0x28, 0x88, 0xE8}},
		{"ili9486", 0x36, [4]uint16{0x48, 0x28, 0x88, 0xE8}},
		{"ili9488", 0x36, [4]uint16{0x48, 0x28, 0x88, 0xE8}},
		{"hx8357b", 0x36, [4]uint16{0x00, 0x60, 0xC0, 0xA0}},
		{"ili9325c", 0x03, [4]uint16{0x1030, 0x1028, 0x1000, 0x1018}},
	}
	for _, tt := range tests {
		for r := 0; r < 8; r++ {
			c, rec, _ := newTest(t, tt.kind, bus.Width8, Options{})
			c.SetRotation(r)
			want := tt.want[r%4]
			if c.RotationBits(r) != want {
				t.Fatalf("%s: RotationBits(%d) = 0x%x, want 0x%x", tt.kind, r, c.RotationBits(r), want)
			}
			got := rec.Frames()
			if len(got) != 1 || !reflect.DeepEqual(got[0], frame(tt.reg, want)) {
				t.Fatalf("%s rotation %d: frames %+v", tt.kind, r, got)
			}
			if c.Rotation() != r%4 {
				t.Fatalf("%s: Rotation() = %d", tt.kind, c.Rotation())
			}
			if rec.Selected() {
				t.Fatalf("%s: CS left asserted after SetRotation", tt.kind)
			}
		}
	}
}

func TestRotationBracketingIsPerChip(t *testing.T) {
	separate, rec, _ := newTest(t, "ili9341", bus.Width8, Options{})
	separate.SetRotation(0)
	if got := rec.String(); got != "begin cmd:36 end begin data:48 end" {
		t.Fatalf("ili9341 rotation ops: %s", got)
	}

	open, rec, _ := newTest(t, "ili9486", bus.Width16, Options{})
	open.SetRotation(0)
	if got := rec.String(); got != "begin cmd:36 data:48 end" {
		t.Fatalf("ili9486 rotation ops: %s", got)
	}
}

func TestBGRFlipsColourOrder(t *testing.T) {
	c, _, _ := newTest(t, "ili9341", bus.Width8, Options{BGR: true})
	if got := c.RotationBits(0); got != 0x40 {
		t.Fatalf("BGR rotation 0 = 0x%x", got)
	}
	c, _, _ = newTest(t, "ili9325c", bus.Width16, Options{BGR: true})
	if got := c.RotationBits(0); got != 0x0030 {
		t.Fatalf("ili9325c BGR entry mode = 0x%x", got)
	}
}

func TestInitThenReadIDILI9488(t *testing.T) {
	c, rec, slept := newTest(t, "ili9488", bus.Width8, Options{})
	c.Init()
	rec.Reset()
	rec.Reads = []uint16{0xFF, 0x00, 0x94, 0x88}

	if id := c.ReadID(); id != 0x009488 {
		t.Fatalf("ReadID = 0x%06x", id)
	}
	if got := rec.String(); got != "begin cmd:d3 read read read read end" {
		t.Fatalf("id read ops: %s", got)
	}

	var long bool
	for _, d := range *slept {
		if d >= 120*time.Millisecond {
			long = true
		}
	}
	if !long {
		t.Fatalf("no >=120ms wait after sleep out: %v", *slept)
	}
}

func TestInitSequence(t *testing.T) {
	c, rec, slept := newTest(t, "ili9341", bus.Width8, Options{Rotation: 1, Invert: true})
	c.Init()

	frames := rec.Frames()
	if frames[0].Cmd != CmdSWRESET {
		t.Fatalf("first command 0x%02x, want software reset", frames[0].Cmd)
	}
	if (*slept)[0] != 150*time.Millisecond {
		t.Fatalf("reset wait = %v", (*slept)[0])
	}
	var slpout, dispon, madctl, invon int = -1, -1, -1, -1
	for i, f := range frames {
		switch f.Cmd {
		case CmdSLPOUT:
			slpout = i
		case CmdDISPON:
			dispon = i
		case CmdMADCTL:
			madctl = i
			if f.Data[0] != 0x28 {
				t.Fatalf("MADCTL after init = 0x%02x", f.Data[0])
			}
		case CmdINVON:
			invon = i
		}
	}
	if !(slpout >= 0 && slpout < dispon && dispon < madctl && madctl < invon) {
		t.Fatalf("order slpout=%d dispon=%d madctl=%d invon=%d", slpout, dispon, madctl, invon)
	}
	if !rec.Balanced() {
		t.Fatal("unbalanced transactions in init")
	}

	n := len(rec.Ops)
	c.Init()
	if len(rec.Ops) != n {
		t.Fatal("second Init must be a no-op")
	}
}

func TestSerialILI9488Uses18BitPixels(t *testing.T) {
	c, rec, _ := newTest(t, "ili9488", bus.Width8, Options{Serial: true})
	c.Init()

	frames := rec.Frames()
	var colmod []uint16
	for _, f := range frames {
		if f.Cmd == CmdCOLMOD {
			colmod = f.Data
		}
	}
	if !reflect.DeepEqual(colmod, []uint16{0x66}) {
		t.Fatalf("last COLMOD = %v", colmod)
	}

	rec.Reset()
	c.StartWrite()
	c.SetWindowAddress(0, 0, 1, 0)
	c.WritePixels([]uint16{0xF800, 0x001F})
	c.EndWrite()

	got := rec.Frames()[2]
	want := frame(0x2C, 0xF8, 0x00, 0x00, 0x00, 0x00, 0xF8)
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("RAMWR frame %+v", got)
	}

	rec.Reset()
	c.WriteColor(0x07E0, 100)
	data := rec.Frames()[0].Data
	if len(data) != 300 || data[1] != 0xFC {
		t.Fatalf("WriteColor wrote %d bytes", len(data))
	}
}

func TestParallelILI9488Uses16BitPixels(t *testing.T) {
	c, rec, _ := newTest(t, "ili9488", bus.Width16, Options{})
	c.WritePixels([]uint16{0xF800, 0x001F})
	if got := rec.String(); got != "begin data16:f800 data16:001f end" {
		t.Fatalf("ops %s", got)
	}
}

func TestReadRectBurst(t *testing.T) {
	c, rec, _ := newTest(t, "ili9488", bus.Width8, Options{})
	rec.Reads = []uint16{
		0x00,             // dummy
		0xF8, 0xFC, 0xF8, // white
		0x84, 0x86, 0x88,
	}
	dst := make([]uint16, 2)
	c.ReadRect(10, 20, 2, 1, dst)

	if dst[0] != 0xFFFF || dst[1] != 0x8431 {
		t.Fatalf("pixels = %04x", dst)
	}
	frames := rec.Frames()
	if len(frames) != 3 || frames[2].Cmd != CmdRAMRD {
		t.Fatalf("frames %+v", frames)
	}
	if !reflect.DeepEqual(frames[0], frame(0x2A, 0x00, 0x0A, 0x00, 0x0B)) {
		t.Fatalf("CASET %+v", frames[0])
	}
	if !rec.Balanced() || rec.Selected() {
		t.Fatal("read left bus open")
	}
}

func TestReadRectPerPixelILI9341(t *testing.T) {
	c, rec, _ := newTest(t, "ili9341", bus.Width8, Options{})
	rec.Reads = []uint16{0, 0xF8, 0, 0, 0, 0, 0, 0xF8}
	dst := make([]uint16, 2)
	c.ReadRect(0, 0, 2, 1, dst)

	if dst[0] != 0xF800 || dst[1] != 0x001F {
		t.Fatalf("pixels = %04x", dst)
	}
	var ramrd, begins int
	for _, op := range rec.Ops {
		if op.Kind == bustest.Cmd && op.V == CmdRAMRD {
			ramrd++
		}
		if op.Kind == bustest.Begin {
			begins++
		}
	}
	if ramrd != 2 || begins != 2 {
		t.Fatalf("per-pixel read: %d RAMRD in %d transactions", ramrd, begins)
	}
}

func TestReadRectOn16BitBus(t *testing.T) {
	c, rec, _ := newTest(t, "ili9486", bus.Width16, Options{})
	rec.Reads = []uint16{0x0000, 0xF8FC, 0x0000, 0x00F8}
	dst := make([]uint16, 2)
	c.ReadRect(0, 0, 2, 1, dst)
	if dst[0] != 0xFFE0 || dst[1] != 0x001F {
		t.Fatalf("pixels = %04x", dst)
	}
}

func TestReadRegisterAssemblesMSBFirst(t *testing.T) {
	c, rec, _ := newTest(t, "hx8357b", bus.Width8, Options{})
	rec.Reads = []uint16{0xAA, 0x90}
	if id := c.ReadID(); id != 0x90 {
		t.Fatalf("hx8357b id 0x%x", id)
	}
	rec.Reads = []uint16{0, 1, 2, 3, 4, 5}
	if v := c.ReadRegister(0x04, 9); v != 0x01020304 {
		t.Fatalf("ReadRegister clamp: 0x%08x", v)
	}
}

func TestILI9325Window(t *testing.T) {
	c, rec, _ := newTest(t, "ili9325c", bus.Width16, Options{})
	c.SetWindowAddress(0, 0, 239, 319)
	want := []bustest.Frame{
		frame(0x50, 0),
		frame(0x51, 239),
		frame(0x52, 0),
		frame(0x53, 319),
		frame(0x20, 0),
		frame(0x21, 0),
		frame(0x22),
	}
	if got := rec.Frames(); !reflect.DeepEqual(got, want) {
		t.Fatalf("frames %+v", got)
	}

	c.SetRotation(1)
	rec.Reset()
	c.SetWindowAddress(10, 20, 19, 29)
	want = []bustest.Frame{
		frame(0x50, 239-29),
		frame(0x51, 239-20),
		frame(0x52, 10),
		frame(0x53, 19),
		frame(0x20, 239-20),
		frame(0x21, 10),
		frame(0x22),
	}
	if got := rec.Frames(); !reflect.DeepEqual(got, want) {
		t.Fatalf("rotated frames %+v", got)
	}
}

func TestILI9325ReadID(t *testing.T) {
	c, rec, _ := newTest(t, "ili9325c", bus.Width16, Options{})
	rec.Reads = []uint16{0x9325}
	if id, ok := Verify(c); !ok || id != 0x9325 {
		t.Fatalf("Verify = 0x%x, %v", id, ok)
	}
	if got := rec.String(); got != "begin cmd16:0000 read16 end" {
		t.Fatalf("ops %s", got)
	}
}

func TestVerifyMismatchIsAdvisory(t *testing.T) {
	c, rec, _ := newTest(t, "ili9341", bus.Width8, Options{})
	rec.Reads = []uint16{0, 0x00, 0x93, 0x42}
	id, ok := Verify(c)
	if ok || id != 0x009342 {
		t.Fatalf("Verify = 0x%x, %v", id, ok)
	}
}

func TestNewUnknownChip(t *testing.T) {
	if _, err := New("st7789", bustest.New(bus.Width8), Options{}); err == nil {
		t.Fatal("expected error for unknown chip")
	}
	if _, err := New("ILI9341", bustest.New(bus.Width8), Options{}); err != nil {
		t.Fatalf("kind lookup must ignore case: %v", err)
	}
}

type writeOnly struct{ *bustest.Recorder }

func (writeOnly) CanRead() bool { return false }

func TestCanReadFollowsTransport(t *testing.T) {
	for _, kind := range []string{"ili9341", "ili9325c"} {
		c, err := New(kind, writeOnly{bustest.New(bus.Width8)}, Options{Sleep: func(time.Duration) {}})
		if err != nil {
			t.Fatalf("New(%q): %v", kind, err)
		}
		if c.CanRead() {
			t.Fatalf("%s reports readable on a write-only transport", kind)
		}
		r, _, _ := newTest(t, kind, bus.Width8, Options{})
		if !r.CanRead() {
			t.Fatalf("%s reports write-only on the recorder", kind)
		}
	}
}

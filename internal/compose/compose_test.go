package compose

import (
	"context"
	"image"
	"image/color"
	"reflect"
	"testing"
	"time"

	"hasptft/internal/bus"
	"hasptft/internal/bus/bustest"
	"hasptft/internal/controller"
	"hasptft/internal/convert"
	"hasptft/internal/panelsim"
	"hasptft/internal/tick"
)

func newRecorded(t *testing.T, opts Options) (*Composer, *bustest.Recorder) {
	t.Helper()
	rec := bustest.New(bus.Width16)
	ctrl, err := controller.New("ili9341", rec, controller.Options{Sleep: func(time.Duration) {}})
	if err != nil {
		t.Fatal(err)
	}
	c, err := New(ctrl, opts)
	if err != nil {
		t.Fatal(err)
	}
	return c, rec
}

func newSim(t *testing.T, kind string) (*Composer, *panelsim.Panel) {
	t.Helper()
	po, err := panelsim.ForChip(kind)
	if err != nil {
		t.Fatal(err)
	}
	panel := panelsim.New(po)
	b, err := panelsim.NewBus(panel, bus.Width16)
	if err != nil {
		t.Fatal(err)
	}
	ctrl, err := controller.New(kind, b, controller.Options{Sleep: func(time.Duration) {}})
	if err != nil {
		t.Fatal(err)
	}
	ctrl.Init()
	c, err := New(ctrl, Options{Lines: 10})
	if err != nil {
		t.Fatal(err)
	}
	return c, panel
}

func TestFlushProgramsWindowThenBurst(t *testing.T) {
	c, rec := newRecorded(t, Options{})
	px := []uint16{1, 2, 3, 4, 5, 6, 7, 8}
	calls := 0

	c.Flush(Area{X0: 10, Y0: 20, X1: 13, Y1: 21}, px, func() { calls++ })

	want := []bustest.Frame{
		{Cmd: 0x2A, Data: []uint16{0x00, 0x0A, 0x00, 0x0D}},
		{Cmd: 0x2B, Data: []uint16{0x00, 0x14, 0x00, 0x15}},
		{Cmd: 0x2C, Data: px},
	}
	if got := rec.Frames(); !reflect.DeepEqual(got, want) {
		t.Fatalf("frames = %+v", got)
	}
	if calls != 1 {
		t.Fatalf("done called %d times", calls)
	}
	if !rec.Balanced() || rec.Selected() {
		t.Fatalf("bus left selected: %s", rec)
	}
	if st := c.Stats(); st.Flushes != 1 || st.Pixels != 8 {
		t.Fatalf("stats %+v", st)
	}
}

func TestFlushClipsToScreen(t *testing.T) {
	c, rec := newRecorded(t, Options{})
	// 8 wide, 4 of them off the right edge of a 240-wide panel.
	px := []uint16{1, 2, 3, 4, 9, 9, 9, 9, 5, 6, 7, 8, 9, 9, 9, 9}

	c.Flush(Area{X0: 236, Y0: 0, X1: 243, Y1: 1}, px, nil)

	frames := rec.Frames()
	if len(frames) != 3 {
		t.Fatalf("frames = %+v", frames)
	}
	if !reflect.DeepEqual(frames[0].Data, []uint16{0x00, 0xEC, 0x00, 0xEF}) {
		t.Fatalf("CASET = %v", frames[0].Data)
	}
	if !reflect.DeepEqual(frames[2].Data, []uint16{1, 2, 3, 4, 5, 6, 7, 8}) {
		t.Fatalf("burst = %v", frames[2].Data)
	}
}

func TestFlushEmptyAreaStillSignalsDone(t *testing.T) {
	c, rec := newRecorded(t, Options{})
	called := false
	c.Flush(Area{X0: 5, Y0: 5, X1: 4, Y1: 5}, nil, func() { called = true })
	if !called || len(rec.Ops) != 0 {
		t.Fatalf("called=%v ops=%s", called, rec)
	}
}

func TestSwapBytesLeavesCallerBuffer(t *testing.T) {
	c, rec := newRecorded(t, Options{SwapBytes: true})
	px := []uint16{0x1234, 0xABCD}

	c.Flush(Area{X0: 0, Y0: 0, X1: 1, Y1: 0}, px, nil)

	if got := rec.Frames()[2].Data; !reflect.DeepEqual(got, []uint16{0x3412, 0xCDAB}) {
		t.Fatalf("burst = %#v", got)
	}
	if px[0] != 0x1234 {
		t.Fatal("caller buffer modified")
	}
}

func TestClearUsesRepeatFill(t *testing.T) {
	c, rec := newRecorded(t, Options{})
	c.Clear(convert.Blue)
	frames := rec.Frames()
	if frames[2].Cmd != 0x2C || len(frames[2].Data) != 240*320 {
		t.Fatalf("RAMWR carried %d pixels", len(frames[2].Data))
	}
	if st := c.Stats(); st.Fills != 1 || st.Pixels != 240*320 {
		t.Fatalf("stats %+v", st)
	}
}

func TestNewRejectsBadLines(t *testing.T) {
	ctrl, _ := controller.New("ili9341", bustest.New(bus.Width8), controller.Options{})
	for _, lines := range []int{-1, 321} {
		if _, err := New(ctrl, Options{Lines: lines}); err == nil {
			t.Fatalf("lines %d accepted", lines)
		}
	}
	c, err := New(ctrl, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if c.BandLines() != DefaultLines*320/240 {
		t.Fatalf("band lines %d", c.BandLines())
	}
}

func TestFillAndReadBack(t *testing.T) {
	c, _ := newSim(t, "ili9341")
	area := Area{X0: 5, Y0: 7, X1: 204, Y1: 300}

	c.Fill(area, convert.Red)

	img := c.ReadBack(area)
	if img == nil {
		t.Fatal("no read-back")
	}
	for i, v := range img.Pix {
		if v != convert.Red {
			t.Fatalf("pixel %d = %#04x", i, v)
		}
	}
	if st := c.Stats(); st.Flushes < 2 || st.Fills != 1 {
		t.Fatalf("a 200x294 fill should take several bands: %+v", st)
	}
}

func TestDrawImageRoundTrip(t *testing.T) {
	c, _ := newSim(t, "ili9486")
	src := image.NewRGBA(image.Rect(100, 100, 140, 170))
	for y := src.Rect.Min.Y; y < src.Rect.Max.Y; y++ {
		for x := src.Rect.Min.X; x < src.Rect.Max.X; x++ {
			src.Set(x, y, color.RGBA{R: uint8(x * 5), G: uint8(y * 3), B: uint8(x ^ y), A: 0xFF})
		}
	}

	if err := c.DrawImage(src, image.Pt(300, 10)); err != nil {
		t.Fatal(err)
	}

	// Only 20 columns fit on a 320-wide panel.
	got := c.ReadBack(Area{X0: 300, Y0: 10, X1: 319, Y1: 79})
	for y := 0; y < 70; y++ {
		for x := 0; x < 20; x++ {
			want := convert.FromColor(src.At(100+x, 100+y))
			if v := got.RGB565At(300+x, 10+y); v != want {
				t.Fatalf("(%d,%d) = %#04x, want %#04x", x, y, v, want)
			}
		}
	}
}

func TestBlendOverReadBack(t *testing.T) {
	c, _ := newSim(t, "ili9341")
	area := Area{X0: 0, Y0: 0, X1: 3, Y1: 3}
	c.Fill(area, convert.White)

	src := make([]uint16, area.Pixels())
	c.Blend(area, src, 0x80)

	want := convert.Blend(convert.White, convert.Black, 0x80)
	for i, v := range c.ReadBack(area).Pix {
		if v != want {
			t.Fatalf("pixel %d = %#04x, want %#04x", i, v, want)
		}
	}
}

// stripes invalidates the whole screen once and renders a row index pattern.
type stripes struct {
	served bool
}

func (s *stripes) Invalidated(now uint32, screen Area) []Area {
	if s.served {
		return nil
	}
	s.served = true
	return []Area{screen}
}

func (s *stripes) Render(band Area, px []uint16) {
	w := band.Width()
	for y := band.Y0; y <= band.Y1; y++ {
		for x := 0; x < w; x++ {
			px[(y-band.Y0)*w+x] = uint16(y)
		}
	}
}

func TestLoopStepFlushesBands(t *testing.T) {
	c, panel := newSim(t, "ili9341")
	r := &stripes{}
	l := &Loop{C: c, R: r, Tick: &tick.Counter{}}

	if err := l.Step(context.Background()); err != nil {
		t.Fatal(err)
	}
	rows := c.BandLines()
	if want := uint64((320 + rows - 1) / rows); l.Bands() != want || l.Frames() != 1 {
		t.Fatalf("bands=%d frames=%d", l.Bands(), l.Frames())
	}
	if panel.Pixel(17, 299) != 299 {
		t.Fatalf("pixel = %d", panel.Pixel(17, 299))
	}

	if err := l.Step(context.Background()); err != nil || l.Frames() != 1 {
		t.Fatal("idle step should not count a frame")
	}
}

func TestLoopStopsBetweenBands(t *testing.T) {
	c, _ := newSim(t, "ili9341")
	l := &Loop{C: c, R: &stripes{}, Tick: &tick.Counter{}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := l.Step(ctx); err != context.Canceled {
		t.Fatalf("err = %v", err)
	}
	if l.Bands() != 0 {
		t.Fatal("flushed after cancellation")
	}
	if err := l.Run(ctx); err != context.Canceled {
		t.Fatalf("Run err = %v", err)
	}
}

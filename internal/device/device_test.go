package device

import (
	"context"
	"testing"
	"time"

	"hasptft/internal/compose"
	"hasptft/internal/config"
	"hasptft/internal/panelsim"
	"hasptft/internal/touch"
)

func simConfig(chip string) *config.Config {
	cfg := config.DefaultConfig()
	cfg.Panel.Chip = chip
	cfg.Touch.Kind = "mock"
	cfg.Normalize()
	return cfg
}

func noSleep(time.Duration) {}

func TestOpenSimPanel(t *testing.T) {
	d, err := Open(simConfig("ili9486"), Options{Sleep: noSleep})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer d.Close()

	if d.Panel == nil {
		t.Fatal("sim bus did not create a panel")
	}
	if !d.IDOK || d.ID != 0x009486 {
		t.Fatalf("id = 0x%06x ok=%v", d.ID, d.IDOK)
	}
	info := d.Info()
	if info.Width != 320 || info.Height != 480 || !info.Simulated || !info.CanRead {
		t.Fatalf("info = %+v", info)
	}
	if info.Backlit {
		t.Fatal("backlight on before Start")
	}
}

func TestOpenRejectsUnknownChip(t *testing.T) {
	cfg := simConfig("ili9325c")
	if _, err := Open(cfg, Options{Sleep: noSleep}); err == nil {
		t.Fatal("expected panelsim to reject a register-indexed chip")
	}
}

func TestFillReachesPanel(t *testing.T) {
	d, err := Open(simConfig("ili9341"), Options{Sleep: noSleep})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer d.Close()

	d.Comp.Fill(compose.Area{X0: 10, Y0: 20, X1: 19, Y1: 29}, 0xF800)
	if got := d.Panel.Pixel(15, 25); got != 0xF800 {
		t.Fatalf("pixel = 0x%04x", got)
	}
	if got := d.Panel.Pixel(5, 25); got == 0xF800 {
		t.Fatal("fill leaked outside the area")
	}
}

func TestRotationFeedsTouch(t *testing.T) {
	var mock *touch.Mock
	d, err := Open(simConfig("ili9341"), Options{
		Sleep: noSleep,
		Pointer: func(p *panelsim.Panel) touch.Sampler {
			w, h := p.Size()
			mock = touch.NewMock(w, h)
			return mock
		},
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer d.Close()

	d.SetRotation(1)
	if d.Rotation() != 1 {
		t.Fatalf("rotation = %d", d.Rotation())
	}
	if w, h := d.Ctrl.Size(); w != 320 || h != 240 {
		t.Fatalf("size after rotation = %dx%d", w, h)
	}

	mock.Push(touch.Sample{X: 0, Y: 0, Pressed: true})
	p, err := d.Touch.R.ReadPoint(context.Background())
	if err != nil {
		t.Fatalf("ReadPoint: %v", err)
	}
	// Native (0,0) is the top-right corner at rotation 1.
	if !p.Pressed || p.X != 0 || p.Y != 239 {
		t.Fatalf("point = %+v", p)
	}
}

func TestStartSwitchesBacklightOn(t *testing.T) {
	cfg := simConfig("ili9341")
	cfg.Touch.Kind = "none"
	d, err := Open(cfg, Options{Sleep: noSleep})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	d.Start(ctx)
	if !d.Backlight.State().On {
		t.Fatal("backlight off after Start")
	}
	if d.Touch != nil {
		t.Fatal("touch poller created for kind none")
	}
	cancel()
	if err := d.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

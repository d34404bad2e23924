package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadWritesDefaultsOnFirstRun(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Bus.Kind != "sim" || cfg.Panel.Chip != "ili9341" || cfg.Panel.BufferLines != 20 {
		t.Fatalf("defaults = %+v", cfg)
	}
	st, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if st.Mode().Perm() != 0o600 {
		t.Fatalf("mode %v", st.Mode().Perm())
	}
	if st, _ := os.Stat(filepath.Dir(path)); st.Mode().Perm() != 0o700 {
		t.Fatalf("dir mode %v", st.Mode().Perm())
	}
}

func TestLoadNormalizesPartialFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
panel:
  chip: ILI9486
  rotation: 5
bus:
  kind: parallel
  data: [D0, D1, D2, D3, D4, D5, D6, D7, D8, D9, D10, D11, D12, D13, D14, D15]
  rs: RS
  wr: WR
touch:
  kind: ft6x36
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Panel.Chip != "ili9486" || cfg.Panel.Rotation != 1 {
		t.Fatalf("panel = %+v", cfg.Panel)
	}
	if cfg.Bus.Width != 16 || cfg.Touch.Address != 0x38 || cfg.TickMS != 5 || cfg.Scene != "bars" {
		t.Fatalf("normalized = %+v", cfg)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		mut  func(c *Config)
		want string
	}{
		{"spi without dc", func(c *Config) { c.Bus.Kind = "spi" }, "bus.dc"},
		{"bad frame9", func(c *Config) { c.Bus.Kind = "spi9"; c.Bus.Frame9 = "odd" }, "frame9"},
		{"short data", func(c *Config) {
			c.Bus.Kind, c.Bus.Width, c.Bus.RS, c.Bus.WR = "parallel", 8, "RS", "WR"
			c.Bus.Data = []string{"D0"}
		}, "1 pins"},
		{"unknown bus", func(c *Config) { c.Bus.Kind = "usb" }, "bus.kind"},
		{"half schedule", func(c *Config) { c.Backlight.OnCron = "0 7 * * *" }, "set together"},
		{"resistive pins", func(c *Config) { c.Touch.Kind = "resistive" }, "touch.xp"},
	}
	for _, tt := range tests {
		c := DefaultConfig()
		tt.mut(c)
		err := c.Validate()
		if err == nil || !strings.Contains(err.Error(), tt.want) {
			t.Fatalf("%s: err = %v", tt.name, err)
		}
	}
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	cfg := DefaultConfig()
	cfg.Panel.Rotation = 2
	cfg.BasicAuth = &BasicAuthConfig{Username: "admin", Password: "pw"}
	if err := cfg.Save(path); err != nil {
		t.Fatal(err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if got.Panel.Rotation != 2 || got.BasicAuth == nil || got.BasicAuth.Username != "admin" {
		t.Fatalf("reloaded %+v", got)
	}
	entries, _ := os.ReadDir(filepath.Dir(path))
	if len(entries) != 1 {
		t.Fatalf("temp file left behind: %v", entries)
	}
}

func TestLoadEmptyPath(t *testing.T) {
	if _, err := Load(""); err == nil {
		t.Fatal("expected error")
	}
}

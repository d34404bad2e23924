package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// PanelConfig selects the controller chip and how pixels are pushed to it.
type PanelConfig struct {
	// Chip is one of controller.Kinds() (ili9341, ili9486, ili9488, hx8357b, ili9325c).
	Chip string `yaml:"chip" json:"chip"`
	// Width and Height override the chip's native size; 0 keeps it.
	Width  int `yaml:"width" json:"width"`
	Height int `yaml:"height" json:"height"`
	// Rotation is 0..3 (quarter turns clockwise).
	Rotation int `yaml:"rotation" json:"rotation"`
	// BufferLines is the band buffer height used by the composer.
	BufferLines int  `yaml:"buffer_lines" json:"buffer_lines"`
	SwapBytes   bool `yaml:"swap_bytes" json:"swap_bytes"`
	BGR         bool `yaml:"bgr" json:"bgr"`
	Invert      bool `yaml:"invert" json:"invert"`
	// Reset is the optional hardware reset pin name.
	Reset string `yaml:"reset,omitempty" json:"reset,omitempty"`
}

// TimingConfig holds parallel strobe minimums in nanoseconds.
type TimingConfig struct {
	WriteLowNS  int `yaml:"write_low_ns" json:"write_low_ns"`
	WriteHighNS int `yaml:"write_high_ns" json:"write_high_ns"`
	ReadLowNS   int `yaml:"read_low_ns" json:"read_low_ns"`
	ReadHighNS  int `yaml:"read_high_ns" json:"read_high_ns"`
}

// BusConfig describes the physical binding between host and panel.
type BusConfig struct {
	// Kind is one of spi, spi9, parallel, mapped or sim.
	Kind string `yaml:"kind" json:"kind"`

	// SPI (spi, spi9). Port is a periph spireg name ("" picks the first).
	Port    string `yaml:"port,omitempty" json:"port,omitempty"`
	SpeedHz int64  `yaml:"speed_hz,omitempty" json:"speed_hz,omitempty"`
	// Frame9 selects the 9-bit framing: native or packed.
	Frame9 string `yaml:"frame9,omitempty" json:"frame9,omitempty"`
	CS     string `yaml:"cs,omitempty" json:"cs,omitempty"`
	DC     string `yaml:"dc,omitempty" json:"dc,omitempty"`

	// Parallel. Data pins are listed LSB first.
	Data   []string     `yaml:"data,omitempty" json:"data,omitempty"`
	RS     string       `yaml:"rs,omitempty" json:"rs,omitempty"`
	WR     string       `yaml:"wr,omitempty" json:"wr,omitempty"`
	RD     string       `yaml:"rd,omitempty" json:"rd,omitempty"`
	Timing TimingConfig `yaml:"timing,omitempty" json:"timing,omitempty"`

	// Mapped. RSLine is the address line wired to the panel's RS pin.
	Base   int64 `yaml:"base,omitempty" json:"base,omitempty"`
	Size   int   `yaml:"size,omitempty" json:"size,omitempty"`
	RSLine uint  `yaml:"rs_line,omitempty" json:"rs_line,omitempty"`

	// Width is 8 or 16 for parallel and mapped buses.
	Width int `yaml:"width,omitempty" json:"width,omitempty"`
}

// CalibrationConfig maps raw touch samples to native panel coordinates.
type CalibrationConfig struct {
	MinX    int  `yaml:"min_x" json:"min_x"`
	MaxX    int  `yaml:"max_x" json:"max_x"`
	MinY    int  `yaml:"min_y" json:"min_y"`
	MaxY    int  `yaml:"max_y" json:"max_y"`
	SwapXY  bool `yaml:"swap_xy" json:"swap_xy"`
	InvertX bool `yaml:"invert_x" json:"invert_x"`
	InvertY bool `yaml:"invert_y" json:"invert_y"`
}

// TouchConfig selects the pointer device.
type TouchConfig struct {
	// Kind is one of none, xpt2046, ft6x36, resistive or mock.
	Kind string `yaml:"kind" json:"kind"`

	// xpt2046: SPI port name; its chip select is the port's own.
	Port    string `yaml:"port,omitempty" json:"port,omitempty"`
	SpeedHz int64  `yaml:"speed_hz,omitempty" json:"speed_hz,omitempty"`

	// ft6x36: I2C bus name and 7-bit address.
	I2CBus  string `yaml:"i2c_bus,omitempty" json:"i2c_bus,omitempty"`
	Address uint16 `yaml:"address,omitempty" json:"address,omitempty"`

	// resistive: the four film pins; YP and XM double as ADC inputs.
	XP string `yaml:"xp,omitempty" json:"xp,omitempty"`
	XM string `yaml:"xm,omitempty" json:"xm,omitempty"`
	YP string `yaml:"yp,omitempty" json:"yp,omitempty"`
	YM string `yaml:"ym,omitempty" json:"ym,omitempty"`

	Threshold   int               `yaml:"threshold,omitempty" json:"threshold,omitempty"`
	PollMS      int               `yaml:"poll_ms" json:"poll_ms"`
	Calibration CalibrationConfig `yaml:"calibration" json:"calibration"`
}

// BacklightConfig wires the backlight pin and its optional schedule.
type BacklightConfig struct {
	// Pin is the backlight pin name; empty means not wired.
	Pin       string `yaml:"pin,omitempty" json:"pin,omitempty"`
	PWM       bool   `yaml:"pwm" json:"pwm"`
	FreqHz    int64  `yaml:"freq_hz,omitempty" json:"freq_hz,omitempty"`
	ActiveLow bool   `yaml:"active_low" json:"active_low"`
	// OnCron and OffCron are standard 5-field cron expressions; both must be
	// set to enable the schedule.
	OnCron  string `yaml:"on_cron,omitempty" json:"on_cron,omitempty"`
	OffCron string `yaml:"off_cron,omitempty" json:"off_cron,omitempty"`
}

// CaptureConfig renders a web page onto the panel with headless Chromium.
type CaptureConfig struct {
	URL string `yaml:"url,omitempty" json:"url,omitempty"`
	// Ready is the CSS selector waited for before the screenshot.
	Ready string `yaml:"ready,omitempty" json:"ready,omitempty"`
	// Refresh is a cron expression for re-capturing the page.
	Refresh    string `yaml:"refresh" json:"refresh"`
	TimeoutSec int    `yaml:"timeout_sec" json:"timeout_sec"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the diagnostics API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// Config is the top-level application configuration.
type Config struct {
	Panel     PanelConfig     `yaml:"panel" json:"panel"`
	Bus       BusConfig       `yaml:"bus" json:"bus"`
	Touch     TouchConfig     `yaml:"touch" json:"touch"`
	Backlight BacklightConfig `yaml:"backlight" json:"backlight"`
	Capture   CaptureConfig   `yaml:"capture" json:"capture"`

	// Scene is the render scene shown when no capture URL is set:
	// bars, grid, gradient or clock.
	Scene string `yaml:"scene" json:"scene"`

	// TickMS is the tick source period; RefreshMS the GUI loop period.
	TickMS    int `yaml:"tick_ms" json:"tick_ms"`
	RefreshMS int `yaml:"refresh_ms" json:"refresh_ms"`

	// Window opens a host window mirroring the simulated panel (sim bus only).
	Window bool `yaml:"window" json:"window"`

	// Listen is the HTTP listen address for the diagnostics API; empty
	// disables it.
	Listen string `yaml:"listen" json:"listen"`

	LogLevel string `yaml:"log_level" json:"log_level"`

	// BasicAuth, if non-nil, protects every endpoint except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

// DefaultConfig returns a configuration that runs the whole pipeline on the
// simulated bus.
func DefaultConfig() *Config {
	c := &Config{
		Panel:  PanelConfig{Chip: "ili9341"},
		Bus:    BusConfig{Kind: "sim"},
		Touch:  TouchConfig{Kind: "mock"},
		Listen: "127.0.0.1:8080",
	}
	c.Normalize()
	return c
}

// Normalize fills in zero values so partially-filled configs still work.
func (c *Config) Normalize() {
	c.Panel.Chip = strings.ToLower(strings.TrimSpace(c.Panel.Chip))
	if c.Panel.Chip == "" {
		c.Panel.Chip = "ili9341"
	}
	c.Panel.Rotation &= 3
	if c.Panel.BufferLines <= 0 {
		c.Panel.BufferLines = 20
	}

	c.Bus.Kind = strings.ToLower(strings.TrimSpace(c.Bus.Kind))
	if c.Bus.Kind == "" {
		c.Bus.Kind = "sim"
	}
	switch c.Bus.Kind {
	case "spi", "spi9":
		if c.Bus.SpeedHz <= 0 {
			c.Bus.SpeedHz = 40_000_000
		}
		if c.Bus.Kind == "spi9" && c.Bus.Frame9 == "" {
			c.Bus.Frame9 = "native"
		}
	case "parallel", "mapped", "sim":
		if c.Bus.Width == 0 {
			c.Bus.Width = 16
		}
	}
	if c.Bus.Kind == "mapped" && c.Bus.Size == 0 {
		c.Bus.Size = 1 << 20
	}

	c.Touch.Kind = strings.ToLower(strings.TrimSpace(c.Touch.Kind))
	if c.Touch.Kind == "" {
		c.Touch.Kind = "none"
	}
	if c.Touch.PollMS <= 0 {
		c.Touch.PollMS = 20
	}
	if c.Touch.Kind == "ft6x36" && c.Touch.Address == 0 {
		c.Touch.Address = 0x38
	}
	if c.Touch.Kind == "xpt2046" && c.Touch.SpeedHz <= 0 {
		c.Touch.SpeedHz = 2_000_000
	}

	if c.Capture.TimeoutSec <= 0 {
		c.Capture.TimeoutSec = 30
	}
	if c.Capture.Refresh == "" {
		c.Capture.Refresh = "*/15 * * * *"
	}
	switch c.Scene {
	case "bars", "grid", "gradient", "clock":
	default:
		c.Scene = "bars"
	}
	if c.TickMS <= 0 {
		c.TickMS = 5
	}
	if c.RefreshMS <= 0 {
		c.RefreshMS = 5
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

// Validate reports settings that Normalize cannot repair.
func (c *Config) Validate() error {
	var errs []error
	switch c.Bus.Kind {
	case "spi":
		if c.Bus.DC == "" {
			errs = append(errs, errors.New("bus.dc is required for the spi bus"))
		}
	case "spi9":
		switch c.Bus.Frame9 {
		case "native", "packed":
		default:
			errs = append(errs, fmt.Errorf("bus.frame9 %q must be native or packed", c.Bus.Frame9))
		}
	case "parallel":
		if len(c.Bus.Data) != c.Bus.Width {
			errs = append(errs, fmt.Errorf("bus.data lists %d pins for a %d-bit bus", len(c.Bus.Data), c.Bus.Width))
		}
		if c.Bus.RS == "" || c.Bus.WR == "" {
			errs = append(errs, errors.New("bus.rs and bus.wr are required for the parallel bus"))
		}
	case "mapped":
		if c.Bus.Base == 0 {
			errs = append(errs, errors.New("bus.base is required for the mapped bus"))
		}
	case "sim":
	default:
		errs = append(errs, fmt.Errorf("unknown bus.kind %q", c.Bus.Kind))
	}
	if c.Bus.Width != 0 && c.Bus.Width != 8 && c.Bus.Width != 16 {
		errs = append(errs, fmt.Errorf("bus.width %d must be 8 or 16", c.Bus.Width))
	}

	switch c.Touch.Kind {
	case "none", "mock", "xpt2046", "ft6x36":
	case "resistive":
		if c.Touch.XP == "" || c.Touch.XM == "" || c.Touch.YP == "" || c.Touch.YM == "" {
			errs = append(errs, errors.New("touch.xp, xm, yp and ym are required for resistive touch"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown touch.kind %q", c.Touch.Kind))
	}

	if (c.Backlight.OnCron == "") != (c.Backlight.OffCron == "") {
		errs = append(errs, errors.New("backlight.on_cron and backlight.off_cron must be set together"))
	}
	if c.Panel.BufferLines > 0 && c.Panel.Height > 0 && c.Panel.BufferLines > c.Panel.Height {
		errs = append(errs, fmt.Errorf("panel.buffer_lines %d exceeds panel height %d", c.Panel.BufferLines, c.Panel.Height))
	}
	return errors.Join(errs...)
}

// Load loads configuration from the given YAML path.
//
// If the file does not exist, a default config is written there (0600, parent
// directory 0700) and returned. Otherwise the file is read, normalized and
// validated.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return &cfg, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return &cfg, nil
}

// Save writes cfg to path atomically: temp file in the same directory,
// fsync, chmod 0600, rename.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".hasptft-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// Save delegates to the package-level Save; the diagnostics API persists
// rotation changes through it.
func (c *Config) Save(path string) error {
	return Save(path, c)
}

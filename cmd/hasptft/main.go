package main

import (
	"context"
	"flag"
	"image"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"hasptft/internal/capture"
	"hasptft/internal/compose"
	"hasptft/internal/config"
	"hasptft/internal/device"
	appLog "hasptft/internal/log"
	"hasptft/internal/panelsim"
	"hasptft/internal/panelsim/simwin"
	"hasptft/internal/render"
	"hasptft/internal/touch"
	"hasptft/internal/web"
)

const version = "0.1.0"

// flagConfig holds CLI overrides applied on top of the config file.
type flagConfig struct {
	configPath string
	listen     string
	chip       string
	busKind    string
	scene      string
	window     bool
	once       bool
	dump       string
}

func main() {
	flags := parseFlags()

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}
	applyFlags(conf, flags)
	if err := conf.Validate(); err != nil {
		appLog.Error("invalid config", err, "config_path", flags.configPath)
		os.Exit(1)
	}
	appLog.SetLevel(appLog.ParseLevel(conf.LogLevel))
	appLog.Info("hasptft starting", "version", version)
	appLog.Info("effective config",
		"chip", conf.Panel.Chip,
		"bus", conf.Bus.Kind,
		"rotation", conf.Panel.Rotation,
		"buffer_lines", conf.Panel.BufferLines,
		"touch", conf.Touch.Kind,
		"scene", conf.Scene,
		"capture_url", conf.Capture.URL,
		"listen", conf.Listen,
		"window", conf.Window,
	)

	// Root context with cancellation on SIGINT/SIGTERM.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		appLog.Info("signal received, shutting down", "signal", sig.String())
		cancel()
	}()

	var win *simwin.Window
	opts := device.Options{}
	if conf.Window {
		opts.Pointer = func(p *panelsim.Panel) touch.Sampler {
			win = simwin.New(p, 2)
			return win
		}
	}
	dev, err := device.Open(conf, opts)
	if err != nil {
		appLog.Error("failed to open panel", err)
		os.Exit(1)
	}
	defer dev.Close()
	if conf.Window && win == nil && dev.Panel != nil {
		win = simwin.New(dev.Panel, 2)
	}

	scene := render.NewScene(conf.Scene, "hasptft "+conf.Panel.Chip)
	pic := render.NewPicture(scene)
	loop := &compose.Loop{
		C:      dev.Comp,
		R:      pic,
		Tick:   dev.Ticks,
		Period: time.Duration(conf.RefreshMS) * time.Millisecond,
	}
	if dev.Touch != nil {
		loop.Input = dev.Touch
	}

	if flags.once {
		code := runOnce(ctx, dev, loop, pic, conf, flags.dump)
		dev.Close()
		os.Exit(code)
	}

	dev.Start(ctx)

	var wg sync.WaitGroup
	srv := web.NewServer(conf, flags.configPath, dev, loop)

	if conf.Capture.URL != "" {
		ref, err := capture.NewRefresher(conf.Capture.Refresh, captureOptions(dev, conf), pic.Set)
		if err != nil {
			appLog.Error("capture disabled", err)
		} else {
			ref.Start(ctx)
			defer ref.Stop()
			srv.Refresh = ref.RefreshNow
		}
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := loop.Run(ctx); err != nil && ctx.Err() == nil {
			appLog.Error("GUI loop stopped", err)
			cancel()
		}
	}()

	if conf.Listen != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := srv.Serve(ctx); err != nil {
				appLog.Error("HTTP server failed", err, "listen", conf.Listen)
				cancel()
			}
		}()
	}

	if win != nil {
		// The window owns the main goroutine until it is closed.
		if err := win.Run(ctx); err != nil {
			appLog.Error("window failed", err)
		}
		cancel()
	}
	<-ctx.Done()
	wg.Wait()

	if err := dev.Backlight.Set(false); err != nil {
		appLog.Error("backlight off failed", err)
	}
	appLog.Info("hasptft exiting")
}

// runOnce draws one frame (capturing the page first when configured),
// optionally dumps a preview PNG and returns the exit code.
func runOnce(ctx context.Context, dev *device.Device, loop *compose.Loop, pic *render.Picture, conf *config.Config, dump string) int {
	if conf.Capture.URL != "" {
		img, err := capture.Capture(ctx, captureOptions(dev, conf)())
		if err != nil {
			appLog.Error("capture failed", err, "url", conf.Capture.URL)
			return 1
		}
		pic.Set(img)
	}
	if err := dev.Backlight.Set(true); err != nil {
		appLog.Error("backlight on failed", err)
	}
	if err := loop.Step(ctx); err != nil {
		appLog.Error("render failed", err)
		return 1
	}
	st := dev.Comp.Stats()
	appLog.Info("frame flushed", "flushes", st.Flushes, "pixels", st.Pixels, "bands", loop.Bands())

	if dump == "" {
		return 0
	}
	var img image.Image
	if rb := dev.Comp.ReadScreen(); rb != nil {
		img = rb
	} else if dev.Panel != nil {
		img = dev.Panel.Snapshot()
	}
	if img == nil {
		appLog.Warn("panel cannot be read back; nothing dumped")
		return 0
	}
	if err := writePNG(dump, img); err != nil {
		appLog.Error("failed to write preview", err, "path", dump)
		return 1
	}
	appLog.Info("preview written", "path", dump)
	return 0
}

func captureOptions(dev *device.Device, conf *config.Config) func() capture.Options {
	return func() capture.Options {
		info := dev.Info()
		return capture.Options{
			URL:     conf.Capture.URL,
			Width:   info.Width,
			Height:  info.Height,
			Ready:   conf.Capture.Ready,
			Timeout: time.Duration(conf.Capture.TimeoutSec) * time.Second,
		}
	}
}

func applyFlags(conf *config.Config, f flagConfig) {
	// CLI flags override the config file when set.
	if f.listen != "" {
		conf.Listen = f.listen
	}
	if f.chip != "" {
		conf.Panel.Chip = f.chip
	}
	if f.busKind != "" {
		conf.Bus.Kind = f.busKind
	}
	if f.scene != "" {
		conf.Scene = f.scene
	}
	if f.window {
		conf.Window = true
	}
	conf.Normalize()
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "/etc/hasptft/config.yaml", "Path to config file")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.StringVar(&cfg.chip, "chip", "", "Panel controller (ili9341, ili9486, ili9488, hx8357b, ili9325c)")
	flag.StringVar(&cfg.busKind, "bus", "", "Bus binding (spi, spi9, parallel, mapped, sim)")
	flag.StringVar(&cfg.scene, "scene", "", "Scene shown without a capture URL (bars, grid, gradient, clock)")
	flag.BoolVar(&cfg.window, "window", false, "Mirror the simulated panel in a desktop window")
	flag.BoolVar(&cfg.once, "once", false, "Draw a single frame and exit")
	flag.StringVar(&cfg.dump, "dump", "", "With -once, write the panel contents to this PNG")

	flag.Parse()

	return cfg
}

package capture

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"os"
	"time"

	"github.com/chromedp/chromedp"
	"golang.org/x/image/draw"
)

const (
	DefaultTimeoutSec = 30
	// DefaultReady is waited for before the screenshot. Pages that load
	// data asynchronously can set data-ready="true" on their root element
	// and pass `[data-ready="true"]` instead.
	DefaultReady = "body"
)

// Options defines a Chromium screenshot sized to the panel.
type Options struct {
	// URL to capture, e.g. "http://127.0.0.1:8080/dashboard".
	URL string

	// Width and Height are the viewport in pixels, normally the panel size
	// at the current rotation.
	Width  int
	Height int

	// Ready is a CSS selector that must be visible before capture.
	Ready string

	// Settle is an extra delay for final paints (default 500ms).
	Settle time.Duration

	// Timeout bounds the whole capture.
	Timeout time.Duration

	// OutputPath, if set, also receives the PNG.
	OutputPath string
}

func (o *Options) normalize() error {
	if o.URL == "" {
		return fmt.Errorf("capture: URL is required")
	}
	if o.Width <= 0 || o.Height <= 0 {
		return fmt.Errorf("capture: viewport %dx%d is invalid", o.Width, o.Height)
	}
	if o.Ready == "" {
		o.Ready = DefaultReady
	}
	if o.Settle <= 0 {
		o.Settle = 500 * time.Millisecond
	}
	if o.Timeout <= 0 {
		o.Timeout = time.Duration(DefaultTimeoutSec) * time.Second
	}
	return nil
}

// CapturePNG launches a headless Chromium through chromedp, navigates to
// opts.URL at the panel's viewport, waits for opts.Ready and returns a PNG
// screenshot.
func CapturePNG(parentCtx context.Context, opts Options) ([]byte, error) {
	if err := opts.normalize(); err != nil {
		return nil, err
	}

	ctx, cancel := chromedp.NewContext(parentCtx)
	defer cancel()

	ctx, timeoutCancel := context.WithTimeout(ctx, opts.Timeout)
	defer timeoutCancel()

	var buf []byte
	tasks := chromedp.Tasks{
		chromedp.EmulateViewport(int64(opts.Width), int64(opts.Height)),
		chromedp.Navigate(opts.URL),
		chromedp.WaitVisible(opts.Ready, chromedp.ByQuery),
		chromedp.Sleep(opts.Settle),
		chromedp.CaptureScreenshot(&buf),
	}
	if err := chromedp.Run(ctx, tasks); err != nil {
		return nil, fmt.Errorf("capture: chromedp run failed: %w", err)
	}

	if opts.OutputPath != "" {
		if err := os.WriteFile(opts.OutputPath, buf, 0o644); err != nil {
			return nil, fmt.Errorf("capture: failed to write PNG: %w", err)
		}
	}
	return buf, nil
}

// Capture screenshots opts.URL and returns it fitted to the viewport.
func Capture(ctx context.Context, opts Options) (image.Image, error) {
	buf, err := CapturePNG(ctx, opts)
	if err != nil {
		return nil, err
	}
	img, err := png.Decode(bytes.NewReader(buf))
	if err != nil {
		return nil, fmt.Errorf("capture: decode screenshot: %w", err)
	}
	return Fit(img, opts.Width, opts.Height), nil
}

// Fit scales img to fit w×h keeping its aspect ratio, centred on black.
// An image that already has the target size is returned as is.
func Fit(img image.Image, w, h int) image.Image {
	b := img.Bounds()
	if b.Dx() == w && b.Dy() == h {
		return img
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Bounds(), image.Black, image.Point{}, draw.Src)

	sw, sh := b.Dx(), b.Dy()
	if sw == 0 || sh == 0 {
		return dst
	}
	tw, th := w, sh*w/sw
	if th > h {
		tw, th = sw*h/sh, h
	}
	off := image.Pt((w-tw)/2, (h-th)/2)
	draw.CatmullRom.Scale(dst, image.Rectangle{Min: off, Max: off.Add(image.Pt(tw, th))}, img, b, draw.Src, nil)
	return dst
}

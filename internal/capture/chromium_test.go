package capture

import (
	"context"
	"errors"
	"image"
	"image/color"
	"testing"
)

func TestFitLetterboxes(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 100, 50))
	for i := range src.Pix {
		src.Pix[i] = 0xFF
	}

	out := Fit(src, 240, 320)

	if out.Bounds() != image.Rect(0, 0, 240, 320) {
		t.Fatalf("bounds %v", out.Bounds())
	}
	// 100x50 scales to 240x120, centred vertically at y=100.
	if c := color.RGBAModel.Convert(out.At(120, 160)).(color.RGBA); c.R != 0xFF {
		t.Fatalf("centre = %v", c)
	}
	if c := color.RGBAModel.Convert(out.At(120, 20)).(color.RGBA); c != (color.RGBA{A: 0xFF}) {
		t.Fatalf("letterbox = %v", c)
	}
}

func TestFitKeepsExactSize(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 320, 240))
	if Fit(src, 320, 240) != image.Image(src) {
		t.Fatal("exact-size image was copied")
	}
}

func TestCaptureNeedsURLAndViewport(t *testing.T) {
	if _, err := CapturePNG(context.Background(), Options{Width: 10, Height: 10}); err == nil {
		t.Fatal("expected URL error")
	}
	if _, err := CapturePNG(context.Background(), Options{URL: "http://x"}); err == nil {
		t.Fatal("expected viewport error")
	}
}

func TestRefresherDeliversImages(t *testing.T) {
	var got []image.Image
	r, err := NewRefresher("*/5 * * * *", func() Options {
		return Options{URL: "http://panel.local", Width: 4, Height: 2}
	}, func(img image.Image) { got = append(got, img) })
	if err != nil {
		t.Fatalf("NewRefresher: %v", err)
	}
	var seen Options
	r.Capture = func(_ context.Context, o Options) (image.Image, error) {
		seen = o
		return image.NewRGBA(image.Rect(0, 0, o.Width, o.Height)), nil
	}

	if err := r.RefreshNow(context.Background()); err != nil {
		t.Fatalf("RefreshNow: %v", err)
	}
	if len(got) != 1 || got[0].Bounds().Dx() != 4 || seen.URL != "http://panel.local" {
		t.Fatalf("got %d images, opts %+v", len(got), seen)
	}
	if last, err := r.Last(); last.IsZero() || err != nil {
		t.Fatalf("last = %v, %v", last, err)
	}
}

func TestRefresherKeepsError(t *testing.T) {
	r, err := NewRefresher("@hourly", func() Options { return Options{} }, func(image.Image) {
		t.Fatal("sink called on failure")
	})
	if err != nil {
		t.Fatalf("NewRefresher: %v", err)
	}
	r.Capture = func(context.Context, Options) (image.Image, error) {
		return nil, errors.New("chromium missing")
	}
	if err := r.RefreshNow(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if _, err := r.Last(); err == nil {
		t.Fatal("Last lost the error")
	}
}

func TestRefresherRejectsBadSchedule(t *testing.T) {
	if _, err := NewRefresher("every minute", nil, nil); err == nil {
		t.Fatal("expected parse error")
	}
}

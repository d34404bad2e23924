package convert

import (
	"image"
	"image/color"
	"testing"
)

func TestRGB565Packing(t *testing.T) {
	tests := []struct {
		r, g, b uint8
		want    uint16
	}{
		{0xFF, 0x00, 0x00, 0xF800},
		{0x00, 0xFF, 0x00, 0x07E0},
		{0x00, 0x00, 0xFF, 0x001F},
		{0xFF, 0xFF, 0xFF, 0xFFFF},
		{0x07, 0x03, 0x07, 0x0000}, // below channel precision
		{0x84, 0x86, 0x88, 0x8431},
	}
	for _, tt := range tests {
		if got := RGB565(tt.r, tt.g, tt.b); got != tt.want {
			t.Fatalf("RGB565(%02x,%02x,%02x) = 0x%04x, want 0x%04x", tt.r, tt.g, tt.b, got, tt.want)
		}
	}
}

func TestRGB666RoundTripIsExact(t *testing.T) {
	for c := 0; c <= 0xFFFF; c++ {
		r, g, b := RGB666(uint16(c))
		if got := RGB565(r, g, b); got != uint16(c) {
			t.Fatalf("0x%04x -> %02x %02x %02x -> 0x%04x", c, r, g, b, got)
		}
	}
}

func TestRGB888KeepsExtremes(t *testing.T) {
	r, g, b := RGB888(0xFFFF)
	if r != 0xFF || g != 0xFF || b != 0xFF {
		t.Fatalf("white expanded to %02x %02x %02x", r, g, b)
	}
	r, g, b = RGB888(0)
	if r|g|b != 0 {
		t.Fatal("black did not stay black")
	}
}

func TestExpand666AndSwap(t *testing.T) {
	px := []uint16{0xF800, 0x07E0}
	dst := make([]byte, 6)
	if n := Expand666(dst, px); n != 6 {
		t.Fatalf("n = %d", n)
	}
	want := []byte{0xF8, 0x00, 0x00, 0x00, 0xFC, 0x00}
	for i := range want {
		if dst[i] != want[i] {
			t.Fatalf("dst = % x, want % x", dst, want)
		}
	}

	Swap16(px)
	if px[0] != 0x00F8 || px[1] != 0xE007 {
		t.Fatalf("swapped = %04x", px)
	}
}

func TestBlend(t *testing.T) {
	if Blend(Black, White, 0) != Black || Blend(Black, White, 255) != White {
		t.Fatal("alpha extremes wrong")
	}
	mid := Blend(Black, White, 128)
	r, g, b := RGB888(mid)
	if r < 0x78 || r > 0x88 || g < 0x78 || g > 0x88 || b < 0x78 || b > 0x88 {
		t.Fatalf("half blend = 0x%04x (%02x %02x %02x)", mid, r, g, b)
	}
}

func TestPackRGB565FromRGBASubRect(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 4, 3))
	img.Set(1, 1, color.RGBA{R: 0xFF, A: 0xFF})
	img.Set(2, 1, color.RGBA{B: 0xFF, A: 0xFF})
	img.Set(1, 2, color.RGBA{G: 0xFF, A: 0xFF})

	dst := make([]uint16, 4)
	n, err := PackRGB565(dst, img, image.Rect(1, 1, 3, 3))
	if err != nil {
		t.Fatal(err)
	}
	want := []uint16{Red, Blue, Green, Black}
	if n != 4 {
		t.Fatalf("n = %d", n)
	}
	for i := range want {
		if dst[i] != want[i] {
			t.Fatalf("dst = %04x, want %04x", dst, want)
		}
	}
}

func TestPackRGB565NRGBAAndGeneric(t *testing.T) {
	nrgba := image.NewNRGBA(image.Rect(0, 0, 2, 1))
	nrgba.Set(0, 0, color.NRGBA{R: 0xFF, G: 0xFF, B: 0xFF, A: 0xFF})
	nrgba.Set(1, 0, color.NRGBA{R: 0xFF, G: 0xFF, B: 0xFF, A: 0})

	gray := image.NewGray(image.Rect(0, 0, 2, 1))
	gray.Set(0, 0, color.Gray{Y: 0xFF})

	for name, img := range map[string]image.Image{"nrgba": nrgba, "gray": gray} {
		dst := make([]uint16, 2)
		if _, err := PackRGB565(dst, img, img.Bounds()); err != nil {
			t.Fatal(err)
		}
		if dst[0] != White || dst[1] != Black {
			t.Fatalf("%s: dst = %04x", name, dst)
		}
	}
}

func TestPackRGB565ShortBuffer(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 10, 10))
	if _, err := PackRGB565(make([]uint16, 5), img, img.Bounds()); err == nil {
		t.Fatal("expected error")
	}
}

func TestImage565(t *testing.T) {
	img := NewImage565(image.Rect(10, 10, 14, 12))
	img.SetRGB565(11, 11, Magenta)
	img.Set(99, 99, color.White) // out of bounds, ignored

	if img.RGB565At(11, 11) != Magenta || img.RGB565At(10, 10) != Black {
		t.Fatal("Set/At mismatch")
	}
	dst := make([]uint16, 2)
	if _, err := PackRGB565(dst, img, image.Rect(11, 11, 13, 12)); err != nil {
		t.Fatal(err)
	}
	if dst[0] != Magenta {
		t.Fatalf("fast path read %04x", dst[0])
	}
	rgba := img.RGBA()
	if c := rgba.RGBAAt(11, 11); c.R != 0xFF || c.G != 0 || c.B != 0xFF {
		t.Fatalf("RGBA copy = %+v", c)
	}
}

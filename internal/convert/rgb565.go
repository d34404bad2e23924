// Package convert holds the pixel format conversions between Go images and
// the 16-bit RGB565 / 18-bit RGB666 formats TFT controllers speak.
package convert

import "image/color"

// RGB565 packs 8-bit channels into RGB565. The same packing turns a 3-byte
// RGB666 read-back (each channel left aligned in a byte) into RGB565.
func RGB565(r, g, b uint8) uint16 {
	return uint16(r&0xF8)<<8 | uint16(g&0xFC)<<3 | uint16(b&0xF8)>>3
}

// RGB888 expands an RGB565 value back to 8-bit channels, replicating the
// high bits into the low ones so white stays 0xFF.
func RGB888(c uint16) (r, g, b uint8) {
	r5 := uint8(c >> 11 & 0x1F)
	g6 := uint8(c >> 5 & 0x3F)
	b5 := uint8(c & 0x1F)
	return r5<<3 | r5>>2, g6<<2 | g6>>4, b5<<3 | b5>>2
}

// RGB666 returns the three bytes an 18-bit interface expects for c, each
// channel in the top bits of its byte.
func RGB666(c uint16) (r, g, b uint8) {
	return uint8(c>>8) & 0xF8, uint8(c>>3) & 0xFC, uint8(c<<3) & 0xF8
}

// Expand666 writes px as 3 bytes per pixel into dst and returns the byte
// count. dst must hold 3*len(px) bytes.
func Expand666(dst []byte, px []uint16) int {
	i := 0
	for _, c := range px {
		dst[i], dst[i+1], dst[i+2] = RGB666(c)
		i += 3
	}
	return i
}

// Swap16 byte-swaps every pixel in place, for renderers that produce
// little-endian RGB565 into a buffer sent as bytes.
func Swap16(px []uint16) {
	for i, c := range px {
		px[i] = c<<8 | c>>8
	}
}

// FromColor converts any color.Color to RGB565, composited over black.
func FromColor(c color.Color) uint16 {
	if c == nil {
		return 0
	}
	r, g, b, _ := c.RGBA()
	return RGB565(uint8(r>>8), uint8(g>>8), uint8(b>>8))
}

// ToRGBA converts an RGB565 value to an opaque color.RGBA.
func ToRGBA(c uint16) color.RGBA {
	r, g, b := RGB888(c)
	return color.RGBA{R: r, G: g, B: b, A: 0xFF}
}

// Blend mixes src over dst with alpha 0..255.
func Blend(dst, src uint16, alpha uint8) uint16 {
	switch alpha {
	case 0:
		return dst
	case 0xFF:
		return src
	}
	a := uint32(alpha)
	mix := func(d, s uint16, shift, mask uint16) uint16 {
		dv := uint32(d >> shift & mask)
		sv := uint32(s >> shift & mask)
		return uint16((sv*a+dv*(255-a)+127)/255) & mask << shift
	}
	return mix(dst, src, 11, 0x1F) | mix(dst, src, 5, 0x3F) | mix(dst, src, 0, 0x1F)
}

// Common colours.
const (
	Black   uint16 = 0x0000
	White   uint16 = 0xFFFF
	Red     uint16 = 0xF800
	Green   uint16 = 0x07E0
	Blue    uint16 = 0x001F
	Yellow  uint16 = 0xFFE0
	Cyan    uint16 = 0x07FF
	Magenta uint16 = 0xF81F
)

// Model converts colours to RGB565 precision.
var Model = color.ModelFunc(func(c color.Color) color.Color {
	return ToRGBA(FromColor(c))
})

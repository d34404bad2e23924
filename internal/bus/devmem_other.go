//go:build !linux

package bus

import "errors"

// DevMem is only available on Linux; elsewhere OpenDevMem always fails so the
// package still builds.
type DevMem struct{}

func OpenDevMem(base int64, size int) (*DevMem, error) {
	return nil, errors.New("bus: /dev/mem mapping is only available on linux")
}

func (d *DevMem) Store8(off uintptr, v uint8)   {}
func (d *DevMem) Store16(off uintptr, v uint16) {}
func (d *DevMem) Load8(off uintptr) uint8       { return 0 }
func (d *DevMem) Load16(off uintptr) uint16     { return 0 }
func (d *DevMem) Close() error                  { return nil }

//go:build linux

package bus

import (
	"fmt"
	"os"
	"unsafe"

	"golang.org/x/sys/unix"
)

// DevMem is a Region backed by an mmap of /dev/mem, for SoCs whose external
// memory controller window is reachable from Linux userspace.
type DevMem struct {
	f   *os.File
	mem []byte
}

// OpenDevMem maps size bytes of physical memory at base. base must be page
// aligned. Requires CAP_SYS_RAWIO.
func OpenDevMem(base int64, size int) (*DevMem, error) {
	if base%int64(os.Getpagesize()) != 0 {
		return nil, fmt.Errorf("bus: /dev/mem base 0x%x is not page aligned", base)
	}
	f, err := os.OpenFile("/dev/mem", os.O_RDWR|os.O_SYNC, 0)
	if err != nil {
		return nil, fmt.Errorf("bus: open /dev/mem: %w", err)
	}
	mem, err := unix.Mmap(int(f.Fd()), base, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("bus: mmap /dev/mem at 0x%x: %w", base, err)
	}
	return &DevMem{f: f, mem: mem}, nil
}

// Each access is a single load or store of the exact width; the external
// memory controller turns it into one strobe on the panel bus.

func (d *DevMem) Store8(off uintptr, v uint8) {
	*(*uint8)(unsafe.Pointer(&d.mem[off])) = v
}

func (d *DevMem) Store16(off uintptr, v uint16) {
	*(*uint16)(unsafe.Pointer(&d.mem[off])) = v
}

func (d *DevMem) Load8(off uintptr) uint8 {
	return *(*uint8)(unsafe.Pointer(&d.mem[off]))
}

func (d *DevMem) Load16(off uintptr) uint16 {
	return *(*uint16)(unsafe.Pointer(&d.mem[off]))
}

func (d *DevMem) Close() error {
	if err := unix.Munmap(d.mem); err != nil {
		d.f.Close()
		return fmt.Errorf("bus: munmap /dev/mem: %w", err)
	}
	return d.f.Close()
}

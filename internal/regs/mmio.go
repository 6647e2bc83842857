package regs

import (
	"fmt"
	"os"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

// MMIO is the real-hardware register accessor. It maps the peripheral's
// register window directly into the process address space the same way
// virtual_machine.go maps guest RAM with syscall.Mmap and casts the result
// with unsafe.Pointer — except here the "guest memory" is a fixed physical
// window exposed by the kernel through a /dev/mem-style character device,
// and the cast target is a single uint16 register rather than a whole
// struct.
type MMIO struct {
	f    *os.File
	mem  []byte
	base uintptr
}

// OpenMMIO maps length bytes of devPath starting at physBase, returning an
// Accessor whose offsets are relative to physBase. devPath is typically
// "/dev/mem" or a platform-specific UIO device exposing one peripheral.
func OpenMMIO(devPath string, physBase uintptr, length int) (*MMIO, error) {
	f, err := os.OpenFile(devPath, os.O_RDWR|os.O_SYNC, 0)
	if err != nil {
		return nil, fmt.Errorf("regs: open %s: %w", devPath, err)
	}
	mem, err := unix.Mmap(int(f.Fd()), int64(physBase), length, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("regs: mmap %s at 0x%x (%d bytes): %w", devPath, physBase, length, err)
	}
	return &MMIO{f: f, mem: mem, base: physBase}, nil
}

// Close unmaps the register window and closes the backing file.
func (m *MMIO) Close() error {
	if m.mem != nil {
		if err := unix.Munmap(m.mem); err != nil {
			return err
		}
		m.mem = nil
	}
	return m.f.Close()
}

func (m *MMIO) reg(off uint32) *uint16 {
	return (*uint16)(unsafe.Pointer(&m.mem[off]))
}

func (m *MMIO) Read16(off uint32) uint16 {
	return *m.reg(off)
}

func (m *MMIO) Write16(off uint32, v uint16) {
	*m.reg(off) = v
}

func (m *MMIO) Modify16(off uint32, mask, set uint16) {
	p := m.reg(off)
	*p = (*p &^ mask) | (set & mask)
}

func (m *MMIO) WaitFor16(timeout time.Duration, off uint32, mask, want uint16) bool {
	if timeout <= 0 {
		return m.Read16(off)&mask == want
	}
	deadline := time.Now().Add(timeout)
	for {
		if m.Read16(off)&mask == want {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(time.Microsecond)
	}
}

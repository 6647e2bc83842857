// Package regs provides typed access to the I²C peripheral's memory-mapped
// register file (CR1, CR2, DR, SR1, SR2, CCR, TRISE, OAR1).
//
// It isolates the one piece of genuinely unsafe I/O in the driver: everything
// above this package works with an Accessor, never a raw pointer, so the
// event-driven engine in package i2cmaster can be exercised against a
// Simulated backend in tests and an MMIO backend on real hardware without
// any other code changing.
package regs

import "time"

// Register byte offsets from a port's configured base address.
//
// Layout matches the STM32F1/F4-family I²C peripheral (the family this
// driver's protocol engine is written against); other silicon variants in
// the same register-compatible family use the same offsets.
const (
	CR1   = 0x00
	CR2   = 0x04
	OAR1  = 0x08
	OAR2  = 0x0C
	DR    = 0x10
	SR1   = 0x14
	SR2   = 0x18
	CCR   = 0x1C
	TRISE = 0x20
)

// CR1 bits.
const (
	CR1_PE    uint16 = 1 << 0
	CR1_POS   uint16 = 1 << 11
	CR1_ACK   uint16 = 1 << 10
	CR1_STOP  uint16 = 1 << 9
	CR1_START uint16 = 1 << 8
	CR1_SWRST uint16 = 1 << 15
)

// CR2 bits.
const (
	CR2_FREQ_MASK uint16 = 0x3F
	CR2_ITBUFEN   uint16 = 1 << 10
	CR2_ITEVTEN   uint16 = 1 << 9
	CR2_ITERREN   uint16 = 1 << 8
)

// SR1 bits.
const (
	SR1_SB      uint16 = 1 << 0
	SR1_ADDR    uint16 = 1 << 1
	SR1_BTF     uint16 = 1 << 2
	SR1_ADD10   uint16 = 1 << 3
	SR1_STOPF   uint16 = 1 << 4
	SR1_RXNE    uint16 = 1 << 6
	SR1_TXE     uint16 = 1 << 7
	SR1_BERR    uint16 = 1 << 8
	SR1_ARLO    uint16 = 1 << 9
	SR1_AF      uint16 = 1 << 10
	SR1_OVR     uint16 = 1 << 11
	SR1_PECERR  uint16 = 1 << 12
	SR1_TIMEOUT uint16 = 1 << 14
)

// SR2 bits.
const (
	SR2_MSL  uint16 = 1 << 0
	SR2_BUSY uint16 = 1 << 1
	SR2_TRA  uint16 = 1 << 2
)

// CCR bits.
const (
	CCR_CCR_MASK uint16 = 0x0FFF
	CCR_DUTY     uint16 = 1 << 14
	CCR_FS       uint16 = 1 << 15
)

// OAR1 bit 14 must always be written 1 — a documented silicon erratum
// (§4.2). Nothing reads it back; it exists purely so the write sticks.
const OAR1_ALWAYS_SET uint16 = 1 << 14

// Accessor is the typed register interface every other component in this
// module talks to. Reading SR1 and reading SR2 are kept as distinct calls
// (never folded into one "get status" call) because the protocol engine's
// correctness depends on exactly when SR2 gets read — see engine.go branch
// (d).
type Accessor interface {
	Read16(off uint32) uint16
	Write16(off uint32, v uint16)
	// Modify16 read-modifies-writes: (cur &^ mask) | (set & mask).
	Modify16(off uint32, mask, set uint16)
	// WaitFor16 polls off until (Read16(off) & mask) == want, or timeout
	// elapses. Returns false on timeout. timeout <= 0 means a single poll.
	WaitFor16(timeout time.Duration, off uint32, mask, want uint16) bool
}

// Set sets the given bits at off.
func Set(a Accessor, off uint32, bits uint16) { a.Modify16(off, bits, bits) }

// Clear clears the given bits at off.
func Clear(a Accessor, off uint32, bits uint16) { a.Modify16(off, bits, 0) }

// Test reports whether all of bits are set at off.
func Test(a Accessor, off uint32, bits uint16) bool {
	return a.Read16(off)&bits == bits
}

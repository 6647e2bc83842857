package i2cmaster

import (
	"fmt"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/physic"

	"i2c_engine/clock"
)

// Instance is the caller-facing handle (§3 "Instance"): a target address and
// address-width hint on a shared Bus, used by Write, Read, WriteRead and Tx.
// Transfer sends its messages with their own addresses and flags. The bus
// frequency is held by the Bus; SetFrequency forwards to it.
type Instance struct {
	bus    *Bus
	addr   uint16
	tenBit bool
}

// NewInstance binds addr to bus. The instance does not itself hold the
// bus's exclusion lock; every call goes through Bus.process, which does.
func NewInstance(bus *Bus, addr uint16, tenBit bool) *Instance {
	return &Instance{bus: bus, addr: addr, tenBit: tenBit}
}

// SetAddress retargets this instance at a different slave address on the
// same bus (§6).
func (in *Instance) SetAddress(addr uint16, tenBit bool) {
	in.addr = addr
	in.tenBit = tenBit
}

// SetFrequency forwards to the underlying Bus, returning the value
// actually stored after the <4MHz clamp (§6).
func (in *Instance) SetFrequency(hz int) int {
	return in.bus.SetFrequency(hz)
}

func (in *Instance) flags(read bool) Flags {
	var f Flags
	if read {
		f |= Read
	}
	if in.tenBit {
		f |= TenBit
	}
	return f
}

// Write sends buf as a single write message, per §6.
func (in *Instance) Write(buf []byte) error {
	if err := in.bus.process([]Msg{{Addr: in.addr, Flags: in.flags(false), Buf: buf}}); err != nil {
		return err
	}
	return nil
}

// Read fills buf as a single read message, per §6.
func (in *Instance) Read(buf []byte) error {
	if err := in.bus.process([]Msg{{Addr: in.addr, Flags: in.flags(true), Buf: buf}}); err != nil {
		return err
	}
	return nil
}

// Transfer runs a message chain, per §6's core operation. A repeated START
// follows each write message unless the next message carries NoRestart; a
// read message always ends with STOP, and no START is issued after it.
func (in *Instance) Transfer(msgs []Msg) error {
	if err := in.bus.process(msgs); err != nil {
		return err
	}
	return nil
}

// WriteRead is the common write-then-repeated-START-read pattern (register
// address followed by a read), built from Transfer the way most I²C
// client drivers compose it.
func (in *Instance) WriteRead(w, r []byte) error {
	return in.Transfer([]Msg{
		{Addr: in.addr, Flags: in.flags(false), Buf: w},
		{Addr: in.addr, Flags: in.flags(true), Buf: r},
	})
}

// The methods below let an *Instance stand in directly for a
// periph.io/x/conn/v3/i2c.Bus and i2c.Pins, so device drivers written
// against that ecosystem (as other_examples' ftdi-i2c.go and
// bitbang-i2c.go are) work unmodified against this engine. i2c.Bus's
// Tx takes an explicit address (ftdi-i2c.go's i2cBus asserts only
// i2c.BusCloser and i2c.Pins, never conn.Conn, for the same reason: its
// 3-arg Tx can't also satisfy conn.Conn's 2-arg Tx).
var (
	_ i2c.Bus  = (*Instance)(nil)
	_ i2c.Pins = (*Instance)(nil)
)

// Tx implements i2c.Bus: a write of w followed, if r is non-empty, by a
// repeated-START read into r — the same shape ftdi-i2c.go's Tx gives its
// two sub-operations, just driven through the register engine instead of
// an MPSSE command stream.
func (in *Instance) Tx(addr uint16, w, r []byte) error {
	orig := in.addr
	in.addr = addr
	defer func() { in.addr = orig }()

	var msgs []Msg
	if len(w) > 0 {
		msgs = append(msgs, Msg{Addr: addr, Flags: in.flags(false), Buf: w})
	}
	if len(r) > 0 {
		msgs = append(msgs, Msg{Addr: addr, Flags: in.flags(true), Buf: r})
	}
	if len(msgs) == 0 {
		return nil
	}
	return in.Transfer(msgs)
}

// SetSpeed implements i2c.Bus.
func (in *Instance) SetSpeed(f physic.Frequency) error {
	in.SetFrequency(clock.Hz(f))
	return nil
}

func (in *Instance) String() string {
	return fmt.Sprintf("i2c_engine(addr=0x%02x)", in.addr)
}

// SCL implements i2c.Pins by delegating to the bus's platform.
func (in *Instance) SCL() gpio.PinIO { return in.bus.pf.Pins().SCL }

// SDA implements i2c.Pins by delegating to the bus's platform.
func (in *Instance) SDA() gpio.PinIO { return in.bus.pf.Pins().SDA }

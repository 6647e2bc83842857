package i2cmaster

import "time"

// Mode selects the dispatch path (§6 "polled | interrupt-driven (mutually
// exclusive dispatch mode)"). Unlike the C source, which picks this at
// build time via a preprocessor flag, this is a Config field resolved once
// at Open — the one deliberate redesign this port makes (see DESIGN.md).
type Mode int

const (
	Interrupt Mode = iota
	Polled
)

// TimeoutPolicy implements §6's "dynamic-timeout... | static-timeout"
// option. A zero TimeoutPolicy means Static with a 1 second deadline.
type TimeoutPolicy struct {
	// Static, if non-zero, is the fixed per-transfer deadline.
	Static time.Duration
	// PerByte, if non-zero, scales the deadline by the total byte count
	// of the transfer (§6 "dynamic-timeout (scale timeout by total bytes
	// with a user-supplied µs/byte)"). PerByte takes precedence over
	// Static when both are set.
	PerByte time.Duration
	// Floor is the minimum deadline when PerByte is in effect, so a
	// zero-byte or tiny transfer still gets a sane timeout.
	Floor time.Duration
}

func (p TimeoutPolicy) deadline(totalBytes int) time.Duration {
	if p.PerByte > 0 {
		d := p.PerByte * time.Duration(totalBytes)
		if d < p.Floor {
			d = p.Floor
		}
		return d
	}
	if p.Static > 0 {
		return p.Static
	}
	return time.Second
}

// TraceConfig controls the optional trace recorder (§4.3).
type TraceConfig struct {
	Enabled  bool
	Capacity int // 0 defaults to 32.
}

// Config collects the build-time options §6 lists, resolved at Open() time
// instead of through preprocessor flags (see Mode's doc comment).
type Config struct {
	Mode    Mode
	Timeout TimeoutPolicy

	// Duty169 selects the fast-mode 16/9 duty cycle (§4.2); ignored in
	// standard mode.
	Duty169 bool

	Trace TraceConfig

	// RecoveryEnabled gates whether Bus.Recover is callable at all (§6
	// "bus-recovery on/off").
	RecoveryEnabled bool

	// FSMCWorkaround, when set, runs PreTransferHook/PostTransferHook
	// around every transfer on this bus and defers the pre-STOP-settle
	// wait from before the transfer to after it (§6, §9's FSMC/LBAR
	// conflict note). Left nil on ports that don't share the LBAR
	// resource with an FSMC controller.
	FSMCWorkaround   bool
	PreTransferHook  func()
	PostTransferHook func()

	// DefaultFrequency is the bus frequency stored at Open() (§4.7 "set
	// default 100 kHz"); 0 means 100_000. CCR/TRISE are written from it at
	// the start of each transfer until SetFrequency stores another value.
	DefaultFrequency int

	// PeripheralClockHz is the peripheral's input clock, used both for
	// clock programming (§4.2) and the <4MHz clamp in SetFrequency (§6).
	PeripheralClockHz int

	// Debug turns on Bus's diagnostic log.Printf output, matching the
	// teacher's VirtualMachine.Debug idiom.
	Debug bool
}

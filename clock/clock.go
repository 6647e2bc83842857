// Package clock computes the peripheral's CCR and TRISE register values
// from a peripheral clock frequency and a target bus frequency, per §4.2.
//
// The computation only runs with the peripheral disabled (CR1.PE=0); the
// caller (Bus.process in dispatch.go) is responsible for that invariant, matching the NXP driver
// in other_examples' setting of its frequency divider (IFDR) once at Init
// before IEN is raised.
package clock

import "periph.io/x/conn/v3/physic"

// Program implements §4.2 exactly: standard mode (<=100kHz) uses a simple
// half-period divider; fast mode uses either the 16/9 duty cycle divider or
// the plain 1/3 divider, both with a floor of 1. TRISE differs between the
// two modes. OAR1's always-set erratum bit is the caller's concern (it isn't
// a function of frequency), not this function's.
func Program(fp, ft int, duty16_9 bool) (ccr, trise uint16, duty, fs bool) {
	if ft <= 100_000 {
		c := fp / (2 * ft)
		if c < 4 {
			c = 4
		}
		return uint16(c), uint16(fp/1_000_000) + 1, false, false
	}

	var c int
	if duty16_9 {
		c = fp / (25 * ft)
	} else {
		c = fp / (3 * ft)
	}
	if c < 1 {
		c = 1
	}
	tr := (fp/1_000_000)*300/1000 + 1
	return uint16(c), uint16(tr), duty16_9, true
}

// Frequency adapts an integer Hz value to periph's physic.Frequency, for
// callers that already speak the periph.io ecosystem (ftdi-i2c.go's
// SetSpeed(physic.Frequency) is the grounding example for this conversion).
func Frequency(hz int) physic.Frequency {
	return physic.Frequency(hz) * physic.Hertz
}

// Hz is the inverse of Frequency.
func Hz(f physic.Frequency) int {
	return int(f / physic.Hertz)
}

// Package platform defines the collaborators §1 deliberately pushes out of
// the protocol engine's scope: clock tree enable, GPIO alternate-function
// configuration, IRQ attachment, and the bus-recovery bit-banging
// procedure. The engine and dispatcher in package i2cmaster depend only on
// these interfaces; a concrete board package supplies the implementation.
package platform

import (
	"time"

	"periph.io/x/conn/v3/gpio"
)

// Platform is the per-port hardware bring-up/tear-down surface (§4.7
// Lifecycle). Concrete implementations live outside this module, one per
// silicon family/board, matching the "abstracted as a Platform interface"
// line in §1.
type Platform interface {
	// EnableClock turns on the peripheral's bus clock and pulses its
	// reset line.
	EnableClock() error
	// DisableClock gates the peripheral's bus clock back off.
	DisableClock() error
	// ConfigurePins puts SCL/SDA into open-drain alternate function with
	// pull-up (§6 "Hardware surface").
	ConfigurePins() error
	// DeconfigurePins returns the pins to their reset state, used during
	// bus recovery (direct GPIO control) and teardown.
	DeconfigurePins() error
	// AttachIRQ wires the event and error interrupt vectors to the given
	// handlers. Only called when Config.Mode is Interrupt.
	AttachIRQ(event, errIRQ func()) error
	// DetachIRQ disables and detaches both vectors.
	DetachIRQ()
	// Pins returns direct GPIO control of SCL/SDA for bus recovery (§4.7
	// "reset"). Implementations typically multiplex the same physical
	// pins between alternate-function (normal operation) and GPIO
	// (recovery) mode; Pins() puts them in GPIO mode.
	Pins() Pins
}

// Pins exposes the two wires of an I²C bus as periph.io GPIO pins, letting
// Recovery drive and sample them directly the way driver/wshat/wshat.go
// drives button GPIOs through the same gpio.PinIO surface.
type Pins struct {
	SCL gpio.PinIO
	SDA gpio.PinIO
}

// Recovery implements §4.7's bus-recovery procedure: drive SDA high, and if
// it stays low (a slave holding the bus), clock up to 10 SCL pulses
// watching for the slave to release SDA, then emit a manual START/STOP.
//
// Recovery is never invoked automatically (§7 "Bus-recovery (reset) is
// never attempted automatically; it is exposed to callers").
type Recovery struct {
	Pins Pins
	// HalfPeriod is the SCL pulse half-period; defaults to 10us per §4.7.
	HalfPeriod time.Duration
	// MaxPulses bounds the number of SCL pulses attempted; defaults to 10.
	MaxPulses int
}

// ErrBusStuck is returned when SDA never releases after MaxPulses clock
// pulses.
type ErrBusStuck struct{ Pulses int }

func (e *ErrBusStuck) Error() string {
	return "i2c: bus recovery: SDA still low after clock pulses"
}

// Reset runs the bit-bang recovery sequence over Pins. Callers invoke it
// through Bus.Recover, which first deinitializes the peripheral and takes
// direct GPIO control, then calls this, then reinitializes.
func (r Recovery) Reset() error {
	half := r.HalfPeriod
	if half <= 0 {
		half = 10 * time.Microsecond
	}
	maxPulses := r.MaxPulses
	if maxPulses <= 0 {
		maxPulses = 10
	}

	if err := r.Pins.SDA.Out(gpio.High); err != nil {
		return err
	}

	for i := 0; i <= maxPulses; i++ {
		if r.Pins.SDA.Read() == gpio.High {
			break
		}
		if i == maxPulses {
			return &ErrBusStuck{Pulses: maxPulses}
		}
		if err := r.pulseSCL(half); err != nil {
			return err
		}
	}

	// Manual START: SDA high->low while SCL high.
	if err := r.Pins.SCL.Out(gpio.High); err != nil {
		return err
	}
	time.Sleep(half)
	if err := r.Pins.SDA.Out(gpio.Low); err != nil {
		return err
	}
	time.Sleep(half)

	// Manual STOP: SCL low->high, then SDA low->high while SCL high.
	if err := r.Pins.SCL.Out(gpio.Low); err != nil {
		return err
	}
	time.Sleep(half)
	if err := r.Pins.SCL.Out(gpio.High); err != nil {
		return err
	}
	time.Sleep(half)
	return r.Pins.SDA.Out(gpio.High)
}

// pulseSCL drives one clock pulse, stretching (bounded) if the slave holds
// SCL low.
func (r Recovery) pulseSCL(half time.Duration) error {
	if err := r.Pins.SCL.Out(gpio.Low); err != nil {
		return err
	}
	time.Sleep(half)
	if err := r.Pins.SCL.Out(gpio.High); err != nil {
		return err
	}
	// Bounded wait for clock stretching: a slave may hold SCL low past our
	// release.
	for i := 0; i < 10 && r.Pins.SCL.Read() == gpio.Low; i++ {
		time.Sleep(half)
	}
	time.Sleep(half)
	return nil
}

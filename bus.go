package i2cmaster

import (
	"fmt"
	"log"
	"sync"

	"i2c_engine/internal/regs"
	"i2c_engine/platform"
	"i2c_engine/trace"
)

// BusConfig is the immutable per-port wiring a board package supplies at
// Open time: which register window, which platform, and the reset clock
// frequency (§4.7 "bring-up").
type BusConfig struct {
	Port     int
	Regs     regs.Accessor
	Platform platform.Platform
	Config   Config
}

// Bus is the mutable per-port state shared by every Instance addressing
// that port (§3 "Bus"): the exclusion lock, the transfer state machine,
// the completion rendezvous, and the trace ring.
type Bus struct {
	mu sync.Mutex

	r   regs.Accessor
	pf  platform.Platform
	cfg Config

	refcount int
	freqHz   int

	eng   *engine
	done  *rendezvous
	trace trace.Recorder

	// Debug gates diagnostic log.Printf calls (STOP-settle timeouts, trace
	// dumps, FSMC workaround transitions, bus-recovery progress), the same
	// way the teacher gates its own diagnostics on VirtualMachine.Debug.
	Debug bool
}

// logf writes a diagnostic line through the standard log package when
// b.Debug is set; it is a no-op otherwise, keeping the hot transfer path
// free of formatting cost when tracing isn't wanted.
func (b *Bus) logf(format string, args ...interface{}) {
	if b.Debug {
		log.Printf(format, args...)
	}
}

var (
	busesMu sync.Mutex
	buses   [8]*Bus // indexed by port id, matching the teacher's fixed per-device-id array convention
)

// Open acquires port, initializing it on the first call and just bumping a
// reference count on subsequent ones (§4.7 Lifecycle "reference-counted").
// Refcount mutation is guarded by busesMu standing in for the "interrupts
// globally disabled" requirement the source imposes on bare-metal — see
// DESIGN.md.
func Open(cfg BusConfig) (*Bus, error) {
	port := cfg.Port
	if port < 0 || port >= len(buses) {
		return nil, fmt.Errorf("i2c: port %d out of range", port)
	}

	busesMu.Lock()
	defer busesMu.Unlock()

	if buses[port] != nil {
		buses[port].refcount++
		return buses[port], nil
	}

	b := &Bus{
		r:      cfg.Regs,
		pf:     cfg.Platform,
		cfg:    cfg.Config,
		freqHz: cfg.Config.DefaultFrequency,
		Debug:  cfg.Config.Debug,
	}
	if b.freqHz == 0 {
		b.freqHz = 100_000
	}

	if b.cfg.Trace.Enabled {
		b.trace = trace.New(b.cfg.Trace.Capacity)
	} else {
		b.trace = trace.Nop{}
	}
	b.done = newRendezvous()
	b.eng = &engine{r: b.r, tr: b.trace, done: b.done, mode: b.cfg.Mode}

	if err := b.pf.EnableClock(); err != nil {
		return nil, fmt.Errorf("i2c: enable clock: %w", err)
	}
	if err := b.pf.ConfigurePins(); err != nil {
		return nil, fmt.Errorf("i2c: configure pins: %w", err)
	}

	regs.Set(b.r, regs.CR1, regs.CR1_SWRST)
	regs.Clear(b.r, regs.CR1, regs.CR1_SWRST)

	peripheralMHz := b.cfg.PeripheralClockHz / 1_000_000
	regs.Set(b.r, regs.CR2, uint16(peripheralMHz)&regs.CR2_FREQ_MASK)
	b.r.Write16(regs.OAR1, regs.OAR1_ALWAYS_SET)

	if b.cfg.Mode == Interrupt {
		if err := b.pf.AttachIRQ(b.handleEvent, b.handleError); err != nil {
			return nil, fmt.Errorf("i2c: attach irq: %w", err)
		}
	}

	regs.Set(b.r, regs.CR1, regs.CR1_PE)

	buses[port] = b
	b.refcount = 1
	return b, nil
}

// Close releases one reference; the port is torn down once the count
// reaches zero.
func (b *Bus) Close() error {
	busesMu.Lock()
	defer busesMu.Unlock()

	b.refcount--
	if b.refcount > 0 {
		return nil
	}

	regs.Clear(b.r, regs.CR1, regs.CR1_PE)
	if b.cfg.Mode == Interrupt {
		b.pf.DetachIRQ()
	}
	if err := b.pf.DeconfigurePins(); err != nil {
		return err
	}
	if err := b.pf.DisableClock(); err != nil {
		return err
	}

	for i, cur := range buses {
		if cur == b {
			buses[i] = nil
		}
	}
	return nil
}

// handleEvent is attached to the event IRQ vector in interrupt mode. It is
// the entire ISR body: one engine.step() call, per §5's "the ISR does
// nothing but call the engine once."
func (b *Bus) handleEvent() { b.eng.step() }

// handleError is attached to the error IRQ vector; it also just steps the
// engine. step() does not branch on SR1's error bits itself: terminal
// handling captures them in the status snapshot, and process classifies
// them through classifyStatus once the transfer ends, whichever vector
// fired.
func (b *Bus) handleError() { b.eng.step() }

// SetFrequency implements §6 "set target bus frequency": it clamps to
// 100kHz if the peripheral's input clock is below the 4MHz minimum,
// otherwise stores hz for the next process() call (CCR/TRISE are only
// safely reprogrammed with PE low, so the new frequency takes effect at
// the next transfer, not immediately). It returns the value stored.
func (b *Bus) SetFrequency(hz int) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cfg.PeripheralClockHz < 4_000_000 {
		hz = 100_000
	}
	b.freqHz = hz
	return b.freqHz
}

// Recover implements §4.7's reset operation: deinitialize the peripheral,
// take direct GPIO control of SCL/SDA, bit-bang recovery, then
// reinitialize. It is exposed to callers and never invoked automatically
// (§7).
func (b *Bus) Recover() error {
	if !b.cfg.RecoveryEnabled {
		return fmt.Errorf("i2c: bus recovery disabled for this port")
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	b.logf("i2c: bus recovery: starting")
	regs.Clear(b.r, regs.CR1, regs.CR1_PE)
	if err := b.pf.DeconfigurePins(); err != nil {
		return err
	}
	pins := b.pf.Pins()
	rec := platform.Recovery{Pins: pins}
	if err := rec.Reset(); err != nil {
		b.logf("i2c: bus recovery: failed: %v", err)
		return err
	}
	if err := b.pf.ConfigurePins(); err != nil {
		return err
	}
	regs.Set(b.r, regs.CR1, regs.CR1_PE)
	b.logf("i2c: bus recovery: done")
	return nil
}

// Trace returns the recorded trace entries from the most recent transfer,
// or nil if tracing is disabled.
func (b *Bus) Trace() []trace.Entry {
	if b.trace == nil {
		return nil
	}
	entries := b.trace.Dump()
	b.logf("i2c: trace dump: %d entries", len(entries))
	return entries
}

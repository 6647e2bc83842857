package i2cmaster

import (
	"time"

	"i2c_engine/clock"
	"i2c_engine/internal/regs"
	"i2c_engine/trace"
)

// process implements §4.6: install a message chain on a bus, drive it to
// completion through the engine (by interrupt wakeup or by polling,
// according to Config.Mode), and classify any hardware error bits left in
// SR1 once the transfer stops.
func (b *Bus) process(msgs []Msg) *TransferError {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.cfg.FSMCWorkaround {
		b.logf("i2c: FSMC workaround: disabling FSMC clock for transfer")
		if b.cfg.PreTransferHook != nil {
			b.cfg.PreTransferHook()
		}
	} else {
		// Step 2: wait for any in-flight STOP condition from a prior
		// transfer to settle before touching CR1/CR2 again. Skipped here
		// when the FSMC workaround is active: STOP cannot complete while
		// FSMC holds the shared LBAR resource, so this wait is deferred
		// until after FSMC is disabled for this transfer (see below).
		//
		// A timeout here is logged but does not fail the transfer (§7):
		// it most likely means the bus is still BUSY, which classifyStatus
		// will surface once the transfer itself has run its course.
		if !b.r.WaitFor16(2*time.Millisecond, regs.CR1, regs.CR1_STOP, 0) {
			b.logf("i2c: STOP-settle wait timed out before transfer; proceeding")
		}
	}

	// Step 3: clear stale status so the engine's first entry doesn't see
	// a leftover bit from the previous transfer.
	b.r.Read16(regs.SR1)
	b.r.Read16(regs.SR2)
	b.r.Write16(regs.SR1, 0)

	// Step 4: install the transfer.
	b.eng.st.reset(msgs)
	b.eng.mode = b.cfg.Mode
	if b.trace != nil {
		b.trace.Reset()
	}

	totalBytes := 0
	for _, m := range msgs {
		totalBytes += len(m.Buf)
	}

	// Step 5: (re)program the clock. Standing invariant: PE must be low
	// while CCR/TRISE are written (§4.2).
	regs.Clear(b.r, regs.CR1, regs.CR1_PE)
	ccr, trise, duty, fs := clock.Program(b.cfg.PeripheralClockHz, b.freqHz, b.cfg.Duty169)
	ccrVal := ccr
	if duty {
		ccrVal |= regs.CCR_DUTY
	}
	if fs {
		ccrVal |= regs.CCR_FS
	}
	b.r.Write16(regs.CCR, ccrVal)
	b.r.Write16(regs.TRISE, trise)
	regs.Set(b.r, regs.CR1, regs.CR1_PE)

	// Step 6: arm the handshake and the interrupt-enable bits (interrupt
	// mode only; polled mode drives the engine itself below).
	b.done.arm()
	if b.cfg.Mode == Interrupt {
		regs.Set(b.r, regs.CR2, regs.CR2_ITEVTEN|regs.CR2_ITERREN|regs.CR2_ITBUFEN)
	}

	// Step 7: emit the initial START. The first engine entry (triggered
	// either by the SB interrupt or by the poll loop below) latches the
	// first message and addresses it.
	regs.Set(b.r, regs.CR1, regs.CR1_START)

	deadline := b.cfg.Timeout.deadline(totalBytes)

	var waitErr *TransferError
	if b.cfg.Mode == Polled {
		waitErr = b.pollUntilDone(deadline)
	} else {
		waitErr = b.waitForInterruptDone(deadline)
	}

	if b.cfg.FSMCWorkaround {
		// Deferred pre-STOP-settle wait: while FSMC is still disabled,
		// confirm this transfer's own STOP has completed before FSMC is
		// restored and the lock releases for the next caller. Logged, not
		// fatal, for the same reason as the pre-transfer wait above.
		if !b.r.WaitFor16(2*time.Millisecond, regs.CR1, regs.CR1_STOP, 0) {
			b.logf("i2c: deferred STOP-settle wait timed out after transfer")
		}
		if b.cfg.PostTransferHook != nil {
			b.cfg.PostTransferHook()
		}
		b.logf("i2c: FSMC workaround: FSMC clock restored")
	}

	if waitErr != nil {
		return waitErr
	}

	return b.classifyStatus()
}

// pollUntilDone repeatedly invokes the engine itself, since there is no
// interrupt to wake it (§4.6 "polled: loop invoking the engine until
// handshake becomes DONE").
func (b *Bus) pollUntilDone(deadline time.Duration) *TransferError {
	end := time.Now().Add(deadline)
	for {
		b.eng.step()
		if b.done.isDone() {
			return nil
		}
		if time.Now().After(end) {
			regs.Set(b.r, regs.CR1, regs.CR1_STOP)
			return &TransferError{Kind: ErrTimedOut}
		}
	}
}

// waitForInterruptDone blocks on the rendezvous channel the IRQ handler
// (Bus.handleEvent/handleError, wired via platform.AttachIRQ) signals
// through when the engine's terminal handling runs.
func (b *Bus) waitForInterruptDone(deadline time.Duration) *TransferError {
	select {
	case <-b.done.ch:
		return nil
	case <-time.After(deadline):
		regs.Set(b.r, regs.CR1, regs.CR1_STOP)
		regs.Clear(b.r, regs.CR2, regs.CR2_ITEVTEN|regs.CR2_ITBUFEN|regs.CR2_ITERREN)
		return &TransferError{Kind: ErrTimedOut}
	}
}

// classifyStatus implements §7's priority order: the first matching bit in
// the accumulated status wins.
func (b *Bus) classifyStatus() *TransferError {
	sr1 := uint16(b.eng.st.status)
	if b.trace != nil {
		b.trace.Annotate(trace.EventNone, b.eng.st.status)
	}

	switch {
	case sr1&regs.SR1_BERR != 0:
		return &TransferError{Kind: ErrBusError}
	case sr1&regs.SR1_ARLO != 0:
		return &TransferError{Kind: ErrArbitrationLost}
	case sr1&regs.SR1_AF != 0:
		return &TransferError{Kind: ErrNACK}
	case sr1&regs.SR1_OVR != 0:
		return &TransferError{Kind: ErrOverrun}
	case sr1&regs.SR1_PECERR != 0:
		return &TransferError{Kind: ErrProtocol}
	case sr1&regs.SR1_TIMEOUT != 0:
		return &TransferError{Kind: ErrBusTimeout}
	case b.r.Read16(regs.SR2)&regs.SR2_BUSY != 0:
		return &TransferError{Kind: ErrBusy}
	default:
		return nil
	}
}

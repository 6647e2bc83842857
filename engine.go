package i2cmaster

import (
	"sync/atomic"
	"time"

	"i2c_engine/internal/regs"
	"i2c_engine/trace"
)

// handshake states, per §3 "interrupt handshake ∈ {IDLE, WAITING, DONE}".
const (
	handshakeIdle int32 = iota
	handshakeWaiting
	handshakeDone
)

// rendezvous is the single-producer (engine)/single-consumer (dispatcher)
// primitive §9 asks for: "the engine must not signal completion before
// writing DONE, and the waiter must not treat a completion signal as
// authoritative without also seeing DONE." The atomic int32 supplies the
// DONE write; the buffered channel supplies the wakeup; CAS from WAITING
// guards against signaling a completion nobody is waiting for yet (a
// spurious post, per §4.5 "Terminal handling").
type rendezvous struct {
	state int32
	ch    chan struct{}
}

func newRendezvous() *rendezvous {
	return &rendezvous{ch: make(chan struct{}, 1)}
}

func (r *rendezvous) arm() { atomic.StoreInt32(&r.state, handshakeWaiting) }

// markDone is called from the engine at terminal handling. If a waiter had
// armed the rendezvous, it also wakes it; otherwise DONE is left for a
// polled-mode caller to observe directly.
func (r *rendezvous) markDone() {
	if atomic.CompareAndSwapInt32(&r.state, handshakeWaiting, handshakeDone) {
		select {
		case r.ch <- struct{}{}:
		default:
		}
		return
	}
	atomic.StoreInt32(&r.state, handshakeDone)
}

func (r *rendezvous) isDone() bool {
	return atomic.LoadInt32(&r.state) == handshakeDone
}

// engine is the event-driven state machine of §4.5. One engine instance
// backs one Bus; the dispatcher drives it once per event (interrupt or
// poll tick) and never enters it concurrently with itself for the same
// bus (§5 "Scheduling").
type engine struct {
	r    regs.Accessor
	tr   trace.Recorder
	done *rendezvous
	mode Mode

	st transferState
}

// readAction is the §9-recommended table entry for the ≥3-byte (and 2-byte)
// read sub-protocols of branch (f): a small lookup keyed on
// (totalLen, dcnt, btf) is clearer than a cascade of conditionals.
type readAction int

const (
	actWait readAction = iota
	actReadOne
	actClearACKThenReadOne
	actStopThenReadTwo
	actReadOneTerminal // total==1, dcnt==0 case
	actError
)

func planRead(totalLen, dcnt int, btf bool) readAction {
	switch {
	case totalLen == 1 && dcnt == 0:
		return actReadOneTerminal
	case totalLen == 2 && dcnt == 2:
		if btf {
			return actStopThenReadTwo
		}
		return actWait
	case totalLen >= 3 && !btf:
		return actWait
	case totalLen >= 3 && btf && dcnt >= 4:
		return actReadOne
	case totalLen >= 3 && btf && dcnt == 3:
		return actClearACKThenReadOne
	case totalLen >= 3 && btf && dcnt == 2:
		return actStopThenReadTwo
	default:
		return actError
	}
}

// step runs one engine entry: it reads SR1 once (the single sample every
// branch below is selected against, per §4.5 "given current SR1, it
// selects exactly one branch"), applies exactly one branch in priority
// order, then always runs terminal handling.
func (e *engine) step() {
	sr1 := e.r.Read16(regs.SR1)
	e.tr.Sample(uint32(sr1), time.Now())

	// Branch (a): the message-advance prelude. If it fires, the latch
	// happens and the *same* sr1 sample falls through into (b)-(h) below,
	// since the hardware event that triggered this entry still needs
	// handling.
	if e.st.dcnt == -1 && e.st.msgc > 0 {
		e.st.advance()
		e.st.dcnt = e.st.totalMsgLen
	}

	e.dispatch(sr1)
	e.terminal()
}

// dispatch selects and runs exactly one of branches (b) through (h).
func (e *engine) dispatch(sr1 uint16) {
	switch {
	case sr1&regs.SR1_SB != 0:
		e.branchStart()
	case e.mode == Interrupt && sr1&regs.SR1_ADDR == 0 && e.st.checkAddrACK:
		e.branchAddrNack()
	case sr1&regs.SR1_ADDR != 0 && e.st.flags&Read != 0 && e.st.checkAddrACK:
		e.branchReadAddrClear(sr1)
	case e.st.flags&Read == 0 && (sr1&regs.SR1_ADDR != 0 || sr1&regs.SR1_TXE != 0):
		e.branchWrite(sr1)
	case e.st.flags&Read != 0 && sr1&regs.SR1_RXNE != 0:
		e.branchRead(sr1)
	case e.st.done():
		// (g) empty-call termination: nothing left to do but annotate;
		// terminal handling (run right after dispatch returns) picks this
		// up via e.st.done().
		e.tr.Annotate(trace.EventShutdown, 0)
	default:
		e.branchFallback()
	}
}

// branchStart is §4.5(b): the address phase.
func (e *engine) branchStart() {
	if e.st.dcnt == 0 {
		// Edge case: an empty message. Skip address emission entirely and
		// force a re-entry that advances past it.
		e.st.dcnt = -1
		regs.Set(e.r, regs.CR2, regs.CR2_ITBUFEN)
		return
	}

	m := e.st.current()
	switch {
	case e.st.totalMsgLen == 1 && e.st.flags&Read != 0:
		regs.Clear(e.r, regs.CR1, regs.CR1_POS|regs.CR1_ACK)
	case e.st.totalMsgLen == 2 && e.st.flags&Read != 0:
		regs.Set(e.r, regs.CR1, regs.CR1_POS|regs.CR1_ACK)
	default:
		regs.Clear(e.r, regs.CR1, regs.CR1_POS)
		regs.Set(e.r, regs.CR1, regs.CR1_ACK)
	}
	e.tr.Annotate(trace.EventAckPolicySet, 0)

	addrByte := uint16(m.Addr<<1) | uint16(e.st.flags&Read)
	if e.st.flags&TenBit != 0 {
		// TODO: true 10-bit addressing needs a header byte
		// (0b11110xx<<1)|R/W followed by the low 8 address bits; this
		// driver writes the placeholder 0 the source does, per §9's open
		// question on 10-bit addressing.
		addrByte = 0
	}
	e.r.Write16(regs.DR, addrByte)
	e.st.checkAddrACK = true
	e.tr.Annotate(trace.EventAddrSent, uint32(addrByte))
}

// branchAddrNack is §4.5(c): interrupt-mode-only address NACK detection.
func (e *engine) branchAddrNack() {
	e.st.checkAddrACK = false
	e.st.dcnt = -1
	e.st.msgc = 0
	regs.Set(e.r, regs.CR1, regs.CR1_STOP)
	e.tr.Annotate(trace.EventAddrNacked, 0)
}

// branchReadAddrClear is §4.5(d). Order is load-bearing: the ACK/POS policy
// must already be in the register (set in branchStart) before ADDR is
// cleared, and for the 2-byte case ACK must be cleared *before* the SR2
// read that clears ADDR, not after.
func (e *engine) branchReadAddrClear(sr1 uint16) {
	switch {
	case e.st.dcnt == 1 && e.st.totalMsgLen == 1:
		regs.Set(e.r, regs.CR2, regs.CR2_ITBUFEN)
		e.r.Read16(regs.SR2)
		regs.Set(e.r, regs.CR1, regs.CR1_STOP)
		e.st.dcnt--
	case e.st.dcnt == 2 && e.st.totalMsgLen == 2:
		regs.Clear(e.r, regs.CR1, regs.CR1_ACK)
		e.r.Read16(regs.SR2)
	default:
		e.r.Read16(regs.SR2)
	}
	e.st.checkAddrACK = false
	e.tr.Annotate(trace.EventAddrCleared, uint32(sr1))
}

// branchWrite is §4.5(e).
func (e *engine) branchWrite(sr1 uint16) {
	if sr1&regs.SR1_ADDR != 0 {
		e.r.Read16(regs.SR2)
		e.st.checkAddrACK = false
	}

	if e.st.dcnt >= 1 {
		m := e.st.current()
		e.r.Write16(regs.DR, uint16(m.Buf[e.st.ptr]))
		e.st.ptr++
		e.st.dcnt--
		e.tr.Annotate(trace.EventTxByte, uint32(m.Buf[e.st.ptr-1]))
		return
	}

	// dcnt == 0: the current message just completed.
	switch {
	case e.st.msgc == 0:
		regs.Set(e.r, regs.CR1, regs.CR1_STOP)
		e.st.dcnt = -1
		e.tr.Annotate(trace.EventStop, 0)
	case len(e.st.msgv) > 1 && e.st.msgv[1].Flags&NoRestart == 0:
		regs.Set(e.r, regs.CR1, regs.CR1_START)
		e.st.dcnt = -1
		e.st.popMessage()
		e.tr.Annotate(trace.EventRepeatedStart, 0)
	case len(e.st.msgv) > 1 && e.st.msgv[1].Flags&NoRestart != 0:
		e.st.dcnt = -1
		e.st.popMessage()
	default:
		e.tr.Annotate(trace.EventWriteFlagError, 0)
		e.st.dcnt = -1
		e.st.msgc = 0
	}
}

// branchRead is §4.5(f), dispatched through the readAction table §9 asks
// for.
func (e *engine) branchRead(sr1 uint16) {
	m := e.st.current()
	btf := sr1&regs.SR1_BTF != 0

	switch planRead(e.st.totalMsgLen, e.st.dcnt, btf) {
	case actWait:
		e.tr.Annotate(trace.EventWaitBTF, 0)
	case actReadOneTerminal:
		m.Buf[e.st.ptr] = uint8(e.r.Read16(regs.DR))
		e.st.ptr++
		e.st.dcnt = -1
	case actReadOne:
		m.Buf[e.st.ptr] = uint8(e.r.Read16(regs.DR))
		e.st.ptr++
		e.st.dcnt--
		e.tr.Annotate(trace.EventRxByte, uint32(m.Buf[e.st.ptr-1]))
	case actClearACKThenReadOne:
		regs.Clear(e.r, regs.CR1, regs.CR1_ACK)
		m.Buf[e.st.ptr] = uint8(e.r.Read16(regs.DR))
		e.st.ptr++
		e.st.dcnt--
		e.tr.Annotate(trace.EventRxByte, uint32(m.Buf[e.st.ptr-1]))
	case actStopThenReadTwo:
		regs.Set(e.r, regs.CR1, regs.CR1_STOP)
		m.Buf[e.st.ptr] = uint8(e.r.Read16(regs.DR))
		e.st.ptr++
		m.Buf[e.st.ptr] = uint8(e.r.Read16(regs.DR))
		e.st.ptr++
		e.st.dcnt = -1
		e.tr.Annotate(trace.EventStop, 0)
	default:
		e.tr.Annotate(trace.EventReadError, 0)
		e.st.dcnt = -1
		e.st.msgc = 0
	}

	sr2 := e.r.Read16(regs.SR2)
	e.st.status |= uint32(sr1) | uint32(sr2)<<16
}

// branchFallback is §4.5(h).
func (e *engine) branchFallback() {
	if e.mode == Polled {
		e.tr.Annotate(trace.EventDeviceNotReady, 0)
		return
	}
	e.tr.Annotate(trace.EventStateError, 0)
	e.st.dcnt = -1
	e.st.msgc = 0
}

// terminal runs after every branch, per §4.5 "Terminal handling (runs each
// entry after branch selection)".
func (e *engine) terminal() {
	if !e.st.done() {
		return
	}
	e.st.clearMsgv()
	sr1 := e.r.Read16(regs.SR1)
	sr2 := e.r.Read16(regs.SR2)
	e.st.status |= uint32(sr1) | uint32(sr2)<<16

	if e.mode == Polled {
		e.done.markDone()
		return
	}
	regs.Clear(e.r, regs.CR2, regs.CR2_ITEVTEN|regs.CR2_ITBUFEN|regs.CR2_ITERREN)
	e.done.markDone()
}

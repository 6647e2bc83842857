package i2cmaster

// transferState is the per-bus in-memory record described in §3 "transfer
// state". dcnt == -1 is the sentinel §4.4/§9 describe: "between messages,
// the next engine entry shall advance to the next message." It is kept as
// the literal field the engine branches on (§4.5 priority (a) tests it
// directly) rather than replaced by an enum, because the hardware-facing
// branches are written against that exact contract; phase() below is a
// read-only projection for diagnostics and tests, not the engine's actual
// control variable.
type transferState struct {
	msgc int   // messages remaining, including current
	msgv []Msg // remaining message queue; msgv[0] is "current"

	ptr  int // byte cursor into msgv[0].Buf
	dcnt int // remaining count in the current message; -1 is the sentinel

	totalMsgLen int   // length of the currently-active message
	flags       Flags // flags of the currently-active message

	checkAddrACK bool // true between address emission and ADDR/NACK observation

	status uint32 // SR1 | SR2<<16, captured at terminal events
}

// Phase is the §9-recommended typed view of transferState: Idle when dcnt
// holds the sentinel and no message remains (an empty chain or a finished
// transfer), PendingNextMessage when the sentinel says "advance" and
// messages remain, InFlight whenever dcnt is not the sentinel.
type Phase int

const (
	PhaseIdle Phase = iota
	PhasePendingNextMessage
	PhaseInFlight
)

func (s *transferState) phase() Phase {
	if s.dcnt == -1 {
		if s.msgc > 0 {
			return PhasePendingNextMessage
		}
		return PhaseIdle
	}
	return PhaseInFlight
}

// reset installs a new message chain, ready for the engine's message-advance
// prelude (§4.5 branch (a)) to latch the first message.
func (s *transferState) reset(msgs []Msg) {
	s.msgc = len(msgs)
	s.msgv = msgs
	s.ptr = 0
	s.dcnt = -1
	s.totalMsgLen = 0
	s.flags = 0
	s.checkAddrACK = false
	s.status = 0
}

// done reports whether the transfer has reached the terminal state:
// dcnt == -1 && msgc == 0 (msgv is cleared separately by the caller once
// this is true, per §4.5 "Terminal handling").
func (s *transferState) done() bool {
	return s.dcnt == -1 && s.msgc == 0
}

// current returns the message presently being processed. Only valid when
// phase() == PhaseInFlight or during the same-entry fallthrough after the
// message-advance prelude has latched one.
func (s *transferState) current() *Msg {
	if len(s.msgv) == 0 {
		return nil
	}
	return &s.msgv[0]
}

// advance latches msgv[0] as the active message: records its length/flags,
// resets the byte cursor, and decrements msgc. Per §4.4, the queue is only
// popped (msgv advanced past this entry) once this message is fully
// consumed elsewhere; advance itself just makes msgv[0] current.
func (s *transferState) advance() {
	m := s.current()
	s.ptr = 0
	s.totalMsgLen = len(m.Buf)
	s.flags = m.Flags
	s.msgc--
}

// popMessage drops the just-finished message from the front of the queue,
// unless it is the last one — §4.4: "msgv advances to next when current is
// consumed (except on the last, where it is left in place until cleared at
// DONE)".
func (s *transferState) popMessage() {
	if s.msgc > 0 {
		s.msgv = s.msgv[1:]
	}
}

// clearMsgv clears the queue once the transfer has reached its terminal
// state (§4.5 "Terminal handling... clear msgv").
func (s *transferState) clearMsgv() {
	s.msgv = nil
}

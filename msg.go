package i2cmaster

// Flags is a bitset over a message's addressing/continuation behavior, per
// §6's message record.
type Flags uint8

const (
	// Read marks the message as a read (otherwise it's a write).
	Read Flags = 1 << iota
	// TenBit marks the address as 10-bit. Emitting a true 10-bit header is
	// an open question (§9) this driver does not resolve; see engine.go's
	// address-emission TODO.
	TenBit
	// NoRestart, set on a message, suppresses the repeated START that
	// would otherwise precede it: the engine continues the byte stream
	// directly out of the prior message (§4.5 branch (e)). It has no
	// effect on the very first message of a chain, which always gets the
	// initial START.
	NoRestart
)

// Msg is one entry in a transfer chain, matching §6's message record
// exactly: an address, a flag set, and a buffer. Length is len(Buf); there
// is no separate length field because Go slices already carry it, unlike
// the C source's {buffer pointer, length} pair.
type Msg struct {
	Addr  uint16
	Flags Flags
	Buf   []byte
}

package trace

import (
	"testing"
	"time"
)

func TestRingCollapsesRepeats(t *testing.T) {
	r := New(4)
	now := time.Now()
	r.Sample(0x01, now)
	r.Sample(0x01, now)
	r.Sample(0x01, now)
	r.Sample(0x02, now)

	entries := r.Dump()
	if len(entries) != 2 {
		t.Fatalf("len(entries) = %d, want 2", len(entries))
	}
	if entries[0].Count != 3 {
		t.Errorf("entries[0].Count = %d, want 3", entries[0].Count)
	}
	if entries[1].Count != 1 {
		t.Errorf("entries[1].Count = %d, want 1", entries[1].Count)
	}
}

func TestRingAnnotateAttachesToCurrentEntry(t *testing.T) {
	r := New(4)
	r.Sample(0x01, time.Now())
	r.Annotate(EventAddrSent, 0xAB)

	entries := r.Dump()
	if entries[len(entries)-1].Event != EventAddrSent {
		t.Errorf("last entry event = %v, want EventAddrSent", entries[len(entries)-1].Event)
	}
	if entries[len(entries)-1].Param != 0xAB {
		t.Errorf("last entry param = %#x, want 0xab", entries[len(entries)-1].Param)
	}
}

func TestRingOverflowDiagnostic(t *testing.T) {
	r := New(2)
	for i := 0; i < 5; i++ {
		r.Sample(uint32(i), time.Now()) // distinct statuses, forces growth past capacity
	}
	entries := r.Dump()
	if entries[len(entries)-1].Event != EventStateError {
		t.Errorf("want overflow diagnostic as last entry, got %v", entries[len(entries)-1].Event)
	}
}

func TestRingReset(t *testing.T) {
	r := New(4)
	r.Sample(0x01, time.Now())
	r.Reset()
	if len(r.Dump()) != 0 {
		t.Error("Dump() after Reset() should be empty")
	}
}

func TestNopIsInert(t *testing.T) {
	var n Nop
	n.Sample(0x01, time.Now())
	n.Annotate(EventAddrSent, 1)
	if d := n.Dump(); d != nil {
		t.Errorf("Nop.Dump() = %v, want nil", d)
	}
	n.Reset()
}

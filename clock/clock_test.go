package clock

import "testing"

func TestProgramStandardMode(t *testing.T) {
	ccr, trise, duty, fs := Program(8_000_000, 100_000, false)
	if ccr != 40 {
		t.Errorf("ccr = %d, want 40", ccr)
	}
	if trise != 9 {
		t.Errorf("trise = %d, want 9", trise)
	}
	if duty || fs {
		t.Errorf("standard mode must not set duty/fs, got duty=%v fs=%v", duty, fs)
	}
}

func TestProgramFastMode169Duty(t *testing.T) {
	ccr, trise, duty, fs := Program(36_000_000, 400_000, true)
	if ccr != 3 {
		t.Errorf("ccr = %d, want 3", ccr)
	}
	if trise != 11 {
		t.Errorf("trise = %d, want 11", trise)
	}
	if !duty {
		t.Error("duty169 requested, want duty=true")
	}
	if !fs {
		t.Error("400kHz is fast mode, want fs=true")
	}
}

func TestProgramCCRFloor(t *testing.T) {
	// A target frequency high enough that the raw divider would compute to
	// zero must still clamp to the documented floor.
	ccr, _, _, fs := Program(1_000_000, 400_000, false)
	if !fs {
		t.Fatal("want fast mode")
	}
	if ccr < 1 {
		t.Errorf("ccr = %d, want >= 1 floor", ccr)
	}
}

func TestFrequencyRoundTrip(t *testing.T) {
	if got := Hz(Frequency(100_000)); got != 100_000 {
		t.Errorf("Hz(Frequency(100000)) = %d, want 100000", got)
	}
}

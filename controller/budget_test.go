package controller

import "testing"

func TestClassifyUrgency(t *testing.T) {
	tests := []struct {
		remaining int
		want      UrgencyTier
	}{
		{10, UrgencyLow},
		{8, UrgencyLow},
		{7, UrgencyLow},
		{6, UrgencyMedium},
		{4, UrgencyMedium},
		{3, UrgencyMedium},
		{2, UrgencyHigh},
		{1, UrgencyHigh},
		{0, UrgencyHigh},
		{-1, UrgencyHigh},
		{-5, UrgencyHigh},
	}
	for _, tt := range tests {
		if got := ClassifyUrgency(tt.remaining); got != tt.want {
			t.Errorf("ClassifyUrgency(%d) = %s, want %s", tt.remaining, got, tt.want)
		}
	}
}

func TestUrgencyGuidance(t *testing.T) {
	tests := map[UrgencyTier]string{
		UrgencyLow:    "Explore comprehensively",
		UrgencyMedium: "Balance thoroughness with efficiency",
		UrgencyHigh:   "Complete core objectives immediately",
	}
	for tier, want := range tests {
		if got := tier.Guidance(); got != want {
			t.Errorf("%s guidance = %q, want %q", tier, got, want)
		}
	}
}

func TestStepBudgetAdvance(t *testing.T) {
	b := NewStepBudget(10)
	if b.Current() != 0 {
		t.Errorf("expected current 0, got %d", b.Current())
	}
	if b.Remaining() != 10 {
		t.Errorf("expected remaining 10, got %d", b.Remaining())
	}

	if got := b.Advance(); got != 1 {
		t.Errorf("expected step 1, got %d", got)
	}
	if b.Remaining() != 9 {
		t.Errorf("expected remaining 9, got %d", b.Remaining())
	}
	// A fresh 10-step session starts in LOW urgency.
	if ClassifyUrgency(b.Remaining()) != UrgencyLow {
		t.Error("expected LOW urgency at step 1 of 10")
	}
}

func TestStepBudgetUrgencyProgression(t *testing.T) {
	b := NewStepBudget(10)
	for i := 0; i < 8; i++ {
		b.Advance()
	}
	// 8 of 10 used leaves 2 remaining.
	if b.Remaining() != 2 {
		t.Fatalf("expected remaining 2, got %d", b.Remaining())
	}
	if ClassifyUrgency(b.Remaining()) != UrgencyHigh {
		t.Error("expected HIGH urgency with 2 steps remaining")
	}
}

func TestStepBudgetOverrun(t *testing.T) {
	b := NewStepBudget(3)
	for i := 0; i < 5; i++ {
		b.Advance()
	}
	if b.Current() != 5 {
		t.Errorf("expected current 5, got %d", b.Current())
	}
	if b.Remaining() != -2 {
		t.Errorf("expected remaining -2, got %d", b.Remaining())
	}
	if ClassifyUrgency(b.Remaining()) != UrgencyHigh {
		t.Error("overrun must classify HIGH")
	}
}

func TestStepBudgetReset(t *testing.T) {
	b := NewStepBudget(10)
	b.Advance()
	b.Advance()
	b.Reset()
	if b.Current() != 0 {
		t.Errorf("expected current 0 after reset, got %d", b.Current())
	}
	if b.Max() != 10 {
		t.Errorf("expected max unchanged, got %d", b.Max())
	}
}

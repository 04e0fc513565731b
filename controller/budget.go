package controller

// UrgencyTier is the coarse classification of remaining step budget used to
// bias the strategy guidance in the rendered context.
type UrgencyTier string

const (
	UrgencyLow    UrgencyTier = "LOW"
	UrgencyMedium UrgencyTier = "MEDIUM"
	UrgencyHigh   UrgencyTier = "HIGH"
)

// ClassifyUrgency maps remaining step budget to an urgency tier. It is total
// over all integers: negative remaining (budget overrun) classifies HIGH.
func ClassifyUrgency(remaining int) UrgencyTier {
	switch {
	case remaining < 3:
		return UrgencyHigh
	case remaining < 7:
		return UrgencyMedium
	default:
		return UrgencyLow
	}
}

// Guidance returns the one-line strategy bias for a tier, included verbatim
// in the rendered context.
func (t UrgencyTier) Guidance() string {
	switch t {
	case UrgencyHigh:
		return "Complete core objectives immediately"
	case UrgencyMedium:
		return "Balance thoroughness with efficiency"
	default:
		return "Explore comprehensively"
	}
}

// StepBudget tracks progress against the session's step budget. It is not
// safe for concurrent use; the session serializes turns.
type StepBudget struct {
	current int
	max     int
}

// NewStepBudget creates a budget with the given maximum. Current starts at 0.
func NewStepBudget(maxSteps int) *StepBudget {
	return &StepBudget{max: maxSteps}
}

// Advance increments the current step by one and returns the new value.
// Callers must advance exactly once per logical turn or step accounting
// diverges from the urgency classifier.
func (b *StepBudget) Advance() int {
	b.current++
	return b.current
}

// Remaining returns max - current. It goes negative on overrun; overrun is
// advisory and signals urgency escalation, never an error.
func (b *StepBudget) Remaining() int {
	return b.max - b.current
}

// Current returns the current step count.
func (b *StepBudget) Current() int { return b.current }

// Max returns the step budget ceiling.
func (b *StepBudget) Max() int { return b.max }

// Reset restores the current step to 0, keeping the maximum unchanged.
func (b *StepBudget) Reset() {
	b.current = 0
}

package assignment

// Flag severities.
const (
	SeverityLow      = "low"
	SeverityHigh     = "high"
	SeverityCritical = "critical"
)

// CancellationOutcome is the policy verdict for one attempted cancellation.
type CancellationOutcome struct {
	Severity           string
	PolicyWindow       string
	Flagged            bool
	CountsTowardLimit  bool
	BlocksCancellation bool
}

// EvaluateCancellation applies the tiered cancellation policy given the hours
// remaining until the appointment starts. Boundaries fall into the stricter
// earlier tier: exactly 24h is the 12-24h tier, exactly 6h is the 6-12h tier.
// Under 6 hours self-service cancellation is blocked outright and the caller
// must contact the doctor directly.
//
// The evaluator is pure; persisting the flag and rejecting blocked
// cancellations is the state machine's job.
func EvaluateCancellation(hoursUntilAppointment float64) CancellationOutcome {
	switch {
	case hoursUntilAppointment > 24:
		return CancellationOutcome{}
	case hoursUntilAppointment >= 12:
		return CancellationOutcome{
			Severity:     SeverityLow,
			PolicyWindow: "12-24h",
			Flagged:      true,
		}
	case hoursUntilAppointment >= 6:
		return CancellationOutcome{
			Severity:          SeverityHigh,
			PolicyWindow:      "6-12h",
			Flagged:           true,
			CountsTowardLimit: true,
		}
	default:
		return CancellationOutcome{
			Severity:           SeverityCritical,
			PolicyWindow:       "<6h",
			BlocksCancellation: true,
		}
	}
}

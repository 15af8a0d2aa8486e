package assignment

import "testing"

func TestEvaluateCancellationTiers(t *testing.T) {
	cases := []struct {
		name    string
		hours   float64
		want    CancellationOutcome
	}{
		{
			name:  "well ahead of appointment",
			hours: 30,
			want:  CancellationOutcome{},
		},
		{
			name:  "18 hours out",
			hours: 18,
			want:  CancellationOutcome{Severity: SeverityLow, PolicyWindow: "12-24h", Flagged: true},
		},
		{
			name:  "8 hours out",
			hours: 8,
			want:  CancellationOutcome{Severity: SeverityHigh, PolicyWindow: "6-12h", Flagged: true, CountsTowardLimit: true},
		},
		{
			name:  "3 hours out",
			hours: 3,
			want:  CancellationOutcome{Severity: SeverityCritical, PolicyWindow: "<6h", BlocksCancellation: true},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := EvaluateCancellation(tc.hours)
			if got != tc.want {
				t.Errorf("EvaluateCancellation(%v) = %+v, want %+v", tc.hours, got, tc.want)
			}
		})
	}
}

func TestEvaluateCancellationBoundaries(t *testing.T) {
	// Exact boundaries fall into the stricter earlier tier.
	if got := EvaluateCancellation(24); got.PolicyWindow != "12-24h" {
		t.Errorf("at exactly 24h got window %q, want 12-24h", got.PolicyWindow)
	}
	if got := EvaluateCancellation(12); got.PolicyWindow != "12-24h" {
		t.Errorf("at exactly 12h got window %q, want 12-24h", got.PolicyWindow)
	}
	if got := EvaluateCancellation(6); got.PolicyWindow != "6-12h" {
		t.Errorf("at exactly 6h got window %q, want 6-12h", got.PolicyWindow)
	}
	if got := EvaluateCancellation(5.99); !got.BlocksCancellation {
		t.Error("just under 6h should block cancellation")
	}
	if got := EvaluateCancellation(-2); !got.BlocksCancellation {
		t.Error("past appointment start should block cancellation")
	}
}

package stall_test

import (
	"testing"
	"time"

	"github.com/nxtwrld/medscribe/internal/capture/stall"
)

func TestDetector_DurationCap(t *testing.T) {
	t.Parallel()

	d := stall.New(stall.Config{MaxActiveDuration: 30 * time.Second})

	if got := d.Check(29 * time.Second); got != stall.ReasonNone {
		t.Errorf("Check(29s) = %v, want none", got)
	}
	if got := d.Check(31 * time.Second); got != stall.ReasonDuration {
		t.Errorf("Check(31s) = %v, want duration", got)
	}
}

func TestDetector_EnergyPattern(t *testing.T) {
	t.Parallel()

	d := stall.New(stall.Config{})
	for _i := 0; _i < 10; _i++ {
		d.Observe(0.0001) // well below the 0.001 energy floor
	}

	if got := d.Check(10 * time.Second); got != stall.ReasonEnergyPattern {
		t.Errorf("Check after quiet window = %v, want energy_pattern", got)
	}
}

func TestDetector_VariancePattern(t *testing.T) {
	t.Parallel()

	d := stall.New(stall.Config{})
	// Sustained, non-trivial, perfectly flat signal — e.g., line hum.
	for _i := 0; _i < 10; _i++ {
		d.Observe(0.01)
	}

	if got := d.Check(10 * time.Second); got != stall.ReasonVariancePattern {
		t.Errorf("Check after flat window = %v, want variance_pattern", got)
	}
}

func TestDetector_HealthySpeechNotFlagged(t *testing.T) {
	t.Parallel()

	d := stall.New(stall.Config{})
	// Varying, energetic samples typical of real speech.
	levels := []float64{0.02, 0.08, 0.01, 0.12, 0.05, 0.09, 0.03, 0.15, 0.06, 0.11}
	for _, e := range levels {
		d.Observe(e)
	}

	if got := d.Check(10 * time.Second); got != stall.ReasonNone {
		t.Errorf("Check on healthy speech = %v, want none", got)
	}
}

func TestDetector_GracePeriodSuppressesPatterns(t *testing.T) {
	t.Parallel()

	d := stall.New(stall.Config{GracePeriod: 5 * time.Second})
	for _i := 0; _i < 10; _i++ {
		d.Observe(0.0001)
	}

	if got := d.Check(3 * time.Second); got != stall.ReasonNone {
		t.Errorf("Check inside grace period = %v, want none", got)
	}
}

func TestDetector_PartialWindowNeverFiresPatterns(t *testing.T) {
	t.Parallel()

	d := stall.New(stall.Config{})
	for _i := 0; _i < 5; _i++ { // fewer than the 10-sample window
		d.Observe(0.0001)
	}

	if got := d.Check(10 * time.Second); got != stall.ReasonNone {
		t.Errorf("Check with partial window = %v, want none", got)
	}
}

func TestDetector_RetuneKeepsHistory(t *testing.T) {
	t.Parallel()

	d := stall.New(stall.Config{})
	// Varying, energetic samples: healthy under the defaults.
	for i := 0; i < 10; i++ {
		if i%2 == 0 {
			d.Observe(0.03)
		} else {
			d.Observe(0.001)
		}
	}
	if got := d.Check(10 * time.Second); got != stall.ReasonNone {
		t.Fatalf("Check before retune = %v, want none", got)
	}

	// Raising the energy floor above the window mean must fire on the very
	// next check: the retained window is evaluated, not a fresh empty one.
	d.Retune(stall.Config{EnergyFloor: 0.05, HistoryCapacity: 20})
	if got := d.Check(10 * time.Second); got != stall.ReasonEnergyPattern {
		t.Errorf("Check after retune = %v, want energy_pattern", got)
	}
}

func TestDetector_ResetClearsHistory(t *testing.T) {
	t.Parallel()

	d := stall.New(stall.Config{})
	for _i := 0; _i < 10; _i++ {
		d.Observe(0.0001)
	}
	d.Reset()

	if got := d.Check(10 * time.Second); got != stall.ReasonNone {
		t.Errorf("Check after Reset = %v, want none", got)
	}
}

func TestReason_String(t *testing.T) {
	t.Parallel()

	tests := []struct {
		reason stall.Reason
		want   string
	}{
		{stall.ReasonNone, "none"},
		{stall.ReasonDuration, "duration"},
		{stall.ReasonEnergyPattern, "energy_pattern"},
		{stall.ReasonVariancePattern, "variance_pattern"},
		{stall.Reason(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.reason.String(); got != tt.want {
			t.Errorf("Reason(%d).String() = %q, want %q", tt.reason, got, tt.want)
		}
	}
}

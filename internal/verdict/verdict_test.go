package verdict

import (
	"errors"
	"math"
	"testing"
)

func TestDecide(t *testing.T) {
	tests := []struct {
		name      string
		p         Probabilities
		wantLabel Label
		wantProb  float64
		wantText  string
	}{
		{"malicious", Probabilities{0.1, 0.9}, Malicious, 0.9, "Malicious (90.0% confidence)"},
		{"safe", Probabilities{0.7, 0.3}, Safe, 0.7, "Safe (70.0% confidence)"},
		{"suspicious", Probabilities{0.45, 0.55}, Suspicious, 0.55, "Suspicious (55.0% risk)"},
		{"upper boundary is suspicious", Probabilities{0.25, 0.75}, Suspicious, 0.75, "Suspicious (75.0% risk)"},
		{"lower boundary is safe", Probabilities{0.6, 0.4}, Safe, 0.6, "Safe (60.0% confidence)"},
		{"certain safe", Probabilities{1, 0}, Safe, 1, "Safe (100.0% confidence)"},
		{"certain malicious", Probabilities{0, 1}, Malicious, 1, "Malicious (100.0% confidence)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := Decide(tt.p)
			if err != nil {
				t.Fatalf("Decide(%+v) failed: %v", tt.p, err)
			}

			if v.Label != tt.wantLabel || v.Probability != tt.wantProb {
				t.Errorf("Decide(%+v) = %+v, want %s %v", tt.p, v, tt.wantLabel, tt.wantProb)
			}

			if v.String() != tt.wantText {
				t.Errorf("String() = %q, want %q", v.String(), tt.wantText)
			}
		})
	}
}

func TestDecide_InvalidProbabilities(t *testing.T) {
	tests := []struct {
		name string
		p    Probabilities
	}{
		{"nan", Probabilities{math.NaN(), 0.5}},
		{"negative", Probabilities{-0.1, 1.1}},
		{"above one", Probabilities{0, 1.5}},
		{"does not sum to one", Probabilities{0.3, 0.3}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Decide(tt.p); !errors.Is(err, ErrInvalidProbabilities) {
				t.Errorf("err = %v, want ErrInvalidProbabilities", err)
			}
		})
	}
}

func TestDecide_ToleratesRounding(t *testing.T) {
	if _, err := Decide(Probabilities{0.1 + 0.2, 0.7}); err != nil {
		t.Errorf("rounding error rejected: %v", err)
	}
}

// Package verdict maps classifier probabilities to a user-facing label.
package verdict

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidProbabilities indicates a probability pair that is not a distribution.
var ErrInvalidProbabilities = errors.New("invalid probabilities")

// Decision thresholds on the malicious-class probability.
const (
	MaliciousThreshold  = 0.75
	SuspiciousThreshold = 0.4

	sumTolerance = 1e-6
)

// Label is the verdict category.
type Label string

// Verdict labels.
const (
	Safe       Label = "Safe"
	Suspicious Label = "Suspicious"
	Malicious  Label = "Malicious"
)

// Probabilities is the classifier output over (safe, malicious).
type Probabilities struct {
	Safe      float64 `json:"safe"`
	Malicious float64 `json:"malicious"`
}

// Validate checks that p is a probability distribution.
func (p Probabilities) Validate() error {
	for _, v := range []float64{p.Safe, p.Malicious} {
		if math.IsNaN(v) || v < 0 || v > 1 {
			return fmt.Errorf("%w: (%v, %v)", ErrInvalidProbabilities, p.Safe, p.Malicious)
		}
	}

	if math.Abs(p.Safe+p.Malicious-1) > sumTolerance {
		return fmt.Errorf("%w: (%v, %v) does not sum to 1", ErrInvalidProbabilities, p.Safe, p.Malicious)
	}

	return nil
}

// Verdict is a label with the probability that justifies it.
type Verdict struct {
	Label       Label   `json:"label"`
	Probability float64 `json:"probability"`
}

// Decide applies the thresholds. Malicious and Suspicious carry the malicious probability;
// Safe carries the safe probability.
func Decide(p Probabilities) (Verdict, error) {
	if err := p.Validate(); err != nil {
		return Verdict{}, err
	}

	switch {
	case p.Malicious > MaliciousThreshold:
		return Verdict{Label: Malicious, Probability: p.Malicious}, nil
	case p.Malicious > SuspiciousThreshold:
		return Verdict{Label: Suspicious, Probability: p.Malicious}, nil
	default:
		return Verdict{Label: Safe, Probability: p.Safe}, nil
	}
}

// String renders the verdict as shown to users, e.g. "Suspicious (55.0% risk)".
func (v Verdict) String() string {
	qualifier := "confidence"
	if v.Label == Suspicious {
		qualifier = "risk"
	}

	return fmt.Sprintf("%s (%.1f%% %s)", v.Label, v.Probability*100, qualifier)
}

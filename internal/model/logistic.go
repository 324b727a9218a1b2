package model

import (
	"fmt"
	"math"

	"urlsentry/internal/verdict"
)

type logistic struct {
	weights []float64
	bias    float64
}

func newLogistic(weights []float64, bias float64, numFeatures int) (*logistic, error) {
	if len(weights) != numFeatures {
		return nil, fmt.Errorf("logistic model has %d weights, schema has %d features", len(weights), numFeatures)
	}

	for i, w := range weights {
		if math.IsNaN(w) || math.IsInf(w, 0) {
			return nil, fmt.Errorf("weight %d is not finite", i)
		}
	}

	return &logistic{weights: weights, bias: bias}, nil
}

// PredictProba returns sigmoid(w·x + b) as the malicious probability.
func (l *logistic) PredictProba(x []float64) (verdict.Probabilities, error) {
	z := l.bias
	for i, w := range l.weights {
		z += w * x[i]
	}

	malicious := 1 / (1 + math.Exp(-z))

	return verdict.Probabilities{Safe: 1 - malicious, Malicious: malicious}, nil
}

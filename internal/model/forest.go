package model

import (
	"errors"
	"fmt"

	"urlsentry/internal/verdict"
)

const leaf = -1

// Tree is a fitted binary decision tree in parallel-array layout. Node i splits on
// Feature[i] at Threshold[i]; samples with x <= threshold go to ChildrenLeft[i].
// Leaves have both children set to -1 and Value[i] holds their per-class weights
// (safe, malicious).
type Tree struct {
	ChildrenLeft  []int       `json:"children_left"`
	ChildrenRight []int       `json:"children_right"`
	Feature       []int       `json:"feature"`
	Threshold     []float64   `json:"threshold"`
	Value         [][]float64 `json:"value"`
}

type forest struct {
	trees []Tree
}

func newForest(trees []Tree, numFeatures int) (*forest, error) {
	if len(trees) == 0 {
		return nil, errors.New("random forest has no trees")
	}

	for i := range trees {
		if err := trees[i].validate(numFeatures); err != nil {
			return nil, fmt.Errorf("tree %d: %w", i, err)
		}
	}

	return &forest{trees: trees}, nil
}

func (t *Tree) validate(numFeatures int) error {
	n := len(t.ChildrenLeft)
	if n == 0 {
		return errors.New("no nodes")
	}

	if len(t.ChildrenRight) != n || len(t.Feature) != n || len(t.Threshold) != n || len(t.Value) != n {
		return errors.New("node arrays differ in length")
	}

	for i := 0; i < n; i++ {
		left, right := t.ChildrenLeft[i], t.ChildrenRight[i]

		if left == leaf || right == leaf {
			if left != right {
				return fmt.Errorf("node %d has a single child", i)
			}

			if len(t.Value[i]) != 2 {
				return fmt.Errorf("leaf %d has %d class weights, want 2", i, len(t.Value[i]))
			}

			if t.Value[i][0] < 0 || t.Value[i][1] < 0 || t.Value[i][0]+t.Value[i][1] <= 0 {
				return fmt.Errorf("leaf %d has invalid class weights %v", i, t.Value[i])
			}

			continue
		}

		// children always follow their parent, which also rules out cycles
		if left <= i || left >= n || right <= i || right >= n {
			return fmt.Errorf("node %d has out of range children (%d, %d)", i, left, right)
		}

		if t.Feature[i] < 0 || t.Feature[i] >= numFeatures {
			return fmt.Errorf("node %d splits on feature %d, model has %d", i, t.Feature[i], numFeatures)
		}
	}

	return nil
}

// leafDistribution walks x down the tree and returns the normalized class weights of the
// leaf it reaches.
func (t *Tree) leafDistribution(x []float64) (safe, malicious float64) {
	node := 0
	for t.ChildrenLeft[node] != leaf {
		if x[t.Feature[node]] <= t.Threshold[node] {
			node = t.ChildrenLeft[node]
		} else {
			node = t.ChildrenRight[node]
		}
	}

	v := t.Value[node]
	total := v[0] + v[1]

	return v[0] / total, v[1] / total
}

// PredictProba averages the leaf distributions of all trees.
func (f *forest) PredictProba(x []float64) (verdict.Probabilities, error) {
	var safe, malicious float64

	for i := range f.trees {
		s, m := f.trees[i].leafDistribution(x)
		safe += s
		malicious += m
	}

	n := float64(len(f.trees))

	return verdict.Probabilities{Safe: safe / n, Malicious: malicious / n}, nil
}

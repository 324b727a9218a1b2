// Package model loads a persisted classifier artifact and evaluates it on feature vectors.
package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"urlsentry/internal/features"
	"urlsentry/internal/verdict"
	"urlsentry/pkg/metadata"
)

// ErrInvalidArtifact indicates a model file that cannot be evaluated safely.
var ErrInvalidArtifact = errors.New("invalid model artifact")

// Model kinds.
const (
	KindRandomForest = "random_forest"
	KindLogistic     = "logistic"
)

// Classifier produces class probabilities for a schema-ordered vector.
type Classifier interface {
	PredictProba(x []float64) (verdict.Probabilities, error)
}

// Artifact is the on-disk model format.
type Artifact struct {
	FeatureNames []string `json:"feature_names"`
	SchemaHash   string   `json:"schema_hash,omitempty"`
	Version      string   `json:"version,omitempty"`
	Model        Spec     `json:"model"`
}

// Spec holds the parameters of one of the supported model kinds.
type Spec struct {
	Type string `json:"type"`

	// random_forest
	Trees []Tree `json:"trees,omitempty"`

	// logistic
	Weights []float64 `json:"weights,omitempty"`
	Bias    float64   `json:"bias,omitempty"`
}

// Model is a loaded, validated classifier bound to its feature schema.
type Model struct {
	schema  features.Schema
	version string
	clf     Classifier
}

// Load reads and validates the artifact at path.
func Load(path string) (*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read model file: %w", err)
	}

	return Parse(data)
}

// Parse decodes and validates an artifact.
func Parse(data []byte) (*Model, error) {
	var a Artifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidArtifact, err)
	}

	return FromArtifact(&a)
}

// FromArtifact validates a and builds the classifier it describes.
func FromArtifact(a *Artifact) (*Model, error) {
	schema := features.Schema(a.FeatureNames)
	if err := schema.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidArtifact, err)
	}

	if a.SchemaHash != "" {
		if err := metadata.Verify(&metadata.Metadata{SchemaHash: a.SchemaHash}, schema); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidArtifact, err)
		}
	}

	var (
		clf Classifier
		err error
	)

	switch a.Model.Type {
	case KindRandomForest:
		clf, err = newForest(a.Model.Trees, len(schema))
	case KindLogistic:
		clf, err = newLogistic(a.Model.Weights, a.Model.Bias, len(schema))
	default:
		err = fmt.Errorf("unknown model type %q", a.Model.Type)
	}

	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidArtifact, err)
	}

	return &Model{schema: schema, version: a.Version, clf: clf}, nil
}

// Schema returns the feature order the model was trained on.
func (m *Model) Schema() features.Schema {
	return m.schema
}

// Version returns the artifact version label, if any.
func (m *Model) Version() string {
	return m.version
}

// PredictProba evaluates the model on a vector assembled against Schema.
func (m *Model) PredictProba(x []float64) (verdict.Probabilities, error) {
	if len(x) != len(m.schema) {
		return verdict.Probabilities{}, fmt.Errorf("%w: vector has %d values, model expects %d",
			features.ErrSchemaMismatch, len(x), len(m.schema))
	}

	return m.clf.PredictProba(x)
}

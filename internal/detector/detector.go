// Package detector classifies a single URL end to end: extraction, model evaluation and
// the verdict rule.
package detector

import (
	"context"
	"fmt"

	"urlsentry/internal/config"
	"urlsentry/internal/features"
	"urlsentry/internal/logger"
	"urlsentry/internal/pipeline"
	"urlsentry/internal/verdict"
)

// Predictor is a trained model bound to its feature schema.
type Predictor interface {
	Schema() features.Schema
	PredictProba(x []float64) (verdict.Probabilities, error)
}

// Result carries a verdict together with the evidence behind it.
type Result struct {
	URL           string
	Verdict       verdict.Verdict
	Probabilities verdict.Probabilities
	Features      features.FeatureMap
	Vector        []float64
}

// Detector is safe for concurrent use.
type Detector struct {
	extractor *pipeline.Extractor
	model     Predictor
	log       *logger.Logger
}

// New creates a detector that reads page content from content and evaluates m.
func New(content pipeline.ContentSource, m Predictor, cfg *config.PipelineConfig, log *logger.Logger) *Detector {
	log = logger.OrDiscard(log)

	return &Detector{
		extractor: pipeline.New(content, m.Schema(), cfg, log),
		model:     m,
		log:       log,
	}
}

// Classify returns the verdict for url. No verdict is produced when any stage fails.
func (d *Detector) Classify(ctx context.Context, url string) (verdict.Verdict, error) {
	res, err := d.Explain(ctx, url)
	if err != nil {
		return verdict.Verdict{}, err
	}

	return res.Verdict, nil
}

// Explain classifies url and returns the features and probabilities used.
func (d *Detector) Explain(ctx context.Context, url string) (*Result, error) {
	merged, vector, err := d.extractor.Extract(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("feature extraction failed: %w", err)
	}

	probs, err := d.model.PredictProba(vector)
	if err != nil {
		return nil, fmt.Errorf("prediction failed: %w", err)
	}

	d.log.Debug("Prediction probabilities",
		"url", url,
		"safe", fmt.Sprintf("%.2f%%", probs.Safe*100),
		"malicious", fmt.Sprintf("%.2f%%", probs.Malicious*100),
	)

	v, err := verdict.Decide(probs)
	if err != nil {
		return nil, err
	}

	return &Result{
		URL:           url,
		Verdict:       v,
		Probabilities: probs,
		Features:      merged,
		Vector:        vector,
	}, nil
}

// Package pipeline turns labeled URLs into schema-ordered feature vectors using a bounded
// pool of workers sharing one content cache.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"urlsentry/internal/cache"
	"urlsentry/internal/config"
	"urlsentry/internal/dataset"
	"urlsentry/internal/features"
	"urlsentry/internal/fetch"
	"urlsentry/internal/logger"
	"urlsentry/internal/memo"
)

// LabeledRow is one extracted vector with its class label.
type LabeledRow = dataset.Row

// ContentSource yields the page content for a URL.
type ContentSource interface {
	GetOrFetch(ctx context.Context, url string) (*cache.Entry, error)
}

// Stats summarizes a run.
type Stats struct {
	Submitted     int64
	Extracted     int64
	DroppedURL    int64
	DroppedFetch  int64
	DroppedMarkup int64
	MemoHits      int64
}

// Dropped returns the total number of samples that produced no row.
func (s Stats) Dropped() int64 {
	return s.DroppedURL + s.DroppedFetch + s.DroppedMarkup
}

type counters struct {
	submitted     atomic.Int64
	extracted     atomic.Int64
	droppedURL    atomic.Int64
	droppedFetch  atomic.Int64
	droppedMarkup atomic.Int64
}

// Extractor computes feature vectors. It is safe for concurrent use.
type Extractor struct {
	content  ContentSource
	schema   features.Schema
	workers  int
	progress time.Duration
	urlMemo  *memo.Table[features.FeatureMap]
	log      *logger.Logger

	stats counters
}

// New creates an extractor producing vectors in schema order.
func New(content ContentSource, schema features.Schema, cfg *config.PipelineConfig, log *logger.Logger) *Extractor {
	workers := cfg.Workers
	if workers < 1 {
		workers = 1
	}

	memoSize := cfg.MemoSize
	if memoSize < 1 {
		memoSize = 1
	}

	return &Extractor{
		content:  content,
		schema:   schema,
		workers:  workers,
		progress: time.Duration(cfg.ProgressIntervalSec) * time.Second,
		urlMemo:  memo.New[features.FeatureMap](memoSize),
		log:      logger.OrDiscard(log),
	}
}

// Schema returns the vector layout.
func (e *Extractor) Schema() features.Schema {
	return e.schema
}

// URLFeatures returns the lexical features of url, memoized. The returned map is shared
// and must not be modified.
func (e *Extractor) URLFeatures(url string) (features.FeatureMap, error) {
	f, _, err := e.urlMemo.GetOrCompute(url, func() (features.FeatureMap, error) {
		return features.ExtractURLFeatures(url)
	})

	return f, err
}

// Extract runs the full extraction for one URL and returns the merged feature map and the
// assembled vector. Errors match features.ErrURLParse, fetch.ErrFetch,
// features.ErrMarkupParse or features.ErrSchemaMismatch.
func (e *Extractor) Extract(ctx context.Context, url string) (features.FeatureMap, []float64, error) {
	urlFeatures, err := e.URLFeatures(url)
	if err != nil {
		return nil, nil, err
	}

	entry, err := e.content.GetOrFetch(ctx, url)
	if err != nil {
		return nil, nil, err
	}

	doc, err := features.ParseHTML(entry.Content)
	if err != nil {
		return nil, nil, err
	}

	htmlFeatures, err := features.ExtractHTMLFeatures(doc, features.SplitURL(url).Authority)
	if err != nil {
		return nil, nil, err
	}

	merged := features.Merge(urlFeatures, htmlFeatures)

	vector, err := features.Assemble(e.schema, merged)
	if err != nil {
		return merged, nil, err
	}

	return merged, vector, nil
}

// Run extracts every sample with at most the configured number of concurrent workers.
// Rows are returned in completion order. Samples failing with a URL, fetch or markup error
// are dropped and counted; a schema mismatch aborts the run.
func (e *Extractor) Run(ctx context.Context, samples []dataset.Sample) ([]LabeledRow, error) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)

	monitorCtx, stopMonitor := context.WithCancel(ctx)
	defer stopMonitor()

	if e.progress > 0 {
		go e.runMonitor(monitorCtx, len(samples))
	}

	var (
		mu   sync.Mutex
		rows = make([]LabeledRow, 0, len(samples))
	)

	for _, sample := range samples {
		if gctx.Err() != nil {
			break
		}

		e.stats.submitted.Add(1)

		g.Go(func() error {
			_, vector, err := e.Extract(gctx, sample.URL)
			if err != nil {
				return e.drop(sample.URL, err)
			}

			e.stats.extracted.Add(1)

			mu.Lock()
			rows = append(rows, LabeledRow{URL: sample.URL, Vector: vector, Label: sample.Label})
			mu.Unlock()

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("extraction interrupted: %w", err)
	}

	stats := e.Stats()
	e.log.Info("Extraction finished",
		"submitted", stats.Submitted,
		"extracted", stats.Extracted,
		"dropped", stats.Dropped(),
		"memo_hits", stats.MemoHits,
	)

	return rows, nil
}

// drop classifies a per-sample failure. Only a schema mismatch is returned.
func (e *Extractor) drop(url string, err error) error {
	switch {
	case errors.Is(err, features.ErrSchemaMismatch):
		return fmt.Errorf("extracting %s: %w", url, err)
	case errors.Is(err, features.ErrURLParse):
		e.stats.droppedURL.Add(1)
	case errors.Is(err, fetch.ErrFetch):
		e.stats.droppedFetch.Add(1)
	case errors.Is(err, features.ErrMarkupParse):
		e.stats.droppedMarkup.Add(1)
	default:
		// context cancellation and unexpected failures end the run
		return fmt.Errorf("extracting %s: %w", url, err)
	}

	e.log.Debug("Dropped sample", "url", url, "err", err)

	return nil
}

func (e *Extractor) runMonitor(ctx context.Context, total int) {
	ticker := time.NewTicker(e.progress)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			stats := e.Stats()
			e.log.Info("Extraction progress",
				"total", total,
				"submitted", stats.Submitted,
				"extracted", stats.Extracted,
				"dropped_url", stats.DroppedURL,
				"dropped_fetch", stats.DroppedFetch,
				"dropped_markup", stats.DroppedMarkup,
			)
		case <-ctx.Done():
			return
		}
	}
}

// Stats returns the counters accumulated by this extractor.
func (e *Extractor) Stats() Stats {
	hits, _ := e.urlMemo.Stats()

	return Stats{
		Submitted:     e.stats.submitted.Load(),
		Extracted:     e.stats.extracted.Load(),
		DroppedURL:    e.stats.droppedURL.Load(),
		DroppedFetch:  e.stats.droppedFetch.Load(),
		DroppedMarkup: e.stats.droppedMarkup.Load(),
		MemoHits:      hits,
	}
}

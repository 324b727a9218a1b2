package detector

import (
	"fmt"

	"urlsentry/internal/cache"
	"urlsentry/internal/config"
	"urlsentry/internal/features"
	"urlsentry/internal/fetch"
	"urlsentry/internal/logger"
	"urlsentry/internal/model"
)

// Open builds a serving detector from cfg: the model artifact, a single-attempt fetcher
// with the serving timeout and, when serving.use_cache is set, the configured cache store.
// The returned store must be closed by the caller.
func Open(cfg *config.Config, log *logger.Logger) (*Detector, cache.Store, error) {
	log = logger.OrDiscard(log)

	m, err := model.Load(cfg.Model.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load model: %w", err)
	}

	var store cache.Store = cache.NopStore{}

	if cfg.Serving.UseCache {
		store, err = cache.NewStore(&cfg.Cache)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open cache: %w", err)
		}
	}

	fetcher := fetch.NewClientWithPolicy(&cfg.Fetch, cfg.ServingRetry(), log)
	content := cache.New(store, fetcher, log)

	log.Info("Model loaded",
		"path", cfg.Model.Path,
		"version", m.Version(),
		"features", len(m.Schema()),
		"cache", cfg.Serving.UseCache,
	)

	return New(content, m, &cfg.Pipeline, log), store, nil
}

// Schema returns the feature order of the underlying model.
func (d *Detector) Schema() features.Schema {
	return d.model.Schema()
}

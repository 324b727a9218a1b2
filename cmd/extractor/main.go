// Package main provides the extractor command that turns a labeled URL dataset into a
// feature table for training.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"urlsentry/internal/cache"
	"urlsentry/internal/config"
	"urlsentry/internal/dataset"
	"urlsentry/internal/features"
	"urlsentry/internal/fetch"
	"urlsentry/internal/logger"
	"urlsentry/internal/pipeline"
	"urlsentry/internal/report"
)

const schemaVersion = "1"

func main() {
	configFile := flag.String("config", "", "Path to YAML configuration file")
	datasetPath := flag.String("dataset", "", "Labeled CSV with url,type columns (overrides config)")
	output := flag.String("output", "", "Output CSV path (overrides config)")
	xlsx := flag.String("xlsx", "", "Optional XLSX output path (overrides config)")
	samplePerClass := flag.Int("sample", -1, "Samples per class, 0 for all (overrides config)")
	workers := flag.Int("workers", 0, "Worker pool width (overrides config)")

	flag.Parse()

	config.LoadDotEnv(".env")

	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		logger.NewLogger("info").Error("❌ Failed to load config", "err", err)
		os.Exit(1)
	}

	applyOverrides(cfg, *datasetPath, *output, *xlsx, *samplePerClass, *workers)

	log := logger.New(cfg.Logging.Level, cfg.Logging.Format, os.Stderr)
	log.Info("⚙️  Configuration loaded", "config", cfg.String())

	if err := run(cfg, log); err != nil {
		log.Error("❌ Extraction failed", "err", err)
		os.Exit(1)
	}
}

func applyOverrides(cfg *config.Config, datasetPath, output, xlsx string, samplePerClass, workers int) {
	if datasetPath != "" {
		cfg.Dataset.Path = datasetPath
	}

	if output != "" {
		cfg.Dataset.OutputCSV = output
	}

	if xlsx != "" {
		cfg.Dataset.OutputXLSX = xlsx
	}

	if samplePerClass >= 0 {
		cfg.Dataset.SamplePerClass = samplePerClass
	}

	if workers > 0 {
		cfg.Pipeline.Workers = workers
	}
}

func run(cfg *config.Config, log *logger.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 1. Dataset
	// ----------
	log.Info("Phase 1: Loading dataset...", "path", cfg.Dataset.Path)

	all, err := dataset.Load(cfg.Dataset.Path)
	if err != nil {
		return err
	}

	samples := dataset.Balance(all, cfg.Dataset.SamplePerClass, cfg.Dataset.Seed)
	counts := dataset.Counts(samples)

	log.Info("✅ Dataset sampled",
		"rows", len(all),
		"benign", counts[dataset.LabelBenign],
		"malicious", counts[dataset.LabelMalicious],
	)

	// 2. Extraction
	// -------------
	store, err := cache.NewStore(&cfg.Cache)
	if err != nil {
		return fmt.Errorf("failed to open cache: %w", err)
	}
	defer store.Close()

	content := cache.New(store, fetch.NewClient(&cfg.Fetch, log), log)
	schema := features.DefaultSchema()
	extractor := pipeline.New(content, schema, &cfg.Pipeline, log)

	log.Info("Phase 2: Extracting features...",
		"workers", cfg.Pipeline.Workers,
		"cache", cfg.Cache.Backend,
		"schema_hash", schema.Fingerprint(),
	)

	start := time.Now()

	rows, err := extractor.Run(ctx, samples)
	if err != nil {
		return err
	}

	log.Info(fmt.Sprintf("✅ Extracted %d of %d samples in %v", len(rows), len(samples), time.Since(start).Round(time.Second)))

	// 3. Output
	// ---------
	log.Info("Phase 3: Writing feature table...", "path", cfg.Dataset.OutputCSV)

	if err := dataset.SaveCSV(cfg.Dataset.OutputCSV, schema, rows); err != nil {
		return err
	}

	metaPath := strings.TrimSuffix(cfg.Dataset.OutputCSV, ".csv") + ".meta.json"
	if err := dataset.SaveMetadata(metaPath, schema, schemaVersion); err != nil {
		return err
	}

	if cfg.Dataset.OutputXLSX != "" {
		if err := dataset.SaveXLSX(cfg.Dataset.OutputXLSX, schema, rows); err != nil {
			return err
		}

		log.Info("✅ Workbook written", "path", cfg.Dataset.OutputXLSX)
	}

	fmt.Print(report.RunSummary(extractor.Stats(), content.Stats()))

	return nil
}

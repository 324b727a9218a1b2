// Package main provides a one-shot command-line classifier for a single URL.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"urlsentry/internal/config"
	"urlsentry/internal/detector"
	"urlsentry/internal/logger"
	"urlsentry/internal/report"
)

func main() {
	configFile := flag.String("config", "", "Path to YAML configuration file")
	targetURL := flag.String("url", "", "URL to classify")
	modelPath := flag.String("model", "", "Path to model artifact (overrides config)")
	explain := flag.Bool("explain", false, "Print probabilities and every feature value")

	flag.Parse()

	config.LoadDotEnv(".env")

	if *targetURL == "" {
		fmt.Fprintln(os.Stderr, "Please provide a URL with -url")
		flag.PrintDefaults()
		os.Exit(1)
	}

	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		logger.NewLogger("info").Error("❌ Failed to load config", "err", err)
		os.Exit(1)
	}

	if *modelPath != "" {
		cfg.Model.Path = *modelPath
	}

	log := logger.New(cfg.Logging.Level, cfg.Logging.Format, os.Stderr)

	det, store, err := detector.Open(cfg, log)
	if err != nil {
		log.Error("❌ Failed to start detector", "err", err)
		os.Exit(1)
	}
	defer store.Close()

	res, err := det.Explain(context.Background(), *targetURL)
	if err != nil {
		log.Error("❌ Classification failed", "url", *targetURL, "err", err)
		store.Close()
		os.Exit(1)
	}

	if *explain {
		fmt.Print(report.Explanation(det.Schema(), res))
		return
	}

	fmt.Println(res.Verdict)
}

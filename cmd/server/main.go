// Package main provides the HTTP API that classifies submitted URLs.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"urlsentry/internal/config"
	"urlsentry/internal/detector"
	"urlsentry/internal/domaininfo"
	"urlsentry/internal/logger"
	"urlsentry/internal/server"
)

func main() {
	configFile := flag.String("config", "", "Path to YAML configuration file")
	addr := flag.String("addr", "", "Listen address (overrides config and PORT)")
	modelPath := flag.String("model", "", "Path to model artifact (overrides config)")
	noWhois := flag.Bool("no-whois", false, "Disable the /api/domain-info endpoint")

	flag.Parse()

	config.LoadDotEnv(".env")

	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		logger.NewLogger("info").Error("❌ Failed to load config", "err", err)
		os.Exit(1)
	}

	if *addr != "" {
		cfg.Serving.Addr = *addr
	}

	if *modelPath != "" {
		cfg.Model.Path = *modelPath
	}

	log := logger.New(cfg.Logging.Level, cfg.Logging.Format, os.Stderr)
	log.Info("⚙️  Configuration loaded", "config", cfg.String())

	det, store, err := detector.Open(cfg, log)
	if err != nil {
		log.Error("❌ Failed to start detector", "err", err)
		os.Exit(1)
	}
	defer store.Close()

	var domains server.DomainLookup
	if !*noWhois {
		domains = domaininfo.New(time.Duration(cfg.Serving.WhoisTimeoutSec)*time.Second, log)
	}

	srv := server.New(det, domains, len(det.Schema()), &cfg.Serving, log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("🚀 Starting URL classification API",
		"addr", cfg.Serving.Addr,
		"endpoints", "POST /api/check-url, POST /api/domain-info, GET /healthz",
	)

	if err := srv.ListenAndServe(ctx); err != nil {
		log.Error("❌ Server stopped", "err", err)
		os.Exit(1)
	}

	log.Info("✅ Server stopped cleanly")
}

// Package config provides configuration management for the detector, server and extractor.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Configuration validation errors.
var (
	ErrInvalidMaxAttempts       = errors.New("retry.max_attempts must be at least 1")
	ErrInvalidInitialDelay      = errors.New("retry.initial_delay_ms must be non-negative")
	ErrInvalidBackoffMultiplier = errors.New("retry.backoff_multiplier must be >= 1.0")
	ErrInvalidTimeout           = errors.New("retry.timeout_sec must be at least 1")
	ErrInvalidMaxIdleConns      = errors.New("fetch.max_idle_conns must be at least 1")
	ErrInvalidBodyLimit         = errors.New("fetch.max_body_kb must be at least 1")
	ErrInvalidRate              = errors.New("fetch.requests_per_second must be non-negative")
	ErrInvalidCacheBackend      = errors.New("cache.backend must be one of: file, sqlite, memory, none")
	ErrMissingCacheDir          = errors.New("cache.dir is required for the file backend")
	ErrMissingSQLitePath        = errors.New("cache.sqlite_path is required for the sqlite backend")
	ErrInvalidWorkers           = errors.New("pipeline.workers must be at least 1")
	ErrInvalidMemoSize          = errors.New("pipeline.memo_size must be at least 1")
	ErrInvalidServingTimeout    = errors.New("serving.fetch_timeout_sec must be at least 1")
	ErrMissingAddr              = errors.New("serving.addr is required")
	ErrInvalidSampleSize        = errors.New("dataset.sample_per_class must be non-negative")
	ErrInvalidLogLevel          = errors.New("logging.level must be one of: debug, info, warn, error")
	ErrInvalidLogFormat         = errors.New("logging.format must be 'text' or 'json'")
)

// Cache backends.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
	BackendNone   = "none"
)

// Config represents the complete service configuration.
type Config struct {
	Fetch    FetchConfig    `yaml:"fetch"`
	Cache    CacheConfig    `yaml:"cache"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Serving  ServingConfig  `yaml:"serving"`
	Model    ModelConfig    `yaml:"model"`
	Dataset  DatasetConfig  `yaml:"dataset"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// FetchConfig controls the pooled HTTP client used to acquire page content.
type FetchConfig struct {
	UserAgent          string      `yaml:"user_agent"`
	Retry              RetryPolicy `yaml:"retry"`
	MaxIdleConns       int         `yaml:"max_idle_conns"`
	MaxBodyKb          int         `yaml:"max_body_kb"`
	RequestsPerSecond  float64     `yaml:"requests_per_second"`
	InsecureSkipVerify bool        `yaml:"insecure_skip_verify"`
}

// RetryPolicy defines retry behavior.
type RetryPolicy struct {
	MaxAttempts       int     `yaml:"max_attempts"`
	InitialDelayMs    int     `yaml:"initial_delay_ms"`
	MaxDelayMs        int     `yaml:"max_delay_ms"`
	BackoffMultiplier float64 `yaml:"backoff_multiplier"`
	TimeoutSec        int     `yaml:"timeout_sec"`
}

// CacheConfig selects the content cache storage backend.
type CacheConfig struct {
	Backend    string `yaml:"backend"`
	Dir        string `yaml:"dir"`
	SQLitePath string `yaml:"sqlite_path"`
}

// PipelineConfig sizes the training-time extraction pipeline.
type PipelineConfig struct {
	Workers             int `yaml:"workers"`
	MemoSize            int `yaml:"memo_size"`
	ProgressIntervalSec int `yaml:"progress_interval_sec"`
}

// ServingConfig controls the HTTP API.
type ServingConfig struct {
	Addr            string `yaml:"addr"`
	AllowedOrigin   string `yaml:"allowed_origin"`
	FetchTimeoutSec int    `yaml:"fetch_timeout_sec"`
	WhoisTimeoutSec int    `yaml:"whois_timeout_sec"`
	UseCache        bool   `yaml:"use_cache"`
}

// ModelConfig locates the persisted model artifact.
type ModelConfig struct {
	Path string `yaml:"path"`
}

// DatasetConfig describes the labeled URL dataset and the extraction outputs.
type DatasetConfig struct {
	Path           string `yaml:"path"`
	OutputCSV      string `yaml:"output_csv"`
	OutputXLSX     string `yaml:"output_xlsx"`
	SamplePerClass int    `yaml:"sample_per_class"`
	Seed           int64  `yaml:"seed"`
}

// LoggingConfig defines logging behavior.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Fetch: FetchConfig{
			UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36",
			Retry: RetryPolicy{
				MaxAttempts:       3,
				InitialDelayMs:    200,
				MaxDelayMs:        2000,
				BackoffMultiplier: 2.0,
				TimeoutSec:        5,
			},
			MaxIdleConns:       100,
			MaxBodyKb:          5120,
			InsecureSkipVerify: true,
		},
		Cache: CacheConfig{
			Backend:    BackendFile,
			Dir:        "data/url_cache",
			SQLitePath: "data/url_cache.db",
		},
		Pipeline: PipelineConfig{
			Workers:             20,
			MemoSize:            10000,
			ProgressIntervalSec: 30,
		},
		Serving: ServingConfig{
			Addr:            ":5000",
			AllowedOrigin:   "*",
			FetchTimeoutSec: 10,
			WhoisTimeoutSec: 10,
		},
		Model: ModelConfig{
			Path: "saved_model.json",
		},
		Dataset: DatasetConfig{
			Path:           "malicious_phish.csv",
			OutputCSV:      "extracted_features.csv",
			SamplePerClass: 5000,
			Seed:           42,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// LoadConfig loads configuration from a YAML file layered over Default.
// An empty path yields the defaults. Environment overrides are applied afterwards.
func LoadConfig(filepath string) (*Config, error) {
	cfg := Default()

	if filepath != "" {
		data, err := os.ReadFile(filepath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML: %w", err)
		}
	}

	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// LoadDotEnv loads variables from .env files if present. Existing variables win.
func LoadDotEnv(files ...string) {
	if len(files) == 0 {
		files = []string{".env"}
	}

	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			_ = godotenv.Load(f)
		}
	}
}

// ApplyEnv overrides selected settings from the environment.
func (c *Config) ApplyEnv() error {
	if port := os.Getenv("PORT"); port != "" {
		if _, err := strconv.Atoi(port); err != nil {
			return fmt.Errorf("invalid PORT %q: %w", port, err)
		}

		c.Serving.Addr = ":" + port
	}

	if v := os.Getenv("MODEL_PATH"); v != "" {
		c.Model.Path = v
	}

	if v := os.Getenv("CACHE_DIR"); v != "" {
		c.Cache.Dir = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}

	return nil
}

// SaveConfig saves configuration to YAML file.
func (c *Config) SaveConfig(filepath string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filepath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.Fetch.Retry.Validate(); err != nil {
		return err
	}

	if c.Fetch.MaxIdleConns < 1 {
		return ErrInvalidMaxIdleConns
	}

	if c.Fetch.MaxBodyKb < 1 {
		return ErrInvalidBodyLimit
	}

	if c.Fetch.RequestsPerSecond < 0 {
		return ErrInvalidRate
	}

	switch c.Cache.Backend {
	case BackendFile:
		if c.Cache.Dir == "" {
			return ErrMissingCacheDir
		}
	case BackendSQLite:
		if c.Cache.SQLitePath == "" {
			return ErrMissingSQLitePath
		}
	case BackendMemory, BackendNone:
	default:
		return fmt.Errorf("%w: got %q", ErrInvalidCacheBackend, c.Cache.Backend)
	}

	if c.Pipeline.Workers < 1 {
		return ErrInvalidWorkers
	}

	if c.Pipeline.MemoSize < 1 {
		return ErrInvalidMemoSize
	}

	if c.Serving.Addr == "" {
		return ErrMissingAddr
	}

	if c.Serving.FetchTimeoutSec < 1 {
		return ErrInvalidServingTimeout
	}

	if c.Dataset.SamplePerClass < 0 {
		return ErrInvalidSampleSize
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return ErrInvalidLogLevel
	}

	if c.Logging.Format != "text" && c.Logging.Format != "json" {
		return ErrInvalidLogFormat
	}

	return nil
}

// Validate checks the retry policy bounds.
func (rp *RetryPolicy) Validate() error {
	if rp.MaxAttempts < 1 {
		return ErrInvalidMaxAttempts
	}

	if rp.InitialDelayMs < 0 {
		return ErrInvalidInitialDelay
	}

	if rp.BackoffMultiplier < 1.0 {
		return ErrInvalidBackoffMultiplier
	}

	if rp.TimeoutSec < 1 {
		return ErrInvalidTimeout
	}

	return nil
}

// GetRetryDelay calculates exponential backoff delay for attempt number.
func (rp *RetryPolicy) GetRetryDelay(attempt int) time.Duration {
	if attempt <= 1 {
		return 0
	}

	delayMs := float64(rp.InitialDelayMs)
	for i := 2; i < attempt; i++ {
		delayMs *= rp.BackoffMultiplier
	}

	// Cap at max delay
	if rp.MaxDelayMs > 0 && int(delayMs) > rp.MaxDelayMs {
		delayMs = float64(rp.MaxDelayMs)
	}

	return time.Duration(int(delayMs)) * time.Millisecond
}

// GetTimeout returns the timeout duration.
func (rp *RetryPolicy) GetTimeout() time.Duration {
	return time.Duration(rp.TimeoutSec) * time.Second
}

// ServingRetry returns the single-attempt policy used for inference-time fetches.
func (c *Config) ServingRetry() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:       1,
		BackoffMultiplier: 1.0,
		TimeoutSec:        c.Serving.FetchTimeoutSec,
	}
}

// String returns a string representation of the config.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{Cache: %s, Workers: %d, MaxAttempts: %d, Model: %s}",
		c.Cache.Backend,
		c.Pipeline.Workers,
		c.Fetch.Retry.MaxAttempts,
		c.Model.Path,
	)
}

package config

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

// Helper to create a temp config file.
func createTempConfigFile(t *testing.T, content string) string {
	t.Helper()
	tmpDir := t.TempDir()

	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to create temp config file: %v", err)
	}

	return configPath
}

// validConfigYAML overrides a subset of the defaults.
const validConfigYAML = `
fetch:
  max_idle_conns: 50
  retry:
    max_attempts: 2
    initial_delay_ms: 100
    max_delay_ms: 1000
    backoff_multiplier: 2.0
    timeout_sec: 7
cache:
  backend: sqlite
  sqlite_path: "/tmp/cache.db"
pipeline:
  workers: 8
serving:
  addr: ":8080"
logging:
  level: debug
  format: json
`

func clearEnv(t *testing.T) {
	t.Helper()

	for _, k := range []string{"PORT", "MODEL_PATH", "CACHE_DIR", "LOG_LEVEL"} {
		t.Setenv(k, "")
	}
}

func TestLoadConfig_Valid(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadConfig(createTempConfigFile(t, validConfigYAML))
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.Fetch.MaxIdleConns != 50 {
		t.Errorf("Expected max_idle_conns 50, got %d", cfg.Fetch.MaxIdleConns)
	}

	if cfg.Fetch.Retry.MaxAttempts != 2 || cfg.Fetch.Retry.TimeoutSec != 7 {
		t.Errorf("Retry policy not loaded: %+v", cfg.Fetch.Retry)
	}

	if cfg.Cache.Backend != BackendSQLite || cfg.Cache.SQLitePath != "/tmp/cache.db" {
		t.Errorf("Cache config not loaded: %+v", cfg.Cache)
	}

	if cfg.Pipeline.Workers != 8 {
		t.Errorf("Expected 8 workers, got %d", cfg.Pipeline.Workers)
	}

	// Untouched sections keep their defaults.
	if cfg.Pipeline.MemoSize != 10000 {
		t.Errorf("Expected default memo size 10000, got %d", cfg.Pipeline.MemoSize)
	}

	if !cfg.Fetch.InsecureSkipVerify {
		t.Error("Expected insecure_skip_verify default true")
	}

	if cfg.Serving.FetchTimeoutSec != 10 {
		t.Errorf("Expected default serving timeout 10, got %d", cfg.Serving.FetchTimeoutSec)
	}
}

func TestLoadConfig_EmptyPathUsesDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.Pipeline.Workers != 20 {
		t.Errorf("Expected 20 workers, got %d", cfg.Pipeline.Workers)
	}

	if cfg.Fetch.Retry.GetTimeout() != 5*time.Second {
		t.Errorf("Expected 5s fetch timeout, got %v", cfg.Fetch.Retry.GetTimeout())
	}
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "9090")
	t.Setenv("MODEL_PATH", "/models/rf.json")
	t.Setenv("CACHE_DIR", "/var/cache/urls")

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.Serving.Addr != ":9090" {
		t.Errorf("Expected addr :9090, got %s", cfg.Serving.Addr)
	}

	if cfg.Model.Path != "/models/rf.json" {
		t.Errorf("Expected model path override, got %s", cfg.Model.Path)
	}

	if cfg.Cache.Dir != "/var/cache/urls" {
		t.Errorf("Expected cache dir override, got %s", cfg.Cache.Dir)
	}
}

func TestLoadConfig_InvalidPort(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "http")

	if _, err := LoadConfig(""); err == nil {
		t.Fatal("Expected error for non-numeric PORT")
	}
}

func TestLoadConfig_FileNotFound(t *testing.T) {
	_, err := LoadConfig("/nonexistent/config.yaml")
	if err == nil {
		t.Fatal("Expected error for missing file")
	}
}

func TestLoadConfig_InvalidYAML(t *testing.T) {
	_, err := LoadConfig(createTempConfigFile(t, "fetch: [unclosed"))
	if err == nil {
		t.Fatal("Expected error for invalid YAML")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   error
	}{
		{"defaults", func(*Config) {}, nil},
		{"zero attempts", func(c *Config) { c.Fetch.Retry.MaxAttempts = 0 }, ErrInvalidMaxAttempts},
		{"negative delay", func(c *Config) { c.Fetch.Retry.InitialDelayMs = -1 }, ErrInvalidInitialDelay},
		{"low multiplier", func(c *Config) { c.Fetch.Retry.BackoffMultiplier = 0.5 }, ErrInvalidBackoffMultiplier},
		{"zero timeout", func(c *Config) { c.Fetch.Retry.TimeoutSec = 0 }, ErrInvalidTimeout},
		{"zero idle conns", func(c *Config) { c.Fetch.MaxIdleConns = 0 }, ErrInvalidMaxIdleConns},
		{"zero body", func(c *Config) { c.Fetch.MaxBodyKb = 0 }, ErrInvalidBodyLimit},
		{"negative rate", func(c *Config) { c.Fetch.RequestsPerSecond = -1 }, ErrInvalidRate},
		{"unknown backend", func(c *Config) { c.Cache.Backend = "redis" }, ErrInvalidCacheBackend},
		{"file without dir", func(c *Config) { c.Cache.Dir = "" }, ErrMissingCacheDir},
		{"sqlite without path", func(c *Config) {
			c.Cache.Backend = BackendSQLite
			c.Cache.SQLitePath = ""
		}, ErrMissingSQLitePath},
		{"memory backend", func(c *Config) {
			c.Cache.Backend = BackendMemory
			c.Cache.Dir = ""
		}, nil},
		{"zero workers", func(c *Config) { c.Pipeline.Workers = 0 }, ErrInvalidWorkers},
		{"zero memo", func(c *Config) { c.Pipeline.MemoSize = 0 }, ErrInvalidMemoSize},
		{"no addr", func(c *Config) { c.Serving.Addr = "" }, ErrMissingAddr},
		{"zero serving timeout", func(c *Config) { c.Serving.FetchTimeoutSec = 0 }, ErrInvalidServingTimeout},
		{"negative sample", func(c *Config) { c.Dataset.SamplePerClass = -1 }, ErrInvalidSampleSize},
		{"bad level", func(c *Config) { c.Logging.Level = "trace" }, ErrInvalidLogLevel},
		{"bad format", func(c *Config) { c.Logging.Format = "xml" }, ErrInvalidLogFormat},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.want == nil {
				if err != nil {
					t.Fatalf("Validate() unexpected error: %v", err)
				}

				return
			}

			if !errors.Is(err, tt.want) {
				t.Errorf("Validate() = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestRetryPolicy_GetRetryDelay(t *testing.T) {
	rp := RetryPolicy{
		InitialDelayMs:    100,
		MaxDelayMs:        500,
		BackoffMultiplier: 2.0,
	}

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 0},
		{2, 100 * time.Millisecond},
		{3, 200 * time.Millisecond},
		{4, 400 * time.Millisecond},
		{5, 500 * time.Millisecond}, // capped
	}

	for _, tt := range tests {
		if got := rp.GetRetryDelay(tt.attempt); got != tt.want {
			t.Errorf("GetRetryDelay(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestServingRetry(t *testing.T) {
	cfg := Default()

	rp := cfg.ServingRetry()
	if rp.MaxAttempts != 1 {
		t.Errorf("Expected single attempt, got %d", rp.MaxAttempts)
	}

	if rp.GetTimeout() != 10*time.Second {
		t.Errorf("Expected 10s timeout, got %v", rp.GetTimeout())
	}

	if err := rp.Validate(); err != nil {
		t.Errorf("serving retry policy invalid: %v", err)
	}
}

func TestSaveConfig_RoundTrip(t *testing.T) {
	clearEnv(t)

	cfg := Default()
	cfg.Pipeline.Workers = 4

	path := filepath.Join(t.TempDir(), "saved.yaml")
	if err := cfg.SaveConfig(path); err != nil {
		t.Fatalf("SaveConfig failed: %v", err)
	}

	loaded, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if loaded.Pipeline.Workers != 4 {
		t.Errorf("Expected 4 workers, got %d", loaded.Pipeline.Workers)
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env")

	if err := os.WriteFile(envPath, []byte("URLSENTRY_TEST_VAR=from-file\n"), 0644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("URLSENTRY_TEST_VAR", "")
	os.Unsetenv("URLSENTRY_TEST_VAR")

	LoadDotEnv(envPath, filepath.Join(dir, "missing.env"))

	if got := os.Getenv("URLSENTRY_TEST_VAR"); got != "from-file" {
		t.Errorf("Expected value from .env, got %q", got)
	}
}

func TestLoadConfig_SampleFileMatchesDefaults(t *testing.T) {
	for _, k := range []string{"PORT", "MODEL_PATH", "CACHE_DIR", "LOG_LEVEL"} {
		t.Setenv(k, "")
	}

	cfg, err := LoadConfig(filepath.Join("..", "..", "configs", "urlsentry.yaml"))
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if !reflect.DeepEqual(cfg, Default()) {
		t.Errorf("sample config drifted from defaults:\n%s\nvs\n%s", cfg, Default())
	}
}

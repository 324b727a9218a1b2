package fetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"urlsentry/internal/config"
)

func testConfig() *config.FetchConfig {
	return &config.FetchConfig{
		UserAgent:    "urlsentry-test",
		MaxIdleConns: 10,
		MaxBodyKb:    64,
		Retry: config.RetryPolicy{
			MaxAttempts:       3,
			InitialDelayMs:    1,
			MaxDelayMs:        5,
			BackoffMultiplier: 2.0,
			TimeoutSec:        5,
		},
	}
}

func TestFetch_CapturesResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") != "urlsentry-test" {
			t.Errorf("User-Agent = %q", r.Header.Get("User-Agent"))
		}

		w.Header().Add("X-Multi", "a")
		w.Header().Add("X-Multi", "b")
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html><title>ok</title></html>"))
	}))
	defer server.Close()

	resp, err := NewClient(testConfig(), nil).Fetch(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}

	if resp.StatusCode != http.StatusOK {
		t.Errorf("StatusCode = %d", resp.StatusCode)
	}

	if resp.Body != "<html><title>ok</title></html>" {
		t.Errorf("Body = %q", resp.Body)
	}

	if resp.Headers["X-Multi"] != "a, b" {
		t.Errorf("X-Multi = %q, want %q", resp.Headers["X-Multi"], "a, b")
	}

	if resp.Headers["Content-Type"] != "text/html" {
		t.Errorf("Content-Type = %q", resp.Headers["Content-Type"])
	}
}

func TestFetch_ErrorStatusIsContent(t *testing.T) {
	var calls atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte("<h1>not found</h1>"))
	}))
	defer server.Close()

	resp, err := NewClient(testConfig(), nil).Fetch(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}

	if resp.StatusCode != http.StatusNotFound || resp.Body != "<h1>not found</h1>" {
		t.Errorf("got %d %q", resp.StatusCode, resp.Body)
	}

	if calls.Load() != 1 {
		t.Errorf("404 must not be retried, got %d calls", calls.Load())
	}
}

func TestFetch_RetriesTemporaryStatus(t *testing.T) {
	var calls atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}

		_, _ = w.Write([]byte("recovered"))
	}))
	defer server.Close()

	resp, err := NewClient(testConfig(), nil).Fetch(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}

	if resp.Body != "recovered" || calls.Load() != 3 {
		t.Errorf("body=%q calls=%d", resp.Body, calls.Load())
	}
}

func TestFetch_ExhaustedTemporaryStatusReturnsResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	resp, err := NewClient(testConfig(), nil).Fetch(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}

	if resp.StatusCode != http.StatusTooManyRequests {
		t.Errorf("StatusCode = %d", resp.StatusCode)
	}
}

func TestFetch_ConnectionFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := server.URL
	server.Close()

	resp, err := NewClient(testConfig(), nil).Fetch(context.Background(), url)
	if !errors.Is(err, ErrFetch) {
		t.Fatalf("err = %v, want ErrFetch", err)
	}

	if resp != nil {
		t.Errorf("expected no response, got %+v", resp)
	}
}

func TestFetch_ConnectionDropped(t *testing.T) {
	var calls atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)

		hj, ok := w.(http.Hijacker)
		if !ok {
			t.Error("hijacking not supported")
			return
		}

		conn, _, err := hj.Hijack()
		if err != nil {
			t.Error(err)
			return
		}

		_ = conn.Close()
	}))
	defer server.Close()

	_, err := NewClient(testConfig(), nil).Fetch(context.Background(), server.URL)
	if !errors.Is(err, ErrFetch) {
		t.Fatalf("err = %v, want ErrFetch", err)
	}

	if calls.Load() < 3 {
		t.Errorf("expected at least 3 attempts, got %d", calls.Load())
	}
}

func TestFetch_SingleAttemptPolicy(t *testing.T) {
	var calls atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	cfg := testConfig()
	policy := config.RetryPolicy{MaxAttempts: 1, BackoffMultiplier: 1, TimeoutSec: 2}

	resp, err := NewClientWithPolicy(cfg, policy, nil).Fetch(context.Background(), server.URL)
	if err != nil {
		t.Fatal(err)
	}

	if resp.StatusCode != http.StatusServiceUnavailable || calls.Load() != 1 {
		t.Errorf("status=%d calls=%d", resp.StatusCode, calls.Load())
	}
}

func TestFetch_Timeout(t *testing.T) {
	release := make(chan struct{})

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()

	_, err := NewClient(testConfig(), nil).Fetch(ctx, server.URL)
	if !errors.Is(err, ErrFetch) {
		t.Fatalf("err = %v, want ErrFetch", err)
	}

	if time.Since(start) > 3*time.Second {
		t.Errorf("fetch did not honor context deadline")
	}
}

func TestFetch_BodyLimit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(strings.Repeat("x", 4096)))
	}))
	defer server.Close()

	cfg := testConfig()
	cfg.MaxBodyKb = 1

	resp, err := NewClient(cfg, nil).Fetch(context.Background(), server.URL)
	if err != nil {
		t.Fatal(err)
	}

	if len(resp.Body) != 1024 {
		t.Errorf("body length = %d, want 1024", len(resp.Body))
	}
}

func TestFetch_InsecureTLS(t *testing.T) {
	server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("tls"))
	}))
	defer server.Close()

	cfg := testConfig()
	cfg.Retry.MaxAttempts = 1

	if _, err := NewClient(cfg, nil).Fetch(context.Background(), server.URL); !errors.Is(err, ErrFetch) {
		t.Errorf("verifying client should reject self-signed certificate, got %v", err)
	}

	cfg.InsecureSkipVerify = true

	resp, err := NewClient(cfg, nil).Fetch(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("insecure client failed: %v", err)
	}

	if resp.Body != "tls" {
		t.Errorf("Body = %q", resp.Body)
	}
}

func TestFetch_RateLimited(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	defer server.Close()

	cfg := testConfig()
	cfg.RequestsPerSecond = 20

	client := NewClient(cfg, nil)
	if client.limiter == nil {
		t.Fatal("expected limiter to be configured")
	}

	for i := 0; i < 3; i++ {
		if _, err := client.Fetch(context.Background(), server.URL); err != nil {
			t.Fatal(err)
		}
	}
}

func TestIsRetryableStatus(t *testing.T) {
	tests := []struct {
		code int
		want bool
	}{
		{http.StatusOK, false},
		{http.StatusNotFound, false},
		{http.StatusInternalServerError, false},
		{http.StatusRequestTimeout, true},
		{http.StatusTooManyRequests, true},
		{http.StatusServiceUnavailable, true},
		{http.StatusGatewayTimeout, true},
	}

	for _, tt := range tests {
		if got := isRetryableStatus(tt.code); got != tt.want {
			t.Errorf("isRetryableStatus(%d) = %v, want %v", tt.code, got, tt.want)
		}
	}
}

func TestDecodeBody(t *testing.T) {
	tests := []struct {
		name        string
		body        string
		contentType string
		want        string
	}{
		{"latin-1 header", "caf\xe9", "text/html; charset=iso-8859-1", "café"},
		{"utf-8 undeclared", "café", "text/html", "café"},
		{"non-utf-8 undeclared", "caf\xe9", "", "café"},
		{"meta charset", `<meta charset="windows-1251">` + "\xcf\xf0\xe8", "text/html", `<meta charset="windows-1251">При`},
		{"invalid utf-8 declared", "ok\xe2\x82", "text/html; charset=utf-8", "ok�"},
		{"ascii", "<p>plain</p>", "", "<p>plain</p>"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := decodeBody([]byte(tt.body), tt.contentType); got != tt.want {
				t.Errorf("decodeBody() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFetch_DecodesDeclaredCharset(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=ISO-8859-1")
		_, _ = w.Write([]byte("<title>caf\xe9</title>"))
	}))
	defer server.Close()

	resp, err := NewClient(testConfig(), nil).Fetch(context.Background(), server.URL)
	if err != nil {
		t.Fatal(err)
	}

	if resp.Body != "<title>café</title>" {
		t.Errorf("Body = %q", resp.Body)
	}
}

func TestFetch_BodyLimitKeepsWholeRunes(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(strings.Repeat("a", 1023) + "é"))
	}))
	defer server.Close()

	cfg := testConfig()
	cfg.MaxBodyKb = 1

	resp, err := NewClient(cfg, nil).Fetch(context.Background(), server.URL)
	if err != nil {
		t.Fatal(err)
	}

	if resp.Body != strings.Repeat("a", 1023) {
		t.Errorf("body ends with %q", resp.Body[len(resp.Body)-4:])
	}
}

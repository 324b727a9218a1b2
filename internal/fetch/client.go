// Package fetch acquires page content over HTTP with a pooled transport, retries and an
// optional outbound rate limit.
package fetch

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/net/html/charset"
	"golang.org/x/time/rate"

	"urlsentry/internal/config"
	"urlsentry/internal/logger"
)

// ErrFetch indicates that no HTTP response could be obtained for a URL.
var ErrFetch = errors.New("fetch failed")

// Response is the captured result of a GET. Any status code is a valid response.
type Response struct {
	StatusCode int
	Body       string
	Headers    map[string]string
}

// Fetcher retrieves a URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*Response, error)
}

// Client is the pooled HTTP fetcher. It is safe for concurrent use.
type Client struct {
	client      *http.Client
	retryPolicy config.RetryPolicy
	userAgent   string
	bodyLimit   int64
	limiter     *rate.Limiter
	log         *logger.Logger
}

// NewClient creates a fetcher using the retry policy configured in cfg.
func NewClient(cfg *config.FetchConfig, log *logger.Logger) *Client {
	return NewClientWithPolicy(cfg, cfg.Retry, log)
}

// NewClientWithPolicy creates a fetcher sharing cfg's transport settings but using policy
// for attempts and timeout.
func NewClientWithPolicy(cfg *config.FetchConfig, policy config.RetryPolicy, log *logger.Logger) *Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.MaxIdleConns = cfg.MaxIdleConns
	transport.MaxIdleConnsPerHost = cfg.MaxIdleConns

	transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: cfg.InsecureSkipVerify}

	c := &Client{
		client: &http.Client{
			Transport: transport,
			Timeout:   policy.GetTimeout(),
		},
		retryPolicy: policy,
		userAgent:   cfg.UserAgent,
		bodyLimit:   int64(cfg.MaxBodyKb) * 1024,
		log:         logger.OrDiscard(log),
	}

	if cfg.RequestsPerSecond > 0 {
		burst := int(cfg.RequestsPerSecond)
		if burst < 1 {
			burst = 1
		}

		c.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}

	return c
}

// Fetch performs a GET of url. Transport failures are retried per the policy, as are the
// temporary statuses 408, 429, 503 and 504 while attempts remain. Once attempts are
// exhausted a retryable status is returned as content; a transport failure is ErrFetch.
func (c *Client) Fetch(ctx context.Context, url string) (*Response, error) {
	attempts := c.retryPolicy.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error

	for attempt := 1; attempt <= attempts; attempt++ {
		if err := c.wait(ctx, attempt); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrFetch, url, err)
		}

		resp, err := c.do(ctx, url)
		if err != nil {
			lastErr = fmt.Errorf("request failed (attempt %d/%d): %w", attempt, attempts, err)
			c.log.Debug("Fetch attempt failed", "url", url, "attempt", attempt, "err", err)

			if ctx.Err() != nil {
				break
			}

			continue
		}

		if attempt < attempts && isRetryableStatus(resp.StatusCode) {
			c.log.Debug("Retrying temporary status", "url", url, "status", resp.StatusCode, "attempt", attempt)
			continue
		}

		return resp, nil
	}

	return nil, fmt.Errorf("%w: %s: %w", ErrFetch, url, lastErr)
}

// wait sleeps the backoff delay for attempt and then takes a limiter token.
func (c *Client) wait(ctx context.Context, attempt int) error {
	if delay := c.retryPolicy.GetRetryDelay(attempt); delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}
	}

	return nil
}

func (c *Client) do(ctx context.Context, url string) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var reader io.Reader = resp.Body
	if c.bodyLimit > 0 {
		reader = io.LimitReader(resp.Body, c.bodyLimit)
	}

	body, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if c.bodyLimit > 0 && int64(len(body)) == c.bodyLimit {
		body = trimPartialRune(body)
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Body:       decodeBody(body, resp.Header.Get("Content-Type")),
		Headers:    flattenHeaders(resp.Header),
	}, nil
}

// decodeBody converts body to UTF-8. A Content-Type charset wins; otherwise a body that is
// already UTF-8 is kept, and a BOM or meta declaration picks the decoder, with windows-1252
// as the last resort. The result is always valid UTF-8.
func decodeBody(body []byte, contentType string) string {
	enc, name, certain := charset.DetermineEncoding(body, contentType)

	if name == "utf-8" || (!certain && utf8.Valid(body)) {
		return strings.ToValidUTF8(string(body), "\uFFFD")
	}

	decoded, err := enc.NewDecoder().Bytes(body)
	if err != nil {
		decoded = body
	}

	return strings.ToValidUTF8(string(decoded), "\uFFFD")
}

// trimPartialRune drops a trailing incomplete UTF-8 sequence.
func trimPartialRune(b []byte) []byte {
	for i := 1; i <= utf8.UTFMax && i <= len(b); i++ {
		if utf8.RuneStart(b[len(b)-i]) {
			if !utf8.FullRune(b[len(b)-i:]) {
				return b[:len(b)-i]
			}

			break
		}
	}

	return b
}

// flattenHeaders joins multi-valued headers with ", ".
func flattenHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k, v := range h {
		out[k] = strings.Join(v, ", ")
	}

	return out
}

// isRetryableStatus reports temporary failures worth another attempt.
func isRetryableStatus(statusCode int) bool {
	switch statusCode {
	case http.StatusServiceUnavailable, // 503
		http.StatusGatewayTimeout,  // 504
		http.StatusTooManyRequests, // 429
		http.StatusRequestTimeout:  // 408
		return true
	}

	return false
}

// Package domaininfo looks up registration data for the domain behind a URL.
package domaininfo

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/likexian/whois"
	whoisparser "github.com/likexian/whois-parser"
	"golang.org/x/net/publicsuffix"

	"urlsentry/internal/features"
	"urlsentry/internal/logger"
)

// Lookup errors.
var (
	ErrInvalidHost = errors.New("url has no usable host")
	ErrIPAddress   = errors.New("ip addresses have no registration record")
	ErrLookup      = errors.New("whois lookup failed")
	ErrNoRecord    = errors.New("no registration record")
)

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"02-Jan-2006",
	"2006.01.02",
	"2006/01/02",
}

// QueryFunc returns the raw WHOIS response for domain.
type QueryFunc func(ctx context.Context, domain string) (string, error)

// ParseFunc extracts structured data from a raw WHOIS response.
type ParseFunc func(raw string) (whoisparser.WhoisInfo, error)

// Info is the registration summary of a domain.
type Info struct {
	Domain    string     `json:"domain"`
	Registrar string     `json:"registrar,omitempty"`
	CreatedOn *time.Time `json:"created_on,omitempty"`
	UpdatedOn *time.Time `json:"updated_on,omitempty"`
	ExpiresOn *time.Time `json:"expires_on,omitempty"`
	AgeDays   int        `json:"age_days"`
}

// Service performs lookups. It is safe for concurrent use.
type Service struct {
	query QueryFunc
	parse ParseFunc
	now   func() time.Time
	log   *logger.Logger
}

// New creates a service querying public WHOIS servers with the given timeout.
func New(timeout time.Duration, log *logger.Logger) *Service {
	client := whois.NewClient().SetTimeout(timeout)

	query := func(ctx context.Context, domain string) (string, error) {
		type result struct {
			raw string
			err error
		}

		done := make(chan result, 1)

		// an abandoned query keeps running until the client timeout ends it
		go func() {
			raw, err := client.Whois(domain)
			done <- result{raw, err}
		}()

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case r := <-done:
			return r.raw, r.err
		}
	}

	return NewWithFuncs(query, whoisparser.Parse, log)
}

// NewWithFuncs creates a service with custom query and parse steps.
func NewWithFuncs(query QueryFunc, parse ParseFunc, log *logger.Logger) *Service {
	return &Service{
		query: query,
		parse: parse,
		now:   time.Now,
		log:   logger.OrDiscard(log),
	}
}

// RegistrableDomain returns the public-suffix-plus-one domain of rawURL's host.
func RegistrableDomain(rawURL string) (string, error) {
	if err := features.CheckURL(rawURL); err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidHost, err)
	}

	host := strings.TrimSuffix(features.SplitURL(rawURL).Hostname(), ".")
	if host == "" {
		return "", ErrInvalidHost
	}

	if net.ParseIP(host) != nil {
		return "", fmt.Errorf("%w: %s", ErrIPAddress, host)
	}

	domain, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidHost, err)
	}

	return domain, nil
}

// Lookup resolves rawURL to its registrable domain and fetches its registration dates.
func (s *Service) Lookup(ctx context.Context, rawURL string) (Info, error) {
	domain, err := RegistrableDomain(rawURL)
	if err != nil {
		return Info{}, err
	}

	raw, err := s.query(ctx, domain)
	if err != nil {
		return Info{}, fmt.Errorf("%w: %s: %w", ErrLookup, domain, err)
	}

	parsed, err := s.parse(raw)
	if err != nil {
		return Info{}, fmt.Errorf("%w: %s: %w", ErrNoRecord, domain, err)
	}

	if parsed.Domain == nil {
		return Info{}, fmt.Errorf("%w: %s", ErrNoRecord, domain)
	}

	info := Info{
		Domain:    domain,
		CreatedOn: parseDate(parsed.Domain.CreatedDate),
		UpdatedOn: parseDate(parsed.Domain.UpdatedDate),
		ExpiresOn: parseDate(parsed.Domain.ExpirationDate),
	}

	if parsed.Registrar != nil {
		info.Registrar = parsed.Registrar.Name
	}

	if info.CreatedOn != nil {
		info.AgeDays = int(s.now().Sub(*info.CreatedOn).Hours() / 24)
	} else {
		s.log.Debug("WHOIS record has no parsable creation date", "domain", domain, "raw_created", parsed.Domain.CreatedDate)
	}

	return info, nil
}

func parseDate(value string) *time.Time {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}

	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			t = t.UTC()
			return &t
		}
	}

	return nil
}

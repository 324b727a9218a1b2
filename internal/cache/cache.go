// Package cache persists fetched page content keyed by URL digest so that repeated
// extraction runs do not hit the network twice for the same URL.
package cache

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"urlsentry/internal/fetch"
	"urlsentry/internal/logger"
)

// Entry is one cached HTTP response.
type Entry struct {
	StatusCode int               `json:"status_code"`
	Content    string            `json:"content"`
	Headers    map[string]string `json:"headers"`
}

// Digest returns the cache key for url: the hex MD5 of its UTF-8 bytes.
func Digest(url string) string {
	sum := md5.Sum([]byte(url))

	return hex.EncodeToString(sum[:])
}

// Stats reports cache activity since construction.
type Stats struct {
	Hits        int64
	Misses      int64
	Corrupt     int64
	FetchErrors int64
	StoreErrors int64
}

// ContentCache serves page content from a Store, fetching and persisting on miss.
// Concurrent misses for the same URL share a single fetch.
type ContentCache struct {
	store   Store
	fetcher fetch.Fetcher
	group   singleflight.Group
	log     *logger.Logger

	hits        atomic.Int64
	misses      atomic.Int64
	corrupt     atomic.Int64
	fetchErrors atomic.Int64
	storeErrors atomic.Int64
}

// New creates a content cache over store using fetcher for misses.
func New(store Store, fetcher fetch.Fetcher, log *logger.Logger) *ContentCache {
	return &ContentCache{
		store:   store,
		fetcher: fetcher,
		log:     logger.OrDiscard(log),
	}
}

// GetOrFetch returns the cached entry for url, or fetches, stores and returns it.
// A fetch failure returns an error wrapping fetch.ErrFetch and stores nothing.
func (c *ContentCache) GetOrFetch(ctx context.Context, url string) (*Entry, error) {
	key := Digest(url)

	if entry, ok := c.lookup(ctx, key, url); ok {
		return entry, nil
	}

	// the shared fill outlives any single caller; the fetch timeout bounds it
	fillCtx := context.WithoutCancel(ctx)

	ch := c.group.DoChan(key, func() (any, error) {
		return c.fill(fillCtx, key, url)
	})

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %s: %w", fetch.ErrFetch, url, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}

		return res.Val.(*Entry), nil
	}
}

func (c *ContentCache) lookup(ctx context.Context, key, url string) (*Entry, bool) {
	data, err := c.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			c.log.Warn("Cache read failed, refetching", "url", url, "err", err)
		}

		return nil, false
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		c.corrupt.Add(1)
		c.log.Warn("Corrupt cache record, refetching", "url", url, "key", key, "err", err)

		return nil, false
	}

	c.hits.Add(1)

	return &entry, true
}

func (c *ContentCache) fill(ctx context.Context, key, url string) (*Entry, error) {
	// a caller that missed just before a concurrent fill finished finds the record here
	if entry, ok := c.lookup(ctx, key, url); ok {
		return entry, nil
	}

	c.misses.Add(1)

	resp, err := c.fetcher.Fetch(ctx, url)
	if err != nil {
		c.fetchErrors.Add(1)
		return nil, err
	}

	entry := &Entry{
		StatusCode: resp.StatusCode,
		Content:    resp.Body,
		Headers:    resp.Headers,
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return nil, fmt.Errorf("failed to encode cache record: %w", err)
	}

	if err := c.store.Put(ctx, key, data); err != nil {
		c.storeErrors.Add(1)
		c.log.Warn("Cache write failed", "url", url, "key", key, "err", err)
	}

	return entry, nil
}

// Stats returns a snapshot of the counters.
func (c *ContentCache) Stats() Stats {
	return Stats{
		Hits:        c.hits.Load(),
		Misses:      c.misses.Load(),
		Corrupt:     c.corrupt.Load(),
		FetchErrors: c.fetchErrors.Load(),
		StoreErrors: c.storeErrors.Load(),
	}
}

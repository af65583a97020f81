package resolver

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"stageflow/pkg/backend"
	"stageflow/pkg/logx"
	"stageflow/pkg/model"
)

type cacheEntry struct {
	bundle    model.Bundle
	fetchedAt time.Time
}

// BundleCache keeps one configuration bundle per project for a bounded staleness window.
// Fetches are read-only, so transient failures are retried with exponential backoff.
type BundleCache struct {
	source     backend.ConfigSource
	ttl        time.Duration
	maxElapsed time.Duration
	now        func() time.Time
	logger     *logx.Logger

	mu      sync.Mutex
	entries map[string]cacheEntry
}

// NewBundleCache creates a cache over source. maxElapsed bounds the total retry time of a
// single fetch; zero disables retries.
func NewBundleCache(source backend.ConfigSource, ttl, maxElapsed time.Duration) *BundleCache {
	return &BundleCache{
		source:     source,
		ttl:        ttl,
		maxElapsed: maxElapsed,
		now:        time.Now,
		logger:     logx.NewLogger("bundle-cache"),
		entries:    make(map[string]cacheEntry),
	}
}

// Get returns the cached bundle for projectID, fetching it when missing or stale.
func (c *BundleCache) Get(ctx context.Context, projectID string) (model.Bundle, error) {
	c.mu.Lock()
	entry, ok := c.entries[projectID]
	c.mu.Unlock()
	if ok && c.now().Sub(entry.fetchedAt) < c.ttl {
		return entry.bundle, nil
	}

	bundle, err := c.fetch(ctx, projectID)
	if err != nil {
		return model.Bundle{}, fmt.Errorf("failed to fetch configuration for project %s: %w", projectID, err)
	}

	fetchedAt := c.now()
	if bundle.FetchedAt.IsZero() {
		bundle.FetchedAt = fetchedAt
	}
	c.mu.Lock()
	c.entries[projectID] = cacheEntry{bundle: bundle, fetchedAt: fetchedAt}
	c.mu.Unlock()
	return bundle, nil
}

// Invalidate drops the cached bundle for projectID.
func (c *BundleCache) Invalidate(projectID string) {
	c.mu.Lock()
	delete(c.entries, projectID)
	c.mu.Unlock()
}

func (c *BundleCache) newBackoff() backoff.BackOff {
	if c.maxElapsed <= 0 {
		return &backoff.StopBackOff{}
	}
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 200 * time.Millisecond
	bo.MaxElapsedTime = c.maxElapsed
	return bo
}

func (c *BundleCache) fetch(ctx context.Context, projectID string) (model.Bundle, error) {
	var bundle model.Bundle
	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		b, err := c.source.FetchBundle(ctx, projectID)
		if err == nil {
			bundle = b
			return nil
		}
		if !backend.IsTransient(err) {
			return backoff.Permanent(err)
		}
		c.logger.Warn("configuration fetch for %s failed (attempt %d), retrying: %v", projectID, attempt, err)
		return err
	}, backoff.WithContext(c.newBackoff(), ctx))
	return bundle, err
}

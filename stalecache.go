package httpcache

import (
	"context"
	"time"
)

// StaleAwareCache wraps a CacheStore to add explicit stale marking on top of
// a backend that has no native concept of it. Most of httpcache's own
// staleness handling (stale-while-revalidate, stale-if-error) is driven
// entirely by response headers and needs no backend support at all; this
// wrapper is for callers who want a queryable "is this entry stale" bit
// alongside the cached bytes, e.g. to drive an external dashboard or a
// prewarmer that prioritizes stale keys.
type StaleAwareCache struct {
	cache       CacheStore
	staleMarker CacheStore
}

// NewStaleAwareCache wraps cache to add stale marking support, tracked in a
// separate staleMarker store. staleMarker must not be nil.
func NewStaleAwareCache(cache CacheStore, staleMarker CacheStore) *StaleAwareCache {
	return &StaleAwareCache{
		cache:       cache,
		staleMarker: staleMarker,
	}
}

// Get returns the response corresponding to key if present.
func (s *StaleAwareCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	return s.cache.Get(ctx, key)
}

// Set saves a response to the cache as key, clearing any stale marker.
func (s *StaleAwareCache) Set(ctx context.Context, key string, value []byte, expires time.Duration) error {
	_ = s.staleMarker.Delete(ctx, key) //nolint:errcheck // best effort
	return s.cache.Set(ctx, key, value, expires)
}

// Delete removes the value associated with the key from both caches.
func (s *StaleAwareCache) Delete(ctx context.Context, key string) error {
	_ = s.staleMarker.Delete(ctx, key) //nolint:errcheck // best effort
	return s.cache.Delete(ctx, key)
}

// Close closes both the backing cache and the stale marker store.
func (s *StaleAwareCache) Close() error {
	if err := s.staleMarker.Close(); err != nil {
		return err
	}
	return s.cache.Close()
}

// MarkStale marks a cached response as stale instead of deleting it.
func (s *StaleAwareCache) MarkStale(ctx context.Context, key string) error {
	_, exists, err := s.cache.Get(ctx, key)
	if err != nil || !exists {
		return err
	}
	return s.staleMarker.Set(ctx, key, []byte("1"), 0)
}

// IsStale checks if a cached response has been marked as stale.
func (s *StaleAwareCache) IsStale(ctx context.Context, key string) (bool, error) {
	_, exists, err := s.staleMarker.Get(ctx, key)
	if err != nil {
		return false, err
	}
	return exists, nil
}

// GetStale retrieves a stale cached response if it exists.
func (s *StaleAwareCache) GetStale(ctx context.Context, key string) ([]byte, bool, error) {
	isStale, err := s.IsStale(ctx, key)
	if err != nil {
		return nil, false, err
	}
	if !isStale {
		return nil, false, nil
	}
	return s.cache.Get(ctx, key)
}

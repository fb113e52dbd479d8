package test

import (
	"bytes"
	"context"
	"testing"

	"github.com/privatecache/httpcache"
)

// Cache excercises a httpcache.CacheStore implementation.
func Cache(t *testing.T, cache httpcache.CacheStore) {
	ctx := context.Background()
	key := "testKey"
	_, ok, err := cache.Get(ctx, key)
	if err != nil {
		t.Fatalf("error getting key: %v", err)
	}
	if ok {
		t.Fatal("retrieved key before adding it")
	}

	val := []byte("some bytes")
	if err := cache.Set(ctx, key, val, 0); err != nil {
		t.Fatalf("error setting key: %v", err)
	}

	retVal, ok, err := cache.Get(ctx, key)
	if err != nil {
		t.Fatalf("error getting key: %v", err)
	}
	if !ok {
		t.Fatal("could not retrieve an element we just added")
	}
	if !bytes.Equal(retVal, val) {
		t.Fatal("retrieved a different value than what we put in")
	}

	if err := cache.Delete(ctx, key); err != nil {
		t.Fatalf("error deleting key: %v", err)
	}

	_, ok, err = cache.Get(ctx, key)
	if err != nil {
		t.Fatalf("error getting key: %v", err)
	}
	if ok {
		t.Fatal("deleted key still present")
	}
}

// CacheStale exercises a backend's native MarkStale/IsStale/GetStale
// support, for backends that track staleness themselves rather than relying
// on the separate StaleAwareCache wrapper. cache's dynamic type must
// implement those three methods in addition to httpcache.CacheStore.
func CacheStale(t *testing.T, cache httpcache.CacheStore) {
	sc, ok := cache.(interface {
		MarkStale(ctx context.Context, key string) error
		IsStale(ctx context.Context, key string) (bool, error)
		GetStale(ctx context.Context, key string) ([]byte, bool, error)
	})
	if !ok {
		t.Fatalf("%T does not implement MarkStale/IsStale/GetStale", cache)
	}

	ctx := context.Background()
	key := "staleTestKey"
	val := []byte("some bytes")

	if err := cache.Set(ctx, key, val, 0); err != nil {
		t.Fatalf("error setting key: %v", err)
	}

	if isStale, err := sc.IsStale(ctx, key); err != nil {
		t.Fatalf("error checking stale status: %v", err)
	} else if isStale {
		t.Fatal("freshly set key should not be stale")
	}

	if err := sc.MarkStale(ctx, key); err != nil {
		t.Fatalf("error marking key stale: %v", err)
	}

	isStale, err := sc.IsStale(ctx, key)
	if err != nil {
		t.Fatalf("error checking stale status: %v", err)
	}
	if !isStale {
		t.Fatal("marked key should be stale")
	}

	staleVal, ok2, err := sc.GetStale(ctx, key)
	if err != nil {
		t.Fatalf("error getting stale value: %v", err)
	}
	if !ok2 {
		t.Fatal("expected to retrieve stale value")
	}
	if !bytes.Equal(staleVal, val) {
		t.Fatal("stale value did not match what was set")
	}

	// Setting again should clear the stale marker.
	if err := cache.Set(ctx, key, val, 0); err != nil {
		t.Fatalf("error re-setting key: %v", err)
	}
	if isStale, err := sc.IsStale(ctx, key); err != nil {
		t.Fatalf("error checking stale status after re-set: %v", err)
	} else if isStale {
		t.Fatal("re-set key should clear stale marker")
	}
}

package httpcache

import (
	"context"
	"testing"
)

func BenchmarkMemoryCacheGet(b *testing.B) {
	ctx := context.Background()
	cache := NewMemoryCache()
	value := make([]byte, 1024) // 1KB value
	_ = cache.Set(ctx, benchmarkKey, value, 0)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _, _ = cache.Get(ctx, benchmarkKey)
	}
}

func BenchmarkMemoryCacheSet(b *testing.B) {
	ctx := context.Background()
	cache := NewMemoryCache()
	value := make([]byte, 1024) // 1KB value

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = cache.Set(ctx, benchmarkKey, value, 0)
	}
}

func BenchmarkMemoryCacheDelete(b *testing.B) {
	ctx := context.Background()
	cache := NewMemoryCache()
	value := make([]byte, 1024)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		key := string(rune('a' + i%26))
		_ = cache.Set(ctx, key, value, 0)
		_ = cache.Delete(ctx, key)
	}
}

func BenchmarkMemoryCacheSetGet(b *testing.B) {
	ctx := context.Background()
	cache := NewMemoryCache()
	value := make([]byte, 1024)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = cache.Set(ctx, benchmarkKey, value, 0)
		_, _, _ = cache.Get(ctx, benchmarkKey)
	}
}

func BenchmarkMemoryCacheParallelGet(b *testing.B) {
	ctx := context.Background()
	cache := NewMemoryCache()
	value := make([]byte, 1024)

	// Pre-populate cache
	for i := 0; i < 26; i++ {
		key := string(rune('a' + i))
		_ = cache.Set(ctx, key, value, 0)
	}

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			key := string(rune('a' + i%26))
			_, _, _ = cache.Get(ctx, key)
			i++
		}
	})
}

func BenchmarkMemoryCacheParallelSet(b *testing.B) {
	ctx := context.Background()
	cache := NewMemoryCache()
	value := make([]byte, 1024)

	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			key := string(rune('a' + i%26))
			_ = cache.Set(ctx, key, value, 0)
			i++
		}
	})
}

// Benchmark with realistic HTTP response sizes
func BenchmarkMemoryCacheSetHTTPResponse(b *testing.B) {
	ctx := context.Background()
	cache := NewMemoryCache()
	// Typical HTTP response with headers: ~2KB
	value := make([]byte, 2048)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		key := string(rune('a' + i%100))
		_ = cache.Set(ctx, key, value, 0)
	}
}

func BenchmarkMemoryCacheGetHTTPResponse(b *testing.B) {
	ctx := context.Background()
	cache := NewMemoryCache()
	value := make([]byte, 2048)

	// Pre-populate with 100 entries
	for i := 0; i < 100; i++ {
		key := string(rune('a' + i))
		_ = cache.Set(ctx, key, value, 0)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		key := string(rune('a' + i%100))
		_, _, _ = cache.Get(ctx, key)
	}
}

// Benchmark with large responses
func BenchmarkMemoryCacheSetLargeResponse(b *testing.B) {
	ctx := context.Background()
	cache := NewMemoryCache()
	// Large response: 100KB
	value := make([]byte, 100*1024)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		key := string(rune('a' + i%50))
		_ = cache.Set(ctx, key, value, 0)
	}
}

func BenchmarkMemoryCacheGetLargeResponse(b *testing.B) {
	ctx := context.Background()
	cache := NewMemoryCache()
	value := make([]byte, 100*1024)

	// Pre-populate with 50 entries
	for i := 0; i < 50; i++ {
		key := string(rune('a' + i))
		_ = cache.Set(ctx, key, value, 0)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		key := string(rune('a' + i%50))
		_, _, _ = cache.Get(ctx, key)
	}
}

// Benchmark mixed operations
func BenchmarkMemoryCacheMixedOperations(b *testing.B) {
	ctx := context.Background()
	cache := NewMemoryCache()
	value := make([]byte, 1024)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		key := string(rune('a' + i%100))
		switch i % 3 {
		case 0:
			_ = cache.Set(ctx, key, value, 0)
		case 1:
			_, _, _ = cache.Get(ctx, key)
		case 2:
			_ = cache.Delete(ctx, key)
		}
	}
}

// Benchmark concurrent mixed operations
func BenchmarkMemoryCacheParallelMixed(b *testing.B) {
	ctx := context.Background()
	cache := NewMemoryCache()
	value := make([]byte, 1024)

	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			key := string(rune('a' + i%100))
			switch i % 3 {
			case 0:
				_ = cache.Set(ctx, key, value, 0)
			case 1:
				_, _, _ = cache.Get(ctx, key)
			case 2:
				_ = cache.Delete(ctx, key)
			}
			i++
		}
	})
}

// Package redis provides a Redis-backed httpcache.CacheStore using go-redis/v9.
package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/privatecache/httpcache"
)

// Config holds the configuration for creating a Redis cache.
type Config struct {
	// Address is the Redis server address (e.g., "localhost:6379").
	// Required field.
	Address string

	// Password is the Redis password for authentication.
	// Optional - leave empty if no authentication is required.
	Password string

	// DB is the Redis database number to use.
	// Optional - defaults to 0.
	DB int

	// PoolSize is the maximum number of socket connections in the pool.
	// Optional - defaults to 10.
	PoolSize int

	// DialTimeout is the timeout for connecting to Redis.
	// Optional - defaults to 5 seconds.
	DialTimeout time.Duration

	// ReadTimeout is the timeout for reading from Redis.
	// Optional - defaults to 5 seconds.
	ReadTimeout time.Duration

	// WriteTimeout is the timeout for writing to Redis.
	// Optional - defaults to 5 seconds.
	WriteTimeout time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		DB:           0,
		PoolSize:     10,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}
}

// cache is an implementation of httpcache.CacheStore that caches responses
// in a Redis server.
type cache struct {
	client *goredis.Client
}

// cacheKey prefixes an httpcache key to avoid collision with other data
// stored in the same Redis keyspace.
func cacheKey(key string) string {
	return "rediscache:" + key
}

// Get returns the response corresponding to key if present.
func (c cache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	item, err := c.client.Get(ctx, cacheKey(key)).Bytes()
	if err != nil {
		if err == goredis.Nil {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("redis cache get failed for key %q: %w", key, err)
	}
	return item, true, nil
}

// Set saves a response to the cache as key. A zero expires stores the
// value without an expiration, matching Redis SET with no EX option.
func (c cache) Set(ctx context.Context, key string, value []byte, expires time.Duration) error {
	if err := c.client.Set(ctx, cacheKey(key), value, expires).Err(); err != nil {
		return fmt.Errorf("redis cache set failed for key %q: %w", key, err)
	}
	return nil
}

// Delete removes the response with key from the cache.
func (c cache) Delete(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, cacheKey(key)).Err(); err != nil {
		return fmt.Errorf("redis cache delete failed for key %q: %w", key, err)
	}
	return nil
}

// Close closes the underlying client and its connection pool.
func (c cache) Close() error {
	return c.client.Close()
}

// New creates a new CacheStore with the given configuration, verifying
// connectivity with a PING before returning.
func New(ctx context.Context, config Config) (httpcache.CacheStore, error) {
	if config.Address == "" {
		return nil, fmt.Errorf("redis address is required")
	}
	def := DefaultConfig()
	if config.PoolSize == 0 {
		config.PoolSize = def.PoolSize
	}
	if config.DialTimeout == 0 {
		config.DialTimeout = def.DialTimeout
	}
	if config.ReadTimeout == 0 {
		config.ReadTimeout = def.ReadTimeout
	}
	if config.WriteTimeout == 0 {
		config.WriteTimeout = def.WriteTimeout
	}

	client := goredis.NewClient(&goredis.Options{
		Addr:         config.Address,
		Password:     config.Password,
		DB:           config.DB,
		PoolSize:     config.PoolSize,
		DialTimeout:  config.DialTimeout,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return cache{client: client}, nil
}

// NewWithClient returns a new CacheStore wrapping an already-configured
// go-redis client. Useful when the caller needs cluster/sentinel modes or
// shares a client across multiple subsystems.
func NewWithClient(client *goredis.Client) httpcache.CacheStore {
	return cache{client: client}
}

// Package mongodb provides a MongoDB interface for http caching.
package mongodb

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/privatecache/httpcache"
)

// Config holds the configuration for creating a MongoDB cache.
type Config struct {
	// URI is the MongoDB connection URI (e.g., "mongodb://localhost:27017").
	// Required field.
	URI string

	// Database is the name of the database to use for caching.
	// Required field.
	Database string

	// Collection is the name of the collection to use for caching.
	// Optional - defaults to "httpcache".
	Collection string

	// KeyPrefix is a prefix to add to all cache keys.
	// Optional - defaults to "cache:".
	KeyPrefix string

	// Timeout is the timeout for database operations.
	// Optional - defaults to 5 seconds.
	Timeout time.Duration

	// ClientOptions are additional options to pass to mongo.Connect.
	// Optional.
	ClientOptions *options.ClientOptions
}

// cacheEntry represents a cache entry in MongoDB. ExpiresAt is nil for
// entries with no expiration and is otherwise swept by a TTL index with
// expireAfterSeconds=0 (expire at the stored instant, not a fixed offset).
type cacheEntry struct {
	Key       string     `bson:"_id"`
	Data      []byte     `bson:"data"`
	CreatedAt time.Time  `bson:"createdAt"`
	ExpiresAt *time.Time `bson:"expiresAt,omitempty"`
}

// cache is an implementation of httpcache.CacheStore that caches responses in MongoDB.
type cache struct {
	client     *mongo.Client
	collection *mongo.Collection
	keyPrefix  string
	timeout    time.Duration
}

// cacheKey adds the configured prefix to the key.
func (c cache) cacheKey(key string) string {
	return c.keyPrefix + key
}

func (c cache) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, c.timeout)
}

// Get returns the response corresponding to key if present.
func (c cache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	opCtx, cancel := c.withTimeout(ctx)
	defer cancel()

	var entry cacheEntry
	err := c.collection.FindOne(opCtx, bson.M{"_id": c.cacheKey(key)}).Decode(&entry)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("mongodb cache get failed for key %q: %w", key, err)
	}
	return entry.Data, true, nil
}

// Set saves a response to the cache as key. expires, when positive, sets
// ExpiresAt for the collection's TTL index to sweep; zero stores the entry
// with no expiration.
func (c cache) Set(ctx context.Context, key string, value []byte, expires time.Duration) error {
	opCtx, cancel := c.withTimeout(ctx)
	defer cancel()

	entry := cacheEntry{
		Key:       c.cacheKey(key),
		Data:      value,
		CreatedAt: time.Now(),
	}
	if expires > 0 {
		deadline := time.Now().Add(expires)
		entry.ExpiresAt = &deadline
	}

	opts := options.Replace().SetUpsert(true)
	_, err := c.collection.ReplaceOne(opCtx, bson.M{"_id": entry.Key}, entry, opts)
	if err != nil {
		return fmt.Errorf("mongodb cache set failed for key %q: %w", key, err)
	}
	return nil
}

// Delete removes the response with key from the cache.
func (c cache) Delete(ctx context.Context, key string) error {
	opCtx, cancel := c.withTimeout(ctx)
	defer cancel()

	_, err := c.collection.DeleteOne(opCtx, bson.M{"_id": c.cacheKey(key)})
	if err != nil {
		return fmt.Errorf("mongodb cache delete failed for key %q: %w", key, err)
	}
	return nil
}

// Close disconnects from MongoDB, unless this cache was built with
// NewWithClient (in which case the caller owns the client's lifecycle).
func (c cache) Close() error {
	if c.client != nil {
		ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
		defer cancel()
		return c.client.Disconnect(ctx)
	}
	return nil
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Collection: "httpcache",
		KeyPrefix:  "cache:",
		Timeout:    5 * time.Second,
	}
}

// New creates a new CacheStore with the given configuration. It establishes
// a connection to MongoDB and ensures the expiresAt TTL index exists. The
// caller should call Close() on the returned cache when done.
func New(ctx context.Context, config Config) (httpcache.CacheStore, error) {
	if config.URI == "" {
		return nil, fmt.Errorf("MongoDB URI is required")
	}
	if config.Database == "" {
		return nil, fmt.Errorf("database name is required")
	}

	def := DefaultConfig()
	if config.Collection == "" {
		config.Collection = def.Collection
	}
	if config.KeyPrefix == "" {
		config.KeyPrefix = def.KeyPrefix
	}
	if config.Timeout == 0 {
		config.Timeout = def.Timeout
	}

	clientOpts := options.Client().ApplyURI(config.URI)
	if config.ClientOptions != nil {
		clientOpts = config.ClientOptions.ApplyURI(config.URI)
	}

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	pingCtx, pingCancel := context.WithTimeout(ctx, config.Timeout)
	defer pingCancel()

	if err := client.Ping(pingCtx, nil); err != nil {
		if disconnectErr := client.Disconnect(ctx); disconnectErr != nil {
			httpcache.GetLogger().Warn("failed to disconnect client after ping error", "error", disconnectErr)
		}
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	collection := client.Database(config.Database).Collection(config.Collection)

	c := cache{
		client:     client,
		collection: collection,
		keyPrefix:  config.KeyPrefix,
		timeout:    config.Timeout,
	}

	if err := c.createTTLIndex(ctx); err != nil {
		if disconnectErr := client.Disconnect(ctx); disconnectErr != nil {
			httpcache.GetLogger().Warn("failed to disconnect client after TTL index error", "error", disconnectErr)
		}
		return nil, fmt.Errorf("failed to create TTL index: %w", err)
	}

	return c, nil
}

// NewWithClient returns a new CacheStore with the given MongoDB client.
// This constructor is useful when you want to manage the MongoDB connection
// yourself. The returned cache will not close the MongoDB client when
// Close() is called.
func NewWithClient(client *mongo.Client, database, collection string, config Config) (httpcache.CacheStore, error) {
	if client == nil {
		return nil, fmt.Errorf("MongoDB client is required")
	}
	if database == "" {
		return nil, fmt.Errorf("database name is required")
	}

	if collection == "" {
		collection = DefaultConfig().Collection
	}
	if config.KeyPrefix == "" {
		config.KeyPrefix = DefaultConfig().KeyPrefix
	}
	if config.Timeout == 0 {
		config.Timeout = DefaultConfig().Timeout
	}

	return cache{
		client:     nil, // Don't store client to prevent closing it
		collection: client.Database(database).Collection(collection),
		keyPrefix:  config.KeyPrefix,
		timeout:    config.Timeout,
	}, nil
}

// createTTLIndex creates a TTL index on expiresAt that expires a document
// at the instant stored in the field, rather than a fixed offset from
// insertion, so each Set can carry its own TTL.
func (c cache) createTTLIndex(ctx context.Context) error {
	indexModel := mongo.IndexModel{
		Keys: bson.D{{Key: "expiresAt", Value: 1}},
		Options: options.Index().
			SetExpireAfterSeconds(0).
			SetName("httpcache_ttl"),
	}

	indexCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	_, err := c.collection.Indexes().CreateOne(indexCtx, indexModel)
	return err
}

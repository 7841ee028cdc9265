package cache

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// Trip summary cache keys
const (
	TripSummaryKeyFmt = "ledger:trip:%d:summary"
	TripSummaryTTL    = 2 * time.Minute
)

var client *redis.Client

// RedisOptions mirrors the redis section of the config.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
}

// Init initializes the Redis connection. On failure the client stays nil and
// every cache function degrades to a miss.
func Init(opts RedisOptions) error {
	if opts.Addr == "" {
		return fmt.Errorf("redis address not configured")
	}
	client = redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		client = nil
		return err
	}
	log.Printf("[Redis] connected to %s", opts.Addr)
	return nil
}

// GetClient returns the Redis client, or nil when Redis is unavailable.
func GetClient() *redis.Client {
	return client
}

// Close releases the client.
func Close() {
	if client == nil {
		return
	}
	client.Close()
	client = nil
}

// Healthy pings Redis. It reports false when Redis is not configured.
func Healthy(ctx context.Context) bool {
	if client == nil {
		return false
	}
	return client.Ping(ctx).Err() == nil
}

// ============================================
// Trip summary cache
// ============================================

// GetCachedTripSummary returns the cached summary JSON of a trip
func GetCachedTripSummary(ctx context.Context, tripID int64) ([]byte, bool) {
	return GetCached(ctx, fmt.Sprintf(TripSummaryKeyFmt, tripID))
}

// CacheTripSummary caches a trip summary for TripSummaryTTL
func CacheTripSummary(ctx context.Context, tripID int64, data []byte) {
	SetCached(ctx, fmt.Sprintf(TripSummaryKeyFmt, tripID), data, TripSummaryTTL)
}

// InvalidateTripSummaries drops the cached summaries of the given trips, or of
// every trip when none are given.
func InvalidateTripSummaries(ctx context.Context, tripIDs ...int64) {
	if client == nil {
		return
	}
	if len(tripIDs) == 0 {
		InvalidatePattern(ctx, "ledger:trip:*:summary")
		return
	}
	keys := make([]string, 0, len(tripIDs))
	for _, id := range tripIDs {
		keys = append(keys, fmt.Sprintf(TripSummaryKeyFmt, id))
	}
	InvalidateKeys(ctx, keys...)
}

// ============================================
// Generic Cache Functions
// ============================================

// GetCached returns cached data for a key
func GetCached(ctx context.Context, key string) ([]byte, bool) {
	if client == nil {
		return nil, false
	}
	data, err := client.Get(ctx, key).Bytes()
	if err != nil {
		return nil, false
	}
	return data, true
}

// SetCached stores data with a TTL
func SetCached(ctx context.Context, key string, data []byte, ttl time.Duration) {
	if client == nil {
		return
	}
	client.Set(ctx, key, data, ttl)
}

// InvalidatePattern removes all keys matching a glob pattern
func InvalidatePattern(ctx context.Context, pattern string) {
	if client == nil {
		return
	}
	keys, err := client.Keys(ctx, pattern).Result()
	if err == nil && len(keys) > 0 {
		client.Del(ctx, keys...)
	}
}

// InvalidateKeys removes specific cache keys
func InvalidateKeys(ctx context.Context, keys ...string) {
	if client == nil || len(keys) == 0 {
		return
	}
	client.Del(ctx, keys...)
}

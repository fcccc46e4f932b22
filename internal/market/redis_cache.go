package market

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// RedisPriceCache keeps one Redis list per symbol and day. Each Put appends
// an entry; Get reads the tail so the last write wins.
type RedisPriceCache struct {
	client *redis.Client
	ttl    time.Duration
	now    func() time.Time
}

// PriceCacheEntry is one cached price as stored in Redis.
type PriceCacheEntry struct {
	Symbol    string    `json:"symbol"`
	Day       string    `json:"day"`
	Price     float64   `json:"price"`
	Timestamp time.Time `json:"timestamp"`
}

// NewRedisPriceCache creates a Redis-backed price cache.
// If client is nil, returns nil (optional Redis support)
func NewRedisPriceCache(client *redis.Client, ttl time.Duration) *RedisPriceCache {
	if client == nil {
		return nil
	}

	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}

	return &RedisPriceCache{
		client: client,
		ttl:    ttl,
		now:    time.Now,
	}
}

// Get returns the most recent price stored for symbol on day.
func (c *RedisPriceCache) Get(ctx context.Context, symbol, day string) (float64, bool, error) {
	if c == nil || c.client == nil {
		return 0, false, fmt.Errorf("cache not initialized")
	}

	key := c.buildKey(symbol, day)

	// Use a short timeout for cache operations to prevent blocking
	cacheCtx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()

	raw, err := c.client.LIndex(cacheCtx, key, -1).Result()
	if err == redis.Nil {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("redis lindex %s: %w", key, err)
	}

	var entry PriceCacheEntry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		log.Warn().
			Err(err).
			Str("key", key).
			Msg("Failed to unmarshal cached price")
		return 0, false, nil
	}

	if c.now().Sub(entry.Timestamp) > c.ttl {
		return 0, false, nil
	}

	log.Debug().
		Str("symbol", symbol).
		Float64("price", entry.Price).
		Time("cached_at", entry.Timestamp).
		Msg("Cache hit for price")

	return entry.Price, true, nil
}

// Put appends a price for symbol on day and refreshes the key expiry.
func (c *RedisPriceCache) Put(ctx context.Context, symbol, day string, price float64) error {
	if c == nil || c.client == nil {
		return fmt.Errorf("cache not initialized")
	}

	key := c.buildKey(symbol, day)

	data, err := json.Marshal(PriceCacheEntry{
		Symbol:    symbol,
		Day:       day,
		Price:     price,
		Timestamp: c.now(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal price entry: %w", err)
	}

	cacheCtx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()

	pipe := c.client.TxPipeline()
	pipe.RPush(cacheCtx, key, data)
	pipe.Expire(cacheCtx, key, c.ttl)
	if _, err := pipe.Exec(cacheCtx); err != nil {
		return fmt.Errorf("redis rpush %s: %w", key, err)
	}

	log.Debug().
		Str("symbol", symbol).
		Float64("price", price).
		Dur("ttl", c.ttl).
		Msg("Cached price")

	return nil
}

// Health checks if the Redis connection is healthy
func (c *RedisPriceCache) Health(ctx context.Context) error {
	if c == nil || c.client == nil {
		return fmt.Errorf("cache not initialized")
	}

	cacheCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := c.client.Ping(cacheCtx).Err(); err != nil {
		return fmt.Errorf("redis health check failed: %w", err)
	}

	return nil
}

func (c *RedisPriceCache) buildKey(symbol, day string) string {
	return fmt.Sprintf("jagent:price:%s:%s", symbol, day)
}

package market

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// DefaultCacheTTL applies when a cache is built with a zero TTL.
const DefaultCacheTTL = time.Hour

// PriceCache stores prices keyed by symbol and calendar day. Writes are
// append-only and may repeat a key; reads return the most recent entry and
// treat it as a miss once it is older than the cache TTL.
type PriceCache interface {
	Get(ctx context.Context, symbol, day string) (float64, bool, error)
	Put(ctx context.Context, symbol, day string, price float64) error
}

// Pruner is implemented by caches that can drop expired entries.
type Pruner interface {
	Prune(ctx context.Context) (int, error)
}

type cacheEntry struct {
	price    float64
	storedAt time.Time
}

// MemoryPriceCache is an in-process PriceCache used in ephemeral mode and tests.
type MemoryPriceCache struct {
	mu      sync.RWMutex
	entries map[string][]cacheEntry
	ttl     time.Duration
	now     func() time.Time
}

// NewMemoryPriceCache creates an empty in-memory cache.
func NewMemoryPriceCache(ttl time.Duration) *MemoryPriceCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &MemoryPriceCache{
		entries: make(map[string][]cacheEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

func memoryKey(symbol, day string) string {
	return symbol + "|" + day
}

// Get returns the last price written for symbol on day.
func (c *MemoryPriceCache) Get(_ context.Context, symbol, day string) (float64, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	rows := c.entries[memoryKey(symbol, day)]
	if len(rows) == 0 {
		return 0, false, nil
	}
	last := rows[len(rows)-1]
	if c.now().Sub(last.storedAt) > c.ttl {
		return 0, false, nil
	}
	return last.price, true, nil
}

// Put appends a price for symbol on day.
func (c *MemoryPriceCache) Put(_ context.Context, symbol, day string, price float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := memoryKey(symbol, day)
	c.entries[key] = append(c.entries[key], cacheEntry{price: price, storedAt: c.now()})
	return nil
}

// Prune removes keys whose newest entry has expired.
func (c *MemoryPriceCache) Prune(_ context.Context) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	now := c.now()
	for key, rows := range c.entries {
		if len(rows) == 0 || now.Sub(rows[len(rows)-1].storedAt) > c.ttl {
			removed += len(rows)
			delete(c.entries, key)
		}
	}
	if removed > 0 {
		log.Debug().Int("removed", removed).Msg("Pruned in-memory price cache")
	}
	return removed, nil
}

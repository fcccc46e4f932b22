package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"

	"github.com/JAMBAMSF/jagent/internal/market"
)

const (
	getPriceSQL = `
		SELECT price, stored_at FROM price_cache
		WHERE symbol = $1 AND day = $2::date
		ORDER BY stored_at DESC, id DESC
		LIMIT 1`

	putPriceSQL = `INSERT INTO price_cache (symbol, day, price) VALUES ($1, $2::date, $3)`

	prunePricesSQL = `DELETE FROM price_cache WHERE stored_at < $1`
)

// PriceCache is a market.PriceCache backed by the price_cache table.
type PriceCache struct {
	q   Querier
	ttl time.Duration
	now func() time.Time
}

var (
	_ market.PriceCache = (*PriceCache)(nil)
	_ market.Pruner     = (*PriceCache)(nil)
)

// NewPriceCache creates a cache over q. A zero ttl uses market.DefaultCacheTTL.
func NewPriceCache(q Querier, ttl time.Duration) *PriceCache {
	if ttl <= 0 {
		ttl = market.DefaultCacheTTL
	}
	return &PriceCache{q: q, ttl: ttl, now: time.Now}
}

// Get returns the newest price stored for symbol on day, or a miss once
// that row is older than the TTL.
func (c *PriceCache) Get(ctx context.Context, symbol, day string) (float64, bool, error) {
	var price float64
	var storedAt time.Time
	err := c.q.QueryRow(ctx, getPriceSQL, symbol, day).Scan(&price, &storedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to read price cache: %w", err)
	}
	if c.now().Sub(storedAt) > c.ttl {
		return 0, false, nil
	}
	return price, true, nil
}

// Put appends a price row.
func (c *PriceCache) Put(ctx context.Context, symbol, day string, price float64) error {
	if _, err := c.q.Exec(ctx, putPriceSQL, symbol, day, price); err != nil {
		return fmt.Errorf("failed to write price cache: %w", err)
	}
	return nil
}

// Prune deletes rows older than the TTL.
func (c *PriceCache) Prune(ctx context.Context) (int, error) {
	tag, err := c.q.Exec(ctx, prunePricesSQL, c.now().Add(-c.ttl))
	if err != nil {
		return 0, fmt.Errorf("failed to prune price cache: %w", err)
	}
	n := int(tag.RowsAffected())
	if n > 0 {
		log.Debug().Int("removed", n).Msg("Pruned price cache")
	}
	return n, nil
}

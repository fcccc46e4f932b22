package market

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
	"golang.org/x/sync/singleflight"

	"github.com/JAMBAMSF/jagent/internal/metrics"
	"github.com/JAMBAMSF/jagent/internal/resilience"
)

// Resolver looks prices up through the cache and then each provider in
// order, stopping at the first success. Provider successes are written back
// to the cache.
type Resolver struct {
	cache     PriceCache
	providers []QuoteProvider
	breakers  map[string]*gobreaker.CircuitBreaker
	flight    singleflight.Group
	timeout   time.Duration
	now       func() time.Time
}

// DefaultLookupTimeout bounds one shared resolution across all sources.
const DefaultLookupTimeout = 45 * time.Second

// NewResolver creates a resolver. cache may be nil; nil providers are skipped.
func NewResolver(cache PriceCache, providers ...QuoteProvider) *Resolver {
	r := &Resolver{
		cache:    cache,
		breakers: make(map[string]*gobreaker.CircuitBreaker),
		timeout:  DefaultLookupTimeout,
		now:      time.Now,
	}
	settings := resilience.ProviderSettings
	settings.Expected = IsNoPrice
	for _, p := range providers {
		if p == nil {
			continue
		}
		r.providers = append(r.providers, p)
		r.breakers[p.Name()] = resilience.NewBreaker("provider_"+p.Name(), settings)
	}
	return r
}

// WithTimeout sets the bound of one shared resolution.
func (r *Resolver) WithTimeout(d time.Duration) *Resolver {
	if d > 0 {
		r.timeout = d
	}
	return r
}

// Providers returns the names of the configured providers in lookup order.
func (r *Resolver) Providers() []string {
	names := make([]string, len(r.providers))
	for i, p := range r.providers {
		names[i] = p.Name()
	}
	return names
}

// Resolve returns the latest price for symbol. It never fails: when every
// source is exhausted the quote carries SourceUnavailable.
// Concurrent lookups of the same symbol share one resolution, which keeps
// running when the caller that started it goes away.
func (r *Resolver) Resolve(ctx context.Context, symbol string) Quote {
	sym := CanonicalSymbol(symbol)
	today := r.now()
	day := today.Format(DateLayout)

	ch := r.flight.DoChan(sym+"|"+day, func() (interface{}, error) {
		shared, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
		defer cancel()
		return r.resolve(shared, sym, day, today), nil
	})

	var q Quote
	select {
	case res := <-ch:
		q = res.Val.(Quote)
	case <-ctx.Done():
		q = Quote{Symbol: sym, Source: SourceUnavailable, AsOf: today}
	}
	metrics.RecordPriceLookup(q.Source)
	return q
}

func (r *Resolver) resolve(ctx context.Context, sym, day string, asOf time.Time) Quote {
	if r.cache != nil {
		price, ok, err := r.cache.Get(ctx, sym, day)
		switch {
		case err != nil:
			log.Warn().Err(err).Str("symbol", sym).Msg("Price cache read failed")
			metrics.RecordCacheLookup("error")
		case ok:
			metrics.RecordCacheLookup("hit")
			return Quote{Symbol: sym, Price: price, Source: SourceCache, AsOf: asOf}
		default:
			metrics.RecordCacheLookup("miss")
		}
	}

	for _, p := range r.providers {
		price, tag, err := r.call(ctx, p, sym)
		if err != nil {
			log.Debug().
				Err(err).
				Str("symbol", sym).
				Str("provider", p.Name()).
				Str("tag", tag).
				Msg("Price provider failed, trying next")
			continue
		}
		r.store(ctx, sym, day, price)
		return Quote{Symbol: sym, Price: price, Source: tag, AsOf: asOf}
	}

	return Quote{Symbol: sym, Source: SourceUnavailable, AsOf: asOf}
}

type providerResult struct {
	price float64
	tag   string
}

func (r *Resolver) call(ctx context.Context, p QuoteProvider, sym string) (float64, string, error) {
	cb := r.breakers[p.Name()]
	out, err := cb.Execute(func() (interface{}, error) {
		price, tag, err := p.LatestPrice(ctx, sym)
		if err != nil {
			return providerResult{tag: tag}, err
		}
		return providerResult{price: price, tag: tag}, nil
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return 0, p.Name() + ":circuit_open", err
	}
	res, _ := out.(providerResult)
	if err != nil {
		return 0, res.tag, err
	}
	return res.price, res.tag, nil
}

// store writes a price back to the cache. Failures are logged, never returned.
func (r *Resolver) store(ctx context.Context, sym, day string, price float64) {
	if r.cache == nil {
		return
	}
	if err := r.cache.Put(ctx, sym, day, price); err != nil {
		log.Warn().Err(err).Str("symbol", sym).Msg("Price cache write failed")
		metrics.RecordError("cache_write", "market")
	}
}

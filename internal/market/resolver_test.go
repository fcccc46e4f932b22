package market

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubProvider struct {
	name  string
	price float64
	tag   string
	err   error
	calls int
}

func (s *stubProvider) Name() string { return s.name }

func (s *stubProvider) LatestPrice(_ context.Context, _ string) (float64, string, error) {
	s.calls++
	if s.err != nil {
		return 0, s.tag, &ProviderError{Provider: s.name, Tag: s.tag, Err: s.err}
	}
	return s.price, s.tag, nil
}

type failingCache struct{ puts int }

func (c *failingCache) Get(context.Context, string, string) (float64, bool, error) {
	return 0, false, errors.New("cache read down")
}

func (c *failingCache) Put(context.Context, string, string, float64) error {
	c.puts++
	return errors.New("cache write down")
}

func fixedNow() time.Time {
	return time.Date(2026, 3, 10, 15, 30, 0, 0, time.UTC)
}

func TestResolver_CacheHitSkipsProviders(t *testing.T) {
	cache := NewMemoryPriceCache(time.Hour)
	cache.now = fixedNow
	require.NoError(t, cache.Put(context.Background(), "NVDA", "2026-03-10", 900.5))

	primary := &stubProvider{name: "alpha_vantage", price: 1, tag: SourceAlphaVantage}
	r := NewResolver(cache, primary)
	r.now = fixedNow

	q := r.Resolve(context.Background(), "nvda")
	assert.Equal(t, "NVDA", q.Symbol)
	assert.Equal(t, 900.5, q.Price)
	assert.Equal(t, SourceCache, q.Source)
	assert.Equal(t, 0, primary.calls)
}

func TestResolver_PrimaryWritesBackToCache(t *testing.T) {
	cache := NewMemoryPriceCache(time.Hour)
	cache.now = fixedNow
	primary := &stubProvider{name: "alpha_vantage", price: 123.45, tag: SourceAlphaVantage}
	secondary := &stubProvider{name: "yfinance", price: 1, tag: SourceYahooIntraday}

	r := NewResolver(cache, primary, secondary)
	r.now = fixedNow

	q := r.Resolve(context.Background(), "AAPL")
	assert.Equal(t, 123.45, q.Price)
	assert.Equal(t, SourceAlphaVantage, q.Source)
	assert.Equal(t, 0, secondary.calls)

	// second lookup inside the TTL is served from cache alone
	q = r.Resolve(context.Background(), "AAPL")
	assert.Equal(t, 123.45, q.Price)
	assert.Equal(t, SourceCache, q.Source)
	assert.Equal(t, 1, primary.calls)
}

func TestResolver_FallsBackToSecondary(t *testing.T) {
	primary := &stubProvider{name: "alpha_vantage", tag: SourceAlphaVantageNoPrice, err: errors.New("no price")}
	secondary := &stubProvider{name: "yfinance", price: 42, tag: SourceYahooLastClose}

	r := NewResolver(NewMemoryPriceCache(time.Hour), primary, secondary)
	q := r.Resolve(context.Background(), "TSLA")

	assert.True(t, q.Available())
	assert.Equal(t, 42.0, q.Price)
	assert.Equal(t, SourceYahooLastClose, q.Source)
	assert.Equal(t, 1, primary.calls)
	assert.Equal(t, 1, secondary.calls)
}

func TestResolver_AllSourcesFail(t *testing.T) {
	primary := &stubProvider{name: "alpha_vantage", tag: SourceAlphaVantageError, err: errors.New("timeout")}
	secondary := &stubProvider{name: "yfinance", tag: SourceYahooUnavailable, err: errors.New("empty")}

	r := NewResolver(nil, primary, secondary)
	q := r.Resolve(context.Background(), "ZZZZ")

	assert.False(t, q.Available())
	assert.Equal(t, SourceUnavailable, q.Source)
	assert.Zero(t, q.Price)
}

func TestResolver_CacheFailuresAreSwallowed(t *testing.T) {
	cache := &failingCache{}
	secondary := &stubProvider{name: "yfinance", price: 10, tag: SourceYahooIntraday}

	r := NewResolver(cache, secondary)
	q := r.Resolve(context.Background(), "SPY")

	assert.Equal(t, 10.0, q.Price)
	assert.Equal(t, SourceYahooIntraday, q.Source)
	assert.Equal(t, 1, cache.puts)
}

func TestResolver_MapsAliases(t *testing.T) {
	secondary := &stubProvider{name: "yfinance", price: 72, tag: SourceYahooLastClose}
	r := NewResolver(nil, secondary)

	q := r.Resolve(context.Background(), "bonds")
	assert.Equal(t, "BND", q.Symbol)
}

func TestResolver_SkipsNilProviders(t *testing.T) {
	r := NewResolver(nil, nil, &stubProvider{name: "yfinance"})
	assert.Equal(t, []string{"yfinance"}, r.Providers())
}

// catalogProvider prices the symbols it knows and misses the rest.
type catalogProvider struct {
	name   string
	prices map[string]float64
	down   bool
	calls  int
}

func (c *catalogProvider) Name() string { return c.name }

func (c *catalogProvider) LatestPrice(_ context.Context, symbol string) (float64, string, error) {
	c.calls++
	if c.down {
		return 0, c.name + ":error", &ProviderError{Provider: c.name, Tag: c.name + ":error", Err: errors.New("connection refused")}
	}
	p, ok := c.prices[symbol]
	if !ok {
		return 0, c.name + ":no_price", &ProviderError{Provider: c.name, Tag: c.name + ":no_price", Err: ErrNoPrice}
	}
	return p, c.name, nil
}

func TestResolver_UnknownTickersKeepBreakersClosed(t *testing.T) {
	primary := &catalogProvider{name: "alpha", prices: map[string]float64{"AAPL": 190}}
	secondary := &catalogProvider{name: "yahoo", prices: map[string]float64{"AAPL": 189}}
	r := NewResolver(nil, primary, secondary)

	for _, sym := range []string{"AFFECT", "XQZ", "FOO", "BAR", "QQQZ", "ZZZZ", "WHY"} {
		assert.False(t, r.Resolve(context.Background(), sym).Available(), sym)
	}
	assert.Equal(t, gobreaker.StateClosed, r.breakers["alpha"].State())
	assert.Equal(t, gobreaker.StateClosed, r.breakers["yahoo"].State())

	q := r.Resolve(context.Background(), "AAPL")
	assert.Equal(t, 190.0, q.Price)
	assert.Equal(t, "alpha", q.Source)
}

func TestResolver_OutageOpensBreaker(t *testing.T) {
	primary := &catalogProvider{name: "alpha", down: true}
	secondary := &catalogProvider{name: "yahoo", prices: map[string]float64{"A": 1, "B": 2, "C": 3, "D": 4, "E": 5, "F": 6}}
	r := NewResolver(nil, primary, secondary)

	for _, sym := range []string{"A", "B", "C", "D", "E"} {
		require.True(t, r.Resolve(context.Background(), sym).Available())
	}
	assert.Equal(t, gobreaker.StateOpen, r.breakers["alpha"].State())

	q := r.Resolve(context.Background(), "F")
	assert.Equal(t, 6.0, q.Price)
	assert.Equal(t, 5, primary.calls, "an open breaker skips the provider")
}

// gatedProvider answers once release is closed, or fails with ctx.
type gatedProvider struct {
	started chan struct{}
	release chan struct{}
	calls   atomic.Int32
}

func (g *gatedProvider) Name() string { return "gated" }

func (g *gatedProvider) LatestPrice(ctx context.Context, _ string) (float64, string, error) {
	if g.calls.Add(1) == 1 {
		close(g.started)
	}
	select {
	case <-g.release:
		return 55, "gated", nil
	case <-ctx.Done():
		return 0, "gated:error", &ProviderError{Provider: "gated", Tag: "gated:error", Err: ctx.Err()}
	}
}

func TestResolver_SharedLookupOutlivesCancelledCaller(t *testing.T) {
	p := &gatedProvider{started: make(chan struct{}), release: make(chan struct{})}
	r := NewResolver(nil, p)

	ctx, cancel := context.WithCancel(context.Background())
	first := make(chan Quote, 1)
	go func() { first <- r.Resolve(ctx, "MSFT") }()
	<-p.started

	second := make(chan Quote, 1)
	go func() { second <- r.Resolve(context.Background(), "MSFT") }()
	time.Sleep(50 * time.Millisecond) // let the second caller join

	cancel()
	assert.False(t, (<-first).Available(), "the cancelled caller gives up")

	close(p.release)
	q := <-second
	assert.Equal(t, 55.0, q.Price)
}

func TestResolver_SharedLookupIsBounded(t *testing.T) {
	p := &gatedProvider{started: make(chan struct{}), release: make(chan struct{})}
	defer close(p.release)
	r := NewResolver(nil, p).WithTimeout(20 * time.Millisecond)

	q := r.Resolve(context.Background(), "MSFT")
	assert.False(t, q.Available())
}

// Package market resolves equity prices and price history from a cache and
// external providers, and fetches news headlines.
package market

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Provenance tags attached to every quote lookup.
const (
	SourceCache               = "cache:today"
	SourceAlphaVantage        = "alpha_vantage"
	SourceAlphaVantageNoPrice = "alpha_vantage:no_price"
	SourceAlphaVantageError   = "alpha_vantage:error"
	SourceYahooIntraday       = "yfinance (intraday)"
	SourceYahooLastClose      = "yfinance:last_close"
	SourceYahooUnavailable    = "yfinance:unavailable"
	SourceYahooError          = "yfinance:error"
	SourceUnavailable         = "unavailable"
)

// DateLayout is the calendar-day key format used for cache entries.
const DateLayout = "2006-01-02"

// Quote is the result of one price lookup. Price is meaningful only when
// Source is not SourceUnavailable.
type Quote struct {
	Symbol string    `json:"symbol"`
	Price  float64   `json:"price,omitempty"`
	Source string    `json:"source"`
	AsOf   time.Time `json:"asof"`
}

// Available reports whether the quote carries a price.
func (q Quote) Available() bool {
	return q.Source != SourceUnavailable
}

// QuoteProvider is an external source of latest prices.
type QuoteProvider interface {
	Name() string
	// LatestPrice returns the price and its provenance tag. Failures are
	// reported as *ProviderError.
	LatestPrice(ctx context.Context, symbol string) (float64, string, error)
}

// ErrNoPrice means the provider answered but has no price for the symbol.
// It says nothing about the provider's health.
var ErrNoPrice = errors.New("no price for symbol")

// IsNoPrice reports whether err is a per-symbol miss.
func IsNoPrice(err error) bool {
	return errors.Is(err, ErrNoPrice)
}

// ProviderError records a failed provider call with its provenance tag.
type ProviderError struct {
	Provider string
	Tag      string
	Err      error
}

func (e *ProviderError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s (%s): %v", e.Provider, e.Tag, e.Err)
	}
	return fmt.Sprintf("%s (%s)", e.Provider, e.Tag)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// Bar is one daily or intraday close.
type Bar struct {
	Date  time.Time `json:"date"`
	Close float64   `json:"close"`
}

// History is a set of close series keyed by symbol.
type History struct {
	Source string           `json:"source"`
	Series map[string][]Bar `json:"series"`
}

package market

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	finance "github.com/piquette/finance-go"
	"github.com/piquette/finance-go/chart"
	"github.com/piquette/finance-go/datetime"
	"github.com/rs/zerolog/log"
)

const yahooProvider = "yfinance"

// ChartSource returns closes for a symbol between start and end at the given
// bar interval.
type ChartSource interface {
	Bars(ctx context.Context, symbol string, start, end time.Time, interval datetime.Interval) ([]Bar, error)
}

// YahooChartSource reads Yahoo Finance chart data through finance-go.
type YahooChartSource struct{}

// Bars implements ChartSource. Unknown symbols yield ErrNoPrice.
func (YahooChartSource) Bars(ctx context.Context, symbol string, start, end time.Time, interval datetime.Interval) ([]Bar, error) {
	params := &chart.Params{
		Symbol:   symbol,
		Start:    datetime.New(&start),
		End:      datetime.New(&end),
		Interval: interval,
	}
	params.Context = &ctx

	iter := chart.Get(params)
	var bars []Bar
	for iter.Next() {
		b := iter.Bar()
		closePrice := b.Close.InexactFloat64()
		if closePrice <= 0 {
			continue
		}
		bars = append(bars, Bar{
			Date:  time.Unix(int64(b.Timestamp), 0).UTC(),
			Close: closePrice,
		})
	}
	if err := iter.Err(); err != nil {
		if symbolMissing(err) {
			return nil, fmt.Errorf("chart %s: %w: %v", symbol, ErrNoPrice, err)
		}
		return nil, fmt.Errorf("chart %s: %w", symbol, err)
	}
	return bars, nil
}

// SetYahooTimeout bounds every finance-go HTTP request, the crumb fetch
// included. It takes effect only before the first Yahoo call.
func SetYahooTimeout(d time.Duration) {
	if d > 0 {
		finance.SetHTTPClient(&http.Client{Timeout: d})
	}
}

// symbolMissing recognizes Yahoo's answers for tickers it does not know.
func symbolMissing(err error) bool {
	var remote *finance.RemoteError
	if errors.As(err, &remote) {
		return remote.StatusCode == http.StatusNotFound
	}
	var yerr *finance.YfinError
	if errors.As(err, &yerr) {
		return strings.EqualFold(yerr.Code, "Not Found")
	}
	return strings.Contains(err.Error(), "no results in chart response")
}

// YahooProvider is the secondary quote provider: the latest intraday bar,
// else the last daily close.
type YahooProvider struct {
	source  ChartSource
	timeout time.Duration
	now     func() time.Time
}

// NewYahooProvider creates a provider over source. A nil source uses Yahoo Finance.
func NewYahooProvider(source ChartSource) *YahooProvider {
	if source == nil {
		source = YahooChartSource{}
	}
	return &YahooProvider{source: source, now: time.Now}
}

// WithTimeout bounds each LatestPrice call, both chart requests included.
func (p *YahooProvider) WithTimeout(d time.Duration) *YahooProvider {
	p.timeout = d
	return p
}

// Name implements QuoteProvider.
func (p *YahooProvider) Name() string {
	return yahooProvider
}

// LatestPrice implements QuoteProvider.
func (p *YahooProvider) LatestPrice(ctx context.Context, symbol string) (float64, string, error) {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}
	now := p.now()

	intraday, err := p.source.Bars(ctx, symbol, now.Add(-24*time.Hour), now, datetime.OneMin)
	if err == nil && len(intraday) > 0 {
		return intraday[len(intraday)-1].Close, SourceYahooIntraday, nil
	}
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return 0, SourceYahooError, &ProviderError{Provider: yahooProvider, Tag: SourceYahooError, Err: err}
		}
		log.Debug().Err(err).Str("symbol", symbol).Msg("Yahoo intraday lookup failed, trying daily close")
	}

	// five trading sessions
	daily, err := p.source.Bars(ctx, symbol, now.AddDate(0, 0, -7), now, datetime.OneDay)
	if IsNoPrice(err) {
		return 0, SourceYahooUnavailable, &ProviderError{Provider: yahooProvider, Tag: SourceYahooUnavailable, Err: err}
	}
	if err != nil {
		log.Warn().Err(err).Str("symbol", symbol).Msg("Yahoo daily lookup failed")
		return 0, SourceYahooError, &ProviderError{Provider: yahooProvider, Tag: SourceYahooError, Err: err}
	}
	if len(daily) == 0 {
		return 0, SourceYahooUnavailable, &ProviderError{Provider: yahooProvider, Tag: SourceYahooUnavailable, Err: ErrNoPrice}
	}
	return daily[len(daily)-1].Close, SourceYahooLastClose, nil
}

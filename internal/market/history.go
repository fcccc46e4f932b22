package market

import (
	"context"
	"hash/fnv"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/piquette/finance-go/datetime"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// History source tags.
const (
	HistorySourceYahoo     = "yfinance"
	HistorySourceSynthetic = "synthetic"
)

const (
	syntheticDays  = 60
	syntheticStart = 100.0
	syntheticEnd   = 120.0
)

// HistoryFetcher loads daily closes for analytics. When no symbol yields any
// data it substitutes a synthetic series so analysis degrades instead of failing.
type HistoryFetcher struct {
	source      ChartSource
	months      int
	concurrency int
	timeout     time.Duration
	now         func() time.Time
}

// NewHistoryFetcher creates a fetcher over source covering the last months.
func NewHistoryFetcher(source ChartSource, months int) *HistoryFetcher {
	if source == nil {
		source = YahooChartSource{}
	}
	if months <= 0 {
		months = 6
	}
	return &HistoryFetcher{
		source:      source,
		months:      months,
		concurrency: 4,
		now:         time.Now,
	}
}

// WithTimeout bounds the fetch of each symbol.
func (f *HistoryFetcher) WithTimeout(d time.Duration) *HistoryFetcher {
	f.timeout = d
	return f
}

// History fetches each symbol in parallel. Symbols that fail are omitted.
func (f *HistoryFetcher) History(ctx context.Context, symbols []string) (History, error) {
	end := f.now()
	start := end.AddDate(0, -f.months, 0)

	var mu sync.Mutex
	series := make(map[string][]Bar, len(symbols))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.concurrency)
	for _, sym := range symbols {
		sym := CanonicalSymbol(sym)
		g.Go(func() error {
			fctx := gctx
			if f.timeout > 0 {
				var cancel context.CancelFunc
				fctx, cancel = context.WithTimeout(gctx, f.timeout)
				defer cancel()
			}
			bars, err := f.source.Bars(fctx, sym, start, end, datetime.OneDay)
			if err != nil {
				log.Debug().Err(err).Str("symbol", sym).Msg("History fetch failed")
				return nil
			}
			if len(bars) == 0 {
				return nil
			}
			mu.Lock()
			series[sym] = bars
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	if len(series) == 0 {
		log.Warn().Strs("symbols", symbols).Msg("History unavailable, using synthetic series")
		return SyntheticHistory(symbols, end), nil
	}
	return History{Source: HistorySourceYahoo, Series: series}, nil
}

// SyntheticHistory builds a rising series per symbol over the last 60
// business days ending at end: a straight line from 100 to 120 with small
// noise seeded by the symbol, so repeated calls agree.
func SyntheticHistory(symbols []string, end time.Time) History {
	dates := businessDays(end, syntheticDays)
	series := make(map[string][]Bar, len(symbols))
	for _, s := range symbols {
		sym := CanonicalSymbol(s)
		h := fnv.New64a()
		_, _ = h.Write([]byte(sym))
		rng := rand.New(rand.NewPCG(h.Sum64(), uint64(len(dates))))

		bars := make([]Bar, len(dates))
		step := (syntheticEnd - syntheticStart) / float64(len(dates)-1)
		for i, d := range dates {
			bars[i] = Bar{Date: d, Close: syntheticStart + step*float64(i) + rng.NormFloat64()}
		}
		series[sym] = bars
	}
	return History{Source: HistorySourceSynthetic, Series: series}
}

// businessDays returns n weekdays ending on or before end, oldest first.
func businessDays(end time.Time, n int) []time.Time {
	day := time.Date(end.Year(), end.Month(), end.Day(), 0, 0, 0, 0, time.UTC)
	out := make([]time.Time, 0, n)
	for len(out) < n {
		if wd := day.Weekday(); wd != time.Saturday && wd != time.Sunday {
			out = append(out, day)
		}
		day = day.AddDate(0, 0, -1)
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

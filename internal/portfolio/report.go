package portfolio

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/JAMBAMSF/jagent/internal/market"
)

// DefaultTolerance is assumed when a user has not stated one.
const DefaultTolerance = "moderate"

// HistorySource supplies daily closes for a set of symbols.
type HistorySource interface {
	History(ctx context.Context, symbols []string) (market.History, error)
}

// Report is a finished analysis ready to present.
type Report struct {
	Allocation    Allocation `json:"allocation"`
	Metrics       Metrics    `json:"metrics"`
	HistorySource string     `json:"history_source"`
	Tolerance     string     `json:"tolerance"`
	RiskFreeRate  float64    `json:"risk_free_rate"`
}

// String renders the report as the multi-line text shown to users.
func (r *Report) String() string {
	lines := []string{
		fmt.Sprintf("Symbols: %s (history source: %s)", strings.Join(r.Allocation.Symbols(), ", "), r.HistorySource),
		fmt.Sprintf("Expected annual return: %s", percent(r.Metrics.ExpectedReturn)),
		fmt.Sprintf("Annualized volatility: %s", percent(r.Metrics.Volatility)),
		fmt.Sprintf("Sharpe (rf=%s): %.2f", percent(r.RiskFreeRate), r.Metrics.Sharpe),
		fmt.Sprintf("Diversification (HHI): %.3f (lower is better)", r.Metrics.HHI),
		fmt.Sprintf("Approx 5%% annual VaR: %s", percent(r.Metrics.ValueAtRisk)),
		fmt.Sprintf("Risk fit vs tolerance '%s': %s", r.Tolerance, r.Metrics.RiskFit),
	}
	return strings.Join(lines, "\n")
}

func percent(v float64) string {
	return fmt.Sprintf("%.2f%%", v*100)
}

// Analyzer runs allocation analysis against a history source.
type Analyzer struct {
	history      HistorySource
	riskFreeRate float64
	logger       zerolog.Logger
}

// NewAnalyzer creates an Analyzer.
func NewAnalyzer(history HistorySource, riskFreeRate float64) *Analyzer {
	return &Analyzer{
		history:      history,
		riskFreeRate: riskFreeRate,
		logger:       log.With().Str("component", "portfolio").Logger(),
	}
}

// Analyze fetches history for alloc and computes its report.
func (a *Analyzer) Analyze(ctx context.Context, alloc Allocation, tolerance string) (*Report, error) {
	if tolerance == "" {
		tolerance = DefaultTolerance
	}

	h, err := a.history.History(ctx, alloc.Symbols())
	if err != nil {
		return nil, fmt.Errorf("fetch history: %w", err)
	}

	returns := BuildReturns(h, alloc.Symbols())
	if missing := withoutHistory(alloc.Symbols(), returns.Symbols); len(missing) > 0 {
		a.logger.Warn().
			Int("count", len(missing)).
			Strs("symbols", missing).
			Msg("Symbols without history are zero-weighted")
	}

	m, err := Analyze(alloc, returns, a.riskFreeRate, tolerance)
	if err != nil {
		return nil, err
	}

	return &Report{
		Allocation:    alloc,
		Metrics:       m,
		HistorySource: h.Source,
		Tolerance:     tolerance,
		RiskFreeRate:  a.riskFreeRate,
	}, nil
}

func withoutHistory(held, priced []string) []string {
	have := make(map[string]bool, len(priced))
	for _, s := range priced {
		have[s] = true
	}
	var missing []string
	for _, s := range held {
		if !have[s] {
			missing = append(missing, s)
		}
	}
	return missing
}

// AnalyzeText parses raw allocation text and analyzes it.
func (a *Analyzer) AnalyzeText(ctx context.Context, raw, tolerance string) (*Report, error) {
	alloc, err := Parse(raw)
	if err != nil {
		return nil, err
	}
	return a.Analyze(ctx, alloc, tolerance)
}

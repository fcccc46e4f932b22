package portfolio

import (
	"bytes"
	"context"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JAMBAMSF/jagent/internal/market"
)

func TestHHI(t *testing.T) {
	for n := 1; n <= 10; n++ {
		var a Allocation
		for i := 0; i < n; i++ {
			a = append(a, Holding{Symbol: string(rune('A' + i)), Weight: 1 / float64(n)})
		}
		assert.InDelta(t, 1/float64(n), HHI(a), 1e-12, "equal weights minimize HHI at 1/n")
	}
	assert.Equal(t, 1.0, HHI(Allocation{{Symbol: "SPY", Weight: 1}}))
}

func TestSharpeRatio(t *testing.T) {
	assert.Equal(t, 0.0, SharpeRatio(0.12, 0, 0.0425))
	assert.Equal(t, 0.0, SharpeRatio(0.12, -0.1, 0.0425))
	assert.InDelta(t, 0.5, SharpeRatio(0.1425, 0.2, 0.0425), 1e-12)
}

func TestValueAtRisk(t *testing.T) {
	assert.InDelta(t, 0.10-1.65*0.2, ValueAtRisk(0.10, 0.2), 1e-12)
}

func TestRiskFit(t *testing.T) {
	tests := []struct {
		vol       float64
		tolerance string
		want      string
	}{
		{0.05, "conservative", FitLabel},
		{0.10, "conservative", TooVolatileLabel},
		{0.0999, "low", FitLabel},
		{0.15, "Moderate", FitLabel},
		{0.20, "moderate", TooVolatileLabel},
		{0.19, "medium", FitLabel},
		{0.34, "aggressive", FitLabel},
		{0.35, "aggressive", TooVolatileLabel},
		{0.30, " high ", FitLabel},
		{0.01, "yolo", UnknownFitLabel},
		{0.01, "", UnknownFitLabel},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, RiskFit(tt.vol, tt.tolerance), "vol=%v tol=%q", tt.vol, tt.tolerance)
	}
}

func TestAnalyze_KnownSeries(t *testing.T) {
	returns := ReturnSeries{
		Symbols: []string{"AAA"},
		Rows:    [][]float64{{0.01}, {0.03}},
	}
	w := Allocation{{Symbol: "AAA", Weight: 1}}

	m, err := Analyze(w, returns, 0.0425, "aggressive")
	require.NoError(t, err)

	wantVol := math.Sqrt(0.0002) * math.Sqrt(252)
	assert.InDelta(t, 0.02*252, m.ExpectedReturn, 1e-9)
	assert.InDelta(t, wantVol, m.Volatility, 1e-9)
	assert.InDelta(t, (0.02*252-0.0425)/wantVol, m.Sharpe, 1e-9)
	assert.InDelta(t, 1.0, m.HHI, 1e-12)
	assert.InDelta(t, 0.02*252-1.65*wantVol, m.ValueAtRisk, 1e-9)
	assert.Equal(t, FitLabel, m.RiskFit)
}

func TestAnalyze_MissingSymbolIsZeroWeighted(t *testing.T) {
	returns := ReturnSeries{
		Symbols: []string{"AAA"},
		Rows:    [][]float64{{0.01}, {0.03}},
	}
	w := Allocation{{Symbol: "AAA", Weight: 0.5}, {Symbol: "GONE", Weight: 0.5}}

	m, err := Analyze(w, returns, 0, "moderate")
	require.NoError(t, err)
	assert.InDelta(t, 0.5*0.02*252, m.ExpectedReturn, 1e-9)
	assert.InDelta(t, 0.5, m.HHI, 1e-12, "HHI uses the full allocation")
}

func TestAnalyze_FlatSeriesHasZeroSharpe(t *testing.T) {
	returns := ReturnSeries{
		Symbols: []string{"CASH"},
		Rows:    [][]float64{{0}, {0}, {0}},
	}
	m, err := Analyze(Allocation{{Symbol: "CASH", Weight: 1}}, returns, 0.0425, "conservative")
	require.NoError(t, err)
	assert.Equal(t, 0.0, m.Volatility)
	assert.Equal(t, 0.0, m.Sharpe)
	assert.Equal(t, FitLabel, m.RiskFit)
}

func TestAnalyze_InsufficientHistory(t *testing.T) {
	_, err := Analyze(Allocation{{Symbol: "A", Weight: 1}}, ReturnSeries{Symbols: []string{"A"}, Rows: [][]float64{{0.1}}}, 0, "moderate")
	assert.ErrorIs(t, err, ErrInsufficientHistory)

	_, err = Analyze(nil, ReturnSeries{}, 0, "moderate")
	assert.ErrorIs(t, err, ErrNoAllocations)
}

func day(n int) time.Time {
	return time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC).AddDate(0, 0, n)
}

func TestBuildReturns_AlignsAndDropsIncompleteRows(t *testing.T) {
	h := market.History{Series: map[string][]market.Bar{
		"AAA": {{Date: day(0), Close: 100}, {Date: day(1), Close: 110}, {Date: day(2), Close: 121}},
		"BBB": {{Date: day(1), Close: 50}, {Date: day(2), Close: 55}},
	}}

	r := BuildReturns(h, []string{"AAA", "BBB", "CCC"})
	assert.Equal(t, []string{"AAA", "BBB"}, r.Symbols)
	require.Equal(t, 1, r.Len())
	assert.InDelta(t, 0.10, r.Rows[0][0], 1e-12)
	assert.InDelta(t, 0.10, r.Rows[0][1], 1e-12)
	assert.Equal(t, day(2), r.Dates[0])
}

type staticHistory struct {
	h   market.History
	err error
}

func (s staticHistory) History(context.Context, []string) (market.History, error) {
	return s.h, s.err
}

func TestAnalyzer_EndToEnd(t *testing.T) {
	aapl := []float64{100, 100, 100, 101, 102, 103, 104, 105, 106, 107}
	bnd := []float64{70, 70, 70, 70.1, 70.2, 70.3, 70.4, 70.5, 70.6, 70.7}

	series := map[string][]market.Bar{}
	for i := range aapl {
		d := day(i)
		series["AAPL"] = append(series["AAPL"], market.Bar{Date: d, Close: aapl[i]})
		series["BND"] = append(series["BND"], market.Bar{Date: d, Close: bnd[i]})
	}

	a := NewAnalyzer(staticHistory{h: market.History{Source: "synthetic", Series: series}}, 0.0425)
	report, err := a.AnalyzeText(context.Background(), "60% AAPL, 40% BND", "moderate")
	require.NoError(t, err)

	m := report.Metrics
	assert.NotZero(t, m.ExpectedReturn)
	assert.GreaterOrEqual(t, m.Volatility, 0.0)
	assert.Equal(t, RiskFit(m.Volatility, "moderate"), m.RiskFit)
	assert.InDelta(t, 0.6*0.6+0.4*0.4, m.HHI, 1e-12)

	text := report.String()
	lines := strings.Split(text, "\n")
	require.Len(t, lines, 7)
	assert.Equal(t, "Symbols: AAPL, BND (history source: synthetic)", lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "Expected annual return: "))
	assert.True(t, strings.HasPrefix(lines[2], "Annualized volatility: "))
	assert.Equal(t, "Sharpe (rf=4.25%): ", lines[3][:len("Sharpe (rf=4.25%): ")])
	assert.Contains(t, lines[4], "(lower is better)")
	assert.True(t, strings.HasPrefix(lines[5], "Approx 5% annual VaR: "))
	assert.Equal(t, "Risk fit vs tolerance 'moderate': "+m.RiskFit, lines[6])
	assert.NotContains(t, strings.ToLower(text), "nan")
}

func TestAnalyzer_SymbolsWithoutHistoryAreZeroWeighted(t *testing.T) {
	var series []market.Bar
	for i, c := range []float64{100, 101, 103, 102, 104} {
		series = append(series, market.Bar{Date: day(i), Close: c})
	}

	var logs bytes.Buffer
	a := NewAnalyzer(staticHistory{h: market.History{Source: "synthetic", Series: map[string][]market.Bar{"AAPL": series}}}, 0.0425)
	a.logger = zerolog.New(&logs)

	report, err := a.Analyze(context.Background(), Allocation{{Symbol: "AAPL", Weight: 0.6}, {Symbol: "ZZZZ", Weight: 0.4}}, "")
	require.NoError(t, err)
	assert.Equal(t, "moderate", report.Tolerance)
	assert.True(t, strings.HasPrefix(report.String(), "Symbols: AAPL, ZZZZ (history source: synthetic)\n"),
		"the symbol line names every holding")

	assert.Contains(t, logs.String(), `"level":"warn"`)
	assert.Contains(t, logs.String(), `"count":1`)
	assert.Contains(t, logs.String(), `"symbols":["ZZZZ"]`)
}

func TestAnalyzer_DefaultsToleranceAndPropagatesErrors(t *testing.T) {
	a := NewAnalyzer(staticHistory{err: errors.New("down")}, 0.0425)
	_, err := a.AnalyzeText(context.Background(), "100% SPY", "")
	assert.Error(t, err)

	_, err = a.AnalyzeText(context.Background(), "nothing here", "")
	assert.ErrorIs(t, err, ErrNoAllocations)
}

package portfolio

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/montanaflynn/stats"
)

const (
	// TradingDays annualizes daily statistics.
	TradingDays = 252.0

	// VaRZ is the one-sided 95% normal quantile used for parametric VaR.
	VaRZ = 1.65
)

// Risk-fit volatility ceilings per tolerance. A portfolio fits when its
// annualized volatility is strictly below the ceiling.
const (
	ConservativeMaxVol = 0.10
	ModerateMaxVol     = 0.20
	AggressiveMaxVol   = 0.35
)

// Risk-fit labels.
const (
	FitLabel         = "fit"
	TooVolatileLabel = "too volatile"
	UnknownFitLabel  = "unknown"
)

// ErrInsufficientHistory is returned when fewer than two aligned return rows exist.
var ErrInsufficientHistory = errors.New("not enough return history to analyze")

// Metrics are the derived return and risk statistics of one allocation.
type Metrics struct {
	ExpectedReturn float64 `json:"expected_return"`
	Volatility     float64 `json:"portfolio_volatility"`
	Sharpe         float64 `json:"sharpe_ratio"`
	HHI            float64 `json:"hhi_diversification"`
	ValueAtRisk    float64 `json:"value_at_risk_normal"`
	RiskFit        string  `json:"risk_fit_label"`
}

// Analyze computes Metrics for weights over the given return series.
// Symbols held but absent from the series contribute zero weight.
func Analyze(weights Allocation, returns ReturnSeries, riskFreeRate float64, tolerance string) (Metrics, error) {
	if len(weights) == 0 {
		return Metrics{}, ErrNoAllocations
	}
	if returns.Len() < 2 {
		return Metrics{}, ErrInsufficientHistory
	}

	er, err := ExpectedReturn(returns, weights)
	if err != nil {
		return Metrics{}, err
	}
	vol, err := Volatility(returns, weights)
	if err != nil {
		return Metrics{}, err
	}

	return Metrics{
		ExpectedReturn: er,
		Volatility:     vol,
		Sharpe:         SharpeRatio(er, vol, riskFreeRate),
		HHI:            HHI(weights),
		ValueAtRisk:    ValueAtRisk(er, vol),
		RiskFit:        RiskFit(vol, tolerance),
	}, nil
}

// columnWeights lines the allocation up with the series columns.
func columnWeights(r ReturnSeries, w Allocation) []float64 {
	out := make([]float64, len(r.Symbols))
	for j, sym := range r.Symbols {
		out[j] = w.Weight(sym)
	}
	return out
}

// ExpectedReturn is the weighted mean daily return, annualized.
func ExpectedReturn(r ReturnSeries, w Allocation) (float64, error) {
	weights := columnWeights(r, w)
	var daily float64
	for j := range r.Symbols {
		mean, err := stats.Mean(r.Column(j))
		if err != nil {
			return 0, fmt.Errorf("mean return of %s: %w", r.Symbols[j], err)
		}
		daily += mean * weights[j]
	}
	return daily * TradingDays, nil
}

// Volatility is sqrt(wᵀΣw) annualized, using the sample covariance matrix.
func Volatility(r ReturnSeries, w Allocation) (float64, error) {
	weights := columnWeights(r, w)
	n := len(r.Symbols)
	cols := make([][]float64, n)
	for j := range cols {
		cols[j] = r.Column(j)
	}

	var variance float64
	for i := 0; i < n; i++ {
		if weights[i] == 0 {
			continue
		}
		for j := 0; j < n; j++ {
			if weights[j] == 0 {
				continue
			}
			cov, err := stats.Covariance(cols[i], cols[j])
			if err != nil {
				return 0, fmt.Errorf("covariance %s/%s: %w", r.Symbols[i], r.Symbols[j], err)
			}
			variance += weights[i] * cov * weights[j]
		}
	}
	if variance < 0 {
		// rounding on near-singular inputs
		variance = 0
	}
	return math.Sqrt(variance) * math.Sqrt(TradingDays), nil
}

// SharpeRatio is (er - rf) / vol, or 0 when vol is not positive.
func SharpeRatio(expectedReturn, vol, riskFreeRate float64) float64 {
	if vol <= 0 {
		return 0
	}
	return (expectedReturn - riskFreeRate) / vol
}

// HHI is the Herfindahl-Hirschman concentration, the sum of squared weights.
func HHI(w Allocation) float64 {
	var hhi float64
	for _, h := range w {
		hhi += h.Weight * h.Weight
	}
	return hhi
}

// ValueAtRisk is the parametric normal 95% annual VaR.
func ValueAtRisk(expectedReturn, vol float64) float64 {
	return expectedReturn - VaRZ*vol
}

// RiskFit labels vol against a tolerance. low, medium and high are accepted
// as aliases of conservative, moderate and aggressive.
func RiskFit(vol float64, tolerance string) string {
	var ceiling float64
	switch strings.ToLower(strings.TrimSpace(tolerance)) {
	case "conservative", "low":
		ceiling = ConservativeMaxVol
	case "moderate", "medium":
		ceiling = ModerateMaxVol
	case "aggressive", "high":
		ceiling = AggressiveMaxVol
	default:
		return UnknownFitLabel
	}
	if vol < ceiling {
		return FitLabel
	}
	return TooVolatileLabel
}

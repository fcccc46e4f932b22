package portfolio

import (
	"math"
	"slices"
	"time"

	"github.com/JAMBAMSF/jagent/internal/market"
)

// ReturnSeries holds aligned daily percentage changes, one column per symbol.
// Rows with a missing value in any column have been dropped.
type ReturnSeries struct {
	Symbols []string
	Dates   []time.Time
	Rows    [][]float64
}

// Len is the number of aligned return rows.
func (r ReturnSeries) Len() int {
	return len(r.Rows)
}

// Column returns the returns of the j-th symbol.
func (r ReturnSeries) Column(j int) []float64 {
	col := make([]float64, len(r.Rows))
	for i, row := range r.Rows {
		col[i] = row[j]
	}
	return col
}

// BuildReturns aligns the closes of symbols by date and converts them to daily
// percentage changes. Symbols without any bars are left out of the series.
func BuildReturns(h market.History, symbols []string) ReturnSeries {
	var cols []string
	byDate := make(map[int64]map[string]float64)
	for _, sym := range symbols {
		bars := h.Series[sym]
		if len(bars) == 0 || slices.Contains(cols, sym) {
			continue
		}
		cols = append(cols, sym)
		for _, b := range bars {
			key := b.Date.UTC().Truncate(24 * time.Hour).Unix()
			if byDate[key] == nil {
				byDate[key] = make(map[string]float64)
			}
			byDate[key][sym] = b.Close
		}
	}

	keys := make([]int64, 0, len(byDate))
	for k := range byDate {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	out := ReturnSeries{Symbols: cols}
	for i := 1; i < len(keys); i++ {
		prev, cur := byDate[keys[i-1]], byDate[keys[i]]
		row := make([]float64, len(cols))
		complete := true
		for j, sym := range cols {
			p, okPrev := prev[sym]
			c, okCur := cur[sym]
			if !okPrev || !okCur || p == 0 || math.IsNaN(p) || math.IsNaN(c) {
				complete = false
				break
			}
			row[j] = c/p - 1
		}
		if complete {
			out.Dates = append(out.Dates, time.Unix(keys[i], 0).UTC())
			out.Rows = append(out.Rows, row)
		}
	}
	return out
}

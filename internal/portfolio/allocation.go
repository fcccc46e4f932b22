// Package portfolio parses allocation text into normalized weights and
// computes return and risk statistics for them.
package portfolio

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/JAMBAMSF/jagent/internal/market"
)

var (
	// ErrNoAllocations is returned when no allocation could be recovered from the input.
	ErrNoAllocations = errors.New("Could not parse any allocations.")

	// ErrNonPositiveTotal is returned when weights do not sum to a positive value.
	ErrNonPositiveTotal = errors.New("portfolio weights must sum to a positive value")
)

// IsParseError reports whether err came from allocation parsing.
func IsParseError(err error) bool {
	return errors.Is(err, ErrNoAllocations) || errors.Is(err, ErrNonPositiveTotal)
}

// MapSymbol uppercases sym and resolves known aliases such as BONDS to BND.
func MapSymbol(sym string) string {
	return market.CanonicalSymbol(sym)
}

// Holding is one symbol and its weight.
type Holding struct {
	Symbol string  `json:"symbol"`
	Weight float64 `json:"weight"`
}

// Allocation is an ordered set of holdings with unique symbols.
// Order follows first appearance in the parsed input.
type Allocation []Holding

// Symbols returns the symbols in allocation order.
func (a Allocation) Symbols() []string {
	out := make([]string, len(a))
	for i, h := range a {
		out[i] = h.Symbol
	}
	return out
}

// Weight returns the weight of sym, or 0 when the symbol is not held.
func (a Allocation) Weight(sym string) float64 {
	for _, h := range a {
		if h.Symbol == sym {
			return h.Weight
		}
	}
	return 0
}

// Map returns the allocation as a symbol to weight map.
func (a Allocation) Map() map[string]float64 {
	out := make(map[string]float64, len(a))
	for _, h := range a {
		out[h.Symbol] = h.Weight
	}
	return out
}

// Total is the sum of all weights.
func (a Allocation) Total() float64 {
	var total float64
	for _, h := range a {
		total += h.Weight
	}
	return total
}

// add accumulates w into sym, appending the symbol if it is new.
func (a Allocation) add(sym string, w float64) Allocation {
	for i := range a {
		if a[i].Symbol == sym {
			a[i].Weight += w
			return a
		}
	}
	return append(a, Holding{Symbol: sym, Weight: w})
}

// Normalize rescales weights so they sum to 1.
func Normalize(a Allocation) (Allocation, error) {
	if len(a) == 0 {
		return nil, ErrNoAllocations
	}
	total := a.Total()
	if total <= 0 {
		return nil, ErrNonPositiveTotal
	}
	out := make(Allocation, len(a))
	for i, h := range a {
		out[i] = Holding{Symbol: h.Symbol, Weight: h.Weight / total}
	}
	return out, nil
}

// FromMap builds a normalized allocation from a structured symbol to weight map.
// Symbols are alias-mapped and colliding symbols accumulate.
func FromMap(m map[string]float64) (Allocation, error) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	var a Allocation
	for _, k := range keys {
		a = a.add(MapSymbol(k), m[k])
	}
	return Normalize(a)
}

var (
	dictBlockRe = regexp.MustCompile(`(?s)\{.*?\}`)
	keyValueRe  = regexp.MustCompile(`["']?([A-Za-z][A-Za-z0-9.\-]{0,9})["']?\s*[:=]\s*([0-9]+(?:\.[0-9]+)?)`)
	percentRe   = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*%\s*([A-Za-z0-9][A-Za-z0-9.\-_]*)`)
	nonAlnumRe  = regexp.MustCompile(`[^A-Za-z0-9]`)
	smartQuotes = strings.NewReplacer("“", `"`, "”", `"`, "’", "'")
)

// Parse recovers a normalized allocation from free text. Accepted forms, in
// order: an embedded JSON or literal map, inline key:value pairs, and
// "NN% SYMBOL" pairs.
func Parse(input string) (Allocation, error) {
	if a, ok := parseDictStrings(input); ok {
		return a, nil
	}
	if a, ok, err := parseKeyValuePairs(input); ok {
		return a, err
	}
	return parsePercent(input)
}

func parseDictStrings(s string) (Allocation, bool) {
	s = strings.Trim(strings.TrimSpace(s), "` \n\r\t")
	s = smartQuotes.Replace(s)

	candidates := dictBlockRe.FindAllString(s, -1)
	if !slices.Contains(candidates, s) {
		candidates = append(candidates, s)
	}

	for _, c := range candidates {
		if m, ok := decodeWeights(c); ok {
			if a, err := FromMap(m); err == nil {
				return a, true
			}
		}
		// single-quoted literal maps, e.g. {'AAPL': 0.6}
		if strings.Contains(c, "'") {
			if m, ok := decodeWeights(strings.ReplaceAll(c, "'", `"`)); ok {
				if a, err := FromMap(m); err == nil {
					return a, true
				}
			}
		}
	}
	return nil, false
}

func decodeWeights(s string) (map[string]float64, bool) {
	var raw map[string]any
	if err := json.Unmarshal([]byte(s), &raw); err != nil || len(raw) == 0 {
		return nil, false
	}
	out := make(map[string]float64, len(raw))
	for k, v := range raw {
		switch n := v.(type) {
		case float64:
			out[k] = n
		case string:
			f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
			if err != nil {
				return nil, false
			}
			out[k] = f
		default:
			return nil, false
		}
	}
	return out, true
}

func parseKeyValuePairs(s string) (Allocation, bool, error) {
	pairs := keyValueRe.FindAllStringSubmatch(s, -1)
	if len(pairs) == 0 {
		return nil, false, nil
	}
	var a Allocation
	for _, p := range pairs {
		v, err := strconv.ParseFloat(p[2], 64)
		if err != nil {
			continue
		}
		a = a.add(MapSymbol(p[1]), v)
	}
	norm, err := Normalize(a)
	if err != nil {
		return nil, true, fmt.Errorf("key/value allocation: %w", err)
	}
	return norm, true, nil
}

func parsePercent(s string) (Allocation, error) {
	var a Allocation
	for _, p := range percentRe.FindAllStringSubmatch(s, -1) {
		pct, err := strconv.ParseFloat(p[1], 64)
		if err != nil {
			continue
		}
		sym := strings.ToUpper(nonAlnumRe.ReplaceAllString(p[2], ""))
		if sym == "" {
			continue
		}
		a = a.add(MapSymbol(sym), pct/100.0)
	}
	if len(a) == 0 {
		return nil, ErrNoAllocations
	}
	return Normalize(a)
}

package router

import (
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/JAMBAMSF/jagent/internal/market"
)

// Tolerances accepted by "set risk".
var Tolerances = []string{"conservative", "moderate", "aggressive"}

var (
	allocPairRe = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*%\s*([A-Za-z][A-Za-z0-9.\-_]+)`)

	riskCueRe = regexp.MustCompile(`\b(` +
		`i am|i'm|` +
		`my\s+risk(?:\s*(?:toler[ae]nce|preference|profile|level|appetite))?\s+is|` +
		`assume\s+(?:i am|i'm)|` +
		`consider me|treat me as|` +
		`set\s+.*risk.*(?:to|as)` +
		`)\b`)
	riskKeywordRe = regexp.MustCompile(`\b(conservative|moderate|aggressive)\b`)

	// "NVDA price", "NVDA's quote"
	possessivePriceRe = regexp.MustCompile(`(?i)\b([A-Za-z][A-Za-z0-9.\-]{0,9})(?:['’]s)?\s+(?:price|quote)\b`)
	// "price of NVDA", "what's the quote for BRK.B"
	prepositionPriceRe = regexp.MustCompile(`(?i)\b(?:price|quote)\s+(?:of\s+|for\s+)?([A-Za-z][A-Za-z0-9.\-]{0,9})\b`)
	possessiveSuffixRe = regexp.MustCompile(`['’]S$`)
)

type synonym struct {
	re        *regexp.Regexp
	tolerance string
}

// riskSynonyms are checked in order when no tolerance keyword is present.
var riskSynonyms = []synonym{
	{regexp.MustCompile(`\b(high risk|risk[-\s]?on|very aggressive|speculative|max risk)\b`), "aggressive"},
	{regexp.MustCompile(`\b(balanced|medium risk|average risk|moderately)\b`), "moderate"},
	{regexp.MustCompile(`\b(low risk|risk[-\s]?off|risk-averse|risk averse|defensive|capital preservation)\b`), "conservative"},
}

var allocStopwords = map[string]struct{}{
	"IN": {}, "OF": {}, "TO": {}, "INTO": {}, "ON": {}, "AT": {},
}

// priceStopwords are words the price patterns can capture that are never tickers.
var priceStopwords = map[string]struct{}{
	"THE": {}, "A": {}, "AN": {}, "ITS": {}, "IT": {}, "OF": {}, "FOR": {}, "IS": {},
	"WHAT": {}, "WHATS": {}, "ME": {}, "MY": {}, "THIS": {}, "THAT": {}, "PLEASE": {},
	"CURRENT": {}, "LATEST": {}, "LAST": {}, "TODAY": {}, "TODAYS": {}, "NOW": {},
	"STOCK": {}, "SHARE": {}, "SHARES": {}, "CLOSING": {}, "SPOT": {}, "MARKET": {},
	"TARGET": {}, "ASKING": {}, "BEST": {}, "GOOD": {}, "FAIR": {}, "REAL": {}, "LIVE": {},
}

// AllocationOnly extracts the "NN% SYMBOL" pairs from text and re-renders them
// as "NN% SYM, NN% SYM" with aliases applied. It returns "" if none are found.
func AllocationOnly(text string) string {
	pairs := allocPairRe.FindAllStringSubmatch(text, -1)
	cleaned := make([]string, 0, len(pairs))
	for _, p := range pairs {
		sym := strings.TrimRight(strings.ToUpper(strings.TrimSpace(p[2])), ".,;:)")
		if _, stop := allocStopwords[sym]; stop || sym == "" {
			continue
		}
		cleaned = append(cleaned, fmt.Sprintf("%s%% %s", p[1], market.CanonicalSymbol(sym)))
	}
	return strings.Join(cleaned, ", ")
}

// InferRiskTolerance detects statements like "I'm conservative" or
// "set my risk to risk-off". It returns "" without a first-person cue.
func InferRiskTolerance(text string) string {
	t := strings.ToLower(text)
	if !riskCueRe.MatchString(t) {
		return ""
	}
	if m := riskKeywordRe.FindStringSubmatch(t); m != nil {
		return m[1]
	}
	for _, s := range riskSynonyms {
		if s.re.MatchString(t) {
			return s.tolerance
		}
	}
	return ""
}

// PriceTicker finds the ticker in natural price questions. Filler words are
// skipped so "the price of AAPL" yields AAPL.
func PriceTicker(text string) (string, bool) {
	for _, re := range []*regexp.Regexp{possessivePriceRe, prepositionPriceRe} {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			if t := cleanTicker(m[1]); t != "" {
				return t, true
			}
		}
	}
	return "", false
}

func cleanTicker(raw string) string {
	t := possessiveSuffixRe.ReplaceAllString(strings.ToUpper(raw), "")
	t = strings.TrimRight(t, ".,!?):;")
	if t == "" {
		return ""
	}
	if _, stop := priceStopwords[t]; stop {
		return ""
	}
	return t
}

// ValidTolerance reports whether t is one of Tolerances.
func ValidTolerance(t string) bool {
	return slices.Contains(Tolerances, t)
}

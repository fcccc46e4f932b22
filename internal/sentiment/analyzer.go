// Package sentiment scores short texts with a valence lexicon.
package sentiment

import (
	"fmt"
	"math"
	"strings"
	"sync"
	"unicode"

	"github.com/rs/zerolog/log"
)

const (
	// Threshold separates positive and negative compounds from neutral.
	Threshold = 0.05

	negationScalar = -0.74
	normAlpha      = 15.0
	capsIncrement  = 0.733
)

// Label values.
const (
	Positive = "positive"
	Negative = "negative"
	Neutral  = "neutral"
)

// Scores are polarity proportions plus a normalized compound score.
type Scores struct {
	Positive float64 `json:"pos"`
	Negative float64 `json:"neg"`
	Neutral  float64 `json:"neu"`
	Compound float64 `json:"compound"`
}

// Label classifies the compound score.
func (s Scores) Label() string {
	switch {
	case s.Compound >= Threshold:
		return Positive
	case s.Compound <= -Threshold:
		return Negative
	default:
		return Neutral
	}
}

// Analyzer produces polarity scores.
type Analyzer interface {
	PolarityScores(text string) Scores
}

// LexiconAnalyzer is a rule-based analyzer: word
// valences adjusted by a preceding booster, negation within three tokens and
// shouting in caps, then normalized into [-1, 1].
type LexiconAnalyzer struct {
	lexicon map[string]float64
}

// NewLexiconAnalyzer copies lexicon; a nil map uses the built-in lexicon.
func NewLexiconAnalyzer(lexicon map[string]float64) *LexiconAnalyzer {
	if lexicon == nil {
		lexicon = defaultLexicon
	}
	lx := make(map[string]float64, len(lexicon))
	for k, v := range lexicon {
		lx[strings.ToLower(k)] = v
	}
	return &LexiconAnalyzer{lexicon: lx}
}

// PolarityScores implements Analyzer.
func (a *LexiconAnalyzer) PolarityScores(text string) Scores {
	raw := tokenize(text)
	if len(raw) == 0 {
		return Scores{Neutral: 1}
	}
	mixedCase := hasMixedCase(raw)

	lower := make([]string, len(raw))
	for i, t := range raw {
		lower[i] = strings.ToLower(t)
	}

	var sum, pos, neg float64
	neutralCount := 0
	for i, word := range lower {
		v, ok := a.lexicon[word]
		if !ok {
			if _, isBooster := boosters[word]; !isBooster {
				neutralCount++
			}
			continue
		}

		if mixedCase && isUpper(raw[i]) {
			v += math.Copysign(capsIncrement, v)
		}
		if i > 0 {
			if b, ok := boosters[lower[i-1]]; ok {
				v += math.Copysign(b, v)
			}
		}
		for back := 1; back <= 3 && i-back >= 0; back++ {
			if _, ok := negations[lower[i-back]]; ok {
				v *= negationScalar
				break
			}
		}

		sum += v
		if v > 0 {
			pos += v + 1
		} else if v < 0 {
			neg += v - 1
		}
	}

	sum += punctuationEmphasis(text, sum)
	compound := normalize(sum)

	total := pos + math.Abs(neg) + float64(neutralCount)
	s := Scores{Compound: round4(compound)}
	if total > 0 {
		s.Positive = round4(pos / total)
		s.Negative = round4(math.Abs(neg) / total)
		s.Neutral = round4(float64(neutralCount) / total)
	}
	return s
}

func normalize(score float64) float64 {
	n := score / math.Sqrt(score*score+normAlpha)
	return math.Max(-1, math.Min(1, n))
}

func punctuationEmphasis(text string, sum float64) float64 {
	if sum == 0 {
		return 0
	}
	ep := math.Min(float64(strings.Count(text, "!")), 4) * 0.292
	return math.Copysign(ep, sum)
}

func tokenize(text string) []string {
	fields := strings.Fields(text)
	out := fields[:0]
	for _, f := range fields {
		f = strings.TrimFunc(f, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
		})
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}

func isUpper(s string) bool {
	hasLetter := false
	for _, r := range s {
		if unicode.IsLetter(r) {
			hasLetter = true
			if !unicode.IsUpper(r) {
				return false
			}
		}
	}
	return hasLetter
}

func hasMixedCase(tokens []string) bool {
	upper := 0
	for _, t := range tokens {
		if isUpper(t) {
			upper++
		}
	}
	return upper > 0 && upper < len(tokens)
}

func round4(f float64) float64 {
	return math.Round(f*10000) / 10000
}

var (
	defaultOnce     sync.Once
	defaultAnalyzer *LexiconAnalyzer
)

// Default returns the shared analyzer, building it on first use.
func Default() Analyzer {
	defaultOnce.Do(func() {
		defaultAnalyzer = NewLexiconAnalyzer(nil)
		log.Debug().Int("words", len(defaultAnalyzer.lexicon)).Msg("Sentiment lexicon loaded")
	})
	return defaultAnalyzer
}

// Tool renders sentiment results as assistant text.
type Tool struct {
	analyzer Analyzer
}

// NewTool wraps an analyzer. A nil analyzer resolves to Default lazily.
func NewTool(a Analyzer) *Tool {
	return &Tool{analyzer: a}
}

// Analyze returns a one-line verdict with the compound score and source.
// If the analyzer is unusable it falls back to keyword matching.
func (t *Tool) Analyze(text string) (out string) {
	defer func() {
		if r := recover(); r != nil {
			log.Warn().Interface("panic", r).Msg("Sentiment analyzer failed, using keyword fallback")
			out = KeywordFallback(text)
		}
	}()

	a := t.analyzer
	if a == nil {
		a = Default()
	}
	s := a.PolarityScores(text)
	return fmt.Sprintf("Sentiment: %s (compound=%+.3f) — source: lexicon.", s.Label(), s.Compound)
}

// KeywordFallback labels text by the presence of a few fixed keywords.
func KeywordFallback(text string) string {
	t := strings.ToLower(text)
	pos := containsAny(t, fallbackPositive)
	neg := containsAny(t, fallbackNegative)
	switch {
	case pos && !neg:
		return "Sentiment: positive (simple fallback)."
	case neg && !pos:
		return "Sentiment: negative (simple fallback)."
	default:
		return "Sentiment: neutral (simple fallback)."
	}
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}

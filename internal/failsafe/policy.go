// Package failsafe runs deterministic tool handlers in order and falls back to
// the chat capability when none of them produce trustworthy output.
package failsafe

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultMarker exempts analytics reports from the denylist.
const DefaultMarker = "expected annual return:"

// DefaultPatterns is the denylist of broken-output patterns, matched against
// lowercased output.
var DefaultPatterns = []string{
	`\bnan\b`,
	`could not parse`,
	`invalid +json`,
	`unavailable`,
	`no price data found`,
	`yfinance.*failed`,
	`request timed out`,
	`error:`,
	`exception`,
}

// Policy is the quality gate configuration.
type Policy struct {
	// Strict enables the denylist. When false only empty output fails.
	Strict bool `yaml:"strict" mapstructure:"strict"`
	// Verbose logs rejected output at error level with a 200 char excerpt.
	Verbose  bool     `yaml:"verbose" mapstructure:"verbose"`
	Marker   string   `yaml:"marker" mapstructure:"marker"`
	Patterns []string `yaml:"patterns" mapstructure:"patterns"`
}

// DefaultPolicy returns the strict policy with the built-in denylist.
func DefaultPolicy() Policy {
	return Policy{
		Strict:   true,
		Marker:   DefaultMarker,
		Patterns: append([]string(nil), DefaultPatterns...),
	}
}

// LoadPolicy reads a YAML policy file. Fields absent from the file keep their
// defaults; a patterns list replaces the default denylist.
func LoadPolicy(path string) (Policy, error) {
	p := DefaultPolicy()
	data, err := os.ReadFile(path)
	if err != nil {
		return p, fmt.Errorf("failed to read failsafe policy: %w", err)
	}
	if err := yaml.Unmarshal(data, &p); err != nil {
		return p, fmt.Errorf("failed to parse failsafe policy %s: %w", path, err)
	}
	if _, err := p.compile(); err != nil {
		return p, err
	}
	return p, nil
}

func (p Policy) compile() ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(p.Patterns))
	for _, pat := range p.Patterns {
		re, err := regexp.Compile(pat)
		if err != nil {
			return nil, fmt.Errorf("invalid failsafe pattern %q: %w", pat, err)
		}
		out = append(out, re)
	}
	return out, nil
}

// gate is a compiled policy.
type gate struct {
	strict   bool
	marker   string
	patterns []*regexp.Regexp
}

func newGate(p Policy) (*gate, error) {
	res, err := p.compile()
	if err != nil {
		return nil, err
	}
	return &gate{strict: p.Strict, marker: strings.ToLower(p.Marker), patterns: res}, nil
}

// broken reports whether output should be distrusted.
func (g *gate) broken(output string) bool {
	if output == "" {
		return true
	}
	if !g.strict {
		return false
	}
	text := strings.ToLower(output)
	hasMarker := g.marker != "" && strings.Contains(text, g.marker)
	hasNaN := strings.Contains(text, "nan")

	if hasMarker && !hasNaN {
		return false
	}
	for _, re := range g.patterns {
		if re.MatchString(text) {
			return true
		}
	}
	return hasMarker && hasNaN
}

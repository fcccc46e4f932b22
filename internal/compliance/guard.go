// Package compliance filters user input and annotates assistant output.
package compliance

import "strings"

// RefusalMessage is returned in place of any text that matches a banned phrase.
const RefusalMessage = "I can’t assist with that request (compliance). If you want, I can explain legal, diversified approaches instead."

// Disclaimer is appended to every allowed output.
const Disclaimer = "This content is for informational purposes only and is not financial advice. " +
	"No offer, solicitation, or recommendation is being made. " +
	"Past performance does not guarantee future results. " +
	"For personalized guidance, consult a licensed professional. " +
	"Data sources may be delayed or inaccurate; verify independently. " +
	"GDPR simulation: you can request deletion of your stored data with 'forget me'. " +
	"Recommendations are hypothetical and not personalized advice under SEC rules. " +
	"We avoid favoritism toward individual securities; suggestions are diversified and ETF-first where possible."

// DefaultBannedPhrases are matched case-insensitively as substrings.
var DefaultBannedPhrases = []string{
	"guaranteed profit",
	"surefire",
	"inside information",
	"front-run",
	"pump and dump",
	"tax evasion",
	"insider trading",
	"day trading strategy",
	"spoofing",
	"dark edge",
	"gray edge",
}

// Guard is a stateless text filter. The zero value uses DefaultBannedPhrases.
type Guard struct {
	banned []string
}

// NewGuard builds a guard. With no phrases the defaults apply.
func NewGuard(phrases ...string) *Guard {
	g := &Guard{}
	for _, p := range phrases {
		if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
			g.banned = append(g.banned, p)
		}
	}
	return g
}

func (g *Guard) phrases() []string {
	if g == nil || len(g.banned) == 0 {
		return DefaultBannedPhrases
	}
	return g.banned
}

// Match returns the first banned phrase found in text.
func (g *Guard) Match(text string) (string, bool) {
	lower := strings.ToLower(text)
	for _, p := range g.phrases() {
		if strings.Contains(lower, p) {
			return p, true
		}
	}
	return "", false
}

// CheckInput refuses banned user input. Allowed input is returned unchanged.
func (g *Guard) CheckInput(text string) (bool, string) {
	if _, hit := g.Match(text); hit {
		return false, RefusalMessage
	}
	return true, text
}

// CheckOutput refuses banned output and disclaims everything else.
func (g *Guard) CheckOutput(text string) (bool, string) {
	if _, hit := g.Match(text); hit {
		return false, RefusalMessage
	}
	return true, text + "\n\n" + Disclaimer
}

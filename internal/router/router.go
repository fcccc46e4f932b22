// Package router classifies one user utterance into a routing decision. It
// does not execute anything; callers dispatch on Decision.Kind.
package router

import (
	"strings"
)

// Kind tags a Decision.
type Kind string

const (
	KindExit               Kind = "exit"
	KindHelp               Kind = "help"
	KindUsage              Kind = "usage"
	KindRiskInference      Kind = "risk_inference"
	KindSetRisk            Kind = "set_risk"
	KindForgetMe           Kind = "forget_me"
	KindPrice              Kind = "price"
	KindAnalyze            Kind = "analyze"
	KindFraud              Kind = "fraud"
	KindSentiment          Kind = "sentiment"
	KindPayeeAdd           Kind = "payee_add"
	KindPayeeList          Kind = "payee_list"
	KindNews               Kind = "news"
	KindImplicitAllocation Kind = "implicit_allocation"
	KindImplicitPrice      Kind = "implicit_price"
	KindFreeform           Kind = "freeform"
)

// Decision is the classification of one utterance.
type Decision struct {
	Kind Kind
	// Rule names the rule that matched.
	Rule string
	// Input is the trimmed utterance.
	Input string
	// Question is what the chat capability receives if tools fail.
	Question string
	// Arg carries the ticker, allocation text, JSON, text, news topic or payee name.
	Arg string
	// Tolerance is set for risk decisions.
	Tolerance string
	// Reply is a static answer for help, exit and usage decisions.
	Reply string
	// Final marks replies that get the closing suffix.
	Final bool
}

// IsDirectCommand reports whether d came from an explicit command.
func (d Decision) IsDirectCommand() bool {
	switch d.Kind {
	case KindRiskInference, KindImplicitAllocation, KindImplicitPrice, KindFreeform:
		return false
	}
	return true
}

// Static reports whether d is answered without tools or chat.
func (d Decision) Static() bool {
	return d.Kind == KindExit || d.Kind == KindHelp || d.Kind == KindUsage
}

// Rule is one ordered classification step.
type Rule struct {
	Name  string
	Match func(in Input) (Decision, bool)
}

// Input is the utterance in the forms the rules need.
type Input struct {
	Raw   string
	Lower string
}

// Router evaluates rules in order; the first match wins.
type Router struct {
	rules []Rule
}

// New returns a router with the default rule order.
func New() *Router {
	return &Router{rules: DefaultRules()}
}

// NewWithRules returns a router over custom rules.
func NewWithRules(rules ...Rule) *Router {
	return &Router{rules: rules}
}

// Rules returns the rule names in evaluation order.
func (r *Router) Rules() []string {
	names := make([]string, len(r.rules))
	for i, rule := range r.rules {
		names[i] = rule.Name
	}
	return names
}

// Route classifies text. Text that matches no rule is freeform.
func (r *Router) Route(text string) Decision {
	raw := strings.TrimSpace(text)
	in := Input{Raw: raw, Lower: strings.ToLower(raw)}

	for _, rule := range r.rules {
		if d, ok := rule.Match(in); ok {
			d.Rule = rule.Name
			d.Input = raw
			if d.Question == "" {
				d.Question = raw
			}
			return d
		}
	}
	return Decision{Kind: KindFreeform, Rule: "freeform", Input: raw, Question: raw}
}

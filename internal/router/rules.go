package router

import (
	"strings"
)

// Usage replies.
const (
	SetRiskUsage  = "Usage: set risk <conservative|moderate|aggressive>"
	AnalyzeUsage  = "Example: analyze portfolio 50% AAPL, 30% TSLA, 20% bonds"
	PayeeAddUsage = "Usage: payee/counterparty add <NAME>"
	ExitReply     = "Ciao ciao."
)

// DefaultRules returns the rules in precedence order.
func DefaultRules() []Rule {
	return []Rule{
		{Name: "exit", Match: matchExit},
		{Name: "help", Match: matchHelp},
		{Name: "risk_inference", Match: matchRiskInference},
		{Name: "set_risk", Match: matchSetRisk},
		{Name: "forget_me", Match: matchForgetMe},
		{Name: "price", Match: matchPrice},
		{Name: "analyze", Match: matchAnalyze},
		{Name: "fraud", Match: matchFraud},
		{Name: "sentiment", Match: matchSentiment},
		{Name: "payee_add", Match: matchPayeeAdd},
		{Name: "payee_list", Match: matchPayeeList},
		{Name: "news", Match: matchNews},
		{Name: "implicit_allocation", Match: matchImplicitAllocation},
		{Name: "implicit_price", Match: matchImplicitPrice},
	}
}

func matchExit(in Input) (Decision, bool) {
	if in.Lower == "exit" || in.Lower == "quit" {
		return Decision{Kind: KindExit, Reply: ExitReply}, true
	}
	return Decision{}, false
}

func matchHelp(in Input) (Decision, bool) {
	if in.Lower == "help" {
		return Decision{Kind: KindHelp, Reply: HelpText}, true
	}
	if topic, ok := strings.CutPrefix(in.Lower, "help "); ok {
		topic = strings.TrimSpace(topic)
		text, found := HelpTopic(topic)
		if !found {
			text = UnknownTopicText
		}
		return Decision{Kind: KindHelp, Arg: topic, Reply: text}, true
	}
	return Decision{}, false
}

func matchRiskInference(in Input) (Decision, bool) {
	if tol := InferRiskTolerance(in.Raw); tol != "" {
		return Decision{Kind: KindRiskInference, Tolerance: tol}, true
	}
	return Decision{}, false
}

func matchSetRisk(in Input) (Decision, bool) {
	if !strings.HasPrefix(in.Lower, "set risk") {
		return Decision{}, false
	}
	parts := strings.Fields(in.Lower)
	if len(parts) < 3 || !ValidTolerance(parts[len(parts)-1]) {
		return Decision{Kind: KindUsage, Reply: SetRiskUsage}, true
	}
	return Decision{Kind: KindSetRisk, Tolerance: parts[len(parts)-1]}, true
}

func matchForgetMe(in Input) (Decision, bool) {
	if in.Lower == "forget me" {
		return Decision{Kind: KindForgetMe}, true
	}
	return Decision{}, false
}

// afterPrefix returns the original-case text following a lowercase prefix.
func afterPrefix(in Input, prefix string) (string, bool) {
	if len(in.Raw) < len(prefix) || !strings.EqualFold(in.Raw[:len(prefix)], prefix) {
		return "", false
	}
	return strings.TrimSpace(in.Raw[len(prefix):]), true
}

func matchPrice(in Input) (Decision, bool) {
	arg, ok := afterPrefix(in, "price ")
	if !ok {
		return Decision{}, false
	}
	return Decision{Kind: KindPrice, Arg: arg}, true
}

func matchAnalyze(in Input) (Decision, bool) {
	rest, ok := afterPrefix(in, "analyze portfolio")
	if !ok {
		return Decision{}, false
	}
	alloc := AllocationOnly(rest)
	if alloc == "" {
		return Decision{Kind: KindUsage, Reply: AnalyzeUsage}, true
	}
	return Decision{Kind: KindAnalyze, Arg: alloc}, true
}

func matchFraud(in Input) (Decision, bool) {
	js, ok := afterPrefix(in, "fraud ")
	if !ok {
		return Decision{}, false
	}
	return Decision{Kind: KindFraud, Arg: js}, true
}

func matchSentiment(in Input) (Decision, bool) {
	text, ok := afterPrefix(in, "sentiment ")
	if !ok {
		return Decision{}, false
	}
	return Decision{Kind: KindSentiment, Arg: text}, true
}

func matchPayeeAdd(in Input) (Decision, bool) {
	var (
		name string
		ok   bool
	)
	for _, prefix := range []string{"payee add ", "counterparty add "} {
		if name, ok = afterPrefix(in, prefix); ok {
			break
		}
	}
	if !ok {
		return Decision{}, false
	}
	name = strings.Trim(strings.TrimRight(name, ".,;:"), `"'`)
	name = strings.TrimRight(strings.TrimSpace(name), ".,;:")
	if name == "" {
		return Decision{Kind: KindUsage, Reply: PayeeAddUsage}, true
	}
	return Decision{Kind: KindPayeeAdd, Arg: name}, true
}

func matchPayeeList(in Input) (Decision, bool) {
	switch in.Lower {
	case "payee list", "counterparty list", "payee/counterparty list":
		return Decision{Kind: KindPayeeList}, true
	}
	return Decision{}, false
}

func matchNews(in Input) (Decision, bool) {
	topic, ok := afterPrefix(in, "news ")
	if !ok {
		return Decision{}, false
	}
	return Decision{
		Kind:     KindNews,
		Arg:      strings.Trim(topic, `"'`),
		Question: "Give me recent headlines for: " + topic,
	}, true
}

func matchImplicitAllocation(in Input) (Decision, bool) {
	if alloc := AllocationOnly(in.Raw); alloc != "" {
		return Decision{Kind: KindImplicitAllocation, Arg: alloc}, true
	}
	return Decision{}, false
}

func matchImplicitPrice(in Input) (Decision, bool) {
	if ticker, ok := PriceTicker(in.Raw); ok {
		return Decision{Kind: KindImplicitPrice, Arg: ticker, Final: true}, true
	}
	return Decision{}, false
}

package agent

import (
	"context"

	"github.com/JAMBAMSF/jagent/internal/llm"
)

// Tool names advertised to the model.
const (
	ToolStockQuery        = "StockQuery"
	ToolPortfolioAnalysis = "PortfolioAnalysis"
	ToolFraudCheck        = "FraudCheck"
	ToolSentiment         = "Sentiment"
	ToolNewsHeadlines     = "NewsHeadlines"
)

// ToolDescriptions maps each tool to the description the model sees.
var ToolDescriptions = map[string]string{
	ToolStockQuery:        "Fetch latest price for a ticker (e.g., NVDA, AAPL, BRK.B). Returns a one-liner with source note.",
	ToolPortfolioAnalysis: "Analyze allocations or a dict-like string; returns expected return, volatility, Sharpe, HHI, VaR, and risk fit.",
	ToolFraudCheck:        "Basic fraud screen for a JSON transaction {amount, counterparty, hour}.",
	ToolSentiment:         "Lexicon sentiment for short text; falls back to a simple keyword heuristic if the lexicon is unavailable.",
	ToolNewsHeadlines:     "Get recent headlines for a ticker/topic. Usage: a short query like 'NVDA' or 'Nvidia AI'.",
}

// llmTools exposes the toolbox to the model, bound to this session's
// tolerance and counterparties.
func (s *Session) llmTools() []llm.Tool {
	tb := s.agent.tools
	return []llm.Tool{
		llm.TextTool{
			ToolName: ToolStockQuery,
			Desc:     ToolDescriptions[ToolStockQuery],
			Fn:       tb.StockQuery,
		},
		llm.TextTool{
			ToolName: ToolPortfolioAnalysis,
			Desc:     ToolDescriptions[ToolPortfolioAnalysis],
			Fn: func(ctx context.Context, input string) (string, error) {
				r, err := tb.AnalyzePortfolio(ctx, input, s.tolerance)
				if err != nil {
					return "", err
				}
				return r.String(), nil
			},
		},
		llm.TextTool{
			ToolName: ToolFraudCheck,
			Desc:     ToolDescriptions[ToolFraudCheck],
			Fn: func(ctx context.Context, input string) (string, error) {
				known, history := s.fraudContext(ctx)
				_, _, text, _ := tb.FraudCheck(input, known, history)
				return text, nil
			},
		},
		llm.TextTool{
			ToolName: ToolSentiment,
			Desc:     ToolDescriptions[ToolSentiment],
			Fn: func(_ context.Context, input string) (string, error) {
				return tb.SentimentOf(input), nil
			},
		},
		llm.TextTool{
			ToolName: ToolNewsHeadlines,
			Desc:     ToolDescriptions[ToolNewsHeadlines],
			Fn:       tb.NewsHeadlines,
		},
	}
}

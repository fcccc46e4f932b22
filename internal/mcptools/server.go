// Package mcptools serves the assistant's deterministic tools over the
// Model Context Protocol so other agents can call them directly.
package mcptools

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog/log"

	"github.com/JAMBAMSF/jagent/internal/agent"
	"github.com/JAMBAMSF/jagent/internal/portfolio"
)

const serverName = "jagent-tools"

var validate = validator.New()

// StockQueryInput is the argument of the StockQuery tool.
type StockQueryInput struct {
	Query string `json:"query" validate:"max=256" jsonschema:"a ticker or a short question ending in one, e.g. price of NVDA"`
}

// PortfolioInput is the argument of the PortfolioAnalysis tool.
type PortfolioInput struct {
	Allocation string `json:"allocation" validate:"required,max=2000" jsonschema:"allocation text such as AAPL 60, MSFT 40 or a dict-like string"`
	Tolerance  string `json:"tolerance,omitempty" validate:"max=32" jsonschema:"risk tolerance: conservative, moderate or aggressive"`
}

// FraudInput is the argument of the FraudCheck tool.
type FraudInput struct {
	Transaction string   `json:"transaction" validate:"required,max=4000" jsonschema:"JSON transaction with amount, counterparty and hour"`
	Known       []string `json:"known_counterparties,omitempty" validate:"max=1000,dive,max=128" jsonschema:"payees the sender has paid before"`
}

// TextInput is the argument of the Sentiment and NewsHeadlines tools.
type TextInput struct {
	Text string `json:"text" validate:"required,max=4000" jsonschema:"text to score or a ticker/topic to search"`
}

// NewServer registers the toolbox on a new MCP server.
func NewServer(tb *agent.Toolbox, version string) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{Name: serverName, Version: version}, nil)
	h := &handlers{tools: tb}

	mcp.AddTool(server, tool(agent.ToolStockQuery), h.stockQuery)
	mcp.AddTool(server, tool(agent.ToolPortfolioAnalysis), h.analyzePortfolio)
	mcp.AddTool(server, tool(agent.ToolFraudCheck), h.fraudCheck)
	mcp.AddTool(server, tool(agent.ToolSentiment), h.sentiment)
	mcp.AddTool(server, tool(agent.ToolNewsHeadlines), h.news)

	return server
}

func tool(name string) *mcp.Tool {
	return &mcp.Tool{Name: name, Description: agent.ToolDescriptions[name]}
}

type handlers struct {
	tools *agent.Toolbox
}

func (h *handlers) stockQuery(ctx context.Context, _ *mcp.CallToolRequest, in StockQueryInput) (*mcp.CallToolResult, any, error) {
	if err := validate.Struct(in); err != nil {
		return result(agent.ToolStockQuery, "", err)
	}
	out, err := h.tools.StockQuery(ctx, in.Query)
	return result(agent.ToolStockQuery, out, err)
}

func (h *handlers) analyzePortfolio(ctx context.Context, _ *mcp.CallToolRequest, in PortfolioInput) (*mcp.CallToolResult, any, error) {
	if err := validate.Struct(in); err != nil {
		return result(agent.ToolPortfolioAnalysis, "", err)
	}
	tolerance := strings.ToLower(strings.TrimSpace(in.Tolerance))
	if tolerance == "" {
		tolerance = portfolio.DefaultTolerance
	}
	report, err := h.tools.AnalyzePortfolio(ctx, in.Allocation, tolerance)
	if err != nil {
		return result(agent.ToolPortfolioAnalysis, "", err)
	}
	return result(agent.ToolPortfolioAnalysis, report.String(), nil)
}

func (h *handlers) fraudCheck(_ context.Context, _ *mcp.CallToolRequest, in FraudInput) (*mcp.CallToolResult, any, error) {
	if err := validate.Struct(in); err != nil {
		return result(agent.ToolFraudCheck, "", err)
	}
	_, _, text, _ := h.tools.FraudCheck(in.Transaction, in.Known, nil)
	return result(agent.ToolFraudCheck, text, nil)
}

func (h *handlers) sentiment(_ context.Context, _ *mcp.CallToolRequest, in TextInput) (*mcp.CallToolResult, any, error) {
	if err := validate.Struct(in); err != nil {
		return result(agent.ToolSentiment, "", err)
	}
	return result(agent.ToolSentiment, h.tools.SentimentOf(in.Text), nil)
}

func (h *handlers) news(ctx context.Context, _ *mcp.CallToolRequest, in TextInput) (*mcp.CallToolResult, any, error) {
	if err := validate.Struct(in); err != nil {
		return result(agent.ToolNewsHeadlines, "", err)
	}
	out, err := h.tools.NewsHeadlines(ctx, in.Text)
	return result(agent.ToolNewsHeadlines, out, err)
}

// result wraps tool text; a failed tool is reported to the caller as an
// error result rather than a protocol error.
func result(name, text string, err error) (*mcp.CallToolResult, any, error) {
	if err != nil {
		log.Warn().Err(err).Str("tool", name).Msg("MCP tool failed")
		return &mcp.CallToolResult{
			IsError: true,
			Content: []mcp.Content{&mcp.TextContent{Text: fmt.Sprintf("%s failed: %v", name, err)}},
		}, nil, nil
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}, nil, nil
}

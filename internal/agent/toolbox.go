package agent

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/JAMBAMSF/jagent/internal/fraud"
	"github.com/JAMBAMSF/jagent/internal/market"
	"github.com/JAMBAMSF/jagent/internal/portfolio"
	"github.com/JAMBAMSF/jagent/internal/sentiment"
)

// Tool replies.
const (
	NoTickerText      = "Please provide a ticker symbol, e.g., 'price NVDA'."
	NewsUnconfigured  = "News is not configured. Set FINNHUB_API_KEY in your environment to enable Finnhub company/general news."
	DefaultNewsLimit  = 5
	newsSourceFooter  = "source: finnhub"
	newsEmptyTemplate = "No recent items for '%s' in the last 14 days.\n" + newsSourceFooter
)

var trailingTickerRe = regexp.MustCompile(`([A-Za-z.\-]+)\s*$`)

// PriceResolver resolves the latest price of a symbol.
type PriceResolver interface {
	Resolve(ctx context.Context, symbol string) market.Quote
}

// PortfolioAnalyzer parses allocation text and analyzes it.
type PortfolioAnalyzer interface {
	AnalyzeText(ctx context.Context, raw, tolerance string) (*portfolio.Report, error)
}

// NewsSource returns headlines for a ticker or topic.
type NewsSource interface {
	Configured() bool
	Headlines(ctx context.Context, query string, limit int) ([]market.NewsItem, error)
}

// Toolbox holds the deterministic tools. Each method returns the text a
// user or the model sees.
type Toolbox struct {
	Prices      PriceResolver
	Portfolio   PortfolioAnalyzer
	News        NewsSource
	Sentiment   *sentiment.Tool
	FraudPolicy fraud.Policy
	NewsLimit   int
}

// StockQuery looks up the trailing ticker of q.
func (t *Toolbox) StockQuery(ctx context.Context, q string) (string, error) {
	m := trailingTickerRe.FindStringSubmatch(q)
	if m == nil {
		return NoTickerText, nil
	}
	if t.Prices == nil {
		return "", fmt.Errorf("no price resolver configured")
	}
	sym := market.CanonicalSymbol(m[1])

	quote := t.Prices.Resolve(ctx, sym)
	if !quote.Available() {
		return fmt.Sprintf("Could not fetch a price for %s.\n[source: %s]", sym, quote.Source), nil
	}
	return fmt.Sprintf("%s ≈ %.2f (asof: %s)\n[source: %s]",
		sym, quote.Price, quote.AsOf.Format(market.DateLayout), quote.Source), nil
}

// AnalyzePortfolio returns the analytics report for allocation text.
func (t *Toolbox) AnalyzePortfolio(ctx context.Context, raw, tolerance string) (*portfolio.Report, error) {
	if t.Portfolio == nil {
		return nil, fmt.Errorf("no portfolio analyzer configured")
	}
	return t.Portfolio.AnalyzeText(ctx, raw, tolerance)
}

// FraudCheck screens a JSON transaction. ok is false when raw does not
// decode to a valid transaction.
func (t *Toolbox) FraudCheck(raw string, known []string, history map[string][]float64) (tx fraud.Transaction, v fraud.Verdict, text string, ok bool) {
	tx, err := fraud.ParseTransaction(raw)
	if err != nil {
		return tx, v, fraud.ErrInvalidTransaction.Error(), false
	}
	v = fraud.Screen(tx, known, t.FraudPolicy, history)
	return tx, v, v.String(), true
}

// SentimentOf scores text.
func (t *Toolbox) SentimentOf(text string) string {
	tool := t.Sentiment
	if tool == nil {
		tool = sentiment.NewTool(nil)
	}
	return tool.Analyze(text)
}

// NewsHeadlines lists recent headlines for query.
func (t *Toolbox) NewsHeadlines(ctx context.Context, query string) (string, error) {
	if t.News == nil || !t.News.Configured() {
		return NewsUnconfigured, nil
	}
	limit := t.NewsLimit
	if limit <= 0 {
		limit = DefaultNewsLimit
	}

	q := strings.Trim(strings.TrimSpace(query), `"'`)
	items, err := t.News.Headlines(ctx, q, limit)
	if err != nil {
		return "", fmt.Errorf("failed to fetch headlines: %w", err)
	}
	if len(items) == 0 {
		return fmt.Sprintf(newsEmptyTemplate, q), nil
	}

	var b strings.Builder
	b.WriteString("News (source: Finnhub)\n")
	for _, it := range items {
		head := it.Headline
		if head == "" {
			head = "(no title)"
		}
		fmt.Fprintf(&b, "- %s — %s\n  %s\n", head, it.Source, it.URL)
	}
	b.WriteString(newsSourceFooter)
	return b.String(), nil
}

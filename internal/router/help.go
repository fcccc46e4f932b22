package router

import "strings"

// HelpText is the command summary printed by "help".
const HelpText = `JAgent — commands & input formats

Type help <topic> for details:
  topics: price, analyze, portfolio, risk, fraud, payee, memory, sentiment, news, safety, exit

Quick commands
  help                         Show this summary
  help <topic>                 Show detailed help on a topic
  set risk <conservative|moderate|aggressive>
  analyze portfolio <allocs>   e.g., analyze portfolio 50% NVDA, 30% TSLA, 20% bonds
  price <TICKER>               e.g., price NVDA
  news <query|TICKER>          e.g., news NVDA   |   news interest rates
  sentiment <text>             e.g., sentiment "NVDA crushed earnings and guidance was strong"
  fraud <JSON>                 e.g., fraud {"type":"cash","amount":30000,"counterparty":"AMERICAN EXPRESS","hour":1}
  payee add <NAME>             Add a frequent counterparty/payee
  payee list                   List known counterparties (user + global)
  forget me                    Erase my chats/portfolios (keeps global payees)
  exit | quit                  Leave

Input formats
  • Allocations: one or more "NN% SYMBOL" entries, comma-separated.
      Examples: 50% NVDA, 30% TSLA, 20% bonds   |   60% AAPL, 40% BND
      Notes: "bonds" -> BND via built-in mapping; weights auto-normalize to 1.0.
  • Ticker: UPPERCASE letters/numbers with optional "." or "-", up to 10 chars (e.g., BRK.B).
  • News: use a ticker for company news (e.g., NVDA) or keywords for general news (e.g., "interest rates").
      Tip: company news covers roughly the past 14 days; output includes source and URL.
  • Sentiment: plain English sentence(s); returns positive/neutral/negative with a compound score from a built-in lexicon.
      Examples: "I love this stock", "Macro looks risky", "Guidance was disappointing".
  • Fraud JSON: {"type":"cash|card|ach|wire", "amount":1234.56, "counterparty":"NAME", "hour":0-23}
  • Risk (freeform): natural language like "I'm very conservative" is recognized.

Ethics/Safety
  Mitigate biases (e.g., avoid favoring certain stocks); implement guardrails against harmful advice
  (e.g., reject queries promoting illegal activities). Try these to see it in action:
    • "just tip me some dark edges" — will be refused with safer alternatives.
    • "how to make a lot of money quickly by spoofing?" — refused; spoofing is illegal market manipulation.
  Ask instead:
    • "What are legal ways to improve execution quality?"
    • "Explain manipulation red flags so I can avoid them."

Data sources
  • Prices: price cache → Alpha Vantage (primary) → Yahoo Finance (fallback)
  • News: Finnhub (requires FINNHUB_API_KEY)
  • Sentiment: built-in valence lexicon (falls back to a keyword heuristic)`

// UnknownTopicText is the reply for an unrecognized help topic.
const UnknownTopicText = "Unknown help topic. Try: price, analyze, portfolio, risk, fraud, payee, memory, sentiment, news, exit"

var helpTopics = map[string]string{
	"price": `help price
Usage: price <TICKER>
What it does: returns latest price with data source label.
Details:
  • Tries the price cache → Alpha Vantage → Yahoo Finance intraday, then last close.
  • Adds "source: ..." so you know which provider returned data.
Examples:
  price NVDA
  price BRK.B`,

	"analyze": `help analyze
Usage: analyze portfolio <allocations>
What it does: computes annualized expected return, volatility, Sharpe (rf from config), HHI diversification, and 5% parametric VaR; labels risk fit.
Allocations: "NN% SYMBOL" entries, comma-separated; auto-normalized to 1.0.
Examples:
  analyze portfolio 50% NVDA, 30% TSLA, 20% bonds
  analyze portfolio 60% AAPL, 40% BND`,

	"portfolio": `help portfolio
Parsing: "NN% SYMBOL" (case-insensitive for symbol words like 'bonds'→BND).
Metrics: expected_return, portfolio_volatility, sharpe_ratio (rf from config), hhi_diversification, value_at_risk_normal, risk_fit_label.
Notes: If market history fetch fails, analysis degrades gracefully rather than crashing.`,

	"risk": `help risk
Usage: set risk <conservative|moderate|aggressive>
What it does: stores your risk tolerance in the database.
Bonus: freeform text like "I'm conservative" is auto-detected.`,

	"fraud": `help fraud
Usage: fraud <JSON>
What it does: runs simple rules plus a z-score anomaly check on amount; checks known counterparties.
JSON fields: type ("cash"|"card"|"ach"|"wire"), amount (number), counterparty (string), hour (0-23)
Example:
  fraud {"type":"card","amount":7200,"counterparty":"AMERICAN EXPRESS","hour":2}`,

	"payee": `help payee
Usage:
  payee add <NAME>   → add/merge a counterparty into your user scope
  payee list         → list user + global counterparties
Notes: rename/merge logic keeps duplicates tidy across user/global scopes.`,

	"memory": `help memory
Storage: Postgres via DATABASE_URL; --ephemeral runs without it.
Forget: "forget me" deletes your chats/portfolios; counterparties seeded globally remain.`,

	"sentiment": `help sentiment
Usage: sentiment <text>
What it does: returns a lexicon compound polarity with label; falls back to keywords if the lexicon is unavailable.`,

	"news": `help news
Usage: news <query|TICKER>
Providers: Finnhub via FINNHUB_API_KEY (ticker → /company-news, keywords → general news).
Output: bullet list with headline, source, and URL; includes "source: ..." footer.`,

	"exit": `help exit
Usage: exit   |   quit
What it does: cleanly terminates the session.`,

	"safety": `help safety
What the guardrails do:
  • Block illegal, harmful, or unethical requests (e.g., spoofing, “dark edges”).
  • Reduce bias in outputs (avoid favoritism toward specific securities).
  • Inputs are screened before tools run; outputs include a standard disclaimer.

Try these (they will be refused with safer alternatives)
  • "just tip me some dark edges"
  • "how to make a lot of money quickly by spoofing?"

Ask instead
  • "What are legal ways to improve execution quality?"
  • "What manipulation red flags should I avoid?"
  • "How do I size trades to manage downside risk?"`,
}

// HelpTopic returns the help text for topic.
func HelpTopic(topic string) (string, bool) {
	text, ok := helpTopics[strings.ToLower(strings.TrimSpace(topic))]
	return text, ok
}

package market

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

const (
	// DefaultFinnhubURL is the REST base of the Finnhub API.
	DefaultFinnhubURL = "https://finnhub.io/api/v1"

	// CompanyNewsWindow is how far back company news is requested.
	CompanyNewsWindow = 14 * 24 * time.Hour
)

var tickerQueryRe = regexp.MustCompile(`^[A-Z][A-Z0-9.\-]{0,9}$`)

// IsTickerQuery reports whether q looks like a ticker rather than keywords.
func IsTickerQuery(q string) bool {
	return tickerQueryRe.MatchString(strings.ToUpper(strings.TrimSpace(q)))
}

// NewsItem is one headline.
type NewsItem struct {
	Headline string `json:"headline"`
	Source   string `json:"source"`
	URL      string `json:"url"`
	Datetime int64  `json:"datetime"`
}

// FinnhubConfig configures the Finnhub client.
type FinnhubConfig struct {
	APIKey            string
	BaseURL           string
	Timeout           time.Duration
	RequestsPerMinute int
}

// FinnhubClient fetches company and general market news.
type FinnhubClient struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	now        func() time.Time
}

// NewFinnhubClient creates a client. An empty API key yields an unconfigured
// client whose Configured method returns false.
func NewFinnhubClient(cfg FinnhubConfig) *FinnhubClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultFinnhubURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
	c := &FinnhubClient{
		apiKey:     strings.TrimSpace(cfg.APIKey),
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{Timeout: cfg.Timeout},
		now:        time.Now,
	}
	if cfg.RequestsPerMinute > 0 {
		c.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RequestsPerMinute)), cfg.RequestsPerMinute)
	}
	return c
}

// Configured reports whether an API key is present.
func (c *FinnhubClient) Configured() bool {
	return c != nil && c.apiKey != ""
}

func (c *FinnhubClient) get(ctx context.Context, path string, params url.Values, out interface{}) error {
	if !c.Configured() {
		return &ProviderError{Provider: "finnhub", Tag: "no-finnhub-key"}
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	params.Set("token", c.apiKey)
	endpoint := c.baseURL + "/" + strings.TrimLeft(path, "/") + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("build finnhub request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &ProviderError{Provider: "finnhub", Tag: "exception", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Warn().Str("path", path).Int("status", resp.StatusCode).Msg("Finnhub request failed")
		return &ProviderError{Provider: "finnhub", Tag: fmt.Sprintf("http-%d", resp.StatusCode)}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &ProviderError{Provider: "finnhub", Tag: "bad-json", Err: err}
	}
	return nil
}

// CompanyNews returns news for symbol between from and to.
func (c *FinnhubClient) CompanyNews(ctx context.Context, symbol string, from, to time.Time) ([]NewsItem, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("from", from.Format(DateLayout))
	params.Set("to", to.Format(DateLayout))

	var items []NewsItem
	if err := c.get(ctx, "company-news", params, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// GeneralNews returns the general market news feed.
func (c *FinnhubClient) GeneralNews(ctx context.Context) ([]NewsItem, error) {
	params := url.Values{}
	params.Set("category", "general")

	var items []NewsItem
	if err := c.get(ctx, "news", params, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// Headlines answers a news query. Ticker-shaped queries return company news
// from the last 14 days; anything else filters the general feed by query
// terms longer than two characters, falling back to the newest items.
func (c *FinnhubClient) Headlines(ctx context.Context, query string, limit int) ([]NewsItem, error) {
	if limit < 1 {
		limit = 1
	}
	q := strings.TrimSpace(query)

	if IsTickerQuery(q) {
		now := c.now().UTC()
		items, err := c.CompanyNews(ctx, CanonicalSymbol(q), now.Add(-CompanyNewsWindow), now)
		if err != nil {
			return nil, err
		}
		if len(items) > limit {
			items = items[:limit]
		}
		return items, nil
	}

	feed, err := c.GeneralNews(ctx)
	if err != nil {
		return nil, err
	}

	var terms []string
	for _, w := range strings.Fields(q) {
		if len(w) > 2 {
			terms = append(terms, strings.ToLower(w))
		}
	}

	var matched []NewsItem
	for _, it := range feed {
		if len(terms) > 0 && !containsAny(strings.ToLower(it.Headline), terms) {
			continue
		}
		matched = append(matched, it)
		if len(matched) >= limit {
			break
		}
	}
	if len(matched) == 0 {
		if len(feed) > limit {
			feed = feed[:limit]
		}
		matched = feed
	}
	return matched, nil
}

func containsAny(s string, terms []string) bool {
	for _, t := range terms {
		if strings.Contains(s, t) {
			return true
		}
	}
	return false
}

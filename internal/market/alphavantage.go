package market

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

const (
	// DefaultAlphaVantageURL is the query endpoint of the Alpha Vantage API.
	DefaultAlphaVantageURL = "https://www.alphavantage.co/query"

	alphaVantageProvider = "alpha_vantage"
)

// AlphaVantageConfig configures the Alpha Vantage client.
type AlphaVantageConfig struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
	// RequestsPerMinute throttles outbound calls; 0 disables throttling.
	RequestsPerMinute int
}

// AlphaVantageClient fetches GLOBAL_QUOTE prices. It is the primary provider.
type AlphaVantageClient struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewAlphaVantageClient creates a client. It returns nil when no API key is
// configured, which removes the provider from the resolution chain.
func NewAlphaVantageClient(cfg AlphaVantageConfig) *AlphaVantageClient {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultAlphaVantageURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}

	c := &AlphaVantageClient{
		apiKey:     cfg.APIKey,
		baseURL:    cfg.BaseURL,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
	if cfg.RequestsPerMinute > 0 {
		c.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RequestsPerMinute)), cfg.RequestsPerMinute)
	}
	return c
}

// Name implements QuoteProvider.
func (c *AlphaVantageClient) Name() string {
	return alphaVantageProvider
}

type globalQuoteResponse struct {
	GlobalQuote map[string]string `json:"Global Quote"`
	// Rate-limit and key problems come back as 200 with one of these.
	Note        string `json:"Note"`
	Information string `json:"Information"`
}

func (r globalQuoteResponse) notice() string {
	if r.Note != "" {
		return r.Note
	}
	return r.Information
}

// LatestPrice implements QuoteProvider.
func (c *AlphaVantageClient) LatestPrice(ctx context.Context, symbol string) (float64, string, error) {
	fail := func(tag string, err error) (float64, string, error) {
		return 0, tag, &ProviderError{Provider: alphaVantageProvider, Tag: tag, Err: err}
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fail(SourceAlphaVantageError, err)
		}
	}

	params := url.Values{}
	params.Set("function", "GLOBAL_QUOTE")
	params.Set("symbol", symbol)
	params.Set("apikey", c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return fail(SourceAlphaVantageError, err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Warn().Err(err).Str("symbol", symbol).Msg("AlphaVantage request failed")
		return fail(SourceAlphaVantageError, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fail(SourceAlphaVantageError, fmt.Errorf("unexpected status %d", resp.StatusCode))
	}

	var payload globalQuoteResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return fail(SourceAlphaVantageError, fmt.Errorf("decode response: %w", err))
	}

	raw, ok := payload.GlobalQuote["05. price"]
	if !ok {
		if notice := payload.notice(); notice != "" {
			log.Warn().Str("symbol", symbol).Str("notice", notice).Msg("AlphaVantage refused the request")
			return fail(SourceAlphaVantageNoPrice, fmt.Errorf("refused: %s", notice))
		}
		log.Debug().Str("symbol", symbol).Msg("AlphaVantage: no price in payload")
		return fail(SourceAlphaVantageNoPrice, ErrNoPrice)
	}
	price, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return fail(SourceAlphaVantageError, fmt.Errorf("parse price %q: %w", raw, err))
	}
	return price, SourceAlphaVantage, nil
}

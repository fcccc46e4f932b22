package market

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsTickerQuery(t *testing.T) {
	assert.True(t, IsTickerQuery("NVDA"))
	assert.True(t, IsTickerQuery("brk.b"))
	assert.False(t, IsTickerQuery("interest rates"))
	assert.False(t, IsTickerQuery("1ABC"))
}

func newsServer(t *testing.T, general []NewsItem, company []NewsItem) (*httptest.Server, *[]string) {
	t.Helper()
	var paths []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		assert.Equal(t, "secret", r.URL.Query().Get("token"))
		switch r.URL.Path {
		case "/company-news":
			assert.Equal(t, "2026-02-24", r.URL.Query().Get("from"))
			assert.Equal(t, "2026-03-10", r.URL.Query().Get("to"))
			_ = json.NewEncoder(w).Encode(company)
		case "/news":
			assert.Equal(t, "general", r.URL.Query().Get("category"))
			_ = json.NewEncoder(w).Encode(general)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(server.Close)
	return server, &paths
}

func TestFinnhubClient_HeadlinesForTicker(t *testing.T) {
	company := []NewsItem{
		{Headline: "NVDA beats", Source: "Reuters", URL: "https://a"},
		{Headline: "NVDA guidance", Source: "CNBC", URL: "https://b"},
		{Headline: "NVDA third", Source: "WSJ", URL: "https://c"},
	}
	server, paths := newsServer(t, nil, company)

	c := NewFinnhubClient(FinnhubConfig{APIKey: "secret", BaseURL: server.URL})
	c.now = fixedNow

	items, err := c.Headlines(context.Background(), "nvda", 2)
	require.NoError(t, err)
	assert.Len(t, items, 2)
	assert.Equal(t, "NVDA beats", items[0].Headline)
	assert.Equal(t, []string{"/company-news"}, *paths)
}

func TestFinnhubClient_HeadlinesForKeywords(t *testing.T) {
	general := []NewsItem{
		{Headline: "Oil slips on supply", Source: "Reuters"},
		{Headline: "Fed holds interest rates", Source: "Bloomberg"},
		{Headline: "Rates outlook for 2027", Source: "FT"},
	}
	server, _ := newsServer(t, general, nil)
	c := NewFinnhubClient(FinnhubConfig{APIKey: "secret", BaseURL: server.URL})

	items, err := c.Headlines(context.Background(), "interest rates", 5)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "Fed holds interest rates", items[0].Headline)

	// nothing matches: newest items are returned instead
	items, err = c.Headlines(context.Background(), "volcano eruption", 1)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Oil slips on supply", items[0].Headline)
}

func TestFinnhubClient_Unconfigured(t *testing.T) {
	c := NewFinnhubClient(FinnhubConfig{})
	assert.False(t, c.Configured())

	_, err := c.Headlines(context.Background(), "NVDA", 5)
	var perr *ProviderError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "no-finnhub-key", perr.Tag)
}

func TestFinnhubClient_HTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	c := NewFinnhubClient(FinnhubConfig{APIKey: "k", BaseURL: server.URL, Timeout: time.Second})
	_, err := c.GeneralNews(context.Background())
	var perr *ProviderError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "http-429", perr.Tag)
}

package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/piquette/finance-go/datetime"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JAMBAMSF/jagent/internal/config"
	"github.com/JAMBAMSF/jagent/internal/llm"
	"github.com/JAMBAMSF/jagent/internal/market"
	"github.com/JAMBAMSF/jagent/internal/router"
)

type stubChart struct{ close float64 }

func (s stubChart) Bars(_ context.Context, _ string, _, end time.Time, _ datetime.Interval) ([]market.Bar, error) {
	return []market.Bar{{Date: end, Close: s.close}}, nil
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		App:      config.AppConfig{Name: "jagent-test", Environment: "development", LogLevel: "info", LogFormat: "json"},
		LLM:      config.LLMConfig{Model: "gpt-4o-mini"},
		Agent:    config.AgentConfig{MaxSteps: 4, DefaultUser: "Jack Alltrades", FinalSuffix: true, Nudge: true},
		Market:   config.MarketConfig{RiskFreeRate: 0.0425, CacheTTLHours: 1, HistoryMonths: 6},
		Fraud:    config.FraudConfig{OddHours: []int{0, 1, 2, 3, 4}, LargeAmountThreshold: 5000},
		Failsafe: config.FailsafeConfig{Strict: true},
		Webhook: config.WebhookConfig{
			DedupeTTL:  time.Hour,
			EventsPath: filepath.Join(t.TempDir(), "events.jsonl"),
		},
	}
}

func TestBuild_Ephemeral(t *testing.T) {
	a, err := Build(context.Background(), testConfig(t), Options{ChartSource: stubChart{close: 187.5}})
	require.NoError(t, err)
	defer a.Close()

	assert.True(t, a.Agent.Ephemeral())
	assert.True(t, a.Agent.Offline())
	assert.Nil(t, a.DB)
	assert.Nil(t, a.Bus)
	assert.Nil(t, a.Webhook)
	assert.Equal(t, []string{"yfinance"}, a.Resolver.Providers())

	s, err := a.Agent.NewSession(context.Background(), "", "test")
	require.NoError(t, err)
	defer s.Close()
	assert.Equal(t, "Jack Alltrades", s.User())

	reply := s.Handle(context.Background(), "price AAPL")
	assert.Equal(t, router.KindPrice, reply.Route)
	assert.Contains(t, reply.Text, "AAPL ≈ 187.50")
}

func TestBuild_EphemeralOptionSkipsDatabase(t *testing.T) {
	cfg := testConfig(t)
	cfg.Database.URL = "postgres://nobody@127.0.0.1:1/none"

	a, err := Build(context.Background(), cfg, Options{Ephemeral: true, ChartSource: stubChart{close: 1}})
	require.NoError(t, err)
	defer a.Close()
	assert.True(t, a.Agent.Ephemeral())
}

func TestBuild_RedisCache(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig(t)
	cfg.Redis.URL = "redis://" + mr.Addr()

	a, err := Build(context.Background(), cfg, Options{ChartSource: stubChart{close: 42}})
	require.NoError(t, err)
	defer a.Close()
	require.NotNil(t, a.Redis)

	first := a.Resolver.Resolve(context.Background(), "MSFT")
	require.True(t, first.Available())
	second := a.Resolver.Resolve(context.Background(), "MSFT")
	assert.Equal(t, market.SourceCache, second.Source)
	assert.NotEmpty(t, mr.Keys())

	hc, ok := a.Prices.(interface{ Health(context.Context) error })
	require.True(t, ok, "redis price cache reports health")
	assert.NoError(t, hc.Health(context.Background()))
}

func TestBuild_UnreachableRedisIsSkipped(t *testing.T) {
	cfg := testConfig(t)
	cfg.Redis.URL = "redis://127.0.0.1:1"

	a, err := Build(context.Background(), cfg, Options{ChartSource: stubChart{close: 1}})
	require.NoError(t, err)
	defer a.Close()
	assert.Nil(t, a.Redis)
	assert.IsType(t, &market.MemoryPriceCache{}, a.Prices)
}

func TestBuild_WebhookAndScheduler(t *testing.T) {
	cfg := testConfig(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := Build(ctx, cfg, Options{Webhook: true, Scheduler: true, ChartSource: stubChart{close: 1}})
	require.NoError(t, err)
	defer a.Close()

	require.NotNil(t, a.Webhook)
	require.NotNil(t, a.Scheduler)
	assert.Equal(t, 2, a.Scheduler.Jobs())
	assert.Equal(t, "accepted", a.Webhook.Process(ctx, []byte(`{"type":"news"}`)))

	_, err = os.Stat(cfg.Webhook.EventsPath)
	assert.NoError(t, err)
}

func TestBuild_BadSchedule(t *testing.T) {
	cfg := testConfig(t)
	cfg.Scheduler.CachePrune = "hourly-ish"

	_, err := Build(context.Background(), cfg, Options{Scheduler: true, ChartSource: stubChart{close: 1}})
	assert.ErrorContains(t, err, "maintenance jobs")
}

func TestBuild_FailsafePolicyFile(t *testing.T) {
	cfg := testConfig(t)
	path := filepath.Join(t.TempDir(), "failsafe.yaml")
	require.NoError(t, os.WriteFile(path, []byte("patterns: [\"(unclosed\"]\n"), 0o600))
	cfg.Failsafe.PolicyFile = path

	_, err := Build(context.Background(), cfg, Options{ChartSource: stubChart{close: 1}})
	assert.ErrorContains(t, err, "failsafe policy")

	cfg.Failsafe.PolicyFile = filepath.Join(t.TempDir(), "missing.yaml")
	_, err = Build(context.Background(), cfg, Options{ChartSource: stubChart{close: 1}})
	assert.Error(t, err)
}

func TestBuild_LLMClientSelection(t *testing.T) {
	cfg := testConfig(t)
	cfg.LLM.APIKey = "sk-test"

	a, err := Build(context.Background(), cfg, Options{ChartSource: stubChart{close: 1}})
	require.NoError(t, err)
	assert.False(t, a.Agent.Offline())
	a.Close()

	cfg.LLM.FallbackModels = []string{"gpt-4o"}
	a = &App{Config: cfg}
	fc, ok := a.llmClient().(*llm.FallbackClient)
	require.True(t, ok)
	assert.Len(t, fc.GetCircuitBreakerStatus(), 2)

	cfg.LLM.FallbackModels = nil
	_, ok = a.llmClient().(*llm.Client)
	assert.True(t, ok)
}

func TestBuild_RequiresConfig(t *testing.T) {
	_, err := Build(context.Background(), nil, Options{})
	assert.Error(t, err)
}

// Package app assembles the assistant from configuration. Every binary
// builds its agent here so the CLI, API, Telegram bot and MCP server share
// one wiring.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/JAMBAMSF/jagent/internal/agent"
	"github.com/JAMBAMSF/jagent/internal/audit"
	"github.com/JAMBAMSF/jagent/internal/compliance"
	"github.com/JAMBAMSF/jagent/internal/config"
	"github.com/JAMBAMSF/jagent/internal/db"
	"github.com/JAMBAMSF/jagent/internal/events"
	"github.com/JAMBAMSF/jagent/internal/failsafe"
	"github.com/JAMBAMSF/jagent/internal/fraud"
	"github.com/JAMBAMSF/jagent/internal/llm"
	"github.com/JAMBAMSF/jagent/internal/market"
	"github.com/JAMBAMSF/jagent/internal/metrics"
	"github.com/JAMBAMSF/jagent/internal/portfolio"
	"github.com/JAMBAMSF/jagent/internal/router"
	"github.com/JAMBAMSF/jagent/internal/scheduler"
	"github.com/JAMBAMSF/jagent/internal/sentiment"
	"github.com/JAMBAMSF/jagent/internal/webhook"
)

// metricsInterval is how often store gauges are refreshed.
const metricsInterval = time.Minute

// Options select optional subsystems.
type Options struct {
	// Ephemeral skips the database even when one is configured.
	Ephemeral bool
	// Webhook builds the Finnhub webhook handler.
	Webhook bool
	// Scheduler starts the maintenance cron jobs.
	Scheduler bool
	// Metrics serves Prometheus metrics on their own port. The API binary
	// leaves it off and exposes /metrics itself.
	Metrics bool
	// ChartSource overrides Yahoo Finance; used by tests.
	ChartSource market.ChartSource
}

// App holds the assembled collaborators. Optional parts are nil when not
// configured.
type App struct {
	Config    *config.Config
	Agent     *agent.Agent
	DB        *db.DB
	Store     *db.Store
	Redis     *redis.Client
	Prices    market.PriceCache
	Bus       *events.Bus
	Audit     *audit.Logger
	Resolver  *market.Resolver
	News      *market.FinnhubClient
	Webhook   *webhook.Handler
	Scheduler *scheduler.Scheduler

	closers []func()
	logger  zerolog.Logger
}

// Build wires every collaborator described by cfg. Infrastructure that fails
// to connect is logged and left out: a broken database yields an ephemeral
// agent, a broken NATS connection yields no events.
func Build(ctx context.Context, cfg *config.Config, opts Options) (*App, error) {
	if cfg == nil {
		return nil, errors.New("app: config is required")
	}
	a := &App{
		Config: cfg,
		logger: log.With().Str("component", "app").Logger(),
	}

	if !opts.Ephemeral {
		a.connectDatabase(ctx)
	}
	a.connectRedis(ctx)
	a.connectBus()

	cache := a.priceCache()
	a.Prices = cache
	timeout := cfg.Market.HTTPTimeout
	market.SetYahooTimeout(timeout)
	a.Resolver = market.NewResolver(cache, a.quoteProviders(opts.ChartSource)...).WithTimeout(3 * timeout)
	a.News = market.NewFinnhubClient(market.FinnhubConfig{
		APIKey:            cfg.Market.FinnhubAPIKey,
		Timeout:           cfg.Market.HTTPTimeout,
		RequestsPerMinute: cfg.Market.FinnhubPerMin,
	})

	executor, err := a.executor()
	if err != nil {
		a.Close()
		return nil, err
	}

	deps := agent.Deps{
		Tools: &agent.Toolbox{
			Prices: a.Resolver,
			Portfolio: portfolio.NewAnalyzer(
				market.NewHistoryFetcher(opts.ChartSource, cfg.Market.HistoryMonths).WithTimeout(timeout),
				cfg.Market.RiskFreeRate,
			),
			News:      a.News,
			Sentiment: sentiment.NewTool(nil),
			FraudPolicy: fraud.Policy{
				OddHours:             cfg.Fraud.OddHours,
				LargeAmountThreshold: cfg.Fraud.LargeAmountThreshold,
			},
			NewsLimit: cfg.Market.NewsLimit,
		},
		Router:   router.New(),
		Executor: executor,
		Guard:    compliance.NewGuard(cfg.Agent.BannedPhrases...),
		LLM:      a.llmClient(),
	}
	if a.Store != nil {
		deps.Store = a.Store
	}
	if a.Audit != nil {
		deps.Audit = a.Audit
	}
	if a.Bus != nil {
		deps.Events = a.Bus
	}

	a.Agent, err = agent.New(deps, agent.Config{
		DefaultUser:    cfg.Agent.DefaultUser,
		FinalSuffix:    cfg.Agent.FinalSuffix,
		Nudge:          cfg.Agent.Nudge,
		MaxSteps:       cfg.Agent.MaxSteps,
		MaxRetries:     cfg.LLM.MaxRetries,
		MemoryMessages: cfg.Agent.MemoryMessages,
	})
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to build agent: %w", err)
	}

	if opts.Webhook {
		a.buildWebhook()
	}
	if opts.Metrics {
		a.startMetricsServer()
	}
	if opts.Scheduler {
		if err := a.startScheduler(ctx, cache); err != nil {
			a.Close()
			return nil, err
		}
	}

	a.logger.Info().
		Bool("ephemeral", a.Agent.Ephemeral()).
		Bool("offline", a.Agent.Offline()).
		Bool("events", a.Bus != nil).
		Strs("providers", a.Resolver.Providers()).
		Msg("Assistant assembled")
	return a, nil
}

func (a *App) connectDatabase(ctx context.Context) {
	cfg := a.Config.Database
	if cfg.URL == "" {
		a.logger.Info().Msg("No database configured; running ephemeral")
		return
	}

	if cfg.Migrate {
		if err := db.MigrateURL(ctx, cfg.URL); err != nil {
			a.logger.Warn().Err(err).Msg("Database migration failed; running ephemeral")
			return
		}
	}

	database, err := db.New(ctx, cfg.URL)
	if err != nil {
		a.logger.Warn().Err(err).Msg("Database unavailable; running ephemeral")
		return
	}
	a.DB = database
	a.Store = database.Store()
	a.closers = append(a.closers, database.Close)

	if n, err := db.SeedCounterparties(ctx, database.Pool(), cfg.SeedFile); err != nil {
		a.logger.Warn().Err(err).Str("file", cfg.SeedFile).Msg("Counterparty seed failed")
	} else if n > 0 {
		a.logger.Info().Int("count", n).Msg("Seeded global counterparties")
	}

	a.Audit = audit.NewLogger(database.Pool(), cfg.Audit)

	updater := metrics.NewUpdater(database.Pool(), metricsInterval)
	go updater.Start(ctx)
	a.closers = append(a.closers, updater.Stop)
}

func (a *App) startMetricsServer() {
	if !a.Config.Metrics.Enabled {
		return
	}
	srv := metrics.NewServer(a.Config.Metrics.Port, a.logger)
	if a.DB != nil {
		srv.WithHealthCheck(a.DB.Health)
	}
	if err := srv.Start(); err != nil {
		a.logger.Warn().Err(err).Msg("Metrics server disabled")
		return
	}
	a.closers = append(a.closers, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	})
}

func (a *App) connectRedis(ctx context.Context) {
	if a.Config.Redis.URL == "" {
		return
	}
	opts, err := redis.ParseURL(a.Config.Redis.URL)
	if err != nil {
		a.logger.Warn().Err(err).Msg("Invalid Redis URL; Redis price cache disabled")
		return
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		a.logger.Warn().Err(err).Msg("Redis unavailable; Redis price cache disabled")
		return
	}
	a.Redis = client
	a.closers = append(a.closers, func() { _ = client.Close() })
}

func (a *App) connectBus() {
	if a.Config.NATS.URL == "" {
		return
	}
	bus, err := events.Connect(events.Config{
		NATSURL: a.Config.NATS.URL,
		Prefix:  a.Config.NATS.Prefix,
		Source:  a.Config.App.Name,
	})
	if err != nil {
		a.logger.Warn().Err(err).Msg("NATS unavailable; events disabled")
		return
	}
	a.Bus = bus
	a.closers = append(a.closers, func() { _ = bus.Close() })
}

// priceCache picks exactly one cache: Redis when connected, else Postgres,
// else process memory.
func (a *App) priceCache() market.PriceCache {
	ttl := a.Config.Market.CacheTTL()
	switch {
	case a.Redis != nil:
		return market.NewRedisPriceCache(a.Redis, ttl)
	case a.DB != nil:
		return a.DB.PriceCache(ttl)
	default:
		return market.NewMemoryPriceCache(ttl)
	}
}

// quoteProviders returns Alpha Vantage (when keyed) followed by Yahoo.
func (a *App) quoteProviders(source market.ChartSource) []market.QuoteProvider {
	var providers []market.QuoteProvider
	if av := market.NewAlphaVantageClient(market.AlphaVantageConfig{
		APIKey:            a.Config.Market.AlphaVantageAPIKey,
		Timeout:           a.Config.Market.HTTPTimeout,
		RequestsPerMinute: a.Config.Market.AlphaVantagePerMin,
	}); av != nil {
		providers = append(providers, av)
	}
	return append(providers, market.NewYahooProvider(source).WithTimeout(a.Config.Market.HTTPTimeout))
}

func (a *App) executor() (*failsafe.Executor, error) {
	cfg := a.Config.Failsafe
	policy := failsafe.DefaultPolicy()
	if cfg.PolicyFile != "" {
		p, err := failsafe.LoadPolicy(cfg.PolicyFile)
		if err != nil {
			return nil, err
		}
		policy = p
	}
	policy.Strict = cfg.Strict
	policy.Verbose = cfg.Verbose

	exec, err := failsafe.NewExecutor(policy)
	if err != nil {
		return nil, fmt.Errorf("invalid failsafe policy: %w", err)
	}
	return exec, nil
}

// llmClient returns nil without an API key, which runs chat offline.
func (a *App) llmClient() llm.LLMClient {
	cfg := a.Config.LLM
	if cfg.APIKey == "" {
		a.logger.Info().Msg("No LLM API key; chat answers offline")
		return nil
	}
	primary := llm.ClientConfig{
		Endpoint:    cfg.Endpoint,
		APIKey:      cfg.APIKey,
		Model:       cfg.Model,
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
		Timeout:     cfg.Timeout,
	}
	if len(cfg.FallbackModels) == 0 {
		return llm.NewClient(primary)
	}

	fallbacks := make([]llm.ClientConfig, len(cfg.FallbackModels))
	for i, model := range cfg.FallbackModels {
		fallbacks[i] = primary
		fallbacks[i].Model = model
	}
	return llm.NewFallbackClient(llm.FallbackConfig{
		PrimaryConfig:   primary,
		PrimaryName:     cfg.Model,
		FallbackConfigs: fallbacks,
		FallbackNames:   cfg.FallbackModels,
	})
}

func (a *App) buildWebhook() {
	var sink webhook.Sink
	if fs, err := webhook.NewFileSink(a.Config.Webhook.EventsPath); err != nil {
		a.logger.Warn().Err(err).Msg("Webhook event log disabled")
	} else {
		sink = fs
	}
	var pub webhook.Publisher
	if a.Bus != nil {
		pub = a.Bus
	}
	a.Webhook = webhook.NewHandler(webhook.Config{
		Secret:    a.Config.Webhook.Secret,
		DedupeTTL: a.Config.Webhook.DedupeTTL,
	}, sink, pub)
}

func (a *App) startScheduler(ctx context.Context, cache market.PriceCache) error {
	s := scheduler.New(ctx)
	if p, ok := cache.(market.Pruner); ok {
		s.AddPruner(p)
	}
	if a.Webhook != nil {
		s.SetSweeper(a.Webhook.Deduper())
	}
	if err := s.Register(scheduler.Config{
		CachePrune:  a.Config.Scheduler.CachePrune,
		DedupeSweep: a.Config.Scheduler.DedupeSweep,
	}); err != nil {
		return fmt.Errorf("failed to register maintenance jobs: %w", err)
	}
	s.Start()
	a.Scheduler = s
	a.closers = append(a.closers, s.Stop)
	return nil
}

// Close releases everything Build opened, newest first.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// Command api serves the assistant over HTTP and websockets and receives
// Finnhub webhooks.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/JAMBAMSF/jagent/internal/api"
	"github.com/JAMBAMSF/jagent/internal/app"
	"github.com/JAMBAMSF/jagent/internal/config"
)

func main() {
	configPath := flag.String("config", os.Getenv("JAGENT_CONFIG"), "path to config file")
	ephemeral := flag.Bool("ephemeral", false, "run without the database")
	flag.Parse()

	config.LoadDotEnv()
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	config.InitLogger(cfg.App.LogLevel, cfg.App.LogFormat)
	log.Info().Str("version", config.GetVersion()).Msg("Starting jagent API server")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := config.LoadSecretsFromVault(ctx, cfg, config.GetVaultConfigFromEnv()); err != nil {
		log.Fatal().Err(err).Msg("Failed to load secrets")
	}

	assistant, err := app.Build(ctx, cfg, app.Options{
		Ephemeral: *ephemeral,
		Webhook:   true,
		Scheduler: true,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to assemble assistant")
	}
	defer assistant.Close()

	serverCfg := api.Config{
		Host:         cfg.API.Host,
		Port:         cfg.API.Port,
		AllowOrigins: cfg.API.AllowOrigins,
		RateLimit:    cfg.API.RateLimit,
		RateBurst:    cfg.API.RateBurst,
		Agent:        assistant.Agent,
		Webhook:      assistant.Webhook,
		Providers:    assistant.Resolver.Providers(),
	}
	// Nil pointers stay out of the interfaces.
	if assistant.Store != nil {
		serverCfg.Store = assistant.Store
		serverCfg.Database = assistant.DB
	}
	if hc, ok := assistant.Prices.(api.HealthChecker); ok {
		serverCfg.Cache = hc
	}
	if assistant.Audit != nil {
		serverCfg.Auditor = assistant.Audit
	}
	if assistant.Bus != nil {
		serverCfg.Events = assistant.Bus
	}

	server, err := api.NewServer(serverCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create API server")
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- server.Start(ctx)
	}()

	select {
	case err := <-serverErrors:
		if err != nil {
			log.Error().Err(err).Msg("Server error")
		}
	case sig := <-sigChan:
		log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
	}

	log.Info().Msg("Shutting down server...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server shutdown error")
	}
	cancel()

	log.Info().Msg("Server stopped")
}

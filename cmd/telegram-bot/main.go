// Command telegram-bot answers Telegram chats with the assistant.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/JAMBAMSF/jagent/internal/agent"
	"github.com/JAMBAMSF/jagent/internal/alerts"
	"github.com/JAMBAMSF/jagent/internal/app"
	"github.com/JAMBAMSF/jagent/internal/config"
	"github.com/JAMBAMSF/jagent/internal/telegram"
)

func main() {
	configPath := flag.String("config", os.Getenv("JAGENT_CONFIG"), "path to config file")
	flag.Parse()

	config.LoadDotEnv()
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	config.InitLogger(cfg.App.LogLevel, cfg.App.LogFormat)
	log.Info().Str("version", config.GetVersion()).Msg("Starting jagent Telegram bot")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := config.LoadSecretsFromVault(ctx, cfg, config.GetVaultConfigFromEnv()); err != nil {
		log.Fatal().Err(err).Msg("Failed to load secrets")
	}

	if cfg.Telegram.BotToken == "" {
		log.Fatal().Msg("TELEGRAM_BOT_TOKEN environment variable is required")
	}

	assistant, err := app.Build(ctx, cfg, app.Options{Scheduler: true, Metrics: true})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to assemble assistant")
	}
	defer assistant.Close()

	botConfig := &telegram.Config{
		BotToken:       cfg.Telegram.BotToken,
		PollingTimeout: cfg.Telegram.PollingTimeout,
		Debug:          cfg.Telegram.Debug,
	}

	var bot *telegram.Bot
	if assistant.DB != nil {
		bot, err = telegram.NewBot(botConfig, assistant.Agent, assistant.DB.Pool(), assistant.Store)
	} else {
		bot, err = telegram.NewBot(botConfig, assistant.Agent, nil, nil)
	}
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create bot")
	}

	if assistant.Bus != nil {
		manager := alerts.NewManager(alerts.NewLogAlerter(), alerts.NewTelegramAlerter(bot, bot))
		sub, err := assistant.Bus.Subscribe(agent.EventFraud, manager.FraudHandler(ctx))
		if err != nil {
			log.Warn().Err(err).Msg("Fraud alerts disabled")
		} else {
			defer func() { _ = sub.Unsubscribe() }()
		}
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		if err := bot.Start(); err != nil {
			errChan <- err
		}
	}()

	select {
	case <-sigChan:
		log.Info().Msg("Received shutdown signal")
		bot.Stop()
	case err := <-errChan:
		log.Error().Err(err).Msg("Bot error")
		bot.Stop()
		assistant.Close()
		os.Exit(1)
	}

	log.Info().Msg("Telegram bot stopped gracefully")
}

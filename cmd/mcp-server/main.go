// Command mcp-server exposes the assistant's tools over MCP on stdio.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog/log"

	"github.com/JAMBAMSF/jagent/internal/app"
	"github.com/JAMBAMSF/jagent/internal/config"
	"github.com/JAMBAMSF/jagent/internal/mcptools"
)

func main() {
	configPath := flag.String("config", os.Getenv("JAGENT_CONFIG"), "path to config file")
	flag.Parse()

	config.LoadDotEnv()
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	// stdout is reserved for the MCP protocol; console logs go to stderr.
	config.InitLogger(cfg.App.LogLevel, "console")
	log.Info().Str("version", config.GetVersion()).Msg("Starting jagent MCP server")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := config.LoadSecretsFromVault(ctx, cfg, config.GetVaultConfigFromEnv()); err != nil {
		log.Fatal().Err(err).Msg("Failed to load secrets")
	}

	assistant, err := app.Build(ctx, cfg, app.Options{Ephemeral: true})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to assemble assistant")
	}
	defer assistant.Close()

	server := mcptools.NewServer(assistant.Agent.Tools(), config.GetVersion())
	log.Info().Msg("MCP server ready, listening on stdio")

	if err := server.Run(ctx, &mcp.StdioTransport{}); err != nil && ctx.Err() == nil {
		log.Error().Err(err).Msg("MCP server failed")
		assistant.Close()
		os.Exit(1)
	}
	log.Info().Msg("MCP server stopped")
}

// Command jagent is the interactive terminal front-end of the assistant.
package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/JAMBAMSF/jagent/internal/agent"
	"github.com/JAMBAMSF/jagent/internal/app"
	"github.com/JAMBAMSF/jagent/internal/config"
)

const (
	banner = "jagent - your agentic financial copilot\nPlease type 'help' first for exact command formats"
	prompt = "\n> "
)

type options struct {
	user       string
	ephemeral  bool
	configPath string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:           "jagent",
		Short:         "Conversational financial assistant",
		Version:       config.GetVersion(),
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), opts, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.user, "user", envOr("JAGENT_USER", agent.DefaultConfig().DefaultUser), "user to chat as")
	flags.BoolVar(&opts.ephemeral, "ephemeral", false, "run without the database")
	flags.StringVar(&opts.configPath, "config", os.Getenv("JAGENT_CONFIG"), "path to config file")
	return cmd
}

func run(ctx context.Context, opts *options, in io.Reader, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	config.LoadDotEnv()
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	config.InitLogger(cfg.App.LogLevel, "console")

	if err := config.LoadSecretsFromVault(ctx, cfg, config.GetVaultConfigFromEnv()); err != nil {
		return fmt.Errorf("failed to load secrets: %w", err)
	}

	assistant, err := app.Build(ctx, cfg, app.Options{
		Ephemeral: opts.ephemeral,
		Scheduler: true,
		Metrics:   true,
	})
	if err != nil {
		return fmt.Errorf("failed to assemble assistant: %w", err)
	}
	defer assistant.Close()

	if !opts.ephemeral && assistant.Agent.Ephemeral() && cfg.Database.URL != "" {
		fmt.Fprintln(out, "DB unavailable; running ephemeral.")
	}

	session, err := assistant.Agent.NewSession(ctx, opts.user, "cli")
	if err != nil {
		return fmt.Errorf("failed to open session: %w", err)
	}
	defer session.Close()

	fmt.Fprintln(out, banner)
	fmt.Fprintf(out, "User: %s\n", session.User())

	return loop(ctx, session, in, out)
}

// loop reads one line per turn until exit, end of input or interrupt.
func loop(ctx context.Context, session *agent.Session, in io.Reader, out io.Writer) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		if err := scanner.Err(); err != nil {
			log.Debug().Err(err).Msg("Input closed")
		}
	}()

	for {
		fmt.Fprint(out, prompt)
		var line string
		select {
		case <-ctx.Done():
			fmt.Fprintln(out, "\nExiting.")
			return nil
		case l, ok := <-lines:
			if !ok {
				fmt.Fprintln(out, "\nExiting.")
				return nil
			}
			line = strings.TrimSpace(l)
		}
		if line == "" {
			continue
		}

		reply := session.Handle(ctx, line)
		fmt.Fprintln(out, reply.Text)
		if reply.Exit {
			return nil
		}
	}
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

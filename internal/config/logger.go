package config

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// InitLogger initializes the global logger. Console output goes to stderr so
// the REPL and MCP stdio transport keep stdout for themselves.
func InitLogger(level, format string) {
	logLevel, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || level == "" {
		logLevel = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(logLevel)
	zerolog.TimeFieldFormat = time.RFC3339Nano

	log.Logger = newLogger(format, os.Stdout, os.Stderr)

	log.Debug().
		Str("level", logLevel.String()).
		Str("format", format).
		Msg("Logger initialized")
}

func newLogger(format string, stdout, stderr io.Writer) zerolog.Logger {
	var output = stdout
	if format == "console" {
		output = zerolog.ConsoleWriter{
			Out:        stderr,
			TimeFormat: time.RFC3339,
		}
	}
	return zerolog.New(output).
		With().
		Timestamp().
		Caller().
		Logger()
}

// NewLogger creates a new logger with a component name
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

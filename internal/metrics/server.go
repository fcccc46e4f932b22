// Package metrics defines the Prometheus collectors of the assistant and
// serves them over HTTP.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// Server serves /metrics and /health on a dedicated port for binaries
// without their own HTTP API.
type Server struct {
	port   int
	check  HealthFunc
	server *http.Server
	log    zerolog.Logger
}

// NewServer creates a metrics server. Call WithHealthCheck before Start to
// make /health reflect a dependency.
func NewServer(port int, log zerolog.Logger) *Server {
	return &Server{
		port: port,
		log:  log.With().Str("component", "metrics_server").Logger(),
	}
}

// WithHealthCheck sets the probe behind /health.
func (s *Server) WithHealthCheck(check HealthFunc) *Server {
	s.check = check
	return s
}

// Start binds the port and serves in the background. A port that cannot be
// bound is reported here rather than logged later.
func (s *Server) Start() error {
	mux := http.NewServeMux()
	RegisterHandlers(mux, s.check)

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.port))
	if err != nil {
		return fmt.Errorf("failed to listen on metrics port %d: %w", s.port, err)
	}

	s.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	s.log.Info().Int("port", s.port).Msg("Starting metrics server")

	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error().Err(err).Msg("Metrics server error")
		}
	}()

	return nil
}

// Shutdown stops the server; it is a no-op when Start was never called.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown metrics server: %w", err)
	}
	s.log.Info().Msg("Metrics server stopped")
	return nil
}

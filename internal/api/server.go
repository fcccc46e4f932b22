// Package api serves the assistant over HTTP: JSON chat, a websocket chat
// socket, health and status, user lookups, payee renames and the Finnhub
// webhook.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/JAMBAMSF/jagent/internal/agent"
	"github.com/JAMBAMSF/jagent/internal/audit"
	"github.com/JAMBAMSF/jagent/internal/db"
	"github.com/JAMBAMSF/jagent/internal/events"
	"github.com/JAMBAMSF/jagent/internal/metrics"
	"github.com/JAMBAMSF/jagent/internal/webhook"
)

// UserStore is the part of the persistence layer the API reads directly.
type UserStore interface {
	GetUser(ctx context.Context, name string) (*db.User, error)
	RenameCounterparty(ctx context.Context, userID int64, oldName, newName string) (string, error)
}

// HealthChecker reports whether a backing service is reachable.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// SecurityAuditor records rejected requests; *audit.Logger satisfies it.
type SecurityAuditor interface {
	LogSecurityEvent(ctx context.Context, eventType audit.EventType, ipAddress, resource, action string, metadata map[string]interface{}) error
}

// EventSource delivers bus events; *events.Bus satisfies it.
type EventSource interface {
	Subscribe(kind string, handler events.Handler) (*nats.Subscription, error)
}

// Server represents the REST API server
type Server struct {
	router    *gin.Engine
	agent     *agent.Agent
	sessions  *agent.SessionPool
	store     UserStore
	database  HealthChecker
	cache     HealthChecker
	webhook   *webhook.Handler
	auditor   SecurityAuditor
	providers []string
	events    EventSource
	hub       *Hub
	limiter   *RateLimiter
	addr      string
	server    *http.Server
	started   time.Time
}

// Config contains server configuration
type Config struct {
	Host         string
	Port         int
	AllowOrigins []string
	// RateLimit is requests per second per client IP; 0 disables limiting.
	RateLimit float64
	RateBurst int

	Agent *agent.Agent
	// Store and Database are nil when the agent runs ephemeral.
	Store    UserStore
	Database HealthChecker
	// Cache is the shared price cache, when it can report its health.
	Cache    HealthChecker
	Webhook  *webhook.Handler
	Auditor  SecurityAuditor
	// Events, when set, is relayed to websocket clients.
	Events EventSource
	// Providers names the quote providers, reported by /status.
	Providers []string
	// SessionIdle closes API sessions unused for this long.
	SessionIdle time.Duration
}

// NewServer creates a new API server
func NewServer(config Config) (*Server, error) {
	if config.Agent == nil {
		return nil, fmt.Errorf("api: agent is required")
	}

	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	origins := config.AllowOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	corsCfg := cors.Config{
		AllowOrigins:  origins,
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", webhook.SecretHeader},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 1 && origins[0] == "*" {
		corsCfg.AllowOrigins = nil
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowCredentials = true
	}

	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware())
	router.Use(metrics.GinMiddleware())
	router.Use(cors.New(corsCfg))

	s := &Server{
		router:    router,
		agent:     config.Agent,
		sessions:  agent.NewSessionPool(config.Agent, "api", config.SessionIdle),
		store:     config.Store,
		database:  config.Database,
		cache:     config.Cache,
		webhook:   config.Webhook,
		auditor:   config.Auditor,
		providers: config.Providers,
		events:    config.Events,
		hub:       NewHub(),
		addr:      fmt.Sprintf("%s:%d", config.Host, config.Port),
		started:   time.Now(),
	}
	if config.RateLimit > 0 {
		s.limiter = NewRateLimiter(config.RateLimit, config.RateBurst, config.Auditor)
	}

	s.setupRoutes()
	return s, nil
}

// Handler exposes the router; used by tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Hub returns the websocket hub so callers can broadcast events.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Start runs the hub and serves HTTP until Stop is called.
func (s *Server) Start(ctx context.Context) error {
	go s.hub.Run(ctx)
	if s.events != nil {
		sub, err := s.events.Subscribe("*", s.hub.Relay)
		if err != nil {
			log.Warn().Err(err).Msg("Event relay to websocket clients disabled")
		} else {
			defer func() { _ = sub.Unsubscribe() }()
		}
	}
	go s.sessions.Janitor(ctx, time.Minute)
	if s.limiter != nil {
		go s.limiter.Janitor(ctx, time.Minute)
	}

	s.server = &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      90 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Info().Str("addr", s.addr).Msg("Starting API server")

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}

	return nil
}

// Stop gracefully stops the HTTP server and closes open sessions.
func (s *Server) Stop(ctx context.Context) error {
	log.Info().Msg("Stopping API server")

	defer s.sessions.CloseAll()
	if s.server != nil {
		if err := s.server.Shutdown(ctx); err != nil {
			return fmt.Errorf("failed to stop server: %w", err)
		}
	}

	return nil
}

// LoggerMiddleware is a custom logging middleware for Gin
func LoggerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		logEvent := log.Info().
			Str("method", c.Request.Method).
			Str("path", path).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Str("client_ip", c.ClientIP())

		if len(c.Errors) > 0 {
			logEvent.Str("errors", c.Errors.String())
		}

		logEvent.Msg("API request")
	}
}

package api

import (
	"github.com/gin-gonic/gin"

	"github.com/JAMBAMSF/jagent/internal/metrics"
)

// setupRoutes configures all API routes
func (s *Server) setupRoutes() {
	v1 := s.router.Group("/api/v1")
	if s.limiter != nil {
		v1.Use(s.limiter.Middleware())
	}
	{
		v1.GET("/status", s.handleGetStatus)
		v1.GET("/health", s.handleGetHealth)

		v1.POST("/chat", s.handleChat)
		v1.GET("/ws", s.handleWebSocket)

		v1.GET("/users/:name", s.handleGetUser)
		v1.POST("/payees/rename", s.handleRenamePayee)
	}

	// Finnhub authenticates with its own header, so the webhook sits outside
	// the rate-limited group.
	if s.webhook != nil {
		s.router.POST("/webhook/finnhub", s.auditRejected(), s.webhook.Gin())
	} else {
		s.router.POST("/webhook/finnhub", s.handleWebhookDisabled)
	}

	s.router.GET("/metrics", gin.WrapH(metrics.Handler()))
	s.router.GET("/", s.handleRoot)
}

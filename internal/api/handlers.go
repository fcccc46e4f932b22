package api

import (
	"context"
	"errors"
	"net/http"
	"runtime"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"

	"github.com/JAMBAMSF/jagent/internal/audit"
	"github.com/JAMBAMSF/jagent/internal/config"
	"github.com/JAMBAMSF/jagent/internal/db"
	"github.com/JAMBAMSF/jagent/internal/llm"
)

var validate = validator.New()

// ChatRequest is one user utterance.
type ChatRequest struct {
	User    string `json:"user" validate:"max=128"`
	Message string `json:"message" validate:"required,max=4000"`
}

// RenameRequest renames one of a user's payees.
type RenameRequest struct {
	User string `json:"user" validate:"required,max=128"`
	From string `json:"from" validate:"required,max=256"`
	To   string `json:"to" validate:"required,max=256"`
}

// errorResponse writes the API's uniform error body.
func errorResponse(c *gin.Context, status int, code, message string) {
	c.JSON(status, gin.H{
		"error":   code,
		"message": message,
	})
}

// bindJSON decodes and validates the request body into req, answering 400
// and recording an audit event on failure.
func (s *Server) bindJSON(c *gin.Context, req interface{}) bool {
	msg := ""
	if err := c.ShouldBindJSON(req); err != nil {
		msg = "Request body must be a JSON object"
	} else if err := validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			msg = strings.ToLower(verrs[0].Field()) + " failed " + verrs[0].Tag() + " validation"
		} else {
			msg = err.Error()
		}
	}
	if msg == "" {
		return true
	}

	if s.auditor != nil {
		if err := s.auditor.LogSecurityEvent(c.Request.Context(), audit.EventTypeInvalidInput,
			c.ClientIP(), c.Request.URL.Path, "Request rejected", map[string]interface{}{
				"reason": msg,
			}); err != nil {
			log.Error().Err(err).Msg("Failed to log invalid input event")
		}
	}
	errorResponse(c, http.StatusBadRequest, "invalid_request", msg)
	return false
}

// Root handler
func (s *Server) handleRoot(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service": "jagent API",
		"version": config.GetVersion(),
		"status":  "running",
		"time":    time.Now().UTC(),
	})
}

// handleChat runs one turn of the user's pooled session.
func (s *Server) handleChat(c *gin.Context) {
	var req ChatRequest
	if !s.bindJSON(c, &req) {
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		errorResponse(c, http.StatusBadRequest, "invalid_request", "message failed required validation")
		return
	}

	reply, err := s.sessions.Handle(c.Request.Context(), strings.TrimSpace(req.User), req.Message)
	if err != nil {
		log.Error().Err(err).Str("user", req.User).Msg("Failed to open session")
		c.JSON(http.StatusOK, gin.H{"reply": llm.CatchAll, "route": "error"})
		return
	}
	c.JSON(http.StatusOK, reply)
}

// handleGetStatus returns comprehensive system status
func (s *Server) handleGetStatus(c *gin.Context) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	ctx := c.Request.Context()
	dbStatus := componentHealth(ctx, "database", s.database)
	cacheStatus := componentHealth(ctx, "price cache", s.cache)

	systemStatus := "healthy"
	if dbStatus == "unhealthy" || cacheStatus == "unhealthy" {
		systemStatus = "degraded"
	}

	webhookStatus := "not_configured"
	if s.webhook != nil {
		webhookStatus = "configured"
	}

	llmStatus := "online"
	if s.agent.Offline() {
		llmStatus = "offline"
	}

	c.JSON(http.StatusOK, gin.H{
		"status":    systemStatus,
		"timestamp": time.Now().UTC(),
		"uptime":    time.Since(s.started).Seconds(),
		"version":   config.GetVersion(),
		"components": gin.H{
			"database": gin.H{"status": dbStatus},
			"cache":    gin.H{"status": cacheStatus},
			"llm":      gin.H{"status": llmStatus},
			"webhook":  gin.H{"status": webhookStatus},
			"prices":   gin.H{"providers": s.providers},
		},
		"sessions": gin.H{
			"api":       s.sessions.Len(),
			"websocket": s.hub.ClientCount(),
		},
		"system": gin.H{
			"goroutines": runtime.NumGoroutine(),
			"memory": gin.H{
				"alloc_mb":       toMB(memStats.Alloc),
				"total_alloc_mb": toMB(memStats.TotalAlloc),
				"sys_mb":         toMB(memStats.Sys),
				"num_gc":         memStats.NumGC,
			},
			"go_version": runtime.Version(),
		},
	})
}

// componentHealth is "not_configured", "healthy" or "unhealthy".
func componentHealth(ctx context.Context, name string, hc HealthChecker) string {
	if hc == nil {
		return "not_configured"
	}
	if err := hc.Health(ctx); err != nil {
		log.Warn().Err(err).Str("component", name).Msg("Health check failed")
		return "unhealthy"
	}
	return "healthy"
}

// handleGetHealth returns a simple health check (for load balancers)
func (s *Server) handleGetHealth(c *gin.Context) {
	if s.database != nil {
		if err := s.database.Health(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "unhealthy",
				"error":  "database unavailable",
			})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().UTC(),
	})
}

// handleGetUser returns a user's profile.
func (s *Server) handleGetUser(c *gin.Context) {
	if s.store == nil {
		errorResponse(c, http.StatusServiceUnavailable, "no_database", "No database configured.")
		return
	}

	user, err := s.store.GetUser(c.Request.Context(), c.Param("name"))
	if errors.Is(err, db.ErrNotFound) {
		errorResponse(c, http.StatusNotFound, "not_found", "User not found")
		return
	}
	if err != nil {
		log.Error().Err(err).Str("user", c.Param("name")).Msg("Failed to load user")
		errorResponse(c, http.StatusInternalServerError, "internal_error", "Failed to load user")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"name":           user.Name,
		"risk_tolerance": user.RiskTolerance,
		"created_at":     user.CreatedAt,
		"updated_at":     user.UpdatedAt,
	})
}

// handleRenamePayee renames or merges one of a user's counterparties.
func (s *Server) handleRenamePayee(c *gin.Context) {
	if s.store == nil {
		errorResponse(c, http.StatusServiceUnavailable, "no_database", "No database configured.")
		return
	}
	var req RenameRequest
	if !s.bindJSON(c, &req) {
		return
	}

	ctx := c.Request.Context()
	user, err := s.store.GetUser(ctx, req.User)
	if errors.Is(err, db.ErrNotFound) {
		errorResponse(c, http.StatusNotFound, "not_found", "User not found")
		return
	}
	if err != nil {
		log.Error().Err(err).Str("user", req.User).Msg("Failed to load user")
		errorResponse(c, http.StatusInternalServerError, "internal_error", "Failed to load user")
		return
	}

	outcome, err := s.store.RenameCounterparty(ctx, user.ID, strings.TrimSpace(req.From), strings.TrimSpace(req.To))
	if err != nil {
		log.Error().Err(err).Str("user", req.User).Msg("Failed to rename payee")
		errorResponse(c, http.StatusInternalServerError, "internal_error", "Failed to rename payee")
		return
	}

	status := http.StatusOK
	if outcome == db.RenameNotFound {
		status = http.StatusNotFound
	}
	c.JSON(status, gin.H{"outcome": outcome})
}

// handleWebhookDisabled answers deliveries when no handler is configured.
func (s *Server) handleWebhookDisabled(c *gin.Context) {
	errorResponse(c, http.StatusServiceUnavailable, "webhook_disabled", "Webhook is not configured")
}

func toMB(bytes uint64) float64 {
	return float64(bytes) / 1024 / 1024
}

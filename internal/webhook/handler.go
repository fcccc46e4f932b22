// Package webhook receives Finnhub webhook deliveries, de-duplicates them,
// appends them to a JSONL log and republishes them as events.
package webhook

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/JAMBAMSF/jagent/internal/metrics"
)

// SecretHeader carries the shared secret Finnhub sends with each delivery.
const SecretHeader = "X-Finnhub-Secret"

// EventKind is the event bus kind for webhook deliveries.
const EventKind = "webhook"

// maxBodyBytes bounds a single delivery.
const maxBodyBytes = 1 << 20

// Publisher forwards accepted events.
type Publisher interface {
	Publish(ctx context.Context, kind string, payload interface{}) error
}

// Sink persists accepted events.
type Sink interface {
	Append(r Record) error
}

// Event is the payload published for an accepted delivery.
type Event struct {
	Type       string          `json:"type"`
	ReceivedAt time.Time       `json:"received_at"`
	Event      json.RawMessage `json:"event"`
}

// Config configures the handler.
type Config struct {
	// Secret, when set, must match the SecretHeader value.
	Secret    string
	DedupeTTL time.Duration
}

// Handler processes Finnhub deliveries.
type Handler struct {
	secret string
	dedupe *Deduper
	sink   Sink
	events Publisher
	now    func() time.Time
	logger zerolog.Logger
}

// NewHandler creates a handler. sink and events may be nil.
func NewHandler(cfg Config, sink Sink, events Publisher) *Handler {
	return &Handler{
		secret: cfg.Secret,
		dedupe: NewDeduper(cfg.DedupeTTL),
		sink:   sink,
		events: events,
		now:    time.Now,
		logger: log.With().Str("component", "webhook").Logger(),
	}
}

// Deduper exposes the de-duplication table for scheduled sweeps.
func (h *Handler) Deduper() *Deduper {
	return h.dedupe
}

// Authorized reports whether the delivery carries the configured secret.
func (h *Handler) Authorized(header string) bool {
	if h.secret == "" {
		return true
	}
	return subtle.ConstantTimeCompare([]byte(header), []byte(h.secret)) == 1
}

// Gin returns the gin handler for POST /webhook/finnhub.
func (h *Handler) Gin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !h.Authorized(c.GetHeader(SecretHeader)) {
			metrics.RecordWebhookEvent("unauthorized")
			c.Status(http.StatusUnauthorized)
			return
		}

		body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBodyBytes))
		if err != nil {
			metrics.RecordWebhookEvent("invalid")
			h.logger.Warn().Err(err).Msg("Failed to read webhook body")
			c.Status(http.StatusBadRequest)
			return
		}

		h.Process(c.Request.Context(), body)
		c.Status(http.StatusNoContent)
	}
}

// Process handles one delivery body and returns the outcome label:
// accepted, duplicate or invalid. Failures never reach the sender.
func (h *Handler) Process(ctx context.Context, body []byte) string {
	if h.dedupe.Seen(body) {
		metrics.RecordWebhookEvent("duplicate")
		h.logger.Info().Msg("Finnhub event duplicate; skipped")
		return "duplicate"
	}

	raw := bytes.TrimSpace(body)
	if len(raw) == 0 {
		raw = []byte("{}")
	}
	var fields map[string]interface{}
	if err := json.Unmarshal(raw, &fields); err != nil {
		metrics.RecordWebhookEvent("invalid")
		h.logger.Warn().Err(err).Msg("Finnhub webhook body is not a JSON object")
		return "invalid"
	}

	evt := Event{
		Type:       eventType(fields),
		ReceivedAt: h.now().UTC(),
		Event:      json.RawMessage(raw),
	}

	if h.sink != nil {
		if err := h.sink.Append(Record{ReceivedAt: evt.ReceivedAt, Event: evt.Event}); err != nil {
			h.logger.Error().Err(err).Msg("Failed to append webhook event")
		}
	}
	if h.events != nil {
		if err := h.events.Publish(ctx, EventKind, evt); err != nil {
			h.logger.Warn().Err(err).Msg("Failed to publish webhook event")
		}
	}

	metrics.RecordWebhookEvent("accepted")
	if evt.Type != "" {
		h.logger.Info().Str("type", evt.Type).Msg("Finnhub event received")
	} else {
		h.logger.Info().Msg("Finnhub event received (no 'type' field)")
	}
	return "accepted"
}

func eventType(fields map[string]interface{}) string {
	for _, k := range []string{"type", "event"} {
		if s, ok := fields[k].(string); ok && s != "" {
			return strings.ToLower(s)
		}
	}
	return ""
}

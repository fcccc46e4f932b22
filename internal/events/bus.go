// Package events publishes agent events (routes, fraud flags, webhook
// deliveries) on NATS so other services can observe them.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/JAMBAMSF/jagent/internal/metrics"
)

// DefaultPrefix namespaces every subject: jagent.events.<kind>.
const DefaultPrefix = "jagent.events."

// ErrNotConnected is returned when publishing on a closed or disconnected bus.
var ErrNotConnected = errors.New("event bus not connected")

// Event is the envelope published for every kind.
type Event struct {
	ID        uuid.UUID       `json:"id"`
	Kind      string          `json:"kind"`
	Source    string          `json:"source"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}

// Handler receives decoded events.
type Handler func(evt *Event) error

// Config configures the bus.
type Config struct {
	NATSURL string
	Prefix  string
	// Source identifies the publishing binary (cli, api, telegram).
	Source string
}

// DefaultConfig returns the local development configuration.
func DefaultConfig() Config {
	return Config{
		NATSURL: nats.DefaultURL,
		Prefix:  DefaultPrefix,
		Source:  "jagent",
	}
}

// Bus publishes and subscribes to events over NATS.
type Bus struct {
	nc     *nats.Conn
	prefix string
	source string
}

// Connect dials NATS and returns a bus.
func Connect(cfg Config) (*Bus, error) {
	if cfg.NATSURL == "" {
		cfg.NATSURL = nats.DefaultURL
	}
	nc, err := nats.Connect(
		cfg.NATSURL,
		nats.Name("jagent-"+cfg.Source),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				log.Warn().Err(err).Msg("NATS disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return New(nc, cfg), nil
}

// New wraps an existing connection.
func New(nc *nats.Conn, cfg Config) *Bus {
	if cfg.Prefix == "" {
		cfg.Prefix = DefaultPrefix
	}
	if !strings.HasSuffix(cfg.Prefix, ".") {
		cfg.Prefix += "."
	}
	if cfg.Source == "" {
		cfg.Source = "jagent"
	}

	log.Info().
		Str("prefix", cfg.Prefix).
		Str("source", cfg.Source).
		Msg("Event bus initialized")

	return &Bus{nc: nc, prefix: cfg.Prefix, source: cfg.Source}
}

// Subject returns the subject events of kind are published on.
func (b *Bus) Subject(kind string) string {
	return b.prefix + kind
}

// Publish wraps payload in an Event and publishes it on the kind's subject.
func (b *Bus) Publish(ctx context.Context, kind string, payload interface{}) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	if b == nil || b.nc == nil || !b.nc.IsConnected() {
		metrics.RecordEventPublished(kind, false)
		return ErrNotConnected
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		metrics.RecordEventPublished(kind, false)
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	evt := Event{
		ID:        uuid.New(),
		Kind:      kind,
		Source:    b.source,
		Payload:   raw,
		Timestamp: time.Now().UTC(),
	}
	data, err := json.Marshal(evt)
	if err != nil {
		metrics.RecordEventPublished(kind, false)
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	subject := b.Subject(kind)
	if err := b.nc.Publish(subject, data); err != nil {
		metrics.RecordEventPublished(kind, false)
		return fmt.Errorf("failed to publish event: %w", err)
	}
	metrics.RecordEventPublished(kind, true)

	log.Debug().
		Str("event_id", evt.ID.String()).
		Str("kind", kind).
		Str("subject", subject).
		Msg("Published event")

	return nil
}

// Subscribe delivers events of kind to handler. Kind "*" or ">" receives
// every kind.
func (b *Bus) Subscribe(kind string, handler Handler) (*nats.Subscription, error) {
	if kind == "*" {
		kind = ">"
	}
	subject := b.Subject(kind)

	sub, err := b.nc.Subscribe(subject, func(msg *nats.Msg) {
		var evt Event
		if err := json.Unmarshal(msg.Data, &evt); err != nil {
			log.Warn().Err(err).Str("subject", msg.Subject).Msg("Failed to unmarshal event")
			return
		}
		if err := handler(&evt); err != nil {
			log.Error().
				Err(err).
				Str("event_id", evt.ID.String()).
				Str("kind", evt.Kind).
				Msg("Event handler error")
		}
	})
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe: %w", err)
	}

	log.Info().Str("subject", subject).Msg("Subscribed to events")
	return sub, nil
}

// Flush waits until the server has processed all published events.
func (b *Bus) Flush(ctx context.Context) error {
	return b.nc.FlushWithContext(ctx)
}

// Close drains and closes the connection.
func (b *Bus) Close() error {
	if b == nil || b.nc == nil {
		return nil
	}
	if err := b.nc.Drain(); err != nil {
		b.nc.Close()
		return err
	}
	return nil
}

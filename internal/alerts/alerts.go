// Package alerts fans fraud warnings out to the channels a user can see.
package alerts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/JAMBAMSF/jagent/internal/agent"
	"github.com/JAMBAMSF/jagent/internal/events"
)

// Severity grades an alert.
type Severity string

const (
	SeverityInfo     Severity = "INFO"
	SeverityWarning  Severity = "WARNING"
	SeverityCritical Severity = "CRITICAL"
)

// Alert is one notice for a user.
type Alert struct {
	User      string
	Title     string
	Message   string
	Severity  Severity
	Timestamp time.Time
	Metadata  map[string]interface{}
}

// Alerter delivers an alert over one channel.
type Alerter interface {
	Send(ctx context.Context, alert Alert) error
}

// Manager delivers every alert to each of its alerters.
type Manager struct {
	alerters []Alerter
}

func NewManager(alerters ...Alerter) *Manager {
	return &Manager{alerters: alerters}
}

// Send tries every alerter even when one fails and joins the failures.
func (m *Manager) Send(ctx context.Context, alert Alert) error {
	if alert.Timestamp.IsZero() {
		alert.Timestamp = time.Now()
	}

	var errs []error
	for _, a := range m.alerters {
		if err := a.Send(ctx, alert); err != nil {
			log.Error().Err(err).
				Str("user", alert.User).
				Str("title", alert.Title).
				Msg("Alert delivery failed")
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// FraudHandler turns published fraud events into warnings.
func (m *Manager) FraudHandler(ctx context.Context) events.Handler {
	return func(evt *events.Event) error {
		alert, err := FraudAlert(evt)
		if err != nil {
			return err
		}
		return m.Send(ctx, alert)
	}
}

// FraudAlert builds the warning for a fraud event.
func FraudAlert(evt *events.Event) (Alert, error) {
	var fe agent.FraudEvent
	if err := json.Unmarshal(evt.Payload, &fe); err != nil {
		return Alert{}, fmt.Errorf("invalid fraud event payload: %w", err)
	}

	counterparty := fe.Counterparty
	if counterparty == "" {
		counterparty = "an unnamed counterparty"
	}
	return Alert{
		User:      fe.User,
		Title:     "Suspicious transaction",
		Message:   fmt.Sprintf("A payment of %.2f to %s was flagged: %s.", fe.Amount, counterparty, strings.Join(fe.Flags, ", ")),
		Severity:  SeverityWarning,
		Timestamp: evt.Timestamp,
		Metadata: map[string]interface{}{
			"channel": fe.Channel,
			"hour":    fe.Hour,
		},
	}, nil
}

// LogAlerter writes alerts to the structured log.
type LogAlerter struct{}

func NewLogAlerter() *LogAlerter {
	return &LogAlerter{}
}

var severityLevels = map[Severity]zerolog.Level{
	SeverityInfo:     zerolog.InfoLevel,
	SeverityWarning:  zerolog.WarnLevel,
	SeverityCritical: zerolog.ErrorLevel,
}

func (l *LogAlerter) Send(_ context.Context, alert Alert) error {
	level, ok := severityLevels[alert.Severity]
	if !ok {
		level = zerolog.InfoLevel
	}

	event := log.WithLevel(level).
		Str("user", alert.User).
		Str("severity", string(alert.Severity)).
		Time("raised_at", alert.Timestamp)
	if len(alert.Metadata) > 0 {
		event = event.Fields(alert.Metadata)
	}
	event.Msgf("%s: %s", alert.Title, alert.Message)
	return nil
}

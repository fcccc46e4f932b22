package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog/log"

	"github.com/JAMBAMSF/jagent/internal/metrics"
)

// EventType represents the type of audit event
type EventType string

const (
	// Assistant events
	EventTypeComplianceRefusal    EventType = "COMPLIANCE_REFUSAL"
	EventTypeFraudFlagged         EventType = "FRAUD_FLAGGED"
	EventTypeRiskToleranceChanged EventType = "RISK_TOLERANCE_CHANGED"
	EventTypeUserDataErased       EventType = "USER_DATA_ERASED"
	EventTypeCounterpartyAdded    EventType = "COUNTERPARTY_ADDED"

	// Security events
	EventTypeRateLimitExceeded  EventType = "RATE_LIMIT_EXCEEDED"
	EventTypeUnauthorizedAccess EventType = "UNAUTHORIZED_ACCESS"
	EventTypeInvalidInput       EventType = "INVALID_INPUT"
)

// Severity represents the severity level of an audit event
type Severity string

const (
	SeverityInfo     Severity = "INFO"
	SeverityWarning  Severity = "WARNING"
	SeverityError    Severity = "ERROR"
	SeverityCritical Severity = "CRITICAL"
)

// Event represents a single audit log event
type Event struct {
	ID        uuid.UUID              `json:"id"`
	Timestamp time.Time              `json:"timestamp"`
	EventType EventType              `json:"event_type"`
	Severity  Severity               `json:"severity"`
	UserID    string                 `json:"user_id,omitempty"`
	IPAddress string                 `json:"ip_address"`
	Channel   string                 `json:"channel,omitempty"`  // cli, api, ws, telegram, mcp
	Resource  string                 `json:"resource,omitempty"` // counterparty, phrase, path...
	Action    string                 `json:"action"`
	Success   bool                   `json:"success"`
	ErrorMsg  string                 `json:"error_message,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	RequestID string                 `json:"request_id,omitempty"`
}

// DBTX is the subset of pgxpool.Pool the logger uses.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Logger handles audit logging operations
type Logger struct {
	db      DBTX
	enabled bool
}

// NewLogger creates a new audit logger. db may be nil for log-only auditing.
func NewLogger(db DBTX, enabled bool) *Logger {
	return &Logger{
		db:      db,
		enabled: enabled,
	}
}

// Log records an audit event
func (l *Logger) Log(ctx context.Context, event *Event) error {
	if l == nil || !l.enabled {
		return nil
	}

	start := time.Now()

	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	logEvent := log.With().
		Str("event_id", event.ID.String()).
		Str("event_type", string(event.EventType)).
		Str("severity", string(event.Severity)).
		Str("user_id", event.UserID).
		Str("channel", event.Channel).
		Str("resource", event.Resource).
		Str("action", event.Action).
		Bool("success", event.Success).
		Logger()

	if event.ErrorMsg != "" {
		logEvent = logEvent.With().Str("error", event.ErrorMsg).Logger()
	}

	switch event.Severity {
	case SeverityCritical, SeverityError:
		logEvent.Error().Msg("Audit event")
	case SeverityWarning:
		logEvent.Warn().Msg("Audit event")
	default:
		logEvent.Info().Msg("Audit event")
	}

	if l.db != nil {
		if err := l.persistEvent(ctx, event); err != nil {
			metrics.RecordAuditLog(string(event.EventType), false, float64(time.Since(start).Milliseconds()))
			metrics.RecordAuditLogFailure("persist_error", string(event.EventType))
			return err
		}
	}

	metrics.RecordAuditLog(string(event.EventType), true, float64(time.Since(start).Milliseconds()))
	return nil
}

const insertEventSQL = `
		INSERT INTO audit_logs (
			id, timestamp, event_type, severity, user_id, ip_address,
			channel, resource, action, success, error_message,
			metadata, request_id
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13
		)`

func (l *Logger) persistEvent(ctx context.Context, event *Event) error {
	var metadataJSON []byte
	if event.Metadata != nil {
		var err error
		metadataJSON, err = json.Marshal(event.Metadata)
		if err != nil {
			log.Error().Err(err).Msg("Failed to marshal audit event metadata")
			metadataJSON = []byte("{}")
		}
	}

	_, err := l.db.Exec(ctx, insertEventSQL,
		event.ID,
		event.Timestamp,
		string(event.EventType),
		string(event.Severity),
		event.UserID,
		event.IPAddress,
		event.Channel,
		event.Resource,
		event.Action,
		event.Success,
		event.ErrorMsg,
		metadataJSON,
		event.RequestID,
	)
	if err != nil {
		log.Error().Err(err).
			Str("event_id", event.ID.String()).
			Str("event_type", string(event.EventType)).
			Msg("Failed to persist audit event to database")
		return err
	}
	return nil
}

// QueryFilters defines filters for querying audit events
type QueryFilters struct {
	EventType EventType
	UserID    string
	StartTime time.Time
	EndTime   time.Time
	Success   *bool
	Limit     int
}

func (f *QueryFilters) build() (string, []interface{}) {
	var (
		where []string
		args  []interface{}
	)
	add := func(cond string, v interface{}) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}

	if f.EventType != "" {
		add("event_type = $%d", string(f.EventType))
	}
	if f.UserID != "" {
		add("user_id = $%d", f.UserID)
	}
	if !f.StartTime.IsZero() {
		add("timestamp >= $%d", f.StartTime)
	}
	if !f.EndTime.IsZero() {
		add("timestamp <= $%d", f.EndTime)
	}
	if f.Success != nil {
		add("success = $%d", *f.Success)
	}

	query := `SELECT id, timestamp, event_type, severity, user_id, ip_address,
			channel, resource, action, success, error_message, metadata, request_id
		FROM audit_logs`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY timestamp DESC"
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	return query, args
}

// Query retrieves audit events based on filters
func (l *Logger) Query(ctx context.Context, filters *QueryFilters) ([]Event, error) {
	if l == nil || l.db == nil {
		return nil, nil
	}
	if filters == nil {
		filters = &QueryFilters{}
	}

	query, args := filters.build()
	rows, err := l.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := []Event{}
	for rows.Next() {
		var (
			event        Event
			eventType    string
			severity     string
			metadataJSON []byte
		)
		if err := rows.Scan(
			&event.ID,
			&event.Timestamp,
			&eventType,
			&severity,
			&event.UserID,
			&event.IPAddress,
			&event.Channel,
			&event.Resource,
			&event.Action,
			&event.Success,
			&event.ErrorMsg,
			&metadataJSON,
			&event.RequestID,
		); err != nil {
			return nil, err
		}
		event.EventType = EventType(eventType)
		event.Severity = Severity(severity)

		if len(metadataJSON) > 0 {
			if err := json.Unmarshal(metadataJSON, &event.Metadata); err != nil {
				log.Warn().Err(err).Msg("Failed to unmarshal audit event metadata")
			}
		}
		events = append(events, event)
	}

	return events, rows.Err()
}

// Helper functions for common audit events

// LogComplianceRefusal records refused input or output.
func (l *Logger) LogComplianceRefusal(ctx context.Context, userID, channel, direction, phrase string) error {
	return l.Log(ctx, &Event{
		EventType: EventTypeComplianceRefusal,
		Severity:  SeverityWarning,
		UserID:    userID,
		Channel:   channel,
		Resource:  phrase,
		Action:    "Refused " + direction,
		Success:   true,
		Metadata:  map[string]interface{}{"direction": direction},
	})
}

// LogFraudFlag records a suspicious transaction.
func (l *Logger) LogFraudFlag(ctx context.Context, userID, channel, counterparty string, amount float64, flags []string) error {
	return l.Log(ctx, &Event{
		EventType: EventTypeFraudFlagged,
		Severity:  SeverityWarning,
		UserID:    userID,
		Channel:   channel,
		Resource:  counterparty,
		Action:    "Transaction flagged",
		Success:   true,
		Metadata: map[string]interface{}{
			"amount": amount,
			"flags":  flags,
		},
	})
}

// LogRiskChange records a risk tolerance update.
func (l *Logger) LogRiskChange(ctx context.Context, userID, channel, oldValue, newValue, source string) error {
	return l.Log(ctx, &Event{
		EventType: EventTypeRiskToleranceChanged,
		Severity:  SeverityInfo,
		UserID:    userID,
		Channel:   channel,
		Action:    "Risk tolerance changed",
		Success:   true,
		Metadata: map[string]interface{}{
			"old_value": oldValue,
			"new_value": newValue,
			"source":    source,
		},
	})
}

// LogErasure records a forget-me request.
func (l *Logger) LogErasure(ctx context.Context, userID, channel string, success bool, errorMsg string) error {
	severity := SeverityInfo
	if !success {
		severity = SeverityError
	}
	return l.Log(ctx, &Event{
		EventType: EventTypeUserDataErased,
		Severity:  severity,
		UserID:    userID,
		Channel:   channel,
		Action:    "User data erased",
		Success:   success,
		ErrorMsg:  errorMsg,
	})
}

// LogCounterpartyAdded records a new or refreshed payee.
func (l *Logger) LogCounterpartyAdded(ctx context.Context, userID, channel, name string) error {
	return l.Log(ctx, &Event{
		EventType: EventTypeCounterpartyAdded,
		Severity:  SeverityInfo,
		UserID:    userID,
		Channel:   channel,
		Resource:  name,
		Action:    "Counterparty added",
		Success:   true,
	})
}

// LogSecurityEvent logs a security-related event (rate limit, unauthorized access, etc.)
func (l *Logger) LogSecurityEvent(ctx context.Context, eventType EventType, ipAddress, resource, action string, metadata map[string]interface{}) error {
	return l.Log(ctx, &Event{
		EventType: eventType,
		Severity:  SeverityWarning,
		IPAddress: ipAddress,
		Resource:  resource,
		Action:    action,
		Success:   false,
		Metadata:  metadata,
	})
}

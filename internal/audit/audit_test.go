package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogger_LogWithoutDatabase(t *testing.T) {
	logger := NewLogger(nil, true)

	event := &Event{
		EventType: EventTypeComplianceRefusal,
		Severity:  SeverityWarning,
		UserID:    "Jack Alltrades",
		Action:    "Refused input",
		Success:   true,
	}

	err := logger.Log(context.Background(), event)
	assert.NoError(t, err)

	assert.NotEqual(t, uuid.Nil, event.ID)
	assert.False(t, event.Timestamp.IsZero())
}

func TestLogger_DisabledAndNil(t *testing.T) {
	event := &Event{EventType: EventTypeFraudFlagged}
	assert.NoError(t, NewLogger(nil, false).Log(context.Background(), event))
	assert.Equal(t, uuid.Nil, event.ID, "disabled logger leaves the event untouched")

	var nilLogger *Logger
	assert.NoError(t, nilLogger.LogErasure(context.Background(), "u", "cli", true, ""))
}

func TestLogger_PersistsEvent(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	logger := NewLogger(mock, true)

	mock.ExpectExec("INSERT INTO audit_logs").
		WithArgs(
			pgxmock.AnyArg(), pgxmock.AnyArg(),
			"FRAUD_FLAGGED", "WARNING", "tg:42", "",
			"telegram", "ACME", "Transaction flagged", true, "",
			pgxmock.AnyArg(), "",
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err = logger.LogFraudFlag(context.Background(), "tg:42", "telegram", "ACME", 6000, []string{"large-amount"})
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLogger_PersistFailureIsReturned(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("INSERT INTO audit_logs").WillReturnError(errors.New("relation does not exist"))

	err = NewLogger(mock, true).LogCounterpartyAdded(context.Background(), "u", "cli", "Landlord")
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQueryFilters_Build(t *testing.T) {
	success := true
	f := &QueryFilters{
		EventType: EventTypeRiskToleranceChanged,
		UserID:    "u1",
		StartTime: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		Success:   &success,
		Limit:     20,
	}
	query, args := f.build()

	assert.Contains(t, query, "WHERE event_type = $1 AND user_id = $2 AND timestamp >= $3 AND success = $4")
	assert.Contains(t, query, "ORDER BY timestamp DESC LIMIT $5")
	assert.Len(t, args, 5)

	query, args = (&QueryFilters{}).build()
	assert.NotContains(t, query, "WHERE")
	assert.Empty(t, args)
}

func TestLogger_Query(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	id := uuid.New()
	ts := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	rows := pgxmock.NewRows([]string{
		"id", "timestamp", "event_type", "severity", "user_id", "ip_address",
		"channel", "resource", "action", "success", "error_message", "metadata", "request_id",
	}).AddRow(id, ts, "USER_DATA_ERASED", "INFO", "u1", "", "cli", "", "User data erased", true, "", []byte(`{"k":"v"}`), "")

	mock.ExpectQuery("FROM audit_logs WHERE event_type").
		WithArgs("USER_DATA_ERASED", 10).
		WillReturnRows(rows)

	events, err := NewLogger(mock, true).Query(context.Background(), &QueryFilters{EventType: EventTypeUserDataErased, Limit: 10})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, id, events[0].ID)
	assert.Equal(t, EventTypeUserDataErased, events[0].EventType)
	assert.Equal(t, "v", events[0].Metadata["k"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEventTypes(t *testing.T) {
	types := []EventType{
		EventTypeComplianceRefusal,
		EventTypeFraudFlagged,
		EventTypeRiskToleranceChanged,
		EventTypeUserDataErased,
		EventTypeCounterpartyAdded,
		EventTypeRateLimitExceeded,
		EventTypeUnauthorizedAccess,
		EventTypeInvalidInput,
	}

	seen := make(map[EventType]bool)
	for _, et := range types {
		assert.False(t, seen[et], "Duplicate event type: %s", et)
		assert.NotEmpty(t, string(et), "Event type should not be empty")
		seen[et] = true
	}
}

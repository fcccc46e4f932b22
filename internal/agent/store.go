package agent

import (
	"context"

	"github.com/JAMBAMSF/jagent/internal/fraud"
	"github.com/JAMBAMSF/jagent/internal/portfolio"
)

// Store persists user state. A nil Store runs the agent in ephemeral mode.
type Store interface {
	// EnsureUser returns the user's id and stored tolerance, creating the
	// user with defaultTolerance if needed.
	EnsureUser(ctx context.Context, name, defaultTolerance string) (int64, string, error)
	SetRiskTolerance(ctx context.Context, userID int64, tolerance string) error
	// ForgetUser deletes memories and portfolios and resets the tolerance.
	// Counterparties are kept.
	ForgetUser(ctx context.Context, userID int64) error
	UpsertCounterparty(ctx context.Context, userID int64, name string) error
	ListCounterparties(ctx context.Context, userID int64) ([]string, error)
	SavePortfolio(ctx context.Context, userID int64, weights map[string]float64, m portfolio.Metrics) error
	// AmountHistory maps counterparty to the user's past transaction amounts.
	AmountHistory(ctx context.Context, userID int64) (map[string][]float64, error)
	RecordTransaction(ctx context.Context, userID int64, tx fraud.Transaction, v fraud.Verdict) error
}

// Auditor records compliance-relevant events.
type Auditor interface {
	LogComplianceRefusal(ctx context.Context, userID, channel, direction, phrase string) error
	LogFraudFlag(ctx context.Context, userID, channel, counterparty string, amount float64, flags []string) error
	LogRiskChange(ctx context.Context, userID, channel, oldValue, newValue, source string) error
	LogErasure(ctx context.Context, userID, channel string, success bool, errorMsg string) error
	LogCounterpartyAdded(ctx context.Context, userID, channel, name string) error
}

// Publisher fans agent events out to other services.
type Publisher interface {
	Publish(ctx context.Context, kind string, payload interface{}) error
}

// Event kinds published by sessions.
const (
	EventRoute = "route"
	EventFraud = "fraud"
)

// RouteEvent is published for every routed utterance.
type RouteEvent struct {
	User    string `json:"user"`
	Channel string `json:"channel"`
	Route   string `json:"route"`
	Rule    string `json:"rule"`
}

// FraudEvent is published for suspicious transactions.
type FraudEvent struct {
	User         string   `json:"user"`
	Channel      string   `json:"channel"`
	Counterparty string   `json:"counterparty"`
	Amount       float64  `json:"amount"`
	Hour         int      `json:"hour"`
	Flags        []string `json:"flags"`
}

package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"

	"github.com/JAMBAMSF/jagent/internal/fraud"
	"github.com/JAMBAMSF/jagent/internal/portfolio"
)

// Rename outcomes returned by RenameCounterparty.
const (
	RenameRenamed  = "renamed"
	RenameMerged   = "merged"
	RenameNotFound = "not_found"
)

const (
	ensureUserSQL = `
		INSERT INTO users (name, risk_tolerance) VALUES ($1, $2)
		ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
		RETURNING id, risk_tolerance`

	getUserSQL = `SELECT id, name, risk_tolerance, created_at, updated_at FROM users WHERE name = $1`

	setRiskSQL = `UPDATE users SET risk_tolerance = $2, updated_at = NOW() WHERE id = $1`

	setMemorySQL = `
		INSERT INTO memories (user_id, key, value) VALUES ($1, $2, $3)
		ON CONFLICT (user_id, key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()`

	savePortfolioSQL = `INSERT INTO portfolios (user_id, weights, metrics) VALUES ($1, $2, $3)`

	upsertCounterpartySQL = `
		INSERT INTO counterparties (user_id, name) VALUES ($1, $2)
		ON CONFLICT (user_id, name) DO UPDATE
		SET times_used = counterparties.times_used + 1, last_seen = NOW()`

	listCounterpartiesSQL = `SELECT name FROM counterparties WHERE user_id = $1 OR user_id IS NULL ORDER BY id`

	findUserCounterpartySQL   = `SELECT id FROM counterparties WHERE user_id = $1 AND LOWER(name) = LOWER($2)`
	findGlobalCounterpartySQL = `SELECT id FROM counterparties WHERE user_id IS NULL AND LOWER(name) = LOWER($1)`
	deleteCounterpartySQL     = `DELETE FROM counterparties WHERE id = $1`
	deleteGlobalByNameSQL     = `DELETE FROM counterparties WHERE user_id IS NULL AND LOWER(name) = LOWER($1)`
	renameCounterpartySQL     = `UPDATE counterparties SET name = $2, last_seen = NOW() WHERE id = $1`
	promoteCounterpartySQL    = `UPDATE counterparties SET user_id = $2, name = $3, last_seen = NOW() WHERE id = $1`

	amountHistorySQL = `SELECT counterparty, amount FROM transactions WHERE user_id = $1 ORDER BY created_at, id`

	recordTransactionSQL = `
		INSERT INTO transactions (user_id, counterparty, amount, hour, suspicious, flags)
		VALUES ($1, $2, $3, $4, $5, $6)`
)

// User is a stored user row.
type User struct {
	ID            int64
	Name          string
	RiskTolerance string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Store implements the agent's persistence over a Querier.
type Store struct {
	q Querier
}

// NewStore creates a store over q.
func NewStore(q Querier) *Store {
	return &Store{q: q}
}

// EnsureUser returns the id and tolerance of name, creating the user with
// defaultTolerance when absent.
func (s *Store) EnsureUser(ctx context.Context, name, defaultTolerance string) (int64, string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return 0, "", errors.New("user name is required")
	}
	if defaultTolerance == "" {
		defaultTolerance = portfolio.DefaultTolerance
	}

	var id int64
	var tol string
	if err := s.q.QueryRow(ctx, ensureUserSQL, name, defaultTolerance).Scan(&id, &tol); err != nil {
		return 0, "", fmt.Errorf("failed to ensure user: %w", err)
	}
	return id, tol, nil
}

// GetUser loads a user by name.
func (s *Store) GetUser(ctx context.Context, name string) (*User, error) {
	var u User
	err := s.q.QueryRow(ctx, getUserSQL, name).Scan(&u.ID, &u.Name, &u.RiskTolerance, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &u, nil
}

// SetRiskTolerance stores the user's tolerance.
func (s *Store) SetRiskTolerance(ctx context.Context, userID int64, tolerance string) error {
	tag, err := s.q.Exec(ctx, setRiskSQL, userID, tolerance)
	if err != nil {
		return fmt.Errorf("failed to set risk tolerance: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ForgetUser erases memories, portfolio snapshots and screened transactions,
// and resets the tolerance. The user row and counterparties are kept.
func (s *Store) ForgetUser(ctx context.Context, userID int64) error {
	tx, err := s.q.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, table := range []string{"memories", "portfolios", "transactions"} {
		// table names come from the fixed list above
		if _, err := tx.Exec(ctx, "DELETE FROM "+table+" WHERE user_id = $1", userID); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}
	if _, err := tx.Exec(ctx, setRiskSQL, userID, portfolio.DefaultTolerance); err != nil {
		return fmt.Errorf("failed to reset risk tolerance: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	log.Info().Int64("user_id", userID).Msg("User data erased")
	return nil
}

// SetMemory stores a key/value memory for the user, replacing any previous value.
func (s *Store) SetMemory(ctx context.Context, userID int64, key string, value interface{}) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode memory %q: %w", key, err)
	}
	if _, err := s.q.Exec(ctx, setMemorySQL, userID, key, string(raw)); err != nil {
		return fmt.Errorf("failed to set memory: %w", err)
	}
	return nil
}

// SavePortfolio appends a portfolio snapshot.
func (s *Store) SavePortfolio(ctx context.Context, userID int64, weights map[string]float64, m portfolio.Metrics) error {
	w, err := json.Marshal(weights)
	if err != nil {
		return fmt.Errorf("failed to encode weights: %w", err)
	}
	mj, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to encode metrics: %w", err)
	}
	if _, err := s.q.Exec(ctx, savePortfolioSQL, userID, w, mj); err != nil {
		return fmt.Errorf("failed to save portfolio: %w", err)
	}
	return nil
}

// UpsertCounterparty records name as one of the user's payees, bumping its
// usage count when it already exists.
func (s *Store) UpsertCounterparty(ctx context.Context, userID int64, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.New("counterparty name is required")
	}
	if _, err := s.q.Exec(ctx, upsertCounterpartySQL, userID, name); err != nil {
		return fmt.Errorf("failed to upsert counterparty: %w", err)
	}
	return nil
}

// ListCounterparties returns the user's payees plus global ones, deduplicated
// case-insensitively (first spelling wins) and sorted.
func (s *Store) ListCounterparties(ctx context.Context, userID int64) ([]string, error) {
	rows, err := s.q.Query(ctx, listCounterpartiesSQL, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list counterparties: %w", err)
	}
	defer rows.Close()

	seen := make(map[string]struct{})
	out := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan counterparty: %w", err)
		}
		k := strings.ToLower(name)
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list counterparties: %w", err)
	}

	sort.Strings(out)
	return out, nil
}

// RenameCounterparty renames oldName to newName for the user. Matching is
// case-insensitive. A global row is promoted to the user; when newName
// already exists the old row is merged away. It returns one of RenameRenamed,
// RenameMerged or RenameNotFound.
func (s *Store) RenameCounterparty(ctx context.Context, userID int64, oldName, newName string) (string, error) {
	oldName = strings.TrimSpace(oldName)
	newName = strings.TrimSpace(newName)
	if oldName == "" || newName == "" {
		return RenameNotFound, nil
	}

	tx, err := s.q.Begin(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	userOld, err := lookupID(ctx, tx, findUserCounterpartySQL, userID, oldName)
	if err != nil {
		return "", err
	}
	userNew, err := lookupID(ctx, tx, findUserCounterpartySQL, userID, newName)
	if err != nil {
		return "", err
	}

	var outcome string
	switch {
	case userOld != 0 && userNew != 0:
		if _, err := tx.Exec(ctx, deleteCounterpartySQL, userOld); err != nil {
			return "", fmt.Errorf("failed to merge counterparty: %w", err)
		}
		outcome = RenameMerged
	case userOld != 0:
		if _, err := tx.Exec(ctx, renameCounterpartySQL, userOld, newName); err != nil {
			return "", fmt.Errorf("failed to rename counterparty: %w", err)
		}
		outcome = RenameRenamed
	default:
		globalOld, err := lookupID(ctx, tx, findGlobalCounterpartySQL, oldName)
		if err != nil {
			return "", err
		}
		if globalOld == 0 {
			return RenameNotFound, nil
		}
		outcome = RenameMerged
		if userNew == 0 {
			if _, err := tx.Exec(ctx, promoteCounterpartySQL, globalOld, userID, newName); err != nil {
				return "", fmt.Errorf("failed to promote counterparty: %w", err)
			}
			outcome = RenameRenamed
		}
		if _, err := tx.Exec(ctx, deleteGlobalByNameSQL, oldName); err != nil {
			return "", fmt.Errorf("failed to remove global counterparty: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return "", fmt.Errorf("failed to commit transaction: %w", err)
	}

	log.Info().
		Int64("user_id", userID).
		Str("from", oldName).
		Str("to", newName).
		Str("outcome", outcome).
		Msg("Counterparty renamed")
	return outcome, nil
}

func lookupID(ctx context.Context, tx pgx.Tx, query string, args ...any) (int64, error) {
	var id int64
	err := tx.QueryRow(ctx, query, args...).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to look up counterparty: %w", err)
	}
	return id, nil
}

// AmountHistory maps each counterparty to the user's past amounts, oldest first.
func (s *Store) AmountHistory(ctx context.Context, userID int64) (map[string][]float64, error) {
	rows, err := s.q.Query(ctx, amountHistorySQL, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load amount history: %w", err)
	}
	defer rows.Close()

	history := make(map[string][]float64)
	for rows.Next() {
		var cp string
		var amount float64
		if err := rows.Scan(&cp, &amount); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		history[cp] = append(history[cp], amount)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to load amount history: %w", err)
	}
	return history, nil
}

// RecordTransaction stores a screened transaction with its verdict.
func (s *Store) RecordTransaction(ctx context.Context, userID int64, tx fraud.Transaction, v fraud.Verdict) error {
	flags := make([]string, 0, len(v.Flags))
	for _, f := range v.Flags {
		flags = append(flags, string(f))
	}
	_, err := s.q.Exec(ctx, recordTransactionSQL,
		userID,
		strings.TrimSpace(tx.Counterparty),
		tx.Amount,
		tx.Hour,
		v.Suspicious,
		flags,
	)
	if err != nil {
		return fmt.Errorf("failed to record transaction: %w", err)
	}
	return nil
}

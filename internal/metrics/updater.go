package metrics

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// RowQuerier is the subset of pgxpool.Pool the updater needs.
type RowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Updater periodically updates metrics from the database
type Updater struct {
	db       RowQuerier
	stat     func() *pgxpool.Stat
	interval time.Duration
	stopCh   chan struct{}
}

// NewUpdater creates a new metrics updater
func NewUpdater(db RowQuerier, interval time.Duration) *Updater {
	u := &Updater{
		db:       db,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
	if pool, ok := db.(*pgxpool.Pool); ok {
		u.stat = pool.Stat
	}
	return u
}

// Start begins the metrics update loop
func (u *Updater) Start(ctx context.Context) {
	ticker := time.NewTicker(u.interval)
	defer ticker.Stop()

	// Update immediately on start
	u.update(ctx)

	for {
		select {
		case <-ticker.C:
			u.update(ctx)
		case <-u.stopCh:
			log.Info().Msg("Metrics updater stopped")
			return
		case <-ctx.Done():
			log.Info().Msg("Metrics updater context cancelled")
			return
		}
	}
}

// Stop stops the metrics updater
func (u *Updater) Stop() {
	close(u.stopCh)
}

// update fetches and updates all metrics
func (u *Updater) update(ctx context.Context) {
	log.Debug().Msg("Updating metrics from database")

	u.updateStoreMetrics(ctx)
	u.updateDatabaseMetrics()

	log.Debug().Msg("Metrics updated successfully")
}

const (
	countUsersSQL          = `SELECT COUNT(*) FROM users`
	countCounterpartiesSQL = `SELECT
			COUNT(*) FILTER (WHERE user_id IS NOT NULL),
			COUNT(*) FILTER (WHERE user_id IS NULL)
		FROM counterparties`
)

// updateStoreMetrics refreshes the stored entity gauges
func (u *Updater) updateStoreMetrics(ctx context.Context) {
	var users int64
	if err := u.db.QueryRow(ctx, countUsersSQL).Scan(&users); err != nil {
		log.Warn().Err(err).Msg("Failed to count users")
		RecordError("metrics_query", "metrics")
	} else {
		StoredUsers.Set(float64(users))
	}

	var perUser, global int64
	if err := u.db.QueryRow(ctx, countCounterpartiesSQL).Scan(&perUser, &global); err != nil {
		log.Warn().Err(err).Msg("Failed to count counterparties")
		RecordError("metrics_query", "metrics")
		return
	}
	StoredCounterparties.WithLabelValues("user").Set(float64(perUser))
	StoredCounterparties.WithLabelValues("global").Set(float64(global))
}

// updateDatabaseMetrics updates database connection pool metrics
func (u *Updater) updateDatabaseMetrics() {
	if u.stat == nil {
		return
	}
	s := u.stat()
	UpdateDatabaseConnections(s.AcquiredConns(), s.IdleConns())
}

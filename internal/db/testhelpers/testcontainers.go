// Package testhelpers runs the store against a throwaway PostgreSQL.
package testhelpers

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/JAMBAMSF/jagent/internal/db"
)

const postgresImage = "postgres:16-alpine"

// PostgresContainer is a running database plus a pool connected to it.
type PostgresContainer struct {
	Container     *postgres.PostgresContainer
	ConnectionStr string
	DB            *db.DB
	t             *testing.T
}

// SetupTestDatabase starts a container that is removed when t finishes.
func SetupTestDatabase(t *testing.T) *PostgresContainer {
	t.Helper()
	ctx := context.Background()

	container, err := postgres.Run(ctx, postgresImage,
		postgres.WithDatabase("jagent_test"),
		postgres.WithUsername("jagent"),
		postgres.WithPassword("jagent"),
		testcontainers.WithWaitStrategy(
			// Postgres logs readiness once for the init server and once for the real one.
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(time.Minute),
		),
	)
	require.NoError(t, err, "start postgres container")
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("terminate postgres container: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	cfg, err := pgxpool.ParseConfig(dsn)
	require.NoError(t, err)
	cfg.MaxConns = 4

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	require.NoError(t, err)
	require.NoError(t, pool.Ping(ctx))

	database := &db.DB{}
	database.SetPool(pool)
	t.Cleanup(database.Close)

	return &PostgresContainer{
		Container:     container,
		ConnectionStr: dsn,
		DB:            database,
		t:             t,
	}
}

// ApplyMigrations runs the embedded migrations through the lib/pq migrator.
func (tc *PostgresContainer) ApplyMigrations() error {
	tc.t.Helper()
	return db.MigrateURL(context.Background(), tc.ConnectionStr)
}

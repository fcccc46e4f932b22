//go:build integration

package db_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JAMBAMSF/jagent/internal/db"
	"github.com/JAMBAMSF/jagent/internal/db/testhelpers"
	"github.com/JAMBAMSF/jagent/internal/fraud"
	"github.com/JAMBAMSF/jagent/internal/portfolio"
)

func setupStore(t *testing.T) (*testhelpers.PostgresContainer, *db.Store) {
	tc := testhelpers.SetupTestDatabase(t)
	require.NoError(t, tc.ApplyMigrations())
	return tc, tc.DB.Store()
}

func TestDatabaseConnectionWithTestcontainers(t *testing.T) {
	tc, _ := setupStore(t)
	ctx := context.Background()

	assert.NoError(t, tc.DB.Health(ctx))
	assert.NotNil(t, tc.DB.Pool())

	// a second run is a no-op
	require.NoError(t, tc.ApplyMigrations())
}

func TestUserLifecycleWithTestcontainers(t *testing.T) {
	_, store := setupStore(t)
	ctx := context.Background()

	id, tol, err := store.EnsureUser(ctx, "Ada", "moderate")
	require.NoError(t, err)
	assert.Equal(t, "moderate", tol)

	again, tol, err := store.EnsureUser(ctx, "Ada", "conservative")
	require.NoError(t, err)
	assert.Equal(t, id, again)
	assert.Equal(t, "moderate", tol, "existing tolerance wins over the default")

	require.NoError(t, store.SetRiskTolerance(ctx, id, "aggressive"))
	u, err := store.GetUser(ctx, "Ada")
	require.NoError(t, err)
	assert.Equal(t, "aggressive", u.RiskTolerance)

	require.NoError(t, store.SetMemory(ctx, id, "telegram_chat_id", 42))
	require.NoError(t, store.SavePortfolio(ctx, id, map[string]float64{"AAPL": 1}, portfolio.Metrics{RiskFit: "aggressive"}))
	require.NoError(t, store.UpsertCounterparty(ctx, id, "ACME"))
	require.NoError(t, store.RecordTransaction(ctx, id, fraud.Transaction{Amount: 10, Counterparty: "ACME", Hour: 12}, fraud.Verdict{}))

	require.NoError(t, store.ForgetUser(ctx, id))

	u, err = store.GetUser(ctx, "Ada")
	require.NoError(t, err)
	assert.Equal(t, "moderate", u.RiskTolerance)

	history, err := store.AmountHistory(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, history)

	names, err := store.ListCounterparties(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []string{"ACME"}, names)

	_, err = store.GetUser(ctx, "nobody")
	assert.ErrorIs(t, err, db.ErrNotFound)
}

func TestCounterpartiesWithTestcontainers(t *testing.T) {
	tc, store := setupStore(t)
	ctx := context.Background()

	seed := filepath.Join(t.TempDir(), "seed.json")
	require.NoError(t, os.WriteFile(seed, []byte(`{"counterparties":[{"name":"Globex"},{"name":"acme"},{"name":" "}]}`), 0o600))

	n, err := db.SeedCounterparties(ctx, tc.DB.Pool(), seed)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = db.SeedCounterparties(ctx, tc.DB.Pool(), seed)
	require.NoError(t, err)
	assert.Zero(t, n, "seeding only happens once")

	id, _, err := store.EnsureUser(ctx, "Ada", "")
	require.NoError(t, err)

	require.NoError(t, store.UpsertCounterparty(ctx, id, "Zeta"))
	require.NoError(t, store.UpsertCounterparty(ctx, id, "Zeta"))
	require.NoError(t, store.UpsertCounterparty(ctx, id, "ACME"))

	var used int
	require.NoError(t, tc.DB.Pool().QueryRow(ctx,
		"SELECT times_used FROM counterparties WHERE user_id = $1 AND name = 'Zeta'", id).Scan(&used))
	assert.Equal(t, 2, used)

	names, err := store.ListCounterparties(ctx, id)
	require.NoError(t, err)
	assert.Len(t, names, 3)
	assert.Contains(t, names, "Globex")
	assert.Contains(t, names, "Zeta")

	outcome, err := store.RenameCounterparty(ctx, id, "globex", "Globex Corp")
	require.NoError(t, err)
	assert.Equal(t, db.RenameRenamed, outcome)

	outcome, err = store.RenameCounterparty(ctx, id, "Zeta", "globex corp")
	require.NoError(t, err)
	assert.Equal(t, db.RenameMerged, outcome)

	outcome, err = store.RenameCounterparty(ctx, id, "Initech", "Initrode")
	require.NoError(t, err)
	assert.Equal(t, db.RenameNotFound, outcome)

	names, err = store.ListCounterparties(ctx, id)
	require.NoError(t, err)
	assert.Contains(t, names, "Globex Corp")
	assert.NotContains(t, names, "Zeta")
}

func TestPriceCacheWithTestcontainers(t *testing.T) {
	tc, _ := setupStore(t)
	ctx := context.Background()
	cache := tc.DB.PriceCache(time.Hour)

	_, ok, err := cache.Get(ctx, "NVDA", "2025-03-14")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, cache.Put(ctx, "NVDA", "2025-03-14", 120))
	require.NoError(t, cache.Put(ctx, "NVDA", "2025-03-14", 121.5))

	price, ok, err := cache.Get(ctx, "NVDA", "2025-03-14")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 121.5, price)

	removed, err := cache.Prune(ctx)
	require.NoError(t, err)
	assert.Zero(t, removed)
}

package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog/log"
)

const (
	countGlobalCounterpartiesSQL = `SELECT COUNT(1) FROM counterparties WHERE user_id IS NULL`

	insertGlobalCounterpartySQL = `
		INSERT INTO counterparties (user_id, name, times_used) VALUES (NULL, $1, 0)
		ON CONFLICT (user_id, name) DO NOTHING`
)

type seedFile struct {
	Counterparties []struct {
		Name string `json:"name"`
	} `json:"counterparties"`
}

// SeedCounterparties loads global counterparties from the JSON file at path
// when none exist yet. A missing path or file is not an error. It returns the
// number of rows inserted.
func SeedCounterparties(ctx context.Context, q Querier, path string) (int, error) {
	if path == "" {
		return 0, nil
	}

	var existing int64
	if err := q.QueryRow(ctx, countGlobalCounterpartiesSQL).Scan(&existing); err != nil {
		return 0, fmt.Errorf("failed to count counterparties: %w", err)
	}
	if existing > 0 {
		return 0, nil
	}

	raw, err := os.ReadFile(path) // #nosec G304 -- operator-configured seed file
	if errors.Is(err, os.ErrNotExist) {
		log.Debug().Str("path", path).Msg("Seed file not found, skipping")
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read seed file: %w", err)
	}

	var seed seedFile
	if err := json.Unmarshal(raw, &seed); err != nil {
		return 0, fmt.Errorf("failed to parse seed file %s: %w", path, err)
	}

	tx, err := q.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	n := 0
	for _, c := range seed.Counterparties {
		name := strings.TrimSpace(c.Name)
		if name == "" {
			continue
		}
		if _, err := tx.Exec(ctx, insertGlobalCounterpartySQL, name); err != nil {
			return 0, fmt.Errorf("failed to seed counterparty %q: %w", name, err)
		}
		n++
	}
	if n == 0 {
		return 0, nil
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit seed: %w", err)
	}

	log.Info().Int("count", n).Str("path", path).Msg("Seeded global counterparties")
	return n, nil
}

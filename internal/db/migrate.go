package db

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"sort"
	"strings"

	_ "github.com/lib/pq"
)

//go:embed migrations/*.sql
var embeddedMigrations embed.FS

// Migrations returns the migration files compiled into the binary.
func Migrations() fs.FS {
	sub, err := fs.Sub(embeddedMigrations, "migrations")
	if err != nil {
		panic(err)
	}
	return sub
}

// Migration represents a database migration
type Migration struct {
	Version     int
	Description string
	SQL         string
	Filename    string
}

// Migrator handles database migrations
type Migrator struct {
	db  *sql.DB
	src fs.FS
	out io.Writer
}

// NewMigrator creates a migration runner over the embedded migrations.
func NewMigrator(db *sql.DB) *Migrator {
	return &Migrator{db: db, src: Migrations(), out: os.Stdout}
}

// WithSource replaces the migration source, e.g. os.DirFS("migrations").
func (m *Migrator) WithSource(src fs.FS) *Migrator {
	m.src = src
	return m
}

// WithOutput redirects progress messages. A nil writer silences them.
func (m *Migrator) WithOutput(w io.Writer) *Migrator {
	if w == nil {
		w = io.Discard
	}
	m.out = w
	return m
}

// OpenSQL opens a database/sql handle through lib/pq and pings it.
func OpenSQL(ctx context.Context, url string) (*sql.DB, error) {
	if url == "" {
		url = os.Getenv("DATABASE_URL")
	}
	if url == "" {
		return nil, ErrNoDatabaseURL
	}
	conn, err := sql.Open("postgres", url)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return conn, nil
}

// MigrateURL applies pending embedded migrations to the database at url.
func MigrateURL(ctx context.Context, url string) error {
	conn, err := OpenSQL(ctx, url)
	if err != nil {
		return err
	}
	defer func() { _ = conn.Close() }()
	return NewMigrator(conn).WithOutput(nil).Migrate(ctx)
}

// ensureSchemaVersionTable creates the schema_version table if it doesn't exist
func (m *Migrator) ensureSchemaVersionTable(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			applied_at TIMESTAMPTZ DEFAULT NOW(),
			description TEXT
		);
	`
	_, err := m.db.ExecContext(ctx, query)
	return err
}

// getCurrentVersion returns the current schema version
func (m *Migrator) getCurrentVersion(ctx context.Context) (int, error) {
	var version int
	err := m.db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("failed to get current version: %w", err)
	}
	return version, nil
}

// LoadMigrations reads NNN_description.sql files from src, skipping
// *_down.sql, ordered by version.
func LoadMigrations(src fs.FS) ([]Migration, error) {
	entries, err := fs.ReadDir(src, ".")
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations: %w", err)
	}

	var migrations []Migration
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || path.Ext(name) != ".sql" || strings.HasSuffix(name, "_down.sql") {
			continue
		}

		var version int
		var description string
		if _, err := fmt.Sscanf(name, "%d_%s", &version, &description); err != nil {
			return nil, fmt.Errorf("invalid migration filename format: %s (expected: NNN_description.sql)", name)
		}
		description = strings.ReplaceAll(strings.TrimSuffix(description, ".sql"), "_", " ")

		content, err := fs.ReadFile(src, name)
		if err != nil {
			return nil, fmt.Errorf("failed to read migration file %s: %w", name, err)
		}

		migrations = append(migrations, Migration{
			Version:     version,
			Description: description,
			SQL:         string(content),
			Filename:    name,
		})
	}

	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})

	for i := 1; i < len(migrations); i++ {
		if migrations[i].Version == migrations[i-1].Version {
			return nil, fmt.Errorf("duplicate migration version %d: %s and %s",
				migrations[i].Version, migrations[i-1].Filename, migrations[i].Filename)
		}
	}

	return migrations, nil
}

// Pending returns the migrations newer than current.
func Pending(migrations []Migration, current int) []Migration {
	var out []Migration
	for _, mig := range migrations {
		if mig.Version > current {
			out = append(out, mig)
		}
	}
	return out
}

// Migrate runs all pending migrations
func (m *Migrator) Migrate(ctx context.Context) error {
	if err := m.ensureSchemaVersionTable(ctx); err != nil {
		return fmt.Errorf("failed to create schema_version table: %w", err)
	}

	currentVersion, err := m.getCurrentVersion(ctx)
	if err != nil {
		return err
	}

	migrations, err := LoadMigrations(m.src)
	if err != nil {
		return err
	}

	if len(migrations) == 0 {
		fmt.Fprintln(m.out, "No migrations found")
		return nil
	}

	pendingMigrations := Pending(migrations, currentVersion)
	if len(pendingMigrations) == 0 {
		fmt.Fprintf(m.out, "Database is up to date (version %d)\n", currentVersion)
		return nil
	}

	fmt.Fprintf(m.out, "Current schema version: %d\n", currentVersion)
	fmt.Fprintf(m.out, "Found %d pending migration(s)\n", len(pendingMigrations))

	// Apply each migration in a transaction
	for _, migration := range pendingMigrations {
		if err := m.applyMigration(ctx, migration); err != nil {
			return fmt.Errorf("failed to apply migration %d: %w", migration.Version, err)
		}
	}

	finalVersion, _ := m.getCurrentVersion(ctx)
	fmt.Fprintf(m.out, "Migration complete. Current version: %d\n", finalVersion)

	return nil
}

// applyMigration applies a single migration
func (m *Migrator) applyMigration(ctx context.Context, migration Migration) error {
	fmt.Fprintf(m.out, "Applying migration %d: %s\n", migration.Version, migration.Description)

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }() // Rollback on error - commit overrides if successful

	if _, err := tx.ExecContext(ctx, migration.SQL); err != nil {
		return fmt.Errorf("failed to execute migration SQL: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		"INSERT INTO schema_version (version, description) VALUES ($1, $2) ON CONFLICT (version) DO NOTHING",
		migration.Version,
		migration.Description,
	)
	if err != nil {
		return fmt.Errorf("failed to record migration version: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	fmt.Fprintf(m.out, "Migration %d applied successfully\n", migration.Version)

	return nil
}

// Status shows the current migration status
func (m *Migrator) Status(ctx context.Context) error {
	if err := m.ensureSchemaVersionTable(ctx); err != nil {
		return fmt.Errorf("failed to create schema_version table: %w", err)
	}

	currentVersion, err := m.getCurrentVersion(ctx)
	if err != nil {
		return err
	}

	migrations, err := LoadMigrations(m.src)
	if err != nil {
		return err
	}

	fmt.Fprintf(m.out, "Current schema version: %d\n", currentVersion)
	fmt.Fprintf(m.out, "Available migrations: %d\n", len(migrations))
	fmt.Fprintln(m.out, "\nMigration history:")
	fmt.Fprintln(m.out, "VERSION | STATUS  | DESCRIPTION")
	fmt.Fprintln(m.out, "--------|---------|-----------------------------------")

	for _, migration := range migrations {
		status := "pending"
		if migration.Version <= currentVersion {
			status = "applied"
		}
		fmt.Fprintf(m.out, "%-7d | %-7s | %s\n", migration.Version, status, migration.Description)
	}

	return nil
}

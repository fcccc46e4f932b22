// Command migrate applies the schema migrations of the assistant database.
package main

import (
	"context"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/JAMBAMSF/jagent/internal/config"
	"github.com/JAMBAMSF/jagent/internal/db"
)

func main() {
	config.LoadDotEnv()

	command := flag.String("command", "migrate", "Command to run: migrate, status or list")
	dbURL := flag.String("db", firstEnv("DATABASE_URL", "JAGENT_DATABASE_URL"), "Database connection URL")
	migrationsDir := flag.String("migrations", "", "Read migrations from this directory instead of the embedded set")
	timeout := flag.Duration("timeout", 5*time.Minute, "Give up after this long")
	flag.Parse()

	var src fs.FS = db.Migrations()
	if *migrationsDir != "" {
		src = os.DirFS(*migrationsDir)
	}

	if *command == "list" {
		if err := list(src); err != nil {
			fail("List failed", err)
		}
		return
	}
	if *dbURL == "" {
		fmt.Fprintln(os.Stderr, "A database URL is required: set DATABASE_URL or pass -db")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	conn, err := db.OpenSQL(ctx, *dbURL)
	if err != nil {
		fail("Failed to connect to database", err)
	}
	defer conn.Close()

	migrator := db.NewMigrator(conn).WithSource(src)

	switch *command {
	case "migrate":
		err = migrator.Migrate(ctx)
	case "status":
		err = migrator.Status(ctx)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", *command)
		fmt.Fprintln(os.Stderr, "Usage: migrate -command=[migrate|status|list]")
		os.Exit(1)
	}
	if err != nil {
		_ = conn.Close()
		fail(fmt.Sprintf("%s failed", *command), err)
	}
}

// list prints the migrations in src without touching a database.
func list(src fs.FS) error {
	migrations, err := db.LoadMigrations(src)
	if err != nil {
		return err
	}
	for _, m := range migrations {
		fmt.Printf("%03d  %-40s %s\n", m.Version, m.Description, m.Filename)
	}
	return nil
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return ""
}

func fail(msg string, err error) {
	fmt.Fprintf(os.Stderr, "%s: %v\n", msg, err)
	os.Exit(1)
}

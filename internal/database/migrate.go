package database

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"
)

// Migrations are embedded so the binary can bootstrap a fresh database
// regardless of the working directory.
//
//go:embed migrations/*.sql
var migrationsFS embed.FS

// Migrate applies every embedded migration in name order.  Statements use
// IF NOT EXISTS, so running it on an up-to-date schema is a no-op.
func Migrate(ctx context.Context, db *sql.DB) error {
	names, err := fs.Glob(migrationsFS, "migrations/*.sql")
	if err != nil {
		return fmt.Errorf("list migrations: %w", err)
	}
	sort.Strings(names)
	for _, name := range names {
		raw, err := migrationsFS.ReadFile(name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		for _, stmt := range splitStatements(string(raw)) {
			if _, err := db.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("apply migration %s: %w", name, err)
			}
		}
	}
	return nil
}

// splitStatements breaks a migration file on ";" line endings.  The driver
// runs one statement per Exec unless multiStatements is enabled in the DSN.
func splitStatements(src string) []string {
	var out []string
	for _, part := range strings.Split(src, ";\n") {
		stmt := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(part), ";"))
		if stmt != "" {
			out = append(out, stmt)
		}
	}
	return out
}

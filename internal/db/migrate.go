// Package db owns the Postgres schema. Migrations are embedded and applied
// with goose over a database/sql connection.
package db

import (
	"context"
	"database/sql"
	"embed"
	"fmt"

	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrations embed.FS

const migrationsDir = "migrations"

// Commands accepted by Migrate.
const (
	CommandUp      = "up"
	CommandDown    = "down"
	CommandStatus  = "status"
	CommandVersion = "version"
)

// Migrate runs a goose command against db using the embedded migrations.
func Migrate(ctx context.Context, db *sql.DB, command string) error {
	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("migrate: set dialect: %w", err)
	}
	switch command {
	case CommandUp:
		return goose.UpContext(ctx, db, migrationsDir)
	case CommandDown:
		return goose.DownContext(ctx, db, migrationsDir)
	case CommandStatus:
		return goose.StatusContext(ctx, db, migrationsDir)
	case CommandVersion:
		return goose.VersionContext(ctx, db, migrationsDir)
	default:
		return fmt.Errorf("migrate: unknown command %q", command)
	}
}

// Files lists the embedded migration file names in order.
func Files() ([]string, error) {
	entries, err := migrations.ReadDir(migrationsDir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names, nil
}

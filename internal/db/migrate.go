package db

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/pressly/goose/v3"
)

// Migrate applies the goose migrations found under "migrations/" in
// migrationFS. Already applied versions are skipped, so calling Migrate on
// every start is safe.
func Migrate(ctx context.Context, d *DB, migrationFS fs.FS) error {
	dialect := goose.DialectSQLite3
	if d.driver == DriverPostgres {
		dialect = goose.DialectPostgres
	}

	sub, err := fs.Sub(migrationFS, "migrations")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	provider, err := goose.NewProvider(dialect, d.conn, sub)
	if err != nil {
		return fmt.Errorf("create migration provider: %w", err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}

	for _, r := range results {
		d.logger.Info("migration applied",
			slog.Int64("version", r.Source.Version),
			slog.String("path", r.Source.Path),
			slog.Duration("duration", r.Duration),
		)
	}
	return nil
}

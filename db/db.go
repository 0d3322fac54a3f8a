package db

import "embed"

// Migrations holds the goose SQL migrations applied by internal/db.Migrate.
//
//go:embed migrations/*.sql
var Migrations embed.FS

// Package migrations holds the database schema migrations.
package migrations

import "github.com/uptrace/bun/migrate"

// Migrations is the collection registered by the files in this package.
var Migrations = migrate.NewMigrations() //nolint:gochecknoglobals // -

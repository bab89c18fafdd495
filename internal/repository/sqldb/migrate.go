package sqldb

import (
	"context"
	"embed"
	"fmt"

	"github.com/pressly/goose/v3"
)

//go:embed migrations
var migrations embed.FS

// Migrate applies the embedded schema migrations for the database dialect.
// A nil logger silences goose output.
func Migrate(ctx context.Context, db *DB, logger goose.Logger) error {
	dialect, dir := "sqlite3", "migrations/sqlite"
	if db.Dialect == DialectPostgres {
		dialect, dir = "postgres", "migrations/postgres"
	}

	if logger == nil {
		logger = goose.NopLogger()
	}
	goose.SetLogger(logger)
	goose.SetBaseFS(migrations)
	if err := goose.SetDialect(dialect); err != nil {
		return fmt.Errorf("set migration dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db.DB, dir); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

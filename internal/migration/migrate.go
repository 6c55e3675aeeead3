package migration

import (
	"context"
	"database/sql"
	"embed"
	"fmt"

	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog"
)

// Embed SQL files from the local migrations folder
//
//go:embed migrations/*.sql
var embeddedMigrations embed.FS

const schema = "ops"

// RunMigrations brings the ops schema up to the latest embedded version.
func RunMigrations(ctx context.Context, db *sql.DB, logger zerolog.Logger) error {
	// Ensure the schema exists before goose creates its version table in it
	if _, err := db.ExecContext(ctx, "CREATE SCHEMA IF NOT EXISTS "+schema); err != nil {
		return fmt.Errorf("create schema %s: %w", schema, err)
	}

	goose.SetBaseFS(embeddedMigrations)
	goose.SetTableName(schema + ".goose_db_version")
	goose.SetLogger(NewGooseAdapter(logger))
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	logger.Info().Msg("Migrations completed successfully")
	return nil
}

// Status logs the applied state of every embedded migration.
func Status(ctx context.Context, db *sql.DB, logger zerolog.Logger) error {
	goose.SetBaseFS(embeddedMigrations)
	goose.SetTableName(schema + ".goose_db_version")
	goose.SetLogger(NewGooseAdapter(logger))
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	return goose.StatusContext(ctx, db, "migrations")
}

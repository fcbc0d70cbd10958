// Package sqlite implements the database.Store port (spec §4.9,
// §4.11) over modernc.org/sqlite: the posts/labels cache, the FTS5
// search index, and all authentication/session persistence. Grounded
// on internal/adapter/postgres's connection-and-migration split, with
// the driver and SQL dialect retargeted from pgx/PostgreSQL to
// modernc.org/sqlite's pure-Go driver.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"fmt"

	"github.com/pressly/goose/v3"

	_ "modernc.org/sqlite"

	"github.com/agblogger/agblogger/internal/config"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Open opens the SQLite cache database and applies connection pool
// settings from cfg (spec §4.9: a single-writer cache, kept modest).
func Open(ctx context.Context, cfg config.Database) (*sql.DB, error) {
	dsn := cfg.DSN
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set journal_mode: %w", err)
	}
	if _, err := db.ExecContext(ctx, fmt.Sprintf("PRAGMA busy_timeout=%d", cfg.BusyTimeout.Milliseconds())); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy_timeout: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign_keys: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	return db, nil
}

// RunMigrations applies all pending goose migrations from the embedded
// SQL files against an already-open database handle.
func RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations)
	defer goose.SetBaseFS(nil)

	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

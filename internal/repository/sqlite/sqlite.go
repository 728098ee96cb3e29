// Package sqlite implements the repository interfaces using SQLite as the storage backend.
//
// WHY SQLITE?
// SQLite is an embedded database — it lives inside your Go binary as a single file.
// No separate database server to install, configure, or manage. For one API
// process serving accounts and prompt history that is all we need, and tests
// get a fresh database with ":memory:".
//
// WHY modernc.org/sqlite INSTEAD OF github.com/mattn/go-sqlite3?
// mattn/go-sqlite3 uses CGo, which means you need a C compiler installed and
// cross-compilation becomes painful. modernc.org/sqlite is a pure Go
// translation of the SQLite C code — no C compiler needed.
//
// CONCURRENCY:
// Many requests hit the store at once. The DSN below turns on:
//   - journal_mode(WAL)   readers never block the single writer
//   - busy_timeout(5000)  a writer waits up to 5s for the lock instead of failing
//   - foreign_keys(1)     prompts must reference an existing user
//   - _txlock=immediate   BEGIN takes the write lock up front, so two
//     transactions never deadlock upgrading from read to write
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/pressly/goose/v3"
	"modernc.org/sqlite"
	sqlitelib "modernc.org/sqlite/lib"
)

// MIGRATIONS:
// Schema changes live as numbered .sql files next to this package and are
// compiled into the binary with go:embed. goose records which versions have
// run in its goose_db_version table, so New is safe to call on every start.
//
//go:embed migrations/*.sql
var migrationsFS embed.FS

// DB wraps a sql.DB connection pool and implements the repository interfaces.
type DB struct {
	conn   *sql.DB
	logger *slog.Logger
}

// New opens (or creates) the database at dbPath and applies pending migrations.
//
// dbPath examples:
//   - "data/clustify.db"  → file-based database (persistent)
//   - ":memory:"          → in-memory database (tests; lost on close)
func New(ctx context.Context, dbPath string, logger *slog.Logger) (*DB, error) {
	if logger == nil {
		logger = slog.Default()
	}

	inMemory := dbPath == ":memory:"
	if !inMemory {
		if dir := filepath.Dir(dbPath); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("sqlite: creating data directory: %w", err)
			}
		}
	}

	conn, err := sql.Open("sqlite", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	// Every connection to ":memory:" is its own empty database, so the pool
	// must never hold more than one.
	if inMemory {
		conn.SetMaxOpenConns(1)
	}

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	db := &DB{conn: conn, logger: logger}
	if err := db.migrate(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return db, nil
}

// Close closes the database connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping reports whether the database is reachable.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

func dsn(dbPath string) string {
	params := []string{
		"_pragma=foreign_keys(1)",
		"_time_format=sqlite",
	}
	if dbPath != ":memory:" {
		params = append(params,
			"_pragma=busy_timeout(5000)",
			"_pragma=journal_mode(WAL)",
			"_txlock=immediate",
		)
	}
	return dbPath + "?" + strings.Join(params, "&")
}

// migrate applies every embedded migration that has not run yet.
//
// goose.NewProvider keeps its state on the provider value rather than in
// package globals, so parallel tests opening their own databases don't race.
func (db *DB) migrate(ctx context.Context) error {
	fsys, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return err
	}

	provider, err := goose.NewProvider(goose.DialectSQLite3, db.conn, fsys)
	if err != nil {
		return fmt.Errorf("creating migration provider: %w", err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return err
	}
	for _, r := range results {
		db.logger.Info("migration applied",
			"version", r.Source.Version,
			"file", filepath.Base(r.Source.Path),
			"duration", r.Duration,
		)
	}
	return nil
}

// isUniqueViolation reports whether err came from a UNIQUE constraint.
//
// The driver returns *sqlite.Error carrying SQLite's extended result code;
// matching on the code (not the message text) survives driver upgrades.
func isUniqueViolation(err error) bool {
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code() == sqlitelib.SQLITE_CONSTRAINT_UNIQUE ||
			sqliteErr.Code() == sqlitelib.SQLITE_CONSTRAINT_PRIMARYKEY
	}
	return false
}

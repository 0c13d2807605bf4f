package database

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/reelscout/reelscout/internal/retry"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

// FileName is the cache database file created under the content directory.
const FileName = "reelscout.db"

// DB wraps the database connection and provides query helpers.
type DB struct {
	conn   *sql.DB
	path   string
	logger zerolog.Logger
}

// New creates a new database connection with SQLite.
func New(path string, logger zerolog.Logger) (*DB, error) {
	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// WAL with a 60 second busy timeout; writers serialise on the single connection
	dsn := fmt.Sprintf("%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(60000)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)", path)

	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	conn.SetMaxOpenConns(1) // SQLite only supports one writer
	conn.SetMaxIdleConns(1)

	if err := conn.PingContext(context.Background()); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{
		conn:   conn,
		path:   path,
		logger: logger.With().Str("component", "database").Logger(),
	}, nil
}

// Open creates the database in dir and applies pending migrations.
func Open(dir string, logger zerolog.Logger) (*DB, error) {
	db, err := New(filepath.Join(dir, FileName), logger)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// Conn returns the underlying database connection.
func (db *DB) Conn() *sql.DB {
	return db.conn
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.path
}

// Close closes the database connection.
func (db *DB) Close() error {
	if db.conn != nil {
		return db.conn.Close()
	}
	return nil
}

// Migrate runs all pending database migrations using embedded SQL files.
func (db *DB) Migrate() error {
	goose.SetBaseFS(embedMigrations)
	goose.SetLogger(goose.NopLogger())

	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}

	if err := goose.Up(db.conn, "migrations"); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// MigrateDown rolls back the last migration.
func (db *DB) MigrateDown() error {
	goose.SetBaseFS(embedMigrations)

	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}

	if err := goose.Down(db.conn, "migrations"); err != nil {
		return fmt.Errorf("failed to rollback migration: %w", err)
	}

	return nil
}

// WithLockRetry runs fn, retrying "database is locked" failures with
// exponential backoff and jitter. Destructive operations get the higher cap.
func (db *DB) WithLockRetry(ctx context.Context, name string, destructive bool, fn func() error) error {
	return retry.Do(ctx, name, retry.LockConfig(destructive), retry.IsLocked, fn, &db.logger)
}

// WithTx runs fn inside a transaction under lock retry. The transaction is
// rolled back when fn returns an error.
func (db *DB) WithTx(ctx context.Context, name string, destructive bool, fn func(tx *sql.Tx) error) error {
	return db.WithLockRetry(ctx, name, destructive, func() error {
		tx, err := db.conn.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		if err := fn(tx); err != nil {
			_ = tx.Rollback()
			return err
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit transaction: %w", err)
		}
		return nil
	})
}

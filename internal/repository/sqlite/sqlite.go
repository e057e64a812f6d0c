// Package sqlite implements the repository interfaces using SQLite as the storage backend.
//
// WHY modernc.org/sqlite INSTEAD OF github.com/mattn/go-sqlite3?
// mattn/go-sqlite3 uses CGo, which means you need a C compiler installed and
// cross-compilation becomes painful. modernc.org/sqlite is a pure Go
// translation of the SQLite C code, no C compiler needed.
//
// DATABASE/SQL OVERVIEW:
// Key types:
//   - sql.DB   : a connection pool (NOT a single connection!)
//   - sql.Row  : a single result row
//   - sql.Rows : multiple result rows (must be closed!)
//
// Schema changes live in migrations/ as numbered goose files embedded in the
// binary, so a fresh database and an old one converge on the same schema.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/pressly/goose/v3"
	sqlitedrv "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// memoryPath opens a private in-memory database (tests, throwaway runs).
const memoryPath = ":memory:"

// DB wraps a sql.DB connection pool and implements both
// repository.UserRepository and repository.MessageRepository.
type DB struct {
	conn *sql.DB
}

// New opens the SQLite database at dbPath and applies pending migrations.
//
// dbPath examples:
//   - "data/messagely.db"  → file-based database (persistent)
//   - ":memory:"           → in-memory database (great for tests, lost on close)
//
// PRAGMAS:
// SQLite pragmas are per-connection. They go in the DSN as _pragma
// parameters so the driver applies them to every connection the pool opens:
//   - foreign_keys(1): off by default in SQLite; messages reference users.
//   - busy_timeout(5000): wait for a lock instead of failing with SQLITE_BUSY.
//   - journal_mode(WAL): readers don't block the writer (file databases only).
func New(dbPath string) (*DB, error) {
	pragmas := []string{"foreign_keys(1)", "busy_timeout(5000)"}
	if dbPath != memoryPath {
		pragmas = append(pragmas, "journal_mode(WAL)")
	}
	dsn := dbPath + "?_pragma=" + strings.Join(pragmas, "&_pragma=")

	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	// Every connection to ":memory:" is its own empty database, so the pool
	// is pinned to a single connection that is never recycled.
	if dbPath == memoryPath {
		conn.SetMaxOpenConns(1)
		conn.SetMaxIdleConns(1)
		conn.SetConnMaxLifetime(0)
	}

	// sql.Open doesn't connect; Ping surfaces a bad path or permissions now.
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	db := &DB{conn: conn}

	if err := db.migrate(context.Background()); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return db, nil
}

// Close closes the database connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping reports whether the database is reachable. Used by the health check.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// migrate applies every embedded migration newer than the recorded version.
// goose keeps its bookkeeping in the goose_db_version table.
func (db *DB) migrate(ctx context.Context) error {
	fsys, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("opening embedded migrations: %w", err)
	}

	provider, err := goose.NewProvider(goose.DialectSQLite3, db.conn, fsys)
	if err != nil {
		return fmt.Errorf("creating migration provider: %w", err)
	}

	if _, err := provider.Up(ctx); err != nil {
		return fmt.Errorf("applying migrations: %w", err)
	}
	return nil
}

// isConstraint reports whether err is a SQLite constraint violation of the
// given extended kind (e.g. SQLITE_CONSTRAINT_UNIQUE).
//
// The driver reports extended result codes; the message check covers the
// case where only the primary SQLITE_CONSTRAINT code comes back.
func isConstraint(err error, extended int, marker string) bool {
	var sqlErr *sqlitedrv.Error
	if !errors.As(err, &sqlErr) {
		return false
	}
	code := sqlErr.Code()
	if code == extended {
		return true
	}
	return code&0xff == sqlite3.SQLITE_CONSTRAINT && strings.Contains(sqlErr.Error(), marker)
}

func isUniqueViolation(err error) bool {
	return isConstraint(err, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY, "UNIQUE") ||
		isConstraint(err, sqlite3.SQLITE_CONSTRAINT_UNIQUE, "UNIQUE")
}

func isForeignKeyViolation(err error) bool {
	return isConstraint(err, sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY, "FOREIGN KEY")
}

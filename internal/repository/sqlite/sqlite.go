// Package sqlite implements the repository interfaces using SQLite as the storage backend.
//
// WHY SQLITE?
// SQLite is an embedded database — it lives inside your Go binary as a single file.
// No separate database server to install, configure, or manage. This app is a
// single long-lived process with one small table, which is exactly SQLite's
// sweet spot.
//
// WHY modernc.org/sqlite INSTEAD OF github.com/mattn/go-sqlite3?
// mattn/go-sqlite3 uses CGo (calls C code from Go), which means you need a C compiler
// installed and cross-compilation becomes painful. modernc.org/sqlite is a pure Go
// translation of the SQLite C code — no C compiler needed, works everywhere Go works.
package sqlite

import (
	"database/sql"
	"fmt"

	// BLANK IMPORT:
	// The sqlite package's init() registers itself with database/sql as a
	// driver named "sqlite" — importing it for that side effect is all this
	// file needs. user.go imports it by name for its Error type.
	_ "modernc.org/sqlite"
)

// DB wraps a sql.DB connection pool and provides the user repository methods.
//
// sql.DB is already a concurrency-safe pool, so a single *DB is shared by all
// request-handling goroutines. We control the lifecycle: New creates it and
// runs schema creation, Close destroys it.
type DB struct {
	conn *sql.DB
}

// New opens the SQLite database at dbPath and ensures the schema exists.
//
// dbPath examples:
//   - "data/weatherhub.db" → file-based database (persistent)
//   - ":memory:"           → in-memory database (great for tests, lost on close)
//
// sql.Open does not actually connect — it creates a pool manager. We Ping to
// force an immediate connection so a bad path or permissions problem surfaces
// at startup instead of on the first login.
func New(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	// WAL mode allows concurrent reads while a write is happening — several
	// callback requests may hit the users table at once.
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting WAL mode: %w", err)
	}

	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: enabling foreign keys: %w", err)
	}

	db := &DB{conn: conn}

	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return db, nil
}

// Close closes the database connection pool. Wherever you call New(),
// defer Close() so the WAL is flushed and the file lock released.
func (db *DB) Close() error {
	return db.conn.Close()
}

// migrate creates the schema if it doesn't exist yet.
//
// CREATE TABLE IF NOT EXISTS makes this idempotent — a pre-existing table is
// not an error, so every process start runs it unconditionally.
//
// The primary key is the identity provider's subject id. A PRIMARY KEY in
// SQLite is implicitly UNIQUE, which is what makes Create atomic-or-fail
// under concurrent first logins for the same subject.
func (db *DB) migrate() error {
	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS users (
			id          TEXT PRIMARY KEY,
			name        TEXT NOT NULL DEFAULT '',
			email       TEXT NOT NULL DEFAULT '',
			profile_pic TEXT NOT NULL DEFAULT '',
			created_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
	`)
	if err != nil {
		return fmt.Errorf("creating users table: %w", err)
	}

	return nil
}

// Package sqlite implements both storage ports on a single SQLite file.
//
// WHY SQLITE?
// The service is a single process with a handful of collections that are
// rewritten whole on every change. An embedded database gives us durable,
// crash-safe writes without running a separate server, and one file is easy
// to back up or hand to the admin CLI.
//
// modernc.org/sqlite is a pure Go translation of SQLite, so the binary builds
// without a C toolchain.
//
// LAYOUT:
//   - collections: one row per collection key, the whole JSON array in `data`
//   - images:      one row per image, bytes in a BLOB column
//
// Timestamps are stored as INTEGER unix nanoseconds so reads never depend on
// the driver's DATETIME parsing.
package sqlite

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// DB wraps a sql.DB connection pool. It satisfies repository.CollectionStore
// and repository.ImageStore.
type DB struct {
	conn *sql.DB
}

// New opens (or creates) the database at dbPath and runs migrations.
//
// Tests should pass a path under t.TempDir() rather than ":memory:": every
// pooled connection to ":memory:" gets its own empty database.
func New(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	// WAL lets readers proceed while a collection rewrite is in flight.
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting WAL mode: %w", err)
	}

	// Writers queue for up to 5s instead of failing with SQLITE_BUSY.
	if _, err := conn.Exec("PRAGMA busy_timeout=5000"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting busy timeout: %w", err)
	}

	db := &DB{conn: conn}

	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return db, nil
}

func (db *DB) Close() error {
	return db.conn.Close()
}

// migrate creates the tables. CREATE ... IF NOT EXISTS keeps it idempotent.
func (db *DB) migrate() error {
	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS collections (
			key        TEXT PRIMARY KEY,
			data       BLOB NOT NULL,
			updated_at INTEGER NOT NULL
		);
	`)
	if err != nil {
		return fmt.Errorf("creating collections table: %w", err)
	}

	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS images (
			id           TEXT PRIMARY KEY,
			user_id      TEXT NOT NULL DEFAULT '',
			club_id      TEXT NOT NULL DEFAULT '',
			type         TEXT NOT NULL,
			content_type TEXT NOT NULL,
			size         INTEGER NOT NULL,
			data         BLOB NOT NULL,
			created_at   INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_images_created_at ON images(created_at);
	`)
	if err != nil {
		return fmt.Errorf("creating images table: %w", err)
	}

	return nil
}

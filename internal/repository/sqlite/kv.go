package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/sakif/book-club/internal/repository"
)

var _ repository.CollectionStore = (*DB)(nil)

// Load returns the raw JSON stored under key, or repository.ErrKeyNotFound.
func (db *DB) Load(ctx context.Context, key string) ([]byte, error) {
	var data []byte
	err := db.conn.QueryRowContext(ctx,
		`SELECT data FROM collections WHERE key = ?`, key,
	).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrKeyNotFound
		}
		return nil, fmt.Errorf("sqlite: loading %s: %w", key, err)
	}
	return data, nil
}

// Save replaces the document stored under key.
//
// ON CONFLICT DO UPDATE keeps this a single statement, so a crash mid-save
// leaves either the old or the new document, never neither.
func (db *DB) Save(ctx context.Context, key string, data []byte) error {
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO collections (key, data, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		key, data, time.Now().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("sqlite: saving %s: %w", key, err)
	}
	return nil
}

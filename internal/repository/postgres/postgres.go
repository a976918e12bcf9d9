// Package postgres stores collections in a single Postgres table through
// sqlx. Images are not supported here.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/sakif/book-club/internal/repository"
)

var _ repository.CollectionStore = (*Store)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS collections (
	key        TEXT PRIMARY KEY,
	data       JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

type Store struct {
	db *sqlx.DB
}

// Connect dials dsn, retrying briefly while the database comes up, then
// creates the collections table.
func Connect(ctx context.Context, dsn string) (*Store, error) {
	var (
		db  *sqlx.DB
		err error
	)
	for attempt := 0; attempt < 10; attempt++ {
		db, err = sqlx.ConnectContext(ctx, "postgres", dsn)
		if err == nil {
			break
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("postgres: connecting: %w", ctx.Err())
		case <-time.After(500 * time.Millisecond):
		}
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: connecting: %w", err)
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres: creating collections table: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Load(ctx context.Context, key string) ([]byte, error) {
	var data []byte
	err := s.db.GetContext(ctx, &data, `SELECT data FROM collections WHERE key = $1`, key)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrKeyNotFound
		}
		return nil, fmt.Errorf("postgres: loading %s: %w", key, err)
	}
	return data, nil
}

// Save upserts the document. A JSONB column rejects malformed JSON, which
// Collection never produces.
func (s *Store) Save(ctx context.Context, key string, data []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO collections (key, data, updated_at) VALUES ($1, $2, now())
		 ON CONFLICT (key) DO UPDATE SET data = EXCLUDED.data, updated_at = EXCLUDED.updated_at`,
		key, string(data),
	)
	if err != nil {
		return fmt.Errorf("postgres: saving %s: %w", key, err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/sakif/book-club/internal/apperror"
	"github.com/sakif/book-club/internal/model"
	"github.com/sakif/book-club/internal/repository"
)

var _ repository.ImageStore = (*DB)(nil)

// PutImage inserts img, replacing any row with the same ID.
func (db *DB) PutImage(ctx context.Context, img *model.Image) error {
	_, err := db.conn.ExecContext(ctx,
		`INSERT OR REPLACE INTO images (id, user_id, club_id, type, content_type, size, data, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		img.ID,
		img.UserID,
		img.ClubID,
		string(img.Type),
		img.ContentType,
		img.Size,
		img.Data,
		img.CreatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("sqlite: storing image %s: %w", img.ID, err)
	}
	return nil
}

func (db *DB) GetImage(ctx context.Context, id string) (*model.Image, error) {
	var (
		img       model.Image
		imgType   string
		createdAt int64
	)
	err := db.conn.QueryRowContext(ctx,
		`SELECT id, user_id, club_id, type, content_type, size, data, created_at
		 FROM images WHERE id = ?`,
		id,
	).Scan(
		&img.ID,
		&img.UserID,
		&img.ClubID,
		&imgType,
		&img.ContentType,
		&img.Size,
		&img.Data,
		&createdAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("image", id)
		}
		return nil, fmt.Errorf("sqlite: getting image %s: %w", id, err)
	}

	img.Type = model.ImageType(imgType)
	img.CreatedAt = time.Unix(0, createdAt)
	return &img, nil
}

// ListImages returns every image without its bytes, newest first.
func (db *DB) ListImages(ctx context.Context) ([]model.Image, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, user_id, club_id, type, content_type, size, created_at
		 FROM images
		 ORDER BY created_at DESC, id ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing images: %w", err)
	}
	defer rows.Close()

	images := []model.Image{}
	for rows.Next() {
		var (
			img       model.Image
			imgType   string
			createdAt int64
		)
		if err := rows.Scan(
			&img.ID,
			&img.UserID,
			&img.ClubID,
			&imgType,
			&img.ContentType,
			&img.Size,
			&createdAt,
		); err != nil {
			return nil, fmt.Errorf("sqlite: scanning image row: %w", err)
		}
		img.Type = model.ImageType(imgType)
		img.CreatedAt = time.Unix(0, createdAt)
		images = append(images, img)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating image rows: %w", err)
	}
	return images, nil
}

func (db *DB) DeleteImage(ctx context.Context, id string) error {
	result, err := db.conn.ExecContext(ctx, `DELETE FROM images WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: deleting image %s: %w", id, err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking delete result: %w", err)
	}
	if n == 0 {
		return apperror.NotFound("image", id)
	}
	return nil
}

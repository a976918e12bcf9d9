// Package repository defines the storage ports the services depend on.
//
// There are two:
//
//   - CollectionStore holds whole collections as opaque JSON documents under
//     fixed keys. Services never issue partial updates; they rewrite the
//     collection (see Collection).
//   - ImageStore holds binary image blobs with their owner linkage.
//
// Implementations live in subpackages (sqlite, memory, redis, postgres, s3) and
// are chosen at startup from configuration.
package repository

import (
	"context"
	"errors"

	"github.com/sakif/book-club/internal/model"
)

// Collection keys.
const (
	KeyClubs = "bookClubs"
	KeyBooks = "bookCache"
	KeyUsers = "users"
)

// ErrKeyNotFound is returned by CollectionStore.Load for a key never saved.
var ErrKeyNotFound = errors.New("repository: key not found")

type CollectionStore interface {
	Load(ctx context.Context, key string) ([]byte, error)
	Save(ctx context.Context, key string, data []byte) error
	Close() error
}

type ImageStore interface {
	PutImage(ctx context.Context, img *model.Image) error
	// GetImage returns the image including its Data.
	GetImage(ctx context.Context, id string) (*model.Image, error)
	// ListImages returns metadata for every stored image, newest first.
	ListImages(ctx context.Context) ([]model.Image, error)
	DeleteImage(ctx context.Context, id string) error
}

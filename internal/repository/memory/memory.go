// Package memory implements the storage ports with plain maps.
//
// Nothing survives a restart. It backs the service tests and the
// storage.driver=memory setting for throwaway runs.
package memory

import (
	"cmp"
	"context"
	"slices"
	"sync"

	"github.com/sakif/book-club/internal/apperror"
	"github.com/sakif/book-club/internal/model"
	"github.com/sakif/book-club/internal/repository"
)

var (
	_ repository.CollectionStore = (*Store)(nil)
	_ repository.ImageStore      = (*Store)(nil)
)

// Store holds both collections and images. Byte slices are copied on the
// way in and out so callers cannot mutate stored state.
type Store struct {
	mu     sync.RWMutex
	data   map[string][]byte
	images map[string]model.Image

	// FailSave, when set, is returned by every Save. Tests use it to check
	// that a failed persist leaves in-memory state unchanged.
	FailSave error
}

func New() *Store {
	return &Store{
		data:   make(map[string][]byte),
		images: make(map[string]model.Image),
	}
}

func (s *Store) Load(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, ok := s.data[key]
	if !ok {
		return nil, repository.ErrKeyNotFound
	}
	return slices.Clone(data), nil
}

func (s *Store) Save(_ context.Context, key string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailSave != nil {
		return s.FailSave
	}
	s.data[key] = slices.Clone(data)
	return nil
}

// Raw sets key to data without validation, for simulating corrupt storage.
func (s *Store) Raw(key string, data []byte) {
	s.mu.Lock()
	s.data[key] = slices.Clone(data)
	s.mu.Unlock()
}

func (s *Store) PutImage(_ context.Context, img *model.Image) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *img
	cp.Data = slices.Clone(img.Data)
	s.images[img.ID] = cp
	return nil
}

func (s *Store) GetImage(_ context.Context, id string) (*model.Image, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	img, ok := s.images[id]
	if !ok {
		return nil, apperror.NotFound("image", id)
	}
	img.Data = slices.Clone(img.Data)
	return &img, nil
}

func (s *Store) ListImages(_ context.Context) ([]model.Image, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.Image, 0, len(s.images))
	for _, img := range s.images {
		img.Data = nil
		out = append(out, img)
	}
	slices.SortFunc(out, func(a, b model.Image) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out, nil
}

func (s *Store) DeleteImage(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.images[id]; !ok {
		return apperror.NotFound("image", id)
	}
	delete(s.images, id)
	return nil
}

func (s *Store) Close() error { return nil }

package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// Cloner is implemented by every record kept in a Collection. Clone must
// return a deep copy: Update hands the mutation function a cloned slice, and
// readers get clones, so nobody can alias the authoritative snapshot.
type Cloner[T any] interface {
	Clone() T
}

// Collection is the in-memory, authoritative copy of one stored collection.
//
// The whole collection is loaded lazily on first use and mirrored back to the
// CollectionStore after every successful mutation. All mutations go through
// Update, which holds the write lock across read → modify → persist, so two
// concurrent mutations can never both start from the same stale snapshot.
type Collection[T Cloner[T]] struct {
	store  CollectionStore
	key    string
	seed   func() []T
	logger *slog.Logger

	mu     sync.RWMutex
	loaded bool
	items  []T
}

// NewCollection binds a collection to key in store. seed supplies the
// defaults used when the key is missing or its data cannot be parsed; it may
// be nil, meaning "start empty".
func NewCollection[T Cloner[T]](store CollectionStore, key string, seed func() []T, logger *slog.Logger) *Collection[T] {
	if seed == nil {
		seed = func() []T { return []T{} }
	}
	return &Collection[T]{
		store:  store,
		key:    key,
		seed:   seed,
		logger: logger,
	}
}

// Key returns the storage key this collection is persisted under.
func (c *Collection[T]) Key() string {
	return c.key
}

// Snapshot returns a deep copy of the current items, in stored order.
func (c *Collection[T]) Snapshot(ctx context.Context) ([]T, error) {
	c.mu.RLock()
	if c.loaded {
		out := cloneAll(c.items)
		c.mu.RUnlock()
		return out, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.ensureLoaded(ctx); err != nil {
		return nil, err
	}
	return cloneAll(c.items), nil
}

// Update applies fn to a copy of the current items and persists the result.
//
// If fn returns an error, or persisting fails, the collection is left exactly
// as it was and the error is returned. On success the new items become the
// snapshot and a copy of them is returned.
func (c *Collection[T]) Update(ctx context.Context, fn func(items []T) ([]T, error)) ([]T, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.ensureLoaded(ctx); err != nil {
		return nil, err
	}

	next, err := fn(cloneAll(c.items))
	if err != nil {
		return nil, err
	}
	if next == nil {
		next = []T{}
	}

	if err := c.persist(ctx, next); err != nil {
		return nil, err
	}
	c.items = next
	return cloneAll(next), nil
}

// Replace overwrites the whole collection with items.
func (c *Collection[T]) Replace(ctx context.Context, items []T) error {
	_, err := c.Update(ctx, func([]T) ([]T, error) {
		return cloneAll(items), nil
	})
	return err
}

// Reload drops the in-memory snapshot so the next access re-reads the store.
// Used after another process (the admin CLI) rewrote the key.
func (c *Collection[T]) Reload() {
	c.mu.Lock()
	c.loaded = false
	c.items = nil
	c.mu.Unlock()
}

// ensureLoaded must be called with c.mu held for writing.
func (c *Collection[T]) ensureLoaded(ctx context.Context) error {
	if c.loaded {
		return nil
	}

	data, err := c.store.Load(ctx, c.key)
	switch {
	case errors.Is(err, ErrKeyNotFound):
		return c.reseed(ctx, "missing")
	case err != nil:
		return fmt.Errorf("repository: loading %s: %w", c.key, err)
	}

	var items []T
	if err := json.Unmarshal(data, &items); err != nil {
		c.logger.Warn("stored collection is corrupt, reseeding defaults",
			slog.String("key", c.key),
			slog.String("error", err.Error()),
		)
		return c.reseed(ctx, "corrupt")
	}
	if items == nil {
		items = []T{}
	}

	c.items = items
	c.loaded = true
	return nil
}

func (c *Collection[T]) reseed(ctx context.Context, reason string) error {
	items := c.seed()
	if items == nil {
		items = []T{}
	}
	if err := c.persist(ctx, items); err != nil {
		return err
	}
	c.logger.Info("collection seeded",
		slog.String("key", c.key),
		slog.String("reason", reason),
		slog.Int("items", len(items)),
	)
	c.items = items
	c.loaded = true
	return nil
}

func (c *Collection[T]) persist(ctx context.Context, items []T) error {
	data, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("repository: encoding %s: %w", c.key, err)
	}
	if err := c.store.Save(ctx, c.key, data); err != nil {
		return fmt.Errorf("repository: saving %s: %w", c.key, err)
	}
	return nil
}

func cloneAll[T Cloner[T]](items []T) []T {
	out := make([]T, len(items))
	for i, item := range items {
		out[i] = item.Clone()
	}
	return out
}

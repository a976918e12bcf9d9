package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/sync/errgroup"

	"github.com/sakif/book-club/internal/apperror"
	"github.com/sakif/book-club/internal/catalog"
	"github.com/sakif/book-club/internal/model"
	"github.com/sakif/book-club/internal/repository"
)

// Catalog search limits.
const (
	DefaultSearchLimit = 20
	MaxSearchLimit     = 50
	MaxDiscoverSubject = 5
)

// upstreamName is how the book search provider is named in client errors.
const upstreamName = "book search"

// BookSource fetches raw book records from an external catalog.
type BookSource interface {
	Search(ctx context.Context, query string, limit int) ([]catalog.SearchDoc, error)
	Subject(ctx context.Context, subject string, limit int) ([]catalog.SearchDoc, error)
}

// Describer writes a one-sentence description of a book.
type Describer interface {
	Enabled() bool
	Describe(ctx context.Context, title, author string) (string, error)
}

// CatalogService owns the deduplicated book catalog.
//
// Books enter through AddBook(s) or as a side effect of Search and Discover.
// Every path normalizes first and then upserts by ID, so the catalog never
// holds two records with the same ID and the newest write wins.
//
// SUMMARY RESOLUTION for search results, in order:
//  1. the summary already stored for the same ID, if it is a real one
//  2. the description cache (keyed by title and author)
//  3. the optional Describer
//  4. catalog.FallbackSummary
type CatalogService struct {
	books     *repository.Collection[model.Book]
	source    BookSource
	describer Describer
	summaries *cache.Cache
	logger    *slog.Logger
}

// NewCatalogService wires the catalog. source and describer may be nil;
// without a source Search and Discover report an upstream error.
func NewCatalogService(c *Collections, source BookSource, describer Describer, logger *slog.Logger) *CatalogService {
	return &CatalogService{
		books:     c.Books,
		source:    source,
		describer: describer,
		summaries: cache.New(24*time.Hour, time.Hour),
		logger:    logger,
	}
}

// Normalize converts any accepted input shape into a canonical book.
func (s *CatalogService) Normalize(ctx context.Context, in catalog.Input) (model.Book, error) {
	switch v := in.(type) {
	case catalog.SeedBook:
		return catalog.FromSeed(v), nil
	case catalog.SearchDoc:
		b := catalog.FromSearchDoc(v)
		b.Summary = s.resolveSummary(ctx, &b)
		return b, nil
	default:
		return model.Book{}, fmt.Errorf("catalog: unsupported input %T", in)
	}
}

func (s *CatalogService) resolveSummary(ctx context.Context, b *model.Book) string {
	if existing, err := s.GetBook(ctx, b.ID); err == nil && hasRealSummary(existing) {
		return existing.Summary
	}

	key := summaryKey(b.Title, b.Author)
	if v, ok := s.summaries.Get(key); ok {
		return v.(string)
	}

	if s.describer != nil && s.describer.Enabled() {
		text, err := s.describer.Describe(ctx, b.Title, b.Author)
		if err == nil {
			s.summaries.SetDefault(key, text)
			return text
		}
		s.logger.Warn("description generation failed",
			slog.String("title", b.Title),
			slog.String("error", err.Error()),
		)
	}

	return catalog.FallbackSummary(b.PublishedYear, b.Author)
}

// hasRealSummary is false for the placeholder and for the templated
// fallback, so a book that only got the fallback is described again later.
func hasRealSummary(b *model.Book) bool {
	return b.HasSummary() && b.Summary != catalog.FallbackSummary(b.PublishedYear, b.Author)
}

func summaryKey(title, author string) string {
	return strings.ToLower(strings.TrimSpace(title)) + "\x00" + strings.ToLower(strings.TrimSpace(author))
}

// AddBook decodes, normalizes and upserts one raw record.
func (s *CatalogService) AddBook(ctx context.Context, raw json.RawMessage) (*model.Book, error) {
	books, err := s.AddBooks(ctx, []json.RawMessage{raw})
	if err != nil {
		return nil, err
	}
	return &books[0], nil
}

// AddBooks normalizes every record first and upserts them in one write, so
// one bad record rejects the whole batch.
func (s *CatalogService) AddBooks(ctx context.Context, raws []json.RawMessage) ([]model.Book, error) {
	inputs := make([]catalog.Input, 0, len(raws))
	for i, raw := range raws {
		in, err := catalog.DecodeInput(raw)
		if err != nil {
			var appErr *apperror.AppError
			if len(raws) > 1 && errors.As(err, &appErr) {
				appErr.Message = fmt.Sprintf("book %d: %s", i, appErr.Message)
			}
			return nil, err
		}
		inputs = append(inputs, in)
	}

	books, err := s.normalizeAll(ctx, inputs)
	if err != nil {
		return nil, err
	}
	if err := s.upsert(ctx, books); err != nil {
		return nil, err
	}
	return books, nil
}

// PutBooks upserts already-canonical books (seed files, imports).
func (s *CatalogService) PutBooks(ctx context.Context, books []model.Book) error {
	return s.upsert(ctx, books)
}

func (s *CatalogService) GetBook(ctx context.Context, id string) (*model.Book, error) {
	books, err := s.books.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing books: %w", err)
	}
	i := indexOfBook(books, id)
	if i < 0 {
		return nil, apperror.NotFound("book", id)
	}
	return &books[i], nil
}

// GetBooks returns the books with the given IDs in the order asked, skipping
// unknown ones. With no IDs it returns the whole catalog.
func (s *CatalogService) GetBooks(ctx context.Context, ids []string) ([]model.Book, error) {
	books, err := s.books.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing books: %w", err)
	}
	if len(ids) == 0 {
		return books, nil
	}

	out := make([]model.Book, 0, len(ids))
	for _, id := range ids {
		if i := indexOfBook(books, id); i >= 0 {
			out = append(out, books[i])
		}
	}
	return out, nil
}

// Search queries the external source, stores the normalized results and
// returns them. On any upstream failure the catalog is left untouched.
func (s *CatalogService) Search(ctx context.Context, query string, limit int) ([]model.Book, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, apperror.ValidationFailed("q", "search query is required")
	}
	if s.source == nil {
		return nil, apperror.Upstream(upstreamName, errors.New("no book source configured"))
	}

	docs, err := s.source.Search(ctx, query, clampLimit(limit))
	if err != nil {
		s.logger.Error("book search failed", slog.String("query", query), slog.String("error", err.Error()))
		return nil, apperror.Upstream(upstreamName, err)
	}

	return s.ingest(ctx, docs)
}

// Discover lists books for each subject concurrently and merges the results,
// first occurrence of an ID winning.
func (s *CatalogService) Discover(ctx context.Context, subjects []string, limit int) ([]model.Book, error) {
	subjects = cleanTags(subjects)
	if len(subjects) == 0 {
		return nil, apperror.ValidationFailed("subject", "at least one subject is required")
	}
	if len(subjects) > MaxDiscoverSubject {
		return nil, apperror.ValidationFailed("subject",
			fmt.Sprintf("at most %d subjects per request", MaxDiscoverSubject))
	}
	if s.source == nil {
		return nil, apperror.Upstream(upstreamName, errors.New("no book source configured"))
	}
	limit = clampLimit(limit)

	results := make([][]catalog.SearchDoc, len(subjects))
	g, gctx := errgroup.WithContext(ctx)
	for i, subject := range subjects {
		g.Go(func() error {
			docs, err := s.source.Subject(gctx, subject, limit)
			if err != nil {
				return fmt.Errorf("subject %q: %w", subject, err)
			}
			results[i] = docs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		s.logger.Error("book discovery failed", slog.String("error", err.Error()))
		return nil, apperror.Upstream(upstreamName, err)
	}

	var all []catalog.SearchDoc
	for _, docs := range results {
		all = append(all, docs...)
	}
	return s.ingest(ctx, all)
}

// ingest normalizes docs, drops untitled ones and duplicate IDs, and
// upserts the rest.
func (s *CatalogService) ingest(ctx context.Context, docs []catalog.SearchDoc) ([]model.Book, error) {
	inputs := make([]catalog.Input, 0, len(docs))
	for _, d := range docs {
		if strings.TrimSpace(d.Title) != "" {
			inputs = append(inputs, d)
		}
	}

	books, err := s.normalizeAll(ctx, inputs)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(books))
	unique := books[:0]
	for _, b := range books {
		if !seen[b.ID] {
			seen[b.ID] = true
			unique = append(unique, b)
		}
	}

	if err := s.upsert(ctx, unique); err != nil {
		return nil, err
	}
	return unique, nil
}

// normalizeAll runs Normalize with bounded concurrency (summary generation
// may call out to the network) and keeps input order.
func (s *CatalogService) normalizeAll(ctx context.Context, inputs []catalog.Input) ([]model.Book, error) {
	books := make([]model.Book, len(inputs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, in := range inputs {
		g.Go(func() error {
			b, err := s.Normalize(gctx, in)
			if err != nil {
				return err
			}
			books[i] = b
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return books, nil
}

// upsert replaces books with matching IDs in place and appends new ones.
func (s *CatalogService) upsert(ctx context.Context, books []model.Book) error {
	if len(books) == 0 {
		return nil
	}

	_, err := s.books.Update(ctx, func(current []model.Book) ([]model.Book, error) {
		for _, b := range books {
			if i := indexOfBook(current, b.ID); i >= 0 {
				current[i] = b.Clone()
			} else {
				current = append(current, b.Clone())
			}
		}
		return current, nil
	})
	if err != nil {
		s.logger.Error("failed to store books", slog.Int("count", len(books)), slog.String("error", err.Error()))
		return fmt.Errorf("storing books: %w", err)
	}

	for _, b := range books {
		if hasRealSummary(&b) {
			s.summaries.SetDefault(summaryKey(b.Title, b.Author), b.Summary)
		}
	}
	s.logger.Info("books stored", slog.Int("count", len(books)))
	return nil
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultSearchLimit
	}
	return min(limit, MaxSearchLimit)
}

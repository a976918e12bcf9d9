package service

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/sakif/book-club/internal/apperror"
	"github.com/sakif/book-club/internal/model"
	"github.com/sakif/book-club/internal/repository"
)

// MaxReviewLength bounds free-text reviews.
const MaxReviewLength = 5000

// ProgressService owns each user's reading ledger and personal shelf.
//
// The ledger lives inside the User record (User.Progress, keyed by book ID),
// so "one entry per (book, user)" holds by construction.
//
// STATUS RULES (UpdateProgress):
//
//	value == 100  → completed, CompletedAt set (kept if already completed)
//	value  < 100  → reading, CompletedAt cleared
//
// PauseReading and ResetProgress are the only other transitions.
type ProgressService struct {
	users  *repository.Collection[model.User]
	clubs  *repository.Collection[model.Club]
	books  *repository.Collection[model.Book]
	logger *slog.Logger
	now    func() time.Time
}

func NewProgressService(c *Collections, logger *slog.Logger) *ProgressService {
	return &ProgressService{
		users:  c.Users,
		clubs:  c.Clubs,
		books:  c.Books,
		logger: logger,
		now:    time.Now,
	}
}

// UpdateProgress records value (0..100) for bookID and, when rating is
// non-nil, a 1..5 rating. It also makes bookID the user's current book.
func (s *ProgressService) UpdateProgress(ctx context.Context, userID, bookID string, value int, rating *int) (*model.ProgressEntry, error) {
	if value < model.MinProgress || value > model.MaxProgress {
		return nil, apperror.ValidationFailed("progress",
			fmt.Sprintf("progress must be between %d and %d", model.MinProgress, model.MaxProgress))
	}
	if rating != nil {
		if err := validateRating(*rating); err != nil {
			return nil, err
		}
	}
	if err := s.requireCatalogBook(ctx, bookID); err != nil {
		return nil, err
	}

	var out model.ProgressEntry
	err := s.mutateUser(ctx, userID, func(u *model.User) error {
		now := s.now()
		entry, exists := u.Progress[bookID]
		if !exists {
			entry = model.ProgressEntry{
				BookID:    bookID,
				UserID:    userID,
				StartedAt: timePtr(now),
			}
		}
		if entry.StartedAt == nil {
			entry.StartedAt = timePtr(now)
		}

		if value >= model.MaxProgress {
			if entry.Status != model.StatusCompleted || entry.CompletedAt == nil {
				entry.CompletedAt = timePtr(now)
			}
			entry.Status = model.StatusCompleted
		} else {
			entry.Status = model.StatusReading
			entry.CompletedAt = nil
		}
		entry.Progress = value
		if rating != nil {
			entry.Rating = *rating
		}
		entry.UpdatedAt = now

		if u.Progress == nil {
			u.Progress = make(map[string]model.ProgressEntry)
		}
		u.Progress[bookID] = entry
		u.CurrentBookID = bookID
		out = entry.Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("progress updated",
		slog.String("user_id", userID),
		slog.String("book_id", bookID),
		slog.Int("progress", value),
		slog.String("status", string(out.Status)),
	)
	return &out, nil
}

// GetUserBookProgress returns the recorded percentage, or 0 when the user
// has no entry for the book.
func (s *ProgressService) GetUserBookProgress(ctx context.Context, userID, bookID string) (int, error) {
	u, err := s.findUser(ctx, userID)
	if err != nil {
		return 0, err
	}
	return u.Progress[bookID].Progress, nil
}

// GetEntry returns the full ledger entry for one book.
func (s *ProgressService) GetEntry(ctx context.Context, userID, bookID string) (*model.ProgressEntry, error) {
	u, err := s.findUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	entry, ok := u.Progress[bookID]
	if !ok {
		return nil, apperror.NotFound("progress entry", bookID)
	}
	return &entry, nil
}

// GetBookClubProgress is the rounded mean progress over every user with an
// entry for bookID, or 0 when there are none.
func (s *ProgressService) GetBookClubProgress(ctx context.Context, bookID string) (int, error) {
	users, err := s.users.Snapshot(ctx)
	if err != nil {
		return 0, fmt.Errorf("listing users: %w", err)
	}
	return meanProgress(users, bookID, nil), nil
}

// GetClubBookProgress is GetBookClubProgress restricted to one club's members.
func (s *ProgressService) GetClubBookProgress(ctx context.Context, clubID, bookID string) (int, error) {
	clubs, err := s.clubs.Snapshot(ctx)
	if err != nil {
		return 0, fmt.Errorf("listing clubs: %w", err)
	}
	i := indexOfClub(clubs, clubID)
	if i < 0 {
		return 0, apperror.NotFound("club", clubID)
	}
	members := make(map[string]bool, len(clubs[i].Members))
	for _, m := range clubs[i].Members {
		members[m.UserID] = true
	}

	users, err := s.users.Snapshot(ctx)
	if err != nil {
		return 0, fmt.Errorf("listing users: %w", err)
	}
	return meanProgress(users, bookID, members), nil
}

// meanProgress averages entries for bookID over users, or over the subset
// named in only when it is non-nil.
func meanProgress(users []model.User, bookID string, only map[string]bool) int {
	sum, n := 0, 0
	for _, u := range users {
		if only != nil && !only[u.ID] {
			continue
		}
		if entry, ok := u.Progress[bookID]; ok {
			sum += entry.Progress
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return int(math.Round(float64(sum) / float64(n)))
}

// GetReadingProgress lists the user's entries, most recently updated first.
func (s *ProgressService) GetReadingProgress(ctx context.Context, userID string) ([]model.ProgressEntry, error) {
	u, err := s.findUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	entries := u.ProgressEntries()
	slices.SortFunc(entries, func(a, b model.ProgressEntry) int {
		if c := b.UpdatedAt.Compare(a.UpdatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.BookID, b.BookID)
	})
	if entries == nil {
		entries = []model.ProgressEntry{}
	}
	return entries, nil
}

// PauseReading moves a reading entry to paused. Any other status is a conflict.
func (s *ProgressService) PauseReading(ctx context.Context, userID, bookID string) (*model.ProgressEntry, error) {
	return s.mutateEntry(ctx, userID, bookID, func(e *model.ProgressEntry) error {
		if e.Status != model.StatusReading {
			return apperror.Conflict(fmt.Sprintf("only a book being read can be paused (status is %s)", e.Status))
		}
		e.Status = model.StatusPaused
		return nil
	})
}

// ResetProgress returns an entry to not_started, clearing its timestamps,
// rating and review.
func (s *ProgressService) ResetProgress(ctx context.Context, userID, bookID string) (*model.ProgressEntry, error) {
	return s.mutateEntry(ctx, userID, bookID, func(e *model.ProgressEntry) error {
		e.Progress = 0
		e.Status = model.StatusNotStarted
		e.StartedAt = nil
		e.CompletedAt = nil
		e.Rating = 0
		e.Review = ""
		return nil
	})
}

// ReviewBook stores a rating and review on an existing entry.
func (s *ProgressService) ReviewBook(ctx context.Context, userID, bookID string, rating int, review string) (*model.ProgressEntry, error) {
	if err := validateRating(rating); err != nil {
		return nil, err
	}
	review = strings.TrimSpace(review)
	if len(review) > MaxReviewLength {
		return nil, apperror.ValidationFailed("review",
			fmt.Sprintf("review must be %d characters or less", MaxReviewLength))
	}

	return s.mutateEntry(ctx, userID, bookID, func(e *model.ProgressEntry) error {
		e.Rating = rating
		e.Review = review
		return nil
	})
}

// ===== SHELF =====

// AddToShelf adds a catalog book to the user's personal shelf. Adding a
// shelved book again is a no-op.
func (s *ProgressService) AddToShelf(ctx context.Context, userID, bookID string) ([]string, error) {
	if err := s.requireCatalogBook(ctx, bookID); err != nil {
		return nil, err
	}

	var shelf []string
	err := s.mutateUser(ctx, userID, func(u *model.User) error {
		shelf = slices.Clone(u.Shelf)
		if slices.Contains(u.Shelf, bookID) {
			return errUnchanged
		}
		u.Shelf = append(u.Shelf, bookID)
		shelf = slices.Clone(u.Shelf)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return nonNil(shelf), nil
}

// RemoveFromShelf is a no-op when the book is not shelved.
func (s *ProgressService) RemoveFromShelf(ctx context.Context, userID, bookID string) ([]string, error) {
	var shelf []string
	err := s.mutateUser(ctx, userID, func(u *model.User) error {
		shelf = slices.Clone(u.Shelf)
		i := slices.Index(u.Shelf, bookID)
		if i < 0 {
			return errUnchanged
		}
		u.Shelf = slices.Delete(u.Shelf, i, i+1)
		shelf = slices.Clone(u.Shelf)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return nonNil(shelf), nil
}

// GetShelf resolves the shelf to catalog records in shelf order. Books that
// have since left the catalog are skipped.
func (s *ProgressService) GetShelf(ctx context.Context, userID string) ([]model.Book, error) {
	u, err := s.findUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	books, err := s.books.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing books: %w", err)
	}

	out := make([]model.Book, 0, len(u.Shelf))
	for _, id := range u.Shelf {
		if i := indexOfBook(books, id); i >= 0 {
			out = append(out, books[i])
		}
	}
	return out, nil
}

// ===== HELPERS =====

func validateRating(r int) error {
	if r < model.MinRating || r > model.MaxRating {
		return apperror.ValidationFailed("rating",
			fmt.Sprintf("rating must be between %d and %d", model.MinRating, model.MaxRating))
	}
	return nil
}

func (s *ProgressService) findUser(ctx context.Context, userID string) (*model.User, error) {
	users, err := s.users.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	i := indexOfUser(users, userID)
	if i < 0 {
		return nil, apperror.NotFound("user", userID)
	}
	return &users[i], nil
}

func (s *ProgressService) requireCatalogBook(ctx context.Context, bookID string) error {
	books, err := s.books.Snapshot(ctx)
	if err != nil {
		return fmt.Errorf("listing books: %w", err)
	}
	if indexOfBook(books, bookID) < 0 {
		return apperror.NotFound("book", bookID)
	}
	return nil
}

// mutateUser runs fn on a copy of one user inside a collection update.
// errUnchanged from fn skips the write without failing.
func (s *ProgressService) mutateUser(ctx context.Context, userID string, fn func(u *model.User) error) error {
	_, err := s.users.Update(ctx, func(users []model.User) ([]model.User, error) {
		i := indexOfUser(users, userID)
		if i < 0 {
			return nil, apperror.NotFound("user", userID)
		}
		if err := fn(&users[i]); err != nil {
			return nil, err
		}
		return users, nil
	})
	if errors.Is(err, errUnchanged) {
		return nil
	}
	return err
}

// mutateEntry applies fn to an existing ledger entry and stamps UpdatedAt.
func (s *ProgressService) mutateEntry(ctx context.Context, userID, bookID string, fn func(e *model.ProgressEntry) error) (*model.ProgressEntry, error) {
	var out model.ProgressEntry
	err := s.mutateUser(ctx, userID, func(u *model.User) error {
		entry, ok := u.Progress[bookID]
		if !ok {
			return apperror.NotFound("progress entry", bookID)
		}
		if err := fn(&entry); err != nil {
			return err
		}
		entry.UpdatedAt = s.now()
		u.Progress[bookID] = entry
		out = entry.Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("progress entry changed",
		slog.String("user_id", userID),
		slog.String("book_id", bookID),
		slog.String("status", string(out.Status)),
	)
	return &out, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

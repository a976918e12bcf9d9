package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/book-club/internal/apperror"
	"github.com/sakif/book-club/internal/model"
	"github.com/sakif/book-club/internal/repository"
)

// Club limits.
const (
	MaxOwners             = 3
	MaxClubNameLength     = 100
	MaxClubDescriptionLen = 2000
)

// ClubDraft is the input to CreateClub.
type ClubDraft struct {
	Name        string        `json:"name"`
	Description string        `json:"description"`
	IsPrivate   bool          `json:"isPrivate"`
	Tags        []string      `json:"tags"`
	Location    string        `json:"location"`
	Meeting     model.Meeting `json:"meeting"`
	ImageID     string        `json:"imageId"`
}

// ClubPatch is the input to UpdateClub. Nil fields are left alone.
type ClubPatch struct {
	Name        *string        `json:"name"`
	Description *string        `json:"description"`
	IsPrivate   *bool          `json:"isPrivate"`
	IsActive    *bool          `json:"isActive"`
	Tags        *[]string      `json:"tags"`
	Location    *string        `json:"location"`
	Meeting     *model.Meeting `json:"meeting"`
	ImageID     *string        `json:"imageId"`
}

// ClubService owns the club directory: lifecycle, membership and roles,
// and each club's reading list.
//
// ROLE RULES:
//   - owner:     everything, including role changes and deleting the club
//   - moderator: edit club details, manage the reading list, suspend members
//   - member:    read, leave
//
// A club always has between 1 and MaxOwners owners. ChangeRole is the only
// operation that can change the owner count of an existing member, and it
// refuses any change that would leave the range.
type ClubService struct {
	clubs  *repository.Collection[model.Club]
	books  *repository.Collection[model.Book]
	logger *slog.Logger
	now    func() time.Time
}

func NewClubService(c *Collections, logger *slog.Logger) *ClubService {
	return &ClubService{
		clubs:  c.Clubs,
		books:  c.Books,
		logger: logger,
		now:    time.Now,
	}
}

// ===== LIFECYCLE =====

// CreateClub validates draft and stores a new club with actorID as its only
// owner. Names must be unique (exact, case-sensitive match).
func (s *ClubService) CreateClub(ctx context.Context, actorID string, draft ClubDraft) (*model.Club, error) {
	if actorID == "" {
		return nil, apperror.Unauthorized("you must be signed in to create a club")
	}

	name := strings.TrimSpace(draft.Name)
	description := strings.TrimSpace(draft.Description)
	if name == "" {
		return nil, apperror.ValidationFailed("name", "club name is required")
	}
	if len(name) > MaxClubNameLength {
		return nil, apperror.ValidationFailed("name",
			fmt.Sprintf("club name must be %d characters or less", MaxClubNameLength))
	}
	if description == "" {
		return nil, apperror.ValidationFailed("description", "club description is required")
	}
	if len(description) > MaxClubDescriptionLen {
		return nil, apperror.ValidationFailed("description",
			fmt.Sprintf("club description must be %d characters or less", MaxClubDescriptionLen))
	}

	now := s.now()
	club := model.Club{
		ID:          xid.New().String(),
		Name:        name,
		Description: description,
		ImageID:     draft.ImageID,
		OwnerID:     actorID,
		IsPrivate:   draft.IsPrivate,
		IsActive:    true,
		Tags:        cleanTags(draft.Tags),
		Location:    strings.TrimSpace(draft.Location),
		Meeting:     draft.Meeting,
		Members:     []model.ClubMember{{UserID: actorID, Role: model.RoleOwner, JoinedAt: now}},
		Books:       []model.ClubBook{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	// The name check runs inside the update so two concurrent creates with
	// the same name cannot both pass it.
	_, err := s.clubs.Update(ctx, func(clubs []model.Club) ([]model.Club, error) {
		if clubNameTaken(clubs, name) {
			return nil, apperror.DuplicateName("club", name)
		}
		return append(clubs, club), nil
	})
	if err != nil {
		if !errors.Is(err, apperror.ErrConflict) {
			s.logger.Error("failed to create club",
				slog.String("name", name),
				slog.String("error", err.Error()),
			)
		}
		return nil, err
	}

	s.logger.Info("club created",
		slog.String("club_id", club.ID),
		slog.String("name", club.Name),
		slog.String("owner_id", actorID),
	)
	return &club, nil
}

// ClubNameExists reports whether a club already uses exactly name.
func (s *ClubService) ClubNameExists(ctx context.Context, name string) (bool, error) {
	clubs, err := s.clubs.Snapshot(ctx)
	if err != nil {
		return false, fmt.Errorf("listing clubs: %w", err)
	}
	return clubNameTaken(clubs, strings.TrimSpace(name)), nil
}

func clubNameTaken(clubs []model.Club, name string) bool {
	return slices.ContainsFunc(clubs, func(c model.Club) bool { return c.Name == name })
}

// UpdateClub applies patch. Moderators and owners may edit.
//
// Renaming does not re-check uniqueness; only CreateClub enforces it.
func (s *ClubService) UpdateClub(ctx context.Context, actorID, clubID string, patch ClubPatch) (*model.Club, error) {
	if patch.Name != nil {
		if name := strings.TrimSpace(*patch.Name); name == "" || len(name) > MaxClubNameLength {
			return nil, apperror.ValidationFailed("name",
				fmt.Sprintf("club name must be 1 to %d characters", MaxClubNameLength))
		}
	}
	if patch.Description != nil && strings.TrimSpace(*patch.Description) == "" {
		return nil, apperror.ValidationFailed("description", "club description cannot be empty")
	}

	club, err := s.mutate(ctx, clubID, func(c *model.Club) error {
		if err := requireModerator(c, actorID); err != nil {
			return err
		}
		if patch.Name != nil {
			c.Name = strings.TrimSpace(*patch.Name)
		}
		if patch.Description != nil {
			c.Description = strings.TrimSpace(*patch.Description)
		}
		if patch.IsPrivate != nil {
			c.IsPrivate = *patch.IsPrivate
		}
		if patch.IsActive != nil {
			c.IsActive = *patch.IsActive
		}
		if patch.Tags != nil {
			c.Tags = cleanTags(*patch.Tags)
		}
		if patch.Location != nil {
			c.Location = strings.TrimSpace(*patch.Location)
		}
		if patch.Meeting != nil {
			c.Meeting = *patch.Meeting
		}
		if patch.ImageID != nil {
			c.ImageID = *patch.ImageID
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("club updated", slog.String("club_id", clubID), slog.String("actor_id", actorID))
	return club, nil
}

// DeleteClub removes the club. Only owners may delete. Images, member
// progress and shelves that mention the club are left as they are.
func (s *ClubService) DeleteClub(ctx context.Context, actorID, clubID string) error {
	_, err := s.clubs.Update(ctx, func(clubs []model.Club) ([]model.Club, error) {
		i := indexOfClub(clubs, clubID)
		if i < 0 {
			return nil, apperror.NotFound("club", clubID)
		}
		if role, _ := clubs[i].RoleOf(actorID); role != model.RoleOwner {
			return nil, apperror.Forbidden("only a club owner can delete the club")
		}
		return slices.Delete(clubs, i, i+1), nil
	})
	if err != nil {
		return err
	}

	s.logger.Info("club deleted", slog.String("club_id", clubID), slog.String("actor_id", actorID))
	return nil
}

// ===== MEMBERSHIP =====

// JoinClub adds userID as a member. Joining twice is a no-op. Private clubs
// cannot be joined directly.
func (s *ClubService) JoinClub(ctx context.Context, clubID, userID string) (*model.Club, error) {
	if userID == "" {
		return nil, apperror.Unauthorized("you must be signed in to join a club")
	}

	club, err := s.mutate(ctx, clubID, func(c *model.Club) error {
		if c.Member(userID) != nil {
			return errUnchanged
		}
		if c.IsPrivate {
			return apperror.Forbidden("this club is private")
		}
		c.Members = append(c.Members, model.ClubMember{
			UserID:   userID,
			Role:     model.RoleMember,
			JoinedAt: s.now(),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("club joined", slog.String("club_id", clubID), slog.String("user_id", userID))
	return club, nil
}

// LeaveClub removes userID. Leaving a club you are not in is a no-op.
//
// There is no last-owner guard here: a sole owner who leaves leaves the club
// ownerless. Only ChangeRole enforces the owner bounds.
func (s *ClubService) LeaveClub(ctx context.Context, clubID, userID string) (*model.Club, error) {
	club, err := s.mutate(ctx, clubID, func(c *model.Club) error {
		i := slices.IndexFunc(c.Members, func(m model.ClubMember) bool { return m.UserID == userID })
		if i < 0 {
			return errUnchanged
		}
		c.Members = slices.Delete(c.Members, i, i+1)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("club left", slog.String("club_id", clubID), slog.String("user_id", userID))
	return club, nil
}

// ChangeRole sets memberID's role. Only owners may change roles.
//
// Rejected with no change:
//   - an unknown role (validation)
//   - a promotion that would exceed MaxOwners (ErrOwnerQuotaExceeded)
//   - demoting the last owner (ErrOwnerQuotaUnderflow)
func (s *ClubService) ChangeRole(ctx context.Context, actorID, clubID, memberID string, role model.Role) (*model.Club, error) {
	if !role.Valid() {
		return nil, apperror.ValidationFailed("role", fmt.Sprintf("unknown role %q", role))
	}

	club, err := s.mutate(ctx, clubID, func(c *model.Club) error {
		if actorRole, _ := c.RoleOf(actorID); actorRole != model.RoleOwner {
			return apperror.Forbidden("only a club owner can change roles")
		}
		m := c.Member(memberID)
		if m == nil {
			return apperror.NotFound("member", memberID)
		}
		if m.Role == role {
			return errUnchanged
		}

		owners := c.OwnerCount()
		if role == model.RoleOwner && owners >= MaxOwners {
			return apperror.OwnerQuotaExceeded(MaxOwners)
		}
		if m.Role == model.RoleOwner && owners <= 1 {
			return apperror.OwnerQuotaUnderflow()
		}

		m.Role = role
		if role == model.RoleOwner {
			m.Suspended = false
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("club role changed",
		slog.String("club_id", clubID),
		slog.String("member_id", memberID),
		slog.String("role", string(role)),
		slog.String("actor_id", actorID),
	)
	return club, nil
}

// SetSuspended suspends or reinstates a member. The actor must outrank the
// target: owners act on moderators and members, moderators on members.
func (s *ClubService) SetSuspended(ctx context.Context, actorID, clubID, memberID string, suspended bool) (*model.Club, error) {
	club, err := s.mutate(ctx, clubID, func(c *model.Club) error {
		actorRole, ok := c.RoleOf(actorID)
		if !ok || !actorRole.CanModerate() {
			return apperror.Forbidden("only moderators and owners can suspend members")
		}
		m := c.Member(memberID)
		if m == nil {
			return apperror.NotFound("member", memberID)
		}
		if rank(actorRole) <= rank(m.Role) {
			return apperror.Forbidden(fmt.Sprintf("a %s cannot suspend a %s", actorRole, m.Role))
		}
		if m.Suspended == suspended {
			return errUnchanged
		}
		m.Suspended = suspended
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("club member suspension changed",
		slog.String("club_id", clubID),
		slog.String("member_id", memberID),
		slog.Bool("suspended", suspended),
	)
	return club, nil
}

func rank(r model.Role) int {
	switch r {
	case model.RoleOwner:
		return 3
	case model.RoleModerator:
		return 2
	case model.RoleMember:
		return 1
	}
	return 0
}

// ===== QUERIES =====

// IsClubMember is false for unknown clubs.
func (s *ClubService) IsClubMember(ctx context.Context, clubID, userID string) (bool, error) {
	club, err := s.find(ctx, clubID)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return club.Member(userID) != nil, nil
}

// IsModerator is true for moderators and owners.
func (s *ClubService) IsModerator(ctx context.Context, clubID, userID string) (bool, error) {
	club, err := s.find(ctx, clubID)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	role, ok := club.RoleOf(userID)
	return ok && role.CanModerate(), nil
}

func (s *ClubService) GetClub(ctx context.Context, clubID string) (*model.Club, error) {
	return s.find(ctx, clubID)
}

// GetVisibleClub is GetClub as seen by viewerID: a private club is reported
// as not found to anyone who is not a member.
func (s *ClubService) GetVisibleClub(ctx context.Context, clubID, viewerID string) (*model.Club, error) {
	club, err := s.find(ctx, clubID)
	if err != nil {
		return nil, err
	}
	if club.IsPrivate && club.Member(viewerID) == nil {
		return nil, apperror.NotFound("club", clubID)
	}
	return club, nil
}

// GetMyClubs returns the clubs userID belongs to, in creation order.
func (s *ClubService) GetMyClubs(ctx context.Context, userID string) ([]model.Club, error) {
	clubs, err := s.clubs.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing clubs: %w", err)
	}
	mine := []model.Club{}
	for _, c := range clubs {
		if c.Member(userID) != nil {
			mine = append(mine, c)
		}
	}
	return mine, nil
}

// ListClubs returns clubs whose name, description, location or tags contain
// query (case-insensitive). An empty query matches everything. Private clubs
// are only listed for their members.
func (s *ClubService) ListClubs(ctx context.Context, query, viewerID string) ([]model.Club, error) {
	clubs, err := s.clubs.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing clubs: %w", err)
	}

	q := strings.ToLower(strings.TrimSpace(query))
	out := []model.Club{}
	for _, c := range clubs {
		if c.IsPrivate && c.Member(viewerID) == nil {
			continue
		}
		if q == "" || clubMatches(&c, q) {
			out = append(out, c)
		}
	}
	return out, nil
}

func clubMatches(c *model.Club, q string) bool {
	if strings.Contains(strings.ToLower(c.Name), q) ||
		strings.Contains(strings.ToLower(c.Description), q) ||
		strings.Contains(strings.ToLower(c.Location), q) {
		return true
	}
	return slices.ContainsFunc(c.Tags, func(t string) bool {
		return strings.Contains(strings.ToLower(t), q)
	})
}

// ===== READING LIST =====

// AddClubBook puts a catalog book on the club's reading list. status
// defaults to upcoming; adding as current demotes the previous current book.
func (s *ClubService) AddClubBook(ctx context.Context, actorID, clubID, bookID string, status model.ClubBookStatus) (*model.Club, error) {
	if status == "" {
		status = model.ClubBookUpcoming
	}
	if !status.Valid() {
		return nil, apperror.ValidationFailed("status", fmt.Sprintf("unknown status %q", status))
	}
	if err := s.requireCatalogBook(ctx, bookID); err != nil {
		return nil, err
	}

	club, err := s.mutate(ctx, clubID, func(c *model.Club) error {
		if err := requireModerator(c, actorID); err != nil {
			return err
		}
		if c.Book(bookID) != nil {
			return apperror.Conflict("this book is already on the club's reading list")
		}
		c.Books = append(c.Books, model.ClubBook{
			BookID:  bookID,
			Status:  model.ClubBookUpcoming,
			AddedBy: actorID,
			AddedAt: s.now(),
		})
		setBookStatus(c, bookID, status)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("club book added",
		slog.String("club_id", clubID),
		slog.String("book_id", bookID),
		slog.String("status", string(status)),
	)
	return club, nil
}

// SetClubBookStatus moves a book already on the list to status.
func (s *ClubService) SetClubBookStatus(ctx context.Context, actorID, clubID, bookID string, status model.ClubBookStatus) (*model.Club, error) {
	if !status.Valid() {
		return nil, apperror.ValidationFailed("status", fmt.Sprintf("unknown status %q", status))
	}

	return s.mutate(ctx, clubID, func(c *model.Club) error {
		if err := requireModerator(c, actorID); err != nil {
			return err
		}
		if c.Book(bookID) == nil {
			return apperror.NotFound("club book", bookID)
		}
		setBookStatus(c, bookID, status)
		return nil
	})
}

// SetCurrentBook makes bookID the club's current read, adding it to the
// list first if needed. The previous current book becomes completed.
func (s *ClubService) SetCurrentBook(ctx context.Context, actorID, clubID, bookID string) (*model.Club, error) {
	if err := s.requireCatalogBook(ctx, bookID); err != nil {
		return nil, err
	}

	club, err := s.mutate(ctx, clubID, func(c *model.Club) error {
		if err := requireModerator(c, actorID); err != nil {
			return err
		}
		if c.CurrentBookID == bookID {
			return errUnchanged
		}
		if c.Book(bookID) == nil {
			c.Books = append(c.Books, model.ClubBook{
				BookID:  bookID,
				Status:  model.ClubBookUpcoming,
				AddedBy: actorID,
				AddedAt: s.now(),
			})
		}
		setBookStatus(c, bookID, model.ClubBookCurrent)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("club current book set", slog.String("club_id", clubID), slog.String("book_id", bookID))
	return club, nil
}

// RemoveClubBook takes a book off the list, clearing CurrentBookID if it
// was the current one.
func (s *ClubService) RemoveClubBook(ctx context.Context, actorID, clubID, bookID string) (*model.Club, error) {
	return s.mutate(ctx, clubID, func(c *model.Club) error {
		if err := requireModerator(c, actorID); err != nil {
			return err
		}
		i := slices.IndexFunc(c.Books, func(b model.ClubBook) bool { return b.BookID == bookID })
		if i < 0 {
			return apperror.NotFound("club book", bookID)
		}
		c.Books = slices.Delete(c.Books, i, i+1)
		if c.CurrentBookID == bookID {
			c.CurrentBookID = ""
		}
		return nil
	})
}

// setBookStatus keeps the single-current-book invariant: making a book
// current completes the old one, and moving the current book elsewhere
// clears CurrentBookID.
func setBookStatus(c *model.Club, bookID string, status model.ClubBookStatus) {
	if status == model.ClubBookCurrent {
		for i := range c.Books {
			if c.Books[i].Status == model.ClubBookCurrent && c.Books[i].BookID != bookID {
				c.Books[i].Status = model.ClubBookCompleted
			}
		}
		c.CurrentBookID = bookID
	} else if c.CurrentBookID == bookID {
		c.CurrentBookID = ""
	}
	c.Book(bookID).Status = status
}

// ===== HELPERS =====

func (s *ClubService) find(ctx context.Context, clubID string) (*model.Club, error) {
	clubs, err := s.clubs.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing clubs: %w", err)
	}
	i := indexOfClub(clubs, clubID)
	if i < 0 {
		return nil, apperror.NotFound("club", clubID)
	}
	return &clubs[i], nil
}

// mutate runs fn on a copy of one club inside a collection update and bumps
// UpdatedAt. fn returning errUnchanged skips the write and returns the club
// as it is.
func (s *ClubService) mutate(ctx context.Context, clubID string, fn func(c *model.Club) error) (*model.Club, error) {
	var out model.Club
	_, err := s.clubs.Update(ctx, func(clubs []model.Club) ([]model.Club, error) {
		i := indexOfClub(clubs, clubID)
		if i < 0 {
			return nil, apperror.NotFound("club", clubID)
		}
		if err := fn(&clubs[i]); err != nil {
			out = clubs[i]
			return nil, err
		}
		clubs[i].UpdatedAt = s.now()
		out = clubs[i]
		return clubs, nil
	})
	if errors.Is(err, errUnchanged) {
		return &out, nil
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *ClubService) requireCatalogBook(ctx context.Context, bookID string) error {
	books, err := s.books.Snapshot(ctx)
	if err != nil {
		return fmt.Errorf("listing books: %w", err)
	}
	if indexOfBook(books, bookID) < 0 {
		return apperror.NotFound("book", bookID)
	}
	return nil
}

func requireModerator(c *model.Club, userID string) error {
	role, ok := c.RoleOf(userID)
	if !ok || !role.CanModerate() {
		return apperror.Forbidden("only moderators and owners can do this")
	}
	if m := c.Member(userID); m.Suspended {
		return apperror.Forbidden("your membership in this club is suspended")
	}
	return nil
}

package model

import (
	"maps"
	"slices"
	"time"
)

// User is a registered account together with its reading ledger.
//
// PasswordHash is a bcrypt hash and is persisted, so the struct must never be
// written to an API response directly; use Profile for that. Users who signed
// in with GitHub have a GitHubID and an empty PasswordHash.
type User struct {
	ID            string                   `json:"id"`
	Name          string                   `json:"name"`
	Email         string                   `json:"email"`
	PasswordHash  string                   `json:"passwordHash,omitempty"`
	GitHubID      int64                    `json:"githubId,omitempty"`
	AvatarID      string                   `json:"avatarId,omitempty"`
	Bio           string                   `json:"bio,omitempty"`
	JoinedAt      time.Time                `json:"joinedAt"`
	IsActive      bool                     `json:"isActive"`
	CurrentBookID string                   `json:"currentBookId,omitempty"`
	Shelf         []string                 `json:"shelf"`
	Progress      map[string]ProgressEntry `json:"progress"` // keyed by book ID
}

func (u User) Clone() User {
	u.Shelf = slices.Clone(u.Shelf)
	if u.Progress != nil {
		progress := make(map[string]ProgressEntry, len(u.Progress))
		for id, entry := range u.Progress {
			progress[id] = entry.Clone()
		}
		u.Progress = progress
	}
	return u
}

// Profile is the client-facing view of a User.
type Profile struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Email         string    `json:"email"`
	AvatarID      string    `json:"avatarId,omitempty"`
	Bio           string    `json:"bio,omitempty"`
	JoinedAt      time.Time `json:"joinedAt"`
	IsActive      bool      `json:"isActive"`
	CurrentBookID string    `json:"currentBookId,omitempty"`
	ShelfSize     int       `json:"shelfSize"`
	BooksTracked  int       `json:"booksTracked"`
}

func (u *User) Profile() Profile {
	return Profile{
		ID:            u.ID,
		Name:          u.Name,
		Email:         u.Email,
		AvatarID:      u.AvatarID,
		Bio:           u.Bio,
		JoinedAt:      u.JoinedAt,
		IsActive:      u.IsActive,
		CurrentBookID: u.CurrentBookID,
		ShelfSize:     len(u.Shelf),
		BooksTracked:  len(u.Progress),
	}
}

// ProgressEntries returns the ledger as a slice in no particular order.
func (u *User) ProgressEntries() []ProgressEntry {
	return slices.Collect(maps.Values(u.Progress))
}

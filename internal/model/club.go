// Package model defines the records the service stores and returns.
//
// Every record is persisted as part of a JSON array (one array per collection),
// so the json tags here ARE the storage format. Renaming a tag is a data migration.
package model

import (
	"slices"
	"time"
)

// Role is a club member's permission level.
type Role string

const (
	RoleOwner     Role = "owner"
	RoleModerator Role = "moderator"
	RoleMember    Role = "member"
)

// Valid reports whether r is one of the three known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleOwner, RoleModerator, RoleMember:
		return true
	}
	return false
}

// CanModerate is true for moderators and owners.
func (r Role) CanModerate() bool {
	return r == RoleOwner || r == RoleModerator
}

// ClubBookStatus tracks where a book sits in a club's reading list.
type ClubBookStatus string

const (
	ClubBookCurrent   ClubBookStatus = "current"
	ClubBookUpcoming  ClubBookStatus = "upcoming"
	ClubBookCompleted ClubBookStatus = "completed"
)

func (s ClubBookStatus) Valid() bool {
	switch s {
	case ClubBookCurrent, ClubBookUpcoming, ClubBookCompleted:
		return true
	}
	return false
}

type ClubMember struct {
	UserID    string    `json:"userId"`
	Role      Role      `json:"role"`
	JoinedAt  time.Time `json:"joinedAt"`
	Suspended bool      `json:"suspended"`
}

// ClubBook links a club to a catalog book. It is independent of any
// member's personal shelf.
type ClubBook struct {
	BookID  string         `json:"bookId"`
	Status  ClubBookStatus `json:"status"`
	AddedBy string         `json:"addedBy"`
	AddedAt time.Time      `json:"addedAt"`
}

type Meeting struct {
	Frequency   string     `json:"frequency,omitempty"`
	Platform    string     `json:"platform,omitempty"`
	NextMeeting *time.Time `json:"nextMeeting,omitempty"`
	LastMeeting *time.Time `json:"lastMeeting,omitempty"`
}

type Club struct {
	ID            string       `json:"id"`
	Name          string       `json:"name"`
	Description   string       `json:"description"`
	ImageID       string       `json:"imageId,omitempty"`
	OwnerID       string       `json:"ownerId"`
	IsPrivate     bool         `json:"isPrivate"`
	IsActive      bool         `json:"isActive"`
	Tags          []string     `json:"tags"`
	Location      string       `json:"location,omitempty"`
	Meeting       Meeting      `json:"meeting"`
	Members       []ClubMember `json:"members"`
	CurrentBookID string       `json:"currentBookId,omitempty"`
	Books         []ClubBook   `json:"books"`
	CreatedAt     time.Time    `json:"createdAt"`
	UpdatedAt     time.Time    `json:"updatedAt"`
}

// Clone returns a deep copy so a mutation on the copy never leaks into
// a snapshot another goroutine is reading.
func (c Club) Clone() Club {
	c.Tags = slices.Clone(c.Tags)
	c.Members = slices.Clone(c.Members)
	c.Books = slices.Clone(c.Books)
	c.Meeting.NextMeeting = cloneTime(c.Meeting.NextMeeting)
	c.Meeting.LastMeeting = cloneTime(c.Meeting.LastMeeting)
	return c
}

// Member returns the member entry for userID, or nil.
func (c *Club) Member(userID string) *ClubMember {
	for i := range c.Members {
		if c.Members[i].UserID == userID {
			return &c.Members[i]
		}
	}
	return nil
}

// RoleOf returns userID's role and whether they are a member at all.
func (c *Club) RoleOf(userID string) (Role, bool) {
	if m := c.Member(userID); m != nil {
		return m.Role, true
	}
	return "", false
}

// OwnerCount counts members holding the owner role.
func (c *Club) OwnerCount() int {
	n := 0
	for _, m := range c.Members {
		if m.Role == RoleOwner {
			n++
		}
	}
	return n
}

// Book returns the club's entry for bookID, or nil.
func (c *Club) Book(bookID string) *ClubBook {
	for i := range c.Books {
		if c.Books[i].BookID == bookID {
			return &c.Books[i]
		}
	}
	return nil
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestClubCloneIsDeep(t *testing.T) {
	next := time.Now()
	orig := Club{
		ID:      "c1",
		Tags:    []string{"mystery"},
		Members: []ClubMember{{UserID: "u1", Role: RoleOwner}},
		Books:   []ClubBook{{BookID: "b1", Status: ClubBookCurrent}},
		Meeting: Meeting{NextMeeting: &next},
	}

	cp := orig.Clone()
	cp.Tags[0] = "horror"
	cp.Members[0].Role = RoleMember
	cp.Books[0].Status = ClubBookCompleted
	*cp.Meeting.NextMeeting = next.Add(time.Hour)

	assert.Equal(t, "mystery", orig.Tags[0])
	assert.Equal(t, RoleOwner, orig.Members[0].Role)
	assert.Equal(t, ClubBookCurrent, orig.Books[0].Status)
	assert.Equal(t, next, *orig.Meeting.NextMeeting)
}

func TestUserCloneCopiesLedger(t *testing.T) {
	orig := User{
		ID:       "u1",
		Shelf:    []string{"b1"},
		Progress: map[string]ProgressEntry{"b1": {BookID: "b1", UserID: "u1", Progress: 10}},
	}

	cp := orig.Clone()
	cp.Shelf[0] = "b2"
	cp.Progress["b1"] = ProgressEntry{BookID: "b1", UserID: "u1", Progress: 99}

	assert.Equal(t, "b1", orig.Shelf[0])
	assert.Equal(t, 10, orig.Progress["b1"].Progress)
}

func TestClubRoleHelpers(t *testing.T) {
	c := Club{Members: []ClubMember{
		{UserID: "a", Role: RoleOwner},
		{UserID: "b", Role: RoleModerator},
		{UserID: "c", Role: RoleMember},
	}}

	assert.Equal(t, 1, c.OwnerCount())

	role, ok := c.RoleOf("b")
	assert.True(t, ok)
	assert.True(t, role.CanModerate())

	role, _ = c.RoleOf("c")
	assert.False(t, role.CanModerate())

	_, ok = c.RoleOf("zzz")
	assert.False(t, ok)

	assert.False(t, Role("admin").Valid())
}

func TestProfileHidesPasswordHash(t *testing.T) {
	u := User{ID: "u1", Name: "Ada", PasswordHash: "$2a$04$secret", Shelf: []string{"b1", "b2"}}
	p := u.Profile()

	assert.Equal(t, "u1", p.ID)
	assert.Equal(t, 2, p.ShelfSize)
}

func TestImageOwnedBy(t *testing.T) {
	img := Image{UserID: "u1"}
	assert.True(t, img.OwnedBy("u1"))
	assert.False(t, img.OwnedBy(""))
	assert.False(t, img.OwnedBy("c1"))
}

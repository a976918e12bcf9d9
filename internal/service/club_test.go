package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/book-club/internal/apperror"
	"github.com/sakif/book-club/internal/model"
	"github.com/sakif/book-club/internal/repository"
)

// =========================================================================
// CreateClub TESTS
// =========================================================================

func TestCreateClub_OwnerIsOnlyMember(t *testing.T) {
	env := newTestEnv(t)
	owner := env.addUser(t, "owner")

	club, err := env.clubs.CreateClub(context.Background(), owner, ClubDraft{
		Name:        "  Mystery Solvers ",
		Description: "Whodunits monthly",
		Tags:        []string{"crime", " Crime ", "", "noir"},
	})
	require.NoError(t, err)

	assert.Equal(t, "Mystery Solvers", club.Name)
	assert.Equal(t, owner, club.OwnerID)
	assert.True(t, club.IsActive)
	assert.Equal(t, []string{"crime", "noir"}, club.Tags)
	require.Len(t, club.Members, 1)
	assert.Equal(t, model.RoleOwner, club.Members[0].Role)
	assert.Equal(t, 1, club.OwnerCount())
}

func TestCreateClub_Validation(t *testing.T) {
	env := newTestEnv(t)
	owner := env.addUser(t, "owner")
	ctx := context.Background()

	_, err := env.clubs.CreateClub(ctx, "", ClubDraft{Name: "x", Description: "y"})
	assert.ErrorIs(t, err, apperror.ErrUnauthorized)

	_, err = env.clubs.CreateClub(ctx, owner, ClubDraft{Name: " ", Description: "y"})
	assert.ErrorIs(t, err, apperror.ErrValidation)

	_, err = env.clubs.CreateClub(ctx, owner, ClubDraft{Name: "x"})
	assert.ErrorIs(t, err, apperror.ErrValidation)
}

func TestCreateClub_DuplicateNameIsRejected(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.addUser(t, "owner")
	env.addClub(t, owner, "Mystery Solvers")

	_, err := env.clubs.CreateClub(ctx, owner, ClubDraft{Name: "Mystery Solvers", Description: "again"})
	require.ErrorIs(t, err, apperror.ErrDuplicateName)
	assert.ErrorIs(t, err, apperror.ErrConflict)

	clubs, err := env.clubs.ListClubs(ctx, "", owner)
	require.NoError(t, err)
	assert.Len(t, clubs, 1, "a rejected create must not append")

	// The match is case-sensitive.
	_, err = env.clubs.CreateClub(ctx, owner, ClubDraft{Name: "mystery solvers", Description: "lower"})
	assert.NoError(t, err)

	exists, err := env.clubs.ClubNameExists(ctx, "Mystery Solvers")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestCreateClub_ConcurrentSameNameOnlyOneWins(t *testing.T) {
	env := newTestEnv(t)
	owner := env.addUser(t, "owner")

	var wg sync.WaitGroup
	errs := make([]error, 10)
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = env.clubs.CreateClub(context.Background(), owner, ClubDraft{Name: "Race", Description: "d"})
		}()
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		if err == nil {
			ok++
		} else {
			assert.ErrorIs(t, err, apperror.ErrDuplicateName)
		}
	}
	assert.Equal(t, 1, ok)
}

// =========================================================================
// MEMBERSHIP TESTS
// =========================================================================

func TestJoinLeave_Idempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.addUser(t, "owner")
	reader := env.addUser(t, "reader")
	club := env.addClub(t, owner, "Sci-Fi Circle")

	_, err := env.clubs.JoinClub(ctx, club.ID, reader)
	require.NoError(t, err)
	member, err := env.clubs.IsClubMember(ctx, club.ID, reader)
	require.NoError(t, err)
	assert.True(t, member)

	before, err := env.store.Load(ctx, repository.KeyClubs)
	require.NoError(t, err)
	again, err := env.clubs.JoinClub(ctx, club.ID, reader)
	require.NoError(t, err)
	assert.Len(t, again.Members, 2)
	after, _ := env.store.Load(ctx, repository.KeyClubs)
	assert.Equal(t, before, after, "second join must not rewrite storage")

	_, err = env.clubs.LeaveClub(ctx, club.ID, reader)
	require.NoError(t, err)
	member, _ = env.clubs.IsClubMember(ctx, club.ID, reader)
	assert.False(t, member)

	left, err := env.clubs.LeaveClub(ctx, club.ID, reader)
	require.NoError(t, err)
	assert.Len(t, left.Members, 1)
}

func TestJoinClub_PrivateAndUnknown(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.addUser(t, "owner")
	reader := env.addUser(t, "reader")

	private, err := env.clubs.CreateClub(ctx, owner, ClubDraft{Name: "Secret", Description: "d", IsPrivate: true})
	require.NoError(t, err)

	_, err = env.clubs.JoinClub(ctx, private.ID, reader)
	assert.ErrorIs(t, err, apperror.ErrForbidden)

	_, err = env.clubs.JoinClub(ctx, "nope", reader)
	assert.ErrorIs(t, err, apperror.ErrNotFound)

	member, err := env.clubs.IsClubMember(ctx, "nope", reader)
	require.NoError(t, err)
	assert.False(t, member)
}

// =========================================================================
// ChangeRole TESTS
// =========================================================================

func TestChangeRole_LastOwnerCannotBeDemoted(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.addUser(t, "owner")
	club := env.addClub(t, owner, "Mystery Solvers")

	before, err := env.store.Load(ctx, repository.KeyClubs)
	require.NoError(t, err)

	_, err = env.clubs.ChangeRole(ctx, owner, club.ID, owner, model.RoleMember)
	require.ErrorIs(t, err, apperror.ErrOwnerQuotaUnderflow)

	after, err := env.store.Load(ctx, repository.KeyClubs)
	require.NoError(t, err)
	assert.Equal(t, before, after, "a rejected role change must not write")

	got, err := env.clubs.GetClub(ctx, club.ID)
	require.NoError(t, err)
	assert.Equal(t, club.UpdatedAt, got.UpdatedAt)
	assert.Equal(t, 1, got.OwnerCount())
}

func TestChangeRole_OwnerCountStaysWithinBounds(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.addUser(t, "owner")
	club := env.addClub(t, owner, "Classics")

	members := make([]string, 4)
	for i := range members {
		members[i] = env.addUser(t, "m"+string(rune('a'+i)))
		_, err := env.clubs.JoinClub(ctx, club.ID, members[i])
		require.NoError(t, err)
	}

	// Two promotions reach the maximum of three owners.
	for _, m := range members[:2] {
		_, err := env.clubs.ChangeRole(ctx, owner, club.ID, m, model.RoleOwner)
		require.NoError(t, err)
	}

	_, err := env.clubs.ChangeRole(ctx, owner, club.ID, members[2], model.RoleOwner)
	require.ErrorIs(t, err, apperror.ErrOwnerQuotaExceeded)

	got, _ := env.clubs.GetClub(ctx, club.ID)
	assert.Equal(t, MaxOwners, got.OwnerCount())
	role, _ := got.RoleOf(members[2])
	assert.Equal(t, model.RoleMember, role)

	// With three owners, demotion is allowed down to one and no further.
	_, err = env.clubs.ChangeRole(ctx, owner, club.ID, members[0], model.RoleModerator)
	require.NoError(t, err)
	_, err = env.clubs.ChangeRole(ctx, owner, club.ID, members[1], model.RoleMember)
	require.NoError(t, err)
	_, err = env.clubs.ChangeRole(ctx, owner, club.ID, owner, model.RoleMember)
	require.ErrorIs(t, err, apperror.ErrOwnerQuotaUnderflow)

	got, _ = env.clubs.GetClub(ctx, club.ID)
	assert.Equal(t, 1, got.OwnerCount())
}

func TestChangeRole_Permissions(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.addUser(t, "owner")
	mod := env.addUser(t, "mod")
	reader := env.addUser(t, "reader")
	club := env.addClub(t, owner, "Poetry")
	for _, u := range []string{mod, reader} {
		_, err := env.clubs.JoinClub(ctx, club.ID, u)
		require.NoError(t, err)
	}
	_, err := env.clubs.ChangeRole(ctx, owner, club.ID, mod, model.RoleModerator)
	require.NoError(t, err)

	_, err = env.clubs.ChangeRole(ctx, mod, club.ID, reader, model.RoleModerator)
	assert.ErrorIs(t, err, apperror.ErrForbidden, "moderators cannot change roles")

	_, err = env.clubs.ChangeRole(ctx, owner, club.ID, reader, model.Role("admin"))
	assert.ErrorIs(t, err, apperror.ErrValidation)

	_, err = env.clubs.ChangeRole(ctx, owner, club.ID, "stranger", model.RoleModerator)
	assert.ErrorIs(t, err, apperror.ErrNotFound)

	isMod, err := env.clubs.IsModerator(ctx, club.ID, mod)
	require.NoError(t, err)
	assert.True(t, isMod)
	isMod, _ = env.clubs.IsModerator(ctx, club.ID, reader)
	assert.False(t, isMod)
}

// =========================================================================
// SUSPENSION, EDIT AND DELETE TESTS
// =========================================================================

func TestSetSuspended_RankRules(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.addUser(t, "owner")
	mod := env.addUser(t, "mod")
	reader := env.addUser(t, "reader")
	club := env.addClub(t, owner, "Horror")
	for _, u := range []string{mod, reader} {
		_, err := env.clubs.JoinClub(ctx, club.ID, u)
		require.NoError(t, err)
	}
	_, err := env.clubs.ChangeRole(ctx, owner, club.ID, mod, model.RoleModerator)
	require.NoError(t, err)

	got, err := env.clubs.SetSuspended(ctx, mod, club.ID, reader, true)
	require.NoError(t, err)
	assert.True(t, got.Member(reader).Suspended)

	_, err = env.clubs.SetSuspended(ctx, mod, club.ID, owner, true)
	assert.ErrorIs(t, err, apperror.ErrForbidden)

	_, err = env.clubs.SetSuspended(ctx, reader, club.ID, mod, true)
	assert.ErrorIs(t, err, apperror.ErrForbidden)

	// Promoting to owner lifts a suspension.
	got, err = env.clubs.ChangeRole(ctx, owner, club.ID, reader, model.RoleOwner)
	require.NoError(t, err)
	assert.False(t, got.Member(reader).Suspended)
}

func TestUpdateClub(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.addUser(t, "owner")
	reader := env.addUser(t, "reader")
	club := env.addClub(t, owner, "Fantasy")
	_, err := env.clubs.JoinClub(ctx, club.ID, reader)
	require.NoError(t, err)

	updated, err := env.clubs.UpdateClub(ctx, owner, club.ID, ClubPatch{
		Description: strPtr("Dragons and maps"),
		Location:    strPtr("Online"),
	})
	require.NoError(t, err)
	assert.Equal(t, "Dragons and maps", updated.Description)
	assert.Equal(t, "Online", updated.Location)
	assert.Equal(t, "Fantasy", updated.Name)

	_, err = env.clubs.UpdateClub(ctx, reader, club.ID, ClubPatch{Location: strPtr("x")})
	assert.ErrorIs(t, err, apperror.ErrForbidden)

	_, err = env.clubs.UpdateClub(ctx, owner, club.ID, ClubPatch{Name: strPtr("")})
	assert.ErrorIs(t, err, apperror.ErrValidation)
}

func TestDeleteClub(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.addUser(t, "owner")
	reader := env.addUser(t, "reader")
	club := env.addClub(t, owner, "Short Stories")
	_, err := env.clubs.JoinClub(ctx, club.ID, reader)
	require.NoError(t, err)

	assert.ErrorIs(t, env.clubs.DeleteClub(ctx, reader, club.ID), apperror.ErrForbidden)
	require.NoError(t, env.clubs.DeleteClub(ctx, owner, club.ID))
	assert.ErrorIs(t, env.clubs.DeleteClub(ctx, owner, club.ID), apperror.ErrNotFound)
}

// =========================================================================
// LISTING TESTS
// =========================================================================

func TestListClubs_SearchAndPrivacy(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.addUser(t, "owner")
	other := env.addUser(t, "other")

	env.addClub(t, owner, "Mystery Solvers")
	_, err := env.clubs.CreateClub(ctx, owner, ClubDraft{Name: "Hidden Mysteries", Description: "d", IsPrivate: true})
	require.NoError(t, err)
	_, err = env.clubs.CreateClub(ctx, owner, ClubDraft{Name: "Space", Description: "d", Tags: []string{"Mystery"}})
	require.NoError(t, err)

	forOwner, err := env.clubs.ListClubs(ctx, "myster", owner)
	require.NoError(t, err)
	assert.Len(t, forOwner, 3)

	forOther, err := env.clubs.ListClubs(ctx, "myster", other)
	require.NoError(t, err)
	assert.Len(t, forOther, 2, "private clubs are hidden from non-members")

	mine, err := env.clubs.GetMyClubs(ctx, other)
	require.NoError(t, err)
	assert.Empty(t, mine)
}

// =========================================================================
// READING LIST TESTS
// =========================================================================

func TestClubBooks_SingleCurrentBook(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.addUser(t, "owner")
	club := env.addClub(t, owner, "Readers")

	books, err := env.catalog.GetBooks(ctx, nil)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(books), 2)
	first, second := books[0].ID, books[1].ID

	got, err := env.clubs.AddClubBook(ctx, owner, club.ID, first, "")
	require.NoError(t, err)
	assert.Equal(t, model.ClubBookUpcoming, got.Book(first).Status)
	assert.Empty(t, got.CurrentBookID)

	_, err = env.clubs.AddClubBook(ctx, owner, club.ID, first, "")
	assert.ErrorIs(t, err, apperror.ErrConflict)

	got, err = env.clubs.SetCurrentBook(ctx, owner, club.ID, first)
	require.NoError(t, err)
	assert.Equal(t, first, got.CurrentBookID)

	got, err = env.clubs.AddClubBook(ctx, owner, club.ID, second, model.ClubBookCurrent)
	require.NoError(t, err)
	assert.Equal(t, second, got.CurrentBookID)
	assert.Equal(t, model.ClubBookCompleted, got.Book(first).Status)

	got, err = env.clubs.RemoveClubBook(ctx, owner, club.ID, second)
	require.NoError(t, err)
	assert.Empty(t, got.CurrentBookID)
	assert.Nil(t, got.Book(second))

	_, err = env.clubs.AddClubBook(ctx, owner, club.ID, "not-in-catalog", "")
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestClubBooks_RequireModerator(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.addUser(t, "owner")
	reader := env.addUser(t, "reader")
	club := env.addClub(t, owner, "Readers")
	_, err := env.clubs.JoinClub(ctx, club.ID, reader)
	require.NoError(t, err)

	_, err = env.clubs.AddClubBook(ctx, reader, club.ID, seedBookID(t), "")
	assert.ErrorIs(t, err, apperror.ErrForbidden)
}

func TestMutate_BumpsUpdatedAt(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.addUser(t, "owner")

	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	env.clubs.now = func() time.Time { return start }
	club := env.addClub(t, owner, "Clockwork")

	later := start.Add(time.Hour)
	env.clubs.now = func() time.Time { return later }
	got, err := env.clubs.UpdateClub(ctx, owner, club.ID, ClubPatch{Location: strPtr("Library")})
	require.NoError(t, err)
	assert.Equal(t, start, got.CreatedAt)
	assert.Equal(t, later, got.UpdatedAt)
}

package service

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/book-club/internal/apperror"
	"github.com/sakif/book-club/internal/auth"
)

// =========================================================================
// Register / Login TESTS
// =========================================================================

func TestRegister_IssuesTokenForNewUser(t *testing.T) {
	env := newTestEnv(t)

	result, err := env.auth.Register(context.Background(), "Ada", "Ada@Example.com", "correct-horse")
	require.NoError(t, err)

	assert.NotEmpty(t, result.User.ID)
	assert.Equal(t, "ada@example.com", result.User.Email, "email is stored lower-cased")
	assert.True(t, result.User.IsActive)
	assert.NotEqual(t, "correct-horse", result.User.PasswordHash)
	assert.NotNil(t, result.User.Shelf)
	assert.NotNil(t, result.User.Progress)

	userID, err := env.auth.ValidateToken(result.Token)
	require.NoError(t, err)
	assert.Equal(t, result.User.ID, userID)
}

func TestRegister_Validation(t *testing.T) {
	tests := []struct {
		name, user, email, password, field string
	}{
		{"empty name", "  ", "a@example.com", "correct-horse", "name"},
		{"bad email", "Ada", "not-an-email", "correct-horse", "email"},
		{"display-name email", "Ada", "Ada <a@example.com>", "correct-horse", "email"},
		{"short password", "Ada", "a@example.com", "short", "password"},
		{"long password", "Ada", "a@example.com", strings.Repeat("x", auth.MaxPasswordLength+1), "password"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			_, err := env.auth.Register(context.Background(), tt.user, tt.email, tt.password)
			require.ErrorIs(t, err, apperror.ErrValidation)

			var appErr *apperror.AppError
			require.ErrorAs(t, err, &appErr)
			assert.Equal(t, tt.field, appErr.Field)
		})
	}
}

func TestRegister_DuplicateEmail(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.auth.Register(ctx, "Ada", "ada@example.com", "correct-horse")
	require.NoError(t, err)

	_, err = env.auth.Register(ctx, "Ada Again", "ADA@example.com", "correct-horse")
	assert.ErrorIs(t, err, apperror.ErrConflict)

	users, err := env.auth.ListUsers(ctx)
	require.NoError(t, err)
	assert.Len(t, users, 1)
}

func TestLogin(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	registered, err := env.auth.Register(ctx, "Ada", "ada@example.com", "correct-horse")
	require.NoError(t, err)

	t.Run("correct password", func(t *testing.T) {
		result, err := env.auth.Login(ctx, "ADA@example.com", "correct-horse")
		require.NoError(t, err)
		assert.Equal(t, registered.User.ID, result.User.ID)
		assert.NotEmpty(t, result.Token)
	})

	t.Run("wrong password", func(t *testing.T) {
		_, err := env.auth.Login(ctx, "ada@example.com", "battery-staple")
		assert.ErrorIs(t, err, apperror.ErrUnauthorized)
	})

	t.Run("unknown email gives the same error", func(t *testing.T) {
		_, errUnknown := env.auth.Login(ctx, "nobody@example.com", "correct-horse")
		_, errWrong := env.auth.Login(ctx, "ada@example.com", "battery-staple")
		require.ErrorIs(t, errUnknown, apperror.ErrUnauthorized)
		assert.Equal(t, errWrong.Error(), errUnknown.Error())
	})

	t.Run("malformed email", func(t *testing.T) {
		_, err := env.auth.Login(ctx, "nope", "correct-horse")
		assert.ErrorIs(t, err, apperror.ErrUnauthorized)
	})
}

// =========================================================================
// LoginOrRegisterGitHub TESTS
// =========================================================================

func TestLoginOrRegisterGitHub_NewUser(t *testing.T) {
	env := newTestEnv(t)

	result, err := env.auth.LoginOrRegisterGitHub(context.Background(), &auth.GitHubUser{
		ID:    42,
		Login: "octocat",
		Name:  "The Octocat",
		Email: "octocat@github.com",
	})
	require.NoError(t, err)

	assert.Equal(t, "The Octocat", result.User.Name)
	assert.Equal(t, int64(42), result.User.GitHubID)
	assert.Empty(t, result.User.PasswordHash)
	assert.NotEmpty(t, result.Token)
}

func TestLoginOrRegisterGitHub_ReturningUserKeepsID(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	first, err := env.auth.LoginOrRegisterGitHub(ctx, &auth.GitHubUser{ID: 99, Login: "reader"})
	require.NoError(t, err)
	second, err := env.auth.LoginOrRegisterGitHub(ctx, &auth.GitHubUser{ID: 99, Login: "reader"})
	require.NoError(t, err)

	assert.Equal(t, first.User.ID, second.User.ID)
	users, _ := env.auth.ListUsers(ctx)
	assert.Len(t, users, 1)
}

func TestLoginOrRegisterGitHub_EmailCollisionIsDropped(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.auth.Register(ctx, "Ada", "ada@example.com", "correct-horse")
	require.NoError(t, err)

	result, err := env.auth.LoginOrRegisterGitHub(ctx, &auth.GitHubUser{ID: 7, Login: "ada", Email: "ada@example.com"})
	require.NoError(t, err)
	assert.Empty(t, result.User.Email)
}

func TestLoginOrRegisterGitHub_NilUser(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.auth.LoginOrRegisterGitHub(context.Background(), nil)
	assert.Error(t, err)
}

func TestLoginOrRegisterGitHub_StoreError(t *testing.T) {
	env := newTestEnv(t)
	env.store.FailSave = assert.AnError

	_, err := env.auth.LoginOrRegisterGitHub(context.Background(), &auth.GitHubUser{ID: 1, Login: "user"})
	assert.ErrorIs(t, err, assert.AnError)
}

// =========================================================================
// PROFILE AND TOKEN TESTS
// =========================================================================

func TestGetUser(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	id := env.addUser(t, "finder")

	u, err := env.auth.GetUser(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "finder", u.Name)

	_, err = env.auth.GetUser(ctx, "")
	assert.ErrorIs(t, err, apperror.ErrUnauthorized)

	_, err = env.auth.GetUser(ctx, "missing")
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestUpdateProfile(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	id := env.addUser(t, "reader")

	u, err := env.auth.UpdateProfile(ctx, id, nil, strPtr("  Likes long books.  "))
	require.NoError(t, err)
	assert.Equal(t, "reader", u.Name, "nil name is left alone")
	assert.Equal(t, "Likes long books.", u.Bio)

	_, err = env.auth.UpdateProfile(ctx, id, strPtr(""), nil)
	assert.ErrorIs(t, err, apperror.ErrValidation)

	_, err = env.auth.UpdateProfile(ctx, id, nil, strPtr(strings.Repeat("b", MaxBioLength+1)))
	assert.ErrorIs(t, err, apperror.ErrValidation)
}

func TestValidateToken_Garbage(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.auth.ValidateToken("this.is.garbage")
	assert.Error(t, err)
}

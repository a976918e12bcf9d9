package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"sync"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/book-club/internal/apperror"
	"github.com/sakif/book-club/internal/auth"
	"github.com/sakif/book-club/internal/model"
	"github.com/sakif/book-club/internal/repository"
)

// Profile limits.
const (
	MaxUserNameLength = 80
	MaxBioLength      = 1000
)

// AuthService registers users, checks credentials and issues tokens.
//
//	AuthHandler → AuthService → users collection
//	                          ↘ TokenService (JWT), PasswordService (bcrypt)
//
// Passwords are only ever stored as bcrypt hashes. Login failures never say
// whether the email exists.
type AuthService struct {
	users     *repository.Collection[model.User]
	tokens    *auth.TokenService
	passwords *auth.PasswordService
	logger    *slog.Logger
	now       func() time.Time

	dummyOnce sync.Once
	dummyHash string
}

func NewAuthService(
	c *Collections,
	tokens *auth.TokenService,
	passwords *auth.PasswordService,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		users:     c.Users,
		tokens:    tokens,
		passwords: passwords,
		logger:    logger,
		now:       time.Now,
	}
}

// AuthResult bundles the user and a freshly issued token so the handler can
// set the cookie and respond in one step.
type AuthResult struct {
	User  *model.User
	Token string
}

// Register creates an email/password account and signs the user in.
func (s *AuthService) Register(ctx context.Context, name, email, password string) (*AuthResult, error) {
	user, err := s.CreateUser(ctx, name, email, password)
	if err != nil {
		return nil, err
	}
	return s.issue(user)
}

// CreateUser validates and stores a new account without issuing a token.
// The admin CLI uses it directly.
func (s *AuthService) CreateUser(ctx context.Context, name, email, password string) (*model.User, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperror.ValidationFailed("name", "name is required")
	}
	if len(name) > MaxUserNameLength {
		return nil, apperror.ValidationFailed("name",
			fmt.Sprintf("name must be %d characters or less", MaxUserNameLength))
	}
	addr, err := normalizeEmail(email)
	if err != nil {
		return nil, err
	}
	if len(password) < auth.MinPasswordLength {
		return nil, apperror.ValidationFailed("password",
			fmt.Sprintf("password must be at least %d characters", auth.MinPasswordLength))
	}
	if len(password) > auth.MaxPasswordLength {
		return nil, apperror.ValidationFailed("password",
			fmt.Sprintf("password must be %d bytes or fewer", auth.MaxPasswordLength))
	}

	hash, err := s.passwords.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("service/auth: %w", err)
	}

	user := model.User{
		ID:           xid.New().String(),
		Name:         name,
		Email:        addr,
		PasswordHash: hash,
		JoinedAt:     s.now(),
		IsActive:     true,
		Shelf:        []string{},
		Progress:     map[string]model.ProgressEntry{},
	}

	_, err = s.users.Update(ctx, func(users []model.User) ([]model.User, error) {
		if emailTaken(users, addr) {
			return nil, apperror.Conflict("an account with this email already exists")
		}
		return append(users, user), nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("user registered", slog.String("user_id", user.ID))
	return &user, nil
}

// Login checks an email/password pair. Unknown email and wrong password
// give the same Unauthorized error and take roughly the same time.
func (s *AuthService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	invalid := apperror.Unauthorized("invalid email or password")

	addr, err := normalizeEmail(email)
	if err != nil {
		return nil, invalid
	}

	users, err := s.users.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("service/auth: listing users: %w", err)
	}

	var user *model.User
	for i := range users {
		if users[i].Email == addr {
			user = &users[i]
			break
		}
	}

	if user == nil || user.PasswordHash == "" {
		s.passwords.Verify(s.dummy(), password)
		return nil, invalid
	}
	if err := s.passwords.Verify(user.PasswordHash, password); err != nil {
		if !errors.Is(err, auth.ErrPasswordMismatch) {
			s.logger.Error("password check failed", slog.String("user_id", user.ID), slog.String("error", err.Error()))
		}
		return nil, invalid
	}
	if !user.IsActive {
		return nil, apperror.Forbidden("this account is disabled")
	}

	s.logger.Info("user logged in", slog.String("user_id", user.ID))
	return s.issue(user)
}

// dummy is a hash to compare against when the email is unknown, so that
// path costs one bcrypt comparison like the real one.
func (s *AuthService) dummy() string {
	s.dummyOnce.Do(func() {
		s.dummyHash, _ = s.passwords.Hash("book-club-timing-equalizer")
	})
	return s.dummyHash
}

// LoginOrRegisterGitHub signs in the account linked to ghUser's GitHub ID,
// creating it on first login. The email is taken from GitHub only when no
// other account uses it.
func (s *AuthService) LoginOrRegisterGitHub(ctx context.Context, ghUser *auth.GitHubUser) (*AuthResult, error) {
	if ghUser == nil {
		return nil, fmt.Errorf("service/auth: GitHub user must not be nil")
	}

	var user model.User
	_, err := s.users.Update(ctx, func(users []model.User) ([]model.User, error) {
		for i := range users {
			if users[i].GitHubID == ghUser.ID {
				user = users[i]
				return nil, errUnchanged
			}
		}

		email, _ := normalizeEmail(ghUser.Email)
		if email != "" && emailTaken(users, email) {
			email = ""
		}
		user = model.User{
			ID:       xid.New().String(),
			Name:     ghUser.DisplayName(),
			Email:    email,
			GitHubID: ghUser.ID,
			JoinedAt: s.now(),
			IsActive: true,
			Shelf:    []string{},
			Progress: map[string]model.ProgressEntry{},
		}
		return append(users, user), nil
	})
	if err != nil && !errors.Is(err, errUnchanged) {
		return nil, fmt.Errorf("service/auth: upserting user (githubID=%d): %w", ghUser.ID, err)
	}
	if !user.IsActive {
		return nil, apperror.Forbidden("this account is disabled")
	}

	s.logger.Info("user authenticated via GitHub",
		slog.String("user_id", user.ID),
		slog.String("login", ghUser.Login),
	)
	return s.issue(&user)
}

// GetUser returns the full user record, ledger included.
func (s *AuthService) GetUser(ctx context.Context, id string) (*model.User, error) {
	if id == "" {
		return nil, apperror.Unauthorized("not signed in")
	}
	users, err := s.users.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("service/auth: listing users: %w", err)
	}
	i := indexOfUser(users, id)
	if i < 0 {
		return nil, apperror.NotFound("user", id)
	}
	return &users[i], nil
}

// ListUsers returns every account.
func (s *AuthService) ListUsers(ctx context.Context) ([]model.User, error) {
	return s.users.Snapshot(ctx)
}

// UpdateProfile changes the name and/or bio; nil leaves a field alone.
func (s *AuthService) UpdateProfile(ctx context.Context, id string, name, bio *string) (*model.User, error) {
	if name != nil {
		if n := strings.TrimSpace(*name); n == "" || len(n) > MaxUserNameLength {
			return nil, apperror.ValidationFailed("name",
				fmt.Sprintf("name must be 1 to %d characters", MaxUserNameLength))
		}
	}
	if bio != nil && len(*bio) > MaxBioLength {
		return nil, apperror.ValidationFailed("bio",
			fmt.Sprintf("bio must be %d characters or less", MaxBioLength))
	}

	var out model.User
	_, err := s.users.Update(ctx, func(users []model.User) ([]model.User, error) {
		i := indexOfUser(users, id)
		if i < 0 {
			return nil, apperror.NotFound("user", id)
		}
		if name != nil {
			users[i].Name = strings.TrimSpace(*name)
		}
		if bio != nil {
			users[i].Bio = strings.TrimSpace(*bio)
		}
		out = users[i]
		return users, nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("profile updated", slog.String("user_id", id))
	return &out, nil
}

// ValidateToken returns the user ID a token was issued to.
func (s *AuthService) ValidateToken(token string) (string, error) {
	userID, err := s.tokens.Validate(token)
	if err != nil {
		return "", fmt.Errorf("service/auth: %w", err)
	}
	return userID, nil
}

func (s *AuthService) issue(user *model.User) (*AuthResult, error) {
	token, err := s.tokens.Generate(user.ID)
	if err != nil {
		return nil, fmt.Errorf("service/auth: generating token for user %s: %w", user.ID, err)
	}
	return &AuthResult{User: user, Token: token}, nil
}

// normalizeEmail accepts a bare address ("Ada@Example.com") and returns it
// lower-cased. Display-name forms ("Ada <ada@example.com>") are rejected.
func normalizeEmail(email string) (string, error) {
	email = strings.TrimSpace(email)
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", apperror.ValidationFailed("email", "a valid email address is required")
	}
	return strings.ToLower(addr.Address), nil
}

func emailTaken(users []model.User, email string) bool {
	for _, u := range users {
		if u.Email != "" && u.Email == email {
			return true
		}
	}
	return false
}

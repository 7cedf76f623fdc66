// Package service contains the business logic layer.
//
// The layering is the usual three-tier split:
//
//	Handler (HTTP)     → parses requests, writes responses
//	Service (business) → validates, enforces ownership, orchestrates
//	Repository (data)  → reads/writes the database
//
// Services accept primitives and model types, never *http.Request, and
// return apperror values, never status codes. The handler layer owns the
// translation in both directions.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/anika/codeclass/internal/apperror"
	"github.com/anika/codeclass/internal/auth"
	"github.com/anika/codeclass/internal/model"
	"github.com/anika/codeclass/internal/repository"
)

// Account validation bounds. The username doubles as the user's directory
// name under the upload root, so the allowed charset is deliberately plain:
// letters, digits, dot, dash, underscore, nothing with path structure.
const (
	MinUsernameLength = 3
	MaxUsernameLength = 32
	MinPasswordLength = 6
)

// AuthService handles accounts, credentials, tokens, and sessions.
type AuthService struct {
	users     repository.UserRepository
	sessions  repository.SessionRepository
	tokens    *auth.TokenService
	passwords *auth.PasswordService
	logger    *slog.Logger
}

func NewAuthService(
	users repository.UserRepository,
	sessions repository.SessionRepository,
	tokens *auth.TokenService,
	passwords *auth.PasswordService,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		users:     users,
		sessions:  sessions,
		tokens:    tokens,
		passwords: passwords,
		logger:    logger,
	}
}

// Compile-time check: AuthService is the auth middleware's Verifier.
var _ auth.Verifier = (*AuthService)(nil)

// Origin is where a login came from, recorded on the session row for the
// admin's online/offline view.
type Origin struct {
	IP        string
	UserAgent string
}

// AuthResult bundles the user and the issued token so the handler can
// respond in one step.
type AuthResult struct {
	User  *model.User
	Token string
}

// Register creates a new active, non-admin account.
// The plaintext password is hashed immediately and never stored or logged.
func (s *AuthService) Register(ctx context.Context, username, password string) (*model.User, error) {
	username = strings.TrimSpace(username)
	if err := validateUsername(username); err != nil {
		return nil, err
	}
	if err := validatePassword(password); err != nil {
		return nil, err
	}

	hash, err := s.passwords.Hash(password)
	if err != nil {
		return nil, err
	}

	user := &model.User{
		Username:     username,
		PasswordHash: hash,
		IsActive:     true,
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		return nil, err
	}

	s.logger.Info("user registered",
		slog.String("userID", user.ID),
		slog.String("username", user.Username),
	)

	return user, nil
}

// Login verifies credentials, stamps last-login, issues a token, and
// records the session bound to that exact token string.
//
// Unknown usernames and wrong passwords produce the same message, so a login
// probe shouldn't learn which accounts exist. A disabled account is named
// as such: the student already proved who they are.
func (s *AuthService) Login(ctx context.Context, username, password string, origin Origin) (*AuthResult, error) {
	user, err := s.users.GetUserByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.Unauthorized("invalid username or password")
		}
		return nil, fmt.Errorf("service/auth: looking up user %q: %w", username, err)
	}

	if err := s.passwords.Verify(user.PasswordHash, password); err != nil {
		return nil, err
	}

	if !user.IsActive {
		return nil, apperror.Unauthorized("account is disabled")
	}

	now := time.Now()
	user.LastLoginAt = &now
	if err := s.users.UpdateUser(ctx, user); err != nil {
		return nil, fmt.Errorf("service/auth: stamping last login for %s: %w", user.ID, err)
	}

	token, err := s.tokens.Generate(user.ID)
	if err != nil {
		return nil, fmt.Errorf("service/auth: generating token for user %s: %w", user.ID, err)
	}

	session := &model.Session{
		UserID:    user.ID,
		Token:     token,
		IP:        origin.IP,
		UserAgent: origin.UserAgent,
	}
	if err := s.sessions.CreateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("service/auth: recording session for user %s: %w", user.ID, err)
	}

	s.logger.Info("user logged in",
		slog.String("userID", user.ID),
		slog.String("username", user.Username),
		slog.String("ip", origin.IP),
	)

	return &AuthResult{User: user, Token: token}, nil
}

// Verify resolves a bearer token to its user. Four gates, in order:
// signature+expiry, an active session row for this exact token, the user
// still existing, and the account still being active. Passing refreshes the
// session's last-active timestamp as a side effect.
func (s *AuthService) Verify(ctx context.Context, token string) (*model.User, error) {
	userID, err := s.tokens.Validate(token)
	if err != nil {
		return nil, err
	}

	if _, err := s.sessions.GetActiveSession(ctx, token); err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.Unauthorized("session has been revoked")
		}
		return nil, fmt.Errorf("service/auth: checking session: %w", err)
	}

	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.Unauthorized("account no longer exists")
		}
		return nil, fmt.Errorf("service/auth: fetching user %s: %w", userID, err)
	}

	if !user.IsActive {
		return nil, apperror.Unauthorized("account is disabled")
	}

	// Best-effort: a failed touch shouldn't fail the request it rode in on.
	if err := s.sessions.TouchSession(ctx, token); err != nil {
		s.logger.Warn("failed to touch session", slog.String("error", err.Error()))
	}

	return user, nil
}

// ChangePassword rotates the requester's own password. The current password
// must verify first: holding a live token is not enough to lock the real
// owner out. Existing sessions stay valid; only the credential changes.
func (s *AuthService) ChangePassword(ctx context.Context, requester *model.User, current, next string) error {
	if err := s.passwords.Verify(requester.PasswordHash, current); err != nil {
		if errors.Is(err, apperror.ErrUnauthorized) {
			return apperror.Unauthorized("current password is incorrect")
		}
		return err
	}
	if err := validatePassword(next); err != nil {
		return err
	}

	hash, err := s.passwords.Hash(next)
	if err != nil {
		return err
	}
	requester.PasswordHash = hash
	if err := s.users.UpdateUser(ctx, requester); err != nil {
		return fmt.Errorf("service/auth: updating password for %s: %w", requester.ID, err)
	}

	s.logger.Info("password changed", slog.String("userID", requester.ID))
	return nil
}

// Logout deactivates the session for this token. Idempotent: logging out
// twice, or with a token whose session is already gone, succeeds quietly.
func (s *AuthService) Logout(ctx context.Context, token string) error {
	if err := s.sessions.DeactivateSession(ctx, token); err != nil {
		return fmt.Errorf("service/auth: logging out: %w", err)
	}
	return nil
}

func validateUsername(username string) error {
	if len(username) < MinUsernameLength {
		return apperror.ValidationFailed("username",
			fmt.Sprintf("username must be at least %d characters", MinUsernameLength))
	}
	if len(username) > MaxUsernameLength {
		return apperror.ValidationFailed("username",
			fmt.Sprintf("username must be %d characters or less", MaxUsernameLength))
	}
	for _, r := range username {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '_' || r == '-' || r == '.':
		default:
			return apperror.ValidationFailed("username",
				"username may only contain letters, digits, '.', '-' and '_'")
		}
	}
	if username == "." || username == ".." {
		return apperror.ValidationFailed("username", "username is not allowed")
	}
	return nil
}

func validatePassword(password string) error {
	if len(password) < MinPasswordLength {
		return apperror.ValidationFailed("password",
			fmt.Sprintf("password must be at least %d characters", MinPasswordLength))
	}
	return nil
}

package service

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/anika/codeclass/internal/apperror"
	"github.com/anika/codeclass/internal/auth"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// newTestAuthService wires an AuthService with fakes and fast crypto:
// bcrypt at minimum cost, a short token TTL we control per test.
func newTestAuthService(t *testing.T, users *fakeUserRepo, sessions *fakeSessionRepo) *AuthService {
	t.Helper()

	tokens, err := auth.NewTokenService("test-secret-at-least-16-chars!!", time.Hour)
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}
	return NewAuthService(users, sessions, tokens, auth.NewPasswordServiceForTest(), testLogger())
}

// =========================================================================
// Register
// =========================================================================

func TestRegister_CreatesActiveNonAdminUser(t *testing.T) {
	users := newFakeUserRepo()
	svc := newTestAuthService(t, users, newFakeSessionRepo())

	user, err := svc.Register(context.Background(), "zhang.san", "secret123")
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if user.ID == "" {
		t.Error("Register() should assign an ID")
	}
	if user.IsAdmin {
		t.Error("self-registered users must not be admins")
	}
	if !user.IsActive {
		t.Error("new users should start active")
	}
	if user.PasswordHash == "secret123" || user.PasswordHash == "" {
		t.Error("password must be stored hashed, never in plaintext")
	}
}

func TestRegister_TrimsWhitespace(t *testing.T) {
	users := newFakeUserRepo()
	svc := newTestAuthService(t, users, newFakeSessionRepo())

	user, err := svc.Register(context.Background(), "  alice  ", "secret123")
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if user.Username != "alice" {
		t.Errorf("Username = %q, want %q", user.Username, "alice")
	}
}

func TestRegister_Validation(t *testing.T) {
	tests := []struct {
		name     string
		username string
		password string
	}{
		{"username too short", "ab", "secret123"},
		{"username too long", strings.Repeat("a", MaxUsernameLength+1), "secret123"},
		{"username with slash", "a/b/c", "secret123"},
		{"username with space", "zhang san", "secret123"},
		{"username is dot-dot", "..", "secret123"},
		{"password too short", "alice", "short"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newTestAuthService(t, newFakeUserRepo(), newFakeSessionRepo())
			_, err := svc.Register(context.Background(), tt.username, tt.password)
			if !errors.Is(err, apperror.ErrValidation) {
				t.Errorf("Register(%q, %q) error = %v, want ErrValidation", tt.username, tt.password, err)
			}
		})
	}
}

func TestRegister_DuplicateUsername(t *testing.T) {
	users := newFakeUserRepo()
	svc := newTestAuthService(t, users, newFakeSessionRepo())

	if _, err := svc.Register(context.Background(), "alice", "secret123"); err != nil {
		t.Fatalf("first Register() error = %v", err)
	}
	_, err := svc.Register(context.Background(), "alice", "different456")
	if !errors.Is(err, apperror.ErrConflict) {
		t.Errorf("duplicate Register() error = %v, want ErrConflict", err)
	}
}

// =========================================================================
// Login
// =========================================================================

func TestLogin_Success(t *testing.T) {
	users := newFakeUserRepo()
	sessions := newFakeSessionRepo()
	svc := newTestAuthService(t, users, sessions)

	if _, err := svc.Register(context.Background(), "alice", "secret123"); err != nil {
		t.Fatalf("setup: %v", err)
	}

	result, err := svc.Login(context.Background(), "alice", "secret123", Origin{IP: "10.0.0.5", UserAgent: "pytest"})
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if result.Token == "" {
		t.Fatal("Login() returned an empty token")
	}
	if result.User.LastLoginAt == nil {
		t.Error("Login() should stamp LastLoginAt")
	}

	sess, err := sessions.GetActiveSession(context.Background(), result.Token)
	if err != nil {
		t.Fatalf("no active session recorded for issued token: %v", err)
	}
	if sess.IP != "10.0.0.5" || sess.UserAgent != "pytest" {
		t.Errorf("session origin = (%q, %q), want (10.0.0.5, pytest)", sess.IP, sess.UserAgent)
	}
}

// Unknown users and wrong passwords must be indistinguishable to the
// caller, so a login probe can't enumerate accounts.
func TestLogin_UnknownUserAndWrongPasswordSameMessage(t *testing.T) {
	users := newFakeUserRepo()
	svc := newTestAuthService(t, users, newFakeSessionRepo())

	if _, err := svc.Register(context.Background(), "alice", "secret123"); err != nil {
		t.Fatalf("setup: %v", err)
	}

	_, errUnknown := svc.Login(context.Background(), "nobody", "secret123", Origin{})
	_, errWrong := svc.Login(context.Background(), "alice", "wrongpass", Origin{})

	if !errors.Is(errUnknown, apperror.ErrUnauthorized) {
		t.Fatalf("unknown user error = %v, want ErrUnauthorized", errUnknown)
	}
	if !errors.Is(errWrong, apperror.ErrUnauthorized) {
		t.Fatalf("wrong password error = %v, want ErrUnauthorized", errWrong)
	}

	var ae1, ae2 *apperror.AppError
	if !errors.As(errUnknown, &ae1) || !errors.As(errWrong, &ae2) {
		t.Fatal("expected AppError in both chains")
	}
	if ae1.Message != ae2.Message {
		t.Errorf("messages differ: %q vs %q", ae1.Message, ae2.Message)
	}
}

func TestLogin_DisabledAccount(t *testing.T) {
	users := newFakeUserRepo()
	svc := newTestAuthService(t, users, newFakeSessionRepo())

	user, err := svc.Register(context.Background(), "alice", "secret123")
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	user.IsActive = false
	if err := users.UpdateUser(context.Background(), user); err != nil {
		t.Fatalf("setup: %v", err)
	}

	_, err = svc.Login(context.Background(), "alice", "secret123", Origin{})
	if !errors.Is(err, apperror.ErrUnauthorized) {
		t.Fatalf("Login() on disabled account error = %v, want ErrUnauthorized", err)
	}
	var ae *apperror.AppError
	if errors.As(err, &ae) && ae.Message != "account is disabled" {
		t.Errorf("message = %q, want %q", ae.Message, "account is disabled")
	}
}

// =========================================================================
// Verify
// =========================================================================

func TestVerify_ValidTokenResolvesUserAndTouchesSession(t *testing.T) {
	users := newFakeUserRepo()
	sessions := newFakeSessionRepo()
	svc := newTestAuthService(t, users, sessions)

	if _, err := svc.Register(context.Background(), "alice", "secret123"); err != nil {
		t.Fatalf("setup: %v", err)
	}
	result, err := svc.Login(context.Background(), "alice", "secret123", Origin{})
	if err != nil {
		t.Fatalf("setup: %v", err)
	}

	before := sessions.sessions[result.Token].LastActiveAt

	user, err := svc.Verify(context.Background(), result.Token)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if user.Username != "alice" {
		t.Errorf("Verify() user = %q, want alice", user.Username)
	}
	if !sessions.sessions[result.Token].LastActiveAt.After(before) &&
		!sessions.sessions[result.Token].LastActiveAt.Equal(before) {
		t.Error("Verify() should refresh the session's last-active timestamp")
	}
}

// A structurally valid token whose session row was revoked must be
// rejected: server-side logout wins over token expiry.
func TestVerify_RevokedSession(t *testing.T) {
	users := newFakeUserRepo()
	sessions := newFakeSessionRepo()
	svc := newTestAuthService(t, users, sessions)

	if _, err := svc.Register(context.Background(), "alice", "secret123"); err != nil {
		t.Fatalf("setup: %v", err)
	}
	result, err := svc.Login(context.Background(), "alice", "secret123", Origin{})
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	if err := svc.Logout(context.Background(), result.Token); err != nil {
		t.Fatalf("Logout() error = %v", err)
	}

	_, err = svc.Verify(context.Background(), result.Token)
	if !errors.Is(err, apperror.ErrUnauthorized) {
		t.Fatalf("Verify() after logout error = %v, want ErrUnauthorized", err)
	}
}

func TestVerify_ExpiredToken(t *testing.T) {
	users := newFakeUserRepo()
	sessions := newFakeSessionRepo()
	svc := newTestAuthService(t, users, sessions)

	user, err := svc.Register(context.Background(), "alice", "secret123")
	if err != nil {
		t.Fatalf("setup: %v", err)
	}

	tokens, err := auth.NewTokenService("test-secret-at-least-16-chars!!", time.Hour)
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	expired, err := tokens.GenerateWithDuration(user.ID, -time.Minute)
	if err != nil {
		t.Fatalf("setup: %v", err)
	}

	_, err = svc.Verify(context.Background(), expired)
	if !errors.Is(err, apperror.ErrUnauthorized) {
		t.Fatalf("Verify() with expired token error = %v, want ErrUnauthorized", err)
	}
}

func TestVerify_DeactivatedUser(t *testing.T) {
	users := newFakeUserRepo()
	sessions := newFakeSessionRepo()
	svc := newTestAuthService(t, users, sessions)

	user, err := svc.Register(context.Background(), "alice", "secret123")
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	result, err := svc.Login(context.Background(), "alice", "secret123", Origin{})
	if err != nil {
		t.Fatalf("setup: %v", err)
	}

	user.IsActive = false
	if err := users.UpdateUser(context.Background(), user); err != nil {
		t.Fatalf("setup: %v", err)
	}

	_, err = svc.Verify(context.Background(), result.Token)
	if !errors.Is(err, apperror.ErrUnauthorized) {
		t.Fatalf("Verify() for deactivated user error = %v, want ErrUnauthorized", err)
	}
}

func TestVerify_DeletedUser(t *testing.T) {
	users := newFakeUserRepo()
	sessions := newFakeSessionRepo()
	svc := newTestAuthService(t, users, sessions)

	user, err := svc.Register(context.Background(), "alice", "secret123")
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	result, err := svc.Login(context.Background(), "alice", "secret123", Origin{})
	if err != nil {
		t.Fatalf("setup: %v", err)
	}

	if err := users.DeleteUser(context.Background(), user.ID); err != nil {
		t.Fatalf("setup: %v", err)
	}

	_, err = svc.Verify(context.Background(), result.Token)
	if !errors.Is(err, apperror.ErrUnauthorized) {
		t.Fatalf("Verify() for deleted user error = %v, want ErrUnauthorized", err)
	}
}

// =========================================================================
// Logout
// =========================================================================

// Logging out twice with the same token, or with a token that never had a
// session, succeeds quietly.
func TestLogout_Idempotent(t *testing.T) {
	users := newFakeUserRepo()
	sessions := newFakeSessionRepo()
	svc := newTestAuthService(t, users, sessions)

	if _, err := svc.Register(context.Background(), "alice", "secret123"); err != nil {
		t.Fatalf("setup: %v", err)
	}
	result, err := svc.Login(context.Background(), "alice", "secret123", Origin{})
	if err != nil {
		t.Fatalf("setup: %v", err)
	}

	if err := svc.Logout(context.Background(), result.Token); err != nil {
		t.Fatalf("first Logout() error = %v", err)
	}
	if err := svc.Logout(context.Background(), result.Token); err != nil {
		t.Fatalf("second Logout() error = %v", err)
	}
	if err := svc.Logout(context.Background(), "never-a-session"); err != nil {
		t.Fatalf("Logout() of unknown token error = %v", err)
	}

	if sessions.activeCount(result.User.ID) != 0 {
		t.Error("all sessions should be inactive after logout")
	}
}

// =========================================================================
// ChangePassword
// =========================================================================

func TestChangePassword_RotatesCredential(t *testing.T) {
	users := newFakeUserRepo()
	sessions := newFakeSessionRepo()
	svc := newTestAuthService(t, users, sessions)

	if _, err := svc.Register(context.Background(), "alice", "secret123"); err != nil {
		t.Fatalf("setup: %v", err)
	}
	result, err := svc.Login(context.Background(), "alice", "secret123", Origin{})
	if err != nil {
		t.Fatalf("setup: %v", err)
	}

	if err := svc.ChangePassword(context.Background(), result.User, "secret123", "newsecret456"); err != nil {
		t.Fatalf("ChangePassword() error = %v", err)
	}

	// Old credential is dead, new one works.
	if _, err := svc.Login(context.Background(), "alice", "secret123", Origin{}); !errors.Is(err, apperror.ErrUnauthorized) {
		t.Errorf("login with old password error = %v, want ErrUnauthorized", err)
	}
	if _, err := svc.Login(context.Background(), "alice", "newsecret456", Origin{}); err != nil {
		t.Errorf("login with new password error = %v", err)
	}

	// The session issued before the change stays usable; only the
	// credential rotated.
	if _, err := svc.Verify(context.Background(), result.Token); err != nil {
		t.Errorf("Verify() of pre-change token error = %v", err)
	}
}

func TestChangePassword_WrongCurrentPassword(t *testing.T) {
	users := newFakeUserRepo()
	svc := newTestAuthService(t, users, newFakeSessionRepo())

	user, err := svc.Register(context.Background(), "alice", "secret123")
	if err != nil {
		t.Fatalf("setup: %v", err)
	}

	err = svc.ChangePassword(context.Background(), user, "guessed-wrong", "newsecret456")
	if !errors.Is(err, apperror.ErrUnauthorized) {
		t.Fatalf("ChangePassword() error = %v, want ErrUnauthorized", err)
	}
	var appErr *apperror.AppError
	if !errors.As(err, &appErr) || appErr.Message != "current password is incorrect" {
		t.Errorf("message = %v, want current-password error", err)
	}

	// The stored hash is untouched.
	if _, err := svc.Login(context.Background(), "alice", "secret123", Origin{}); err != nil {
		t.Errorf("login with unchanged password error = %v", err)
	}
}

func TestChangePassword_ValidatesNewPassword(t *testing.T) {
	users := newFakeUserRepo()
	svc := newTestAuthService(t, users, newFakeSessionRepo())

	user, err := svc.Register(context.Background(), "alice", "secret123")
	if err != nil {
		t.Fatalf("setup: %v", err)
	}

	err = svc.ChangePassword(context.Background(), user, "secret123", "short")
	if !errors.Is(err, apperror.ErrValidation) {
		t.Errorf("ChangePassword() error = %v, want ErrValidation", err)
	}
}

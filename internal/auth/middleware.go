package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/anika/codeclass/internal/apperror"
	"github.com/anika/codeclass/internal/model"
)

// Verifier resolves a bearer token string to the authenticated user.
// Implemented by service.AuthService, which checks the JWT signature, the
// session row, and the account's active flag.
type Verifier interface {
	Verify(ctx context.Context, token string) (*model.User, error)
}

// contextKey is an unexported type for context keys in this package.
// A package-private key type prevents other packages from reading or
// shadowing the authenticated identity.
type contextKey string

const (
	userKey  contextKey = "user"
	tokenKey contextKey = "token"
)

// RequireAuth enforces authentication on protected routes.
//
// It reads the `Authorization: Bearer <token>` header, resolves it through
// the Verifier, and stores the full user plus the raw token string in the
// request context. Missing or invalid credentials short-circuit with 401
// and the standard {success:false, message} body.
//
// The raw token is kept in the context because logout needs the exact
// string to deactivate the matching session row.
func RequireAuth(verifier Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := bearerToken(r)
			if err != nil {
				writeAuthError(w, http.StatusUnauthorized, err.Error())
				return
			}

			user, err := verifier.Verify(r.Context(), token)
			if err != nil {
				writeAuthError(w, http.StatusUnauthorized, messageFor(err))
				return
			}

			ctx := context.WithValue(r.Context(), userKey, user)
			ctx = context.WithValue(ctx, tokenKey, token)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAdmin gates admin-only routes. It must be stacked AFTER RequireAuth
// in the middleware chain; it reads the user RequireAuth stored.
func RequireAdmin() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := UserFromContext(r.Context())
			if !ok {
				writeAuthError(w, http.StatusUnauthorized, "authentication required")
				return
			}
			if !user.IsAdmin {
				writeAuthError(w, http.StatusForbidden, "admin privileges required")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// UserFromContext retrieves the authenticated user stored by RequireAuth.
func UserFromContext(ctx context.Context) (*model.User, bool) {
	user, ok := ctx.Value(userKey).(*model.User)
	return user, ok && user != nil
}

// TokenFromContext retrieves the raw bearer token stored by RequireAuth.
func TokenFromContext(ctx context.Context) (string, bool) {
	token, ok := ctx.Value(tokenKey).(string)
	return token, ok && token != ""
}

// bearerToken extracts the token from the Authorization header.
// The scheme comparison is case-insensitive per RFC 7235.
func bearerToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", apperror.Unauthorized("authorization token is missing")
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", apperror.Unauthorized("authorization header must be 'Bearer <token>'")
	}

	return strings.TrimSpace(parts[1]), nil
}

// messageFor strips non-AppError detail out of verification failures so a
// DB error during verify doesn't leak internals through a 401 body.
func messageFor(err error) string {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return "authentication failed"
}

func writeAuthError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"success": false,
		"message": message,
	})
}

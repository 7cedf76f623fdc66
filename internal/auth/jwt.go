// Package auth provides JWT token generation/validation, bcrypt password
// hashing, and the HTTP middleware that gates protected routes.
//
// AUTHENTICATION FLOW:
//  1. POST /api/login verifies the password and issues a signed JWT
//  2. The same token string is recorded as a session row (server-side revocation)
//  3. Clients send `Authorization: Bearer <token>` on every API call
//  4. Middleware validates the signature AND requires an active session row,
//     so a logged-out token is dead immediately, before its signed expiry
//
// The JWT carries the user ID in the standard "sub" claim plus issue and
// expiry times. The signature means no DB lookup is needed to trust the
// claims; the session-row check is purely for revocation.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/anika/codeclass/internal/apperror"
)

const issuer = "codeclass"

// TokenService handles JWT creation and validation.
//
// It holds the HMAC secret used to sign and verify tokens and the lifetime
// applied to newly issued tokens. The same secret must be used for both
// operations.
type TokenService struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenService creates a TokenService with the given secret and token
// lifetime. The secret should be at least 32 bytes of random data in
// production (e.g. `openssl rand -hex 32`); anything under 16 is rejected.
func NewTokenService(secret string, ttl time.Duration) (*TokenService, error) {
	if len(secret) < 16 {
		return nil, errors.New("auth: JWT secret must be at least 16 characters")
	}
	if ttl <= 0 {
		return nil, errors.New("auth: token TTL must be positive")
	}
	return &TokenService{secret: []byte(secret), ttl: ttl}, nil
}

// claims embeds jwt.RegisteredClaims; "sub" carries the internal user ID.
type claims struct {
	jwt.RegisteredClaims
}

// Generate creates and signs a new access token for the given userID using
// the service's configured lifetime.
func (s *TokenService) Generate(userID string) (string, error) {
	return s.GenerateWithDuration(userID, s.ttl)
}

// GenerateWithDuration creates a token with a custom expiry duration.
// Used by tests to mint already-expired or long-lived tokens.
func (s *TokenService) GenerateWithDuration(userID string, d time.Duration) (string, error) {
	now := time.Now()

	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(d)),
			Issuer:    issuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("auth: signing token: %w", err)
	}

	return signed, nil
}

// Validate parses and verifies a JWT string and returns the userID from
// its "sub" claim.
//
// Checks performed: signature, expiry (required), issuer, and that the
// algorithm really is HS256; jwt.WithValidMethods prevents algorithm
// confusion attacks where an attacker supplies an unsigned "none" token.
//
// Failures come back as apperror.Unauthorized with a message that
// distinguishes expiry from tampering, so the API can say "token expired"
// rather than a generic 401.
func (s *TokenService) Validate(tokenStr string) (string, error) {
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&claims{},
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("auth: unexpected signing method: %v", token.Header["alg"])
			}
			return s.secret, nil
		},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", apperror.Unauthorized("token expired")
		}
		return "", apperror.Unauthorized("invalid token")
	}

	c, ok := token.Claims.(*claims)
	if !ok || !token.Valid {
		return "", apperror.Unauthorized("invalid token claims")
	}

	if c.Subject == "" {
		return "", apperror.Unauthorized("token has no subject")
	}

	return c.Subject, nil
}

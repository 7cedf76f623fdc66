package model

import "time"

// Session is one live login, bound to the exact JWT string issued at login.
//
// The JWT alone proves who signed it and until when; the session row adds
// server-side revocation. Verification requires BOTH a valid signature and
// an active session row, so logout (and admin force-logout) takes effect
// immediately regardless of the token's remaining signed lifetime.
type Session struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	Token        string    `json:"-"` // never exposed in listings
	IsActive     bool      `json:"is_active"`
	IssuedAt     time.Time `json:"issued_at"`
	LastActiveAt time.Time `json:"last_active_at"`
	IP           string    `json:"ip,omitempty"`
	UserAgent    string    `json:"user_agent,omitempty"`
}

// SessionInfo is a session row joined with its owner's username, for the
// admin session listing.
type SessionInfo struct {
	Session
	Username string `json:"username"`
}

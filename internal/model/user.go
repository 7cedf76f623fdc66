// Package model defines the data structures used throughout the application.
package model

import "time"

// User represents a classroom account.
//
// PasswordHash is a bcrypt hash (never the plaintext) and is excluded from
// JSON with `json:"-"` so it can never leak through an API response.
//
// IsActive is a soft-disable switch: a deactivated account keeps its projects
// and files but is rejected at login and at token verification. Physical
// removal only happens through an explicit admin delete, which cascades.
type User struct {
	ID           string     `json:"id"`
	Username     string     `json:"username"` // unique, case-sensitive as stored
	PasswordHash string     `json:"-"`
	IsAdmin      bool       `json:"is_admin"`
	IsActive     bool       `json:"is_active"`
	CreatedAt    time.Time  `json:"created_at"`
	LastLoginAt  *time.Time `json:"last_login_at,omitempty"` // nil until first login
}

// UserOverview is a User plus the derived fields the admin listing shows.
// Online means the user holds at least one active session.
type UserOverview struct {
	User
	ProjectCount int  `json:"project_count"`
	FileCount    int  `json:"file_count"`
	Online       bool `json:"online"`
}

// CanAccess reports whether this user may touch a resource owned by ownerID.
// This single predicate is the whole authorization model: you own it, or
// you are an admin.
func (u *User) CanAccess(ownerID string) bool {
	return u.ID == ownerID || u.IsAdmin
}

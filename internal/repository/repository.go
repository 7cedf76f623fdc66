// Package repository declares the storage interfaces the service layer
// depends on. The sqlite subpackage is the real implementation; tests use
// hand-written in-memory mocks.
package repository

import (
	"context"

	"github.com/anika/codeclass/internal/model"
)

// ListOptions is LIMIT/OFFSET pagination for admin aggregate queries.
// Services translate the API's 1-based (page, per_page) contract into these.
type ListOptions struct {
	Limit  int
	Offset int
}

// FileFilter narrows the admin file listing.
type FileFilter struct {
	UserID string // only files owned by this user, if non-empty
	Type   string // "text" | "binary" | "" (all)
	Search string // substring match on path, project name, or owner username
}

type UserRepository interface {
	CreateUser(ctx context.Context, user *model.User) error
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	GetUserByUsername(ctx context.Context, username string) (*model.User, error)
	UpdateUser(ctx context.Context, user *model.User) error
	// DeleteUser removes the user and, in the same transaction, all of the
	// user's sessions, files, and projects.
	DeleteUser(ctx context.Context, id string) error
	// ListUsers returns one page of users matching the optional username
	// substring, with derived project/file counts and online flags, plus the
	// total number of matching rows.
	ListUsers(ctx context.Context, search string, opts ListOptions) ([]model.UserOverview, int, error)
}

type ProjectRepository interface {
	// FindOrCreateProject returns the project for (ownerID, name), creating
	// it if absent. Concurrent first-time creation is resolved by the UNIQUE
	// (user_id, name) constraint: insert-on-conflict-do-nothing, then fetch.
	FindOrCreateProject(ctx context.Context, ownerID, name string) (*model.Project, error)
	GetProjectByID(ctx context.Context, id string) (*model.Project, error)
	ListProjects(ctx context.Context, ownerID string) ([]model.ProjectSummary, error)
	// DeleteProject removes the project and its file rows in one transaction.
	DeleteProject(ctx context.Context, id string) error
}

type FileRepository interface {
	// UpsertFile inserts, or updates in place if a row with the same
	// (project_id, path) exists. On update the existing ID and created_at
	// survive; content, binary flag, size, and updated_at are replaced.
	// The passed struct reflects the stored row on return.
	UpsertFile(ctx context.Context, file *model.File) error
	GetFileByID(ctx context.Context, id string) (*model.File, error)
	ListProjectFiles(ctx context.Context, projectID string) ([]model.File, error)
	UpdateFile(ctx context.Context, file *model.File) error
	DeleteFile(ctx context.Context, id string) error
	// ListAllFiles is the admin cross-user listing: one page of files joined
	// with owner and project names, plus the total matching count.
	ListAllFiles(ctx context.Context, filter FileFilter, opts ListOptions) ([]model.FileInfo, int, error)
}

// SessionFilter narrows the admin session listing.
type SessionFilter struct {
	Username string // only sessions of this user, if non-empty
	Active   *bool  // nil means both active and revoked
}

type SessionRepository interface {
	CreateSession(ctx context.Context, session *model.Session) error
	// GetActiveSession returns the active session bound to the exact token
	// string, or apperror.ErrNotFound if none is active.
	GetActiveSession(ctx context.Context, token string) (*model.Session, error)
	// TouchSession refreshes last_active_at for the session bound to token.
	TouchSession(ctx context.Context, token string) error
	// DeactivateSession marks the session inactive. Idempotent: deactivating
	// an unknown or already-inactive token is not an error.
	DeactivateSession(ctx context.Context, token string) error
	// DeactivateUserSessions revokes every active session of one user
	// (admin force-logout, account deactivation).
	DeactivateUserSessions(ctx context.Context, userID string) error
	// ListSessions is the admin session listing: every session matching the
	// filter, joined with its owner's username, most recently active first.
	ListSessions(ctx context.Context, filter SessionFilter) ([]model.SessionInfo, error)
}

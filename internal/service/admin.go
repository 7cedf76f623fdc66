// Admin aggregate views and account maintenance.
//
// Admin mutations reuse the same repositories and disk store as the
// student-facing paths; there is no parallel code path with different
// invariants, only the admin bypass in the ownership predicate.
package service

import (
	"context"
	"log/slog"
	"strings"

	"github.com/anika/codeclass/internal/apperror"
	"github.com/anika/codeclass/internal/auth"
	"github.com/anika/codeclass/internal/model"
	"github.com/anika/codeclass/internal/repository"
	"github.com/anika/codeclass/internal/storage"
)

// Pagination clamps for admin listings.
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Page is the pagination envelope returned alongside every admin listing.
type Page struct {
	Total       int `json:"total"`
	Pages       int `json:"pages"`
	CurrentPage int `json:"current_page"`
	PerPage     int `json:"per_page"`
}

// AdminService provides the admin read/maintenance surface.
type AdminService struct {
	users     repository.UserRepository
	files     repository.FileRepository
	sessions  repository.SessionRepository
	passwords *auth.PasswordService
	store     *storage.Store
	logger    *slog.Logger
}

func NewAdminService(
	users repository.UserRepository,
	files repository.FileRepository,
	sessions repository.SessionRepository,
	passwords *auth.PasswordService,
	store *storage.Store,
	logger *slog.Logger,
) *AdminService {
	return &AdminService{
		users:     users,
		files:     files,
		sessions:  sessions,
		passwords: passwords,
		store:     store,
		logger:    logger,
	}
}

// ListUsers returns one page of users (optionally filtered by a username
// substring) with derived project/file counts and online flags.
// Pages are 1-based; a page past the end is an empty result, not an error.
func (s *AdminService) ListUsers(ctx context.Context, search string, page, perPage int) ([]model.UserOverview, Page, error) {
	opts, perPage, page := clampPage(page, perPage)

	users, total, err := s.users.ListUsers(ctx, strings.TrimSpace(search), opts)
	if err != nil {
		return nil, Page{}, err
	}

	return users, makePage(total, page, perPage), nil
}

// ListFiles is the cross-user file listing, filterable by owner, type
// (text/binary), and a free-text match on path, project, or username.
func (s *AdminService) ListFiles(ctx context.Context, filter repository.FileFilter, page, perPage int) ([]model.FileInfo, Page, error) {
	switch filter.Type {
	case "", "text", "binary":
	default:
		return nil, Page{}, apperror.ValidationFailed("type", "type must be 'text' or 'binary'")
	}

	opts, perPage, page := clampPage(page, perPage)

	files, total, err := s.files.ListAllFiles(ctx, filter, opts)
	if err != nil {
		return nil, Page{}, err
	}

	return files, makePage(total, page, perPage), nil
}

// CreateUser provisions an account, optionally with the admin flag, for a
// teacher creating class accounts up front. Same validation as Register.
func (s *AdminService) CreateUser(ctx context.Context, username, password string, isAdmin bool) (*model.User, error) {
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
		IsAdmin:      isAdmin,
		IsActive:     true,
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		return nil, err
	}

	s.logger.Info("admin created user",
		slog.String("userID", user.ID),
		slog.String("username", user.Username),
		slog.Bool("isAdmin", isAdmin),
	)

	return user, nil
}

// UserUpdate carries the optional fields of an admin edit. Nil means
// "leave unchanged".
type UserUpdate struct {
	Username *string
	Password *string
	IsAdmin  *bool
	IsActive *bool
}

// UpdateUser applies an admin edit. A username change also moves the
// user's directory under the upload root, since usernames key disk paths;
// the move is attempted before the row update so a failed rename leaves
// both halves consistent. Deactivation revokes the user's live sessions.
func (s *AdminService) UpdateUser(ctx context.Context, id string, update UserUpdate) (*model.User, error) {
	user, err := s.users.GetUserByID(ctx, id)
	if err != nil {
		return nil, err
	}

	oldUsername := user.Username

	if update.Username != nil {
		name := strings.TrimSpace(*update.Username)
		if err := validateUsername(name); err != nil {
			return nil, err
		}
		user.Username = name
	}
	if update.Password != nil {
		if err := validatePassword(*update.Password); err != nil {
			return nil, err
		}
		hash, err := s.passwords.Hash(*update.Password)
		if err != nil {
			return nil, err
		}
		user.PasswordHash = hash
	}
	if update.IsAdmin != nil {
		user.IsAdmin = *update.IsAdmin
	}
	if update.IsActive != nil {
		user.IsActive = *update.IsActive
	}

	if user.Username != oldUsername {
		if err := s.store.RenameUser(oldUsername, user.Username); err != nil {
			return nil, err
		}
	}

	if err := s.users.UpdateUser(ctx, user); err != nil {
		// Undo the rename so disk and DB keep agreeing on the username.
		if user.Username != oldUsername {
			if rbErr := s.store.RenameUser(user.Username, oldUsername); rbErr != nil {
				s.logger.Warn("failed to roll back user directory rename",
					slog.String("username", oldUsername),
					slog.String("error", rbErr.Error()),
				)
			}
		}
		return nil, err
	}

	if update.IsActive != nil && !*update.IsActive {
		if err := s.sessions.DeactivateUserSessions(ctx, user.ID); err != nil {
			s.logger.Warn("failed to revoke sessions of deactivated user",
				slog.String("userID", user.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	s.logger.Info("admin updated user", slog.String("userID", user.ID))
	return user, nil
}

// DeleteUser removes the account and cascades: sessions, projects, and
// files go in one DB transaction, then the user's directory is removed
// best-effort. After this, lookups of anything the user owned return
// NotFound for every requester, admins included.
func (s *AdminService) DeleteUser(ctx context.Context, requesterID, id string) error {
	if requesterID == id {
		return apperror.ValidationFailed("id", "you cannot delete your own account")
	}

	user, err := s.users.GetUserByID(ctx, id)
	if err != nil {
		return err
	}

	if err := s.users.DeleteUser(ctx, user.ID); err != nil {
		return err
	}

	if err := s.store.RemoveUser(user.Username); err != nil {
		s.logger.Warn("failed to remove user directory",
			slog.String("username", user.Username),
			slog.String("error", err.Error()),
		)
	}

	s.logger.Info("admin deleted user",
		slog.String("userID", user.ID),
		slog.String("username", user.Username),
	)

	return nil
}

// ToggleAdmin flips the admin flag. Admins cannot change their own flag;
// a classroom must not lock itself out by demoting its last admin by
// accident.
func (s *AdminService) ToggleAdmin(ctx context.Context, requesterID, id string) (*model.User, error) {
	if requesterID == id {
		return nil, apperror.ValidationFailed("id", "you cannot change your own admin status")
	}

	user, err := s.users.GetUserByID(ctx, id)
	if err != nil {
		return nil, err
	}

	user.IsAdmin = !user.IsAdmin
	if err := s.users.UpdateUser(ctx, user); err != nil {
		return nil, err
	}

	s.logger.Info("admin toggled admin flag",
		slog.String("userID", user.ID),
		slog.Bool("isAdmin", user.IsAdmin),
	)
	return user, nil
}

// ToggleActive flips the active flag. Deactivating revokes live sessions
// so the account is locked out immediately, not at next token expiry.
func (s *AdminService) ToggleActive(ctx context.Context, requesterID, id string) (*model.User, error) {
	if requesterID == id {
		return nil, apperror.ValidationFailed("id", "you cannot deactivate your own account")
	}

	user, err := s.users.GetUserByID(ctx, id)
	if err != nil {
		return nil, err
	}

	user.IsActive = !user.IsActive
	if err := s.users.UpdateUser(ctx, user); err != nil {
		return nil, err
	}

	if !user.IsActive {
		if err := s.sessions.DeactivateUserSessions(ctx, user.ID); err != nil {
			s.logger.Warn("failed to revoke sessions of deactivated user",
				slog.String("userID", user.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	s.logger.Info("admin toggled active flag",
		slog.String("userID", user.ID),
		slog.Bool("isActive", user.IsActive),
	)
	return user, nil
}

// ListSessions returns sessions most recently active first, optionally
// narrowed to one username and/or an active state. An unknown username
// yields an empty listing, not an error.
func (s *AdminService) ListSessions(ctx context.Context, filter repository.SessionFilter) ([]model.SessionInfo, error) {
	filter.Username = strings.TrimSpace(filter.Username)
	return s.sessions.ListSessions(ctx, filter)
}

// ForceLogout revokes every active session of one user.
func (s *AdminService) ForceLogout(ctx context.Context, id string) error {
	if _, err := s.users.GetUserByID(ctx, id); err != nil {
		return err
	}
	if err := s.sessions.DeactivateUserSessions(ctx, id); err != nil {
		return err
	}
	s.logger.Info("admin forced logout", slog.String("userID", id))
	return nil
}

// clampPage translates the API's 1-based (page, per_page) into LIMIT/OFFSET
// and returns the effective values after clamping.
func clampPage(page, perPage int) (repository.ListOptions, int, int) {
	if page < 1 {
		page = 1
	}
	if perPage <= 0 {
		perPage = DefaultPageSize
	}
	if perPage > MaxPageSize {
		perPage = MaxPageSize
	}
	return repository.ListOptions{
		Limit:  perPage,
		Offset: (page - 1) * perPage,
	}, perPage, page
}

func makePage(total, page, perPage int) Page {
	pages := 0
	if total > 0 {
		pages = (total + perPage - 1) / perPage
	}
	return Page{
		Total:       total,
		Pages:       pages,
		CurrentPage: page,
		PerPage:     perPage,
	}
}

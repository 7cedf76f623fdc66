package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/anika/codeclass/internal/model"
	"github.com/anika/codeclass/internal/repository"
	"github.com/anika/codeclass/internal/service"
)

// AdminHandler exposes the admin listings and account maintenance. Every
// route here sits behind RequireAdmin, so requester() always yields an
// admin.
type AdminHandler struct {
	admin  *service.AdminService
	logger *slog.Logger
}

func NewAdminHandler(admin *service.AdminService, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{admin: admin, logger: logger}
}

// pageParams reads ?page= and ?per_page=, leaving zero values for the
// service to default and clamp.
func pageParams(r *http.Request) (page, perPage int) {
	page, _ = strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ = strconv.Atoi(r.URL.Query().Get("per_page"))
	return page, perPage
}

// HandleListUsers is the class roster with derived counts and online flags.
//
// GET /api/admin/users?search=&page=&per_page=
func (h *AdminHandler) HandleListUsers(w http.ResponseWriter, r *http.Request) {
	page, perPage := pageParams(r)
	users, pg, err := h.admin.ListUsers(r.Context(), r.URL.Query().Get("search"), page, perPage)
	if err != nil {
		writeError(w, err)
		return
	}
	if users == nil {
		users = []model.UserOverview{}
	}

	writeJSON(w, http.StatusOK, struct {
		Success bool                 `json:"success"`
		Users   []model.UserOverview `json:"users"`
		service.Page
	}{true, users, pg})
}

// HandleListFiles is the cross-user file listing.
//
// GET /api/admin/files?type=&user_id=&search=&page=&per_page=
func (h *AdminHandler) HandleListFiles(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := repository.FileFilter{
		UserID: q.Get("user_id"),
		Type:   q.Get("type"),
		Search: q.Get("search"),
	}

	page, perPage := pageParams(r)
	files, pg, err := h.admin.ListFiles(r.Context(), filter, page, perPage)
	if err != nil {
		writeError(w, err)
		return
	}
	if files == nil {
		files = []model.FileInfo{}
	}

	writeJSON(w, http.StatusOK, struct {
		Success bool             `json:"success"`
		Files   []model.FileInfo `json:"files"`
		service.Page
	}{true, files, pg})
}

// HandleListSessions is the login session listing, most recently active
// first. ?active=true narrows to live sessions, ?active=false to revoked
// ones; anything else means both.
//
// GET /api/admin/sessions?username=&active=
func (h *AdminHandler) HandleListSessions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := repository.SessionFilter{Username: q.Get("username")}
	if active, err := strconv.ParseBool(q.Get("active")); err == nil {
		filter.Active = &active
	}

	sessions, err := h.admin.ListSessions(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, struct {
		Success  bool                `json:"success"`
		Sessions []model.SessionInfo `json:"sessions"`
	}{true, sessions})
}

type adminCreateUserRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	IsAdmin  bool   `json:"is_admin"`
}

// HandleCreateUser provisions an account, optionally an admin one.
//
// POST /api/admin/users {"username","password","is_admin"}
func (h *AdminHandler) HandleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req adminCreateUserRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	user, err := h.admin.CreateUser(r.Context(), req.Username, req.Password, req.IsAdmin)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, struct {
		Success bool        `json:"success"`
		User    *model.User `json:"user"`
	}{true, user})
}

type adminUpdateUserRequest struct {
	Username *string `json:"username"`
	Password *string `json:"password"`
	IsAdmin  *bool   `json:"is_admin"`
	IsActive *bool   `json:"is_active"`
}

// HandleUpdateUser edits an account. Absent fields stay as they are;
// pointer fields distinguish "not sent" from a zero value.
//
// PUT /api/admin/users/{id}
func (h *AdminHandler) HandleUpdateUser(w http.ResponseWriter, r *http.Request) {
	var req adminUpdateUserRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	user, err := h.admin.UpdateUser(r.Context(), r.PathValue("id"), service.UserUpdate{
		Username: req.Username,
		Password: req.Password,
		IsAdmin:  req.IsAdmin,
		IsActive: req.IsActive,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, struct {
		Success bool        `json:"success"`
		User    *model.User `json:"user"`
	}{true, user})
}

// HandleDeleteUser removes an account with full cascade.
//
// DELETE /api/admin/users/{id}
func (h *AdminHandler) HandleDeleteUser(w http.ResponseWriter, r *http.Request) {
	admin, ok := requester(w, r)
	if !ok {
		return
	}

	if err := h.admin.DeleteUser(r.Context(), admin.ID, r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, struct {
		Success bool `json:"success"`
	}{true})
}

// HandleToggleAdmin flips a user's admin flag.
//
// POST /api/admin/users/{id}/toggle_admin
func (h *AdminHandler) HandleToggleAdmin(w http.ResponseWriter, r *http.Request) {
	admin, ok := requester(w, r)
	if !ok {
		return
	}

	user, err := h.admin.ToggleAdmin(r.Context(), admin.ID, r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, struct {
		Success bool        `json:"success"`
		User    *model.User `json:"user"`
	}{true, user})
}

// HandleToggleActive flips a user's active flag.
//
// POST /api/admin/users/{id}/toggle_active
func (h *AdminHandler) HandleToggleActive(w http.ResponseWriter, r *http.Request) {
	admin, ok := requester(w, r)
	if !ok {
		return
	}

	user, err := h.admin.ToggleActive(r.Context(), admin.ID, r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, struct {
		Success bool        `json:"success"`
		User    *model.User `json:"user"`
	}{true, user})
}

// HandleForceLogout revokes every active session of one user.
//
// POST /api/admin/users/{id}/logout
func (h *AdminHandler) HandleForceLogout(w http.ResponseWriter, r *http.Request) {
	if err := h.admin.ForceLogout(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, struct {
		Success bool `json:"success"`
	}{true})
}

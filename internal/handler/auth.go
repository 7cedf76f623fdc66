package handler

import (
	"log/slog"
	"net/http"

	"github.com/anika/codeclass/internal/auth"
	"github.com/anika/codeclass/internal/model"
	"github.com/anika/codeclass/internal/service"
)

// AuthHandler exposes registration, login, logout, and the self lookup.
type AuthHandler struct {
	auth   *service.AuthService
	logger *slog.Logger
}

func NewAuthHandler(authService *service.AuthService, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{auth: authService, logger: logger}
}

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// HandleRegister creates an account.
//
// POST /api/register {"username": "...", "password": "..."}
func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	user, err := h.auth.Register(r.Context(), req.Username, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, struct {
		Success bool        `json:"success"`
		Message string      `json:"message"`
		User    *model.User `json:"user"`
	}{true, "registration successful", user})
}

// HandleLogin verifies credentials and issues a token.
//
// POST /api/login {"username": "...", "password": "..."}
//
// The session records where the login came from: RemoteAddr is already the
// client address thanks to the RealIP middleware ahead of this handler.
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	result, err := h.auth.Login(r.Context(), req.Username, req.Password, service.Origin{
		IP:        r.RemoteAddr,
		UserAgent: r.UserAgent(),
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, struct {
		Success bool        `json:"success"`
		Token   string      `json:"token"`
		User    *model.User `json:"user"`
	}{true, result.Token, result.User})
}

// HandleLogout revokes the session behind the presented token.
//
// POST /api/logout (authenticated)
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	token, ok := auth.TokenFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Success: false, Message: "authentication required"})
		return
	}

	if err := h.auth.Logout(r.Context(), token); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, struct {
		Success bool `json:"success"`
	}{true})
}

type changePasswordRequest struct {
	OldPassword string `json:"old_password"`
	NewPassword string `json:"new_password"`
}

// HandleChangePassword rotates the authenticated user's own password.
//
// POST /api/me/password {"old_password": "...", "new_password": "..."}
func (h *AuthHandler) HandleChangePassword(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Success: false, Message: "authentication required"})
		return
	}

	var req changePasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	if err := h.auth.ChangePassword(r.Context(), user, req.OldPassword, req.NewPassword); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
	}{true, "password updated"})
}

// HandleMe returns the authenticated user.
//
// GET /api/me (authenticated)
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Success: false, Message: "authentication required"})
		return
	}

	writeJSON(w, http.StatusOK, struct {
		Success bool        `json:"success"`
		User    *model.User `json:"user"`
	}{true, user})
}

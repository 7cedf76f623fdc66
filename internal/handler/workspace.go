package handler

import (
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path"

	"github.com/anika/codeclass/internal/apperror"
	"github.com/anika/codeclass/internal/auth"
	"github.com/anika/codeclass/internal/model"
	"github.com/anika/codeclass/internal/service"
)

// WorkspaceHandler exposes the project and file endpoints for the
// authenticated user. Every handler resolves the requester from the
// context first; the authorization decision itself lives in the service.
type WorkspaceHandler struct {
	workspace *service.WorkspaceService
	logger    *slog.Logger
}

func NewWorkspaceHandler(workspace *service.WorkspaceService, logger *slog.Logger) *WorkspaceHandler {
	return &WorkspaceHandler{workspace: workspace, logger: logger}
}

func requester(w http.ResponseWriter, r *http.Request) (*model.User, bool) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Success: false, Message: "authentication required"})
		return nil, false
	}
	return user, true
}

type submitRequest struct {
	ProjectName string `json:"project_name"`
	FilePath    string `json:"file_path"`
	CodeContent string `json:"code_content"`
	// "base64" lets clients push binary payloads through JSON; anything
	// else means code_content is the literal text.
	Encoding string `json:"encoding,omitempty"`
}

// HandleSubmit stores one submitted file.
//
// POST /api/submit_code {"project_name","file_path","code_content"[,"encoding":"base64"]}
func (h *WorkspaceHandler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	user, ok := requester(w, r)
	if !ok {
		return
	}

	var req submitRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	payload := []byte(req.CodeContent)
	if req.Encoding == "base64" {
		decoded, err := base64.StdEncoding.DecodeString(req.CodeContent)
		if err != nil {
			writeError(w, apperror.ValidationFailed("code_content", "code_content is not valid base64"))
			return
		}
		payload = decoded
	}

	file, err := h.workspace.Submit(r.Context(), user, req.ProjectName, req.FilePath, payload)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
		FileID  string `json:"file_id"`
	}{true, "file saved", file.ID})
}

// HandleProjects lists the requester's projects.
//
// GET /api/projects
func (h *WorkspaceHandler) HandleProjects(w http.ResponseWriter, r *http.Request) {
	user, ok := requester(w, r)
	if !ok {
		return
	}

	projects, err := h.workspace.Projects(r.Context(), user)
	if err != nil {
		writeError(w, err)
		return
	}
	if projects == nil {
		projects = []model.ProjectSummary{}
	}

	writeJSON(w, http.StatusOK, struct {
		Success  bool                   `json:"success"`
		Projects []model.ProjectSummary `json:"projects"`
	}{true, projects})
}

// HandleDeleteProject removes a project and everything in it.
//
// DELETE /api/project/{id}
func (h *WorkspaceHandler) HandleDeleteProject(w http.ResponseWriter, r *http.Request) {
	user, ok := requester(w, r)
	if !ok {
		return
	}

	if err := h.workspace.DeleteProject(r.Context(), user, r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, struct {
		Success bool `json:"success"`
	}{true})
}

// HandleProjectFiles lists a project's files, metadata only.
//
// GET /api/project/{id}/files
func (h *WorkspaceHandler) HandleProjectFiles(w http.ResponseWriter, r *http.Request) {
	user, ok := requester(w, r)
	if !ok {
		return
	}

	files, err := h.workspace.ProjectFiles(r.Context(), user, r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	if files == nil {
		files = []model.File{}
	}

	writeJSON(w, http.StatusOK, struct {
		Success bool         `json:"success"`
		Files   []model.File `json:"files"`
	}{true, files})
}

// HandleGetFile returns one file. Text files come back as JSON with the
// content inline; binary files are streamed as a download, since there is
// no useful JSON rendering of arbitrary bytes.
//
// GET /api/file/{id}
func (h *WorkspaceHandler) HandleGetFile(w http.ResponseWriter, r *http.Request) {
	user, ok := requester(w, r)
	if !ok {
		return
	}

	file, stream, err := h.workspace.ReadFile(r.Context(), user, r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}

	if stream != nil {
		h.streamAttachment(w, file, stream)
		return
	}

	writeJSON(w, http.StatusOK, struct {
		Success bool        `json:"success"`
		File    *model.File `json:"file"`
		Content string      `json:"content"`
	}{true, file, file.Content})
}

// HandleDownloadFile always streams the file as an attachment, text or
// binary. Text is served from the row so the download matches what the
// editor shows, even if the disk mirror is stale.
//
// GET /api/file/{id}/download
func (h *WorkspaceHandler) HandleDownloadFile(w http.ResponseWriter, r *http.Request) {
	user, ok := requester(w, r)
	if !ok {
		return
	}

	file, stream, err := h.workspace.ReadFile(r.Context(), user, r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}

	if stream != nil {
		h.streamAttachment(w, file, stream)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", path.Base(file.Path)))
	if _, err := io.WriteString(w, file.Content); err != nil {
		h.logger.Error("failed to write file download", slog.String("error", err.Error()))
	}
}

func (h *WorkspaceHandler) streamAttachment(w http.ResponseWriter, file *model.File, stream io.ReadCloser) {
	defer stream.Close()

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", path.Base(file.Path)))
	if _, err := io.Copy(w, stream); err != nil {
		// Headers are gone; all we can do is log the broken transfer.
		h.logger.Error("failed to stream file",
			slog.String("fileID", file.ID),
			slog.String("error", err.Error()),
		)
	}
}

type updateFileRequest struct {
	Content string `json:"content"`
}

// HandleUpdateFile replaces a file's content with new text.
//
// PUT /api/file/{id} {"content": "..."}
func (h *WorkspaceHandler) HandleUpdateFile(w http.ResponseWriter, r *http.Request) {
	user, ok := requester(w, r)
	if !ok {
		return
	}

	var req updateFileRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	if _, err := h.workspace.UpdateFile(r.Context(), user, r.PathValue("id"), req.Content); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, struct {
		Success bool `json:"success"`
	}{true})
}

// HandleDeleteFile removes one file.
//
// DELETE /api/file/{id}
func (h *WorkspaceHandler) HandleDeleteFile(w http.ResponseWriter, r *http.Request) {
	user, ok := requester(w, r)
	if !ok {
		return
	}

	if err := h.workspace.DeleteFile(r.Context(), user, r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, struct {
		Success bool `json:"success"`
	}{true})
}

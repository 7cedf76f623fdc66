// Package handler is the HTTP surface: thin chi handlers that decode JSON,
// call a service, and encode the result. Every JSON body carries a
// `success` flag; failures add a human-readable `message`. Domain errors
// become status codes in exactly one place, writeError, so the service
// layer never learns about HTTP.
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/anika/codeclass/internal/apperror"
)

// errorResponse is the one shape every failed request produces.
type errorResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// writeJSON sends a JSON body with the given status. Headers go first:
// once Encode starts writing, the status line is already on the wire.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// writeError translates a domain error into an HTTP response.
//
// The sentinel decides the status; the AppError message is the body. A
// storage error keeps its curated message but never its cause; the cause
// may name paths or SQL and belongs in the log, not the response. Anything
// without a sentinel is a bug surfacing, and gets an opaque 500.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, apperror.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, apperror.ErrUnauthorized):
		status = http.StatusUnauthorized
	case errors.Is(err, apperror.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, apperror.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, apperror.ErrConflict):
		status = http.StatusConflict
	case errors.Is(err, apperror.ErrStorage):
		status = http.StatusInternalServerError
	}

	message := "an internal error occurred"
	var appErr *apperror.AppError
	if errors.As(err, &appErr) && appErr.Message != "" {
		message = appErr.Message
	}

	writeJSON(w, status, errorResponse{Success: false, Message: message})
}

// decodeJSON reads one JSON value into dst, translating malformed or
// oversized bodies into validation errors the caller can writeError.
func decodeJSON(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return apperror.ValidationFailed("body", "request body must be valid JSON")
	}
	return nil
}

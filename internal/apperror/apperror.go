// Package apperror defines the application's error taxonomy.
//
// Services return these typed errors; the HTTP layer translates them to
// status codes in exactly one place (handler.writeError). Nothing below the
// handler layer knows about HTTP.
package apperror

import (
	"errors"
	"fmt"
)

// Sentinel errors. Callers check them with errors.Is, which walks the chain
// through AppError.Unwrap.
var (
	ErrNotFound     = errors.New("not found")
	ErrValidation   = errors.New("validation error")
	ErrConflict     = errors.New("conflict")
	ErrForbidden    = errors.New("forbidden")
	ErrUnauthorized = errors.New("unauthorized")
	ErrStorage      = errors.New("storage error")
)

type AppError struct {
	Err     error  // sentinel category
	Message string // Human-readable error message
	Field   string // Optional: field causing the error
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func NotFound(resource, id string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found with id %s", resource, id),
	}
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

func Conflict(message string) *AppError {
	return &AppError{
		Err:     ErrConflict,
		Message: message,
	}
}

// Forbidden returns an AppError indicating the caller lacks permission.
// HTTP handlers map this to 403 Forbidden.
func Forbidden(message string) *AppError {
	return &AppError{
		Err:     ErrForbidden,
		Message: message,
	}
}

// Unauthorized covers every way a request can fail authentication: missing,
// expired, or tampered tokens, revoked sessions, bad credentials, and
// disabled accounts. The message distinguishes them; the status (401) does not.
func Unauthorized(message string) *AppError {
	return &AppError{
		Err:     ErrUnauthorized,
		Message: message,
	}
}

// Storage wraps a filesystem failure (write, read, unlink) so callers can
// tell it apart from authorization and not-found errors. The underlying
// cause stays reachable through the chain for logging.
func Storage(message string, cause error) *AppError {
	if cause != nil {
		return &AppError{
			Err:     fmt.Errorf("%w: %w", ErrStorage, cause),
			Message: message,
		}
	}
	return &AppError{
		Err:     ErrStorage,
		Message: message,
	}
}

// Package apperr defines the error taxonomy shared by the command handlers
// and the transport layers.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel kinds. Handlers wrap these with context via %w so transports can
// classify errors without parsing messages.
var (
	ErrNotFound         = errors.New("not found")
	ErrPermissionDenied = errors.New("permission denied")
	ErrInvalidInput     = errors.New("invalid input")
	// ErrConflict marks a concurrent modification that exhausted its retries.
	ErrConflict = errors.New("conflict")
)

// NotFound reports a missing entity.
func NotFound(entity, id string) error {
	return fmt.Errorf("%s %s: %w", entity, id, ErrNotFound)
}

// PermissionDenied reports an operation the requester may not perform.
func PermissionDenied(userID, action string) error {
	return fmt.Errorf("user %s may not %s: %w", userID, action, ErrPermissionDenied)
}

// InvalidInput reports a malformed or missing field.
func InvalidInput(msg string) error {
	return fmt.Errorf("%s: %w", msg, ErrInvalidInput)
}

// HTTPStatus maps an error to the REST status code.
func HTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

package api

import (
	"errors"
	"net/http"

	"github.com/plantwatch/plantdata-api/internal/download"
	"github.com/plantwatch/plantdata-api/internal/service/auth"
	"github.com/plantwatch/plantdata-api/internal/store"
)

// MapErrorToStatusCode maps internal errors to appropriate HTTP status codes
// based on the error type. This prevents leaking internal error types or
// messages to clients.
func MapErrorToStatusCode(err error) int {
	switch {
	// Authentication errors
	case errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrExpiredToken),
		errors.Is(err, auth.ErrTokenNotYetValid),
		errors.Is(err, auth.ErrMissingToken):
		return http.StatusUnauthorized

	// Authorization errors
	case errors.Is(err, download.ErrTaskNotOwned),
		errors.Is(err, download.ErrDownloadForbidden):
		return http.StatusForbidden

	// Not found errors
	case errors.Is(err, store.ErrUserNotFound),
		errors.Is(err, download.ErrTaskNotFound),
		errors.Is(err, download.ErrNoFiles):
		return http.StatusNotFound

	// Conflict errors
	case errors.Is(err, store.ErrEmailExists):
		return http.StatusConflict

	// Result not ready yet
	case errors.Is(err, download.ErrResultNotReady):
		return http.StatusConflict

	// Quota exhaustion
	case errors.Is(err, download.ErrQuotaExceeded):
		return http.StatusTooManyRequests

	// Bad request errors
	case errors.Is(err, download.ErrEmptyRequest),
		errors.Is(err, store.ErrInvalidEntity):
		return http.StatusBadRequest

	// Default: internal server error
	default:
		return http.StatusInternalServerError
	}
}

// GetSafeErrorMessage returns a sanitized, user-friendly error message
// based on the error type. This prevents leaking sensitive internal details.
func GetSafeErrorMessage(err error) string {
	if err == nil {
		return "An unexpected error occurred"
	}

	switch {
	case errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrExpiredToken),
		errors.Is(err, auth.ErrTokenNotYetValid),
		errors.Is(err, auth.ErrMissingToken):
		return "Invalid token"

	case errors.Is(err, download.ErrTaskNotOwned):
		return "You do not own this download task"

	case errors.Is(err, download.ErrDownloadForbidden):
		return "Your account is not permitted to download files"

	case errors.Is(err, download.ErrTaskNotFound):
		return "Download task not found or expired"

	case errors.Is(err, download.ErrNoFiles):
		return "No downloadable files for the given IDs"

	case errors.Is(err, download.ErrResultNotReady):
		return "Download result is not ready yet"

	case errors.Is(err, download.ErrQuotaExceeded):
		return "Daily download quota exceeded"

	case errors.Is(err, download.ErrEmptyRequest):
		return "At least one item ID is required"

	case errors.Is(err, store.ErrUserNotFound):
		return "User not found"

	case errors.Is(err, store.ErrEmailExists):
		return "Email already exists"

	case errors.Is(err, store.ErrInvalidEntity):
		return "Invalid entity data"

	default:
		return "An unexpected error occurred"
	}
}

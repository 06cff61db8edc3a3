package api

import (
	"github.com/google/uuid"
)

// Common request/response structures

// RegisterRequest defines the payload for the user registration endpoint.
type RegisterRequest struct {
	Email    string `json:"email"    validate:"required,email"`
	Password string `json:"password" validate:"required,min=12,max=72"`
}

// LoginRequest defines the payload for the user login endpoint.
type LoginRequest struct {
	Email    string `json:"email"    validate:"required,email"`
	Password string `json:"password" validate:"required,min=1"`
}

// AuthResponse defines the successful response for authentication endpoints.
type AuthResponse struct {
	// UserID is the unique identifier for the authenticated user
	UserID uuid.UUID `json:"user_id"`

	// Token is the JWT used for API authorization
	Token string `json:"token"`
}

// SubmitDownloadRequest defines the payload for submitting a bulk download.
type SubmitDownloadRequest struct {
	ItemIDs []int64 `json:"item_ids" validate:"required,min=1"`
}

// SubmitDownloadResponse acknowledges an accepted bulk download.
type SubmitDownloadResponse struct {
	// TaskID is the handle for polling status and fetching the result.
	TaskID uuid.UUID `json:"task_id"`
}

// TaskStatusResponse reports the lifecycle state of a download task.
type TaskStatusResponse struct {
	TaskID uuid.UUID `json:"task_id"`
	Status string    `json:"status"`
}

// QuotaStatusResponse reports the caller's download quota standing.
// Remaining is -1 for callers with no quota limit.
type QuotaStatusResponse struct {
	Remaining int64 `json:"remaining"`
	Lifetime  int64 `json:"lifetime"`
	Ceiling   int64 `json:"ceiling"`
}

package auth

import (
	"context"

	"github.com/plantwatch/plantdata-api/internal/domain"
)

// JWTService defines operations for managing JWT authentication tokens.
type JWTService interface {
	// GenerateToken creates a signed JWT access token identifying the user.
	// Returns the token string or an error if token generation fails.
	GenerateToken(ctx context.Context, user *domain.User) (string, error)

	// ValidateToken validates the provided token string and extracts the
	// caller identity. Returns an error if validation fails (expired,
	// invalid signature, etc.).
	ValidateToken(ctx context.Context, tokenString string) (domain.Caller, error)
}

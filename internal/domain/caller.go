package domain

import "github.com/google/uuid"

// Role classifies a caller's privilege level for download operations.
type Role string

const (
	// RoleAdmin callers bypass quota checks and are never charged.
	RoleAdmin Role = "admin"

	// RoleUser callers are subject to the daily download quota.
	RoleUser Role = "user"

	// RoleGuest callers cannot download at all.
	RoleGuest Role = "guest"
)

// ValidRole reports whether r is one of the known roles.
func ValidRole(r Role) bool {
	switch r {
	case RoleAdmin, RoleUser, RoleGuest:
		return true
	}
	return false
}

// Caller identifies the authenticated principal behind a request.
// It is threaded explicitly through every pipeline operation; there is no
// ambient "current user" state.
type Caller struct {
	ID   uuid.UUID
	Role Role
}

// Admin reports whether the caller holds the administrative role.
func (c Caller) Admin() bool {
	return c.Role == RoleAdmin
}

package users

import (
	"github.com/google/uuid"
)

// Role is the marketplace role resolved by the upstream identity provider
type Role string

const (
	RoleChef    Role = "chef"
	RoleManager Role = "manager"
	RoleAdmin   Role = "admin"
)

// Identity is the caller as seen by the core. Credentials never reach this far.
type Identity struct {
	UserID uuid.UUID `json:"user_id"`
	Role   Role      `json:"role"`
}

// System is the actor recorded for scheduler-driven changes
var System = Identity{UserID: uuid.Nil, Role: RoleAdmin}

func IsValidRole(role string) bool {
	switch Role(role) {
	case RoleChef, RoleManager, RoleAdmin:
		return true
	default:
		return false
	}
}

func (i Identity) IsChef() bool    { return i.Role == RoleChef }
func (i Identity) IsManager() bool { return i.Role == RoleManager }
func (i Identity) IsAdmin() bool   { return i.Role == RoleAdmin }

// CanReview reports whether the identity may act on the manager side of a workflow
func (i Identity) CanReview() bool {
	return i.Role == RoleManager || i.Role == RoleAdmin
}

package auth

import "strings"

// Role is the coarse authorization level of an actor.
type Role string

const (
	RoleUser  Role = "user"
	RoleOwner Role = "owner"
	RoleAdmin Role = "admin"
)

// ParseRole normalizes a role string. Unknown values are rejected.
func ParseRole(s string) (Role, bool) {
	switch Role(strings.ToLower(strings.TrimSpace(s))) {
	case RoleUser:
		return RoleUser, true
	case RoleOwner:
		return RoleOwner, true
	case RoleAdmin:
		return RoleAdmin, true
	}
	return "", false
}

// Actor is the authenticated principal supplied by the auth collaborator on
// every call. The core trusts these fields verbatim and performs no
// credential verification of its own.
type Actor struct {
	ID     string
	Role   Role
	Banned bool
}

// IsAdmin reports whether the actor holds the admin role.
func (a Actor) IsAdmin() bool { return a.Role == RoleAdmin }

// IsOwner reports whether the actor holds the owner role.
func (a Actor) IsOwner() bool { return a.Role == RoleOwner }

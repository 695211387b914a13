package auth

import "strings"

// UserRole is the user's role
type UserRole string

const (
	// RoleUser is the default role for new accounts
	RoleUser UserRole = "user"
	// RoleModerator can moderate content and unlock accounts
	RoleModerator UserRole = "moderator"
	// RoleAdmin can manage users and roles
	RoleAdmin UserRole = "admin"
)

var roleHierarchy = map[UserRole]int{
	RoleUser:      0,
	RoleModerator: 1,
	RoleAdmin:     2,
}

func (r UserRole) String() string {
	return string(r)
}

// IsValid checks if the role is one of the predefined valid roles
func (r UserRole) IsValid() bool {
	_, ok := roleHierarchy[r]
	return ok
}

// IsAtLeast checks if this role meets the minimum required level
func (r UserRole) IsAtLeast(minRole UserRole) bool {
	current, ok := roleHierarchy[r]
	if !ok {
		return false
	}
	minimum, ok := roleHierarchy[minRole]
	if !ok {
		return false
	}
	return current >= minimum
}

// GetAllRoles returns all predefined roles in hierarchical order
func GetAllRoles() []UserRole {
	return []UserRole{RoleUser, RoleModerator, RoleAdmin}
}

// ParseRole safely parses a string into a UserRole type
func ParseRole(roleStr string) (UserRole, bool) {
	role := UserRole(strings.ToLower(strings.TrimSpace(roleStr)))
	return role, role.IsValid()
}

// Authorize checks that identity holds one of the allowed roles. A nil
// identity fails with ErrAuthRequired and a role outside the set with
// ErrForbidden. An empty allowed set only requires an identity.
func Authorize(identity Identity, allowed ...UserRole) error {
	if identity == nil {
		return ErrAuthRequired.Clone()
	}

	if len(allowed) == 0 {
		return nil
	}

	role := UserRole(identity.Role())
	for _, r := range allowed {
		if r == role {
			return nil
		}
	}

	return ErrForbidden.Clone().WithMetadata(map[string]any{
		"role":    role,
		"allowed": allowed,
	})
}

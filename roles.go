package auth

// IsValidRole checks if the role is one of the predefined valid roles
func IsValidRole(r Role) bool {
	switch r {
	case RoleAdmin, RoleResident:
		return true
	default:
		return false
	}
}

// ParseRole safely parses a string into a Role
func ParseRole(roleStr string) (Role, bool) {
	role := Role(roleStr)
	return role, IsValidRole(role)
}

// AllRoles returns all predefined roles
func AllRoles() []Role {
	return []Role{RoleAdmin, RoleResident}
}

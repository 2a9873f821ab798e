package attendance

// Role is the caller's role as supplied by the identity layer.
type Role string

const (
	RoleMember        Role = "member"
	RoleUsher         Role = "usher"
	RoleCategoryAdmin Role = "category-admin"
	RoleSuperAdmin    Role = "super-admin"
)

// CanPunch reports whether the role may submit location punches.
func (r Role) CanPunch() bool {
	return r == RoleUsher || r == RoleCategoryAdmin
}

// CanManageSessions reports whether the role may create, update or cancel
// location check sessions.
func (r Role) CanManageSessions() bool {
	return r == RoleCategoryAdmin || r == RoleSuperAdmin
}

// CanDelete reports whether the role may delete the given session.
// Protected (default) sessions are reserved to super admins.
func (r Role) CanDelete(s *Session) bool {
	if !r.CanManageSessions() {
		return false
	}
	if s.Protected {
		return r == RoleSuperAdmin
	}
	return true
}

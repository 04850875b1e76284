package domain

import "strings"

// Role is the access level carried in the user's token.
type Role string

const (
	RoleAdmin     Role = "admin"
	RoleModerator Role = "moderator"
	RoleUser      Role = "user"
)

// Permission names an action guarded by role.
type Permission string

const (
	ManageClients Permission = "manage_clients"
	ViewReports   Permission = "view_reports"
	ManageUsers   Permission = "manage_users"
)

// ParseRole maps a claim value to a Role. Unknown values fall back to
// RoleUser.
func ParseRole(s string) Role {
	switch Role(strings.ToLower(strings.TrimSpace(s))) {
	case RoleAdmin:
		return RoleAdmin
	case RoleModerator:
		return RoleModerator
	}
	return RoleUser
}

// rank orders roles so the highest one wins when a token carries several.
func (r Role) rank() int {
	switch r {
	case RoleAdmin:
		return 2
	case RoleModerator:
		return 1
	}
	return 0
}

// Outranks reports whether r grants more than other.
func (r Role) Outranks(other Role) bool {
	return r.rank() > other.rank()
}

// Can reports whether the role holds the permission. Admins hold every
// permission, including ones added later.
func (r Role) Can(p Permission) bool {
	if r == RoleAdmin {
		return true
	}
	switch p {
	case ManageClients:
		return true
	case ViewReports, ManageUsers:
		return r == RoleModerator
	}
	return false
}

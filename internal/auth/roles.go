package auth

import "errors"

// Role is an authorisation tier.
type Role string

const (
	// RoleViewer may read charger state and history.
	RoleViewer Role = "viewer"

	// RoleOperator may also send commands to the charger.
	RoleOperator Role = "operator"

	// RoleAdmin has every permission.
	RoleAdmin Role = "admin"
)

// ValidRoles lists the roles a token may carry.
var ValidRoles = []Role{RoleViewer, RoleOperator, RoleAdmin}

// IsValidRole reports whether r is a known role.
func IsValidRole(r Role) bool {
	for _, v := range ValidRoles {
		if r == v {
			return true
		}
	}
	return false
}

// Permission is a named capability.
type Permission string

const (
	PermChargerRead    Permission = "charger:read"
	PermChargerCommand Permission = "charger:command"
	PermHistoryRead    Permission = "history:read"
	PermSystemAdmin    Permission = "system:admin"
)

// rolePermissions is the single source of truth for authorisation.
var rolePermissions = map[Role][]Permission{
	RoleViewer: {
		PermChargerRead,
		PermHistoryRead,
	},
	RoleOperator: {
		PermChargerRead,
		PermChargerCommand,
		PermHistoryRead,
	},
	RoleAdmin: {
		PermChargerRead,
		PermChargerCommand,
		PermHistoryRead,
		PermSystemAdmin,
	},
}

// HasPermission reports whether role grants perm.
func HasPermission(role Role, perm Permission) bool {
	for _, p := range rolePermissions[role] {
		if p == perm {
			return true
		}
	}
	return false
}

// Errors returned by token parsing and authorisation.
var (
	ErrTokenInvalid = errors.New("invalid token")
	ErrForbidden    = errors.New("insufficient permissions")
	ErrInvalidRole  = errors.New("invalid role")
)

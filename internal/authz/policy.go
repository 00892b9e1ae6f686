// Package authz holds the role authorization policy for the Connect API.
// Every function is a pure decision over its inputs; no I/O, no stored
// state. The same checks gate UI affordances and are re-run behind the
// privileged operations, where they are evaluated against the verified
// credential rather than anything client-supplied.
package authz

import "github.com/connectro/connect/internal/auth"

// CanCreateEvent reports whether a role may create calendar events.
// Only admins and leaders may.
func CanCreateEvent(role auth.Role) bool {
	return role == auth.RoleAdmin || role == auth.RoleLider
}

// CanModifyEvent reports whether the given user may update or delete an
// event created by createdBy. Admins and leaders may modify any event;
// everyone else only events they created themselves.
func CanModifyEvent(role auth.Role, uid, createdBy string) bool {
	if role == auth.RoleAdmin || role == auth.RoleLider {
		return true
	}
	return uid != "" && uid == createdBy
}

// CanManageRoles reports whether a role may list users and assign roles.
func CanManageRoles(role auth.Role) bool {
	return role == auth.RoleAdmin
}

// CanRSVP reports whether the identity behind the claims may opt in to an
// event. Anonymous sessions can browse but never RSVP.
func CanRSVP(claims *auth.Claims) bool {
	return claims != nil && claims.UID() != "" && !claims.Anonymous
}

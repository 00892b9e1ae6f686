// Package auth provides credential issuance, validation and role claim
// handling for the Connect API.
package auth

import "errors"

// Role is the authorization role derived from a credential's claim set.
type Role string

// Known roles, ordered by privilege.
const (
	RoleAdmin      Role = "admin"
	RoleLider      Role = "lider"
	RoleAdolescent Role = "adolescent"

	// RoleUnknown marks non-anonymous accounts that never received a role
	// claim. It exists only for directory listings; it is never issued.
	RoleUnknown Role = "necunoscut"
)

// ErrAmbiguousClaims is returned when a stored claim set carries more than
// one role flag. Such a set can only be produced by writing partial claims,
// which SetCustomClaims never does, so it is surfaced as a data-integrity
// error rather than resolved silently.
var ErrAmbiguousClaims = errors.New("claim set has more than one role flag set")

// RoleClaims is the custom claim block that encodes a user's role on a
// credential. Exactly one of the boolean flags should be true; the Role
// string mirrors the flag for consumers that only read a single field.
type RoleClaims struct {
	Admin      bool   `json:"admin"`
	Lider      bool   `json:"lider"`
	Adolescent bool   `json:"adolescent"`
	Role       string `json:"role,omitempty"`
}

// DeriveRole maps a claim set to a role with fixed precedence:
// admin, then lider, then the explicit role string, then adolescent.
// The precedence must not be reordered; it is what keeps a legacy
// claim set with several flags raised from escalating the wrong way.
func DeriveRole(c RoleClaims) Role {
	switch {
	case c.Admin:
		return RoleAdmin
	case c.Lider:
		return RoleLider
	case c.Role != "":
		return Role(c.Role)
	default:
		return RoleAdolescent
	}
}

// Integrity reports whether the claim set is well formed, i.e. at most one
// role flag is raised. Callers at the decode boundary should log the error
// and continue with DeriveRole's precedence result.
func (c RoleClaims) Integrity() error {
	count := 0
	for _, flag := range []bool{c.Admin, c.Lider, c.Adolescent} {
		if flag {
			count++
		}
	}
	if count > 1 {
		return ErrAmbiguousClaims
	}
	return nil
}

// ClaimsForRole computes the full replacement claim set for a role.
// Exactly one flag is raised; the set is meant to replace the target's
// claims wholesale, never to be merged, so stale combinations like
// admin and lider both true cannot arise.
func ClaimsForRole(role Role) RoleClaims {
	c := RoleClaims{Role: string(role)}
	switch role {
	case RoleAdmin:
		c.Admin = true
	case RoleLider:
		c.Lider = true
	default:
		c.Adolescent = true
	}
	return c
}

// Valid reports whether role is one of the three assignable roles.
// RoleUnknown is a presentation value, not an assignable role.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleLider, RoleAdolescent:
		return true
	}
	return false
}

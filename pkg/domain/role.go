package domain

import (
	"sort"
	"strings"
)

// Role is the single role assigned to a user.
type Role string

const (
	RoleCustomer   Role = "CUSTOMER"
	RoleSupport    Role = "SUPPORT"
	RoleModerator  Role = "MODERATOR"
	RoleManager    Role = "MANAGER"
	RoleAdmin      Role = "ADMIN"
	RoleSuperAdmin Role = "SUPER_ADMIN"
)

// Roles lists every role in ascending privilege order.
var Roles = []Role{RoleCustomer, RoleSupport, RoleModerator, RoleManager, RoleAdmin, RoleSuperAdmin}

// Valid reports whether r is one of the enumerated roles.
func (r Role) Valid() bool {
	for _, known := range Roles {
		if r == known {
			return true
		}
	}
	return false
}

// UserType maps a role onto the legacy user type claim.
func (r Role) UserType() UserType {
	if r == RoleCustomer || !r.Valid() {
		return UserTypeCustomer
	}
	return UserTypeAdmin
}

// ParseRole parses a role name case-insensitively.
func ParseRole(s string) (Role, bool) {
	r := Role(strings.ToUpper(strings.TrimSpace(s)))
	return r, r.Valid()
}

// UserType is the legacy coarse classification carried by older tokens.
type UserType string

const (
	UserTypeCustomer UserType = "CUSTOMER"
	UserTypeAdmin    UserType = "ADMIN"
)

// Authority is a permission label consumed by downstream access control.
type Authority string

const (
	AuthorityUser       Authority = "USER"
	AuthoritySupport    Authority = "SUPPORT"
	AuthorityModerator  Authority = "MODERATOR"
	AuthorityManager    Authority = "MANAGER"
	AuthorityAdmin      Authority = "ADMIN"
	AuthoritySuperAdmin Authority = "SUPER_ADMIN"
)

// AuthoritySet is an immutable-by-convention set of authorities.
type AuthoritySet map[Authority]struct{}

// NewAuthoritySet builds a set from the given authorities.
func NewAuthoritySet(authorities ...Authority) AuthoritySet {
	s := make(AuthoritySet, len(authorities))
	for _, a := range authorities {
		s[a] = struct{}{}
	}
	return s
}

// Has reports whether the set contains a.
func (s AuthoritySet) Has(a Authority) bool {
	_, ok := s[a]
	return ok
}

// Equal reports whether both sets hold exactly the same authorities.
func (s AuthoritySet) Equal(other AuthoritySet) bool {
	if len(s) != len(other) {
		return false
	}
	for a := range s {
		if !other.Has(a) {
			return false
		}
	}
	return true
}

// Clone returns a copy that callers may mutate.
func (s AuthoritySet) Clone() AuthoritySet {
	c := make(AuthoritySet, len(s))
	for a := range s {
		c[a] = struct{}{}
	}
	return c
}

// Slice returns the authorities sorted by name.
func (s AuthoritySet) Slice() []Authority {
	out := make([]Authority, 0, len(s))
	for a := range s {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Strings returns the sorted authority names.
func (s AuthoritySet) Strings() []string {
	slice := s.Slice()
	out := make([]string, len(slice))
	for i, a := range slice {
		out[i] = string(a)
	}
	return out
}

package auth

import "github.com/shelfmart/authcore/pkg/domain"

// roleAuthorities is the fixed role table. Every set includes USER.
// MODERATOR and SUPPORT sit outside the ADMIN/MANAGER chain.
var roleAuthorities = map[domain.Role][]domain.Authority{
	domain.RoleCustomer:  {domain.AuthorityUser},
	domain.RoleSupport:   {domain.AuthorityUser, domain.AuthoritySupport},
	domain.RoleModerator: {domain.AuthorityUser, domain.AuthorityModerator},
	domain.RoleManager:   {domain.AuthorityUser, domain.AuthorityManager},
	domain.RoleAdmin:     {domain.AuthorityUser, domain.AuthorityAdmin, domain.AuthorityManager},
	domain.RoleSuperAdmin: {
		domain.AuthorityUser, domain.AuthoritySuperAdmin, domain.AuthorityAdmin, domain.AuthorityManager,
	},
}

// Expand returns the authorities granted by role. Unknown roles get USER only.
func Expand(role domain.Role) domain.AuthoritySet {
	if auths, ok := roleAuthorities[role]; ok {
		return domain.NewAuthoritySet(auths...)
	}
	return domain.NewAuthoritySet(domain.AuthorityUser)
}

// ExpandClaims maps raw token claims to authorities. An empty role counts as
// absent; tokens issued before roles were carried fall back to user_type,
// where ADMIN grants {USER, ADMIN}.
func ExpandClaims(role domain.Role, userType domain.UserType) domain.AuthoritySet {
	if role != "" {
		return Expand(role)
	}
	if userType == domain.UserTypeAdmin {
		return domain.NewAuthoritySet(domain.AuthorityUser, domain.AuthorityAdmin)
	}
	return domain.NewAuthoritySet(domain.AuthorityUser)
}

package auth

import (
	"context"

	"github.com/google/uuid"
	"github.com/shelfmart/authcore/pkg/domain"
)

// Principal is the authenticated caller attached to a request.
type Principal struct {
	UserID      uuid.UUID
	SessionID   uuid.UUID
	Role        domain.Role
	UserType    domain.UserType
	Authorities domain.AuthoritySet
}

// HasAuthority reports whether the principal holds a.
func (p *Principal) HasAuthority(a domain.Authority) bool {
	return p != nil && p.Authorities.Has(a)
}

// PrincipalFromClaims builds a principal from verified access token claims.
func PrincipalFromClaims(claims *Claims) (*Principal, error) {
	userID, err := claims.UserID()
	if err != nil {
		return nil, err
	}
	return &Principal{
		UserID:      userID,
		SessionID:   claims.Session(),
		Role:        claims.Role,
		UserType:    claims.UserType,
		Authorities: ExpandClaims(claims.Role, claims.UserType),
	}, nil
}

type principalKey struct{}

// WithPrincipal returns a copy of ctx carrying p.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFromContext returns the principal attached to ctx, if any.
func PrincipalFromContext(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(*Principal)
	return p, ok && p != nil
}

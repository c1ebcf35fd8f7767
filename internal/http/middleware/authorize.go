package middleware

import (
	"net/http"

	"github.com/shelfmart/authcore/internal/httputil"
	"github.com/shelfmart/authcore/pkg/auth"
	"github.com/shelfmart/authcore/pkg/domain"
)

// accessDenied is the only message authorization failures produce, so a
// caller cannot tell which check failed.
const accessDenied = "access denied"

// RequireAuthenticated rejects requests without a principal with 401.
// Apply it after Authenticate.
func RequireAuthenticated() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := auth.PrincipalFromContext(r.Context()); !ok {
				httputil.Error(w, http.StatusUnauthorized, accessDenied)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireAuthority rejects requests without a principal with 401 and
// principals lacking authority with 403.
//
// Example usage:
//
//	r.With(middleware.RequireAuthority(domain.AuthorityAdmin)).
//	  Post("/v1/admin/users/{id}/unlock", adminHandler.Unlock)
func RequireAuthority(authority domain.Authority) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := auth.PrincipalFromContext(r.Context())
			if !ok {
				httputil.Error(w, http.StatusUnauthorized, accessDenied)
				return
			}
			if !p.HasAuthority(authority) {
				httputil.Error(w, http.StatusForbidden, accessDenied)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

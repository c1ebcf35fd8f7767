package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/shelfmart/authcore/internal/httputil"
	"github.com/shelfmart/authcore/pkg/auth"
)

// PublicPaths are served without any authentication attempt.
var PublicPaths = []string{
	"/health",
	"/v1/auth/login",
	"/v1/auth/register",
	"/v1/auth/refresh",
	"/v1/auth/password/reset-request",
	"/v1/auth/password/reset",
	"/v1/auth/password/reset/validate",
}

// publicPrefixes are public path trees.
var publicPrefixes = []string{"/v1/test/"}

// IsPublicPath reports whether path is on the public allow-list.
func IsPublicPath(path string) bool {
	for _, p := range PublicPaths {
		if path == p {
			return true
		}
	}
	for _, p := range publicPrefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

// AccessTokenDecoder decodes and verifies access tokens.
type AccessTokenDecoder interface {
	DecodeAccess(token string) (*auth.Claims, error)
}

// SessionChecker reports whether a session is still live.
type SessionChecker interface {
	IsValid(ctx context.Context, sessionID uuid.UUID) bool
}

// AuthenticateConfig configures Authenticate.
type AuthenticateConfig struct {
	Decoder AccessTokenDecoder
	// Sessions, when set, rejects access tokens whose session was revoked.
	Sessions SessionChecker
	Logger   *slog.Logger
}

// Authenticate establishes the request principal from a bearer access
// token. It never rejects a request: public paths pass through untouched,
// and a missing, malformed or invalid token leaves the request
// unauthenticated for RequireAuthenticated and RequireAuthority to deny.
func Authenticate(cfg AuthenticateConfig) func(http.Handler) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if IsPublicPath(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			token, ok := httputil.BearerToken(r)
			if !ok {
				next.ServeHTTP(w, r)
				return
			}

			if principal := resolvePrincipal(r.Context(), cfg, logger, token); principal != nil {
				r = r.WithContext(auth.WithPrincipal(r.Context(), principal))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// resolvePrincipal returns nil on any failure, including a panic in the
// decoder or the authority mapping.
func resolvePrincipal(ctx context.Context, cfg AuthenticateConfig, logger *slog.Logger, token string) (principal *auth.Principal) {
	defer func() {
		if rec := recover(); rec != nil {
			logger.Error("panic while authenticating request", "panic", rec)
			principal = nil
		}
	}()

	claims, err := cfg.Decoder.DecodeAccess(token)
	if err != nil {
		logger.Debug("bearer token rejected", "error", err)
		return nil
	}
	p, err := auth.PrincipalFromClaims(claims)
	if err != nil {
		logger.Debug("bearer token rejected", "error", err)
		return nil
	}
	if cfg.Sessions != nil && p.SessionID != uuid.Nil && !cfg.Sessions.IsValid(ctx, p.SessionID) {
		logger.Debug("bearer token session is no longer valid", "session_id", p.SessionID)
		return nil
	}
	return p
}

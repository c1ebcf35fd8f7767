package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/shelfmart/authcore/internal/config"
	"github.com/shelfmart/authcore/internal/http/features/admin"
	"github.com/shelfmart/authcore/internal/http/features/me"
	"github.com/shelfmart/authcore/internal/http/features/mfa"
	"github.com/shelfmart/authcore/internal/http/features/password"
	"github.com/shelfmart/authcore/internal/http/features/session"
	"github.com/shelfmart/authcore/internal/http/middleware"
	"github.com/shelfmart/authcore/internal/httputil"
	"github.com/shelfmart/authcore/pkg/auth"
	"github.com/shelfmart/authcore/pkg/domain"
)

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Logger          *slog.Logger
	Service         *auth.AuthenticationService
	Codec           *auth.TokenCodec
	Sessions        *auth.SessionRegistry
	Reset           *auth.PasswordResetFlow
	RateLimit       config.RateLimitConfig
	SecurityHeaders config.SecurityHeadersConfig
	MaxBodyBytes    int64
}

// NewRouter creates a new HTTP router with all routes registered.
func NewRouter(cfg RouterConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	r := chi.NewRouter()

	// Apply global middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Recover(logger))
	r.Use(middleware.Logging(logger))
	r.Use(middleware.SecurityHeaders(cfg.SecurityHeaders))
	r.Use(middleware.RequestSizeLimit(cfg.MaxBodyBytes))
	r.Use(middleware.Authenticate(middleware.AuthenticateConfig{
		Decoder:  cfg.Codec,
		Sessions: cfg.Sessions,
		Logger:   logger,
	}))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		httputil.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// Create rate limiters for different endpoint types
	limits := middleware.NewRateLimiters(cfg.RateLimit, logger)

	// Password authentication and reset
	passwordHandler := password.NewHandler(logger, cfg.Service, cfg.Reset)
	r.Group(func(r chi.Router) {
		r.Use(limits.Auth)
		passwordHandler.RegisterAuthRoutes(r)
	})
	r.Group(func(r chi.Router) {
		r.Use(limits.Reset)
		passwordHandler.RegisterResetRoutes(r)
	})
	r.With(limits.Verify).Post("/v1/auth/password/reset/validate", passwordHandler.ValidateResetToken)

	// Sessions
	sessionHandler := session.NewHandler(logger, cfg.Service)
	r.With(limits.Refresh).Post("/v1/auth/refresh", sessionHandler.Refresh)
	r.Post("/v1/auth/logout", sessionHandler.Logout)
	r.With(middleware.RequireAuthenticated()).Post("/v1/auth/logout/all", sessionHandler.LogoutAll)

	// Current user and two-factor management
	meHandler := me.NewHandler(logger, cfg.Service)
	mfaHandler := mfa.NewHandler(logger, cfg.Service)
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuthenticated())
		r.Use(limits.Profile)
		r.Get("/v1/me", meHandler.GetMe)
		r.Get("/v1/me/2fa", mfaHandler.Status)
		r.Post("/v1/me/2fa/enroll", mfaHandler.Enroll)
		r.With(limits.Verify).Post("/v1/me/2fa/confirm", mfaHandler.Confirm)
		r.With(limits.Verify).Post("/v1/me/2fa/disable", mfaHandler.Disable)
	})

	// Administration
	adminHandler := admin.NewHandler(logger, cfg.Service)
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuthority(domain.AuthorityAdmin))
		r.Post("/v1/admin/users/{id}/unlock", adminHandler.Unlock)
	})

	return r
}

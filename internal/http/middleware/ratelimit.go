package middleware

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/httprate"
	"github.com/shelfmart/authcore/internal/config"
	"github.com/shelfmart/authcore/internal/httputil"
)

// RateLimitConfig is one limiter: Requests per Window for each client IP.
type RateLimitConfig struct {
	Name     string
	Requests int
	Window   time.Duration
	Logger   *slog.Logger
}

// RateLimit limits requests per client IP. It keys on RemoteAddr, so
// chi's RealIP must run first when the service sits behind a proxy.
func RateLimit(cfg RateLimitConfig) func(http.Handler) http.Handler {
	if cfg.Requests <= 0 || cfg.Window <= 0 {
		return passThrough
	}
	return httprate.Limit(
		cfg.Requests,
		cfg.Window,
		httprate.WithKeyByIP(),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			if cfg.Logger != nil {
				cfg.Logger.Warn("rate limit exceeded",
					"limiter", cfg.Name,
					"ip", httputil.ClientIP(r),
					"path", r.URL.Path,
					"method", r.Method,
				)
			}
			httputil.Error(w, http.StatusTooManyRequests, "rate limit exceeded. please try again later")
		}),
	)
}

func passThrough(next http.Handler) http.Handler { return next }

// RateLimiters groups the limiters of the auth endpoints. Each field is a
// separate budget.
type RateLimiters struct {
	Auth    func(http.Handler) http.Handler // register and login
	Reset   func(http.Handler) http.Handler // reset request and redemption
	Verify  func(http.Handler) http.Handler // reset token checks and TOTP codes
	Refresh func(http.Handler) http.Handler
	Profile func(http.Handler) http.Handler
}

// NewRateLimiters builds the limiters from configuration. Disabled limiting,
// or a group with a zero budget, passes requests through.
func NewRateLimiters(cfg config.RateLimitConfig, logger *slog.Logger) RateLimiters {
	if !cfg.Enabled {
		return RateLimiters{
			Auth: passThrough, Reset: passThrough, Verify: passThrough,
			Refresh: passThrough, Profile: passThrough,
		}
	}

	limit := func(name string, requests, windowMinutes int) func(http.Handler) http.Handler {
		return RateLimit(RateLimitConfig{
			Name:     name,
			Requests: requests,
			Window:   time.Duration(windowMinutes) * time.Minute,
			Logger:   logger,
		})
	}
	return RateLimiters{
		Auth:    limit("auth", cfg.AuthRequestsPerMinute, cfg.AuthWindowMinutes),
		Reset:   limit("reset", cfg.ResetRequestsPerWindow, cfg.ResetWindowMinutes),
		Verify:  limit("verify", cfg.VerifyRequestsPerWindow, cfg.VerifyWindowMinutes),
		Refresh: limit("refresh", cfg.RefreshRequestsPerMinute, cfg.RefreshWindowMinutes),
		Profile: limit("profile", cfg.ProfileRequestsPerMinute, cfg.ProfileWindowMinutes),
	}
}

package middleware

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/shelfmart/authcore/internal/config"
)

const defaultCacheControl = "no-store"

type header struct {
	name, value string
}

// SecurityHeaders sets the response headers of an API that hands out
// credentials. The cache policy applies even when the browser hardening
// headers are disabled: login, refresh and reset responses carry tokens.
func SecurityHeaders(cfg config.SecurityHeadersConfig) func(http.Handler) http.Handler {
	headers := securityHeaders(cfg)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			for _, hdr := range headers {
				h.Set(hdr.name, hdr.value)
			}
			next.ServeHTTP(w, r)
		})
	}
}

// securityHeaders resolves the configuration into the fixed header list once.
// Empty values are skipped.
func securityHeaders(cfg config.SecurityHeadersConfig) []header {
	cacheControl := cfg.CacheControl
	if cacheControl == "" {
		cacheControl = defaultCacheControl
	}
	headers := []header{{"Cache-Control", cacheControl}}
	if strings.Contains(cacheControl, "no-store") || strings.Contains(cacheControl, "no-cache") {
		// HTTP/1.0 caches ignore Cache-Control.
		headers = append(headers, header{"Pragma", "no-cache"})
	}

	if !cfg.Enabled {
		return headers
	}

	if cfg.HSTSMaxAge > 0 {
		headers = append(headers, header{"Strict-Transport-Security",
			"max-age=" + strconv.Itoa(cfg.HSTSMaxAge) + "; includeSubDomains"})
	}
	for _, hdr := range []header{
		{"Content-Security-Policy", cfg.CSP},
		{"X-Frame-Options", cfg.FrameOptions},
		{"X-Content-Type-Options", cfg.ContentTypeOptions},
		{"X-XSS-Protection", cfg.XSSProtection},
		{"Referrer-Policy", cfg.ReferrerPolicy},
		{"Permissions-Policy", cfg.PermissionsPolicy},
	} {
		if hdr.value != "" {
			headers = append(headers, hdr)
		}
	}
	return headers
}

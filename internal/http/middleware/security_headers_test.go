package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shelfmart/authcore/internal/config"
	"github.com/shelfmart/authcore/internal/httputil"
)

// tokenHandler answers like the login endpoint.
var tokenHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	httputil.JSON(w, http.StatusOK, map[string]string{"access_token": "a", "refresh_token": "r"})
})

func serveHeaders(cfg config.SecurityHeadersConfig) http.Header {
	rec := httptest.NewRecorder()
	SecurityHeaders(cfg)(tokenHandler).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/auth/login", nil))
	return rec.Header()
}

func TestSecurityHeaders(t *testing.T) {
	cfg := config.SecurityHeadersConfig{
		Enabled:            true,
		CSP:                "default-src 'none'; frame-ancestors 'none'",
		HSTSMaxAge:         31536000,
		FrameOptions:       "DENY",
		ContentTypeOptions: "nosniff",
		XSSProtection:      "0",
		ReferrerPolicy:     "no-referrer",
		PermissionsPolicy:  "geolocation=()",
	}
	h := serveHeaders(cfg)

	tests := []struct {
		header string
		want   string
	}{
		{"Cache-Control", "no-store"},
		{"Pragma", "no-cache"},
		{"Content-Security-Policy", cfg.CSP},
		{"Strict-Transport-Security", "max-age=31536000; includeSubDomains"},
		{"X-Frame-Options", "DENY"},
		{"X-Content-Type-Options", "nosniff"},
		{"X-XSS-Protection", "0"},
		{"Referrer-Policy", "no-referrer"},
		{"Permissions-Policy", "geolocation=()"},
		{"Content-Type", "application/json"},
	}
	for _, tt := range tests {
		if got := h.Get(tt.header); got != tt.want {
			t.Errorf("%s = %q, want %q", tt.header, got, tt.want)
		}
	}
}

func TestSecurityHeaders_CachePolicy(t *testing.T) {
	tests := []struct {
		name       string
		cfg        config.SecurityHeadersConfig
		wantCache  string
		wantPragma string
		wantCSP    string
	}{
		{
			name:       "disabled still forbids caching tokens",
			cfg:        config.SecurityHeadersConfig{Enabled: false, CSP: "default-src 'none'"},
			wantCache:  "no-store",
			wantPragma: "no-cache",
		},
		{
			name:       "explicit policy",
			cfg:        config.SecurityHeadersConfig{Enabled: true, CacheControl: "no-store, max-age=0"},
			wantCache:  "no-store, max-age=0",
			wantPragma: "no-cache",
		},
		{
			name:      "cacheable policy drops pragma",
			cfg:       config.SecurityHeadersConfig{Enabled: true, CacheControl: "private, max-age=60", CSP: "default-src 'none'"},
			wantCache: "private, max-age=60",
			wantCSP:   "default-src 'none'",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := serveHeaders(tt.cfg)
			if got := h.Get("Cache-Control"); got != tt.wantCache {
				t.Errorf("Cache-Control = %q, want %q", got, tt.wantCache)
			}
			if got := h.Get("Pragma"); got != tt.wantPragma {
				t.Errorf("Pragma = %q, want %q", got, tt.wantPragma)
			}
			if got := h.Get("Content-Security-Policy"); got != tt.wantCSP {
				t.Errorf("Content-Security-Policy = %q, want %q", got, tt.wantCSP)
			}
		})
	}
}

func TestSecurityHeaders_EmptyValuesAreSkipped(t *testing.T) {
	h := serveHeaders(config.SecurityHeadersConfig{Enabled: true})

	for _, name := range []string{"Content-Security-Policy", "Strict-Transport-Security", "X-Frame-Options", "Permissions-Policy"} {
		if _, ok := h[http.CanonicalHeaderKey(name)]; ok {
			t.Errorf("%s should not be set when empty", name)
		}
	}
}

package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/shelfmart/authcore/internal/config"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

type clientReq struct {
	remoteAddr   string
	forwardedFor string
	wantStatus   int
}

func runClients(t *testing.T, handler http.Handler, reqs []clientReq) {
	t.Helper()
	for i, c := range reqs {
		req := httptest.NewRequest(http.MethodPost, "/v1/auth/login", nil)
		req.RemoteAddr = c.remoteAddr
		if c.forwardedFor != "" {
			req.Header.Set("X-Forwarded-For", c.forwardedFor)
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != c.wantStatus {
			t.Errorf("request %d (%s via %s): status = %d, want %d", i+1, c.forwardedFor, c.remoteAddr, rec.Code, c.wantStatus)
		}
	}
}

func TestRateLimit_KeysByClientIP(t *testing.T) {
	limit := RateLimit(RateLimitConfig{Name: "auth", Requests: 2, Window: time.Minute, Logger: testLogger})

	runClients(t, limit(okHandler), []clientReq{
		{"192.0.2.10:40000", "", http.StatusOK},
		{"192.0.2.10:40001", "", http.StatusOK},
		// A new source port is still the same client.
		{"192.0.2.10:40002", "", http.StatusTooManyRequests},
		{"192.0.2.11:40000", "", http.StatusOK},
	})
}

func TestRateLimit_BehindProxyUsesRealIP(t *testing.T) {
	limit := RateLimit(RateLimitConfig{Name: "auth", Requests: 2, Window: time.Minute})
	handler := chimw.RealIP(limit(okHandler))

	const proxy = "10.0.0.1:8443"
	runClients(t, handler, []clientReq{
		{proxy, "203.0.113.1", http.StatusOK},
		{proxy, "203.0.113.1", http.StatusOK},
		{proxy, "203.0.113.1", http.StatusTooManyRequests},
		// Other clients behind the same proxy have their own budget.
		{proxy, "203.0.113.2", http.StatusOK},
		{"10.0.0.2:9000", "203.0.113.1", http.StatusTooManyRequests},
	})
}

func TestRateLimit_RejectionBody(t *testing.T) {
	limit := RateLimit(RateLimitConfig{Name: "auth", Requests: 1, Window: time.Minute})
	handler := limit(okHandler)

	var rec *httptest.ResponseRecorder
	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/v1/auth/login", nil)
		req.RemoteAddr = "192.0.2.10:40000"
		rec = httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
	}

	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
	var resp map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp["error"] != "rate limit exceeded. please try again later" {
		t.Errorf("error = %q", resp["error"])
	}
}

func TestNewRateLimiters(t *testing.T) {
	logger := testLogger

	t.Run("disabled", func(t *testing.T) {
		limits := NewRateLimiters(config.RateLimitConfig{Enabled: false}, logger)
		reqs := make([]clientReq, 20)
		for i := range reqs {
			reqs[i] = clientReq{"192.0.2.10:40000", "", http.StatusOK}
		}
		runClients(t, limits.Auth(okHandler), reqs)
	})

	t.Run("groups have separate budgets", func(t *testing.T) {
		limits := NewRateLimiters(config.RateLimitConfig{
			Enabled:                  true,
			AuthRequestsPerMinute:    1,
			AuthWindowMinutes:        1,
			RefreshRequestsPerMinute: 1,
			RefreshWindowMinutes:     1,
		}, logger)

		runClients(t, limits.Auth(okHandler), []clientReq{
			{"192.0.2.10:40000", "", http.StatusOK},
			{"192.0.2.10:40000", "", http.StatusTooManyRequests},
		})
		runClients(t, limits.Refresh(okHandler), []clientReq{
			{"192.0.2.10:40000", "", http.StatusOK},
		})
	})

	t.Run("zero budget passes through", func(t *testing.T) {
		limits := NewRateLimiters(config.RateLimitConfig{Enabled: true}, logger)
		runClients(t, limits.Profile(okHandler), []clientReq{
			{"192.0.2.10:40000", "", http.StatusOK},
			{"192.0.2.10:40000", "", http.StatusOK},
		})
	})
}

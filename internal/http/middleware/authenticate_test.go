package middleware

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shelfmart/authcore/pkg/auth"
	"github.com/shelfmart/authcore/pkg/domain"
)

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func newTestCodec(t *testing.T) *auth.TokenCodec {
	t.Helper()
	return newTestCodecAt(t, time.Now)
}

func newTestCodecAt(t *testing.T, now func() time.Time) *auth.TokenCodec {
	t.Helper()
	codec, err := auth.NewTokenCodec(auth.TokenConfig{
		Secret: []byte("0123456789abcdef0123456789abcdef"),
		Issuer: "authcore-test",
		Now:    now,
	})
	if err != nil {
		t.Fatalf("NewTokenCodec() error = %v", err)
	}
	return codec
}

// principalRecorder records what the interceptor attached.
type principalRecorder struct {
	called    bool
	principal *auth.Principal
}

func (p *principalRecorder) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p.called = true
		p.principal, _ = auth.PrincipalFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})
}

type panicDecoder struct{}

func (panicDecoder) DecodeAccess(string) (*auth.Claims, error) { panic("boom") }

type staticSessions map[uuid.UUID]bool

func (s staticSessions) IsValid(_ context.Context, id uuid.UUID) bool { return s[id] }

func TestIsPublicPath(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"/health", true},
		{"/v1/auth/login", true},
		{"/v1/auth/register", true},
		{"/v1/auth/refresh", true},
		{"/v1/auth/password/reset-request", true},
		{"/v1/auth/password/reset", true},
		{"/v1/auth/password/reset/validate", true},
		{"/v1/test/ping", true},
		{"/v1/test", false},
		{"/v1/auth/logout", false},
		{"/v1/me", false},
		{"/v1/auth/login/extra", false},
	}
	for _, tt := range tests {
		if got := IsPublicPath(tt.path); got != tt.want {
			t.Errorf("IsPublicPath(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestAuthenticate(t *testing.T) {
	codec := newTestCodec(t)
	userID := uuid.New()
	sessionID := uuid.New()

	access, _, err := codec.IssueAccess(userID, domain.RoleManager, sessionID)
	if err != nil {
		t.Fatalf("IssueAccess() error = %v", err)
	}
	refresh, _, err := codec.IssueRefresh(userID, domain.RoleManager)
	if err != nil {
		t.Fatalf("IssueRefresh() error = %v", err)
	}
	past := newTestCodecAt(t, func() time.Time { return time.Now().Add(-time.Hour) })
	expired, err := past.Issue(userID, domain.UserTypeAdmin, domain.RoleAdmin, auth.TokenKindAccess, time.Minute)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	tests := []struct {
		name          string
		path          string
		header        string
		wantPrincipal bool
	}{
		{"public path with garbage header", "/v1/auth/login", "Bearer garbage", false},
		{"public path with valid token", "/health", "Bearer " + access, false},
		{"no header", "/v1/me", "", false},
		{"basic scheme", "/v1/me", "Basic dXNlcjpwYXNz", false},
		{"garbage token", "/v1/me", "Bearer not-a-jwt", false},
		{"refresh token", "/v1/me", "Bearer " + refresh, false},
		{"expired token", "/v1/me", "Bearer " + expired, false},
		{"tampered token", "/v1/me", "Bearer " + access[:len(access)-2] + "xx", false},
		{"valid token", "/v1/me", "Bearer " + access, true},
	}

	mw := Authenticate(AuthenticateConfig{Decoder: codec, Logger: testLogger})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &principalRecorder{}
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			mw(rec.handler()).ServeHTTP(w, req)

			if !rec.called {
				t.Fatal("handler was not reached")
			}
			if w.Code != http.StatusOK {
				t.Errorf("status = %d, want 200", w.Code)
			}
			if got := rec.principal != nil; got != tt.wantPrincipal {
				t.Fatalf("principal set = %v, want %v", got, tt.wantPrincipal)
			}
			if !tt.wantPrincipal {
				return
			}
			p := rec.principal
			if p.UserID != userID || p.SessionID != sessionID || p.Role != domain.RoleManager {
				t.Errorf("principal = %+v", p)
			}
			want := domain.NewAuthoritySet(domain.AuthorityUser, domain.AuthorityManager)
			if !p.Authorities.Equal(want) {
				t.Errorf("authorities = %v, want %v", p.Authorities.Strings(), want.Strings())
			}
		})
	}
}

func TestAuthenticate_PanicFailsClosed(t *testing.T) {
	rec := &principalRecorder{}
	req := httptest.NewRequest(http.MethodGet, "/v1/me", nil)
	req.Header.Set("Authorization", "Bearer anything")
	w := httptest.NewRecorder()

	Authenticate(AuthenticateConfig{Decoder: panicDecoder{}, Logger: testLogger})(rec.handler()).ServeHTTP(w, req)

	if !rec.called {
		t.Fatal("handler was not reached")
	}
	if rec.principal != nil {
		t.Error("principal must not be set after a panic")
	}
}

func TestAuthenticate_RevokedSession(t *testing.T) {
	codec := newTestCodec(t)
	live, revoked := uuid.New(), uuid.New()
	sessions := staticSessions{live: true}
	mw := Authenticate(AuthenticateConfig{Decoder: codec, Sessions: sessions, Logger: testLogger})

	for _, tc := range []struct {
		sessionID uuid.UUID
		want      bool
	}{{live, true}, {revoked, false}} {
		token, _, err := codec.IssueAccess(uuid.New(), domain.RoleCustomer, tc.sessionID)
		if err != nil {
			t.Fatalf("IssueAccess() error = %v", err)
		}
		rec := &principalRecorder{}
		req := httptest.NewRequest(http.MethodGet, "/v1/me", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		mw(rec.handler()).ServeHTTP(httptest.NewRecorder(), req)

		if got := rec.principal != nil; got != tc.want {
			t.Errorf("session %v: principal set = %v, want %v", tc.sessionID, got, tc.want)
		}
	}
}

func TestAuthenticate_PrincipalDoesNotLeakAcrossRequests(t *testing.T) {
	codec := newTestCodec(t)
	token, _, err := codec.IssueAccess(uuid.New(), domain.RoleAdmin, uuid.New())
	if err != nil {
		t.Fatalf("IssueAccess() error = %v", err)
	}
	handler := Authenticate(AuthenticateConfig{Decoder: codec, Logger: testLogger})

	first := &principalRecorder{}
	req := httptest.NewRequest(http.MethodGet, "/v1/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	handler(first.handler()).ServeHTTP(httptest.NewRecorder(), req)

	second := &principalRecorder{}
	handler(second.handler()).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/me", nil))

	if first.principal == nil {
		t.Fatal("first request should be authenticated")
	}
	if second.principal != nil {
		t.Error("second request must not inherit a principal")
	}
}

func TestRequireAuthority(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) })

	tests := []struct {
		name       string
		principal  *auth.Principal
		mw         func(http.Handler) http.Handler
		wantStatus int
	}{
		{"authenticated required, none", nil, RequireAuthenticated(), http.StatusUnauthorized},
		{"authenticated required, present", &auth.Principal{Authorities: auth.Expand(domain.RoleCustomer)}, RequireAuthenticated(), http.StatusNoContent},
		{"authority required, none", nil, RequireAuthority(domain.AuthorityAdmin), http.StatusUnauthorized},
		{"authority missing", &auth.Principal{Authorities: auth.Expand(domain.RoleModerator)}, RequireAuthority(domain.AuthorityAdmin), http.StatusForbidden},
		{"authority held", &auth.Principal{Authorities: auth.Expand(domain.RoleSuperAdmin)}, RequireAuthority(domain.AuthorityAdmin), http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/v1/admin/users/x/unlock", nil)
			if tt.principal != nil {
				req = req.WithContext(auth.WithPrincipal(req.Context(), tt.principal))
			}
			w := httptest.NewRecorder()
			tt.mw(ok).ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if tt.wantStatus >= 400 && strings.TrimSpace(w.Body.String()) != `{"error":"access denied"}` {
				t.Errorf("body = %s, want uniform access denied", w.Body.String())
			}
		})
	}
}

func TestRecover(t *testing.T) {
	handler := Recover(testLogger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("handler bug")
	}))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
}

func TestLogging(t *testing.T) {
	var buf strings.Builder
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	handler := Logging(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/brew", nil))

	out := buf.String()
	for _, want := range []string{`"path":"/brew"`, `"status":418`, `"method":"GET"`} {
		if !strings.Contains(out, want) {
			t.Errorf("log line %s missing %s", out, want)
		}
	}
}

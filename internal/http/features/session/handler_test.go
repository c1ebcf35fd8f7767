package session

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/shelfmart/authcore/pkg/auth"
	"github.com/shelfmart/authcore/pkg/domain"
)

type fakeService struct {
	refreshErr     error
	logoutErr      error
	loggedOut      []string
	revokedSession []uuid.UUID
	revokedUsers   []uuid.UUID
}

func (f *fakeService) Refresh(_ context.Context, token, _, _ string) (*domain.TokenPair, error) {
	if f.refreshErr != nil {
		return nil, f.refreshErr
	}
	return &domain.TokenPair{AccessToken: "new-access", RefreshToken: "new-refresh", TokenType: "Bearer"}, nil
}

func (f *fakeService) Logout(_ context.Context, token string) error {
	f.loggedOut = append(f.loggedOut, token)
	return f.logoutErr
}

func (f *fakeService) LogoutSession(_ context.Context, id uuid.UUID) error {
	f.revokedSession = append(f.revokedSession, id)
	return nil
}

func (f *fakeService) LogoutAll(_ context.Context, userID uuid.UUID) error {
	f.revokedUsers = append(f.revokedUsers, userID)
	return nil
}

func TestRefreshRequest_Validation(t *testing.T) {
	tests := []struct {
		name           string
		body           string
		expectedStatus int
		expectedError  string
	}{
		{
			name:           "empty body",
			body:           `{}`,
			expectedStatus: http.StatusBadRequest,
			expectedError:  "refresh_token is required",
		},
		{
			name:           "empty refresh_token",
			body:           `{"refresh_token": ""}`,
			expectedStatus: http.StatusBadRequest,
			expectedError:  "refresh_token is required",
		},
		{
			name:           "invalid json",
			body:           `{invalid}`,
			expectedStatus: http.StatusBadRequest,
			expectedError:  "invalid request body",
		},
	}

	handler := NewHandler(nil, nil)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/v1/auth/refresh", bytes.NewBufferString(tt.body))
			req.Header.Set("Content-Type", "application/json")
			rec := httptest.NewRecorder()

			defer func() {
				if r := recover(); r != nil {
					t.Errorf("Validation should have failed before reaching service")
				}
			}()

			handler.Refresh(rec, req)

			if rec.Code != tt.expectedStatus {
				t.Errorf("Status code = %d, want %d", rec.Code, tt.expectedStatus)
			}

			var response map[string]string
			json.NewDecoder(rec.Body).Decode(&response)
			if response["error"] != tt.expectedError {
				t.Errorf("Error = %q, want %q", response["error"], tt.expectedError)
			}
		})
	}
}

func TestRefresh_ErrorMapping(t *testing.T) {
	tests := []struct {
		name           string
		err            error
		expectedStatus int
	}{
		{"success", nil, http.StatusOK},
		{"reused token", domain.ErrInvalidOrExpiredToken, http.StatusUnauthorized},
		{"revoked session", domain.ErrSessionRevoked, http.StatusUnauthorized},
		{"locked", domain.ErrAccountLocked, http.StatusLocked},
		{"disabled", domain.ErrAccountDisabled, http.StatusForbidden},
		{"store failure", errors.New("db down"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewHandler(nil, &fakeService{refreshErr: tt.err})
			req := httptest.NewRequest(http.MethodPost, "/v1/auth/refresh", bytes.NewBufferString(`{"refresh_token":"r"}`))
			rec := httptest.NewRecorder()

			handler.Refresh(rec, req)

			if rec.Code != tt.expectedStatus {
				t.Errorf("Status code = %d, want %d", rec.Code, tt.expectedStatus)
			}
		})
	}
}

func TestLogout(t *testing.T) {
	sessionID := uuid.New()
	tests := []struct {
		name           string
		body           string
		principal      *auth.Principal
		expectedStatus int
		wantLogout     bool
		wantSession    bool
	}{
		{name: "refresh token in body", body: `{"refresh_token":"r"}`, expectedStatus: http.StatusNoContent, wantLogout: true},
		{name: "empty body without principal", body: ``, expectedStatus: http.StatusNoContent},
		{name: "empty token with principal", body: `{"refresh_token":""}`, principal: &auth.Principal{SessionID: sessionID}, expectedStatus: http.StatusNoContent, wantSession: true},
		{name: "invalid json", body: `{invalid}`, expectedStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &fakeService{logoutErr: errors.New("unusable")}
			handler := NewHandler(nil, svc)
			req := httptest.NewRequest(http.MethodPost, "/v1/auth/logout", bytes.NewBufferString(tt.body))
			if tt.principal != nil {
				req = req.WithContext(auth.WithPrincipal(req.Context(), tt.principal))
			}
			rec := httptest.NewRecorder()

			handler.Logout(rec, req)

			if rec.Code != tt.expectedStatus {
				t.Errorf("Status code = %d, want %d", rec.Code, tt.expectedStatus)
			}
			if got := len(svc.loggedOut) == 1; got != tt.wantLogout {
				t.Errorf("logout called = %v, want %v", got, tt.wantLogout)
			}
			if got := len(svc.revokedSession) == 1 && svc.revokedSession[0] == sessionID; got != tt.wantSession {
				t.Errorf("session revoked = %v, want %v", got, tt.wantSession)
			}
		})
	}
}

func TestLogoutAll(t *testing.T) {
	svc := &fakeService{}
	handler := NewHandler(nil, svc)

	rec := httptest.NewRecorder()
	handler.LogoutAll(rec, httptest.NewRequest(http.MethodPost, "/v1/auth/logout/all", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("Status code = %d, want %d", rec.Code, http.StatusUnauthorized)
	}

	userID := uuid.New()
	req := httptest.NewRequest(http.MethodPost, "/v1/auth/logout/all", nil)
	req = req.WithContext(auth.WithPrincipal(req.Context(), &auth.Principal{UserID: userID}))
	rec = httptest.NewRecorder()
	handler.LogoutAll(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Errorf("Status code = %d, want %d", rec.Code, http.StatusNoContent)
	}
	if len(svc.revokedUsers) != 1 || svc.revokedUsers[0] != userID {
		t.Errorf("revoked users = %v, want [%v]", svc.revokedUsers, userID)
	}
}

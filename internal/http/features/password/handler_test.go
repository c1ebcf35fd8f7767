package password

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/shelfmart/authcore/pkg/auth"
	"github.com/shelfmart/authcore/pkg/domain"
)

type fakeAuthenticator struct {
	loginErr    error
	registerErr error
	lastLogin   auth.LoginInput
}

func (f *fakeAuthenticator) Authenticate(_ context.Context, in auth.LoginInput) (*domain.TokenPair, error) {
	f.lastLogin = in
	if f.loginErr != nil {
		return nil, f.loginErr
	}
	return &domain.TokenPair{AccessToken: "access", RefreshToken: "refresh", TokenType: "Bearer", ExpiresIn: 900}, nil
}

func (f *fakeAuthenticator) Register(_ context.Context, in auth.RegisterInput) (*domain.User, *domain.TokenPair, error) {
	if f.registerErr != nil {
		return nil, nil, f.registerErr
	}
	user := &domain.User{ID: uuid.New(), Username: in.Username, Email: in.Email, Role: domain.RoleCustomer}
	return user, &domain.TokenPair{AccessToken: "access", RefreshToken: "refresh", TokenType: "Bearer"}, nil
}

type fakeReset struct {
	initiated []string
	valid     bool
	redeemErr error
	initErr   error
}

func (f *fakeReset) Initiate(_ context.Context, email string) error {
	f.initiated = append(f.initiated, email)
	return f.initErr
}

func (f *fakeReset) Validate(context.Context, string) bool { return f.valid }

func (f *fakeReset) Redeem(context.Context, string, string) error { return f.redeemErr }

func newHandler(svc *fakeAuthenticator, reset *fakeReset) *Handler {
	return NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), svc, reset)
}

func do(t *testing.T, h http.HandlerFunc, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h(rec, req)

	var response map[string]any
	_ = json.NewDecoder(rec.Body).Decode(&response)
	return rec, response
}

func TestLogin_ErrorMapping(t *testing.T) {
	tests := []struct {
		name           string
		err            error
		expectedStatus int
		expectedError  string
	}{
		{"invalid credentials", domain.ErrInvalidCredentials, http.StatusUnauthorized, "invalid credentials"},
		{"locked", domain.ErrAccountLocked, http.StatusLocked, "account temporarily locked due to too many failed login attempts"},
		{"disabled", domain.ErrAccountDisabled, http.StatusForbidden, "account disabled"},
		{"two factor required", domain.ErrTwoFactorRequired, http.StatusUnauthorized, "two_factor_required"},
		{"wrong two factor code", domain.ErrInvalidTwoFactorCode, http.StatusUnauthorized, "invalid two-factor code"},
		{"wrapped", fmt.Errorf("login: %w", domain.ErrInvalidCredentials), http.StatusUnauthorized, "invalid credentials"},
		{"store failure", errors.New("connection refused"), http.StatusInternalServerError, "authentication failed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHandler(&fakeAuthenticator{loginErr: tt.err}, &fakeReset{})
			rec, response := do(t, h.Login, "/v1/auth/login", `{"identifier":"alice","password":"secret"}`)

			if rec.Code != tt.expectedStatus {
				t.Errorf("Status code = %d, want %d", rec.Code, tt.expectedStatus)
			}
			if response["error"] != tt.expectedError {
				t.Errorf("Error = %q, want %q", response["error"], tt.expectedError)
			}
		})
	}
}

func TestLogin_Validation(t *testing.T) {
	tests := []struct {
		name           string
		body           string
		expectedStatus int
		expectedError  string
	}{
		{"empty body", `{}`, http.StatusBadRequest, "identifier and password are required"},
		{"missing password", `{"identifier":"alice"}`, http.StatusBadRequest, "identifier and password are required"},
		{"invalid json", `{invalid}`, http.StatusBadRequest, "invalid request body"},
		{"unknown field", `{"identifier":"a","password":"b","admin":true}`, http.StatusBadRequest, "invalid request body"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHandler(&fakeAuthenticator{}, &fakeReset{})
			rec, response := do(t, h.Login, "/v1/auth/login", tt.body)

			if rec.Code != tt.expectedStatus {
				t.Errorf("Status code = %d, want %d", rec.Code, tt.expectedStatus)
			}
			if response["error"] != tt.expectedError {
				t.Errorf("Error = %q, want %q", response["error"], tt.expectedError)
			}
		})
	}
}

func TestLogin_Success(t *testing.T) {
	svc := &fakeAuthenticator{}
	h := newHandler(svc, &fakeReset{})
	rec, response := do(t, h.Login, "/v1/auth/login", `{"identifier":"alice","password":"secret","totp_code":"123456"}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("Status code = %d, want 200", rec.Code)
	}
	if response["access_token"] != "access" || response["token_type"] != "Bearer" {
		t.Errorf("unexpected token response %v", response)
	}
	if svc.lastLogin.TOTPCode != "123456" || svc.lastLogin.Identifier != "alice" {
		t.Errorf("login input = %+v", svc.lastLogin)
	}
}

func TestRegister(t *testing.T) {
	tests := []struct {
		name           string
		body           string
		err            error
		expectedStatus int
	}{
		{"created", `{"username":"alice","email":"alice@example.com","password":"Str0ng!pass"}`, nil, http.StatusCreated},
		{"missing username", `{"email":"alice@example.com","password":"x"}`, nil, http.StatusBadRequest},
		{"duplicate", `{"username":"alice","email":"alice@example.com","password":"x"}`, domain.ErrUserAlreadyExists, http.StatusConflict},
		{"weak password", `{"username":"alice","email":"alice@example.com","password":"x"}`, fmt.Errorf("%w: too short", domain.ErrWeakPassword), http.StatusBadRequest},
		{"bad mobile", `{"username":"alice","email":"alice@example.com","mobile":"12","password":"x"}`, domain.ErrInvalidMobile, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHandler(&fakeAuthenticator{registerErr: tt.err}, &fakeReset{})
			rec, response := do(t, h.Register, "/v1/auth/register", tt.body)

			if rec.Code != tt.expectedStatus {
				t.Errorf("Status code = %d, want %d", rec.Code, tt.expectedStatus)
			}
			if tt.expectedStatus == http.StatusCreated {
				user, _ := response["user"].(map[string]any)
				if user["role"] != string(domain.RoleCustomer) {
					t.Errorf("user = %v", user)
				}
			}
		})
	}
}

func TestRequestPasswordReset_UniformResponse(t *testing.T) {
	reset := &fakeReset{}
	h := newHandler(&fakeAuthenticator{}, reset)

	var bodies []string
	for _, tc := range []struct {
		email string
		err   error
	}{
		{"known@example.com", nil},
		{"unknown@example.com", nil},
		{"broken@example.com", errors.New("db down")},
	} {
		reset.initErr = tc.err
		rec, _ := do(t, h.RequestPasswordReset, "/v1/auth/password/reset-request", `{"email":"`+tc.email+`"}`)
		if rec.Code != http.StatusOK {
			t.Errorf("%s: Status code = %d, want 200", tc.email, rec.Code)
		}
		bodies = append(bodies, rec.Body.String())
	}
	for _, b := range bodies[1:] {
		if b != bodies[0] {
			t.Errorf("responses differ: %q vs %q", b, bodies[0])
		}
	}
	if len(reset.initiated) != 3 {
		t.Errorf("initiated %d resets, want 3", len(reset.initiated))
	}
}

func TestValidateResetToken(t *testing.T) {
	for _, valid := range []bool{true, false} {
		h := newHandler(&fakeAuthenticator{}, &fakeReset{valid: valid})
		rec, response := do(t, h.ValidateResetToken, "/v1/auth/password/reset/validate", `{"token":"abc"}`)
		if rec.Code != http.StatusOK {
			t.Fatalf("Status code = %d, want 200", rec.Code)
		}
		if response["valid"] != valid {
			t.Errorf("valid = %v, want %v", response["valid"], valid)
		}
	}
}

func TestResetPassword(t *testing.T) {
	tests := []struct {
		name           string
		body           string
		err            error
		expectedStatus int
	}{
		{"success", `{"token":"abc","new_password":"N3w!password"}`, nil, http.StatusOK},
		{"missing token", `{"new_password":"N3w!password"}`, nil, http.StatusBadRequest},
		{"used token", `{"token":"abc","new_password":"N3w!password"}`, domain.ErrInvalidOrExpiredToken, http.StatusBadRequest},
		{"weak password", `{"token":"abc","new_password":"x"}`, domain.ErrWeakPassword, http.StatusBadRequest},
		{"store failure", `{"token":"abc","new_password":"N3w!password"}`, errors.New("db down"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHandler(&fakeAuthenticator{}, &fakeReset{redeemErr: tt.err})
			rec, _ := do(t, h.ResetPassword, "/v1/auth/password/reset", tt.body)
			if rec.Code != tt.expectedStatus {
				t.Errorf("Status code = %d, want %d", rec.Code, tt.expectedStatus)
			}
		})
	}
}

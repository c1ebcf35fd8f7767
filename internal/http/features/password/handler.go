package password

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/shelfmart/authcore/internal/httputil"
	"github.com/shelfmart/authcore/pkg/auth"
	"github.com/shelfmart/authcore/pkg/domain"
)

// Authenticator is the part of auth.AuthenticationService used here.
type Authenticator interface {
	Authenticate(ctx context.Context, in auth.LoginInput) (*domain.TokenPair, error)
	Register(ctx context.Context, in auth.RegisterInput) (*domain.User, *domain.TokenPair, error)
}

// ResetFlow is the part of auth.PasswordResetFlow used here.
type ResetFlow interface {
	Initiate(ctx context.Context, email string) error
	Validate(ctx context.Context, token string) bool
	Redeem(ctx context.Context, token, newPassword string) error
}

// Handler handles password authentication and password reset endpoints.
type Handler struct {
	logger  *slog.Logger
	service Authenticator
	reset   ResetFlow
}

// NewHandler creates a new password handler.
func NewHandler(logger *slog.Logger, service Authenticator, reset ResetFlow) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:  logger,
		service: service,
		reset:   reset,
	}
}

// RegisterRequest represents a registration request.
type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Mobile   string `json:"mobile,omitempty"`
	Password string `json:"password"`
}

// LoginRequest represents a login request. Identifier is a username,
// email or mobile number.
type LoginRequest struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
	TOTPCode   string `json:"totp_code,omitempty"`
}

// UserResponse is the public view of a newly registered user.
type UserResponse struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Role     string `json:"role"`
}

// RegisterResponse is returned by Register.
type RegisterResponse struct {
	User   UserResponse      `json:"user"`
	Tokens *domain.TokenPair `json:"tokens"`
}

// ResetRequest asks for a password reset email.
type ResetRequest struct {
	Email string `json:"email"`
}

// ValidateResetRequest checks a reset token without consuming it.
type ValidateResetRequest struct {
	Token string `json:"token"`
}

// ResetPasswordRequest redeems a reset token.
type ResetPasswordRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
}

const resetRequestedMessage = "if an account exists for that email, a reset link has been sent"

// Register handles customer self-registration.
// POST /v1/auth/register
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.DecodeError(w, err)
		return
	}
	if strings.TrimSpace(req.Username) == "" || strings.TrimSpace(req.Email) == "" || req.Password == "" {
		httputil.Error(w, http.StatusBadRequest, "username, email and password are required")
		return
	}

	user, tokens, err := h.service.Register(r.Context(), auth.RegisterInput{
		Username:  strings.TrimSpace(req.Username),
		Email:     req.Email,
		Mobile:    req.Mobile,
		Password:  req.Password,
		IP:        httputil.ClientIP(r),
		UserAgent: r.UserAgent(),
	})
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrUserAlreadyExists):
			httputil.Error(w, http.StatusConflict, "user already exists")
		case errors.Is(err, domain.ErrInvalidUsername):
			httputil.Error(w, http.StatusBadRequest, "invalid username format: must be 3-30 characters, alphanumeric/underscore/hyphen, start with alphanumeric")
		case errors.Is(err, domain.ErrInvalidEmail),
			errors.Is(err, domain.ErrInvalidMobile),
			errors.Is(err, domain.ErrWeakPassword):
			httputil.Error(w, http.StatusBadRequest, err.Error())
		default:
			h.logger.Error("registration failed", "error", err)
			httputil.Error(w, http.StatusInternalServerError, "registration failed")
		}
		return
	}

	httputil.JSON(w, http.StatusCreated, RegisterResponse{
		User: UserResponse{
			ID:       user.ID.String(),
			Username: user.Username,
			Email:    user.Email,
			Role:     string(user.Role),
		},
		Tokens: tokens,
	})
}

// Login handles password login.
// POST /v1/auth/login
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.DecodeError(w, err)
		return
	}
	if strings.TrimSpace(req.Identifier) == "" || req.Password == "" {
		httputil.Error(w, http.StatusBadRequest, "identifier and password are required")
		return
	}

	tokens, err := h.service.Authenticate(r.Context(), auth.LoginInput{
		Identifier: req.Identifier,
		Password:   req.Password,
		TOTPCode:   req.TOTPCode,
		IP:         httputil.ClientIP(r),
		UserAgent:  r.UserAgent(),
	})
	if err != nil {
		h.writeLoginError(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, tokens)
}

// writeLoginError maps login failures to fixed messages. Unknown users and
// wrong passwords share one answer.
func (h *Handler) writeLoginError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidCredentials):
		httputil.Error(w, http.StatusUnauthorized, "invalid credentials")
	case errors.Is(err, domain.ErrAccountLocked):
		httputil.Error(w, http.StatusLocked, "account temporarily locked due to too many failed login attempts")
	case errors.Is(err, domain.ErrAccountDisabled):
		httputil.Error(w, http.StatusForbidden, "account disabled")
	case errors.Is(err, domain.ErrTwoFactorRequired):
		httputil.Error(w, http.StatusUnauthorized, "two_factor_required")
	case errors.Is(err, domain.ErrInvalidTwoFactorCode):
		httputil.Error(w, http.StatusUnauthorized, "invalid two-factor code")
	default:
		h.logger.Error("login failed", "error", err)
		httputil.Error(w, http.StatusInternalServerError, "authentication failed")
	}
}

// RequestPasswordReset starts a password reset. The response is the same
// whether or not the email belongs to an account.
// POST /v1/auth/password/reset-request
func (h *Handler) RequestPasswordReset(w http.ResponseWriter, r *http.Request) {
	var req ResetRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.DecodeError(w, err)
		return
	}
	if strings.TrimSpace(req.Email) == "" {
		httputil.Error(w, http.StatusBadRequest, "email is required")
		return
	}

	if err := h.reset.Initiate(r.Context(), req.Email); err != nil {
		h.logger.Error("failed to initiate password reset", "error", err)
	}
	httputil.JSON(w, http.StatusOK, map[string]string{"message": resetRequestedMessage})
}

// ValidateResetToken reports whether a reset token can still be redeemed.
// POST /v1/auth/password/reset/validate
func (h *Handler) ValidateResetToken(w http.ResponseWriter, r *http.Request) {
	var req ValidateResetRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.DecodeError(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, map[string]bool{"valid": h.reset.Validate(r.Context(), req.Token)})
}

// ResetPassword redeems a reset token and sets a new password.
// POST /v1/auth/password/reset
func (h *Handler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req ResetPasswordRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.DecodeError(w, err)
		return
	}
	if req.Token == "" || req.NewPassword == "" {
		httputil.Error(w, http.StatusBadRequest, "token and new_password are required")
		return
	}

	if err := h.reset.Redeem(r.Context(), req.Token, req.NewPassword); err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidOrExpiredToken):
			httputil.Error(w, http.StatusBadRequest, "invalid or expired token")
		case errors.Is(err, domain.ErrWeakPassword):
			httputil.Error(w, http.StatusBadRequest, err.Error())
		default:
			h.logger.Error("failed to reset password", "error", err)
			httputil.Error(w, http.StatusInternalServerError, "failed to reset password")
		}
		return
	}
	httputil.JSON(w, http.StatusOK, map[string]string{"message": "password has been reset"})
}

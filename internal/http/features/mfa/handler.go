package mfa

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/shelfmart/authcore/internal/httputil"
	"github.com/shelfmart/authcore/pkg/auth"
	"github.com/shelfmart/authcore/pkg/domain"
)

// Service is the two-factor part of auth.AuthenticationService.
type Service interface {
	CurrentUser(ctx context.Context, userID uuid.UUID) (*domain.User, error)
	EnableTwoFactor(ctx context.Context, userID uuid.UUID) (*auth.Enrollment, error)
	ConfirmTwoFactor(ctx context.Context, userID uuid.UUID, code string) error
	DisableTwoFactor(ctx context.Context, userID uuid.UUID, code string) error
}

// Handler handles two-factor management for the current user.
type Handler struct {
	logger  *slog.Logger
	service Service
}

// NewHandler creates a new two-factor handler.
func NewHandler(logger *slog.Logger, service Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service}
}

// CodeRequest carries a TOTP code.
type CodeRequest struct {
	Code string `json:"code"`
}

// StatusResponse reports whether two-factor is enforced at login.
type StatusResponse struct {
	Enabled bool `json:"enabled"`
}

// Status handles GET /v1/me/2fa
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	p, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		httputil.Error(w, http.StatusUnauthorized, "access denied")
		return
	}
	user, err := h.service.CurrentUser(r.Context(), p.UserID)
	if err != nil {
		h.logger.Error("failed to get two-factor status", "user_id", p.UserID, "error", err)
		httputil.Error(w, http.StatusInternalServerError, "failed to get two-factor status")
		return
	}
	httputil.JSON(w, http.StatusOK, StatusResponse{Enabled: user.TwoFactorEnabled})
}

// Enroll handles POST /v1/me/2fa/enroll. The returned secret is shown once.
func (h *Handler) Enroll(w http.ResponseWriter, r *http.Request) {
	p, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		httputil.Error(w, http.StatusUnauthorized, "access denied")
		return
	}

	enrollment, err := h.service.EnableTwoFactor(r.Context(), p.UserID)
	if err != nil {
		h.writeError(w, p.UserID, err, "failed to enroll two-factor")
		return
	}
	httputil.JSON(w, http.StatusOK, enrollment)
}

// Confirm handles POST /v1/me/2fa/confirm. The first valid code enables
// two-factor at login.
func (h *Handler) Confirm(w http.ResponseWriter, r *http.Request) {
	p, code, ok := h.codeRequest(w, r)
	if !ok {
		return
	}
	if err := h.service.ConfirmTwoFactor(r.Context(), p.UserID, code); err != nil {
		h.writeError(w, p.UserID, err, "failed to confirm two-factor")
		return
	}
	httputil.JSON(w, http.StatusOK, StatusResponse{Enabled: true})
}

// Disable handles POST /v1/me/2fa/disable. An enabled setup needs a
// current code.
func (h *Handler) Disable(w http.ResponseWriter, r *http.Request) {
	p, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		httputil.Error(w, http.StatusUnauthorized, "access denied")
		return
	}
	var req CodeRequest
	if r.ContentLength != 0 {
		if err := httputil.DecodeJSON(r, &req); err != nil {
			httputil.DecodeError(w, err)
			return
		}
	}
	if err := h.service.DisableTwoFactor(r.Context(), p.UserID, req.Code); err != nil {
		h.writeError(w, p.UserID, err, "failed to disable two-factor")
		return
	}
	httputil.JSON(w, http.StatusOK, StatusResponse{Enabled: false})
}

func (h *Handler) codeRequest(w http.ResponseWriter, r *http.Request) (*auth.Principal, string, bool) {
	p, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		httputil.Error(w, http.StatusUnauthorized, "access denied")
		return nil, "", false
	}
	var req CodeRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.DecodeError(w, err)
		return nil, "", false
	}
	code := strings.TrimSpace(req.Code)
	if code == "" {
		httputil.Error(w, http.StatusBadRequest, "code is required")
		return nil, "", false
	}
	return p, code, true
}

func (h *Handler) writeError(w http.ResponseWriter, userID uuid.UUID, err error, fallback string) {
	switch {
	case errors.Is(err, domain.ErrInvalidTwoFactorCode):
		httputil.Error(w, http.StatusBadRequest, "invalid two-factor code")
	case errors.Is(err, domain.ErrTwoFactorNotEnrolled):
		httputil.Error(w, http.StatusBadRequest, "two-factor enrollment not started")
	case errors.Is(err, domain.ErrTwoFactorAlreadyEnabled):
		httputil.Error(w, http.StatusConflict, "two-factor authentication is already enabled")
	case errors.Is(err, domain.ErrAccountLocked):
		httputil.Error(w, http.StatusLocked, "account temporarily locked due to too many failed attempts")
	case errors.Is(err, domain.ErrTwoFactorUnavailable):
		httputil.Error(w, http.StatusNotImplemented, "two-factor authentication is not available")
	default:
		h.logger.Error(fallback, "user_id", userID, "error", err)
		httputil.Error(w, http.StatusInternalServerError, fallback)
	}
}

package session

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/shelfmart/authcore/internal/httputil"
	"github.com/shelfmart/authcore/pkg/auth"
	"github.com/shelfmart/authcore/pkg/domain"
)

// Service is the part of auth.AuthenticationService used here.
type Service interface {
	Refresh(ctx context.Context, refreshToken, ip, userAgent string) (*domain.TokenPair, error)
	Logout(ctx context.Context, refreshToken string) error
	LogoutSession(ctx context.Context, sessionID uuid.UUID) error
	LogoutAll(ctx context.Context, userID uuid.UUID) error
}

// Handler handles session endpoints.
type Handler struct {
	logger  *slog.Logger
	service Service
}

// NewHandler creates a new session handler.
func NewHandler(logger *slog.Logger, service Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service}
}

// RefreshRequest represents a token refresh request.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// LogoutRequest represents a logout request.
type LogoutRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// Refresh exchanges a refresh token for a new token pair.
// POST /v1/auth/refresh
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.DecodeError(w, err)
		return
	}
	if req.RefreshToken == "" {
		httputil.Error(w, http.StatusBadRequest, "refresh_token is required")
		return
	}

	tokens, err := h.service.Refresh(r.Context(), req.RefreshToken, httputil.ClientIP(r), r.UserAgent())
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidOrExpiredToken),
			errors.Is(err, domain.ErrSessionNotFound),
			errors.Is(err, domain.ErrSessionRevoked):
			httputil.Error(w, http.StatusUnauthorized, "invalid or expired refresh token")
		case errors.Is(err, domain.ErrAccountLocked):
			httputil.Error(w, http.StatusLocked, "account temporarily locked due to too many failed login attempts")
		case errors.Is(err, domain.ErrAccountDisabled):
			httputil.Error(w, http.StatusForbidden, "account disabled")
		default:
			h.logger.Error("failed to refresh token", "error", err)
			httputil.Error(w, http.StatusInternalServerError, "failed to refresh token")
		}
		return
	}

	httputil.JSON(w, http.StatusOK, tokens)
}

// Logout revokes a session. The body's refresh token wins; without one the
// session of the authenticated access token is revoked. The answer is 204
// either way so the endpoint does not reveal which tokens exist.
// POST /v1/auth/logout
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	var req LogoutRequest
	if r.ContentLength != 0 {
		if err := httputil.DecodeJSON(r, &req); err != nil {
			httputil.DecodeError(w, err)
			return
		}
	}

	switch {
	case req.RefreshToken != "":
		if err := h.service.Logout(r.Context(), req.RefreshToken); err != nil {
			h.logger.Debug("logout with unusable refresh token", "error", err)
		}
	default:
		if p, ok := auth.PrincipalFromContext(r.Context()); ok && p.SessionID != uuid.Nil {
			if err := h.service.LogoutSession(r.Context(), p.SessionID); err != nil {
				h.logger.Error("failed to revoke session", "session_id", p.SessionID, "error", err)
			}
		}
	}

	w.WriteHeader(http.StatusNoContent)
}

// LogoutAll revokes all sessions for the current user.
// POST /v1/auth/logout/all
// Requires authentication
func (h *Handler) LogoutAll(w http.ResponseWriter, r *http.Request) {
	p, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		httputil.Error(w, http.StatusUnauthorized, "access denied")
		return
	}

	if err := h.service.LogoutAll(r.Context(), p.UserID); err != nil {
		h.logger.Error("failed to revoke sessions", "user_id", p.UserID, "error", err)
		httputil.Error(w, http.StatusInternalServerError, "failed to logout all sessions")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

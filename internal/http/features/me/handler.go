package me

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shelfmart/authcore/internal/httputil"
	"github.com/shelfmart/authcore/pkg/auth"
	"github.com/shelfmart/authcore/pkg/domain"
)

// UserLookup returns the user behind a principal.
type UserLookup interface {
	CurrentUser(ctx context.Context, userID uuid.UUID) (*domain.User, error)
}

// Handler handles user profile endpoints.
type Handler struct {
	logger *slog.Logger
	users  UserLookup
}

// NewHandler creates a new me handler.
func NewHandler(logger *slog.Logger, users UserLookup) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, users: users}
}

// UserResponse represents the user profile response.
type UserResponse struct {
	ID               string    `json:"id"`
	Username         string    `json:"username"`
	Email            string    `json:"email"`
	Mobile           *string   `json:"mobile,omitempty"`
	Role             string    `json:"role"`
	UserType         string    `json:"user_type"`
	Status           string    `json:"status"`
	Authorities      []string  `json:"authorities"`
	EmailVerified    bool      `json:"email_verified"`
	MobileVerified   bool      `json:"mobile_verified"`
	TwoFactorEnabled bool      `json:"two_factor_enabled"`
	CreatedAt        time.Time `json:"created_at"`
}

// GetMe returns the current user's profile. Authorities come from the
// access token, so a role change shows up after the next refresh.
// GET /v1/me
func (h *Handler) GetMe(w http.ResponseWriter, r *http.Request) {
	p, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		httputil.Error(w, http.StatusUnauthorized, "access denied")
		return
	}

	user, err := h.users.CurrentUser(r.Context(), p.UserID)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			httputil.Error(w, http.StatusNotFound, "user not found")
			return
		}
		h.logger.Error("failed to load user", "user_id", p.UserID, "error", err)
		httputil.Error(w, http.StatusInternalServerError, "failed to load user")
		return
	}

	httputil.JSON(w, http.StatusOK, UserResponse{
		ID:               user.ID.String(),
		Username:         user.Username,
		Email:            user.Email,
		Mobile:           user.Mobile,
		Role:             string(user.Role),
		UserType:         string(user.UserType()),
		Status:           string(user.Status),
		Authorities:      p.Authorities.Strings(),
		EmailVerified:    user.EmailVerified,
		MobileVerified:   user.MobileVerified,
		TwoFactorEnabled: user.TwoFactorEnabled,
		CreatedAt:        user.CreatedAt,
	})
}

// Package admin serves administrative account operations.
package admin

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shelfmart/authcore/internal/httputil"
	"github.com/shelfmart/authcore/pkg/auth"
	"github.com/shelfmart/authcore/pkg/domain"
)

// Unlocker clears an account lockout.
type Unlocker interface {
	UnlockAccount(ctx context.Context, userID uuid.UUID) error
}

// Handler handles admin endpoints. Routes must sit behind
// middleware.RequireAuthority.
type Handler struct {
	logger   *slog.Logger
	unlocker Unlocker
}

// NewHandler creates a new admin handler.
func NewHandler(logger *slog.Logger, unlocker Unlocker) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, unlocker: unlocker}
}

// Unlock clears the lockout of a user. Suspended and deactivated accounts
// stay that way.
// POST /v1/admin/users/{id}/unlock
func (h *Handler) Unlock(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid user id")
		return
	}

	if err := h.unlocker.UnlockAccount(r.Context(), userID); err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			httputil.Error(w, http.StatusNotFound, "user not found")
			return
		}
		h.logger.Error("failed to unlock account", "user_id", userID, "error", err)
		httputil.Error(w, http.StatusInternalServerError, "failed to unlock account")
		return
	}

	actor := uuid.Nil
	if p, ok := auth.PrincipalFromContext(r.Context()); ok {
		actor = p.UserID
	}
	h.logger.Info("account unlocked by admin", "user_id", userID, "admin_id", actor)
	w.WriteHeader(http.StatusNoContent)
}

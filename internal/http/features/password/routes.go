package password

import "github.com/go-chi/chi/v5"

// RegisterAuthRoutes registers the login and registration routes.
func (h *Handler) RegisterAuthRoutes(r chi.Router) {
	r.Post("/v1/auth/register", h.Register)
	r.Post("/v1/auth/login", h.Login)
}

// RegisterResetRoutes registers the password reset routes.
func (h *Handler) RegisterResetRoutes(r chi.Router) {
	r.Post("/v1/auth/password/reset-request", h.RequestPasswordReset)
	r.Post("/v1/auth/password/reset", h.ResetPassword)
}

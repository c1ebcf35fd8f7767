package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shelfmart/authcore/pkg/domain"
)

// SessionMeta is client information recorded with a session.
type SessionMeta struct {
	IP        string
	UserAgent string
}

// SessionRegistryConfig configures a SessionRegistry.
type SessionRegistryConfig struct {
	// TTL is the session lifetime; it matches the refresh token lifetime.
	TTL time.Duration
	// DetectReuse revokes every session of a user when an already rotated
	// refresh token is presented again.
	DetectReuse bool
	Now         func() time.Time
	Logger      *slog.Logger
}

// SessionRegistry owns the server-side session lifecycle. A session is
// valid while it is neither revoked nor expired.
type SessionRegistry struct {
	store       SessionStore
	ttl         time.Duration
	detectReuse bool
	now         func() time.Time
	logger      *slog.Logger
}

// NewSessionRegistry creates a registry backed by store.
func NewSessionRegistry(store SessionStore, cfg SessionRegistryConfig) *SessionRegistry {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultRefreshTokenTTL
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &SessionRegistry{
		store:       store,
		ttl:         cfg.TTL,
		detectReuse: cfg.DetectReuse,
		now:         cfg.Now,
		logger:      cfg.Logger,
	}
}

func (r *SessionRegistry) newSession(userID uuid.UUID, refreshHash string, meta SessionMeta) *domain.Session {
	now := r.now()
	return &domain.Session{
		ID:               uuid.New(),
		UserID:           userID,
		RefreshTokenHash: refreshHash,
		IP:               meta.IP,
		UserAgent:        meta.UserAgent,
		CreatedAt:        now,
		ExpiresAt:        now.Add(r.ttl),
	}
}

// CreateSession records a new session for a refresh token hash.
func (r *SessionRegistry) CreateSession(ctx context.Context, userID uuid.UUID, refreshHash string, meta SessionMeta) (uuid.UUID, error) {
	session := r.newSession(userID, refreshHash, meta)
	if err := r.store.CreateSession(ctx, session); err != nil {
		return uuid.Nil, fmt.Errorf("failed to create session: %w", err)
	}
	return session.ID, nil
}

// IsValid reports whether sessionID exists and is live. Lookup failures
// count as invalid.
func (r *SessionRegistry) IsValid(ctx context.Context, sessionID uuid.UUID) bool {
	session, err := r.store.GetSession(ctx, sessionID)
	if err != nil {
		if !errors.Is(err, domain.ErrSessionNotFound) {
			r.logger.Error("session lookup failed", "session_id", sessionID, "error", err)
		}
		return false
	}
	return session.IsValid(r.now())
}

// Revoke ends a session. Revoking an unknown or already revoked session
// returns domain.ErrSessionNotFound.
func (r *SessionRegistry) Revoke(ctx context.Context, sessionID uuid.UUID) error {
	return r.store.RevokeSession(ctx, sessionID, r.now())
}

// RevokeAllForUser ends every session of userID.
func (r *SessionRegistry) RevokeAllForUser(ctx context.Context, userID uuid.UUID) error {
	n, err := r.store.RevokeUserSessions(ctx, userID, r.now())
	if err != nil {
		return fmt.Errorf("failed to revoke sessions: %w", err)
	}
	r.logger.Info("revoked all sessions", "user_id", userID, "count", n)
	return nil
}

// FindByRefreshHash returns the session for a refresh token hash, revoked or not.
func (r *SessionRegistry) FindByRefreshHash(ctx context.Context, refreshHash string) (*domain.Session, error) {
	return r.store.GetSessionByTokenHash(ctx, refreshHash)
}

// Get returns a session by id.
func (r *SessionRegistry) Get(ctx context.Context, sessionID uuid.UUID) (*domain.Session, error) {
	return r.store.GetSession(ctx, sessionID)
}

// Rotate revokes the live session holding oldHash and creates its successor
// holding newHash in one atomic step. Exactly one of several concurrent
// rotations of the same hash succeeds; the others get
// domain.ErrInvalidOrExpiredToken.
func (r *SessionRegistry) Rotate(ctx context.Context, userID uuid.UUID, oldHash, newHash string, meta SessionMeta) (*domain.Session, error) {
	next := r.newSession(userID, newHash, meta)
	if _, err := r.store.RotateSession(ctx, oldHash, next, r.now()); err != nil {
		if errors.Is(err, domain.ErrInvalidOrExpiredToken) {
			r.handleStaleRefresh(ctx, oldHash)
		}
		return nil, err
	}
	return next, nil
}

// handleStaleRefresh revokes all sessions of the owner when a rotated token
// is replayed and reuse detection is on.
func (r *SessionRegistry) handleStaleRefresh(ctx context.Context, oldHash string) {
	if !r.detectReuse {
		return
	}
	session, err := r.store.GetSessionByTokenHash(ctx, oldHash)
	if err != nil || !session.IsRevoked() {
		return
	}

	r.logger.Warn("refresh token reuse detected, revoking all sessions",
		"user_id", session.UserID,
		"session_id", session.ID,
	)
	if _, err := r.store.RevokeUserSessions(ctx, session.UserID, r.now()); err != nil {
		r.logger.Error("failed to revoke sessions after token reuse", "user_id", session.UserID, "error", err)
	}
}

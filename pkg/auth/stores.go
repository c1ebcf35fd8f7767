package auth

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shelfmart/authcore/pkg/domain"
)

// UserStore is the identity store. Implementations return
// domain.ErrUserNotFound for missing users.
type UserStore interface {
	GetUserByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
	// GetUserByIdentifier looks a user up by username, email or mobile number.
	GetUserByIdentifier(ctx context.Context, identifier string) (*domain.User, error)
	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)
	// CreateUser returns domain.ErrUserAlreadyExists on a username, email or mobile clash.
	CreateUser(ctx context.Context, user *domain.User) error
	UpdatePasswordHash(ctx context.Context, id uuid.UUID, hash string) error
	// SetStatus is the administrative status change. It is the only way out of DEACTIVATED.
	SetStatus(ctx context.Context, id uuid.UUID, status domain.AccountStatus) error
}

// SessionStore persists sessions. Every method must be safe for concurrent use.
type SessionStore interface {
	CreateSession(ctx context.Context, session *domain.Session) error
	GetSession(ctx context.Context, id uuid.UUID) (*domain.Session, error)
	// GetSessionByTokenHash returns the session for a refresh token hash,
	// including revoked ones.
	GetSessionByTokenHash(ctx context.Context, tokenHash string) (*domain.Session, error)
	// RevokeSession returns domain.ErrSessionNotFound when no unrevoked session matched.
	RevokeSession(ctx context.Context, id uuid.UUID, at time.Time) error
	RevokeUserSessions(ctx context.Context, userID uuid.UUID, at time.Time) (int, error)
	// RotateSession atomically revokes the live session holding oldHash and
	// owned by next.UserID, then inserts next. It returns the revoked session,
	// or domain.ErrInvalidOrExpiredToken if no live session matched. Of two
	// concurrent calls with the same oldHash at most one succeeds.
	RotateSession(ctx context.Context, oldHash string, next *domain.Session, now time.Time) (*domain.Session, error)
}

// LockoutStore keeps per-user failed login state with atomic per-key updates.
type LockoutStore interface {
	GetLockout(ctx context.Context, userID uuid.UUID) (domain.LockoutState, error)
	// ReserveAttempt fails with domain.ErrAccountLocked, returning the current
	// state, when a lock is active at now. Otherwise it increments the counter
	// and locks the account until now+policy.Duration once the counter reaches
	// the threshold. Check and increment are one atomic step.
	ReserveAttempt(ctx context.Context, userID uuid.UUID, policy domain.LockoutPolicy, now time.Time) (domain.LockoutState, error)
	// ReleaseAttempt zeroes the counter and clears the lock, failing with
	// domain.ErrAccountLocked when a lock is active at now whose locked_at is
	// not ownedLock.
	ReleaseAttempt(ctx context.Context, userID uuid.UUID, ownedLock *time.Time, now time.Time) error
	// ResetFailures zeroes the counter and clears a lock that has elapsed at now.
	ResetFailures(ctx context.Context, userID uuid.UUID, now time.Time) error
	// ClearLockout zeroes the counter and removes any lock.
	ClearLockout(ctx context.Context, userID uuid.UUID) error
}

// ResetTokenStore persists password reset tokens.
type ResetTokenStore interface {
	// CreateResetToken stores token and consumes every other live token of the same user.
	CreateResetToken(ctx context.Context, token *domain.ResetToken) error
	// GetResetToken returns domain.ErrInvalidOrExpiredToken when the hash is unknown.
	GetResetToken(ctx context.Context, tokenHash string) (*domain.ResetToken, error)
	// RedeemResetToken consumes the live token and writes passwordHash to its
	// user in one atomic step, returning the user id. It returns
	// domain.ErrInvalidOrExpiredToken when the token is unknown, consumed or
	// expired at now.
	RedeemResetToken(ctx context.Context, tokenHash, passwordHash string, now time.Time) (uuid.UUID, error)
}

// TwoFactorStore persists the TOTP secret and enabled flag of a user.
type TwoFactorStore interface {
	// SaveTwoFactorSecret stores secret with the enabled flag cleared.
	SaveTwoFactorSecret(ctx context.Context, userID uuid.UUID, secret string) error
	// GetTwoFactor returns domain.ErrTwoFactorNotEnrolled when no secret is stored.
	GetTwoFactor(ctx context.Context, userID uuid.UUID) (secret string, enabled bool, err error)
	EnableTwoFactor(ctx context.Context, userID uuid.UUID) error
	ClearTwoFactor(ctx context.Context, userID uuid.UUID) error
}

// ResetNotifier delivers reset tokens out of band.
type ResetNotifier interface {
	SendPasswordReset(ctx context.Context, user *domain.User, token string, expiresAt time.Time) error
}

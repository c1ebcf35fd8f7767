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

const (
	DefaultLockoutThreshold = 5
	DefaultLockoutDuration  = 15 * time.Minute
)

// LockoutConfig configures an AccountSecurityGuard.
type LockoutConfig struct {
	Threshold int
	Duration  time.Duration
	Now       func() time.Time
	Logger    *slog.Logger
}

// AccountSecurityGuard tracks failed logins and locks accounts that cross
// the threshold. Lock expiry is evaluated lazily on the next check.
type AccountSecurityGuard struct {
	store  LockoutStore
	policy domain.LockoutPolicy
	now    func() time.Time
	logger *slog.Logger
}

// NewAccountSecurityGuard creates a guard backed by store.
func NewAccountSecurityGuard(store LockoutStore, cfg LockoutConfig) *AccountSecurityGuard {
	if cfg.Threshold <= 0 {
		cfg.Threshold = DefaultLockoutThreshold
	}
	if cfg.Duration <= 0 {
		cfg.Duration = DefaultLockoutDuration
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &AccountSecurityGuard{
		store:  store,
		policy: domain.LockoutPolicy{Threshold: cfg.Threshold, Duration: cfg.Duration},
		now:    cfg.Now,
		logger: cfg.Logger,
	}
}

// Policy returns the effective threshold and duration.
func (g *AccountSecurityGuard) Policy() domain.LockoutPolicy {
	return g.policy
}

// IsLocked reports whether userID is locked right now. Callers must treat an
// error as locked.
func (g *AccountSecurityGuard) IsLocked(ctx context.Context, userID uuid.UUID) (bool, error) {
	state, err := g.store.GetLockout(ctx, userID)
	if err != nil {
		return true, fmt.Errorf("failed to read lockout state: %w", err)
	}
	return state.IsLocked(g.now()), nil
}

// State returns the raw lockout state of userID.
func (g *AccountSecurityGuard) State(ctx context.Context, userID uuid.UUID) (domain.LockoutState, error) {
	return g.store.GetLockout(ctx, userID)
}

// Attempt is a login attempt counted as a failure before its credentials
// are checked. CompleteAttempt gives it back once they prove correct.
type Attempt struct {
	UserID uuid.UUID
	State  domain.LockoutState

	// lockedAt is set when this attempt crossed the threshold itself.
	lockedAt *time.Time
}

// BeginAttempt reserves a login attempt for userID. It returns
// domain.ErrAccountLocked while a lock is in force, so at most threshold
// attempts per lock window ever reach credential verification.
func (g *AccountSecurityGuard) BeginAttempt(ctx context.Context, userID uuid.UUID) (*Attempt, error) {
	now := g.now()
	state, err := g.store.ReserveAttempt(ctx, userID, g.policy, now)
	if errors.Is(err, domain.ErrAccountLocked) {
		return nil, domain.ErrAccountLocked
	}
	if err != nil {
		return nil, fmt.Errorf("failed to reserve login attempt: %w", err)
	}

	attempt := &Attempt{UserID: userID, State: state}
	if state.IsLocked(now) {
		g.logLocked(userID, state)
		if state.LockedAt != nil {
			t := *state.LockedAt
			attempt.lockedAt = &t
		}
	}
	return attempt, nil
}

// CompleteAttempt resets the counter after a successful attempt. It fails
// with domain.ErrAccountLocked when another attempt locked the account in
// the meantime.
func (g *AccountSecurityGuard) CompleteAttempt(ctx context.Context, attempt *Attempt) error {
	err := g.store.ReleaseAttempt(ctx, attempt.UserID, attempt.lockedAt, g.now())
	if errors.Is(err, domain.ErrAccountLocked) {
		return domain.ErrAccountLocked
	}
	if err != nil {
		return fmt.Errorf("failed to release login attempt: %w", err)
	}
	return nil
}

// RecordFailure counts a failed attempt. Failures during an active lock do
// not extend it.
func (g *AccountSecurityGuard) RecordFailure(ctx context.Context, userID uuid.UUID) (domain.LockoutState, error) {
	now := g.now()
	state, err := g.store.ReserveAttempt(ctx, userID, g.policy, now)
	if errors.Is(err, domain.ErrAccountLocked) {
		return state, nil
	}
	if err != nil {
		return state, fmt.Errorf("failed to record login failure: %w", err)
	}
	if state.IsLocked(now) {
		g.logLocked(userID, state)
	}
	return state, nil
}

func (g *AccountSecurityGuard) logLocked(userID uuid.UUID, state domain.LockoutState) {
	g.logger.Warn("account locked after repeated login failures",
		"user_id", userID,
		"failed_attempts", state.FailedAttempts,
		"locked_until", state.LockedUntil,
	)
}

// RecordSuccess resets the failure counter unconditionally.
func (g *AccountSecurityGuard) RecordSuccess(ctx context.Context, userID uuid.UUID) error {
	if err := g.store.ResetFailures(ctx, userID, g.now()); err != nil {
		return fmt.Errorf("failed to reset login failures: %w", err)
	}
	return nil
}

// Unlock is the administrative unlock: the counter and any lock are cleared.
func (g *AccountSecurityGuard) Unlock(ctx context.Context, userID uuid.UUID) error {
	if err := g.store.ClearLockout(ctx, userID); err != nil {
		return fmt.Errorf("failed to unlock account: %w", err)
	}
	g.logger.Info("account unlocked", "user_id", userID)
	return nil
}

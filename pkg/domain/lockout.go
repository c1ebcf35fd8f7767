package domain

import "time"

// LockoutState is the failed-login bookkeeping for one user.
type LockoutState struct {
	FailedAttempts int
	LockedUntil    *time.Time
	LockedAt       *time.Time
}

// IsLocked reports whether the lock is still in force at now.
func (s LockoutState) IsLocked(now time.Time) bool {
	return s.LockedUntil != nil && now.Before(*s.LockedUntil)
}

// Remaining returns how long the lock still lasts, or zero.
func (s LockoutState) Remaining(now time.Time) time.Duration {
	if !s.IsLocked(now) {
		return 0
	}
	return s.LockedUntil.Sub(now)
}

// LockoutPolicy configures when failed logins lock an account.
type LockoutPolicy struct {
	Threshold int
	Duration  time.Duration
}

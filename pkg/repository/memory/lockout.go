package memory

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shelfmart/authcore/pkg/domain"
)

// Lockout state is kept per user id and mirrored onto the user record
// when the user exists, flipping ACTIVE and LOCKED.

func (s *Store) GetLockout(ctx context.Context, userID uuid.UUID) (domain.LockoutState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if st, ok := s.lockouts[userID]; ok {
		return cloneLockout(st), nil
	}
	return domain.LockoutState{}, nil
}

func (s *Store) ReserveAttempt(ctx context.Context, userID uuid.UUID, policy domain.LockoutPolicy, now time.Time) (domain.LockoutState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.lockouts[userID]
	if !ok {
		st = &domain.LockoutState{}
		s.lockouts[userID] = st
	}
	if st.IsLocked(now) {
		return cloneLockout(st), domain.ErrAccountLocked
	}

	st.FailedAttempts++
	if st.FailedAttempts >= policy.Threshold {
		until := now.Add(policy.Duration)
		lockedAt := now
		st.LockedUntil = &until
		st.LockedAt = &lockedAt
	}
	s.mirrorLocked(userID, st)
	return cloneLockout(st), nil
}

func (s *Store) ReleaseAttempt(ctx context.Context, userID uuid.UUID, ownedLock *time.Time, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.lockouts[userID]
	if !ok {
		return nil
	}
	if st.IsLocked(now) && (ownedLock == nil || st.LockedAt == nil || !st.LockedAt.Equal(*ownedLock)) {
		return domain.ErrAccountLocked
	}
	st.FailedAttempts = 0
	st.LockedUntil = nil
	st.LockedAt = nil
	s.mirrorLocked(userID, st)
	return nil
}

func (s *Store) ResetFailures(ctx context.Context, userID uuid.UUID, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.lockouts[userID]
	if !ok {
		return nil
	}
	st.FailedAttempts = 0
	if st.LockedUntil != nil && !now.Before(*st.LockedUntil) {
		st.LockedUntil = nil
		st.LockedAt = nil
	}
	s.mirrorLocked(userID, st)
	return nil
}

func (s *Store) ClearLockout(ctx context.Context, userID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := &domain.LockoutState{}
	s.lockouts[userID] = st
	s.mirrorLocked(userID, st)
	return nil
}

func (s *Store) mirrorLocked(userID uuid.UUID, st *domain.LockoutState) {
	u, ok := s.users[userID]
	if !ok {
		return
	}
	u.FailedLoginAttempts = st.FailedAttempts
	u.LockedUntil = nil
	if st.LockedUntil != nil {
		t := *st.LockedUntil
		u.LockedUntil = &t
	}

	switch {
	case u.Status == domain.StatusActive && st.LockedUntil != nil:
		u.Status = domain.StatusLocked
	case u.Status == domain.StatusLocked && st.LockedUntil == nil:
		u.Status = domain.StatusActive
	}
}

func cloneLockout(st *domain.LockoutState) domain.LockoutState {
	cp := *st
	if st.LockedUntil != nil {
		t := *st.LockedUntil
		cp.LockedUntil = &t
	}
	if st.LockedAt != nil {
		t := *st.LockedAt
		cp.LockedAt = &t
	}
	return cp
}

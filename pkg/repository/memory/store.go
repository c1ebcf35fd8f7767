// Package memory implements every auth store port in process memory. It is
// used for tests and single-instance deployments; one mutex guards all
// state so each operation is atomic.
package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shelfmart/authcore/pkg/domain"
)

// Store holds users, sessions, reset tokens and lockout state.
type Store struct {
	mu             sync.Mutex
	users          map[uuid.UUID]*domain.User
	sessions       map[uuid.UUID]*domain.Session
	sessionsByHash map[string]uuid.UUID
	resetTokens    map[string]*domain.ResetToken
	lockouts       map[uuid.UUID]*domain.LockoutState
}

// New creates an empty store.
func New() *Store {
	return &Store{
		users:          make(map[uuid.UUID]*domain.User),
		sessions:       make(map[uuid.UUID]*domain.Session),
		sessionsByHash: make(map[string]uuid.UUID),
		resetTokens:    make(map[string]*domain.ResetToken),
		lockouts:       make(map[uuid.UUID]*domain.LockoutState),
	}
}

// Users

func (s *Store) GetUserByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return cloneUser(u), nil
}

func (s *Store) GetUserByIdentifier(ctx context.Context, identifier string) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.users {
		if strings.EqualFold(u.Username, identifier) || strings.EqualFold(u.Email, identifier) ||
			(u.Mobile != nil && *u.Mobile == identifier) {
			return cloneUser(u), nil
		}
	}
	return nil, domain.ErrUserNotFound
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.users {
		if strings.EqualFold(u.Email, email) {
			return cloneUser(u), nil
		}
	}
	return nil, domain.ErrUserNotFound
}

func (s *Store) CreateUser(ctx context.Context, user *domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[user.ID]; ok {
		return domain.ErrUserAlreadyExists
	}
	for _, u := range s.users {
		if strings.EqualFold(u.Username, user.Username) || strings.EqualFold(u.Email, user.Email) {
			return domain.ErrUserAlreadyExists
		}
		if u.Mobile != nil && user.Mobile != nil && *u.Mobile == *user.Mobile {
			return domain.ErrUserAlreadyExists
		}
	}
	s.users[user.ID] = cloneUser(user)
	return nil
}

func (s *Store) UpdatePasswordHash(ctx context.Context, id uuid.UUID, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return domain.ErrUserNotFound
	}
	u.PasswordHash = hash
	u.UpdatedAt = time.Now()
	return nil
}

func (s *Store) SetStatus(ctx context.Context, id uuid.UUID, status domain.AccountStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return domain.ErrUserNotFound
	}
	u.Status = status
	u.UpdatedAt = time.Now()
	return nil
}

// Sessions

func (s *Store) CreateSession(ctx context.Context, session *domain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.putSessionLocked(session)
	return nil
}

func (s *Store) putSessionLocked(session *domain.Session) {
	cp := *session
	s.sessions[cp.ID] = &cp
	s.sessionsByHash[cp.RefreshTokenHash] = cp.ID
}

func (s *Store) GetSession(ctx context.Context, id uuid.UUID) (*domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return cloneSession(sess), nil
}

func (s *Store) GetSessionByTokenHash(ctx context.Context, tokenHash string) (*domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.sessionsByHash[tokenHash]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return cloneSession(s.sessions[id]), nil
}

func (s *Store) RevokeSession(ctx context.Context, id uuid.UUID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok || sess.RevokedAt != nil {
		return domain.ErrSessionNotFound
	}
	sess.RevokedAt = &at
	return nil
}

func (s *Store) RevokeUserSessions(ctx context.Context, userID uuid.UUID, at time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, sess := range s.sessions {
		if sess.UserID == userID && sess.RevokedAt == nil {
			revokedAt := at
			sess.RevokedAt = &revokedAt
			n++
		}
	}
	return n, nil
}

func (s *Store) RotateSession(ctx context.Context, oldHash string, next *domain.Session, now time.Time) (*domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.sessionsByHash[oldHash]
	if !ok {
		return nil, domain.ErrInvalidOrExpiredToken
	}
	old := s.sessions[id]
	if old.UserID != next.UserID || !old.IsValid(now) {
		return nil, domain.ErrInvalidOrExpiredToken
	}

	old.RevokedAt = &now
	s.putSessionLocked(next)
	return cloneSession(old), nil
}

// DeleteExpired drops sessions that expired or were revoked before cutoff.
func (s *Store) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for id, sess := range s.sessions {
		if sess.ExpiresAt.Before(cutoff) || (sess.RevokedAt != nil && sess.RevokedAt.Before(cutoff)) {
			delete(s.sessionsByHash, sess.RefreshTokenHash)
			delete(s.sessions, id)
			n++
		}
	}
	return n, nil
}

// Password reset tokens

func (s *Store) CreateResetToken(ctx context.Context, token *domain.ResetToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, t := range s.resetTokens {
		if t.UserID == token.UserID && t.ConsumedAt == nil {
			consumedAt := token.CreatedAt
			t.ConsumedAt = &consumedAt
		}
	}
	cp := *token
	s.resetTokens[cp.TokenHash] = &cp
	return nil
}

func (s *Store) GetResetToken(ctx context.Context, tokenHash string) (*domain.ResetToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.resetTokens[tokenHash]
	if !ok {
		return nil, domain.ErrInvalidOrExpiredToken
	}
	cp := *t
	return &cp, nil
}

func (s *Store) RedeemResetToken(ctx context.Context, tokenHash, passwordHash string, now time.Time) (uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.resetTokens[tokenHash]
	if !ok || !t.IsValid(now) {
		return uuid.Nil, domain.ErrInvalidOrExpiredToken
	}
	u, ok := s.users[t.UserID]
	if !ok {
		return uuid.Nil, domain.ErrInvalidOrExpiredToken
	}

	t.ConsumedAt = &now
	u.PasswordHash = passwordHash
	u.UpdatedAt = now
	return u.ID, nil
}

// Two-factor

func (s *Store) SaveTwoFactorSecret(ctx context.Context, userID uuid.UUID, secret string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return domain.ErrUserNotFound
	}
	u.TwoFactorSecret = &secret
	u.TwoFactorEnabled = false
	return nil
}

func (s *Store) GetTwoFactor(ctx context.Context, userID uuid.UUID) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return "", false, domain.ErrUserNotFound
	}
	if u.TwoFactorSecret == nil {
		return "", false, domain.ErrTwoFactorNotEnrolled
	}
	return *u.TwoFactorSecret, u.TwoFactorEnabled, nil
}

func (s *Store) EnableTwoFactor(ctx context.Context, userID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return domain.ErrUserNotFound
	}
	if u.TwoFactorSecret == nil {
		return domain.ErrTwoFactorNotEnrolled
	}
	u.TwoFactorEnabled = true
	return nil
}

func (s *Store) ClearTwoFactor(ctx context.Context, userID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return domain.ErrUserNotFound
	}
	u.TwoFactorSecret = nil
	u.TwoFactorEnabled = false
	return nil
}

func cloneUser(u *domain.User) *domain.User {
	cp := *u
	if u.Mobile != nil {
		m := *u.Mobile
		cp.Mobile = &m
	}
	if u.LockedUntil != nil {
		t := *u.LockedUntil
		cp.LockedUntil = &t
	}
	if u.TwoFactorSecret != nil {
		sec := *u.TwoFactorSecret
		cp.TwoFactorSecret = &sec
	}
	return &cp
}

func cloneSession(sess *domain.Session) *domain.Session {
	cp := *sess
	if sess.RevokedAt != nil {
		t := *sess.RevokedAt
		cp.RevokedAt = &t
	}
	return &cp
}

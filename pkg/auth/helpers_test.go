package auth

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shelfmart/authcore/pkg/domain"
	"github.com/shelfmart/authcore/pkg/repository/memory"
)

var (
	testSecret      = []byte("0123456789abcdef0123456789abcdef")
	testOtherSecret = []byte("fedcba9876543210fedcba9876543210")
	testThirdSecret = []byte("a-third-signing-secret-for-tests!")
)

// testClock is a settable clock. It starts on a whole second because token
// timestamps carry second precision.
type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newTestClock() *testClock {
	return &testClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// testArgon2Params keeps hashing cheap in tests.
var testArgon2Params = Argon2Params{Time: 1, Memory: 64, Threads: 1, KeyLen: 32}

var testMFAKey = []byte("0123456789abcdef0123456789abcdef")

type sentReset struct {
	userID    uuid.UUID
	token     string
	expiresAt time.Time
}

// recordingNotifier captures reset deliveries.
type recordingNotifier struct {
	mu   sync.Mutex
	sent []sentReset
	err  error
}

func (n *recordingNotifier) SendPasswordReset(ctx context.Context, user *domain.User, token string, expiresAt time.Time) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentReset{userID: user.ID, token: token, expiresAt: expiresAt})
	return n.err
}

func (n *recordingNotifier) last() (sentReset, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.sent) == 0 {
		return sentReset{}, false
	}
	return n.sent[len(n.sent)-1], true
}

// testEnv wires every component over one memory store.
type testEnv struct {
	clock     *testClock
	store     *memory.Store
	codec     *TokenCodec
	sessions  *SessionRegistry
	guard     *AccountSecurityGuard
	verifier  *CredentialVerifier
	twoFactor *TwoFactorAuth
	reset     *PasswordResetFlow
	notifier  *recordingNotifier
	service   *AuthenticationService
}

type envConfig struct {
	sessions SessionRegistryConfig
	lockout  func(LockoutStore) LockoutStore
}

type envOption func(*envConfig)

func withReuseDetection() envOption {
	return func(c *envConfig) { c.sessions.DetectReuse = true }
}

// withLockoutStore wraps the lockout store handed to the guard.
func withLockoutStore(wrap func(LockoutStore) LockoutStore) envOption {
	return func(c *envConfig) { c.lockout = wrap }
}

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	clock := newTestClock()
	store := memory.New()

	codec, err := NewTokenCodec(TokenConfig{
		Secret:          testSecret,
		Issuer:          "authcore-test",
		AccessTokenTTL:  15 * time.Minute,
		RefreshTokenTTL: 24 * time.Hour,
		Now:             clock.Now,
	})
	if err != nil {
		t.Fatalf("NewTokenCodec() error = %v", err)
	}

	cfg := envConfig{
		sessions: SessionRegistryConfig{TTL: codec.RefreshTokenTTL(), Now: clock.Now, Logger: logger},
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	sessions := NewSessionRegistry(store, cfg.sessions)
	var lockout LockoutStore = store
	if cfg.lockout != nil {
		lockout = cfg.lockout(store)
	}
	guard := NewAccountSecurityGuard(lockout, LockoutConfig{Threshold: 5, Duration: 15 * time.Minute, Now: clock.Now, Logger: logger})
	verifier := NewCredentialVerifier(testArgon2Params)
	policy := &PasswordPolicy{MinLength: 8}

	twoFactor, err := NewTwoFactorAuth(store, store, TwoFactorConfig{
		Issuer: "Shelfmart", EncryptionKey: testMFAKey, Now: clock.Now, Logger: logger,
	})
	if err != nil {
		t.Fatalf("NewTwoFactorAuth() error = %v", err)
	}

	notifier := &recordingNotifier{}
	reset := NewPasswordResetFlow(store, store, sessions, verifier, policy, notifier,
		PasswordResetConfig{TokenTTL: 30 * time.Minute, Now: clock.Now, Logger: logger})

	service := NewAuthenticationService(store, codec, sessions, guard, verifier, twoFactor, policy,
		ServiceConfig{Now: clock.Now, Logger: logger})

	return &testEnv{
		clock:     clock,
		store:     store,
		codec:     codec,
		sessions:  sessions,
		guard:     guard,
		verifier:  verifier,
		twoFactor: twoFactor,
		reset:     reset,
		notifier:  notifier,
		service:   service,
	}
}

// createUser stores a user with the given role and password.
func (e *testEnv) createUser(t *testing.T, username string, role domain.Role, password string) *domain.User {
	t.Helper()
	hash, err := e.verifier.Encode(password)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	now := e.clock.Now()
	u := &domain.User{
		ID:           uuid.New(),
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: hash,
		Role:         role,
		Status:       domain.StatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := e.store.CreateUser(context.Background(), u); err != nil {
		t.Fatalf("CreateUser() error = %v", err)
	}
	return u
}

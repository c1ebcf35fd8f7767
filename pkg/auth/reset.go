package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shelfmart/authcore/pkg/domain"
)

const (
	DefaultResetTokenTTL        = 30 * time.Minute
	DefaultResetDeliveryTimeout = 30 * time.Second
	resetTokenLen               = 32
)

// PasswordResetConfig configures a PasswordResetFlow.
type PasswordResetConfig struct {
	TokenTTL time.Duration
	// DeliveryTimeout bounds one notifier call.
	DeliveryTimeout time.Duration
	Now             func() time.Time
	Logger          *slog.Logger
}

// PasswordResetFlow issues and redeems single-use reset tokens. Only the
// SHA-256 hash of a token is ever stored.
type PasswordResetFlow struct {
	users    UserStore
	tokens   ResetTokenStore
	sessions *SessionRegistry
	hasher   PasswordHasher
	policy   *PasswordPolicy
	notifier ResetNotifier
	ttl      time.Duration
	timeout  time.Duration
	now      func() time.Time
	logger   *slog.Logger

	deliveries sync.WaitGroup
}

// NewPasswordResetFlow wires a reset flow. policy may be nil.
func NewPasswordResetFlow(
	users UserStore,
	tokens ResetTokenStore,
	sessions *SessionRegistry,
	hasher PasswordHasher,
	policy *PasswordPolicy,
	notifier ResetNotifier,
	cfg PasswordResetConfig,
) *PasswordResetFlow {
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = DefaultResetTokenTTL
	}
	if cfg.DeliveryTimeout <= 0 {
		cfg.DeliveryTimeout = DefaultResetDeliveryTimeout
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &PasswordResetFlow{
		users:    users,
		tokens:   tokens,
		sessions: sessions,
		hasher:   hasher,
		policy:   policy,
		notifier: notifier,
		ttl:      cfg.TokenTTL,
		timeout:  cfg.DeliveryTimeout,
		now:      cfg.Now,
		logger:   cfg.Logger,
	}
}

// Initiate issues a reset token for the account behind email and hands it
// to the notifier in the background, so known and unknown addresses answer
// in the same time. It returns nil whether or not the account exists; only
// store failures surface, and delivery failures are logged.
func (f *PasswordResetFlow) Initiate(ctx context.Context, email string) error {
	user, err := f.users.GetUserByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			f.logger.Debug("password reset requested for unknown email")
			return nil
		}
		return fmt.Errorf("failed to look up user: %w", err)
	}
	if user.Status == domain.StatusDeactivated {
		f.logger.Info("password reset requested for deactivated account", "user_id", user.ID)
		return nil
	}

	rawToken, err := GenerateToken(resetTokenLen)
	if err != nil {
		return err
	}

	now := f.now()
	token := &domain.ResetToken{
		ID:        uuid.New(),
		UserID:    user.ID,
		TokenHash: HashToken(rawToken),
		CreatedAt: now,
		ExpiresAt: now.Add(f.ttl),
	}
	if err := f.tokens.CreateResetToken(ctx, token); err != nil {
		return fmt.Errorf("failed to create reset token: %w", err)
	}

	if f.notifier != nil {
		f.deliver(context.WithoutCancel(ctx), user, rawToken, token.ExpiresAt)
	}
	return nil
}

func (f *PasswordResetFlow) deliver(ctx context.Context, user *domain.User, rawToken string, expiresAt time.Time) {
	f.deliveries.Add(1)
	go func() {
		defer f.deliveries.Done()
		ctx, cancel := context.WithTimeout(ctx, f.timeout)
		defer cancel()

		if err := f.notifier.SendPasswordReset(ctx, user, rawToken, expiresAt); err != nil {
			f.logger.Error("failed to deliver password reset", "user_id", user.ID, "error", err)
		}
	}()
}

// Wait blocks until every reset delivery started so far has returned.
func (f *PasswordResetFlow) Wait() {
	f.deliveries.Wait()
}

// Validate reports whether token exists, is unexpired and is unconsumed.
func (f *PasswordResetFlow) Validate(ctx context.Context, token string) bool {
	if token == "" {
		return false
	}
	rt, err := f.tokens.GetResetToken(ctx, HashToken(token))
	if err != nil {
		return false
	}
	return rt.IsValid(f.now())
}

// Redeem consumes token and sets the new password in one step, then revokes
// every session of the user.
func (f *PasswordResetFlow) Redeem(ctx context.Context, token, newPassword string) error {
	if token == "" {
		return domain.ErrInvalidOrExpiredToken
	}
	if f.policy != nil {
		if err := f.policy.ValidatePassword(newPassword); err != nil {
			return err
		}
	}

	hash, err := f.hasher.Encode(newPassword)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	userID, err := f.tokens.RedeemResetToken(ctx, HashToken(token), hash, f.now())
	if err != nil {
		return err
	}

	if err := f.sessions.RevokeAllForUser(ctx, userID); err != nil {
		return err
	}
	f.logger.Info("password reset completed", "user_id", userID)
	return nil
}

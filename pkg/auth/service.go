package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shelfmart/authcore/pkg/domain"
)

// LoginInput is a login attempt.
type LoginInput struct {
	Identifier string // username, email or mobile
	Password   string
	TOTPCode   string
	IP         string
	UserAgent  string
}

// RegisterInput is a self-service customer registration.
type RegisterInput struct {
	Username  string
	Email     string
	Mobile    string
	Password  string
	IP        string
	UserAgent string
}

// ServiceConfig holds the optional knobs of AuthenticationService.
type ServiceConfig struct {
	StrictEmailValidation bool
	BlockDisposableEmail  bool
	Now                   func() time.Time
	Logger                *slog.Logger
}

// AuthenticationService orchestrates login, registration, refresh, logout
// and two-factor management over the lower level components.
type AuthenticationService struct {
	users     UserStore
	codec     *TokenCodec
	sessions  *SessionRegistry
	guard     *AccountSecurityGuard
	verifier  *CredentialVerifier
	twoFactor *TwoFactorAuth
	policy    *PasswordPolicy
	cfg       ServiceConfig
	logger    *slog.Logger
}

// NewAuthenticationService wires the service. twoFactor and policy may be nil.
func NewAuthenticationService(
	users UserStore,
	codec *TokenCodec,
	sessions *SessionRegistry,
	guard *AccountSecurityGuard,
	verifier *CredentialVerifier,
	twoFactor *TwoFactorAuth,
	policy *PasswordPolicy,
	cfg ServiceConfig,
) *AuthenticationService {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &AuthenticationService{
		users:     users,
		codec:     codec,
		sessions:  sessions,
		guard:     guard,
		verifier:  verifier,
		twoFactor: twoFactor,
		policy:    policy,
		cfg:       cfg,
		logger:    cfg.Logger,
	}
}

// Authenticate verifies credentials and opens a session. Each attempt is
// counted against the lockout threshold before the password is checked, so
// a locked account never reaches the hasher and concurrent guesses cannot
// outrun the lock. A correct attempt gives its count back.
func (s *AuthenticationService) Authenticate(ctx context.Context, in LoginInput) (*domain.TokenPair, error) {
	user, err := s.users.GetUserByIdentifier(ctx, NormalizeIdentifier(in.Identifier))
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			s.verifier.DummyVerify(in.Password)
			return nil, domain.ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}

	if !user.Status.CanAuthenticate() {
		return nil, domain.ErrAccountDisabled
	}

	attempt, err := s.guard.BeginAttempt(ctx, user.ID)
	if err != nil {
		if errors.Is(err, domain.ErrAccountLocked) {
			s.logger.Info("login rejected for locked account", "user_id", user.ID, "ip", in.IP)
		}
		return nil, err
	}

	if !s.verifier.Verify(in.Password, user.PasswordHash) {
		return nil, domain.ErrInvalidCredentials
	}

	if user.TwoFactorEnabled {
		if err := s.checkTwoFactor(ctx, user.ID, in.TOTPCode); err != nil {
			return nil, err
		}
	}

	if err := s.guard.CompleteAttempt(ctx, attempt); err != nil {
		if errors.Is(err, domain.ErrAccountLocked) {
			s.logger.Info("login rejected for account locked during verification", "user_id", user.ID, "ip", in.IP)
		}
		return nil, err
	}
	s.upgradeHash(ctx, user, in.Password)

	pair, err := s.issueSession(ctx, user, SessionMeta{IP: in.IP, UserAgent: in.UserAgent})
	if err != nil {
		return nil, err
	}
	s.logger.Info("user logged in", "user_id", user.ID, "session_id", pair.SessionID, "ip", in.IP)
	return pair, nil
}

// checkTwoFactor runs inside a reserved login attempt; a wrong or missing
// code leaves that attempt counted.
func (s *AuthenticationService) checkTwoFactor(ctx context.Context, userID uuid.UUID, code string) error {
	if s.twoFactor == nil {
		return errors.New("two-factor authentication is enabled for the user but not configured")
	}
	if strings.TrimSpace(code) == "" {
		return domain.ErrTwoFactorRequired
	}
	ok, err := s.twoFactor.Verify(ctx, userID, strings.TrimSpace(code))
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrInvalidTwoFactorCode
	}
	return nil
}

// verifyCode checks a TOTP code outside of login. It shares the login
// lockout counter, so a stolen access token cannot guess codes forever.
func (s *AuthenticationService) verifyCode(ctx context.Context, userID uuid.UUID, code string) error {
	attempt, err := s.guard.BeginAttempt(ctx, userID)
	if err != nil {
		return err
	}
	ok, err := s.twoFactor.Verify(ctx, userID, strings.TrimSpace(code))
	if err != nil {
		return err
	}
	if !ok {
		s.logger.Warn("invalid two-factor code", "user_id", userID,
			"failed_attempts", attempt.State.FailedAttempts)
		return domain.ErrInvalidTwoFactorCode
	}
	return s.guard.CompleteAttempt(ctx, attempt)
}

// upgradeHash re-encodes a password stored with legacy parameters. Failures
// are logged; the login itself already succeeded.
func (s *AuthenticationService) upgradeHash(ctx context.Context, user *domain.User, password string) {
	if !s.verifier.NeedsRehash(user.PasswordHash) {
		return
	}
	hash, err := s.verifier.Encode(password)
	if err == nil {
		err = s.users.UpdatePasswordHash(ctx, user.ID, hash)
	}
	if err != nil {
		s.logger.Warn("failed to upgrade password hash", "user_id", user.ID, "error", err)
		return
	}
	s.logger.Info("upgraded password hash", "user_id", user.ID)
}

// Register creates an ACTIVE customer and logs it in.
func (s *AuthenticationService) Register(ctx context.Context, in RegisterInput) (*domain.User, *domain.TokenPair, error) {
	if err := ValidateUsername(in.Username); err != nil {
		return nil, nil, err
	}
	if err := ValidateEmail(in.Email, s.cfg.StrictEmailValidation, s.cfg.BlockDisposableEmail); err != nil {
		return nil, nil, err
	}
	var mobile *string
	if m := strings.TrimSpace(in.Mobile); m != "" {
		if err := ValidateMobile(m); err != nil {
			return nil, nil, err
		}
		mobile = &m
	}
	if s.policy != nil {
		if err := s.policy.ValidatePassword(in.Password); err != nil {
			return nil, nil, err
		}
	}

	hash, err := s.verifier.Encode(in.Password)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to hash password: %w", err)
	}

	now := s.cfg.Now()
	user := &domain.User{
		ID:           uuid.New(),
		Username:     in.Username,
		Email:        NormalizeEmail(in.Email),
		Mobile:       mobile,
		PasswordHash: hash,
		Role:         domain.RoleCustomer,
		Status:       domain.StatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		return nil, nil, err
	}

	pair, err := s.issueSession(ctx, user, SessionMeta{IP: in.IP, UserAgent: in.UserAgent})
	if err != nil {
		return nil, nil, err
	}
	s.logger.Info("user registered", "user_id", user.ID)
	return user, pair, nil
}

// Refresh exchanges a refresh token for a new pair and retires the old
// session. Presenting the same refresh token twice fails the second time
// with domain.ErrInvalidOrExpiredToken.
func (s *AuthenticationService) Refresh(ctx context.Context, refreshToken, ip, userAgent string) (*domain.TokenPair, error) {
	claims, err := s.codec.DecodeRefresh(refreshToken)
	if err != nil {
		return nil, domain.ErrInvalidOrExpiredToken
	}
	userID, err := claims.UserID()
	if err != nil {
		return nil, domain.ErrInvalidOrExpiredToken
	}

	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, domain.ErrInvalidOrExpiredToken
		}
		return nil, err
	}
	if !user.Status.CanAuthenticate() {
		return nil, domain.ErrAccountDisabled
	}
	locked, err := s.guard.IsLocked(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	if locked {
		return nil, domain.ErrAccountLocked
	}

	newRefresh, refreshExp, err := s.codec.IssueRefresh(user.ID, user.Role)
	if err != nil {
		return nil, err
	}
	session, err := s.sessions.Rotate(ctx, user.ID, HashToken(refreshToken), HashToken(newRefresh),
		SessionMeta{IP: ip, UserAgent: userAgent})
	if err != nil {
		return nil, err
	}

	access, accessExp, err := s.codec.IssueAccess(user.ID, user.Role, session.ID)
	if err != nil {
		s.discardSession(ctx, session.ID)
		return nil, err
	}
	return s.tokenPair(access, accessExp, newRefresh, refreshExp, session.ID), nil
}

// Logout revokes the session tied to refreshToken. Logging out twice is not an error.
func (s *AuthenticationService) Logout(ctx context.Context, refreshToken string) error {
	if _, err := s.codec.DecodeRefresh(refreshToken); err != nil {
		if !errors.Is(err, domain.ErrExpired) {
			return domain.ErrInvalidOrExpiredToken
		}
	}
	session, err := s.sessions.FindByRefreshHash(ctx, HashToken(refreshToken))
	if err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			return domain.ErrInvalidOrExpiredToken
		}
		return err
	}
	if session.IsRevoked() {
		return nil
	}
	return s.LogoutSession(ctx, session.ID)
}

// LogoutSession revokes one session by id.
func (s *AuthenticationService) LogoutSession(ctx context.Context, sessionID uuid.UUID) error {
	if err := s.sessions.Revoke(ctx, sessionID); err != nil && !errors.Is(err, domain.ErrSessionNotFound) {
		return err
	}
	s.logger.Info("session revoked", "session_id", sessionID)
	return nil
}

// LogoutAll revokes every session of userID.
func (s *AuthenticationService) LogoutAll(ctx context.Context, userID uuid.UUID) error {
	return s.sessions.RevokeAllForUser(ctx, userID)
}

// CurrentUser returns the user behind an authenticated principal.
func (s *AuthenticationService) CurrentUser(ctx context.Context, userID uuid.UUID) (*domain.User, error) {
	return s.users.GetUserByID(ctx, userID)
}

// EnableTwoFactor starts enrollment. It is not enforced at login until
// ConfirmTwoFactor succeeds.
func (s *AuthenticationService) EnableTwoFactor(ctx context.Context, userID uuid.UUID) (*Enrollment, error) {
	if s.twoFactor == nil {
		return nil, domain.ErrTwoFactorUnavailable
	}
	return s.twoFactor.Enroll(ctx, userID)
}

// ConfirmTwoFactor verifies the first code of a pending enrollment.
func (s *AuthenticationService) ConfirmTwoFactor(ctx context.Context, userID uuid.UUID, code string) error {
	if s.twoFactor == nil {
		return domain.ErrTwoFactorUnavailable
	}
	return s.verifyCode(ctx, userID, code)
}

// DisableTwoFactor turns two-factor off. An enabled setup requires a valid
// current code; a pending one can be dropped without.
func (s *AuthenticationService) DisableTwoFactor(ctx context.Context, userID uuid.UUID, code string) error {
	if s.twoFactor == nil {
		return domain.ErrTwoFactorUnavailable
	}
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return err
	}
	if user.TwoFactorEnabled {
		if err := s.verifyCode(ctx, userID, code); err != nil {
			return err
		}
	}
	return s.twoFactor.Disable(ctx, userID)
}

// UnlockAccount is the administrative unlock. It never reactivates a
// suspended or deactivated account.
func (s *AuthenticationService) UnlockAccount(ctx context.Context, userID uuid.UUID) error {
	if _, err := s.users.GetUserByID(ctx, userID); err != nil {
		return err
	}
	return s.guard.Unlock(ctx, userID)
}

// issueSession mints a refresh token, records its session, then mints the
// access token bound to that session. A failure after the session exists
// revokes it so no half-issued credentials survive.
func (s *AuthenticationService) issueSession(ctx context.Context, user *domain.User, meta SessionMeta) (*domain.TokenPair, error) {
	refresh, refreshExp, err := s.codec.IssueRefresh(user.ID, user.Role)
	if err != nil {
		return nil, err
	}
	sessionID, err := s.sessions.CreateSession(ctx, user.ID, HashToken(refresh), meta)
	if err != nil {
		return nil, err
	}
	access, accessExp, err := s.codec.IssueAccess(user.ID, user.Role, sessionID)
	if err != nil {
		s.discardSession(ctx, sessionID)
		return nil, err
	}
	return s.tokenPair(access, accessExp, refresh, refreshExp, sessionID), nil
}

func (s *AuthenticationService) discardSession(ctx context.Context, sessionID uuid.UUID) {
	if err := s.sessions.Revoke(ctx, sessionID); err != nil {
		s.logger.Error("failed to discard session", "session_id", sessionID, "error", err)
	}
}

func (s *AuthenticationService) tokenPair(access string, accessExp time.Time, refresh string, refreshExp time.Time, sessionID uuid.UUID) *domain.TokenPair {
	return &domain.TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		TokenType:        "Bearer",
		ExpiresIn:        int(s.codec.AccessTokenTTL().Seconds()),
		ExpiresAt:        accessExp,
		RefreshExpiresAt: refreshExp,
		SessionID:        sessionID,
	}
}

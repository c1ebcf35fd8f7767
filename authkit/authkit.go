// Package authkit wires the authentication core into a ready-to-serve
// HTTP handler.
//
// Basic usage:
//
//	cfg, _ := config.Load()
//	db, _ := repository.Open(ctx, repository.Config{URL: cfg.Database.DSN()})
//
//	kit, err := authkit.New(*cfg, authkit.Dependencies{DB: db})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	go kit.RunSessionCleanup(ctx)
//	http.ListenAndServe(":8080", kit.Router())
//
// With the in-memory backend (STORE_BACKEND=memory) no database is needed.
// With LOCKOUT_BACKEND=redis, Dependencies.Redis must be set so every
// replica shares one set of failure counters.
package authkit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"github.com/shelfmart/authcore/internal/config"
	httpserver "github.com/shelfmart/authcore/internal/http"
	"github.com/shelfmart/authcore/internal/notification"
	"github.com/shelfmart/authcore/pkg/auth"
	"github.com/shelfmart/authcore/pkg/repository"
	"github.com/shelfmart/authcore/pkg/repository/memory"
	"github.com/shelfmart/authcore/pkg/repository/redisstore"
)

// Dependencies are the external resources the kit runs on.
type Dependencies struct {
	// DB is required for the postgres store backend.
	DB *sqlx.DB
	// Redis is required for the redis lockout backend.
	Redis redis.UniversalClient
	// Notifier delivers reset links. Nil uses SMTP when configured and
	// otherwise logs that a reset was issued.
	Notifier auth.ResetNotifier
	// Argon2 overrides the password hashing cost. Zero uses the defaults.
	Argon2 auth.Argon2Params
	Now    func() time.Time
	Logger *slog.Logger
}

// sessionCleaner removes dead sessions.
type sessionCleaner interface {
	DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error)
}

// stores groups the store ports behind one backend.
type stores struct {
	users     auth.UserStore
	sessions  auth.SessionStore
	lockout   auth.LockoutStore
	resets    auth.ResetTokenStore
	twoFactor auth.TwoFactorStore
	cleaner   sessionCleaner
}

// Kit is a fully wired authentication core.
type Kit struct {
	// Users is the identity store, for administrative collaborators.
	Users     auth.UserStore
	Service   *auth.AuthenticationService
	Codec     *auth.TokenCodec
	Sessions  *auth.SessionRegistry
	Guard     *auth.AccountSecurityGuard
	Reset     *auth.PasswordResetFlow
	TwoFactor *auth.TwoFactorAuth

	cfg     config.Config
	cleaner sessionCleaner
	router  http.Handler
	now     func() time.Time
	logger  *slog.Logger
}

// New validates cfg and wires stores, services and routes.
func New(cfg config.Config, deps Dependencies) (*Kit, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}

	st, err := newStores(cfg, deps)
	if err != nil {
		return nil, err
	}

	previous := make([][]byte, 0, len(cfg.JWT.PreviousSecrets))
	for _, s := range cfg.JWT.PreviousSecrets {
		previous = append(previous, []byte(s))
	}
	codec, err := auth.NewTokenCodec(auth.TokenConfig{
		Secret:          []byte(cfg.JWT.Secret),
		PreviousSecrets: previous,
		Issuer:          cfg.JWT.Issuer,
		AccessTokenTTL:  cfg.JWT.AccessTokenTTL,
		RefreshTokenTTL: cfg.JWT.RefreshTokenTTL,
		KeyRetention:    cfg.JWT.KeyRetention,
		Now:             now,
	})
	if err != nil {
		return nil, err
	}

	sessions := auth.NewSessionRegistry(st.sessions, auth.SessionRegistryConfig{
		TTL:         cfg.JWT.RefreshTokenTTL,
		DetectReuse: cfg.Session.DetectReuse,
		Now:         now,
		Logger:      logger,
	})
	guard := auth.NewAccountSecurityGuard(st.lockout, auth.LockoutConfig{
		Threshold: cfg.Lockout.Threshold,
		Duration:  cfg.Lockout.Duration,
		Now:       now,
		Logger:    logger,
	})
	verifier := auth.NewCredentialVerifier(deps.Argon2)
	policy := auth.NewPasswordPolicy(cfg.PasswordPolicy)

	var twoFactor *auth.TwoFactorAuth
	if cfg.TwoFactor.Enabled() {
		twoFactor, err = auth.NewTwoFactorAuth(st.twoFactor, st.users, auth.TwoFactorConfig{
			Issuer:        cfg.TwoFactor.Issuer,
			EncryptionKey: cfg.TwoFactor.EncryptionKey,
			Now:           now,
			Logger:        logger,
		})
		if err != nil {
			return nil, err
		}
	}

	notifier := deps.Notifier
	if notifier == nil {
		notifier = newNotifier(cfg, logger)
	}
	reset := auth.NewPasswordResetFlow(st.users, st.resets, sessions, verifier, policy, notifier, auth.PasswordResetConfig{
		TokenTTL:        cfg.PasswordReset.TokenTTL,
		DeliveryTimeout: cfg.PasswordReset.DeliveryTimeout,
		Now:             now,
		Logger:          logger,
	})

	service := auth.NewAuthenticationService(st.users, codec, sessions, guard, verifier, twoFactor, policy, auth.ServiceConfig{
		StrictEmailValidation: cfg.Email.Strict,
		BlockDisposableEmail:  cfg.Email.BlockDisposable,
		Now:                   now,
		Logger:                logger,
	})

	kit := &Kit{
		Users:     st.users,
		Service:   service,
		Codec:     codec,
		Sessions:  sessions,
		Guard:     guard,
		Reset:     reset,
		TwoFactor: twoFactor,
		cfg:       cfg,
		cleaner:   st.cleaner,
		now:       now,
		logger:    logger,
	}
	kit.router = httpserver.NewRouter(httpserver.RouterConfig{
		Logger:          logger,
		Service:         service,
		Codec:           codec,
		Sessions:        sessions,
		Reset:           reset,
		RateLimit:       cfg.RateLimit,
		SecurityHeaders: cfg.SecurityHeaders,
		MaxBodyBytes:    cfg.Server.MaxBodyBytes,
	})
	return kit, nil
}

func newStores(cfg config.Config, deps Dependencies) (*stores, error) {
	var st stores
	switch cfg.Store.Backend {
	case config.BackendMemory:
		m := memory.New()
		st = stores{users: m, sessions: m, lockout: m, resets: m, twoFactor: m, cleaner: m}
	case config.BackendPostgres:
		if deps.DB == nil {
			return nil, errors.New("postgres store backend requires a database connection")
		}
		users := repository.NewUsersRepository(deps.DB)
		sessions := repository.NewSessionsRepository(deps.DB)
		st = stores{
			users:     users,
			sessions:  sessions,
			lockout:   repository.NewLockoutRepository(deps.DB),
			resets:    repository.NewResetTokensRepository(deps.DB),
			twoFactor: users,
			cleaner:   sessions,
		}
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}

	if cfg.Lockout.Backend == config.BackendRedis {
		if deps.Redis == nil {
			return nil, errors.New("redis lockout backend requires a redis client")
		}
		st.lockout = redisstore.NewLockoutStore(deps.Redis, redisstore.Options{
			Retention: max(24*time.Hour, cfg.Lockout.Duration),
		})
	}
	return &st, nil
}

func newNotifier(cfg config.Config, logger *slog.Logger) auth.ResetNotifier {
	if !cfg.SMTP.Enabled() {
		return notification.LogNotifier{Logger: logger}
	}
	return notification.NewEmailService(notification.EmailConfig{
		Host:         cfg.SMTP.Host,
		Port:         cfg.SMTP.Port,
		User:         cfg.SMTP.Username,
		Password:     cfg.SMTP.Password,
		From:         cfg.SMTP.From,
		ResetBaseURL: cfg.PasswordReset.BaseURL,
	})
}

// Router returns the HTTP handler with every route mounted.
func (k *Kit) Router() http.Handler {
	return k.router
}

// RotateSigningKey makes secret the JWT signing key while earlier keys keep
// verifying the tokens they signed. It reports false when secret already
// signs.
func (k *Kit) RotateSigningKey(secret []byte) (bool, error) {
	if k.Codec.IsSigningKey(secret) {
		return false, nil
	}
	if err := k.Codec.RotateKey(secret); err != nil {
		return false, err
	}
	k.logger.Info("rotated signing key", "key_ids", k.Codec.KeyIDs())
	return true, nil
}

// Drain waits for background password reset deliveries to finish.
func (k *Kit) Drain() {
	k.Reset.Wait()
}

// CleanupSessions deletes sessions that expired or were revoked longer
// than the configured grace period ago.
func (k *Kit) CleanupSessions(ctx context.Context) (int64, error) {
	if k.cleaner == nil {
		return 0, nil
	}
	cutoff := k.now().Add(-k.cfg.Session.CleanupGrace)
	return k.cleaner.DeleteExpired(ctx, cutoff)
}

// RunSessionCleanup calls CleanupSessions every cleanup interval until ctx
// is done. A non-positive interval disables it.
func (k *Kit) RunSessionCleanup(ctx context.Context) {
	interval := k.cfg.Session.CleanupInterval
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := k.CleanupSessions(ctx)
			if err != nil {
				k.logger.Error("session cleanup failed", "error", err)
				continue
			}
			if n > 0 {
				k.logger.Info("removed dead sessions", "count", n)
			}
		}
	}
}

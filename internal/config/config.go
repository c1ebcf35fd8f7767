package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const minJWTSecretLength = 32

// Storage backends.
const (
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
	BackendRedis    = "redis"
)

// Config holds application configuration.
type Config struct {
	LogLevel string

	Server          ServerConfig
	Database        DatabaseConfig
	Store           StoreConfig
	JWT             JWTConfig
	Lockout         LockoutConfig
	Redis           RedisConfig
	Session         SessionConfig
	PasswordReset   PasswordResetConfig
	TwoFactor       TwoFactorConfig
	PasswordPolicy  PasswordPolicyConfig
	Email           EmailConfig
	RateLimit       RateLimitConfig
	SecurityHeaders SecurityHeadersConfig
	SMTP            SMTPConfig
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Addr            string
	Port            int
	MaxBodyBytes    int64
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// Address returns host:port for the listener.
func (c ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Addr, c.Port)
}

// DatabaseConfig configures the Postgres connection.
type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

// DSN returns the lib/pq connection string.
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode)
}

// StoreConfig selects where users, sessions and reset tokens live.
type StoreConfig struct {
	Backend string // postgres or memory
	// EnsureSchema creates the tables at startup.
	EnsureSchema bool
}

// JWTConfig configures token signing.
type JWTConfig struct {
	Secret string
	// PreviousSecrets still verify tokens issued before a rotation.
	PreviousSecrets []string
	Issuer          string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	KeyRetention    int
}

// LockoutConfig configures account lockout.
type LockoutConfig struct {
	Threshold int
	Duration  time.Duration
	// Backend is "store" to keep counters with the users, or "redis".
	Backend string
}

// RedisConfig configures the Redis client used for shared lockout counters.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// SessionConfig configures refresh sessions.
type SessionConfig struct {
	// DetectReuse revokes every session of a user when a rotated refresh
	// token is presented again.
	DetectReuse     bool
	CleanupInterval time.Duration
	CleanupGrace    time.Duration
}

// PasswordResetConfig configures reset tokens.
type PasswordResetConfig struct {
	TokenTTL time.Duration
	// BaseURL is the frontend page that receives ?token=.
	BaseURL         string
	DeliveryTimeout time.Duration
}

// TwoFactorConfig configures TOTP.
type TwoFactorConfig struct {
	Issuer string
	// EncryptionKey seals stored secrets. Empty disables two-factor.
	EncryptionKey []byte
}

// Enabled reports whether two-factor endpoints are available.
func (c TwoFactorConfig) Enabled() bool {
	return len(c.EncryptionKey) > 0
}

// PasswordPolicyConfig holds password complexity requirements.
type PasswordPolicyConfig struct {
	MinLength        int
	RequireUppercase bool
	RequireLowercase bool
	RequireNumber    bool
	RequireSpecial   bool
}

// EmailConfig controls email validation at registration.
type EmailConfig struct {
	Strict          bool
	BlockDisposable bool
}

// RateLimitConfig holds per endpoint group limits.
type RateLimitConfig struct {
	Enabled bool

	AuthRequestsPerMinute int
	AuthWindowMinutes     int

	ResetRequestsPerWindow int
	ResetWindowMinutes     int

	VerifyRequestsPerWindow int
	VerifyWindowMinutes     int

	RefreshRequestsPerMinute int
	RefreshWindowMinutes     int

	ProfileRequestsPerMinute int
	ProfileWindowMinutes     int
}

// SecurityHeadersConfig holds the response security headers.
type SecurityHeadersConfig struct {
	Enabled            bool
	CSP                string
	HSTSMaxAge         int
	FrameOptions       string
	ContentTypeOptions string
	XSSProtection      string
	ReferrerPolicy     string
	PermissionsPolicy  string
	// CacheControl is sent on every response, enabled or not, so tokens
	// never land in a shared cache. Defaults to no-store.
	CacheControl string
}

// SMTPConfig configures reset mail delivery. An empty host logs instead.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// Enabled reports whether an SMTP relay is configured.
func (c SMTPConfig) Enabled() bool {
	return c.Host != ""
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		LogLevel: getEnv("LOG_LEVEL", "info"),

		Server: ServerConfig{
			Addr:            getEnv("SERVER_ADDR", "0.0.0.0"),
			Port:            getEnvInt("SERVER_PORT", 8080),
			MaxBodyBytes:    int64(getEnvInt("SERVER_MAX_BODY_BYTES", 1<<20)),
			ReadTimeout:     getEnvDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			ShutdownTimeout: getEnvDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
		},

		// Database defaults match a local podman postgres.
		Database: DatabaseConfig{
			Host:         getEnv("DB_HOST", "localhost"),
			Port:         getEnvInt("DB_PORT", 25432),
			User:         getEnv("DB_USER", "postgres"),
			Password:     getEnv("DB_PASSWORD", "postgres"),
			Name:         getEnv("DB_NAME", "authcore"),
			SSLMode:      getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns: getEnvInt("DB_MAX_OPEN_CONNS", 20),
			MaxIdleConns: getEnvInt("DB_MAX_IDLE_CONNS", 5),
		},

		Store: StoreConfig{
			Backend:      strings.ToLower(getEnv("STORE_BACKEND", BackendPostgres)),
			EnsureSchema: getEnvBool("DB_ENSURE_SCHEMA", true),
		},

		JWT: JWTConfig{
			Secret:          getEnv("JWT_SECRET", ""),
			PreviousSecrets: getEnvList("JWT_PREVIOUS_SECRETS"),
			Issuer:          getEnv("JWT_ISSUER", "shelfmart-authcore"),
			AccessTokenTTL:  getEnvDuration("ACCESS_TOKEN_TTL", 15*time.Minute),
			RefreshTokenTTL: getEnvDuration("REFRESH_TOKEN_TTL", 7*24*time.Hour),
			KeyRetention:    getEnvInt("JWT_KEY_RETENTION", 3),
		},

		Lockout: LockoutConfig{
			Threshold: getEnvInt("LOCKOUT_THRESHOLD", 5),
			Duration:  getEnvDuration("LOCKOUT_DURATION", 15*time.Minute),
			Backend:   strings.ToLower(getEnv("LOCKOUT_BACKEND", "store")),
		},

		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},

		Session: SessionConfig{
			DetectReuse:     getEnvBool("SESSION_DETECT_REUSE", false),
			CleanupInterval: getEnvDuration("SESSION_CLEANUP_INTERVAL", time.Hour),
			CleanupGrace:    getEnvDuration("SESSION_CLEANUP_GRACE", 24*time.Hour),
		},

		PasswordReset: PasswordResetConfig{
			TokenTTL:        getEnvDuration("PASSWORD_RESET_TTL", 30*time.Minute),
			BaseURL:         getEnv("PASSWORD_RESET_URL", "http://localhost:3000/reset-password"),
			DeliveryTimeout: getEnvDuration("PASSWORD_RESET_DELIVERY_TIMEOUT", 30*time.Second),
		},

		TwoFactor: TwoFactorConfig{
			Issuer: getEnv("TWO_FACTOR_ISSUER", "Shelfmart"),
		},

		PasswordPolicy: PasswordPolicyConfig{
			MinLength:        getEnvInt("PASSWORD_MIN_LENGTH", 8),
			RequireUppercase: getEnvBool("PASSWORD_REQUIRE_UPPERCASE", false),
			RequireLowercase: getEnvBool("PASSWORD_REQUIRE_LOWERCASE", false),
			RequireNumber:    getEnvBool("PASSWORD_REQUIRE_NUMBER", false),
			RequireSpecial:   getEnvBool("PASSWORD_REQUIRE_SPECIAL", false),
		},

		Email: EmailConfig{
			Strict:          getEnvBool("EMAIL_STRICT_VALIDATION", true),
			BlockDisposable: getEnvBool("EMAIL_BLOCK_DISPOSABLE", false),
		},

		RateLimit: RateLimitConfig{
			Enabled:                  getEnvBool("RATE_LIMIT_ENABLED", true),
			AuthRequestsPerMinute:    getEnvInt("RATE_LIMIT_AUTH_REQUESTS", 10),
			AuthWindowMinutes:        getEnvInt("RATE_LIMIT_AUTH_WINDOW_MINUTES", 1),
			ResetRequestsPerWindow:   getEnvInt("RATE_LIMIT_RESET_REQUESTS", 5),
			ResetWindowMinutes:       getEnvInt("RATE_LIMIT_RESET_WINDOW_MINUTES", 15),
			VerifyRequestsPerWindow:  getEnvInt("RATE_LIMIT_VERIFY_REQUESTS", 10),
			VerifyWindowMinutes:      getEnvInt("RATE_LIMIT_VERIFY_WINDOW_MINUTES", 5),
			RefreshRequestsPerMinute: getEnvInt("RATE_LIMIT_REFRESH_REQUESTS", 30),
			RefreshWindowMinutes:     getEnvInt("RATE_LIMIT_REFRESH_WINDOW_MINUTES", 1),
			ProfileRequestsPerMinute: getEnvInt("RATE_LIMIT_PROFILE_REQUESTS", 60),
			ProfileWindowMinutes:     getEnvInt("RATE_LIMIT_PROFILE_WINDOW_MINUTES", 1),
		},

		SecurityHeaders: SecurityHeadersConfig{
			Enabled:            getEnvBool("SECURITY_HEADERS_ENABLED", true),
			CSP:                getEnv("SECURITY_HEADERS_CSP", "default-src 'none'; frame-ancestors 'none'"),
			HSTSMaxAge:         getEnvInt("SECURITY_HEADERS_HSTS_MAX_AGE", 31536000),
			FrameOptions:       getEnv("SECURITY_HEADERS_FRAME_OPTIONS", "DENY"),
			ContentTypeOptions: getEnv("SECURITY_HEADERS_CONTENT_TYPE_OPTIONS", "nosniff"),
			XSSProtection:      getEnv("SECURITY_HEADERS_XSS_PROTECTION", "0"),
			ReferrerPolicy:     getEnv("SECURITY_HEADERS_REFERRER_POLICY", "no-referrer"),
			PermissionsPolicy:  getEnv("SECURITY_HEADERS_PERMISSIONS_POLICY", ""),
			CacheControl:       getEnv("SECURITY_HEADERS_CACHE_CONTROL", "no-store"),
		},

		SMTP: SMTPConfig{
			Host:     getEnv("SMTP_HOST", ""),
			Port:     getEnvInt("SMTP_PORT", 587),
			Username: getEnv("SMTP_USERNAME", ""),
			Password: getEnv("SMTP_PASSWORD", ""),
			From:     getEnv("SMTP_FROM", "no-reply@shelfmart.example"),
		},
	}

	if key := getEnv("TWO_FACTOR_ENCRYPTION_KEY", ""); key != "" {
		decoded, err := hex.DecodeString(key)
		if err != nil {
			return nil, fmt.Errorf("TWO_FACTOR_ENCRYPTION_KEY must be hex: %w", err)
		}
		cfg.TwoFactor.EncryptionKey = decoded
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the cross-field constraints.
func (c *Config) Validate() error {
	var errs []error

	if c.JWT.Secret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	} else if len(c.JWT.Secret) < minJWTSecretLength {
		errs = append(errs, fmt.Errorf("JWT_SECRET must be at least %d bytes", minJWTSecretLength))
	}
	for i, s := range c.JWT.PreviousSecrets {
		if len(s) < minJWTSecretLength {
			errs = append(errs, fmt.Errorf("JWT_PREVIOUS_SECRETS[%d] must be at least %d bytes", i, minJWTSecretLength))
		}
	}
	if c.JWT.AccessTokenTTL <= 0 {
		errs = append(errs, errors.New("ACCESS_TOKEN_TTL must be positive"))
	}
	if c.JWT.RefreshTokenTTL < 2*c.JWT.AccessTokenTTL {
		errs = append(errs, errors.New("REFRESH_TOKEN_TTL must be at least twice ACCESS_TOKEN_TTL"))
	}

	if c.Lockout.Threshold < 1 {
		errs = append(errs, errors.New("LOCKOUT_THRESHOLD must be at least 1"))
	}
	if c.Lockout.Duration <= 0 {
		errs = append(errs, errors.New("LOCKOUT_DURATION must be positive"))
	}
	if c.Lockout.Backend != "store" && c.Lockout.Backend != BackendRedis {
		errs = append(errs, fmt.Errorf("LOCKOUT_BACKEND %q must be store or redis", c.Lockout.Backend))
	}

	if c.Store.Backend != BackendPostgres && c.Store.Backend != BackendMemory {
		errs = append(errs, fmt.Errorf("STORE_BACKEND %q must be postgres or memory", c.Store.Backend))
	}

	if n := len(c.TwoFactor.EncryptionKey); n != 0 && n != 32 {
		errs = append(errs, fmt.Errorf("TWO_FACTOR_ENCRYPTION_KEY must be 32 bytes, got %d", n))
	}

	return errors.Join(errs...)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

package auth

import (
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/shelfmart/authcore/pkg/domain"
)

const (
	// Default token lifetimes
	DefaultAccessTokenTTL  = 15 * time.Minute
	DefaultRefreshTokenTTL = 7 * 24 * time.Hour

	// DefaultKeyRetention is how many signing keys, the active one included,
	// stay available for verification after a rotation.
	DefaultKeyRetention = 3

	minSecretLength = 32
)

// TokenKind distinguishes access tokens from refresh tokens.
type TokenKind string

const (
	TokenKindAccess  TokenKind = "ACCESS"
	TokenKindRefresh TokenKind = "REFRESH"
)

// Valid reports whether k is a known kind.
func (k TokenKind) Valid() bool {
	return k == TokenKindAccess || k == TokenKindRefresh
}

// Claims is the payload of every token the codec issues.
type Claims struct {
	jwt.RegisteredClaims
	UserType  domain.UserType `json:"user_type,omitempty"`
	Role      domain.Role     `json:"role,omitempty"`
	Kind      TokenKind       `json:"kind"`
	SessionID string          `json:"sid,omitempty"`
}

// UserID parses the subject claim.
func (c *Claims) UserID() (uuid.UUID, error) {
	id, err := uuid.Parse(c.Subject)
	if err != nil {
		return uuid.Nil, domain.ErrMalformed
	}
	return id, nil
}

// Session parses the sid claim. It returns uuid.Nil when the claim is absent.
func (c *Claims) Session() uuid.UUID {
	id, err := uuid.Parse(c.SessionID)
	if err != nil {
		return uuid.Nil
	}
	return id
}

// TokenConfig configures a TokenCodec.
type TokenConfig struct {
	Secret []byte
	// PreviousSecrets stay valid for verification of tokens issued before
	// startup, newest first.
	PreviousSecrets [][]byte
	Issuer          string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	KeyRetention    int
	Now             func() time.Time
}

type signingKey struct {
	id        string
	secret    []byte
	retiredAt *time.Time
}

// TokenCodec issues and verifies HS256 tokens against a rotating keyring.
// The newest key signs; retained older keys only verify tokens issued
// before they were retired.
type TokenCodec struct {
	mu         sync.RWMutex
	keys       []*signingKey // newest first
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	retention  int
	now        func() time.Time
}

// NewTokenCodec validates cfg and builds the keyring.
func NewTokenCodec(cfg TokenConfig) (*TokenCodec, error) {
	if cfg.AccessTokenTTL == 0 {
		cfg.AccessTokenTTL = DefaultAccessTokenTTL
	}
	if cfg.RefreshTokenTTL == 0 {
		cfg.RefreshTokenTTL = DefaultRefreshTokenTTL
	}
	if cfg.KeyRetention <= 0 {
		cfg.KeyRetention = DefaultKeyRetention
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.RefreshTokenTTL < 2*cfg.AccessTokenTTL {
		return nil, fmt.Errorf("refresh token TTL %s must be at least twice the access token TTL %s",
			cfg.RefreshTokenTTL, cfg.AccessTokenTTL)
	}
	if len(cfg.Secret) < minSecretLength {
		return nil, fmt.Errorf("signing secret must be at least %d bytes", minSecretLength)
	}

	c := &TokenCodec{
		issuer:     cfg.Issuer,
		accessTTL:  cfg.AccessTokenTTL,
		refreshTTL: cfg.RefreshTokenTTL,
		retention:  cfg.KeyRetention,
		now:        cfg.Now,
	}

	bootedAt := cfg.Now()
	c.keys = append(c.keys, &signingKey{id: keyID(cfg.Secret), secret: cfg.Secret})
	for _, prev := range cfg.PreviousSecrets {
		if len(prev) < minSecretLength {
			return nil, fmt.Errorf("previous signing secret must be at least %d bytes", minSecretLength)
		}
		if c.hasKeyLocked(keyID(prev)) {
			continue
		}
		retired := bootedAt
		c.keys = append(c.keys, &signingKey{id: keyID(prev), secret: prev, retiredAt: &retired})
	}
	c.pruneLocked(bootedAt)
	return c, nil
}

// AccessTokenTTL returns the access token lifetime.
func (c *TokenCodec) AccessTokenTTL() time.Duration { return c.accessTTL }

// RefreshTokenTTL returns the refresh token lifetime.
func (c *TokenCodec) RefreshTokenTTL() time.Duration { return c.refreshTTL }

// Issue signs a token for userID. A zero ttl uses the default for kind.
func (c *TokenCodec) Issue(userID uuid.UUID, userType domain.UserType, role domain.Role, kind TokenKind, ttl time.Duration) (string, error) {
	token, _, err := c.issue(userID, userType, role, kind, ttl, uuid.Nil)
	return token, err
}

// IssueAccess signs an access token bound to sessionID and returns its expiry.
func (c *TokenCodec) IssueAccess(userID uuid.UUID, role domain.Role, sessionID uuid.UUID) (string, time.Time, error) {
	return c.issue(userID, role.UserType(), role, TokenKindAccess, c.accessTTL, sessionID)
}

// IssueRefresh signs a refresh token and returns its expiry.
func (c *TokenCodec) IssueRefresh(userID uuid.UUID, role domain.Role) (string, time.Time, error) {
	return c.issue(userID, role.UserType(), role, TokenKindRefresh, c.refreshTTL, uuid.Nil)
}

func (c *TokenCodec) issue(userID uuid.UUID, userType domain.UserType, role domain.Role, kind TokenKind, ttl time.Duration, sessionID uuid.UUID) (string, time.Time, error) {
	if role == "" {
		return "", time.Time{}, domain.ErrUnknownRole
	}
	if !kind.Valid() {
		return "", time.Time{}, fmt.Errorf("unknown token kind %q", kind)
	}
	if ttl <= 0 {
		ttl = c.accessTTL
		if kind == TokenKindRefresh {
			ttl = c.refreshTTL
		}
	}

	now := c.now()
	expiresAt := jwt.NewNumericDate(now.Add(ttl))
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			Issuer:    c.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: expiresAt,
			ID:        uuid.NewString(),
		},
		UserType: userType,
		Role:     role,
		Kind:     kind,
	}
	if sessionID != uuid.Nil {
		claims.SessionID = sessionID.String()
	}

	c.mu.RLock()
	active := c.keys[0]
	c.mu.RUnlock()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	token.Header["kid"] = active.id
	signed, err := token.SignedString(active.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, expiresAt.Time, nil
}

// Decode verifies signature, issuer and expiry and returns the claims.
// Errors are domain.ErrMalformed, domain.ErrSignatureInvalid or domain.ErrExpired.
func (c *TokenCodec) Decode(tokenString string) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(c.now),
		jwt.WithExpirationRequired(),
	}
	if c.issuer != "" {
		opts = append(opts, jwt.WithIssuer(c.issuer))
	}

	claims := &Claims{}
	if _, err := jwt.ParseWithClaims(tokenString, claims, c.keyFunc(claims), opts...); err != nil {
		return nil, mapTokenError(err)
	}
	if claims.Subject == "" || !claims.Kind.Valid() {
		return nil, domain.ErrMalformed
	}
	return claims, nil
}

// DecodeAccess decodes tokenString and requires an access token.
func (c *TokenCodec) DecodeAccess(tokenString string) (*Claims, error) {
	return c.decodeKind(tokenString, TokenKindAccess)
}

// DecodeRefresh decodes tokenString and requires a refresh token.
func (c *TokenCodec) DecodeRefresh(tokenString string) (*Claims, error) {
	return c.decodeKind(tokenString, TokenKindRefresh)
}

func (c *TokenCodec) decodeKind(tokenString string, kind TokenKind) (*Claims, error) {
	claims, err := c.Decode(tokenString)
	if err != nil {
		return nil, err
	}
	if claims.Kind != kind {
		return nil, domain.ErrTokenKindMismatch
	}
	return claims, nil
}

// keyFunc selects verification keys by kid. A retired key only verifies
// tokens issued before its retirement.
func (c *TokenCodec) keyFunc(claims *Claims) jwt.Keyfunc {
	return func(token *jwt.Token) (any, error) {
		var issuedAt time.Time
		if claims.IssuedAt != nil {
			issuedAt = claims.IssuedAt.Time
		}

		c.mu.RLock()
		defer c.mu.RUnlock()

		kid, _ := token.Header["kid"].(string)
		var set jwt.VerificationKeySet
		for _, k := range c.keys {
			if kid != "" && k.id != kid {
				continue
			}
			if k.retiredAt != nil && (issuedAt.IsZero() || !issuedAt.Before(*k.retiredAt)) {
				continue
			}
			set.Keys = append(set.Keys, k.secret)
		}
		if len(set.Keys) == 0 {
			return nil, domain.ErrSignatureInvalid
		}
		return set, nil
	}
}

func mapTokenError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return domain.ErrExpired
	case errors.Is(err, jwt.ErrTokenSignatureInvalid),
		errors.Is(err, jwt.ErrTokenUnverifiable),
		errors.Is(err, jwt.ErrTokenInvalidIssuer):
		return domain.ErrSignatureInvalid
	default:
		return domain.ErrMalformed
	}
}

// RotateKey makes secret the signing key. The previous key keeps verifying
// tokens it signed until they can no longer be live, bounded by the
// configured retention.
func (c *TokenCodec) RotateKey(secret []byte) error {
	if len(secret) < minSecretLength {
		return fmt.Errorf("signing secret must be at least %d bytes", minSecretLength)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	id := keyID(secret)
	if c.hasKeyLocked(id) {
		return fmt.Errorf("signing key %s is already in the keyring", id)
	}

	now := c.now()
	c.keys[0].retiredAt = &now
	c.keys = append([]*signingKey{{id: id, secret: secret}}, c.keys...)
	c.pruneLocked(now)
	return nil
}

// IsSigningKey reports whether secret is the key new tokens are signed with.
func (c *TokenCodec) IsSigningKey(secret []byte) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.keys[0].id == keyID(secret)
}

// KeyIDs lists the key ids in the ring, newest first.
func (c *TokenCodec) KeyIDs() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	ids := make([]string, len(c.keys))
	for i, k := range c.keys {
		ids[i] = k.id
	}
	return ids
}

func (c *TokenCodec) pruneLocked(now time.Time) {
	kept := c.keys[:1]
	for _, k := range c.keys[1:] {
		if len(kept) >= c.retention {
			break
		}
		if k.retiredAt != nil && !now.Before(k.retiredAt.Add(c.refreshTTL)) {
			continue
		}
		kept = append(kept, k)
	}
	c.keys = kept
}

func (c *TokenCodec) hasKeyLocked(id string) bool {
	for _, k := range c.keys {
		if k.id == id {
			return true
		}
	}
	return false
}

// keyID derives a stable, non-secret identifier for a key.
func keyID(secret []byte) string {
	sum := sha256.Sum256(secret)
	return base64.RawURLEncoding.EncodeToString(sum[:8])
}

// ClaimSelector names a claim ExtractClaim can read.
type ClaimSelector string

const (
	ClaimSubject   ClaimSelector = "subject"
	ClaimUserType  ClaimSelector = "user_type"
	ClaimRole      ClaimSelector = "role"
	ClaimKind      ClaimSelector = "kind"
	ClaimIssuedAt  ClaimSelector = "issued_at"
	ClaimExpiresAt ClaimSelector = "expires_at"
	ClaimKeyID     ClaimSelector = "key_id"
)

// ExtractClaim reads one claim without verifying the token. Never use the
// result for an authorization decision.
func ExtractClaim(tokenString string, selector ClaimSelector) (string, error) {
	claims := &Claims{}
	token, _, err := jwt.NewParser().ParseUnverified(tokenString, claims)
	if err != nil {
		return "", domain.ErrMalformed
	}

	switch selector {
	case ClaimSubject:
		return claims.Subject, nil
	case ClaimUserType:
		return string(claims.UserType), nil
	case ClaimRole:
		return string(claims.Role), nil
	case ClaimKind:
		return string(claims.Kind), nil
	case ClaimIssuedAt:
		return formatNumericDate(claims.IssuedAt), nil
	case ClaimExpiresAt:
		return formatNumericDate(claims.ExpiresAt), nil
	case ClaimKeyID:
		kid, _ := token.Header["kid"].(string)
		return kid, nil
	default:
		return "", fmt.Errorf("unknown claim selector %q", selector)
	}
}

func formatNumericDate(d *jwt.NumericDate) string {
	if d == nil {
		return ""
	}
	return d.UTC().Format(time.RFC3339)
}

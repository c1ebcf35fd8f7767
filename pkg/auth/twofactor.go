package auth

import (
	"bytes"
	"context"
	"crypto/aes"
	"crypto/cipher"
	"encoding/base64"
	"errors"
	"fmt"
	"image/png"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"github.com/shelfmart/authcore/pkg/domain"
)

const (
	// TOTP parameters
	totpDigits = otp.DigitsSix
	totpPeriod = 30
	totpSkew   = 1 // one step of drift on each side

	qrCodeSize = 200
)

// TwoFactorConfig configures TwoFactorAuth.
type TwoFactorConfig struct {
	Issuer        string // shown in authenticator apps
	EncryptionKey []byte // 32 bytes for AES-256
	Now           func() time.Time
	Logger        *slog.Logger
}

// Enrollment is what a user needs to add the secret to an authenticator app.
type Enrollment struct {
	Secret        string `json:"secret"`
	URL           string `json:"otpauth_url"`
	QRCodeDataURI string `json:"qr_code"`
}

// TwoFactorAuth enrolls and verifies TOTP codes. A secret is stored
// encrypted and stays disabled until its first successful verification.
type TwoFactorAuth struct {
	store  TwoFactorStore
	users  UserStore
	issuer string
	aead   cipher.AEAD
	now    func() time.Time
	logger *slog.Logger
}

// NewTwoFactorAuth validates the encryption key and builds the service.
func NewTwoFactorAuth(store TwoFactorStore, users UserStore, cfg TwoFactorConfig) (*TwoFactorAuth, error) {
	if len(cfg.EncryptionKey) != 32 {
		return nil, fmt.Errorf("two-factor encryption key must be 32 bytes, got %d", len(cfg.EncryptionKey))
	}
	block, err := aes.NewCipher(cfg.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	if cfg.Issuer == "" {
		cfg.Issuer = "authcore"
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &TwoFactorAuth{
		store:  store,
		users:  users,
		issuer: cfg.Issuer,
		aead:   aead,
		now:    cfg.Now,
		logger: cfg.Logger,
	}, nil
}

// Enroll generates a fresh secret for userID and stores it disabled. A
// pending enrollment is replaced; an enabled one must be disabled first.
func (s *TwoFactorAuth) Enroll(ctx context.Context, userID uuid.UUID) (*Enrollment, error) {
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.TwoFactorEnabled {
		return nil, domain.ErrTwoFactorAlreadyEnabled
	}

	account := user.Email
	if account == "" {
		account = user.Username
	}
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      s.issuer,
		AccountName: account,
		Period:      totpPeriod,
		Digits:      totpDigits,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate TOTP key: %w", err)
	}

	var qrBuf bytes.Buffer
	img, err := key.Image(qrCodeSize, qrCodeSize)
	if err != nil {
		return nil, fmt.Errorf("failed to generate QR code image: %w", err)
	}
	if err := png.Encode(&qrBuf, img); err != nil {
		return nil, fmt.Errorf("failed to encode QR code: %w", err)
	}

	encrypted, err := s.encryptSecret(key.Secret())
	if err != nil {
		return nil, err
	}
	if err := s.store.SaveTwoFactorSecret(ctx, userID, encrypted); err != nil {
		return nil, fmt.Errorf("failed to store TOTP secret: %w", err)
	}

	return &Enrollment{
		Secret:        key.Secret(),
		URL:           key.URL(),
		QRCodeDataURI: "data:image/png;base64," + base64.StdEncoding.EncodeToString(qrBuf.Bytes()),
	}, nil
}

// Verify checks code against the stored secret. The first successful
// verification enables two-factor authentication for the user.
func (s *TwoFactorAuth) Verify(ctx context.Context, userID uuid.UUID, code string) (bool, error) {
	encrypted, enabled, err := s.store.GetTwoFactor(ctx, userID)
	if err != nil {
		return false, err
	}
	secret, err := s.decryptSecret(encrypted)
	if err != nil {
		return false, err
	}

	// Malformed codes are just wrong codes.
	valid, err := totp.ValidateCustom(code, secret, s.now(), totp.ValidateOpts{
		Period:    totpPeriod,
		Skew:      totpSkew,
		Digits:    totpDigits,
		Algorithm: otp.AlgorithmSHA1,
	})
	if err != nil || !valid {
		return false, nil
	}

	if !enabled {
		if err := s.store.EnableTwoFactor(ctx, userID); err != nil {
			return false, fmt.Errorf("failed to enable two-factor: %w", err)
		}
		s.logger.Info("two-factor authentication enabled", "user_id", userID)
	}
	return true, nil
}

// Disable clears the secret and the enabled flag.
func (s *TwoFactorAuth) Disable(ctx context.Context, userID uuid.UUID) error {
	if err := s.store.ClearTwoFactor(ctx, userID); err != nil {
		return fmt.Errorf("failed to disable two-factor: %w", err)
	}
	s.logger.Info("two-factor authentication disabled", "user_id", userID)
	return nil
}

// encryptSecret seals a TOTP secret with AES-256-GCM; the nonce is prepended.
func (s *TwoFactorAuth) encryptSecret(plaintext string) (string, error) {
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := randomBytes(nonce); err != nil {
		return "", err
	}
	sealed := s.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

func (s *TwoFactorAuth) decryptSecret(encrypted string) (string, error) {
	sealed, err := base64.StdEncoding.DecodeString(encrypted)
	if err != nil {
		return "", fmt.Errorf("failed to decode ciphertext: %w", err)
	}
	if len(sealed) < s.aead.NonceSize() {
		return "", errors.New("ciphertext too short")
	}
	nonce, ciphertext := sealed[:s.aead.NonceSize()], sealed[s.aead.NonceSize():]
	plaintext, err := s.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt TOTP secret: %w", err)
	}
	return string(plaintext), nil
}

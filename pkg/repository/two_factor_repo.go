package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/shelfmart/authcore/pkg/domain"
)

// The encrypted TOTP secret and the enabled flag live on the users row so a
// login reads them together with the credentials.

// SaveTwoFactorSecret stores a pending secret and clears the enabled flag.
func (r *UsersRepository) SaveTwoFactorSecret(ctx context.Context, userID uuid.UUID, secret string) error {
	query := `
		UPDATE users
		SET two_factor_secret = $2, two_factor_enabled = false, updated_at = NOW()
		WHERE id = $1
	`
	return r.updateUser(ctx, r.db, query, userID, secret)
}

// GetTwoFactor returns the stored secret and whether it is enabled.
func (r *UsersRepository) GetTwoFactor(ctx context.Context, userID uuid.UUID) (string, bool, error) {
	var row struct {
		Secret  sql.NullString `db:"two_factor_secret"`
		Enabled bool           `db:"two_factor_enabled"`
	}
	err := r.db.GetContext(ctx, &row, `SELECT two_factor_secret, two_factor_enabled FROM users WHERE id = $1`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, domain.ErrUserNotFound
	}
	if err != nil {
		return "", false, err
	}
	if !row.Secret.Valid {
		return "", false, domain.ErrTwoFactorNotEnrolled
	}
	return row.Secret.String, row.Enabled, nil
}

// EnableTwoFactor marks the stored secret as enabled.
func (r *UsersRepository) EnableTwoFactor(ctx context.Context, userID uuid.UUID) error {
	query := `
		UPDATE users
		SET two_factor_enabled = true, updated_at = NOW()
		WHERE id = $1 AND two_factor_secret IS NOT NULL
	`
	err := r.updateUser(ctx, r.db, query, userID)
	if errors.Is(err, domain.ErrUserNotFound) {
		if _, getErr := r.GetUserByID(ctx, userID); getErr == nil {
			return domain.ErrTwoFactorNotEnrolled
		}
	}
	return err
}

// ClearTwoFactor removes the secret and disables two-factor.
func (r *UsersRepository) ClearTwoFactor(ctx context.Context, userID uuid.UUID) error {
	query := `
		UPDATE users
		SET two_factor_secret = NULL, two_factor_enabled = false, updated_at = NOW()
		WHERE id = $1
	`
	return r.updateUser(ctx, r.db, query, userID)
}

package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shelfmart/authcore/pkg/domain"
)

type resetTokenRow struct {
	ID         uuid.UUID    `db:"id"`
	UserID     uuid.UUID    `db:"user_id"`
	TokenHash  string       `db:"token_hash"`
	CreatedAt  time.Time    `db:"created_at"`
	ExpiresAt  time.Time    `db:"expires_at"`
	ConsumedAt sql.NullTime `db:"consumed_at"`
}

// ResetTokensRepository handles password reset token persistence.
type ResetTokensRepository struct {
	db *sqlx.DB
}

// NewResetTokensRepository creates a new reset tokens repository.
func NewResetTokensRepository(db *sqlx.DB) *ResetTokensRepository {
	return &ResetTokensRepository{db: db}
}

// CreateResetToken consumes the user's live tokens and stores the new one.
func (r *ResetTokensRepository) CreateResetToken(ctx context.Context, token *domain.ResetToken) error {
	return WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		revoke := `
			UPDATE password_reset_tokens
			SET consumed_at = $2
			WHERE user_id = $1 AND consumed_at IS NULL
		`
		if _, err := tx.ExecContext(ctx, revoke, token.UserID, token.CreatedAt); err != nil {
			return err
		}

		insert := `
			INSERT INTO password_reset_tokens (id, user_id, token_hash, created_at, expires_at)
			VALUES ($1, $2, $3, $4, $5)
		`
		_, err := tx.ExecContext(ctx, insert, token.ID, token.UserID, token.TokenHash, token.CreatedAt, token.ExpiresAt)
		return err
	})
}

// GetResetToken retrieves a token by hash.
func (r *ResetTokensRepository) GetResetToken(ctx context.Context, tokenHash string) (*domain.ResetToken, error) {
	var row resetTokenRow
	query := `
		SELECT id, user_id, token_hash, created_at, expires_at, consumed_at
		FROM password_reset_tokens
		WHERE token_hash = $1
	`
	err := r.db.GetContext(ctx, &row, query, tokenHash)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrInvalidOrExpiredToken
	}
	if err != nil {
		return nil, err
	}

	t := &domain.ResetToken{
		ID:        row.ID,
		UserID:    row.UserID,
		TokenHash: row.TokenHash,
		CreatedAt: row.CreatedAt,
		ExpiresAt: row.ExpiresAt,
	}
	if row.ConsumedAt.Valid {
		consumed := row.ConsumedAt.Time
		t.ConsumedAt = &consumed
	}
	return t, nil
}

// RedeemResetToken consumes a live token and writes the new password hash in
// one transaction. The conditional UPDATE makes a second redemption match
// nothing.
func (r *ResetTokensRepository) RedeemResetToken(ctx context.Context, tokenHash, passwordHash string, now time.Time) (uuid.UUID, error) {
	var userID uuid.UUID
	err := WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		consume := `
			UPDATE password_reset_tokens
			SET consumed_at = $2
			WHERE token_hash = $1 AND consumed_at IS NULL AND expires_at > $2
			RETURNING user_id
		`
		if err := tx.GetContext(ctx, &userID, consume, tokenHash, now); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return domain.ErrInvalidOrExpiredToken
			}
			return err
		}

		result, err := tx.ExecContext(ctx,
			`UPDATE users SET password_hash = $2, updated_at = $3 WHERE id = $1`,
			userID, passwordHash, now)
		if err != nil {
			return err
		}
		if rows, err := result.RowsAffected(); err != nil {
			return err
		} else if rows == 0 {
			return domain.ErrInvalidOrExpiredToken
		}
		return nil
	})
	if err != nil {
		return uuid.Nil, err
	}
	return userID, nil
}

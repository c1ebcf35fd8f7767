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

const sessionColumns = `id, user_id, refresh_token_hash, ip, user_agent, created_at, expires_at, revoked_at`

type sessionRow struct {
	ID               uuid.UUID    `db:"id"`
	UserID           uuid.UUID    `db:"user_id"`
	RefreshTokenHash string       `db:"refresh_token_hash"`
	IP               string       `db:"ip"`
	UserAgent        string       `db:"user_agent"`
	CreatedAt        time.Time    `db:"created_at"`
	ExpiresAt        time.Time    `db:"expires_at"`
	RevokedAt        sql.NullTime `db:"revoked_at"`
}

func (r sessionRow) toDomain() *domain.Session {
	s := &domain.Session{
		ID:               r.ID,
		UserID:           r.UserID,
		RefreshTokenHash: r.RefreshTokenHash,
		IP:               r.IP,
		UserAgent:        r.UserAgent,
		CreatedAt:        r.CreatedAt,
		ExpiresAt:        r.ExpiresAt,
	}
	if r.RevokedAt.Valid {
		t := r.RevokedAt.Time
		s.RevokedAt = &t
	}
	return s
}

// SessionsRepository handles session persistence.
type SessionsRepository struct {
	db *sqlx.DB
}

// NewSessionsRepository creates a new sessions repository.
func NewSessionsRepository(db *sqlx.DB) *SessionsRepository {
	return &SessionsRepository{db: db}
}

// CreateSession inserts a session.
func (r *SessionsRepository) CreateSession(ctx context.Context, session *domain.Session) error {
	return r.createTx(ctx, r.db, session)
}

func (r *SessionsRepository) createTx(ctx context.Context, q Querier, session *domain.Session) error {
	query := `
		INSERT INTO sessions (id, user_id, refresh_token_hash, ip, user_agent, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := q.ExecContext(ctx, query,
		session.ID, session.UserID, session.RefreshTokenHash, session.IP, session.UserAgent,
		session.CreatedAt, session.ExpiresAt,
	)
	return err
}

func (r *SessionsRepository) getOne(ctx context.Context, query string, args ...any) (*domain.Session, error) {
	var row sessionRow
	err := r.db.GetContext(ctx, &row, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	return row.toDomain(), nil
}

// GetSession retrieves a session by ID.
func (r *SessionsRepository) GetSession(ctx context.Context, id uuid.UUID) (*domain.Session, error) {
	return r.getOne(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = $1`, id)
}

// GetSessionByTokenHash retrieves a session by refresh token hash, revoked or not.
func (r *SessionsRepository) GetSessionByTokenHash(ctx context.Context, tokenHash string) (*domain.Session, error) {
	return r.getOne(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE refresh_token_hash = $1`, tokenHash)
}

// RevokeSession revokes a live session.
func (r *SessionsRepository) RevokeSession(ctx context.Context, id uuid.UUID, at time.Time) error {
	query := `
		UPDATE sessions
		SET revoked_at = $2
		WHERE id = $1 AND revoked_at IS NULL
	`
	result, err := r.db.ExecContext(ctx, query, id, at)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return domain.ErrSessionNotFound
	}
	return nil
}

// RevokeUserSessions revokes every live session of a user.
func (r *SessionsRepository) RevokeUserSessions(ctx context.Context, userID uuid.UUID, at time.Time) (int, error) {
	query := `
		UPDATE sessions
		SET revoked_at = $2
		WHERE user_id = $1 AND revoked_at IS NULL
	`
	result, err := r.db.ExecContext(ctx, query, userID, at)
	if err != nil {
		return 0, err
	}
	rows, err := result.RowsAffected()
	return int(rows), err
}

// RotateSession revokes the live session holding oldHash and inserts next in
// one transaction. The conditional UPDATE takes the row lock, so a concurrent
// rotation of the same hash re-evaluates revoked_at after this commit and
// matches nothing.
func (r *SessionsRepository) RotateSession(ctx context.Context, oldHash string, next *domain.Session, now time.Time) (*domain.Session, error) {
	var old sessionRow
	err := WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		query := `
			UPDATE sessions
			SET revoked_at = $3
			WHERE refresh_token_hash = $1 AND user_id = $2 AND revoked_at IS NULL AND expires_at > $3
			RETURNING ` + sessionColumns
		if err := tx.GetContext(ctx, &old, query, oldHash, next.UserID, now); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return domain.ErrInvalidOrExpiredToken
			}
			return err
		}
		return r.createTx(ctx, tx, next)
	})
	if err != nil {
		return nil, err
	}
	return old.toDomain(), nil
}

// DeleteExpired removes sessions that expired or were revoked before cutoff.
func (r *SessionsRepository) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `
		DELETE FROM sessions
		WHERE expires_at < $1 OR (revoked_at IS NOT NULL AND revoked_at < $1)
	`
	result, err := r.db.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

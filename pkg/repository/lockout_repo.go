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

type lockoutRow struct {
	FailedAttempts int          `db:"failed_login_attempts"`
	LockedUntil    sql.NullTime `db:"locked_until"`
	LockedAt       sql.NullTime `db:"locked_at"`
}

func (r lockoutRow) toDomain() domain.LockoutState {
	st := domain.LockoutState{FailedAttempts: r.FailedAttempts}
	if r.LockedUntil.Valid {
		t := r.LockedUntil.Time
		st.LockedUntil = &t
	}
	if r.LockedAt.Valid {
		t := r.LockedAt.Time
		st.LockedAt = &t
	}
	return st
}

// LockoutRepository keeps failed login state on the users row. Every
// transition is one UPDATE, so concurrent failures for the same user are
// serialized by the row lock. Status flips between ACTIVE and LOCKED;
// SUSPENDED and DEACTIVATED are never touched.
type LockoutRepository struct {
	db *sqlx.DB
}

// NewLockoutRepository creates a new lockout repository.
func NewLockoutRepository(db *sqlx.DB) *LockoutRepository {
	return &LockoutRepository{db: db}
}

// GetLockout returns the lockout state of a user. Unknown users have none.
func (r *LockoutRepository) GetLockout(ctx context.Context, userID uuid.UUID) (domain.LockoutState, error) {
	var row lockoutRow
	query := `SELECT failed_login_attempts, locked_until, locked_at FROM users WHERE id = $1`
	err := r.db.GetContext(ctx, &row, query, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.LockoutState{}, nil
	}
	if err != nil {
		return domain.LockoutState{}, err
	}
	return row.toDomain(), nil
}

// ReserveAttempt counts an attempt unless a lock is in force at now and
// locks the account once the threshold is reached. The lock check is part
// of the UPDATE's WHERE clause, so concurrent attempts serialize on the row
// and none slips past a lock set by another.
func (r *LockoutRepository) ReserveAttempt(ctx context.Context, userID uuid.UUID, policy domain.LockoutPolicy, now time.Time) (domain.LockoutState, error) {
	query := `
		UPDATE users
		SET failed_login_attempts = failed_login_attempts + 1,
		    locked_at = CASE
		        WHEN failed_login_attempts + 1 >= $3 THEN $2::timestamptz
		        ELSE locked_at
		    END,
		    locked_until = CASE
		        WHEN failed_login_attempts + 1 >= $3 THEN $4::timestamptz
		        ELSE locked_until
		    END,
		    status = CASE
		        WHEN status = 'ACTIVE' AND failed_login_attempts + 1 >= $3 THEN 'LOCKED'
		        ELSE status
		    END,
		    updated_at = $2
		WHERE id = $1 AND (locked_until IS NULL OR locked_until <= $2)
		RETURNING failed_login_attempts, locked_until, locked_at
	`
	var row lockoutRow
	err := r.db.GetContext(ctx, &row, query, userID, now, policy.Threshold, now.Add(policy.Duration))
	if errors.Is(err, sql.ErrNoRows) {
		return r.lockedOrMissing(ctx, userID)
	}
	if err != nil {
		return domain.LockoutState{}, err
	}
	return row.toDomain(), nil
}

// ReleaseAttempt zeroes the counter and clears the lock unless a lock
// other than ownedLock is in force at now.
func (r *LockoutRepository) ReleaseAttempt(ctx context.Context, userID uuid.UUID, ownedLock *time.Time, now time.Time) error {
	query := `
		UPDATE users
		SET failed_login_attempts = 0,
		    locked_until = NULL,
		    locked_at = NULL,
		    status = CASE WHEN status = 'LOCKED' THEN 'ACTIVE' ELSE status END,
		    updated_at = $2
		WHERE id = $1
		  AND (locked_until IS NULL OR locked_until <= $2 OR locked_at = $3::timestamptz)
	`
	var owned sql.NullTime
	if ownedLock != nil {
		owned = sql.NullTime{Time: *ownedLock, Valid: true}
	}
	res, err := r.db.ExecContext(ctx, query, userID, now, owned)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		_, err := r.lockedOrMissing(ctx, userID)
		return err
	}
	return nil
}

// lockedOrMissing explains an UPDATE that matched no row: the user is
// either gone or held by a lock.
func (r *LockoutRepository) lockedOrMissing(ctx context.Context, userID uuid.UUID) (domain.LockoutState, error) {
	var row lockoutRow
	query := `SELECT failed_login_attempts, locked_until, locked_at FROM users WHERE id = $1`
	err := r.db.GetContext(ctx, &row, query, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.LockoutState{}, domain.ErrUserNotFound
	}
	if err != nil {
		return domain.LockoutState{}, err
	}
	return row.toDomain(), domain.ErrAccountLocked
}

// ResetFailures zeroes the counter and clears a lock that has elapsed at now.
func (r *LockoutRepository) ResetFailures(ctx context.Context, userID uuid.UUID, now time.Time) error {
	query := `
		UPDATE users
		SET failed_login_attempts = 0,
		    locked_until = CASE WHEN locked_until <= $2 THEN NULL ELSE locked_until END,
		    locked_at = CASE WHEN locked_until <= $2 THEN NULL ELSE locked_at END,
		    status = CASE
		        WHEN status = 'LOCKED' AND (locked_until IS NULL OR locked_until <= $2) THEN 'ACTIVE'
		        ELSE status
		    END,
		    updated_at = $2
		WHERE id = $1
	`
	_, err := r.db.ExecContext(ctx, query, userID, now)
	return err
}

// ClearLockout removes any lock and zeroes the counter.
func (r *LockoutRepository) ClearLockout(ctx context.Context, userID uuid.UUID) error {
	query := `
		UPDATE users
		SET failed_login_attempts = 0,
		    locked_until = NULL,
		    locked_at = NULL,
		    status = CASE WHEN status = 'LOCKED' THEN 'ACTIVE' ELSE status END,
		    updated_at = NOW()
		WHERE id = $1
	`
	_, err := r.db.ExecContext(ctx, query, userID)
	return err
}

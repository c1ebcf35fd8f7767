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

const userColumns = `
	id, username, email, mobile, password_hash, role, status, email_verified, mobile_verified,
	failed_login_attempts, locked_until, two_factor_enabled, two_factor_secret, created_at, updated_at`

type userRow struct {
	ID                  uuid.UUID      `db:"id"`
	Username            string         `db:"username"`
	Email               string         `db:"email"`
	Mobile              sql.NullString `db:"mobile"`
	PasswordHash        string         `db:"password_hash"`
	Role                string         `db:"role"`
	Status              string         `db:"status"`
	EmailVerified       bool           `db:"email_verified"`
	MobileVerified      bool           `db:"mobile_verified"`
	FailedLoginAttempts int            `db:"failed_login_attempts"`
	LockedUntil         sql.NullTime   `db:"locked_until"`
	TwoFactorEnabled    bool           `db:"two_factor_enabled"`
	TwoFactorSecret     sql.NullString `db:"two_factor_secret"`
	CreatedAt           time.Time      `db:"created_at"`
	UpdatedAt           time.Time      `db:"updated_at"`
}

func (r userRow) toDomain() *domain.User {
	u := &domain.User{
		ID:                  r.ID,
		Username:            r.Username,
		Email:               r.Email,
		PasswordHash:        r.PasswordHash,
		Role:                domain.Role(r.Role),
		Status:              domain.AccountStatus(r.Status),
		EmailVerified:       r.EmailVerified,
		MobileVerified:      r.MobileVerified,
		FailedLoginAttempts: r.FailedLoginAttempts,
		TwoFactorEnabled:    r.TwoFactorEnabled,
		CreatedAt:           r.CreatedAt,
		UpdatedAt:           r.UpdatedAt,
	}
	if r.Mobile.Valid {
		m := r.Mobile.String
		u.Mobile = &m
	}
	if r.LockedUntil.Valid {
		t := r.LockedUntil.Time
		u.LockedUntil = &t
	}
	if r.TwoFactorSecret.Valid {
		s := r.TwoFactorSecret.String
		u.TwoFactorSecret = &s
	}
	return u
}

// UsersRepository handles user persistence, including the two-factor columns.
type UsersRepository struct {
	db *sqlx.DB
}

// NewUsersRepository creates a new users repository.
func NewUsersRepository(db *sqlx.DB) *UsersRepository {
	return &UsersRepository{db: db}
}

func (r *UsersRepository) getOne(ctx context.Context, query string, args ...any) (*domain.User, error) {
	var row userRow
	err := r.db.GetContext(ctx, &row, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return row.toDomain(), nil
}

// GetUserByID retrieves a user by ID.
func (r *UsersRepository) GetUserByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

// GetUserByIdentifier retrieves a user by username, email or mobile number.
func (r *UsersRepository) GetUserByIdentifier(ctx context.Context, identifier string) (*domain.User, error) {
	query := `SELECT ` + userColumns + `
		FROM users
		WHERE lower(username) = lower($1) OR lower(email) = lower($1) OR mobile = $1
		LIMIT 1`
	return r.getOne(ctx, query, identifier)
}

// GetUserByEmail retrieves a user by email.
func (r *UsersRepository) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE lower(email) = lower($1)`, email)
}

// CreateUser inserts a user. A username, email or mobile clash returns
// domain.ErrUserAlreadyExists.
func (r *UsersRepository) CreateUser(ctx context.Context, user *domain.User) error {
	query := `
		INSERT INTO users (id, username, email, mobile, password_hash, role, status,
		                   email_verified, mobile_verified, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := r.db.ExecContext(ctx, query,
		user.ID, user.Username, user.Email, user.Mobile, user.PasswordHash,
		string(user.Role), string(user.Status), user.EmailVerified, user.MobileVerified,
		user.CreatedAt, user.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return domain.ErrUserAlreadyExists
	}
	return err
}

// UpdatePasswordHash replaces the stored password hash.
func (r *UsersRepository) UpdatePasswordHash(ctx context.Context, id uuid.UUID, hash string) error {
	return r.updateUser(ctx, r.db, `UPDATE users SET password_hash = $2, updated_at = NOW() WHERE id = $1`, id, hash)
}

// SetStatus changes the administrative status.
func (r *UsersRepository) SetStatus(ctx context.Context, id uuid.UUID, status domain.AccountStatus) error {
	return r.updateUser(ctx, r.db, `UPDATE users SET status = $2, updated_at = NOW() WHERE id = $1`, id, string(status))
}

func (r *UsersRepository) updateUser(ctx context.Context, q Querier, query string, args ...any) error {
	result, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

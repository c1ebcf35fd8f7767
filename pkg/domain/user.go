package domain

import (
	"time"

	"github.com/google/uuid"
)

// AccountStatus is the administrative state of an account.
type AccountStatus string

const (
	StatusActive      AccountStatus = "ACTIVE"
	StatusLocked      AccountStatus = "LOCKED"
	StatusSuspended   AccountStatus = "SUSPENDED"
	StatusDeactivated AccountStatus = "DEACTIVATED"
)

// Valid reports whether s is one of the enumerated statuses.
func (s AccountStatus) Valid() bool {
	switch s {
	case StatusActive, StatusLocked, StatusSuspended, StatusDeactivated:
		return true
	}
	return false
}

// CanAuthenticate reports whether an account in this status may log in.
// LOCKED is handled by the lockout guard, which knows when the lock expires.
func (s AccountStatus) CanAuthenticate() bool {
	return s == StatusActive || s == StatusLocked
}

// User represents the account.
type User struct {
	ID                  uuid.UUID
	Username            string
	Email               string
	Mobile              *string
	PasswordHash        string
	Role                Role
	Status              AccountStatus
	EmailVerified       bool
	MobileVerified      bool
	FailedLoginAttempts int
	LockedUntil         *time.Time
	TwoFactorEnabled    bool
	TwoFactorSecret     *string
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// IsLocked returns true if the account is currently locked at the given time.
func (u *User) IsLocked(now time.Time) bool {
	if u.LockedUntil == nil {
		return false
	}
	return now.Before(*u.LockedUntil)
}

// UserType returns the legacy coarse user type derived from the role.
func (u *User) UserType() UserType {
	return u.Role.UserType()
}

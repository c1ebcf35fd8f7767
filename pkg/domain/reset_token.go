package domain

import (
	"time"

	"github.com/google/uuid"
)

// ResetToken is a single-use password reset token. Only its hash is stored.
type ResetToken struct {
	ID         uuid.UUID
	UserID     uuid.UUID
	TokenHash  string
	CreatedAt  time.Time
	ExpiresAt  time.Time
	ConsumedAt *time.Time
}

// IsValid reports whether the token is unconsumed and unexpired at now.
func (t *ResetToken) IsValid(now time.Time) bool {
	return t.ConsumedAt == nil && now.Before(t.ExpiresAt)
}

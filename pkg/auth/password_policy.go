package auth

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/shelfmart/authcore/internal/config"
	"github.com/shelfmart/authcore/pkg/domain"
)

// maxPasswordLength bounds the input handed to the hasher.
const maxPasswordLength = 128

// PasswordPolicy defines password complexity requirements.
type PasswordPolicy struct {
	MinLength        int
	RequireUppercase bool
	RequireLowercase bool
	RequireNumber    bool
	RequireSpecial   bool
}

// NewPasswordPolicy creates a PasswordPolicy from config.
func NewPasswordPolicy(cfg config.PasswordPolicyConfig) *PasswordPolicy {
	return &PasswordPolicy{
		MinLength:        cfg.MinLength,
		RequireUppercase: cfg.RequireUppercase,
		RequireLowercase: cfg.RequireLowercase,
		RequireNumber:    cfg.RequireNumber,
		RequireSpecial:   cfg.RequireSpecial,
	}
}

// ValidatePassword checks a password against the policy. Every failure
// wraps domain.ErrWeakPassword.
func (p *PasswordPolicy) ValidatePassword(password string) error {
	if password == "" {
		return fmt.Errorf("%w: password is required", domain.ErrWeakPassword)
	}
	if len(password) > maxPasswordLength {
		return fmt.Errorf("%w: password must be at most %d characters long", domain.ErrWeakPassword, maxPasswordLength)
	}
	if p.MinLength > 0 && len(password) < p.MinLength {
		return fmt.Errorf("%w: password must be at least %d characters long", domain.ErrWeakPassword, p.MinLength)
	}

	if p.RequireUppercase && !containsUppercase(password) {
		return fmt.Errorf("%w: password must contain at least one uppercase letter", domain.ErrWeakPassword)
	}

	if p.RequireLowercase && !containsLowercase(password) {
		return fmt.Errorf("%w: password must contain at least one lowercase letter", domain.ErrWeakPassword)
	}

	if p.RequireNumber && !containsNumber(password) {
		return fmt.Errorf("%w: password must contain at least one number", domain.ErrWeakPassword)
	}

	if p.RequireSpecial && !containsSpecial(password) {
		return fmt.Errorf("%w: password must contain at least one special character", domain.ErrWeakPassword)
	}

	return nil
}

// GetRequirements returns a human-readable description of the policy.
func (p *PasswordPolicy) GetRequirements() string {
	if !p.HasRequirements() {
		return "No password requirements"
	}

	var requirements []string

	if p.MinLength > 0 {
		requirements = append(requirements, fmt.Sprintf("at least %d characters", p.MinLength))
	}
	if p.RequireUppercase {
		requirements = append(requirements, "one uppercase letter")
	}
	if p.RequireLowercase {
		requirements = append(requirements, "one lowercase letter")
	}
	if p.RequireNumber {
		requirements = append(requirements, "one number")
	}
	if p.RequireSpecial {
		requirements = append(requirements, "one special character")
	}

	return "Password must contain " + strings.Join(requirements, ", ")
}

// HasRequirements returns true if the policy has any requirements.
func (p *PasswordPolicy) HasRequirements() bool {
	return p.MinLength > 0 || p.RequireUppercase || p.RequireLowercase || p.RequireNumber || p.RequireSpecial
}

// containsUppercase checks if string contains at least one uppercase letter.
func containsUppercase(s string) bool {
	for _, r := range s {
		if unicode.IsUpper(r) {
			return true
		}
	}
	return false
}

// containsLowercase checks if string contains at least one lowercase letter.
func containsLowercase(s string) bool {
	for _, r := range s {
		if unicode.IsLower(r) {
			return true
		}
	}
	return false
}

// containsNumber checks if string contains at least one digit.
func containsNumber(s string) bool {
	for _, r := range s {
		if unicode.IsDigit(r) {
			return true
		}
	}
	return false
}

// containsSpecial checks if string contains at least one special character.
func containsSpecial(s string) bool {
	for _, r := range s {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && !unicode.IsSpace(r) {
			return true
		}
	}
	return false
}

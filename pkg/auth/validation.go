package auth

import (
	"fmt"
	"net/mail"
	"regexp"
	"strings"

	"github.com/shelfmart/authcore/pkg/domain"
)

const maxEmailLength = 254 // RFC 5321

var (
	usernameRegex = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_-]{2,29}$`)
	mobileRegex   = regexp.MustCompile(`^\+?[1-9][0-9]{7,14}$`)
	// Stricter than RFC 5322; used when strict validation is on.
	emailRegex = regexp.MustCompile(`^[a-zA-Z0-9.!#$%&'*+/=?^_` + "`" + `{|}~-]+@[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?(?:\.[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?)+$`)
)

var disposableDomains = map[string]bool{
	"tempmail.com":      true,
	"10minutemail.com":  true,
	"guerrillamail.com": true,
	"mailinator.com":    true,
	"throwaway.email":   true,
}

// ValidateEmail checks format and length. Every failure wraps domain.ErrInvalidEmail.
func ValidateEmail(email string, strict, blockDisposable bool) error {
	if email == "" {
		return fmt.Errorf("%w: email address is required", domain.ErrInvalidEmail)
	}
	if len(email) > maxEmailLength {
		return fmt.Errorf("%w: too long (max %d characters)", domain.ErrInvalidEmail, maxEmailLength)
	}

	addr, err := mail.ParseAddress(NormalizeEmail(email))
	if err != nil || addr.Address != NormalizeEmail(email) {
		return domain.ErrInvalidEmail
	}
	if strict && !emailRegex.MatchString(addr.Address) {
		return domain.ErrInvalidEmail
	}
	if blockDisposable {
		_, host, _ := strings.Cut(addr.Address, "@")
		if disposableDomains[host] {
			return fmt.Errorf("%w: disposable email addresses are not allowed", domain.ErrInvalidEmail)
		}
	}
	return nil
}

// NormalizeEmail lowercases and trims an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidateUsername allows 3-30 ASCII letters, digits, underscores and
// hyphens, starting with a letter or digit.
func ValidateUsername(username string) error {
	if !usernameRegex.MatchString(username) {
		return domain.ErrInvalidUsername
	}
	return nil
}

// ValidateMobile accepts E.164-style numbers with an optional leading plus.
func ValidateMobile(mobile string) error {
	if !mobileRegex.MatchString(mobile) {
		return domain.ErrInvalidMobile
	}
	return nil
}

// IsEmail reports whether a login identifier should be treated as an email.
func IsEmail(identifier string) bool {
	return strings.Contains(identifier, "@")
}

// NormalizeIdentifier trims a login identifier and lowercases it when it is an email.
func NormalizeIdentifier(identifier string) string {
	identifier = strings.TrimSpace(identifier)
	if IsEmail(identifier) {
		return strings.ToLower(identifier)
	}
	return identifier
}

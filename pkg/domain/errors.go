package domain

import "errors"

// Token errors
var (
	ErrMalformed         = errors.New("malformed token")
	ErrSignatureInvalid  = errors.New("token signature invalid")
	ErrExpired           = errors.New("token expired")
	ErrTokenKindMismatch = errors.New("token kind not accepted here")
	ErrUnknownRole       = errors.New("unknown role")
)

// Authentication errors
var (
	ErrUserNotFound          = errors.New("user not found")
	ErrUserAlreadyExists     = errors.New("user already exists")
	ErrInvalidCredentials    = errors.New("invalid credentials")
	ErrAccountLocked         = errors.New("account locked due to too many failed login attempts")
	ErrAccountDisabled       = errors.New("account is not active")
	ErrSessionNotFound       = errors.New("session not found")
	ErrSessionRevoked        = errors.New("session revoked")
	ErrInvalidOrExpiredToken = errors.New("invalid or expired token")
)

// Validation errors
var (
	ErrInvalidEmail    = errors.New("invalid email address")
	ErrInvalidUsername = errors.New("invalid username format")
	ErrInvalidMobile   = errors.New("invalid mobile number")
	ErrWeakPassword    = errors.New("password does not meet requirements")
)

// Two-factor errors
var (
	ErrTwoFactorRequired       = errors.New("two-factor code required")
	ErrInvalidTwoFactorCode    = errors.New("invalid two-factor code")
	ErrTwoFactorNotEnrolled    = errors.New("two-factor authentication is not enrolled")
	ErrTwoFactorAlreadyEnabled = errors.New("two-factor authentication is already enabled")
	ErrTwoFactorUnavailable    = errors.New("two-factor authentication is not configured")
)

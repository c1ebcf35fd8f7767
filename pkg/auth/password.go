package auth

import (
	"strings"
	"sync"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

// Argon2 parameters (OWASP recommended)
const (
	argon2Time    = 1
	argon2Memory  = 64 * 1024 // 64 MB
	argon2Threads = 4
	argon2KeyLen  = 32
	saltLen       = 16
)

// PasswordHasher encodes and verifies passwords.
type PasswordHasher interface {
	Encode(password string) (string, error)
	Verify(password, encodedHash string) bool
}

// Argon2Params tunes the argon2id cost.
type Argon2Params struct {
	Time    uint32
	Memory  uint32 // KiB
	Threads uint8
	KeyLen  uint32
}

// DefaultArgon2Params returns the production cost parameters.
func DefaultArgon2Params() Argon2Params {
	return Argon2Params{
		Time:    argon2Time,
		Memory:  argon2Memory,
		Threads: argon2Threads,
		KeyLen:  argon2KeyLen,
	}
}

// CredentialVerifier hashes new passwords with argon2id and verifies both
// argon2id and legacy bcrypt hashes in constant time.
type CredentialVerifier struct {
	params Argon2Params

	dummyOnce sync.Once
	dummyHash string
}

// NewCredentialVerifier creates a verifier. Zero params use the defaults.
func NewCredentialVerifier(params Argon2Params) *CredentialVerifier {
	if params == (Argon2Params{}) {
		params = DefaultArgon2Params()
	}
	return &CredentialVerifier{params: params}
}

// Encode hashes a password using argon2id with a random salt.
func (v *CredentialVerifier) Encode(password string) (string, error) {
	salt := make([]byte, saltLen)
	if _, err := randomBytes(salt); err != nil {
		return "", err
	}

	p := v.params
	hash := argon2.IDKey([]byte(password), salt, p.Time, p.Memory, p.Threads, p.KeyLen)
	return encodeArgon2Hash(hash, salt, p.Time, p.Memory, p.Threads), nil
}

// Verify compares password against an argon2id or bcrypt hash.
func (v *CredentialVerifier) Verify(password, encodedHash string) bool {
	if isBcryptHash(encodedHash) {
		return bcrypt.CompareHashAndPassword([]byte(encodedHash), []byte(password)) == nil
	}

	hash, salt, time, memory, threads, err := decodeArgon2Hash(encodedHash)
	if err != nil {
		return false
	}
	computed := argon2.IDKey([]byte(password), salt, time, memory, threads, uint32(len(hash)))
	return constantTimeCompare(hash, computed)
}

// NeedsRehash reports whether encodedHash should be replaced after a
// successful login: bcrypt hashes and argon2id hashes with other parameters.
func (v *CredentialVerifier) NeedsRehash(encodedHash string) bool {
	if isBcryptHash(encodedHash) {
		return true
	}
	hash, _, time, memory, threads, err := decodeArgon2Hash(encodedHash)
	if err != nil {
		return true
	}
	p := v.params
	return time != p.Time || memory != p.Memory || threads != p.Threads || uint32(len(hash)) != p.KeyLen
}

// DummyVerify burns the same work as a real verification. It is called for
// unknown users so response timing does not reveal which accounts exist.
func (v *CredentialVerifier) DummyVerify(password string) {
	v.dummyOnce.Do(func() {
		v.dummyHash, _ = v.Encode("dummy-password-for-timing")
	})
	_ = v.Verify(password, v.dummyHash)
}

func isBcryptHash(h string) bool {
	return strings.HasPrefix(h, "$2a$") || strings.HasPrefix(h, "$2b$") || strings.HasPrefix(h, "$2y$")
}

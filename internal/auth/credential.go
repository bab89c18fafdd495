package auth

import (
	"crypto/subtle"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

const (
	// HashCost is the bcrypt work factor for every stored password.
	HashCost = 10
	// MaxPasswordBytes is the longest input bcrypt accepts.
	MaxPasswordBytes = 72
)

// Credential is a stored password in one of its two representations:
// HashedCredential for bcrypt hashes, LegacyCredential for plaintext rows
// that predate hashing.
type Credential interface {
	Matches(password string) bool
	isCredential()
}

// HashedCredential is a bcrypt hash.
type HashedCredential []byte

func (c HashedCredential) Matches(password string) bool {
	return bcrypt.CompareHashAndPassword(c, []byte(password)) == nil
}

func (HashedCredential) isCredential() {}

// LegacyCredential is a plaintext password awaiting migration.
type LegacyCredential string

func (c LegacyCredential) Matches(password string) bool {
	return subtle.ConstantTimeCompare([]byte(c), []byte(password)) == 1
}

func (LegacyCredential) isCredential() {}

// ParseCredential classifies a stored password value.
func ParseCredential(stored string) Credential {
	if IsBcryptHash(stored) {
		return HashedCredential(stored)
	}
	return LegacyCredential(stored)
}

// IsBcryptHash reports whether s has the shape of a bcrypt hash.
func IsBcryptHash(s string) bool {
	if len(s) != 60 {
		return false
	}
	for _, prefix := range []string{"$2a$", "$2b$", "$2y$"} {
		if strings.HasPrefix(s, prefix) {
			return true
		}
	}
	return false
}

// HashPassword returns the bcrypt hash of password at HashCost.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), HashCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

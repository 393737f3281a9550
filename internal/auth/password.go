// Package auth issues and verifies credentials: bcrypt password hashes,
// HS256 access tokens, opaque refresh tokens and OAuth identities.
package auth

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"deepsafe/internal/pkg/result"
)

// MinPasswordLength is the shortest accepted password.
const MinPasswordLength = 8

// Password errors.
var (
	ErrInvalidCredentials = result.New(result.KindUnauthorized, "invalid email or password")
	ErrWeakPassword       = result.New(result.KindValidation, fmt.Sprintf("password must be at least %d characters", MinPasswordLength))
)

// HashPassword hashes a password with bcrypt's default cost.
func HashPassword(password string) (string, error) {
	if len(password) < MinPasswordLength {
		return "", ErrWeakPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// CheckPassword compares a password with its hash.
// Returns ErrInvalidCredentials on mismatch.
func CheckPassword(hash, password string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return ErrInvalidCredentials
	}
	if err != nil {
		return fmt.Errorf("failed to check password: %w", err)
	}
	return nil
}

package utils

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// bcrypt ignores input past 72 bytes, so longer passwords are rejected
// instead of being silently truncated.
const maxPasswordBytes = 72

// ErrPasswordTooLong is returned when the plaintext exceeds what bcrypt
// can hash.
var ErrPasswordTooLong = errors.New("password exceeds 72 bytes")

// HashPassword returns the bcrypt hash of a member password.
func HashPassword(password string) (string, error) {
	if len(password) > maxPasswordBytes {
		return "", ErrPasswordTooLong
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckPassword reports whether the plaintext matches the stored hash.
func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

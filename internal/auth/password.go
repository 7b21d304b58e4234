package auth

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// bcryptCost is a deployment constant, never a request parameter.
const bcryptCost = bcrypt.DefaultCost

// HashPassword hashes a plaintext password using bcrypt with a per-call
// salt.
func HashPassword(password string) (string, error) {
	if len(password) == 0 {
		return "", errors.New("password is empty")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// VerifyPassword compares a plaintext password with a stored hash.
func VerifyPassword(hash, password string) error {
	if hash == "" {
		return errors.New("password hash is empty")
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
}

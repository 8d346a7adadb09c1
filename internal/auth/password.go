package auth

import (
	"errors"
	"os"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

const (
	adminUserEnv = "SAPL_LEXML_ADMIN_USER"
	adminHashEnv = "SAPL_LEXML_ADMIN_PASSWORD_HASH"
)

// HashPassword hashes plaintext password using bcrypt.
func HashPassword(password string) (string, error) {
	if len(password) == 0 {
		return "", errors.New("password is empty")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// VerifyPassword compares plaintext password with stored hash.
func VerifyPassword(hash, password string) error {
	if hash == "" {
		return errors.New("password hash is empty")
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
}

// Credentials is the single admin account allowed to request tokens over
// HTTP. The zero value rejects everyone.
type Credentials struct {
	User string
	Hash string
}

// CredentialsFromEnv reads SAPL_LEXML_ADMIN_USER and
// SAPL_LEXML_ADMIN_PASSWORD_HASH.
func CredentialsFromEnv() Credentials {
	return Credentials{
		User: strings.TrimSpace(os.Getenv(adminUserEnv)),
		Hash: strings.TrimSpace(os.Getenv(adminHashEnv)),
	}
}

// Check returns ErrUnauthorized unless user and password match.
func (c Credentials) Check(user, password string) error {
	if c.User == "" || c.Hash == "" {
		return ErrUnauthorized
	}
	if strings.TrimSpace(user) != c.User {
		return ErrUnauthorized
	}
	if err := VerifyPassword(c.Hash, password); err != nil {
		return ErrUnauthorized
	}
	return nil
}

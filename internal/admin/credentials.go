package admin

import (
	"crypto/subtle"
	"errors"

	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrNotConfigured      = errors.New("admin credentials not configured")
)

// Credentials is the single admin account allowed into the dashboard. When
// PasswordHash is set it wins over the plain Password.
type Credentials struct {
	Username     string
	Password     string
	PasswordHash string
}

// Authenticate checks a login attempt and returns the admin subject.
func (c Credentials) Authenticate(username, password string) (string, error) {
	if c.Username == "" || (c.Password == "" && c.PasswordHash == "") {
		return "", ErrNotConfigured
	}
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(c.Username)) == 1
	var passOK bool
	if c.PasswordHash != "" {
		passOK = bcrypt.CompareHashAndPassword([]byte(c.PasswordHash), []byte(password)) == nil
	} else {
		passOK = subtle.ConstantTimeCompare([]byte(password), []byte(c.Password)) == 1
	}
	if !userOK || !passOK {
		return "", ErrInvalidCredentials
	}
	return c.Username, nil
}

// HashPassword returns a bcrypt hash suitable for ADMIN_PASSWORD_HASH.
func HashPassword(password string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

package admin

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestContextPrincipal(t *testing.T) {
	ctx := context.Background()
	require.False(t, IsAdmin(ctx))

	ctx = WithPrincipal(ctx, "admin")
	require.True(t, IsAdmin(ctx))
	sub, ok := Principal(ctx)
	require.True(t, ok)
	require.Equal(t, "admin", sub)

	require.False(t, IsAdmin(WithPrincipal(context.Background(), "")))
}

func TestAuthenticatePlain(t *testing.T) {
	c := Credentials{Username: "admin", Password: "secret"}

	sub, err := c.Authenticate("admin", "secret")
	require.NoError(t, err)
	require.Equal(t, "admin", sub)

	_, err = c.Authenticate("admin", "nope")
	require.True(t, errors.Is(err, ErrInvalidCredentials))
	_, err = c.Authenticate("root", "secret")
	require.True(t, errors.Is(err, ErrInvalidCredentials))
}

func TestAuthenticateHash(t *testing.T) {
	h, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	require.NoError(t, err)
	// the hash wins over a stale plain password
	c := Credentials{Username: "admin", Password: "old", PasswordHash: string(h)}

	_, err = c.Authenticate("admin", "s3cret")
	require.NoError(t, err)
	_, err = c.Authenticate("admin", "old")
	require.True(t, errors.Is(err, ErrInvalidCredentials))
}

func TestAuthenticateNotConfigured(t *testing.T) {
	_, err := Credentials{Username: "admin"}.Authenticate("admin", "")
	require.True(t, errors.Is(err, ErrNotConfigured))
}

func TestHashPassword(t *testing.T) {
	h, err := HashPassword("pw")
	require.NoError(t, err)
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(h), []byte("pw")))
}

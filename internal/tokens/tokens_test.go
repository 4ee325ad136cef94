package tokens

import (
	"context"
	"encoding/base64"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

const secret = "test-secret-32-bytes-should-be-long-enough"

func seg(b []byte) string { return base64.RawURLEncoding.EncodeToString(b) }

func TestGenerateAccessToken_ValidAndClaims(t *testing.T) {
	tokenStr, err := GenerateAccessToken(secret, "admin", 2*time.Minute)
	require.NoError(t, err)

	tok, err := NewVerifier(secret).Verify(context.Background(), tokenStr)
	require.NoError(t, err)
	var claims map[string]interface{}
	require.NoError(t, tok.Claims(&claims))
	require.Equal(t, "admin", claims["sub"])
	require.Equal(t, RoleAdmin, claims["role"])
}

func TestGenerateAccessToken_NoSecret(t *testing.T) {
	_, err := GenerateAccessToken("", "admin", time.Minute)
	require.ErrorIs(t, err, ErrNoSecret)

	_, err = NewVerifier("").Verify(context.Background(), "x.y.z")
	require.ErrorIs(t, err, ErrNoSecret)
}

func TestVerify_Expired(t *testing.T) {
	tokenStr, err := GenerateAccessToken(secret, "admin", -time.Minute)
	require.NoError(t, err)
	_, err = NewVerifier(secret).Verify(context.Background(), tokenStr)
	require.Error(t, err)
}

func TestVerify_WrongSecretFails(t *testing.T) {
	tokenStr, err := GenerateAccessToken(secret, "admin", 2*time.Minute)
	require.NoError(t, err)
	_, err = NewVerifier("different-secret-xxxxxxxxxxxxxxxx").Verify(context.Background(), tokenStr)
	require.Error(t, err)
}

func TestVerify_Malformed(t *testing.T) {
	_, err := NewVerifier(secret).Verify(context.Background(), "not.a.jwt")
	require.Error(t, err)
}

// Rejected when alg=none (unsigned token)
func TestVerify_AlgNoneRejected(t *testing.T) {
	headerEnc := seg([]byte(`{"alg":"none"}`))
	payloadEnc := seg([]byte(`{"sub":"u-none","role":"admin","exp":9999999999}`))
	_, err := NewVerifier(secret).Verify(context.Background(), headerEnc+"."+payloadEnc+".")
	require.Error(t, err)
}

func TestVerify_RoleRequired(t *testing.T) {
	jt := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "x", "exp": time.Now().Add(time.Minute).Unix()})
	s, err := jt.SignedString([]byte(secret))
	require.NoError(t, err)
	_, err = NewVerifier(secret).Verify(context.Background(), s)
	require.Error(t, err)
}

// Tampering with payload must fail signature verification
func TestVerify_TamperedPayload(t *testing.T) {
	tokenStr, err := GenerateAccessToken(secret, "user-t", 5*time.Minute)
	require.NoError(t, err)
	parts := strings.Split(tokenStr, ".")
	require.Len(t, parts, 3)
	payloadBytes, err := base64.RawURLEncoding.DecodeString(parts[1])
	require.NoError(t, err)
	parts[1] = seg([]byte(strings.Replace(string(payloadBytes), "user-t", "attacker", 1)))
	_, err = NewVerifier(secret).Verify(context.Background(), strings.Join(parts, "."))
	require.Error(t, err)
}

func TestExpiresAt(t *testing.T) {
	tokenStr, err := GenerateAccessToken(secret, "admin", time.Hour)
	require.NoError(t, err)
	exp, err := ExpiresAt(tokenStr)
	require.NoError(t, err)
	require.WithinDuration(t, time.Now().Add(time.Hour), exp, 5*time.Second)

	_, err = ExpiresAt("garbage")
	require.Error(t, err)
}

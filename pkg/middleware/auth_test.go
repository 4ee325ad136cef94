package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	mr "github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/researchlab/labsite/internal/admin"
	"github.com/researchlab/labsite/internal/sessions"
	"github.com/stretchr/testify/require"
)

// fakeToken implements Token
type fakeToken struct {
	data map[string]interface{}
}

func (t *fakeToken) Claims(v interface{}) error {
	if mm, ok := v.(*map[string]interface{}); ok {
		*mm = t.data
		return nil
	}
	return fmt.Errorf("unsupported claims type")
}

// fakeVerifier accepts a fixed set of tokens
type fakeVerifier struct {
	good map[string]string
}

func newFakeVerifier(tokens ...string) *fakeVerifier {
	f := &fakeVerifier{good: map[string]string{}}
	for _, t := range tokens {
		f.good[t] = "admin"
	}
	return f
}

func (f *fakeVerifier) Verify(ctx context.Context, raw string) (Token, error) {
	if sub, ok := f.good[raw]; ok {
		return &fakeToken{data: map[string]interface{}{"sub": sub, "role": "admin"}}, nil
	}
	return nil, fmt.Errorf("invalid token")
}

func serve(h gin.HandlerFunc, header string) *httptest.ResponseRecorder {
	g := gin.New()
	g.GET("/", h, func(c *gin.Context) {
		sub, _ := admin.Principal(c.Request.Context())
		claims, _ := c.Get(ClaimsKey)
		c.JSON(http.StatusOK, gin.H{"sub": sub, "claims": claims})
	})
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rw := httptest.NewRecorder()
	g.ServeHTTP(rw, req)
	return rw
}

func TestAuthMiddleware_NoHeader(t *testing.T) {
	rw := serve(AuthMiddleware(newFakeVerifier(), nil), "")
	require.Equal(t, http.StatusUnauthorized, rw.Code)
	require.Contains(t, rw.Body.String(), `"message"`)
}

func TestAuthMiddleware_InvalidHeader(t *testing.T) {
	require.Equal(t, http.StatusUnauthorized, serve(AuthMiddleware(newFakeVerifier("goodtoken"), nil), "BadHeader").Code)
	require.Equal(t, http.StatusUnauthorized, serve(AuthMiddleware(newFakeVerifier("goodtoken"), nil), "Basic goodtoken").Code)
	require.Equal(t, http.StatusUnauthorized, serve(AuthMiddleware(newFakeVerifier("goodtoken"), nil), "Bearer wrong").Code)
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	rw := serve(AuthMiddleware(newFakeVerifier("goodtoken"), nil), "Bearer goodtoken")
	require.Equal(t, http.StatusOK, rw.Code)

	var got map[string]interface{}
	require.NoError(t, json.Unmarshal(rw.Body.Bytes(), &got))
	require.Equal(t, "admin", got["sub"])
	require.Contains(t, got, "claims")
}

func TestAuthMiddleware_RejectsBlacklistedToken(t *testing.T) {
	m, err := mr.Run()
	require.NoError(t, err)
	defer m.Close()
	bl := sessions.NewBlacklist(redis.NewClient(&redis.Options{Addr: m.Addr()}))

	token := "black-token"
	require.NoError(t, bl.Revoke(context.Background(), token, 5*time.Second))

	// the token verifies but has been revoked
	rw := serve(AuthMiddleware(newFakeVerifier(token), bl), "Bearer "+token)
	require.Equal(t, http.StatusUnauthorized, rw.Code)
}

func TestFirstOf(t *testing.T) {
	v := FirstOf(nil, newFakeVerifier("a"), newFakeVerifier("b"))
	_, err := v.Verify(context.Background(), "b")
	require.NoError(t, err)
	_, err = v.Verify(context.Background(), "c")
	require.Error(t, err)

	_, err = FirstOf().Verify(context.Background(), "a")
	require.Error(t, err)
}

func TestBearerToken(t *testing.T) {
	tok, ok := BearerToken("Bearer abc")
	require.True(t, ok)
	require.Equal(t, "abc", tok)
	tok, ok = BearerToken("bearer  abc ")
	require.True(t, ok)
	require.Equal(t, "abc", tok)
	_, ok = BearerToken("Bearer ")
	require.False(t, ok)
}

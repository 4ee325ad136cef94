package oidc

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestKeycloakIssuer(t *testing.T) {
	require.Equal(t, "http://kc:8080/realms/lab", KeycloakIssuer("http://kc:8080/", "lab"))
}

func TestNewVerifier_DiscoveryFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := NewVerifier(ctx, srv.URL+"/realms/lab", "labsite", "")
	require.Error(t, err)
}

func TestRoleClaims(t *testing.T) {
	cases := []struct {
		name   string
		claims string
		want   bool
	}{
		{"realm role", `{"realm_access":{"roles":["offline_access","site-admin"]}}`, true},
		{"client role", `{"resource_access":{"labsite":{"roles":["site-admin"]}}}`, true},
		{"role of another client", `{"resource_access":{"other":{"roles":["site-admin"]}}}`, false},
		{"no roles", `{"sub":"u1"}`, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var rc roleClaims
			require.NoError(t, json.Unmarshal([]byte(tc.claims), &rc))
			require.Equal(t, tc.want, rc.has("labsite", "site-admin"))
		})
	}
}

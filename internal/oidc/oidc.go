package oidc

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/researchlab/labsite/pkg/middleware"
)

// ErrMissingRole is returned for a valid token that lacks the admin role.
var ErrMissingRole = errors.New("token lacks the admin role")

// Verifier checks tokens issued by a Keycloak realm for the site's client.
type Verifier struct {
	verifier  *oidc.IDTokenVerifier
	clientID  string
	adminRole string
}

// NewVerifier discovers the issuer and returns a verifier for clientID. When
// adminRole is not empty, tokens must carry it as a realm or client role.
func NewVerifier(ctx context.Context, issuer, clientID, adminRole string) (*Verifier, error) {
	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("failed to discover OIDC provider: %w", err)
	}
	return &Verifier{
		verifier:  provider.Verifier(&oidc.Config{ClientID: clientID}),
		clientID:  clientID,
		adminRole: adminRole,
	}, nil
}

// KeycloakIssuer builds the issuer URL of a Keycloak realm.
func KeycloakIssuer(baseURL, realm string) string {
	return strings.TrimRight(baseURL, "/") + "/realms/" + realm
}

func (v *Verifier) Verify(ctx context.Context, raw string) (middleware.Token, error) {
	idToken, err := v.verifier.Verify(ctx, raw)
	if err != nil {
		return nil, err
	}
	if v.adminRole != "" {
		var rc roleClaims
		if err := idToken.Claims(&rc); err != nil {
			return nil, err
		}
		if !rc.has(v.clientID, v.adminRole) {
			return nil, ErrMissingRole
		}
	}
	return idToken, nil
}

// roleClaims is the part of a Keycloak token that lists granted roles.
type roleClaims struct {
	RealmAccess struct {
		Roles []string `json:"roles"`
	} `json:"realm_access"`
	ResourceAccess map[string]struct {
		Roles []string `json:"roles"`
	} `json:"resource_access"`
}

func (rc roleClaims) has(clientID, role string) bool {
	if slices.Contains(rc.RealmAccess.Roles, role) {
		return true
	}
	return slices.Contains(rc.ResourceAccess[clientID].Roles, role)
}

package authctx

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// JWTCfg configures the reference server's bearer-token validation.
// Adapted from the teacher's internal/auth/jwt.go, trimmed to the
// HS256 shared-secret path: the teacher's JWKS/RS256 fetch-and-cache
// machinery and its WorkOS tenant-membership authorization are dropped
// since token issuance and tenant authorization are out of scope here
// (spec §1 Out of scope) — the reference server only needs to validate
// a token it is handed, not issue or authorize one against an IdP.
type JWTCfg struct {
	Secret   string
	Issuer   string
	Audience string
}

// Validate parses and verifies tokenString, returning the Identity
// encoded in its claims.
func (c JWTCfg) Validate(tokenString string) (Identity, error) {
	var claims jwt.MapClaims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(c.Secret), nil
	}, jwt.WithIssuer(c.Issuer), jwt.WithAudience(c.Audience))
	if err != nil {
		return Identity{}, fmt.Errorf("authctx: validate token: %w", err)
	}
	if !token.Valid {
		return Identity{}, fmt.Errorf("authctx: invalid token")
	}

	tenantID, _ := claims["tenant_id"].(string)
	userID, _ := claims["sub"].(string)
	clientID, _ := claims["client_id"].(string)
	if tenantID == "" || userID == "" {
		return Identity{}, fmt.Errorf("authctx: token missing tenant_id or sub claim")
	}
	var roles []string
	if raw, ok := claims["roles"].([]interface{}); ok {
		for _, r := range raw {
			if s, ok := r.(string); ok {
				roles = append(roles, s)
			}
		}
	}
	return Identity{TenantID: tenantID, UserID: userID, Roles: roles, ClientID: clientID}, nil
}

// BearerFromRequest extracts the token from an "Authorization: Bearer
// <token>" header.
func BearerFromRequest(r *http.Request) (string, error) {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(h, prefix) {
		return "", fmt.Errorf("authctx: missing bearer token")
	}
	return strings.TrimPrefix(h, prefix), nil
}

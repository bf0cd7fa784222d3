package httpapi

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/mcp-snowflake/server/pkg/config"
)

// bearerAuthenticator validates the admin API's Bearer JWTs. It is
// grounded on pkg/auth.OAuthJWTAuthenticator's validation logic but
// drops that type's nested-claims role extraction: the admin API has
// one role, "admin", granted to any caller holding a validly-signed
// token for the configured issuer.
type bearerAuthenticator struct {
	issuer     string
	signingKey []byte
}

func newBearerAuthenticator(cfg config.AdminAPIConfig) (*bearerAuthenticator, error) {
	if !cfg.Enabled {
		return nil, nil //nolint:nilnil // disabled admin API never authenticates
	}
	if cfg.JWTIssuer == "" {
		return nil, fmt.Errorf("admin_api.jwt_issuer is required")
	}
	if cfg.JWTSigningKey == "" {
		return nil, fmt.Errorf("admin_api.jwt_signing_key is required")
	}
	return &bearerAuthenticator{
		issuer:     cfg.JWTIssuer,
		signingKey: []byte(cfg.JWTSigningKey),
	}, nil
}

// authenticate validates the bearer token on r, returning the subject
// claim on success.
func (a *bearerAuthenticator) authenticate(r *http.Request) (string, error) {
	tokenString, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok || tokenString == "" {
		return "", fmt.Errorf("missing bearer token")
	}

	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return a.signingKey, nil
	})
	if err != nil {
		return "", fmt.Errorf("parsing token: %w", err)
	}
	if !token.Valid {
		return "", fmt.Errorf("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", fmt.Errorf("invalid claims type")
	}

	if iss, _ := claims["iss"].(string); iss != a.issuer {
		return "", fmt.Errorf("invalid issuer: got %q, want %q", iss, a.issuer)
	}

	sub, _ := claims["sub"].(string)
	if sub == "" {
		return "", fmt.Errorf("missing sub claim")
	}
	return sub, nil
}

// requireAuth wraps next with bearer-token enforcement. A nil
// authenticator means the admin API is running without auth (tests,
// or an operator who accepts the risk) and requests pass through.
func requireAuth(authenticator *bearerAuthenticator, next http.Handler) http.Handler {
	if authenticator == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := authenticator.authenticate(r); err != nil {
			writeError(w, http.StatusUnauthorized, "unauthorized: "+err.Error())
			return
		}
		next.ServeHTTP(w, r)
	})
}

package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/poiesic/docket/core"
)

// DefaultTenantClaim names the JWT claim carrying the tenant ID.
const DefaultTenantClaim = "org_id"

type contextKey int

const tenantKey contextKey = iota

// TenantFrom returns the authenticated tenant of a request context.
func TenantFrom(ctx context.Context) (string, bool) {
	tenant, ok := ctx.Value(tenantKey).(string)
	return tenant, ok && tenant != ""
}

// WithTenant returns ctx carrying tenantID.
func WithTenant(ctx context.Context, tenantID string) context.Context {
	return context.WithValue(ctx, tenantKey, tenantID)
}

// authenticate validates the bearer token and stores its tenant claim.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		if !strings.HasPrefix(auth, "Bearer ") {
			writeMessage(w, http.StatusUnauthorized, "missing or invalid token")
			return
		}

		tenant, err := ParseTenant(strings.TrimPrefix(auth, "Bearer "), s.cfg.JWTSecret, s.cfg.TenantClaim)
		if err != nil {
			s.logger.Debug("token rejected", "err", err)
			writeMessage(w, http.StatusUnauthorized, "invalid token")
			return
		}

		next.ServeHTTP(w, r.WithContext(WithTenant(r.Context(), tenant)))
	})
}

// ParseTenant verifies an HS256 token and returns its tenant claim.
func ParseTenant(token, secret, claim string) (string, error) {
	claims := jwt.MapClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return "", err
	}
	if !parsed.Valid {
		return "", jwt.ErrTokenUnverifiable
	}

	tenant, ok := claims[claim].(string)
	if !ok || tenant == "" {
		return "", fmt.Errorf("%w: %s", jwt.ErrTokenInvalidClaims, claim)
	}
	if err := core.ValidateTenant(tenant); err != nil {
		return "", fmt.Errorf("%w: %w", jwt.ErrTokenInvalidClaims, err)
	}
	return tenant, nil
}

// IssueToken signs an HS256 token for tenantID valid for ttl.
func IssueToken(secret, claim, tenantID string, ttl time.Duration) (string, error) {
	if claim == "" {
		claim = DefaultTenantClaim
	}
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		claim: tenantID,
		"iat": now.Unix(),
		"exp": now.Add(ttl).Unix(),
	})
	return token.SignedString([]byte(secret))
}

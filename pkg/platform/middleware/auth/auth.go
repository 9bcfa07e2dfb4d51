// Package auth validates bearer tokens for the admin surface and makes the
// resolved actor available through requestcontext.
package auth

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"pilotdesk/pkg/requestcontext"
)

// Known role claims. The services treat the actor as an opaque string; roles
// only gate which routes an actor can reach.
const (
	RoleRegulator  = "regulator"
	RoleAuditor    = "auditor"
	RoleAIBuilder  = "ai_builder"
	RoleOwnerAdmin = "owner_admin"
)

// Claims is the token payload: standard registered claims plus a role.
type Claims struct {
	jwt.RegisteredClaims
	Role string `json:"role"`
}

// Verifier checks HMAC-signed bearer tokens.
type Verifier struct {
	signingKey []byte
}

func NewVerifier(signingKey string) *Verifier {
	return &Verifier{signingKey: []byte(signingKey)}
}

// Middleware rejects requests without a valid bearer token and injects the
// actor id and role into the request context.
func (v *Verifier) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			unauthorized(w, "missing bearer token")
			return
		}
		raw := strings.TrimPrefix(header, "Bearer ")

		claims := &Claims{}
		token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrSignatureInvalid
			}
			return v.signingKey, nil
		})
		if err != nil || !token.Valid {
			unauthorized(w, "invalid or expired token")
			return
		}
		if claims.Subject == "" || !validRole(claims.Role) {
			unauthorized(w, "invalid or expired token")
			return
		}

		ctx := requestcontext.WithActorID(r.Context(), claims.Subject)
		ctx = requestcontext.WithActorRole(ctx, claims.Role)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireRole gates a route to the given roles. Must run after Middleware.
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	allowed := make(map[string]struct{}, len(roles))
	for _, role := range roles {
		allowed[role] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := allowed[requestcontext.ActorRole(r.Context())]; !ok {
				forbidden(w)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// NewToken mints a signed token. Used by tests and the local dev CLI.
func NewToken(signingKey, subject, role string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Role: role,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(signingKey))
}

func validRole(role string) bool {
	switch role {
	case RoleRegulator, RoleAuditor, RoleAIBuilder, RoleOwnerAdmin:
		return true
	}
	return false
}

func unauthorized(w http.ResponseWriter, msg string) {
	writeError(w, http.StatusUnauthorized, msg)
}

func forbidden(w http.ResponseWriter) {
	writeError(w, http.StatusForbidden, "insufficient role")
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

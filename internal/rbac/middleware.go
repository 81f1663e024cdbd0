// Package rbac provides bearer-token authentication middleware and the
// request-context identity helpers shared by protected routes.
package rbac

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/mukkaboot-ai/auth-service/internal/platform/httpx"
	"github.com/mukkaboot-ai/auth-service/internal/tokens"
)

type contextKey struct{}

// ContextWithIdentity stores the verified identity on the request context.
func ContextWithIdentity(ctx context.Context, identity tokens.Identity) context.Context {
	return context.WithValue(ctx, contextKey{}, identity)
}

// IdentityFromContext returns the verified identity, if any.
func IdentityFromContext(ctx context.Context) (tokens.Identity, bool) {
	identity, ok := ctx.Value(contextKey{}).(tokens.Identity)
	return identity, ok
}

// Middleware wires access-token authorization helpers for HTTP handlers.
// Verification is stateless: the credential store is never consulted.
type Middleware struct {
	Issuer *tokens.Issuer
	Logger *slog.Logger
}

// Authenticate rejects requests without a valid bearer access token and puts
// the decoded identity on the context.
func (m Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := bearerToken(r)
		if raw == "" {
			httpx.Error(w, http.StatusUnauthorized, "access token required")
			return
		}
		claims, err := m.Issuer.VerifyAccessToken(raw)
		if err != nil {
			httpx.Error(w, http.StatusUnauthorized, "invalid or expired access token")
			return
		}
		identity := tokens.Identity{ID: claims.UserID, Username: claims.Username, Role: claims.Role}
		next.ServeHTTP(w, r.WithContext(ContextWithIdentity(r.Context(), identity)))
	})
}

// RequireAdmin rejects authenticated requests whose token does not carry the
// admin role. Must run after Authenticate.
func (m Middleware) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, ok := IdentityFromContext(r.Context())
		if !ok {
			httpx.Error(w, http.StatusUnauthorized, "access token required")
			return
		}
		if identity.Role != "admin" {
			if m.Logger != nil {
				m.Logger.Warn("admin route denied", slog.String("userID", identity.ID))
			}
			httpx.Error(w, http.StatusForbidden, "admin privileges required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

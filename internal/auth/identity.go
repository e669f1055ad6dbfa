// Package auth resolves the caller identity for API requests. Policy beyond
// "known token or admin secret" lives outside this service.
package auth

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"
)

// Identity is the resolved caller. Admin callers bypass quotas.
type Identity struct {
	UserID string
	Admin  bool
}

// System is the identity used by background workers and the CLI.
var System = Identity{UserID: "system", Admin: true}

type ctxKey struct{}

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(ctxKey{}).(Identity)
	return id, ok
}

const AdminSecretHeader = "X-Admin-Secret"

// Middleware authenticates requests with a bearer token from tokens (token ->
// user id) or the admin secret header. With no tokens and no secret configured
// every request runs as an anonymous non-admin user.
func Middleware(tokens map[string]string, adminSecret string) func(http.Handler) http.Handler {
	open := len(tokens) == 0 && adminSecret == ""
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if secret := r.Header.Get(AdminSecretHeader); secret != "" && adminSecret != "" {
				if subtle.ConstantTimeCompare([]byte(secret), []byte(adminSecret)) == 1 {
					next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), Identity{UserID: "admin", Admin: true})))
					return
				}
				unauthorized(w)
				return
			}
			if token := bearerToken(r); token != "" {
				if user, ok := tokens[token]; ok {
					next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), Identity{UserID: user})))
					return
				}
			}
			if open {
				next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), Identity{UserID: "anonymous"})))
				return
			}
			unauthorized(w)
		})
	}
}

func bearerToken(r *http.Request) string {
	h := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(h) < 7 || !strings.EqualFold(h[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(h[7:])
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": "unauthorized"})
}

// ParseTokens reads "token:user,token2:user2" into a lookup table.
func ParseTokens(spec string) map[string]string {
	out := map[string]string{}
	for _, pair := range strings.Split(spec, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		token, user, found := strings.Cut(pair, ":")
		token = strings.TrimSpace(token)
		if token == "" {
			continue
		}
		if !found || strings.TrimSpace(user) == "" {
			user = token
		}
		out[token] = strings.TrimSpace(user)
	}
	return out
}

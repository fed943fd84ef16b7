package middleware

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"strings"
)

type contextKey string

const ctxAdminKey contextKey = "admin"

// TransportAuth admits requests whose Bearer token hashes (SHA-256) to the
// hash of the configured transport token. An empty token disables the check.
func TransportAuth(token string) func(http.Handler) http.Handler {
	want := ""
	if token != "" {
		want = hashKey(token)
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if want == "" {
				next.ServeHTTP(w, r)
				return
			}
			raw := extractBearer(r)
			if raw == "" {
				http.Error(w, `{"error":"missing or malformed Authorization header"}`, http.StatusUnauthorized)
				return
			}
			if subtle.ConstantTimeCompare([]byte(hashKey(raw)), []byte(want)) != 1 {
				http.Error(w, `{"error":"invalid transport token"}`, http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// TokenValidator is the part of auth.Service the admin middleware uses.
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (string, error)
}

// AdminAuth admits requests carrying a valid admin JWT and puts the admin's
// account id into the request context.
func AdminAuth(v TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := extractBearer(r)
			if raw == "" {
				http.Error(w, `{"error":"missing or malformed Authorization header"}`, http.StatusUnauthorized)
				return
			}
			id, err := v.ValidateToken(r.Context(), raw)
			if err != nil {
				http.Error(w, `{"error":"invalid admin token"}`, http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithAdmin(r.Context(), id)))
		})
	}
}

// AdminFromCtx returns the authenticated admin account id or "".
func AdminFromCtx(ctx context.Context) string {
	id, _ := ctx.Value(ctxAdminKey).(string)
	return id
}

// WithAdmin returns a context carrying the given admin account id.
func WithAdmin(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxAdminKey, id)
}

func extractBearer(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

func hashKey(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

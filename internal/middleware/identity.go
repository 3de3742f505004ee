package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/zhouzirui/visivo/backend/pkg/utils"
)

// Identity is the signed-in user as reported by an IdentityProvider.
type Identity struct {
	UserID string
}

// IdentityProvider resolves the caller of a request. The backend only
// consumes identities; issuing them belongs to the auth provider.
type IdentityProvider interface {
	Identify(r *http.Request) (Identity, bool)
}

// HeaderIdentity trusts a header set by an upstream auth proxy.
type HeaderIdentity struct {
	Header string
}

// Identify reads the user id from the configured header.
func (h HeaderIdentity) Identify(r *http.Request) (Identity, bool) {
	name := h.Header
	if name == "" {
		name = "X-Visivo-User"
	}
	id := strings.TrimSpace(r.Header.Get(name))
	if id == "" {
		return Identity{}, false
	}
	return Identity{UserID: id}, true
}

type identityKey struct{}

// WithIdentity stores the resolved identity, if any, in the request context.
func WithIdentity(provider IdentityProvider) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if id, ok := provider.Identify(r); ok {
				r = r.WithContext(context.WithValue(r.Context(), identityKey{}, id))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireIdentity rejects requests without an identity with 401.
func RequireIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := IdentityFrom(r.Context()); !ok {
			utils.RespondError(w, http.StatusUnauthorized, "sign in required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// IdentityFrom returns the identity stored by WithIdentity.
func IdentityFrom(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}

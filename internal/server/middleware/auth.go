package middleware

import (
	"context"
	"net"
	"net/http"
	"strings"

	"github.com/vitrinehq/vitrine/internal/service"
)

// Session cookie names.
const (
	AccessCookie  = "vitrine_access"
	RefreshCookie = "vitrine_refresh"
)

type principalKey struct{}

// Authenticate returns an HTTP middleware that resolves the request's access
// credential into a principal. The access cookie is tried first, then an
// "Authorization: Bearer" header. A request with no credential gets 401; a
// bad or expired credential gets 403.
func Authenticate(guard *service.Guard) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, err := guard.Authenticate(AccessCredential(r))
			if err != nil {
				WriteError(w, err)
				return
			}
			noteSubject(r.Context(), p.SubjectID)
			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
		})
	}
}

// RequireRole returns an HTTP middleware that only lets principals holding
// one of allowed through. It must be used after Authenticate.
func RequireRole(allowed service.RoleSet) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := service.RequireRole(PrincipalFrom(r.Context()), allowed); err != nil {
				WriteError(w, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// AccessCredential returns the access token presented with r, or "".
func AccessCredential(r *http.Request) string {
	if c, err := r.Cookie(AccessCookie); err == nil && c.Value != "" {
		return c.Value
	}
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	return ""
}

// WithPrincipal returns a copy of ctx carrying p.
func WithPrincipal(ctx context.Context, p *service.Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFrom extracts the authenticated principal from the context.
// Returns nil if no principal is present.
func PrincipalFrom(ctx context.Context) *service.Principal {
	if p, ok := ctx.Value(principalKey{}).(*service.Principal); ok {
		return p
	}
	return nil
}

// OriginFrom describes where r came from, for login attempts and audit
// entries. RealIP should run earlier in the chain.
func OriginFrom(r *http.Request) service.Origin {
	ip := r.RemoteAddr
	if host, _, err := net.SplitHostPort(ip); err == nil {
		ip = host
	}
	return service.Origin{IP: ip, UserAgent: r.UserAgent()}
}

package session

import (
	"net/http"
	"strings"
)

// Policy decides which requests skip authentication and which require a
// privileged session.
type Policy struct {
	ExemptPaths     map[string]struct{}
	ExemptPrefixes  []string
	AdminOnlyPaths  map[string]struct{}
	AdminOnlyPrefix []string
}

// NewDefaultPolicy builds a policy with the given exemptions and
// admin-only paths.
func NewDefaultPolicy(exemptPaths, adminOnly []string) Policy {
	exempt := make(map[string]struct{}, len(exemptPaths))
	for _, path := range exemptPaths {
		exempt[path] = struct{}{}
	}
	admin := make(map[string]struct{}, len(adminOnly))
	for _, path := range adminOnly {
		admin[path] = struct{}{}
	}
	return Policy{ExemptPaths: exempt, AdminOnlyPaths: admin}
}

// IsExempt reports whether the request skips authentication.
func (p Policy) IsExempt(r *http.Request) bool {
	if r == nil {
		return true
	}
	if _, ok := p.ExemptPaths[r.URL.Path]; ok {
		return true
	}
	for _, prefix := range p.ExemptPrefixes {
		if strings.HasPrefix(r.URL.Path, prefix) {
			return true
		}
	}
	return false
}

// RequiresAdmin reports whether the request needs a privileged session.
func (p Policy) RequiresAdmin(r *http.Request) bool {
	if r == nil {
		return false
	}
	if _, ok := p.AdminOnlyPaths[r.URL.Path]; ok {
		return true
	}
	for _, prefix := range p.AdminOnlyPrefix {
		if strings.HasPrefix(r.URL.Path, prefix) {
			return true
		}
	}
	return false
}

// Middleware validates bearer tokens and attaches the session to the
// request context.
type Middleware struct {
	Secret []byte
	Policy Policy
}

// NewMiddleware constructs a session middleware.
func NewMiddleware(secret []byte, policy Policy) *Middleware {
	return &Middleware{Secret: secret, Policy: policy}
}

// Wrap applies authentication to the handler.
func (m *Middleware) Wrap(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.Policy.IsExempt(r) {
			next.ServeHTTP(w, r)
			return
		}

		token := extractBearer(r)
		claims, err := Parse(token, m.Secret)
		if err != nil {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		s := &Session{
			Subject:     claims.Subject,
			Admin:       claims.Admin,
			AllowedTags: claims.AllowedTags,
		}
		if m.Policy.RequiresAdmin(r) && !s.Admin {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), s)))
	})
}

func extractBearer(r *http.Request) string {
	if r == nil {
		return ""
	}
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.Fields(header)
	if len(parts) != 2 {
		return ""
	}
	if !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return parts[1]
}

package session

import "context"

type contextKey string

const contextKeySession contextKey = "session"

// Session is the resolved identity attached to a request.
type Session struct {
	Subject     string
	Admin       bool
	AllowedTags []string
}

// WithSession stores the session in context.
func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, contextKeySession, s)
}

// FromContext extracts the session from context, nil when absent.
func FromContext(ctx context.Context) *Session {
	if ctx == nil {
		return nil
	}
	if s, ok := ctx.Value(contextKeySession).(*Session); ok {
		return s
	}
	return nil
}

package auth

import (
	"context"
)

var sessionCtxKey = &contextKey{"session"}

type contextKey struct {
	name string
}

// WithSessionContext stores the session in the given context
func WithSessionContext(ctx context.Context, session *Session) context.Context {
	return context.WithValue(ctx, sessionCtxKey, session)
}

// SessionFromContext finds the session in the context.
func SessionFromContext(ctx context.Context) (*Session, bool) {
	if ctx == nil {
		return nil, false
	}
	raw, ok := ctx.Value(sessionCtxKey).(*Session)
	return raw, ok && raw != nil
}

// GetClaims extracts the AuthClaims of the session in the context
func GetClaims(ctx context.Context) (AuthClaims, bool) {
	session, ok := SessionFromContext(ctx)
	if !ok || session.Claims == nil {
		return nil, false
	}
	return session.Claims, true
}

// IdentityFromContext returns the session as an Identity, or nil.
func IdentityFromContext(ctx context.Context) Identity {
	session, ok := SessionFromContext(ctx)
	if !ok {
		return nil
	}
	return session
}

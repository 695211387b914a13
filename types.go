package auth

import (
	"context"
)

// Identity holds the attributes of an identity
type Identity interface {
	ID() string
	Username() string
	Email() string
	Role() string
}

// IdentityProvider verifies credentials and resolves token sessions
type IdentityProvider interface {
	VerifyIdentity(ctx context.Context, email, password string) (*User, error)
	ResolveSession(ctx context.Context, claims AuthClaims) (*Session, error)
}

// Authenticator logs users in and turns tokens into sessions
type Authenticator interface {
	Login(ctx context.Context, email, password string) (*AuthResponse, error)
	IssueFor(user *User) (*AuthResponse, error)
	SessionFromToken(ctx context.Context, token string) (*Session, error)
}

// Mailer delivers the single use tokens generated for an account.
type Mailer interface {
	SendPasswordReset(ctx context.Context, to, username, token string) error
	SendEmailVerification(ctx context.Context, to, username, token string) error
}

type noopMailer struct {
	logger Logger
}

func (m noopMailer) SendPasswordReset(_ context.Context, to, _, _ string) error {
	m.logger.Warn("mailer not configured, password reset email not sent", "to", to)
	return nil
}

func (m noopMailer) SendEmailVerification(_ context.Context, to, _, _ string) error {
	m.logger.Warn("mailer not configured, verification email not sent", "to", to)
	return nil
}

func normalizeMailer(m Mailer, logger Logger) Mailer {
	if m == nil {
		_, l := ResolveLogger("auth.mailer", nil, logger)
		return noopMailer{logger: l}
	}
	return m
}

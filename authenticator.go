package auth

import (
	"context"
	"strings"

	"github.com/goliatone/go-errors"
)

type Auther struct {
	provider     IdentityProvider
	tokenService TokenService
	logger       Logger
	loggers      LoggerProvider
}

var _ Authenticator = (*Auther)(nil)

// NewAuthenticator returns a new Authenticator
func NewAuthenticator(provider IdentityProvider, tokens TokenService) *Auther {
	loggers, logger := ResolveLogger("auth.authenticator", nil, nil)
	return &Auther{
		provider:     provider,
		tokenService: tokens,
		logger:       logger,
		loggers:      loggers,
	}
}

func (s *Auther) WithLogger(logger Logger) *Auther {
	s.loggers, s.logger = ResolveLogger("auth.authenticator", s.loggers, logger)
	return s
}

// WithLoggerProvider overrides the logger provider used by the authenticator.
func (s *Auther) WithLoggerProvider(provider LoggerProvider) *Auther {
	s.loggers, s.logger = ResolveLogger("auth.authenticator", provider, s.logger)
	return s
}

// TokenService returns the token service used to issue tokens.
func (s *Auther) TokenService() TokenService {
	return s.tokenService
}

// Login verifies the credentials and issues a token for the user.
func (s *Auther) Login(ctx context.Context, email, password string) (*AuthResponse, error) {
	if strings.TrimSpace(email) == "" || password == "" {
		return nil, ErrMismatchedHashAndPassword.Clone()
	}

	user, err := s.provider.VerifyIdentity(ctx, email, password)
	if err != nil {
		return nil, err
	}

	return s.IssueFor(user)
}

// IssueFor signs a token for an already authenticated user.
func (s *Auther) IssueFor(user *User) (*AuthResponse, error) {
	if user == nil {
		return nil, ErrUserNotFound.Clone()
	}

	token, err := s.tokenService.Issue(user.ID.String(), user.Role)
	if err != nil {
		s.logger.Error("failed to issue token", "user_id", user.ID.String(), "error", err)
		return nil, err
	}

	return &AuthResponse{
		Token: token,
		User:  user.Summary(),
	}, nil
}

// SessionFromToken decodes the token and resolves the session it belongs to.
// Failures that are not already classified come back as AUTH_ERROR.
func (s *Auther) SessionFromToken(ctx context.Context, token string) (*Session, error) {
	if strings.TrimSpace(token) == "" {
		return nil, ErrAuthRequired.Clone()
	}

	claims, err := s.tokenService.Validate(token)
	if err != nil {
		return nil, err
	}

	session, err := s.provider.ResolveSession(ctx, claims)
	if err != nil {
		code := ErrorCode(err)
		if code == CodeAuthError {
			s.logger.Error("failed to resolve session", "error", err)
			return nil, err
		}
		if IsPublicCode(code) {
			return nil, err
		}
		s.logger.Error("unexpected error resolving session", "error", err)
		return nil, errors.Wrap(err, ErrAuthInternal.Category, ErrAuthInternal.Message).
			WithCode(ErrAuthInternal.Code).
			WithTextCode(ErrAuthInternal.TextCode)
	}

	return session, nil
}

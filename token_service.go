package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/goliatone/go-errors"
)

// TokenService issues and validates signed session tokens
type TokenService interface {
	Issue(userID string, role UserRole) (string, error)
	Validate(tokenString string) (AuthClaims, error)
}

// TokenServiceImpl implements the TokenService interface with HS256
type TokenServiceImpl struct {
	signingKey []byte
	ttl        time.Duration
	issuer     string
	now        func() time.Time
	logger     Logger
	provider   LoggerProvider
}

var _ TokenService = (*TokenServiceImpl)(nil)

// NewTokenService creates a new TokenService instance
func NewTokenService(cfg Config) *TokenServiceImpl {
	cfg = cfg.WithDefaults()
	provider, logger := ResolveLogger("auth.token_service", nil, nil)
	return &TokenServiceImpl{
		signingKey: []byte(cfg.SigningKey),
		ttl:        cfg.TokenTTL,
		issuer:     cfg.Issuer,
		now:        time.Now,
		logger:     logger,
		provider:   provider,
	}
}

// WithLogger overrides the logger used by the token service.
func (ts *TokenServiceImpl) WithLogger(l Logger) *TokenServiceImpl {
	ts.provider, ts.logger = ResolveLogger("auth.token_service", ts.provider, l)
	return ts
}

// WithLoggerProvider overrides the logger provider used by the token service.
func (ts *TokenServiceImpl) WithLoggerProvider(provider LoggerProvider) *TokenServiceImpl {
	ts.provider, ts.logger = ResolveLogger("auth.token_service", provider, ts.logger)
	return ts
}

// WithClock replaces the time source used for issuing and validating.
func (ts *TokenServiceImpl) WithClock(now func() time.Time) *TokenServiceImpl {
	if now != nil {
		ts.now = now
	}
	return ts
}

// Issue creates a token for the user carrying its id and role
func (ts *TokenServiceImpl) Issue(userID string, role UserRole) (string, error) {
	if userID == "" {
		return "", errors.New("token subject must not be empty", errors.CategoryInternal).
			WithCode(errors.CodeInternal).
			WithTextCode(CodeAuthError)
	}

	now := ts.now()
	claims := &JWTClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    ts.issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ts.ttl)),
		},
		UID:      userID,
		UserRole: string(role),
	}

	return ts.SignClaims(claims)
}

// SignClaims signs arbitrary JWT claims using the configured signing key.
func (ts *TokenServiceImpl) SignClaims(claims *JWTClaims) (string, error) {
	if claims == nil {
		return "", errors.New("claims must not be nil", errors.CategoryInternal)
	}

	if len(ts.signingKey) == 0 {
		ts.logger.Error("token service has no signing key configured")
		return "", ErrSigningKey.Clone()
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	signedString, err := token.SignedString(ts.signingKey)
	if err != nil {
		return "", errors.Wrap(err, errors.CategoryInternal, "failed to sign JWT").
			WithCode(errors.CodeInternal).
			WithTextCode(CodeAuthError)
	}

	return signedString, nil
}

// Validate parses and validates a token string, returning structured claims
func (ts *TokenServiceImpl) Validate(tokenString string) (AuthClaims, error) {
	if len(ts.signingKey) == 0 {
		ts.logger.Error("token service has no signing key configured")
		return nil, ErrSigningKey.Clone()
	}

	parserOptions := []jwt.ParserOption{
		jwt.WithTimeFunc(ts.now),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	}
	if ts.issuer != "" {
		parserOptions = append(parserOptions, jwt.WithIssuer(ts.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			ts.logger.Warn("token service rejected unexpected signing method", "alg", t.Header["alg"])
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return ts.signingKey, nil
	}, parserOptions...)

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired.Clone()
		}
		return nil, errors.Wrap(err, ErrTokenMalformed.Category, ErrTokenMalformed.Message).
			WithCode(ErrTokenMalformed.Code).
			WithTextCode(ErrTokenMalformed.TextCode)
	}

	claims, ok := token.Claims.(*JWTClaims)
	if !ok || !token.Valid || claims.UserID() == "" || claims.IssuedAt().IsZero() {
		return nil, ErrTokenMalformed.Clone()
	}

	return claims, nil
}

package authgate

import (
	"context"
	"strings"

	"github.com/goliatone/go-router"

	auth "github.com/goliatone/go-library-auth"
)

// SessionResolver turns a raw token into a verified session.
type SessionResolver interface {
	SessionFromToken(ctx context.Context, token string) (*auth.Session, error)
}

// ValidationListener runs after the session has been resolved and before
// the request proceeds. Returning an error rejects the request.
type ValidationListener func(ctx router.Context, session *auth.Session) error

type Config struct {
	Filter         func(router.Context) bool
	SuccessHandler router.HandlerFunc
	ErrorHandler   router.ErrorHandler
	Authenticator  SessionResolver
	ContextKey     string
	// TokenLookup is a comma separated list of `source:name` pairs, tried in
	// order. Sources are header, query and cookie. The Authorization header
	// must carry AuthScheme, any other header holds the raw token.
	TokenLookup string
	AuthScheme  string

	// ContextEnricher replaces the default propagation of the session into
	// the request context.
	ContextEnricher func(ctx context.Context, session *auth.Session) context.Context

	ValidationListeners []ValidationListener
}

// New returns the authentication gate. It extracts a token, resolves it to
// an active session and stores the session on the request. Any failure is
// handed to ErrorHandler, which by default returns it to the app error
// handler.
func New(config ...Config) router.MiddlewareFunc {
	cfg := GetDefaultConfig(config...)
	extractors := cfg.getExtractors()

	return func(hf router.HandlerFunc) router.HandlerFunc {
		return func(ctx router.Context) error {
			if cfg.Filter != nil && cfg.Filter(ctx) {
				return ctx.Next()
			}

			raw := ExtractRawToken(ctx, extractors)
			if raw == "" {
				return cfg.ErrorHandler(ctx, auth.ErrAuthRequired.Clone())
			}

			session, err := cfg.Authenticator.SessionFromToken(ctx.Context(), raw)
			if err != nil {
				return cfg.ErrorHandler(ctx, err)
			}

			if err := cfg.runValidationListeners(ctx, session); err != nil {
				return cfg.ErrorHandler(ctx, err)
			}

			ctx.Locals(cfg.ContextKey, session)
			ctx.SetContext(cfg.ContextEnricher(ctx.Context(), session))

			return cfg.SuccessHandler(ctx)
		}
	}
}

// RequireRoles only lets through sessions holding one of roles. It must be
// mounted after the gate.
func RequireRoles(roles ...auth.UserRole) router.MiddlewareFunc {
	return func(hf router.HandlerFunc) router.HandlerFunc {
		return func(ctx router.Context) error {
			if err := auth.Authorize(IdentityFrom(ctx), roles...); err != nil {
				return err
			}
			return ctx.Next()
		}
	}
}

// SessionFrom returns the session stored by the gate.
func SessionFrom(ctx router.Context) (*auth.Session, bool) {
	return auth.SessionFromContext(ctx.Context())
}

// IdentityFrom returns the gate identity, or nil when the request is anonymous.
func IdentityFrom(ctx router.Context) auth.Identity {
	return auth.IdentityFromContext(ctx.Context())
}

func GetDefaultConfig(config ...Config) (cfg Config) {
	if len(config) > 0 {
		cfg = config[0]
	}

	if cfg.Authenticator == nil {
		panic("AUTH: gate configuration: Authenticator is required.")
	}

	if cfg.SuccessHandler == nil {
		cfg.SuccessHandler = func(ctx router.Context) error {
			return ctx.Next()
		}
	}

	if cfg.ErrorHandler == nil {
		cfg.ErrorHandler = func(_ router.Context, err error) error {
			return err
		}
	}

	if cfg.ContextEnricher == nil {
		cfg.ContextEnricher = auth.WithSessionContext
	}

	if cfg.ContextKey == "" {
		cfg.ContextKey = auth.DefaultContextKey
	}

	if cfg.TokenLookup == "" {
		cfg.TokenLookup = auth.DefaultTokenLookup
	}

	if cfg.AuthScheme == "" {
		cfg.AuthScheme = auth.DefaultAuthScheme
	}

	return cfg
}

func (cfg *Config) getExtractors() []TokenExtractor {
	return GetExtractors(cfg.TokenLookup, cfg.AuthScheme)
}

func (cfg *Config) runValidationListeners(ctx router.Context, session *auth.Session) error {
	for _, listener := range cfg.ValidationListeners {
		if listener == nil {
			continue
		}
		if err := listener(ctx, session); err != nil {
			return err
		}
	}
	return nil
}

type TokenExtractor func(ctx router.Context) string

// ExtractRawToken returns the first non empty token found by extractors.
func ExtractRawToken(ctx router.Context, extractors []TokenExtractor) string {
	for _, extractor := range extractors {
		if raw := extractor(ctx); raw != "" {
			return raw
		}
	}
	return ""
}

func GetExtractors(tokenLookup string, authSchemes ...string) []TokenExtractor {
	extractors := make([]TokenExtractor, 0)

	authScheme := auth.DefaultAuthScheme
	if len(authSchemes) > 0 && authSchemes[0] != "" {
		authScheme = authSchemes[0]
	}

	// header:Authorization,header:X-Auth-Token,cookie:jwt,query:auth_token
	for _, rootPart := range strings.Split(tokenLookup, ",") {
		parts := strings.SplitN(strings.TrimSpace(rootPart), ":", 2)
		if len(parts) != 2 {
			continue
		}

		source, name := strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
		switch source {
		case "header":
			if strings.EqualFold(name, router.HeaderAuthorization) {
				extractors = append(extractors, tokenFromAuthHeader(name, authScheme))
			} else {
				extractors = append(extractors, tokenFromHeader(name))
			}
		case "query":
			extractors = append(extractors, tokenFromQuery(name))
		case "cookie":
			extractors = append(extractors, tokenFromCookie(name))
		}
	}

	return extractors
}

// tokenFromAuthHeader reads `<scheme> <token>`, matching the scheme case
// insensitively.
func tokenFromAuthHeader(header, authScheme string) TokenExtractor {
	authScheme = strings.TrimSpace(authScheme)
	l := len(authScheme)
	return func(ctx router.Context) string {
		a := ctx.Header(header)
		if len(a) > l+1 && strings.EqualFold(a[:l], authScheme) && a[l] == ' ' {
			return strings.TrimSpace(a[l:])
		}
		return ""
	}
}

func tokenFromHeader(header string) TokenExtractor {
	return func(ctx router.Context) string {
		return strings.TrimSpace(ctx.Header(header))
	}
}

func tokenFromQuery(param string) TokenExtractor {
	return func(ctx router.Context) string {
		return ctx.Query(param)
	}
}

func tokenFromCookie(name string) TokenExtractor {
	return func(ctx router.Context) string {
		return ctx.Cookies(name)
	}
}

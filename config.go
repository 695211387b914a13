package auth

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	goerrors "github.com/goliatone/go-errors"
)

const (
	// DefaultTokenLookup reads a bearer token or the raw custom header
	DefaultTokenLookup = "header:Authorization,header:X-Auth-Token"
	// DefaultAuthScheme is the scheme expected on the Authorization header
	DefaultAuthScheme = "Bearer"
	// DefaultContextKey is the fiber locals key holding the session
	DefaultContextKey = "user"
)

// Config holds the auth options shared by the token service, the
// user provider and the command handlers.
type Config struct {
	// SigningKey is the HS256 secret. It is never logged.
	SigningKey string        `mapstructure:"signing_key" json:"-"`
	Issuer     string        `mapstructure:"issuer" json:"issuer"`
	TokenTTL   time.Duration `mapstructure:"token_ttl" json:"token_ttl"`

	TokenLookup string `mapstructure:"token_lookup" json:"token_lookup"`
	AuthScheme  string `mapstructure:"auth_scheme" json:"auth_scheme"`
	ContextKey  string `mapstructure:"context_key" json:"context_key"`

	MaxLoginAttempts int           `mapstructure:"max_login_attempts" json:"max_login_attempts"`
	LockDuration     time.Duration `mapstructure:"lock_duration" json:"lock_duration"`

	ResetTokenTTL        time.Duration `mapstructure:"reset_token_ttl" json:"reset_token_ttl"`
	VerificationTokenTTL time.Duration `mapstructure:"verification_token_ttl" json:"verification_token_ttl"`

	PasswordMinLength    int  `mapstructure:"password_min_length" json:"password_min_length"`
	RequireVerifiedEmail bool `mapstructure:"require_verified_email" json:"require_verified_email"`
}

// DefaultConfig returns a Config with every option set except the signing key.
func DefaultConfig() Config {
	return Config{
		Issuer:               "library-auth",
		TokenTTL:             24 * time.Hour,
		TokenLookup:          DefaultTokenLookup,
		AuthScheme:           DefaultAuthScheme,
		ContextKey:           DefaultContextKey,
		MaxLoginAttempts:     5,
		LockDuration:         30 * time.Minute,
		ResetTokenTTL:        10 * time.Minute,
		VerificationTokenTTL: 24 * time.Hour,
		PasswordMinLength:    8,
	}
}

// WithDefaults fills zero values from DefaultConfig.
func (c Config) WithDefaults() Config {
	def := DefaultConfig()
	if c.Issuer == "" {
		c.Issuer = def.Issuer
	}
	if c.TokenTTL <= 0 {
		c.TokenTTL = def.TokenTTL
	}
	if c.TokenLookup == "" {
		c.TokenLookup = def.TokenLookup
	}
	if c.AuthScheme == "" {
		c.AuthScheme = def.AuthScheme
	}
	if c.ContextKey == "" {
		c.ContextKey = def.ContextKey
	}
	if c.MaxLoginAttempts <= 0 {
		c.MaxLoginAttempts = def.MaxLoginAttempts
	}
	if c.LockDuration <= 0 {
		c.LockDuration = def.LockDuration
	}
	if c.ResetTokenTTL <= 0 {
		c.ResetTokenTTL = def.ResetTokenTTL
	}
	if c.VerificationTokenTTL <= 0 {
		c.VerificationTokenTTL = def.VerificationTokenTTL
	}
	if c.PasswordMinLength <= 0 {
		c.PasswordMinLength = def.PasswordMinLength
	}
	return c
}

// Validate reports configuration problems. Messages never include the key.
func (c Config) Validate() error {
	err := validation.ValidateStruct(&c,
		validation.Field(&c.SigningKey, validation.Required.Error("signing key must be configured"), validation.Length(32, 0)),
		validation.Field(&c.TokenTTL, validation.Required),
		validation.Field(&c.MaxLoginAttempts, validation.Required, validation.Min(1)),
		validation.Field(&c.LockDuration, validation.Required),
		validation.Field(&c.ResetTokenTTL, validation.Required),
		validation.Field(&c.VerificationTokenTTL, validation.Required),
		validation.Field(&c.PasswordMinLength, validation.Min(6)),
	)
	if err != nil {
		return goerrors.FromOzzoValidation(err, "invalid auth configuration")
	}
	return nil
}

// LockoutPolicy returns the lockout rules configured for login attempts.
func (c Config) LockoutPolicy() LockoutPolicy {
	c = c.WithDefaults()
	return LockoutPolicy{
		MaxAttempts:  c.MaxLoginAttempts,
		LockDuration: c.LockDuration,
	}
}

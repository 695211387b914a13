package config

import (
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	auth "github.com/goliatone/go-library-auth"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Config is the process configuration of the auth server.
type Config struct {
	Env       string      `mapstructure:"app_env"`
	Port      string      `mapstructure:"port"`
	LogLevel  string      `mapstructure:"log_level"`
	Database  Database    `mapstructure:",squash"`
	Redis     Redis       `mapstructure:",squash"`
	SMTP      SMTP        `mapstructure:",squash"`
	RateLimit RateLimit   `mapstructure:",squash"`
	CORS      CORS        `mapstructure:",squash"`
	Auth      auth.Config `mapstructure:"-"`
}

type Database struct {
	URL string `mapstructure:"database_url"`
	// SQLitePath is used when URL is empty.
	SQLitePath string `mapstructure:"sqlite_path"`
}

type Redis struct {
	Addr     string `mapstructure:"redis_addr"`
	Password string `mapstructure:"redis_password"`
	DB       int    `mapstructure:"redis_db"`
}

type SMTP struct {
	Host     string `mapstructure:"smtp_host"`
	Port     int    `mapstructure:"smtp_port"`
	User     string `mapstructure:"smtp_user"`
	Password string `mapstructure:"smtp_pass"`
	From     string `mapstructure:"smtp_from"`
	// BaseURL prefixes the links put in outgoing mail.
	BaseURL string `mapstructure:"public_url"`
}

type RateLimit struct {
	Window time.Duration `mapstructure:"rate_limit_window"`
	// Max zero picks the environment default.
	Max int `mapstructure:"rate_limit_max"`
}

type CORS struct {
	Origins string `mapstructure:"cors_origins"`
}

// IsProduction reports whether the server runs with production settings.
func (c Config) IsProduction() bool {
	return c.Env == EnvProduction
}

// Load reads an optional .env file, then an optional config file, then the
// environment. Later sources win.
func Load(paths ...string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for _, key := range envKeys {
		_ = v.BindEnv(key, strings.ToUpper(key))
	}

	if len(paths) > 0 && paths[0] != "" {
		v.SetConfigFile(paths[0])
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}

	cfg.Env = strings.ToLower(strings.TrimSpace(cfg.Env))
	if cfg.Env == "" {
		cfg.Env = EnvDevelopment
	}

	if cfg.RateLimit.Max <= 0 {
		cfg.RateLimit.Max = 100
		if cfg.IsProduction() {
			cfg.RateLimit.Max = 50
		}
	}

	cfg.Auth = auth.DefaultConfig()
	cfg.Auth.SigningKey = v.GetString("jwt_secret")
	cfg.Auth.Issuer = v.GetString("jwt_issuer")
	cfg.Auth.TokenTTL = v.GetDuration("jwt_ttl")
	cfg.Auth.MaxLoginAttempts = v.GetInt("max_login_attempts")
	cfg.Auth.LockDuration = v.GetDuration("lock_duration")
	cfg.Auth.RequireVerifiedEmail = v.GetBool("require_verified_email")
	cfg.Auth = cfg.Auth.WithDefaults()

	return cfg, nil
}

// Validate checks the settings the server can not start without.
func (c *Config) Validate() error {
	if c.Port == "" {
		return errors.New("PORT must not be empty")
	}
	return c.Auth.Validate()
}

var envKeys = []string{
	"app_env",
	"port",
	"log_level",
	"database_url",
	"sqlite_path",
	"redis_addr",
	"redis_password",
	"redis_db",
	"smtp_host",
	"smtp_port",
	"smtp_user",
	"smtp_pass",
	"smtp_from",
	"public_url",
	"rate_limit_window",
	"rate_limit_max",
	"cors_origins",
	"jwt_secret",
	"jwt_issuer",
	"jwt_ttl",
	"max_login_attempts",
	"lock_duration",
	"require_verified_email",
}

func setDefaults(v *viper.Viper) {
	defaults := auth.DefaultConfig()

	v.SetDefault("app_env", EnvDevelopment)
	v.SetDefault("port", "8080")
	v.SetDefault("log_level", "info")
	v.SetDefault("sqlite_path", "file:library.db?cache=shared")
	v.SetDefault("redis_db", 0)
	v.SetDefault("smtp_port", 587)
	v.SetDefault("public_url", "http://localhost:8080")
	v.SetDefault("rate_limit_window", 15*time.Minute)
	v.SetDefault("rate_limit_max", 0)
	v.SetDefault("cors_origins", "*")
	v.SetDefault("jwt_issuer", defaults.Issuer)
	v.SetDefault("jwt_ttl", defaults.TokenTTL)
	v.SetDefault("max_login_attempts", defaults.MaxLoginAttempts)
	v.SetDefault("lock_duration", defaults.LockDuration)
	v.SetDefault("require_verified_email", false)
}

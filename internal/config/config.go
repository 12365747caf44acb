package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/hashicorp/go-multierror"
	"github.com/joho/godotenv"
	autherrors "github.com/jrsteele09/go-auth-session/internal/errors"
)

// Session store backends
const (
	StoreCookie = "cookie"
	StoreMemory = "memory"
	StoreBolt   = "bolt"
	StoreRedis  = "redis"
)

// Config holds all environment-based configuration for the session service.
type Config struct {
	EnvVars
	Provider
	Session
	Cors
}

// Provider is the identity provider the service delegates authentication to.
// All four required values must be present; there are no defaults.
type Provider struct {
	AuthURL          string        `env:"OIDC_AUTH_URL,required,notEmpty"`
	ClientID         string        `env:"OIDC_CLIENT_ID,required,notEmpty"`
	ClientSecret     string        `env:"OIDC_CLIENT_SECRET,required,notEmpty"`
	RedirectURI      string        `env:"OIDC_REDIRECT_URI,required,notEmpty"`
	Scopes           []string      `env:"OIDC_SCOPES" envSeparator:" " envDefault:"email openid phone"`
	IdentityProvider string        `env:"OIDC_IDENTITY_PROVIDER"`
	Timeout          time.Duration `env:"PROVIDER_TIMEOUT" envDefault:"10s"`
}

// Session controls where tokens live and how long they are kept.
type Session struct {
	Store              string        `env:"SESSION_STORE" envDefault:"cookie"`
	BoltPath           string        `env:"BOLT_PATH" envDefault:"./data/sessions.db"`
	RedisURL           string        `env:"REDIS_URL"`
	RefreshTokenMaxAge time.Duration `env:"REFRESH_TOKEN_MAX_AGE" envDefault:"720h"`
	CodeLedgerTTL      time.Duration `env:"CODE_LEDGER_TTL" envDefault:"10m"`
	RotationGrace      time.Duration `env:"REFRESH_ROTATION_GRACE" envDefault:"30s"`
	CookieSecure       string        `env:"COOKIE_SECURE" envDefault:"auto"`
	DefaultReturnPath  string        `env:"DEFAULT_RETURN_PATH" envDefault:"/dashboard"`
	ErrorPath          string        `env:"ERROR_PATH" envDefault:"/callback"`
}

// Load reads configuration from environment variables.
// A .env file in the working directory is loaded first when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, autherrors.Wrapf(autherrors.ErrConfiguration, "parsing config: %s", err.Error())
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	var result *multierror.Error

	if err := validateBaseURL("OIDC_AUTH_URL", c.AuthURL); err != nil {
		result = multierror.Append(result, err)
	}
	if err := validateBaseURL("OIDC_REDIRECT_URI", c.RedirectURI); err != nil {
		result = multierror.Append(result, err)
	}
	if len(c.Scopes) == 0 {
		result = multierror.Append(result, fmt.Errorf("OIDC_SCOPES must list at least one scope"))
	}
	if c.Provider.Timeout <= 0 {
		result = multierror.Append(result, fmt.Errorf("PROVIDER_TIMEOUT must be positive"))
	}

	switch c.Session.Store {
	case StoreCookie, StoreMemory:
	case StoreBolt:
		if c.BoltPath == "" {
			result = multierror.Append(result, fmt.Errorf("BOLT_PATH is required when SESSION_STORE=bolt"))
		}
	case StoreRedis:
		if c.RedisURL == "" {
			result = multierror.Append(result, fmt.Errorf("REDIS_URL is required when SESSION_STORE=redis"))
		}
	default:
		result = multierror.Append(result, fmt.Errorf("SESSION_STORE %q is not one of cookie, memory, bolt, redis", c.Session.Store))
	}

	if c.RefreshTokenMaxAge <= 0 {
		result = multierror.Append(result, fmt.Errorf("REFRESH_TOKEN_MAX_AGE must be positive"))
	}
	if c.CodeLedgerTTL <= 0 {
		result = multierror.Append(result, fmt.Errorf("CODE_LEDGER_TTL must be positive"))
	}
	if c.RotationGrace < 0 {
		result = multierror.Append(result, fmt.Errorf("REFRESH_ROTATION_GRACE must not be negative"))
	}

	switch strings.ToLower(c.CookieSecure) {
	case "auto", "true", "false":
	default:
		result = multierror.Append(result, fmt.Errorf("COOKIE_SECURE must be auto, true or false"))
	}

	if !strings.HasPrefix(c.DefaultReturnPath, "/") {
		result = multierror.Append(result, fmt.Errorf("DEFAULT_RETURN_PATH must be an absolute path"))
	}
	if !strings.HasPrefix(c.ErrorPath, "/") {
		result = multierror.Append(result, fmt.Errorf("ERROR_PATH must be an absolute path"))
	}

	if err := result.ErrorOrNil(); err != nil {
		return autherrors.Wrapf(autherrors.ErrConfiguration, "validating config: %s", err.Error())
	}
	return nil
}

func validateBaseURL(name, raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s is not a valid URL: %w", name, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%s must use http or https", name)
	}
	if u.Host == "" {
		return fmt.Errorf("%s must include a host", name)
	}
	return nil
}

// SecureCookies reports whether cookies must carry the Secure attribute.
// The second value is false when the decision depends on the request scheme.
func (c *Config) SecureCookies() (secure bool, fixed bool) {
	switch strings.ToLower(c.CookieSecure) {
	case "true":
		return true, true
	case "false":
		return false, true
	}
	if c.IsProduction() {
		return true, true
	}
	return false, false
}

package config

import (
	"os"
	"testing"
	"time"

	autherrors "github.com/jrsteele09/go-auth-session/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearConfigEnv unsets all config env vars so tests start clean.
func clearConfigEnv(t *testing.T) {
	t.Helper()

	for _, key := range []string{
		"ENV", "APP_NAME", "PORT", "LOG_LEVEL", "APP_BASE_URL",
		"OIDC_AUTH_URL", "OIDC_CLIENT_ID", "OIDC_CLIENT_SECRET", "OIDC_REDIRECT_URI",
		"OIDC_SCOPES", "OIDC_IDENTITY_PROVIDER", "PROVIDER_TIMEOUT",
		"SESSION_STORE", "BOLT_PATH", "REDIS_URL", "REFRESH_TOKEN_MAX_AGE",
		"CODE_LEDGER_TTL", "REFRESH_ROTATION_GRACE", "COOKIE_SECURE", "DEFAULT_RETURN_PATH", "ERROR_PATH",
		"ALLOWED_ORIGINS",
	} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

// setProviderEnv sets the minimum env vars for a valid configuration.
func setProviderEnv(t *testing.T) {
	t.Helper()
	t.Setenv("OIDC_AUTH_URL", "https://auth.example.com")
	t.Setenv("OIDC_CLIENT_ID", "client-1")
	t.Setenv("OIDC_CLIENT_SECRET", "secret-1")
	t.Setenv("OIDC_REDIRECT_URI", "https://app.example.com/api/auth/callback/cognito")
}

func TestLoad_Defaults(t *testing.T) {
	clearConfigEnv(t)
	setProviderEnv(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "client-1", cfg.ClientID)
	assert.Equal(t, []string{"email", "openid", "phone"}, cfg.Scopes)
	assert.Equal(t, StoreCookie, cfg.Session.Store)
	assert.Equal(t, 30*24*time.Hour, cfg.RefreshTokenMaxAge)
	assert.Equal(t, 10*time.Second, cfg.Provider.Timeout)
	assert.Equal(t, 30*time.Second, cfg.RotationGrace)
	assert.Equal(t, "/dashboard", cfg.DefaultReturnPath)
	assert.Equal(t, "/callback", cfg.ErrorPath)
	assert.Equal(t, ":8080", cfg.GetPort())
	assert.True(t, cfg.IsDev())
}

func TestLoad_MissingProviderConfig(t *testing.T) {
	for _, key := range []string{"OIDC_AUTH_URL", "OIDC_CLIENT_ID", "OIDC_CLIENT_SECRET", "OIDC_REDIRECT_URI"} {
		t.Run(key, func(t *testing.T) {
			clearConfigEnv(t)
			setProviderEnv(t)
			os.Unsetenv(key)

			_, err := Load()
			require.Error(t, err)
			assert.ErrorIs(t, err, autherrors.ErrConfiguration)
			assert.Contains(t, err.Error(), key)
		})
	}
}

func TestLoad_InvalidValuesAreAggregated(t *testing.T) {
	clearConfigEnv(t)
	setProviderEnv(t)
	t.Setenv("OIDC_AUTH_URL", "ftp://auth.example.com")
	t.Setenv("SESSION_STORE", "redis")
	t.Setenv("COOKIE_SECURE", "sometimes")
	t.Setenv("REFRESH_ROTATION_GRACE", "-1s")

	_, err := Load()
	require.Error(t, err)
	assert.ErrorIs(t, err, autherrors.ErrConfiguration)
	assert.Contains(t, err.Error(), "OIDC_AUTH_URL must use http or https")
	assert.Contains(t, err.Error(), "REDIS_URL is required")
	assert.Contains(t, err.Error(), "COOKIE_SECURE")
	assert.Contains(t, err.Error(), "REFRESH_ROTATION_GRACE")
}

func TestLoad_UnknownStore(t *testing.T) {
	clearConfigEnv(t)
	setProviderEnv(t)
	t.Setenv("SESSION_STORE", "postgres")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `SESSION_STORE "postgres"`)
}

func TestConfig_SecureCookies(t *testing.T) {
	tests := []struct {
		name       string
		env        string
		setting    string
		wantSecure bool
		wantFixed  bool
	}{
		{"auto in dev follows request", "DEV", "auto", false, false},
		{"auto in production", "production", "auto", true, true},
		{"forced on", "DEV", "true", true, true},
		{"forced off", "production", "false", false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{EnvVars: EnvVars{Env: tt.env}, Session: Session{CookieSecure: tt.setting}}
			secure, fixed := cfg.SecureCookies()
			assert.Equal(t, tt.wantSecure, secure)
			assert.Equal(t, tt.wantFixed, fixed)
		})
	}
}

func TestCors_GetAllowedOrigins(t *testing.T) {
	c := Cors{Origins: []string{" https://a.example.com/ ", "", "https://b.example.com"}}
	origins := c.GetAllowedOrigins()
	assert.True(t, origins.IsAllowedOrigin("https://a.example.com"))
	assert.True(t, origins.IsAllowedOrigin("https://b.example.com"))
	assert.False(t, origins.IsAllowedOrigin("https://c.example.com"))
	assert.Equal(t, "https://a.example.com, https://b.example.com", origins.String())
}

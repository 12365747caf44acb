package config

import (
	"fmt"
	"strings"
)

// EnvVars are the process level settings.
type EnvVars struct {
	Env        string `env:"ENV" envDefault:"DEV"`
	AppName    string `env:"APP_NAME" envDefault:"Go Auth Session"`
	Port       string `env:"PORT" envDefault:"8080"`
	LogLevel   string `env:"LOG_LEVEL" envDefault:"info"`
	AppBaseURL string `env:"APP_BASE_URL" envDefault:"http://localhost:8080"`
}

func (e EnvVars) GetPort() string {
	port := e.Port
	if port == "" {
		port = "8080"
	}
	if port[0] != ':' {
		port = fmt.Sprintf(":%s", port)
	}
	return port
}

func (e EnvVars) GetAppName() string {
	return e.AppName
}

func (e EnvVars) GetEnv() string {
	if e.Env == "" {
		return "DEV"
	}
	return e.Env
}

// IsDev is true for local development, where routes and requests are logged.
func (e EnvVars) IsDev() bool {
	return strings.EqualFold(e.GetEnv(), "DEV")
}

// IsProduction returns true when the environment is set to production.
func (e EnvVars) IsProduction() bool {
	env := strings.ToLower(e.GetEnv())
	return env == "production" || env == "prod"
}

// GetAppBaseURL is the public origin of this service without a trailing slash.
func (e EnvVars) GetAppBaseURL() string {
	return strings.TrimRight(e.AppBaseURL, "/")
}

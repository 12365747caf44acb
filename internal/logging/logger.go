package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Setup configures the global zerolog logger for the environment.
// DEV gets a human readable console writer, everything else JSON.
func Setup(env, level string) zerolog.Logger {
	logger := New(os.Stdout, env, level)
	log.Logger = logger
	zerolog.SetGlobalLevel(logger.GetLevel())
	return logger
}

// New builds a logger writing to w without touching global state.
func New(w io.Writer, env, level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}

	if strings.EqualFold(env, "DEV") {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}
	}

	return zerolog.New(w).Level(lvl).With().Timestamp().Logger()
}

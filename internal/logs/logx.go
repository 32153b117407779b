// Package logs sets up the zerolog logger shared by the CLI and the
// automation engine.
package logs

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type Config struct {
	Level  string // debug|info|warn|error
	Format string // json|console
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// FromEnv builds the config from IMPILOT_LOG_* with console defaults:
// this is an interactive tool first, a service second.
func FromEnv() Config {
	return Config{
		Level:  strings.ToLower(getenv("IMPILOT_LOG_LEVEL", "info")),
		Format: strings.ToLower(getenv("IMPILOT_LOG_FORMAT", "console")),
	}
}

// Setup configures the zerolog global logger and returns the instance.
func Setup(c Config) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339

	lvl, err := zerolog.ParseLevel(c.Level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}

	var out io.Writer = os.Stderr
	if c.Format == "console" {
		out = zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: "15:04:05",
		}
	}

	logger := zerolog.New(out).Level(lvl).With().Timestamp().Logger()
	log.Logger = logger
	return logger
}

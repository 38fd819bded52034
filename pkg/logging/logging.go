// Package logging configures colored structured logging with tint.
//
// Usage:
//
//	logger := logging.New()                        // level from LOG_LEVEL env
//	logger := logging.NewWithLevel(slog.LevelDebug) // explicit level
//
// Environment variables:
//
//	LOG_LEVEL: debug, info, warn, error (default: info)
package logging

import (
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"
)

// New builds a colored slog logger at the level specified by the LOG_LEVEL
// env var (default: INFO) and installs it as the slog default.
func New() *slog.Logger {
	return NewWithLevel(LevelFromEnv())
}

// NewWithLevel builds a colored slog logger at the given level and installs
// it as the slog default.
func NewWithLevel(level slog.Level) *slog.Logger {
	logger := slog.New(
		tint.NewHandler(os.Stderr, &tint.Options{
			Level:      level,
			TimeFormat: time.Kitchen,
			AddSource:  true,
		}),
	)
	slog.SetDefault(logger)
	return logger
}

// LevelFromEnv maps the LOG_LEVEL env var to a slog level, defaulting to INFO.
func LevelFromEnv() slog.Level {
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

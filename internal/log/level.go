package log

import (
	"strings"

	"github.com/rs/zerolog"
)

// NewWithLevel is used by the worker, which is configured by level rather than environment.
func NewWithLevel(level string) zerolog.Logger {
	return build(writer(false), "worker", ParseLevel(level))
}

// ParseLevel falls back to info for empty or unknown names.
func ParseLevel(level string) zerolog.Level {
	parsed, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || parsed == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return parsed
}

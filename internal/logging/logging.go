// Package logging builds the process-wide zerolog.Logger from the
// log_level/log_format configuration, the structured-logging equivalent of
// the teacher's discardLogger/slog setup.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// New builds a zerolog.Logger writing to stderr, honoring level and format
// ("json" or "text"; anything else falls back to json).
func New(level, format string) zerolog.Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	var writer io.Writer = os.Stderr
	if strings.EqualFold(format, "text") {
		writer = zerolog.ConsoleWriter{Out: os.Stderr}
	}

	logger := zerolog.New(writer).With().Timestamp().Logger()

	parsed, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || parsed == zerolog.NoLevel {
		parsed = zerolog.InfoLevel
	}
	return logger.Level(parsed)
}

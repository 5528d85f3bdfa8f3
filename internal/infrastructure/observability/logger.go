package observability

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// InitLogger builds the service logger and installs it as the zerolog global
// so handlers using zerolog/log share its level and fields.
func InitLogger(level string, output io.Writer, service string) zerolog.Logger {
	if output == nil {
		output = os.Stdout
	}

	logger := zerolog.New(output).
		Level(parseLogLevel(level)).
		With().
		Timestamp().
		Str("service", service).
		Caller().
		Logger()

	log.Logger = logger
	return logger
}

// parseLogLevel accepts zerolog level names plus "warning". Unknown or empty
// levels fall back to info.
func parseLogLevel(level string) zerolog.Level {
	level = strings.ToLower(strings.TrimSpace(level))
	if level == "warning" {
		level = "warn"
	}
	l, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		return zerolog.InfoLevel
	}
	return l
}

// ProviderLogger scopes a logger to one payment provider.
func ProviderLogger(logger zerolog.Logger, provider string) zerolog.Logger {
	return logger.With().Str("provider", provider).Logger()
}

package infra

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger aliases zerolog.Logger for packages that only pass loggers around.
type Logger = zerolog.Logger

// NewLogger builds the service logger. Development gets a console writer at
// debug level; every other environment logs JSON at info level.
func NewLogger(appEnv string) zerolog.Logger {
	level := zerolog.InfoLevel
	if appEnv == "development" {
		level = zerolog.DebugLevel
	}

	logger := zerolog.New(os.Stdout).
		Level(level).
		With().
		Timestamp().
		Str("service", "adaptrix").
		Logger()

	if appEnv == "development" {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	}

	return logger
}

// Component tags log lines with the subsystem that produced them.
func Component(logger zerolog.Logger, name string) zerolog.Logger {
	return logger.With().Str("component", name).Logger()
}

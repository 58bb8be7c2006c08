// Package logger builds the process-wide zerolog logger.
package logger

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// New instantiates the zerolog configuration. The level argument wins;
// when empty, RELOG_LOG_LEVEL is consulted, defaulting to info. Output is
// a console writer unless RELOG_LOG_FORMAT_JSON is set.
func New(level string) *zerolog.Logger {
	if strings.TrimSpace(level) == "" {
		level = os.Getenv("RELOG_LOG_LEVEL")
	}

	var logger zerolog.Logger
	switch strings.TrimSpace(level) {
	case "panic":
		zerolog.SetGlobalLevel(zerolog.PanicLevel)
	case "fatal":
		zerolog.SetGlobalLevel(zerolog.FatalLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "trace":
		zerolog.SetGlobalLevel(zerolog.TraceLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	if strings.TrimSpace(os.Getenv("RELOG_LOG_FORMAT_JSON")) == "" {
		output := zerolog.ConsoleWriter{Out: os.Stderr, NoColor: true, TimeFormat: time.RFC3339}
		output.FormatLevel = func(i interface{}) string {
			return strings.ToUpper(fmt.Sprintf("| %s |", i))
		}
		output.FormatMessage = func(i interface{}) string {
			return fmt.Sprintf("%s", i)
		}

		logger = zerolog.New(output).With().Timestamp().Logger()
	} else {
		logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
	return &logger
}

// Nop returns a disabled logger for tests.
func Nop() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}

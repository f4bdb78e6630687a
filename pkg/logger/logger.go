// Package logger configures the process-wide zerolog logger. Everything else
// logs through zerolog's global, so Init must run before any other package
// emits a line.
package logger

import (
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Init sets up the global logger: JSON to stdout in production, pretty console
// output otherwise. level accepts zerolog's names (debug, info, warn, error);
// anything unparseable falls back to info.
func Init(service, environment, level string) {
	zerolog.TimeFieldFormat = time.RFC3339Nano

	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}

	if strings.EqualFold(environment, "production") {
		log.Logger = zerolog.New(os.Stdout).
			Level(lvl).
			With().
			Timestamp().
			Str("service", service).
			Logger()
		return
	}

	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: "15:04:05"}).
		Level(lvl).
		With().
		Timestamp().
		Caller().
		Str("service", service).
		Logger()
}

package observability

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// NewLogger returns a zerolog Logger.
// APP_ENV=dev (or development) uses a human-friendly console writer.
func NewLogger(env string) zerolog.Logger {
	l := zerolog.New(os.Stdout).With().Timestamp().Str("service", "tour-booking").Logger()
	if env == "dev" || env == "development" {
		l = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
			With().Timestamp().Logger()
	}
	if env == "test" {
		l = l.Level(zerolog.WarnLevel)
	}
	return l
}

// Printf writes Printf-style lines from third-party libraries to the global
// logger at Level, tagged with Component.
type Printf struct {
	Component string
	Level     zerolog.Level
}

func (p Printf) Printf(format string, args ...any) {
	log.WithLevel(p.Level).Str("component", p.Component).Msgf(format, args...)
}

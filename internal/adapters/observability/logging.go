package observability

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

// NewLogger returns the process-wide zerolog Logger, tagged with the binary
// name. APP_ENV=dev (or development) uses a human-friendly console writer;
// anything else emits JSON lines.
func NewLogger(env, service string) zerolog.Logger {
	var l zerolog.Logger
	if env == "dev" || env == "development" {
		l = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	} else {
		l = zerolog.New(os.Stdout)
	}
	return l.With().Timestamp().Str("service", service).Logger()
}

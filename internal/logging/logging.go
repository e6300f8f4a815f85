package logging

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"goa.design/goa/v3/middleware"
)

// Setup configures the global zerolog logger
func Setup(level string, pretty bool) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	zerolog.TimeFieldFormat = time.RFC3339Nano

	var out io.Writer = os.Stderr
	if pretty {
		out = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05.000"}
	}
	log.Logger = zerolog.New(out).With().Timestamp().Logger()
}

// Component returns a sub-logger tagged with the component name
func Component(name string) zerolog.Logger {
	return log.With().Str("component", name).Logger()
}

// goaAdapter lets the goa HTTP middleware log through zerolog
type goaAdapter struct {
	logger zerolog.Logger
}

// NewGoaLogger wraps a zerolog logger in the goa middleware.Logger interface
func NewGoaLogger(logger zerolog.Logger) middleware.Logger {
	return &goaAdapter{logger: logger}
}

// Log implements middleware.Logger. keyvals alternate key, value.
func (a *goaAdapter) Log(keyvals ...any) error {
	ev := a.logger.Info()
	for i := 0; i < len(keyvals); i += 2 {
		key := fmt.Sprint(keyvals[i])
		if i+1 >= len(keyvals) {
			ev = ev.Str(key, "(MISSING)")
			break
		}
		ev = ev.Interface(key, keyvals[i+1])
	}
	ev.Send()
	return nil
}

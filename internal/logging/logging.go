// Package logging sets up the structured logger shared by every
// Goggles binary and library package.
//
// The teacher repo logs through the standard library's log.Printf at
// a handful of lifecycle points (driver registration, device
// selection). Goggles widens that to every lifecycle and error
// transition §7 calls for, so a structured logger is used instead:
// zerolog, chosen because it appears in the retrieved ecosystem's
// go.mod manifests as the idiomatic low-overhead structured logger
// and needs no code generation or reflection on the hot path.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/K1ngst0m/Goggles/internal/xerr"
)

// Logger is the process-wide structured logger. It is a package
// variable (not a singleton accessor) because every process that
// imports this package wants exactly one sink; components take a
// zerolog.Logger value, not this package, as a constructor argument.
var Logger = New(os.Stderr, false)

// New builds a zerolog.Logger writing to w. When pretty is true,
// output goes through zerolog's human-readable console writer
// instead of compact JSON lines; the viewer CLI sets this when stderr
// is a terminal, the producer-side layer never does (its stderr is
// typically captured by the host application's own logging).
func New(w io.Writer, pretty bool) zerolog.Logger {
	out := w
	if pretty {
		out = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	return zerolog.New(out).With().Timestamp().Logger()
}

// LogError writes err at the severity its Kind maps to, tagging the
// event with kind/file/line so a non-*xerr.Error never loses its call
// site silently (it is logged as "error" with no kind field).
func LogError(log zerolog.Logger, err error) {
	if e, ok := xerr.As(err); ok {
		ev := log.WithLevel(zerolog.Level(levelFor(e.Kind.Severity())))
		ev.Str("kind", e.Kind.String()).
			Str("file", e.File).
			Int("line", e.Line).
			Msg(e.Msg)
		return
	}
	log.Error().Err(err).Msg("unhandled error")
}

func levelFor(severity string) zerolog.Level {
	switch severity {
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.WarnLevel
	}
}

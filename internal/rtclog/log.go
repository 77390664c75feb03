// Package rtclog is the single logging facade used by every package in
// rtcore. It keeps the call shape of the teacher's ad hoc package-level
// log.Debug/Info/Warn/Fatal helpers, but backs them with zerolog's leveled,
// structured output instead of the standard library's log.Printf.
package rtclog

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger wraps zerolog.Logger with the Debug/Info/Warn/Error/Fatal/Trace
// method names used throughout rtcore, each accepting a printf-style format.
type Logger struct {
	zl zerolog.Logger
}

var base = zerolog.New(defaultWriter()).With().Timestamp().Logger()

func defaultWriter() io.Writer {
	if isatty() {
		return zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	}
	return os.Stderr
}

func isatty() bool {
	fi, err := os.Stderr.Stat()
	if err != nil {
		return false
	}
	return (fi.Mode() & os.ModeCharDevice) != 0
}

// SetLevel configures the global minimum log level (e.g. "debug", "info",
// "warn"). Unrecognized levels are silently ignored.
func SetLevel(level string) {
	if lvl, err := zerolog.ParseLevel(level); err == nil {
		zerolog.SetGlobalLevel(lvl)
	}
}

// New returns a Logger scoped to a named component (e.g. "ice", "dtls",
// "sctp"), attached as a structured field on every line it emits.
func New(component string) *Logger {
	return &Logger{zl: base.With().Str("component", component).Logger()}
}

func (l *Logger) Trace(level int, format string, args ...interface{}) {
	l.zl.Trace().Int("v", level).Msgf(format, args...)
}

func (l *Logger) Debug(format string, args ...interface{}) {
	l.zl.Debug().Msgf(format, args...)
}

func (l *Logger) Info(format string, args ...interface{}) {
	l.zl.Info().Msgf(format, args...)
}

func (l *Logger) Warn(format string, args ...interface{}) {
	l.zl.Warn().Msgf(format, args...)
}

func (l *Logger) Error(format string, args ...interface{}) {
	l.zl.Error().Msgf(format, args...)
}

// Fatal logs at the Fatal level but, unlike the teacher's log.Fatal, does not
// terminate the process: a dropped packet or failed background goroutine
// must never bring down a peer connection that could otherwise stay alive.
// Invariant violations use panic(), not Fatal.
func (l *Logger) Fatal(format string, args ...interface{}) {
	l.zl.Error().Bool("fatal", true).Msgf(format, args...)
}

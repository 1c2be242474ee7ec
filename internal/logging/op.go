package logging

import (
	"io"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

var (
	opLogger atomic.Pointer[zerolog.Logger]
	opOutput atomic.Pointer[output]
)

// output boxes the writer so writers of different concrete types can be
// swapped atomically.
type output struct {
	w io.Writer
}

func init() {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	opOutput.Store(&output{w: os.Stderr})
	store(newConsoleLogger(os.Stderr))
}

func newConsoleLogger(w io.Writer) zerolog.Logger {
	return zerolog.New(zerolog.ConsoleWriter{
		Out:        w,
		TimeFormat: time.RFC3339,
	}).With().Timestamp().Logger()
}

func store(l zerolog.Logger) {
	opLogger.Store(&l)
}

// Op returns the operational logger for daemon/infrastructure logs.
// This is separate from the FetchLogger which records settled fetch sequences.
func Op() *zerolog.Logger {
	return opLogger.Load()
}

// Component returns the operational logger tagged with a component name.
func Component(name string) *zerolog.Logger {
	l := Op().With().Str("component", name).Logger()
	return &l
}

// SetOutput redirects the operational logger, keeping console formatting.
// Tests pass io.Discard to keep output quiet.
func SetOutput(w io.Writer) {
	opOutput.Store(&output{w: w})
	store(newConsoleLogger(w))
}

// SetLevelFromString sets the log level from a string.
// Valid values: "debug", "info", "warn", "error". Unknown values are ignored.
func SetLevelFromString(level string) {
	switch strings.ToLower(level) {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn", "warning":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	}
}

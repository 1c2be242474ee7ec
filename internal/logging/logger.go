package logging

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// FetchLog represents a single settled fetch sequence.
type FetchLog struct {
	Timestamp  time.Time `json:"timestamp"`
	QueryID    string    `json:"query_id,omitempty"`
	Key        string    `json:"key"`
	TraceID    string    `json:"trace_id,omitempty"`
	DurationMs int64     `json:"duration_ms"`
	Attempts   int       `json:"attempts"`
	Success    bool      `json:"success"`
	Silent     bool      `json:"silent,omitempty"`
	Shared     bool      `json:"shared,omitempty"`
	Error      string    `json:"error,omitempty"`
}

// FetchLogger writes one line per settled fetch sequence.
type FetchLogger struct {
	mu      sync.Mutex
	enabled bool
	file    *os.File
	fileLog zerolog.Logger
	console bool
}

var defaultFetchLogger = &FetchLogger{enabled: true}

// Fetches returns the default fetch logger
func Fetches() *FetchLogger {
	return defaultFetchLogger
}

// SetOutput sets the fetch log output file (JSON lines)
func (l *FetchLogger) SetOutput(path string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file != nil {
		l.file.Close()
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("open fetch log: %w", err)
	}
	l.file = f
	l.fileLog = zerolog.New(f)
	return nil
}

// SetConsole enables/disables console output
func (l *FetchLogger) SetConsole(enabled bool) {
	l.mu.Lock()
	l.console = enabled
	l.mu.Unlock()
}

// Log writes a fetch log entry
func (l *FetchLogger) Log(entry *FetchLog) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.enabled {
		return
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}

	if l.console {
		ev := Op().Info()
		if !entry.Success {
			ev = Op().Warn().Str("error", entry.Error)
		}
		ev.Str("key", entry.Key).
			Int64("duration_ms", entry.DurationMs).
			Int("attempts", entry.Attempts).
			Bool("silent", entry.Silent).
			Bool("shared", entry.Shared).
			Msg("fetch settled")
	}

	if l.file != nil {
		l.fileLog.Log().
			Time("timestamp", entry.Timestamp).
			Str("query_id", entry.QueryID).
			Str("key", entry.Key).
			Str("trace_id", entry.TraceID).
			Int64("duration_ms", entry.DurationMs).
			Int("attempts", entry.Attempts).
			Bool("success", entry.Success).
			Bool("silent", entry.Silent).
			Bool("shared", entry.Shared).
			Str("error", entry.Error).
			Send()
	}
}

// Close closes the log file
func (l *FetchLogger) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file != nil {
		l.file.Close()
		l.file = nil
	}
}

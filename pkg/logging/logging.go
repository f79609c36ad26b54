// Package logging provides structured logging for the governance core.
// Output is one JSON object per line on stderr, cheap enough to leave
// enabled in library callers.
package logging

import (
	"encoding/json"
	"io"
	"os"
	"sync"
	"time"
)

// Level represents a log level. The zero value is treated as info.
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// rank orders levels for threshold checks. Unknown levels rank as info.
func (l Level) rank() int {
	switch l {
	case LevelDebug:
		return 0
	case LevelWarn:
		return 2
	case LevelError:
		return 3
	default:
		return 1
	}
}

// LogEntry is the wire shape of one emitted line.
type LogEntry struct {
	Timestamp string         `json:"timestamp"`
	Level     Level          `json:"level"`
	Message   string         `json:"message"`
	Fields    map[string]any `json:"fields,omitempty"`
}

// Logger emits structured JSON lines at or above its threshold level.
// WithFields derives child loggers carrying bound fields; the output
// writer and mutex are shared so lines never interleave.
type Logger struct {
	mu    *sync.Mutex
	out   io.Writer
	level Level
	bound map[string]any
}

// NewLogger creates a logger writing to stderr.
func NewLogger(level Level) *Logger {
	return &Logger{
		mu:    &sync.Mutex{},
		out:   os.Stderr,
		level: level,
	}
}

// WithFields returns a child logger whose every line carries the given
// fields in addition to the parent's.
func (l *Logger) WithFields(fields map[string]any) *Logger {
	merged := make(map[string]any, len(l.bound)+len(fields))
	for k, v := range l.bound {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return &Logger{mu: l.mu, out: l.out, level: l.level, bound: merged}
}

func (l *Logger) Debug(msg string, fields ...map[string]any) { l.emit(LevelDebug, msg, fields) }
func (l *Logger) Info(msg string, fields ...map[string]any)  { l.emit(LevelInfo, msg, fields) }
func (l *Logger) Warn(msg string, fields ...map[string]any)  { l.emit(LevelWarn, msg, fields) }
func (l *Logger) Error(msg string, fields ...map[string]any) { l.emit(LevelError, msg, fields) }

// ErrorErr logs at error level with the error value as a field.
func (l *Logger) ErrorErr(msg string, err error, fields ...map[string]any) {
	withErr := map[string]any{"error": err.Error()}
	for _, f := range fields {
		for k, v := range f {
			withErr[k] = v
		}
	}
	l.emit(LevelError, msg, []map[string]any{withErr})
}

// SetOutput redirects this logger. Children derived afterwards inherit
// the new writer.
func (l *Logger) SetOutput(w io.Writer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.out = w
}

// SetLevel changes the threshold of this logger only.
func (l *Logger) SetLevel(level Level) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
}

func (l *Logger) emit(level Level, msg string, extra []map[string]any) {
	if level.rank() < l.level.rank() {
		return
	}

	entry := LogEntry{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Level:     level,
		Message:   msg,
	}
	if len(l.bound) > 0 || len(extra) > 0 {
		entry.Fields = make(map[string]any, len(l.bound))
		for k, v := range l.bound {
			entry.Fields[k] = v
		}
		for _, f := range extra {
			for k, v := range f {
				entry.Fields[k] = v
			}
		}
	}

	line, err := json.Marshal(entry)
	if err != nil {
		line = []byte(`{"level":"error","message":"unmarshalable log entry"}`)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.out.Write(append(line, '\n'))
}

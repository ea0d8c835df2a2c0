// Package logging defines the logging sink the distribution components
// report through. Hosts plug in their own implementation; the default is a
// no-op so library use stays silent unless asked otherwise.
package logging

import (
	"fmt"
	"io"
)

// Logger receives diagnostic and user-facing messages from the
// distribution components.
type Logger interface {
	// Debug logs debug-level messages with optional key-value pairs.
	Debug(msg string, keysAndValues ...any)

	// Info logs info-level messages with optional key-value pairs.
	Info(msg string, keysAndValues ...any)

	// Warn logs warning-level messages with optional key-value pairs.
	Warn(msg string, keysAndValues ...any)

	// Error logs error-level messages with optional key-value pairs.
	Error(msg string, keysAndValues ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(msg string, keysAndValues ...any) {}
func (noopLogger) Info(msg string, keysAndValues ...any)  {}
func (noopLogger) Warn(msg string, keysAndValues ...any)  {}
func (noopLogger) Error(msg string, keysAndValues ...any) {}

// Discard returns a Logger that drops everything.
func Discard() Logger {
	return noopLogger{}
}

// writerLogger prints one line per message, suitable for a terminal.
type writerLogger struct {
	w io.Writer
}

// NewWriterLogger returns a Logger that writes plain lines to w.
func NewWriterLogger(w io.Writer) Logger {
	return &writerLogger{w: w}
}

func (l *writerLogger) log(level, msg string, keysAndValues []any) {
	fmt.Fprintf(l.w, "%s: %s", level, msg)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		fmt.Fprintf(l.w, " %v=%v", keysAndValues[i], keysAndValues[i+1])
	}
	fmt.Fprintln(l.w)
}

func (l *writerLogger) Debug(msg string, keysAndValues ...any) {
	l.log("debug", msg, keysAndValues)
}

func (l *writerLogger) Info(msg string, keysAndValues ...any) {
	l.log("info", msg, keysAndValues)
}

func (l *writerLogger) Warn(msg string, keysAndValues ...any) {
	l.log("warning", msg, keysAndValues)
}

func (l *writerLogger) Error(msg string, keysAndValues ...any) {
	l.log("error", msg, keysAndValues)
}

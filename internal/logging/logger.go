package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	mberrors "github.com/systmms/mailbroker/internal/errors"
)

// EventType is the outcome recorded on an authentication event line.
type EventType string

const (
	EventSuccess EventType = "success"
	EventFail    EventType = "fail"
	EventError   EventType = "error"
)

// Logger emits one JSON object per line.
type Logger struct {
	log *slog.Logger
}

// New creates a JSON logger writing to w. A nil writer means stderr.
func New(w io.Writer, debug bool) *Logger {
	if w == nil {
		w = os.Stderr
	}
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	return &Logger{log: slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))}
}

// ParseLevel maps LOG_LEVEL values onto the debug switch.
func ParseLevel(level string) (debug bool) {
	return strings.EqualFold(strings.TrimSpace(level), "debug")
}

// Discard returns a logger that drops everything.
func Discard() *Logger {
	return New(io.Discard, false)
}

// With returns a logger that adds args to every line.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{log: l.log.With(args...)}
}

// Slog exposes the underlying logger for libraries that take one.
func (l *Logger) Slog() *slog.Logger {
	return l.log
}

// Info logs an informational message
func (l *Logger) Info(ctx context.Context, msg string, args ...any) {
	l.log.InfoContext(ctx, msg, args...)
}

// Warn logs a warning message
func (l *Logger) Warn(ctx context.Context, msg string, args ...any) {
	l.log.WarnContext(ctx, msg, args...)
}

// Error logs an error message
func (l *Logger) Error(ctx context.Context, msg string, args ...any) {
	l.log.ErrorContext(ctx, msg, args...)
}

// Debug logs a debug message if debug mode is enabled
func (l *Logger) Debug(ctx context.Context, msg string, args ...any) {
	l.log.DebugContext(ctx, msg, args...)
}

// Event logs an authentication outcome as {"type", "cause", "resource"}.
// The resource is the identifier the attempt was made against, never a
// credential.
func (l *Logger) Event(ctx context.Context, typ EventType, cause, resource string, args ...any) {
	level := slog.LevelInfo
	if typ != EventSuccess {
		level = slog.LevelWarn
	}
	attrs := append([]any{
		slog.String("type", string(typ)),
		slog.String("cause", cause),
		slog.String("resource", resource),
	}, args...)
	l.log.Log(ctx, level, cause, attrs...)
}

// Failure logs err with its full classification under "error".
func (l *Logger) Failure(ctx context.Context, msg string, err error, args ...any) {
	attrs := append([]any{
		slog.String("type", string(EventError)),
		slog.Any("error", mberrors.Describe(err)),
	}, args...)
	l.log.ErrorContext(ctx, msg, attrs...)
}

// Secret represents a value that should be redacted in logs
type Secret string

// String implements the Stringer interface, always returning a redacted value
func (s Secret) String() string {
	return "[REDACTED]"
}

// GoString implements the GoStringer interface for %#v formatting
func (s Secret) GoString() string {
	return "[REDACTED]"
}

// LogValue keeps the value out of structured output.
func (s Secret) LogValue() slog.Value {
	return slog.StringValue("[REDACTED]")
}

// Redact replaces sensitive values in a string with [REDACTED]
func Redact(s string, secrets []string) string {
	result := s
	for _, secret := range secrets {
		if secret != "" && len(secret) > 3 { // Only redact non-trivial secrets
			result = strings.ReplaceAll(result, secret, "[REDACTED]")
		}
	}
	return result
}

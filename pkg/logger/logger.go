// Package logger writes structured JSON logs. Logger is a small field-based
// facade over log/slog; Slog hands the same handler to infrastructure that
// takes a *slog.Logger, so both share one output and one format:
//
//	{"timestamp":"...","level":"INFO","caller":"server.go:281","message":"request completed","status":200}
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"
)

// Level is a log severity.
type Level = slog.Level

const (
	LevelDebug = slog.LevelDebug
	LevelInfo  = slog.LevelInfo
	LevelWarn  = slog.LevelWarn
	LevelError = slog.LevelError
)

// ParseLevel reads LOG_LEVEL style names. Unknown names mean info.
func ParseLevel(s string) Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return LevelDebug
	case "WARN", "WARNING":
		return LevelWarn
	case "ERROR":
		return LevelError
	default:
		return LevelInfo
	}
}

// Field is one structured key/value.
type Field = slog.Attr

func String(key, value string) Field  { return slog.String(key, value) }
func Int(key string, value int) Field { return slog.Int(key, value) }
func Any(key string, value any) Field { return slog.Any(key, value) }

// Duration renders d the way time.Duration prints, e.g. "1.5s".
func Duration(key string, d time.Duration) Field { return slog.String(key, d.String()) }

// Err logs the error message under "error". A nil error logs null.
func Err(err error) Field {
	if err == nil {
		return slog.Any("error", nil)
	}
	return slog.String("error", err.Error())
}

// Component names the subsystem a log line comes from.
func Component(name string) Field { return String("component", name) }

// Latency records how long an operation took.
func Latency(d time.Duration) Field { return Duration("latency", d) }

// RequestIDKey is the field carrying the HTTP request ID.
const RequestIDKey = "request_id"

// Options configures New.
type Options struct {
	Output    io.Writer
	Level     Level
	AddCaller bool
}

// DefaultOptions logs info and above to stdout with the caller.
func DefaultOptions() Options {
	return Options{Output: os.Stdout, Level: LevelInfo, AddCaller: true}
}

// Logger is safe for concurrent use. With returns derived loggers that share
// the output.
type Logger struct {
	handler   slog.Handler
	addCaller bool
}

// New creates a Logger.
func New(opts Options) *Logger {
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	h := slog.NewJSONHandler(opts.Output, &slog.HandlerOptions{
		AddSource:   opts.AddCaller,
		Level:       opts.Level,
		ReplaceAttr: renameAttr,
	})
	return &Logger{handler: h, addCaller: opts.AddCaller}
}

// Default creates a Logger with DefaultOptions.
func Default() *Logger { return New(DefaultOptions()) }

func renameAttr(groups []string, a slog.Attr) slog.Attr {
	if len(groups) > 0 {
		return a
	}
	switch a.Key {
	case slog.TimeKey:
		a.Key = "timestamp"
		a.Value = slog.StringValue(a.Value.Time().UTC().Format(time.RFC3339Nano))
	case slog.MessageKey:
		a.Key = "message"
	case slog.SourceKey:
		if src, ok := a.Value.Any().(*slog.Source); ok {
			return slog.String("caller", fmt.Sprintf("%s:%d", filepath.Base(src.File), src.Line))
		}
	}
	return a
}

// With returns a Logger that adds fields to every entry.
func (l *Logger) With(fields ...Field) *Logger {
	if len(fields) == 0 {
		return l
	}
	return &Logger{handler: l.handler.WithAttrs(fields), addCaller: l.addCaller}
}

// WithRequestID tags entries with the request ID.
func (l *Logger) WithRequestID(requestID string) *Logger {
	return l.With(String(RequestIDKey, requestID))
}

func (l *Logger) Debug(msg string, fields ...Field) { l.log(LevelDebug, msg, fields) }
func (l *Logger) Info(msg string, fields ...Field)  { l.log(LevelInfo, msg, fields) }
func (l *Logger) Warn(msg string, fields ...Field)  { l.log(LevelWarn, msg, fields) }
func (l *Logger) Error(msg string, fields ...Field) { l.log(LevelError, msg, fields) }

func (l *Logger) log(level Level, msg string, fields []Field) {
	ctx := context.Background()
	if !l.handler.Enabled(ctx, level) {
		return
	}
	var pc uintptr
	if l.addCaller {
		// skip runtime.Callers, log and the exported level method
		var pcs [1]uintptr
		runtime.Callers(3, pcs[:])
		pc = pcs[0]
	}
	r := slog.NewRecord(time.Now(), level, msg, pc)
	r.AddAttrs(fields...)
	_ = l.handler.Handle(ctx, r)
}

// Slog returns a *slog.Logger writing through the same handler, fields
// included.
func (l *Logger) Slog() *slog.Logger {
	return slog.New(l.handler)
}

type ctxKey struct{}

// WithContext attaches l to ctx.
func WithContext(ctx context.Context, l *Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// FromContext returns the Logger attached to ctx, or Default.
func FromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(ctxKey{}).(*Logger); ok {
		return l
	}
	return Default()
}

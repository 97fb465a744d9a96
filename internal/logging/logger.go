// Package logging provides structured logging for wikisync using slog.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"
)

// Level aliases for convenience.
const (
	LevelDebug = slog.LevelDebug
	LevelInfo  = slog.LevelInfo
	LevelWarn  = slog.LevelWarn
	LevelError = slog.LevelError
)

var (
	mu            sync.RWMutex
	defaultLogger *slog.Logger
	defaultOnce   sync.Once
)

// Options configures the logger behavior.
type Options struct {
	// Level sets the minimum log level. Defaults to LevelWarn so that the
	// CLI stays quiet unless --verbose or --debug is passed.
	Level slog.Level
	// Output sets the output destination. Defaults to os.Stderr.
	Output io.Writer
	// JSON enables JSON output format.
	JSON bool
	// AddSource includes source file and line in log output.
	AddSource bool
}

// DefaultOptions returns options suitable for CLI usage.
func DefaultOptions() Options {
	return Options{
		Level:  LevelWarn,
		Output: os.Stderr,
	}
}

// New creates a new logger with the given options.
func New(opts Options) *slog.Logger {
	if opts.Output == nil {
		opts.Output = os.Stderr
	}
	handlerOpts := &slog.HandlerOptions{
		Level:     opts.Level,
		AddSource: opts.AddSource,
	}
	if opts.JSON {
		return slog.New(slog.NewJSONHandler(opts.Output, handlerOpts))
	}
	return slog.New(slog.NewTextHandler(opts.Output, handlerOpts))
}

// ParseLevel maps a level name (debug, info, warn, error) to a slog level.
func ParseLevel(name string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return LevelDebug, nil
	case "info", "":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	default:
		return LevelInfo, fmt.Errorf("unknown log level %q", name)
	}
}

// Default returns the default logger, creating it on first use.
func Default() *slog.Logger {
	defaultOnce.Do(func() {
		mu.Lock()
		if defaultLogger == nil {
			defaultLogger = New(DefaultOptions())
		}
		mu.Unlock()
	})
	mu.RLock()
	defer mu.RUnlock()
	return defaultLogger
}

// SetDefault replaces the default logger and installs it as slog's default.
func SetDefault(logger *slog.Logger) {
	defaultOnce.Do(func() {})
	mu.Lock()
	defaultLogger = logger
	mu.Unlock()
	slog.SetDefault(logger)
}

// With returns a child of the default logger carrying the given attributes.
func With(args ...any) *slog.Logger {
	return Default().With(args...)
}

// WithContext returns the logger stored in ctx, or the default logger.
func WithContext(ctx context.Context) *slog.Logger {
	if l := FromContext(ctx); l != nil {
		return l
	}
	return Default()
}

// Debug logs at debug level using the default logger.
func Debug(msg string, args ...any) {
	Default().Debug(msg, args...)
}

// Info logs at info level using the default logger.
func Info(msg string, args ...any) {
	Default().Info(msg, args...)
}

// Warn logs at warn level using the default logger.
func Warn(msg string, args ...any) {
	Default().Warn(msg, args...)
}

// Error logs at error level using the default logger.
func Error(msg string, args ...any) {
	Default().Error(msg, args...)
}

type loggerKey struct{}

// NewContext returns a context with the logger attached.
func NewContext(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// FromContext retrieves the logger from context, or nil if not present.
func FromContext(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok {
		return l
	}
	return nil
}

// Timer logs the time spent in op at debug level when the returned func runs.
//
//	defer logging.Timer("save")()
func Timer(op string) func() {
	start := time.Now()
	return func() {
		Debug("operation finished", Operation(op), Duration(time.Since(start)))
	}
}

// Attribute keys shared by every package so log lines can be filtered uniformly.
const (
	KeyIdentity   = "identity"
	KeySpace      = "space"
	KeyPage       = "page"
	KeyPath       = "path"
	KeyOperation  = "operation"
	KeyAttachment = "attachment"
	KeyCount      = "count"
	KeyError      = "error"
	KeyDuration   = "duration"
)

// Identity returns an attribute for a "Space.Page" document identity.
func Identity(fullName string) slog.Attr {
	return slog.String(KeyIdentity, fullName)
}

// Space returns an attribute for a wiki space name.
func Space(name string) slog.Attr {
	return slog.String(KeySpace, name)
}

// Page returns an attribute for a wiki page name.
func Page(name string) slog.Attr {
	return slog.String(KeyPage, name)
}

// Path returns an attribute for a local file path.
func Path(p string) slog.Attr {
	return slog.String(KeyPath, p)
}

// Operation returns an attribute naming the engine operation.
func Operation(op string) slog.Attr {
	return slog.String(KeyOperation, op)
}

// Attachment returns an attribute for an attachment file name.
func Attachment(name string) slog.Attr {
	return slog.String(KeyAttachment, name)
}

// Err returns an error attribute, or an empty attribute for nil.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.Any(KeyError, err)
}

// Count returns an attribute for item counts.
func Count(n int) slog.Attr {
	return slog.Int(KeyCount, n)
}

// Duration returns an attribute for elapsed time.
func Duration(d time.Duration) slog.Attr {
	return slog.Duration(KeyDuration, d)
}

// Package logging builds the zerolog logger used across tabgroups and carries
// it on context.Context.
package logging

import (
	"context"
	"fmt"
	"io"
	"os"
	"runtime/debug"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/b/tmux-tabgroups/pkg/window"
)

// Config selects level and output format.
type Config struct {
	Level  string    // trace, debug, info, warn, error
	Format string    // "console" or "json"
	Output io.Writer // defaults to stderr
}

// New creates a logger from cfg. Unknown levels fall back to info.
func New(cfg Config) zerolog.Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	if cfg.Format != "json" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	return zerolog.New(out).Level(ParseLevel(cfg.Level)).With().Timestamp().Logger()
}

// ParseLevel maps a level name to a zerolog level.
func ParseLevel(name string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(name)))
	if err != nil || name == "" {
		return zerolog.InfoLevel
	}
	return lvl
}

// FromContext returns the context logger, or a disabled logger when none is set.
func FromContext(ctx context.Context) *zerolog.Logger {
	return zerolog.Ctx(ctx)
}

// WithContext attaches logger to ctx.
func WithContext(ctx context.Context, logger zerolog.Logger) context.Context {
	return logger.WithContext(ctx)
}

// WithComponent tags the context logger with a component name.
func WithComponent(ctx context.Context, component string) context.Context {
	l := FromContext(ctx).With().Str("component", component).Logger()
	return WithContext(ctx, l)
}

// WithGroupID tags the context logger with a tab group id.
func WithGroupID(ctx context.Context, groupID string) context.Context {
	l := FromContext(ctx).With().Str("group_id", groupID).Logger()
	return WithContext(ctx, l)
}

// WithWindow tags the context logger with a window identifier.
func WithWindow(ctx context.Context, id window.Identifier) context.Context {
	l := FromContext(ctx).With().Str("window", id.String()).Logger()
	return WithContext(ctx, l)
}

// LogPanic records a recovered panic with its stack.
func LogPanic(ctx context.Context, where string, r any) {
	FromContext(ctx).Error().
		Str("where", where).
		Str("panic", fmt.Sprint(r)).
		Str("stack", string(debug.Stack())).
		Msg("recovered panic")
}

// OpenFile opens (or creates) an append-only log file.
func OpenFile(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file %s: %w", path, err)
	}
	return f, nil
}

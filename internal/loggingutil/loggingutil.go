// Package loggingutil holds small helpers around pslog shared by every
// package that accepts an optional logger.
package loggingutil

import (
	"context"
	"io"
	"strings"

	"pkt.systems/pslog"
)

// EnvPrefix is the environment prefix read by New (SHAREDSTATE_LOG_LEVEL,
// SHAREDSTATE_LOG_MODE, ...).
const EnvPrefix = "SHAREDSTATE_LOG_"

// New builds the process logger from the environment, tagged with app.
func New(ctx context.Context, app string, w io.Writer) pslog.Logger {
	return pslog.LoggerFromEnv(ctx,
		pslog.WithEnvPrefix(EnvPrefix),
		pslog.WithEnvOptions(pslog.Options{Mode: pslog.ModeStructured, MinLevel: pslog.InfoLevel}),
		pslog.WithEnvWriter(w),
	).With("app", app)
}

// EnsureLogger returns l when non-nil, otherwise a disabled logger.
func EnsureLogger(l pslog.Logger) pslog.Logger {
	if l != nil {
		return l
	}
	return pslog.NoopLogger()
}

// WithSubsystem tags every entry of l with a dot-delimited subsystem path.
func WithSubsystem(l pslog.Logger, parts ...string) pslog.Logger {
	sys := Subsystem(parts...)
	if sys == "" {
		return EnsureLogger(l)
	}
	return EnsureLogger(l).With("sys", sys)
}

// Subsystem joins the non-empty parts with dots.
func Subsystem(parts ...string) string {
	filtered := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.Trim(part, ". ")
		if part == "" {
			continue
		}
		filtered = append(filtered, part)
	}
	return strings.Join(filtered, ".")
}

// ApplyLevel parses level and returns l at that level. Unknown levels leave l
// unchanged and report false.
func ApplyLevel(l pslog.Logger, level string) (pslog.Logger, bool) {
	level = strings.TrimSpace(level)
	if level == "" {
		return l, true
	}
	parsed, ok := pslog.ParseLevel(level)
	if !ok {
		return l, false
	}
	return l.LogLevel(parsed), true
}

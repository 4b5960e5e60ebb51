package log

import (
	"context"
	"log/slog"
	"time"
)

// Access describes one served HTTP request.
type Access struct {
	Method    string
	Path      string
	Pattern   string
	Status    int
	Duration  time.Duration
	ClientIP  string
	UserAgent string
}

func (a Access) level() slog.Level {
	switch {
	case a.Status >= 500:
		return slog.LevelError
	case a.Status >= 400:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}

// LogAccess writes the access line for a. Client errors log at warn and
// server errors at error.
func (l *Logger) LogAccess(ctx context.Context, a Access) {
	args := []any{
		FieldMethod, a.Method,
		FieldPath, a.Path,
		FieldStatusCode, a.Status,
		FieldDuration, a.Duration.Milliseconds(),
	}
	if a.Pattern != "" {
		args = append(args, FieldRoute, a.Pattern)
	}
	if a.ClientIP != "" {
		args = append(args, FieldClientIP, a.ClientIP)
	}
	if a.UserAgent != "" {
		args = append(args, FieldUserAgent, a.UserAgent)
	}
	l.emit(ctx, a.level(), "HTTP request completed", args)
}

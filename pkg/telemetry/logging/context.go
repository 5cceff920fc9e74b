package logging

import (
	"context"
	"log/slog"
)

// Context keys for common log fields.
type contextKey string

const (
	// ActorKey is the context key for the calling identity.
	ActorKey contextKey = "actor_id"

	// JobIDKey is the context key for archival job ids.
	JobIDKey contextKey = "job_id"

	// ArchiveIDKey is the context key for archive ids.
	ArchiveIDKey contextKey = "archive_id"
)

// WithActor adds the calling identity to the context.
func WithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, ActorKey, actor)
}

// GetActor retrieves the calling identity from the context.
func GetActor(ctx context.Context) string {
	if v, ok := ctx.Value(ActorKey).(string); ok {
		return v
	}
	return ""
}

// WithJobID adds a job id to the context.
func WithJobID(ctx context.Context, jobID string) context.Context {
	return context.WithValue(ctx, JobIDKey, jobID)
}

// GetJobID retrieves the job id from the context.
func GetJobID(ctx context.Context) string {
	if v, ok := ctx.Value(JobIDKey).(string); ok {
		return v
	}
	return ""
}

// WithArchiveID adds an archive id to the context.
func WithArchiveID(ctx context.Context, archiveID string) context.Context {
	return context.WithValue(ctx, ArchiveIDKey, archiveID)
}

// GetArchiveID retrieves the archive id from the context.
func GetArchiveID(ctx context.Context) string {
	if v, ok := ctx.Value(ArchiveIDKey).(string); ok {
		return v
	}
	return ""
}

func contextAttrs(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}

	var attrs []slog.Attr
	if v := GetActor(ctx); v != "" {
		attrs = append(attrs, slog.String(string(ActorKey), v))
	}
	if v := GetJobID(ctx); v != "" {
		attrs = append(attrs, slog.String(string(JobIDKey), v))
	}
	if v := GetArchiveID(ctx); v != "" {
		attrs = append(attrs, slog.String(string(ArchiveIDKey), v))
	}
	return attrs
}

// FromContext returns logger with the actor, job and archive fields of ctx
// attached. Handlers built by New add them already; this is for loggers
// created elsewhere.
func FromContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = slog.Default()
	}
	attrs := contextAttrs(ctx)
	if len(attrs) == 0 {
		return logger
	}
	args := make([]any, len(attrs))
	for i, a := range attrs {
		args[i] = a
	}
	return logger.With(args...)
}

package services

import "context"

type contextKey string

const (
	ridKey       contextKey = "rid"
	jobKindKey   contextKey = "job_kind"
	requestIDKey contextKey = "request_id"
)

// WithRID annotates context with the remote job identifier.
func WithRID(ctx context.Context, rid string) context.Context {
	if rid == "" {
		return ctx
	}
	return context.WithValue(ctx, ridKey, rid)
}

// RIDFromContext extracts the job identifier if present.
func RIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(ridKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithJobKind annotates context with the submission kind (single, rerun, ...).
func WithJobKind(ctx context.Context, kind string) context.Context {
	if kind == "" {
		return ctx
	}
	return context.WithValue(ctx, jobKindKey, kind)
}

// JobKindFromContext returns the submission kind if present.
func JobKindFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(jobKindKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithRequestID annotates context with a correlation identifier.
func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext extracts the correlation identifier if present.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(requestIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

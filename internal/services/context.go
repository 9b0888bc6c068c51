package services

import "context"

type contextKey string

const (
	runIDKey   contextKey = "run_id"
	subjectKey contextKey = "subject"
	sessionKey contextKey = "session"
	stageKey   contextKey = "stage"
)

// WithRunID annotates context with the run identifier.
func WithRunID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, runIDKey, id)
}

// RunIDFromContext extracts the run identifier if present.
func RunIDFromContext(ctx context.Context) (string, bool) {
	return stringValue(ctx, runIDKey)
}

// WithSubject annotates context with the subject and optional session labels.
func WithSubject(ctx context.Context, subject, session string) context.Context {
	if subject != "" {
		ctx = context.WithValue(ctx, subjectKey, subject)
	}
	if session != "" {
		ctx = context.WithValue(ctx, sessionKey, session)
	}
	return ctx
}

// SubjectFromContext returns the subject label if present.
func SubjectFromContext(ctx context.Context) (string, bool) {
	return stringValue(ctx, subjectKey)
}

// SessionFromContext returns the session label if present.
func SessionFromContext(ctx context.Context) (string, bool) {
	return stringValue(ctx, sessionKey)
}

// WithStage annotates context with the pipeline stage name.
func WithStage(ctx context.Context, stage string) context.Context {
	if stage == "" {
		return ctx
	}
	return context.WithValue(ctx, stageKey, stage)
}

// StageFromContext returns the stage name if present.
func StageFromContext(ctx context.Context) (string, bool) {
	return stringValue(ctx, stageKey)
}

func stringValue(ctx context.Context, key contextKey) (string, bool) {
	if ctx == nil {
		return "", false
	}
	if v, ok := ctx.Value(key).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

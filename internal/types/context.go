package types

import "context"

type contextKey string

const runIDKey contextKey = "run_id"

// WithRunID stores the scheduler run ID in the context so outbound calls and
// log lines can be correlated with a single invocation.
func WithRunID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, runIDKey, id)
}

// GetRunID retrieves the run ID from the context, or "" if unset.
func GetRunID(ctx context.Context) string {
	if id, ok := ctx.Value(runIDKey).(string); ok {
		return id
	}
	return ""
}

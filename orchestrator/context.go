package orchestrator

import "context"

// Context key helpers carry per-request correlation state through a
// context.Context: unexported key types keep this package's context
// values from colliding with anyone else's, while still letting a
// caller thread a request id or a plan override through the call
// chain instead of widening every signature along the way.

type contextKey int

const (
	requestIDKey contextKey = iota
	metadataKey
	resumeModeKey
	planOverrideKey
)

// WithRequestID attaches a caller-supplied correlation id, used as the
// audit log's correlation_id for every entry this request produces.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestIDFromContext returns the request id attached by WithRequestID,
// or "" if none was attached.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// WithMetadata attaches arbitrary caller metadata (e.g. transport
// session info) that audit payloads may want to echo back.
func WithMetadata(ctx context.Context, metadata map[string]interface{}) context.Context {
	return context.WithValue(ctx, metadataKey, metadata)
}

// MetadataFromContext returns the metadata attached by WithMetadata.
func MetadataFromContext(ctx context.Context) map[string]interface{} {
	md, _ := ctx.Value(metadataKey).(map[string]interface{})
	return md
}

// WithResumeMode marks this call as resuming a previously paused task
// rather than starting a new one, letting HandleMessage skip straight
// to context-update routing.
func WithResumeMode(ctx context.Context, resume bool) context.Context {
	return context.WithValue(ctx, resumeModeKey, resume)
}

// ResumeModeFromContext reports whether WithResumeMode(true) was set.
func ResumeModeFromContext(ctx context.Context) bool {
	resume, _ := ctx.Value(resumeModeKey).(bool)
	return resume
}

// WithPlanOverride attaches a pre-built plan to ctx, readable with
// PlanOverrideFromContext. HandleMessage does not consult it: the
// planned-execution branch always builds its plan through the Planner.
func WithPlanOverride(ctx context.Context, plan interface{}) context.Context {
	return context.WithValue(ctx, planOverrideKey, plan)
}

// PlanOverrideFromContext returns the plan attached by WithPlanOverride,
// or nil.
func PlanOverrideFromContext(ctx context.Context) interface{} {
	return ctx.Value(planOverrideKey)
}

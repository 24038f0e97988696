// Package contextkeys provides centralized context key definitions
//
// All context keys used across the application are defined here so that
// setters and readers agree on names and value types.
//
// USAGE PATTERN:
//
//	ctx = contextkeys.WithActorID(ctx, 42)
//	actorID, ok := contextkeys.ActorID(ctx)
package contextkeys

import "context"

// Key is the type for context keys to prevent collisions
type Key string

const (
	// ActorIDKey contains the authenticated actor's user ID
	// Set by: api.ActorMiddleware
	// Required by: every project-scoped endpoint
	// Type: int64
	ActorIDKey Key = "actor_id"

	// RequestIDKey contains request ID string (UUID)
	// Set by: httputil.RequestIDMiddleware
	// Used by: request logging, audit events
	// Type: string
	RequestIDKey Key = "request_id"
)

// WithActorID adds the actor's user ID to the context
func WithActorID(ctx context.Context, actorID int64) context.Context {
	return context.WithValue(ctx, ActorIDKey, actorID)
}

// ActorID returns the actor's user ID, if set
func ActorID(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(ActorIDKey).(int64)
	return id, ok
}

// WithRequestID adds request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// RequestID returns the request ID, or "" when unset
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(RequestIDKey).(string)
	return id
}

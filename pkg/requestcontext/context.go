// Package requestcontext carries the acting user, a correlation id and a
// pinned clock through service calls. Commands set them once; services and
// audit emission read them.
package requestcontext

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type key int

const (
	actorKey key = iota
	requestIDKey
	clockKey
)

// Actor is the username behind the operation, or "operator" for local
// administration. Empty when unset.
func Actor(ctx context.Context) string {
	if a, ok := ctx.Value(actorKey).(string); ok {
		return a
	}
	return ""
}

func WithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, actorKey, actor)
}

// RequestID is the correlation id stamped on audit events.
func RequestID(ctx context.Context) string {
	if reqID, ok := ctx.Value(requestIDKey).(string); ok {
		return reqID
	}
	return ""
}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// WithNewRequestID stamps a random UUID.
func WithNewRequestID(ctx context.Context) context.Context {
	return WithRequestID(ctx, uuid.NewString())
}

// Now returns the pinned time, or the wall clock when none was set.
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(clockKey).(time.Time); ok {
		return t
	}
	return time.Now()
}

// WithTime pins the clock so every timestamp in one operation agrees.
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, clockKey, t)
}

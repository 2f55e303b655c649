// Package requestcontext provides transport-independent context accessors for
// request-scoped values.
//
// The execution environment verifies the caller's address at the boundary and
// middleware stores it here; services read it back for authorization checks.
// Tests inject values directly without running the HTTP middleware chain.
package requestcontext

import (
	"context"
	"time"

	"protocell/pkg/domain"
)

type (
	callerKey      struct{}
	requestIDKey   struct{}
	requestTimeKey struct{}
)

// Caller retrieves the verified caller address from the context.
// Returns the nil address if not set.
func Caller(ctx context.Context) domain.Address {
	if caller, ok := ctx.Value(callerKey{}).(domain.Address); ok {
		return caller
	}
	return domain.NilAddress
}

// WithCaller injects a caller address into the context. Components that call
// other components on their own behalf re-stamp the context with their own
// address, mirroring how the environment attributes nested calls.
func WithCaller(ctx context.Context, caller domain.Address) context.Context {
	return context.WithValue(ctx, callerKey{}, caller)
}

// RequestID retrieves the request correlation ID from the context.
func RequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey{}).(string); ok {
		return id
	}
	return ""
}

// WithRequestID injects a request correlation ID into the context.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// Now retrieves the request-scoped time from the context, falling back to
// time.Now for non-HTTP contexts such as workers and tests.
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(requestTimeKey{}).(time.Time); ok {
		return t
	}
	return time.Now()
}

// WithTime injects a fixed time into the context.
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, requestTimeKey{}, t)
}

// Package requestcontext carries request-scoped values through context:
// the pinned request time, the request id, client metadata, and the
// authenticated user. Middleware writes these once at the edge; services
// and stores read them without knowing about HTTP.
//
// Times are always UTC: calendar-month window boundaries must not shift
// with the server's local zone.
package requestcontext

import (
	"context"
	"time"
)

type contextKeyTime struct{}
type contextKeyRequestID struct{}
type contextKeyClientIP struct{}
type contextKeyUserAgent struct{}
type contextKeyUserID struct{}

// WithTime pins a specific instant into the context. Used by the
// request-time middleware, by workers batching operations under one
// timestamp, and by tests exercising window boundaries.
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, contextKeyTime{}, t.UTC())
}

// Now returns the pinned request time, or time.Now().UTC() when none is
// set (workers, CLI, tests that don't care).
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(contextKeyTime{}).(time.Time); ok {
		return t
	}
	return time.Now().UTC()
}

// WithRequestID stores the request id.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, contextKeyRequestID{}, id)
}

// RequestID returns the request id, or "" when none is set.
func RequestID(ctx context.Context) string {
	if id, ok := ctx.Value(contextKeyRequestID{}).(string); ok {
		return id
	}
	return ""
}

// WithClientMetadata stores the client address and User-Agent extracted
// by the metadata middleware.
func WithClientMetadata(ctx context.Context, ip, userAgent string) context.Context {
	ctx = context.WithValue(ctx, contextKeyClientIP{}, ip)
	return context.WithValue(ctx, contextKeyUserAgent{}, userAgent)
}

// ClientIP returns the extracted client address, or "" when none is set.
func ClientIP(ctx context.Context) string {
	if ip, ok := ctx.Value(contextKeyClientIP{}).(string); ok {
		return ip
	}
	return ""
}

// UserAgent returns the raw User-Agent header, or "" when none is set.
func UserAgent(ctx context.Context) string {
	if ua, ok := ctx.Value(contextKeyUserAgent{}).(string); ok {
		return ua
	}
	return ""
}

// WithUserID stores the authenticated user id after session verification.
func WithUserID(ctx context.Context, userID int64) context.Context {
	return context.WithValue(ctx, contextKeyUserID{}, userID)
}

// UserID returns the authenticated user id. The second value is false for
// anonymous requests.
func UserID(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(contextKeyUserID{}).(int64)
	return id, ok
}

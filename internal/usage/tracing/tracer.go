// Package tracing provides a lightweight tracing abstraction for the quota
// engine.
//
// The engine emits spans through an internal interface so it stays decoupled
// from OpenTelemetry APIs. Implementations:
//   - NoopTracer: for tests (zero overhead)
//   - OTelTracer: OpenTelemetry adapter for production
package tracing

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Span represents an active trace span.
type Span interface {
	// End completes the span, recording any error that occurred.
	// End must be called exactly once, typically via defer.
	End(err error)

	// SetAttributes adds key-value pairs to the span.
	SetAttributes(attrs ...Attribute)

	// AddEvent records a timestamped event within the span.
	AddEvent(name string, attrs ...Attribute)
}

// Tracer creates spans for distributed tracing.
// Implementations must be safe for concurrent use.
type Tracer interface {
	// Start creates a new span with the given name and attributes. The
	// returned context carries the span for child operations; the span
	// must be ended with Span.End().
	Start(ctx context.Context, name string, attrs ...Attribute) (context.Context, Span)
}

// Attribute represents a key-value pair attached to spans.
type Attribute struct {
	Key   string
	Value any
}

// String creates a string attribute.
func String(key, value string) Attribute {
	return Attribute{Key: key, Value: value}
}

// Bool creates a boolean attribute.
func Bool(key string, value bool) Attribute {
	return Attribute{Key: key, Value: value}
}

// Int64 creates an int64 attribute.
func Int64(key string, value int64) Attribute {
	return Attribute{Key: key, Value: value}
}

// Duration creates a duration attribute in milliseconds.
func Duration(key string, value time.Duration) Attribute {
	return Attribute{Key: key, Value: value.Milliseconds()}
}

// HashIdentity returns a short SHA-256 hash of an identity key for safe
// correlation in traces without exposing addresses.
func HashIdentity(key string) string {
	if key == "" {
		return ""
	}
	hash := sha256.Sum256([]byte(key))
	return hex.EncodeToString(hash[:8])
}

// Span names used by the quota engine.
const (
	SpanEvaluate   = "usage.evaluate"
	SpanRecord     = "usage.record"
	SpanTryRecord  = "usage.try_record"
	SpanInspect    = "usage.inspect"
	SpanReset      = "usage.reset"
	SpanList       = "usage.list"
	SpanUpdateTier = "usage.update_tier"
)

// Attribute keys used by the quota engine.
const (
	AttrIdentity = "usage.identity"
	AttrAction   = "usage.action"
	AttrTier     = "usage.tier"
	AttrAllowed  = "usage.allowed"
	AttrWindow   = "usage.window"
)

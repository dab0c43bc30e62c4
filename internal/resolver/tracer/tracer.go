// Package tracer provides a small tracing abstraction for the DID resolver.
//
// The resolver emits spans through this interface so that tests run with a
// no-op implementation and production wires OpenTelemetry.
package tracer

import (
	"context"
	"time"
)

// Span represents an active trace span.
type Span interface {
	// End completes the span. A non-nil err marks it failed.
	// End must be called exactly once, typically via defer.
	End(err error)

	SetAttributes(attrs ...Attribute)
	AddEvent(name string, attrs ...Attribute)
}

// Tracer creates spans. Implementations must be safe for concurrent use.
type Tracer interface {
	// Start creates a span and returns a context carrying it.
	//
	//   ctx, span := t.Start(ctx, tracer.SpanResolve, tracer.String(tracer.AttrDID, d.String()))
	//   defer func() { span.End(err) }()
	Start(ctx context.Context, name string, attrs ...Attribute) (context.Context, Span)
}

// Attribute is a key-value pair attached to spans.
type Attribute struct {
	Key   string
	Value any
}

func String(key, value string) Attribute {
	return Attribute{Key: key, Value: value}
}

func Bool(key string, value bool) Attribute {
	return Attribute{Key: key, Value: value}
}

func Int64(key string, value int64) Attribute {
	return Attribute{Key: key, Value: value}
}

// Duration creates a duration attribute in milliseconds.
func Duration(key string, value time.Duration) Attribute {
	return Attribute{Key: key, Value: value.Milliseconds()}
}

// Span names used by the resolver.
const (
	SpanResolve    = "resolver.resolve"
	SpanRegister   = "resolver.register"
	SpanDeactivate = "resolver.deactivate"
	SpanStoreLoad  = "resolver.store.load"
)

// Attribute keys used by the resolver.
const (
	AttrDID         = "did"
	AttrKeyType     = "key_type"
	AttrCacheHit    = "cache.hit"
	AttrOutcome     = "outcome"
	AttrDeactivated = "deactivated"
)

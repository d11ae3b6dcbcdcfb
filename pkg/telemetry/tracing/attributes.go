package tracing

import (
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Span names.
const (
	// SpanAcquire covers the time a caller spent blocked in Acquire.
	SpanAcquire = "ratelimit.acquire"

	// SpanBackgroundPrefix prefixes the span covering one resetter or refill
	// loop run, e.g. "ratelimit.refiller".
	SpanBackgroundPrefix = "ratelimit."
)

// Attribute keys use the "throttle.*" namespace.
const (
	AttrLimiter        = "throttle.limiter"
	AttrLimiterType    = "throttle.limiter.type"
	AttrWaitMs         = "throttle.wait_ms"
	AttrBackgroundKind = "throttle.background.kind"
	AttrRequestID      = "throttle.request_id"
	AttrCaller         = "throttle.caller"

	AttrErrorMessage = "error.message"
)

// SetLimiterAttributes sets the limiter name and type on a span.
//
// Example:
//
//	SetLimiterAttributes(span, "api", "group")
func SetLimiterAttributes(span trace.Span, limiter, limiterType string) {
	attrs := []attribute.KeyValue{attribute.String(AttrLimiter, limiter)}
	if limiterType != "" {
		attrs = append(attrs, attribute.String(AttrLimiterType, limiterType))
	}
	span.SetAttributes(attrs...)
}

// SetWaitAttributes records how long the caller was blocked.
func SetWaitAttributes(span trace.Span, wait time.Duration) {
	span.SetAttributes(attribute.Int64(AttrWaitMs, wait.Milliseconds()))
}

// SetCallAttributes sets the request ID and caller identity on a span.
// Empty values are skipped.
func SetCallAttributes(span trace.Span, requestID, caller string) {
	var attrs []attribute.KeyValue
	if requestID != "" {
		attrs = append(attrs, attribute.String(AttrRequestID, requestID))
	}
	if caller != "" {
		attrs = append(attrs, attribute.String(AttrCaller, caller))
	}
	if len(attrs) > 0 {
		span.SetAttributes(attrs...)
	}
}

package tracing

import (
	"context"
	"sync"
	"time"

	"mercator-hq/throttle/pkg/limits/ratelimit"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type backgroundKey struct {
	limiter string
	kind    ratelimit.BackgroundKind
}

// Observer turns limiter events into spans. It implements ratelimit.Observer.
//
// Each admission produces a SpanAcquire span backdated to when the caller
// started waiting. Each resetter or refill loop run produces one span that
// stays open until the task stops.
type Observer struct {
	tracer *Tracer

	mu         sync.Mutex
	background map[backgroundKey]trace.Span
}

var _ ratelimit.Observer = (*Observer)(nil)

// NewObserver creates an Observer recording spans on t.
func NewObserver(t *Tracer) *Observer {
	return &Observer{
		tracer:     t,
		background: make(map[backgroundKey]trace.Span),
	}
}

// PermitIssued records a root span covering the wait.
func (o *Observer) PermitIssued(limiter string, wait time.Duration) {
	if !o.tracer.Enabled() {
		return
	}
	end := time.Now()
	_, span := o.tracer.Start(context.Background(), SpanAcquire,
		trace.WithTimestamp(end.Add(-wait)),
		trace.WithAttributes(
			attribute.String(AttrLimiter, limiter),
			attribute.Int64(AttrWaitMs, wait.Milliseconds()),
		),
	)
	span.End(trace.WithTimestamp(end))
}

// PermitReleased is a no-op.
func (o *Observer) PermitReleased(string) {}

// BackgroundStarted opens a span for the task run.
func (o *Observer) BackgroundStarted(limiter string, kind ratelimit.BackgroundKind) {
	if !o.tracer.Enabled() {
		return
	}
	_, span := o.tracer.Start(context.Background(), SpanBackgroundPrefix+string(kind),
		trace.WithAttributes(
			attribute.String(AttrLimiter, limiter),
			attribute.String(AttrBackgroundKind, string(kind)),
		),
	)

	key := backgroundKey{limiter: limiter, kind: kind}
	o.mu.Lock()
	prev := o.background[key]
	o.background[key] = span
	o.mu.Unlock()

	if prev != nil {
		prev.End()
	}
}

// BackgroundStopped ends the span opened by BackgroundStarted.
func (o *Observer) BackgroundStopped(limiter string, kind ratelimit.BackgroundKind) {
	key := backgroundKey{limiter: limiter, kind: kind}
	o.mu.Lock()
	span := o.background[key]
	delete(o.background, key)
	o.mu.Unlock()

	if span != nil {
		span.End()
	}
}

// Open returns the number of background spans still open.
func (o *Observer) Open() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.background)
}

// Close ends every open background span. Call it before Tracer.Shutdown so
// that running tasks are exported.
func (o *Observer) Close() {
	o.mu.Lock()
	spans := make([]trace.Span, 0, len(o.background))
	for key, span := range o.background {
		spans = append(spans, span)
		delete(o.background, key)
	}
	o.mu.Unlock()

	for _, span := range spans {
		span.End()
	}
}

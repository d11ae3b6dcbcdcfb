package tracing

import (
	"sync"
	"testing"
	"time"

	"mercator-hq/throttle/pkg/config"
	"mercator-hq/throttle/pkg/limits/ratelimit"
)

func TestObserver_PermitIssuedBackdatesSpan(t *testing.T) {
	tracer, exporter := newTestTracer(t, enabledConfig())
	obs := NewObserver(tracer)

	obs.PermitIssued("api", 250*time.Millisecond)
	obs.PermitReleased("api")

	spans := flushed(t, tracer, exporter)
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}

	span := spans[0]
	if span.Name != SpanAcquire {
		t.Errorf("expected %s, got %s", SpanAcquire, span.Name)
	}
	if d := span.EndTime.Sub(span.StartTime); d != 250*time.Millisecond {
		t.Errorf("expected span duration 250ms, got %v", d)
	}
	if v, ok := attr(span, AttrLimiter); !ok || v.AsString() != "api" {
		t.Errorf("expected limiter attribute, got %v", v)
	}
	if v, ok := attr(span, AttrWaitMs); !ok || v.AsInt64() != 250 {
		t.Errorf("expected wait_ms 250, got %v", v)
	}
}

func TestObserver_BackgroundSpans(t *testing.T) {
	tracer, exporter := newTestTracer(t, enabledConfig())
	obs := NewObserver(tracer)

	obs.BackgroundStarted("bucket", ratelimit.KindRefiller)
	if obs.Open() != 1 {
		t.Fatalf("expected 1 open span, got %d", obs.Open())
	}
	if spans := flushed(t, tracer, exporter); len(spans) != 0 {
		t.Errorf("expected no exported spans while the task runs, got %d", len(spans))
	}

	obs.BackgroundStopped("bucket", ratelimit.KindRefiller)
	obs.BackgroundStopped("bucket", ratelimit.KindRefiller)

	spans := flushed(t, tracer, exporter)
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	if spans[0].Name != "ratelimit.refiller" {
		t.Errorf("unexpected span name %s", spans[0].Name)
	}
	if v, ok := attr(spans[0], AttrBackgroundKind); !ok || v.AsString() != "refiller" {
		t.Errorf("expected background kind attribute, got %v", v)
	}
	if obs.Open() != 0 {
		t.Errorf("expected no open spans, got %d", obs.Open())
	}
}

func TestObserver_RestartEndsPreviousSpan(t *testing.T) {
	tracer, exporter := newTestTracer(t, enabledConfig())
	obs := NewObserver(tracer)

	obs.BackgroundStarted("window", ratelimit.KindResetter)
	obs.BackgroundStarted("window", ratelimit.KindResetter)

	if obs.Open() != 1 {
		t.Errorf("expected 1 open span, got %d", obs.Open())
	}
	if spans := flushed(t, tracer, exporter); len(spans) != 1 {
		t.Errorf("expected the replaced span to be exported, got %d", len(spans))
	}
}

func TestObserver_Close(t *testing.T) {
	tracer, exporter := newTestTracer(t, enabledConfig())
	obs := NewObserver(tracer)

	obs.BackgroundStarted("a", ratelimit.KindResetter)
	obs.BackgroundStarted("b", ratelimit.KindRefiller)
	obs.Close()

	if obs.Open() != 0 {
		t.Errorf("expected no open spans after Close, got %d", obs.Open())
	}
	if spans := flushed(t, tracer, exporter); len(spans) != 2 {
		t.Errorf("expected 2 spans, got %d", len(spans))
	}
}

func TestObserver_Disabled(t *testing.T) {
	tracer, err := New(&config.TracingConfig{Enabled: false})
	if err != nil {
		t.Fatalf("Failed to create tracer: %v", err)
	}
	obs := NewObserver(tracer)

	obs.PermitIssued("api", time.Millisecond)
	obs.BackgroundStarted("api", ratelimit.KindResetter)

	if obs.Open() != 0 {
		t.Errorf("expected disabled observer to track nothing, got %d", obs.Open())
	}
}

func TestObserver_WithFixedWindow(t *testing.T) {
	tracer, exporter := newTestTracer(t, enabledConfig())
	obs := NewObserver(tracer)

	l, err := ratelimit.NewFixedWindowRateLimiter(20*time.Millisecond, 2,
		ratelimit.WithName("window"),
		ratelimit.WithObserver(obs),
	)
	if err != nil {
		t.Fatalf("failed to create limiter: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.Acquire().Release()
		}()
	}
	wg.Wait()

	deadline := time.Now().Add(time.Second)
	for obs.Open() > 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	var acquires, resets int
	for _, span := range flushed(t, tracer, exporter) {
		switch span.Name {
		case SpanAcquire:
			acquires++
		case "ratelimit.resetter":
			resets++
		}
	}
	if acquires != 3 {
		t.Errorf("expected 3 acquire spans, got %d", acquires)
	}
	if resets < 1 {
		t.Errorf("expected at least one resetter span, got %d", resets)
	}
}

package tracing

import (
	"context"
	"testing"
	"time"

	"mercator-hq/throttle/pkg/config"

	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// BenchmarkTracer_Start_Disabled benchmarks span creation with disabled tracing.
func BenchmarkTracer_Start_Disabled(b *testing.B) {
	tracer, err := New(&config.TracingConfig{Enabled: false})
	if err != nil {
		b.Fatalf("Failed to create tracer: %v", err)
	}
	ctx := context.Background()

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		_, span := tracer.Start(ctx, "test-operation")
		span.End()
	}
}

// BenchmarkObserver_PermitIssued benchmarks one acquire span per admission.
func BenchmarkObserver_PermitIssued(b *testing.B) {
	tracer, err := New(&config.TracingConfig{
		Enabled:     true,
		Sampler:     SamplerAlways,
		ServiceName: "bench",
	}, WithExporter(tracetest.NewNoopExporter()), WithoutGlobal())
	if err != nil {
		b.Fatalf("Failed to create tracer: %v", err)
	}
	defer func() { _ = tracer.Shutdown(context.Background()) }()
	obs := NewObserver(tracer)

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		obs.PermitIssued("api", time.Millisecond)
	}
}

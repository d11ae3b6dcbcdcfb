// Package tracing provides OpenTelemetry tracing for throttle.
//
// # Overview
//
// New builds an SDK TracerProvider from config.TracingConfig with one of
// three exporters:
//
//   - stdout: JSON spans written to a writer (os.Stdout by default)
//   - otlp: OTLP over gRPC to a collector at Endpoint
//   - none: spans are sampled and carry IDs but are not exported
//
// When tracing is disabled a noop tracer is used.
//
// # Spans
//
// Observer implements ratelimit.Observer. Installed on a limiter it records
//
//   - ratelimit.acquire: one span per admission, starting when the caller
//     began waiting and ending when it was admitted
//   - ratelimit.resetter / ratelimit.refiller: one span per background task
//     run
//
// pkg/limits additionally opens a limits.acquire span as a child of the
// caller's context, so waits show up inside the caller's own trace.
//
// # Sampling
//
//	telemetry:
//	  tracing:
//	    enabled: true
//	    sampler: ratio      # always | never | ratio
//	    sample_ratio: 0.1
//
// Samplers are parent based: child spans follow their parent's decision.
package tracing

// Package telemetry groups the observability packages used by throttle.
//
// # Components
//
//   - logging: slog-based structured logging with request context fields
//   - metrics: Prometheus registry, /metrics endpoint and cardinality caps
//   - tracing: OpenTelemetry tracer provider and a limiter span observer
//   - health: liveness, readiness and version endpoints
//
// # Usage
//
//	cfg := config.GetConfig()
//
//	logger, _ := logging.FromConfig(cfg.Telemetry.Logging, os.Stderr)
//	collector := metrics.NewCollector(cfg.Telemetry.Metrics, nil)
//	tracer, _ := tracing.New(&cfg.Telemetry.Tracing)
//	defer tracer.Shutdown(context.Background())
//
// The limiter-facing pieces (limits.Metrics and tracing.Observer) both
// implement ratelimit.Observer and are installed with ratelimit.WithObserver.
package telemetry

// Package limits builds and manages named rate limiters from configuration.
//
// # Overview
//
// A Manager turns config.LimitsConfig into live limiters:
//
//   - Fixed window and token bucket limiters, one per configured name
//   - Groups, which acquire several limiters in order as one gate
//   - Prometheus metrics and tracing spans for every acquisition
//   - Hot reload that keeps the state of unchanged limiters
//   - A cron-driven reset of the issued counters
//
// # Architecture
//
// The algorithms live in the ratelimit sub-package and know nothing about
// configuration. This package names them, wires observers into them and
// exposes them by name.
//
// # Usage
//
//	cfg := config.GetConfig()
//	metrics := limits.NewMetrics(collector.Registerer(), collector.Namespace())
//
//	manager, err := limits.NewManager(cfg.Limits,
//	    limits.WithMetrics(metrics),
//	    limits.WithTracer(tracer),
//	)
//	if err != nil {
//	    return err
//	}
//	defer manager.Close()
//
//	permit, err := manager.Acquire(ctx, "api")
//	if err != nil {
//	    return err
//	}
//	defer permit.Release()
//
// # Thread Safety
//
// All Manager methods may be called concurrently. Reload swaps the limiter
// set atomically; callers already blocked in Acquire finish against the
// limiter they started with.
package limits

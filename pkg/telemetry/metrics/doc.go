// Package metrics provides the Prometheus registry and /metrics endpoint for
// throttle.
//
// # Overview
//
// A Collector owns a private prometheus.Registry carrying the Go runtime and
// process collectors and a build_info gauge. Other packages register their
// own metrics with Registerer(); pkg/limits does this for the per-limiter
// counters, wait histogram and background task gauges.
//
// # Usage
//
//	collector := metrics.NewCollector(cfg.Telemetry.Metrics, nil)
//	collector.SetBuildInfo(version, commit)
//
//	srv := metrics.NewServer(collector, logger)
//	go srv.ListenAndServe(ctx)
//
// # Cardinality Management
//
// Label values that come from configuration (limiter names) pass through a
// CardinalityLimiter. Once the cap is reached, new values are reported as
// "other".
package metrics

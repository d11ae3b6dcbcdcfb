package metrics

import (
	"sync"

	"mercator-hq/throttle/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// OverflowLabel replaces label values once a CardinalityLimiter is full.
const OverflowLabel = "other"

// Collector owns the Prometheus registry that the throttle packages register
// their metrics with, and serves it over HTTP.
//
// The registry always carries the Go runtime and process collectors and a
// build_info gauge. Limiter metrics are added by pkg/limits through
// Registerer().
type Collector struct {
	config   config.MetricsConfig
	registry *prometheus.Registry

	buildInfo *prometheus.GaugeVec
}

// NewCollector creates a collector for the given configuration. If registry is
// nil a fresh registry is created; the global default registry is never used.
//
// Example:
//
//	collector := metrics.NewCollector(cfg.Telemetry.Metrics, nil)
//	limitsMetrics := limits.NewMetrics(collector.Registerer(), collector.Namespace())
func NewCollector(cfg config.MetricsConfig, registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	if cfg.Namespace == "" {
		cfg.Namespace = config.DefaultMetricsNamespace
	}
	if cfg.Path == "" {
		cfg.Path = config.DefaultPrometheusPath
	}

	c := &Collector{
		config:   cfg,
		registry: registry,
		buildInfo: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Name:      "build_info",
				Help:      "Build information of the running binary (always 1)",
			},
			[]string{"version", "commit"},
		),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		c.buildInfo,
	)

	return c
}

// SetBuildInfo publishes the version and commit of the running binary.
func (c *Collector) SetBuildInfo(version, commit string) {
	c.buildInfo.Reset()
	c.buildInfo.WithLabelValues(version, commit).Set(1)
}

// Enabled reports whether metrics should be exposed.
func (c *Collector) Enabled() bool {
	return c.config.Enabled
}

// Namespace returns the metric name prefix.
func (c *Collector) Namespace() string {
	return c.config.Namespace
}

// Registry returns the Prometheus registry used by this collector.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Registerer returns the registry as a prometheus.Registerer, for use with
// promauto.With.
func (c *Collector) Registerer() prometheus.Registerer {
	return c.registry
}

// CardinalityLimiter prevents metric cardinality explosion by limiting
// the number of unique label values a metric may carry.
//
// Limiter names come from configuration and can change on every reload, so
// label values are capped for the lifetime of the process.
type CardinalityLimiter struct {
	maxCardinality int
	current        map[string]struct{}
	mu             sync.RWMutex
}

// NewCardinalityLimiter creates a new cardinality limiter with the specified
// maximum cardinality.
func NewCardinalityLimiter(maxCardinality int) *CardinalityLimiter {
	return &CardinalityLimiter{
		maxCardinality: maxCardinality,
		current:        make(map[string]struct{}),
	}
}

// Allow checks if a label value is allowed. Returns true if the value
// already exists or if we haven't reached the cardinality limit yet.
// Returns false if adding this value would exceed the limit.
func (cl *CardinalityLimiter) Allow(value string) bool {
	cl.mu.RLock()
	if _, exists := cl.current[value]; exists {
		cl.mu.RUnlock()
		return true
	}
	cl.mu.RUnlock()

	cl.mu.Lock()
	defer cl.mu.Unlock()

	// Double-check after acquiring write lock
	if _, exists := cl.current[value]; exists {
		return true
	}

	if len(cl.current) >= cl.maxCardinality {
		return false
	}

	cl.current[value] = struct{}{}
	return true
}

// Label returns value if it is allowed and OverflowLabel otherwise.
func (cl *CardinalityLimiter) Label(value string) string {
	if cl.Allow(value) {
		return value
	}
	return OverflowLabel
}

// Count returns the current cardinality.
func (cl *CardinalityLimiter) Count() int {
	cl.mu.RLock()
	defer cl.mu.RUnlock()
	return len(cl.current)
}

package limits

import (
	"time"

	"mercator-hq/throttle/pkg/limits/ratelimit"
	"mercator-hq/throttle/pkg/telemetry/metrics"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	metricsSubsystem = "limits"

	// maxLimiterLabels caps distinct limiter label values across reloads.
	maxLimiterLabels = 1000
)

// Metrics contains Prometheus metrics for the limits package.
// It implements ratelimit.Observer.
type Metrics struct {
	permitsIssued   *prometheus.CounterVec
	permitsReleased *prometheus.CounterVec
	acquireWait     *prometheus.HistogramVec
	inFlight        *prometheus.GaugeVec

	backgroundRunning *prometheus.GaugeVec
	backgroundRuns    *prometheus.CounterVec

	counterResets *prometheus.CounterVec

	registerer prometheus.Registerer
	namespace  string
	labels     *metrics.CardinalityLimiter
}

var _ ratelimit.Observer = (*Metrics)(nil)

// NewMetrics creates the limiter metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer, namespace string) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		permitsIssued: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: metricsSubsystem,
				Name:      "permits_issued_total",
				Help:      "Total number of permits issued",
			},
			[]string{"limiter"},
		),

		permitsReleased: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: metricsSubsystem,
				Name:      "permits_released_total",
				Help:      "Total number of permits released",
			},
			[]string{"limiter"},
		),

		acquireWait: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: metricsSubsystem,
				Name:      "acquire_wait_seconds",
				Help:      "Time callers spent blocked in Acquire",
				Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10), // 100µs to ~26s
			},
			[]string{"limiter"},
		),

		inFlight: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: metricsSubsystem,
				Name:      "permits_in_flight",
				Help:      "Permits issued and not yet released",
			},
			[]string{"limiter"},
		),

		backgroundRunning: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: metricsSubsystem,
				Name:      "background_running",
				Help:      "Whether a limiter's resetter or refill loop is live (1) or not (0)",
			},
			[]string{"limiter", "kind"},
		),

		backgroundRuns: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: metricsSubsystem,
				Name:      "background_runs_total",
				Help:      "Total number of resetter or refill loop starts",
			},
			[]string{"limiter", "kind"},
		),

		counterResets: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: metricsSubsystem,
				Name:      "issued_counter_resets_total",
				Help:      "Total number of issued counter resets",
			},
			[]string{"limiter"},
		),

		registerer: reg,
		namespace:  namespace,
		labels:     metrics.NewCardinalityLimiter(maxLimiterLabels),
	}
}

// PermitIssued records an admission and its wait.
func (m *Metrics) PermitIssued(limiter string, wait time.Duration) {
	limiter = m.labels.Label(limiter)
	m.permitsIssued.WithLabelValues(limiter).Inc()
	m.acquireWait.WithLabelValues(limiter).Observe(wait.Seconds())
	m.inFlight.WithLabelValues(limiter).Inc()
}

// PermitReleased records a release.
func (m *Metrics) PermitReleased(limiter string) {
	limiter = m.labels.Label(limiter)
	m.permitsReleased.WithLabelValues(limiter).Inc()
	m.inFlight.WithLabelValues(limiter).Dec()
}

// BackgroundStarted records a resetter or refill loop start.
func (m *Metrics) BackgroundStarted(limiter string, kind ratelimit.BackgroundKind) {
	limiter = m.labels.Label(limiter)
	m.backgroundRuns.WithLabelValues(limiter, string(kind)).Inc()
	m.backgroundRunning.WithLabelValues(limiter, string(kind)).Set(1)
}

// BackgroundStopped records a resetter firing or a refill loop exiting.
func (m *Metrics) BackgroundStopped(limiter string, kind ratelimit.BackgroundKind) {
	m.backgroundRunning.WithLabelValues(m.labels.Label(limiter), string(kind)).Set(0)
}

// RecordCounterReset records a ResetPermitsIssued call.
func (m *Metrics) RecordCounterReset(limiter string) {
	m.counterResets.WithLabelValues(m.labels.Label(limiter)).Inc()
}

// remainingCollector exports Remaining for every entry of a snapshot source
// at scrape time.
type remainingCollector struct {
	desc   *prometheus.Desc
	source func() Snapshot
}

func (c *remainingCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.desc
}

func (c *remainingCollector) Collect(ch chan<- prometheus.Metric) {
	for _, info := range c.source().Limiters {
		ch <- prometheus.MustNewConstMetric(c.desc, prometheus.GaugeValue,
			float64(info.Remaining), info.Name, string(info.Kind))
	}
}

// watchRemaining registers a collector reporting source's Remaining values.
// The returned collector is passed to unwatchRemaining on shutdown.
func (m *Metrics) watchRemaining(source func() Snapshot) (prometheus.Collector, error) {
	c := &remainingCollector{
		desc: prometheus.NewDesc(
			prometheus.BuildFQName(m.namespace, metricsSubsystem, "permits_remaining"),
			"Capacity left before Acquire blocks",
			[]string{"limiter", "kind"}, nil,
		),
		source: source,
	}
	if err := m.registerer.Register(c); err != nil {
		return nil, err
	}
	return c, nil
}

func (m *Metrics) unwatchRemaining(c prometheus.Collector) {
	m.registerer.Unregister(c)
}

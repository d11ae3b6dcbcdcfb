package config

import "time"

// Default values for configuration fields.
const (
	// Limits defaults
	DefaultLimitsWatch         = false
	DefaultLimitsWatchDebounce = 100 * time.Millisecond
	DefaultMinUpdateFrequency  = time.Millisecond

	// Telemetry defaults
	DefaultLoggingLevel         = "info"
	DefaultLoggingFormat        = "json"
	DefaultMetricsEnabled       = true
	DefaultMetricsListenAddress = "127.0.0.1:9090"
	DefaultPrometheusPath       = "/metrics"
	DefaultMetricsNamespace     = "throttle"
	DefaultTracingEnabled       = false
	DefaultTracingExporter      = "stdout"
	DefaultTracingServiceName   = "throttle"
	DefaultTracingSampler       = "ratio"
	DefaultTracingSamplingRate  = 1.0
)

// NewDefaultConfig returns a configuration with every default applied and no
// limiters defined.
func NewDefaultConfig() *Config {
	cfg := &Config{
		Telemetry: TelemetryConfig{
			Metrics: MetricsConfig{Enabled: DefaultMetricsEnabled},
		},
	}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults applies default values to a Config struct.
// It sets defaults for any fields that have zero values.
// This function is idempotent and safe to call multiple times.
func ApplyDefaults(cfg *Config) {
	// Limits defaults
	if cfg.Limits.WatchDebounce == 0 {
		cfg.Limits.WatchDebounce = DefaultLimitsWatchDebounce
	}
	for i := range cfg.Limits.Limiters {
		applyLimiterDefaults(&cfg.Limits.Limiters[i])
	}

	// Logging defaults
	if cfg.Telemetry.Logging.Level == "" {
		cfg.Telemetry.Logging.Level = DefaultLoggingLevel
	}
	if cfg.Telemetry.Logging.Format == "" {
		cfg.Telemetry.Logging.Format = DefaultLoggingFormat
	}

	// Metrics defaults
	if cfg.Telemetry.Metrics.ListenAddress == "" {
		cfg.Telemetry.Metrics.ListenAddress = DefaultMetricsListenAddress
	}
	if cfg.Telemetry.Metrics.Path == "" {
		cfg.Telemetry.Metrics.Path = DefaultPrometheusPath
	}
	if cfg.Telemetry.Metrics.Namespace == "" {
		cfg.Telemetry.Metrics.Namespace = DefaultMetricsNamespace
	}

	// Tracing defaults
	if cfg.Telemetry.Tracing.Exporter == "" {
		cfg.Telemetry.Tracing.Exporter = DefaultTracingExporter
	}
	if cfg.Telemetry.Tracing.Sampler == "" {
		cfg.Telemetry.Tracing.Sampler = DefaultTracingSampler
	}
	if cfg.Telemetry.Tracing.ServiceName == "" {
		cfg.Telemetry.Tracing.ServiceName = DefaultTracingServiceName
	}
	if cfg.Telemetry.Tracing.SampleRatio == 0 {
		cfg.Telemetry.Tracing.SampleRatio = DefaultTracingSamplingRate
	}
}

// applyLimiterDefaults fills the optional token bucket fields.
func applyLimiterDefaults(l *LimiterConfig) {
	if l.Type != LimiterTypeTokenBucket {
		return
	}
	if l.MaxBurst == 0 {
		l.MaxBurst = l.EpochPermits
	}
	if l.UpdateFrequency == 0 && l.Epoch > 0 && l.EpochPermits > 0 {
		l.UpdateFrequency = max(l.Epoch/time.Duration(l.EpochPermits), DefaultMinUpdateFrequency)
	}
}

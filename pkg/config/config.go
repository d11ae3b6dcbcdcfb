package config

import "time"

// Limiter types accepted in LimiterConfig.Type.
const (
	LimiterTypeFixedWindow = "fixed_window"
	LimiterTypeTokenBucket = "token_bucket"
)

// Config is the root configuration structure for throttle.
// It contains the limiter definitions and the telemetry settings.
type Config struct {
	// Limits contains the named limiters, the groups that combine them and
	// the issued-counter reset schedule.
	Limits LimitsConfig `yaml:"limits"`

	// Telemetry contains configuration for observability including logging,
	// metrics, and tracing.
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// LimitsConfig contains the limiter definitions.
type LimitsConfig struct {
	// Limiters are the individually named limiters.
	Limiters []LimiterConfig `yaml:"limiters" validate:"dive"`

	// Groups combine limiters into a single gate. Members are acquired in
	// the order listed.
	Groups []GroupConfig `yaml:"groups" validate:"dive"`

	// ResetSchedule is an optional cron expression (standard 5-field syntax)
	// on which all issued counters are reset.
	// Example: "0 0 * * *" (daily at midnight)
	ResetSchedule string `yaml:"reset_schedule" validate:"omitempty,cronspec"`

	// Watch reloads limiter definitions when the config file changes.
	// Default: false
	Watch bool `yaml:"watch"`

	// WatchDebounce is how long file events are coalesced before a reload.
	// Default: 100ms
	WatchDebounce time.Duration `yaml:"watch_debounce" validate:"gte=0"`
}

// LimiterConfig defines a single named limiter.
//
// Fixed window limiters use Window and Permits. Token bucket limiters use
// Epoch, EpochPermits, MaxBurst and UpdateFrequency.
type LimiterConfig struct {
	// Name identifies the limiter. Must be unique across limiters and groups.
	Name string `yaml:"name" validate:"required"`

	// Type is the algorithm.
	// Options: "fixed_window", "token_bucket"
	Type string `yaml:"type" validate:"required,oneof=fixed_window token_bucket"`

	// Window is the fixed window length.
	Window time.Duration `yaml:"window" validate:"gte=0"`

	// Permits is the number of acquisitions allowed to start per window.
	Permits int `yaml:"permits" validate:"gte=0"`

	// Epoch is the token bucket period.
	Epoch time.Duration `yaml:"epoch" validate:"gte=0"`

	// EpochPermits is the long-run acquisitions allowed per epoch.
	EpochPermits int `yaml:"epoch_permits" validate:"gte=0"`

	// MaxBurst is the bucket size.
	// Default: EpochPermits
	MaxBurst int `yaml:"max_burst" validate:"gte=0"`

	// UpdateFrequency is the refill tick.
	// Default: Epoch / EpochPermits, at least 1ms
	UpdateFrequency time.Duration `yaml:"update_frequency" validate:"gte=0"`
}

// GroupConfig combines limiters into one gate.
type GroupConfig struct {
	// Name identifies the group. Must be unique across limiters and groups.
	Name string `yaml:"name" validate:"required"`

	// Limiters are the member limiter names, in acquisition order.
	Limiters []string `yaml:"limiters" validate:"min=1,dive,required"`
}

// TelemetryConfig contains observability configuration.
type TelemetryConfig struct {
	// Logging contains logging configuration.
	Logging LoggingConfig `yaml:"logging"`

	// Metrics contains metrics collection configuration.
	Metrics MetricsConfig `yaml:"metrics"`

	// Tracing contains tracing configuration.
	Tracing TracingConfig `yaml:"tracing"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	// Level is the minimum log level to emit.
	// Options: "debug", "info", "warn", "error"
	// Default: "info"
	Level string `yaml:"level" validate:"oneof=debug info warn error"`

	// Format controls the log output format.
	// Options: "json", "text", "console"
	// Default: "json"
	Format string `yaml:"format" validate:"oneof=json text console"`

	// AddSource includes file and line number in log entries.
	// Default: false
	AddSource bool `yaml:"add_source"`
}

// MetricsConfig contains metrics collection configuration.
type MetricsConfig struct {
	// Enabled controls whether limiter metrics are collected and served.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// ListenAddress is where the metrics endpoint listens.
	// Default: "127.0.0.1:9090"
	ListenAddress string `yaml:"listen_address"`

	// Path is the HTTP path for the Prometheus metrics endpoint.
	// Default: "/metrics"
	Path string `yaml:"path" validate:"omitempty,startswith=/"`

	// Namespace is the metric name prefix.
	// Default: "throttle"
	Namespace string `yaml:"namespace"`
}

// TracingConfig contains tracing configuration.
type TracingConfig struct {
	// Enabled controls whether acquisition spans are recorded.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// Exporter determines where spans are written.
	// Options: "stdout", "otlp", "none"
	// Default: "stdout"
	Exporter string `yaml:"exporter" validate:"omitempty,oneof=stdout otlp none"`

	// Endpoint is the OTLP gRPC collector address (host:port).
	// Required when Exporter is "otlp".
	Endpoint string `yaml:"endpoint"`

	// Insecure disables TLS for the OTLP connection.
	// Default: false
	Insecure bool `yaml:"insecure"`

	// Sampler is the sampling strategy.
	// Options: "always", "never", "ratio"
	// Default: "ratio"
	Sampler string `yaml:"sampler" validate:"omitempty,oneof=always never ratio"`

	// ServiceName is the service name in traces.
	// Default: "throttle"
	ServiceName string `yaml:"service_name"`

	// SampleRatio is the fraction of traces to sample (0.0 to 1.0).
	// Default: 1.0
	SampleRatio float64 `yaml:"sample_ratio" validate:"gte=0,lte=1"`
}

package config

import "time"

// ConfigBuilder provides a fluent API for building Config instances in tests.
// It starts with default values and allows selective overrides.
type ConfigBuilder struct {
	cfg Config
}

// NewTestConfig creates a new ConfigBuilder with one fixed window limiter
// named "app". The resulting configuration is valid.
func NewTestConfig() *ConfigBuilder {
	b := &ConfigBuilder{cfg: *NewDefaultConfig()}
	return b.WithFixedWindow("app", time.Second, 20)
}

// Build applies defaults and returns the built Config instance.
func (b *ConfigBuilder) Build() *Config {
	ApplyDefaults(&b.cfg)
	return &b.cfg
}

// WithFixedWindow adds a fixed window limiter.
func (b *ConfigBuilder) WithFixedWindow(name string, window time.Duration, permits int) *ConfigBuilder {
	b.cfg.Limits.Limiters = append(b.cfg.Limits.Limiters, LimiterConfig{
		Name:    name,
		Type:    LimiterTypeFixedWindow,
		Window:  window,
		Permits: permits,
	})
	return b
}

// WithTokenBucket adds a token bucket limiter.
func (b *ConfigBuilder) WithTokenBucket(name string, epoch time.Duration, epochPermits, maxBurst int, freq time.Duration) *ConfigBuilder {
	b.cfg.Limits.Limiters = append(b.cfg.Limits.Limiters, LimiterConfig{
		Name:            name,
		Type:            LimiterTypeTokenBucket,
		Epoch:           epoch,
		EpochPermits:    epochPermits,
		MaxBurst:        maxBurst,
		UpdateFrequency: freq,
	})
	return b
}

// WithGroup adds a group over the named limiters.
func (b *ConfigBuilder) WithGroup(name string, limiters ...string) *ConfigBuilder {
	b.cfg.Limits.Groups = append(b.cfg.Limits.Groups, GroupConfig{Name: name, Limiters: limiters})
	return b
}

// WithResetSchedule sets the issued counter reset schedule.
func (b *ConfigBuilder) WithResetSchedule(schedule string) *ConfigBuilder {
	b.cfg.Limits.ResetSchedule = schedule
	return b
}

// WithLogLevel sets the logging level.
func (b *ConfigBuilder) WithLogLevel(level string) *ConfigBuilder {
	b.cfg.Telemetry.Logging.Level = level
	return b
}

// WithMetrics sets metrics enabled/disabled.
func (b *ConfigBuilder) WithMetrics(enabled bool) *ConfigBuilder {
	b.cfg.Telemetry.Metrics.Enabled = enabled
	return b
}

// WithTracing sets tracing enabled/disabled.
func (b *ConfigBuilder) WithTracing(enabled bool) *ConfigBuilder {
	b.cfg.Telemetry.Tracing.Enabled = enabled
	return b
}

package config

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestValidate_ValidConfig(t *testing.T) {
	cfg := NewTestConfig().
		WithTokenBucket("method", 10*time.Second, 100, 10, 100*time.Millisecond).
		WithGroup("api", "app", "method").
		WithResetSchedule("0 0 * * *").
		Build()

	if err := Validate(cfg); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}
}

func TestValidate_FieldErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*ConfigBuilder)
		field  string
		substr string
	}{
		{
			name:   "missing limiter name",
			mutate: func(b *ConfigBuilder) { b.WithFixedWindow("", time.Second, 1) },
			field:  "limits.limiters[1].name",
			substr: "is required",
		},
		{
			name: "unknown limiter type",
			mutate: func(b *ConfigBuilder) {
				b.cfg.Limits.Limiters = append(b.cfg.Limits.Limiters, LimiterConfig{Name: "x", Type: "leaky_bucket"})
			},
			field:  "limits.limiters[1].type",
			substr: "must be one of",
		},
		{
			name:   "zero window",
			mutate: func(b *ConfigBuilder) { b.WithFixedWindow("w", 0, 5) },
			field:  "limits.limiters[1].window",
			substr: "window must be positive",
		},
		{
			name:   "negative permits",
			mutate: func(b *ConfigBuilder) { b.WithFixedWindow("w", time.Second, -1) },
			field:  "limits.limiters[1].permits",
			substr: "at least 0",
		},
		{
			name:   "burst above epoch permits",
			mutate: func(b *ConfigBuilder) { b.WithTokenBucket("tb", time.Second, 5, 6, time.Millisecond) },
			field:  "limits.limiters[1].max_burst",
			substr: "between 1 and epoch_permits",
		},
		{
			name:   "frequency above epoch",
			mutate: func(b *ConfigBuilder) { b.WithTokenBucket("tb", time.Second, 5, 5, 2*time.Second) },
			field:  "limits.limiters[1].update_frequency",
			substr: "no longer than epoch",
		},
		{
			name:   "duplicate limiter name",
			mutate: func(b *ConfigBuilder) { b.WithFixedWindow("app", time.Second, 1) },
			field:  "limits.limiters[1].name",
			substr: "duplicate name",
		},
		{
			name:   "group shadows limiter",
			mutate: func(b *ConfigBuilder) { b.WithGroup("app", "app") },
			field:  "limits.groups[0].name",
			substr: "duplicate name",
		},
		{
			name:   "unknown group member",
			mutate: func(b *ConfigBuilder) { b.WithGroup("api", "app", "methd") },
			field:  "limits.groups[0].limiters[1]",
			substr: `unknown limiter "methd"`,
		},
		{
			name:   "repeated group member",
			mutate: func(b *ConfigBuilder) { b.WithGroup("api", "app", "app") },
			field:  "limits.groups[0].limiters[1]",
			substr: "more than once",
		},
		{
			name:   "empty group",
			mutate: func(b *ConfigBuilder) { b.WithGroup("api") },
			field:  "limits.groups[0].limiters",
			substr: "at least 1 items",
		},
		{
			name:   "bad cron",
			mutate: func(b *ConfigBuilder) { b.WithResetSchedule("every day") },
			field:  "limits.reset_schedule",
			substr: "invalid cron expression",
		},
		{
			name:   "bad log level",
			mutate: func(b *ConfigBuilder) { b.WithLogLevel("verbose") },
			field:  "telemetry.logging.level",
			substr: "must be one of",
		},
		{
			name: "bad metrics address",
			mutate: func(b *ConfigBuilder) {
				b.cfg.Telemetry.Metrics.ListenAddress = "localhost"
			},
			field:  "telemetry.metrics.listen_address",
			substr: "invalid listen address",
		},
		{
			name: "bad metrics path",
			mutate: func(b *ConfigBuilder) {
				b.cfg.Telemetry.Metrics.Path = "metrics"
			},
			field:  "telemetry.metrics.path",
			substr: "must start with",
		},
		{
			name: "sample ratio out of range",
			mutate: func(b *ConfigBuilder) {
				b.cfg.Telemetry.Tracing.SampleRatio = 1.5
			},
			field:  "telemetry.tracing.sample_ratio",
			substr: "at most 1",
		},
		{
			name: "otlp without endpoint",
			mutate: func(b *ConfigBuilder) {
				b.WithTracing(true)
				b.cfg.Telemetry.Tracing.Exporter = "otlp"
			},
			field:  "telemetry.tracing.endpoint",
			substr: "endpoint is required",
		},
		{
			name: "unknown sampler",
			mutate: func(b *ConfigBuilder) {
				b.cfg.Telemetry.Tracing.Sampler = "sometimes"
			},
			field:  "telemetry.tracing.sampler",
			substr: "must be one of",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewTestConfig()
			tt.mutate(b)

			err := Validate(b.Build())

			var valErr ValidationError
			if !errors.As(err, &valErr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			for _, fe := range valErr.Errors {
				if fe.Field == tt.field && strings.Contains(fe.Message, tt.substr) {
					return
				}
			}
			t.Errorf("expected error on %s containing %q, got %v", tt.field, tt.substr, valErr.Errors)
		})
	}
}

func TestValidate_MetricsDisabledSkipsAddress(t *testing.T) {
	b := NewTestConfig().WithMetrics(false)
	b.cfg.Telemetry.Metrics.ListenAddress = "not-an-address"

	if err := Validate(b.Build()); err != nil {
		t.Errorf("expected no error with metrics disabled, got %v", err)
	}
}

func TestValidationError_Format(t *testing.T) {
	single := ValidationError{Errors: []FieldError{{Field: "a", Message: "bad"}}}
	if single.Error() != "configuration validation failed: a: bad" {
		t.Errorf("unexpected single error format: %q", single.Error())
	}

	multi := ValidationError{Errors: []FieldError{
		{Field: "a", Message: "bad"},
		{Field: "b", Message: "worse"},
	}}
	want := "configuration validation failed with 2 errors:\n  - a: bad\n  - b: worse\n"
	if multi.Error() != want {
		t.Errorf("unexpected multi error format: %q", multi.Error())
	}

	if (ValidationError{}).Error() != "configuration validation failed" {
		t.Error("unexpected empty error format")
	}
}

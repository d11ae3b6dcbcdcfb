package config

import (
	"errors"
	"fmt"
	"net"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/robfig/cron/v3"
)

// FieldError represents a validation error for a specific configuration field.
type FieldError struct {
	// Field is the dotted path to the configuration field (e.g., "limits.limiters[0].permits").
	Field string

	// Message is a human-readable error message.
	Message string
}

// Error returns the error message for this field error.
func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError represents one or more validation errors in a configuration.
// It implements the error interface and provides access to all field errors.
type ValidationError struct {
	// Errors contains all validation errors found in the configuration.
	Errors []FieldError
}

// Error returns a formatted string containing all validation errors.
func (e ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "configuration validation failed"
	}
	if len(e.Errors) == 1 {
		return fmt.Sprintf("configuration validation failed: %s", e.Errors[0].Error())
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("configuration validation failed with %d errors:\n", len(e.Errors)))
	for _, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("  - %s\n", err.Error()))
	}
	return sb.String()
}

// newValidator builds the struct-tag validator. Field names in errors use the
// yaml tags so they match the configuration file.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	// Registration only fails for empty tags or nil functions.
	_ = v.RegisterValidation("cronspec", validateCronSpec)
	return v
}

// validateCronSpec accepts standard 5-field cron expressions and descriptors
// such as "@daily".
func validateCronSpec(fl validator.FieldLevel) bool {
	_, err := cron.ParseStandard(fl.Field().String())
	return err == nil
}

// Validate validates the entire configuration and returns a ValidationError
// if any validation rules fail. It returns nil if the configuration is valid.
// All validation errors are collected and returned together.
func Validate(cfg *Config) error {
	var errs []FieldError

	// Struct tag rules
	errs = append(errs, validateTags(cfg)...)

	// Cross-field limits rules
	errs = append(errs, validateLimits(&cfg.Limits)...)

	// Cross-field telemetry rules
	errs = append(errs, validateTelemetry(&cfg.Telemetry)...)

	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}

	return nil
}

// validateTags runs the struct-tag validator and converts its errors.
func validateTags(cfg *Config) []FieldError {
	err := newValidator().Struct(cfg)
	if err == nil {
		return nil
	}

	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return []FieldError{{Field: "config", Message: err.Error()}}
	}

	errs := make([]FieldError, 0, len(validationErrors))
	for _, e := range validationErrors {
		errs = append(errs, FieldError{
			Field:   strings.TrimPrefix(e.Namespace(), "Config."),
			Message: formatTagError(e),
		})
	}
	return errs
}

// formatTagError creates a user-friendly message for a single tag failure.
func formatTagError(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "is required"
	case "min":
		return fmt.Sprintf("must have at least %s items", e.Param())
	case "oneof":
		return fmt.Sprintf("invalid value %q: must be one of: %s", fmt.Sprint(e.Value()), e.Param())
	case "startswith":
		return fmt.Sprintf("must start with %q", e.Param())
	case "gte":
		return fmt.Sprintf("must be at least %s", e.Param())
	case "lte":
		return fmt.Sprintf("must be at most %s", e.Param())
	case "cronspec":
		return fmt.Sprintf("invalid cron expression %q", fmt.Sprint(e.Value()))
	default:
		return fmt.Sprintf("failed validation: %s", e.Tag())
	}
}

// validateLimits checks the rules that span several fields: per-type
// parameters, unique names and group membership.
func validateLimits(cfg *LimitsConfig) []FieldError {
	var errs []FieldError

	names := make(map[string]string)
	for i, l := range cfg.Limiters {
		prefix := fmt.Sprintf("limits.limiters[%d]", i)
		if l.Name != "" {
			if prev, exists := names[l.Name]; exists {
				errs = append(errs, FieldError{
					Field:   prefix + ".name",
					Message: fmt.Sprintf("duplicate name %q (already used by %s)", l.Name, prev),
				})
			} else {
				names[l.Name] = prefix
			}
		}

		switch l.Type {
		case LimiterTypeFixedWindow:
			errs = append(errs, validateFixedWindow(prefix, &l)...)
		case LimiterTypeTokenBucket:
			errs = append(errs, validateTokenBucket(prefix, &l)...)
		}
	}

	limiters := make(map[string]bool, len(cfg.Limiters))
	for _, l := range cfg.Limiters {
		limiters[l.Name] = true
	}

	for i, g := range cfg.Groups {
		prefix := fmt.Sprintf("limits.groups[%d]", i)
		if g.Name != "" {
			if prev, exists := names[g.Name]; exists {
				errs = append(errs, FieldError{
					Field:   prefix + ".name",
					Message: fmt.Sprintf("duplicate name %q (already used by %s)", g.Name, prev),
				})
			} else {
				names[g.Name] = prefix
			}
		}

		seen := make(map[string]bool, len(g.Limiters))
		for j, member := range g.Limiters {
			if member == "" {
				continue
			}
			field := fmt.Sprintf("%s.limiters[%d]", prefix, j)
			if !limiters[member] {
				errs = append(errs, FieldError{
					Field:   field,
					Message: fmt.Sprintf("unknown limiter %q", member),
				})
			}
			if seen[member] {
				errs = append(errs, FieldError{
					Field:   field,
					Message: fmt.Sprintf("limiter %q listed more than once", member),
				})
			}
			seen[member] = true
		}
	}

	return errs
}

func validateFixedWindow(prefix string, l *LimiterConfig) []FieldError {
	var errs []FieldError

	if l.Window <= 0 {
		errs = append(errs, FieldError{
			Field:   prefix + ".window",
			Message: "window must be positive for fixed_window limiters",
		})
	}
	if l.Permits < 1 {
		errs = append(errs, FieldError{
			Field:   prefix + ".permits",
			Message: "permits must be at least 1 for fixed_window limiters",
		})
	}

	return errs
}

func validateTokenBucket(prefix string, l *LimiterConfig) []FieldError {
	var errs []FieldError

	if l.Epoch <= 0 {
		errs = append(errs, FieldError{
			Field:   prefix + ".epoch",
			Message: "epoch must be positive for token_bucket limiters",
		})
	}
	if l.EpochPermits < 1 {
		errs = append(errs, FieldError{
			Field:   prefix + ".epoch_permits",
			Message: "epoch_permits must be at least 1 for token_bucket limiters",
		})
	}
	if l.MaxBurst < 1 || l.MaxBurst > l.EpochPermits {
		errs = append(errs, FieldError{
			Field:   prefix + ".max_burst",
			Message: fmt.Sprintf("max_burst %d must be between 1 and epoch_permits (%d)", l.MaxBurst, l.EpochPermits),
		})
	}
	if l.UpdateFrequency <= 0 || (l.Epoch > 0 && l.UpdateFrequency > l.Epoch) {
		errs = append(errs, FieldError{
			Field:   prefix + ".update_frequency",
			Message: fmt.Sprintf("update_frequency %v must be positive and no longer than epoch (%v)", l.UpdateFrequency, l.Epoch),
		})
	}

	return errs
}

// validateTelemetry checks the telemetry rules that depend on Enabled flags.
func validateTelemetry(cfg *TelemetryConfig) []FieldError {
	var errs []FieldError

	if cfg.Metrics.Enabled {
		if cfg.Metrics.Path == "" {
			errs = append(errs, FieldError{
				Field:   "telemetry.metrics.path",
				Message: "metrics path is required when metrics are enabled",
			})
		}
		if _, _, err := net.SplitHostPort(cfg.Metrics.ListenAddress); err != nil {
			errs = append(errs, FieldError{
				Field:   "telemetry.metrics.listen_address",
				Message: fmt.Sprintf("invalid listen address %q: %v", cfg.Metrics.ListenAddress, err),
			})
		}
	}

	if cfg.Tracing.Enabled && cfg.Tracing.ServiceName == "" {
		errs = append(errs, FieldError{
			Field:   "telemetry.tracing.service_name",
			Message: "service name is required when tracing is enabled",
		})
	}
	if cfg.Tracing.Enabled && cfg.Tracing.Exporter == "otlp" && cfg.Tracing.Endpoint == "" {
		errs = append(errs, FieldError{
			Field:   "telemetry.tracing.endpoint",
			Message: "endpoint is required for the otlp exporter",
		})
	}

	return errs
}

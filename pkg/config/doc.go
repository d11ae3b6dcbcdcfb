// Package config provides configuration management for throttle.
//
// This package loads limiter definitions and telemetry settings from YAML
// files, applies defaults and environment variable overrides, validates the
// result and optionally watches the file for changes.
//
// # Configuration Loading
//
// Configuration can be loaded in two ways:
//
//  1. From a YAML file only:
//     cfg, err := config.LoadConfig("throttle.yaml")
//
//  2. From a YAML file with environment variable overrides:
//     cfg, err := config.LoadConfigWithEnvOverrides("throttle.yaml")
//
// # Environment Variable Overrides
//
// Environment variables follow the naming convention THROTTLE_SECTION_FIELD.
// For example:
//
//   - THROTTLE_LOGGING_LEVEL overrides telemetry.logging.level
//   - THROTTLE_METRICS_LISTEN_ADDRESS overrides telemetry.metrics.listen_address
//   - THROTTLE_LIMITS_RESET_SCHEDULE overrides limits.reset_schedule
//
// Limiter definitions themselves are file-only.
//
// # Validation
//
// Struct tags are checked with go-playground/validator. Rules spanning
// several fields (token bucket burst against epoch permits, group members
// that must exist, unique names) are checked by hand. All errors are
// collected and reported together:
//
//	configuration validation failed with 2 errors:
//	  - limits.limiters[1].max_burst: max_burst 20 must be between 1 and epoch_permits (10)
//	  - limits.groups[0].limiters[1]: unknown limiter "methd"
//
// # Example Configuration
//
//	limits:
//	  limiters:
//	    - name: app
//	      type: fixed_window
//	      window: 1s
//	      permits: 20
//	    - name: method
//	      type: token_bucket
//	      epoch: 10s
//	      epoch_permits: 100
//	      max_burst: 10
//	      update_frequency: 100ms
//	  groups:
//	    - name: api
//	      limiters: [app, method]
//	  reset_schedule: "0 0 * * *"
//
//	telemetry:
//	  logging:
//	    level: "info"
//	    format: "json"
//
// # Hot Reload
//
// FileWatcher watches the configuration file with fsnotify, debounces bursts
// of events and hands freshly loaded configurations to a callback. Invalid
// files are logged and skipped; the previous configuration stays active.
//
// # Thread Safety
//
// The singleton accessors are safe for concurrent use. Config values are
// treated as immutable once published.
package config

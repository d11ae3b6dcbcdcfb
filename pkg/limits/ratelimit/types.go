package ratelimit

import (
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// ErrInvalidConfig is returned (wrapped in a *ConfigError) when a limiter is
// constructed with parameters that violate its invariants.
var ErrInvalidConfig = errors.New("invalid rate limiter configuration")

// ConfigError describes a single rejected constructor parameter.
type ConfigError struct {
	// Limiter is the kind of limiter being built (e.g. "fixed window").
	Limiter string

	// Field is the offending parameter.
	Field string

	// Message explains the violated constraint.
	Message string
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s: %s %s", e.Limiter, e.Field, e.Message)
}

// Unwrap allows errors.Is(err, ErrInvalidConfig).
func (e *ConfigError) Unwrap() error {
	return ErrInvalidConfig
}

// BackgroundKind names the background task a limiter runs.
type BackgroundKind string

const (
	// KindResetter is the fixed window's one-shot reset timer.
	KindResetter BackgroundKind = "resetter"

	// KindRefiller is the token bucket's refill ticker.
	KindRefiller BackgroundKind = "refiller"
)

// Observer receives limiter lifecycle events.
//
// Implementations are called synchronously on the acquiring or releasing
// goroutine (or on the background task) and must not block. Limiter locks are
// never held while an Observer method runs.
type Observer interface {
	// PermitIssued is called once a caller has been admitted, with the time
	// it spent blocked in Acquire.
	PermitIssued(limiter string, wait time.Duration)

	// PermitReleased is called when a permit is released.
	PermitReleased(limiter string)

	// BackgroundStarted is called when a resetter or refill loop is armed.
	BackgroundStarted(limiter string, kind BackgroundKind)

	// BackgroundStopped is called when a resetter fires or a refill loop exits.
	BackgroundStopped(limiter string, kind BackgroundKind)
}

// NoopObserver ignores all events.
type NoopObserver struct{}

func (NoopObserver) PermitIssued(string, time.Duration) {}
func (NoopObserver) PermitReleased(string) {}
func (NoopObserver) BackgroundStarted(string, BackgroundKind) {}
func (NoopObserver) BackgroundStopped(string, BackgroundKind) {}

// MultiObserver fans every event out to each of its members in order.
type MultiObserver []Observer

func (m MultiObserver) PermitIssued(limiter string, wait time.Duration) {
	for _, o := range m {
		o.PermitIssued(limiter, wait)
	}
}

func (m MultiObserver) PermitReleased(limiter string) {
	for _, o := range m {
		o.PermitReleased(limiter)
	}
}

func (m MultiObserver) BackgroundStarted(limiter string, kind BackgroundKind) {
	for _, o := range m {
		o.BackgroundStarted(limiter, kind)
	}
}

func (m MultiObserver) BackgroundStopped(limiter string, kind BackgroundKind) {
	for _, o := range m {
		o.BackgroundStopped(limiter, kind)
	}
}

// Option configures optional limiter behaviour.
type Option func(*options)

type options struct {
	name     string
	observer Observer
	logger   *slog.Logger
}

// WithName sets the name reported to observers, logs and Name().
func WithName(name string) Option {
	return func(o *options) {
		o.name = name
	}
}

// WithObserver installs an Observer. Passing it several times fans events out
// to every observer given.
func WithObserver(observer Observer) Option {
	return func(o *options) {
		if observer == nil {
			return
		}
		if o.observer == nil {
			o.observer = observer
			return
		}
		o.observer = MultiObserver{o.observer, observer}
	}
}

// WithLogger sets the logger used for background task debug logs.
// Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

func buildOptions(defaultName string, opts []Option) options {
	o := options{name: defaultName}
	for _, opt := range opts {
		opt(&o)
	}
	if o.observer == nil {
		o.observer = NoopObserver{}
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	o.logger = o.logger.With("component", "ratelimit", "limiter", o.name)
	return o
}

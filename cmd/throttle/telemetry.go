package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"mercator-hq/throttle/pkg/config"
	"mercator-hq/throttle/pkg/limits"
	"mercator-hq/throttle/pkg/telemetry/health"
	"mercator-hq/throttle/pkg/telemetry/logging"
	"mercator-hq/throttle/pkg/telemetry/metrics"
	"mercator-hq/throttle/pkg/telemetry/tracing"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// healthProbesPerSecond limits each probe endpoint.
	healthProbesPerSecond = 10

	telemetryShutdownTimeout = 5 * time.Second
)

// telemetry holds the observability stack for one run.
type telemetry struct {
	logger *logging.Logger

	tracer   *tracing.Tracer
	observer *tracing.Observer

	collector *metrics.Collector
	metrics   *limits.Metrics
	checker   *health.Checker
	server    *metrics.Server
	address   string

	cancelServe context.CancelFunc
	serveErr    chan error

	reload reloadStatus
}

// reloadStatus remembers the outcome of the last config reload for the
// readiness probe.
type reloadStatus struct {
	mu  sync.Mutex
	err error
}

func (r *reloadStatus) set(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.err = err
}

func (r *reloadStatus) get() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// startTelemetry sets up tracing and, when enabled, the metrics and health
// endpoint. The listener is bound before returning so address errors surface
// immediately.
func startTelemetry(ctx context.Context, cfg *config.Config, logger *logging.Logger) (*telemetry, error) {
	t := &telemetry{
		logger:  logger,
		checker: health.New(0),
	}

	tracer, err := tracing.New(&cfg.Telemetry.Tracing,
		tracing.WithWriter(os.Stderr),
		tracing.WithVersion(Version),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracing: %w", err)
	}
	t.tracer = tracer
	if tracer.Enabled() {
		t.observer = tracing.NewObserver(tracer)
	}

	if !cfg.Telemetry.Metrics.Enabled {
		return t, nil
	}

	t.collector = metrics.NewCollector(cfg.Telemetry.Metrics, prometheus.NewRegistry())
	t.collector.SetBuildInfo(Version, GitCommit)
	t.metrics = limits.NewMetrics(t.collector.Registerer(), t.collector.Namespace())

	t.server = metrics.NewServer(t.collector, logger.Slog())
	health.Mount(t.server.Mux(), t.checker, versionInfo(), healthProbesPerSecond)

	ln, err := net.Listen("tcp", cfg.Telemetry.Metrics.ListenAddress)
	if err != nil {
		t.shutdown()
		return nil, fmt.Errorf("failed to listen on %s: %w", cfg.Telemetry.Metrics.ListenAddress, err)
	}
	t.address = ln.Addr().String()

	serveCtx, cancel := context.WithCancel(ctx)
	t.cancelServe = cancel
	t.serveErr = make(chan error, 1)
	go func() {
		t.serveErr <- t.server.Serve(serveCtx, ln)
	}()

	return t, nil
}

// managerOptions wires the stack into a limits.Manager.
func (t *telemetry) managerOptions() []limits.Option {
	opts := []limits.Option{limits.WithLogger(t.logger.Slog())}
	if t.metrics != nil {
		opts = append(opts, limits.WithMetrics(t.metrics))
	}
	if t.observer != nil {
		opts = append(opts, limits.WithTracer(t.tracer), limits.WithObserver(t.observer))
	}
	return opts
}

// registerChecks adds the readiness checks for manager.
func (t *telemetry) registerChecks(manager *limits.Manager) {
	t.checker.RegisterCheck("limiters", func(context.Context) error {
		if len(manager.Names()) == 0 {
			return errors.New("no limiters configured")
		}
		return nil
	})
	t.checker.RegisterCheck("config", func(context.Context) error {
		if err := t.reload.get(); err != nil {
			return fmt.Errorf("last reload rejected: %w", err)
		}
		return nil
	})
}

// shutdown stops the endpoint and flushes spans.
func (t *telemetry) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), telemetryShutdownTimeout)
	defer cancel()

	if t.cancelServe != nil {
		t.cancelServe()
		select {
		case err := <-t.serveErr:
			if err != nil {
				t.logger.Warn("metrics endpoint stopped with error", "error", err)
			}
		case <-ctx.Done():
			t.logger.Warn("metrics endpoint did not stop in time")
		}
	}

	if t.observer != nil {
		t.observer.Close()
	}
	if t.tracer != nil {
		if err := t.tracer.Shutdown(ctx); err != nil {
			t.logger.Warn("tracer shutdown failed", "error", err)
		}
	}
}

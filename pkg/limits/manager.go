package limits

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"mercator-hq/throttle/pkg/config"
	"mercator-hq/throttle/pkg/limits/ratelimit"
	"mercator-hq/throttle/pkg/telemetry/logging"
	"mercator-hq/throttle/pkg/telemetry/tracing"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"
)

// SpanAcquire is the span opened around Manager.Acquire.
const SpanAcquire = "limits.acquire"

// Manager owns the named limiters and groups built from configuration.
//
// Limiters are looked up by name; groups are MultiRateLimiters over their
// members, so acquiring a group acquires each member in the configured order.
//
// # Example
//
//	manager, err := limits.NewManager(cfg.Limits, limits.WithMetrics(m))
//	if err != nil {
//	    return err
//	}
//
//	err = manager.Do(ctx, "api", func(ctx context.Context) error {
//	    return client.Call(ctx)
//	})
type Manager struct {
	mu      sync.RWMutex
	entries map[string]*entry
	order   []string

	// reloadMu serializes Reload so each build sees the previous result.
	reloadMu sync.Mutex

	observers []ratelimit.Observer
	metrics   *Metrics
	remaining prometheus.Collector
	tracer    *tracing.Tracer

	// base is handed to limiters; logger carries the manager's component.
	base   *slog.Logger
	logger *slog.Logger
}

type entry struct {
	name        string
	kind        Kind
	limiter     ratelimit.RateLimiter
	members     []string
	description string

	// def is the limiter definition; zero for groups.
	def config.LimiterConfig
}

// Option configures a Manager.
type Option func(*Manager)

// WithObserver installs an observer on every limiter and group. It may be
// given more than once.
func WithObserver(observer ratelimit.Observer) Option {
	return func(m *Manager) {
		if observer != nil {
			m.observers = append(m.observers, observer)
		}
	}
}

// WithMetrics installs Prometheus metrics on every limiter and group and
// exports their remaining capacity.
func WithMetrics(metrics *Metrics) Option {
	return func(m *Manager) {
		m.metrics = metrics
	}
}

// WithTracer opens a span around each Manager.Acquire.
func WithTracer(tracer *tracing.Tracer) Option {
	return func(m *Manager) {
		m.tracer = tracer
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.base = logger
		}
	}
}

// NewManager builds every limiter and group in cfg.
//
// cfg is expected to have passed config.Validate; constructor errors are
// still reported, wrapped with the limiter name.
func NewManager(cfg config.LimitsConfig, opts ...Option) (*Manager, error) {
	m := &Manager{base: slog.Default()}
	for _, opt := range opts {
		opt(m)
	}
	if m.metrics != nil {
		m.observers = append(m.observers, m.metrics)
	}
	m.logger = m.base.With("component", "limits")

	entries, order, _, err := m.build(cfg, nil)
	if err != nil {
		return nil, err
	}
	m.entries, m.order = entries, order

	if m.metrics != nil {
		c, err := m.metrics.watchRemaining(m.Snapshot)
		if err != nil {
			return nil, fmt.Errorf("failed to register remaining collector: %w", err)
		}
		m.remaining = c
	}

	m.logger.Info("limiters built",
		"limiters", len(cfg.Limiters),
		"groups", len(cfg.Groups),
	)
	return m, nil
}

// build constructs the entries for cfg. Limiters whose definition is
// unchanged from prev, and groups whose members were all kept, are reused so
// their windows, buckets and counters carry over.
func (m *Manager) build(cfg config.LimitsConfig, prev map[string]*entry) (map[string]*entry, []string, int, error) {
	entries := make(map[string]*entry, len(cfg.Limiters)+len(cfg.Groups))
	order := make([]string, 0, len(cfg.Limiters)+len(cfg.Groups))
	kept := make(map[string]bool)

	for _, lc := range cfg.Limiters {
		if _, dup := entries[lc.Name]; dup {
			return nil, nil, 0, fmt.Errorf("duplicate limiter name %q", lc.Name)
		}

		if old, ok := prev[lc.Name]; ok && old.kind != KindGroup && old.def == lc {
			entries[lc.Name] = old
			kept[lc.Name] = true
		} else {
			e, err := m.newLimiter(lc)
			if err != nil {
				return nil, nil, 0, fmt.Errorf("limiter %q: %w", lc.Name, err)
			}
			entries[lc.Name] = e
		}
		order = append(order, lc.Name)
	}

	for _, gc := range cfg.Groups {
		if _, dup := entries[gc.Name]; dup {
			return nil, nil, 0, fmt.Errorf("duplicate limiter name %q", gc.Name)
		}

		children := make([]ratelimit.RateLimiter, 0, len(gc.Limiters))
		allKept := true
		for _, member := range gc.Limiters {
			me, ok := entries[member]
			if !ok || me.kind == KindGroup {
				return nil, nil, 0, fmt.Errorf("group %q: %w %q", gc.Name, ErrUnknownLimiter, member)
			}
			children = append(children, me.limiter)
			allKept = allKept && kept[member]
		}

		if old, ok := prev[gc.Name]; ok && old.kind == KindGroup && allKept && slices.Equal(old.members, gc.Limiters) {
			entries[gc.Name] = old
			kept[gc.Name] = true
		} else {
			entries[gc.Name] = &entry{
				name:        gc.Name,
				kind:        KindGroup,
				limiter:     ratelimit.NewMultiRateLimiterWithOptions(children, m.limiterOptions(gc.Name)...),
				members:     slices.Clone(gc.Limiters),
				description: strings.Join(gc.Limiters, " -> "),
			}
		}
		order = append(order, gc.Name)
	}

	return entries, order, len(kept), nil
}

func (m *Manager) newLimiter(lc config.LimiterConfig) (*entry, error) {
	e := &entry{name: lc.Name, def: lc}
	opts := m.limiterOptions(lc.Name)

	switch lc.Type {
	case config.LimiterTypeFixedWindow:
		l, err := ratelimit.NewFixedWindowRateLimiter(lc.Window, lc.Permits, opts...)
		if err != nil {
			return nil, err
		}
		e.kind, e.limiter = KindFixedWindow, l
		e.description = fmt.Sprintf("%d permits per %v", lc.Permits, lc.Window)

	case config.LimiterTypeTokenBucket:
		l, err := ratelimit.NewTokenBucketRateLimiter(lc.Epoch, lc.EpochPermits, lc.MaxBurst, lc.UpdateFrequency, opts...)
		if err != nil {
			return nil, err
		}
		e.kind, e.limiter = KindTokenBucket, l
		e.description = fmt.Sprintf("%d permits per %v, burst %d, refill every %v",
			lc.EpochPermits, lc.Epoch, lc.MaxBurst, lc.UpdateFrequency)

	default:
		return nil, fmt.Errorf("unsupported limiter type %q", lc.Type)
	}

	return e, nil
}

func (m *Manager) limiterOptions(name string) []ratelimit.Option {
	opts := []ratelimit.Option{
		ratelimit.WithName(name),
		ratelimit.WithLogger(m.base),
	}
	for _, o := range m.observers {
		opts = append(opts, ratelimit.WithObserver(o))
	}
	return opts
}

func (m *Manager) lookup(name string) (*entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.entries[name]
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownLimiter, name)
	}
	return e, nil
}

// Get returns the limiter or group with the given name.
func (m *Manager) Get(name string) (ratelimit.RateLimiter, error) {
	e, err := m.lookup(name)
	if err != nil {
		return nil, err
	}
	return e.limiter, nil
}

// Acquire blocks until the named limiter or group admits the caller.
//
// ctx supplies the parent span and the request fields logged with the
// acquisition; it does not bound the wait. The only error is
// ErrUnknownLimiter.
func (m *Manager) Acquire(ctx context.Context, name string) (*ratelimit.Permit, error) {
	e, err := m.lookup(name)
	if err != nil {
		return nil, err
	}

	var span trace.Span
	if m.tracer != nil {
		_, span = m.tracer.Start(ctx, SpanAcquire)
		tracing.SetLimiterAttributes(span, e.name, string(e.kind))
		tracing.SetCallAttributes(span, logging.GetRequestID(ctx), logging.GetCaller(ctx))
	}

	start := time.Now()
	permit := e.limiter.Acquire()
	wait := time.Since(start)

	if span != nil {
		tracing.SetWaitAttributes(span, wait)
		span.End()
	}

	m.logger.DebugContext(ctx, "permit acquired", "limiter", e.name, "wait", wait)
	return permit, nil
}

// Do acquires the named limiter or group, runs fn and releases the permit on
// every exit path.
func (m *Manager) Do(ctx context.Context, name string, fn func(context.Context) error) error {
	permit, err := m.Acquire(ctx, name)
	if err != nil {
		return err
	}
	defer permit.Release()
	return fn(ctx)
}

// Names returns every limiter and group name in configuration order.
func (m *Manager) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.order)
}

// Snapshot reports the state of every limiter and group.
func (m *Manager) Snapshot() Snapshot {
	m.mu.RLock()
	entries := make([]*entry, 0, len(m.order))
	for _, name := range m.order {
		entries = append(entries, m.entries[name])
	}
	m.mu.RUnlock()

	snap := Snapshot{
		Taken:    time.Now(),
		Limiters: make([]LimiterInfo, 0, len(entries)),
	}
	for _, e := range entries {
		snap.Limiters = append(snap.Limiters, e.info())
	}
	return snap
}

func (e *entry) info() LimiterInfo {
	info := LimiterInfo{
		Name:        e.name,
		Kind:        e.kind,
		Description: e.description,
		Members:     slices.Clone(e.members),
		Issued:      e.limiter.PermitsIssued(),
	}
	if r, ok := e.limiter.(ratelimit.Reporter); ok {
		info.Remaining = r.Remaining()
	}

	switch l := e.limiter.(type) {
	case *ratelimit.FixedWindowRateLimiter:
		info.InFlight = l.InFlight()
		info.BackgroundRunning = l.Running()
	case *ratelimit.TokenBucketRateLimiter:
		info.BackgroundRunning = l.Running()
	}
	return info
}

// ResetPermitsIssued zeroes the issued counter of every limiter and group.
// Windows and buckets are not touched.
func (m *Manager) ResetPermitsIssued() {
	m.mu.RLock()
	entries := make([]*entry, 0, len(m.entries))
	for _, e := range m.entries {
		entries = append(entries, e)
	}
	m.mu.RUnlock()

	for _, e := range entries {
		e.limiter.ResetPermitsIssued()
		if m.metrics != nil {
			m.metrics.RecordCounterReset(e.name)
		}
	}

	m.logger.Info("issued counters reset", "limiters", len(entries))
}

// Reload replaces the limiter definitions with cfg.
//
// Unchanged limiters keep their state. Permits already issued by a replaced
// limiter keep releasing into that limiter, so callers holding them are
// unaffected. On error the current definitions stay in place.
func (m *Manager) Reload(cfg config.LimitsConfig) error {
	m.reloadMu.Lock()
	defer m.reloadMu.Unlock()

	m.mu.RLock()
	prev := m.entries
	m.mu.RUnlock()

	entries, order, kept, err := m.build(cfg, prev)
	if err != nil {
		m.logger.Error("limiter reload failed, keeping current definitions", "error", err)
		return err
	}

	removed := 0
	for name := range prev {
		if _, ok := entries[name]; !ok {
			removed++
		}
	}

	m.mu.Lock()
	m.entries, m.order = entries, order
	m.mu.Unlock()

	m.logger.Info("limiters reloaded",
		"total", len(order),
		"kept", kept,
		"rebuilt", len(order)-kept,
		"removed", removed,
	)
	return nil
}

// Close unregisters the remaining-capacity collector. Limiters need no
// shutdown: their background loops exit on their own once idle.
func (m *Manager) Close() {
	if m.metrics != nil && m.remaining != nil {
		m.metrics.unwatchRemaining(m.remaining)
		m.remaining = nil
	}
}

package ratelimit

import (
	"log/slog"
	"sync"
	"time"
)

// FixedWindowRateLimiter admits at most windowPermits acquisitions to start in
// any window of length window.
//
// A window opens when the first permit of a fresh window is released, so the
// clock only starts once the resource has actually been used.
//
// # Algorithm
//
//  1. Acquire takes the permit gate and decrements the permit counter. If
//     permits remain the gate is released for the next caller, otherwise it
//     stays held and later callers block.
//  2. The caller is counted as in flight until its permit is released.
//  3. Release arms a one-shot reset timer unless one is already pending.
//  4. When the timer fires, permits become windowPermits minus the work still
//     in flight and the gate is released if it was held.
//
// Work still in flight at reset time counts against the new window. With more
// work in flight than windowPermits the counter goes to zero or below and the
// next caller waits for the following reset.
//
// # Thread Safety
//
// Locks are taken in the order permit gate, permitsMu, inflightMu, issued.
// resetterMu is never held while waiting on the gate.
type FixedWindowRateLimiter struct {
	window        time.Duration
	windowPermits int

	permitter gate

	permitsMu sync.Mutex
	permits   int
	exhausted bool // gate held because permits ran out

	inflightMu sync.Mutex
	inflight   int

	resetterMu sync.Mutex
	resetter   *time.Timer

	issued counter

	name     string
	observer Observer
	logger   *slog.Logger
}

// NewFixedWindowRateLimiter creates a fixed window limiter.
//
// Parameters:
//   - window: Length of a window, must be positive
//   - windowPermits: Acquisitions allowed to start per window, at least 1
//
// Example:
//
//	// At most 20 calls per second
//	limiter, err := NewFixedWindowRateLimiter(time.Second, 20, WithName("app"))
func NewFixedWindowRateLimiter(window time.Duration, windowPermits int, opts ...Option) (*FixedWindowRateLimiter, error) {
	if window <= 0 {
		return nil, &ConfigError{Limiter: "fixed window", Field: "window", Message: "must be positive"}
	}
	if windowPermits < 1 {
		return nil, &ConfigError{Limiter: "fixed window", Field: "windowPermits", Message: "must be at least 1"}
	}

	o := buildOptions("fixed_window", opts)
	return &FixedWindowRateLimiter{
		window:        window,
		windowPermits: windowPermits,
		permitter:     newGate(),
		permits:       windowPermits,
		name:          o.name,
		observer:      o.observer,
		logger:        o.logger,
	}, nil
}

// Acquire blocks until the current window has a permit left.
func (l *FixedWindowRateLimiter) Acquire() *Permit {
	start := time.Now()
	l.permitter.take()

	l.permitsMu.Lock()
	l.permits--
	if l.permits > 0 {
		l.permitter.release()
	} else {
		l.exhausted = true
	}
	l.inflightMu.Lock()
	l.inflight++
	l.inflightMu.Unlock()
	l.permitsMu.Unlock()

	l.issued.inc()
	l.observer.PermitIssued(l.name, time.Since(start))
	return newPermit(l.release)
}

func (l *FixedWindowRateLimiter) release() {
	l.inflightMu.Lock()
	l.inflight--
	l.inflightMu.Unlock()
	l.observer.PermitReleased(l.name)

	// reset clears resetter under resetterMu, so Started is always
	// observed before the matching Stopped.
	l.resetterMu.Lock()
	if l.resetter == nil {
		l.observer.BackgroundStarted(l.name, KindResetter)
		l.resetter = time.AfterFunc(l.window, l.reset)
		l.logger.Debug("window resetter armed", "window", l.window)
	}
	l.resetterMu.Unlock()
}

func (l *FixedWindowRateLimiter) reset() {
	l.resetterMu.Lock()
	l.resetter = nil
	l.resetterMu.Unlock()

	l.permitsMu.Lock()
	l.inflightMu.Lock()
	l.permits = l.windowPermits - l.inflight
	l.inflightMu.Unlock()
	if l.exhausted {
		l.exhausted = false
		l.permitter.release()
	}
	permits := l.permits
	l.permitsMu.Unlock()

	l.logger.Debug("window reset", "permits", permits)
	l.observer.BackgroundStopped(l.name, KindResetter)
}

// PermitsIssued returns the number of acquisitions since construction or the
// last reset of the counter.
func (l *FixedWindowRateLimiter) PermitsIssued() int64 {
	return l.issued.get()
}

// ResetPermitsIssued zeroes the issued counter. It does not touch the window.
func (l *FixedWindowRateLimiter) ResetPermitsIssued() {
	l.issued.reset()
}

// Name returns the limiter name.
func (l *FixedWindowRateLimiter) Name() string {
	return l.name
}

// Remaining returns the permits left in the current window, in [0, windowPermits].
func (l *FixedWindowRateLimiter) Remaining() int {
	l.permitsMu.Lock()
	defer l.permitsMu.Unlock()
	return min(max(l.permits, 0), l.windowPermits)
}

// InFlight returns the number of permits acquired and not yet released.
func (l *FixedWindowRateLimiter) InFlight() int {
	l.inflightMu.Lock()
	defer l.inflightMu.Unlock()
	return l.inflight
}

// Running reports whether a reset is pending.
func (l *FixedWindowRateLimiter) Running() bool {
	l.resetterMu.Lock()
	defer l.resetterMu.Unlock()
	return l.resetter != nil
}

// Window returns the configured window length.
func (l *FixedWindowRateLimiter) Window() time.Duration {
	return l.window
}

// WindowPermits returns the configured permits per window.
func (l *FixedWindowRateLimiter) WindowPermits() int {
	return l.windowPermits
}

package ratelimit

import "sync"

// RateLimiter is the contract shared by every limiter in this package.
//
// Acquire blocks until the limiter admits the caller; there is no timeout and
// it never fails. The returned Permit must be released exactly when the
// protected work is finished. Prefer Do or Limit, which release on every exit
// path including panics.
type RateLimiter interface {
	// Acquire blocks until capacity is available and returns the permit
	// guarding the protected work.
	Acquire() *Permit

	// PermitsIssued returns the number of acquisitions admitted since
	// construction or the last ResetPermitsIssued.
	PermitsIssued() int64

	// ResetPermitsIssued sets the issued counter back to zero.
	ResetPermitsIssued()
}

// Reporter is implemented by limiters that can describe their current state.
type Reporter interface {
	// Name returns the limiter name set with WithName.
	Name() string

	// Remaining returns the capacity left before Acquire starts blocking,
	// clamped to [0, ceiling].
	Remaining() int
}

// Permit is the guard returned by Acquire.
//
// Release is idempotent, so it is safe to both defer it and call it early.
type Permit struct {
	once    sync.Once
	release func()
}

func newPermit(release func()) *Permit {
	return &Permit{release: release}
}

// Release returns the permit to its limiter. Calls after the first are no-ops.
func (p *Permit) Release() {
	if p == nil {
		return
	}
	p.once.Do(func() {
		if p.release != nil {
			p.release()
		}
	})
}

// Do acquires a permit from l, runs fn and releases the permit.
//
// The permit is released before fn's error is returned and before a panic in
// fn continues unwinding.
func Do(l RateLimiter, fn func() error) error {
	permit := l.Acquire()
	defer permit.Release()
	return fn()
}

// Limit wraps fn so that every call goes through l. Arguments, results and
// errors pass through unchanged.
//
// Example:
//
//	fetch := ratelimit.Limit(limiter, client.GetUser)
//	user, err := fetch("alice") // blocks until limiter admits the call
func Limit[A, R any](l RateLimiter, fn func(A) (R, error)) func(A) (R, error) {
	return func(arg A) (R, error) {
		permit := l.Acquire()
		defer permit.Release()
		return fn(arg)
	}
}

// LimitFunc wraps a function without arguments or results.
func LimitFunc(l RateLimiter, fn func()) func() {
	return func() {
		permit := l.Acquire()
		defer permit.Release()
		fn()
	}
}

// gate is a binary semaphore. Taking it blocks while it is held; releasing a
// gate that is not held is a no-op.
type gate chan struct{}

func newGate() gate {
	return make(gate, 1)
}

func (g gate) take() {
	g <- struct{}{}
}

func (g gate) release() {
	select {
	case <-g:
	default:
	}
}

// counter is a mutex-guarded issued counter.
type counter struct {
	mu sync.Mutex
	n  int64
}

func (c *counter) inc() {
	c.mu.Lock()
	c.n++
	c.mu.Unlock()
}

func (c *counter) get() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}

func (c *counter) reset() {
	c.mu.Lock()
	c.n = 0
	c.mu.Unlock()
}

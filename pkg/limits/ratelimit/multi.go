package ratelimit

import "time"

// MultiRateLimiter combines several limiters into one gate.
//
// Acquire admits the caller through each child in the order given, blocking on
// each in turn. The returned permit releases the children in reverse order.
// A MultiRateLimiter is itself a RateLimiter, so composites nest.
//
// The composite keeps its own issued counter, incremented once per fully
// admitted acquisition. Children count their own acquisitions as usual.
type MultiRateLimiter struct {
	limiters []RateLimiter

	issued counter

	name     string
	observer Observer
}

// NewMultiRateLimiter combines limiters. Nil entries are skipped.
func NewMultiRateLimiter(limiters ...RateLimiter) *MultiRateLimiter {
	return NewMultiRateLimiterWithOptions(limiters)
}

// NewMultiRateLimiterWithOptions is NewMultiRateLimiter with options.
func NewMultiRateLimiterWithOptions(limiters []RateLimiter, opts ...Option) *MultiRateLimiter {
	children := make([]RateLimiter, 0, len(limiters))
	for _, l := range limiters {
		if l != nil {
			children = append(children, l)
		}
	}

	o := buildOptions("multi", opts)
	return &MultiRateLimiter{
		limiters: children,
		name:     o.name,
		observer: o.observer,
	}
}

// Acquire acquires every child in order.
func (m *MultiRateLimiter) Acquire() *Permit {
	start := time.Now()
	permits := make([]*Permit, 0, len(m.limiters))
	for _, l := range m.limiters {
		permits = append(permits, l.Acquire())
	}

	m.issued.inc()
	m.observer.PermitIssued(m.name, time.Since(start))

	return newPermit(func() {
		for i := len(permits) - 1; i >= 0; i-- {
			permits[i].Release()
		}
		m.observer.PermitReleased(m.name)
	})
}

// PermitsIssued returns the number of composite acquisitions.
func (m *MultiRateLimiter) PermitsIssued() int64 {
	return m.issued.get()
}

// ResetPermitsIssued zeroes the composite counter. Children keep theirs.
func (m *MultiRateLimiter) ResetPermitsIssued() {
	m.issued.reset()
}

// Name returns the limiter name.
func (m *MultiRateLimiter) Name() string {
	return m.name
}

// Remaining returns the smallest Remaining of the children that implement
// Reporter, or 0 when none do.
func (m *MultiRateLimiter) Remaining() int {
	remaining, found := 0, false
	for _, l := range m.limiters {
		r, ok := l.(Reporter)
		if !ok {
			continue
		}
		if n := r.Remaining(); !found || n < remaining {
			remaining, found = n, true
		}
	}
	return remaining
}

// Limiters returns the children in acquisition order.
func (m *MultiRateLimiter) Limiters() []RateLimiter {
	out := make([]RateLimiter, len(m.limiters))
	copy(out, m.limiters)
	return out
}

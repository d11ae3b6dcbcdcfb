package ratelimit

import (
	"log/slog"
	"math"
	"sync"
	"time"
)

// TokenBucketRateLimiter implements the token bucket algorithm with blocking
// acquisition.
//
// The bucket holds up to maxBurst tokens and starts full. Each acquisition
// consumes one token. A refill ticker adds epochPermits*updateFrequency/epoch
// tokens per tick, capped at maxBurst, so over a long run at most
// epochPermits acquisitions start per epoch.
//
// # Algorithm
//
//  1. Acquire takes the permit gate and consumes a token. If a whole token
//     is left the gate is released, otherwise it stays held.
//  2. Release starts the refill loop unless it is already running.
//  3. Each tick adds tokens. When the bucket goes from less than one token to
//     at least one, the held gate is released.
//  4. Once the bucket has been full for a whole epoch of consecutive ticks,
//     the loop stops. The next release starts it again.
//
// # Thread Safety
//
// Locks are taken in the order permit gate, tokensMu, issued. The refill loop
// checks whether it may stop under refillerMu and then tokensMu; no path
// takes them in the opposite order.
type TokenBucketRateLimiter struct {
	epoch           time.Duration
	epochPermits    int
	maxBurst        int
	updateFrequency time.Duration

	perTick   float64 // tokens added per tick
	idleTicks int     // full ticks in a row before the loop stops

	permitter gate

	tokensMu  sync.Mutex
	tokens    float64
	exhausted bool // gate held because less than one token is left

	refillerMu sync.Mutex
	refilling  bool

	issued counter

	name     string
	observer Observer
	logger   *slog.Logger
}

// NewTokenBucketRateLimiter creates a token bucket limiter.
//
// Parameters:
//   - epoch: Period over which epochPermits applies
//   - epochPermits: Long-run acquisitions allowed per epoch
//   - maxBurst: Bucket size, between 1 and epochPermits
//   - updateFrequency: Refill tick, positive and no longer than epoch
//
// Example:
//
//	// 100 calls per 10s, bursts of up to 10, refilled every 100ms
//	limiter, err := NewTokenBucketRateLimiter(10*time.Second, 100, 10, 100*time.Millisecond)
func NewTokenBucketRateLimiter(epoch time.Duration, epochPermits, maxBurst int, updateFrequency time.Duration, opts ...Option) (*TokenBucketRateLimiter, error) {
	const kind = "token bucket"
	switch {
	case epoch <= 0:
		return nil, &ConfigError{Limiter: kind, Field: "epoch", Message: "must be positive"}
	case epochPermits < 1:
		return nil, &ConfigError{Limiter: kind, Field: "epochPermits", Message: "must be at least 1"}
	case maxBurst < 1:
		return nil, &ConfigError{Limiter: kind, Field: "maxBurst", Message: "must be at least 1"}
	case maxBurst > epochPermits:
		return nil, &ConfigError{Limiter: kind, Field: "maxBurst", Message: "must not exceed epochPermits"}
	case updateFrequency <= 0:
		return nil, &ConfigError{Limiter: kind, Field: "updateFrequency", Message: "must be positive"}
	case updateFrequency > epoch:
		return nil, &ConfigError{Limiter: kind, Field: "updateFrequency", Message: "must not exceed epoch"}
	}

	// Rounded to micro-tokens so that frequencies truncated to whole
	// nanoseconds (time.Second/6) still add exact amounts.
	perTick := float64(epochPermits) * float64(updateFrequency) / float64(epoch)
	perTick = math.Round(perTick*1e6) / 1e6

	ratio := float64(epoch) / float64(updateFrequency)
	idleTicks := int(math.Ceil(ratio - 1e-6))

	o := buildOptions("token_bucket", opts)
	return &TokenBucketRateLimiter{
		epoch:           epoch,
		epochPermits:    epochPermits,
		maxBurst:        maxBurst,
		updateFrequency: updateFrequency,
		perTick:         perTick,
		idleTicks:       max(idleTicks, 1),
		permitter:       newGate(),
		tokens:          float64(maxBurst),
		name:            o.name,
		observer:        o.observer,
		logger:          o.logger,
	}, nil
}

// Acquire blocks until a token is available and consumes it.
func (l *TokenBucketRateLimiter) Acquire() *Permit {
	start := time.Now()
	l.permitter.take()

	l.tokensMu.Lock()
	l.tokens--
	if l.tokens >= 1 {
		l.permitter.release()
	} else {
		l.exhausted = true
	}
	l.tokensMu.Unlock()

	l.issued.inc()
	l.observer.PermitIssued(l.name, time.Since(start))
	return newPermit(l.release)
}

func (l *TokenBucketRateLimiter) release() {
	l.observer.PermitReleased(l.name)

	l.refillerMu.Lock()
	if l.refilling {
		l.refillerMu.Unlock()
		return
	}
	l.refilling = true
	l.refillerMu.Unlock()

	l.logger.Debug("refill loop started", "update_frequency", l.updateFrequency)
	l.observer.BackgroundStarted(l.name, KindRefiller)
	go l.refill()
}

func (l *TokenBucketRateLimiter) refill() {
	ticker := time.NewTicker(l.updateFrequency)
	defer ticker.Stop()

	idle := 0
	for range ticker.C {
		if l.addTokens() {
			idle++
		} else {
			idle = 0
		}
		if idle >= l.idleTicks && l.stopIfFull() {
			l.logger.Debug("refill loop stopped", "idle_ticks", idle)
			l.observer.BackgroundStopped(l.name, KindRefiller)
			return
		}
	}
}

// addTokens performs one refill tick and reports whether the bucket was
// already full before it.
func (l *TokenBucketRateLimiter) addTokens() bool {
	l.tokensMu.Lock()
	defer l.tokensMu.Unlock()

	ceiling := float64(l.maxBurst)
	wasFull := l.tokens >= ceiling
	l.tokens = math.Min(l.tokens+l.perTick, ceiling)
	if l.exhausted && l.tokens >= 1 {
		l.exhausted = false
		l.permitter.release()
	}
	return wasFull
}

func (l *TokenBucketRateLimiter) stopIfFull() bool {
	l.refillerMu.Lock()
	defer l.refillerMu.Unlock()

	l.tokensMu.Lock()
	full := l.tokens >= float64(l.maxBurst)
	l.tokensMu.Unlock()

	if full {
		l.refilling = false
	}
	return full
}

// PermitsIssued returns the number of acquisitions since construction or the
// last reset of the counter.
func (l *TokenBucketRateLimiter) PermitsIssued() int64 {
	return l.issued.get()
}

// ResetPermitsIssued zeroes the issued counter. It does not touch the bucket.
func (l *TokenBucketRateLimiter) ResetPermitsIssued() {
	l.issued.reset()
}

// Name returns the limiter name.
func (l *TokenBucketRateLimiter) Name() string {
	return l.name
}

// Remaining returns the whole tokens currently in the bucket, in [0, maxBurst].
func (l *TokenBucketRateLimiter) Remaining() int {
	l.tokensMu.Lock()
	defer l.tokensMu.Unlock()
	return min(max(int(math.Floor(l.tokens)), 0), l.maxBurst)
}

// Running reports whether the refill loop is active.
func (l *TokenBucketRateLimiter) Running() bool {
	l.refillerMu.Lock()
	defer l.refillerMu.Unlock()
	return l.refilling
}

// Epoch returns the configured epoch.
func (l *TokenBucketRateLimiter) Epoch() time.Duration { return l.epoch }

// EpochPermits returns the configured permits per epoch.
func (l *TokenBucketRateLimiter) EpochPermits() int { return l.epochPermits }

// MaxBurst returns the bucket size.
func (l *TokenBucketRateLimiter) MaxBurst() int { return l.maxBurst }

// UpdateFrequency returns the refill tick.
func (l *TokenBucketRateLimiter) UpdateFrequency() time.Duration { return l.updateFrequency }

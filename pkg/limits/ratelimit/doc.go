// Package ratelimit provides blocking, in-process rate limiters for client code
// that must respect the throughput limits of an external resource.
//
// # Overview
//
// Every limiter implements the RateLimiter contract. Acquire blocks the calling
// goroutine until the limiter admits it and returns a Permit. The permit must be
// released when the protected work is done; releasing performs the bookkeeping
// that eventually frees capacity again.
//
//   - Fixed Window: at most N acquisitions may start in any window of length W
//   - Token Bucket: bursts up to a ceiling, then a steady refill rate
//   - Multi: several limiters acting as one gate
//
// # Fixed Window
//
// The window opens when the first permit of a fresh window is released, not
// when it is acquired:
//
//	limiter, err := ratelimit.NewFixedWindowRateLimiter(time.Second, 5)
//	if err != nil {
//	    return err
//	}
//	permit := limiter.Acquire()
//	defer permit.Release()
//
// # Token Bucket
//
// The bucket starts full. Tokens are added on a fixed tick and capped at the
// burst ceiling:
//
//	limiter, err := ratelimit.NewTokenBucketRateLimiter(10*time.Second, 100, 10, 100*time.Millisecond)
//
// # Multi
//
// A MultiRateLimiter acquires its children in order and releases them in
// reverse order. It is the usual way to respect an application-wide limit and
// a per-method limit at the same time:
//
//	combined := ratelimit.NewMultiRateLimiter(appLimiter, methodLimiter)
//	err := ratelimit.Do(combined, func() error {
//	    return callAPI()
//	})
//
// # Background Work
//
// Limiters own no long-lived goroutines. The fixed window arms a one-shot
// timer on release and the token bucket runs a refill ticker only until the
// bucket has stayed full for a whole epoch. There is nothing to Close.
//
// # Thread Safety
//
// All limiters are safe for concurrent use. Each instance uses a permit gate
// (a one-slot channel) plus fine-grained mutexes acquired in a fixed order:
// permit gate, capacity, in-flight, issued counter.
package ratelimit

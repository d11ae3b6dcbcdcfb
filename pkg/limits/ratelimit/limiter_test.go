package ratelimit

import (
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"
)

// waitFor polls cond until it returns true or the timeout elapses.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %v", timeout)
}

// recordingObserver captures observer events for assertions.
type recordingObserver struct {
	mu       sync.Mutex
	issued   []string
	released []string
	started  []BackgroundKind
	stopped  []BackgroundKind
}

func (r *recordingObserver) PermitIssued(limiter string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.issued = append(r.issued, limiter)
}

func (r *recordingObserver) PermitReleased(limiter string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.released = append(r.released, limiter)
}

func (r *recordingObserver) BackgroundStarted(_ string, kind BackgroundKind) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started = append(r.started, kind)
}

func (r *recordingObserver) BackgroundStopped(_ string, kind BackgroundKind) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopped = append(r.stopped, kind)
}

func (r *recordingObserver) counts() (issued, released, started, stopped int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.issued), len(r.released), len(r.started), len(r.stopped)
}

func newTestFixedWindow(t *testing.T, window time.Duration, permits int, opts ...Option) *FixedWindowRateLimiter {
	t.Helper()
	l, err := NewFixedWindowRateLimiter(window, permits, opts...)
	if err != nil {
		t.Fatalf("NewFixedWindowRateLimiter() error = %v", err)
	}
	return l
}

// ============================================================================
// Contract Tests
// ============================================================================

func TestRateLimiter_Implementations(t *testing.T) {
	var _ RateLimiter = (*FixedWindowRateLimiter)(nil)
	var _ RateLimiter = (*TokenBucketRateLimiter)(nil)
	var _ RateLimiter = (*MultiRateLimiter)(nil)
	var _ Reporter = (*FixedWindowRateLimiter)(nil)
	var _ Reporter = (*TokenBucketRateLimiter)(nil)
	var _ Reporter = (*MultiRateLimiter)(nil)
}

func TestPermit_ReleaseIsIdempotent(t *testing.T) {
	calls := 0
	p := newPermit(func() { calls++ })

	p.Release()
	p.Release()
	p.Release()

	if calls != 1 {
		t.Errorf("Expected release to run once, ran %d times", calls)
	}
}

func TestPermit_NilRelease(t *testing.T) {
	var p *Permit
	p.Release() // must not panic

	newPermit(nil).Release()
}

func TestResetPermitsIssued_OnZero(t *testing.T) {
	l := newTestFixedWindow(t, time.Second, 5)

	l.ResetPermitsIssued()

	if got := l.PermitsIssued(); got != 0 {
		t.Errorf("Expected 0 after resetting a fresh counter, got %d", got)
	}
}

func TestPermitsIssued_ConcurrentResets(t *testing.T) {
	l := newTestFixedWindow(t, time.Hour, 1000)

	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			l.Acquire() // never released, so no resetter is armed
		}()
		go func() {
			defer wg.Done()
			l.ResetPermitsIssued()
		}()
	}
	wg.Wait()

	got := l.PermitsIssued()
	if got < 0 || got > 200 {
		t.Errorf("Expected issued counter in [0, 200], got %d", got)
	}

	l.ResetPermitsIssued()
	if got := l.PermitsIssued(); got != 0 {
		t.Errorf("Expected 0 after reset, got %d", got)
	}
}

// ============================================================================
// Wrapper Tests
// ============================================================================

func TestDo_ReturnsError(t *testing.T) {
	l := newTestFixedWindow(t, time.Second, 5)
	want := errors.New("upstream unavailable")

	err := Do(l, func() error {
		if l.InFlight() != 1 {
			t.Errorf("Expected 1 in flight during work, got %d", l.InFlight())
		}
		return want
	})

	if !errors.Is(err, want) {
		t.Errorf("Expected %v, got %v", want, err)
	}
	if l.InFlight() != 0 {
		t.Errorf("Expected permit released before return, %d in flight", l.InFlight())
	}
	if l.PermitsIssued() != 1 {
		t.Errorf("Expected 1 issued, got %d", l.PermitsIssued())
	}
}

func TestDo_ReleasesOnPanic(t *testing.T) {
	l := newTestFixedWindow(t, time.Second, 5)

	func() {
		defer func() {
			if r := recover(); r != "boom" {
				t.Errorf("Expected panic %q to propagate, got %v", "boom", r)
			}
		}()
		_ = Do(l, func() error {
			panic("boom")
		})
	}()

	if l.InFlight() != 0 {
		t.Errorf("Expected permit released after panic, %d in flight", l.InFlight())
	}
	if !l.Running() {
		t.Error("Expected release bookkeeping to arm the resetter")
	}
}

func TestLimit_ForwardsArgumentsAndResults(t *testing.T) {
	l := newTestFixedWindow(t, time.Second, 5)
	errOdd := errors.New("odd")

	double := Limit(l, func(n int) (string, error) {
		if n%2 != 0 {
			return "", errOdd
		}
		return strconv.Itoa(n * 2), nil
	})

	got, err := double(4)
	if err != nil || got != "8" {
		t.Errorf("double(4) = %q, %v; want \"8\", nil", got, err)
	}

	_, err = double(3)
	if !errors.Is(err, errOdd) {
		t.Errorf("double(3) error = %v; want %v", err, errOdd)
	}

	if l.PermitsIssued() != 2 {
		t.Errorf("Expected 2 issued, got %d", l.PermitsIssued())
	}
}

func TestLimitFunc(t *testing.T) {
	l := newTestFixedWindow(t, time.Second, 5)
	ran := 0

	fn := LimitFunc(l, func() { ran++ })
	fn()
	fn()

	if ran != 2 || l.PermitsIssued() != 2 {
		t.Errorf("Expected 2 runs and 2 permits, got %d runs and %d permits", ran, l.PermitsIssued())
	}
}

// ============================================================================
// Gate and Options Tests
// ============================================================================

func TestGate_ReleaseWhenNotHeld(t *testing.T) {
	g := newGate()

	g.release()
	g.release()

	done := make(chan struct{})
	go func() {
		g.take()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Expected take on a free gate not to block")
	}
}

func TestGate_TakeBlocksWhileHeld(t *testing.T) {
	g := newGate()
	g.take()

	done := make(chan struct{})
	go func() {
		g.take()
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("Expected take to block while the gate is held")
	case <-time.After(50 * time.Millisecond):
	}

	g.release()
	<-done
}

func TestOptions(t *testing.T) {
	first := &recordingObserver{}
	second := &recordingObserver{}

	l := newTestFixedWindow(t, time.Second, 5,
		WithName("api"),
		WithObserver(first),
		WithObserver(second),
		WithObserver(nil),
	)

	if l.Name() != "api" {
		t.Errorf("Expected name %q, got %q", "api", l.Name())
	}

	l.Acquire().Release()

	for i, o := range []*recordingObserver{first, second} {
		issued, released, started, _ := o.counts()
		if issued != 1 || released != 1 || started != 1 {
			t.Errorf("observer %d: issued=%d released=%d started=%d; want 1 each", i, issued, released, started)
		}
	}
}

func TestOptions_DefaultName(t *testing.T) {
	l := newTestFixedWindow(t, time.Second, 1)
	if l.Name() != "fixed_window" {
		t.Errorf("Expected default name fixed_window, got %q", l.Name())
	}
}

func TestConfigError(t *testing.T) {
	_, err := NewFixedWindowRateLimiter(0, 1)

	if !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("Expected ErrInvalidConfig, got %v", err)
	}

	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("Expected *ConfigError, got %T", err)
	}
	if cfgErr.Field != "window" {
		t.Errorf("Expected field window, got %q", cfgErr.Field)
	}
	if cfgErr.Error() != "fixed window: window must be positive" {
		t.Errorf("Unexpected message %q", cfgErr.Error())
	}
}

// ============================================================================
// Benchmarks
// ============================================================================

func BenchmarkFixedWindow_AcquireRelease(b *testing.B) {
	l, _ := NewFixedWindowRateLimiter(time.Hour, b.N+1)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		l.Acquire().Release()
	}
}

func BenchmarkTokenBucket_Acquire(b *testing.B) {
	l, _ := NewTokenBucketRateLimiter(time.Hour, b.N+1, b.N+1, time.Hour)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		l.Acquire()
	}
}

func BenchmarkDo(b *testing.B) {
	l, _ := NewFixedWindowRateLimiter(time.Hour, b.N+1)
	fn := func() error { return nil }

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = Do(l, fn)
	}
}

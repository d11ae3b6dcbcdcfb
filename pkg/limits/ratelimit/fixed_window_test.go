package ratelimit

import (
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"
)

// timerSlack absorbs scheduling jitter when comparing start times.
const timerSlack = 15 * time.Millisecond

// ============================================================================
// Construction Tests
// ============================================================================

func TestNewFixedWindowRateLimiter_Validation(t *testing.T) {
	tests := []struct {
		name    string
		window  time.Duration
		permits int
		field   string
	}{
		{name: "valid", window: time.Second, permits: 5},
		{name: "single permit", window: time.Millisecond, permits: 1},
		{name: "zero window", window: 0, permits: 5, field: "window"},
		{name: "negative window", window: -time.Second, permits: 5, field: "window"},
		{name: "zero permits", window: time.Second, permits: 0, field: "windowPermits"},
		{name: "negative permits", window: time.Second, permits: -3, field: "windowPermits"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := NewFixedWindowRateLimiter(tt.window, tt.permits)

			if tt.field == "" {
				if err != nil {
					t.Fatalf("Expected no error, got %v", err)
				}
				if l.Remaining() != tt.permits {
					t.Errorf("Expected %d remaining, got %d", tt.permits, l.Remaining())
				}
				return
			}

			if l != nil {
				t.Error("Expected nil limiter on invalid configuration")
			}
			var cfgErr *ConfigError
			if !errors.As(err, &cfgErr) || cfgErr.Field != tt.field {
				t.Errorf("Expected ConfigError for %s, got %v", tt.field, err)
			}
		})
	}
}

// ============================================================================
// Admission Tests
// ============================================================================

func TestFixedWindow_AcquireSimple(t *testing.T) {
	l := newTestFixedWindow(t, time.Second, 5)

	permit := l.Acquire()
	if l.Remaining() != 4 {
		t.Errorf("Expected 4 remaining, got %d", l.Remaining())
	}
	if l.InFlight() != 1 {
		t.Errorf("Expected 1 in flight, got %d", l.InFlight())
	}
	if l.Running() {
		t.Error("Expected no resetter before the first release")
	}

	permit.Release()
	if l.InFlight() != 0 {
		t.Errorf("Expected 0 in flight, got %d", l.InFlight())
	}
	if !l.Running() {
		t.Error("Expected resetter armed by release")
	}
}

func TestFixedWindow_GroupsAreWindowApart(t *testing.T) {
	if testing.Short() {
		t.Skip("timing test")
	}

	const (
		window  = 250 * time.Millisecond
		permits = 5
		calls   = 25
	)
	l := newTestFixedWindow(t, window, permits)

	starts := make([]time.Time, 0, calls)
	record := LimitFunc(l, func() { starts = append(starts, time.Now()) })
	for i := 0; i < calls; i++ {
		record()
	}

	for group := 0; group < calls/permits; group++ {
		first := starts[group*permits]
		for i := 1; i < permits; i++ {
			if gap := starts[group*permits+i].Sub(first); gap > window/2 {
				t.Errorf("group %d: call %d started %v after the group's first", group, i, gap)
			}
		}
		if group == 0 {
			continue
		}
		prev := starts[(group-1)*permits]
		if gap := first.Sub(prev); gap < window-timerSlack {
			t.Errorf("group %d started %v after group %d, want at least %v", group, gap, group-1, window)
		}
	}

	if l.PermitsIssued() != calls {
		t.Errorf("Expected %d issued, got %d", calls, l.PermitsIssued())
	}
}

func TestFixedWindow_WindowOpensOnRelease(t *testing.T) {
	if testing.Short() {
		t.Skip("timing test")
	}

	const (
		window = 200 * time.Millisecond
		work   = 250 * time.Millisecond
	)
	l := newTestFixedWindow(t, window, 1)

	firstStart := time.Now()
	first := l.Acquire()

	secondStarted := make(chan time.Time, 1)
	go func() {
		p := l.Acquire()
		secondStarted <- time.Now()
		p.Release()
	}()

	time.Sleep(work)
	first.Release()

	second := <-secondStarted
	if gap := second.Sub(firstStart); gap < 2*window-timerSlack {
		t.Errorf("Expected second start at least %v after the first, got %v", 2*window, gap)
	}
}

func TestFixedWindow_PermitCount(t *testing.T) {
	l := newTestFixedWindow(t, 50*time.Millisecond, 5)

	for i := 0; i < 3; i++ {
		l.Acquire().Release()
	}
	if l.PermitsIssued() != 3 {
		t.Errorf("Expected 3 issued, got %d", l.PermitsIssued())
	}

	l.ResetPermitsIssued()
	if l.PermitsIssued() != 0 {
		t.Errorf("Expected 0 after reset, got %d", l.PermitsIssued())
	}

	for i := 0; i < 7; i++ {
		l.Acquire().Release()
	}
	if l.PermitsIssued() != 7 {
		t.Errorf("Expected 7 issued, got %d", l.PermitsIssued())
	}
}

func TestFixedWindow_ConcurrentCallers(t *testing.T) {
	const (
		window  = 100 * time.Millisecond
		permits = 10
		callers = 40
	)
	l := newTestFixedWindow(t, window, permits)

	stop := make(chan struct{})
	violations := make(chan int, 1)
	go func() {
		for {
			select {
			case <-stop:
				close(violations)
				return
			default:
			}
			l.permitsMu.Lock()
			raw := l.permits
			l.permitsMu.Unlock()
			if raw > permits {
				select {
				case violations <- raw:
				default:
				}
			}
		}
	}()

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		starts []time.Time
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = Do(l, func() error {
				mu.Lock()
				starts = append(starts, time.Now())
				mu.Unlock()
				time.Sleep(5 * time.Millisecond)
				return nil
			})
		}()
	}
	wg.Wait()
	close(stop)

	for r := range violations {
		t.Errorf("Observed %d permits in the window, ceiling is %d", r, permits)
	}
	if l.PermitsIssued() != callers {
		t.Errorf("Expected %d issued, got %d", callers, l.PermitsIssued())
	}
	if l.InFlight() != 0 {
		t.Errorf("Expected nothing in flight, got %d", l.InFlight())
	}

	// The first window opens after the first release, so nothing beyond the
	// first batch starts within one window of the earliest start.
	earliest := starts[0]
	for _, s := range starts {
		if s.Before(earliest) {
			earliest = s
		}
	}
	inFirst := 0
	for _, s := range starts {
		if s.Sub(earliest) < window {
			inFirst++
		}
	}
	if inFirst > permits {
		t.Errorf("%d starts within the first window, want at most %d", inFirst, permits)
	}
}

func TestFixedWindow_ResetWithExcessInFlight(t *testing.T) {
	l := newTestFixedWindow(t, time.Hour, 2)

	p1 := l.Acquire()
	p2 := l.Acquire()
	if l.Remaining() != 0 {
		t.Fatalf("Expected 0 remaining, got %d", l.Remaining())
	}

	// Both permits still in flight: the new window starts with nothing left.
	l.reset()
	if l.Remaining() != 0 {
		t.Errorf("Expected 0 remaining after reset, got %d", l.Remaining())
	}

	// The held gate was released, so one more caller gets through and drives
	// the internal counter below zero.
	done := make(chan *Permit)
	go func() { done <- l.Acquire() }()

	var p3 *Permit
	select {
	case p3 = <-done:
	case <-time.After(time.Second):
		t.Fatal("Expected the gate to be released by reset")
	}

	if l.Remaining() != 0 {
		t.Errorf("Expected remaining clamped to 0, got %d", l.Remaining())
	}
	if l.InFlight() != 3 {
		t.Errorf("Expected 3 in flight, got %d", l.InFlight())
	}

	go func() { done <- l.Acquire() }()
	select {
	case <-done:
		t.Fatal("Expected the next caller to wait for the following reset")
	case <-time.After(50 * time.Millisecond):
	}

	l.reset()
	p4 := <-done

	for _, p := range []*Permit{p1, p2, p3, p4} {
		p.Release()
	}
}

// ============================================================================
// Background Task Tests
// ============================================================================

func TestFixedWindow_ResetterLifecycle(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	obs := &recordingObserver{}
	l := newTestFixedWindow(t, 30*time.Millisecond, 3, WithObserver(obs))

	l.Acquire().Release()
	l.Acquire().Release()

	if !l.Running() {
		t.Fatal("Expected resetter armed")
	}
	_, _, started, _ := obs.counts()
	if started != 1 {
		t.Errorf("Expected one resetter for both releases, got %d", started)
	}

	waitFor(t, time.Second, func() bool { return !l.Running() })
	waitFor(t, time.Second, func() bool {
		_, _, _, stopped := obs.counts()
		return stopped == 1
	})

	if l.Remaining() != 3 {
		t.Errorf("Expected a full window after reset, got %d", l.Remaining())
	}
}

// depthObserver tracks how many resetters the events say are running and
// records the lowest value it ever saw.
type depthObserver struct {
	recordingObserver
	depthMu  sync.Mutex
	depth    int
	minDepth int
}

func (d *depthObserver) BackgroundStarted(limiter string, kind BackgroundKind) {
	d.depthMu.Lock()
	d.depth++
	d.depthMu.Unlock()
	d.recordingObserver.BackgroundStarted(limiter, kind)
}

func (d *depthObserver) BackgroundStopped(limiter string, kind BackgroundKind) {
	d.depthMu.Lock()
	d.depth--
	d.minDepth = min(d.minDepth, d.depth)
	d.depthMu.Unlock()
	d.recordingObserver.BackgroundStopped(limiter, kind)
}

func (d *depthObserver) snapshot() (depth, minDepth int) {
	d.depthMu.Lock()
	defer d.depthMu.Unlock()
	return d.depth, d.minDepth
}

func TestFixedWindow_ResetterStartedBeforeStopped(t *testing.T) {
	obs := &depthObserver{}
	l := newTestFixedWindow(t, time.Microsecond, 1000, WithObserver(obs))

	for i := 0; i < 500; i++ {
		l.Acquire().Release()
	}

	waitFor(t, time.Second, func() bool {
		depth, _ := obs.snapshot()
		return depth == 0 && !l.Running()
	})

	if _, minDepth := obs.snapshot(); minDepth < 0 {
		t.Errorf("Observed a resetter stop before its start (depth %d)", minDepth)
	}
	_, _, started, stopped := obs.counts()
	if started == 0 || started != stopped {
		t.Errorf("Expected matching resetter events, got %d started and %d stopped", started, stopped)
	}
}

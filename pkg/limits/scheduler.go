package limits

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Resetter zeroes issued counters. *Manager implements it.
type Resetter interface {
	ResetPermitsIssued()
}

// ResetScheduler resets issued counters on a cron schedule.
//
// Common cron expressions:
//   - "0 0 * * *"    - Daily at midnight
//   - "0 * * * *"    - Hourly
//   - "@every 15m"   - Every 15 minutes
type ResetScheduler struct {
	resetter Resetter
	cron     *cron.Cron
	entry    cron.EntryID
	schedule string

	mu      sync.Mutex
	logger  *slog.Logger
	running bool
	runs    int
}

// NewResetScheduler creates a scheduler for resetter. With an empty schedule
// no reset job is registered until SetSchedule supplies one.
func NewResetScheduler(resetter Resetter, schedule string, logger *slog.Logger) *ResetScheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ResetScheduler{
		resetter: resetter,
		cron:     cron.New(),
		schedule: schedule,
		logger:   logger.With("component", "limits.scheduler"),
	}
}

// Start begins resetting counters on the schedule. It stops when ctx is
// cancelled. With an empty schedule the scheduler runs idle until
// SetSchedule adds a job.
func (s *ResetScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	if s.schedule != "" {
		if err := s.addLocked(s.schedule); err != nil {
			return err
		}
	}

	s.cron.Start()
	s.running = true

	if s.schedule == "" {
		s.logger.Info("reset scheduler started without a schedule")
	} else {
		s.logger.Info("reset scheduler started", "schedule", s.schedule)
	}

	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	return nil
}

// ValidateSchedule reports whether schedule is a cron expression the
// scheduler accepts. The empty schedule is valid.
func ValidateSchedule(schedule string) error {
	if schedule == "" {
		return nil
	}
	if _, err := cron.ParseStandard(schedule); err != nil {
		return fmt.Errorf("invalid cron schedule %q: %w", schedule, err)
	}
	return nil
}

// addLocked validates schedule and registers the reset job for it.
func (s *ResetScheduler) addLocked(schedule string) error {
	if err := ValidateSchedule(schedule); err != nil {
		return err
	}

	id, err := s.cron.AddFunc(schedule, s.runReset)
	if err != nil {
		return fmt.Errorf("failed to schedule counter reset: %w", err)
	}
	s.entry = id
	return nil
}

// SetSchedule replaces the schedule. On a running scheduler the new schedule
// takes effect immediately; an empty schedule removes the job but leaves the
// scheduler running so a later SetSchedule can add one back.
func (s *ResetScheduler) SetSchedule(schedule string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if schedule == s.schedule {
		return nil
	}
	if err := ValidateSchedule(schedule); err != nil {
		return err
	}

	if s.running {
		if s.entry != 0 {
			s.cron.Remove(s.entry)
			s.entry = 0
		}
		if schedule != "" {
			if err := s.addLocked(schedule); err != nil {
				return err
			}
		}
	}

	s.logger.Info("reset schedule changed", "from", s.schedule, "to", schedule)
	s.schedule = schedule
	return nil
}

func (s *ResetScheduler) runReset() {
	s.logger.Debug("running scheduled counter reset")
	s.resetter.ResetPermitsIssued()

	s.mu.Lock()
	s.runs++
	s.mu.Unlock()
}

// Stop stops the scheduler and waits for a running reset to complete.
func (s *ResetScheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	if s.entry != 0 {
		s.cron.Remove(s.entry)
		s.entry = 0
	}
	s.running = false
	ctx := s.cron.Stop()
	s.mu.Unlock()

	// runReset takes mu, so wait without holding it.
	<-ctx.Done()
	s.logger.Info("reset scheduler stopped")
}

// IsRunning reports whether the scheduler has been started and not stopped.
func (s *ResetScheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.running
}

// Schedule returns the current cron expression.
func (s *ResetScheduler) Schedule() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.schedule
}

// Runs returns the number of resets performed.
func (s *ResetScheduler) Runs() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.runs
}

// NextRun returns the next scheduled reset, or nil when none is scheduled.
func (s *ResetScheduler) NextRun() *time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running || s.entry == 0 {
		return nil
	}

	next := s.cron.Entry(s.entry).Next
	if next.IsZero() {
		return nil
	}
	return &next
}

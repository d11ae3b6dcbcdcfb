package history

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a run ID is not in the backend.
var ErrNotFound = errors.New("run not found")

// Backend stores runs.
type Backend interface {
	// Save stores run. A run with the same ID is replaced.
	Save(ctx context.Context, run *Run) error

	// Load returns the run with the given ID, including its calls.
	Load(ctx context.Context, id string) (*Run, error)

	// List returns run summaries, newest first. Calls are not populated.
	List(ctx context.Context, filter Filter) ([]*Run, error)

	// Cleanup removes runs started before olderThan and returns how many
	// were deleted.
	Cleanup(ctx context.Context, olderThan time.Time) (int, error)

	Close() error
}

// Run is one recorded workload.
type Run struct {
	ID          string
	Limiter     string
	Config      string
	Callers     int
	Calls       int
	Completed   int
	Interrupted bool
	StartedAt   time.Time
	Elapsed     time.Duration

	// Admissions is ordered by start offset.
	Admissions []Admission
}

// Admission records when one call was let through.
type Admission struct {
	Call      int           `json:"call"`
	Caller    string        `json:"caller"`
	RequestID string        `json:"request_id"`
	Offset    time.Duration `json:"offset"`
	Wait      time.Duration `json:"wait"`
}

// Filter narrows List.
type Filter struct {
	// Limiter keeps runs through this limiter or group. Empty keeps all.
	Limiter string

	// Limit caps the number of runs returned. Zero means DefaultListLimit.
	Limit int
}

// DefaultListLimit is the List cap when Filter.Limit is zero.
const DefaultListLimit = 50

func (f Filter) limit() int {
	if f.Limit <= 0 {
		return DefaultListLimit
	}
	return f.Limit
}

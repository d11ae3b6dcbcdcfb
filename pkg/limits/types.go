package limits

import (
	"errors"
	"time"
)

// ErrUnknownLimiter is returned when a name matches no limiter or group.
var ErrUnknownLimiter = errors.New("unknown limiter")

// Kind identifies what a named entry in the manager is.
type Kind string

const (
	// KindFixedWindow is a ratelimit.FixedWindowRateLimiter.
	KindFixedWindow Kind = "fixed_window"

	// KindTokenBucket is a ratelimit.TokenBucketRateLimiter.
	KindTokenBucket Kind = "token_bucket"

	// KindGroup is a ratelimit.MultiRateLimiter over other entries.
	KindGroup Kind = "group"
)

// LimiterInfo describes one named limiter or group at a point in time.
type LimiterInfo struct {
	// Name is the configured name.
	Name string `json:"name"`

	// Kind is the limiter algorithm, or "group".
	Kind Kind `json:"kind"`

	// Description summarises the configured parameters, e.g.
	// "20 permits per 1s".
	Description string `json:"description"`

	// Members lists a group's limiters in acquisition order.
	Members []string `json:"members,omitempty"`

	// Issued is the value of PermitsIssued.
	Issued int64 `json:"issued"`

	// Remaining is the capacity left before Acquire blocks.
	Remaining int `json:"remaining"`

	// InFlight is the number of unreleased fixed window permits.
	InFlight int `json:"in_flight"`

	// BackgroundRunning reports whether a resetter or refill loop is live.
	BackgroundRunning bool `json:"background_running"`
}

// Snapshot is the state of every entry in a Manager.
type Snapshot struct {
	// Taken is when the snapshot was collected.
	Taken time.Time `json:"taken"`

	// Limiters are in configuration order: limiters first, then groups.
	Limiters []LimiterInfo `json:"limiters"`
}

// Find returns the entry with the given name.
func (s Snapshot) Find(name string) (LimiterInfo, bool) {
	for _, info := range s.Limiters {
		if info.Name == name {
			return info, true
		}
	}
	return LimiterInfo{}, false
}

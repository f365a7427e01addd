// Package timer describes decision windows and arms their deadlines.
package timer

import (
	"sync"
	"time"
)

// Snapshot records when a decision window opened and how long it runs.
// It carries no behaviour; the owning room decides what expiry means.
type Snapshot struct {
	StartedAt time.Time
	Duration  time.Duration
}

// Deadline returns the instant the window closes.
func (s Snapshot) Deadline() time.Time {
	return s.StartedAt.Add(s.Duration)
}

// Remaining returns the time left at now, floored at zero.
func (s Snapshot) Remaining(now time.Time) time.Duration {
	left := s.Deadline().Sub(now)
	if left < 0 {
		return 0
	}
	return left
}

// Expired reports whether the window has closed at now.
func (s Snapshot) Expired(now time.Time) bool {
	return !now.Before(s.Deadline())
}

// SelectionTimer calls a callback when a decision window closes unless cancelled.
// It is safe for concurrent use.
type SelectionTimer struct {
	mu       sync.Mutex
	timer    *time.Timer
	snapshot Snapshot
	done     bool
}

// Start opens a window at startedAt lasting duration and arms onExpire.
// onExpire runs on its own goroutine.
//
// Precondition: duration > 0; onExpire must not be nil.
// Postcondition: onExpire is called exactly once after the deadline unless Cancel
// is called first.
func Start(startedAt time.Time, duration time.Duration, onExpire func()) *SelectionTimer {
	st := &SelectionTimer{snapshot: Snapshot{StartedAt: startedAt, Duration: duration}}
	st.timer = time.AfterFunc(duration, func() {
		st.mu.Lock()
		if st.done {
			st.mu.Unlock()
			return
		}
		st.done = true
		st.mu.Unlock()
		onExpire()
	})
	return st
}

// Snapshot returns the window this timer guards.
func (st *SelectionTimer) Snapshot() Snapshot {
	return st.snapshot
}

// Cancel prevents the callback from firing. Cancelling a timer that already fired
// or was already cancelled is a no-op.
//
// Postcondition: Returns true iff this call prevented the callback.
func (st *SelectionTimer) Cancel() bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.done {
		return false
	}
	st.done = true
	st.timer.Stop()
	return true
}

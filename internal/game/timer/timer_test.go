package timer_test

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/cory-johannsen/smuggle/internal/game/timer"
)

func TestSnapshot(t *testing.T) {
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	s := timer.Snapshot{StartedAt: start, Duration: 30 * time.Second}
	assert.Equal(t, start.Add(30*time.Second), s.Deadline())
	assert.Equal(t, 20*time.Second, s.Remaining(start.Add(10*time.Second)))
	assert.Equal(t, time.Duration(0), s.Remaining(start.Add(time.Minute)))
	assert.False(t, s.Expired(start.Add(29*time.Second)))
	assert.True(t, s.Expired(start.Add(30*time.Second)))
}

func TestSelectionTimer_Fires(t *testing.T) {
	var called atomic.Int32
	st := timer.Start(time.Now(), 20*time.Millisecond, func() {
		called.Add(1)
	})
	time.Sleep(60 * time.Millisecond)
	if called.Load() != 1 {
		t.Fatalf("expected callback called once, got %d", called.Load())
	}
	assert.False(t, st.Cancel(), "cancel after fire must be a no-op")
}

func TestSelectionTimer_CancelPreventsCallback(t *testing.T) {
	var called atomic.Int32
	st := timer.Start(time.Now(), 50*time.Millisecond, func() {
		called.Add(1)
	})
	assert.True(t, st.Cancel())
	time.Sleep(80 * time.Millisecond)
	if called.Load() != 0 {
		t.Fatalf("expected callback not called, got %d", called.Load())
	}
}

func TestSelectionTimer_CancelIdempotent(t *testing.T) {
	st := timer.Start(time.Now(), 50*time.Millisecond, func() {})
	assert.True(t, st.Cancel())
	assert.False(t, st.Cancel())
	assert.False(t, st.Cancel())
}

func TestSelectionTimer_Snapshot(t *testing.T) {
	start := time.Now()
	st := timer.Start(start, time.Second, func() {})
	defer st.Cancel()
	assert.Equal(t, timer.Snapshot{StartedAt: start, Duration: time.Second}, st.Snapshot())
}

package server

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type mockService struct {
	name    string
	started atomic.Bool
	stopped chan struct{}
	once    sync.Once
	startFn func() error
	order   *stopOrder
}

type stopOrder struct {
	mu    sync.Mutex
	names []string
}

func newMockService(name string, order *stopOrder) *mockService {
	return &mockService{name: name, stopped: make(chan struct{}), order: order}
}

func (m *mockService) Start() error {
	m.started.Store(true)
	if m.startFn != nil {
		return m.startFn()
	}
	<-m.stopped
	return nil
}

func (m *mockService) Stop() {
	m.once.Do(func() {
		if m.order != nil {
			m.order.mu.Lock()
			m.order.names = append(m.order.names, m.name)
			m.order.mu.Unlock()
		}
		close(m.stopped)
	})
}

func (m *mockService) isStopped() bool {
	select {
	case <-m.stopped:
		return true
	default:
		return false
	}
}

func TestLifecycle_StartsAndStopsInReverseOrder(t *testing.T) {
	lc := NewLifecycle(zaptest.NewLogger(t))
	order := &stopOrder{}
	svc1 := newMockService("svc1", order)
	svc2 := newMockService("svc2", order)
	lc.Add("svc1", svc1)
	lc.Add("svc2", svc2)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- lc.Run(ctx) }()

	require.Eventually(t, func() bool {
		return svc1.started.Load() && svc2.started.Load()
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("lifecycle did not shut down in time")
	}

	assert.True(t, svc1.isStopped())
	assert.True(t, svc2.isStopped())
	assert.Equal(t, []string{"svc2", "svc1"}, order.names)
}

func TestLifecycle_ServiceFailureStopsEverything(t *testing.T) {
	lc := NewLifecycle(zaptest.NewLogger(t))
	healthy := newMockService("healthy", nil)
	failing := newMockService("failing", nil)
	failing.startFn = func() error { return errors.New("bind: address in use") }
	lc.Add("healthy", healthy)
	lc.Add("failing", failing)

	err := lc.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "service failing")
	assert.True(t, healthy.isStopped())
}

func TestLifecycle_StopTimeout(t *testing.T) {
	lc := NewLifecycle(zaptest.NewLogger(t))
	lc.SetStopTimeout(20 * time.Millisecond)
	stuck := &FuncService{
		StartFn: func() error { select {} },
		StopFn:  func() { time.Sleep(time.Second) },
	}
	lc.Add("stuck", stuck)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start := time.Now()
	require.NoError(t, lc.Run(ctx))
	assert.Less(t, time.Since(start), 900*time.Millisecond)
}

func TestFuncService(t *testing.T) {
	started := false
	stopped := false
	svc := &FuncService{
		StartFn: func() error {
			started = true
			return nil
		},
		StopFn: func() { stopped = true },
	}

	require.NoError(t, svc.Start())
	assert.True(t, started)
	svc.Stop()
	assert.True(t, stopped)
}

// Package notify provides a listener set whose fan-out isolates each listener:
// one listener failing or panicking never stops the others and never reaches
// the notifier.
package notify

import (
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// Listener receives notifications of type T.
type Listener[T any] func(T) error

// Subscription is the handle returned by Subscribe.
type Subscription struct {
	once   sync.Once
	cancel func()
}

// Cancel removes the listener. Safe to call multiple times.
func (s *Subscription) Cancel() {
	s.once.Do(s.cancel)
}

// Set is a concurrent set of listeners. All methods are safe for concurrent use.
type Set[T any] struct {
	name      string
	logger    *zap.Logger
	mu        sync.RWMutex
	nextID    uint64
	listeners map[uint64]Listener[T]
}

// NewSet creates an empty Set; name labels log lines.
//
// Precondition: logger must be non-nil.
func NewSet[T any](name string, logger *zap.Logger) *Set[T] {
	return &Set[T]{
		name:      name,
		logger:    logger,
		listeners: make(map[uint64]Listener[T]),
	}
}

// Subscribe registers fn.
//
// Precondition: fn must be non-nil.
// Postcondition: fn receives every later Notify until the Subscription is cancelled.
func (s *Set[T]) Subscribe(fn Listener[T]) *Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	return &Subscription{cancel: func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.listeners, id)
	}}
}

// Notify calls every listener with v in subscription order.
//
// Postcondition: Every listener registered at call time is invoked once. Returns the
// number of listeners that failed; failures are logged, never returned.
func (s *Set[T]) Notify(v T) int {
	s.mu.RLock()
	ids := make([]uint64, 0, len(s.listeners))
	for id := range s.listeners {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	fns := make([]Listener[T], len(ids))
	for i, id := range ids {
		fns[i] = s.listeners[id]
	}
	s.mu.RUnlock()

	failed := 0
	for i, fn := range fns {
		if err := s.call(fn, v); err != nil {
			failed++
			s.logger.Warn("listener failed",
				zap.String("set", s.name),
				zap.Uint64("listener", ids[i]),
				zap.Error(err),
			)
		}
	}
	return failed
}

func (s *Set[T]) call(fn Listener[T], v T) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("listener panicked: %v", r)
		}
	}()
	return fn(v)
}

// Len returns the number of registered listeners.
func (s *Set[T]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.listeners)
}

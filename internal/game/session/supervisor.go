package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/smuggle/internal/game/event"
	"github.com/cory-johannsen/smuggle/internal/game/gameerr"
)

// DefaultCreateTimeout bounds how long CreateSession waits for the supervisor.
const DefaultCreateTimeout = 3 * time.Second

// ErrSupervisorStopped is returned by CreateSession once the supervisor has stopped.
var ErrSupervisorStopped = errors.New("session supervisor stopped")

type createRequest struct {
	playerID int64
	sender   Sender
	reply    chan createReply
}

type createReply struct {
	handle *Handle
	err    error
}

// Supervisor owns the creation of session handles.
//
// Creation requests are serialized through a single goroutine started by Run;
// callers block on a one-shot reply channel bounded by the create timeout.
type Supervisor struct {
	registry   *Registry
	publisher  *event.Publisher
	logger     *zap.Logger
	timeout    time.Duration
	bufferSize int

	requests chan createRequest
	stopped  chan struct{}
	stopOnce sync.Once
}

// NewSupervisor creates a Supervisor backed by registry.
//
// Precondition: registry, publisher, and logger must be non-nil.
// Postcondition: A non-positive timeout selects DefaultCreateTimeout.
func NewSupervisor(registry *Registry, publisher *event.Publisher, logger *zap.Logger, timeout time.Duration, bufferSize int) *Supervisor {
	if timeout <= 0 {
		timeout = DefaultCreateTimeout
	}
	return &Supervisor{
		registry:   registry,
		publisher:  publisher,
		logger:     logger,
		timeout:    timeout,
		bufferSize: bufferSize,
		requests:   make(chan createRequest),
		stopped:    make(chan struct{}),
	}
}

// Registry returns the registry the supervisor writes to.
func (s *Supervisor) Registry() *Registry { return s.registry }

// Run processes creation requests until ctx is cancelled or Stop is called.
func (s *Supervisor) Run(ctx context.Context) {
	defer s.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopped:
			return
		case req := <-s.requests:
			req.reply <- s.spawn(req)
		}
	}
}

// Stop halts the supervisor. Safe to call multiple times.
func (s *Supervisor) Stop() {
	s.stopOnce.Do(func() { close(s.stopped) })
}

func (s *Supervisor) spawn(req createRequest) createReply {
	h := newHandle(req.playerID, req.sender, s.bufferSize, s.logger)
	go h.run()
	return createReply{handle: h}
}

// CreateSession asks the supervisor for a new handle bound to sender and
// registers it for playerID, replacing and closing any previous handle.
//
// Precondition: playerID > 0; sender must be non-nil.
// Postcondition: On success the handle is findable and ENTITY_CREATED has been
// published. On timeout or supervisor failure the registry keeps its prior state
// and a reply arriving afterwards is closed without being registered.
func (s *Supervisor) CreateSession(ctx context.Context, playerID int64, sender Sender) (*Handle, error) {
	if playerID <= 0 {
		return nil, gameerr.Argumentf("player id must be positive, got %d", playerID)
	}
	if sender == nil {
		return nil, gameerr.Argumentf("sender must not be nil")
	}

	placeholder := s.registry.reserve(playerID)
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	req := createRequest{playerID: playerID, sender: sender, reply: make(chan createReply, 1)}
	select {
	case s.requests <- req:
	case <-ctx.Done():
		s.registry.abandon(playerID, placeholder)
		return nil, s.askFailed(ctx, playerID)
	case <-s.stopped:
		s.registry.abandon(playerID, placeholder)
		return nil, ErrSupervisorStopped
	}

	select {
	case rep := <-req.reply:
		if rep.err != nil {
			s.registry.abandon(playerID, placeholder)
			return nil, rep.err
		}
		if prev := s.registry.register(playerID, rep.handle); prev != nil && prev != rep.handle {
			prev.Close()
		}
		s.publisher.EntityCreated(playerID)
		return rep.handle, nil
	case <-ctx.Done():
		s.registry.abandon(playerID, placeholder)
		go s.drainLate(req.reply)
		return nil, s.askFailed(ctx, playerID)
	}
}

// FindSession returns the live handle for playerID.
func (s *Supervisor) FindSession(playerID int64) (*Handle, bool) {
	return s.registry.Find(playerID)
}

// Remove unregisters h if it is still playerID's handle, then closes it.
//
// Postcondition: Returns true and publishes ENTITY_REMOVED only when the
// registration was removed; h is closed either way.
func (s *Supervisor) Remove(playerID int64, h *Handle) bool {
	if h == nil {
		return false
	}
	removed := s.registry.unregister(playerID, h)
	if removed {
		s.publisher.EntityRemoved(playerID)
	}
	h.Close()
	return removed
}

func (s *Supervisor) askFailed(ctx context.Context, playerID int64) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		s.logger.Warn("session creation timed out",
			zap.Int64("player_id", playerID),
			zap.Duration("timeout", s.timeout),
		)
		return gameerr.Timeoutf("creating session for player %d: no reply within %s", playerID, s.timeout)
	}
	return fmt.Errorf("creating session for player %d: %w", playerID, ctx.Err())
}

// drainLate closes a handle delivered after its caller gave up.
func (s *Supervisor) drainLate(reply <-chan createReply) {
	select {
	case rep := <-reply:
		if rep.handle != nil {
			s.logger.Debug("closing orphaned session", zap.Int64("player_id", rep.handle.PlayerID()))
			rep.handle.Close()
		}
	case <-s.stopped:
	}
}

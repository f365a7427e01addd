// Package session tracks one live communication handle per connected player.
//
// A Handle is a small actor: it owns a bounded inbox and a goroutine that forwards
// envelopes to the transport-layer Sender in the order they were accepted.
package session

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cory-johannsen/smuggle/internal/protocol"
)

// Sender is the transport capability a session delivers through.
type Sender interface {
	// Send writes env to the player's connection.
	Send(env protocol.Envelope) error
}

// SenderFunc adapts a function into a Sender.
type SenderFunc func(env protocol.Envelope) error

// Send calls f.
func (f SenderFunc) Send(env protocol.Envelope) error { return f(env) }

// Handle is the addressable reference used to deliver messages to one player.
type Handle struct {
	id       uuid.UUID
	playerID int64
	sender   Sender
	logger   *zap.Logger
	inbox    chan protocol.Envelope
	done     chan struct{}
	mu       sync.Mutex
	closed   bool
}

// newHandle creates a Handle for playerID. The caller must start run.
//
// Precondition: playerID > 0; sender and logger must be non-nil.
func newHandle(playerID int64, sender Sender, bufferSize int, logger *zap.Logger) *Handle {
	if bufferSize <= 0 {
		bufferSize = 64
	}
	id := uuid.New()
	return &Handle{
		id:       id,
		playerID: playerID,
		sender:   sender,
		logger:   logger.With(zap.Int64("player_id", playerID), zap.String("session_id", id.String())),
		inbox:    make(chan protocol.Envelope, bufferSize),
		done:     make(chan struct{}),
	}
}

// ID returns the connection-unique session id.
func (h *Handle) ID() uuid.UUID { return h.id }

// PlayerID returns the player the handle belongs to.
func (h *Handle) PlayerID() int64 { return h.playerID }

// Deliver enqueues env for the player without blocking.
//
// Postcondition: env is queued, or an error is returned when the handle is closed
// or its inbox is full.
func (h *Handle) Deliver(env protocol.Envelope) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return fmt.Errorf("session %s is closed", h.id)
	}
	select {
	case h.inbox <- env:
		return nil
	default:
		return fmt.Errorf("session %s inbox full", h.id)
	}
}

// Close stops accepting envelopes. Envelopes already queued are still forwarded.
// Safe to call multiple times.
func (h *Handle) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.closed {
		h.closed = true
		close(h.inbox)
	}
}

// IsClosed reports whether Close has been called.
func (h *Handle) IsClosed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}

// Done is closed once the handle has been closed and its inbox drained.
func (h *Handle) Done() <-chan struct{} { return h.done }

// run forwards envelopes until the inbox is closed.
func (h *Handle) run() {
	defer close(h.done)
	for env := range h.inbox {
		if err := h.sender.Send(env); err != nil {
			h.logger.Debug("session send failed",
				zap.String("type", string(env.Type)),
				zap.Error(err),
			)
		}
	}
}

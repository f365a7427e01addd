package gameserver

import (
	"go.uber.org/zap"

	"github.com/cory-johannsen/smuggle/internal/game/session"
	"github.com/cory-johannsen/smuggle/internal/protocol"
)

// SessionFinder looks up a player's live session handle.
type SessionFinder interface {
	FindSession(playerID int64) (*session.Handle, bool)
}

// SessionNotifier delivers room messages to the recipient's current session.
// It implements room.Notifier.
type SessionNotifier struct {
	sessions SessionFinder
	logger   *zap.Logger
}

// NewSessionNotifier creates a SessionNotifier.
//
// Precondition: sessions and logger must be non-nil.
func NewSessionNotifier(sessions SessionFinder, logger *zap.Logger) *SessionNotifier {
	return &SessionNotifier{sessions: sessions, logger: logger}
}

// Notify queues env on playerID's session. Players without a session and full
// inboxes drop the message.
func (n *SessionNotifier) Notify(playerID int64, env protocol.Envelope) {
	h, ok := n.sessions.FindSession(playerID)
	if !ok {
		n.logger.Debug("no session for message",
			zap.Int64("player_id", playerID),
			zap.String("type", string(env.Type)),
		)
		return
	}
	if err := h.Deliver(env); err != nil {
		n.logger.Warn("message dropped",
			zap.Int64("player_id", playerID),
			zap.String("type", string(env.Type)),
			zap.Error(err),
		)
	}
}

// Package moderation owns the player blacklist and notifies subscribers when it changes.
package moderation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/smuggle/internal/game/gameerr"
	"github.com/cory-johannsen/smuggle/internal/notify"
)

// ErrNotBlocked is returned when unblocking a player that is not on the blacklist.
var ErrNotBlocked = errors.New("player is not blocked")

// MaxReasonLength bounds the stored block reason, in bytes.
const MaxReasonLength = 256

// Entry is one blacklisted player.
type Entry struct {
	PlayerID  int64
	Reason    string
	BlockedAt time.Time
}

// Repository persists blacklist entries.
type Repository interface {
	// IsBlocked reports whether playerID is on the blacklist.
	IsBlocked(ctx context.Context, playerID int64) (bool, error)
	// Block inserts or replaces the entry for e.PlayerID.
	Block(ctx context.Context, e Entry) error
	// Unblock removes playerID, returning ErrNotBlocked when absent.
	Unblock(ctx context.Context, playerID int64) error
	// List returns every entry ordered by player id.
	List(ctx context.Context) ([]Entry, error)
}

// Change describes a blacklist transition delivered to listeners.
type Change struct {
	PlayerID int64
	Blocked  bool
}

// Service is the blacklist capability consumed by the game server.
type Service struct {
	repo      Repository
	listeners *notify.Set[Change]
	logger    *zap.Logger
	now       func() time.Time
}

// NewService creates a Service over repo.
//
// Precondition: repo and logger must be non-nil.
func NewService(repo Repository, logger *zap.Logger) *Service {
	return &Service{
		repo:      repo,
		listeners: notify.NewSet[Change]("blacklist", logger),
		logger:    logger,
		now:       time.Now,
	}
}

// IsBlocked reports whether playerID may not connect.
func (s *Service) IsBlocked(ctx context.Context, playerID int64) (bool, error) {
	blocked, err := s.repo.IsBlocked(ctx, playerID)
	if err != nil {
		return false, fmt.Errorf("checking blacklist for player %d: %w", playerID, err)
	}
	return blocked, nil
}

// Block adds playerID to the blacklist and notifies listeners.
//
// Precondition: playerID > 0; reason is at most MaxReasonLength bytes.
// Postcondition: Listeners observe Change{Blocked: true}; a listener failure never
// fails the call.
func (s *Service) Block(ctx context.Context, playerID int64, reason string) error {
	if playerID <= 0 {
		return gameerr.Argumentf("player id must be positive, got %d", playerID)
	}
	reason = strings.TrimSpace(reason)
	if len(reason) > MaxReasonLength {
		return gameerr.Argumentf("reason is %d bytes, limit is %d", len(reason), MaxReasonLength)
	}
	if err := s.repo.Block(ctx, Entry{PlayerID: playerID, Reason: reason, BlockedAt: s.now().UTC()}); err != nil {
		return fmt.Errorf("blocking player %d: %w", playerID, err)
	}
	s.logger.Info("player blocked", zap.Int64("player_id", playerID), zap.String("reason", reason))
	s.listeners.Notify(Change{PlayerID: playerID, Blocked: true})
	return nil
}

// Unblock removes playerID from the blacklist and notifies listeners.
//
// Postcondition: Returns an error wrapping ErrNotBlocked when the player was not blocked.
func (s *Service) Unblock(ctx context.Context, playerID int64) error {
	if err := s.repo.Unblock(ctx, playerID); err != nil {
		return fmt.Errorf("unblocking player %d: %w", playerID, err)
	}
	s.logger.Info("player unblocked", zap.Int64("player_id", playerID))
	s.listeners.Notify(Change{PlayerID: playerID, Blocked: false})
	return nil
}

// List returns every blacklist entry.
func (s *Service) List(ctx context.Context) ([]Entry, error) {
	return s.repo.List(ctx)
}

// RegisterListener subscribes fn to blacklist changes until the returned
// subscription is cancelled.
func (s *Service) RegisterListener(fn func(Change) error) *notify.Subscription {
	return s.listeners.Subscribe(fn)
}

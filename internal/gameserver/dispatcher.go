// Package gameserver connects player sessions, rooms and moderation.
//
// The Dispatcher implements the websocket transport's Handler: it admits
// connections, creates sessions through the supervisor, routes decoded commands
// to rooms, and tears sessions down when a player disconnects or is blocked.
package gameserver

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/smuggle/internal/game/gameerr"
	"github.com/cory-johannsen/smuggle/internal/game/room"
	"github.com/cory-johannsen/smuggle/internal/game/round"
	"github.com/cory-johannsen/smuggle/internal/game/session"
	"github.com/cory-johannsen/smuggle/internal/moderation"
	"github.com/cory-johannsen/smuggle/internal/notify"
	"github.com/cory-johannsen/smuggle/internal/protocol"
)

// DefaultCommandTimeout bounds how long one command waits on a room.
const DefaultCommandTimeout = 5 * time.Second

// Dispatcher routes player commands and tracks which room each player is in.
type Dispatcher struct {
	supervisor *session.Supervisor
	rooms      *room.Manager
	moderation *moderation.Service
	logger     *zap.Logger
	timeout    time.Duration

	mu         sync.Mutex
	membership map[int64]uint64
	sub        *notify.Subscription
}

// NewDispatcher creates a Dispatcher and subscribes it to blacklist changes.
//
// Precondition: all arguments must be non-nil.
// Postcondition: Close must be called to cancel the moderation subscription.
func NewDispatcher(supervisor *session.Supervisor, rooms *room.Manager, mod *moderation.Service, logger *zap.Logger) *Dispatcher {
	d := &Dispatcher{
		supervisor: supervisor,
		rooms:      rooms,
		moderation: mod,
		logger:     logger,
		timeout:    DefaultCommandTimeout,
		membership: make(map[int64]uint64),
	}
	d.sub = mod.RegisterListener(d.onModeration)
	return d
}

// SetCommandTimeout overrides DefaultCommandTimeout.
func (d *Dispatcher) SetCommandTimeout(t time.Duration) {
	if t > 0 {
		d.timeout = t
	}
}

// Close cancels the moderation subscription.
func (d *Dispatcher) Close() {
	d.sub.Cancel()
}

// RoomOf returns the room playerID is currently in.
func (d *Dispatcher) RoomOf(playerID int64) (uint64, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	id, ok := d.membership[playerID]
	return id, ok
}

// Admit refuses blocked players.
//
// Postcondition: Returns an argument error for a blocked player and the
// repository's error when the blacklist cannot be read.
func (d *Dispatcher) Admit(ctx context.Context, playerID int64) error {
	blocked, err := d.moderation.IsBlocked(ctx, playerID)
	if err != nil {
		return err
	}
	if blocked {
		return gameerr.Argumentf("player %d is blocked", playerID)
	}
	return nil
}

// Connect creates the player's session. A previous session for the same player is
// closed and its room membership carries over to the new one.
func (d *Dispatcher) Connect(ctx context.Context, playerID int64, sender session.Sender) (*session.Handle, error) {
	h, err := d.supervisor.CreateSession(ctx, playerID, sender)
	if err != nil {
		return nil, err
	}
	d.logger.Info("player connected",
		zap.Int64("player_id", playerID),
		zap.String("session_id", h.ID().String()),
	)
	return h, nil
}

// Disconnect releases h. The player leaves their room only when h is still
// their current session.
func (d *Dispatcher) Disconnect(h *session.Handle) {
	playerID := h.PlayerID()
	if !d.supervisor.Remove(playerID, h) {
		d.logger.Debug("replaced session disconnected",
			zap.Int64("player_id", playerID),
			zap.String("session_id", h.ID().String()),
		)
		return
	}
	d.leaveCurrentRoom(playerID)
	d.logger.Info("player disconnected",
		zap.Int64("player_id", playerID),
		zap.String("session_id", h.ID().String()),
	)
}

// Receive decodes and executes one client frame, replying on h.
func (d *Dispatcher) Receive(ctx context.Context, h *session.Handle, data []byte) {
	cmd, err := protocol.DecodeCommand(data)
	if err != nil {
		d.reply(h, "", err)
		return
	}
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	if err := d.execute(ctx, h, cmd); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = gameerr.Timeoutf("%s did not complete within %s", cmd.Type, d.timeout)
		}
		d.reply(h, cmd.Type, err)
	}
}

func (d *Dispatcher) execute(ctx context.Context, h *session.Handle, cmd protocol.Command) error {
	playerID := h.PlayerID()
	switch cmd.Type {
	case protocol.Heartbeat:
		return h.Deliver(protocol.Empty(protocol.HeartbeatPong))
	case protocol.SessionHealthPing:
		return h.Deliver(protocol.Empty(protocol.SessionHealthPong))
	case protocol.WSHealthPong:
		return nil
	case protocol.ListRooms:
		return d.listRooms(ctx, h)
	case protocol.CreateRoom:
		return d.createRoom(ctx, h, cmd.Name)
	case protocol.JoinRoom:
		id, err := cmd.Room()
		if err != nil {
			return err
		}
		return d.joinRoom(ctx, h, id)
	case protocol.LeaveRoom:
		id, ok := d.RoomOf(playerID)
		if !ok {
			return gameerr.Argumentf("player %d is not in a room", playerID)
		}
		if err := d.rooms.Leave(ctx, id, playerID); err != nil {
			return err
		}
		d.forget(playerID, id)
		return nil
	}

	r, err := d.currentRoom(playerID)
	if err != nil {
		return err
	}
	switch cmd.Type {
	case protocol.Ready:
		err = r.Ready(ctx, playerID)
	case protocol.Declare:
		err = r.Declare(ctx, playerID, round.Money(cmd.Amount))
	case protocol.DecidePass:
		err = r.DecidePass(ctx, playerID)
	case protocol.DecideInspection:
		err = r.DecideInspection(ctx, playerID, round.Money(cmd.Threshold))
	default:
		return gameerr.Argumentf("unsupported command %q", cmd.Type)
	}
	if err != nil {
		return err
	}
	return h.Deliver(protocol.MustEnvelope(protocol.ActionAccepted, protocol.AcceptedPayload{Command: cmd.Type}))
}

func (d *Dispatcher) listRooms(ctx context.Context, h *session.Handle) error {
	infos := d.rooms.List(ctx)
	out := make([]protocol.RoomInfo, 0, len(infos))
	for _, info := range infos {
		out = append(out, info.Wire())
	}
	return h.Deliver(protocol.MustEnvelope(protocol.RoomList, protocol.RoomListPayload{Rooms: out}))
}

func (d *Dispatcher) createRoom(ctx context.Context, h *session.Handle, name string) error {
	playerID := h.PlayerID()
	if id, ok := d.RoomOf(playerID); ok {
		return gameerr.Statef("player %d is already in room %d", playerID, id)
	}
	r, err := d.rooms.Create(name, false)
	if err != nil {
		return err
	}
	if err := d.joinRoom(ctx, h, r.ID()); err != nil {
		if rmErr := d.rooms.Remove(r.ID()); rmErr != nil {
			d.logger.Warn("removing unjoined room", zap.Uint64("room_id", r.ID()), zap.Error(rmErr))
		}
		return err
	}
	return nil
}

func (d *Dispatcher) joinRoom(ctx context.Context, h *session.Handle, roomID uint64) error {
	playerID := h.PlayerID()
	r, ok := d.rooms.Get(roomID)
	if !ok {
		return gameerr.Argumentf("room %d does not exist", roomID)
	}
	if !d.claim(playerID, roomID) {
		return gameerr.Statef("player %d is already in a room", playerID)
	}
	info, err := r.Join(ctx, playerID)
	if err != nil {
		d.forget(playerID, roomID)
		return err
	}
	return h.Deliver(protocol.MustEnvelope(protocol.RoomJoined, info.Wire()))
}

func (d *Dispatcher) currentRoom(playerID int64) (*room.Room, error) {
	id, ok := d.RoomOf(playerID)
	if !ok {
		return nil, gameerr.Argumentf("player %d is not in a room", playerID)
	}
	r, ok := d.rooms.Get(id)
	if !ok {
		d.forget(playerID, id)
		return nil, gameerr.Statef("room %d no longer exists", id)
	}
	return r, nil
}

// claim records playerID as joining roomID unless it is already in a room.
func (d *Dispatcher) claim(playerID int64, roomID uint64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.membership[playerID]; ok {
		return false
	}
	d.membership[playerID] = roomID
	return true
}

// forget clears playerID's membership if it still points at roomID.
func (d *Dispatcher) forget(playerID int64, roomID uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.membership[playerID] == roomID {
		delete(d.membership, playerID)
	}
}

func (d *Dispatcher) leaveCurrentRoom(playerID int64) {
	id, ok := d.RoomOf(playerID)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()
	if err := d.rooms.Leave(ctx, id, playerID); err != nil {
		d.logger.Debug("leaving room", zap.Int64("player_id", playerID), zap.Uint64("room_id", id), zap.Error(err))
	}
	d.forget(playerID, id)
}

// reply reports a failed command. Rejectable errors keep the session; timeouts
// ask the client to reconnect and close it; anything else is an exception.
func (d *Dispatcher) reply(h *session.Handle, cmd protocol.CommandType, err error) {
	playerID := h.PlayerID()
	switch {
	case gameerr.Rejectable(err):
		d.logger.Debug("action rejected",
			zap.Int64("player_id", playerID),
			zap.String("command", string(cmd)),
			zap.Error(err),
		)
		d.deliver(h, protocol.MustEnvelope(protocol.ActionRejected, protocol.RejectedPayload{
			Command: cmd,
			Kind:    gameerr.Kind(err),
			Reason:  err.Error(),
		}))
	case errors.Is(err, gameerr.ErrTimeout):
		d.logger.Warn("command timed out", zap.Int64("player_id", playerID), zap.String("command", string(cmd)), zap.Error(err))
		d.deliver(h, protocol.MustEnvelope(protocol.WSReconnect, protocol.ExceptionPayload{
			Kind:    gameerr.Kind(err),
			Message: err.Error(),
		}))
		d.Disconnect(h)
	default:
		d.logger.Error("command failed", zap.Int64("player_id", playerID), zap.String("command", string(cmd)), zap.Error(err))
		d.deliver(h, protocol.MustEnvelope(protocol.ExceptionMessage, protocol.ExceptionPayload{
			Kind:    gameerr.Kind(err),
			Message: err.Error(),
		}))
	}
}

func (d *Dispatcher) deliver(h *session.Handle, env protocol.Envelope) {
	if err := h.Deliver(env); err != nil {
		d.logger.Debug("reply dropped", zap.Int64("player_id", h.PlayerID()), zap.Error(err))
	}
}

// onModeration removes a newly blocked player from play.
func (d *Dispatcher) onModeration(c moderation.Change) error {
	if !c.Blocked {
		return nil
	}
	h, ok := d.supervisor.FindSession(c.PlayerID)
	if !ok {
		return nil
	}
	d.deliver(h, protocol.MustEnvelope(protocol.ExceptionMessage, protocol.ExceptionPayload{
		Kind:    "blocked",
		Message: "you have been blocked",
	}))
	d.logger.Info("disconnecting blocked player", zap.Int64("player_id", c.PlayerID))
	d.Disconnect(h)
	return nil
}

// Package room hosts lobbies and games. Each Room is a single goroutine that owns
// its participants, readiness, identifier generator, and current round; all access
// goes through its inbox.
package room

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/smuggle/internal/game/event"
	"github.com/cory-johannsen/smuggle/internal/game/gameerr"
	"github.com/cory-johannsen/smuggle/internal/game/match"
	"github.com/cory-johannsen/smuggle/internal/game/round"
	"github.com/cory-johannsen/smuggle/internal/game/snowflake"
	"github.com/cory-johannsen/smuggle/internal/game/timer"
	"github.com/cory-johannsen/smuggle/internal/protocol"
)

// ErrClosed is returned for commands sent to a stopped room.
var ErrClosed = fmt.Errorf("%w: room closed", gameerr.ErrState)

// TimeoutPolicy selects how a round is resolved when its selection window closes.
type TimeoutPolicy string

const (
	// TimeoutDefault forces a zero declaration and a PASS decision, then settles normally.
	TimeoutDefault TimeoutPolicy = "default"
	// TimeoutVoid settles the round without payoff.
	TimeoutVoid TimeoutPolicy = "void"
)

// Game end reasons carried by GAME_ENDED.
const (
	ReasonCompleted = "completed"
	ReasonAbandoned = "abandoned"
	ReasonFault     = "fault"
	ReasonClosed    = "closed"
)

// Settings are the gameplay knobs shared by every room.
type Settings struct {
	SelectionWindow time.Duration
	RoundsPerGame   int
	// MaxDeclaration caps declared amounts and thresholds; zero means round.MaxAmount.
	MaxDeclaration round.Money
	TimeoutPolicy  TimeoutPolicy
}

// DefaultSettings returns the settings used when none are configured.
func DefaultSettings() Settings {
	return Settings{
		SelectionWindow: 30 * time.Second,
		RoundsPerGame:   4,
		TimeoutPolicy:   TimeoutDefault,
	}
}

// Notifier delivers an envelope to one player. Delivery is best effort.
type Notifier interface {
	Notify(playerID int64, env protocol.Envelope)
}

// NotifierFunc adapts a function into a Notifier.
type NotifierFunc func(playerID int64, env protocol.Envelope)

// Notify calls f.
func (f NotifierFunc) Notify(playerID int64, env protocol.Envelope) { f(playerID, env) }

// Deps are the collaborators a room needs.
type Deps struct {
	Policy    round.Policy
	Notifier  Notifier
	Publisher *event.Publisher
	Factory   snowflake.Factory
	Logger    *zap.Logger
	// Now defaults to time.Now.
	Now func() time.Time
}

// Info is a point-in-time description of a room.
type Info struct {
	ID      uint64
	Name    string
	Players []int64
	Ready   []int64
	HasGame bool
	Seeded  bool
}

// Wire converts the info to its protocol form.
func (i Info) Wire() protocol.RoomInfo {
	players := i.Players
	if players == nil {
		players = []int64{}
	}
	ready := i.Ready
	if ready == nil {
		ready = []int64{}
	}
	return protocol.RoomInfo{
		ID:      protocol.FormatID(i.ID),
		Name:    i.Name,
		Players: players,
		Ready:   ready,
		HasGame: i.HasGame,
		Seeded:  i.Seeded,
	}
}

// Room is one lobby plus its game slot.
type Room struct {
	id       uint64
	name     string
	seeded   bool
	entityID int64
	settings Settings
	deps     Deps
	logger   *zap.Logger

	slot atomic.Pointer[match.Slot]

	inbox    chan func()
	stopped  chan struct{}
	done     chan struct{}
	stopOnce sync.Once

	// Owned by the run goroutine.
	generator *snowflake.Generator
	players   []int64
	ready     map[int64]bool
	selection *timer.SelectionTimer
	// closing is set when the last player leaves an unseeded room; the manager
	// removes such rooms and no player may join in between.
	closing bool
}

// newRoom builds a room and starts its goroutine.
//
// Precondition: deps.Policy, deps.Notifier, deps.Publisher, deps.Factory and
// deps.Logger must be non-nil; entityID must be unique among live rooms.
// Postcondition: The room starts with the empty slot.
func newRoom(id uint64, name string, seeded bool, entityID int64, settings Settings, deps Deps) (*Room, error) {
	gen, err := deps.Factory(entityID)
	if err != nil {
		return nil, fmt.Errorf("creating generator for room %q: %w", name, err)
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	r := &Room{
		id:        id,
		name:      name,
		seeded:    seeded,
		entityID:  entityID,
		settings:  settings,
		deps:      deps,
		logger:    deps.Logger.With(zap.Uint64("room_id", id), zap.String("room", name)),
		inbox:     make(chan func(), 32),
		stopped:   make(chan struct{}),
		done:      make(chan struct{}),
		generator: gen,
		ready:     make(map[int64]bool, match.Seats),
	}
	r.slot.Store(match.EmptySlot())
	go r.run()
	return r, nil
}

// ID returns the room identifier.
func (r *Room) ID() uint64 { return r.id }

// Name returns the display name.
func (r *Room) Name() string { return r.name }

// Seeded reports whether the room was created from the seed file.
func (r *Room) Seeded() bool { return r.seeded }

// EntityID returns the 10-bit entity id of the room's generator.
func (r *Room) EntityID() int64 { return r.entityID }

// Slot returns the current game slot. Safe from any goroutine.
func (r *Room) Slot() *match.Slot { return r.slot.Load() }

// Done is closed when the room goroutine has exited.
func (r *Room) Done() <-chan struct{} { return r.done }

// Stop ends any game with reason "closed" and terminates the room goroutine.
// Safe to call multiple times.
func (r *Room) Stop() {
	r.stopOnce.Do(func() { close(r.stopped) })
}

func (r *Room) run() {
	defer close(r.done)
	for {
		select {
		case fn := <-r.inbox:
			fn()
		case <-r.stopped:
			r.endGame(ReasonClosed)
			return
		}
	}
}

// do runs fn on the room goroutine and waits for its result.
func (r *Room) do(ctx context.Context, fn func() error) error {
	reply := make(chan error, 1)
	select {
	case r.inbox <- func() { reply <- fn() }:
	case <-r.stopped:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-reply:
		return err
	case <-r.done:
		select {
		case err := <-reply:
			return err
		default:
			return ErrClosed
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// enqueue schedules fn without waiting; used by timer callbacks.
func (r *Room) enqueue(fn func()) {
	select {
	case r.inbox <- fn:
	case <-r.stopped:
	}
}

// Join seats playerID in the lobby.
//
// Precondition: playerID > 0.
// Postcondition: On success every participant receives ROOM_STATE. Fails with an
// argument error when the room is full or the player is already present, and with
// a state error while a game is active.
func (r *Room) Join(ctx context.Context, playerID int64) (Info, error) {
	var info Info
	err := r.do(ctx, func() error {
		if playerID <= 0 {
			return gameerr.Argumentf("player id must be positive, got %d", playerID)
		}
		if r.closing {
			return ErrClosed
		}
		if r.slot.Load().HasGame() {
			return gameerr.Statef("room %q has a game in progress", r.name)
		}
		if r.has(playerID) {
			return gameerr.Argumentf("player %d is already in room %q", playerID, r.name)
		}
		if len(r.players) >= match.Seats {
			return gameerr.Argumentf("room %q is full", r.name)
		}
		r.players = append(r.players, playerID)
		r.ready[playerID] = false
		info = r.info()
		r.broadcastState()
		return nil
	})
	return info, err
}

// Leave removes playerID, aborting any game in progress.
//
// Postcondition: Returns the number of players left. Every former participant,
// including the leaver, receives ROOM_LEFT. An unseeded room left empty refuses
// every later Join with ErrClosed.
func (r *Room) Leave(ctx context.Context, playerID int64) (int, error) {
	remaining := 0
	err := r.do(ctx, func() error {
		if !r.has(playerID) {
			return gameerr.Argumentf("player %d is not in room %q", playerID, r.name)
		}
		r.endGame(ReasonAbandoned)
		left := protocol.MustEnvelope(protocol.RoomLeft, protocol.RoomLeftPayload{
			RoomID:   protocol.FormatID(r.id),
			PlayerID: playerID,
		})
		r.broadcast(left)

		kept := r.players[:0]
		for _, p := range r.players {
			if p != playerID {
				kept = append(kept, p)
			}
		}
		r.players = kept
		delete(r.ready, playerID)
		remaining = len(r.players)
		if remaining == 0 && !r.seeded {
			r.closing = true
		}
		return nil
	})
	return remaining, err
}

// Ready marks playerID ready and starts a game once every seat is filled and ready.
//
// Postcondition: Fails with a state error when the player is already ready or a
// game is active.
func (r *Room) Ready(ctx context.Context, playerID int64) error {
	return r.do(ctx, func() error {
		if !r.has(playerID) {
			return gameerr.Argumentf("player %d is not in room %q", playerID, r.name)
		}
		if r.slot.Load().HasGame() {
			return gameerr.Statef("room %q has a game in progress", r.name)
		}
		if r.ready[playerID] {
			return gameerr.Statef("player %d is already ready", playerID)
		}
		r.ready[playerID] = true
		r.broadcastState()
		if r.allReady() {
			r.startGame()
		}
		return nil
	})
}

// Snapshot returns the current room info.
func (r *Room) Snapshot(ctx context.Context) (Info, error) {
	var info Info
	err := r.do(ctx, func() error {
		info = r.info()
		return nil
	})
	return info, err
}

func (r *Room) has(playerID int64) bool {
	_, ok := r.ready[playerID]
	return ok
}

func (r *Room) allReady() bool {
	if len(r.players) != match.Seats {
		return false
	}
	for _, p := range r.players {
		if !r.ready[p] {
			return false
		}
	}
	return true
}

func (r *Room) info() Info {
	info := Info{
		ID:      r.id,
		Name:    r.name,
		Players: append([]int64(nil), r.players...),
		HasGame: r.slot.Load().HasGame(),
		Seeded:  r.seeded,
	}
	for _, p := range r.players {
		if r.ready[p] {
			info.Ready = append(info.Ready, p)
		}
	}
	return info
}

func (r *Room) broadcast(env protocol.Envelope) {
	for _, p := range r.players {
		r.deps.Notifier.Notify(p, env)
	}
}

func (r *Room) broadcastState() {
	r.broadcast(protocol.MustEnvelope(protocol.RoomState, r.info().Wire()))
}

// nextID mints an id from the room generator, replacing a missing generator first.
func (r *Room) nextID() (uint64, error) {
	if r.generator == nil {
		gen, err := r.deps.Factory(r.entityID)
		if err != nil {
			return 0, err
		}
		r.generator = gen
	}
	return r.generator.NextID()
}

// fault tears down the game after a generator failure and installs a fresh generator.
func (r *Room) fault(err error) {
	fields := []zap.Field{zap.Error(err)}
	var regression *snowflake.ClockRegressionError
	if errors.As(err, &regression) {
		fields = append(fields, zap.Duration("regression", regression.Magnitude()))
	}
	r.logger.Error("identifier generator failed, resetting room", fields...)

	r.endGame(ReasonFault)
	r.resetReady()
	r.generator = nil
	if gen, ferr := r.deps.Factory(r.entityID); ferr != nil {
		r.logger.Error("recreating generator", zap.Error(ferr))
	} else {
		r.generator = gen
	}
	r.broadcast(protocol.MustEnvelope(protocol.ExceptionMessage, protocol.ExceptionPayload{
		Kind:    ReasonFault,
		Message: "the game was reset after an internal fault",
	}))
	r.broadcastState()
}

// resetReady clears every participant's readiness.
func (r *Room) resetReady() {
	for p := range r.ready {
		r.ready[p] = false
	}
}

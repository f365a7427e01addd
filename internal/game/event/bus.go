package event

import (
	"strconv"

	"go.uber.org/zap"

	"github.com/cory-johannsen/smuggle/internal/notify"
)

// Sink receives lifecycle events.
type Sink interface {
	Publish(e Event)
}

// Bus fans events out to subscribers. A failing subscriber never affects the others
// or the publisher.
type Bus struct {
	listeners *notify.Set[Event]
}

// NewBus creates a Bus with no subscribers.
//
// Precondition: logger must be non-nil.
func NewBus(logger *zap.Logger) *Bus {
	return &Bus{listeners: notify.NewSet[Event]("lifecycle", logger)}
}

// Publish implements Sink.
func (b *Bus) Publish(e Event) {
	b.listeners.Notify(e)
}

// Subscribe registers fn for every later event.
func (b *Bus) Subscribe(fn func(Event) error) *notify.Subscription {
	return b.listeners.Subscribe(fn)
}

// LogListener returns a subscriber that writes every event to logger.
func LogListener(logger *zap.Logger) func(Event) error {
	return func(e Event) error {
		fields := []zap.Field{
			zap.String("type", e.Type().String()),
			zap.String("entity_id", e.EntityID()),
		}
		if room, ok := e.RoomID(); ok {
			fields = append(fields, zap.String("room_id", room))
		}
		logger.Info("lifecycle event", fields...)
		return nil
	}
}

// Publisher builds typed events and hands them to a Sink. Construction failures are
// logged and dropped; they never reach the caller.
type Publisher struct {
	sink   Sink
	logger *zap.Logger
}

// NewPublisher wraps sink.
//
// Precondition: sink and logger must be non-nil.
func NewPublisher(sink Sink, logger *zap.Logger) *Publisher {
	return &Publisher{sink: sink, logger: logger}
}

// EntityCreated publishes ENTITY_CREATED for a player session.
func (p *Publisher) EntityCreated(playerID int64) {
	p.publish(EntityCreated, strconv.FormatInt(playerID, 10), "")
}

// EntityRemoved publishes ENTITY_REMOVED for a player session.
func (p *Publisher) EntityRemoved(playerID int64) {
	p.publish(EntityRemoved, strconv.FormatInt(playerID, 10), "")
}

// RoomCreated publishes ROOM_CREATED.
func (p *Publisher) RoomCreated(roomID uint64) {
	id := strconv.FormatUint(roomID, 10)
	p.publish(RoomCreated, id, id)
}

// RoomRemoved publishes ROOM_REMOVED.
func (p *Publisher) RoomRemoved(roomID uint64) {
	id := strconv.FormatUint(roomID, 10)
	p.publish(RoomRemoved, id, id)
}

// GameStarted publishes GAME_STARTED.
func (p *Publisher) GameStarted(gameID, roomID uint64) {
	p.publish(GameStarted, strconv.FormatUint(gameID, 10), strconv.FormatUint(roomID, 10))
}

// GameEnded publishes GAME_ENDED.
func (p *Publisher) GameEnded(gameID, roomID uint64) {
	p.publish(GameEnded, strconv.FormatUint(gameID, 10), strconv.FormatUint(roomID, 10))
}

func (p *Publisher) publish(t Type, entityID, roomID string) {
	e, err := New(t, entityID, roomID)
	if err != nil {
		p.logger.Error("dropping malformed lifecycle event",
			zap.String("type", t.String()),
			zap.Error(err),
		)
		return
	}
	p.sink.Publish(e)
}

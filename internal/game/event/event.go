// Package event defines the lifecycle events the game core emits to external
// listeners.
package event

import (
	"strings"
	"time"

	"github.com/cory-johannsen/smuggle/internal/game/gameerr"
)

// Type identifies a lifecycle transition.
// The zero value (TypeUnknown) is intentionally invalid.
type Type int

const (
	TypeUnknown Type = iota // zero value; intentionally invalid
	EntityCreated
	EntityRemoved
	RoomCreated
	RoomRemoved
	GameStarted
	GameEnded
)

// String returns the wire name of the Type.
func (t Type) String() string {
	switch t {
	case EntityCreated:
		return "ENTITY_CREATED"
	case EntityRemoved:
		return "ENTITY_REMOVED"
	case RoomCreated:
		return "ROOM_CREATED"
	case RoomRemoved:
		return "ROOM_REMOVED"
	case GameStarted:
		return "GAME_STARTED"
	case GameEnded:
		return "GAME_ENDED"
	default:
		return "UNKNOWN"
	}
}

// Valid reports whether t is one of the defined types.
func (t Type) Valid() bool {
	return t >= EntityCreated && t <= GameEnded
}

// Event is an immutable lifecycle record.
type Event struct {
	typ        Type
	entityID   string
	roomID     string
	occurredAt time.Time
}

// New builds an Event. roomID may be empty when the event is not room-scoped.
//
// Precondition: t is valid; entityID is not blank.
// Postcondition: Returns the event, or an error wrapping gameerr.ErrArgument.
func New(t Type, entityID, roomID string) (Event, error) {
	if !t.Valid() {
		return Event{}, gameerr.Argumentf("event type is required")
	}
	entityID = strings.TrimSpace(entityID)
	if entityID == "" {
		return Event{}, gameerr.Argumentf("event entity id must not be blank")
	}
	return Event{
		typ:        t,
		entityID:   entityID,
		roomID:     strings.TrimSpace(roomID),
		occurredAt: time.Now(),
	}, nil
}

// Type returns the event type.
func (e Event) Type() Type { return e.typ }

// EntityID returns the id of the entity the event is about.
func (e Event) EntityID() string { return e.entityID }

// RoomID returns the room the event belongs to, if any.
func (e Event) RoomID() (string, bool) { return e.roomID, e.roomID != "" }

// OccurredAt returns when the event was built.
func (e Event) OccurredAt() time.Time { return e.occurredAt }

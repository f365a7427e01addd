package event

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/cory-johannsen/smuggle/internal/game/gameerr"
)

func TestNew_BlankEntityID(t *testing.T) {
	for _, id := range []string{"", "   ", "\t"} {
		_, err := New(RoomCreated, id, "")
		assert.ErrorIs(t, err, gameerr.ErrArgument, "entity id %q", id)
	}
}

func TestNew_MissingType(t *testing.T) {
	_, err := New(TypeUnknown, "1", "")
	assert.ErrorIs(t, err, gameerr.ErrArgument)
	_, err = New(Type(77), "1", "")
	assert.ErrorIs(t, err, gameerr.ErrArgument)
}

func TestNew_RoomCreated(t *testing.T) {
	e, err := New(RoomCreated, "42", "42")
	require.NoError(t, err)
	assert.Equal(t, RoomCreated, e.Type())
	assert.Equal(t, "42", e.EntityID())
	room, ok := e.RoomID()
	assert.True(t, ok)
	assert.Equal(t, "42", room)
	assert.False(t, e.OccurredAt().IsZero())
}

func TestNew_WithoutRoom(t *testing.T) {
	e, err := New(EntityCreated, "7", "")
	require.NoError(t, err)
	_, ok := e.RoomID()
	assert.False(t, ok)
}

func TestType_String(t *testing.T) {
	assert.Equal(t, "ENTITY_CREATED", EntityCreated.String())
	assert.Equal(t, "GAME_ENDED", GameEnded.String())
	assert.Equal(t, "UNKNOWN", TypeUnknown.String())
}

func TestBus_FailingSubscriberIsolated(t *testing.T) {
	bus := NewBus(zaptest.NewLogger(t))
	var got []Type
	bus.Subscribe(func(Event) error { return errors.New("sink down") })
	bus.Subscribe(func(e Event) error { got = append(got, e.Type()); return nil })

	p := NewPublisher(bus, zaptest.NewLogger(t))
	p.RoomCreated(5)
	p.GameStarted(9, 5)
	p.GameEnded(9, 5)
	p.RoomRemoved(5)
	p.EntityCreated(3)
	p.EntityRemoved(3)

	assert.Equal(t, []Type{RoomCreated, GameStarted, GameEnded, RoomRemoved, EntityCreated, EntityRemoved}, got)
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := NewBus(zaptest.NewLogger(t))
	n := 0
	sub := bus.Subscribe(func(Event) error { n++; return nil })
	NewPublisher(bus, zaptest.NewLogger(t)).RoomCreated(1)
	sub.Cancel()
	NewPublisher(bus, zaptest.NewLogger(t)).RoomCreated(2)
	assert.Equal(t, 1, n)
}

func TestLogListener(t *testing.T) {
	e, err := New(GameStarted, "1", "2")
	require.NoError(t, err)
	assert.NoError(t, LogListener(zaptest.NewLogger(t))(e))
}

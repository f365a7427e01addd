package gameserver

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/cory-johannsen/smuggle/internal/game/event"
	"github.com/cory-johannsen/smuggle/internal/game/room"
	"github.com/cory-johannsen/smuggle/internal/game/session"
	"github.com/cory-johannsen/smuggle/internal/game/snowflake"
	"github.com/cory-johannsen/smuggle/internal/moderation"
	"github.com/cory-johannsen/smuggle/internal/protocol"
	"github.com/cory-johannsen/smuggle/internal/scripting"
)

const settlementScript = "../../content/scripts/settlement.lua"

// chanSender exposes every envelope sent to a session.
type chanSender struct {
	ch chan protocol.Envelope
}

func newChanSender() *chanSender { return &chanSender{ch: make(chan protocol.Envelope, 256)} }

func (s *chanSender) Send(env protocol.Envelope) error {
	s.ch <- env
	return nil
}

// expect reads until an envelope of type t arrives.
func (s *chanSender) expect(t *testing.T, want protocol.MessageType) protocol.Envelope {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case env := <-s.ch:
			if env.Type == want {
				return env
			}
		case <-deadline:
			t.Fatalf("no %s received", want)
			return protocol.Envelope{}
		}
	}
}

type fixture struct {
	dispatcher *Dispatcher
	supervisor *session.Supervisor
	rooms      *room.Manager
	moderation *moderation.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := zaptest.NewLogger(t)
	bus := event.NewBus(logger)
	publisher := event.NewPublisher(bus, logger)

	sup := session.NewSupervisor(session.NewRegistry(), publisher, logger, time.Second, 64)
	ctx, cancel := context.WithCancel(context.Background())
	go sup.Run(ctx)
	t.Cleanup(cancel)

	policy, err := scripting.LoadSettlementScript(settlementScript, 0, logger)
	require.NoError(t, err)
	t.Cleanup(policy.Close)

	rooms, err := room.NewManager(0, room.DefaultSettings(), room.Deps{
		Policy:    policy,
		Notifier:  NewSessionNotifier(sup, logger),
		Publisher: publisher,
		Factory:   snowflake.NewFactory(),
		Logger:    logger,
	})
	require.NoError(t, err)
	t.Cleanup(rooms.Close)

	mod := moderation.NewService(moderation.NewMemoryRepository(), logger)
	d := NewDispatcher(sup, rooms, mod, logger)
	t.Cleanup(d.Close)
	return &fixture{dispatcher: d, supervisor: sup, rooms: rooms, moderation: mod}
}

func (f *fixture) connect(t *testing.T, playerID int64) (*session.Handle, *chanSender) {
	t.Helper()
	s := newChanSender()
	h, err := f.dispatcher.Connect(context.Background(), playerID, s)
	require.NoError(t, err)
	return h, s
}

func (f *fixture) send(t *testing.T, h *session.Handle, cmd protocol.Command) {
	t.Helper()
	data, err := json.Marshal(cmd)
	require.NoError(t, err)
	f.dispatcher.Receive(context.Background(), h, data)
}

func decode[T any](t *testing.T, env protocol.Envelope) T {
	t.Helper()
	var v T
	require.NoError(t, env.Decode(&v))
	return v
}

func TestDispatcher_HealthReplies(t *testing.T) {
	f := newFixture(t)
	h, s := f.connect(t, 1)

	f.send(t, h, protocol.Command{Type: protocol.Heartbeat})
	env := s.expect(t, protocol.HeartbeatPong)
	assert.JSONEq(t, `{}`, string(env.Payload))

	f.send(t, h, protocol.Command{Type: protocol.SessionHealthPing})
	s.expect(t, protocol.SessionHealthPong)
}

func TestDispatcher_MalformedCommandRejected(t *testing.T) {
	f := newFixture(t)
	h, s := f.connect(t, 1)

	f.dispatcher.Receive(context.Background(), h, []byte(`{"type":`))
	rej := decode[protocol.RejectedPayload](t, s.expect(t, protocol.ActionRejected))
	assert.Equal(t, "argument", rej.Kind)

	f.dispatcher.Receive(context.Background(), h, []byte(`{"type":"DANCE"}`))
	rej = decode[protocol.RejectedPayload](t, s.expect(t, protocol.ActionRejected))
	assert.Equal(t, "argument", rej.Kind)
	assert.False(t, h.IsClosed())
}

func TestDispatcher_CreateRoomJoinsCreator(t *testing.T) {
	f := newFixture(t)
	h, s := f.connect(t, 1)

	f.send(t, h, protocol.Command{Type: protocol.CreateRoom, Name: "  Harbour "})
	info := decode[protocol.RoomInfo](t, s.expect(t, protocol.RoomJoined))
	assert.Equal(t, "Harbour", info.Name)
	assert.Equal(t, []int64{1}, info.Players)

	id, ok := f.dispatcher.RoomOf(1)
	require.True(t, ok)
	assert.Equal(t, protocol.FormatID(id), info.ID)

	f.send(t, h, protocol.Command{Type: protocol.CreateRoom, Name: "Another"})
	rej := decode[protocol.RejectedPayload](t, s.expect(t, protocol.ActionRejected))
	assert.Equal(t, protocol.CreateRoom, rej.Command)
	assert.Equal(t, "state", rej.Kind)
	assert.Equal(t, 1, f.rooms.Count())
}

func TestDispatcher_CreateRoomRejectsBlankName(t *testing.T) {
	f := newFixture(t)
	h, s := f.connect(t, 1)

	f.send(t, h, protocol.Command{Type: protocol.CreateRoom, Name: "   "})
	rej := decode[protocol.RejectedPayload](t, s.expect(t, protocol.ActionRejected))
	assert.Equal(t, "argument", rej.Kind)
	assert.Equal(t, 0, f.rooms.Count())
}

func TestDispatcher_JoinUnknownRoom(t *testing.T) {
	f := newFixture(t)
	h, s := f.connect(t, 1)

	f.send(t, h, protocol.Command{Type: protocol.JoinRoom, RoomID: "12345"})
	rej := decode[protocol.RejectedPayload](t, s.expect(t, protocol.ActionRejected))
	assert.Equal(t, "argument", rej.Kind)

	f.send(t, h, protocol.Command{Type: protocol.JoinRoom, RoomID: "harbour"})
	rej = decode[protocol.RejectedPayload](t, s.expect(t, protocol.ActionRejected))
	assert.Equal(t, "argument", rej.Kind)
	_, ok := f.dispatcher.RoomOf(1)
	assert.False(t, ok)
}

func TestDispatcher_GameplayRequiresRoom(t *testing.T) {
	f := newFixture(t)
	h, s := f.connect(t, 1)

	for _, cmd := range []protocol.CommandType{protocol.Ready, protocol.Declare, protocol.DecidePass, protocol.DecideInspection, protocol.LeaveRoom} {
		f.send(t, h, protocol.Command{Type: cmd})
		rej := decode[protocol.RejectedPayload](t, s.expect(t, protocol.ActionRejected))
		assert.Equal(t, cmd, rej.Command)
		assert.Equal(t, "argument", rej.Kind)
	}
}

func TestDispatcher_ListRooms(t *testing.T) {
	f := newFixture(t)
	_, err := f.rooms.Create("Harbour", true)
	require.NoError(t, err)
	_, err = f.rooms.Create("Night Market", true)
	require.NoError(t, err)
	h, s := f.connect(t, 1)

	f.send(t, h, protocol.Command{Type: protocol.ListRooms})
	list := decode[protocol.RoomListPayload](t, s.expect(t, protocol.RoomList))
	require.Len(t, list.Rooms, 2)
	assert.Equal(t, "Harbour", list.Rooms[0].Name)
	assert.True(t, list.Rooms[0].Seeded)
	assert.Empty(t, list.Rooms[0].Players)
}

// playRound seats players 1 and 2, starts a game and returns who smuggles first.
func playRound(t *testing.T, f *fixture) (smuggler, inspector *session.Handle, ss, is *chanSender) {
	t.Helper()
	h1, s1 := f.connect(t, 1)
	h2, s2 := f.connect(t, 2)

	f.send(t, h1, protocol.Command{Type: protocol.CreateRoom, Name: "Harbour"})
	info := decode[protocol.RoomInfo](t, s1.expect(t, protocol.RoomJoined))
	f.send(t, h2, protocol.Command{Type: protocol.JoinRoom, RoomID: info.ID})
	s2.expect(t, protocol.RoomJoined)

	f.send(t, h1, protocol.Command{Type: protocol.Ready})
	s1.expect(t, protocol.ActionAccepted)
	f.send(t, h2, protocol.Command{Type: protocol.Ready})
	s2.expect(t, protocol.ActionAccepted)

	s1.expect(t, protocol.GameStarted)
	r1 := decode[protocol.RoundStartedPayload](t, s1.expect(t, protocol.RoundStarted))
	r2 := decode[protocol.RoundStartedPayload](t, s2.expect(t, protocol.RoundStarted))
	assert.Equal(t, 1, r1.Number)
	assert.NotEqual(t, r1.Role, r2.Role)
	if r1.Role == "smuggler" {
		return h1, h2, s1, s2
	}
	return h2, h1, s2, s1
}

func TestDispatcher_PlaysARound(t *testing.T) {
	f := newFixture(t)
	smuggler, inspector, ss, is := playRound(t, f)

	f.send(t, smuggler, protocol.Command{Type: protocol.Declare, Amount: 40})
	ss.expect(t, protocol.ActionAccepted)

	f.send(t, smuggler, protocol.Command{Type: protocol.Declare, Amount: 10})
	rej := decode[protocol.RejectedPayload](t, ss.expect(t, protocol.ActionRejected))
	assert.Equal(t, "state", rej.Kind)

	f.send(t, inspector, protocol.Command{Type: protocol.DecidePass})
	is.expect(t, protocol.ActionAccepted)

	settled := decode[protocol.RoundSettledPayload](t, is.expect(t, protocol.RoundSettled))
	assert.Equal(t, int64(40), settled.Amount)
	assert.Equal(t, "passed", settled.Outcome)
	assert.Equal(t, int64(40), settled.SmugglerDelta)
	assert.Equal(t, int64(0), settled.InspectorDelta)
	assert.False(t, settled.Forced)
	assert.Equal(t, int64(40), settled.Balances[protocol.FormatID(uint64(smuggler.PlayerID()))])
}

func TestDispatcher_WrongRoleRejected(t *testing.T) {
	f := newFixture(t)
	_, inspector, _, is := playRound(t, f)

	f.send(t, inspector, protocol.Command{Type: protocol.Declare, Amount: 5})
	rej := decode[protocol.RejectedPayload](t, is.expect(t, protocol.ActionRejected))
	assert.Equal(t, protocol.Declare, rej.Command)
	assert.Equal(t, "argument", rej.Kind)
}

func TestDispatcher_LeaveRemovesEmptyRoom(t *testing.T) {
	f := newFixture(t)
	h, s := f.connect(t, 1)

	f.send(t, h, protocol.Command{Type: protocol.CreateRoom, Name: "Harbour"})
	s.expect(t, protocol.RoomJoined)
	require.Equal(t, 1, f.rooms.Count())

	f.send(t, h, protocol.Command{Type: protocol.LeaveRoom})
	left := decode[protocol.RoomLeftPayload](t, s.expect(t, protocol.RoomLeft))
	assert.Equal(t, int64(1), left.PlayerID)
	_, ok := f.dispatcher.RoomOf(1)
	assert.False(t, ok)
	assert.Equal(t, 0, f.rooms.Count())
}

func TestDispatcher_DisconnectAbandonsGame(t *testing.T) {
	f := newFixture(t)
	smuggler, _, _, is := playRound(t, f)

	f.dispatcher.Disconnect(smuggler)
	ended := decode[protocol.GameEndedPayload](t, is.expect(t, protocol.GameEnded))
	assert.Equal(t, room.ReasonAbandoned, ended.Reason)

	_, ok := f.dispatcher.RoomOf(smuggler.PlayerID())
	assert.False(t, ok)
	_, ok = f.supervisor.FindSession(smuggler.PlayerID())
	assert.False(t, ok)
	assert.True(t, smuggler.IsClosed())
}

func TestDispatcher_ReplacedSessionKeepsMembership(t *testing.T) {
	f := newFixture(t)
	first, s := f.connect(t, 1)
	f.send(t, first, protocol.Command{Type: protocol.CreateRoom, Name: "Harbour"})
	s.expect(t, protocol.RoomJoined)

	second, s2 := f.connect(t, 1)
	f.dispatcher.Disconnect(first)

	_, ok := f.dispatcher.RoomOf(1)
	assert.True(t, ok, "a replaced connection must not pull the player out of the room")
	current, ok := f.supervisor.FindSession(1)
	require.True(t, ok)
	assert.Same(t, second, current)

	f.send(t, second, protocol.Command{Type: protocol.Ready})
	s2.expect(t, protocol.ActionAccepted)
}

func TestDispatcher_AdmitRefusesBlocked(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.dispatcher.Admit(ctx, 7))

	require.NoError(t, f.moderation.Block(ctx, 7, "cheating"))
	err := f.dispatcher.Admit(ctx, 7)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "blocked")
}

func TestDispatcher_BlockDisconnectsPlayer(t *testing.T) {
	f := newFixture(t)
	h, s := f.connect(t, 3)
	f.send(t, h, protocol.Command{Type: protocol.CreateRoom, Name: "Harbour"})
	s.expect(t, protocol.RoomJoined)

	require.NoError(t, f.moderation.Block(context.Background(), 3, "abuse"))

	exc := decode[protocol.ExceptionPayload](t, s.expect(t, protocol.ExceptionMessage))
	assert.Equal(t, "blocked", exc.Kind)
	select {
	case <-h.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("blocked session was not closed")
	}
	_, ok := f.dispatcher.RoomOf(3)
	assert.False(t, ok)
	assert.Equal(t, 0, f.rooms.Count())
}

func TestDispatcher_UnblockLeavesSessionsAlone(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.moderation.Block(ctx, 4, ""))
	h, _ := f.connect(t, 4)

	require.NoError(t, f.moderation.Unblock(ctx, 4))
	assert.False(t, h.IsClosed())
}

func TestSessionNotifier_DropsWithoutSession(t *testing.T) {
	f := newFixture(t)
	n := NewSessionNotifier(f.supervisor, zaptest.NewLogger(t))
	n.Notify(99, protocol.Empty(protocol.WSHealthPing))

	_, s := f.connect(t, 5)
	n.Notify(5, protocol.Empty(protocol.WSHealthPing))
	s.expect(t, protocol.WSHealthPing)
}

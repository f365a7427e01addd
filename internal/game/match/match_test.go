package match

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cory-johannsen/smuggle/internal/game/gameerr"
	"github.com/cory-johannsen/smuggle/internal/game/round"
)

func newTestGame(t *testing.T) *Game {
	t.Helper()
	g, err := NewGame(1, 2, []int64{10, 20}, time.Unix(0, 0))
	require.NoError(t, err)
	return g
}

func TestEmptySlot(t *testing.T) {
	s := EmptySlot()
	assert.False(t, s.HasGame())
	g, ok := s.CurrentGame()
	assert.False(t, ok)
	assert.Nil(t, g)
	assert.Same(t, s, EmptySlot(), "empty slot must be a shared singleton")
}

func TestNewActiveSlot_NilGame(t *testing.T) {
	s, err := NewActiveSlot(nil)
	assert.ErrorIs(t, err, gameerr.ErrArgument)
	assert.Nil(t, s)
}

func TestNewActiveSlot(t *testing.T) {
	g := newTestGame(t)
	s, err := NewActiveSlot(g)
	require.NoError(t, err)
	assert.True(t, s.HasGame())
	got, ok := s.CurrentGame()
	require.True(t, ok)
	assert.Same(t, g, got)
}

func TestNewGame_Validation(t *testing.T) {
	_, err := NewGame(1, 1, []int64{10}, time.Now())
	assert.ErrorIs(t, err, gameerr.ErrArgument)
	_, err = NewGame(1, 1, []int64{10, 10}, time.Now())
	assert.ErrorIs(t, err, gameerr.ErrArgument)
	_, err = NewGame(1, 1, []int64{10, 0}, time.Now())
	assert.ErrorIs(t, err, gameerr.ErrArgument)
}

func TestGame_RolesAlternate(t *testing.T) {
	g := newTestGame(t)
	assert.Equal(t, int64(10), g.SmugglerFor(1))
	assert.Equal(t, int64(20), g.InspectorFor(1))
	assert.Equal(t, int64(20), g.SmugglerFor(2))
	assert.Equal(t, int64(10), g.InspectorFor(2))
	assert.Equal(t, RoleSmuggler, g.RoleIn(10, 3))
	assert.Equal(t, RoleInspector, g.RoleIn(10, 4))
	assert.Equal(t, RoleNone, g.RoleIn(99, 1))
	assert.Equal(t, "smuggler", RoleSmuggler.String())
}

func TestGame_AddRoundOrdering(t *testing.T) {
	g := newTestGame(t)
	r2, err := round.New(2, 2, 20, 10)
	require.NoError(t, err)
	assert.ErrorIs(t, g.AddRound(r2), gameerr.ErrState)

	r1, err := round.New(1, 1, 10, 20)
	require.NoError(t, err)
	require.NoError(t, g.AddRound(r1))
	assert.ErrorIs(t, g.AddRound(r2), gameerr.ErrState, "previous round not settled")

	require.NoError(t, r1.Declare(10, 5))
	require.NoError(t, r1.DecidePass(20))
	_, err = r1.Settle(round.PolicyFunc(func(in round.Input) (round.Settlement, error) {
		return round.Settlement{SmugglerDelta: in.Amount, InspectorDelta: -in.Amount, Outcome: "passed"}, nil
	}))
	require.NoError(t, err)
	g.ApplySettlement(r1)
	require.NoError(t, g.AddRound(r2))

	cur, ok := g.CurrentRound()
	require.True(t, ok)
	assert.Same(t, r2, cur)
	assert.Equal(t, 2, g.RoundCount())
	assert.Equal(t, map[int64]round.Money{10: 5, 20: -5}, g.Balances())
}

func TestGame_ParticipantsCopy(t *testing.T) {
	g := newTestGame(t)
	ps := g.Participants()
	ps[0].PlayerID = 999
	assert.Equal(t, int64(10), g.Participants()[0].PlayerID)
	assert.True(t, g.Has(20))
	assert.False(t, g.Has(999))
}

package match

import (
	"time"

	"github.com/cory-johannsen/smuggle/internal/game/gameerr"
	"github.com/cory-johannsen/smuggle/internal/game/round"
)

// Seats is the number of players in a game.
const Seats = 2

// Role is the part a participant plays in one round.
type Role int

const (
	RoleNone Role = iota
	RoleSmuggler
	RoleInspector
)

// String returns the wire name of the Role.
func (r Role) String() string {
	switch r {
	case RoleSmuggler:
		return "smuggler"
	case RoleInspector:
		return "inspector"
	default:
		return "none"
	}
}

// Participant is one seated player.
type Participant struct {
	PlayerID int64
	Ready    bool
}

// Game is a sequence of rounds between two participants.
//
// ID, RoomID, StartedAt and Participants never change after NewGame and may be read
// from any goroutine. Rounds and balances are mutated only by the owning room's
// goroutine.
type Game struct {
	id           uint64
	roomID       uint64
	startedAt    time.Time
	participants [Seats]Participant
	rounds       []*round.Round
	balances     map[int64]round.Money
}

// NewGame seats players in order.
//
// Precondition: exactly Seats distinct positive player ids.
// Postcondition: Returns a game with no rounds and zero balances, or an error
// wrapping gameerr.ErrArgument.
func NewGame(id, roomID uint64, players []int64, startedAt time.Time) (*Game, error) {
	if len(players) != Seats {
		return nil, gameerr.Argumentf("a game needs %d players, got %d", Seats, len(players))
	}
	g := &Game{
		id:        id,
		roomID:    roomID,
		startedAt: startedAt,
		balances:  make(map[int64]round.Money, Seats),
	}
	for i, p := range players {
		if p <= 0 {
			return nil, gameerr.Argumentf("player id must be positive, got %d", p)
		}
		if _, dup := g.balances[p]; dup {
			return nil, gameerr.Argumentf("player %d seated twice", p)
		}
		g.participants[i] = Participant{PlayerID: p, Ready: true}
		g.balances[p] = 0
	}
	return g, nil
}

// ID returns the game identifier.
func (g *Game) ID() uint64 { return g.id }

// RoomID returns the room hosting the game.
func (g *Game) RoomID() uint64 { return g.roomID }

// StartedAt returns when the game began.
func (g *Game) StartedAt() time.Time { return g.startedAt }

// Participants returns the seated players in join order.
func (g *Game) Participants() []Participant {
	out := make([]Participant, Seats)
	copy(out, g.participants[:])
	return out
}

// Has reports whether playerID is seated.
func (g *Game) Has(playerID int64) bool {
	_, ok := g.balances[playerID]
	return ok
}

// SmugglerFor returns the smuggler of round number n; roles alternate each round.
//
// Precondition: n >= 1.
func (g *Game) SmugglerFor(n int) int64 {
	return g.participants[(n-1)%Seats].PlayerID
}

// InspectorFor returns the inspector of round number n.
//
// Precondition: n >= 1.
func (g *Game) InspectorFor(n int) int64 {
	return g.participants[n%Seats].PlayerID
}

// RoleIn returns playerID's role in round n.
func (g *Game) RoleIn(playerID int64, n int) Role {
	switch playerID {
	case g.SmugglerFor(n):
		return RoleSmuggler
	case g.InspectorFor(n):
		return RoleInspector
	default:
		return RoleNone
	}
}

// AddRound appends r as the next round.
//
// Precondition: r.Number() == len(Rounds())+1 and the previous round is settled.
// Postcondition: r becomes CurrentRound, or an error wrapping gameerr.ErrState.
func (g *Game) AddRound(r *round.Round) error {
	if want := len(g.rounds) + 1; r.Number() != want {
		return gameerr.Statef("next round must be number %d, got %d", want, r.Number())
	}
	if cur, ok := g.CurrentRound(); ok && cur.Phase() != round.PhaseSettled {
		return gameerr.Statef("round %d is still %s", cur.Number(), cur.Phase())
	}
	g.rounds = append(g.rounds, r)
	return nil
}

// CurrentRound returns the most recent round.
func (g *Game) CurrentRound() (*round.Round, bool) {
	if len(g.rounds) == 0 {
		return nil, false
	}
	return g.rounds[len(g.rounds)-1], true
}

// RoundCount returns how many rounds have been started.
func (g *Game) RoundCount() int { return len(g.rounds) }

// ApplySettlement credits the deltas of r's settlement to the role holders.
//
// Precondition: r is settled and belongs to this game.
func (g *Game) ApplySettlement(r *round.Round) {
	s, ok := r.Settlement()
	if !ok {
		return
	}
	g.balances[r.Smuggle().SmugglerID()] += s.SmugglerDelta
	g.balances[r.Inspection().InspectorID()] += s.InspectorDelta
}

// Balances returns a copy of the per-player balances.
func (g *Game) Balances() map[int64]round.Money {
	out := make(map[int64]round.Money, len(g.balances))
	for k, v := range g.balances {
		out[k] = v
	}
	return out
}

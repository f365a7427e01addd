// Package match holds the game a room is running and the slot that tells
// whether a room has one.
package match

import "github.com/cory-johannsen/smuggle/internal/game/gameerr"

// Slot is a room's holder for "no active game" or "exactly one active game".
//
// A Slot is immutable. Rooms transition by swapping in a different *Slot, never by
// mutating one, so a reader holding a Slot never observes a half-made transition.
type Slot struct {
	game *Game
}

// emptySlot is shared by every room without a game.
var emptySlot = &Slot{}

// EmptySlot returns the shared empty slot.
//
// Postcondition: HasGame is false and CurrentGame reports nothing.
func EmptySlot() *Slot {
	return emptySlot
}

// NewActiveSlot returns a slot holding g.
//
// Precondition: g is non-nil.
// Postcondition: Returns a slot whose CurrentGame is exactly g, or an error wrapping
// gameerr.ErrArgument.
func NewActiveSlot(g *Game) (*Slot, error) {
	if g == nil {
		return nil, gameerr.Argumentf("active slot requires a game")
	}
	return &Slot{game: g}, nil
}

// HasGame reports whether the slot holds a game.
func (s *Slot) HasGame() bool {
	return s.game != nil
}

// CurrentGame returns the held game.
//
// Postcondition: Returns (game, true) for an active slot, or (nil, false).
func (s *Slot) CurrentGame() (*Game, bool) {
	if s.game == nil {
		return nil, false
	}
	return s.game, true
}

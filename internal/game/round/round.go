package round

import (
	"fmt"

	"github.com/cory-johannsen/smuggle/internal/game/gameerr"
)

// Phase is the derived progress of a Round.
type Phase int

const (
	PhaseAwaitingDeclaration Phase = iota
	PhaseAwaitingDecision
	PhaseResolvable // both facts established, not yet settled
	PhaseSettled
)

// String returns the wire name of the Phase.
func (p Phase) String() string {
	switch p {
	case PhaseAwaitingDeclaration:
		return "awaiting_declaration"
	case PhaseAwaitingDecision:
		return "awaiting_decision"
	case PhaseResolvable:
		return "resolvable"
	case PhaseSettled:
		return "settled"
	default:
		return "unknown"
	}
}

// Round is one declaration/decision/settlement cycle of a game.
type Round struct {
	id         uint64
	number     int
	smuggle    SmuggleState
	inspection InspectionState
	settlement *Settlement
}

// New creates round number for the two role holders.
//
// Precondition: number >= 1; smugglerID and inspectorID are positive and distinct.
// Postcondition: Returns a Round with both sub-states initial, or an error wrapping
// gameerr.ErrArgument.
func New(id uint64, number int, smugglerID, inspectorID int64) (*Round, error) {
	if number < 1 {
		return nil, gameerr.Argumentf("round number must be >= 1, got %d", number)
	}
	if smugglerID == inspectorID {
		return nil, gameerr.Argumentf("smuggler and inspector must differ, both are %d", smugglerID)
	}
	smuggle, err := InitialSmuggle(smugglerID)
	if err != nil {
		return nil, err
	}
	inspection, err := InitialInspection(inspectorID)
	if err != nil {
		return nil, err
	}
	return &Round{id: id, number: number, smuggle: smuggle, inspection: inspection}, nil
}

// ID returns the round identifier.
func (r *Round) ID() uint64 { return r.id }

// Number returns the 1-based position of the round in its game.
func (r *Round) Number() int { return r.number }

// Smuggle returns the smuggler's sub-state.
func (r *Round) Smuggle() SmuggleState { return r.smuggle }

// Inspection returns the inspector's sub-state.
func (r *Round) Inspection() InspectionState { return r.inspection }

// Settlement returns the settlement once the round is settled.
func (r *Round) Settlement() (Settlement, bool) {
	if r.settlement == nil {
		return Settlement{}, false
	}
	return *r.settlement, true
}

// Phase derives the round's progress from its sub-states.
func (r *Round) Phase() Phase {
	switch {
	case r.settlement != nil:
		return PhaseSettled
	case !r.smuggle.Declared():
		return PhaseAwaitingDeclaration
	case !r.inspection.Provided():
		return PhaseAwaitingDecision
	default:
		return PhaseResolvable
	}
}

// Resolvable reports whether both write-once facts are established and the round
// is not yet settled.
func (r *Round) Resolvable() bool { return r.Phase() == PhaseResolvable }

// Declare records the smuggler's declaration.
//
// Precondition: playerID is the round's smuggler.
// Postcondition: On error the round is unchanged.
func (r *Round) Declare(playerID int64, amount Money) error {
	if err := r.checkOpen(); err != nil {
		return err
	}
	if playerID != r.smuggle.SmugglerID() {
		return gameerr.Argumentf("player %d is not the smuggler of round %d", playerID, r.number)
	}
	next, err := r.smuggle.Declare(amount)
	if err != nil {
		return err
	}
	r.smuggle = next
	return nil
}

// DecidePass records a PASS decision by the inspector.
//
// Postcondition: On error the round is unchanged.
func (r *Round) DecidePass(playerID int64) error {
	if err := r.checkOpen(); err != nil {
		return err
	}
	next, err := r.inspection.DecidePass(playerID)
	if err != nil {
		return err
	}
	r.inspection = next
	return nil
}

// DecideInspection records an INSPECTION decision with threshold.
//
// Postcondition: On error the round is unchanged.
func (r *Round) DecideInspection(playerID int64, threshold Money) error {
	if err := r.checkOpen(); err != nil {
		return err
	}
	next, err := r.inspection.DecideInspection(playerID, threshold)
	if err != nil {
		return err
	}
	r.inspection = next
	return nil
}

// ForceDefaults fills whichever fact is still missing: an undeclared smuggler
// declares zero and an undecided inspector passes.
//
// Postcondition: Returns which facts were forced; the round is Resolvable unless
// it was already settled.
func (r *Round) ForceDefaults() (declaration, decision bool) {
	if r.settlement != nil {
		return false, false
	}
	if !r.smuggle.Declared() {
		r.smuggle, _ = r.smuggle.Declare(0)
		declaration = true
	}
	if !r.inspection.Provided() {
		r.inspection, _ = r.inspection.DecidePass(r.inspection.InspectorID())
		decision = true
	}
	return declaration, decision
}

// Settle computes the payoff with p and freezes the round.
//
// Precondition: the round is Resolvable.
// Postcondition: The policy is invoked at most once per round; a second call wraps
// gameerr.ErrState and leaves the stored settlement unchanged.
func (r *Round) Settle(p Policy) (Settlement, error) {
	if err := r.checkOpen(); err != nil {
		return Settlement{}, err
	}
	if !r.Resolvable() {
		return Settlement{}, gameerr.Statef("round %d is %s, not resolvable", r.number, r.Phase())
	}
	s, err := p.Settle(Input{
		Amount:    r.smuggle.Amount(),
		Decision:  r.inspection.Decision(),
		Threshold: r.inspection.Threshold(),
	})
	if err != nil {
		return Settlement{}, fmt.Errorf("settling round %d: %w", r.number, err)
	}
	r.settlement = &s
	return s, nil
}

// SettleVoid freezes the round without payoff regardless of missing facts.
//
// Postcondition: Returns the void settlement, or an error wrapping gameerr.ErrState
// when already settled.
func (r *Round) SettleVoid() (Settlement, error) {
	if err := r.checkOpen(); err != nil {
		return Settlement{}, err
	}
	s := Settlement{Outcome: OutcomeVoid, Void: true}
	r.settlement = &s
	return s, nil
}

func (r *Round) checkOpen() error {
	if r.settlement != nil {
		return gameerr.Statef("round %d is already settled", r.number)
	}
	return nil
}

// Package round implements the per-round state machine of a smuggling game:
// one declaration by the smuggler, one decision by the inspector, then exactly
// one settlement.
//
// All types here are confined to the goroutine of the room that owns them and
// are not safe for concurrent use.
package round

import (
	"github.com/cory-johannsen/smuggle/internal/game/gameerr"
)

// Money is a monetary value in minor units.
type Money int64

// MaxAmount is the largest declaration or threshold a room accepts. Settlement
// sums of two such values stay below 2^53, so they survive a float64 round trip.
const MaxAmount Money = 1 << 51

// Decision is the inspector's choice for a round.
// The zero value (DecisionNone) means no decision has been provided.
type Decision int

const (
	DecisionNone       Decision = iota // zero value; nothing decided yet
	DecisionPass                       // let the shipment through
	DecisionInspection                 // inspect against a threshold
)

// String returns the wire name of the Decision.
// Postcondition: returns "none", "pass", "inspection", or "unknown".
func (d Decision) String() string {
	switch d {
	case DecisionNone:
		return "none"
	case DecisionPass:
		return "pass"
	case DecisionInspection:
		return "inspection"
	default:
		return "unknown"
	}
}

// SmuggleState is the smuggler's half of a round.
//
// Invariant: declared flips from false to true at most once; amount is only
// meaningful once declared.
type SmuggleState struct {
	smugglerID int64
	amount     Money
	declared   bool
}

// InitialSmuggle returns an undeclared state for smugglerID with amount zero.
//
// Precondition: smugglerID > 0.
// Postcondition: Returns the state or an error wrapping gameerr.ErrArgument.
func InitialSmuggle(smugglerID int64) (SmuggleState, error) {
	if smugglerID <= 0 {
		return SmuggleState{}, gameerr.Argumentf("smuggler id must be positive, got %d", smugglerID)
	}
	return SmuggleState{smugglerID: smugglerID}, nil
}

// SmugglerID returns the player holding the smuggler role.
func (s SmuggleState) SmugglerID() int64 { return s.smugglerID }

// Amount returns the declared amount, zero until declared.
func (s SmuggleState) Amount() Money { return s.amount }

// Declared reports whether the declaration has been made.
func (s SmuggleState) Declared() bool { return s.declared }

// Declare returns a copy of s holding amount.
//
// Precondition: amount >= 0.
// Postcondition: On success the returned state is declared with amount. On error
// the returned state equals s: a negative amount wraps gameerr.ErrArgument, a second
// declaration wraps gameerr.ErrState.
func (s SmuggleState) Declare(amount Money) (SmuggleState, error) {
	if s.declared {
		return s, gameerr.Statef("smuggler %d already declared %d", s.smugglerID, s.amount)
	}
	if amount < 0 {
		return s, gameerr.Argumentf("declared amount must not be negative, got %d", amount)
	}
	s.amount = amount
	s.declared = true
	return s, nil
}

// InspectionState is the inspector's half of a round.
//
// Invariant: provided flips from false to true at most once; threshold is only
// meaningful when decision is DecisionInspection.
type InspectionState struct {
	inspectorID int64
	decision    Decision
	threshold   Money
	provided    bool
}

// InitialInspection returns an undecided state for inspectorID.
//
// Precondition: inspectorID > 0.
// Postcondition: decision is DecisionNone, threshold zero, not provided.
func InitialInspection(inspectorID int64) (InspectionState, error) {
	if inspectorID <= 0 {
		return InspectionState{}, gameerr.Argumentf("inspector id must be positive, got %d", inspectorID)
	}
	return InspectionState{inspectorID: inspectorID}, nil
}

// InspectorID returns the player holding the inspector role.
func (s InspectionState) InspectorID() int64 { return s.inspectorID }

// Decision returns the current decision.
func (s InspectionState) Decision() Decision { return s.decision }

// Threshold returns the inspection threshold; zero unless the decision is DecisionInspection.
func (s InspectionState) Threshold() Money { return s.threshold }

// Provided reports whether a decision has been made.
func (s InspectionState) Provided() bool { return s.provided }

// DecidePass returns a copy of s with decision PASS.
//
// Precondition: inspectorID equals the state's inspector.
// Postcondition: On error the returned state equals s.
func (s InspectionState) DecidePass(inspectorID int64) (InspectionState, error) {
	if err := s.checkDecidable(inspectorID); err != nil {
		return s, err
	}
	s.decision = DecisionPass
	s.threshold = 0
	s.provided = true
	return s, nil
}

// DecideInspection returns a copy of s with decision INSPECTION at threshold.
//
// Precondition: inspectorID equals the state's inspector; threshold >= 0.
// Postcondition: On error the returned state equals s.
func (s InspectionState) DecideInspection(inspectorID int64, threshold Money) (InspectionState, error) {
	if err := s.checkDecidable(inspectorID); err != nil {
		return s, err
	}
	if threshold < 0 {
		return s, gameerr.Argumentf("inspection threshold must not be negative, got %d", threshold)
	}
	s.decision = DecisionInspection
	s.threshold = threshold
	s.provided = true
	return s, nil
}

func (s InspectionState) checkDecidable(inspectorID int64) error {
	if s.provided {
		return gameerr.Statef("inspector %d already decided %s", s.inspectorID, s.decision)
	}
	if inspectorID != s.inspectorID {
		return gameerr.Argumentf("player %d is not the inspector of this round", inspectorID)
	}
	return nil
}

package round

// Input is everything a settlement policy may depend on.
type Input struct {
	Amount    Money
	Decision  Decision
	Threshold Money
}

// Settlement is the outcome of a settled round.
type Settlement struct {
	// SmugglerDelta is added to the smuggler's balance.
	SmugglerDelta Money
	// InspectorDelta is added to the inspector's balance.
	InspectorDelta Money
	// Outcome is a short label for clients, e.g. "passed" or "caught".
	Outcome string
	// Void is true when the round was abandoned on timeout without a payoff.
	Void bool
}

// OutcomeVoid labels a round settled without payoff.
const OutcomeVoid = "void"

// Policy computes the payoff of a round.
//
// Implementations must be deterministic in their Input.
type Policy interface {
	Settle(in Input) (Settlement, error)
}

// PolicyFunc adapts a function into a Policy.
type PolicyFunc func(in Input) (Settlement, error)

// Settle calls f.
func (f PolicyFunc) Settle(in Input) (Settlement, error) { return f(in) }

package scripting

import (
	"fmt"
	"math"
	"sync"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"

	"github.com/cory-johannsen/smuggle/internal/game/round"
)

// settleFunc is the Lua global a settlement script must define:
//
//	settle(amount, decision, threshold) -> smuggler_delta, inspector_delta, outcome
//
// decision is one of "pass" or "inspection".
const settleFunc = "settle"

// SettlementScript is a round.Policy backed by a Lua script.
//
// Calls are serialized; the script sees only its arguments so results are
// deterministic as long as the script keeps no global state between calls.
type SettlementScript struct {
	mu     sync.Mutex
	L      *lua.LState
	name   string
	limit  int
	logger *zap.Logger
}

// LoadSettlementScript loads the script file at path.
//
// Precondition: instLimit >= 0; 0 uses DefaultInstructionLimit.
// Postcondition: Returns a ready policy or an error when the file fails to run or
// does not define settle.
func LoadSettlementScript(path string, instLimit int, logger *zap.Logger) (*SettlementScript, error) {
	return load(path, instLimit, logger, func(L *lua.LState) error { return L.DoFile(path) })
}

// LoadSettlementSource loads a script from source; name labels errors and logs.
func LoadSettlementSource(name, src string, instLimit int, logger *zap.Logger) (*SettlementScript, error) {
	return load(name, instLimit, logger, func(L *lua.LState) error { return L.DoString(src) })
}

func load(name string, instLimit int, logger *zap.Logger, exec func(*lua.LState) error) (*SettlementScript, error) {
	L := NewSandboxedState()
	if err := withBudget(L, instLimit, func() error { return exec(L) }); err != nil {
		L.Close()
		return nil, fmt.Errorf("scripting: loading %q: %w", name, err)
	}
	if fn := L.GetGlobal(settleFunc); fn.Type() != lua.LTFunction {
		L.Close()
		return nil, fmt.Errorf("scripting: %q does not define function %s", name, settleFunc)
	}
	logger.Info("settlement script loaded", zap.String("script", name))
	return &SettlementScript{L: L, name: name, limit: instLimit, logger: logger}, nil
}

// Settle implements round.Policy.
//
// Postcondition: Returns the script's deltas and outcome, or an error when the
// script fails, exceeds its instruction budget, or returns malformed values.
func (s *SettlementScript) Settle(in round.Input) (round.Settlement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.L == nil {
		return round.Settlement{}, fmt.Errorf("scripting: %q is closed", s.name)
	}
	err := withBudget(s.L, s.limit, func() error {
		return s.L.CallByParam(lua.P{
			Fn:      s.L.GetGlobal(settleFunc),
			NRet:    3,
			Protect: true,
		}, lua.LNumber(in.Amount), lua.LString(in.Decision.String()), lua.LNumber(in.Threshold))
	})
	if err != nil {
		s.logger.Warn("settlement script failed", zap.String("script", s.name), zap.Error(err))
		return round.Settlement{}, fmt.Errorf("scripting: %s: %w", settleFunc, err)
	}
	outcome := s.L.Get(-1)
	inspector := s.L.Get(-2)
	smuggler := s.L.Get(-3)
	s.L.Pop(3)

	smugglerDelta, err := toMoney("smuggler_delta", smuggler)
	if err != nil {
		return round.Settlement{}, err
	}
	inspectorDelta, err := toMoney("inspector_delta", inspector)
	if err != nil {
		return round.Settlement{}, err
	}
	label, ok := outcome.(lua.LString)
	if !ok || label == "" {
		return round.Settlement{}, fmt.Errorf("scripting: outcome must be a non-empty string, got %s", outcome.Type())
	}
	return round.Settlement{
		SmugglerDelta:  smugglerDelta,
		InspectorDelta: inspectorDelta,
		Outcome:        string(label),
	}, nil
}

// Close releases the Lua state. Later Settle calls fail.
func (s *SettlementScript) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.L != nil {
		s.L.Close()
		s.L = nil
	}
}

func toMoney(field string, v lua.LValue) (round.Money, error) {
	n, ok := v.(lua.LNumber)
	if !ok {
		return 0, fmt.Errorf("scripting: %s must be a number, got %s", field, v.Type())
	}
	f := float64(n)
	if f != math.Trunc(f) || math.IsInf(f, 0) || math.Abs(f) > 1<<53 {
		return 0, fmt.Errorf("scripting: %s must be a whole number, got %v", field, f)
	}
	return round.Money(f), nil
}

var _ round.Policy = (*SettlementScript)(nil)

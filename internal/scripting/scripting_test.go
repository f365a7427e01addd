package scripting_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap/zaptest"
	"pgregory.net/rapid"

	"github.com/cory-johannsen/smuggle/internal/game/round"
	"github.com/cory-johannsen/smuggle/internal/scripting"
)

const shippedScript = "../../content/scripts/settlement.lua"

func TestNewSandboxedState_UnsafeLibsNil(t *testing.T) {
	L := scripting.NewSandboxedState()
	defer L.Close()
	for _, name := range []string{"os", "io", "debug", "dofile", "loadfile", "load", "collectgarbage", "require"} {
		assert.Equal(t, lua.LNil, L.GetGlobal(name), "expected %s to be nil", name)
	}
}

func TestNewSandboxedState_SafeLibsAvailable(t *testing.T) {
	L := scripting.NewSandboxedState()
	defer L.Close()
	assert.NoError(t, L.DoString(`
		assert(math.floor(7 / 2) == 3, "math.floor failed")
		assert(string.upper("pass") == "PASS", "string.upper failed")
	`))
}

func TestLoadSettlementScript_ShippedRule(t *testing.T) {
	s, err := scripting.LoadSettlementScript(shippedScript, 0, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer s.Close()

	cases := []struct {
		in   round.Input
		want round.Settlement
	}{
		{round.Input{Amount: 50, Decision: round.DecisionPass}, round.Settlement{SmugglerDelta: 50, Outcome: "passed"}},
		{round.Input{Amount: 50, Decision: round.DecisionInspection, Threshold: 20}, round.Settlement{SmugglerDelta: -50, InspectorDelta: 50, Outcome: "caught"}},
		{round.Input{Amount: 10, Decision: round.DecisionInspection, Threshold: 21}, round.Settlement{SmugglerDelta: 20, InspectorDelta: -10, Outcome: "cleared"}},
		{round.Input{Amount: 0, Decision: round.DecisionPass}, round.Settlement{Outcome: "passed"}},
	}
	for _, tc := range cases {
		got, err := s.Settle(tc.in)
		require.NoError(t, err)
		assert.Equal(t, tc.want, got, "input %+v", tc.in)
	}
}

func TestLoadSettlementScript_ExactAtAmountCeiling(t *testing.T) {
	s, err := scripting.LoadSettlementScript(shippedScript, 0, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer s.Close()

	got, err := s.Settle(round.Input{Amount: round.MaxAmount, Decision: round.DecisionInspection, Threshold: round.MaxAmount})
	require.NoError(t, err)
	assert.Equal(t, "cleared", got.Outcome)
	assert.Equal(t, round.MaxAmount+round.MaxAmount/2, got.SmugglerDelta)
	assert.Equal(t, -round.MaxAmount/2, got.InspectorDelta)
}

func TestLoadSettlementSource_MissingSettle(t *testing.T) {
	_, err := scripting.LoadSettlementSource("empty", `local x = 1`, 0, zaptest.NewLogger(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not define function settle")
}

func TestLoadSettlementSource_SyntaxError(t *testing.T) {
	_, err := scripting.LoadSettlementSource("broken", `function settle(`, 0, zaptest.NewLogger(t))
	assert.Error(t, err)
}

func TestLoadSettlementScript_MissingFile(t *testing.T) {
	_, err := scripting.LoadSettlementScript(filepath.Join(t.TempDir(), "nope.lua"), 0, zaptest.NewLogger(t))
	assert.Error(t, err)
}

func TestSettle_InstructionLimitPerCall(t *testing.T) {
	src := `function settle(a, d, t)
		if a > 0 then while true do end end
		return 0, 0, "ok"
	end`
	s, err := scripting.LoadSettlementSource("spin", src, 1000, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer s.Close()

	_, err = s.Settle(round.Input{Amount: 1, Decision: round.DecisionPass})
	assert.Error(t, err)

	got, err := s.Settle(round.Input{Amount: 0, Decision: round.DecisionPass})
	require.NoError(t, err, "the budget resets between calls")
	assert.Equal(t, "ok", got.Outcome)
}

func TestSettle_RejectsMalformedResults(t *testing.T) {
	logger := zaptest.NewLogger(t)
	for name, src := range map[string]string{
		"fraction":  `function settle() return 1.5, 0, "x" end`,
		"string":    `function settle() return "a", 0, "x" end`,
		"no-label":  `function settle() return 1, 0, "" end`,
		"nil-label": `function settle() return 1, 0 end`,
		"raises":    `function settle() error("nope") end`,
	} {
		s, err := scripting.LoadSettlementSource(name, src, 0, logger)
		require.NoError(t, err, name)
		_, err = s.Settle(round.Input{Decision: round.DecisionPass})
		assert.Error(t, err, name)
		s.Close()
	}
}

func TestSettle_AfterClose(t *testing.T) {
	s, err := scripting.LoadSettlementSource("c", `function settle() return 0, 0, "x" end`, 0, zaptest.NewLogger(t))
	require.NoError(t, err)
	s.Close()
	s.Close()
	_, err = s.Settle(round.Input{})
	assert.Error(t, err)
}

func TestSettle_WiresIntoRound(t *testing.T) {
	s, err := scripting.LoadSettlementScript(shippedScript, 0, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer s.Close()

	r, err := round.New(1, 1, 7, 9)
	require.NoError(t, err)
	require.NoError(t, r.Declare(7, 30))
	require.NoError(t, r.DecideInspection(9, 10))
	got, err := r.Settle(s)
	require.NoError(t, err)
	assert.Equal(t, "caught", got.Outcome)
}

// Property: the shipped rule is deterministic and zero-sum on catches and clears.
func TestProperty_ShippedRuleDeterministic(t *testing.T) {
	s, err := scripting.LoadSettlementScript(shippedScript, 0, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer s.Close()

	rapid.Check(t, func(t *rapid.T) {
		in := round.Input{
			Amount:    round.Money(rapid.Int64Range(0, 1_000_000).Draw(t, "amount")),
			Decision:  rapid.SampledFrom([]round.Decision{round.DecisionPass, round.DecisionInspection}).Draw(t, "decision"),
			Threshold: round.Money(rapid.Int64Range(0, 1_000_000).Draw(t, "threshold")),
		}
		if in.Decision == round.DecisionPass {
			in.Threshold = 0
		}
		first, err := s.Settle(in)
		if err != nil {
			t.Fatalf("settle %+v: %v", in, err)
		}
		second, err := s.Settle(in)
		if err != nil {
			t.Fatalf("settle %+v: %v", in, err)
		}
		if first != second {
			t.Fatalf("non-deterministic: %+v vs %+v", first, second)
		}
		if in.Decision == round.DecisionInspection && first.Outcome == "caught" && first.SmugglerDelta+first.InspectorDelta != 0 {
			t.Fatalf("catch is not zero-sum: %+v", first)
		}
	})
}

func TestMain(m *testing.M) {
	if _, err := os.Stat(shippedScript); err != nil {
		panic("shipped settlement script missing: " + err.Error())
	}
	os.Exit(m.Run())
}

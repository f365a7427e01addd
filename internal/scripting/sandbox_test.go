package scripting

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestWithBudget_InstructionLimitExceeded(t *testing.T) {
	L := NewSandboxedState()
	defer L.Close()
	err := withBudget(L, 10, func() error { return L.DoString(`while true do end`) })
	assert.Error(t, err, "expected instruction limit error")
}

func TestWithBudget_DefaultLimitRunsNormalScript(t *testing.T) {
	L := NewSandboxedState()
	defer L.Close()
	assert.NoError(t, withBudget(L, 0, func() error { return L.DoString(`local x = 1 + 1`) }))
}

func TestWithBudget_ContextRemovedAfterCall(t *testing.T) {
	L := NewSandboxedState()
	defer L.Close()
	require.NoError(t, withBudget(L, 1000, func() error { return nil }))
	assert.Nil(t, L.Context())
}

func TestProperty_InstructionLimitAlwaysErrors(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		limit := rapid.IntRange(1, 50).Draw(t, "limit")
		L := NewSandboxedState()
		defer L.Close()
		err := withBudget(L, limit, func() error { return L.DoString(`while true do end`) })
		if err == nil {
			t.Fatalf("expected error with limit=%d but got nil", limit)
		}
	})
}

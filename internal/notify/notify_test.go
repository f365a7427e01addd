package notify

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zaptest"
)

func TestSet_NotifyInOrder(t *testing.T) {
	s := NewSet[int]("test", zaptest.NewLogger(t))
	var got []string
	s.Subscribe(func(v int) error { got = append(got, "a"); return nil })
	s.Subscribe(func(v int) error { got = append(got, "b"); return nil })
	assert.Equal(t, 0, s.Notify(1))
	assert.Equal(t, []string{"a", "b"}, got)
}

func TestSet_FailureIsolation(t *testing.T) {
	s := NewSet[string]("test", zaptest.NewLogger(t))
	var reached []string
	s.Subscribe(func(v string) error { return errors.New("first fails") })
	s.Subscribe(func(v string) error { panic("second panics") })
	s.Subscribe(func(v string) error { reached = append(reached, v); return nil })

	assert.NotPanics(t, func() {
		assert.Equal(t, 2, s.Notify("blocked"))
	})
	assert.Equal(t, []string{"blocked"}, reached)
}

func TestSubscription_Cancel(t *testing.T) {
	s := NewSet[int]("test", zaptest.NewLogger(t))
	calls := 0
	sub := s.Subscribe(func(int) error { calls++; return nil })
	s.Notify(1)
	sub.Cancel()
	sub.Cancel()
	s.Notify(2)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 0, s.Len())
}

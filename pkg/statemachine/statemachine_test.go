package statemachine_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maxfitai/billing/pkg/statemachine"
)

type state string
type event string

const (
	free state = "free"
	paid state = "paid"

	activate event = "activate"
	renew    event = "renew"
	cancel   event = "cancel"
)

type account struct {
	credits int
	vip     bool
	log     []string
}

type (
	opt  = statemachine.Option[state, event, *account]
	topt = statemachine.TransitionOption[state, event, *account]
)

func addCredits(n int) topt {
	return statemachine.WithAction(func(_ context.Context, _, _ state, _ event, a *account) error {
		a.credits += n
		return nil
	})
}

func newMachine(extra ...opt) *statemachine.Machine[state, event, *account] {
	isVIP := statemachine.WithGuard(func(_ context.Context, _ state, _ event, a *account) bool { return a.vip })
	opts := []opt{
		statemachine.WithFromAny([]state{free, paid}, paid, activate, addCredits(5)),
		statemachine.WithTransition(paid, paid, renew, isVIP, addCredits(20)),
		statemachine.WithTransition(paid, paid, renew, addCredits(5)),
		statemachine.WithTransition[state, event, *account](paid, free, cancel),
	}
	return statemachine.New(append(opts, extra...)...)
}

func TestFire(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("applies actions and returns target", func(t *testing.T) {
		t.Parallel()
		m := newMachine()
		a := &account{}

		next, err := m.Fire(ctx, free, activate, a)
		require.NoError(t, err)
		assert.Equal(t, paid, next)
		assert.Equal(t, 5, a.credits)

		next, err = m.Fire(ctx, next, activate, a)
		require.NoError(t, err)
		assert.Equal(t, paid, next)
		assert.Equal(t, 10, a.credits)
	})

	t.Run("first passing guard wins", func(t *testing.T) {
		t.Parallel()
		m := newMachine()

		regular := &account{}
		_, err := m.Fire(ctx, paid, renew, regular)
		require.NoError(t, err)
		assert.Equal(t, 5, regular.credits)

		vip := &account{vip: true}
		_, err = m.Fire(ctx, paid, renew, vip)
		require.NoError(t, err)
		assert.Equal(t, 20, vip.credits)
	})

	t.Run("missing row", func(t *testing.T) {
		t.Parallel()
		m := newMachine()
		next, err := m.Fire(ctx, free, renew, &account{})
		assert.ErrorIs(t, err, statemachine.ErrNoTransition)
		assert.Equal(t, free, next)

		var nt *statemachine.NoTransitionError
		require.ErrorAs(t, err, &nt)
		assert.Equal(t, free, nt.From)
	})

	t.Run("guards reject", func(t *testing.T) {
		t.Parallel()
		never := statemachine.WithGuard(func(context.Context, state, event, *account) bool { return false })
		m := statemachine.New(statemachine.WithTransition(free, paid, activate, never))

		_, err := m.Fire(ctx, free, activate, &account{})
		assert.ErrorIs(t, err, statemachine.ErrRejected)
		assert.False(t, m.CanFire(ctx, free, activate, &account{}))
	})

	t.Run("action error aborts and keeps source state", func(t *testing.T) {
		t.Parallel()
		boom := errors.New("boom")
		m := statemachine.New(statemachine.WithTransition(free, paid, activate,
			statemachine.WithAction(func(_ context.Context, _, _ state, _ event, a *account) error {
				a.log = append(a.log, "first")
				return nil
			}),
			statemachine.WithAction(func(context.Context, state, state, event, *account) error { return boom }),
			statemachine.WithAction(func(_ context.Context, _, _ state, _ event, a *account) error {
				a.log = append(a.log, "never")
				return nil
			}),
		))

		a := &account{}
		next, err := m.Fire(ctx, free, activate, a)
		require.Error(t, err)
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, free, next)
		assert.Equal(t, []string{"first"}, a.log)
	})
}

func TestCanFire(t *testing.T) {
	t.Parallel()
	m := newMachine()
	ctx := context.Background()

	assert.True(t, m.CanFire(ctx, paid, cancel, &account{}))
	assert.False(t, m.CanFire(ctx, free, cancel, &account{}))
}

func TestNilGuardPanics(t *testing.T) {
	t.Parallel()
	assert.Panics(t, func() {
		statemachine.WithGuard[state, event, *account](nil)
	})
	assert.Panics(t, func() {
		statemachine.WithAction[state, event, *account](nil)
	})
}

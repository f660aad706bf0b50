package statemachine

import "context"

// Guard reports whether a transition may run for the given input.
type Guard[S, E comparable, D any] func(ctx context.Context, from S, event E, data D) bool

// Action runs while a transition is applied. A non-nil error aborts it and
// the caller must discard any changes the action made to data.
type Action[S, E comparable, D any] func(ctx context.Context, from, to S, event E, data D) error

// Transition is one row of the table.
type Transition[S, E comparable, D any] struct {
	From    S
	To      S
	Event   E
	Guards  []Guard[S, E, D]
	Actions []Action[S, E, D]
}

type key[S, E comparable] struct {
	from  S
	event E
}

// Machine is an immutable transition table. It holds no current state:
// callers pass the state they derived from their own records, so one
// Machine can serve every user concurrently.
type Machine[S, E comparable, D any] struct {
	rows map[key[S, E]][]Transition[S, E, D]
}

// Fire picks the first transition from `from` on `event` whose guards pass,
// runs its actions in order and returns the target state.
func (m *Machine[S, E, D]) Fire(ctx context.Context, from S, event E, data D) (S, error) {
	t, err := m.match(ctx, from, event, data)
	if err != nil {
		return from, err
	}

	for _, action := range t.Actions {
		if err := action(ctx, from, t.To, event, data); err != nil {
			return from, &ActionError{From: from, Event: event, Err: err}
		}
	}
	return t.To, nil
}

// CanFire reports whether Fire would find a transition, without running actions.
func (m *Machine[S, E, D]) CanFire(ctx context.Context, from S, event E, data D) bool {
	_, err := m.match(ctx, from, event, data)
	return err == nil
}

func (m *Machine[S, E, D]) match(ctx context.Context, from S, event E, data D) (*Transition[S, E, D], error) {
	rows, ok := m.rows[key[S, E]{from, event}]
	if !ok || len(rows) == 0 {
		return nil, &NoTransitionError{From: from, Event: event}
	}

	for i := range rows {
		if guardsPass(ctx, rows[i].Guards, from, event, data) {
			return &rows[i], nil
		}
	}
	return nil, &RejectedError{From: from, Event: event}
}

func guardsPass[S, E comparable, D any](ctx context.Context, guards []Guard[S, E, D], from S, event E, data D) bool {
	for _, g := range guards {
		if !g(ctx, from, event, data) {
			return false
		}
	}
	return true
}

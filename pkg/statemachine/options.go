package statemachine

import "fmt"

// Option adds rows to a Machine under construction.
type Option[S, E comparable, D any] func(*Machine[S, E, D])

// TransitionOption configures a single row.
type TransitionOption[S, E comparable, D any] func(*Transition[S, E, D])

// New builds a Machine from the given rows.
func New[S, E comparable, D any](opts ...Option[S, E, D]) *Machine[S, E, D] {
	m := &Machine[S, E, D]{rows: make(map[key[S, E]][]Transition[S, E, D])}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// WithTransition adds a row. Several rows may share from and event; the
// first one whose guards pass wins, in declaration order.
func WithTransition[S, E comparable, D any](from, to S, event E, opts ...TransitionOption[S, E, D]) Option[S, E, D] {
	return func(m *Machine[S, E, D]) {
		t := Transition[S, E, D]{From: from, To: to, Event: event}
		for _, opt := range opts {
			opt(&t)
		}
		k := key[S, E]{from, event}
		m.rows[k] = append(m.rows[k], t)
	}
}

// WithFromAny adds the same row for each source state.
func WithFromAny[S, E comparable, D any](froms []S, to S, event E, opts ...TransitionOption[S, E, D]) Option[S, E, D] {
	return func(m *Machine[S, E, D]) {
		for _, from := range froms {
			WithTransition(from, to, event, opts...)(m)
		}
	}
}

// WithGuard adds a guard. Nil guards panic at build time.
func WithGuard[S, E comparable, D any](g Guard[S, E, D]) TransitionOption[S, E, D] {
	if g == nil {
		panic(fmt.Errorf("statemachine: nil guard"))
	}
	return func(t *Transition[S, E, D]) { t.Guards = append(t.Guards, g) }
}

// WithAction adds an action. Nil actions panic at build time.
func WithAction[S, E comparable, D any](a Action[S, E, D]) TransitionOption[S, E, D] {
	if a == nil {
		panic(fmt.Errorf("statemachine: nil action"))
	}
	return func(t *Transition[S, E, D]) { t.Actions = append(t.Actions, a) }
}

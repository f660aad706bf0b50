// Package statemachine provides a generic, immutable transition table.
//
// Unlike a classic state machine object it does not remember the current
// state. The billing reconciler derives the state (Free or ActivePaid) from
// the stored entitlement, fires an event with the entitlement draft as data,
// and persists the draft only when Fire succeeds. Guards select between rows
// sharing the same source state and event; actions mutate the data.
//
//	m := statemachine.New(
//		statemachine.WithTransition[State, Kind, *Draft](Free, Paid, Activated,
//			statemachine.WithAction(grant)),
//	)
//	next, err := m.Fire(ctx, Free, Activated, draft)
//
// Errors match ErrNoTransition and ErrRejected with errors.Is; action
// failures come back as *ActionError wrapping the original error.
package statemachine

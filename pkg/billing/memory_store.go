package billing

import (
	"context"
	"fmt"
	"sync"
)

// MemoryStore is an in-process Store for development and tests.
type MemoryStore struct {
	mu     sync.Mutex
	users  map[string]*Entitlement
	ledger map[string]LedgerRecord
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:  make(map[string]*Entitlement),
		ledger: make(map[string]LedgerRecord),
	}
}

// Insert adds a user record.
func (s *MemoryStore) Insert(_ context.Context, e *Entitlement) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[e.UserID]; ok {
		return fmt.Errorf("%w: %s", ErrUserExists, e.UserID)
	}
	s.users[e.UserID] = e.Clone()
	return nil
}

func (s *MemoryStore) FindByID(_ context.Context, userID string) (*Entitlement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.users[userID]
	if !ok {
		return nil, ErrUserNotFound
	}
	return e.Clone(), nil
}

func (s *MemoryStore) FindByProviderID(_ context.Context, field ProviderField, value string) (*Entitlement, error) {
	if value == "" {
		return nil, ErrUserNotFound
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.users {
		var got string
		switch field {
		case FieldStripeCustomerID:
			got = e.StripeCustomerID
		case FieldStripeSubscriptionID:
			got = e.StripeSubscriptionID
		case FieldPayPalSubscriptionID:
			got = e.PayPalSubscriptionID
		case FieldPayPalCustomerID:
			got = e.PayPalCustomerID
		default:
			return nil, fmt.Errorf("billing: unknown provider field %q", field)
		}
		if got == value {
			return e.Clone(), nil
		}
	}
	return nil, ErrUserNotFound
}

func (s *MemoryStore) Processed(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.ledger[key]
	return ok, nil
}

func (s *MemoryStore) Apply(_ context.Context, userID string, rec LedgerRecord, fn MutateFunc) (*Entitlement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.users[userID]
	if !ok {
		return nil, ErrUserNotFound
	}
	if rec.Key != "" {
		if _, done := s.ledger[rec.Key]; done {
			return current.Clone(), ErrDuplicateEvent
		}
	}

	draft := current.Clone()
	if err := fn(draft); err != nil {
		return nil, err
	}
	if err := s.checkUnique(draft); err != nil {
		return nil, err
	}

	s.users[userID] = draft
	if rec.Key != "" {
		s.ledger[rec.Key] = rec
	}
	return draft.Clone(), nil
}

// checkUnique mirrors the unique indexes on provider ids.
func (s *MemoryStore) checkUnique(e *Entitlement) error {
	for id, other := range s.users {
		if id == e.UserID {
			continue
		}
		switch {
		case e.StripeCustomerID != "" && other.StripeCustomerID == e.StripeCustomerID,
			e.StripeSubscriptionID != "" && other.StripeSubscriptionID == e.StripeSubscriptionID,
			e.PayPalSubscriptionID != "" && other.PayPalSubscriptionID == e.PayPalSubscriptionID:
			return fmt.Errorf("%w: user %s", ErrProviderIDConflict, other.UserID)
		}
	}
	return nil
}

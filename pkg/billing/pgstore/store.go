// Package pgstore is the PostgreSQL implementation of billing.Store.
//
// Entitlements live on the users table and every applied event is recorded
// in billing_processed_events inside the same transaction, so a ledger key
// is written exactly when its mutation commits.
package pgstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/maxfitai/billing/pkg/billing"
	"github.com/maxfitai/billing/pkg/pg"
)

// DB is the subset of *pgxpool.Pool the store needs.
type DB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store implements billing.Store on pgx.
type Store struct {
	db DB
}

var _ billing.Store = (*Store)(nil)

// New creates a Store. It panics on a nil db.
func New(db DB) *Store {
	if db == nil {
		panic("pgstore: db is required")
	}
	return &Store{db: db}
}

const selectColumns = `id, email, plan, max_ai_calls, ai_calls_used,
	stripe_customer_id, stripe_subscription_id, stripe_price_id,
	paypal_subscription_id, paypal_customer_id,
	subscription_status, cancel_at_period_end, current_period_end, updated_at`

// Insert creates a user record with the entitlement in e.
func (s *Store) Insert(ctx context.Context, e *billing.Entitlement) error {
	updatedAt := e.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}
	_, err := s.db.Exec(ctx, `
INSERT INTO users (id, email, plan, max_ai_calls, ai_calls_used,
	stripe_customer_id, stripe_subscription_id, stripe_price_id,
	paypal_subscription_id, paypal_customer_id,
	subscription_status, cancel_at_period_end, current_period_end, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $14)`,
		e.UserID,
		e.Email,
		string(e.Plan),
		e.MaxAICalls.StorageValue(),
		e.AICallsUsed,
		nullString(e.StripeCustomerID),
		nullString(e.StripeSubscriptionID),
		nullString(e.StripePriceID),
		nullString(e.PayPalSubscriptionID),
		nullString(e.PayPalCustomerID),
		nullString(e.SubscriptionStatus),
		e.CancelAtPeriodEnd,
		e.CurrentPeriodEnd,
		updatedAt,
	)
	if err != nil {
		if pg.IsDuplicateKeyError(err) {
			return fmt.Errorf("%w: %s", billing.ErrUserExists, e.UserID)
		}
		return fmt.Errorf("pgstore: insert user: %w", err)
	}
	return nil
}

func (s *Store) FindByID(ctx context.Context, userID string) (*billing.Entitlement, error) {
	row := s.db.QueryRow(ctx, `SELECT `+selectColumns+` FROM users WHERE id = $1`, userID)
	return scanEntitlement(row)
}

func (s *Store) FindByProviderID(ctx context.Context, field billing.ProviderField, value string) (*billing.Entitlement, error) {
	if value == "" {
		return nil, billing.ErrUserNotFound
	}
	column, err := columnFor(field)
	if err != nil {
		return nil, err
	}
	row := s.db.QueryRow(ctx,
		`SELECT `+selectColumns+` FROM users WHERE `+column+` = $1 ORDER BY updated_at DESC LIMIT 1`,
		value,
	)
	return scanEntitlement(row)
}

func (s *Store) Processed(ctx context.Context, key string) (bool, error) {
	var exists bool
	err := s.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM billing_processed_events WHERE key = $1)`, key,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("pgstore: check ledger: %w", err)
	}
	return exists, nil
}

// Apply locks the user row, claims the ledger key, mutates and writes back
// in one transaction.
func (s *Store) Apply(ctx context.Context, userID string, rec billing.LedgerRecord, fn billing.MutateFunc) (*billing.Entitlement, error) {
	var (
		result    *billing.Entitlement
		duplicate *billing.Entitlement
	)
	err := pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		current, err := scanEntitlement(tx.QueryRow(ctx,
			`SELECT `+selectColumns+` FROM users WHERE id = $1 FOR UPDATE`, userID,
		))
		if err != nil {
			return err
		}

		if rec.Key != "" {
			tag, err := tx.Exec(ctx, `
INSERT INTO billing_processed_events (key, provider, kind, event_id, subscription_id, user_id)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (key) DO NOTHING`,
				rec.Key, string(rec.Provider), string(rec.Kind), rec.EventID, rec.SubscriptionID, userID,
			)
			if err != nil {
				return fmt.Errorf("pgstore: record event: %w", err)
			}
			if tag.RowsAffected() == 0 {
				duplicate = current
				return billing.ErrDuplicateEvent
			}
		}

		draft := current.Clone()
		if err := fn(draft); err != nil {
			return err
		}
		if err := updateEntitlement(ctx, tx, draft); err != nil {
			return err
		}
		result = draft
		return nil
	})
	if errors.Is(err, billing.ErrDuplicateEvent) {
		return duplicate, err
	}
	if err != nil {
		return nil, err
	}
	return result, nil
}

func updateEntitlement(ctx context.Context, tx pgx.Tx, e *billing.Entitlement) error {
	updatedAt := e.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}
	_, err := tx.Exec(ctx, `
UPDATE users
SET plan = $2,
    max_ai_calls = $3,
    ai_calls_used = $4,
    stripe_customer_id = $5,
    stripe_subscription_id = $6,
    stripe_price_id = $7,
    paypal_subscription_id = $8,
    paypal_customer_id = $9,
    subscription_status = $10,
    cancel_at_period_end = $11,
    current_period_end = $12,
    updated_at = $13
WHERE id = $1`,
		e.UserID,
		string(e.Plan),
		e.MaxAICalls.StorageValue(),
		e.AICallsUsed,
		nullString(e.StripeCustomerID),
		nullString(e.StripeSubscriptionID),
		nullString(e.StripePriceID),
		nullString(e.PayPalSubscriptionID),
		nullString(e.PayPalCustomerID),
		nullString(e.SubscriptionStatus),
		e.CancelAtPeriodEnd,
		e.CurrentPeriodEnd,
		updatedAt,
	)
	return updateError(err)
}

// updateError maps a unique violation on a provider id to
// billing.ErrProviderIDConflict.
func updateError(err error) error {
	switch {
	case err == nil:
		return nil
	case pg.IsDuplicateKeyError(err):
		return errors.Join(billing.ErrProviderIDConflict, err)
	default:
		return fmt.Errorf("pgstore: update user: %w", err)
	}
}

func scanEntitlement(row pgx.Row) (*billing.Entitlement, error) {
	var (
		e           billing.Entitlement
		plan        string
		maxCalls    int64
		stripeCust  *string
		stripeSub   *string
		stripePrice *string
		paypalSub   *string
		paypalPayer *string
		status      *string
		periodEnd   *time.Time
	)
	err := row.Scan(
		&e.UserID,
		&e.Email,
		&plan,
		&maxCalls,
		&e.AICallsUsed,
		&stripeCust,
		&stripeSub,
		&stripePrice,
		&paypalSub,
		&paypalPayer,
		&status,
		&e.CancelAtPeriodEnd,
		&periodEnd,
		&e.UpdatedAt,
	)
	if err != nil {
		if pg.IsNotFoundError(err) {
			return nil, billing.ErrUserNotFound
		}
		return nil, fmt.Errorf("pgstore: scan user: %w", err)
	}

	e.Plan = billing.PlanTier(plan)
	e.MaxAICalls = billing.QuotaFromStorage(maxCalls)
	e.StripeCustomerID = deref(stripeCust)
	e.StripeSubscriptionID = deref(stripeSub)
	e.StripePriceID = deref(stripePrice)
	e.PayPalSubscriptionID = deref(paypalSub)
	e.PayPalCustomerID = deref(paypalPayer)
	e.SubscriptionStatus = deref(status)
	if periodEnd != nil {
		t := periodEnd.UTC()
		e.CurrentPeriodEnd = &t
	}
	e.UpdatedAt = e.UpdatedAt.UTC()
	return &e, nil
}

func columnFor(field billing.ProviderField) (string, error) {
	switch field {
	case billing.FieldStripeCustomerID,
		billing.FieldStripeSubscriptionID,
		billing.FieldPayPalSubscriptionID,
		billing.FieldPayPalCustomerID:
		return string(field), nil
	}
	return "", fmt.Errorf("pgstore: unknown provider field %q", field)
}

// nullString maps "" to NULL so the partial unique indexes ignore unset ids.
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

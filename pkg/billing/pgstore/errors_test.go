package pgstore

import (
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"

	"github.com/maxfitai/billing/pkg/billing"
)

func TestUpdateError(t *testing.T) {
	t.Parallel()

	assert.NoError(t, updateError(nil))

	dup := updateError(&pgconn.PgError{Code: "23505", ConstraintName: "users_paypal_subscription_id_idx"})
	assert.ErrorIs(t, dup, billing.ErrProviderIDConflict)
	assert.Equal(t, billing.CodeProviderIDConflict, billing.ErrorCode(dup))
	assert.True(t, billing.IsSoft(dup))

	other := updateError(errors.New("connection reset"))
	assert.NotErrorIs(t, other, billing.ErrProviderIDConflict)
	assert.Equal(t, billing.CodeInternal, billing.ErrorCode(other))
}

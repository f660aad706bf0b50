package paypal_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maxfitai/billing/pkg/paypal"
	"github.com/maxfitai/billing/pkg/paypal/paypaltest"
)

func TestConfig_APIBaseURL(t *testing.T) {
	t.Parallel()

	assert.Equal(t, paypal.SandboxBaseURL, paypal.Config{}.APIBaseURL())
	assert.Equal(t, paypal.SandboxBaseURL, paypal.Config{Environment: "sandbox"}.APIBaseURL())
	assert.Equal(t, paypal.LiveBaseURL, paypal.Config{Environment: "production"}.APIBaseURL())
	assert.Equal(t, paypal.LiveBaseURL, paypal.Config{Environment: "Live"}.APIBaseURL())
	assert.Equal(t, "http://localhost:9999", paypal.Config{BaseURL: "http://localhost:9999/"}.APIBaseURL())
}

func TestNew_RequiresCredentials(t *testing.T) {
	t.Parallel()

	_, err := paypal.New(paypal.Config{ClientID: "id"})
	assert.ErrorIs(t, err, paypal.ErrMissingCredentials)
}

func TestClient_ProductPlanSubscription(t *testing.T) {
	t.Parallel()

	srv := paypaltest.NewServer(t)
	client, err := paypal.New(srv.Config())
	require.NoError(t, err)
	ctx := context.Background()

	product, err := client.CreateProduct(ctx, paypal.Product{Name: "MAXFIT AI STARTER", Category: "SOFTWARE"})
	require.NoError(t, err)
	assert.NotEmpty(t, product.ID)
	assert.Equal(t, "SERVICE", product.Type)

	plan, err := client.CreatePlan(ctx, paypal.PlanRequest{
		ProductID: product.ID,
		Name:      "MAXFIT AI Starter Plan",
		Interval:  paypal.IntervalMonth,
		Price:     decimal.RequireFromString("9.99"),
		Currency:  "USD",
	})
	require.NoError(t, err)
	require.NotEmpty(t, plan.ID)

	stored := srv.Plan(plan.ID)
	cycles := stored["billing_cycles"].([]any)
	require.Len(t, cycles, 1)
	cycle := cycles[0].(map[string]any)
	price := cycle["pricing_scheme"].(map[string]any)["fixed_price"].(map[string]any)
	assert.Equal(t, "9.99", price["value"])
	assert.Equal(t, "USD", price["currency_code"])
	assert.Equal(t, "MONTH", cycle["frequency"].(map[string]any)["interval_unit"])

	sub, err := client.CreateSubscription(ctx, paypal.SubscriptionRequest{
		PlanID:    plan.ID,
		CustomID:  "user-1_starter_monthly",
		BrandName: "MAXFIT AI",
		ReturnURL: "https://app.test/dashboard",
		CancelURL: "https://app.test/pricing",
	})
	require.NoError(t, err)
	assert.Equal(t, "APPROVAL_PENDING", sub.Status)
	approve, err := sub.ApproveURL()
	require.NoError(t, err)
	assert.Contains(t, approve, sub.ID)

	require.True(t, srv.SetStatus(sub.ID, "ACTIVE"))
	got, err := client.GetSubscription(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, "ACTIVE", got.Status)
	assert.Equal(t, "user-1_starter_monthly", got.CustomID)
	assert.NotEmpty(t, got.Subscriber.PayerID)
}

func TestClient_CreatePlanValidation(t *testing.T) {
	t.Parallel()

	srv := paypaltest.NewServer(t)
	client, err := paypal.New(srv.Config())
	require.NoError(t, err)

	_, err = client.CreatePlan(context.Background(), paypal.PlanRequest{ProductID: "PROD-1", Price: decimal.Zero})
	require.Error(t, err)
	_, err = client.CreatePlan(context.Background(), paypal.PlanRequest{Price: decimal.NewFromInt(1)})
	require.Error(t, err)
}

func TestClient_APIError(t *testing.T) {
	t.Parallel()

	srv := paypaltest.NewServer(t)
	client, err := paypal.New(srv.Config())
	require.NoError(t, err)

	_, err = client.GetSubscription(context.Background(), "I-MISSING")
	require.Error(t, err)
	assert.True(t, paypal.IsNotFound(err))

	var apiErr *paypal.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "RESOURCE_NOT_FOUND", apiErr.Name)
}

func TestClient_RetriesTransientFailures(t *testing.T) {
	t.Parallel()

	srv := paypaltest.NewServer(t)
	srv.AddSubscription(paypal.Subscription{ID: "I-RETRY", Status: "ACTIVE"})
	client, err := paypal.New(srv.Config())
	require.NoError(t, err)

	srv.FailNext(2)
	sub, err := client.GetSubscription(context.Background(), "I-RETRY")
	require.NoError(t, err)
	assert.Equal(t, "ACTIVE", sub.Status)
}

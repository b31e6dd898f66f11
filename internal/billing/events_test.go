package billing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParseCheckoutCompleted(t *testing.T) {
	payload := []byte(`{
		"id": "evt_1",
		"type": "checkout.session.completed",
		"created": 1700000000,
		"data": {"object": {
			"id": "cs_1",
			"customer": "cus_1",
			"subscription": "sub_1",
			"metadata": {"tenant_slug": "acme", "plan_slug": "pro-monthly"}
		}}
	}`)

	event, err := ParseEvent(payload)
	require.NoError(t, err)

	checkout, ok := event.(*CheckoutCompleted)
	require.True(t, ok)
	require.Equal(t, "evt_1", checkout.EventID())
	require.Equal(t, "cus_1", checkout.CustomerID)
	require.Equal(t, "sub_1", checkout.SubscriptionID)
	require.Equal(t, "acme", checkout.TenantSlug)
	require.Equal(t, "pro-monthly", checkout.PlanSlug)
}

func TestParseSubscriptionUpdated(t *testing.T) {
	payload := []byte(`{
		"id": "evt_2",
		"type": "customer.subscription.updated",
		"data": {"object": {
			"id": "sub_1",
			"customer": "cus_1",
			"status": "past_due",
			"cancel_at_period_end": true,
			"current_period_end": 1700605000,
			"items": {"data": [{"id": "si_1", "price": {"id": "price_pro"}}]},
			"metadata": {"tenant_slug": "acme"}
		}}
	}`)

	event, err := ParseEvent(payload)
	require.NoError(t, err)

	changed, ok := event.(*SubscriptionChanged)
	require.True(t, ok)
	require.False(t, changed.Created)
	require.Equal(t, "past_due", changed.Status)
	require.Equal(t, "price_pro", changed.PriceID)
	require.True(t, changed.CancelAtPeriodEnd)
	require.NotNil(t, changed.CurrentPeriodEnd)
	require.Equal(t, time.Unix(1700605000, 0).UTC(), *changed.CurrentPeriodEnd)
	require.Nil(t, changed.TrialEnd)
}

func TestParseSubscriptionTrial(t *testing.T) {
	payload := []byte(`{
		"id": "evt_8",
		"type": "customer.subscription.created",
		"data": {"object": {
			"id": "sub_1",
			"customer": "cus_1",
			"status": "trialing",
			"trial_end": 1701209800,
			"items": {"data": [{"id": "si_1", "price": {"id": "price_pro"}}]},
			"metadata": {"tenant_slug": "acme"}
		}}
	}`)

	event, err := ParseEvent(payload)
	require.NoError(t, err)

	changed, ok := event.(*SubscriptionChanged)
	require.True(t, ok)
	require.True(t, changed.Created)
	require.Equal(t, "trialing", changed.Status)
	require.NotNil(t, changed.TrialEnd)
	require.Equal(t, time.Unix(1701209800, 0).UTC(), *changed.TrialEnd)
}

func TestParseSubscriptionDeleted(t *testing.T) {
	payload := []byte(`{
		"id": "evt_3",
		"type": "customer.subscription.deleted",
		"data": {"object": {"id": "sub_1", "customer": "cus_1", "status": "canceled", "ended_at": 1700700000}}
	}`)

	event, err := ParseEvent(payload)
	require.NoError(t, err)

	deleted, ok := event.(*SubscriptionDeleted)
	require.True(t, ok)
	require.NotNil(t, deleted.EndedAt)
}

func TestParseInvoiceEvents(t *testing.T) {
	paid, err := ParseEvent([]byte(`{
		"id": "evt_4",
		"type": "invoice.paid",
		"data": {"object": {"id": "in_1", "customer": "cus_1", "subscription": "sub_1"}}
	}`))
	require.NoError(t, err)
	require.IsType(t, &InvoicePaid{}, paid)

	failed, err := ParseEvent([]byte(`{
		"id": "evt_5",
		"type": "invoice.payment_failed",
		"data": {"object": {"id": "in_2", "customer": "cus_1", "subscription": "sub_1"}}
	}`))
	require.NoError(t, err)
	require.IsType(t, &InvoicePaymentFailed{}, failed)
}

func TestParseEventIgnoredAndInvalid(t *testing.T) {
	_, err := ParseEvent([]byte(`{"id": "evt_6", "type": "customer.created", "data": {"object": {}}}`))
	require.ErrorIs(t, err, ErrEventIgnored)

	_, err = ParseEvent([]byte(`not json`))
	require.ErrorIs(t, err, ErrInvalidPayload)

	_, err = ParseEvent([]byte(`{"type": "invoice.paid", "data": {"object": {}}}`))
	require.ErrorIs(t, err, ErrInvalidEvent)

	_, err = ParseEvent([]byte(`{"id": "evt_7", "type": "customer.subscription.updated", "data": {"object": {}}}`))
	require.ErrorIs(t, err, ErrInvalidEvent)
}

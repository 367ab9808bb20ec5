package payments

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stripe/stripe-go/v83"
)

func checkoutEvent(t *testing.T, raw string) *stripe.Event {
	t.Helper()
	return &stripe.Event{
		ID:   "evt_test_1",
		Type: "checkout.session.completed",
		Data: &stripe.EventData{Raw: json.RawMessage(raw)},
	}
}

func TestInterpretCheckoutSessionMissingAttribution(t *testing.T) {
	event := checkoutEvent(t, `{
		"id": "cs_no_user",
		"mode": "payment",
		"metadata": {"product": "JOB_POST"}
	}`)

	_, err := InterpretCheckoutSession(event, Config{})
	if !errors.Is(err, ErrMissingMetadata) {
		t.Fatalf("expected ErrMissingMetadata, got %v", err)
	}
}

func TestInterpretCheckoutSessionOneTime(t *testing.T) {
	event := checkoutEvent(t, `{
		"id": "cs_one_time",
		"mode": "payment",
		"metadata": {"user_id": "42", "product": "job_post", "job_id": "7"}
	}`)

	purchase, err := InterpretCheckoutSession(event, Config{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if purchase.IsRecurring() {
		t.Fatalf("expected one-time purchase, got recurring")
	}
	if purchase.SessionID != "cs_one_time" {
		t.Fatalf("session id = %q, want cs_one_time", purchase.SessionID)
	}
	if purchase.UserID != 42 {
		t.Fatalf("user id = %d, want 42", purchase.UserID)
	}
	if purchase.ProductCode != ProductJobPost {
		t.Fatalf("product = %q, want %q", purchase.ProductCode, ProductJobPost)
	}
	if purchase.JobID == nil || *purchase.JobID != 7 {
		t.Fatalf("job id = %v, want 7", purchase.JobID)
	}
}

func TestInterpretCheckoutSessionClientReferenceFallback(t *testing.T) {
	event := checkoutEvent(t, `{
		"id": "cs_ref",
		"mode": "payment",
		"client_reference_id": "9",
		"metadata": {"product": "FEATURED_ADDON"}
	}`)

	purchase, err := InterpretCheckoutSession(event, Config{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if purchase.UserID != 9 {
		t.Fatalf("user id = %d, want 9", purchase.UserID)
	}
	if purchase.ProductCode != ProductFeaturedAddon {
		t.Fatalf("product = %q, want %q", purchase.ProductCode, ProductFeaturedAddon)
	}
}

func TestInterpretCheckoutSessionSubscription(t *testing.T) {
	periodEnd := time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC)
	event := checkoutEvent(t, `{
		"id": "cs_sub",
		"mode": "subscription",
		"metadata": {"user_id": "5"},
		"subscription": {"id": "sub_123", "current_period_end": `+`1756684800`+`}
	}`)

	purchase, err := InterpretCheckoutSession(event, Config{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !purchase.IsRecurring() {
		t.Fatalf("expected recurring purchase")
	}
	if purchase.ProductCode != ProductProSubscription {
		t.Fatalf("product = %q, want %q", purchase.ProductCode, ProductProSubscription)
	}
	if purchase.SubscriptionID != "sub_123" {
		t.Fatalf("subscription id = %q, want sub_123", purchase.SubscriptionID)
	}
	if purchase.CurrentPeriodEnd == nil || !purchase.CurrentPeriodEnd.Equal(periodEnd) {
		t.Fatalf("period end = %v, want %v", purchase.CurrentPeriodEnd, periodEnd)
	}
}

func TestInterpretCheckoutSessionSubscriptionWithoutObject(t *testing.T) {
	event := checkoutEvent(t, `{
		"id": "cs_sub_plain",
		"mode": "subscription",
		"metadata": {"user_id": "5"}
	}`)

	purchase, err := InterpretCheckoutSession(event, Config{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if purchase.SubscriptionID != "session:cs_sub_plain" {
		t.Fatalf("subscription id = %q, want session anchor", purchase.SubscriptionID)
	}
}

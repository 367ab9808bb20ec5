package payments

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v83"
)

// InterpretCheckoutSession decodes a checkout.session.completed event into
// the purchase shape the fulfillment engine applies. The customer account id
// is mandatory: without it no entitlement can be attributed, so a session
// lacking it is rejected with ErrMissingMetadata instead of being retried.
func InterpretCheckoutSession(event *stripe.Event, cfg Config) (*CheckoutPurchase, error) {
	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	userID := parseUintMeta(session.Metadata, "user_id")
	if userID == 0 {
		// ClientReferenceID is set by our checkout creation when no Stripe
		// customer existed yet.
		if id, err := strconv.ParseUint(strings.TrimSpace(session.ClientReferenceID), 10, 64); err == nil {
			userID = uint(id)
		}
	}
	if userID == 0 {
		return nil, fmt.Errorf("%w: checkout session %s", ErrMissingMetadata, session.ID)
	}

	purchase := &CheckoutPurchase{
		SessionID:      session.ID,
		Mode:           ModeOneTime,
		UserID:         userID,
		ProductCode:    strings.ToUpper(strings.TrimSpace(session.Metadata["product"])),
		RawPayloadJSON: string(event.Data.Raw),
	}

	if jobID := parseUintMeta(session.Metadata, "job_id"); jobID != 0 {
		purchase.JobID = &jobID
	}

	if session.Mode == stripe.CheckoutSessionModeSubscription {
		purchase.Mode = ModeRecurring
		if purchase.ProductCode == "" {
			purchase.ProductCode = ProductProSubscription
		}
		if session.Subscription != nil {
			purchase.SubscriptionID = session.Subscription.ID
		}
		if purchase.SubscriptionID == "" {
			// Some test-mode payloads omit the expanded subscription object;
			// anchor the mirror row on the session instead.
			purchase.SubscriptionID = "session:" + session.ID
		}
		purchase.CurrentPeriodEnd = periodEndFromRaw(event.Data.Raw)
	}

	return purchase, nil
}

func parseUintMeta(meta map[string]string, key string) uint {
	if meta == nil {
		return 0
	}
	id, err := strconv.ParseUint(strings.TrimSpace(meta[key]), 10, 64)
	if err != nil {
		return 0
	}
	return uint(id)
}

// periodEndFromRaw pulls an optional current_period_end out of the raw event
// JSON; the typed session struct does not carry it, and the subscription
// field may be either an ID string or an expanded object.
func periodEndFromRaw(raw json.RawMessage) *time.Time {
	var probe map[string]interface{}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil
	}
	ts, ok := probe["current_period_end"].(float64)
	if !ok {
		if sub, isObj := probe["subscription"].(map[string]interface{}); isObj {
			ts, ok = sub["current_period_end"].(float64)
		}
	}
	if !ok || ts == 0 {
		return nil
	}
	t := time.Unix(int64(ts), 0)
	return &t
}

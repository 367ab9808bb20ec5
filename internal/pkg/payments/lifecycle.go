package payments

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2/log"
	"github.com/stripe/stripe-go/v83"

	"github.com/JobFoxHQ/JobFox/app/models"
	"github.com/JobFoxHQ/JobFox/internal/pkg/entitlements"
)

// HandleSubscriptionDeleted downgrades the affected account to the free plan
// and disables posting. The account is resolved from the subscription
// metadata first, then from the local subscription mirror; an event that
// resolves to no account completes without any entitlement mutation.
func (e *Engine) HandleSubscriptionDeleted(ctx context.Context, event *stripe.Event) error {
	_ = ctx
	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	userID := e.resolveAccount(sub.Metadata, sub.ID)
	if err := e.repo.SetSubscriptionStatus(models.PaymentProviderStripe, sub.ID, models.SubscriptionStatusCanceled); err != nil {
		return err
	}
	if userID == 0 {
		log.Warnf("[Payments] subscription %s deleted but no local account resolved, nothing to downgrade", sub.ID)
		return nil
	}
	return e.repo.SetPlan(userID, string(entitlements.PlanFree), false)
}

// HandleInvoicePaymentFailed applies the soft block: posting is disabled but
// the plan is kept, so a later successful payment restores the account
// without a new checkout.
func (e *Engine) HandleInvoicePaymentFailed(ctx context.Context, event *stripe.Event) error {
	_ = ctx
	subID, meta, err := invoiceSubscription(event.Data.Raw)
	if err != nil {
		return err
	}

	userID := e.resolveAccount(meta, subID)
	if userID == 0 {
		// Not attributable to a local account; completing without error keeps
		// Stripe from redelivering an event we can never apply.
		log.Warnf("[Payments] payment failed for subscription %q but no local account resolved", subID)
		return nil
	}

	if subID != "" {
		if err := e.repo.SetSubscriptionStatus(models.PaymentProviderStripe, subID, models.SubscriptionStatusPastDue); err != nil {
			return err
		}
	}
	if err := e.repo.SetCanPostJobs(userID, false); err != nil {
		return err
	}

	e.sendPaymentFailedNotice(userID)
	return nil
}

// HandleInvoicePaymentSucceeded restores a soft-blocked account once a
// renewal goes through again.
func (e *Engine) HandleInvoicePaymentSucceeded(ctx context.Context, event *stripe.Event) error {
	_ = ctx
	subID, meta, err := invoiceSubscription(event.Data.Raw)
	if err != nil {
		return err
	}
	if subID == "" {
		// One-off invoices carry no subscription; nothing to restore.
		return nil
	}

	userID := e.resolveAccount(meta, subID)
	if userID == 0 {
		log.Warnf("[Payments] payment succeeded for subscription %q but no local account resolved", subID)
		return nil
	}

	if err := e.repo.SetSubscriptionStatus(models.PaymentProviderStripe, subID, models.SubscriptionStatusActive); err != nil {
		return err
	}
	return e.repo.SetPlan(userID, string(entitlements.PlanPro), true)
}

// resolveAccount maps event metadata or a known subscription mirror row to a
// local user id; 0 means unresolvable.
func (e *Engine) resolveAccount(meta map[string]string, providerSubscriptionID string) uint {
	if meta != nil {
		if id, err := strconv.ParseUint(strings.TrimSpace(meta["user_id"]), 10, 64); err == nil && id > 0 {
			return uint(id)
		}
	}
	if providerSubscriptionID == "" {
		return 0
	}
	sub, err := e.repo.FindSubscription(models.PaymentProviderStripe, providerSubscriptionID)
	if err != nil {
		if !IsNotFound(err) {
			log.Errorf("[Payments] subscription lookup failed for %s: %v", providerSubscriptionID, err)
		}
		return 0
	}
	return sub.UserID
}

// invoiceSubscription extracts the subscription reference and any metadata
// from a raw invoice payload. The subscription field may be an ID string or
// an expanded object depending on API version.
func invoiceSubscription(raw json.RawMessage) (string, map[string]string, error) {
	var invoice stripe.Invoice
	if err := json.Unmarshal(raw, &invoice); err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	subID := ""
	var probe map[string]interface{}
	if err := json.Unmarshal(raw, &probe); err == nil {
		switch v := probe["subscription"].(type) {
		case string:
			subID = v
		case map[string]interface{}:
			if id, ok := v["id"].(string); ok {
				subID = id
			}
		}
	}

	meta := invoice.Metadata
	if meta == nil {
		// Newer payloads tuck the subscription metadata under parent details.
		if details, ok := probe["subscription_details"].(map[string]interface{}); ok {
			if m, ok := details["metadata"].(map[string]interface{}); ok {
				meta = make(map[string]string, len(m))
				for k, v := range m {
					if s, ok := v.(string); ok {
						meta[k] = s
					}
				}
			}
		}
	}
	return subID, meta, nil
}

func (e *Engine) sendPaymentFailedNotice(userID uint) {
	if e.mailer == nil {
		return
	}
	user, err := e.repo.GetUser(userID)
	if err != nil {
		log.Warnf("[Payments] cannot load user %d for payment-failed notice: %v", userID, err)
		return
	}
	body := "<p>We could not collect your latest subscription payment. " +
		"Job posting is paused until the payment goes through. " +
		"Please update your payment method to keep posting.</p>"
	if err := e.mailer(user.Email, "Action required: payment failed", body); err != nil {
		log.Warnf("[Payments] payment-failed notice to %s not sent: %v", user.Email, err)
	}
}

package payments

import (
	"context"
	"fmt"
	"strconv"

	"github.com/stripe/stripe-go/v83"
)

// CheckoutClient creates Stripe Checkout sessions for the two purchase
// shapes the board sells: a recurring pro subscription and one-time
// products. It injects the attribution metadata the webhook side depends on.
type CheckoutClient struct {
	cfg    Config
	client *stripe.Client
}

// NewCheckoutClient builds a checkout client from the payments config.
func NewCheckoutClient(cfg Config) (*CheckoutClient, error) {
	if cfg.APIKey == "" {
		return nil, ErrUnconfigured
	}
	return &CheckoutClient{
		cfg:    cfg,
		client: stripe.NewClient(cfg.APIKey),
	}, nil
}

// SubscriptionCheckoutURL creates a subscription-mode checkout session for
// the pro plan and returns the redirect URL.
func (cc *CheckoutClient) SubscriptionCheckoutURL(ctx context.Context, userID uint) (string, error) {
	priceID := cc.cfg.PriceFor(ProductProSubscription)
	if priceID == "" {
		return "", fmt.Errorf("%w: no price for %s", ErrUnconfigured, ProductProSubscription)
	}

	uid := strconv.FormatUint(uint64(userID), 10)
	params := &stripe.CheckoutSessionCreateParams{
		Mode: stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		LineItems: []*stripe.CheckoutSessionCreateLineItemParams{
			{
				Price:    stripe.String(priceID),
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL:        stripe.String(cc.cfg.SuccessURL),
		CancelURL:         stripe.String(cc.cfg.CancelURL),
		ClientReferenceID: stripe.String(uid),
		Metadata: map[string]string{
			"user_id": uid,
			"product": ProductProSubscription,
		},
	}
	// The webhook handlers resolve the account from subscription metadata,
	// so the attribution must travel on the subscription too.
	params.SubscriptionData = &stripe.CheckoutSessionCreateSubscriptionDataParams{}
	params.SubscriptionData.AddMetadata("user_id", uid)

	session, err := cc.client.V1CheckoutSessions.Create(ctx, params)
	if err != nil {
		return "", fmt.Errorf("failed to create checkout session: %w", err)
	}
	return session.URL, nil
}

// ProductCheckoutURL creates a payment-mode checkout session for a one-time
// product (JOB_POST or FEATURED_ADDON), optionally tied to a listing.
func (cc *CheckoutClient) ProductCheckoutURL(ctx context.Context, userID uint, product string, jobID *uint) (string, error) {
	priceID := cc.cfg.PriceFor(product)
	if priceID == "" {
		return "", fmt.Errorf("%w: no price for %q", ErrUnconfigured, product)
	}

	uid := strconv.FormatUint(uint64(userID), 10)
	metadata := map[string]string{
		"user_id": uid,
		"product": product,
	}
	if jobID != nil {
		metadata["job_id"] = strconv.FormatUint(uint64(*jobID), 10)
	}

	params := &stripe.CheckoutSessionCreateParams{
		Mode: stripe.String(string(stripe.CheckoutSessionModePayment)),
		LineItems: []*stripe.CheckoutSessionCreateLineItemParams{
			{
				Price:    stripe.String(priceID),
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL:        stripe.String(cc.cfg.SuccessURL),
		CancelURL:         stripe.String(cc.cfg.CancelURL),
		ClientReferenceID: stripe.String(uid),
		Metadata:          metadata,
	}

	session, err := cc.client.V1CheckoutSessions.Create(ctx, params)
	if err != nil {
		return "", fmt.Errorf("failed to create checkout session: %w", err)
	}
	return session.URL, nil
}

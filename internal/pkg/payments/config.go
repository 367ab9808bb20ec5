package payments

import (
	"strconv"
	"strings"
	"time"

	"github.com/JobFoxHQ/JobFox/internal/pkg/env"
)

// Product codes carried in checkout session metadata.
const (
	ProductJobPost         = "JOB_POST"
	ProductFeaturedAddon   = "FEATURED_ADDON"
	ProductProSubscription = "PRO_SUBSCRIPTION"
)

const defaultBoostDays = 7

// Config holds the Stripe credentials, the product-to-price mapping and the
// knobs used by checkout session creation and fulfillment.
type Config struct {
	APIKey        string
	WebhookSecret string

	// PriceIDs maps a product code to the configured Stripe price.
	PriceIDs map[string]string

	// BoostDuration is the length of one featured boost purchase.
	BoostDuration time.Duration

	// SuccessURL and CancelURL are the redirect targets handed to Stripe
	// Checkout; they are only used by session creation, never fulfillment.
	SuccessURL string
	CancelURL  string

	PublicDomain string
}

// NewConfigFromEnv reads the payments configuration from the environment.
func NewConfigFromEnv() Config {
	base := strings.TrimRight(env.GetEnv("PUBLIC_DOMAIN", ""), "/")

	successURL := strings.TrimSpace(env.GetEnv("CHECKOUT_SUCCESS_URL", ""))
	if successURL == "" && base != "" {
		successURL = base + "/checkout/success"
	}
	cancelURL := strings.TrimSpace(env.GetEnv("CHECKOUT_CANCEL_URL", ""))
	if cancelURL == "" && base != "" {
		cancelURL = base + "/checkout/cancel"
	}

	boostDays := defaultBoostDays
	if v, err := strconv.Atoi(env.GetEnv("FEATURED_BOOST_DAYS", "")); err == nil && v > 0 {
		boostDays = v
	}

	return Config{
		APIKey:        strings.TrimSpace(env.GetEnv("STRIPE_SECRET_KEY", "")),
		WebhookSecret: strings.TrimSpace(env.GetEnv("STRIPE_WEBHOOK_SECRET", "")),
		PriceIDs: map[string]string{
			ProductJobPost:         strings.TrimSpace(env.GetEnv("STRIPE_PRICE_JOB_POST", "")),
			ProductFeaturedAddon:   strings.TrimSpace(env.GetEnv("STRIPE_PRICE_FEATURED_ADDON", "")),
			ProductProSubscription: strings.TrimSpace(env.GetEnv("STRIPE_PRICE_PRO_SUBSCRIPTION", "")),
		},
		BoostDuration: time.Duration(boostDays) * 24 * time.Hour,
		SuccessURL:    successURL,
		CancelURL:     cancelURL,
		PublicDomain:  base,
	}
}

// PriceFor returns the configured Stripe price for a product code.
func (c Config) PriceFor(product string) string {
	return c.PriceIDs[strings.ToUpper(strings.TrimSpace(product))]
}

// ProductForPrice is the reverse lookup of PriceFor.
func (c Config) ProductForPrice(priceID string) string {
	priceID = strings.TrimSpace(priceID)
	if priceID == "" {
		return ""
	}
	for product, id := range c.PriceIDs {
		if id == priceID {
			return product
		}
	}
	return ""
}

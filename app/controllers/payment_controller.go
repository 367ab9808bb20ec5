package controllers

import (
	"context"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/stripe/stripe-go/v83"

	"github.com/JobFoxHQ/JobFox/app/models"
	"github.com/JobFoxHQ/JobFox/internal/pkg/database"
	"github.com/JobFoxHQ/JobFox/internal/pkg/entitlements"
	"github.com/JobFoxHQ/JobFox/internal/pkg/mail"
	"github.com/JobFoxHQ/JobFox/internal/pkg/payments"
	"github.com/JobFoxHQ/JobFox/internal/pkg/search"
	"github.com/JobFoxHQ/JobFox/internal/pkg/usercontext"
)

// HandleStripeWebhook receives payment events from Stripe. Delivery is
// at-least-once, so the handler checks the event ledger before processing and
// only appends to it after the handler succeeded: a crash in between leaves
// the event unledgered and the retry replays it against idempotent mutations.
func HandleStripeWebhook(c *fiber.Ctx) error {
	rawBody := append([]byte(nil), c.BodyRaw()...)
	signature := c.Get("Stripe-Signature")

	cfg := payments.NewConfigFromEnv()
	if cfg.WebhookSecret == "" {
		log.Error("[Payments] webhook received but STRIPE_WEBHOOK_SECRET is not set")
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "webhook_not_configured"})
	}

	event, err := stripe.ConstructEvent(rawBody, signature, cfg.WebhookSecret)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid_signature"})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	engine := payments.NewEngineFromDB(database.GetDB(), cfg, search.NewNotifier()).
		WithMailer(mail.SendMail)

	processed, err := engine.AlreadyProcessed(ctx, models.PaymentProviderStripe, event.ID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "ledger_lookup_failed"})
	}
	if processed {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true, "duplicate": true})
	}

	if err := engine.ProcessEvent(ctx, &event); err != nil {
		if errors.Is(err, payments.ErrMissingMetadata) || errors.Is(err, payments.ErrInvalidPayload) {
			// Malformed or unattributable events never become valid; answering
			// 4xx stops Stripe from redelivering them forever.
			log.Warnf("[Payments] rejecting event %s: %v", event.ID, err)
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_payload"})
		}
		log.Errorf("[Payments] processing event %s failed: %v", event.ID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "processing_failed"})
	}

	if err := engine.MarkProcessed(ctx, models.PaymentProviderStripe, &event); err != nil {
		// Handled but not ledgered: the retry will replay against the
		// idempotent mutations, so failing here is safe.
		log.Errorf("[Payments] ledger write for event %s failed: %v", event.ID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "ledger_write_failed"})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true})
}

// HandleCreateSubscriptionCheckout starts a Stripe Checkout session for the
// pro subscription and returns the redirect URL. Accounts already on a paid
// plan are turned away before any Stripe call so a double click cannot open a
// second subscription.
func HandleCreateSubscriptionCheckout(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
	}

	ent, err := models.GetOrCreateEntitlement(database.GetDB(), userCtx.UserID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error"})
	}
	if entitlements.IsPaid(entitlements.Normalize(ent.Plan)) {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "already_subscribed"})
	}

	client, err := payments.NewCheckoutClient(payments.NewConfigFromEnv())
	if err != nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "payments_not_configured"})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	url, err := client.SubscriptionCheckoutURL(ctx, userCtx.UserID)
	if err != nil {
		if errors.Is(err, payments.ErrUnconfigured) {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "payments_not_configured"})
		}
		log.Errorf("[Payments] subscription checkout for user %d failed: %v", userCtx.UserID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "checkout_failed"})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"checkout_url": url})
}

type productCheckoutRequest struct {
	Product string `json:"product" validate:"required,oneof=JOB_POST FEATURED_ADDON"`
	JobID   *uint  `json:"job_id" validate:"omitempty,gt=0"`
}

// HandleCreateProductCheckout starts a Stripe Checkout session for a one-time
// product, optionally tied to one of the caller's listings.
func HandleCreateProductCheckout(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
	}

	var req productCheckoutRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_request"})
	}
	if err := validator.New().Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_request", "message": err.Error()})
	}

	if req.JobID != nil {
		var count int64
		if err := database.GetDB().Model(&models.Job{}).
			Where("id = ? AND user_id = ?", *req.JobID, userCtx.UserID).
			Count(&count).Error; err != nil || count == 0 {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "job_not_found"})
		}
	}

	client, err := payments.NewCheckoutClient(payments.NewConfigFromEnv())
	if err != nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "payments_not_configured"})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	url, err := client.ProductCheckoutURL(ctx, userCtx.UserID, req.Product, req.JobID)
	if err != nil {
		if errors.Is(err, payments.ErrUnconfigured) {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "payments_not_configured"})
		}
		log.Errorf("[Payments] product checkout for user %d failed: %v", userCtx.UserID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "checkout_failed"})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"checkout_url": url})
}

// HandleGetEntitlements returns the caller's current plan and credits.
func HandleGetEntitlements(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
	}

	ent, err := models.GetOrCreateEntitlement(database.GetDB(), userCtx.UserID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error"})
	}

	return c.JSON(fiber.Map{
		"plan":                ent.Plan,
		"can_post_jobs":       ent.CanPostJobs,
		"remaining_job_posts": ent.RemainingJobPosts,
		"featured_until":      ent.FeaturedUntil,
		"boost_active":        ent.HasActiveBoost(time.Now()),
	})
}

package payments

import (
	"context"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/stripe/stripe-go/v83"
	"gorm.io/gorm"

	"github.com/JobFoxHQ/JobFox/app/models"
	"github.com/JobFoxHQ/JobFox/internal/pkg/entitlements"
)

// ContentNotifier receives fire-and-forget "content changed" pings for the
// search indexer. Implementations must never block fulfillment: failures are
// logged and swallowed on their side.
type ContentNotifier interface {
	ContentChanged(jobID uint, url string)
}

// MailFunc sends a best-effort notification email.
type MailFunc func(to, subject, body string) error

// Engine is the authoritative state-transition logic of the payments core:
// it translates decoded purchases and lifecycle events into entitlement
// mutations. Every datastore failure aborts the whole operation so the event
// stays unledgered and the processor redelivers it; the per-session purchase
// row and the per-event ledger make that redelivery safe.
type Engine struct {
	repo     Repository
	cfg      Config
	notifier ContentNotifier
	mailer   MailFunc
	now      func() time.Time
}

// NewEngine creates a fulfillment engine from an injected repository.
func NewEngine(cfg Config, repo Repository, notifier ContentNotifier) *Engine {
	return &Engine{
		repo:     repo,
		cfg:      cfg,
		notifier: notifier,
		now:      time.Now,
	}
}

// NewEngineFromDB creates a fulfillment engine from a GORM DB handle.
func NewEngineFromDB(db *gorm.DB, cfg Config, notifier ContentNotifier) *Engine {
	return NewEngine(cfg, NewRepository(db), notifier)
}

// WithMailer attaches a best-effort mailer used for payment-failure notices.
func (e *Engine) WithMailer(mailer MailFunc) *Engine {
	e.mailer = mailer
	return e
}

// AlreadyProcessed consults the event ledger.
func (e *Engine) AlreadyProcessed(ctx context.Context, provider, eventID string) (bool, error) {
	_ = ctx
	return e.repo.HasProcessedEvent(provider, eventID)
}

// MarkProcessed appends the event to the ledger. Must only be called after
// the event was handled successfully; it is the last step of the path.
func (e *Engine) MarkProcessed(ctx context.Context, provider string, event *stripe.Event) error {
	_ = ctx
	return e.repo.RecordEventProcessed(&models.PaymentEvent{
		Provider:        provider,
		ProviderEventID: event.ID,
		EventType:       string(event.Type),
	})
}

// ProcessEvent dispatches one verified event to the matching handler.
// Unknown event types are a successful no-op so they still get ledgered and
// Stripe stops redelivering them.
func (e *Engine) ProcessEvent(ctx context.Context, event *stripe.Event) error {
	switch event.Type {
	case "checkout.session.completed":
		purchase, err := InterpretCheckoutSession(event, e.cfg)
		if err != nil {
			return err
		}
		return e.FulfillCheckout(ctx, purchase)
	case "customer.subscription.deleted":
		return e.HandleSubscriptionDeleted(ctx, event)
	case "invoice.payment_failed":
		return e.HandleInvoicePaymentFailed(ctx, event)
	case "invoice.payment_succeeded":
		return e.HandleInvoicePaymentSucceeded(ctx, event)
	default:
		log.Debugf("[Payments] ignoring event type %s", event.Type)
		return nil
	}
}

// FulfillCheckout applies the entitlement mutations for one decoded
// purchase.
func (e *Engine) FulfillCheckout(ctx context.Context, purchase *CheckoutPurchase) error {
	if purchase.IsRecurring() {
		return e.fulfillRecurring(ctx, purchase)
	}
	return e.fulfillOneTime(ctx, purchase)
}

func (e *Engine) fulfillRecurring(ctx context.Context, purchase *CheckoutPurchase) error {
	_ = ctx
	sub := &models.Subscription{
		UserID:                 purchase.UserID,
		Provider:               models.PaymentProviderStripe,
		ProviderSubscriptionID: purchase.SubscriptionID,
		InternalPlan:           string(entitlements.PlanPro),
		Status:                 models.SubscriptionStatusActive,
		CurrentPeriodEnd:       purchase.CurrentPeriodEnd,
		CancelAtPeriodEnd:      purchase.CancelAtPeriodEnd,
		RawPayloadJSON:         purchase.RawPayloadJSON,
	}
	if err := e.repo.UpsertSubscription(sub); err != nil {
		return err
	}
	// Plan and legacy profile mirror are written in one transaction; a
	// successful payment also lifts a payment-failed posting block.
	return e.repo.SetPlan(purchase.UserID, string(entitlements.PlanPro), true)
}

func (e *Engine) fulfillOneTime(ctx context.Context, purchase *CheckoutPurchase) error {
	_ = ctx
	record := &models.Purchase{
		UserID:      purchase.UserID,
		SessionID:   purchase.SessionID,
		ProductCode: purchase.ProductCode,
		JobID:       purchase.JobID,
	}
	created, err := e.repo.CreatePurchaseIfNew(record)
	if err != nil {
		return err
	}
	if !created {
		// The session was fulfilled on an earlier delivery; granting again
		// would double-credit.
		log.Infof("[Payments] checkout session %s already fulfilled, skipping", purchase.SessionID)
		return nil
	}

	switch purchase.ProductCode {
	case ProductJobPost:
		if err := e.repo.GrantJobPostCredit(purchase.UserID); err != nil {
			return err
		}
		if purchase.JobID != nil {
			if err := e.repo.ActivateJob(*purchase.JobID, purchase.UserID, e.now()); err != nil {
				return err
			}
			e.notifyContentChanged(*purchase.JobID)
		}
	case ProductFeaturedAddon:
		until, err := e.repo.ExtendFeaturedBoost(purchase.UserID, e.cfg.BoostDuration, e.now())
		if err != nil {
			return err
		}
		if purchase.JobID != nil {
			if err := e.repo.FeatureJob(*purchase.JobID, purchase.UserID, until); err != nil {
				return err
			}
			e.notifyContentChanged(*purchase.JobID)
		}
	default:
		// Unmapped product: a configuration gap, not a crash. The purchase
		// row above keeps the audit trail for later reconciliation.
		log.Warnf("[Payments] session %s carries unmapped product %q, no entitlement granted",
			purchase.SessionID, purchase.ProductCode)
	}
	return nil
}

func (e *Engine) notifyContentChanged(jobID uint) {
	if e.notifier == nil {
		return
	}
	e.notifier.ContentChanged(jobID, e.jobURL(jobID))
}

func (e *Engine) jobURL(jobID uint) string {
	if e.cfg.PublicDomain == "" {
		return fmt.Sprintf("/jobs/%d", jobID)
	}
	return fmt.Sprintf("%s/jobs/%d", e.cfg.PublicDomain, jobID)
}

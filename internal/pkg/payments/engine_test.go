package payments

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/stripe/stripe-go/v83"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/JobFoxHQ/JobFox/app/models"
)

func newTestDB(t *testing.T, name string) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+name+"?mode=memory&cache=shared"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(
		&models.Entitlement{},
		&models.UserSettings{},
		&models.Job{},
		&models.Subscription{},
		&models.Purchase{},
		&models.PaymentEvent{},
	); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func newTestEngine(t *testing.T, name string) (*Engine, *gorm.DB) {
	t.Helper()
	db := newTestDB(t, name)
	cfg := Config{BoostDuration: 7 * 24 * time.Hour}
	return NewEngine(cfg, NewRepository(db), nil), db
}

func stripeEvent(t *testing.T, id, typ, raw string) *stripe.Event {
	t.Helper()
	return &stripe.Event{
		ID:   id,
		Type: stripe.EventType(typ),
		Data: &stripe.EventData{Raw: json.RawMessage(raw)},
	}
}

func loadEntitlement(t *testing.T, db *gorm.DB, userID uint) *models.Entitlement {
	t.Helper()
	var ent models.Entitlement
	if err := db.Where("user_id = ?", userID).First(&ent).Error; err != nil {
		t.Fatalf("load entitlement for user %d: %v", userID, err)
	}
	return &ent
}

func TestJobPostSessionReplayGrantsOnce(t *testing.T) {
	e, db := newTestEngine(t, "engine_replay")

	raw := `{"id": "cs_replay", "mode": "payment", "metadata": {"user_id": "1", "product": "JOB_POST"}}`
	ctx := context.Background()

	// Two deliveries of the same session, as a retrying processor produces.
	for i := 0; i < 2; i++ {
		event := stripeEvent(t, fmt.Sprintf("evt_replay_%d", i), "checkout.session.completed", raw)
		if err := e.ProcessEvent(ctx, event); err != nil {
			t.Fatalf("delivery %d: %v", i, err)
		}
	}

	ent := loadEntitlement(t, db, 1)
	if ent.RemainingJobPosts != 1 {
		t.Fatalf("remaining job posts = %d, want 1", ent.RemainingJobPosts)
	}
}

func TestFeaturedBoostPurchasesStack(t *testing.T) {
	e, db := newTestEngine(t, "engine_stack")

	t0 := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	e.now = func() time.Time { return t0 }

	ctx := context.Background()
	first := stripeEvent(t, "evt_boost_1", "checkout.session.completed",
		`{"id": "cs_boost_1", "mode": "payment", "metadata": {"user_id": "2", "product": "FEATURED_ADDON"}}`)
	if err := e.ProcessEvent(ctx, first); err != nil {
		t.Fatalf("first boost: %v", err)
	}

	ent := loadEntitlement(t, db, 2)
	if ent.FeaturedUntil == nil || !ent.FeaturedUntil.Equal(t0.Add(7*24*time.Hour)) {
		t.Fatalf("featured until after first boost = %v, want %v", ent.FeaturedUntil, t0.Add(7*24*time.Hour))
	}

	// One second later: the second window must start where the first ends,
	// not reset to seven days from the second event.
	e.now = func() time.Time { return t0.Add(time.Second) }
	second := stripeEvent(t, "evt_boost_2", "checkout.session.completed",
		`{"id": "cs_boost_2", "mode": "payment", "metadata": {"user_id": "2", "product": "FEATURED_ADDON"}}`)
	if err := e.ProcessEvent(ctx, second); err != nil {
		t.Fatalf("second boost: %v", err)
	}

	ent = loadEntitlement(t, db, 2)
	want := t0.Add(14 * 24 * time.Hour)
	if ent.FeaturedUntil == nil || !ent.FeaturedUntil.Equal(want) {
		t.Fatalf("featured until after second boost = %v, want %v", ent.FeaturedUntil, want)
	}
}

func TestJobPostPurchaseActivatesListing(t *testing.T) {
	e, db := newTestEngine(t, "engine_activate")

	job := models.Job{UserID: 3, Title: "Backend Engineer", CompanyName: "Acme", Status: models.JobStatusDraft}
	if err := db.Create(&job).Error; err != nil {
		t.Fatalf("seed job: %v", err)
	}

	raw := fmt.Sprintf(`{"id": "cs_activate", "mode": "payment", "metadata": {"user_id": "3", "product": "JOB_POST", "job_id": "%d"}}`, job.ID)
	if err := e.ProcessEvent(context.Background(), stripeEvent(t, "evt_activate", "checkout.session.completed", raw)); err != nil {
		t.Fatalf("process: %v", err)
	}

	var got models.Job
	if err := db.First(&got, job.ID).Error; err != nil {
		t.Fatalf("load job: %v", err)
	}
	if got.Status != models.JobStatusActive {
		t.Fatalf("job status = %q, want active", got.Status)
	}
	if got.PublishedAt == nil {
		t.Fatalf("expected published_at to be set")
	}
}

func TestUnmappedProductKeepsAuditTrailOnly(t *testing.T) {
	e, db := newTestEngine(t, "engine_unmapped")

	raw := `{"id": "cs_unmapped", "mode": "payment", "metadata": {"user_id": "12", "product": "MYSTERY_BOX"}}`
	event := stripeEvent(t, "evt_unmapped", "checkout.session.completed", raw)
	if err := e.ProcessEvent(context.Background(), event); err != nil {
		t.Fatalf("unmapped product must not fail fulfillment, got %v", err)
	}

	var purchase models.Purchase
	if err := db.Where("session_id = ?", "cs_unmapped").First(&purchase).Error; err != nil {
		t.Fatalf("expected a purchase audit row: %v", err)
	}
	if purchase.UserID != 12 || purchase.ProductCode != "MYSTERY_BOX" {
		t.Fatalf("audit row = user %d product %q, want 12/MYSTERY_BOX", purchase.UserID, purchase.ProductCode)
	}

	var ents int64
	if err := db.Model(&models.Entitlement{}).Count(&ents).Error; err != nil {
		t.Fatalf("count entitlements: %v", err)
	}
	if ents != 0 {
		t.Fatalf("expected zero entitlement rows for an unmapped product, found %d", ents)
	}
}

func TestRecurringCheckoutWritesBothProjections(t *testing.T) {
	e, db := newTestEngine(t, "engine_recurring")

	raw := `{"id": "cs_sub", "mode": "subscription", "metadata": {"user_id": "4"}, "subscription": {"id": "sub_4"}}`
	if err := e.ProcessEvent(context.Background(), stripeEvent(t, "evt_sub", "checkout.session.completed", raw)); err != nil {
		t.Fatalf("process: %v", err)
	}

	ent := loadEntitlement(t, db, 4)
	if ent.Plan != "pro" || !ent.CanPostJobs {
		t.Fatalf("entitlement = plan %q canPost %v, want pro/true", ent.Plan, ent.CanPostJobs)
	}

	settings, err := models.GetOrCreateUserSettings(db, 4)
	if err != nil {
		t.Fatalf("load settings: %v", err)
	}
	if settings.Plan != "pro" || !settings.CanPostJobs {
		t.Fatalf("settings mirror = plan %q canPost %v, want pro/true", settings.Plan, settings.CanPostJobs)
	}

	var sub models.Subscription
	if err := db.Where("provider_subscription_id = ?", "sub_4").First(&sub).Error; err != nil {
		t.Fatalf("load subscription mirror: %v", err)
	}
	if sub.UserID != 4 || sub.Status != models.SubscriptionStatusActive {
		t.Fatalf("mirror = user %d status %q, want 4/active", sub.UserID, sub.Status)
	}
}

func TestSubscriptionDeletedDowngradesOnlyOwner(t *testing.T) {
	e, db := newTestEngine(t, "engine_deleted")
	ctx := context.Background()

	for user, sub := range map[string]string{"10": "sub_10", "11": "sub_11"} {
		raw := fmt.Sprintf(`{"id": "cs_%s", "mode": "subscription", "metadata": {"user_id": "%s"}, "subscription": {"id": "%s"}}`, sub, user, sub)
		if err := e.ProcessEvent(ctx, stripeEvent(t, "evt_"+sub, "checkout.session.completed", raw)); err != nil {
			t.Fatalf("seed subscription %s: %v", sub, err)
		}
	}

	deleted := stripeEvent(t, "evt_del_10", "customer.subscription.deleted", `{"id": "sub_10"}`)
	if err := e.ProcessEvent(ctx, deleted); err != nil {
		t.Fatalf("process deletion: %v", err)
	}

	downgraded := loadEntitlement(t, db, 10)
	if downgraded.Plan != "free" || downgraded.CanPostJobs {
		t.Fatalf("user 10 = plan %q canPost %v, want free/false", downgraded.Plan, downgraded.CanPostJobs)
	}
	untouched := loadEntitlement(t, db, 11)
	if untouched.Plan != "pro" || !untouched.CanPostJobs {
		t.Fatalf("user 11 = plan %q canPost %v, want pro/true", untouched.Plan, untouched.CanPostJobs)
	}

	var sub models.Subscription
	if err := db.Where("provider_subscription_id = ?", "sub_10").First(&sub).Error; err != nil {
		t.Fatalf("load mirror: %v", err)
	}
	if sub.Status != models.SubscriptionStatusCanceled {
		t.Fatalf("mirror status = %q, want canceled", sub.Status)
	}
}

func TestInvoicePaymentFailedWithoutAccountIsNoop(t *testing.T) {
	e, db := newTestEngine(t, "engine_orphan")

	event := stripeEvent(t, "evt_orphan", "invoice.payment_failed", `{"id": "in_1", "subscription": "sub_unknown"}`)
	if err := e.ProcessEvent(context.Background(), event); err != nil {
		t.Fatalf("expected orphan invoice to complete without error, got %v", err)
	}

	var count int64
	if err := db.Model(&models.Entitlement{}).Count(&count).Error; err != nil {
		t.Fatalf("count entitlements: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected zero entitlement writes, found %d rows", count)
	}
}

func TestPaymentFailedBlocksAndRecoveryRestores(t *testing.T) {
	e, db := newTestEngine(t, "engine_dunning")
	ctx := context.Background()

	seed := `{"id": "cs_8", "mode": "subscription", "metadata": {"user_id": "8"}, "subscription": {"id": "sub_8"}}`
	if err := e.ProcessEvent(ctx, stripeEvent(t, "evt_seed_8", "checkout.session.completed", seed)); err != nil {
		t.Fatalf("seed: %v", err)
	}

	failed := stripeEvent(t, "evt_fail_8", "invoice.payment_failed", `{"id": "in_8", "subscription": "sub_8"}`)
	if err := e.ProcessEvent(ctx, failed); err != nil {
		t.Fatalf("payment failed: %v", err)
	}

	ent := loadEntitlement(t, db, 8)
	if ent.CanPostJobs {
		t.Fatalf("expected posting to be blocked after failed payment")
	}
	if ent.Plan != "pro" {
		t.Fatalf("plan = %q, want pro kept during dunning", ent.Plan)
	}
	var sub models.Subscription
	if err := db.Where("provider_subscription_id = ?", "sub_8").First(&sub).Error; err != nil {
		t.Fatalf("load mirror: %v", err)
	}
	if sub.Status != models.SubscriptionStatusPastDue {
		t.Fatalf("mirror status = %q, want past_due", sub.Status)
	}

	recovered := stripeEvent(t, "evt_ok_8", "invoice.payment_succeeded", `{"id": "in_9", "subscription": "sub_8"}`)
	if err := e.ProcessEvent(ctx, recovered); err != nil {
		t.Fatalf("payment succeeded: %v", err)
	}

	ent = loadEntitlement(t, db, 8)
	if !ent.CanPostJobs || ent.Plan != "pro" {
		t.Fatalf("after recovery = plan %q canPost %v, want pro/true", ent.Plan, ent.CanPostJobs)
	}
}

func TestProcessEventIgnoresUnknownTypes(t *testing.T) {
	e, _ := newTestEngine(t, "engine_unknown")

	event := stripeEvent(t, "evt_unknown", "charge.refunded", `{"id": "ch_1"}`)
	if err := e.ProcessEvent(context.Background(), event); err != nil {
		t.Fatalf("unknown event type must be a successful no-op, got %v", err)
	}
}

package payments

import (
	"testing"
	"time"

	"github.com/JobFoxHQ/JobFox/app/models"
)

func TestRecordEventProcessedDuplicateIsSuccess(t *testing.T) {
	db := newTestDB(t, "repo_ledger")
	repo := NewRepository(db)

	event := func() *models.PaymentEvent {
		return &models.PaymentEvent{
			Provider:        models.PaymentProviderStripe,
			ProviderEventID: "evt_dup",
			EventType:       "checkout.session.completed",
		}
	}

	if err := repo.RecordEventProcessed(event()); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	if err := repo.RecordEventProcessed(event()); err != nil {
		t.Fatalf("duplicate insert must be the success path, got %v", err)
	}

	var count int64
	if err := db.Model(&models.PaymentEvent{}).Count(&count).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("ledger rows = %d, want 1", count)
	}

	processed, err := repo.HasProcessedEvent(models.PaymentProviderStripe, "evt_dup")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if !processed {
		t.Fatalf("expected event to be recorded as processed")
	}
}

func TestCreatePurchaseIfNew(t *testing.T) {
	db := newTestDB(t, "repo_purchase")
	repo := NewRepository(db)

	purchase := func() *models.Purchase {
		return &models.Purchase{UserID: 1, SessionID: "cs_once", ProductCode: ProductJobPost}
	}

	created, err := repo.CreatePurchaseIfNew(purchase())
	if err != nil {
		t.Fatalf("first insert: %v", err)
	}
	if !created {
		t.Fatalf("expected first insert to create the row")
	}

	created, err = repo.CreatePurchaseIfNew(purchase())
	if err != nil {
		t.Fatalf("second insert: %v", err)
	}
	if created {
		t.Fatalf("expected replayed session to be reported as already fulfilled")
	}
}

func TestConsumeJobPostCreditGuard(t *testing.T) {
	db := newTestDB(t, "repo_credits")
	repo := NewRepository(db)

	consumed, err := repo.ConsumeJobPostCredit(1)
	if err != nil {
		t.Fatalf("consume on empty account: %v", err)
	}
	if consumed {
		t.Fatalf("expected consume to fail with zero credits")
	}

	if err := repo.GrantJobPostCredit(1); err != nil {
		t.Fatalf("grant: %v", err)
	}

	consumed, err = repo.ConsumeJobPostCredit(1)
	if err != nil {
		t.Fatalf("consume: %v", err)
	}
	if !consumed {
		t.Fatalf("expected consume to succeed after a grant")
	}

	consumed, err = repo.ConsumeJobPostCredit(1)
	if err != nil {
		t.Fatalf("consume past zero: %v", err)
	}
	if consumed {
		t.Fatalf("credit counter must never go negative")
	}
}

func TestConsumeJobPostCreditMarksPurchaseConsumed(t *testing.T) {
	db := newTestDB(t, "repo_consumed")
	repo := NewRepository(db)

	for _, session := range []string{"cs_first", "cs_second"} {
		created, err := repo.CreatePurchaseIfNew(&models.Purchase{
			UserID: 9, SessionID: session, ProductCode: ProductJobPost,
		})
		if err != nil || !created {
			t.Fatalf("seed purchase %s: created=%v err=%v", session, created, err)
		}
		if err := repo.GrantJobPostCredit(9); err != nil {
			t.Fatalf("grant for %s: %v", session, err)
		}
	}

	consumed, err := repo.ConsumeJobPostCredit(9)
	if err != nil {
		t.Fatalf("consume: %v", err)
	}
	if !consumed {
		t.Fatalf("expected consume to succeed with two credits")
	}

	var first, second models.Purchase
	if err := db.Where("session_id = ?", "cs_first").First(&first).Error; err != nil {
		t.Fatalf("load first purchase: %v", err)
	}
	if err := db.Where("session_id = ?", "cs_second").First(&second).Error; err != nil {
		t.Fatalf("load second purchase: %v", err)
	}
	if !first.Consumed {
		t.Fatalf("oldest purchase must be marked consumed")
	}
	if second.Consumed {
		t.Fatalf("later purchase must stay unconsumed")
	}
}

func TestExtendFeaturedBoostIsMonotonic(t *testing.T) {
	db := newTestDB(t, "repo_boost")
	repo := NewRepository(db)

	t0 := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	first, err := repo.ExtendFeaturedBoost(2, 7*24*time.Hour, t0)
	if err != nil {
		t.Fatalf("first extension: %v", err)
	}
	if !first.Equal(t0.Add(7 * 24 * time.Hour)) {
		t.Fatalf("first extension = %v, want %v", first, t0.Add(7*24*time.Hour))
	}

	// A later, shorter purchase stacks on top of the running window.
	second, err := repo.ExtendFeaturedBoost(2, 24*time.Hour, t0.Add(time.Hour))
	if err != nil {
		t.Fatalf("second extension: %v", err)
	}
	if !second.Equal(first.Add(24 * time.Hour)) {
		t.Fatalf("second extension = %v, want %v", second, first.Add(24*time.Hour))
	}
	if second.Before(first) {
		t.Fatalf("featured_until regressed from %v to %v", first, second)
	}
}

func TestSetPlanWritesBothProjections(t *testing.T) {
	db := newTestDB(t, "repo_dualwrite")
	repo := NewRepository(db)

	if err := repo.SetPlan(5, "pro", true); err != nil {
		t.Fatalf("set plan: %v", err)
	}

	ent := loadEntitlement(t, db, 5)
	if ent.Plan != "pro" || !ent.CanPostJobs {
		t.Fatalf("entitlement = plan %q canPost %v, want pro/true", ent.Plan, ent.CanPostJobs)
	}

	settings, err := models.GetOrCreateUserSettings(db, 5)
	if err != nil {
		t.Fatalf("load settings: %v", err)
	}
	if settings.Plan != "pro" || !settings.CanPostJobs {
		t.Fatalf("settings mirror = plan %q canPost %v, want pro/true", settings.Plan, settings.CanPostJobs)
	}

	if err := repo.SetCanPostJobs(5, false); err != nil {
		t.Fatalf("set can post: %v", err)
	}
	ent = loadEntitlement(t, db, 5)
	if ent.Plan != "pro" || ent.CanPostJobs {
		t.Fatalf("after block = plan %q canPost %v, want pro/false", ent.Plan, ent.CanPostJobs)
	}
}

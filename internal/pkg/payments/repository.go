package payments

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/JobFoxHQ/JobFox/app/models"
	"github.com/JobFoxHQ/JobFox/internal/pkg/entitlements"
)

// Repository provides the DB operations used by the fulfillment engine and
// the lifecycle handler. All entitlement mutations flow through here.
type Repository interface {
	HasProcessedEvent(provider, providerEventID string) (bool, error)
	RecordEventProcessed(event *models.PaymentEvent) error
	CreatePurchaseIfNew(p *models.Purchase) (bool, error)
	UpsertSubscription(sub *models.Subscription) error
	FindSubscription(provider, providerSubscriptionID string) (*models.Subscription, error)
	SetSubscriptionStatus(provider, providerSubscriptionID, status string) error
	SetPlan(userID uint, plan string, canPostJobs bool) error
	SetCanPostJobs(userID uint, canPostJobs bool) error
	GrantJobPostCredit(userID uint) error
	ConsumeJobPostCredit(userID uint) (bool, error)
	ExtendFeaturedBoost(userID uint, duration time.Duration, now time.Time) (time.Time, error)
	GetEntitlement(userID uint) (*models.Entitlement, error)
	ActivateJob(jobID, userID uint, now time.Time) error
	FeatureJob(jobID, userID uint, until time.Time) error
	GetUser(userID uint) (*models.User, error)
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a payments repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) HasProcessedEvent(provider, providerEventID string) (bool, error) {
	var count int64
	err := r.db.Model(&models.PaymentEvent{}).
		Where("provider = ? AND provider_event_id = ?", provider, providerEventID).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrDBUpdate, err)
	}
	return count > 0, nil
}

// RecordEventProcessed appends the event to the ledger. The unique index on
// (provider, provider_event_id) gives insert-if-absent semantics: a
// duplicate key is the success path, not an error.
func (r *gormRepository) RecordEventProcessed(event *models.PaymentEvent) error {
	err := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "provider"},
			{Name: "provider_event_id"},
		},
		DoNothing: true,
	}).Create(event).Error
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDBInsert, err)
	}
	return nil
}

// CreatePurchaseIfNew inserts the purchase audit row unless its session id
// is already recorded. Returns false when the session was seen before, which
// callers must treat as "already fulfilled".
func (r *gormRepository) CreatePurchaseIfNew(p *models.Purchase) (bool, error) {
	tx := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "session_id"}},
		DoNothing: true,
	}).Create(p)
	if tx.Error != nil {
		return false, fmt.Errorf("%w: %v", ErrDBInsert, tx.Error)
	}
	return tx.RowsAffected > 0, nil
}

func (r *gormRepository) UpsertSubscription(sub *models.Subscription) error {
	if err := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "provider"},
			{Name: "provider_subscription_id"},
		},
		DoUpdates: clause.AssignmentColumns([]string{
			"user_id",
			"internal_plan",
			"status",
			"current_period_end",
			"cancel_at_period_end",
			"raw_payload_json",
			"updated_at",
		}),
	}).Create(sub).Error; err != nil {
		return fmt.Errorf("%w: %v", ErrDBInsert, err)
	}

	// Ensure ID is populated after upsert.
	if err := r.db.Where("provider = ? AND provider_subscription_id = ?", sub.Provider, sub.ProviderSubscriptionID).
		First(sub).Error; err != nil {
		return fmt.Errorf("%w: %v", ErrDBUpdate, err)
	}
	return nil
}

func (r *gormRepository) FindSubscription(provider, providerSubscriptionID string) (*models.Subscription, error) {
	var sub models.Subscription
	err := r.db.Where("provider = ? AND provider_subscription_id = ?", provider, providerSubscriptionID).
		First(&sub).Error
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *gormRepository) SetSubscriptionStatus(provider, providerSubscriptionID, status string) error {
	err := r.db.Model(&models.Subscription{}).
		Where("provider = ? AND provider_subscription_id = ?", provider, providerSubscriptionID).
		Update("status", status).Error
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDBUpdate, err)
	}
	return nil
}

// SetPlan writes the plan and posting flag to the entitlement row and to the
// legacy user-settings view in one transaction, so the two projections can
// never diverge on a partial failure.
func (r *gormRepository) SetPlan(userID uint, plan string, canPostJobs bool) error {
	plan = string(entitlements.Normalize(plan))
	err := r.db.Transaction(func(tx *gorm.DB) error {
		if _, err := models.GetOrCreateEntitlement(tx, userID); err != nil {
			return err
		}
		if err := tx.Model(&models.Entitlement{}).Where("user_id = ?", userID).
			Updates(map[string]interface{}{"plan": plan, "can_post_jobs": canPostJobs}).Error; err != nil {
			return err
		}
		us, err := models.GetOrCreateUserSettings(tx, userID)
		if err != nil {
			return err
		}
		us.Plan = plan
		us.CanPostJobs = canPostJobs
		return tx.Save(us).Error
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDBUpdate, err)
	}
	return nil
}

// SetCanPostJobs flips only the posting flag, in both projections. Used by
// the payment-failed soft block, which keeps the plan untouched.
func (r *gormRepository) SetCanPostJobs(userID uint, canPostJobs bool) error {
	err := r.db.Transaction(func(tx *gorm.DB) error {
		if _, err := models.GetOrCreateEntitlement(tx, userID); err != nil {
			return err
		}
		if err := tx.Model(&models.Entitlement{}).Where("user_id = ?", userID).
			Update("can_post_jobs", canPostJobs).Error; err != nil {
			return err
		}
		us, err := models.GetOrCreateUserSettings(tx, userID)
		if err != nil {
			return err
		}
		us.CanPostJobs = canPostJobs
		return tx.Save(us).Error
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDBUpdate, err)
	}
	return nil
}

// GrantJobPostCredit increments the credit counter with a relative UPDATE so
// concurrent grants for the same account cannot lose each other.
func (r *gormRepository) GrantJobPostCredit(userID uint) error {
	err := r.db.Transaction(func(tx *gorm.DB) error {
		if _, err := models.GetOrCreateEntitlement(tx, userID); err != nil {
			return err
		}
		return tx.Model(&models.Entitlement{}).Where("user_id = ?", userID).
			UpdateColumn("remaining_job_posts", gorm.Expr("remaining_job_posts + ?", 1)).Error
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDBUpdate, err)
	}
	return nil
}

// ConsumeJobPostCredit spends one credit; the guard in the WHERE clause keeps
// the counter from going negative under concurrent job creation. The oldest
// unconsumed JOB_POST purchase is flipped in the same transaction so the audit
// trail tracks the counter.
func (r *gormRepository) ConsumeJobPostCredit(userID uint) (bool, error) {
	consumed := false
	err := r.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Entitlement{}).
			Where("user_id = ? AND remaining_job_posts > 0", userID).
			UpdateColumn("remaining_job_posts", gorm.Expr("remaining_job_posts - ?", 1))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		consumed = true

		var purchase models.Purchase
		err := tx.Where("user_id = ? AND product_code = ? AND consumed = ?", userID, ProductJobPost, false).
			Order("created_at, id").First(&purchase).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				// Credits granted outside a checkout leave no purchase row.
				return nil
			}
			return err
		}
		return tx.Model(&purchase).Update("consumed", true).Error
	})
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrDBUpdate, err)
	}
	return consumed, nil
}

// ExtendFeaturedBoost stacks one boost purchase onto the account's expiry:
// the new value is the purchased duration added to whichever is later, the
// current expiry or now. The row is locked for the computation so two
// near-simultaneous purchases both extend and neither is lost; the guarded
// UPDATE keeps an even-further expiry from regressing.
func (r *gormRepository) ExtendFeaturedBoost(userID uint, duration time.Duration, now time.Time) (time.Time, error) {
	var until time.Time
	err := r.db.Transaction(func(tx *gorm.DB) error {
		if _, err := models.GetOrCreateEntitlement(tx, userID); err != nil {
			return err
		}
		q := tx.Where("user_id = ?", userID)
		// SQLite has no row locks and serializes writers on its own; FOR
		// UPDATE is a syntax error there.
		if tx.Dialector.Name() == "mysql" {
			q = q.Clauses(clause.Locking{Strength: "UPDATE"})
		}
		var ent models.Entitlement
		if err := q.First(&ent).Error; err != nil {
			return err
		}
		base := now
		if ent.FeaturedUntil != nil && ent.FeaturedUntil.After(base) {
			base = *ent.FeaturedUntil
		}
		until = base.Add(duration)
		return tx.Model(&models.Entitlement{}).
			Where("user_id = ? AND (featured_until IS NULL OR featured_until < ?)", userID, until).
			Update("featured_until", until).Error
	})
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", ErrDBUpdate, err)
	}
	return until, nil
}

func (r *gormRepository) GetEntitlement(userID uint) (*models.Entitlement, error) {
	return models.GetOrCreateEntitlement(r.db, userID)
}

// ActivateJob publishes the listing bought by a JOB_POST purchase. The owner
// guard keeps a mis-tagged session from activating someone else's listing.
func (r *gormRepository) ActivateJob(jobID, userID uint, now time.Time) error {
	tx := r.db.Model(&models.Job{}).
		Where("id = ? AND user_id = ?", jobID, userID).
		Updates(map[string]interface{}{
			"status":       models.JobStatusActive,
			"published_at": now,
		})
	if tx.Error != nil {
		return fmt.Errorf("%w: %v", ErrDBUpdate, tx.Error)
	}
	if tx.RowsAffected == 0 && !r.jobExists(jobID, userID) {
		return fmt.Errorf("%w: job %d not found for user %d", ErrDBUpdate, jobID, userID)
	}
	return nil
}

// FeatureJob writes the denormalized boost expiry onto the job row so it
// stays consistent with the entitlement-level value.
func (r *gormRepository) FeatureJob(jobID, userID uint, until time.Time) error {
	tx := r.db.Model(&models.Job{}).
		Where("id = ? AND user_id = ?", jobID, userID).
		Updates(map[string]interface{}{
			"is_featured":    true,
			"featured_until": until,
		})
	if tx.Error != nil {
		return fmt.Errorf("%w: %v", ErrDBUpdate, tx.Error)
	}
	if tx.RowsAffected == 0 && !r.jobExists(jobID, userID) {
		return fmt.Errorf("%w: job %d not found for user %d", ErrDBUpdate, jobID, userID)
	}
	return nil
}

func (r *gormRepository) jobExists(jobID, userID uint) bool {
	var count int64
	if err := r.db.Model(&models.Job{}).
		Where("id = ? AND user_id = ?", jobID, userID).
		Count(&count).Error; err != nil {
		return false
	}
	return count > 0
}

func (r *gormRepository) GetUser(userID uint) (*models.User, error) {
	var user models.User
	if err := r.db.First(&user, userID).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// IsNotFound reports whether an error is the GORM record-not-found sentinel.
func IsNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}

package models

import (
	"time"

	"gorm.io/gorm"
)

// Entitlement is the current-state view of what a paying user may do right
// now: active plan, whether posting is enabled, remaining one-time job-post
// credits and the expiry of a featured boost. One logical row per user.
// Mutated exclusively by the fulfillment engine and the subscription
// lifecycle handler; RemainingJobPosts is additionally consumed by job
// creation.
type Entitlement struct {
	ID                uint       `gorm:"primaryKey" json:"id"`
	UserID            uint       `gorm:"uniqueIndex" json:"user_id"`
	Plan              string     `gorm:"type:varchar(50);not null;default:'free';index" json:"plan"`
	CanPostJobs       bool       `gorm:"default:false" json:"can_post_jobs"`
	RemainingJobPosts int        `gorm:"not null;default:0" json:"remaining_job_posts"`
	FeaturedUntil     *time.Time `gorm:"type:timestamp;default:null" json:"featured_until,omitempty"`
	CreatedAt         time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// GetOrCreateEntitlement returns the existing entitlement row for a user or
// creates the free-plan default.
func GetOrCreateEntitlement(db *gorm.DB, userID uint) (*Entitlement, error) {
	var ent Entitlement
	if err := db.Where("user_id = ?", userID).First(&ent).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			ent = Entitlement{UserID: userID, Plan: "free"}
			if err := db.Create(&ent).Error; err != nil {
				return nil, err
			}
			return &ent, nil
		}
		return nil, err
	}
	return &ent, nil
}

// HasActiveBoost reports whether a featured boost is currently running.
func (e *Entitlement) HasActiveBoost(now time.Time) bool {
	return e != nil && e.FeaturedUntil != nil && e.FeaturedUntil.After(now)
}

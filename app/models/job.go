package models

import (
	"time"

	"github.com/go-playground/validator/v10"
	"gorm.io/gorm"
)

const (
	JobStatusDraft   = "draft"
	JobStatusActive  = "active"
	JobStatusExpired = "expired"
)

// Job is a listing on the board. Creating one consumes a job-post credit
// from the owner's entitlement; paid fulfillment may activate it and set the
// featured flag. FeaturedUntil is a denormalized copy of the owner's
// entitlement-level boost expiry and is kept consistent by the fulfillment
// engine.
type Job struct {
	ID            uint           `gorm:"primaryKey" json:"id"`
	UserID        uint           `gorm:"not null;index" json:"user_id"`
	Title         string         `gorm:"type:varchar(200);not null" json:"title" validate:"required,min=3,max=200"`
	CompanyName   string         `gorm:"type:varchar(150);not null" json:"company_name" validate:"required,max=150"`
	Location      string         `gorm:"type:varchar(150);default:''" json:"location" validate:"max=150"`
	Description   string         `gorm:"type:text" json:"description" validate:"max=20000"`
	ApplyURL      string         `gorm:"type:varchar(255);default:''" json:"apply_url" validate:"omitempty,url,max=255"`
	Status        string         `gorm:"type:varchar(20);not null;default:'draft';index" json:"status" validate:"oneof=draft active expired"`
	IsFeatured    bool           `gorm:"default:false;index" json:"is_featured"`
	FeaturedUntil *time.Time     `gorm:"type:timestamp;default:null" json:"featured_until,omitempty"`
	PublishedAt   *time.Time     `gorm:"type:timestamp;default:null" json:"published_at,omitempty"`
	CreatedAt     time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt     gorm.DeletedAt `gorm:"index" json:"-"`
}

func (j *Job) Validate() error {
	v := validator.New()

	return v.Struct(j)
}

// IsPublished reports whether the listing is visible on the board.
func (j *Job) IsPublished() bool {
	return j.Status == JobStatusActive
}

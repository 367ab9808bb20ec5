package models

import "time"

// Purchase is the append-style audit record of a one-time transaction, one
// row per checkout session. The unique session id is the idempotency anchor
// for one-time purchases: a session that already has a row must not grant a
// second entitlement, independent of the global event ledger.
type Purchase struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	UserID      uint      `gorm:"not null;index" json:"user_id"`
	SessionID   string    `gorm:"type:varchar(191);not null;uniqueIndex" json:"session_id"`
	ProductCode string    `gorm:"type:varchar(50);not null;index" json:"product_code"`
	JobID       *uint     `gorm:"index" json:"job_id,omitempty"`
	Consumed    bool      `gorm:"default:false" json:"consumed"`
	CreatedAt   time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

package models

import "time"

// Payment provider constants used across payment-related models.
const (
	PaymentProviderStripe = "stripe"
)

// PaymentEvent is the append-only ledger of externally delivered payment
// events. Exactly one row exists per distinct provider event id; presence of
// a row means the event has already been applied and must not be reapplied.
// Rows are inserted by the webhook endpoint after successful fulfillment and
// are never updated or deleted.
type PaymentEvent struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	Provider        string    `gorm:"type:varchar(20);not null;index:ux_payment_events_provider_event,unique,priority:1" json:"provider"`
	ProviderEventID string    `gorm:"type:varchar(191);not null;index:ux_payment_events_provider_event,unique,priority:2" json:"provider_event_id"`
	EventType       string    `gorm:"type:varchar(100);not null;index" json:"event_type"`
	ProcessedAt     time.Time `gorm:"autoCreateTime;index" json:"processed_at"`
}

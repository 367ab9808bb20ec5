package payments

import "time"

// PurchaseMode mirrors the Stripe checkout session mode.
type PurchaseMode string

const (
	ModeOneTime   PurchaseMode = "payment"
	ModeRecurring PurchaseMode = "subscription"
)

// CheckoutPurchase is the decoded shape of a completed checkout session. It
// exists only for the duration of one webhook invocation and is never
// persisted verbatim.
type CheckoutPurchase struct {
	SessionID         string
	Mode              PurchaseMode
	UserID            uint
	JobID             *uint
	ProductCode       string
	SubscriptionID    string
	CurrentPeriodEnd  *time.Time
	CancelAtPeriodEnd bool
	RawPayloadJSON    string
}

// IsRecurring reports whether the purchase opens a subscription.
func (p *CheckoutPurchase) IsRecurring() bool {
	return p.Mode == ModeRecurring
}

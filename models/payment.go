package models

import "time"

// Payment methods offered to the user.
const (
	MethodTeleBirr = "telebirr"
	MethodCBEBirr  = "cbebirr"
)

// Payment intent statuses. Succeeded and failed are terminal.
const (
	IntentPending   = "pending"
	IntentSucceeded = "succeeded"
	IntentFailed    = "failed"
)

// PaymentIntent tracks one attempt to collect payment for a booking.
// A booking has at most one non-terminal intent at a time; resolving
// the same intent twice with the same outcome is a no-op.
type PaymentIntent struct {
	ID         string    `bson:"id" json:"id"`
	BookingID  string    `bson:"booking_id" json:"booking_id"`
	UserID     int64     `bson:"user_id" json:"user_id"`
	Method     string    `bson:"method" json:"method"`
	Amount     float64   `bson:"amount" json:"amount"`
	Currency   string    `bson:"currency" json:"currency"`
	GatewayRef string    `bson:"gateway_ref" json:"gateway_ref"` // e.g. "TB_..." or "CBE_..."
	PaymentURL string    `bson:"payment_url,omitempty" json:"payment_url,omitempty"`
	Status     string    `bson:"status" json:"status"`
	Polls      int       `bson:"polls" json:"polls"` // gateway status checks performed so far
	CreatedAt  time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt  time.Time `bson:"updated_at" json:"updated_at"`
}

// Terminal reports whether the intent can no longer change state.
func (p *PaymentIntent) Terminal() bool {
	return p.Status == IntentSucceeded || p.Status == IntentFailed
}

// PaymentInit is what a gateway returns when a payment is initiated.
type PaymentInit struct {
	GatewayRef   string `json:"transaction_id"`
	PaymentURL   string `json:"payment_url,omitempty"`
	Instructions string `json:"instructions,omitempty"` // USSD code or receiving account
}

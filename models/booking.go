package models

import "time"

// Booking payment statuses. Completed and failed are terminal;
// refunded only ever follows completed.
const (
	PaymentPending   = "pending"
	PaymentCompleted = "completed"
	PaymentFailed    = "failed"
	PaymentRefunded  = "refunded"
)

// Booking represents a travel booking record.
type Booking struct {
	ID            string            `bson:"id" json:"id"`
	UserID        int64             `bson:"user_id" json:"user_id"`
	Type          string            `bson:"type" json:"type"`           // flight, hotel or tour
	Provider      string            `bson:"provider" json:"provider"`   // airline, hotel chain or operator
	Reference     string            `bson:"reference" json:"reference"` // e.g. "FL3A91BC04"
	OfferID       string            `bson:"offer_id" json:"offer_id"`
	Title         string            `bson:"title" json:"title"`
	Details       map[string]string `bson:"details,omitempty" json:"details,omitempty"` // frozen offer fields at booking time
	TotalPrice    float64           `bson:"total_price" json:"total_price"`
	Currency      string            `bson:"currency" json:"currency"`
	PaymentStatus string            `bson:"payment_status" json:"payment_status"`
	PaymentMethod string            `bson:"payment_method,omitempty" json:"payment_method,omitempty"`
	PaymentRef    string            `bson:"payment_ref,omitempty" json:"payment_ref,omitempty"`
	CreatedAt     time.Time         `bson:"created_at" json:"created_at"`
	UpdatedAt     time.Time         `bson:"updated_at" json:"updated_at"`
}

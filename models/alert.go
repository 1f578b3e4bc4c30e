package models

import "time"

// Price alert statuses. Only active alerts are checked; every other
// status is terminal and an alert fires at most once.
const (
	AlertActive    = "active"
	AlertTriggered = "triggered"
	AlertCancelled = "cancelled"
	AlertExpired   = "expired"
)

// PriceAlert watches a saved search until its cheapest result drops
// to the target price or the alert expires.
type PriceAlert struct {
	ID           string            `bson:"id" json:"id"`
	UserID       int64             `bson:"user_id" json:"user_id"`
	Type         string            `bson:"type" json:"type"` // flight or hotel
	Criteria     map[string]string `bson:"criteria" json:"criteria"`
	TargetPrice  float64           `bson:"target_price" json:"target_price"`
	CurrentPrice float64           `bson:"current_price" json:"current_price"` // cheapest price seen on the last check
	Currency     string            `bson:"currency" json:"currency"`
	Status       string            `bson:"status" json:"status"`
	CreatedAt    time.Time         `bson:"created_at" json:"created_at"`
	TriggeredAt  *time.Time        `bson:"triggered_at,omitempty" json:"triggered_at,omitempty"`
	ExpiresAt    time.Time         `bson:"expires_at" json:"expires_at"`
}

package intentRepo

import (
	"errors"
	"time"

	"tripbot/models"
)

// Sentinel errors surfaced by intent lookups and transitions.
var (
	ErrNotFound         = errors.New("payment intent not found")
	ErrNotPending       = errors.New("payment intent is no longer pending")
	ErrDuplicatePending = errors.New("booking already has a pending payment intent")
)

// IntentRepository defines methods for payment-intent data access.
// A booking holds at most one pending intent at a time; the store
// enforces that with a partial unique index.
type IntentRepository interface {
	// Create inserts a new intent record. Returns ErrDuplicatePending
	// when the booking already holds a pending intent.
	Create(intent *models.PaymentIntent) error
	// GetByID retrieves an intent by its id.
	GetByID(id string) (*models.PaymentIntent, error)
	// GetByGatewayRef retrieves an intent by the gateway's transaction ref.
	GetByGatewayRef(ref string) (*models.PaymentIntent, error)
	// GetPendingByBookingID retrieves the booking's pending intent, if any.
	GetPendingByBookingID(bookingID string) (*models.PaymentIntent, error)
	// Resolve compare-and-sets a pending intent to a terminal status.
	// Returns ErrNotPending when the intent already left pending.
	Resolve(id, to string) error
	// ListPendingBefore returns pending intents created before the cutoff.
	ListPendingBefore(cutoff time.Time, limit int) ([]models.PaymentIntent, error)
	// IncrementPolls bumps the gateway poll counter.
	IncrementPolls(id string) error
}

package bookingRepo

import (
	"errors"

	"tripbot/models"
)

// Sentinel errors surfaced by payment-status transitions.
var (
	ErrNotFound       = errors.New("booking not found")
	ErrStatusConflict = errors.New("booking is not in the expected payment status")
)

// BookingRepository defines methods for booking data access.
type BookingRepository interface {
	// Create inserts a new booking record.
	Create(booking *models.Booking) error
	// GetByID retrieves a booking by its id.
	GetByID(id string) (*models.Booking, error)
	// ListByUser retrieves a user's bookings, newest first.
	ListByUser(userID int64, limit int) ([]models.Booking, error)
	// TransitionPayment moves payment_status from one value to another.
	// Returns ErrStatusConflict when the booking is no longer in "from".
	TransitionPayment(id, from, to, method, paymentRef string) error
}

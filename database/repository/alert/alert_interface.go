package alertRepo

import (
	"errors"

	"tripbot/models"
)

// Sentinel errors surfaced by alert transitions.
var (
	ErrNotFound  = errors.New("price alert not found")
	ErrNotActive = errors.New("price alert is no longer active")
)

// AlertRepository defines methods for price-alert data access.
// All status changes leave "active" through a compare-and-set, which
// is what keeps an alert from firing twice.
type AlertRepository interface {
	// Create inserts a new alert record.
	Create(alert *models.PriceAlert) error
	// GetByID retrieves an alert by its id.
	GetByID(id string) (*models.PriceAlert, error)
	// ListByUser retrieves a user's alerts, newest first.
	ListByUser(userID int64, limit int) ([]models.PriceAlert, error)
	// CountActive returns how many active alerts the user holds.
	CountActive(userID int64) (int64, error)
	// ListActive returns active alerts for a monitoring pass, oldest first.
	ListActive(limit int) ([]models.PriceAlert, error)
	// SetCurrentPrice records the cheapest price seen on the last check.
	SetCurrentPrice(id string, price float64) error
	// MarkTriggered compare-and-sets active → triggered.
	MarkTriggered(id string, price float64) error
	// MarkExpired compare-and-sets active → expired.
	MarkExpired(id string) error
	// Cancel compare-and-sets the user's active alert to cancelled.
	Cancel(id string, userID int64) error
}

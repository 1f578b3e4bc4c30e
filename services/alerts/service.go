// Package alerts watches saved searches and pings the user when the
// cheapest result drops to their target. An alert fires at most once;
// the compare-and-set on the alert row is what enforces that.
package alerts

import (
	"context"
	"errors"
	"fmt"
	"time"

	alertRepo "tripbot/database/repository/alert"
	"tripbot/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	// ErrAlertLimit means the user already holds the allowed number of
	// active alerts.
	ErrAlertLimit = errors.New("active alert limit reached")
	// ErrBadTarget means the target price is not a positive amount.
	ErrBadTarget = errors.New("target price must be positive")
	// ErrBadType means the alert type is not watchable.
	ErrBadType = errors.New("alerts watch flights or hotels")
)

// AlertService is the user-facing alert surface.
type AlertService interface {
	// Create registers a new active alert for the criteria.
	Create(ctx context.Context, userID int64, alertType string, criteria map[string]string, target float64) (*models.PriceAlert, error)
	// List returns the user's alerts, newest first.
	List(ctx context.Context, userID int64, limit int) ([]models.PriceAlert, error)
	// Cancel deactivates one of the user's active alerts. Cancelling an
	// already-settled alert reports why it cannot be cancelled.
	Cancel(ctx context.Context, userID int64, alertID string) error
}

// DefaultAlertService is the production implementation.
type DefaultAlertService struct {
	Repo       alertRepo.AlertRepository
	MaxPerUser int
	ExpiryDays int
	Logger     *zap.Logger
	Now        func() time.Time
}

func (s *DefaultAlertService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Create registers a new active alert for the criteria.
func (s *DefaultAlertService) Create(ctx context.Context, userID int64, alertType string, criteria map[string]string, target float64) (*models.PriceAlert, error) {
	if alertType != models.KindFlight && alertType != models.KindHotel {
		return nil, ErrBadType
	}
	if target <= 0 {
		return nil, ErrBadTarget
	}

	if s.MaxPerUser > 0 {
		active, err := s.Repo.CountActive(userID)
		if err != nil {
			return nil, err
		}
		if active >= int64(s.MaxPerUser) {
			return nil, fmt.Errorf("%w (%d active)", ErrAlertLimit, active)
		}
	}

	expiryDays := s.ExpiryDays
	if expiryDays <= 0 {
		expiryDays = 30
	}

	alert := &models.PriceAlert{
		ID:          uuid.NewString(),
		UserID:      userID,
		Type:        alertType,
		Criteria:    criteria,
		TargetPrice: target,
		Currency:    "ETB",
		Status:      models.AlertActive,
		ExpiresAt:   s.now().AddDate(0, 0, expiryDays),
	}
	if err := s.Repo.Create(alert); err != nil {
		return nil, err
	}

	s.Logger.Info("price alert created",
		zap.String("alert_id", alert.ID),
		zap.Int64("user_id", userID),
		zap.String("type", alertType),
		zap.Float64("target", target))
	return alert, nil
}

// List returns the user's alerts, newest first.
func (s *DefaultAlertService) List(ctx context.Context, userID int64, limit int) ([]models.PriceAlert, error) {
	return s.Repo.ListByUser(userID, limit)
}

// Cancel deactivates one of the user's active alerts.
func (s *DefaultAlertService) Cancel(ctx context.Context, userID int64, alertID string) error {
	return s.Repo.Cancel(alertID, userID)
}

package alerts

import (
	"context"
	"fmt"
	"time"

	alertRepo "tripbot/database/repository/alert"
	"tripbot/models"
	"tripbot/services/currency"
	"tripbot/services/notification"
	"tripbot/services/trip"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

var (
	checkedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "alerts_checked_total",
		Help: "Price alerts evaluated by the monitoring loop.",
	})
	triggeredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "alerts_triggered_total",
		Help: "Price alerts that fired.",
	})
	checkErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "alerts_check_errors_total",
		Help: "Alert checks that failed, usually provider faults.",
	})
)

// Engine periodically re-runs each active alert's search. One alert's
// failure never stops the pass, and two engines running the same pass
// cannot double-fire an alert: the status transition is a compare-and-
// set and only the winner notifies.
type Engine struct {
	Alerts     alertRepo.AlertRepository
	Trip       trip.TripService
	Dispatcher notification.Dispatcher

	Interval  time.Duration
	BatchSize int

	Logger *zap.Logger
	Now    func() time.Time
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// Start runs the monitoring loop until the context is cancelled.
func (e *Engine) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(e.Interval)
		defer ticker.Stop()

		e.Logger.Info("price alert engine started", zap.Duration("interval", e.Interval))

		for {
			select {
			case <-ctx.Done():
				e.Logger.Info("price alert engine stopped")
				return
			case <-ticker.C:
				e.RunOnce(ctx)
			}
		}
	}()
}

// RunOnce performs a single monitoring pass and reports how many
// alerts were checked.
func (e *Engine) RunOnce(ctx context.Context) int {
	batch := e.BatchSize
	if batch <= 0 {
		batch = 200
	}

	active, err := e.Alerts.ListActive(batch)
	if err != nil {
		e.Logger.Error("failed to list active alerts", zap.Error(err))
		return 0
	}

	checked := 0
	for i := range active {
		alert := active[i]
		checkedTotal.Inc()
		if err := e.check(ctx, &alert); err != nil {
			checkErrorsTotal.Inc()
			e.Logger.Warn("alert check failed",
				zap.String("alert_id", alert.ID),
				zap.Int64("user_id", alert.UserID),
				zap.Error(err))
			continue
		}
		checked++
	}
	return checked
}

func (e *Engine) check(ctx context.Context, alert *models.PriceAlert) error {
	if e.now().After(alert.ExpiresAt) {
		err := e.Alerts.MarkExpired(alert.ID)
		if err == alertRepo.ErrNotActive {
			return nil
		}
		if err == nil {
			e.Logger.Info("price alert expired", zap.String("alert_id", alert.ID))
		}
		return err
	}

	offers, err := e.Trip.Search(ctx, alert.Type, alert.Criteria)
	if err != nil {
		return err
	}
	if len(offers) == 0 {
		return nil
	}

	min := offers[0].PriceETB
	for _, o := range offers[1:] {
		if o.PriceETB < min {
			min = o.PriceETB
		}
	}

	if min > alert.TargetPrice {
		return e.Alerts.SetCurrentPrice(alert.ID, min)
	}

	// Target met. Whoever wins this transition owns the notification.
	if err := e.Alerts.MarkTriggered(alert.ID, min); err != nil {
		if err == alertRepo.ErrNotActive {
			return nil
		}
		return err
	}

	triggeredTotal.Inc()
	e.Logger.Info("price alert triggered",
		zap.String("alert_id", alert.ID),
		zap.Int64("user_id", alert.UserID),
		zap.Float64("price", min),
		zap.Float64("target", alert.TargetPrice))

	note := models.Notification{
		UserID: alert.UserID,
		Kind:   models.NotePriceAlert,
		Title:  "Price drop",
		Body: fmt.Sprintf("%s is now %s, at or below your target of %s.",
			describeCriteria(alert), currency.FormatETB(min), currency.FormatETB(alert.TargetPrice)),
		Data: map[string]any{"alert_id": alert.ID, "price": min},
	}
	if err := e.Dispatcher.Enqueue(ctx, note, time.Time{}); err != nil {
		// The alert stays triggered either way; it never fires twice.
		e.Logger.Error("failed to queue alert notification",
			zap.String("alert_id", alert.ID), zap.Error(err))
	}
	return nil
}

func describeCriteria(alert *models.PriceAlert) string {
	switch alert.Type {
	case models.KindFlight:
		return fmt.Sprintf("Flight %s → %s", alert.Criteria["from_city"], alert.Criteria["to_city"])
	case models.KindHotel:
		return fmt.Sprintf("Hotel in %s", alert.Criteria["city"])
	}
	return "Your watched trip"
}

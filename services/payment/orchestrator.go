package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	bookingRepo "tripbot/database/repository/booking"
	intentRepo "tripbot/database/repository/intent"
	userRepo "tripbot/database/repository/user"
	"tripbot/models"
	"tripbot/services/currency"
	"tripbot/services/notification"
	"tripbot/services/trip"
	"tripbot/utils"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

var resolvedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "payments_resolved_total",
	Help: "Payment intents resolved, by outcome.",
}, []string{"outcome"})

// ResolvedHook runs after an intent reaches a terminal status, with
// the booking already transitioned. The conversation machine uses it
// to settle or reopen the user's session.
type ResolvedHook func(ctx context.Context, booking *models.Booking, succeeded bool)

// Orchestrator owns the payment lifecycle: one pending intent per
// booking, terminal outcomes applied exactly once, and the booking,
// provider, notifications and conversation all settled on resolution.
type Orchestrator interface {
	// Begin opens (or returns the already-open) payment for a booking.
	Begin(ctx context.Context, bookingID, method string) (*models.PaymentIntent, *models.PaymentInit, error)
	// Resolve applies a gateway-reported outcome to the intent behind
	// the transaction ref. Outcome is succeeded or failed.
	Resolve(ctx context.Context, gatewayRef, outcome string) error
	// ResolveIntent applies an outcome to a known intent.
	ResolveIntent(ctx context.Context, intent *models.PaymentIntent, outcome string) error
	// GatewayFor returns the gateway serving a payment method.
	GatewayFor(method string) (Gateway, bool)
}

// DefaultOrchestrator is the production implementation.
type DefaultOrchestrator struct {
	Bookings bookingRepo.BookingRepository
	Intents  intentRepo.IntentRepository
	Users    userRepo.UserRepository
	Gateways map[string]Gateway

	Trip       trip.TripService
	Dispatcher notification.Dispatcher

	FlightReminderHours int
	Logger              *zap.Logger
	Now                 func() time.Time

	onResolved ResolvedHook
}

// SetResolvedHook installs the post-resolution callback. Wire-up only;
// not safe to call once the orchestrator is serving.
func (o *DefaultOrchestrator) SetResolvedHook(hook ResolvedHook) {
	o.onResolved = hook
}

// GatewayFor returns the gateway serving a payment method.
func (o *DefaultOrchestrator) GatewayFor(method string) (Gateway, bool) {
	gw, ok := o.Gateways[method]
	return gw, ok
}

func (o *DefaultOrchestrator) now() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now()
}

// Begin opens a payment for the booking. Calling it twice with the
// same booking returns the intent already in flight instead of
// charging the user again.
func (o *DefaultOrchestrator) Begin(ctx context.Context, bookingID, method string) (*models.PaymentIntent, *models.PaymentInit, error) {
	booking, err := o.Bookings.GetByID(bookingID)
	if err != nil {
		return nil, nil, err
	}
	if booking.PaymentStatus != models.PaymentPending {
		return nil, nil, fmt.Errorf("booking %s is %s: %w", bookingID, booking.PaymentStatus, ErrInvalidTransition)
	}

	gw, ok := o.Gateways[method]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrUnknownMethod, method)
	}

	if existing, err := o.Intents.GetPendingByBookingID(bookingID); err != nil {
		return nil, nil, err
	} else if existing != nil {
		o.Logger.Info("reusing pending payment intent",
			zap.String("booking_id", bookingID), zap.String("intent_id", existing.ID))
		return existing, &models.PaymentInit{GatewayRef: existing.GatewayRef, PaymentURL: existing.PaymentURL}, nil
	}

	phone := ""
	if user, err := o.Users.GetByID(booking.UserID); err == nil && user != nil {
		phone = user.Phone
	}

	init, err := gw.Initiate(ctx, booking.TotalPrice, booking.UserID, booking.Reference, phone)
	if err != nil {
		return nil, nil, err
	}

	intent := &models.PaymentIntent{
		ID:         uuid.NewString(),
		BookingID:  booking.ID,
		UserID:     booking.UserID,
		Method:     method,
		Amount:     booking.TotalPrice,
		Currency:   booking.Currency,
		GatewayRef: init.GatewayRef,
		PaymentURL: init.PaymentURL,
		Status:     models.IntentPending,
	}
	if err := o.Intents.Create(intent); err != nil {
		if errors.Is(err, intentRepo.ErrDuplicatePending) {
			existing, exErr := o.Intents.GetPendingByBookingID(bookingID)
			if exErr == nil && existing != nil {
				return existing, &models.PaymentInit{GatewayRef: existing.GatewayRef, PaymentURL: existing.PaymentURL}, nil
			}
		}
		return nil, nil, err
	}

	o.Logger.Info("payment intent opened",
		zap.String("booking_id", booking.ID),
		zap.String("intent_id", intent.ID),
		zap.String("method", method),
		zap.Float64("amount", intent.Amount))
	return intent, init, nil
}

// Resolve applies a gateway-reported outcome to the intent behind ref.
func (o *DefaultOrchestrator) Resolve(ctx context.Context, gatewayRef, outcome string) error {
	intent, err := o.Intents.GetByGatewayRef(gatewayRef)
	if err != nil {
		return err
	}
	return o.ResolveIntent(ctx, intent, outcome)
}

// ResolveIntent applies an outcome to a known intent. The compare-and-
// set on the intent row is the only gate: whoever wins it finalizes
// the booking, every other caller either no-ops or conflicts.
func (o *DefaultOrchestrator) ResolveIntent(ctx context.Context, intent *models.PaymentIntent, outcome string) error {
	if outcome != models.IntentSucceeded && outcome != models.IntentFailed {
		return fmt.Errorf("outcome %q is not terminal: %w", outcome, ErrInvalidTransition)
	}

	if err := o.Intents.Resolve(intent.ID, outcome); err != nil {
		if errors.Is(err, intentRepo.ErrNotPending) {
			current, getErr := o.Intents.GetByID(intent.ID)
			if getErr != nil {
				return getErr
			}
			if current.Status == outcome {
				return nil
			}
			return fmt.Errorf("intent %s is already %s: %w", intent.ID, current.Status, ErrInvalidTransition)
		}
		return err
	}

	resolvedTotal.WithLabelValues(outcome).Inc()

	booking, err := o.Bookings.GetByID(intent.BookingID)
	if err != nil {
		return fmt.Errorf("intent %s resolved but booking lookup failed: %w", intent.ID, err)
	}

	if outcome == models.IntentSucceeded {
		o.finalizeSuccess(ctx, intent, booking)
	} else {
		o.finalizeFailure(ctx, intent, booking)
	}
	return nil
}

// finalizeSuccess completes the booking. It runs even when the user's
// session is long gone: money was taken, so the booking stands and the
// user hears about it through the dispatcher.
func (o *DefaultOrchestrator) finalizeSuccess(ctx context.Context, intent *models.PaymentIntent, booking *models.Booking) {
	err := o.Bookings.TransitionPayment(booking.ID, models.PaymentPending, models.PaymentCompleted, intent.Method, intent.GatewayRef)
	if err != nil {
		o.Logger.Error("booking completion failed after payment success",
			zap.String("booking_id", booking.ID), zap.Error(err))
		return
	}
	booking.PaymentStatus = models.PaymentCompleted
	booking.PaymentMethod = intent.Method
	booking.PaymentRef = intent.GatewayRef

	if ref, err := o.Trip.Book(ctx, booking); err != nil {
		o.Logger.Warn("provider booking confirmation failed",
			zap.String("booking_id", booking.ID), zap.Error(err))
	} else {
		o.Logger.Info("provider confirmed booking",
			zap.String("booking_id", booking.ID), zap.String("provider_ref", ref))
	}

	note := models.Notification{
		UserID: booking.UserID,
		Kind:   models.NoteBookingConfirmed,
		Title:  "Booking confirmed",
		Body: fmt.Sprintf("%s is booked. Reference %s, paid %s.",
			booking.Title, booking.Reference, currency.FormatETB(booking.TotalPrice)),
		Data: map[string]any{"booking_id": booking.ID, "reference": booking.Reference},
	}
	if err := o.Dispatcher.Enqueue(ctx, note, time.Time{}); err != nil {
		o.Logger.Error("failed to queue confirmation", zap.String("booking_id", booking.ID), zap.Error(err))
	}

	o.scheduleReminder(ctx, booking)

	if o.onResolved != nil {
		o.onResolved(ctx, booking, true)
	}
}

func (o *DefaultOrchestrator) finalizeFailure(ctx context.Context, intent *models.PaymentIntent, booking *models.Booking) {
	err := o.Bookings.TransitionPayment(booking.ID, models.PaymentPending, models.PaymentFailed, intent.Method, intent.GatewayRef)
	if err != nil {
		o.Logger.Error("booking failure transition failed",
			zap.String("booking_id", booking.ID), zap.Error(err))
		return
	}
	booking.PaymentStatus = models.PaymentFailed

	note := models.Notification{
		UserID: booking.UserID,
		Kind:   models.NotePaymentFailed,
		Title:  "Payment failed",
		Body:   fmt.Sprintf("Payment for %s (ref %s) did not go through. You can try again from the menu.", booking.Title, booking.Reference),
		Data:   map[string]any{"booking_id": booking.ID, "reference": booking.Reference},
	}
	if err := o.Dispatcher.Enqueue(ctx, note, time.Time{}); err != nil {
		o.Logger.Error("failed to queue payment failure notice", zap.String("booking_id", booking.ID), zap.Error(err))
	}

	if o.onResolved != nil {
		o.onResolved(ctx, booking, false)
	}
}

// scheduleReminder queues the pre-trip reminder: flights a configured
// number of hours before departure, hotels the day before check-in.
func (o *DefaultOrchestrator) scheduleReminder(ctx context.Context, booking *models.Booking) {
	var fireAt time.Time
	var body string

	switch booking.Type {
	case models.KindFlight:
		depart, err := time.Parse(time.RFC3339, booking.Details["departure_time"])
		if err != nil {
			return
		}
		lead := o.FlightReminderHours
		if lead <= 0 {
			lead = 24
		}
		fireAt = depart.Add(-time.Duration(lead) * time.Hour)
		body = fmt.Sprintf("Reminder: your flight %s departs %s. Reference %s.",
			booking.Title, booking.Details["departure_time"], booking.Reference)
	case models.KindHotel:
		checkin, err := time.Parse(utils.DateLayout, booking.Details["checkin_date"])
		if err != nil {
			return
		}
		fireAt = checkin.Add(-24 * time.Hour)
		body = fmt.Sprintf("Reminder: check-in at %s is tomorrow (%s). Reference %s.",
			booking.Title, booking.Details["checkin_date"], booking.Reference)
	default:
		return
	}

	if !fireAt.After(o.now()) {
		return
	}

	note := models.Notification{
		UserID: booking.UserID,
		Kind:   models.NoteTripReminder,
		Title:  "Trip reminder",
		Body:   body,
		Data:   map[string]any{"booking_id": booking.ID, "reference": booking.Reference},
	}
	if err := o.Dispatcher.Enqueue(ctx, note, fireAt); err != nil {
		o.Logger.Error("failed to schedule trip reminder",
			zap.String("booking_id", booking.ID), zap.Error(err))
		return
	}
	o.Logger.Info("trip reminder scheduled",
		zap.String("booking_id", booking.ID), zap.Time("fire_at", fireAt))
}

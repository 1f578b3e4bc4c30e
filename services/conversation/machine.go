package conversation

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	bookingRepo "tripbot/database/repository/booking"
	intentRepo "tripbot/database/repository/intent"
	searchRepo "tripbot/database/repository/search"
	"tripbot/models"
	"tripbot/services/alerts"
	"tripbot/services/currency"
	"tripbot/services/notification"
	"tripbot/services/offers"
	"tripbot/services/payment"
	"tripbot/services/trip"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// Canonical inputs the transport feeds into Advance. Buttons arrive with a
// prefix, everything else is free text for the step being collected.
const (
	inputFlowPrefix   = "flow:"
	inputSelectPrefix = "select:"
	inputPayPrefix    = "pay:"
	inputCancel       = "cancel"
)

var (
	flowsStarted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "conversation_flows_started_total",
		Help: "Conversation flows started, by flow.",
	}, []string{"flow"})
	bookingsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bookings_created_total",
		Help: "Bookings created from offer selections, by type.",
	}, []string{"type"})
)

// ConversationService drives the booking conversation. One user input goes
// in, the next prompt comes out, and all session state stays behind it.
type ConversationService interface {
	// Advance feeds one user input into the user's conversation.
	Advance(ctx context.Context, userID int64, input string) (*Prompt, error)
	// Cancel abandons the user's conversation, wherever it is.
	Cancel(ctx context.Context, userID int64) (*Prompt, error)
	// OnPaymentResolved closes or keeps the session when a payment
	// settles. Chat delivery happens through the dispatcher, not here.
	OnPaymentResolved(ctx context.Context, booking *models.Booking, succeeded bool)
	// SweepIdle times out sessions idle past the window and returns how
	// many it closed.
	SweepIdle(ctx context.Context) int
}

// DefaultConversationService is the production implementation.
type DefaultConversationService struct {
	Store         Store
	Bookings      bookingRepo.BookingRepository
	Intents       intentRepo.IntentRepository
	Searches      searchRepo.SearchRepository
	Trip          trip.TripService
	Offers        offers.Cache
	Payments      payment.Orchestrator
	Alerts        alerts.AlertService
	Dispatcher    notification.Dispatcher
	IdleTimeout   time.Duration
	MaxPassengers int
	Logger        *zap.Logger
	Now           func() time.Time

	lockInit sync.Once
	locks    *userLocks
}

func (svc *DefaultConversationService) now() time.Time {
	if svc.Now != nil {
		return svc.Now()
	}
	return time.Now()
}

// withUser serializes all session work for one user.
func (svc *DefaultConversationService) withUser(userID int64, fn func() error) error {
	svc.lockInit.Do(func() { svc.locks = newUserLocks() })
	return svc.locks.withLock(userID, fn)
}

func (svc *DefaultConversationService) Advance(ctx context.Context, userID int64, input string) (*Prompt, error) {
	input = strings.TrimSpace(input)

	var prompt *Prompt
	err := svc.withUser(userID, func() error {
		sess, err := svc.Store.Get(ctx, userID)
		if err != nil {
			return err
		}
		prompt, err = svc.advance(ctx, userID, sess, input)
		return err
	})
	return prompt, err
}

func (svc *DefaultConversationService) advance(ctx context.Context, userID int64, sess *models.Session, input string) (*Prompt, error) {
	if input == inputCancel {
		return svc.cancel(ctx, userID, sess)
	}
	if flow, ok := strings.CutPrefix(input, inputFlowPrefix); ok {
		return svc.startFlow(ctx, userID, sess, flow)
	}
	if sess == nil {
		return &Prompt{Kind: PromptMenu}, nil
	}

	switch sess.State {
	case models.StateCollectingCriteria:
		return svc.collect(ctx, sess, input)
	case models.StateAwaitingSelection:
		return svc.selectOffer(ctx, sess, input)
	case models.StateAwaitingPayment:
		return svc.choosePayment(ctx, sess, input)
	}

	// Terminal sessions are deleted when they end; a leftover means a
	// stale record, treat the user as idle.
	if err := svc.Store.Delete(ctx, userID); err != nil {
		return nil, err
	}
	return &Prompt{Kind: PromptMenu}, nil
}

func (svc *DefaultConversationService) Cancel(ctx context.Context, userID int64) (*Prompt, error) {
	var prompt *Prompt
	err := svc.withUser(userID, func() error {
		sess, err := svc.Store.Get(ctx, userID)
		if err != nil {
			return err
		}
		prompt, err = svc.cancel(ctx, userID, sess)
		return err
	})
	return prompt, err
}

// cancel drops the session. A booking already awaiting payment keeps its
// pending record: a transfer may still land, and the poller settles
// whatever the gateway reports.
func (svc *DefaultConversationService) cancel(ctx context.Context, userID int64, sess *models.Session) (*Prompt, error) {
	if sess == nil {
		return &Prompt{Kind: PromptCancelled}, nil
	}
	if sess.SnapshotID != "" {
		svc.releaseSnapshot(ctx, sess.SnapshotID)
	}
	if err := svc.Store.Delete(ctx, userID); err != nil {
		return nil, err
	}
	svc.Logger.Info("conversation cancelled",
		zap.Int64("user_id", userID), zap.String("state", sess.State))
	return &Prompt{Kind: PromptCancelled, Flow: sess.Flow}, nil
}

func (svc *DefaultConversationService) startFlow(ctx context.Context, userID int64, prev *models.Session, flow string) (*Prompt, error) {
	switch flow {
	case models.FlowFlight, models.FlowHotel, models.FlowTour, models.FlowAlert:
	default:
		return &Prompt{Kind: PromptMenu}, nil
	}

	// Starting a new flow abandons whatever was in progress.
	if prev != nil && prev.SnapshotID != "" {
		svc.releaseSnapshot(ctx, prev.SnapshotID)
	}

	now := svc.now()
	sess := &models.Session{
		UserID:    userID,
		Flow:      flow,
		State:     models.StateCollectingCriteria,
		Criteria:  map[string]string{},
		StartedAt: now,
		UpdatedAt: now,
	}
	flowsStarted.WithLabelValues(flow).Inc()

	// Tours go straight to the catalog, nothing to collect.
	if flow == models.FlowTour {
		return svc.search(ctx, sess)
	}

	sess.Step = flowSteps(flow)[0].field
	if err := svc.Store.Save(ctx, sess); err != nil {
		return nil, err
	}
	return askPrompt(flow, sess.Step), nil
}

func (svc *DefaultConversationService) collect(ctx context.Context, sess *models.Session, input string) (*Prompt, error) {
	steps := flowSteps(sess.Flow)
	idx := stepIndex(sess.Flow, sess.Step)
	if idx < 0 {
		return nil, fmt.Errorf("session for user %d is on unknown step %q", sess.UserID, sess.Step)
	}

	value, err := steps[idx].validate(svc, sess, input)
	var verr *ValidationError
	if errors.As(err, &verr) {
		svc.touch(ctx, sess)
		return retryPrompt(sess.Flow, sess.Step, verr.Reason), nil
	}
	if err != nil {
		return nil, err
	}
	if value != "" {
		sess.Criteria[sess.Step] = value
	}

	if idx+1 < len(steps) {
		sess.Step = steps[idx+1].field
		sess.UpdatedAt = svc.now()
		if err := svc.Store.Save(ctx, sess); err != nil {
			return nil, err
		}
		return askPrompt(sess.Flow, sess.Step), nil
	}

	if sess.Flow == models.FlowAlert {
		return svc.createAlert(ctx, sess)
	}
	return svc.search(ctx, sess)
}

// search runs the provider query, freezes the results and moves the
// session to selection. Failures end the conversation with an apology
// rather than leaving the user stuck mid flow.
func (svc *DefaultConversationService) search(ctx context.Context, sess *models.Session) (*Prompt, error) {
	kind := flowKind(sess.Flow)
	results, err := svc.Trip.Search(ctx, kind, sess.Criteria)
	if err != nil {
		svc.Logger.Error("provider search failed",
			zap.Int64("user_id", sess.UserID), zap.String("kind", kind), zap.Error(err))
		if derr := svc.Store.Delete(ctx, sess.UserID); derr != nil {
			return nil, derr
		}
		return &Prompt{Kind: PromptMenu, Error: "search is unavailable right now, please try again in a few minutes"}, nil
	}
	if len(results) == 0 {
		if err := svc.Store.Delete(ctx, sess.UserID); err != nil {
			return nil, err
		}
		return &Prompt{Kind: PromptMenu, Error: "no " + kind + " results found, try different criteria"}, nil
	}

	svc.recordSearch(sess, kind, results)

	snapID, err := svc.Offers.Put(ctx, kind, results)
	if err != nil {
		return nil, err
	}
	if sess.SnapshotID != "" {
		svc.releaseSnapshot(ctx, sess.SnapshotID)
	}

	sess.SnapshotID = snapID
	sess.State = models.StateAwaitingSelection
	sess.Step = ""
	sess.UpdatedAt = svc.now()
	if err := svc.Store.Save(ctx, sess); err != nil {
		return nil, err
	}
	return &Prompt{Kind: PromptOffers, Flow: sess.Flow, Offers: results}, nil
}

func (svc *DefaultConversationService) selectOffer(ctx context.Context, sess *models.Session, input string) (*Prompt, error) {
	offerID, ok := strings.CutPrefix(input, inputSelectPrefix)
	if !ok {
		return svc.redisplayOffers(ctx, sess, "pick one of the options below")
	}

	offer, err := svc.Offers.Get(ctx, sess.SnapshotID, offerID)
	switch {
	case errors.Is(err, offers.ErrSnapshotExpired):
		return svc.refreshOffers(ctx, sess)
	case errors.Is(err, offers.ErrOfferNotFound):
		return svc.redisplayOffers(ctx, sess, "that option is not on the list, pick one below")
	case err != nil:
		return nil, err
	}

	booking, err := svc.createBooking(sess, offer)
	if err != nil {
		return nil, err
	}

	sess.BookingID = booking.ID
	sess.State = models.StateAwaitingPayment
	sess.UpdatedAt = svc.now()
	if err := svc.Store.Save(ctx, sess); err != nil {
		return nil, err
	}
	return svc.methodsPrompt(booking), nil
}

func (svc *DefaultConversationService) choosePayment(ctx context.Context, sess *models.Session, input string) (*Prompt, error) {
	method, ok := strings.CutPrefix(input, inputPayPrefix)
	if !ok {
		return svc.remindMethods(ctx, sess, "choose a payment method below")
	}

	intent, init, err := svc.Payments.Begin(ctx, sess.BookingID, method)
	switch {
	case errors.Is(err, payment.ErrUnknownMethod):
		return svc.remindMethods(ctx, sess, "that payment method is not available")
	case errors.Is(err, payment.ErrInvalidTransition):
		// The booking settled underneath the session, e.g. the poller
		// force-failed it. The conversation has nothing left to do.
		if derr := svc.Store.Delete(ctx, sess.UserID); derr != nil {
			return nil, derr
		}
		return &Prompt{Kind: PromptMenu, Error: "that booking can no longer be paid, please start over"}, nil
	case err != nil:
		var gerr *payment.GatewayError
		if errors.As(err, &gerr) {
			svc.Logger.Error("payment initiation failed",
				zap.String("booking_id", sess.BookingID), zap.Error(err))
			return svc.remindMethods(ctx, sess, "the payment provider is unavailable, try again in a moment")
		}
		return nil, err
	}

	svc.touch(ctx, sess)
	return &Prompt{
		Kind: PromptInstructions,
		Flow: sess.Flow,
		Args: map[string]string{
			"method":       intent.Method,
			"reference":    intent.GatewayRef,
			"amount":       currency.FormatETB(intent.Amount),
			"payment_url":  init.PaymentURL,
			"instructions": init.Instructions,
		},
	}, nil
}

func (svc *DefaultConversationService) remindMethods(ctx context.Context, sess *models.Session, reason string) (*Prompt, error) {
	booking, err := svc.Bookings.GetByID(sess.BookingID)
	if err != nil {
		return nil, err
	}
	svc.touch(ctx, sess)
	p := svc.methodsPrompt(booking)
	p.Error = reason
	return p, nil
}

func (svc *DefaultConversationService) methodsPrompt(b *models.Booking) *Prompt {
	return &Prompt{
		Kind: PromptMethods,
		Flow: b.Type,
		Args: map[string]string{
			"title":     b.Title,
			"reference": b.Reference,
			"amount":    currency.FormatETB(b.TotalPrice),
		},
	}
}

func (svc *DefaultConversationService) redisplayOffers(ctx context.Context, sess *models.Session, reason string) (*Prompt, error) {
	snap, err := svc.Offers.Snapshot(ctx, sess.SnapshotID)
	if errors.Is(err, offers.ErrSnapshotExpired) {
		return svc.refreshOffers(ctx, sess)
	}
	if err != nil {
		return nil, err
	}
	svc.touch(ctx, sess)
	return &Prompt{Kind: PromptOffers, Flow: sess.Flow, Offers: snap.Offers, Error: reason}, nil
}

// refreshOffers reruns the search after a snapshot expired under the
// user. The session stays in selection with the fresh snapshot.
func (svc *DefaultConversationService) refreshOffers(ctx context.Context, sess *models.Session) (*Prompt, error) {
	prompt, err := svc.search(ctx, sess)
	if err != nil {
		return nil, err
	}
	if prompt.Kind == PromptOffers {
		prompt.Error = "those prices expired, here is a fresh search"
	}
	return prompt, nil
}

// createBooking freezes the chosen offer into a pending booking.
func (svc *DefaultConversationService) createBooking(sess *models.Session, offer models.Offer) (*models.Booking, error) {
	now := svc.now()
	booking := &models.Booking{
		ID:            uuid.NewString(),
		UserID:        sess.UserID,
		Type:          offer.Kind,
		Provider:      offer.Provider,
		Reference:     newReference(offer.Kind),
		OfferID:       offer.ID,
		Title:         offer.Title,
		Details:       frozenDetails(offer, sess.Criteria),
		TotalPrice:    offer.PriceETB,
		Currency:      "ETB",
		PaymentStatus: models.PaymentPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := svc.Bookings.Create(booking); err != nil {
		return nil, err
	}

	bookingsCreated.WithLabelValues(offer.Kind).Inc()
	svc.Logger.Info("booking created",
		zap.Int64("user_id", sess.UserID),
		zap.String("booking_id", booking.ID),
		zap.String("reference", booking.Reference),
		zap.Float64("total", booking.TotalPrice))
	return booking, nil
}

func (svc *DefaultConversationService) createAlert(ctx context.Context, sess *models.Session) (*Prompt, error) {
	kind := sess.Criteria["alert_type"]
	target, err := strconv.ParseFloat(sess.Criteria["target_price"], 64)
	if err != nil {
		return nil, fmt.Errorf("corrupt target price in session: %w", err)
	}

	last, err := svc.Searches.LatestByUser(sess.UserID, kind)
	if err != nil {
		return nil, err
	}
	if last == nil {
		// The type step checks this, but the search history may have
		// been pruned since.
		if derr := svc.Store.Delete(ctx, sess.UserID); derr != nil {
			return nil, derr
		}
		return &Prompt{Kind: PromptMenu, Error: "run a " + kind + " search first so the alert knows what to watch"}, nil
	}

	alert, err := svc.Alerts.Create(ctx, sess.UserID, kind, last.Criteria, target)
	if errors.Is(err, alerts.ErrAlertLimit) {
		if derr := svc.Store.Delete(ctx, sess.UserID); derr != nil {
			return nil, derr
		}
		return &Prompt{Kind: PromptMenu, Error: "you already have the maximum number of active alerts"}, nil
	}
	if err != nil {
		return nil, err
	}

	if derr := svc.Store.Delete(ctx, sess.UserID); derr != nil {
		return nil, derr
	}
	return &Prompt{
		Kind: PromptAlertCreated,
		Flow: models.FlowAlert,
		Args: map[string]string{
			"alert_id": alert.ID,
			"type":     kind,
			"target":   currency.FormatETB(alert.TargetPrice),
			"expires":  alert.ExpiresAt.Format("2006-01-02"),
		},
	}, nil
}

// OnPaymentResolved runs after the orchestrator settles a payment. The
// user hears about the outcome through the dispatcher; this only decides
// what happens to the conversation.
func (svc *DefaultConversationService) OnPaymentResolved(ctx context.Context, booking *models.Booking, succeeded bool) {
	err := svc.withUser(booking.UserID, func() error {
		sess, err := svc.Store.Get(ctx, booking.UserID)
		if err != nil {
			return err
		}
		if sess == nil || sess.BookingID != booking.ID {
			// Session moved on or timed out. The booking record is
			// already settled, nothing to adjust here.
			return nil
		}

		if !succeeded {
			// The failed booking stays on record; the session goes back
			// to selection so the next pick opens a fresh booking and
			// intent.
			sess.BookingID = ""
			sess.State = models.StateAwaitingSelection
			sess.UpdatedAt = svc.now()
			return svc.Store.Save(ctx, sess)
		}

		if sess.SnapshotID != "" {
			svc.releaseSnapshot(ctx, sess.SnapshotID)
		}
		return svc.Store.Delete(ctx, booking.UserID)
	})
	if err != nil {
		svc.Logger.Error("failed to settle session after payment",
			zap.Int64("user_id", booking.UserID),
			zap.String("booking_id", booking.ID),
			zap.Error(err))
	}
}

func (svc *DefaultConversationService) recordSearch(sess *models.Session, kind string, results []models.Offer) {
	record := &models.SearchRecord{
		ID:          uuid.NewString(),
		UserID:      sess.UserID,
		Type:        kind,
		Criteria:    copyCriteria(sess.Criteria),
		MinPrice:    minPrice(results),
		ResultCount: len(results),
		SearchedAt:  svc.now(),
	}
	if err := svc.Searches.Create(record); err != nil {
		svc.Logger.Warn("failed to record search",
			zap.Int64("user_id", sess.UserID), zap.Error(err))
	}
}

func (svc *DefaultConversationService) releaseSnapshot(ctx context.Context, snapshotID string) {
	if err := svc.Offers.Release(ctx, snapshotID); err != nil {
		svc.Logger.Warn("failed to release offer snapshot",
			zap.String("snapshot_id", snapshotID), zap.Error(err))
	}
}

// touch refreshes the idle clock. Best effort, a miss only shortens the
// idle window.
func (svc *DefaultConversationService) touch(ctx context.Context, sess *models.Session) {
	sess.UpdatedAt = svc.now()
	if err := svc.Store.Save(ctx, sess); err != nil {
		svc.Logger.Warn("failed to touch session",
			zap.Int64("user_id", sess.UserID), zap.Error(err))
	}
}

func flowKind(flow string) string {
	switch flow {
	case models.FlowFlight:
		return models.KindFlight
	case models.FlowHotel:
		return models.KindHotel
	case models.FlowTour:
		return models.KindTour
	}
	return flow
}

var referencePrefixes = map[string]string{
	models.KindFlight: "FL",
	models.KindHotel:  "HT",
	models.KindTour:   "TR",
}

// newReference builds a human readable booking reference, e.g. FL3A91BC04.
func newReference(kind string) string {
	prefix, ok := referencePrefixes[kind]
	if !ok {
		prefix = "BK"
	}
	hex := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
	return prefix + hex[:8]
}

func copyCriteria(criteria map[string]string) map[string]string {
	out := make(map[string]string, len(criteria))
	for k, v := range criteria {
		out[k] = v
	}
	return out
}

func minPrice(results []models.Offer) float64 {
	if len(results) == 0 {
		return 0
	}
	min := results[0].PriceETB
	for _, o := range results[1:] {
		if o.PriceETB < min {
			min = o.PriceETB
		}
	}
	return min
}

// frozenDetails merges the offer's fields with the criteria the user gave,
// so the booking record is self contained.
func frozenDetails(offer models.Offer, criteria map[string]string) map[string]string {
	details := make(map[string]string, len(offer.Details)+len(criteria))
	for k, v := range offer.Details {
		details[k] = v
	}
	for k, v := range criteria {
		if _, taken := details[k]; !taken {
			details[k] = v
		}
	}
	return details
}

package conversation

import (
	"context"
	"fmt"
	"time"

	"tripbot/models"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

var sessionsTimedOut = promauto.NewCounter(prometheus.CounterOpts{
	Name: "conversation_timeouts_total",
	Help: "Sessions closed by the idle sweeper.",
})

// Sweeper periodically closes conversations idle past the window.
type Sweeper struct {
	Service  ConversationService
	Interval time.Duration
	Logger   *zap.Logger
}

func (s *Sweeper) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(s.Interval)
		defer ticker.Stop()

		s.Logger.Info("session sweeper started", zap.Duration("interval", s.Interval))

		for {
			select {
			case <-ctx.Done():
				s.Logger.Info("session sweeper stopped")
				return
			case <-ticker.C:
				if n := s.Service.SweepIdle(ctx); n > 0 {
					s.Logger.Info("idle sessions closed", zap.Int("count", n))
				}
			}
		}
	}()
}

// SweepIdle times out sessions idle past the window and returns how many
// it closed. Sessions whose booking holds an open payment intent are left
// alone: settlement or the payment poller decides those.
func (svc *DefaultConversationService) SweepIdle(ctx context.Context) int {
	users, err := svc.Store.ActiveUsers(ctx)
	if err != nil {
		svc.Logger.Error("failed to list active sessions", zap.Error(err))
		return 0
	}

	closed := 0
	for _, userID := range users {
		timedOut, err := svc.sweepUser(ctx, userID)
		if err != nil {
			svc.Logger.Error("failed to sweep session",
				zap.Int64("user_id", userID), zap.Error(err))
			continue
		}
		if timedOut {
			closed++
		}
	}
	return closed
}

func (svc *DefaultConversationService) sweepUser(ctx context.Context, userID int64) (bool, error) {
	var timedOut bool
	err := svc.withUser(userID, func() error {
		sess, err := svc.Store.Get(ctx, userID)
		if err != nil {
			return err
		}
		if sess == nil {
			// The session key expired but the index entry survived.
			return svc.Store.Delete(ctx, userID)
		}
		if sess.State == models.StateAwaitingPayment && sess.BookingID != "" {
			// An open intent means a transfer may still land. A user
			// who stalled at the method prompt has no intent, and the
			// idle window applies to them like everyone else.
			intent, err := svc.Intents.GetPendingByBookingID(sess.BookingID)
			if err != nil {
				return err
			}
			if intent != nil {
				return nil
			}
		}
		if svc.now().Sub(sess.UpdatedAt) < svc.IdleTimeout {
			return nil
		}

		if sess.SnapshotID != "" {
			svc.releaseSnapshot(ctx, sess.SnapshotID)
		}
		if sess.BookingID != "" {
			// The abandoned booking never got an intent, nothing can
			// settle it later.
			if err := svc.Bookings.TransitionPayment(sess.BookingID,
				models.PaymentPending, models.PaymentFailed, "", ""); err != nil {
				svc.Logger.Warn("failed to close abandoned booking",
					zap.String("booking_id", sess.BookingID), zap.Error(err))
			}
		}
		if err := svc.Store.Delete(ctx, userID); err != nil {
			return err
		}
		timedOut = true
		sessionsTimedOut.Inc()
		svc.Logger.Info("conversation timed out",
			zap.Int64("user_id", userID),
			zap.String("flow", sess.Flow),
			zap.String("state", sess.State))

		note := models.Notification{
			UserID: userID,
			Kind:   models.NoteSessionTimeout,
			Title:  "Session expired",
			Body: fmt.Sprintf("Your booking session timed out after %d minutes of inactivity. Start again whenever you are ready.",
				int(svc.IdleTimeout.Minutes())),
		}
		if err := svc.Dispatcher.Enqueue(ctx, note, time.Time{}); err != nil {
			svc.Logger.Warn("failed to queue timeout notice",
				zap.Int64("user_id", userID), zap.Error(err))
		}
		return nil
	})
	return timedOut, err
}

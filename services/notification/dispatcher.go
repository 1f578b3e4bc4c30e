// Package notification fans booking, alert and reminder messages out
// to the user's chat. Delivery is best effort: retries are bounded and
// a dropped message never changes booking or alert state.
package notification

import (
	"context"
	"fmt"
	"time"

	"tripbot/models"
	"tripbot/services/tasks"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

var (
	deliveredTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notifications_delivered_total",
		Help: "Notifications delivered to the chat transport.",
	}, []string{"kind"})

	droppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notifications_dropped_total",
		Help: "Notifications dropped after exhausting delivery retries.",
	}, []string{"kind"})
)

// DeliveryError reports a notification that could not be handed to the
// transport after all retries.
type DeliveryError struct {
	UserID int64
	Err    error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("delivery to user %d failed: %v", e.UserID, e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

// Messenger is the chat transport. The implementation renders the
// notification for its channel.
type Messenger interface {
	Send(ctx context.Context, note models.Notification) error
}

// Enqueuer is the slice of asynq.Client the dispatcher needs.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Dispatcher sends notifications now or queues them for later.
type Dispatcher interface {
	// Deliver pushes the notification to the transport with bounded retry.
	Deliver(ctx context.Context, note models.Notification) error
	// Enqueue hands the notification to the queue; a zero fireAt means
	// deliver as soon as a worker picks it up.
	Enqueue(ctx context.Context, note models.Notification, fireAt time.Time) error
}

// DefaultDispatcher is the production implementation.
type DefaultDispatcher struct {
	Messenger   Messenger
	Queue       Enqueuer
	Logger      *zap.Logger
	MaxAttempts int
	BaseBackoff time.Duration
}

// NewDefaultDispatcher wires the dispatcher with its retry policy.
func NewDefaultDispatcher(m Messenger, q Enqueuer, logger *zap.Logger) *DefaultDispatcher {
	return &DefaultDispatcher{
		Messenger:   m,
		Queue:       q,
		Logger:      logger,
		MaxAttempts: 3,
		BaseBackoff: 500 * time.Millisecond,
	}
}

// Deliver pushes the notification to the transport, retrying transient
// failures with a doubling backoff. Exhausted retries count as a drop.
func (d *DefaultDispatcher) Deliver(ctx context.Context, note models.Notification) error {
	attempts := d.MaxAttempts
	if attempts <= 0 {
		attempts = 3
	}
	backoff := d.BaseBackoff
	if backoff <= 0 {
		backoff = 500 * time.Millisecond
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = d.Messenger.Send(ctx, note)
		if err == nil {
			deliveredTotal.WithLabelValues(note.Kind).Inc()
			return nil
		}
		if attempt == attempts {
			break
		}
		d.Logger.Warn("notification send failed, retrying",
			zap.Int64("user_id", note.UserID),
			zap.String("kind", note.Kind),
			zap.Int("attempt", attempt),
			zap.Error(err))
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			err = ctx.Err()
			attempt = attempts
		}
		backoff *= 2
	}

	droppedTotal.WithLabelValues(note.Kind).Inc()
	d.Logger.Error("notification dropped",
		zap.Int64("user_id", note.UserID),
		zap.String("kind", note.Kind),
		zap.Error(err))
	return &DeliveryError{UserID: note.UserID, Err: err}
}

// Enqueue hands the notification to the queue.
func (d *DefaultDispatcher) Enqueue(ctx context.Context, note models.Notification, fireAt time.Time) error {
	task, opts, err := tasks.NewNotificationTask(note, fireAt)
	if err != nil {
		return fmt.Errorf("failed to build notification task: %w", err)
	}
	if _, err := d.Queue.EnqueueContext(ctx, task, opts...); err != nil {
		return fmt.Errorf("failed to enqueue notification: %w", err)
	}
	return nil
}

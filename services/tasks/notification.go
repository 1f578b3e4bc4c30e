package tasks

import (
	"encoding/json"
	"time"

	"tripbot/models"

	"github.com/hibiken/asynq"
)

const TypeDeliverNotification = "notification:deliver"

// NewNotificationTask wraps a notification for the queue. A zero
// fireAt enqueues for immediate delivery.
func NewNotificationTask(note models.Notification, fireAt time.Time) (*asynq.Task, []asynq.Option, error) {
	b, err := json.Marshal(note)
	if err != nil {
		return nil, nil, err
	}
	task := asynq.NewTask(TypeDeliverNotification, b)

	opts := []asynq.Option{asynq.MaxRetry(5)}
	if !fireAt.IsZero() {
		opts = append(opts, asynq.ProcessAt(fireAt))
	}
	return task, opts, nil
}

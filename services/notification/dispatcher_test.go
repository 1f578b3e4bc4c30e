package notification_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"tripbot/models"
	"tripbot/services/notification"
	"tripbot/services/tasks"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// flakyMessenger fails a set number of sends before succeeding.
type flakyMessenger struct {
	mu       sync.Mutex
	failures int
	attempts int
}

func (m *flakyMessenger) Send(ctx context.Context, note models.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempts++
	if m.attempts <= m.failures {
		return errors.New("chat transport unavailable")
	}
	return nil
}

func (m *flakyMessenger) sendCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attempts
}

func newDispatcher(m notification.Messenger) *notification.DefaultDispatcher {
	return &notification.DefaultDispatcher{
		Messenger:   m,
		Logger:      zap.NewNop(),
		MaxAttempts: 3,
		BaseBackoff: time.Millisecond,
	}
}

func sampleNote() models.Notification {
	return models.Notification{
		UserID: 7,
		Kind:   models.NoteBookingConfirmed,
		Title:  "Booking confirmed",
		Body:   "Ethiopian Airlines ET-302 is booked. Reference FL3A91BC04, paid 500.00 Birr.",
	}
}

func TestDeliverRetriesTransientFailures(t *testing.T) {
	m := &flakyMessenger{failures: 2}
	d := newDispatcher(m)

	err := d.Deliver(context.Background(), sampleNote())
	require.NoError(t, err)
	assert.Equal(t, 3, m.sendCount())
}

func TestDeliverDropsAfterMaxAttempts(t *testing.T) {
	m := &flakyMessenger{failures: 100}
	d := newDispatcher(m)

	err := d.Deliver(context.Background(), sampleNote())

	var derr *notification.DeliveryError
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, int64(7), derr.UserID)
	assert.Equal(t, 3, m.sendCount())
}

func TestDeliverStopsWhenContextEnds(t *testing.T) {
	m := &flakyMessenger{failures: 100}
	d := newDispatcher(m)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := d.Deliver(ctx, sampleNote())
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, m.sendCount())
}

// fakeEnqueuer captures what would have gone to the queue.
type fakeEnqueuer struct {
	task *asynq.Task
	opts []asynq.Option
	err  error
}

func (f *fakeEnqueuer) EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	f.task = task
	f.opts = opts
	if f.err != nil {
		return nil, f.err
	}
	return &asynq.TaskInfo{}, nil
}

func TestEnqueueWrapsNoteAsTask(t *testing.T) {
	q := &fakeEnqueuer{}
	d := &notification.DefaultDispatcher{Queue: q, Logger: zap.NewNop()}
	note := sampleNote()

	require.NoError(t, d.Enqueue(context.Background(), note, time.Time{}))

	require.NotNil(t, q.task)
	assert.Equal(t, tasks.TypeDeliverNotification, q.task.Type())

	var got models.Notification
	require.NoError(t, json.Unmarshal(q.task.Payload(), &got))
	assert.Equal(t, note.UserID, got.UserID)
	assert.Equal(t, note.Kind, got.Kind)
	assert.Equal(t, note.Body, got.Body)

	// MaxRetry only; no ProcessAt for immediate delivery.
	assert.Len(t, q.opts, 1)
}

func TestEnqueueSchedulesDelayedDelivery(t *testing.T) {
	q := &fakeEnqueuer{}
	d := &notification.DefaultDispatcher{Queue: q, Logger: zap.NewNop()}

	fireAt := time.Date(2026, 8, 31, 8, 0, 0, 0, time.UTC)
	require.NoError(t, d.Enqueue(context.Background(), sampleNote(), fireAt))

	assert.Len(t, q.opts, 2)
}

func TestEnqueueReportsQueueFailure(t *testing.T) {
	q := &fakeEnqueuer{err: errors.New("redis gone")}
	d := &notification.DefaultDispatcher{Queue: q, Logger: zap.NewNop()}

	err := d.Enqueue(context.Background(), sampleNote(), time.Time{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to enqueue notification")
}

package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/mvaberg/klubbkasse/internal/model"
	"github.com/mvaberg/klubbkasse/internal/queue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDeliverer struct {
	delivered []model.ReminderNotification
	err       error
}

func (d *fakeDeliverer) Deliver(_ context.Context, job *model.ReminderNotification) error {
	if d.err != nil {
		return d.err
	}
	d.delivered = append(d.delivered, *job)
	return nil
}

func reminderMessage(t *testing.T, job model.ReminderNotification) *queue.Message {
	t.Helper()
	data, err := json.Marshal(job)
	require.NoError(t, err)
	return &queue.Message{
		ID:       "1-0",
		Data:     data,
		Metadata: map[string]string{"kind": job.Kind},
	}
}

func TestReminderProcessor_Process(t *testing.T) {
	job := model.ReminderNotification{
		RequestID: 42,
		MemberID:  7,
		Title:     "Kontingent 2025-06",
		Kind:      model.ReminderDueToday,
	}

	t.Run("delivers and marks done", func(t *testing.T) {
		deliverer := &fakeDeliverer{}
		idem := NewIdempotencyService(newMockRedisAdapter(), DefaultIdempotencyConfig())
		p := NewReminderProcessor(deliverer, idem)

		err := p.Process(context.Background(), reminderMessage(t, job))
		require.NoError(t, err)
		require.Len(t, deliverer.delivered, 1)
		assert.Equal(t, int64(42), deliverer.delivered[0].RequestID)

		delivered, err := idem.IsDelivered(context.Background(), deliveryID(&job))
		require.NoError(t, err)
		assert.True(t, delivered)
	})

	t.Run("duplicate message is acked without a second delivery", func(t *testing.T) {
		deliverer := &fakeDeliverer{}
		idem := NewIdempotencyService(newMockRedisAdapter(), DefaultIdempotencyConfig())
		p := NewReminderProcessor(deliverer, idem)

		require.NoError(t, p.Process(context.Background(), reminderMessage(t, job)))
		require.NoError(t, p.Process(context.Background(), reminderMessage(t, job)))

		assert.Len(t, deliverer.delivered, 1)
	})

	t.Run("delivery failure nacks and counts a retry", func(t *testing.T) {
		deliverer := &fakeDeliverer{err: errors.New("webhook down")}
		idem := NewIdempotencyService(newMockRedisAdapter(), DefaultIdempotencyConfig())
		p := NewReminderProcessor(deliverer, idem)

		err := p.Process(context.Background(), reminderMessage(t, job))
		assert.Error(t, err)

		count, err := idem.GetRetryCount(context.Background(), deliveryID(&job))
		require.NoError(t, err)
		assert.Equal(t, 1, count)

		// the webhook recovers, next attempt goes through
		deliverer.err = nil
		require.NoError(t, p.Process(context.Background(), reminderMessage(t, job)))
		assert.Len(t, deliverer.delivered, 1)
	})

	t.Run("malformed payload is an error", func(t *testing.T) {
		deliverer := &fakeDeliverer{}
		idem := NewIdempotencyService(newMockRedisAdapter(), DefaultIdempotencyConfig())
		p := NewReminderProcessor(deliverer, idem)

		msg := &queue.Message{ID: "2-0", Data: []byte("not json")}
		err := p.Process(context.Background(), msg)
		assert.Error(t, err)
		assert.Empty(t, deliverer.delivered)
	})
}

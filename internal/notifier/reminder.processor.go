package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mvaberg/klubbkasse/internal/model"
	"github.com/mvaberg/klubbkasse/internal/queue"
	"github.com/mvaberg/klubbkasse/pkg/logger"
	"github.com/mvaberg/klubbkasse/pkg/prom"
)

// Deliverer posts a reminder to the outside world.
type Deliverer interface {
	Deliver(ctx context.Context, job *model.ReminderNotification) error
}

// ReminderProcessor consumes reminder notifications off the stream and
// delivers them exactly once per dedup window.
type ReminderProcessor struct {
	client      Deliverer
	idempotency *IdempotencyService
}

func NewReminderProcessor(client Deliverer, idempotency *IdempotencyService) *ReminderProcessor {
	return &ReminderProcessor{
		client:      client,
		idempotency: idempotency,
	}
}

func (p *ReminderProcessor) GetType() string {
	return "reminder"
}

// deliveryID keys the idempotency state. Scheduler-level dedup already
// throttles per request, so (request, kind) is stable for the window.
func deliveryID(job *model.ReminderNotification) string {
	return fmt.Sprintf("%d:%s", job.RequestID, job.Kind)
}

func (p *ReminderProcessor) Process(ctx context.Context, queueMessage *queue.Message) error {
	var job model.ReminderNotification
	if err := json.Unmarshal(queueMessage.Data, &job); err != nil {
		logger.Error("Failed to unmarshal reminder notification", "error", err)
		return err // malformed payload, let retries exhaust into the DLQ
	}

	id := deliveryID(&job)

	delCtx, err := p.idempotency.AcquireDeliveryLock(ctx, id)
	if err != nil {
		if errors.Is(err, ErrAlreadyDelivered) {
			logger.Info("Reminder already delivered, skipping", "delivery_id", id)
			return nil
		}
		if errors.Is(err, ErrMaxRetriesExceeded) {
			logger.Error("Reminder delivery retries exhausted", "delivery_id", id)
			return nil // ACK so the message moves to the DLQ path
		}
		if errors.Is(err, ErrLockAcquireFailed) {
			logger.Info("Delivery lock held by another consumer, will retry", "delivery_id", id)
			return errors.New("lock held by another consumer")
		}
		logger.Error("Failed to acquire delivery lock", "delivery_id", id, "error", err)
		return err
	}

	defer func() {
		if delCtx.lockAcquired {
			p.idempotency.ReleaseLock(ctx, delCtx)
		}
	}()

	logger.Info("Delivering reminder",
		"delivery_id", id,
		"member_id", job.MemberID,
		"kind", job.Kind,
		"retry_count", delCtx.RetryCount,
		"is_retry", delCtx.IsRetry)

	start := time.Now()
	if err := p.client.Deliver(ctx, &job); err != nil {
		logger.Error("Failed to deliver reminder", "delivery_id", id, "error", err)
		if markErr := p.idempotency.MarkFailure(ctx, delCtx, err); markErr != nil {
			logger.Error("Failed to mark delivery failure", "delivery_id", id, "error", markErr)
		}
		return err // NACK to retry from queue
	}

	prom.AddReminderDeliveryDuration(time.Since(start).Seconds(), job.Kind)

	if markErr := p.idempotency.MarkDelivered(ctx, delCtx); markErr != nil {
		logger.Error("Failed to mark delivered", "delivery_id", id, "error", markErr)
		// Continue - the reminder went out
	}

	return nil
}

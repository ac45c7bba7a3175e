package services

import (
	"context"
	"time"

	"github.com/mvaberg/klubbkasse/internal/model"
	"github.com/mvaberg/klubbkasse/pkg/logger"
)

const reminderDedupWindow = 24 * time.Hour

// NotificationPublisher hands reminder payloads to the delivery pipeline.
// *queue.Queue satisfies it; actual message transport is out of process.
type NotificationPublisher interface {
	PublishJSON(ctx context.Context, data interface{}, metadata map[string]string) (string, error)
}

// ReminderService selects which pending payment requests deserve a deadline
// reminder and publishes one notification per request. Dedup state lives on
// the request row, not in memory, so repeated scheduler ticks and process
// restarts stay quiet.
type ReminderService struct {
	requestRepo   PaymentRequestRepository
	publisher     NotificationPublisher
	lookaheadDays int
	now           func() time.Time
}

func NewReminderService(requestRepo PaymentRequestRepository, publisher NotificationPublisher, lookaheadDays int) *ReminderService {
	if lookaheadDays <= 0 {
		lookaheadDays = 3
	}
	return &ReminderService{
		requestRepo:   requestRepo,
		publisher:     publisher,
		lookaheadDays: lookaheadDays,
		now:           time.Now,
	}
}

// SendDeadlineReminders partitions pending requests into due-today (the due
// date falls within the current calendar day, or is already past) and
// due-soon (within the lookahead window). Requests reminded within the last
// 24 hours are skipped. A publish failure for one member never blocks the
// rest.
func (s *ReminderService) SendDeadlineReminders(ctx context.Context) (*model.ReminderResult, error) {
	now := s.now().UTC()
	startOfDay := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	endOfDay := startOfDay.AddDate(0, 0, 1)
	cutoff := startOfDay.AddDate(0, 0, s.lookaheadDays+1)

	pending, err := s.requestRepo.ListPendingDueBefore(ctx, cutoff)
	if err != nil {
		return nil, err
	}

	result := &model.ReminderResult{}

	for _, req := range pending {
		if req.LastReminderSentAt != nil && now.Sub(*req.LastReminderSentAt) < reminderDedupWindow {
			result.Skipped++
			continue
		}

		kind := model.ReminderDueSoon
		if req.DueDate.Before(endOfDay) {
			kind = model.ReminderDueToday
		}

		job := model.ReminderNotification{
			RequestID: req.ID,
			MemberID:  req.MemberID,
			Title:     req.Title,
			Amount:    req.Amount,
			DueDate:   req.DueDate,
			Kind:      kind,
		}

		if _, err := s.publisher.PublishJSON(ctx, job, map[string]string{"kind": kind}); err != nil {
			logger.Error("failed to publish reminder",
				"request_id", req.ID, "member_id", req.MemberID, "error", err)
			result.Failures = append(result.Failures, model.MemberFailure{
				MemberID: req.MemberID,
				Error:    err.Error(),
			})
			continue
		}

		// stamp only after a successful publish so a failed one is retried
		// on the next tick
		if err := s.requestRepo.TouchReminder(ctx, req.ID, now); err != nil {
			logger.Error("failed to stamp reminder", "request_id", req.ID, "error", err)
		}

		if kind == model.ReminderDueToday {
			result.DueTodayCount++
		} else {
			result.DueSoonCount++
		}
	}

	logger.Info("deadline reminder run complete",
		"due_today", result.DueTodayCount,
		"due_soon", result.DueSoonCount,
		"skipped", result.Skipped,
		"failures", len(result.Failures))

	return result, nil
}

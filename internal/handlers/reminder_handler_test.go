package handlers

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/mvaberg/klubbkasse/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockReminderService struct {
	mock.Mock
}

func (m *MockReminderService) SendDeadlineReminders(ctx context.Context) (*model.ReminderResult, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ReminderResult), args.Error(1)
}

func TestReminderHandler_Run(t *testing.T) {
	t.Run("successful run returns counts", func(t *testing.T) {
		svc := new(MockReminderService)
		handler := NewReminderHandler(svc)

		svc.On("SendDeadlineReminders", mock.Anything).Return(&model.ReminderResult{
			DueTodayCount: 2,
			DueSoonCount:  1,
			Skipped:       3,
		}, nil)

		ctx := setupTestContext("POST", "/reminders/run", nil)
		handler.Run(ctx)

		assert.Equal(t, 200, ctx.Response.StatusCode())

		var result model.ReminderResult
		require.NoError(t, json.Unmarshal(ctx.Response.Body(), &result))
		assert.Equal(t, 2, result.DueTodayCount)
		assert.Equal(t, 1, result.DueSoonCount)
		assert.Equal(t, 3, result.Skipped)
		svc.AssertExpectations(t)
	})

	t.Run("service error is surfaced", func(t *testing.T) {
		svc := new(MockReminderService)
		handler := NewReminderHandler(svc)

		svc.On("SendDeadlineReminders", mock.Anything).Return(nil, assert.AnError)

		ctx := setupTestContext("POST", "/reminders/run", nil)
		handler.Run(ctx)

		assert.Equal(t, 400, ctx.Response.StatusCode())
	})
}

package handlers

import (
	"context"

	"github.com/fasthttp/router"
	"github.com/mvaberg/klubbkasse/internal/model"
	xhttp "github.com/mvaberg/klubbkasse/pkg/http"
)

type ReminderService interface {
	SendDeadlineReminders(ctx context.Context) (*model.ReminderResult, error)
}

// ReminderHandler exposes a manual trigger for the deadline reminder scan.
// The scheduler runs the same scan periodically; the endpoint exists so an
// admin can force a run without waiting for the next tick.
type ReminderHandler struct {
	svc ReminderService
}

func RegisterReminderRoutes(e *router.Group, h *ReminderHandler) {
	e.POST("/reminders/run", h.Run)
}

func NewReminderHandler(reminderService ReminderService) *ReminderHandler {
	return &ReminderHandler{
		svc: reminderService,
	}
}

func (h *ReminderHandler) Run(ctx *xhttp.RequestCtx) {
	result, err := h.svc.SendDeadlineReminders(ctx)
	if err != nil {
		writeError(ctx, errStatus(err), err.Error())
		return
	}
	writeJSON(ctx, 200, result)
}

package handlers

import (
	"context"
	"time"

	"github.com/fasthttp/router"
	"github.com/mvaberg/klubbkasse/internal/model"
	xhttp "github.com/mvaberg/klubbkasse/pkg/http"
)

type ReportService interface {
	BuildFinancialReport(ctx context.Context, from, to time.Time) (*model.FinancialReport, error)
}

type ReportHandler struct {
	svc ReportService
}

func RegisterReportRoutes(e *router.Group, h *ReportHandler) {
	e.GET("/reports/financial", h.GetFinancialReport)
}

func NewReportHandler(reportService ReportService) *ReportHandler {
	return &ReportHandler{
		svc: reportService,
	}
}

func (h *ReportHandler) GetFinancialReport(ctx *xhttp.RequestCtx) {
	fromStr := query(ctx, "from")
	toStr := query(ctx, "to")
	if fromStr == "" || toStr == "" {
		writeError(ctx, 400, "from and to are required")
		return
	}

	from, err := parseTime(fromStr)
	if err != nil {
		writeError(ctx, 400, "invalid from: "+err.Error())
		return
	}
	to, err := parseTime(toStr)
	if err != nil {
		writeError(ctx, 400, "invalid to: "+err.Error())
		return
	}
	if to.Before(from) {
		writeError(ctx, 400, "to must not precede from")
		return
	}

	report, err := h.svc.BuildFinancialReport(ctx, from, to)
	if err != nil {
		writeError(ctx, 500, err.Error())
		return
	}
	writeJSON(ctx, 200, report)
}

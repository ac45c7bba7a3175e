package handlers

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/fasthttp/router"
	"github.com/mvaberg/klubbkasse/internal/model"
	xhttp "github.com/mvaberg/klubbkasse/pkg/http"
)

type BillingService interface {
	GenerateMonthlyFees(ctx context.Context, year int, month time.Month) (*model.FeeGenerationResult, error)
	CreateInvoiceGroup(ctx context.Context, p model.InvoiceGroupRequest) ([]*model.PaymentRequest, []model.MemberFailure, error)
	MarkPaid(ctx context.Context, requestID int64) (*model.Transaction, error)
	Waive(ctx context.Context, requestID int64) error
	Reopen(ctx context.Context, requestID int64) error
	ListRequests(ctx context.Context, f model.PaymentRequestFilter) ([]*model.PaymentRequest, int64, error)
}

type BillingHandler struct {
	svc BillingService
}

func RegisterBillingRoutes(e *router.Group, h *BillingHandler) {
	e.POST("/billing/generate-fees", h.GenerateFees)
	e.POST("/payment-requests", h.CreateInvoiceGroup)
	e.GET("/payment-requests", h.ListPaymentRequests)
	e.POST("/payment-requests/{id}/pay", h.MarkPaid)
	e.POST("/payment-requests/{id}/waive", h.Waive)
	e.POST("/payment-requests/{id}/reopen", h.Reopen)
}

func NewBillingHandler(billingService BillingService) *BillingHandler {
	return &BillingHandler{
		svc: billingService,
	}
}

type generateFeesRequest struct {
	Year  int `json:"year"`
	Month int `json:"month"`
}

type createInvoiceGroupRequest struct {
	MemberIDs []int64 `json:"member_ids"`
	Title     string  `json:"title"`
	Amount    string  `json:"amount"`
	Category  string  `json:"category"`
	DueDate   string  `json:"due_date"`
	EventID   *int64  `json:"event_id"`
}

type invoiceGroupResponse struct {
	Created  []*model.PaymentRequest `json:"created"`
	Failures []model.MemberFailure   `json:"failures,omitempty"`
}

type paymentRequestListResponse struct {
	Items []*model.PaymentRequest `json:"items"`
	Total int64                   `json:"total"`
}

/* --------------------------------- Routes ----------------------------------- */

func (h *BillingHandler) GenerateFees(ctx *xhttp.RequestCtx) {
	var req generateFeesRequest
	if err := readJSON(ctx, &req); err != nil {
		writeError(ctx, 400, "invalid JSON: "+err.Error())
		return
	}
	if req.Month < 1 || req.Month > 12 || req.Year < 2000 {
		writeError(ctx, 400, "invalid billing period")
		return
	}
	result, err := h.svc.GenerateMonthlyFees(ctx, req.Year, time.Month(req.Month))
	if err != nil {
		writeError(ctx, 500, err.Error())
		return
	}
	writeJSON(ctx, 200, result)
}

func (h *BillingHandler) CreateInvoiceGroup(ctx *xhttp.RequestCtx) {
	var req createInvoiceGroupRequest
	if err := readJSON(ctx, &req); err != nil {
		writeError(ctx, 400, "invalid JSON: "+err.Error())
		return
	}

	amount, err := model.ParseAmount(req.Amount)
	if err != nil {
		writeError(ctx, 400, err.Error())
		return
	}
	dueDate, err := parseTime(req.DueDate)
	if err != nil {
		writeError(ctx, 400, "invalid due_date: "+err.Error())
		return
	}

	p := model.InvoiceGroupRequest{
		MemberIDs: req.MemberIDs,
		Title:     req.Title,
		Amount:    amount,
		Category:  req.Category,
		DueDate:   dueDate,
		EventID:   req.EventID,
	}
	created, failures, err := h.svc.CreateInvoiceGroup(ctx, p)
	if err != nil {
		writeError(ctx, 400, err.Error())
		return
	}
	writeJSON(ctx, 201, invoiceGroupResponse{Created: created, Failures: failures})
}

func (h *BillingHandler) ListPaymentRequests(ctx *xhttp.RequestCtx) {
	var f model.PaymentRequestFilter

	if v := query(ctx, "member_id"); v != "" {
		if id, e := strconv.ParseInt(v, 10, 64); e == nil {
			f.MemberID = &id
		}
	}
	if v := query(ctx, "status"); v != "" {
		status := model.PaymentRequestStatus(v)
		f.Status = &status
	}
	if v := query(ctx, "category"); v != "" {
		f.Category = &v
	}
	if v := query(ctx, "period"); v != "" {
		f.Period = &v
	}
	if v := query(ctx, "limit"); v != "" {
		if n, e := strconv.Atoi(v); e == nil {
			f.Limit = n
		}
	}
	if v := query(ctx, "offset"); v != "" {
		if n, e := strconv.Atoi(v); e == nil {
			f.Offset = n
		}
	}
	if strings.EqualFold(query(ctx, "order"), "desc") {
		f.Desc = true
	}

	items, total, err := h.svc.ListRequests(ctx, f)
	if err != nil {
		writeError(ctx, 400, err.Error())
		return
	}
	writeJSON(ctx, 200, paymentRequestListResponse{Items: items, Total: total})
}

func (h *BillingHandler) MarkPaid(ctx *xhttp.RequestCtx) {
	id, err := pathInt64(ctx, "id")
	if err != nil {
		writeError(ctx, 400, "invalid id")
		return
	}
	settlement, err := h.svc.MarkPaid(ctx, id)
	if err != nil {
		writeError(ctx, errStatus(err), err.Error())
		return
	}
	writeJSON(ctx, 200, settlement)
}

func (h *BillingHandler) Waive(ctx *xhttp.RequestCtx) {
	id, err := pathInt64(ctx, "id")
	if err != nil {
		writeError(ctx, 400, "invalid id")
		return
	}
	if err := h.svc.Waive(ctx, id); err != nil {
		writeError(ctx, errStatus(err), err.Error())
		return
	}
	ctx.Response.SetStatusCode(204)
}

func (h *BillingHandler) Reopen(ctx *xhttp.RequestCtx) {
	id, err := pathInt64(ctx, "id")
	if err != nil {
		writeError(ctx, 400, "invalid id")
		return
	}
	if err := h.svc.Reopen(ctx, id); err != nil {
		writeError(ctx, errStatus(err), err.Error())
		return
	}
	ctx.Response.SetStatusCode(204)
}

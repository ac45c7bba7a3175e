package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/fasthttp/router"
	"github.com/mvaberg/klubbkasse/internal/model"
	"github.com/mvaberg/klubbkasse/internal/services"
	xhttp "github.com/mvaberg/klubbkasse/pkg/http"
)

type LedgerService interface {
	Record(ctx context.Context, p model.TransactionCreateRequest) (*model.Transaction, error)
	Delete(ctx context.Context, id int64) error
	ResetAll(ctx context.Context) error
	Reconcile(ctx context.Context, memberID int64) error
	List(ctx context.Context, f model.TransactionFilter) ([]*model.Transaction, int64, error)
}

type TransactionHandler struct {
	svc LedgerService
}

func RegisterTransactionRoutes(e *router.Group, h *TransactionHandler) {
	e.POST("/transactions", h.CreateTransaction)
	e.GET("/transactions", h.ListTransactions)
	e.DELETE("/transactions/{id}", h.DeleteTransaction)
	e.POST("/transactions/reset", h.ResetLedger)
	e.POST("/members/{id}/reconcile", h.ReconcileMember)
}

func NewTransactionHandler(ledgerService LedgerService) *TransactionHandler {
	return &TransactionHandler{
		svc: ledgerService,
	}
}

type createTransactionRequest struct {
	MemberID    *int64 `json:"member_id"`
	Amount      string `json:"amount"`
	Category    string `json:"category"`
	Description string `json:"description"`
	Date        string `json:"date"`
}

type transactionListResponse struct {
	Items []*model.Transaction `json:"items"`
	Total int64                `json:"total"`
}

/* --------------------------------- Routes ----------------------------------- */

func (h *TransactionHandler) CreateTransaction(ctx *xhttp.RequestCtx) {
	var req createTransactionRequest
	if err := readJSON(ctx, &req); err != nil {
		writeError(ctx, 400, "invalid JSON: "+err.Error())
		return
	}

	amount, err := model.ParseAmount(req.Amount)
	if err != nil {
		writeError(ctx, 400, err.Error())
		return
	}

	date := time.Now().UTC()
	if req.Date != "" {
		if date, err = parseTime(req.Date); err != nil {
			writeError(ctx, 400, "invalid date: "+err.Error())
			return
		}
	}

	p := model.TransactionCreateRequest{
		MemberID:    req.MemberID,
		Amount:      amount,
		Category:    req.Category,
		Description: req.Description,
		Date:        date,
	}
	txn, err := h.svc.Record(ctx, p)
	if err != nil {
		writeError(ctx, errStatus(err), err.Error())
		return
	}
	writeJSON(ctx, 201, txn)
}

func (h *TransactionHandler) ListTransactions(ctx *xhttp.RequestCtx) {
	var f model.TransactionFilter

	if v := query(ctx, "member_id"); v != "" {
		if id, e := strconv.ParseInt(v, 10, 64); e == nil {
			f.MemberID = &id
		}
	}
	if v := query(ctx, "category"); v != "" {
		f.Category = &v
	}
	if v := query(ctx, "from"); v != "" {
		if t, e := parseTime(v); e == nil {
			f.From = &t
		}
	}
	if v := query(ctx, "to"); v != "" {
		if t, e := parseTime(v); e == nil {
			f.To = &t
		}
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

	items, total, err := h.svc.List(ctx, f)
	if err != nil {
		writeError(ctx, 400, err.Error())
		return
	}
	writeJSON(ctx, 200, transactionListResponse{Items: items, Total: total})
}

func (h *TransactionHandler) DeleteTransaction(ctx *xhttp.RequestCtx) {
	id, err := pathInt64(ctx, "id")
	if err != nil {
		writeError(ctx, 400, "invalid id")
		return
	}
	if err := h.svc.Delete(ctx, id); err != nil {
		writeError(ctx, errStatus(err), err.Error())
		return
	}
	ctx.Response.SetStatusCode(204)
}

// ResetLedger wipes every transaction and balance. The caller must opt in
// with confirm=true; anything else is rejected.
func (h *TransactionHandler) ResetLedger(ctx *xhttp.RequestCtx) {
	if !strings.EqualFold(query(ctx, "confirm"), "true") {
		writeError(ctx, 400, "reset requires confirm=true")
		return
	}
	if err := h.svc.ResetAll(ctx); err != nil {
		writeError(ctx, 500, err.Error())
		return
	}
	ctx.Response.SetStatusCode(204)
}

func (h *TransactionHandler) ReconcileMember(ctx *xhttp.RequestCtx) {
	id, err := pathInt64(ctx, "id")
	if err != nil {
		writeError(ctx, 400, "invalid id")
		return
	}
	if err := h.svc.Reconcile(ctx, id); err != nil {
		if errors.Is(err, services.ErrBalanceDrift) {
			writeError(ctx, 409, err.Error())
			return
		}
		writeError(ctx, errStatus(err), err.Error())
		return
	}
	writeJSON(ctx, 200, map[string]string{"status": "consistent"})
}

func readJSON(ctx *xhttp.RequestCtx, dst any) error {
	body := ctx.PostBody()
	return json.Unmarshal(body, dst)
}

func writeJSON(ctx *xhttp.RequestCtx, status int, v any) {
	b, _ := json.Marshal(v)
	ctx.Response.Header.Set("Content-Type", "application/json; charset=utf-8")
	ctx.Response.SetStatusCode(status)
	ctx.Response.SetBodyRaw(b)
}

func writeError(ctx *xhttp.RequestCtx, status int, msg string) {
	writeJSON(ctx, status, map[string]string{"error": msg})
}

func errStatus(err error) int {
	switch {
	case errors.Is(err, services.ErrNotFound):
		return 404
	case errors.Is(err, services.ErrNotPending):
		return 409
	default:
		return 400
	}
}

func pathInt64(ctx *xhttp.RequestCtx, name string) (int64, error) {
	v, _ := ctx.UserValue(name).(string)
	return strconv.ParseInt(v, 10, 64)
}

func query(ctx *xhttp.RequestCtx, key string) string {
	return string(ctx.QueryArgs().Peek(key))
}

func parseTime(s string) (time.Time, error) {
	// Accept RFC3339 or YYYY-MM-DD
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", s)
}

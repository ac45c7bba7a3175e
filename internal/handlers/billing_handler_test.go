package handlers

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/mvaberg/klubbkasse/internal/model"
	"github.com/mvaberg/klubbkasse/internal/services"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockBillingService struct {
	mock.Mock
}

func (m *MockBillingService) GenerateMonthlyFees(ctx context.Context, year int, month time.Month) (*model.FeeGenerationResult, error) {
	args := m.Called(ctx, year, month)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.FeeGenerationResult), args.Error(1)
}

func (m *MockBillingService) CreateInvoiceGroup(ctx context.Context, p model.InvoiceGroupRequest) ([]*model.PaymentRequest, []model.MemberFailure, error) {
	args := m.Called(ctx, p)
	if args.Get(0) == nil {
		return nil, nil, args.Error(2)
	}
	return args.Get(0).([]*model.PaymentRequest), nil, args.Error(2)
}

func (m *MockBillingService) MarkPaid(ctx context.Context, requestID int64) (*model.Transaction, error) {
	args := m.Called(ctx, requestID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Transaction), args.Error(1)
}

func (m *MockBillingService) Waive(ctx context.Context, requestID int64) error {
	args := m.Called(ctx, requestID)
	return args.Error(0)
}

func (m *MockBillingService) Reopen(ctx context.Context, requestID int64) error {
	args := m.Called(ctx, requestID)
	return args.Error(0)
}

func (m *MockBillingService) ListRequests(ctx context.Context, f model.PaymentRequestFilter) ([]*model.PaymentRequest, int64, error) {
	args := m.Called(ctx, f)
	if args.Get(0) == nil {
		return nil, args.Get(1).(int64), args.Error(2)
	}
	return args.Get(0).([]*model.PaymentRequest), args.Get(1).(int64), args.Error(2)
}

func TestBillingHandler_GenerateFees(t *testing.T) {
	t.Run("successful run", func(t *testing.T) {
		svc := new(MockBillingService)
		handler := NewBillingHandler(svc)

		bodyBytes, _ := json.Marshal(generateFeesRequest{Year: 2025, Month: 6})

		svc.On("GenerateMonthlyFees", mock.Anything, 2025, time.June).
			Return(&model.FeeGenerationResult{Period: "2025-06", Created: 12, Skipped: 3}, nil)

		ctx := setupTestContext("POST", "/billing/generate-fees", bodyBytes)
		handler.GenerateFees(ctx)

		assert.Equal(t, 200, ctx.Response.StatusCode())

		var response model.FeeGenerationResult
		err := json.Unmarshal(ctx.Response.Body(), &response)
		require.NoError(t, err)
		assert.Equal(t, "2025-06", response.Period)
		assert.Equal(t, 12, response.Created)

		svc.AssertExpectations(t)
	})

	t.Run("rejects impossible period", func(t *testing.T) {
		svc := new(MockBillingService)
		handler := NewBillingHandler(svc)

		bodyBytes, _ := json.Marshal(generateFeesRequest{Year: 2025, Month: 13})

		ctx := setupTestContext("POST", "/billing/generate-fees", bodyBytes)
		handler.GenerateFees(ctx)

		assert.Equal(t, 400, ctx.Response.StatusCode())
		svc.AssertNotCalled(t, "GenerateMonthlyFees", mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestBillingHandler_CreateInvoiceGroup(t *testing.T) {
	t.Run("successful creation", func(t *testing.T) {
		svc := new(MockBillingService)
		handler := NewBillingHandler(svc)

		bodyBytes, _ := json.Marshal(createInvoiceGroupRequest{
			MemberIDs: []int64{1, 2},
			Title:     "Sommerfest",
			Amount:    "150.00",
			Category:  model.CategoryEventCost,
			DueDate:   "2025-07-01",
		})

		created := []*model.PaymentRequest{
			{ID: 10, MemberID: 1, Title: "Sommerfest"},
			{ID: 11, MemberID: 2, Title: "Sommerfest"},
		}

		svc.On("CreateInvoiceGroup", mock.Anything, mock.MatchedBy(func(p model.InvoiceGroupRequest) bool {
			return len(p.MemberIDs) == 2 && p.Title == "Sommerfest" &&
				p.Amount.Equal(decimal.RequireFromString("150.00"))
		})).Return(created, nil, nil)

		ctx := setupTestContext("POST", "/payment-requests", bodyBytes)
		handler.CreateInvoiceGroup(ctx)

		assert.Equal(t, 201, ctx.Response.StatusCode())

		var response invoiceGroupResponse
		err := json.Unmarshal(ctx.Response.Body(), &response)
		require.NoError(t, err)
		assert.Len(t, response.Created, 2)

		svc.AssertExpectations(t)
	})

	t.Run("malformed amount", func(t *testing.T) {
		svc := new(MockBillingService)
		handler := NewBillingHandler(svc)

		bodyBytes, _ := json.Marshal(createInvoiceGroupRequest{
			MemberIDs: []int64{1},
			Title:     "X",
			Amount:    "abc",
			Category:  model.CategoryEventCost,
			DueDate:   "2025-07-01",
		})

		ctx := setupTestContext("POST", "/payment-requests", bodyBytes)
		handler.CreateInvoiceGroup(ctx)

		assert.Equal(t, 400, ctx.Response.StatusCode())
		svc.AssertNotCalled(t, "CreateInvoiceGroup", mock.Anything, mock.Anything)
	})
}

func TestBillingHandler_ListPaymentRequests(t *testing.T) {
	svc := new(MockBillingService)
	handler := NewBillingHandler(svc)

	pending := model.PaymentRequestPending
	items := []*model.PaymentRequest{{ID: 1, Status: pending}}

	svc.On("ListRequests", mock.Anything, mock.MatchedBy(func(f model.PaymentRequestFilter) bool {
		return f.Status != nil && *f.Status == model.PaymentRequestPending &&
			f.Period != nil && *f.Period == "2025-06"
	})).Return(items, int64(1), nil)

	ctx := setupTestContext("GET", "/payment-requests?status=PENDING&period=2025-06", nil)
	handler.ListPaymentRequests(ctx)

	assert.Equal(t, 200, ctx.Response.StatusCode())

	var response paymentRequestListResponse
	err := json.Unmarshal(ctx.Response.Body(), &response)
	require.NoError(t, err)
	assert.Equal(t, int64(1), response.Total)

	svc.AssertExpectations(t)
}

func TestBillingHandler_Lifecycle(t *testing.T) {
	t.Run("pay returns the settlement transaction", func(t *testing.T) {
		svc := new(MockBillingService)
		handler := NewBillingHandler(svc)

		requestID := int64(5)
		settlement := &model.Transaction{ID: 99, PaymentRequestID: &requestID}
		svc.On("MarkPaid", mock.Anything, requestID).Return(settlement, nil)

		ctx := setupTestContext("POST", "/payment-requests/5/pay", nil)
		ctx.SetUserValue("id", "5")
		handler.MarkPaid(ctx)

		assert.Equal(t, 200, ctx.Response.StatusCode())

		var response model.Transaction
		err := json.Unmarshal(ctx.Response.Body(), &response)
		require.NoError(t, err)
		assert.Equal(t, int64(99), response.ID)

		svc.AssertExpectations(t)
	})

	t.Run("pay on settled request maps to 409", func(t *testing.T) {
		svc := new(MockBillingService)
		handler := NewBillingHandler(svc)

		svc.On("MarkPaid", mock.Anything, int64(5)).Return(nil, services.ErrNotPending)

		ctx := setupTestContext("POST", "/payment-requests/5/pay", nil)
		ctx.SetUserValue("id", "5")
		handler.MarkPaid(ctx)

		assert.Equal(t, 409, ctx.Response.StatusCode())
		svc.AssertExpectations(t)
	})

	t.Run("waive", func(t *testing.T) {
		svc := new(MockBillingService)
		handler := NewBillingHandler(svc)

		svc.On("Waive", mock.Anything, int64(5)).Return(nil)

		ctx := setupTestContext("POST", "/payment-requests/5/waive", nil)
		ctx.SetUserValue("id", "5")
		handler.Waive(ctx)

		assert.Equal(t, 204, ctx.Response.StatusCode())
		svc.AssertExpectations(t)
	})

	t.Run("reopen unknown request maps to 404", func(t *testing.T) {
		svc := new(MockBillingService)
		handler := NewBillingHandler(svc)

		svc.On("Reopen", mock.Anything, int64(5)).Return(services.ErrNotFound)

		ctx := setupTestContext("POST", "/payment-requests/5/reopen", nil)
		ctx.SetUserValue("id", "5")
		handler.Reopen(ctx)

		assert.Equal(t, 404, ctx.Response.StatusCode())
		svc.AssertExpectations(t)
	})
}

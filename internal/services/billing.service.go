package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mvaberg/klubbkasse/internal/model"
	"github.com/mvaberg/klubbkasse/internal/repository"
	"github.com/mvaberg/klubbkasse/pkg/logger"
	"github.com/shopspring/decimal"
)

var (
	ErrNoFeeConfigured = errors.New("no fee configured for membership type")
	ErrNotPending      = errors.New("payment request is not pending")
)

// FeeSchedule maps a fee-eligible membership type to its recurring monthly
// fee amount.
type FeeSchedule map[model.MembershipType]decimal.Decimal

// BillingService creates payment requests (recurring fees and ad hoc
// invoices) and settles them. Settlement is the only path that produces a
// PAID-linked transaction.
type BillingService struct {
	requestRepo     PaymentRequestRepository
	memberRepo      MemberRepository
	transactionRepo TransactionRepository
	fees            FeeSchedule
}

func NewBillingService(requestRepo PaymentRequestRepository, memberRepo MemberRepository, transactionRepo TransactionRepository, fees FeeSchedule) *BillingService {
	return &BillingService{
		requestRepo:     requestRepo,
		memberRepo:      memberRepo,
		transactionRepo: transactionRepo,
		fees:            fees,
	}
}

// PeriodKey is the canonical key for a billing period.
func PeriodKey(year int, month time.Month) string {
	return fmt.Sprintf("%04d-%02d", year, int(month))
}

// periodDueDate is the last day of the billing month.
func periodDueDate(year int, month time.Month) time.Time {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC)
}

// GenerateMonthlyFees creates one PENDING membership-fee request per active
// fee-eligible member for the period. Re-running for the same period creates
// nothing: an existence check plus the (member, period, category) uniqueness
// constraint make the run idempotent, and a concurrent duplicate insert is
// absorbed as a skip. The batch is a best-effort fan-out over independent
// member rows; one member's failure never aborts the rest.
func (s *BillingService) GenerateMonthlyFees(ctx context.Context, year int, month time.Month) (*model.FeeGenerationResult, error) {
	period := PeriodKey(year, month)
	dueDate := periodDueDate(year, month)

	active := true
	members, err := s.memberRepo.List(ctx, model.MemberFilter{Active: &active})
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}

	result := &model.FeeGenerationResult{Period: period}

	for _, m := range members {
		if !m.MembershipType.RequiresFee() {
			continue
		}

		fee, ok := s.fees[m.MembershipType]
		if !ok {
			result.Failures = append(result.Failures, model.MemberFailure{
				MemberID: m.ID,
				Error:    ErrNoFeeConfigured.Error(),
			})
			continue
		}

		_, err := s.requestRepo.FindByPeriod(ctx, m.ID, period, model.CategoryMembershipFee)
		if err == nil {
			result.Skipped++
			continue
		}
		if !errors.Is(err, repository.ErrPaymentRequestNotFound) {
			result.Failures = append(result.Failures, model.MemberFailure{
				MemberID: m.ID,
				Error:    err.Error(),
			})
			continue
		}

		req := &model.PaymentRequest{
			MemberID: m.ID,
			Title:    fmt.Sprintf("Kontingent %s", period),
			Amount:   fee,
			Category: model.CategoryMembershipFee,
			DueDate:  dueDate,
			Status:   model.PaymentRequestPending,
			Period:   &period,
		}

		if _, err := s.requestRepo.Create(ctx, req); err != nil {
			if errors.Is(err, repository.ErrDuplicatePaymentRequest) {
				// lost the race against a concurrent run; same outcome
				result.Skipped++
				continue
			}
			result.Failures = append(result.Failures, model.MemberFailure{
				MemberID: m.ID,
				Error:    err.Error(),
			})
			continue
		}
		result.Created++
	}

	logger.Info("monthly fee generation complete",
		"period", period,
		"created", result.Created,
		"skipped", result.Skipped,
		"failures", len(result.Failures))

	return result, nil
}

// CreateInvoiceGroup creates one identical PENDING request per member. The
// group has no stored identity; it is rejoined later by (title, due date).
func (s *BillingService) CreateInvoiceGroup(ctx context.Context, p model.InvoiceGroupRequest) ([]*model.PaymentRequest, []model.MemberFailure, error) {
	if err := p.Validate(); err != nil {
		return nil, nil, err
	}

	var (
		created  []*model.PaymentRequest
		failures []model.MemberFailure
	)
	for _, memberID := range p.MemberIDs {
		req := &model.PaymentRequest{
			MemberID: memberID,
			Title:    p.Title,
			Amount:   p.Amount,
			Category: p.Category,
			DueDate:  p.DueDate,
			Status:   model.PaymentRequestPending,
			EventID:  p.EventID,
		}
		c, err := s.requestRepo.Create(ctx, req)
		if err != nil {
			failures = append(failures, model.MemberFailure{MemberID: memberID, Error: err.Error()})
			continue
		}
		created = append(created, c)
	}
	return created, failures, nil
}

// MarkPaid settles a pending request: the status flip and the settlement
// transaction (with its balance credit) commit in one unit or not at all.
func (s *BillingService) MarkPaid(ctx context.Context, requestID int64) (*model.Transaction, error) {
	var settlement *model.Transaction
	err := s.memberRepo.WithinTransaction(ctx, func(ctx context.Context) error {
		req, err := s.requestRepo.Get(ctx, requestID)
		if err != nil {
			if errors.Is(err, repository.ErrPaymentRequestNotFound) {
				return ErrNotFound
			}
			return err
		}

		err = s.requestRepo.UpdateStatus(ctx, requestID,
			model.PaymentRequestPending, model.PaymentRequestPaid)
		if err != nil {
			if errors.Is(err, repository.ErrStatusConflict) {
				return ErrNotPending
			}
			return err
		}

		txn := &model.Transaction{
			MemberID:         &req.MemberID,
			Amount:           req.Amount,
			Category:         req.Category,
			Description:      fmt.Sprintf("Betaling: %s", req.Title),
			Date:             time.Now().UTC(),
			PaymentRequestID: &req.ID,
		}
		created, err := s.transactionRepo.Create(ctx, txn)
		if err != nil {
			return fmt.Errorf("create settlement transaction: %w", err)
		}
		settlement = created

		if err := s.memberRepo.AdjustBalance(ctx, req.MemberID, req.Amount); err != nil {
			return fmt.Errorf("credit balance: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return settlement, nil
}

// Waive marks a pending request WAIVED. No transaction is recorded and no
// balance moves.
func (s *BillingService) Waive(ctx context.Context, requestID int64) error {
	err := s.requestRepo.UpdateStatus(ctx, requestID,
		model.PaymentRequestPending, model.PaymentRequestWaived)
	if errors.Is(err, repository.ErrStatusConflict) {
		return ErrNotPending
	}
	return err
}

// Reopen is the explicit admin override out of a terminal state. Reopening a
// PAID request re-runs the settlement logic symmetrically: the settlement
// transaction is deleted and the balance credit reversed in the same unit as
// the status change. Reopening a WAIVED request just flips the status.
func (s *BillingService) Reopen(ctx context.Context, requestID int64) error {
	return s.memberRepo.WithinTransaction(ctx, func(ctx context.Context) error {
		req, err := s.requestRepo.Get(ctx, requestID)
		if err != nil {
			if errors.Is(err, repository.ErrPaymentRequestNotFound) {
				return ErrNotFound
			}
			return err
		}

		switch req.Status {
		case model.PaymentRequestPending:
			return nil
		case model.PaymentRequestWaived:
			return s.requestRepo.UpdateStatus(ctx, requestID,
				model.PaymentRequestWaived, model.PaymentRequestPending)
		case model.PaymentRequestPaid:
			txn, err := s.transactionRepo.FindByPaymentRequest(ctx, requestID)
			if err != nil && !errors.Is(err, repository.ErrTransactionNotFound) {
				return err
			}
			if txn != nil {
				if err := s.transactionRepo.Delete(ctx, txn.ID); err != nil {
					return err
				}
				if txn.MemberID != nil {
					if err := s.memberRepo.AdjustBalance(ctx, *txn.MemberID, txn.Amount.Neg()); err != nil {
						return fmt.Errorf("reverse settlement: %w", err)
					}
				}
			}
			return s.requestRepo.UpdateStatus(ctx, requestID,
				model.PaymentRequestPaid, model.PaymentRequestPending)
		default:
			return fmt.Errorf("unknown status %q", req.Status)
		}
	})
}

func (s *BillingService) ListRequests(ctx context.Context, f model.PaymentRequestFilter) ([]*model.PaymentRequest, int64, error) {
	return s.requestRepo.List(ctx, f)
}

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
	ErrNotFound     = errors.New("not found")
	ErrBalanceDrift = errors.New("balance drift detected")
)

type TransactionRepository interface {
	Create(ctx context.Context, txn *model.Transaction) (*model.Transaction, error)
	Get(ctx context.Context, id int64) (*model.Transaction, error)
	GetForUpdate(ctx context.Context, id int64) (*model.Transaction, error)
	Delete(ctx context.Context, id int64) error
	FindByPaymentRequest(ctx context.Context, requestID int64) (*model.Transaction, error)
	List(ctx context.Context, f model.TransactionFilter) ([]*model.Transaction, int64, error)
	ListRange(ctx context.Context, from, to time.Time) ([]*model.Transaction, error)
	SumAmounts(ctx context.Context, memberID int64) (decimal.Decimal, error)
	DeleteAll(ctx context.Context) error
}

type MemberRepository interface {
	Get(ctx context.Context, id int64) (*model.Member, error)
	List(ctx context.Context, f model.MemberFilter) ([]*model.Member, error)
	Create(ctx context.Context, m *model.Member) (*model.Member, error)
	AdjustBalance(ctx context.Context, memberID int64, delta decimal.Decimal) error
	ResetBalances(ctx context.Context) error
	WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

type PaymentRequestRepository interface {
	Create(ctx context.Context, req *model.PaymentRequest) (*model.PaymentRequest, error)
	Get(ctx context.Context, id int64) (*model.PaymentRequest, error)
	FindByPeriod(ctx context.Context, memberID int64, period, category string) (*model.PaymentRequest, error)
	UpdateStatus(ctx context.Context, id int64, from, to model.PaymentRequestStatus) error
	List(ctx context.Context, f model.PaymentRequestFilter) ([]*model.PaymentRequest, int64, error)
	ListPendingDueBefore(ctx context.Context, cutoff time.Time) ([]*model.PaymentRequest, error)
	TouchReminder(ctx context.Context, id int64, at time.Time) error
}

// LedgerService owns every balance mutation. Balance and transaction writes
// always happen in one atomic unit so the member balance stays equal to the
// signed sum of its transactions.
type LedgerService struct {
	transactionRepo TransactionRepository
	memberRepo      MemberRepository
	requestRepo     PaymentRequestRepository
}

func NewLedgerService(transactionRepo TransactionRepository, memberRepo MemberRepository, requestRepo PaymentRequestRepository) *LedgerService {
	return &LedgerService{
		transactionRepo: transactionRepo,
		memberRepo:      memberRepo,
		requestRepo:     requestRepo,
	}
}

// Record validates and inserts a transaction, crediting the member balance
// in the same unit when the transaction is member-linked.
func (s *LedgerService) Record(ctx context.Context, p model.TransactionCreateRequest) (*model.Transaction, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if p.Amount.IsZero() {
		// allowed, but worth flagging: zero rows are no-ops for reporting
		logger.Warn("recording zero-amount transaction",
			"category", p.Category, "description", p.Description)
	}

	txn := &model.Transaction{
		MemberID:         p.MemberID,
		Amount:           p.Amount,
		Category:         p.Category,
		Description:      p.Description,
		Date:             p.Date,
		PaymentRequestID: p.PaymentRequestID,
	}

	var created *model.Transaction
	err := s.memberRepo.WithinTransaction(ctx, func(ctx context.Context) error {
		c, err := s.transactionRepo.Create(ctx, txn)
		if err != nil {
			return fmt.Errorf("create transaction: %w", err)
		}
		created = c

		if p.MemberID != nil {
			if err := s.memberRepo.AdjustBalance(ctx, *p.MemberID, p.Amount); err != nil {
				if errors.Is(err, repository.ErrMemberNotFound) {
					return ErrNotFound
				}
				return fmt.Errorf("adjust balance: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// Delete reverses a transaction: the row is removed, the balance delta is
// undone, and a linked PAID payment request drops back to PENDING, all in
// one unit. A transaction that is already gone counts as success; the
// reversal it asked for has been applied by whoever won the race.
func (s *LedgerService) Delete(ctx context.Context, id int64) error {
	err := s.memberRepo.WithinTransaction(ctx, func(ctx context.Context) error {
		txn, err := s.transactionRepo.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}

		if err := s.transactionRepo.Delete(ctx, id); err != nil {
			return err
		}

		if txn.MemberID != nil {
			if err := s.memberRepo.AdjustBalance(ctx, *txn.MemberID, txn.Amount.Neg()); err != nil {
				return fmt.Errorf("reverse balance: %w", err)
			}
		}

		if txn.PaymentRequestID != nil {
			err := s.requestRepo.UpdateStatus(ctx, *txn.PaymentRequestID,
				model.PaymentRequestPaid, model.PaymentRequestPending)
			if err != nil && !errors.Is(err, repository.ErrStatusConflict) {
				return fmt.Errorf("revert payment request: %w", err)
			}
			// a conflict means the request was not PAID (e.g. WAIVED by an
			// admin override); leave it as it is
		}
		return nil
	})

	if errors.Is(err, repository.ErrTransactionNotFound) {
		logger.Info("transaction already removed", "transaction_id", id)
		return nil
	}
	return err
}

// ResetAll wipes every transaction and zeroes every balance in a single
// irreversible unit. Never implemented as a loop of per-row deletes: a
// partial reset would leave some balances reset and others not.
func (s *LedgerService) ResetAll(ctx context.Context) error {
	return s.memberRepo.WithinTransaction(ctx, func(ctx context.Context) error {
		if err := s.transactionRepo.DeleteAll(ctx); err != nil {
			return fmt.Errorf("delete transactions: %w", err)
		}
		if err := s.memberRepo.ResetBalances(ctx); err != nil {
			return fmt.Errorf("reset balances: %w", err)
		}
		return nil
	})
}

// Reconcile compares the stored balance with the signed transaction sum.
// Drift is reported, never auto-corrected; it needs manual reconciliation.
func (s *LedgerService) Reconcile(ctx context.Context, memberID int64) error {
	member, err := s.memberRepo.Get(ctx, memberID)
	if err != nil {
		if errors.Is(err, repository.ErrMemberNotFound) {
			return ErrNotFound
		}
		return err
	}

	sum, err := s.transactionRepo.SumAmounts(ctx, memberID)
	if err != nil {
		return err
	}

	if !sum.Equal(member.Balance) {
		logger.Error("balance drift",
			"member_id", memberID,
			"stored", member.Balance.String(),
			"computed", sum.String())
		return fmt.Errorf("%w: member %d stored=%s computed=%s",
			ErrBalanceDrift, memberID, member.Balance, sum)
	}
	return nil
}

func (s *LedgerService) List(ctx context.Context, f model.TransactionFilter) ([]*model.Transaction, int64, error) {
	return s.transactionRepo.List(ctx, f)
}

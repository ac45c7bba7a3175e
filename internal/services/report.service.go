package services

import (
	"context"
	"sort"
	"time"

	"github.com/mvaberg/klubbkasse/internal/model"
	"github.com/shopspring/decimal"
)

// ReportService builds the member-by-line financial pivot. Transactions
// sharing (description, category) are treated as one logical ledger line;
// a fee recurring over months folds into a single row.
type ReportService struct {
	transactionRepo TransactionRepository
	memberRepo      MemberRepository
}

func NewReportService(transactionRepo TransactionRepository, memberRepo MemberRepository) *ReportService {
	return &ReportService{
		transactionRepo: transactionRepo,
		memberRepo:      memberRepo,
	}
}

type pivotKey struct {
	description string
	category    string
}

// BuildFinancialReport aggregates all transactions in the inclusive range.
// Columns are the full member list; a transaction whose member id no longer
// matches that list still counts in its row total and appears under its raw
// id. Rows are ordered by the date of their latest contributing transaction,
// newest first. Read-only.
func (s *ReportService) BuildFinancialReport(ctx context.Context, from, to time.Time) (*model.FinancialReport, error) {
	transactions, err := s.transactionRepo.ListRange(ctx, from, to)
	if err != nil {
		return nil, err
	}

	members, err := s.memberRepo.List(ctx, model.MemberFilter{})
	if err != nil {
		return nil, err
	}

	rows := make(map[pivotKey]*model.ReportRow)
	for _, txn := range transactions {
		key := pivotKey{description: txn.Description, category: txn.Category}
		row, ok := rows[key]
		if !ok {
			row = &model.ReportRow{
				Description:   txn.Description,
				Category:      txn.Category,
				TotalAmount:   decimal.Zero,
				MemberAmounts: make(map[int64]decimal.Decimal),
			}
			rows[key] = row
		}

		row.TotalAmount = row.TotalAmount.Add(txn.Amount)
		if txn.MemberID != nil {
			row.MemberAmounts[*txn.MemberID] = row.MemberAmounts[*txn.MemberID].Add(txn.Amount)
		}
		if txn.Date.After(row.LatestDate) {
			row.LatestDate = txn.Date
		}
	}

	out := make([]*model.ReportRow, 0, len(rows))
	for _, row := range rows {
		if row.TotalAmount.IsNegative() {
			row.Type = model.ReportTypeExpense
		} else {
			row.Type = model.ReportTypeIncome
		}
		out = append(out, row)
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].LatestDate.After(out[j].LatestDate)
	})

	return &model.FinancialReport{
		From:    from,
		To:      to,
		Members: members,
		Rows:    out,
	}, nil
}

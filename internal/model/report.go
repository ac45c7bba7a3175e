package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Report row type labels, sign-derived from the row total.
const (
	ReportTypeIncome  = "INNTEKT"
	ReportTypeExpense = "UTGIFT"
)

// ReportRow is one logical ledger line in the financial report: all
// transactions in range sharing (description, category), merged. Member
// amounts are keyed by raw member id; ids that no longer match the member
// list are kept rather than dropped.
type ReportRow struct {
	Description   string                     `json:"description"`
	Category      string                     `json:"category"`
	Type          string                     `json:"type"`
	TotalAmount   decimal.Decimal            `json:"total_amount"`
	MemberAmounts map[int64]decimal.Decimal  `json:"member_amounts"`
	LatestDate    time.Time                  `json:"latest_date"`
}

// FinancialReport is the member-by-line pivot over a date range. Members is
// the full member list regardless of per-row participation.
type FinancialReport struct {
	From    time.Time    `json:"from"`
	To      time.Time    `json:"to"`
	Members []*Member    `json:"members"`
	Rows    []*ReportRow `json:"rows"`
}

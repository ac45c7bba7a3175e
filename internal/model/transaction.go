package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Well-known transaction categories. Category is free-form; these are the
// values the billing engine itself produces.
const (
	CategoryMembershipFee = "MEMBERSHIP_FEE"
	CategoryEventCost     = "EVENT_COST"
	CategoryDonation      = "DONATION"
)

// Transaction is an immutable signed monetary event. Positive amount is
// income to the club credited on the member's ledger, negative is an
// expense or debit. MemberID is nil for club-wide transactions.
// PaymentRequestID links the settlement transaction to the request that
// produced it; a payment request has at most one such transaction.
type Transaction struct {
	ID               int64           `json:"id"`
	MemberID         *int64          `json:"member_id"`
	Amount           decimal.Decimal `json:"amount"`
	Category         string          `json:"category"`
	Description      string          `json:"description"`
	Date             time.Time       `json:"date"`
	PaymentRequestID *int64          `json:"payment_request_id"`
	CreatedAt        time.Time       `json:"created_at"`
}

func (Transaction) TableName() string { return "transactions" }

// TransactionCreateRequest is the input for recording a transaction.
type TransactionCreateRequest struct {
	MemberID         *int64
	Amount           decimal.Decimal
	Category         string
	Description      string
	Date             time.Time
	PaymentRequestID *int64
}

func (p TransactionCreateRequest) Validate() error {
	if p.Category == "" {
		return ErrMissingCategory
	}
	if p.Date.IsZero() {
		return ErrMissingDueDate
	}
	return nil
}

// TransactionFilter controls List queries.
type TransactionFilter struct {
	MemberID *int64
	Category *string
	From     *time.Time
	To       *time.Time
	Limit    int
	Offset   int
	Desc     bool
}

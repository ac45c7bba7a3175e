package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentRequestStatus is the lifecycle state of a payment request.
type PaymentRequestStatus string

const (
	PaymentRequestPending PaymentRequestStatus = "PENDING"
	PaymentRequestPaid    PaymentRequestStatus = "PAID"
	PaymentRequestWaived  PaymentRequestStatus = "WAIVED"
)

// PaymentRequest is a billing obligation owed by a member: an invoice or a
// recurring membership fee before it is settled or waived.
//
// Period holds the canonical YYYY-MM key for generator-created fees and is
// nil for ad hoc invoices. (member, period, category) is unique, which makes
// monthly fee generation idempotent.
type PaymentRequest struct {
	ID                 int64                `json:"id"`
	MemberID           int64                `json:"member_id"`
	Title              string               `json:"title"`
	Amount             decimal.Decimal      `json:"amount"`
	Category           string               `json:"category"`
	DueDate            time.Time            `json:"due_date"`
	Status             PaymentRequestStatus `json:"status"`
	EventID            *int64               `json:"event_id"`
	Period             *string              `json:"period"`
	LastReminderSentAt *time.Time           `json:"last_reminder_sent_at"`
	CreatedAt          time.Time            `json:"created_at"`
}

func (PaymentRequest) TableName() string { return "payment_requests" }

// InvoiceGroupRequest creates one payment request per member with a shared
// title. Group identity is derived from (title, due date), not stored.
type InvoiceGroupRequest struct {
	MemberIDs []int64
	Title     string
	Amount    decimal.Decimal
	Category  string
	DueDate   time.Time
	EventID   *int64
}

func (p InvoiceGroupRequest) Validate() error {
	if len(p.MemberIDs) == 0 {
		return ErrMissingMembers
	}
	if p.Title == "" {
		return ErrMissingTitle
	}
	if p.Category == "" {
		return ErrMissingCategory
	}
	if p.DueDate.IsZero() {
		return ErrMissingDueDate
	}
	return nil
}

// PaymentRequestFilter controls List queries.
type PaymentRequestFilter struct {
	MemberID *int64
	Status   *PaymentRequestStatus
	Category *string
	Period   *string
	Limit    int
	Offset   int
	Desc     bool
}

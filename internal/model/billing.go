package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// MemberFailure records a single member's failure inside a best-effort batch.
type MemberFailure struct {
	MemberID int64  `json:"member_id"`
	Error    string `json:"error"`
}

// FeeGenerationResult is the outcome of one monthly fee generation run.
// The batch is a fan-out over independent member rows: partial progress is
// acceptable and the run is resumable, so failures are collected, not fatal.
type FeeGenerationResult struct {
	Period   string          `json:"period"`
	Created  int             `json:"created"`
	Skipped  int             `json:"skipped"`
	Failures []MemberFailure `json:"failures,omitempty"`
}

// ReminderResult is the outcome of one reminder run, returned to the
// scheduler for observability.
type ReminderResult struct {
	DueTodayCount int             `json:"due_today_count"`
	DueSoonCount  int             `json:"due_soon_count"`
	Skipped       int             `json:"skipped"`
	Failures      []MemberFailure `json:"failures,omitempty"`
}

// Reminder kinds carried as queue metadata.
const (
	ReminderDueToday = "due_today"
	ReminderDueSoon  = "due_soon"
)

// ReminderNotification is the queue payload handed to the notifier; actual
// delivery happens out of process.
type ReminderNotification struct {
	RequestID int64           `json:"request_id"`
	MemberID  int64           `json:"member_id"`
	Title     string          `json:"title"`
	Amount    decimal.Decimal `json:"amount"`
	DueDate   time.Time       `json:"due_date"`
	Kind      string          `json:"kind"`
}

package repository

import (
	"time"

	"github.com/mvaberg/klubbkasse/internal/model"
	"github.com/shopspring/decimal"
)

type PaymentRequestEntity struct {
	ID                 int64           `db:"id"                    gorm:"primaryKey;autoIncrement;column:id"`
	MemberID           int64           `db:"member_id"             gorm:"column:member_id;not null;index;uniqueIndex:uq_member_period_category"`
	Title              string          `db:"title"                 gorm:"column:title;not null"`
	Amount             decimal.Decimal `db:"amount"                gorm:"column:amount;type:numeric(12,2);not null"`
	Category           string          `db:"category"              gorm:"column:category;not null;uniqueIndex:uq_member_period_category"`
	DueDate            time.Time       `db:"due_date"              gorm:"column:due_date;not null;index"`
	Status             string          `db:"status"                gorm:"column:status;not null;default:PENDING;index"`
	EventID            *int64          `db:"event_id"              gorm:"column:event_id;index"`
	Period             *string         `db:"period"                gorm:"column:period;uniqueIndex:uq_member_period_category"`
	LastReminderSentAt *time.Time      `db:"last_reminder_sent_at" gorm:"column:last_reminder_sent_at"`
	CreatedAt          time.Time       `db:"created_at"            gorm:"column:created_at;autoCreateTime"`
}

func (PaymentRequestEntity) TableName() string {
	return "payment_requests"
}

func toPaymentRequestEntity(m *model.PaymentRequest) *PaymentRequestEntity {
	if m == nil {
		return nil
	}
	return &PaymentRequestEntity{
		ID:                 m.ID,
		MemberID:           m.MemberID,
		Title:              m.Title,
		Amount:             m.Amount,
		Category:           m.Category,
		DueDate:            m.DueDate,
		Status:             string(m.Status),
		EventID:            m.EventID,
		Period:             m.Period,
		LastReminderSentAt: m.LastReminderSentAt,
		CreatedAt:          m.CreatedAt,
	}
}

func toPaymentRequestModel(e *PaymentRequestEntity) *model.PaymentRequest {
	if e == nil {
		return nil
	}
	return &model.PaymentRequest{
		ID:                 e.ID,
		MemberID:           e.MemberID,
		Title:              e.Title,
		Amount:             e.Amount,
		Category:           e.Category,
		DueDate:            e.DueDate,
		Status:             model.PaymentRequestStatus(e.Status),
		EventID:            e.EventID,
		Period:             e.Period,
		LastReminderSentAt: e.LastReminderSentAt,
		CreatedAt:          e.CreatedAt,
	}
}

func toPaymentRequestModels(entities []*PaymentRequestEntity) []*model.PaymentRequest {
	if entities == nil {
		return nil
	}
	models := make([]*model.PaymentRequest, len(entities))
	for i, e := range entities {
		models[i] = toPaymentRequestModel(e)
	}
	return models
}

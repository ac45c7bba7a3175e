package repository

import (
	"time"

	"github.com/mvaberg/klubbkasse/internal/model"
	"github.com/shopspring/decimal"
)

type TransactionEntity struct {
	ID               int64           `db:"id"                 gorm:"primaryKey;autoIncrement;column:id"`
	MemberID         *int64          `db:"member_id"          gorm:"column:member_id;index"`
	Amount           decimal.Decimal `db:"amount"             gorm:"column:amount;type:numeric(12,2);not null"`
	Category         string          `db:"category"           gorm:"column:category;not null;index"`
	Description      string          `db:"description"        gorm:"column:description;not null"`
	Date             time.Time       `db:"date"               gorm:"column:date;not null;index"`
	PaymentRequestID *int64          `db:"payment_request_id" gorm:"column:payment_request_id;index"`
	CreatedAt        time.Time       `db:"created_at"         gorm:"column:created_at;autoCreateTime"`
}

func (TransactionEntity) TableName() string {
	return "transactions"
}

func toTransactionEntity(m *model.Transaction) *TransactionEntity {
	if m == nil {
		return nil
	}
	return &TransactionEntity{
		ID:               m.ID,
		MemberID:         m.MemberID,
		Amount:           m.Amount,
		Category:         m.Category,
		Description:      m.Description,
		Date:             m.Date,
		PaymentRequestID: m.PaymentRequestID,
		CreatedAt:        m.CreatedAt,
	}
}

func toTransactionModel(e *TransactionEntity) *model.Transaction {
	if e == nil {
		return nil
	}
	return &model.Transaction{
		ID:               e.ID,
		MemberID:         e.MemberID,
		Amount:           e.Amount,
		Category:         e.Category,
		Description:      e.Description,
		Date:             e.Date,
		PaymentRequestID: e.PaymentRequestID,
		CreatedAt:        e.CreatedAt,
	}
}

func toTransactionModels(entities []*TransactionEntity) []*model.Transaction {
	if entities == nil {
		return nil
	}
	models := make([]*model.Transaction, len(entities))
	for i, e := range entities {
		models[i] = toTransactionModel(e)
	}
	return models
}

package repository

import (
	"time"

	"github.com/mvaberg/klubbkasse/internal/model"
	"github.com/shopspring/decimal"
)

type MemberEntity struct {
	ID             int64           `db:"id"              gorm:"primaryKey;autoIncrement;column:id"`
	Name           string          `db:"name"            gorm:"column:name;not null"`
	Role           string          `db:"role"            gorm:"column:role;not null;default:MEMBER"`
	MembershipType string          `db:"membership_type" gorm:"column:membership_type;not null"`
	Balance        decimal.Decimal `db:"balance"         gorm:"column:balance;type:numeric(12,2);not null;default:0"`
	Active         bool            `db:"active"          gorm:"column:active;not null;default:true"`
	CreatedAt      time.Time       `db:"created_at"      gorm:"column:created_at;autoCreateTime"`
}

func (MemberEntity) TableName() string {
	return "members"
}

func toMemberEntity(m *model.Member) *MemberEntity {
	if m == nil {
		return nil
	}
	return &MemberEntity{
		ID:             m.ID,
		Name:           m.Name,
		Role:           string(m.Role),
		MembershipType: string(m.MembershipType),
		Balance:        m.Balance,
		Active:         m.Active,
		CreatedAt:      m.CreatedAt,
	}
}

func toMemberModel(e *MemberEntity) *model.Member {
	if e == nil {
		return nil
	}
	return &model.Member{
		ID:             e.ID,
		Name:           e.Name,
		Role:           model.Role(e.Role),
		MembershipType: model.MembershipType(e.MembershipType),
		Balance:        e.Balance,
		Active:         e.Active,
		CreatedAt:      e.CreatedAt,
	}
}

func toMemberModels(entities []*MemberEntity) []*model.Member {
	if entities == nil {
		return nil
	}
	models := make([]*model.Member, len(entities))
	for i, e := range entities {
		models[i] = toMemberModel(e)
	}
	return models
}

package repository

import (
	"context"
	"errors"

	"github.com/mvaberg/klubbkasse/internal/model"
	"github.com/mvaberg/klubbkasse/pkg/pg"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrMemberNotFound     = errors.New("member not found")
	ErrMemberReferenced   = errors.New("member is referenced by transactions")
	ErrConcurrentUpdate   = errors.New("concurrent update detected")
	ErrMaxRetriesExceeded = errors.New("max retries exceeded")
)

type MemberRepository struct {
	*pg.DB
}

func NewMemberRepository(db *pg.DB) *MemberRepository {
	return &MemberRepository{
		db,
	}
}

func (r *MemberRepository) Create(ctx context.Context, m *model.Member) (*model.Member, error) {
	entity := toMemberEntity(m)

	if err := r.Write(ctx).WithContext(ctx).Create(entity).Error; err != nil {
		return nil, err
	}

	return toMemberModel(entity), nil
}

func (r *MemberRepository) Get(ctx context.Context, id int64) (*model.Member, error) {
	var entity MemberEntity
	err := r.Read(ctx).WithContext(ctx).
		Where("id = ?", id).
		First(&entity).
		Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrMemberNotFound
		}
		return nil, err
	}

	return toMemberModel(&entity), nil
}

func (r *MemberRepository) List(ctx context.Context, f model.MemberFilter) ([]*model.Member, error) {
	q := r.Read(ctx).WithContext(ctx).Model(&MemberEntity{})

	if f.Active != nil {
		q = q.Where("active = ?", *f.Active)
	}
	if f.MembershipType != nil {
		q = q.Where("membership_type = ?", string(*f.MembershipType))
	}

	limit := f.Limit
	if limit <= 0 || limit > 1000 {
		limit = 1000
	}
	offset := f.Offset
	if offset < 0 {
		offset = 0
	}

	var entities []*MemberEntity
	if err := q.Order("name ASC").Limit(limit).Offset(offset).Find(&entities).Error; err != nil {
		return nil, err
	}

	return toMemberModels(entities), nil
}

// AdjustBalance applies a signed delta to the member's balance as a single
// relational update under a row lock. The lock serializes concurrent
// adjustments to the same member row; transient failures are retried with
// bounded backoff.
func (r *MemberRepository) AdjustBalance(ctx context.Context, memberID int64, delta decimal.Decimal) error {
	return withRetry(ctx, func() error {
		return r.adjustBalanceAttempt(ctx, memberID, delta)
	})
}

func (r *MemberRepository) adjustBalanceAttempt(ctx context.Context, memberID int64, delta decimal.Decimal) error {
	var entity MemberEntity

	err := r.Write(ctx).WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", memberID).
		First(&entity).
		Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrMemberNotFound
		}
		return err
	}

	result := r.Write(ctx).WithContext(ctx).
		Model(&MemberEntity{}).
		Where("id = ?", memberID).
		Update("balance", gorm.Expr("balance + ?", delta))

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		return ErrConcurrentUpdate
	}

	return nil
}

func (r *MemberRepository) GetBalance(ctx context.Context, memberID int64) (decimal.Decimal, error) {
	var entity MemberEntity
	err := r.Read(ctx).WithContext(ctx).
		Select("balance").
		Where("id = ?", memberID).
		First(&entity).
		Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return decimal.Zero, ErrMemberNotFound
		}
		return decimal.Zero, err
	}

	return entity.Balance, nil
}

// ResetBalances zeroes every member balance. Used only by the bulk reset
// unit together with TransactionRepository.DeleteAll.
func (r *MemberRepository) ResetBalances(ctx context.Context) error {
	return r.Write(ctx).WithContext(ctx).
		Model(&MemberEntity{}).
		Where("1 = 1").
		Update("balance", decimal.Zero).
		Error
}

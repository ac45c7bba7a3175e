package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/mvaberg/klubbkasse/internal/model"
	"github.com/mvaberg/klubbkasse/pkg/pg"
	"gorm.io/gorm"
)

var (
	ErrPaymentRequestNotFound  = errors.New("payment request not found")
	ErrDuplicatePaymentRequest = errors.New("payment request already exists for period")
	ErrStatusConflict          = errors.New("payment request status changed concurrently")
)

type PaymentRequestRepository struct {
	*pg.DB
}

func NewPaymentRequestRepository(db *pg.DB) *PaymentRequestRepository {
	return &PaymentRequestRepository{
		db,
	}
}

// Create inserts the request. A unique-constraint violation on
// (member, period, category) is mapped to ErrDuplicatePaymentRequest so the
// fee generator can treat a concurrent duplicate insert as already-exists.
func (r *PaymentRequestRepository) Create(ctx context.Context, req *model.PaymentRequest) (*model.PaymentRequest, error) {
	entity := toPaymentRequestEntity(req)

	if err := r.Write(ctx).WithContext(ctx).Create(entity).Error; err != nil {
		if isDuplicateKey(err) {
			return nil, ErrDuplicatePaymentRequest
		}
		return nil, err
	}

	return toPaymentRequestModel(entity), nil
}

func isDuplicateKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate key") || strings.Contains(msg, "unique constraint")
}

func (r *PaymentRequestRepository) Get(ctx context.Context, id int64) (*model.PaymentRequest, error) {
	var entity PaymentRequestEntity
	err := r.Read(ctx).WithContext(ctx).
		Where("id = ?", id).
		First(&entity).
		Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPaymentRequestNotFound
		}
		return nil, err
	}

	return toPaymentRequestModel(&entity), nil
}

// FindByPeriod looks up the generator-created request for
// (member, period, category). Backs the idempotence check.
func (r *PaymentRequestRepository) FindByPeriod(ctx context.Context, memberID int64, period, category string) (*model.PaymentRequest, error) {
	var entity PaymentRequestEntity
	err := r.Read(ctx).WithContext(ctx).
		Where("member_id = ? AND period = ? AND category = ?", memberID, period, category).
		First(&entity).
		Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPaymentRequestNotFound
		}
		return nil, err
	}

	return toPaymentRequestModel(&entity), nil
}

// UpdateStatus transitions the request from one status to another as a
// guarded single-row update. Zero rows affected means the request was not in
// the expected state (or gone) and the transition did not happen.
func (r *PaymentRequestRepository) UpdateStatus(ctx context.Context, id int64, from, to model.PaymentRequestStatus) error {
	result := r.Write(ctx).WithContext(ctx).
		Model(&PaymentRequestEntity{}).
		Where("id = ? AND status = ?", id, string(from)).
		Update("status", string(to))

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrStatusConflict
	}
	return nil
}

func (r *PaymentRequestRepository) List(ctx context.Context, f model.PaymentRequestFilter) ([]*model.PaymentRequest, int64, error) {
	q := r.Read(ctx).WithContext(ctx).Model(&PaymentRequestEntity{})

	if f.MemberID != nil {
		q = q.Where("member_id = ?", *f.MemberID)
	}
	if f.Status != nil {
		q = q.Where("status = ?", string(*f.Status))
	}
	if f.Category != nil && *f.Category != "" {
		q = q.Where("category = ?", *f.Category)
	}
	if f.Period != nil && *f.Period != "" {
		q = q.Where("period = ?", *f.Period)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	order := "due_date"
	if f.Desc {
		order += " DESC"
	} else {
		order += " ASC"
	}

	limit := f.Limit
	if limit <= 0 || limit > 1000 {
		limit = 50
	}
	offset := f.Offset
	if offset < 0 {
		offset = 0
	}

	var entities []*PaymentRequestEntity
	if err := q.Order(order).Limit(limit).Offset(offset).Find(&entities).Error; err != nil {
		return nil, 0, err
	}

	return toPaymentRequestModels(entities), total, nil
}

// ListPendingDueBefore returns every PENDING request with a due date before
// the cutoff, oldest first. The reminder engine partitions the result.
func (r *PaymentRequestRepository) ListPendingDueBefore(ctx context.Context, cutoff time.Time) ([]*model.PaymentRequest, error) {
	var entities []*PaymentRequestEntity
	err := r.Read(ctx).WithContext(ctx).
		Where("status = ? AND due_date < ?", string(model.PaymentRequestPending), cutoff).
		Order("due_date ASC").
		Find(&entities).
		Error
	if err != nil {
		return nil, err
	}

	return toPaymentRequestModels(entities), nil
}

// TouchReminder stamps the reminder-dedup timestamp. Persisted on the row so
// repeated scheduler ticks across process restarts stay deduplicated.
func (r *PaymentRequestRepository) TouchReminder(ctx context.Context, id int64, at time.Time) error {
	result := r.Write(ctx).WithContext(ctx).
		Model(&PaymentRequestEntity{}).
		Where("id = ?", id).
		Update("last_reminder_sent_at", at)

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrPaymentRequestNotFound
	}
	return nil
}

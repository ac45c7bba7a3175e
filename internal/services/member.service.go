package services

import (
	"context"
	"errors"

	"github.com/mvaberg/klubbkasse/internal/model"
	"github.com/mvaberg/klubbkasse/internal/repository"
	"github.com/shopspring/decimal"
)

// MemberService is thin CRUD over the member store; balances are owned by
// the ledger service and start at zero here.
type MemberService struct {
	memberRepo MemberRepository
}

func NewMemberService(memberRepo MemberRepository) *MemberService {
	return &MemberService{memberRepo: memberRepo}
}

func (s *MemberService) Create(ctx context.Context, p model.MemberCreateRequest) (*model.Member, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	m := &model.Member{
		Name:           p.Name,
		Role:           p.Role,
		MembershipType: p.MembershipType,
		Balance:        decimal.Zero,
		Active:         true,
	}
	return s.memberRepo.Create(ctx, m)
}

func (s *MemberService) Get(ctx context.Context, id int64) (*model.Member, error) {
	m, err := s.memberRepo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrMemberNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return m, nil
}

func (s *MemberService) List(ctx context.Context, f model.MemberFilter) ([]*model.Member, error) {
	return s.memberRepo.List(ctx, f)
}

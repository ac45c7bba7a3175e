package repository

import (
	"context"
	"testing"

	"github.com/mvaberg/klubbkasse/internal/model"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func filterMembers(active *bool, membershipType *string) model.MemberFilter {
	f := model.MemberFilter{Active: active}
	if membershipType != nil {
		mt := model.MembershipType(*membershipType)
		f.MembershipType = &mt
	}
	return f
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestMemberRepository_AdjustBalance(t *testing.T) {
	db := setupTestDB(t).DB
	repo := NewMemberRepository(db)
	ctx := context.Background()

	t.Run("credit increases balance", func(t *testing.T) {
		member := &MemberEntity{
			ID:             1,
			Name:           "Kari Nordmann",
			Role:           "MEMBER",
			MembershipType: "STANDARD",
			Balance:        dec("0"),
			Active:         true,
		}
		err := db.Write(ctx).Create(member).Error
		require.NoError(t, err)

		err = repo.AdjustBalance(ctx, 1, dec("250.00"))
		assert.NoError(t, err)

		balance, err := repo.GetBalance(ctx, 1)
		require.NoError(t, err)
		assert.True(t, balance.Equal(dec("250.00")), "got %s", balance)
	})

	t.Run("debit decreases balance below zero", func(t *testing.T) {
		member := &MemberEntity{
			ID:             2,
			Name:           "Ola Nordmann",
			Role:           "MEMBER",
			MembershipType: "STUDENT",
			Balance:        dec("100.00"),
			Active:         true,
		}
		err := db.Write(ctx).Create(member).Error
		require.NoError(t, err)

		err = repo.AdjustBalance(ctx, 2, dec("-350.50"))
		assert.NoError(t, err)

		balance, err := repo.GetBalance(ctx, 2)
		require.NoError(t, err)
		assert.True(t, balance.Equal(dec("-250.50")), "got %s", balance)
	})

	t.Run("member not found", func(t *testing.T) {
		err := repo.AdjustBalance(ctx, 999, dec("10"))
		assert.ErrorIs(t, err, ErrMemberNotFound)
	})

	t.Run("zero delta is a no-op", func(t *testing.T) {
		member := &MemberEntity{
			ID:             3,
			Name:           "Nils",
			Role:           "MEMBER",
			MembershipType: "STANDARD",
			Balance:        dec("500.00"),
			Active:         true,
		}
		err := db.Write(ctx).Create(member).Error
		require.NoError(t, err)

		err = repo.AdjustBalance(ctx, 3, decimal.Zero)
		assert.NoError(t, err)

		balance, err := repo.GetBalance(ctx, 3)
		require.NoError(t, err)
		assert.True(t, balance.Equal(dec("500.00")), "got %s", balance)
	})

	t.Run("sequence of adjustments sums", func(t *testing.T) {
		member := &MemberEntity{
			ID:             4,
			Name:           "Siri",
			Role:           "ADMIN",
			MembershipType: "STANDARD",
			Balance:        dec("0"),
			Active:         true,
		}
		err := db.Write(ctx).Create(member).Error
		require.NoError(t, err)

		for _, d := range []string{"100.00", "-40.25", "0.25", "-60.00"} {
			require.NoError(t, repo.AdjustBalance(ctx, 4, dec(d)))
		}

		balance, err := repo.GetBalance(ctx, 4)
		require.NoError(t, err)
		assert.True(t, balance.Equal(dec("0")), "got %s", balance)
	})
}

func TestMemberRepository_ResetBalances(t *testing.T) {
	db := setupTestDB(t).DB
	repo := NewMemberRepository(db)
	ctx := context.Background()

	for i := int64(1); i <= 3; i++ {
		member := &MemberEntity{
			ID:             i,
			Name:           "Member",
			Role:           "MEMBER",
			MembershipType: "STANDARD",
			Balance:        dec("123.45"),
			Active:         true,
		}
		require.NoError(t, db.Write(ctx).Create(member).Error)
	}

	err := repo.ResetBalances(ctx)
	require.NoError(t, err)

	for i := int64(1); i <= 3; i++ {
		balance, err := repo.GetBalance(ctx, i)
		require.NoError(t, err)
		assert.True(t, balance.IsZero(), "member %d got %s", i, balance)
	}
}

func TestMemberRepository_List(t *testing.T) {
	db := setupTestDB(t).DB
	repo := NewMemberRepository(db)
	ctx := context.Background()

	seed := []*MemberEntity{
		{ID: 1, Name: "Anna", Role: "MEMBER", MembershipType: "STANDARD", Active: true},
		{ID: 2, Name: "Bjorn", Role: "MEMBER", MembershipType: "HONORARY", Active: true},
		{ID: 3, Name: "Inga", Role: "MEMBER", MembershipType: "STANDARD", Active: false},
	}
	for _, m := range seed {
		m.Balance = decimal.Zero
		require.NoError(t, db.Write(ctx).Create(m).Error)
	}

	t.Run("filter by active", func(t *testing.T) {
		active := true
		members, err := repo.List(ctx, filterMembers(&active, nil))
		require.NoError(t, err)
		assert.Len(t, members, 2)
	})

	t.Run("filter by membership type", func(t *testing.T) {
		mt := "STANDARD"
		members, err := repo.List(ctx, filterMembers(nil, &mt))
		require.NoError(t, err)
		assert.Len(t, members, 2)
	})

	t.Run("no filter returns all", func(t *testing.T) {
		members, err := repo.List(ctx, filterMembers(nil, nil))
		require.NoError(t, err)
		assert.Len(t, members, 3)
	})
}

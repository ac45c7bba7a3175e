package services

import (
	"context"
	"reflect"
	"testing"

	"github.com/mvaberg/klubbkasse/internal/model"
	"github.com/mvaberg/klubbkasse/internal/repository"
	"github.com/mvaberg/klubbkasse/pkg/pg"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type testEnv struct {
	db           *pg.DB
	members      *repository.MemberRepository
	transactions *repository.TransactionRepository
	requests     *repository.PaymentRequestRepository
}

func setupTestEnv(t *testing.T) *testEnv {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	err = db.AutoMigrate(
		&repository.MemberEntity{},
		&repository.TransactionEntity{},
		&repository.PaymentRequestEntity{})
	require.NoError(t, err)

	pgDB := &pg.DB{}
	pgDBValue := reflect.ValueOf(pgDB).Elem()

	readField := pgDBValue.FieldByName("read")
	writeField := pgDBValue.FieldByName("write")

	readField = reflect.NewAt(readField.Type(), readField.Addr().UnsafePointer()).Elem()
	writeField = reflect.NewAt(writeField.Type(), writeField.Addr().UnsafePointer()).Elem()

	readField.Set(reflect.ValueOf(db))
	writeField.Set(reflect.ValueOf(db))

	return &testEnv{
		db:           pgDB,
		members:      repository.NewMemberRepository(pgDB),
		transactions: repository.NewTransactionRepository(pgDB),
		requests:     repository.NewPaymentRequestRepository(pgDB),
	}
}

func (e *testEnv) seedMember(t *testing.T, name string, membershipType model.MembershipType) *model.Member {
	m, err := e.members.Create(context.Background(), &model.Member{
		Name:           name,
		Role:           model.RoleMember,
		MembershipType: membershipType,
		Balance:        decimal.Zero,
		Active:         true,
	})
	require.NoError(t, err)
	return m
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func ptr(i int64) *int64 {
	return &i
}

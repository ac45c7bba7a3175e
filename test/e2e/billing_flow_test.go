package e2e

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/mvaberg/klubbkasse/internal/model"
	"github.com/mvaberg/klubbkasse/internal/queue"
	"github.com/mvaberg/klubbkasse/internal/repository"
	"github.com/mvaberg/klubbkasse/internal/services"
	"github.com/mvaberg/klubbkasse/pkg/pg"
	"github.com/mvaberg/klubbkasse/pkg/redis"
	goredis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type testDB = pg.DB

type TestEnvironment struct {
	DB              *pg.DB
	Redis           *miniredis.Miniredis
	RedisAdapter    redis.RedisAdapter
	Queue           *queue.Queue
	MemberRepo      *repository.MemberRepository
	TransactionRepo *repository.TransactionRepository
	RequestRepo     *repository.PaymentRequestRepository
	LedgerService   *services.LedgerService
	BillingService  *services.BillingService
	ReminderService *services.ReminderService
}

func setupE2EEnvironment(t *testing.T) *TestEnvironment {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	err = db.AutoMigrate(
		&repository.MemberEntity{},
		&repository.TransactionEntity{},
		&repository.PaymentRequestEntity{},
	)
	require.NoError(t, err)

	pgDB := &testDB{}
	pgDBValue := reflect.ValueOf(pgDB).Elem()

	readField := pgDBValue.FieldByName("read")
	writeField := pgDBValue.FieldByName("write")

	readField = reflect.NewAt(readField.Type(), readField.Addr().UnsafePointer()).Elem()
	writeField = reflect.NewAt(writeField.Type(), writeField.Addr().UnsafePointer()).Elem()

	readField.Set(reflect.ValueOf(db))
	writeField.Set(reflect.ValueOf(db))

	mr, err := miniredis.Run()
	require.NoError(t, err)

	// Use unique connection name per test to avoid global adapter caching issues
	connName := fmt.Sprintf("test-%d", time.Now().UnixNano())
	redisAdapter, err := redis.NewRedisAdapter(connName, "", &goredis.UniversalOptions{
		Addrs: []string{mr.Addr()},
	})
	require.NoError(t, err)

	queueConfig := queue.QueueConfig{
		Name:              "reminders:e2e",
		ConsumerGroup:     "e2e-group",
		ConsumerName:      "e2e-consumer",
		MaxRetries:        3,
		VisibilityTimeout: 5 * time.Second,
		PollInterval:      100 * time.Millisecond,
		BatchSize:         10,
		MaxLen:            1000,
		EnableDLQ:         true,
	}

	q, err := queue.NewQueue(redisAdapter, queueConfig)
	require.NoError(t, err)

	memberRepo := repository.NewMemberRepository(pgDB)
	transactionRepo := repository.NewTransactionRepository(pgDB)
	requestRepo := repository.NewPaymentRequestRepository(pgDB)

	fees := services.FeeSchedule{
		model.MembershipStandard: decimal.RequireFromString("250.00"),
		model.MembershipStudent:  decimal.RequireFromString("125.00"),
	}

	return &TestEnvironment{
		DB:              pgDB,
		Redis:           mr,
		RedisAdapter:    redisAdapter,
		Queue:           q,
		MemberRepo:      memberRepo,
		TransactionRepo: transactionRepo,
		RequestRepo:     requestRepo,
		LedgerService:   services.NewLedgerService(transactionRepo, memberRepo, requestRepo),
		BillingService:  services.NewBillingService(requestRepo, memberRepo, transactionRepo, fees),
		ReminderService: services.NewReminderService(requestRepo, q, 3),
	}
}

func (env *TestEnvironment) Cleanup() {
	// Stop queue first (gracefully drain messages)
	if env.Queue != nil {
		_ = env.Queue.Stop(5 * time.Second)
	}
	// Give time for any in-flight operations to complete
	time.Sleep(100 * time.Millisecond)
	// Then close Redis
	if env.Redis != nil {
		env.Redis.Close()
	}
}

func (env *TestEnvironment) createMember(t *testing.T, name string, mt model.MembershipType) *model.Member {
	m, err := env.MemberRepo.Create(context.Background(), &model.Member{
		Name:           name,
		Role:           model.RoleMember,
		MembershipType: mt,
		Active:         true,
	})
	require.NoError(t, err)
	return m
}

func TestE2E_FeeGenerationAndSettlement(t *testing.T) {
	env := setupE2EEnvironment(t)
	defer env.Cleanup()

	ctx := context.Background()

	kari := env.createMember(t, "Kari Nordmann", model.MembershipStandard)
	ola := env.createMember(t, "Ola Hansen", model.MembershipStudent)
	env.createMember(t, "Gamle Gunnar", model.MembershipHonorary)

	result, err := env.BillingService.GenerateMonthlyFees(ctx, 2025, time.August)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Created)
	assert.Equal(t, 0, result.Skipped)
	assert.Empty(t, result.Failures)

	// re-run is a no-op
	result, err = env.BillingService.GenerateMonthlyFees(ctx, 2025, time.August)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Created)
	assert.Equal(t, 2, result.Skipped)

	period := services.PeriodKey(2025, time.August)
	req, err := env.RequestRepo.FindByPeriod(ctx, kari.ID, period, model.CategoryMembershipFee)
	require.NoError(t, err)
	assert.True(t, req.Amount.Equal(decimal.RequireFromString("250.00")))

	settlement, err := env.BillingService.MarkPaid(ctx, req.ID)
	require.NoError(t, err)
	require.NotNil(t, settlement)
	assert.True(t, settlement.Amount.Equal(req.Amount))
	require.NotNil(t, settlement.PaymentRequestID)
	assert.Equal(t, req.ID, *settlement.PaymentRequestID)

	balance, err := env.MemberRepo.GetBalance(ctx, kari.ID)
	require.NoError(t, err)
	assert.True(t, balance.Equal(decimal.RequireFromString("250.00")))

	// a settled request cannot be paid twice
	_, err = env.BillingService.MarkPaid(ctx, req.ID)
	assert.ErrorIs(t, err, services.ErrNotPending)

	// the student's fee is still pending and untouched
	olaBalance, err := env.MemberRepo.GetBalance(ctx, ola.ID)
	require.NoError(t, err)
	assert.True(t, olaBalance.IsZero())
}

func TestE2E_ReopenReversesSettlement(t *testing.T) {
	env := setupE2EEnvironment(t)
	defer env.Cleanup()

	ctx := context.Background()
	kari := env.createMember(t, "Kari Nordmann", model.MembershipStandard)

	_, err := env.BillingService.GenerateMonthlyFees(ctx, 2025, time.August)
	require.NoError(t, err)

	period := services.PeriodKey(2025, time.August)
	req, err := env.RequestRepo.FindByPeriod(ctx, kari.ID, period, model.CategoryMembershipFee)
	require.NoError(t, err)

	_, err = env.BillingService.MarkPaid(ctx, req.ID)
	require.NoError(t, err)

	err = env.BillingService.Reopen(ctx, req.ID)
	require.NoError(t, err)

	reloaded, err := env.RequestRepo.Get(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentRequestPending, reloaded.Status)

	balance, err := env.MemberRepo.GetBalance(ctx, kari.ID)
	require.NoError(t, err)
	assert.True(t, balance.IsZero(), "settlement credit must be reversed, got %s", balance)

	_, total, err := env.TransactionRepo.List(ctx, model.TransactionFilter{})
	require.NoError(t, err)
	assert.Equal(t, int64(0), total)
}

func TestE2E_ReminderPublishAndConsume(t *testing.T) {
	env := setupE2EEnvironment(t)
	defer env.Cleanup()

	ctx := context.Background()
	kari := env.createMember(t, "Kari Nordmann", model.MembershipStandard)

	dueToday := time.Now().UTC()
	_, err := env.RequestRepo.Create(ctx, &model.PaymentRequest{
		MemberID: kari.ID,
		Title:    "Sommerfest 2025",
		Amount:   decimal.RequireFromString("150.00"),
		Category: model.CategoryEventCost,
		DueDate:  dueToday,
		Status:   model.PaymentRequestPending,
	})
	require.NoError(t, err)

	result, err := env.ReminderService.SendDeadlineReminders(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.DueTodayCount)
	assert.Empty(t, result.Failures)

	stats, err := env.Queue.GetStats()
	require.NoError(t, err)
	assert.GreaterOrEqual(t, stats.TotalMessages, int64(1))

	// an immediate second scan is deduplicated by the reminder stamp
	result, err = env.ReminderService.SendDeadlineReminders(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, result.DueTodayCount)
	assert.Equal(t, 1, result.Skipped)

	received := make(chan model.ReminderNotification, 1)
	err = env.Queue.Consume(func(ctx context.Context, msg *queue.Message) error {
		var job model.ReminderNotification
		if err := json.Unmarshal(msg.Data, &job); err != nil {
			return err
		}
		select {
		case received <- job:
		default:
		}
		return nil
	})
	require.NoError(t, err)

	select {
	case job := <-received:
		assert.Equal(t, kari.ID, job.MemberID)
		assert.Equal(t, "Sommerfest 2025", job.Title)
		assert.Equal(t, model.ReminderDueToday, job.Kind)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for reminder consumption")
	}
}

func TestE2E_LedgerRecordAndReconcile(t *testing.T) {
	env := setupE2EEnvironment(t)
	defer env.Cleanup()

	ctx := context.Background()
	kari := env.createMember(t, "Kari Nordmann", model.MembershipStandard)

	_, err := env.LedgerService.Record(ctx, model.TransactionCreateRequest{
		MemberID:    &kari.ID,
		Amount:      decimal.RequireFromString("500.00"),
		Category:    model.CategoryDonation,
		Description: "Gave fra Kari",
		Date:        time.Now().UTC(),
	})
	require.NoError(t, err)

	_, err = env.LedgerService.Record(ctx, model.TransactionCreateRequest{
		MemberID:    &kari.ID,
		Amount:      decimal.RequireFromString("-120.50"),
		Category:    model.CategoryEventCost,
		Description: "Utlegg sommerfest",
		Date:        time.Now().UTC(),
	})
	require.NoError(t, err)

	balance, err := env.MemberRepo.GetBalance(ctx, kari.ID)
	require.NoError(t, err)
	assert.True(t, balance.Equal(decimal.RequireFromString("379.50")))

	// stored balance and transaction sum agree
	err = env.LedgerService.Reconcile(ctx, kari.ID)
	assert.NoError(t, err)
}

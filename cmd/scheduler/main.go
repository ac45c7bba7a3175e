package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/mvaberg/klubbkasse/internal/config"
	"github.com/mvaberg/klubbkasse/internal/model"
	"github.com/mvaberg/klubbkasse/internal/queue"
	"github.com/mvaberg/klubbkasse/internal/repository"
	"github.com/mvaberg/klubbkasse/internal/services"
	"github.com/mvaberg/klubbkasse/pkg/logger"
	"github.com/mvaberg/klubbkasse/pkg/pg"
	"github.com/mvaberg/klubbkasse/pkg/prom"
	"github.com/mvaberg/klubbkasse/pkg/redis"
)

// reminderInterval is how often pending requests are re-checked for due
// reminders; the 24h dedup stamp keeps frequent ticks quiet.
const reminderInterval = time.Hour

// feeInterval only needs to catch the month boundary.
const feeInterval = 6 * time.Hour

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {

	err := config.Load(argContainsEnvPath())
	if err != nil {
		logger.Error("failed to load config", "error", err)
		return
	}

	if config.Get().AppDebugMetricsAddr != "" {
		host, _ := os.Hostname()
		if err := prom.Create(host, config.Get().AppEnv, config.Get().PromNamespace); err != nil {
			logger.Error("failed to create metrics", "error", err)
		}
		go prom.ListenAndServer(config.Get().AppDebugMetricsAddr, config.Get().AppDebugMetricsURI)
	}

	readConf := pg.Config{
		User:     config.Get().PostgresReadUser,
		Host:     config.Get().PostgresReadHost,
		Port:     config.Get().PostgresReadPort,
		Password: config.Get().PostgresReadPassword,
		Database: config.Get().PostgresReadDatabase,
	}
	writeConf := pg.Config{
		User:     config.Get().PostgresWriteUser,
		Host:     config.Get().PostgresWriteHost,
		Port:     config.Get().PostgresWritePort,
		Password: config.Get().PostgresWritePassword,
		Database: config.Get().PostgresWriteDatabase,
	}

	db, err := pg.CreateReadWrite(readConf, writeConf, false)
	if err != nil {
		logger.Error("failed connecting to pg", "error", err)
		return
	}

	redisAdap, err := redis.NewRedisAdapter("default", config.Get().RedisUniversalKeyPrefix, &redis.Options{
		Addrs:      []string{config.Get().RedisAddr},
		ClientName: "default",
		DB:         config.Get().RedisDatabase,
		Username:   config.Get().RedisUsername,
		Password:   config.Get().RedisPassword,
	})
	if err != nil {
		logger.Error("failed connecting to redis", "error", err)
		return
	}

	q, err := queue.NewQueue(redisAdap, queue.QueueConfig{
		Name:              config.Get().QueueName,
		ConsumerGroup:     config.Get().QueueConsumerGroup,
		ConsumerName:      config.Get().QueueConsumerName,
		MaxRetries:        config.Get().QueueMaxRetries,
		VisibilityTimeout: config.Get().QueueVisibilityTimeout,
		PollInterval:      config.Get().QueuePollInterval,
		BatchSize:         config.Get().QueueBatchSize,
		MaxLen:            config.Get().QueueMaxLen,
		EnableDLQ:         config.Get().QueueEnableDLQ,
	})
	if err != nil {
		logger.Error("failed creating queue", "error", err)
		return
	}

	memberRepo := repository.NewMemberRepository(db)
	transactionRepo := repository.NewTransactionRepository(db)
	requestRepo := repository.NewPaymentRequestRepository(db)

	billingService := services.NewBillingService(requestRepo, memberRepo, transactionRepo, feeScheduleFromConfig())
	reminderService := services.NewReminderService(requestRepo, q, config.Get().ReminderLookaheadDays)

	ctx, cancel := context.WithCancel(context.Background())

	go feeLoop(ctx, billingService)
	go reminderLoop(ctx, reminderService)

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c

	cancel()
	logger.Info("scheduler stopped")
}

// feeLoop generates the current month's membership fee requests. Generation
// is idempotent, so running every tick costs nothing once the month exists.
func feeLoop(ctx context.Context, billing *services.BillingService) {
	runFees(ctx, billing)

	ticker := time.NewTicker(feeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			runFees(ctx, billing)
		}
	}
}

func runFees(ctx context.Context, billing *services.BillingService) {
	now := time.Now().UTC()
	result, err := billing.GenerateMonthlyFees(ctx, now.Year(), now.Month())
	if err != nil {
		logger.Error("fee generation failed", "error", err)
		return
	}
	prom.AddFeeRequestOutcome("created", float64(result.Created))
	prom.AddFeeRequestOutcome("skipped", float64(result.Skipped))
	prom.AddFeeRequestOutcome("failed", float64(len(result.Failures)))
}

func reminderLoop(ctx context.Context, reminders *services.ReminderService) {
	runReminders(ctx, reminders)

	ticker := time.NewTicker(reminderInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			runReminders(ctx, reminders)
		}
	}
}

func runReminders(ctx context.Context, reminders *services.ReminderService) {
	result, err := reminders.SendDeadlineReminders(ctx)
	if err != nil {
		logger.Error("reminder run failed", "error", err)
		return
	}
	logger.Info("reminder run finished",
		"due_today", result.DueTodayCount,
		"due_soon", result.DueSoonCount,
		"skipped", result.Skipped,
		"failures", len(result.Failures))
}

func feeScheduleFromConfig() services.FeeSchedule {
	fees := services.FeeSchedule{}
	if v := config.Get().FeeStandard; v != "" {
		amount, err := model.ParseAmount(v)
		if err != nil {
			logger.Panic("invalid FEE_STANDARD", "value", v, "error", err)
		}
		fees[model.MembershipStandard] = amount
	}
	if v := config.Get().FeeStudent; v != "" {
		amount, err := model.ParseAmount(v)
		if err != nil {
			logger.Panic("invalid FEE_STUDENT", "value", v, "error", err)
		}
		fees[model.MembershipStudent] = amount
	}
	return fees
}

func argContainsEnvPath() string {
	for _, v := range os.Args {
		if strings.Contains(v, "--env=") {
			s := strings.Split(v, "=")
			if _, err := os.Open(s[1]); err != nil {
				logger.Error("failed to open the passed env file, got error" + err.Error())
				return ""
			}
			return s[1]
		}
	}
	return ""
}

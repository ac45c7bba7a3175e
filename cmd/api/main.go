package main

import (
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/mvaberg/klubbkasse/internal/config"
	"github.com/mvaberg/klubbkasse/internal/handlers"
	"github.com/mvaberg/klubbkasse/internal/model"
	"github.com/mvaberg/klubbkasse/internal/queue"
	"github.com/mvaberg/klubbkasse/internal/repository"
	"github.com/mvaberg/klubbkasse/internal/services"
	xhttp "github.com/mvaberg/klubbkasse/pkg/http"
	"github.com/mvaberg/klubbkasse/pkg/logger"
	"github.com/mvaberg/klubbkasse/pkg/pg"
	"github.com/mvaberg/klubbkasse/pkg/redis"
)

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

	// transport (tcp for now)
	s := xhttp.NewServer(xhttp.DefaultServerOption)
	s.Server.ReadBufferSize = 1024 * 16
	s.Server.WriteBufferSize = 1024 * 16
	s.Use(xhttp.CompressMiddleware(6))
	s.Use(xhttp.TimeoutMiddleware(time.Second * 5))
	s.Use(xhttp.RequestLoggerMiddleware)
	s.Use(xhttp.RecoverMiddleware)
	s.Router = xhttp.CreateDefaultRouter()

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

	pgDebug := false
	if config.Get().AppEnv == "dev" {
		pgDebug = true
	}
	db, err := pg.CreateReadWrite(readConf, writeConf, pgDebug)
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

	// services
	memberService := services.NewMemberService(memberRepo)
	ledgerService := services.NewLedgerService(transactionRepo, memberRepo, requestRepo)
	billingService := services.NewBillingService(requestRepo, memberRepo, transactionRepo, feeScheduleFromConfig())
	reportService := services.NewReportService(transactionRepo, memberRepo)
	reminderService := services.NewReminderService(requestRepo, q, config.Get().ReminderLookaheadDays)
	healthService := services.NewHealthService()

	// v1 handlers
	memberHandler := handlers.NewMemberHandler(memberService)
	transactionHandler := handlers.NewTransactionHandler(ledgerService)
	billingHandler := handlers.NewBillingHandler(billingService)
	reportHandler := handlers.NewReportHandler(reportService)
	reminderHandler := handlers.NewReminderHandler(reminderService)
	healthHandler := handlers.NewHealthHandler(healthService)

	g := s.Router.Group("/api/v1")
	handlers.RegisterMemberRoutes(g, memberHandler)
	handlers.RegisterTransactionRoutes(g, transactionHandler)
	handlers.RegisterBillingRoutes(g, billingHandler)
	handlers.RegisterReportRoutes(g, reportHandler)
	handlers.RegisterReminderRoutes(g, reminderHandler)
	handlers.RegisterHealthRoutes(g, healthHandler)

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Kill)

	go func() {
		var err = s.ListenAndServe(config.Get().HttpListenAddr)
		if err != nil {
			logger.Error("error in running http-server", "error", err)
		}
	}()

	select {
	case <-c:
		s.Shutdown()
	}
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

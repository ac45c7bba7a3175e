package main

import (
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/mvaberg/klubbkasse/internal/config"
	"github.com/mvaberg/klubbkasse/internal/notifier"
	"github.com/mvaberg/klubbkasse/pkg/logger"
	"github.com/mvaberg/klubbkasse/pkg/prom"
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

	if config.Get().AppDebugMetricsAddr != "" {
		host, _ := os.Hostname()
		if err := prom.Create(host, config.Get().AppEnv, config.Get().PromNamespace); err != nil {
			logger.Error("failed to create metrics", "error", err)
		}
		go prom.ListenAndServer(config.Get().AppDebugMetricsAddr, config.Get().AppDebugMetricsURI)
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

	webhook := notifier.NewWebhookClient(
		config.Get().NotifyURL,
		time.Duration(config.Get().NotifyTimeout)*time.Millisecond,
	)
	idempotency := notifier.NewIdempotencyService(redisAdap, notifier.DefaultIdempotencyConfig())
	processor := notifier.NewReminderProcessor(webhook, idempotency)

	service, err := notifier.NewNotifierService(redisAdap)
	if err != nil {
		logger.Error("failed to create notifier service", "error", err)
		return
	}
	service.RegisterProcessor(processor)

	if err := service.Start(); err != nil {
		logger.Error("failed to start notifier service", "error", err)
		return
	}

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c

	service.Stop()
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

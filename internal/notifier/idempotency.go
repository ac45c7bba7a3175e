package notifier

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mvaberg/klubbkasse/pkg/logger"
	"github.com/mvaberg/klubbkasse/pkg/redis"
)

var (
	ErrAlreadyDelivered   = errors.New("reminder already delivered")
	ErrLockAcquireFailed  = errors.New("failed to acquire delivery lock")
	ErrMaxRetriesExceeded = errors.New("maximum delivery retries exceeded")
)

type IdempotencyConfig struct {
	LockTTL time.Duration

	// DeliveredTTL keeps the delivered marker for the dedup window; after it
	// expires the same reminder may legitimately go out again.
	DeliveredTTL time.Duration

	MaxRetries int

	RetryKeyPrefix string

	LockKeyPrefix string

	DeliveredKeyPrefix string
}

func DefaultIdempotencyConfig() IdempotencyConfig {
	return IdempotencyConfig{
		LockTTL:            30 * time.Second,
		DeliveredTTL:       24 * time.Hour,
		MaxRetries:         3,
		RetryKeyPrefix:     "reminder:retry:",
		LockKeyPrefix:      "reminder:lock:",
		DeliveredKeyPrefix: "reminder:delivered:",
	}
}

// IdempotencyService guards reminder delivery across competing notifier
// consumers: a short-term lock serializes in-flight work and a delivered
// marker absorbs re-published duplicates for the dedup window.
type IdempotencyService struct {
	redis  redis.RedisAdapter
	config IdempotencyConfig
}

func NewIdempotencyService(redisAdapter redis.RedisAdapter, config IdempotencyConfig) *IdempotencyService {
	return &IdempotencyService{
		redis:  redisAdapter,
		config: config,
	}
}

type DeliveryContext struct {
	DeliveryID   string
	RetryCount   int
	IsRetry      bool
	lockAcquired bool
	service      *IdempotencyService
}

func (s *IdempotencyService) AcquireDeliveryLock(ctx context.Context, deliveryID string) (*DeliveryContext, error) {
	deliveredKey := s.config.DeliveredKeyPrefix + deliveryID
	exists, err := s.redis.Exist(deliveredKey)
	if err != nil {
		logger.Warn("Failed to check delivered marker", "delivery_id", deliveryID, "error", err)
		// Continue even if check fails - better to risk a duplicate reminder
		// than to block delivery
	} else if exists > 0 {
		return nil, ErrAlreadyDelivered
	}

	retryKey := s.config.RetryKeyPrefix + deliveryID
	retryCountBytes, err := s.redis.Get(retryKey)
	retryCount := 0
	if err == nil && len(retryCountBytes) > 0 {
		fmt.Sscanf(string(retryCountBytes), "%d", &retryCount)
	}

	if retryCount >= s.config.MaxRetries {
		logger.Error("Max delivery retries exceeded", "delivery_id", deliveryID, "retry_count", retryCount)
		return nil, fmt.Errorf("%w: delivery_id=%s, retries=%d", ErrMaxRetriesExceeded, deliveryID, retryCount)
	}

	lockKey := s.config.LockKeyPrefix + deliveryID
	lockValue := []byte(fmt.Sprintf("%d", time.Now().UnixNano()))

	acquired, err := s.redis.SetNX(lockKey, lockValue, s.config.LockTTL)
	if err != nil {
		logger.Error("Failed to acquire delivery lock", "delivery_id", deliveryID, "error", err)
		return nil, fmt.Errorf("%w: %v", ErrLockAcquireFailed, err)
	}

	if !acquired {
		logger.Info("Delivery lock held by another consumer", "delivery_id", deliveryID)
		return nil, ErrLockAcquireFailed
	}

	logger.Info("Delivery lock acquired",
		"delivery_id", deliveryID,
		"retry_count", retryCount,
		"lock_ttl", s.config.LockTTL)

	return &DeliveryContext{
		DeliveryID:   deliveryID,
		RetryCount:   retryCount,
		IsRetry:      retryCount > 0,
		lockAcquired: true,
		service:      s,
	}, nil
}

func (s *IdempotencyService) MarkDelivered(ctx context.Context, dc *DeliveryContext) error {
	deliveryID := dc.DeliveryID

	deliveredKey := s.config.DeliveredKeyPrefix + deliveryID
	err := s.redis.Set(deliveredKey, []byte("1"), s.config.DeliveredTTL)
	if err != nil {
		logger.Error("Failed to set delivered marker", "delivery_id", deliveryID, "error", err)
		return fmt.Errorf("failed to mark as delivered: %w", err)
	}

	s.cleanup(ctx, dc)

	logger.Info("Reminder marked as delivered",
		"delivery_id", deliveryID,
		"retry_count", dc.RetryCount)

	return nil
}

func (s *IdempotencyService) MarkFailure(ctx context.Context, dc *DeliveryContext, reason error) error {
	deliveryID := dc.DeliveryID

	retryKey := s.config.RetryKeyPrefix + deliveryID
	newRetryCount := dc.RetryCount + 1
	retryValue := []byte(fmt.Sprintf("%d", newRetryCount))

	// Keep the counter across retries so the max-retry guard holds even when
	// delivery attempts land on different consumers
	err := s.redis.Set(retryKey, retryValue, s.config.DeliveredTTL)
	if err != nil {
		logger.Error("Failed to increment retry counter", "delivery_id", deliveryID, "error", err)
	}

	lockKey := s.config.LockKeyPrefix + deliveryID
	if err := s.redis.Del(lockKey); err != nil {
		logger.Warn("Failed to remove delivery lock", "delivery_id", deliveryID, "error", err)
	}

	logger.Warn("Reminder delivery failed, will retry",
		"delivery_id", deliveryID,
		"retry_count", newRetryCount,
		"max_retries", s.config.MaxRetries,
		"reason", reason)

	return nil
}

func (s *IdempotencyService) ReleaseLock(ctx context.Context, dc *DeliveryContext) error {
	if dc == nil || !dc.lockAcquired {
		return nil
	}

	lockKey := s.config.LockKeyPrefix + dc.DeliveryID
	if err := s.redis.Del(lockKey); err != nil {
		logger.Warn("Failed to release delivery lock", "delivery_id", dc.DeliveryID, "error", err)
		return err
	}

	dc.lockAcquired = false
	logger.Debug("Delivery lock released", "delivery_id", dc.DeliveryID)
	return nil
}

func (s *IdempotencyService) cleanup(ctx context.Context, dc *DeliveryContext) {
	deliveryID := dc.DeliveryID

	lockKey := s.config.LockKeyPrefix + deliveryID
	if err := s.redis.Del(lockKey); err != nil {
		logger.Warn("Failed to cleanup delivery lock", "delivery_id", deliveryID, "error", err)
	}

	retryKey := s.config.RetryKeyPrefix + deliveryID
	if err := s.redis.Del(retryKey); err != nil {
		logger.Warn("Failed to cleanup retry counter", "delivery_id", deliveryID, "error", err)
	}

	dc.lockAcquired = false
}

func (s *IdempotencyService) GetRetryCount(ctx context.Context, deliveryID string) (int, error) {
	retryKey := s.config.RetryKeyPrefix + deliveryID
	retryCountBytes, err := s.redis.Get(retryKey)
	if err != nil {
		if err == redis.NilError {
			return 0, nil
		}
		return 0, err
	}

	retryCount := 0
	fmt.Sscanf(string(retryCountBytes), "%d", &retryCount)
	return retryCount, nil
}

func (s *IdempotencyService) IsDelivered(ctx context.Context, deliveryID string) (bool, error) {
	deliveredKey := s.config.DeliveredKeyPrefix + deliveryID
	exists, err := s.redis.Exist(deliveredKey)
	if err != nil {
		return false, err
	}
	return exists > 0, nil
}

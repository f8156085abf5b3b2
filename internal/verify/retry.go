package verify

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/example/facegate/internal/logging"
)

func (s *Service) withRedisRetry(ctx context.Context, correlationID, operation string, fn func() error) error {
	if s.retryAttempts <= 1 {
		err := fn()
		return logging.NewOperationError(operation, correlationID, err)
	}

	backoff := s.initialBackoff
	opLogger := logging.WithOperation(s.logger, operation, correlationID)
	var err error
	for attempt := 0; attempt < s.retryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return logging.NewOperationError(operation, correlationID, ctx.Err())
			case <-time.After(backoff):
			}
			if next := backoff * 2; next <= s.maxBackoff {
				backoff = next
			}
		}

		err = fn()
		if err == nil {
			if attempt > 0 {
				opLogger.Info("redis operation succeeded after retry", zap.Int("attempt", attempt+1))
			}
			return nil
		}

		if !isTransientError(err) || attempt == s.retryAttempts-1 {
			opLogger.Error("redis operation failed", zap.Error(err), zap.Int("attempt", attempt+1))
			return logging.NewOperationError(operation, correlationID, err)
		}

		opLogger.Warn("transient redis error", zap.Error(err), zap.Int("attempt", attempt+1))
	}
	return logging.NewOperationError(operation, correlationID, err)
}

func (s *Service) withRedisGet(ctx context.Context, correlationID, operation, cacheKey string) (string, error) {
	var result string
	err := s.withRedisRetry(ctx, correlationID, operation, func() error {
		value, err := s.cache.Get(ctx, cacheKey)
		if err != nil {
			return err
		}
		result = value
		return nil
	})
	if err != nil {
		return "", err
	}
	return result, nil
}

func isTransientError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var temporary interface{ Temporary() bool }
	if errors.As(err, &temporary) && temporary.Temporary() {
		return true
	}

	return false
}

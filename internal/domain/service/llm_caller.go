package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// callWithRetry invokes fn with exponential backoff (baseWait, 2*baseWait,
// 4*baseWait, ...) up to maxRetries times, retrying only on errors
// ClassifyError marks transient. The final attempt's error is returned
// wrapped with the retry count.
func callWithRetry(ctx context.Context, logger *zap.Logger, maxRetries int, baseWait time.Duration, fn func(context.Context) (ChatResponse, error)) (ChatResponse, error) {
	var lastErr error

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			wait := baseWait * (1 << (attempt - 1))
			logger.Info("retrying LLM call",
				zap.Int("attempt", attempt),
				zap.Int("max_retries", maxRetries),
				zap.Duration("wait", wait),
				zap.Error(lastErr),
			)
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return ChatResponse{}, ctx.Err()
			}
		}

		resp, err := fn(ctx)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		classified := ClassifyError(err, "", "")
		if !classified.IsRetryable() {
			logger.Warn("non-retryable LLM error", zap.String("kind", classified.Kind.String()), zap.Error(err))
			return ChatResponse{}, fmt.Errorf("non-retryable LLM error: %w", err)
		}
	}

	return ChatResponse{}, fmt.Errorf("LLM call failed after %d retries: %w", maxRetries, lastErr)
}

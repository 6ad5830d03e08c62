// Package retry provides a generic bounded-retry wrapper with exponential
// backoff. It knows nothing about HTTP or connectors; any fallible unit of
// work can be wrapped.
package retry

import (
	"context"
	"time"

	"go.uber.org/zap"
)

const baseDelay = time.Second

// Option customizes a single Do invocation.
type Option func(*settings)

type settings struct {
	logger *zap.Logger
	sleep  func(ctx context.Context, d time.Duration) error
}

// WithLogger attaches a logger for per-attempt diagnostics.
func WithLogger(logger *zap.Logger) Option {
	return func(s *settings) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithSleep replaces the inter-attempt sleep. Used by tests to capture the
// delay sequence without waiting.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(s *settings) {
		if sleep != nil {
			s.sleep = sleep
		}
	}
}

// Do invokes op up to maxAttempts times, sleeping 2^n seconds before
// attempt n+1 (n counted from zero). It returns the first success
// immediately and the final attempt's error without a trailing delay.
// maxAttempts values below 1 are treated as 1, meaning no retry.
func Do[T any](ctx context.Context, name string, maxAttempts int, op func(ctx context.Context) (T, error), opts ...Option) (T, error) {
	s := settings{
		logger: zap.NewNop(),
		sleep:  sleepContext,
	}
	for _, opt := range opts {
		opt(&s)
	}

	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var zero T
	var lastErr error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		result, err := op(ctx)
		if err == nil {
			if attempt > 1 {
				s.logger.Debug("operation succeeded after retry",
					zap.String("operation", name),
					zap.Int("attempt", attempt),
					zap.Int("maxAttempts", maxAttempts),
				)
			}
			return result, nil
		}
		lastErr = err

		if attempt == maxAttempts {
			break
		}

		delay := baseDelay << (attempt - 1)
		s.logger.Warn("operation failed, retrying",
			zap.String("operation", name),
			zap.Int("attempt", attempt),
			zap.Int("maxAttempts", maxAttempts),
			zap.Duration("delay", delay),
			zap.Error(err),
		)

		if err := s.sleep(ctx, delay); err != nil {
			return zero, err
		}
	}

	s.logger.Warn("operation failed after final attempt",
		zap.String("operation", name),
		zap.Int("maxAttempts", maxAttempts),
		zap.Error(lastErr),
	)

	return zero, lastErr
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	errs "subarchive/pkg/errors"
	"subarchive/pkg/logger"
)

// Operation is one attempt of a retryable call.
type Operation func(ctx context.Context) error

// OperationWithResult is an attempt that also yields a value.
type OperationWithResult[T any] func(ctx context.Context) (T, error)

// Config controls Do. Nil fields fall back to the defaults.
type Config struct {
	// MaxAttempts counts the first try; 0 retries until ctx ends
	MaxAttempts int
	Backoff     BackoffStrategy
	RetryIf     func(error) bool
	// OnRetry runs before each pause
	OnRetry func(attempt int, err error, delay time.Duration)
	Logger  logger.Logger
}

func DefaultConfig() *Config {
	return &Config{
		MaxAttempts: 4,
		Backoff:     DefaultExponentialBackoff(),
		RetryIf:     DefaultRetryIf,
		Logger:      logger.GetLogger(),
	}
}

// DefaultRetryIf retries transient and untyped errors. Cancellation and
// deadline errors are never retried.
func DefaultRetryIf(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return false
	}
	var e *errs.Error
	if errors.As(err, &e) {
		return errs.IsRetryable(e.Type)
	}
	return true
}

func (c *Config) delay(attempt int, err error) time.Duration {
	b := c.Backoff
	if b == nil {
		b = DefaultExponentialBackoff()
	}
	if aware, ok := b.(ErrorAwareBackoff); ok {
		return aware.NextDelayFor(attempt, err)
	}
	return b.NextDelay(attempt)
}

func (c *Config) log() logger.Logger {
	if c.Logger == nil {
		return logger.NewNopLogger()
	}
	return c.Logger
}

// Do runs op until it succeeds, fails with a non-retryable error, or runs out
// of attempts. Exhaustion wraps the last error as ErrorTypeFatal.
func Do(ctx context.Context, op Operation, cfg *Config) error {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	retryIf := cfg.RetryIf
	if retryIf == nil {
		retryIf = DefaultRetryIf
	}
	log := cfg.log()

	attempt := 0
	for {
		attempt++
		err := op(ctx)
		if err == nil {
			if attempt > 1 {
				log.DebugWithFields("operation succeeded after retry", map[string]interface{}{"attempt": attempt})
			}
			return nil
		}
		if !retryIf(err) {
			return err
		}
		if cfg.MaxAttempts > 0 && attempt >= cfg.MaxAttempts {
			log.ErrorWithFields("max retry attempts exceeded", map[string]interface{}{
				"attempts":   attempt,
				"last_error": err.Error(),
			})
			return errs.Wrap(errs.ErrorTypeFatal, err, fmt.Sprintf("max retry attempts (%d) exceeded", cfg.MaxAttempts))
		}

		pause := cfg.delay(attempt, err)
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, err, pause)
		}
		log.WarnWithFields("retrying operation", map[string]interface{}{
			"attempt":      attempt,
			"max_attempts": cfg.MaxAttempts,
			"delay_ms":     pause.Milliseconds(),
			"error":        err.Error(),
		})
		if werr := Wait(ctx, pause); werr != nil {
			return fmt.Errorf("retry cancelled: %w", werr)
		}
	}
}

// DoWithResult is Do for operations that return a value.
func DoWithResult[T any](ctx context.Context, op OperationWithResult[T], cfg *Config) (T, error) {
	var out T
	err := Do(ctx, func(ctx context.Context) error {
		v, err := op(ctx)
		if err == nil {
			out = v
		}
		return err
	}, cfg)
	return out, err
}

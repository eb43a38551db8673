package retry

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"time"

	errs "subarchive/pkg/errors"
)

// BackoffStrategy maps a 1-based retry number to the pause before it.
type BackoffStrategy interface {
	NextDelay(attempt int) time.Duration
	Reset()
}

// ErrorAwareBackoff can pick its schedule from the failure being retried.
type ErrorAwareBackoff interface {
	BackoffStrategy
	NextDelayFor(attempt int, err error) time.Duration
}

// ExponentialBackoff grows BaseDelay by Multiplier per attempt, capped at
// MaxDelay. JitterFactor spreads each delay by up to that fraction either way.
type ExponentialBackoff struct {
	BaseDelay    time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	JitterFactor float64
}

func exponential(base, ceiling time.Duration) *ExponentialBackoff {
	return &ExponentialBackoff{BaseDelay: base, MaxDelay: ceiling, Multiplier: 2, JitterFactor: 0.1}
}

// DefaultExponentialBackoff starts at one second and stops growing at a minute.
func DefaultExponentialBackoff() *ExponentialBackoff {
	return exponential(time.Second, time.Minute)
}

func (b *ExponentialBackoff) NextDelay(attempt int) time.Duration {
	if attempt < 1 {
		return 0
	}
	d := float64(b.BaseDelay) * math.Pow(b.Multiplier, float64(attempt-1))
	if b.MaxDelay > 0 {
		d = math.Min(d, float64(b.MaxDelay))
	}
	if b.JitterFactor > 0 {
		d *= 1 + b.JitterFactor*(2*rand.Float64()-1)
	}
	return time.Duration(math.Max(d, 0))
}

func (b *ExponentialBackoff) Reset() {}

// ConstantBackoff always waits Delay.
type ConstantBackoff struct {
	Delay time.Duration
}

func (b *ConstantBackoff) NextDelay(attempt int) time.Duration {
	if attempt < 1 {
		return 0
	}
	return b.Delay
}

func (b *ConstantBackoff) Reset() {}

// ErrorTypeBackoff keeps separate schedules for 429s, 5xx responses and
// everything else, so a rate limited upstream gets a longer pause.
type ErrorTypeBackoff struct {
	RateLimitBackoff   BackoffStrategy
	ServerErrorBackoff BackoffStrategy
	DefaultBackoff     BackoffStrategy
}

// NewErrorTypeBackoff derives the three schedules from base, normally the
// limiter interval: 10x base after a 429, 2x base after a 5xx, base otherwise.
func NewErrorTypeBackoff(base, ceiling time.Duration) *ErrorTypeBackoff {
	if base <= 0 {
		base = time.Second
	}
	ceiling = max(ceiling, base)
	return &ErrorTypeBackoff{
		RateLimitBackoff:   exponential(10*base, ceiling),
		ServerErrorBackoff: exponential(2*base, ceiling),
		DefaultBackoff:     exponential(base, ceiling),
	}
}

// ForError returns the schedule for err's upstream status code.
func (b *ErrorTypeBackoff) ForError(err error) BackoffStrategy {
	var e *errs.Error
	if !errors.As(err, &e) {
		return b.DefaultBackoff
	}
	switch {
	case e.Code == 429:
		return b.RateLimitBackoff
	case e.Code >= 500:
		return b.ServerErrorBackoff
	default:
		return b.DefaultBackoff
	}
}

func (b *ErrorTypeBackoff) NextDelay(attempt int) time.Duration {
	return b.DefaultBackoff.NextDelay(attempt)
}

func (b *ErrorTypeBackoff) NextDelayFor(attempt int, err error) time.Duration {
	return b.ForError(err).NextDelay(attempt)
}

func (b *ErrorTypeBackoff) Reset() {
	for _, s := range []BackoffStrategy{b.RateLimitBackoff, b.ServerErrorBackoff, b.DefaultBackoff} {
		s.Reset()
	}
}

// Wait sleeps for d unless ctx ends first.
func Wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
